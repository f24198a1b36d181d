/*
 *	Copyright 2024 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package layouts

import (
	"github.com/gomlx/layouts/ir"
	"github.com/gomlx/layouts/types/shapes"
)

// Rule is the layout inference function for one operator kind.
//
// It receives the layouts currently assigned to the operator's operands (Undefined
// for unconstrained ones), the operands' shapes, and the node's static attributes.
//
// It returns:
//
//   - required: the layouts the operator demands of its operands -- nil, or one
//     entry per operand, Undefined meaning "no preference, accept the neighbor's
//     layout". The traversal reconciles demands against the operands' current
//     layouts, upgrading Undefined ones and recording a Conflict otherwise.
//   - outputs: the layouts of the operator's produced values, one per output
//     position (a single entry for single-valued operators).
//
// Rules must be pure: deterministic, no side effects, never mutating graph state.
type Rule func(inputs []Layout, inputShapes []shapes.Shape, attrs ir.Attributes) (required, outputs []Layout, err error)

// Registry maps operator kinds to their layout inference Rule.
//
// A Registry is built once at pass-pipeline setup (see NewStandardRegistry) and is
// read-only during traversal, so it may be shared by concurrent pass invocations on
// different graphs. Register is not safe to call concurrently with running passes.
type Registry struct {
	rules map[ir.OpType]Rule
}

// NewRegistry creates an empty rule registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[ir.OpType]Rule)}
}

// Register sets the rule for the given operator kind. The last registration for a
// kind wins, fully superseding any earlier one.
func (r *Registry) Register(op ir.OpType, rule Rule) {
	r.rules[op] = rule
}

// Lookup returns the rule registered for the given operator kind, if any.
//
// Operators without a registered rule are not an error: the traversal falls back to
// the pass-through policy (see PassThroughRule).
func (r *Registry) Lookup(op ir.OpType) (Rule, bool) {
	rule, found := r.rules[op]
	return rule, found
}

// PassThroughRule is the default policy for operators without a registered rule:
// if exactly one distinct concrete layout exists among the operands, it propagates
// unchanged to all outputs; if operands disagree, or none is concrete, the outputs
// are Undefined. It makes no demands on its operands and never fails, which keeps
// the pass total for unknown operators -- and is the correct behavior for
// elementwise and structural ones.
func PassThroughRule(inputs []Layout, inputShapes []shapes.Shape, attrs ir.Attributes) (required, outputs []Layout, err error) {
	propagated := Undefined()
	for _, input := range inputs {
		if !input.IsConcrete() {
			continue
		}
		if propagated.IsUndefined() {
			propagated = input
			continue
		}
		if !propagated.Equal(input) {
			propagated = Undefined() // Operands disagree: no propagation.
			break
		}
	}
	return nil, []Layout{propagated}, nil
}
