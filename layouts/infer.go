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
	"fmt"

	"github.com/gomlx/layouts/ir"
	"github.com/gomlx/layouts/types/shapes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	// ErrMissingTypeInfo is returned when the pass is invoked on a graph whose
	// shapes were not resolved first (see ir/typeinfer). It indicates a contract
	// violation by the caller and aborts the pass immediately.
	ErrMissingTypeInfo = errors.New("missing type info: run shape inference before layout inference")

	// ErrLayoutConflict is returned in Strict mode when a rule demands a layout of
	// an operand that already carries a different concrete one.
	ErrLayoutConflict = errors.New("layout conflict")
)

// Mode selects how the pass treats layout conflicts.
type Mode int

const (
	// Permissive records each Conflict and keeps going, leaving the mismatches to
	// a downstream layout-conversion pass.
	Permissive Mode = iota

	// Strict fails the pass with ErrLayoutConflict at the first mismatch.
	Strict
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case Permissive:
		return "Permissive"
	case Strict:
		return "Strict"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// Conflict records a disagreement found during inference: a rule on Node demanded
// Demanded of its Position-th operand, but that operand already carried Actual.
type Conflict struct {
	// Node is the consumer whose rule made the demand.
	Node *ir.Node

	// Operand is the node the demand was made of, at position Position of
	// Node.Inputs().
	Operand  *ir.Node
	Position int

	Demanded, Actual Layout
}

// String implements fmt.Stringer.
func (c Conflict) String() string {
	return fmt.Sprintf("node #%d (%s) demands %s of operand %d (node #%d), which has layout %s",
		c.Node.Id(), c.Node, c.Demanded, c.Position, c.Operand.Id(), c.Actual)
}

// Infer runs layout inference over every node reachable from root.
//
// It requires the graph's shapes to have been resolved (see ir/typeinfer); it fails
// fast with ErrMissingTypeInfo otherwise. The registry maps operator kinds to their
// layout rules; operators without a rule follow the pass-through policy (see
// PassThroughRule), so an unknown operator is never fatal.
//
// The traversal is a single bottom-up sweep: postorder over the DAG, each node
// evaluated exactly once (memoized by node identity, so diamond-shaped sharing is
// fine). When a rule demands a layout of an operand that is still Undefined, the
// operand is upgraded in place; consumers of that operand already evaluated are NOT
// revisited. When the operand already carries a different concrete layout, a
// Conflict is recorded (Permissive) or the pass fails with ErrLayoutConflict
// (Strict).
//
// The returned LayoutMap has an entry for every reachable node -- possibly
// Undefined, never absent -- in deterministic traversal order. The pass is a pure
// function of its arguments: it keeps no state between invocations and may run
// concurrently with other invocations sharing the same registry.
func Infer(root *ir.Node, registry *Registry, mode Mode) (*LayoutMap, []Conflict, error) {
	return InferWithSeeds(root, registry, mode, nil)
}

// InferWithSeeds is Infer with externally imposed layouts for specific nodes --
// typically variables annotated with the layout their data arrives in. Seeds act as
// root constraints: a seeded node starts from the given layout instead of Undefined.
//
// Each seed must fit the node's shape, or the pass fails with ErrInvalidLayout.
func InferWithSeeds(root *ir.Node, registry *Registry, mode Mode, seeds map[*ir.Node]Layout) (*LayoutMap, []Conflict, error) {
	if root == nil {
		return nil, nil, errors.Errorf("layout inference called with a nil root node")
	}
	if registry == nil {
		registry = NewRegistry()
	}
	inf := &inferencer{
		registry: registry,
		mode:     mode,
		lmap:     newLayoutMap(),
		visited:  make(map[ir.NodeId]bool),
		seeds:    make(map[ir.NodeId]Layout, len(seeds)),
	}
	for node, layout := range seeds {
		if err := layout.ValidateForShape(node.Shape()); err != nil {
			return nil, nil, errors.WithMessagef(err, "seed layout for node #%d", node.Id())
		}
		inf.seeds[node.Id()] = layout
	}
	if err := inf.visit(root); err != nil {
		return nil, nil, err
	}
	return inf.lmap, inf.conflicts, nil
}

// Collect runs layout inference in Permissive mode and returns the resulting map:
// the layouts of every node reachable from fn, in deterministic traversal order.
// It is the inspection entry point used by tests and diagnostics.
func Collect(fn *ir.Node, registry *Registry) (*LayoutMap, error) {
	lmap, _, err := Infer(fn, registry, Permissive)
	return lmap, err
}

// inferencer holds the state of one pass invocation. It is local to the invocation:
// nothing here is shared across graphs or reused between runs.
type inferencer struct {
	registry  *Registry
	mode      Mode
	lmap      *LayoutMap
	visited   map[ir.NodeId]bool
	seeds     map[ir.NodeId]Layout
	conflicts []Conflict
}

// entry returns the LayoutMap entry of a node, creating it (Undefined, or the
// node's seed layout) on first touch.
func (inf *inferencer) entry(node *ir.Node) *Entry {
	return inf.lmap.entryFor(node, inf.seeds[node.Id()])
}

// visit evaluates the layout of node, operands first. Each node is evaluated
// exactly once.
func (inf *inferencer) visit(node *ir.Node) error {
	if inf.visited[node.Id()] {
		return nil
	}
	inf.visited[node.Id()] = true

	if !node.Shape().Ok() {
		return errors.WithMessagef(ErrMissingTypeInfo, "node #%d (%s) has no resolved shape", node.Id(), node)
	}
	for _, input := range node.Inputs() {
		if err := inf.visit(input); err != nil {
			return err
		}
	}

	switch node.Kind() {
	case ir.NodeKindVariable, ir.NodeKindConstant:
		// Leaves default to Undefined unless seeded; consumers may upgrade them
		// through demands.
		inf.entry(node)
		return nil

	case ir.NodeKindCall:
		return inf.visitCall(node)

	case ir.NodeKindTuple:
		elements := make([]Layout, 0, len(node.Inputs()))
		for _, input := range node.Inputs() {
			elements = append(elements, inf.entry(input).Layouts[0])
		}
		inf.entry(node).Layouts = elements
		return nil

	case ir.NodeKindTupleGetItem:
		tupleEntry := inf.entry(node.Inputs()[0])
		index := node.TupleIndex()
		if index >= len(tupleEntry.Layouts) {
			return errors.Errorf("TupleGetItem(%d) out-of-range: tuple node #%d has %d output positions",
				index, node.Inputs()[0].Id(), len(tupleEntry.Layouts))
		}
		// Positional selection, no recomputation.
		inf.entry(node).Layouts[0] = tupleEntry.Layouts[index]
		return nil

	case ir.NodeKindFunction:
		for _, param := range node.FunctionParams() {
			if err := inf.visit(param); err != nil {
				return err
			}
		}
		bodyLayouts := inf.lmap.Layouts(node.Body())
		entry := inf.entry(node)
		copy(entry.Layouts, bodyLayouts)
		return nil

	default:
		return errors.Errorf("layout inference cannot handle node kind %s", node.Kind())
	}
}

// visitCall applies the operator's rule (or the pass-through policy) and reconciles
// its demands against the operands' current layouts.
func (inf *inferencer) visitCall(node *ir.Node) error {
	operands := node.Inputs()
	inputs := make([]Layout, len(operands))
	inputShapes := make([]shapes.Shape, len(operands))
	for ii, operand := range operands {
		// Operands of a Call are single-valued; tuple elements arrive through
		// TupleGetItem nodes, which already selected their position.
		inputs[ii] = inf.entry(operand).Layouts[0]
		inputShapes[ii] = operand.Shape()
	}

	rule, found := inf.registry.Lookup(node.Op())
	if !found {
		rule = PassThroughRule
	}
	required, outputs, err := rule(inputs, inputShapes, node.Attrs())
	if err != nil {
		return errors.WithMessagef(err, "layout rule for node #%d Call(%s)", node.Id(), node.Op())
	}

	if len(required) > 0 && len(required) != len(operands) {
		return errors.Errorf("layout rule for %s returned %d required layouts for %d operands",
			node.Op(), len(required), len(operands))
	}
	for ii, demand := range required {
		if !demand.IsConcrete() {
			continue
		}
		operandEntry := inf.entry(operands[ii])
		current := operandEntry.Layouts[0]
		if !current.IsConcrete() {
			// Unconstrained operand: upgrade it to the demanded layout. Consumers
			// already evaluated from the old value are not revisited (single
			// bottom-up sweep).
			operandEntry.Layouts[0] = demand
			klog.V(2).Infof("layouts.Infer: node #%d (%s) seeds operand #%d with %s",
				node.Id(), node.Op(), operands[ii].Id(), demand)
			continue
		}
		if current.Equal(demand) {
			continue
		}
		conflict := Conflict{
			Node:     node,
			Operand:  operands[ii],
			Position: ii,
			Demanded: demand,
			Actual:   current,
		}
		if inf.mode == Strict {
			return errors.WithMessagef(ErrLayoutConflict, "%s", conflict)
		}
		klog.Warningf("layouts.Infer: recorded conflict: %s", conflict)
		inf.conflicts = append(inf.conflicts, conflict)
	}

	entry := inf.entry(node)
	switch {
	case len(outputs) == len(entry.Layouts):
		copy(entry.Layouts, outputs)
	case len(outputs) == 1:
		// Rules unaware of multi-valued operators (like the pass-through policy)
		// propagate their single layout to all output positions.
		for ii := range entry.Layouts {
			entry.Layouts[ii] = outputs[0]
		}
	default:
		return errors.Errorf("layout rule for %s returned %d output layouts, node #%d has %d output positions",
			node.Op(), len(outputs), node.Id(), len(entry.Layouts))
	}
	klog.V(2).Infof("layouts.Infer: node #%d Call(%s) -> %v", node.Id(), node.Op(), entry.Layouts)
	return nil
}
