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
	"slices"
	"strings"

	"github.com/gomlx/layouts/ir"
	"github.com/gomlx/layouts/types/xslices"
)

// Entry is one (node, layouts) pair of a LayoutMap. Single-valued nodes have exactly
// one layout; tuple-valued nodes have one layout per element position.
type Entry struct {
	Node    *ir.Node
	Layouts []Layout
}

// String implements fmt.Stringer.
func (e Entry) String() string {
	if len(e.Layouts) == 1 {
		return fmt.Sprintf("#%d %s: %s", e.Node.Id(), e.Node.Kind(), e.Layouts[0])
	}
	parts := xslices.Map(e.Layouts, func(l Layout) string { return l.String() })
	return fmt.Sprintf("#%d %s: (%s)", e.Node.Id(), e.Node.Kind(), strings.Join(parts, ", "))
}

// LayoutMap is the result of the layout inference pass: the inferred Layout of every
// node reachable from the analysed root, keyed by node identity.
//
// Entries are kept in the order the traversal first touched each node, so iterating
// with All is deterministic and reproducible -- convenient for diagnostics and tests.
// The map is read-only once the pass returns; re-running a pass builds a fresh map.
type LayoutMap struct {
	entries []Entry
	index   map[ir.NodeId]int
}

func newLayoutMap() *LayoutMap {
	return &LayoutMap{index: make(map[ir.NodeId]int)}
}

// entryFor returns the entry for the node, creating it -- with every output position
// Undefined, or seeded with defaultLayout when concrete -- on first touch.
func (m *LayoutMap) entryFor(node *ir.Node, defaultLayout Layout) *Entry {
	if pos, found := m.lookup(node); found {
		return &m.entries[pos]
	}
	numOutputs := 1
	if node.Shape().IsTuple() {
		numOutputs = node.Shape().TupleSize()
	}
	m.index[node.Id()] = len(m.entries)
	m.entries = append(m.entries, Entry{
		Node:    node,
		Layouts: xslices.SliceWithValue(numOutputs, defaultLayout),
	})
	return &m.entries[len(m.entries)-1]
}

// lookup resolves the entry position of a node. Ids are only unique within one
// graph, so the node pointer is checked too -- a node from another graph is absent.
func (m *LayoutMap) lookup(node *ir.Node) (int, bool) {
	pos, found := m.index[node.Id()]
	if !found || m.entries[pos].Node != node {
		return -1, false
	}
	return pos, true
}

// Len returns the number of nodes mapped.
func (m *LayoutMap) Len() int { return len(m.entries) }

// Has returns whether the node has an entry -- true for every node reachable from
// the root the pass was run on.
func (m *LayoutMap) Has(node *ir.Node) bool {
	_, found := m.lookup(node)
	return found
}

// Get returns the layout of the node's (first) output value, and whether the node
// has an entry at all. A reachable-but-unconstrained node yields Undefined, true.
func (m *LayoutMap) Get(node *ir.Node) (Layout, bool) {
	pos, found := m.lookup(node)
	if !found {
		return Undefined(), false
	}
	return m.entries[pos].Layouts[0], true
}

// Of returns the layout of the node's (first) output value, Undefined for nodes
// without an entry.
func (m *LayoutMap) Of(node *ir.Node) Layout {
	layout, _ := m.Get(node)
	return layout
}

// Layouts returns the layouts of all the node's output positions -- a single
// element for single-valued nodes. It returns nil for nodes without an entry.
func (m *LayoutMap) Layouts(node *ir.Node) []Layout {
	pos, found := m.lookup(node)
	if !found {
		return nil
	}
	return slices.Clone(m.entries[pos].Layouts)
}

// All returns every (node, layouts) entry, in the deterministic order the traversal
// first touched each node.
func (m *LayoutMap) All() []Entry {
	return slices.Clone(m.entries)
}

// String implements fmt.Stringer, printing one entry per line in traversal order.
func (m *LayoutMap) String() string {
	parts := make([]string, 0, len(m.entries)+1)
	parts = append(parts, fmt.Sprintf("LayoutMap (%d entries):", len(m.entries)))
	for _, entry := range m.entries {
		parts = append(parts, "  "+entry.String())
	}
	return strings.Join(parts, "\n")
}
