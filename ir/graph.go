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

// Package ir defines the tensor expression graph that the analysis passes of this
// library operate on.
//
// The main elements in the package are:
//
//   - Graph: an arena that owns every Node created for one expression. Nodes are
//     identified by their NodeId within the Graph, and may be shared by multiple
//     consumers -- expressions form a DAG, not a tree.
//
//   - Node: one expression node. A Node is one of a closed set of kinds (see
//     NodeKind): Variable, Constant, Call, Tuple, TupleGetItem or Function. Call
//     nodes apply an operator (see OpType) to their inputs, with static attributes
//     given by an Attributes struct specific to each operator.
//
// Graphs are built with the builder methods on Graph (Graph.Variable, Graph.Call,
// etc.), which panic on contract violations -- like passing nodes from a different
// graph. The panics carry a stack trace (see github.com/gomlx/exceptions), so they
// are easy to track down during graph building.
//
// A Node's shape is not computed at building time: it is resolved by the shape
// inference pass in ir/typeinfer, which annotates every node. Analysis passes that
// require shapes (like layout inference) fail fast when run on an unannotated graph.
package ir

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
)

// Graph holds an expression DAG of tensor operators.
//
// It works as an arena: it owns every Node and assigns each one a NodeId unique
// within the Graph. Nodes never own each other, they only reference their operands.
type Graph struct {
	name  string
	nodes []*Node
}

// NodeId is a unique Node id within a Graph.
type NodeId int

// InvalidNodeId indicates a node that failed to be created.
const InvalidNodeId = NodeId(-1)

// NewGraph creates an empty Graph with the given name. The name is used only
// for error messages and printing.
func NewGraph(name string) *Graph {
	return &Graph{name: name}
}

// Name of the expression this Graph defines, set during its construction.
func (g *Graph) Name() string { return g.name }

// NumNodes returns the number of nodes registered in the graph arena.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// registerNode in the graph, returning a new unique id within the Graph.
func (g *Graph) registerNode(node *Node) (id NodeId) {
	id = NodeId(len(g.nodes))
	g.nodes = append(g.nodes, node)
	return
}

// NodeById returns the node registered with the given id. It panics for an
// out-of-range id.
func (g *Graph) NodeById(id NodeId) *Node {
	if id == InvalidNodeId || int(id) >= len(g.nodes) {
		exceptions.Panicf("invalid request Graph.NodeById(id=%d): there are only %d nodes", id, len(g.nodes))
	}
	return g.nodes[id]
}

// assertSameGraph panics if any of the given nodes belongs to a different graph.
func (g *Graph) assertSameGraph(nodes ...*Node) {
	for ii, n := range nodes {
		if n == nil {
			exceptions.Panicf("operand %d is nil when building a node for graph %q", ii, g.name)
		}
		if n.graph != g {
			exceptions.Panicf("operand %d is part of a different graph (name=%q) than the one being built (name=%q)",
				ii, n.graph.name, g.name)
		}
	}
}

// String converts the Graph to a multi-line listing of its nodes, in creation order.
func (g *Graph) String() string {
	parts := []string{fmt.Sprintf("Graph %q: %d nodes", g.name, len(g.nodes))}
	for ii, node := range g.nodes {
		parts = append(parts, fmt.Sprintf("#%d\t%s", ii, node))
	}
	return strings.Join(parts, "\n")
}
