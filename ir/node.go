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

package ir

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/layouts/types/shapes"
)

// Node is one expression in a Graph. Its kind (Variable, Constant, Call, ...) is
// given by its NodeInputs variant.
type Node struct {
	graph *Graph
	id    NodeId // id within graph.
	shape shapes.Shape

	// inputNodes are the edges of the expression graph: the ordered operands of
	// this node. They are shared references into the same Graph arena, not owned.
	inputNodes []*Node

	// inputs holds the kind-specific parameters of the node.
	inputs NodeInputs
}

// NodeInputs represents the kind-specific inputs to a node: one implementation per
// NodeKind, holding the static parameters that are not given by other Graph nodes.
type NodeInputs interface {
	Kind() NodeKind

	// String prints a descriptive representation of the node, using its parameters.
	String() string
}

// NodeKind identifies which variant of expression a Node is.
type NodeKind int

const (
	NodeKindInvalid NodeKind = iota
	NodeKindVariable
	NodeKindConstant
	NodeKindCall
	NodeKindTuple
	NodeKindTupleGetItem
	NodeKindFunction
)

// String implements fmt.Stringer.
func (k NodeKind) String() string {
	switch k {
	case NodeKindVariable:
		return "Variable"
	case NodeKindConstant:
		return "Constant"
	case NodeKindCall:
		return "Call"
	case NodeKindTuple:
		return "Tuple"
	case NodeKindTupleGetItem:
		return "TupleGetItem"
	case NodeKindFunction:
		return "Function"
	default:
		return fmt.Sprintf("NodeKind(%d)", k)
	}
}

// newNode registers a new node in the graph with the given variant and operands.
func newNode(g *Graph, inputs NodeInputs, inputNodes []*Node) *Node {
	g.assertSameGraph(inputNodes...)
	n := &Node{
		graph:      g,
		inputs:     inputs,
		inputNodes: inputNodes,
	}
	n.id = g.registerNode(n)
	return n
}

// Kind identifies which variant of expression this node is.
func (n *Node) Kind() NodeKind {
	if n == nil || n.inputs == nil {
		return NodeKindInvalid
	}
	return n.inputs.Kind()
}

// Graph that holds this Node.
func (n *Node) Graph() *Graph {
	if n == nil {
		return nil
	}
	return n.graph
}

// Id is the unique id of this node within the Graph. It is the node's stable
// identity: analysis passes key their results by it.
func (n *Node) Id() NodeId {
	return n.id
}

// Inputs are the other nodes that are direct operands of this node.
// This doesn't include static attributes that are not given by other Graph nodes.
func (n *Node) Inputs() []*Node { return n.inputNodes }

// Shape of the Node's value. It is only valid (see shapes.Shape.Ok) after shape
// inference annotated the graph -- except for variables and constants created with
// an explicit shape.
func (n *Node) Shape() shapes.Shape {
	if n == nil {
		return shapes.Shape{}
	}
	return n.shape
}

// DType returns the DType of the node's shape.
func (n *Node) DType() dtypes.DType {
	return n.shape.DType
}

// Rank returns the rank of the node's shape.
func (n *Node) Rank() int {
	return n.shape.Rank()
}

// SetShape annotates the node with its resolved shape. It is called by the shape
// inference pass (ir/typeinfer); user code normally doesn't need it.
func (n *Node) SetShape(shape shapes.Shape) {
	n.shape = shape
}

// AssertValid panics if `n` is nil or in an invalid state.
func (n *Node) AssertValid() {
	if n == nil {
		exceptions.Panicf("Node is nil")
	}
	if n.inputs == nil {
		exceptions.Panicf("Node in an invalid state")
	}
}

// Op returns the operator kind of a Call node. It panics if the node is not a Call.
func (n *Node) Op() OpType {
	n.AssertValid()
	call, ok := n.inputs.(*nodeInputsCall)
	if !ok {
		exceptions.Panicf("node %s is not a Call node", n.Kind())
	}
	return call.op
}

// Attrs returns the static attributes of a Call node, or nil if the operator takes
// none. It panics if the node is not a Call.
func (n *Node) Attrs() Attributes {
	n.AssertValid()
	call, ok := n.inputs.(*nodeInputsCall)
	if !ok {
		exceptions.Panicf("node %s is not a Call node", n.Kind())
	}
	return call.attrs
}

// VariableName returns the name of a Variable node. It panics if the node is not a
// Variable.
func (n *Node) VariableName() string {
	n.AssertValid()
	v, ok := n.inputs.(*nodeInputsVariable)
	if !ok {
		exceptions.Panicf("node %s is not a Variable node", n.Kind())
	}
	return v.name
}

// TupleIndex returns the element position selected by a TupleGetItem node. It panics
// if the node is not a TupleGetItem.
func (n *Node) TupleIndex() int {
	n.AssertValid()
	getItem, ok := n.inputs.(*nodeInputsTupleGetItem)
	if !ok {
		exceptions.Panicf("node %s is not a TupleGetItem node", n.Kind())
	}
	return getItem.index
}

// FunctionParams returns the parameters of a Function node. It panics if the node is
// not a Function.
func (n *Node) FunctionParams() []*Node {
	n.AssertValid()
	fn, ok := n.inputs.(*nodeInputsFunction)
	if !ok {
		exceptions.Panicf("node %s is not a Function node", n.Kind())
	}
	return fn.params
}

// Body returns the body expression of a Function node. It panics if the node is not
// a Function.
func (n *Node) Body() *Node {
	n.AssertValid()
	if n.Kind() != NodeKindFunction {
		exceptions.Panicf("node %s is not a Function node", n.Kind())
	}
	return n.inputNodes[0]
}

// String implements the `fmt.Stringer` interface.
func (n *Node) String() (str string) {
	if n == nil {
		return "Node(nil)"
	}
	if n.inputs == nil {
		return "Node(invalid)"
	}
	str = n.inputs.String()
	if n.shape.Ok() {
		str = fmt.Sprintf("%s -> %s", str, n.shape)
	}
	return
}

// nodeInputsVariable is the variant for a free variable (an input to the expression).
type nodeInputsVariable struct {
	name string
}

func (ni *nodeInputsVariable) Kind() NodeKind { return NodeKindVariable }
func (ni *nodeInputsVariable) String() string { return fmt.Sprintf("Variable(%q)", ni.name) }

// nodeInputsConstant is the variant for a constant tensor value. Only the shape
// matters for the analyses in this library.
type nodeInputsConstant struct{}

func (ni *nodeInputsConstant) Kind() NodeKind { return NodeKindConstant }
func (ni *nodeInputsConstant) String() string { return "Constant" }

// nodeInputsCall is the variant for an operator application.
type nodeInputsCall struct {
	op    OpType
	attrs Attributes
}

func (ni *nodeInputsCall) Kind() NodeKind { return NodeKindCall }
func (ni *nodeInputsCall) String() string {
	if ni.attrs == nil {
		return fmt.Sprintf("Call(%s)", ni.op)
	}
	return fmt.Sprintf("Call(%s, %s)", ni.op, ni.attrs)
}

// nodeInputsTuple is the variant grouping several values into one.
type nodeInputsTuple struct{}

func (ni *nodeInputsTuple) Kind() NodeKind { return NodeKindTuple }
func (ni *nodeInputsTuple) String() string { return "Tuple" }

// nodeInputsTupleGetItem is the variant selecting one element of a tuple.
type nodeInputsTupleGetItem struct {
	index int
}

func (ni *nodeInputsTupleGetItem) Kind() NodeKind { return NodeKindTupleGetItem }
func (ni *nodeInputsTupleGetItem) String() string {
	return fmt.Sprintf("TupleGetItem(%d)", ni.index)
}

// nodeInputsFunction is the variant wrapping a body expression and its parameters,
// the usual root of an analysed graph.
type nodeInputsFunction struct {
	params []*Node
}

func (ni *nodeInputsFunction) Kind() NodeKind { return NodeKindFunction }
func (ni *nodeInputsFunction) String() string {
	return fmt.Sprintf("Function(%d params)", len(ni.params))
}
