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
	"github.com/gomlx/exceptions"
	"github.com/gomlx/layouts/types/shapes"
)

// Variable creates a free variable node with a shape yet to be resolved by shape
// inference -- e.g. a weight whose dimensions follow from the operator using it.
func (g *Graph) Variable(name string) *Node {
	return newNode(g, &nodeInputsVariable{name: name}, nil)
}

// VariableWithShape creates a free variable node with a declared shape.
func (g *Graph) VariableWithShape(name string, shape shapes.Shape) *Node {
	node := newNode(g, &nodeInputsVariable{name: name}, nil)
	node.shape = shape
	return node
}

// Constant creates a constant node of the given shape. The analyses in this library
// only look at shapes, so the constant's value is not stored.
func (g *Graph) Constant(shape shapes.Shape) *Node {
	if !shape.Ok() {
		exceptions.Panicf("Graph(%q).Constant: invalid shape", g.name)
	}
	node := newNode(g, &nodeInputsConstant{}, nil)
	node.shape = shape
	return node
}

// Call creates an operator application node.
func (g *Graph) Call(op OpType, attrs Attributes, inputs ...*Node) *Node {
	if op <= OpInvalid || op >= opLast {
		exceptions.Panicf("Graph(%q).Call: invalid operator type %d", g.name, op)
	}
	if len(inputs) == 0 {
		exceptions.Panicf("Graph(%q).Call(%s): operator requires at least one input", g.name, op)
	}
	return newNode(g, &nodeInputsCall{op: op, attrs: attrs}, inputs)
}

// Tuple groups the given nodes into a single multi-valued node.
func (g *Graph) Tuple(elements ...*Node) *Node {
	if len(elements) == 0 {
		exceptions.Panicf("Graph(%q).Tuple: requires at least one element", g.name)
	}
	return newNode(g, &nodeInputsTuple{}, elements)
}

// TupleGetItem selects the index-th element of a tuple-valued node.
func (g *Graph) TupleGetItem(tuple *Node, index int) *Node {
	if index < 0 {
		exceptions.Panicf("Graph(%q).TupleGetItem: negative index %d", g.name, index)
	}
	return newNode(g, &nodeInputsTupleGetItem{index: index}, []*Node{tuple})
}

// Function wraps a body expression and its parameters. It is the usual root node
// handed to the analysis passes.
func (g *Graph) Function(body *Node, params ...*Node) *Node {
	g.assertSameGraph(params...)
	for ii, p := range params {
		if p.Kind() != NodeKindVariable {
			exceptions.Panicf("Graph(%q).Function: parameter %d is a %s, must be a Variable", g.name, ii, p.Kind())
		}
	}
	return newNode(g, &nodeInputsFunction{params: params}, []*Node{body})
}

// validateBuildingGraphFromInputs returns the graph the nodes belong to, checking
// they all belong to the same one.
func validateBuildingGraphFromInputs(inputs ...*Node) *Graph {
	if len(inputs) == 0 || inputs[0] == nil {
		exceptions.Panicf("building an op node without inputs")
	}
	g := inputs[0].graph
	g.assertSameGraph(inputs...)
	return g
}

// Conv2D applies a 2-D convolution of the kernel over x.
func Conv2D(x, kernel *Node, attrs ConvAttrs) *Node {
	g := validateBuildingGraphFromInputs(x, kernel)
	if attrs.Channels <= 0 {
		exceptions.Panicf("Conv2D: channels must be set, got %d", attrs.Channels)
	}
	if attrs.KernelSize[0] <= 0 || attrs.KernelSize[1] <= 0 {
		exceptions.Panicf("Conv2D: kernel_size must be set, got %v", attrs.KernelSize)
	}
	return g.Call(OpConv2D, attrs, x, kernel)
}

// Dense applies a fully-connected layer: x times a weight matrix.
func Dense(x, weights *Node, units int) *Node {
	g := validateBuildingGraphFromInputs(x, weights)
	if units <= 0 {
		exceptions.Panicf("Dense: units must be positive, got %d", units)
	}
	return g.Call(OpDense, DenseAttrs{Units: units}, x, weights)
}

// Add returns the elementwise sum of x and y.
func Add(x, y *Node) *Node {
	g := validateBuildingGraphFromInputs(x, y)
	return g.Call(OpAdd, nil, x, y)
}

// Mul returns the elementwise product of x and y.
func Mul(x, y *Node) *Node {
	g := validateBuildingGraphFromInputs(x, y)
	return g.Call(OpMul, nil, x, y)
}

// ReLU returns the elementwise rectified linear activation of x.
func ReLU(x *Node) *Node {
	g := validateBuildingGraphFromInputs(x)
	return g.Call(OpReLU, nil, x)
}

// Softmax normalizes x along its last axis.
func Softmax(x *Node) *Node {
	g := validateBuildingGraphFromInputs(x)
	return g.Call(OpSoftmax, nil, x)
}

// BiasAdd adds a rank-1 bias to the channels axis of x.
func BiasAdd(x, bias *Node) *Node {
	g := validateBuildingGraphFromInputs(x, bias)
	return g.Call(OpBiasAdd, nil, x, bias)
}

// MaxPool2D applies 2-D max-pooling over x.
func MaxPool2D(x *Node, attrs PoolAttrs) *Node {
	g := validateBuildingGraphFromInputs(x)
	if attrs.PoolSize[0] <= 0 || attrs.PoolSize[1] <= 0 {
		exceptions.Panicf("MaxPool2D: pool_size must be set, got %v", attrs.PoolSize)
	}
	return g.Call(OpMaxPool2D, attrs, x)
}

// BatchNorm normalizes x over all but the given channels axis. It is multi-valued:
// it yields a tuple (normalized, moving mean, moving variance).
func BatchNorm(x, gamma, beta *Node, attrs BatchNormAttrs) *Node {
	g := validateBuildingGraphFromInputs(x, gamma, beta)
	return g.Call(OpBatchNorm, attrs, x, gamma, beta)
}

// Concatenate joins the given nodes along the given axis.
func Concatenate(axis int, operands ...*Node) *Node {
	g := validateBuildingGraphFromInputs(operands...)
	return g.Call(OpConcatenate, ConcatAttrs{Axis: axis}, operands...)
}

// Reshape reinterprets x with the given dimensions. One of them may be -1, resolved
// by shape inference from the size of x.
func Reshape(x *Node, newShape ...int) *Node {
	g := validateBuildingGraphFromInputs(x)
	if len(newShape) == 0 {
		exceptions.Panicf("Reshape: new shape must have at least one dimension")
	}
	return g.Call(OpReshape, ReshapeAttrs{NewShape: newShape}, x)
}

// Flatten collapses all but the leading (batch) axis of x into one.
func Flatten(x *Node) *Node {
	g := validateBuildingGraphFromInputs(x)
	return g.Call(OpFlatten, nil, x)
}
