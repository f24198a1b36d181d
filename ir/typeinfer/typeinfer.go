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

// Package typeinfer resolves the shape of every node of an expression graph.
//
// It is a bottom-up pass over the DAG: operands are resolved before the operators
// using them, each node exactly once. Operator shape functions may also resolve the
// shape of an operand that is still unknown -- e.g. a convolution derives the shape
// of an undeclared weight variable from its attributes, so frontends may leave
// weights unannotated.
//
// Analyses that depend on shapes (like layout inference, see the layouts package)
// must run after this pass.
package typeinfer

import (
	"strings"

	"github.com/gomlx/layouts/ir"
	"github.com/gomlx/layouts/types/shapes"
	"github.com/pkg/errors"
)

// Infer resolves the shapes of every node reachable from root, annotating them in
// place (see ir.Node.SetShape). It returns an error if some shape cannot be resolved
// or if operand shapes are inconsistent.
func Infer(root *ir.Node) error {
	inf := &inferencer{done: make(map[ir.NodeId]bool)}
	if err := inf.visit(root); err != nil {
		return err
	}
	// Every reachable node must have been resolved, including variables whose
	// shape no operator could derive.
	return inf.checkResolved(root, make(map[ir.NodeId]bool))
}

type inferencer struct {
	done map[ir.NodeId]bool
}

func (inf *inferencer) visit(node *ir.Node) error {
	if inf.done[node.Id()] {
		return nil
	}
	inf.done[node.Id()] = true
	for _, input := range node.Inputs() {
		if err := inf.visit(input); err != nil {
			return err
		}
	}

	switch node.Kind() {
	case ir.NodeKindVariable, ir.NodeKindConstant:
		// Leaves: either declared with a shape, or resolved later by a consumer.
		return nil
	case ir.NodeKindTuple:
		elements := make([]shapes.Shape, 0, len(node.Inputs()))
		for _, input := range node.Inputs() {
			elements = append(elements, input.Shape())
		}
		node.SetShape(shapes.MakeTuple(elements))
		return nil
	case ir.NodeKindTupleGetItem:
		tuple := node.Inputs()[0].Shape()
		if !tuple.IsTuple() {
			return errors.Errorf("TupleGetItem input has non-tuple shape %s", tuple)
		}
		index := node.TupleIndex()
		if index >= tuple.TupleSize() {
			return errors.Errorf("TupleGetItem(%d) out-of-range for tuple of %d elements", index, tuple.TupleSize())
		}
		node.SetShape(tuple.TupleShapes[index])
		return nil
	case ir.NodeKindFunction:
		node.SetShape(node.Body().Shape())
		return nil
	case ir.NodeKindCall:
		return inf.inferCall(node)
	default:
		return errors.Errorf("cannot infer shape for node kind %s", node.Kind())
	}
}

// checkResolved errors out on the first reachable node whose shape was left invalid
// or with unknown dimensions.
func (inf *inferencer) checkResolved(node *ir.Node, seen map[ir.NodeId]bool) error {
	if seen[node.Id()] {
		return nil
	}
	seen[node.Id()] = true
	if !node.Shape().IsResolved() {
		return errors.Errorf("shape inference left node #%d (%s) unresolved", node.Id(), node)
	}
	for _, input := range node.Inputs() {
		if err := inf.checkResolved(input, seen); err != nil {
			return err
		}
	}
	return nil
}

// inferCall dispatches to the per-operator shape function.
func (inf *inferencer) inferCall(node *ir.Node) error {
	var output shapes.Shape
	var err error
	switch node.Op() {
	case ir.OpConv2D:
		output, err = inferConv2D(node)
	case ir.OpDense:
		output, err = inferDense(node)
	case ir.OpAdd, ir.OpMul:
		output, err = inferElementwiseBinary(node)
	case ir.OpReLU, ir.OpSoftmax:
		output = node.Inputs()[0].Shape()
	case ir.OpBiasAdd:
		output, err = inferBiasAdd(node)
	case ir.OpMaxPool2D:
		output, err = inferMaxPool2D(node)
	case ir.OpBatchNorm:
		output, err = inferBatchNorm(node)
	case ir.OpConcatenate:
		output, err = inferConcatenate(node)
	case ir.OpReshape:
		output, err = inferReshape(node)
	case ir.OpFlatten:
		output, err = inferFlatten(node)
	default:
		return errors.Errorf("no shape function registered for operator %s", node.Op())
	}
	if err != nil {
		return errors.WithMessagef(err, "inferring shape of node #%d Call(%s)", node.Id(), node.Op())
	}
	node.SetShape(output)
	return nil
}

// axisOf returns the position of the given axis letter in a layout spec string,
// e.g. axisOf("NCHW", 'C') == 1.
func axisOf(layout string, axis byte) (int, error) {
	pos := strings.IndexByte(layout, axis)
	if pos < 0 {
		return 0, errors.Errorf("layout %q is missing the %c axis", layout, axis)
	}
	return pos, nil
}

// convWindowDim is the standard convolution/pooling output size arithmetic.
func convWindowDim(inputDim, windowDim, padding, stride int) int {
	if inputDim == shapes.UnknownDim {
		return shapes.UnknownDim
	}
	return (inputDim+2*padding-windowDim)/stride + 1
}

func inferConv2D(node *ir.Node) (shapes.Shape, error) {
	x, kernel := node.Inputs()[0], node.Inputs()[1]
	attrs, ok := node.Attrs().(ir.ConvAttrs)
	if !ok {
		return shapes.Invalid(), errors.Errorf("Conv2D node requires ConvAttrs, got %T", node.Attrs())
	}
	xShape := x.Shape()
	if !xShape.Ok() {
		return shapes.Invalid(), errors.Errorf("Conv2D input has no shape")
	}
	if err := xShape.CheckRank(4); err != nil {
		return shapes.Invalid(), err
	}

	dataLayout := attrs.EffectiveDataLayout()
	kernelLayout := attrs.EffectiveKernelLayout()
	batchAxis, err := axisOf(dataLayout, 'N')
	if err != nil {
		return shapes.Invalid(), err
	}
	channelAxis, err := axisOf(dataLayout, 'C')
	if err != nil {
		return shapes.Invalid(), err
	}
	heightAxis, err := axisOf(dataLayout, 'H')
	if err != nil {
		return shapes.Invalid(), err
	}
	widthAxis, err := axisOf(dataLayout, 'W')
	if err != nil {
		return shapes.Invalid(), err
	}
	inChannels := xShape.Dim(channelAxis)

	// An unannotated kernel variable gets its shape derived from the attributes.
	if !kernel.Shape().Ok() {
		kernelDims := make([]int, 4)
		for pos, axis := range []byte{'O', 'I', 'H', 'W'} {
			kernelAxis, err := axisOf(kernelLayout, axis)
			if err != nil {
				return shapes.Invalid(), err
			}
			switch pos {
			case 0:
				kernelDims[kernelAxis] = attrs.Channels
			case 1:
				kernelDims[kernelAxis] = inChannels
			default:
				kernelDims[kernelAxis] = attrs.KernelSize[pos-2]
			}
		}
		kernel.SetShape(shapes.Make(xShape.DType, kernelDims...))
	} else if err := kernel.Shape().CheckRank(4); err != nil {
		return shapes.Invalid(), err
	}

	strides := attrs.EffectiveStrides()
	outputDims := make([]int, 4)
	outputDims[batchAxis] = xShape.Dim(batchAxis)
	outputDims[channelAxis] = attrs.Channels
	outputDims[heightAxis] = convWindowDim(xShape.Dim(heightAxis), attrs.KernelSize[0], attrs.Padding[0], strides[0])
	outputDims[widthAxis] = convWindowDim(xShape.Dim(widthAxis), attrs.KernelSize[1], attrs.Padding[1], strides[1])
	return shapes.Make(xShape.DType, outputDims...), nil
}

func inferDense(node *ir.Node) (shapes.Shape, error) {
	x, weights := node.Inputs()[0], node.Inputs()[1]
	attrs, ok := node.Attrs().(ir.DenseAttrs)
	if !ok {
		return shapes.Invalid(), errors.Errorf("Dense node requires DenseAttrs, got %T", node.Attrs())
	}
	xShape := x.Shape()
	if err := xShape.CheckRank(2); err != nil {
		return shapes.Invalid(), err
	}
	if !weights.Shape().Ok() {
		weights.SetShape(shapes.Make(xShape.DType, attrs.Units, xShape.Dim(-1)))
	} else if err := weights.Shape().CheckDims(attrs.Units, xShape.Dim(-1)); err != nil {
		return shapes.Invalid(), err
	}
	return shapes.Make(xShape.DType, xShape.Dim(0), attrs.Units), nil
}

func inferElementwiseBinary(node *ir.Node) (shapes.Shape, error) {
	lhs, rhs := node.Inputs()[0].Shape(), node.Inputs()[1].Shape()
	if lhs.IsScalar() {
		return rhs, nil
	}
	if rhs.IsScalar() {
		return lhs, nil
	}
	if !lhs.Equal(rhs) {
		return shapes.Invalid(), errors.Errorf("elementwise operands have different shapes: %s vs %s", lhs, rhs)
	}
	return lhs, nil
}

func inferBiasAdd(node *ir.Node) (shapes.Shape, error) {
	x, bias := node.Inputs()[0], node.Inputs()[1]
	xShape := x.Shape()
	if xShape.Rank() < 2 {
		return shapes.Invalid(), errors.Errorf("BiasAdd input must have rank >= 2, got %s", xShape)
	}
	// Bias is added over the channels axis, by convention axis 1 (NCHW).
	channels := xShape.Dim(1)
	if !bias.Shape().Ok() {
		bias.SetShape(shapes.Make(xShape.DType, channels))
	} else if err := bias.Shape().CheckDims(channels); err != nil {
		return shapes.Invalid(), err
	}
	return xShape, nil
}

func inferMaxPool2D(node *ir.Node) (shapes.Shape, error) {
	xShape := node.Inputs()[0].Shape()
	attrs, ok := node.Attrs().(ir.PoolAttrs)
	if !ok {
		return shapes.Invalid(), errors.Errorf("MaxPool2D node requires PoolAttrs, got %T", node.Attrs())
	}
	if err := xShape.CheckRank(4); err != nil {
		return shapes.Invalid(), err
	}
	layout := attrs.Layout
	if layout == "" {
		layout = "NCHW"
	}
	heightAxis, err := axisOf(layout, 'H')
	if err != nil {
		return shapes.Invalid(), err
	}
	widthAxis, err := axisOf(layout, 'W')
	if err != nil {
		return shapes.Invalid(), err
	}
	strides := attrs.EffectiveStrides()
	outputDims := make([]int, 4)
	copy(outputDims, xShape.Dimensions)
	outputDims[heightAxis] = convWindowDim(xShape.Dim(heightAxis), attrs.PoolSize[0], attrs.Padding[0], strides[0])
	outputDims[widthAxis] = convWindowDim(xShape.Dim(widthAxis), attrs.PoolSize[1], attrs.Padding[1], strides[1])
	return shapes.Make(xShape.DType, outputDims...), nil
}

func inferBatchNorm(node *ir.Node) (shapes.Shape, error) {
	x := node.Inputs()[0]
	attrs, ok := node.Attrs().(ir.BatchNormAttrs)
	if !ok {
		return shapes.Invalid(), errors.Errorf("BatchNorm node requires BatchNormAttrs, got %T", node.Attrs())
	}
	xShape := x.Shape()
	if attrs.Axis < 0 || attrs.Axis >= xShape.Rank() {
		return shapes.Invalid(), errors.Errorf("BatchNorm axis %d out-of-range for shape %s", attrs.Axis, xShape)
	}
	channels := xShape.Dim(attrs.Axis)
	channelsShape := shapes.Make(xShape.DType, channels)
	for _, scaleOrOffset := range node.Inputs()[1:] {
		if !scaleOrOffset.Shape().Ok() {
			scaleOrOffset.SetShape(channelsShape)
		} else if err := scaleOrOffset.Shape().CheckDims(channels); err != nil {
			return shapes.Invalid(), err
		}
	}
	// Multi-valued: normalized data plus the moving statistics.
	return shapes.MakeTuple([]shapes.Shape{xShape, channelsShape, channelsShape}), nil
}

func inferConcatenate(node *ir.Node) (shapes.Shape, error) {
	attrs, ok := node.Attrs().(ir.ConcatAttrs)
	if !ok {
		return shapes.Invalid(), errors.Errorf("Concatenate node requires ConcatAttrs, got %T", node.Attrs())
	}
	first := node.Inputs()[0].Shape()
	if attrs.Axis < 0 || attrs.Axis >= first.Rank() {
		return shapes.Invalid(), errors.Errorf("Concatenate axis %d out-of-range for shape %s", attrs.Axis, first)
	}
	concatDim := 0
	for _, input := range node.Inputs() {
		inputShape := input.Shape()
		if err := inputShape.CheckRank(first.Rank()); err != nil {
			return shapes.Invalid(), err
		}
		for axis := 0; axis < first.Rank(); axis++ {
			if axis == attrs.Axis {
				continue
			}
			if inputShape.Dim(axis) != first.Dim(axis) {
				return shapes.Invalid(), errors.Errorf(
					"Concatenate operands disagree on axis %d: %s vs %s", axis, inputShape, first)
			}
		}
		if concatDim == shapes.UnknownDim || inputShape.Dim(attrs.Axis) == shapes.UnknownDim {
			concatDim = shapes.UnknownDim
		} else {
			concatDim += inputShape.Dim(attrs.Axis)
		}
	}
	outputDims := make([]int, first.Rank())
	copy(outputDims, first.Dimensions)
	outputDims[attrs.Axis] = concatDim
	return shapes.Make(first.DType, outputDims...), nil
}

func inferReshape(node *ir.Node) (shapes.Shape, error) {
	xShape := node.Inputs()[0].Shape()
	attrs, ok := node.Attrs().(ir.ReshapeAttrs)
	if !ok {
		return shapes.Invalid(), errors.Errorf("Reshape node requires ReshapeAttrs, got %T", node.Attrs())
	}
	size := xShape.Size()
	newDims := make([]int, len(attrs.NewShape))
	wildcard := -1
	known := 1
	for ii, dim := range attrs.NewShape {
		newDims[ii] = dim
		if dim == -1 {
			if wildcard >= 0 {
				return shapes.Invalid(), errors.Errorf("Reshape accepts at most one -1 dimension, got %v", attrs.NewShape)
			}
			wildcard = ii
			continue
		}
		if dim <= 0 {
			return shapes.Invalid(), errors.Errorf("Reshape dimensions must be positive or -1, got %v", attrs.NewShape)
		}
		known *= dim
	}
	if wildcard >= 0 {
		if size == shapes.UnknownDim {
			newDims[wildcard] = shapes.UnknownDim
		} else {
			if known == 0 || size%known != 0 {
				return shapes.Invalid(), errors.Errorf("Reshape of %s to %v doesn't divide evenly", xShape, attrs.NewShape)
			}
			newDims[wildcard] = size / known
		}
	} else if size != shapes.UnknownDim && known != size {
		return shapes.Invalid(), errors.Errorf("Reshape of %s (size %d) to %v (size %d) changes the number of elements",
			xShape, size, attrs.NewShape, known)
	}
	return shapes.Make(xShape.DType, newDims...), nil
}

func inferFlatten(node *ir.Node) (shapes.Shape, error) {
	xShape := node.Inputs()[0].Shape()
	if xShape.Rank() < 1 {
		return shapes.Invalid(), errors.Errorf("Flatten input must have rank >= 1, got %s", xShape)
	}
	rest := 1
	for _, dim := range xShape.Dimensions[1:] {
		if dim == shapes.UnknownDim {
			rest = shapes.UnknownDim
			break
		}
		rest *= dim
	}
	return shapes.Make(xShape.DType, xShape.Dim(0), rest), nil
}
