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
	"github.com/pkg/errors"
)

// NewStandardRegistry returns a Registry preloaded with the layout rules for the
// operators defined in the ir package. Elementwise operators (Add, Mul, ReLU,
// Softmax, BiasAdd) are deliberately left unregistered: the pass-through policy is
// exactly their semantics.
func NewStandardRegistry() *Registry {
	registry := NewRegistry()
	registry.Register(ir.OpConv2D, ConvRule)
	registry.Register(ir.OpDense, DenseRule)
	registry.Register(ir.OpMaxPool2D, PoolRule)
	registry.Register(ir.OpBatchNorm, BatchNormRule)
	registry.Register(ir.OpConcatenate, ConcatRule)
	registry.Register(ir.OpReshape, LayoutBreakingRule)
	registry.Register(ir.OpFlatten, LayoutBreakingRule)
	return registry
}

// ConvRule is the layout rule for 2-D convolutions.
//
// The kernel operand always gets the attribute-declared kernel layout (default
// OIHW), independent of the activation layout. The activation keeps its layout when
// it already carries a concrete one; otherwise the attribute-declared data layout
// (default NCHW) is demanded of it. The output takes the attribute-declared output
// layout when present, else it mirrors the (possibly adjusted) activation layout.
func ConvRule(inputs []Layout, inputShapes []shapes.Shape, attrs ir.Attributes) (required, outputs []Layout, err error) {
	convAttrs, ok := attrs.(ir.ConvAttrs)
	if !ok {
		return nil, nil, errors.Errorf("ConvRule requires ir.ConvAttrs, got %T", attrs)
	}
	kernelLayout, err := Parse(convAttrs.EffectiveKernelLayout())
	if err != nil {
		return nil, nil, err
	}
	activation := inputs[0]
	if !activation.IsConcrete() {
		activation, err = Parse(convAttrs.EffectiveDataLayout())
		if err != nil {
			return nil, nil, err
		}
	}

	output := activation
	if convAttrs.OutLayout != "" {
		output, err = Parse(convAttrs.OutLayout)
		if err != nil {
			return nil, nil, err
		}
	}
	return []Layout{activation, kernelLayout}, []Layout{output}, nil
}

// DenseRule is the layout rule for fully-connected layers: the activation is
// demanded in NC, the weight matrix in OI, and the output is NC.
func DenseRule(inputs []Layout, inputShapes []shapes.Shape, attrs ir.Attributes) (required, outputs []Layout, err error) {
	dataLayout := Make("NC")
	weightLayout := Make("OI")
	return []Layout{dataLayout, weightLayout}, []Layout{dataLayout}, nil
}

// PoolRule is the layout rule for 2-D pooling: it follows the activation layout,
// unless the operator declares its own Layout attribute, which is then demanded of
// the activation.
func PoolRule(inputs []Layout, inputShapes []shapes.Shape, attrs ir.Attributes) (required, outputs []Layout, err error) {
	poolAttrs, ok := attrs.(ir.PoolAttrs)
	if !ok {
		return nil, nil, errors.Errorf("PoolRule requires ir.PoolAttrs, got %T", attrs)
	}
	if poolAttrs.Layout == "" {
		return nil, []Layout{inputs[0]}, nil
	}
	declared, err := Parse(poolAttrs.Layout)
	if err != nil {
		return nil, nil, err
	}
	return []Layout{declared}, []Layout{declared}, nil
}

// BatchNormRule is the layout rule for batch normalization: the data output follows
// the data input; scale and offset operands, and the moving statistics outputs, are
// rank-1 over the channels axis.
func BatchNormRule(inputs []Layout, inputShapes []shapes.Shape, attrs ir.Attributes) (required, outputs []Layout, err error) {
	channelsLayout := Make("C")
	required = make([]Layout, len(inputs))
	for ii := 1; ii < len(inputs); ii++ {
		required[ii] = channelsLayout
	}
	return required, []Layout{inputs[0], channelsLayout, channelsLayout}, nil
}

// ConcatRule is the layout rule for concatenation: all operands must share one
// layout. The first concrete operand layout is demanded of all the others, and is
// the output layout; if no operand is constrained yet, so is the output.
func ConcatRule(inputs []Layout, inputShapes []shapes.Shape, attrs ir.Attributes) (required, outputs []Layout, err error) {
	shared := Undefined()
	for _, input := range inputs {
		if input.IsConcrete() {
			shared = input
			break
		}
	}
	if shared.IsUndefined() {
		return nil, []Layout{Undefined()}, nil
	}
	required = make([]Layout, len(inputs))
	for ii := range required {
		required[ii] = shared
	}
	return required, []Layout{shared}, nil
}

// LayoutBreakingRule is the rule for operators that destroy the axis structure of
// their input, like Reshape and Flatten: the output layout is always Undefined and
// no demand is made of the operands.
func LayoutBreakingRule(inputs []Layout, inputShapes []shapes.Shape, attrs ir.Attributes) (required, outputs []Layout, err error) {
	return nil, []Layout{Undefined()}, nil
}
