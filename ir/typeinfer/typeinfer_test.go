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

package typeinfer_test

import (
	"testing"

	. "github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/layouts/ir"
	"github.com/gomlx/layouts/ir/typeinfer"
	"github.com/gomlx/layouts/types/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConv2D(t *testing.T) {
	g := ir.NewGraph("conv")
	x := g.VariableWithShape("x", shapes.Make(Float32, 1, 64, 56, 56))
	weight := g.Variable("weight")
	y := ir.Conv2D(x, weight, ir.ConvAttrs{Channels: 64, KernelSize: [2]int{3, 3}, Padding: [2]int{1, 1}})
	fn := g.Function(y, x, weight)

	require.NoError(t, typeinfer.Infer(fn))

	// Same-padding 3x3 convolution preserves the spatial dimensions.
	assert.True(t, y.Shape().Equal(shapes.Make(Float32, 1, 64, 56, 56)), "got %s", y.Shape())
	// The unannotated weight was resolved from the attributes, in OIHW.
	assert.True(t, weight.Shape().Equal(shapes.Make(Float32, 64, 64, 3, 3)), "got %s", weight.Shape())
	assert.True(t, fn.Shape().Equal(y.Shape()))
}

func TestConv2DStridesAndLayout(t *testing.T) {
	g := ir.NewGraph("conv")
	x := g.VariableWithShape("x", shapes.Make(Float32, 2, 224, 224, 3))
	weight := g.Variable("weight")
	y := ir.Conv2D(x, weight, ir.ConvAttrs{
		Channels:   32,
		KernelSize: [2]int{7, 7},
		Strides:    [2]int{2, 2},
		Padding:    [2]int{3, 3},
		DataLayout: "NHWC",
	})
	require.NoError(t, typeinfer.Infer(y))
	assert.True(t, y.Shape().Equal(shapes.Make(Float32, 2, 112, 112, 32)), "got %s", y.Shape())
}

func TestDense(t *testing.T) {
	g := ir.NewGraph("dense")
	x := g.VariableWithShape("x", shapes.Make(Float32, 32, 784))
	w := g.Variable("w")
	y := ir.Dense(x, w, 10)
	require.NoError(t, typeinfer.Infer(y))
	assert.True(t, w.Shape().Equal(shapes.Make(Float32, 10, 784)), "got %s", w.Shape())
	assert.True(t, y.Shape().Equal(shapes.Make(Float32, 32, 10)), "got %s", y.Shape())
}

func TestElementwiseAndPool(t *testing.T) {
	g := ir.NewGraph("net")
	x := g.VariableWithShape("x", shapes.Make(Float32, 1, 8, 32, 32))
	relu := ir.ReLU(x)
	pooled := ir.MaxPool2D(relu, ir.PoolAttrs{PoolSize: [2]int{2, 2}})
	require.NoError(t, typeinfer.Infer(pooled))
	assert.True(t, relu.Shape().Equal(x.Shape()))
	assert.True(t, pooled.Shape().Equal(shapes.Make(Float32, 1, 8, 16, 16)), "got %s", pooled.Shape())

	bad := ir.Add(x, g.Constant(shapes.Make(Float32, 2, 2)))
	require.Error(t, typeinfer.Infer(bad))
}

func TestBatchNormAndTuple(t *testing.T) {
	g := ir.NewGraph("bn")
	x := g.VariableWithShape("x", shapes.Make(Float32, 4, 16, 8, 8))
	gamma := g.Variable("gamma")
	beta := g.Variable("beta")
	bn := ir.BatchNorm(x, gamma, beta, ir.BatchNormAttrs{Axis: 1, Epsilon: 1e-5})
	normalized := g.TupleGetItem(bn, 0)
	movingMean := g.TupleGetItem(bn, 1)
	fn := g.Function(normalized, x, gamma, beta)

	// movingMean is not reachable from fn, so check it through its own root.
	require.NoError(t, typeinfer.Infer(movingMean))
	require.NoError(t, typeinfer.Infer(fn))

	assert.True(t, gamma.Shape().Equal(shapes.Make(Float32, 16)))
	assert.True(t, bn.Shape().IsTuple())
	assert.Equal(t, 3, bn.Shape().TupleSize())
	assert.True(t, normalized.Shape().Equal(x.Shape()))
	assert.True(t, movingMean.Shape().Equal(shapes.Make(Float32, 16)))
}

func TestConcatReshapeFlatten(t *testing.T) {
	g := ir.NewGraph("shapes")
	a := g.VariableWithShape("a", shapes.Make(Float32, 1, 16, 8, 8))
	b := g.VariableWithShape("b", shapes.Make(Float32, 1, 32, 8, 8))
	concat := ir.Concatenate(1, a, b)
	flat := ir.Flatten(concat)
	reshaped := ir.Reshape(flat, 1, 48, -1)
	require.NoError(t, typeinfer.Infer(reshaped))

	assert.True(t, concat.Shape().Equal(shapes.Make(Float32, 1, 48, 8, 8)), "got %s", concat.Shape())
	assert.True(t, flat.Shape().Equal(shapes.Make(Float32, 1, 48*8*8)), "got %s", flat.Shape())
	assert.True(t, reshaped.Shape().Equal(shapes.Make(Float32, 1, 48, 64)), "got %s", reshaped.Shape())

	mismatched := ir.Concatenate(0, a, b)
	require.Error(t, typeinfer.Infer(mismatched))
}

func TestUnresolvedVariable(t *testing.T) {
	g := ir.NewGraph("untyped")
	x := g.Variable("x") // No shape, and no operator can derive one.
	y := ir.ReLU(x)
	err := typeinfer.Infer(y)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unresolved")
}
