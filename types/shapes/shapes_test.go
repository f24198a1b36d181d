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

package shapes

import (
	"testing"

	. "github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	invalidShape := Invalid()
	require.False(t, invalidShape.Ok())

	shape0 := Make(Float64)
	require.True(t, shape0.Ok())
	require.True(t, shape0.IsScalar())
	require.False(t, shape0.IsTuple())
	require.Equal(t, 0, shape0.Rank())
	require.Len(t, shape0.Dimensions, 0)
	require.Equal(t, 1, shape0.Size())

	shape1 := Make(Float32, 4, 3, 2)
	require.True(t, shape1.Ok())
	require.False(t, shape1.IsScalar())
	require.False(t, shape1.IsTuple())
	require.Equal(t, 3, shape1.Rank())
	require.Len(t, shape1.Dimensions, 3)
	require.Equal(t, 4*3*2, shape1.Size())
	require.True(t, shape1.IsResolved())

	require.Panics(t, func() { Make(Float32, 4, 0) })
	require.Panics(t, func() { Make(Float32, 4, -7) })
}

func TestUnknownDims(t *testing.T) {
	shape := Make(Float32, 1, UnknownDim, 56, 56)
	require.True(t, shape.Ok())
	require.True(t, shape.HasUnknownDims())
	require.False(t, shape.IsResolved())
	require.Equal(t, UnknownDim, shape.Size())
	require.Equal(t, "(Float32)[1 ? 56 56]", shape.String())

	unknown := MakeUnknown(Float32, 4)
	require.Equal(t, 4, unknown.Rank())
	require.True(t, unknown.HasUnknownDims())

	resolved := Make(Float32, 1, 64, 56, 56)
	require.False(t, resolved.Equal(shape))
	require.True(t, resolved.IsResolved())
}

func TestDim(t *testing.T) {
	shape := Make(Float32, 4, 3, 2)
	require.Equal(t, 4, shape.Dim(0))
	require.Equal(t, 3, shape.Dim(1))
	require.Equal(t, 2, shape.Dim(2))
	require.Equal(t, 4, shape.Dim(-3))
	require.Equal(t, 3, shape.Dim(-2))
	require.Equal(t, 2, shape.Dim(-1))
	require.Panics(t, func() { _ = shape.Dim(3) })
	require.Panics(t, func() { _ = shape.Dim(-4) })
}

func TestTuple(t *testing.T) {
	tuple := MakeTuple([]Shape{Make(Float32, 2, 3), Make(Float64, 5)})
	require.True(t, tuple.Ok())
	require.True(t, tuple.IsTuple())
	require.Equal(t, 2, tuple.TupleSize())
	require.Equal(t, "Tuple<(Float32)[2 3], (Float64)[5]>", tuple.String())
	require.True(t, tuple.Equal(tuple.Clone()))
	require.True(t, tuple.IsResolved())

	withUnknown := MakeTuple([]Shape{Make(Float32, 2, 3), MakeUnknown(Float32, 1)})
	require.False(t, withUnknown.IsResolved())
}

func TestChecks(t *testing.T) {
	shape := Make(Float32, 1, 64, 56, 56)
	require.NoError(t, shape.CheckRank(4))
	require.Error(t, shape.CheckRank(2))
	require.NoError(t, shape.CheckDims(1, 64, UncheckedAxis, 56))
	require.Error(t, shape.CheckDims(1, 32, 56, 56))
	require.Panics(t, func() { shape.AssertDims(1, 2) })
}
