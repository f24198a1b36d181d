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

package layouts_test

import (
	"testing"

	. "github.com/gomlx/gopjrt/dtypes"
	. "github.com/gomlx/layouts/layouts"
	"github.com/gomlx/layouts/types/shapes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	nchw, err := Parse("NCHW")
	require.NoError(t, err)
	assert.True(t, nchw.IsConcrete())
	assert.Equal(t, 4, nchw.Rank())
	assert.Equal(t, 4, nchw.PrimaryRank())
	assert.Equal(t, "NCHW", nchw.String())

	blocked, err := Parse("NCHW16c")
	require.NoError(t, err)
	assert.Equal(t, 5, blocked.Rank())
	assert.Equal(t, 4, blocked.PrimaryRank())
	assert.Equal(t, "NCHW16c", blocked.String())
	axes := blocked.Axes()
	assert.Equal(t, Axis{Name: 'C', Factor: 16}, axes[4])

	for _, badSpec := range []string{
		"",      // Empty.
		"NCHWN", // Repeated primary axis.
		"NCHWc", // Sub-axis without factor.
		"NCHW16c16c", // Repeated sub-axis.
		"NCHW8c4",    // Trailing factor.
		"16NCHW",     // Factor must precede a lowercase sub-axis.
		"NC-W",       // Invalid character.
		"NCH16x",     // Sub-axis without its primary axis.
	} {
		_, err := Parse(badSpec)
		require.Errorf(t, err, "Parse(%q) should have failed", badSpec)
		assert.True(t, errors.Is(err, ErrInvalidLayout), "Parse(%q) error should wrap ErrInvalidLayout", badSpec)
	}

	require.Panics(t, func() { Make("NN") })
}

func TestSpecialLayouts(t *testing.T) {
	var zero Layout
	assert.True(t, zero.IsUndefined())
	assert.True(t, Undefined().IsUndefined())
	assert.True(t, Any().IsAny())
	assert.False(t, Undefined().IsConcrete())
	assert.Equal(t, "Undefined", Undefined().String())
	assert.Equal(t, "Any", Any().String())
	assert.Equal(t, 0, Any().Rank())
}

func TestEqual(t *testing.T) {
	assert.True(t, Make("NCHW").Equal(Make("NCHW")))
	assert.False(t, Make("NCHW").Equal(Make("NHWC")))
	assert.False(t, Make("NCHW").Equal(Make("NCHW16c")))
	assert.True(t, Undefined().Equal(Undefined()))
	assert.False(t, Undefined().Equal(Make("NCHW")))
	assert.False(t, Any().Equal(Undefined()))
}

func TestIsCompatibleWith(t *testing.T) {
	// Blocking factors are ignored.
	assert.True(t, Make("NCHW").IsCompatibleWith(Make("NCHW16c")))
	assert.False(t, Make("NCHW").IsCompatibleWith(Make("NHWC")))
	// Undefined and Any are compatible with everything.
	assert.True(t, Undefined().IsCompatibleWith(Make("NHWC")))
	assert.True(t, Make("NHWC").IsCompatibleWith(Any()))
	assert.True(t, Any().IsCompatibleWith(Undefined()))
}

func TestValidateForShape(t *testing.T) {
	shape := shapes.Make(Float32, 1, 64, 56, 56)
	require.NoError(t, Make("NCHW").ValidateForShape(shape))
	require.NoError(t, Make("NCHW16c").ValidateForShape(shape))
	require.NoError(t, Undefined().ValidateForShape(shape))

	// Wrong rank.
	err := Make("NC").ValidateForShape(shape)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidLayout))

	// 56 channels are not divisible into blocks of 16.
	err = Make("NCHW16c").ValidateForShape(shapes.Make(Float32, 1, 56, 56, 56))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidLayout))

	// Unknown dimensions are not checked.
	require.NoError(t, Make("NCHW16c").ValidateForShape(shapes.Make(Float32, 1, shapes.UnknownDim, 56, 56)))
}

func TestConvertTo(t *testing.T) {
	identity, err := Make("NCHW").ConvertTo(Make("NCHW"))
	require.NoError(t, err)
	assert.True(t, identity.IsIdentity())
	assert.Equal(t, "Identity", identity.String())

	toNHWC, err := Make("NCHW").ConvertTo(Make("NHWC"))
	require.NoError(t, err)
	assert.False(t, toNHWC.IsIdentity())
	assert.Equal(t, []int{0, 2, 3, 1}, toNHWC.Perm)
	assert.Empty(t, toNHWC.Merge)
	assert.Empty(t, toNHWC.Split)

	blocking, err := Make("NCHW").ConvertTo(Make("NCHW16c"))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, blocking.Perm)
	assert.Equal(t, []Axis{{Name: 'C', Factor: 16}}, blocking.Split)

	unblocking, err := Make("NCHW16c").ConvertTo(Make("NHWC"))
	require.NoError(t, err)
	assert.Equal(t, []Axis{{Name: 'C', Factor: 16}}, unblocking.Merge)
	assert.Equal(t, []int{0, 2, 3, 1}, unblocking.Perm)

	// Conversions involving Undefined or mismatched axes fail.
	_, err = Undefined().ConvertTo(Make("NCHW"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidLayout))
	_, err = Make("NCHW").ConvertTo(Make("NDHW"))
	require.Error(t, err)
	_, err = Make("NC").ConvertTo(Make("NCHW"))
	require.Error(t, err)
}
