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

// Package layouts defines tensor memory layout descriptors and the layout inference
// analysis pass over expression graphs (see the ir package).
//
// A Layout describes the ordering of the axes of a tensor in memory -- e.g. "NCHW"
// vs "NHWC" for the activations of an image model -- independently of the tensor's
// shape. A layout may also be blocked: "NCHW16c" means the channels axis is split
// into C/16 blocks of a trailing sub-axis of 16 channels each.
//
// The layout spec mini-language: each uppercase letter is a primary axis; a lowercase
// letter preceded by a positive integer factor is a blocked sub-axis of the matching
// primary axis, e.g. "NCHW16c".
//
// Two special layouts exist: the Undefined layout (the zero value), meaning "no
// constraint yet", and Any, which accepts any reshuffling at no cost -- used for
// shape-agnostic elementwise operators.
//
// The analysis entry points are Infer and Collect, see infer.go.
package layouts

import (
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/layouts/types/shapes"
	"github.com/pkg/errors"
)

// ErrInvalidLayout is returned (wrapped) when constructing a malformed layout
// descriptor, or when a layout doesn't fit the shape it is attached to.
var ErrInvalidLayout = errors.New("invalid layout")

type layoutKind int

const (
	kindUndefined layoutKind = iota
	kindAny
	kindConcrete
)

// Axis is one axis of a Layout: a primary axis (Factor == 0) or a blocked sub-axis
// of the primary axis with the same name (Factor > 0).
type Axis struct {
	Name   byte // Uppercase letter tag, e.g. 'C'.
	Factor int  // 0 for a primary axis; the block size for a sub-axis.
}

// String implements fmt.Stringer. A sub-axis prints as its factor followed by the
// lowercase tag, matching the layout spec mini-language.
func (a Axis) String() string {
	if a.Factor == 0 {
		return string(a.Name)
	}
	return strings.ToLower(string(a.Name))
}

// Layout describes the ordering (and optional blocking) of the axes of a tensor in
// memory. The zero value is the Undefined layout. Layout values are immutable.
type Layout struct {
	kind layoutKind
	axes []Axis
}

// Undefined returns the "no constraint yet" layout, the zero value of Layout.
func Undefined() Layout { return Layout{} }

// Any returns the layout that accepts any reshuffling at no cost.
func Any() Layout { return Layout{kind: kindAny} }

// Parse builds a Layout from its spec string -- e.g. "NCHW", "NHWC" or "NCHW16c".
// It returns an error wrapping ErrInvalidLayout for a malformed spec: an empty
// spec, repeated primary axes, a sub-axis without a positive factor or without its
// primary axis.
func Parse(spec string) (Layout, error) {
	if spec == "" {
		return Layout{}, errors.WithMessage(ErrInvalidLayout, "layout spec is empty")
	}
	var axes []Axis
	factor := 0
	for ii := 0; ii < len(spec); ii++ {
		c := spec[ii]
		switch {
		case c >= '0' && c <= '9':
			factor = factor*10 + int(c-'0')
		case c >= 'A' && c <= 'Z':
			if factor != 0 {
				return Layout{}, errors.WithMessagef(ErrInvalidLayout,
					"layout %q: factor %d must be followed by a lowercase sub-axis, not %c", spec, factor, c)
			}
			axes = append(axes, Axis{Name: c})
		case c >= 'a' && c <= 'z':
			if factor <= 0 {
				return Layout{}, errors.WithMessagef(ErrInvalidLayout,
					"layout %q: sub-axis %c requires a positive leading factor", spec, c)
			}
			axes = append(axes, Axis{Name: c - 'a' + 'A', Factor: factor})
			factor = 0
		default:
			return Layout{}, errors.WithMessagef(ErrInvalidLayout, "layout %q: invalid character %q", spec, c)
		}
	}
	if factor != 0 {
		return Layout{}, errors.WithMessagef(ErrInvalidLayout, "layout %q: trailing factor %d", spec, factor)
	}

	// Primary axes must not repeat; sub-axes must not repeat and must have their
	// primary axis present.
	var primaries, subs []byte
	for _, axis := range axes {
		if axis.Factor == 0 {
			if slices.Contains(primaries, axis.Name) {
				return Layout{}, errors.WithMessagef(ErrInvalidLayout, "layout %q: axis %c repeats", spec, axis.Name)
			}
			primaries = append(primaries, axis.Name)
		} else {
			if slices.Contains(subs, axis.Name) {
				return Layout{}, errors.WithMessagef(ErrInvalidLayout,
					"layout %q: sub-axis %c repeats", spec, axis.Name+'a'-'A')
			}
			subs = append(subs, axis.Name)
		}
	}
	for _, sub := range subs {
		if !slices.Contains(primaries, sub) {
			return Layout{}, errors.WithMessagef(ErrInvalidLayout,
				"layout %q: sub-axis %c has no primary axis %c", spec, sub+'a'-'A', sub)
		}
	}
	return Layout{kind: kindConcrete, axes: axes}, nil
}

// Make builds a Layout from its spec string, like Parse, but panics on a malformed
// spec. Convenient when the spec is a compile-time constant.
func Make(spec string) Layout {
	l, err := Parse(spec)
	if err != nil {
		exceptions.Panicf("layouts.Make(%q): %+v", spec, err)
	}
	return l
}

// IsUndefined returns whether this is the Undefined ("no constraint yet") layout.
func (l Layout) IsUndefined() bool { return l.kind == kindUndefined }

// IsAny returns whether this is the Any ("free to reshuffle") layout.
func (l Layout) IsAny() bool { return l.kind == kindAny }

// IsConcrete returns whether this is a concrete axis arrangement, as opposed to
// Undefined or Any.
func (l Layout) IsConcrete() bool { return l.kind == kindConcrete }

// Rank returns the total number of axes, including blocked sub-axes. It is 0 for
// Undefined and Any.
func (l Layout) Rank() int { return len(l.axes) }

// PrimaryRank returns the number of primary axes -- the rank of the tensor type the
// layout describes.
func (l Layout) PrimaryRank() (count int) {
	for _, axis := range l.axes {
		if axis.Factor == 0 {
			count++
		}
	}
	return
}

// Axes returns a copy of the layout's axes in memory order.
func (l Layout) Axes() []Axis { return slices.Clone(l.axes) }

// primaries returns the primary axis tags in order.
func (l Layout) primaries() []byte {
	tags := make([]byte, 0, len(l.axes))
	for _, axis := range l.axes {
		if axis.Factor == 0 {
			tags = append(tags, axis.Name)
		}
	}
	return tags
}

// subAxes returns the blocked sub-axes in order.
func (l Layout) subAxes() []Axis {
	var subs []Axis
	for _, axis := range l.axes {
		if axis.Factor > 0 {
			subs = append(subs, axis)
		}
	}
	return subs
}

// String implements fmt.Stringer, printing the layout spec -- it round-trips with
// Parse for concrete layouts.
func (l Layout) String() string {
	switch l.kind {
	case kindUndefined:
		return "Undefined"
	case kindAny:
		return "Any"
	}
	var b strings.Builder
	for _, axis := range l.axes {
		if axis.Factor > 0 {
			b.WriteString(strconv.Itoa(axis.Factor))
		}
		b.WriteString(axis.String())
	}
	return b.String()
}

// Equal compares two layouts structurally: same kind, same axis sequence including
// blocking factors. Undefined is never equal to a concrete layout.
func (l Layout) Equal(other Layout) bool {
	if l.kind != other.kind {
		return false
	}
	return slices.Equal(l.axes, other.axes)
}

// IsCompatibleWith returns whether the two layouts describe the same logical axis
// arrangement ignoring blocking factors, or whether either side is Undefined or Any.
func (l Layout) IsCompatibleWith(other Layout) bool {
	if !l.IsConcrete() || !other.IsConcrete() {
		return true
	}
	return slices.Equal(l.primaries(), other.primaries())
}

// ValidateForShape checks that the layout fits the given tensor shape: the primary
// rank must match the shape's rank, and each blocking factor must evenly divide the
// dimension of its primary axis (unknown dimensions are not checked).
// It returns an error wrapping ErrInvalidLayout on mismatch.
func (l Layout) ValidateForShape(shape shapes.Shape) error {
	if !l.IsConcrete() {
		return nil
	}
	primaries := l.primaries()
	if len(primaries) != shape.Rank() {
		return errors.WithMessagef(ErrInvalidLayout,
			"layout %s has %d primary axes, tensor shape %s has rank %d", l, len(primaries), shape, shape.Rank())
	}
	for _, sub := range l.subAxes() {
		primaryIdx := slices.Index(primaries, sub.Name)
		dim := shape.Dim(primaryIdx)
		if dim == shapes.UnknownDim {
			continue
		}
		if dim%sub.Factor != 0 {
			return errors.WithMessagef(ErrInvalidLayout,
				"layout %s: blocking factor %d doesn't divide dimension %d of axis %c (shape %s)",
				l, sub.Factor, dim, sub.Name, shape)
		}
	}
	return nil
}
