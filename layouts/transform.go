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

	"github.com/pkg/errors"
)

// Transform describes the rearrangement needed to take a tensor from one layout to
// another: a permutation of the primary axes plus the blockings to undo and to
// introduce. It is a description only -- executing it (inserting the corresponding
// transpose/reshape operators in the graph) is up to the consumer of the analysis.
type Transform struct {
	// Perm is the primary-axis permutation: target primary axis ii reads from
	// source primary axis Perm[ii].
	Perm []int

	// Merge lists the source's blocked sub-axes that must be folded back into
	// their primary axis before permuting.
	Merge []Axis

	// Split lists the blocked sub-axes the target introduces after permuting.
	Split []Axis
}

// IsIdentity returns whether the transform is a no-op: identity permutation and no
// blocking changes.
func (t Transform) IsIdentity() bool {
	if len(t.Merge) > 0 || len(t.Split) > 0 {
		return false
	}
	for ii, from := range t.Perm {
		if ii != from {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (t Transform) String() string {
	if t.IsIdentity() {
		return "Identity"
	}
	return fmt.Sprintf("Transform(perm=%v, merge=%v, split=%v)", t.Perm, t.Merge, t.Split)
}

// ConvertTo returns the Transform taking a tensor from layout l to the target
// layout. Both layouts must be concrete and agree on the set of primary axes --
// otherwise an error wrapping ErrInvalidLayout is returned.
func (l Layout) ConvertTo(target Layout) (Transform, error) {
	if !l.IsConcrete() || !target.IsConcrete() {
		return Transform{}, errors.WithMessagef(ErrInvalidLayout,
			"ConvertTo requires concrete layouts, got %s -> %s", l, target)
	}
	if l.Equal(target) {
		perm := make([]int, l.PrimaryRank())
		for ii := range perm {
			perm[ii] = ii
		}
		return Transform{Perm: perm}, nil
	}
	sourcePrimaries := l.primaries()
	targetPrimaries := target.primaries()
	if len(sourcePrimaries) != len(targetPrimaries) {
		return Transform{}, errors.WithMessagef(ErrInvalidLayout,
			"cannot convert %s to %s: different primary ranks (%d vs %d)",
			l, target, len(sourcePrimaries), len(targetPrimaries))
	}
	perm := make([]int, len(targetPrimaries))
	for ii, tag := range targetPrimaries {
		from := slices.Index(sourcePrimaries, tag)
		if from < 0 {
			return Transform{}, errors.WithMessagef(ErrInvalidLayout,
				"cannot convert %s to %s: target axis %c not present in source", l, target, tag)
		}
		perm[ii] = from
	}
	return Transform{
		Perm:  perm,
		Merge: l.subAxes(),
		Split: target.subAxes(),
	}, nil
}
