/*
Copyright © 2022 the um2nc authors.
This file is part of um2nc.

um2nc is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

um2nc is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with um2nc.  If not, see <http://www.gnu.org/licenses/>.
*/

package um2nc

import (
	"math"

	"github.com/ctessum/sparse"
	"github.com/gonum/floats"
)

// MaskKind distinguishes the two pressure-level mask families.
type MaskKind int

const (
	// MaskWind is the heaviside field on the wind (UV) grid,
	// stash m01s30i301.
	MaskWind MaskKind = iota
	// MaskTemp is the heaviside field on the temperature grid,
	// stash m01s30i304.
	MaskTemp
)

func (k MaskKind) String() string {
	if k == MaskWind {
		return "heaviside_uv"
	}
	return "heaviside_t"
}

// Stash codes of the two heaviside mask fields.
var (
	stashHeavisideUV = StashCode{Section: 30, Item: 301}
	stashHeavisideT  = StashCode{Section: 30, Item: 304}
)

// RequiredMask reports which mask family, if any, applies to a field
// with the given stash code. Section-30 pressure-level diagnostics are
// extrapolated below ground and need masking by the matching heaviside
// field.
func RequiredMask(s StashCode) (MaskKind, bool) {
	if s.Section != 30 {
		return 0, false
	}
	switch {
	case 201 <= s.Item && s.Item <= 288, 302 <= s.Item && s.Item <= 303:
		return MaskWind, true
	case 293 <= s.Item && s.Item <= 298:
		return MaskTemp, true
	}
	return 0, false
}

// A MaskRegistry maps each mask kind to the field serving as its mask.
// An absent entry means masking for that kind is skipped per field.
type MaskRegistry map[MaskKind]*Field

// BuildMaskRegistry scans all fields once, collecting the available
// heaviside fields and the set of mask kinds any field needs. The
// registry stores snapshots of the heaviside fields: items 30302 and
// 30303 follow their mask in stash order, so the live heaviside has
// already been transformed (levels in Pa, axis reversed) by the time
// they are masked, and level matching must see the untouched data.
func BuildMaskRegistry(fields []*Field) (reg MaskRegistry, needed map[MaskKind]bool) {
	reg = make(MaskRegistry)
	needed = make(map[MaskKind]bool)
	for _, f := range fields {
		switch f.Stash {
		case stashHeavisideUV:
			reg[MaskWind] = f.Copy()
		case stashHeavisideT:
			reg[MaskTemp] = f.Copy()
		}
		if kind, ok := RequiredMask(f.Stash); ok {
			needed[kind] = true
		}
	}
	return reg, needed
}

// ApplyMask divides target by mask elementwise and marks every element
// whose mask value is at or below hcrit as missing. Division artifacts
// (0/0, Inf) only occur under the mask and are not errors. When the
// shapes differ, the target's pressure levels must be a strict subset
// of the mask's; the mask is restricted to the target's levels first.
// The result kind is always Float32.
func ApplyMask(target, mask *Field, hcrit float64) error {
	maskData := mask.Data
	if !sameShape(target.Data.Shape, maskData.Shape) {
		restricted, err := restrictMaskLevels(target, mask)
		if err != nil {
			return err
		}
		maskData = restricted
		if !sameShape(target.Data.Shape, maskData.Shape) {
			return &LevelMismatchError{Var: target.Name(),
				Detail: "mask shape does not match target after level restriction"}
		}
	}

	out := sparse.ZerosDense(target.Data.Shape...)
	for i, v := range target.Data.Elements {
		h := maskData.Elements[i]
		if h <= hcrit {
			out.Elements[i] = math.NaN()
			continue
		}
		out.Elements[i] = float64(float32(v / h))
	}
	target.Data = out
	target.Kind = Float32
	return nil
}

// restrictMaskLevels returns the mask data cut down to exactly the
// target's pressure levels.
func restrictMaskLevels(target, mask *Field) (*sparse.DenseArray, error) {
	tp := target.Coord("pressure")
	mp := mask.Coord("pressure")
	if tp == nil || mp == nil {
		return nil, &LevelMismatchError{Var: target.Name(),
			Detail: "target and mask shapes differ and one has no pressure coordinate"}
	}

	sel := make([]int, 0, len(tp.Points))
	for _, p := range tp.Points {
		i := indexOfLevel(mp.Points, p)
		if i < 0 {
			return nil, &LevelMismatchError{Var: target.Name(),
				Detail: "target pressure levels are not a subset of mask levels"}
		}
		sel = append(sel, i)
	}

	axis := mask.DimIndex(mp.Name)
	if axis < 0 {
		return nil, &LevelMismatchError{Var: target.Name(),
			Detail: "mask pressure coordinate is not a dimension"}
	}
	restricted := takeAlongAxis(mask.Data, axis, sel)
	if len(sel) == 1 && len(target.Data.Shape) == len(mask.Data.Shape)-1 {
		// The target holds its single level as a scalar coordinate.
		squeezed := sparse.ZerosDense(append(append([]int(nil),
			restricted.Shape[:axis]...), restricted.Shape[axis+1:]...)...)
		copy(squeezed.Elements, restricted.Elements)
		restricted = squeezed
	}

	// Double check the selection reproduced the target's levels.
	got := make([]float64, len(sel))
	for i, j := range sel {
		got[i] = mp.Points[j]
	}
	if !floats.Equal(got, tp.Points) {
		return nil, &LevelMismatchError{Var: target.Name(),
			Detail: "unexpected mismatch in levels of extracted mask"}
	}
	return restricted, nil
}

func indexOfLevel(points []float64, p float64) int {
	for i, v := range points {
		if v == p || approx(v, p) {
			return i
		}
	}
	return -1
}

// takeAlongAxis selects the given indices along one axis of a dense
// array, like numpy's take.
func takeAlongAxis(a *sparse.DenseArray, axis int, sel []int) *sparse.DenseArray {
	shape := append([]int(nil), a.Shape...)
	shape[axis] = len(sel)
	out := sparse.ZerosDense(shape...)
	for i := range out.Elements {
		idx := out.IndexNd(i)
		idx[axis] = sel[idx[axis]]
		out.Elements[i] = a.Get(idx...)
	}
	return out
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
