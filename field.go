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

// Package um2nc converts Unified Model fieldsfile output to CF-conforming
// NetCDF. The package holds the per-field transform pipeline; reading the
// fieldsfile binary layout is in package umfile and NetCDF encoding is in
// package ncout.
package um2nc

import (
	"fmt"
	"strings"

	"github.com/ctessum/sparse"
)

// DataKind is the declared storage kind of a field or coordinate.
// Array elements are held as float64 in memory regardless of kind;
// the kind governs narrowing and output encoding.
type DataKind int

const (
	Float64 DataKind = iota
	Float32
	Int64
	Int32
)

// String returns the NetCDF-style name of the kind.
func (k DataKind) String() string {
	switch k {
	case Float64:
		return "double"
	case Float32:
		return "float"
	case Int64:
		return "int64"
	case Int32:
		return "int"
	}
	return fmt.Sprintf("<%d>", int(k))
}

// IsFloat reports whether k is a floating point kind.
func (k DataKind) IsFloat() bool { return k == Float64 || k == Float32 }

// StashCode identifies the physical meaning of a field as a
// (section, item) pair. It is set when a field is read and never
// changed by the transform pipeline.
type StashCode struct {
	Section int
	Item    int
}

// ItemCode returns the single-integer form of the code.
func (s StashCode) ItemCode() int { return 1000*s.Section + s.Item }

func (s StashCode) String() string { return fmt.Sprintf("m01s%02di%03d", s.Section, s.Item) }

// A Coordinate is an ordered sequence of numeric points describing one
// axis (or a scalar location) of a field. Bounds, if present, hold one
// pair per point.
type Coordinate struct {
	// Name is the output variable (and dimension) name.
	Name string
	// StandardName is the CF standard name, if any.
	StandardName string

	Points []float64
	Bounds [][2]float64

	// Units is the unit string; for time coordinates it carries the
	// epoch ("hours since 1970-01-01 00:00:00").
	Units string
	// Calendar is set for time coordinates ("proleptic_gregorian",
	// "360_day", "365_day").
	Calendar string

	Kind DataKind

	// Positive is the CF "positive" attribute for vertical coordinates.
	Positive string
}

// HasBounds reports whether the coordinate carries bounds.
func (c *Coordinate) HasBounds() bool { return len(c.Bounds) > 0 }

// Copy returns a deep copy of the coordinate.
func (c *Coordinate) Copy() *Coordinate {
	o := *c
	o.Points = append([]float64(nil), c.Points...)
	if c.Bounds != nil {
		o.Bounds = append([][2]float64(nil), c.Bounds...)
	}
	return &o
}

// A CellMethod describes an aggregation that produced the field
// ("time: maximum"), with optional free-text interval descriptors
// and comments.
type CellMethod struct {
	Method     string
	CoordNames []string
	Intervals  []string
	Comments   []string
}

// String renders the method in CF attribute form.
func (m CellMethod) String() string {
	var b strings.Builder
	for _, n := range m.CoordNames {
		b.WriteString(n)
		b.WriteString(": ")
	}
	b.WriteString(m.Method)
	var extra []string
	for _, iv := range m.Intervals {
		extra = append(extra, "interval: "+iv)
	}
	extra = append(extra, m.Comments...)
	if len(extra) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(extra, " "))
		b.WriteString(")")
	}
	return b.String()
}

// A Field is one decoded model variable: a data array plus its
// coordinates and metadata. The stash code is immutable once read;
// everything else may be rewritten by the transform pipeline.
type Field struct {
	Stash StashCode

	VarName      string
	StandardName string
	LongName     string
	Units        string

	// Data holds the array elements; missing data is encoded as NaN
	// and replaced with FillValue when written.
	Data *sparse.DenseArray
	Kind DataKind

	// Dims names the dimension coordinates in Data.Shape order.
	Dims []string
	// Coords holds dimension coordinates plus scalar and auxiliary
	// coordinates. A coordinate is a dimension coordinate iff its
	// name appears in Dims.
	Coords []*Coordinate

	CellMethods []CellMethod

	// FillValue is the missing-value sentinel for the output variable,
	// assigned by the transformer once the kind is final.
	FillValue float64
}

// Copy returns a deep copy of the field sharing no mutable state with
// the original.
func (f *Field) Copy() *Field {
	o := *f
	if f.Data != nil {
		o.Data = f.Data.Copy()
	}
	o.Dims = append([]string(nil), f.Dims...)
	o.Coords = make([]*Coordinate, len(f.Coords))
	for i, c := range f.Coords {
		o.Coords[i] = c.Copy()
	}
	o.CellMethods = append([]CellMethod(nil), f.CellMethods...)
	return &o
}

// Name returns the most specific available name for the field,
// for use in messages.
func (f *Field) Name() string {
	switch {
	case f.VarName != "":
		return f.VarName
	case f.StandardName != "":
		return f.StandardName
	case f.LongName != "":
		return f.LongName
	}
	return f.Stash.String()
}

// Coord returns the coordinate with the given name, or nil.
func (f *Field) Coord(name string) *Coordinate {
	for _, c := range f.Coords {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// RemoveCoord deletes the named coordinate if present. Removing a
// dimension coordinate's metadata does not reshape the data.
func (f *Field) RemoveCoord(name string) {
	for i, c := range f.Coords {
		if c.Name == name {
			f.Coords = append(f.Coords[:i], f.Coords[i+1:]...)
			return
		}
	}
}

// RenameCoord renames a coordinate and any dimension referring to it.
func (f *Field) RenameCoord(old, new string) {
	if c := f.Coord(old); c != nil {
		c.Name = new
	}
	for i, d := range f.Dims {
		if d == old {
			f.Dims[i] = new
		}
	}
}

// DimIndex returns the axis of the named dimension, or -1.
func (f *Field) DimIndex(name string) int {
	for i, d := range f.Dims {
		if d == name {
			return i
		}
	}
	return -1
}

// Transpose permutes the field's axes so that axis i of the result is
// axis perm[i] of the input, updating Dims to match.
func (f *Field) Transpose(perm []int) error {
	if len(perm) != len(f.Data.Shape) {
		return fmt.Errorf("um2nc: transpose: permutation length %d does not match %d dimensions",
			len(perm), len(f.Data.Shape))
	}
	oldShape := f.Data.Shape
	newShape := make([]int, len(perm))
	newDims := make([]string, len(perm))
	for i, p := range perm {
		newShape[i] = oldShape[p]
		newDims[i] = f.Dims[p]
	}
	out := sparse.ZerosDense(newShape...)
	oldIndex := make([]int, len(perm))
	for i := range out.Elements {
		newIndex := out.IndexNd(i)
		for j, p := range perm {
			oldIndex[p] = newIndex[j]
		}
		out.Elements[i] = f.Data.Get(oldIndex...)
	}
	f.Data = out
	f.Dims = newDims
	return nil
}

// InsertLeadingDim prepends a length-1 dimension with the given name.
func (f *Field) InsertLeadingDim(name string) {
	newShape := append([]int{1}, f.Data.Shape...)
	out := sparse.ZerosDense(newShape...)
	copy(out.Elements, f.Data.Elements)
	f.Data = out
	f.Dims = append([]string{name}, f.Dims...)
}

// ReverseDim reverses the field data along the given axis.
func (f *Field) ReverseDim(axis int) {
	shape := f.Data.Shape
	out := sparse.ZerosDense(shape...)
	for i := range out.Elements {
		idx := out.IndexNd(i)
		idx[axis] = shape[axis] - 1 - idx[axis]
		out.Elements[i] = f.Data.Get(idx...)
	}
	f.Data = out
}
