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

// Package ncout writes transformed fields to a NetCDF file using the
// classic (CDF-1/CDF-2) encoding. Because the classic header must be
// complete before any data is written, the sink buffers fields and
// commits the whole file on Close.
package ncout

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/sirupsen/logrus"

	"github.com/umtools/um2nc"
)

const timeDim = "time"

// A Sink collects fields and global attributes for one output file.
// It owns the file: Close commits it, Abort deletes it. One of the two
// must be called; both are safe to call more than once.
type Sink struct {
	path        string
	format      Format
	compression int
	log         logrus.FieldLogger

	f       *os.File
	fields  []*um2nc.Field
	globals map[string]string
	done    bool
}

// Create opens the output file for the given format. The file exists
// from this point on, so an aborted conversion has something to
// delete. Compression applies only to the NETCDF4 formats, which this
// codec writes in their classic fallback form; a nonzero level is
// recorded and ignored.
func Create(path string, format Format, compression int, log logrus.FieldLogger) (*Sink, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if _, ok := formatNames[format]; !ok {
		return nil, fmt.Errorf("ncout: invalid format %d", int(format))
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("ncout: creating %s: %v", path, err)
	}
	if format == NetCDF4 || format == NetCDF4Classic {
		log.Infof("format %s not supported by the classic codec; writing classic layout", format)
	}
	if compression > 0 {
		log.Debugf("compression level %d ignored for classic output", compression)
	}
	return &Sink{
		path:        path,
		format:      format,
		compression: compression,
		log:         log,
		f:           f,
		globals:     make(map[string]string),
	}, nil
}

// Path returns the output file path.
func (s *Sink) Path() string { return s.path }

// SetGlobalAttrs merges attrs into the file's global attributes.
func (s *Sink) SetGlobalAttrs(attrs map[string]string) {
	for k, v := range attrs {
		s.globals[k] = v
	}
}

// Write queues a transformed field for output. The data is not encoded
// until Close.
func (s *Sink) Write(f *um2nc.Field) error {
	if s.done {
		return fmt.Errorf("ncout: write after close")
	}
	if f.Data == nil {
		return fmt.Errorf("ncout: field %s has no data", f.Name())
	}
	if len(f.Dims) != len(f.Data.Shape) {
		return fmt.Errorf("ncout: field %s has %d dimension names for %d axes",
			f.Name(), len(f.Dims), len(f.Data.Shape))
	}
	for _, c := range f.Coords {
		if c.HasBounds() && len(c.Bounds) != len(c.Points) {
			return fmt.Errorf("ncout: coordinate %s of %s has %d bounds pairs for %d points",
				c.Name, f.Name(), len(c.Bounds), len(c.Points))
		}
	}
	s.fields = append(s.fields, f)
	return nil
}

// Abort closes and removes the output file. Non-existence is not an
// error.
func (s *Sink) Abort() error {
	s.done = true
	if s.f != nil {
		s.f.Close()
		s.f = nil
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// dimTable resolves per-field dimension names to file dimension names,
// renaming on length conflicts. The time dimension is the single
// record (unlimited) dimension regardless of length.
type dimTable struct {
	names   []string
	lengths []int
	byName  map[string]int
	numRecs int
}

func newDimTable() *dimTable {
	return &dimTable{byName: make(map[string]int)}
}

func (t *dimTable) resolve(name string, length int) string {
	if name == timeDim {
		if _, ok := t.byName[timeDim]; !ok {
			t.byName[timeDim] = len(t.names)
			t.names = append(t.names, timeDim)
			t.lengths = append(t.lengths, 0) // record dimension
		}
		if length > t.numRecs {
			t.numRecs = length
		}
		return timeDim
	}
	candidate := name
	for n := 2; ; n++ {
		i, ok := t.byName[candidate]
		if !ok {
			t.byName[candidate] = len(t.names)
			t.names = append(t.names, candidate)
			t.lengths = append(t.lengths, length)
			return candidate
		}
		if t.lengths[i] == length {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d", name, n)
	}
}

// ncVar is one variable queued for definition and writing.
type ncVar struct {
	name   string
	dims   []string
	kind   um2nc.DataKind
	points []float64 // coordinate data (nil for field data)
	field  *um2nc.Field
	attrs  []ncAttr
	isRec  bool
	nRec   int
}

type ncAttr struct {
	name  string
	value interface{}
}

// Close defines the NetCDF header from everything queued so far,
// writes all variable data, and closes the file.
func (s *Sink) Close() error {
	if s.done {
		return nil
	}
	s.done = true

	dims := newDimTable()
	var vars []*ncVar
	varIndex := make(map[string]*ncVar)
	needBounds := false

	addVar := func(v *ncVar) *ncVar {
		if prev, ok := varIndex[v.name]; ok {
			return prev
		}
		varIndex[v.name] = v
		vars = append(vars, v)
		return v
	}

	for _, f := range s.fields {
		fieldDims := make([]string, len(f.Dims))
		isDim := make(map[string]bool, len(f.Dims))
		for i, d := range f.Dims {
			fieldDims[i] = dims.resolve(d, f.Data.Shape[i])
			isDim[d] = true
		}

		var auxNames []string
		for _, c := range f.Coords {
			switch {
			case isDim[c.Name]:
				// Coordinate variables carry the resolved dimension
				// name so they stay attached after any renaming.
				axis := f.DimIndex(c.Name)
				s.addCoordVar(addVar, c, fieldDims[axis], []string{fieldDims[axis]}, &needBounds)
			case len(c.Points) == 1:
				// Scalar coordinate.
				s.addCoordVar(addVar, c, c.Name, nil, &needBounds)
				auxNames = append(auxNames, c.Name)
			default:
				// Auxiliary coordinate along one of the field's axes.
				axis := axisOfLength(f, len(c.Points))
				if axis < 0 {
					return fmt.Errorf("ncout: auxiliary coordinate %s of %s matches no axis length",
						c.Name, f.Name())
				}
				s.addCoordVar(addVar, c, c.Name, []string{fieldDims[axis]}, &needBounds)
				auxNames = append(auxNames, c.Name)
			}
		}

		name := f.VarName
		if name == "" {
			name = f.Name()
		}
		base := name
		for n := 1; ; n++ {
			if _, taken := varIndex[name]; !taken {
				break
			}
			name = fmt.Sprintf("%s_%d", base, n)
		}
		v := &ncVar{name: name, dims: fieldDims, kind: f.Kind, field: f}
		if len(fieldDims) > 0 && fieldDims[0] == timeDim {
			v.isRec = true
			v.nRec = f.Data.Shape[0]
		}
		v.attrs = fieldAttrs(f, auxNames)
		addVar(v)
	}

	dimNames := dims.names
	dimLengths := append([]int(nil), dims.lengths...)
	if needBounds {
		dimNames = append(dimNames, "bnds")
		dimLengths = append(dimLengths, 2)
	}

	h := cdf.NewHeader(dimNames, dimLengths)
	globalKeys := make([]string, 0, len(s.globals))
	for k := range s.globals {
		globalKeys = append(globalKeys, k)
	}
	sort.Strings(globalKeys)
	for _, k := range globalKeys {
		h.AddAttribute("", k, s.globals[k])
	}
	for _, v := range vars {
		h.AddVariable(v.name, v.dims, sampleFor(v.kind))
		for _, a := range v.attrs {
			h.AddAttribute(v.name, a.name, a.value)
		}
	}
	h.Define()
	for _, err := range h.Check() {
		return fmt.Errorf("ncout: defining output header: %v", err)
	}

	cf, err := cdf.Create(s.f, h)
	if err != nil {
		return fmt.Errorf("ncout: creating netcdf file: %v", err)
	}

	if _, hasRec := dims.byName[timeDim]; hasRec {
		for r := 0; r < dims.numRecs; r++ {
			if err := cf.FillRecord(r); err != nil {
				return fmt.Errorf("ncout: filling record %d: %v", r, err)
			}
		}
	}

	for _, v := range vars {
		if err := s.writeVar(cf, v); err != nil {
			return fmt.Errorf("ncout: writing variable %s: %v", v.name, err)
		}
	}

	if err := cdf.UpdateNumRecs(s.f); err != nil {
		return fmt.Errorf("ncout: updating record count: %v", err)
	}
	if err := s.f.Close(); err != nil {
		return err
	}
	s.f = nil
	return nil
}

// addCoordVar queues a coordinate variable and, when the coordinate
// has bounds, its bounds variable.
func (s *Sink) addCoordVar(addVar func(*ncVar) *ncVar, c *um2nc.Coordinate, name string, dims []string, needBounds *bool) {
	v := &ncVar{name: name, dims: dims, kind: c.Kind, points: c.Points}
	if len(dims) > 0 && dims[0] == timeDim {
		v.isRec = true
		v.nRec = len(c.Points)
	}
	v.attrs = coordAttrs(c, name)
	if prev := addVar(v); prev != v {
		return // keep the first definition
	}
	if c.HasBounds() {
		*needBounds = true
		flat := make([]float64, 0, 2*len(c.Bounds))
		for _, b := range c.Bounds {
			flat = append(flat, b[0], b[1])
		}
		bv := &ncVar{
			name:   name + "_bnds",
			dims:   append(append([]string(nil), dims...), "bnds"),
			kind:   um2nc.Float64,
			points: flat,
			isRec:  v.isRec,
			nRec:   v.nRec,
		}
		addVar(bv)
	}
}

func coordAttrs(c *um2nc.Coordinate, name string) []ncAttr {
	var attrs []ncAttr
	if c.StandardName != "" {
		attrs = append(attrs, ncAttr{"standard_name", c.StandardName})
	}
	if c.Units != "" {
		attrs = append(attrs, ncAttr{"units", c.Units})
	}
	if c.Calendar != "" {
		attrs = append(attrs, ncAttr{"calendar", c.Calendar})
	}
	if c.Positive != "" {
		attrs = append(attrs, ncAttr{"positive", c.Positive})
	}
	if c.HasBounds() {
		attrs = append(attrs, ncAttr{"bounds", name + "_bnds"})
	}
	return attrs
}

func fieldAttrs(f *um2nc.Field, auxNames []string) []ncAttr {
	var attrs []ncAttr
	if f.StandardName != "" {
		attrs = append(attrs, ncAttr{"standard_name", f.StandardName})
	}
	if f.LongName != "" {
		attrs = append(attrs, ncAttr{"long_name", f.LongName})
	}
	if f.Units != "" {
		attrs = append(attrs, ncAttr{"units", f.Units})
	}
	if len(f.CellMethods) > 0 {
		parts := make([]string, len(f.CellMethods))
		for i, m := range f.CellMethods {
			parts[i] = m.String()
		}
		attrs = append(attrs, ncAttr{"cell_methods", strings.Join(parts, " ")})
	}
	if len(auxNames) > 0 {
		attrs = append(attrs, ncAttr{"coordinates", strings.Join(auxNames, " ")})
	}
	fill := typedFill(f.Kind, f.FillValue)
	attrs = append(attrs, ncAttr{"_FillValue", fill}, ncAttr{"missing_value", fill})
	return attrs
}

// axisOfLength returns the first axis of f whose length matches n,
// or -1.
func axisOfLength(f *um2nc.Field, n int) int {
	for i, l := range f.Data.Shape {
		if l == n {
			return i
		}
	}
	return -1
}

// sampleFor returns a sample slice of the on-disk element type for the
// kind, which is how the cdf header learns variable types. The classic
// formats have no 64-bit integer, so Int64 degrades to int.
func sampleFor(kind um2nc.DataKind) interface{} {
	switch kind {
	case um2nc.Float64:
		return []float64{0}
	case um2nc.Float32:
		return []float32{0}
	}
	return []int32{0}
}

func typedFill(kind um2nc.DataKind, fill float64) interface{} {
	switch kind {
	case um2nc.Float64:
		return []float64{fill}
	case um2nc.Float32:
		return []float32{float32(fill)}
	}
	return []int32{intFill(fill)}
}

// intFill clamps a fill value to the int32 range. An Int64 field keeps
// its 64-bit sentinel through the transform, but the classic formats
// store it as int, so out-of-range sentinels take the int default.
func intFill(fill float64) int32 {
	if fill < math.MinInt32 || fill > math.MaxInt32 {
		return -2147483647
	}
	return int32(fill)
}

// encode converts float64 elements to the on-disk slice type,
// substituting the fill value for missing (NaN) elements.
func encode(vals []float64, kind um2nc.DataKind, fill float64) interface{} {
	switch kind {
	case um2nc.Float64:
		out := make([]float64, len(vals))
		for i, v := range vals {
			if math.IsNaN(v) {
				v = fill
			}
			out[i] = v
		}
		return out
	case um2nc.Float32:
		out := make([]float32, len(vals))
		for i, v := range vals {
			if math.IsNaN(v) {
				v = fill
			}
			out[i] = float32(v)
		}
		return out
	}
	out := make([]int32, len(vals))
	for i, v := range vals {
		if math.IsNaN(v) {
			out[i] = intFill(fill)
			continue
		}
		out[i] = int32(math.Round(v))
	}
	return out
}

func (s *Sink) writeVar(cf *cdf.File, v *ncVar) error {
	vals := v.points
	fill := um2nc.FillValueFor(v.kind)
	if v.field != nil {
		vals = v.field.Data.Elements
		fill = v.field.FillValue
	}

	end := cf.Header.Lengths(v.name)
	start := make([]int, len(end))
	if v.isRec {
		end = append([]int(nil), end...)
		end[0] = v.nRec
	}
	w := cf.Writer(v.name, start, end)
	if _, err := w.Write(encode(vals, v.kind, fill)); err != nil {
		return err
	}
	return nil
}
