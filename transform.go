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

import "fmt"

// TransformConfig holds the per-run options that shape the field
// pipeline.
type TransformConfig struct {
	// Simple replaces table names with fld_sXXiYYY names.
	Simple bool
	// Use64Bit keeps 64-bit data kinds instead of narrowing them.
	Use64Bit bool
	// NoMask disables pressure-level masking.
	NoMask bool
	// HCrit is the critical heaviside value for masking.
	HCrit float64
	// Include and Exclude filter fields by item code. At most one may
	// be non-nil.
	Include map[int]bool
	Exclude map[int]bool
}

// A Transformer normalizes fields one at a time, using per-file
// context computed by the conversion driver.
type Transformer struct {
	Grid     *GridContext
	Masks    MaskRegistry
	Resolver MetadataResolver
	Cfg      TransformConfig
	Diag     *Diagnostics
}

// Transform runs the full pipeline on one field, in fixed order:
// filtering, naming, metadata reconciliation, cell-method and
// coordinate repair, masking, kind narrowing, fill value, calendar
// normalization and dimension-order correction.
func (tr *Transformer) Transform(f *Field) FieldResult {
	itemCode := f.Stash.ItemCode()
	if tr.Cfg.Include != nil && !tr.Cfg.Include[itemCode] {
		return skipped(f, SkipFiltered)
	}
	if tr.Cfg.Exclude != nil && tr.Cfg.Exclude[itemCode] {
		return skipped(f, SkipFiltered)
	}

	entry := tr.Resolver.Resolve(itemCode)
	tr.applyNaming(f, entry)
	tr.reconcileMetadata(f, entry)

	f.CellMethods = SanitizeCellMethods(f.CellMethods)

	if err := FixLatLonCoords(f, tr.Grid); err != nil {
		return failed(f, err)
	}
	FixLevelCoords(f, tr.Grid)

	if kind, ok := RequiredMask(f.Stash); ok && !tr.Cfg.NoMask {
		mask, have := tr.Masks[kind]
		if !have {
			return skipped(f, SkipNoMask)
		}
		if err := ApplyMask(f, mask, tr.Cfg.HCrit); err != nil {
			return failed(f, err)
		}
	}

	// Pressure repair runs after masking: the mask registry holds raw
	// snapshots, and level matching compares like with like.
	FixPressureCoord(f)

	tr.narrowKind(f)
	f.FillValue = FillValueFor(f.Kind)

	tr.normalizeTime(f)
	tr.narrowCoords(f)

	if err := tr.fixDimensionOrder(f); err != nil {
		return failed(f, err)
	}
	return written(f)
}

// applyNaming sets the variable name from the stash table (or the
// simple template) and appends the aggregation suffixes. Maximum and
// minimum checks are independent: a field aggregated both ways gets
// both suffixes.
func (tr *Transformer) applyNaming(f *Field, entry StashEntry) {
	if tr.Cfg.Simple {
		f.VarName = fmt.Sprintf("fld_s%02di%03d", f.Stash.Section, f.Stash.Item)
	} else if entry.UniqueName != "" {
		f.VarName = entry.UniqueName
	}
	if f.VarName == "" {
		return
	}
	for _, m := range f.CellMethods {
		if m.Method == "maximum" {
			f.VarName += "_max"
			break
		}
	}
	for _, m := range f.CellMethods {
		if m.Method == "minimum" {
			f.VarName += "_min"
			break
		}
	}
}

// reconcileMetadata aligns the field's standard name and units with the
// stash table. The wind aliases are corrected first so that they don't
// register as mismatches; any remaining disagreement is logged and the
// table wins. Absent field metadata is filled in from the table without
// a warning.
func (tr *Transformer) reconcileMetadata(f *Field, entry StashEntry) {
	if f.StandardName == "x_wind" {
		f.StandardName = "eastward_wind"
	}
	if f.StandardName == "y_wind" {
		f.StandardName = "northward_wind"
	}

	if f.StandardName != "" && entry.StandardName != "" && f.StandardName != entry.StandardName {
		tr.Diag.Warnf(WarnMetadataMismatch, f.Stash.ItemCode(),
			"standard name mismatch: field has %q, table has %q", f.StandardName, entry.StandardName)
		f.StandardName = entry.StandardName
	}
	if entry.Units != "" && f.Units != entry.Units {
		tr.Diag.Warnf(WarnMetadataMismatch, f.Stash.ItemCode(),
			"units mismatch: field has %q, table has %q", f.Units, entry.Units)
		f.Units = entry.Units
	}

	if f.StandardName == "" {
		f.StandardName = entry.StandardName
	}
	if f.LongName == "" {
		f.LongName = entry.LongName
	}
}

// narrowKind reduces 64-bit data to 32 bits unless preservation was
// requested. Float narrowing rounds each element through single
// precision so the stored values match the declared kind.
func (tr *Transformer) narrowKind(f *Field) {
	if tr.Cfg.Use64Bit {
		return
	}
	switch f.Kind {
	case Float64:
		for i, v := range f.Data.Elements {
			f.Data.Elements[i] = float64(float32(v))
		}
		f.Kind = Float32
	case Int64:
		f.Kind = Int32
	}
}

// FillValueFor returns the missing-value sentinel for a data kind:
// the conventional 1e20 for floats, the NetCDF default for integers.
func FillValueFor(kind DataKind) float64 {
	switch kind {
	case Float64, Float32:
		return 1e20
	case Int32:
		return -2147483647
	}
	return -9223372036854775806 // Int64
}

// normalizeTime applies the calendar normalization when the field has a
// forecast reference time (dump files don't), then drops the forecast
// coordinates.
func (tr *Transformer) normalizeTime(f *Field) {
	ref := f.Coord("forecast_reference_time")
	t := f.Coord("time")
	if ref != nil && t != nil {
		NormalizeTimeCalendar(t, ref)
	}
	f.RemoveCoord("forecast_period")
	f.RemoveCoord("forecast_reference_time")
}

// narrowCoords resets 64-bit integer coordinates to 32 bits to keep
// them representable in the classic NetCDF formats.
func (tr *Transformer) narrowCoords(f *Field) {
	for _, c := range f.Coords {
		if c.Kind == Int64 {
			c.Kind = Int32
		}
	}
}

// fixDimensionOrder moves the time dimension to axis 0, or inserts a
// length-1 leading time dimension when the field has only a scalar
// time coordinate.
func (tr *Transformer) fixDimensionOrder(f *Field) error {
	tdim := f.DimIndex("time")
	switch {
	case tdim > 0:
		perm := make([]int, 0, len(f.Dims))
		perm = append(perm, tdim)
		for i := range f.Dims {
			if i != tdim {
				perm = append(perm, i)
			}
		}
		return f.Transpose(perm)
	case tdim < 0 && f.Coord("time") != nil:
		f.InsertLeadingDim("time")
	}
	return nil
}
