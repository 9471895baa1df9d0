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

// UnsupportedLayoutError indicates that the input file has a layout
// (such as a time-series extraction) that the per-field coordinate
// expectations cannot handle. The whole conversion aborts.
type UnsupportedLayoutError struct {
	Detail string
}

func (e *UnsupportedLayoutError) Error() string {
	return fmt.Sprintf("um2nc: file can not be processed (%s); files with time series are not supported, convert using convsh instead", e.Detail)
}

// LevelMismatchError indicates that a mask field's vertical levels
// could not be reconciled with a target field's levels.
type LevelMismatchError struct {
	Var    string
	Detail string
}

func (e *LevelMismatchError) Error() string {
	return fmt.Sprintf("um2nc: unable to match mask levels for variable %s: %s", e.Var, e.Detail)
}

// ConfigError indicates an invalid configuration detected before or at
// the start of a run: conflicting options, missing input, or an input
// header value that no supported layout matches.
type ConfigError struct {
	Detail string
}

func (e *ConfigError) Error() string { return "um2nc: " + e.Detail }

// SkipReason says why a field was not written.
type SkipReason string

const (
	// SkipFiltered means the field was removed by the include or
	// exclude list.
	SkipFiltered SkipReason = "filtered"
	// SkipNoMask means the field requires pressure-level masking but
	// no mask field is present in the file.
	SkipNoMask SkipReason = "mask field not available"
)

// FieldStatus tags the outcome of transforming one field.
type FieldStatus int

const (
	FieldWritten FieldStatus = iota
	FieldSkipped
	FieldFailed
)

// A FieldResult reports the outcome of the transform pipeline for one
// field: written, skipped (with a reason), or failed (with an error).
type FieldResult struct {
	Name     string
	ItemCode int
	Status   FieldStatus
	Reason   SkipReason
	Err      error
}

func written(f *Field) FieldResult {
	return FieldResult{Name: f.Name(), ItemCode: f.Stash.ItemCode(), Status: FieldWritten}
}

func skipped(f *Field, reason SkipReason) FieldResult {
	return FieldResult{Name: f.Name(), ItemCode: f.Stash.ItemCode(), Status: FieldSkipped, Reason: reason}
}

func failed(f *Field, err error) FieldResult {
	return FieldResult{Name: f.Name(), ItemCode: f.Stash.ItemCode(), Status: FieldFailed, Err: err}
}
