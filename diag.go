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
	"fmt"

	"github.com/sirupsen/logrus"
)

// WarningKind classifies a non-fatal condition raised during a run.
type WarningKind string

const (
	// WarnMetadataMismatch is a standard-name or units disagreement
	// between the STASH table and the decoded field.
	WarnMetadataMismatch WarningKind = "metadata mismatch"
	// WarnMissingMask means masking was requested but the companion
	// mask field is absent from the file.
	WarnMissingMask WarningKind = "missing mask field"
	// WarnFormat is a request for an output feature the classic
	// encoding cannot represent.
	WarnFormat WarningKind = "format"
)

// A Warning is one structured non-fatal diagnostic.
type Warning struct {
	Kind     WarningKind
	ItemCode int // 0 when not tied to a field
	Message  string
}

// Diagnostics accumulates warnings raised during a conversion and
// forwards them to a logger. It replaces ad hoc process-wide warning
// state: one Diagnostics belongs to one conversion run.
type Diagnostics struct {
	Log logrus.FieldLogger

	warnings   []Warning
	maskWarned map[MaskKind]bool
}

// NewDiagnostics returns a Diagnostics logging to log. A nil log uses
// the logrus standard logger.
func NewDiagnostics(log logrus.FieldLogger) *Diagnostics {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Diagnostics{Log: log, maskWarned: make(map[MaskKind]bool)}
}

// Warnf records a warning and logs it.
func (d *Diagnostics) Warnf(kind WarningKind, itemCode int, format string, args ...interface{}) {
	w := Warning{Kind: kind, ItemCode: itemCode, Message: fmt.Sprintf(format, args...)}
	d.warnings = append(d.warnings, w)
	l := d.Log.WithField("kind", string(kind))
	if itemCode != 0 {
		l = l.WithField("itemcode", itemCode)
	}
	l.Warn(w.Message)
}

// WarnMissingMaskOnce records a missing-mask warning the first time it
// is raised for each mask kind.
func (d *Diagnostics) WarnMissingMaskOnce(kind MaskKind) {
	if d.maskWarned[kind] {
		return
	}
	d.maskWarned[kind] = true
	d.Warnf(WarnMissingMask, 0,
		"%s field needed for masking pressure level data is not present; these fields will be skipped", kind)
}

// Warnings returns the warnings accumulated so far.
func (d *Diagnostics) Warnings() []Warning { return d.warnings }
