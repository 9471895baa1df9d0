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
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// FileHeader carries the per-file values a conversion needs from the
// fieldsfile header.
type FileHeader struct {
	// GridStaggering is the numeric staggering code from the fixed
	// length header: 3 for New Dynamics, 6 for ENDGame.
	GridStaggering int
	// ZRho and ZTheta are the level reference heights from the level
	// dependent constants; either may be nil.
	ZRho   []float64
	ZTheta []float64
}

// A FieldsReader decodes a fieldsfile into its header values and
// fields. umfile.File is the standard implementation.
type FieldsReader interface {
	Read() (FileHeader, []*Field, error)
}

// An OutputSink receives transformed fields and global attributes and
// owns the output artifact. Close commits the file; Abort removes it.
type OutputSink interface {
	Write(f *Field) error
	SetGlobalAttrs(attrs map[string]string)
	Close() error
	Abort() error
}

// Options configures one conversion run.
type Options struct {
	// InputPath is recorded in the history attribute.
	InputPath string

	NoHist   bool
	Simple   bool
	Use64Bit bool
	NoMask   bool

	// HCrit is the critical heaviside value for masking; nil means the
	// standard 0.5. An explicit zero masks only where the heaviside
	// itself is nonpositive.
	HCrit *float64

	// Include and Exclude are item-code filters; at most one may be
	// set.
	Include []int
	Exclude []int

	// Resolver provides stash metadata; nil uses DefaultStash.
	Resolver MetadataResolver

	// Log receives diagnostics; nil uses the logrus standard logger.
	Log logrus.FieldLogger

	// Now supplies the history timestamp; nil uses time.Now.
	Now func() time.Time
}

// A Result summarizes a completed conversion.
type Result struct {
	Fields   []FieldResult
	Warnings []Warning
}

// Written counts the fields that made it into the output.
func (r *Result) Written() int {
	var n int
	for _, f := range r.Fields {
		if f.Status == FieldWritten {
			n++
		}
	}
	return n
}

// gridContext interprets the header's staggering code and level
// geometry. Unrecognized staggering is fatal: coordinate naming
// depends on it.
func gridContext(hdr FileHeader) (*GridContext, error) {
	g := &GridContext{ZRho: hdr.ZRho, ZTheta: hdr.ZTheta}
	switch hdr.GridStaggering {
	case 3:
		g.GridType = "ND"
	case 6:
		g.GridType = "EG"
	default:
		return nil, &ConfigError{Detail: fmt.Sprintf(
			"unable to determine grid type: grid staggering %d not supported", hdr.GridStaggering)}
	}
	if len(g.ZRho) == 0 {
		g.ZRho = []float64{0}
	}
	if len(g.ZTheta) == 0 {
		g.ZTheta = []float64{0}
	}
	return g, nil
}

func itemCodeSet(codes []int) map[int]bool {
	if codes == nil {
		return nil
	}
	s := make(map[int]bool, len(codes))
	for _, c := range codes {
		s[c] = true
	}
	return s
}

// Convert reads all fields from r, transforms each one, and writes the
// survivors to sink in stash order. On any fatal error the sink is
// aborted so no partial output survives; otherwise the sink is closed
// and the per-field outcomes are returned.
func Convert(r FieldsReader, sink OutputSink, opts Options) (res *Result, err error) {
	if opts.Include != nil && opts.Exclude != nil {
		return nil, &ConfigError{Detail: "include and exclude lists are mutually exclusive"}
	}
	if opts.Resolver == nil {
		opts.Resolver = DefaultStash
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	hcrit := 0.5
	if opts.HCrit != nil {
		hcrit = *opts.HCrit
	}
	diag := NewDiagnostics(opts.Log)

	defer func() {
		if err != nil {
			// Best effort: the partial output must not survive.
			sink.Abort()
		}
	}()

	hdr, fields, err := r.Read()
	if err != nil {
		return nil, err
	}
	grid, err := gridContext(hdr)
	if err != nil {
		return nil, err
	}

	// Stash order makes the output deterministic for downstream diffing.
	sort.SliceStable(fields, func(i, j int) bool {
		if fields[i].Stash.Section != fields[j].Stash.Section {
			return fields[i].Stash.Section < fields[j].Stash.Section
		}
		return fields[i].Stash.Item < fields[j].Stash.Item
	})

	masks, needed := BuildMaskRegistry(fields)
	if !opts.NoMask {
		for _, kind := range []MaskKind{MaskWind, MaskTemp} {
			if needed[kind] && masks[kind] == nil {
				diag.WarnMissingMaskOnce(kind)
			}
		}
	}

	attrs := map[string]string{"Conventions": "CF-1.6"}
	if !opts.NoHist {
		attrs["history"] = fmt.Sprintf("File %s converted with um2nc at %s",
			opts.InputPath, opts.Now().Format("2006-01-02 15:04:05"))
	}
	sink.SetGlobalAttrs(attrs)

	tr := &Transformer{
		Grid:     grid,
		Masks:    masks,
		Resolver: opts.Resolver,
		Diag:     diag,
		Cfg: TransformConfig{
			Simple:   opts.Simple,
			Use64Bit: opts.Use64Bit,
			NoMask:   opts.NoMask,
			HCrit:    hcrit,
			Include:  itemCodeSet(opts.Include),
			Exclude:  itemCodeSet(opts.Exclude),
		},
	}

	res = &Result{}
	for _, f := range fields {
		fr := tr.Transform(f)
		res.Fields = append(res.Fields, fr)
		switch fr.Status {
		case FieldFailed:
			return nil, fr.Err
		case FieldSkipped:
			diag.Log.WithField("itemcode", fr.ItemCode).Debugf("skipping %s: %s", fr.Name, fr.Reason)
		case FieldWritten:
			if err = sink.Write(f); err != nil {
				return nil, fmt.Errorf("um2nc: writing variable %s: %v", fr.Name, err)
			}
		}
	}

	if err = sink.Close(); err != nil {
		return nil, fmt.Errorf("um2nc: closing output: %v", err)
	}
	res.Warnings = diag.Warnings()
	return res, nil
}
