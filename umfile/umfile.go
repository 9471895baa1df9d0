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

// Package umfile decodes the Unified Model fieldsfile binary format:
// a fixed length header, constant blocks, a lookup table of 64-word
// records and the field data they address. All words are 8 bytes,
// big endian; integer words are two's complement, real words IEEE
// doubles. Lookup records describing the same diagnostic at different
// times and levels are merged into one multi-dimensional field.
package umfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/ctessum/sparse"

	"github.com/umtools/um2nc"
)

// Word positions (1-based) in the fixed length header.
const (
	flhLen            = 256
	flhGridStaggering = 9
	flhIntConstStart  = 100
	flhIntConstLen    = 101
	flhRealConstStart = 105
	flhRealConstLen   = 106
	flhLevDepStart    = 110
	flhLevDepDim1     = 111
	flhLevDepDim2     = 112
	flhLookupStart    = 150
	flhLookupDim1     = 151
	flhLookupDim2     = 152
)

// Level dependent constant columns holding the level reference heights.
const (
	levDepZseaTheta = 5
	levDepZseaRho   = 7
)

// FormatError indicates bytes that cannot be decoded as a fieldsfile.
type FormatError struct {
	Detail string
}

func (e *FormatError) Error() string { return "umfile: " + e.Detail }

// A File reads one fieldsfile.
type File struct {
	r    io.ReaderAt
	f    *os.File // non-nil when opened by path
	path string
}

// Open opens the fieldsfile at path. The caller should Close the file
// when done.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &File{r: f, f: f, path: path}, nil
}

// New reads a fieldsfile from r.
func New(r io.ReaderAt) *File { return &File{r: r} }

// Close releases the underlying file, if this File owns one.
func (f *File) Close() error {
	if f.f == nil {
		return nil
	}
	return f.f.Close()
}

// readWords reads n 8-byte words starting at the given 0-based word
// offset.
func (f *File) readWords(wordOffset int64, n int) ([]uint64, error) {
	buf := make([]byte, 8*n)
	if _, err := f.r.ReadAt(buf, wordOffset*8); err != nil {
		return nil, err
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = binary.BigEndian.Uint64(buf[8*i:])
	}
	return out, nil
}

func asInt(w uint64) int64    { return int64(w) }
func asReal(w uint64) float64 { return math.Float64frombits(w) }

// lookupEntry is one decoded 64-word lookup record.
type lookupEntry struct {
	// Validity and data dates.
	year, month, day, hour, minute, second             int
	dataYear, dataMonth, dataDay, dataHour, dataMinute int
	dataSecond                                         int

	lbtim  int // time indicator; mod 10 is the calendar
	lbft   int // forecast period, hours
	lblrec int // field length in words
	lbcode int // grid code; 31320/31323 are time series
	lbrow  int // number of rows
	lbnpt  int // number of points per row
	lbpack int // packing code; only unpacked (0) is supported
	lbrel  int // header release; -99 marks an unused slot
	lbfc   int // field code
	lbproc int // processing code
	lbvc   int // vertical coordinate type
	lbegin int // data start address, words
	lblev  int // level number
	dtype  int // 1 real, 2 integer, 3 logical
	stash  int // stash item code, 1000*section+item

	blev     float64 // level value
	bhlev    float64 // hybrid coordinate secondary value (sigma)
	bzy, bdy float64 // latitude origin and spacing
	bzx, bdx float64 // longitude origin and spacing
	bmdi     float64 // missing data indicator
}

func decodeLookup(w []uint64) lookupEntry {
	at := func(i int) int64 { return asInt(w[i-1]) } // 1-based
	re := func(i int) float64 { return asReal(w[i-1]) }
	return lookupEntry{
		year: int(at(1)), month: int(at(2)), day: int(at(3)),
		hour: int(at(4)), minute: int(at(5)), second: int(at(6)),
		dataYear: int(at(7)), dataMonth: int(at(8)), dataDay: int(at(9)),
		dataHour: int(at(10)), dataMinute: int(at(11)), dataSecond: int(at(12)),
		lbtim:  int(at(13)),
		lbft:   int(at(14)),
		lblrec: int(at(15)),
		lbcode: int(at(16)),
		lbrow:  int(at(18)),
		lbnpt:  int(at(19)),
		lbpack: int(at(21)),
		lbrel:  int(at(22)),
		lbfc:   int(at(23)),
		lbproc: int(at(25)),
		lbvc:   int(at(26)),
		lbegin: int(at(29)),
		lblev:  int(at(33)),
		dtype:  int(at(39)),
		stash:  int(at(42)),
		blev:   re(52),
		bhlev:  re(54),
		bzy:    re(59),
		bdy:    re(60),
		bzx:    re(61),
		bdx:    re(62),
		bmdi:   re(63),
	}
}

func (e lookupEntry) stashCode() um2nc.StashCode {
	return um2nc.StashCode{Section: e.stash / 1000, Item: e.stash % 1000}
}

// calendar returns the calendar name encoded in LBTIM.
func (e lookupEntry) calendar() string {
	switch e.lbtim % 10 {
	case 2:
		return um2nc.Calendar360Day
	case 4:
		return um2nc.Calendar365Day
	}
	// The standard calendar is treated as proleptic Gregorian so that
	// control runs with model years before 1600 stay unambiguous.
	return um2nc.CalendarProlepticGregorian
}

func (e lookupEntry) validTime() float64 {
	return um2nc.HoursSince1970(e.year, e.month, e.day, e.hour, e.minute, e.second, e.calendar())
}

func (e lookupEntry) dataTime() float64 {
	return um2nc.HoursSince1970(e.dataYear, e.dataMonth, e.dataDay,
		e.dataHour, e.dataMinute, e.dataSecond, e.calendar())
}

// Read decodes the whole file into header values and merged fields.
func (f *File) Read() (um2nc.FileHeader, []*um2nc.Field, error) {
	var hdr um2nc.FileHeader

	flh, err := f.readWords(0, flhLen)
	if err != nil {
		return hdr, nil, &FormatError{Detail: fmt.Sprintf("reading fixed length header: %v", err)}
	}
	hdr.GridStaggering = int(asInt(flh[flhGridStaggering-1]))

	hdr.ZTheta, hdr.ZRho, err = f.levelHeights(flh)
	if err != nil {
		return hdr, nil, err
	}

	entries, err := f.lookupEntries(flh)
	if err != nil {
		return hdr, nil, err
	}

	fields, err := f.mergeFields(entries)
	if err != nil {
		return hdr, nil, err
	}
	return hdr, fields, nil
}

// levelHeights extracts the zsea columns of the level dependent
// constants. Files without the block (ancillaries) return nil slices.
func (f *File) levelHeights(flh []uint64) (zTheta, zRho []float64, err error) {
	start := asInt(flh[flhLevDepStart-1])
	dim1 := int(asInt(flh[flhLevDepDim1-1]))
	dim2 := int(asInt(flh[flhLevDepDim2-1]))
	if start <= 0 || dim1 <= 0 {
		return nil, nil, nil
	}
	// Columns are stored consecutively, dim1 words each.
	col := func(c int) ([]float64, error) {
		if c > dim2 {
			return nil, nil
		}
		w, err := f.readWords(start-1+int64(dim1)*int64(c-1), dim1)
		if err != nil {
			return nil, &FormatError{Detail: fmt.Sprintf("reading level dependent constants: %v", err)}
		}
		out := make([]float64, dim1)
		for i, v := range w {
			out[i] = asReal(v)
		}
		return out, nil
	}
	if zTheta, err = col(levDepZseaTheta); err != nil {
		return nil, nil, err
	}
	if zRho, err = col(levDepZseaRho); err != nil {
		return nil, nil, err
	}
	return zTheta, zRho, nil
}

func (f *File) lookupEntries(flh []uint64) ([]lookupEntry, error) {
	start := asInt(flh[flhLookupStart-1])
	dim1 := int(asInt(flh[flhLookupDim1-1]))
	dim2 := int(asInt(flh[flhLookupDim2-1]))
	if start <= 0 || dim1 < 64 || dim2 <= 0 {
		return nil, &FormatError{Detail: "file has no lookup table"}
	}
	var entries []lookupEntry
	for i := 0; i < dim2; i++ {
		w, err := f.readWords(start-1+int64(i)*int64(dim1), 64)
		if err != nil {
			return nil, &FormatError{Detail: fmt.Sprintf("reading lookup entry %d: %v", i, err)}
		}
		e := decodeLookup(w)
		if e.lbrel == -99 {
			continue // unused slot
		}
		if e.lbcode == 31320 || e.lbcode == 31323 {
			return nil, &um2nc.UnsupportedLayoutError{Detail: "lookup entry has a time-series grid code"}
		}
		if e.lbpack != 0 {
			return nil, &FormatError{Detail: fmt.Sprintf("packed field data (LBPACK=%d) is not supported", e.lbpack)}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// fieldKey identifies lookup entries that merge into one field.
type fieldKey struct {
	stash  int
	lbproc int
}

// mergeFields groups lookup records by diagnostic, orders each group
// by time and level, and assembles the data into one array per field.
func (f *File) mergeFields(entries []lookupEntry) ([]*um2nc.Field, error) {
	groups := make(map[fieldKey][]lookupEntry)
	var keys []fieldKey
	for _, e := range entries {
		k := fieldKey{stash: e.stash, lbproc: e.lbproc}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], e)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].stash != keys[j].stash {
			return keys[i].stash < keys[j].stash
		}
		return keys[i].lbproc < keys[j].lbproc
	})

	fields := make([]*um2nc.Field, 0, len(keys))
	for _, k := range keys {
		fld, err := f.buildField(groups[k])
		if err != nil {
			return nil, err
		}
		fields = append(fields, fld)
	}
	return fields, nil
}

func (f *File) buildField(group []lookupEntry) (*um2nc.Field, error) {
	e0 := group[0]
	times := distinct(group, func(e lookupEntry) float64 { return e.validTime() })
	levels := distinct(group, func(e lookupEntry) float64 { return e.levelValue() })
	nt, nl := len(times), len(levels)
	if nt*nl != len(group) {
		return nil, &FormatError{Detail: fmt.Sprintf(
			"field %s: %d records do not fill %d times x %d levels",
			e0.stashCode(), len(group), nt, nl)}
	}

	fld := &um2nc.Field{
		Stash: e0.stashCode(),
		Kind:  kindFor(e0.dtype),
	}
	if m, ok := fieldCodeMeta[e0.lbfc]; ok {
		fld.StandardName = m.standardName
		fld.Units = m.units
	}

	timeIdx := indexOf(times)
	levelIdx := indexOf(levels)

	// Time coordinate, with bounds for time-processed data.
	timeCoord := &um2nc.Coordinate{
		Name:         "time",
		StandardName: "time",
		Points:       times,
		Units:        "hours since 1970-01-01 00:00:00",
		Calendar:     e0.calendar(),
		Kind:         um2nc.Float64,
	}
	if e0.processed() {
		// The lookup does not record the aggregation interval itself;
		// the bounds span from the data (reference) time to the valid
		// time.
		timeCoord.Bounds = make([][2]float64, nt)
		for _, e := range group {
			i := timeIdx[e.validTime()]
			timeCoord.Bounds[i] = [2]float64{e.dataTime(), e.validTime()}
		}
	}

	refCoord := &um2nc.Coordinate{
		Name:         "forecast_reference_time",
		StandardName: "forecast_reference_time",
		Points:       []float64{e0.dataTime()},
		Units:        "hours since 1970-01-01 00:00:00",
		Calendar:     e0.calendar(),
		Kind:         um2nc.Float64,
	}
	periodCoord := &um2nc.Coordinate{
		Name:   "forecast_period",
		Points: []float64{float64(e0.lbft)},
		Units:  "hours",
		Kind:   um2nc.Float64,
	}

	lat := &um2nc.Coordinate{
		Name:         "latitude",
		StandardName: "latitude",
		Points:       gridPoints(e0.bzy, e0.bdy, e0.lbrow),
		Units:        "degrees_north",
		Kind:         um2nc.Float64,
	}
	lon := &um2nc.Coordinate{
		Name:         "longitude",
		StandardName: "longitude",
		Points:       gridPoints(e0.bzx, e0.bdx, e0.lbnpt),
		Units:        "degrees_east",
		Kind:         um2nc.Float64,
	}

	fld.Coords = append(fld.Coords, timeCoord, refCoord, periodCoord, lat, lon)

	var levName string
	switch e0.lbvc {
	case vcPressure:
		levName = "pressure"
		fld.Coords = append(fld.Coords, &um2nc.Coordinate{
			Name:   "pressure",
			Points: levels,
			Units:  "hPa",
			Kind:   um2nc.Float64,
		})
	case vcHybridHeight:
		levName = "model_level_number"
		heights := make([]float64, nl)
		sigmas := make([]float64, nl)
		modelLevels := make([]float64, nl)
		for _, e := range group {
			i := levelIdx[e.levelValue()]
			heights[i] = e.blev
			sigmas[i] = e.bhlev
			modelLevels[i] = float64(e.lblev)
		}
		fld.Coords = append(fld.Coords,
			&um2nc.Coordinate{Name: "model_level_number", StandardName: "model_level_number",
				Points: modelLevels, Units: "1", Kind: um2nc.Int64},
			&um2nc.Coordinate{Name: "level_height", Points: heights, Units: "m", Kind: um2nc.Float64},
			&um2nc.Coordinate{Name: "sigma", Points: sigmas, Units: "1", Kind: um2nc.Float64},
		)
	}

	// Assemble dimensions and data as (time, level, lat, lon),
	// dropping length-1 time/level axes the way single-record fields
	// are conventionally laid out.
	shape := []int{e0.lbrow, e0.lbnpt}
	fld.Dims = []string{"latitude", "longitude"}
	if levName != "" && nl > 1 {
		shape = append([]int{nl}, shape...)
		fld.Dims = append([]string{levName}, fld.Dims...)
	}
	if nt > 1 {
		shape = append([]int{nt}, shape...)
		fld.Dims = append([]string{"time"}, fld.Dims...)
	}
	fld.Data = sparse.ZerosDense(shape...)
	slab := e0.lbrow * e0.lbnpt
	for _, e := range group {
		data, err := f.readFieldData(e)
		if err != nil {
			return nil, err
		}
		offset := 0
		if nl > 1 {
			offset += levelIdx[e.levelValue()] * slab
		}
		if nt > 1 {
			offset += timeIdx[e.validTime()] * slab * nl
		}
		copy(fld.Data.Elements[offset:offset+slab], data)
	}

	fld.CellMethods = cellMethods(e0)
	return fld, nil
}

// Vertical coordinate types.
const (
	vcPressure     = 8
	vcHybridHeight = 65
)

func (e lookupEntry) levelValue() float64 {
	if e.lbvc == vcHybridHeight {
		return float64(e.lblev)
	}
	return e.blev
}

// processed reports whether LBPROC marks the data as aggregated over
// time.
func (e lookupEntry) processed() bool {
	return e.lbproc&lbprocMean != 0 || e.lbproc&lbprocMin != 0 || e.lbproc&lbprocMax != 0
}

// LBPROC bits for time processing.
const (
	lbprocMean = 128
	lbprocMin  = 4096
	lbprocMax  = 8192
)

func cellMethods(e lookupEntry) []um2nc.CellMethod {
	var out []um2nc.CellMethod
	add := func(method string) {
		out = append(out, um2nc.CellMethod{
			Method:     method,
			CoordNames: []string{"time"},
			Intervals:  []string{"1 hour"},
		})
	}
	if e.lbproc&lbprocMean != 0 {
		add("mean")
	}
	if e.lbproc&lbprocMin != 0 {
		add("minimum")
	}
	if e.lbproc&lbprocMax != 0 {
		add("maximum")
	}
	return out
}

func (f *File) readFieldData(e lookupEntry) ([]float64, error) {
	n := e.lbrow * e.lbnpt
	if e.lblrec < n {
		return nil, &FormatError{Detail: fmt.Sprintf(
			"field %s: record holds %d words for a %dx%d grid", e.stashCode(), e.lblrec, e.lbrow, e.lbnpt)}
	}
	w, err := f.readWords(int64(e.lbegin), n)
	if err != nil {
		return nil, &FormatError{Detail: fmt.Sprintf("reading data for %s: %v", e.stashCode(), err)}
	}
	out := make([]float64, n)
	for i, v := range w {
		var x float64
		if e.dtype == dtypeInteger || e.dtype == dtypeLogical {
			x = float64(asInt(v))
		} else {
			x = asReal(v)
		}
		if x == e.bmdi {
			x = math.NaN()
		}
		out[i] = x
	}
	return out, nil
}

// Lookup data type codes.
const (
	dtypeReal    = 1
	dtypeInteger = 2
	dtypeLogical = 3
)

func kindFor(dtype int) um2nc.DataKind {
	if dtype == dtypeInteger || dtype == dtypeLogical {
		return um2nc.Int64
	}
	return um2nc.Float64
}

// fieldCodeMeta maps PP field codes to the metadata the lookup itself
// carries. The wind components deliberately keep the grid-relative
// names; the transform pipeline aliases them to the CF east/northward
// names.
var fieldCodeMeta = map[int]struct {
	standardName string
	units        string
}{
	1:  {"geopotential_height", "m"},
	8:  {"air_pressure", "Pa"},
	16: {"air_temperature", "K"},
	19: {"air_potential_temperature", "K"},
	56: {"x_wind", "m s-1"},
	57: {"y_wind", "m s-1"},
	88: {"relative_humidity", "%"},
	95: {"specific_humidity", "1"},
}

func gridPoints(origin, spacing float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = origin + float64(i+1)*spacing
	}
	return out
}

func distinct(group []lookupEntry, key func(lookupEntry) float64) []float64 {
	seen := make(map[float64]bool)
	var out []float64
	for _, e := range group {
		v := key(e)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

func indexOf(vals []float64) map[float64]int {
	m := make(map[float64]int, len(vals))
	for i, v := range vals {
		m[v] = i
	}
	return m
}
