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

package umfile

import (
	"bytes"
	"encoding/binary"
	"math"
	"reflect"
	"testing"

	"github.com/umtools/um2nc"
)

// lookupSpec describes one lookup record for the in-memory test files.
type lookupSpec struct {
	valid, data [6]int // year, month, day, hour, minute, second

	lbtim, lbft, lbcode, lbrow, lbnpt, lbpack, lbrel int
	lbfc, lbproc, lbvc, lblev, dtype, stash          int

	blev, bhlev, bzy, bdy, bzx, bdx, bmdi float64
}

func baseSpec() lookupSpec {
	return lookupSpec{
		valid:  [6]int{1970, 1, 2, 0, 0, 0},
		data:   [6]int{1970, 1, 1, 0, 0, 0},
		lbtim:  11, // forecast data, standard calendar
		lbft:   24,
		lbcode: 101,
		lbrow:  2,
		lbnpt:  3,
		lbrel:  3,
		lbfc:   16,
		lbvc:   1,
		dtype:  dtypeReal,
		stash:  3236,
		blev:   1.5,
		bzy:    -50, bdy: 5,
		bzx: 0, bdx: 10,
		bmdi: -1e30,
	}
}

func (s lookupSpec) render() [64]uint64 {
	var w [64]uint64
	si := func(i, v int) { w[i-1] = uint64(int64(v)) }
	sr := func(i int, v float64) { w[i-1] = math.Float64bits(v) }
	si(1, s.valid[0])
	si(2, s.valid[1])
	si(3, s.valid[2])
	si(4, s.valid[3])
	si(5, s.valid[4])
	si(6, s.valid[5])
	si(7, s.data[0])
	si(8, s.data[1])
	si(9, s.data[2])
	si(10, s.data[3])
	si(11, s.data[4])
	si(12, s.data[5])
	si(13, s.lbtim)
	si(14, s.lbft)
	si(16, s.lbcode)
	si(18, s.lbrow)
	si(19, s.lbnpt)
	si(21, s.lbpack)
	si(22, s.lbrel)
	si(23, s.lbfc)
	si(25, s.lbproc)
	si(26, s.lbvc)
	si(33, s.lblev)
	si(39, s.dtype)
	si(42, s.stash)
	sr(52, s.blev)
	sr(54, s.bhlev)
	sr(59, s.bzy)
	sr(60, s.bdy)
	sr(61, s.bzx)
	sr(62, s.bdx)
	sr(63, s.bmdi)
	return w
}

type testRecord struct {
	spec lookupSpec
	data []float64
}

const (
	testLevDepDim1 = 2 // levels
	testLevDepDim2 = 8 // columns
)

// encodeFile lays out a minimal fieldsfile: the fixed length header,
// one level dependent constants block, the lookup table, and the data.
func encodeFile(records []testRecord) []byte {
	levDepStart := flhLen + 1 // 1-based word addresses
	lookStart := levDepStart + testLevDepDim1*testLevDepDim2
	dataStart := lookStart - 1 + len(records)*64 // 0-based

	var flh [flhLen]uint64
	set := func(i, v int) { flh[i-1] = uint64(int64(v)) }
	set(flhGridStaggering, 6)
	set(flhLevDepStart, levDepStart)
	set(flhLevDepDim1, testLevDepDim1)
	set(flhLevDepDim2, testLevDepDim2)
	set(flhLookupStart, lookStart)
	set(flhLookupDim1, 64)
	set(flhLookupDim2, len(records))

	words := append([]uint64(nil), flh[:]...)

	levDep := make([]uint64, testLevDepDim1*testLevDepDim2)
	for i, v := range []float64{20, 40} { // zsea theta
		levDep[(levDepZseaTheta-1)*testLevDepDim1+i] = math.Float64bits(v)
	}
	for i, v := range []float64{10, 30} { // zsea rho
		levDep[(levDepZseaRho-1)*testLevDepDim1+i] = math.Float64bits(v)
	}
	words = append(words, levDep...)

	offset := dataStart
	var dataWords []uint64
	for _, rec := range records {
		w := rec.spec.render()
		w[29-1] = uint64(int64(offset)) // lbegin
		w[15-1] = uint64(int64(len(rec.data)))
		words = append(words, w[:]...)
		for _, v := range rec.data {
			dataWords = append(dataWords, math.Float64bits(v))
		}
		offset += len(rec.data)
	}
	words = append(words, dataWords...)

	buf := new(bytes.Buffer)
	for _, w := range words {
		binary.Write(buf, binary.BigEndian, w)
	}
	return buf.Bytes()
}

func readFixture(t *testing.T, records []testRecord) (um2nc.FileHeader, []*um2nc.Field) {
	t.Helper()
	f := New(bytes.NewReader(encodeFile(records)))
	hdr, fields, err := f.Read()
	if err != nil {
		t.Fatal(err)
	}
	return hdr, fields
}

func TestReadSurfaceField(t *testing.T) {
	rec := testRecord{
		spec: baseSpec(),
		data: []float64{280, 281, 282, 283, -1e30, 285},
	}
	hdr, fields := readFixture(t, []testRecord{rec})

	if hdr.GridStaggering != 6 {
		t.Errorf("grid staggering = %d; want 6", hdr.GridStaggering)
	}
	if !reflect.DeepEqual(hdr.ZTheta, []float64{20, 40}) {
		t.Errorf("zsea theta = %v", hdr.ZTheta)
	}
	if !reflect.DeepEqual(hdr.ZRho, []float64{10, 30}) {
		t.Errorf("zsea rho = %v", hdr.ZRho)
	}

	if len(fields) != 1 {
		t.Fatalf("got %d fields; want 1", len(fields))
	}
	f := fields[0]
	if f.Stash != (um2nc.StashCode{Section: 3, Item: 236}) {
		t.Errorf("stash = %v", f.Stash)
	}
	if f.StandardName != "air_temperature" || f.Units != "K" {
		t.Errorf("metadata = %q, %q", f.StandardName, f.Units)
	}
	if f.Kind != um2nc.Float64 {
		t.Errorf("kind = %v", f.Kind)
	}
	if !reflect.DeepEqual(f.Dims, []string{"latitude", "longitude"}) {
		t.Errorf("dims = %v", f.Dims)
	}

	lat := f.Coord("latitude")
	if !reflect.DeepEqual(lat.Points, []float64{-45, -40}) {
		t.Errorf("latitude = %v", lat.Points)
	}
	lon := f.Coord("longitude")
	if !reflect.DeepEqual(lon.Points, []float64{10, 20, 30}) {
		t.Errorf("longitude = %v", lon.Points)
	}

	tc := f.Coord("time")
	if !reflect.DeepEqual(tc.Points, []float64{24}) {
		t.Errorf("time = %v", tc.Points)
	}
	if tc.Calendar != um2nc.CalendarProlepticGregorian {
		t.Errorf("calendar = %q", tc.Calendar)
	}
	if tc.HasBounds() {
		t.Error("instantaneous field has time bounds")
	}
	ref := f.Coord("forecast_reference_time")
	if !reflect.DeepEqual(ref.Points, []float64{0}) {
		t.Errorf("forecast reference time = %v", ref.Points)
	}

	want := []float64{280, 281, 282, 283, math.NaN(), 285}
	for i, v := range f.Data.Elements {
		if math.IsNaN(want[i]) {
			if !math.IsNaN(v) {
				t.Errorf("element %d = %g; want NaN", i, v)
			}
			continue
		}
		if v != want[i] {
			t.Errorf("element %d = %g; want %g", i, v, want[i])
		}
	}
	if len(f.CellMethods) != 0 {
		t.Errorf("cell methods = %v", f.CellMethods)
	}
}

func TestReadMergesTimesAndLevels(t *testing.T) {
	mk := func(day int, level float64, base float64) testRecord {
		s := baseSpec()
		s.stash = 30201
		s.lbfc = 56
		s.lbvc = vcPressure
		s.lbproc = lbprocMean
		s.blev = level
		s.valid = [6]int{1970, 1, day, 0, 0, 0}
		data := make([]float64, 6)
		for i := range data {
			data[i] = base + float64(i)
		}
		return testRecord{spec: s, data: data}
	}
	// Deliberately out of order.
	_, fields := readFixture(t, []testRecord{
		mk(3, 850, 300),
		mk(2, 1000, 100),
		mk(2, 850, 200),
		mk(3, 1000, 400),
	})

	if len(fields) != 1 {
		t.Fatalf("got %d fields; want 1", len(fields))
	}
	f := fields[0]
	if !reflect.DeepEqual(f.Dims, []string{"time", "pressure", "latitude", "longitude"}) {
		t.Errorf("dims = %v", f.Dims)
	}
	if !reflect.DeepEqual(f.Data.Shape, []int{2, 2, 2, 3}) {
		t.Errorf("shape = %v", f.Data.Shape)
	}

	p := f.Coord("pressure")
	if !reflect.DeepEqual(p.Points, []float64{850, 1000}) {
		t.Errorf("pressure = %v", p.Points)
	}
	if p.Units != "hPa" {
		t.Errorf("pressure units = %q", p.Units)
	}

	tc := f.Coord("time")
	if !reflect.DeepEqual(tc.Points, []float64{24, 48}) {
		t.Errorf("time = %v", tc.Points)
	}
	if !reflect.DeepEqual(tc.Bounds, [][2]float64{{0, 24}, {0, 48}}) {
		t.Errorf("time bounds = %v", tc.Bounds)
	}

	// Each record must land in its (time, level) slab.
	tests := []struct {
		ti, li int
		base   float64
	}{
		{0, 1, 100}, // day 2, 1000 hPa
		{0, 0, 200}, // day 2, 850 hPa
		{1, 0, 300}, // day 3, 850 hPa
		{1, 1, 400}, // day 3, 1000 hPa
	}
	for _, test := range tests {
		if got := f.Data.Get(test.ti, test.li, 0, 0); got != test.base {
			t.Errorf("data[%d,%d,0,0] = %g; want %g", test.ti, test.li, got, test.base)
		}
		if got := f.Data.Get(test.ti, test.li, 1, 2); got != test.base+5 {
			t.Errorf("data[%d,%d,1,2] = %g; want %g", test.ti, test.li, got, test.base+5)
		}
	}

	if len(f.CellMethods) != 1 || f.CellMethods[0].Method != "mean" {
		t.Errorf("cell methods = %v", f.CellMethods)
	}
}

func TestReadHybridHeightLevels(t *testing.T) {
	mk := func(lblev int, height, sigma float64) testRecord {
		s := baseSpec()
		s.stash = 2
		s.lbfc = 56
		s.lbvc = vcHybridHeight
		s.lblev = lblev
		s.blev = height
		s.bhlev = sigma
		return testRecord{spec: s, data: make([]float64, 6)}
	}
	_, fields := readFixture(t, []testRecord{mk(1, 10, 0.99), mk(2, 30, 0.97)})

	if len(fields) != 1 {
		t.Fatalf("got %d fields; want 1", len(fields))
	}
	f := fields[0]
	if !reflect.DeepEqual(f.Dims, []string{"model_level_number", "latitude", "longitude"}) {
		t.Errorf("dims = %v", f.Dims)
	}
	lev := f.Coord("model_level_number")
	if !reflect.DeepEqual(lev.Points, []float64{1, 2}) {
		t.Errorf("model levels = %v", lev.Points)
	}
	if lev.Kind != um2nc.Int64 {
		t.Errorf("model level kind = %v", lev.Kind)
	}
	if h := f.Coord("level_height"); !reflect.DeepEqual(h.Points, []float64{10, 30}) {
		t.Errorf("level heights = %v", h.Points)
	}
	if s := f.Coord("sigma"); !reflect.DeepEqual(s.Points, []float64{0.99, 0.97}) {
		t.Errorf("sigma = %v", s.Points)
	}
}

func TestReadSkipsUnusedSlots(t *testing.T) {
	used := testRecord{spec: baseSpec(), data: make([]float64, 6)}
	unused := testRecord{spec: baseSpec(), data: nil}
	unused.spec.lbrel = -99
	_, fields := readFixture(t, []testRecord{used, unused})
	if len(fields) != 1 {
		t.Errorf("got %d fields; want 1", len(fields))
	}
}

func TestReadRejectsPackedData(t *testing.T) {
	rec := testRecord{spec: baseSpec(), data: make([]float64, 6)}
	rec.spec.lbpack = 1
	f := New(bytes.NewReader(encodeFile([]testRecord{rec})))
	_, _, err := f.Read()
	if _, ok := err.(*FormatError); !ok {
		t.Fatalf("got %v; want FormatError", err)
	}
}

func TestReadRejectsTimeSeries(t *testing.T) {
	rec := testRecord{spec: baseSpec(), data: make([]float64, 6)}
	rec.spec.lbcode = 31320
	f := New(bytes.NewReader(encodeFile([]testRecord{rec})))
	_, _, err := f.Read()
	if _, ok := err.(*um2nc.UnsupportedLayoutError); !ok {
		t.Fatalf("got %v; want UnsupportedLayoutError", err)
	}
}

func TestReadCalendars(t *testing.T) {
	tests := []struct {
		lbtim int
		want  string
	}{
		{11, um2nc.CalendarProlepticGregorian},
		{12, um2nc.Calendar360Day},
		{14, um2nc.Calendar365Day},
	}
	for _, test := range tests {
		rec := testRecord{spec: baseSpec(), data: make([]float64, 6)}
		rec.spec.lbtim = test.lbtim
		_, fields := readFixture(t, []testRecord{rec})
		if got := fields[0].Coord("time").Calendar; got != test.want {
			t.Errorf("LBTIM %d: calendar = %q; want %q", test.lbtim, got, test.want)
		}
	}
}
