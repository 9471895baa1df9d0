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

package ncout

import (
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"

	"github.com/umtools/um2nc"
)

// airTempField builds a field the way the transform pipeline leaves
// them: leading time axis, repaired coordinate names, NaN for missing.
func airTempField() *um2nc.Field {
	data := sparse.ZerosDense(2, 2, 3)
	for i := range data.Elements {
		data.Elements[i] = float64(i)
	}
	data.Elements[5] = math.NaN()
	return &um2nc.Field{
		Stash:        um2nc.StashCode{Section: 3, Item: 236},
		VarName:      "tas",
		StandardName: "air_temperature",
		LongName:     "Air temperature at 1.5m",
		Units:        "K",
		Data:         data,
		Kind:         um2nc.Float32,
		FillValue:    1e20,
		Dims:         []string{"time", "lat", "lon"},
		Coords: []*um2nc.Coordinate{
			{Name: "time", StandardName: "time", Points: []float64{0, 1},
				Bounds:   [][2]float64{{-0.5, 0.5}, {0.5, 1.5}},
				Units:    "days since 1970-01-01 00:00",
				Calendar: "proleptic_gregorian", Kind: um2nc.Float64},
			{Name: "lat", StandardName: "latitude", Points: []float64{-45, 45},
				Bounds: [][2]float64{{-90, 0}, {0, 90}},
				Units:  "degrees_north", Kind: um2nc.Float64},
			{Name: "lon", StandardName: "longitude", Points: []float64{0, 120, 240},
				Units: "degrees_east", Kind: um2nc.Float64},
			{Name: "height", Points: []float64{1.5}, Units: "m", Kind: um2nc.Float64},
		},
		CellMethods: []um2nc.CellMethod{{Method: "mean", CoordNames: []string{"time"}}},
	}
}

func TestSinkRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.nc")
	sink, err := Create(path, NetCDF3Classic, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	sink.SetGlobalAttrs(map[string]string{
		"Conventions": "CF-1.6",
		"history":     "converted for testing",
	})
	if err := sink.Write(airTempField()); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cf, err := cdf.Open(f)
	if err != nil {
		t.Fatal(err)
	}

	if got := cf.Header.GetAttribute("", "Conventions").(string); got != "CF-1.6" {
		t.Errorf("Conventions = %q", got)
	}
	if got := cf.Header.Dimensions("tas"); !reflect.DeepEqual(got, []string{"time", "lat", "lon"}) {
		t.Errorf("tas dimensions = %v", got)
	}
	if !cf.Header.IsRecordVariable("tas") {
		t.Error("tas is not a record variable")
	}
	if got := cf.Header.GetAttribute("tas", "units").(string); got != "K" {
		t.Errorf("units = %q", got)
	}
	if got := cf.Header.GetAttribute("tas", "cell_methods").(string); got != "time: mean" {
		t.Errorf("cell_methods = %q", got)
	}
	if got := cf.Header.GetAttribute("tas", "coordinates").(string); got != "height" {
		t.Errorf("coordinates = %q", got)
	}
	if got := cf.Header.GetAttribute("tas", "_FillValue").([]float32); got[0] != 1e20 {
		t.Errorf("_FillValue = %v", got)
	}
	if got := cf.Header.GetAttribute("time", "bounds").(string); got != "time_bnds" {
		t.Errorf("time bounds attribute = %q", got)
	}

	// The missing element must come back as the fill value.
	r := cf.Reader("tas", []int{0, 0, 0}, []int{2, 2, 3})
	buf := make([]float32, 12)
	if _, err := r.Read(buf); err != nil {
		t.Fatal(err)
	}
	for i, v := range buf {
		switch i {
		case 5:
			if v != 1e20 {
				t.Errorf("element 5 = %g; want fill", v)
			}
		default:
			if v != float32(i) {
				t.Errorf("element %d = %g; want %d", i, v, i)
			}
		}
	}

	// Coordinate variables round trip as float64.
	lr := cf.Reader("lat", nil, nil)
	lbuf := make([]float64, 2)
	if _, err := lr.Read(lbuf); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(lbuf, []float64{-45, 45}) {
		t.Errorf("lat = %v", lbuf)
	}

	br := cf.Reader("lat_bnds", nil, nil)
	bbuf := make([]float64, 4)
	if _, err := br.Read(bbuf); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(bbuf, []float64{-90, 0, 0, 90}) {
		t.Errorf("lat_bnds = %v", bbuf)
	}
}

func TestSinkSharedDimensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.nc")
	sink, err := Create(path, NetCDF3Classic, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	a := airTempField()
	b := airTempField()
	b.VarName = "tas_max"
	b.CellMethods = []um2nc.CellMethod{{Method: "maximum", CoordNames: []string{"time"}}}
	if err := sink.Write(a); err != nil {
		t.Fatal(err)
	}
	if err := sink.Write(b); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cf, err := cdf.Open(f)
	if err != nil {
		t.Fatal(err)
	}
	// Both variables share one set of dimensions and coordinates.
	if got := cf.Header.Dimensions("tas_max"); !reflect.DeepEqual(got, []string{"time", "lat", "lon"}) {
		t.Errorf("tas_max dimensions = %v", got)
	}
	var nLat int
	for _, v := range cf.Header.Variables() {
		if v == "lat" {
			nLat++
		}
	}
	if nLat != 1 {
		t.Errorf("lat defined %d times", nLat)
	}
}

func TestSinkDimensionConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.nc")
	sink, err := Create(path, NetCDF3Classic, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	a := airTempField()
	b := airTempField()
	b.VarName = "ua"
	// Same dimension name, different length.
	b.Data = sparse.ZerosDense(2, 3, 3)
	b.Coords[1].Points = []float64{-60, 0, 60}
	b.Coords[1].Bounds = nil
	if err := sink.Write(a); err != nil {
		t.Fatal(err)
	}
	if err := sink.Write(b); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cf, err := cdf.Open(f)
	if err != nil {
		t.Fatal(err)
	}
	if got := cf.Header.Dimensions("ua"); !reflect.DeepEqual(got, []string{"time", "lat_2", "lon"}) {
		t.Errorf("ua dimensions = %v", got)
	}
	lr := cf.Reader("lat_2", nil, nil)
	lbuf := make([]float64, 3)
	if _, err := lr.Read(lbuf); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(lbuf, []float64{-60, 0, 60}) {
		t.Errorf("lat_2 = %v", lbuf)
	}
}

func TestSinkDuplicateVarNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.nc")
	sink, err := Create(path, NetCDF3Classic, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	a := airTempField()
	b := airTempField()
	if err := sink.Write(a); err != nil {
		t.Fatal(err)
	}
	if err := sink.Write(b); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cf, err := cdf.Open(f)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, v := range cf.Header.Variables() {
		if v == "tas" || v == "tas_1" {
			names = append(names, v)
		}
	}
	if !reflect.DeepEqual(names, []string{"tas", "tas_1"}) {
		t.Errorf("variables = %v", names)
	}
}

func TestSinkAbortRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.nc")
	sink, err := Create(path, NetCDF4, 4, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("output file not created eagerly: %v", err)
	}
	if err := sink.Write(airTempField()); err != nil {
		t.Fatal(err)
	}
	if err := sink.Abort(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("output file still exists after abort: %v", err)
	}
	// A second abort is harmless.
	if err := sink.Abort(); err != nil {
		t.Fatal(err)
	}
}

// An Int64 field keeps its 64-bit missing sentinel through the
// transform, but the classic formats store it as int; the sentinel
// must clamp to the int default rather than wrap.
func TestSinkInt64FillClampsToInt(t *testing.T) {
	data := sparse.ZerosDense(2)
	data.Elements[0] = 7
	data.Elements[1] = math.NaN()
	f := &um2nc.Field{
		Stash:     um2nc.StashCode{Section: 0, Item: 2},
		VarName:   "mln",
		LongName:  "Model level number",
		Units:     "1",
		Data:      data,
		Kind:      um2nc.Int64,
		FillValue: um2nc.FillValueFor(um2nc.Int64),
		Dims:      []string{"z"},
		Coords: []*um2nc.Coordinate{
			{Name: "z", Points: []float64{1, 2}, Units: "1", Kind: um2nc.Int32},
		},
	}

	path := filepath.Join(t.TempDir(), "out.nc")
	sink, err := Create(path, NetCDF3Classic, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.Write(f); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	of, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer of.Close()
	cf, err := cdf.Open(of)
	if err != nil {
		t.Fatal(err)
	}

	if got := cf.Header.GetAttribute("mln", "_FillValue").([]int32); got[0] != -2147483647 {
		t.Errorf("_FillValue = %v", got)
	}
	r := cf.Reader("mln", []int{0}, []int{2})
	buf := make([]int32, 2)
	if _, err := r.Read(buf); err != nil {
		t.Fatal(err)
	}
	if buf[0] != 7 || buf[1] != -2147483647 {
		t.Errorf("data = %v", buf)
	}
}

func TestSinkWriteValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.nc")
	sink, err := Create(path, NetCDF3Classic, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Abort()

	f := airTempField()
	f.Data = nil
	if err := sink.Write(f); err == nil {
		t.Error("no error for field without data")
	}

	f = airTempField()
	f.Dims = f.Dims[:2]
	if err := sink.Write(f); err == nil {
		t.Error("no error for dimension count mismatch")
	}
}
