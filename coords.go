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
)

// GridContext holds per-file grid information read once at the start of
// a conversion and shared read-only by every per-field transform.
type GridContext struct {
	// GridType is the horizontal staggering layout, "EG" or "ND".
	GridType string
	// ZRho and ZTheta are the reference heights of the rho and theta
	// vertical level families. Absent values are treated as zero.
	ZRho   []float64
	ZTheta []float64
}

const levelHeightTolerance = 1e-6

// approx reports whether a and b agree to within single-spacing
// floating point tolerance, scaled like numpy's allclose.
func approx(a, b float64) bool {
	return math.Abs(a-b) <= 1e-8+1e-5*math.Abs(b)
}

// guessBounds derives contiguous bounds from point spacing. It is only
// defined for coordinates with more than one point.
func guessBounds(c *Coordinate) {
	n := len(c.Points)
	c.Bounds = make([][2]float64, n)
	for i := 0; i < n; i++ {
		var lo, hi float64
		switch i {
		case 0:
			lo = c.Points[0] - (c.Points[1]-c.Points[0])/2
		default:
			lo = (c.Points[i-1] + c.Points[i]) / 2
		}
		switch i {
		case n - 1:
			hi = c.Points[n-1] + (c.Points[n-1]-c.Points[n-2])/2
		default:
			hi = (c.Points[i] + c.Points[i+1]) / 2
		}
		c.Bounds[i] = [2]float64{lo, hi}
	}
}

// fixHorizontalCoord forces points to double precision and fills in
// missing bounds. A single-point coordinate is assumed global, since
// spacing-based inference needs at least two points.
func fixHorizontalCoord(c *Coordinate, globalLo, globalHi float64) {
	c.Kind = Float64
	if c.HasBounds() {
		return
	}
	if len(c.Points) > 1 {
		guessBounds(c)
	} else {
		c.Bounds = [][2]float64{{globalLo, globalHi}}
	}
}

// FixLatLonCoords repairs the latitude and longitude coordinates of f:
// double precision points, derived or global bounds, and output names
// disambiguated from the point count, first point and grid staggering.
// A field without both horizontal coordinates has a layout this
// converter does not handle, which aborts the whole file.
func FixLatLonCoords(f *Field, grid *GridContext) error {
	lat := f.Coord("latitude")
	lon := f.Coord("longitude")
	if lat == nil || lon == nil {
		return &UnsupportedLayoutError{Detail: "field " + f.Name() + " has no latitude/longitude coordinates"}
	}

	fixHorizontalCoord(lat, -90, 90)
	fixHorizontalCoord(lon, 0, 360)

	latName := "lat"
	switch {
	case len(lat.Points) == 180:
		latName = "lat_river"
	case grid.GridType == "EG" && lat.Points[0] == -90:
		latName = "lat_v"
	case grid.GridType == "ND" && len(lat.Points) > 1 &&
		approx(lat.Points[0], -90+math.Abs((lat.Points[1]-lat.Points[0])/2)):
		latName = "lat_v"
	}

	lonName := "lon"
	switch {
	case len(lon.Points) == 360:
		lonName = "lon_river"
	case grid.GridType == "EG" && lon.Points[0] == 0:
		lonName = "lon_u"
	case grid.GridType == "ND" && len(lon.Points) > 1 &&
		approx(lon.Points[0], math.Abs((lon.Points[1]-lon.Points[0])/2)):
		lonName = "lon_u"
	}

	f.RenameCoord("latitude", latName)
	f.RenameCoord("longitude", lonName)
	return nil
}

// FixLevelCoords renames the model-level coordinate triple to
// distinguish rho from theta levels, by comparing the first level
// height against the reference heights of each family. A field without
// the full triple is left unchanged, as is one matching neither family
// within tolerance.
func FixLevelCoords(f *Field, grid *GridContext) {
	lev := f.Coord("model_level_number")
	height := f.Coord("level_height")
	sigma := f.Coord("sigma")
	if lev == nil || height == nil || sigma == nil {
		return
	}
	if matchesLevelFamily(height.Points[0], grid.ZRho) {
		f.RenameCoord("model_level_number", "model_rho_level_number")
		f.RenameCoord("level_height", "rho_level_height")
		f.RenameCoord("sigma", "sigma_rho")
	} else if matchesLevelFamily(height.Points[0], grid.ZTheta) {
		f.RenameCoord("model_level_number", "model_theta_level_number")
		f.RenameCoord("level_height", "theta_level_height")
		f.RenameCoord("sigma", "sigma_theta")
	}
}

func matchesLevelFamily(h float64, family []float64) bool {
	for _, z := range family {
		if math.Abs(h-z) < levelHeightTolerance {
			return true
		}
	}
	return false
}

// FixPressureCoord normalizes a pressure coordinate: marks it
// positive-down, converts hPa to Pa, rounds points so converted values
// don't show 1e-10 residues in dumps, and reverses the axis so
// pressure decreases along it. A field without a pressure coordinate
// is left unchanged.
func FixPressureCoord(f *Field) {
	p := f.Coord("pressure")
	if p == nil {
		return
	}
	p.Positive = "down"
	if p.Units == "hPa" {
		for i := range p.Points {
			p.Points[i] *= 100
		}
		for i := range p.Bounds {
			p.Bounds[i][0] *= 100
			p.Bounds[i][1] *= 100
		}
		p.Units = "Pa"
	}
	for i := range p.Points {
		p.Points[i] = math.Round(p.Points[i]*1e5) / 1e5
	}
	n := len(p.Points)
	if n > 1 && p.Points[0] < p.Points[n-1] {
		reverseCoord(p)
		if axis := f.DimIndex(p.Name); axis >= 0 {
			f.ReverseDim(axis)
		}
	}
}

func reverseCoord(c *Coordinate) {
	for i, j := 0, len(c.Points)-1; i < j; i, j = i+1, j-1 {
		c.Points[i], c.Points[j] = c.Points[j], c.Points[i]
	}
	for i, j := 0, len(c.Bounds)-1; i < j; i, j = i+1, j-1 {
		c.Bounds[i], c.Bounds[j] = c.Bounds[j], c.Bounds[i]
	}
}
