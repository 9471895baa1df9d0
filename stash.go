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

// A StashEntry is the canonical metadata for one stash item code.
// Empty strings mean the table has no value for that attribute.
type StashEntry struct {
	UniqueName   string
	StandardName string
	LongName     string
	Units        string
}

// A MetadataResolver maps a stash item code (1000*section + item) to
// canonical variable metadata. Unknown codes resolve to the zero entry.
type MetadataResolver interface {
	Resolve(itemCode int) StashEntry
}

// A StashTable is a MetadataResolver backed by a map.
type StashTable map[int]StashEntry

// Resolve implements MetadataResolver.
func (t StashTable) Resolve(itemCode int) StashEntry { return t[itemCode] }

// DefaultStash covers the diagnostics commonly requested from
// climate-length runs, including the section 30 pressure-level set and
// both heaviside masks. It is deliberately not a transcription of the
// full STASHmaster; unknown codes fall back to simple naming.
var DefaultStash = StashTable{
	24:    {UniqueName: "ts", StandardName: "surface_temperature", LongName: "Surface temperature", Units: "K"},
	409:   {UniqueName: "ps", StandardName: "surface_air_pressure", LongName: "Surface pressure", Units: "Pa"},
	1235:  {UniqueName: "rsds", StandardName: "surface_downwelling_shortwave_flux_in_air", LongName: "Surface downwelling shortwave radiation", Units: "W m-2"},
	2207:  {UniqueName: "rlds", StandardName: "surface_downwelling_longwave_flux_in_air", LongName: "Surface downwelling longwave radiation", Units: "W m-2"},
	3209:  {UniqueName: "uas", StandardName: "eastward_wind", LongName: "Eastward wind at 10m", Units: "m s-1"},
	3210:  {UniqueName: "vas", StandardName: "northward_wind", LongName: "Northward wind at 10m", Units: "m s-1"},
	3217:  {UniqueName: "hfss", StandardName: "surface_upward_sensible_heat_flux", LongName: "Surface sensible heat flux", Units: "W m-2"},
	3234:  {UniqueName: "hfls", StandardName: "surface_upward_latent_heat_flux", LongName: "Surface latent heat flux", Units: "W m-2"},
	3236:  {UniqueName: "tas", StandardName: "air_temperature", LongName: "Air temperature at 1.5m", Units: "K"},
	3245:  {UniqueName: "hurs", StandardName: "relative_humidity", LongName: "Relative humidity at 1.5m", Units: "%"},
	5216:  {UniqueName: "pr", StandardName: "precipitation_flux", LongName: "Precipitation flux", Units: "kg m-2 s-1"},
	8223:  {UniqueName: "mrsos", LongName: "Soil moisture content in a layer", Units: "kg m-2"},
	16222: {UniqueName: "psl", StandardName: "air_pressure_at_sea_level", LongName: "Pressure at mean sea level", Units: "Pa"},
	30201: {UniqueName: "ua", StandardName: "eastward_wind", LongName: "Eastward wind on pressure levels", Units: "m s-1"},
	30202: {UniqueName: "va", StandardName: "northward_wind", LongName: "Northward wind on pressure levels", Units: "m s-1"},
	30203: {UniqueName: "wa", StandardName: "upward_air_velocity", LongName: "Vertical wind on pressure levels", Units: "m s-1"},
	30204: {UniqueName: "ta", StandardName: "air_temperature", LongName: "Air temperature on pressure levels", Units: "K"},
	30205: {UniqueName: "hus", StandardName: "specific_humidity", LongName: "Specific humidity on pressure levels", Units: "1"},
	30206: {UniqueName: "hur", StandardName: "relative_humidity", LongName: "Relative humidity on pressure levels", Units: "%"},
	30207: {UniqueName: "zg", StandardName: "geopotential_height", LongName: "Geopotential height on pressure levels", Units: "m"},
	30208: {UniqueName: "wap", StandardName: "lagrangian_tendency_of_air_pressure", LongName: "Pressure vertical velocity", Units: "Pa s-1"},
	30294: {UniqueName: "ta_t", StandardName: "air_temperature", LongName: "Air temperature on temperature-grid pressure levels", Units: "K"},
	30301: {UniqueName: "heaviside_uv", LongName: "Heaviside function on pressure levels (UV grid)", Units: "1"},
	30304: {UniqueName: "heaviside_t", LongName: "Heaviside function on pressure levels (T grid)", Units: "1"},
}
