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
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// Format selects the requested output file format. The classic codec
// used here writes NETCDF3; the NETCDF4 selections are accepted and
// fall back to the classic on-disk layout.
type Format int

const (
	NetCDF4 Format = iota + 1
	NetCDF4Classic
	NetCDF3Classic
	NetCDF364Bit
)

var formatNames = map[Format]string{
	NetCDF4:        "NETCDF4",
	NetCDF4Classic: "NETCDF4_CLASSIC",
	NetCDF3Classic: "NETCDF3_CLASSIC",
	NetCDF364Bit:   "NETCDF3_64BIT",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("<format %d>", int(f))
}

// ParseFormat accepts a format either by name or by its 1-4 integer
// alias.
func ParseFormat(s string) (Format, error) {
	if n, err := cast.ToIntE(s); err == nil {
		f := Format(n)
		if _, ok := formatNames[f]; !ok {
			return 0, fmt.Errorf("ncout: invalid format alias %d (valid: 1-4)", n)
		}
		return f, nil
	}
	for f, name := range formatNames {
		if strings.EqualFold(s, name) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("ncout: unknown format %q", s)
}
