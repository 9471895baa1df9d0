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

import "strings"

// SanitizeCellMethods returns a copy of methods with every interval
// descriptor mentioning hour units removed. The model's hour intervals
// are not reliable, so they are better dropped than propagated. Order
// of methods and of the surviving intervals is preserved.
func SanitizeCellMethods(methods []CellMethod) []CellMethod {
	if methods == nil {
		return nil
	}
	out := make([]CellMethod, 0, len(methods))
	for _, m := range methods {
		var intervals []string
		for _, iv := range m.Intervals {
			if strings.Contains(iv, "hour") {
				continue
			}
			intervals = append(intervals, iv)
		}
		out = append(out, CellMethod{
			Method:     m.Method,
			CoordNames: append([]string(nil), m.CoordNames...),
			Intervals:  intervals,
			Comments:   append([]string(nil), m.Comments...),
		})
	}
	return out
}
