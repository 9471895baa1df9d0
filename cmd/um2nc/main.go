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

// Command um2nc converts Unified Model fieldsfiles to CF-conforming
// netCDF files.
package main

import (
	"fmt"
	"os"

	"github.com/umtools/um2nc/um2ncutil"
)

func main() {
	if err := um2ncutil.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
