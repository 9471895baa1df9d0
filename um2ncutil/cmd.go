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

// Package um2ncutil holds the command-line interface for the um2nc
// converter.
package um2ncutil

import (
	"fmt"
	"os"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/umtools/um2nc"
	"github.com/umtools/um2nc/ncout"
	"github.com/umtools/um2nc/umfile"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "input",
			usage: `
              input is the UM fieldsfile to convert. It may also be given
              as the first positional argument.`,
			shorthand:  "i",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "output",
			usage: `
              output is the netCDF file to write. It may also be given as
              the second positional argument. The default appends '.nc'
              to the input path, uniquified if that name already exists.`,
			shorthand:  "o",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "format",
			usage: `
              format selects the netCDF format: NETCDF4, NETCDF4_CLASSIC,
              NETCDF3_CLASSIC or NETCDF3_64BIT, or the aliases 1-4.`,
			shorthand:  "f",
			defaultVal: "NETCDF4",
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "compression",
			usage: `
              compression is the deflate level, 0 (none) to 9 (max).`,
			shorthand:  "c",
			defaultVal: 4,
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "64bit",
			usage: `
              64bit keeps 64 bit data kinds instead of narrowing them to
              32 bits.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "nohist",
			usage: `
              nohist skips writing the history global attribute.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "simple",
			usage: `
              simple names output variables 'fld_s01i123' style instead of
              using the stash table names.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "verbose",
			usage: `
              verbose enables debug logging.`,
			shorthand:  "v",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "nomask",
			usage: `
              nomask disables the heaviside masking of pressure level
              fields. Mutually exclusive with hcrit.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "hcrit",
			usage: `
              hcrit is the critical heaviside value for pressure level
              masking. Mutually exclusive with nomask.`,
			defaultVal: 0.5,
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "include",
			usage: `
              include lists the only stash item codes to convert.
              Mutually exclusive with exclude.`,
			defaultVal: []int{},
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
		{
			name: "exclude",
			usage: `
              exclude lists stash item codes to leave out.
              Mutually exclusive with include.`,
			defaultVal: []int{},
			flagsets:   []*pflag.FlagSet{Root.Flags()},
		},
	}

	Cfg = viper.New()
	Cfg.SetEnvPrefix("UM2NC")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case []int:
				if option.shorthand == "" {
					set.IntSlice(option.name, option.defaultVal.([]int), option.usage)
				} else {
					set.IntSliceP(option.name, option.shorthand, option.defaultVal.([]int), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}

	Root.AddCommand(versionCmd)
}

// Root is the main um2nc command.
var Root = &cobra.Command{
	Use:   "um2nc [flags] INFILE [OUTFILE]",
	Short: "Convert a UM fieldsfile to netCDF.",
	Long: `um2nc converts a Unified Model fieldsfile to a CF-conforming netCDF
file: stash-table naming, coordinate and cell-method repair, calendar
normalization and heaviside masking of pressure level fields.

Configuration can be given as command-line arguments or as environment
variables in the format 'UM2NC_var' where 'var' is the flag name.`,
	Args:              cobra.MaximumNArgs(2),
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConvert(cmd, args)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("um2nc v%s\n", um2nc.Version)
	},
	DisableAutoGenTag: true,
}

func runConvert(cmd *cobra.Command, args []string) error {
	log := logrus.New()
	log.Formatter = &logrus.TextFormatter{DisableTimestamp: true}
	if Cfg.GetBool("verbose") {
		log.Level = logrus.DebugLevel
	}

	inPath, outPath, err := resolvePaths(cmd, args)
	if err != nil {
		return err
	}
	if _, err := os.Stat(inPath); err != nil {
		return &um2nc.ConfigError{Detail: fmt.Sprintf("input file %s does not exist", inPath)}
	}

	if cmd.Flags().Changed("nomask") && cmd.Flags().Changed("hcrit") {
		return &um2nc.ConfigError{Detail: "nomask and hcrit are mutually exclusive"}
	}
	if cmd.Flags().Changed("include") && cmd.Flags().Changed("exclude") {
		return &um2nc.ConfigError{Detail: "include and exclude lists are mutually exclusive"}
	}

	format, err := ncout.ParseFormat(Cfg.GetString("format"))
	if err != nil {
		return err
	}
	compression := Cfg.GetInt("compression")
	if compression < 0 || compression > 9 {
		return &um2nc.ConfigError{Detail: fmt.Sprintf("compression level %d out of range 0-9", compression)}
	}

	hcrit := Cfg.GetFloat64("hcrit")
	opts := um2nc.Options{
		InputPath: inPath,
		NoHist:    Cfg.GetBool("nohist"),
		Simple:    Cfg.GetBool("simple"),
		Use64Bit:  Cfg.GetBool("64bit"),
		NoMask:    Cfg.GetBool("nomask"),
		HCrit:     &hcrit,
		Log:       log,
	}
	if cmd.Flags().Changed("include") {
		opts.Include = cast.ToIntSlice(Cfg.Get("include"))
	}
	if cmd.Flags().Changed("exclude") {
		opts.Exclude = cast.ToIntSlice(Cfg.Get("exclude"))
	}

	in, err := umfile.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	sink, err := ncout.Create(outPath, format, compression, log)
	if err != nil {
		return err
	}

	res, err := um2nc.Convert(in, sink, opts)
	if err != nil {
		return err
	}
	log.Infof("wrote %d variables to %s", res.Written(), outPath)
	return nil
}

// resolvePaths works out the input and output file paths from the
// optional flags and positional arguments.
func resolvePaths(cmd *cobra.Command, args []string) (inPath, outPath string, err error) {
	inFlag := Cfg.GetString("input")
	outFlag := Cfg.GetString("output")

	switch {
	case inFlag != "" && len(args) > 1:
		return "", "", &um2nc.ConfigError{Detail: "too many input files"}
	case inFlag != "" && len(args) == 1:
		// The positional argument becomes the output.
		inPath = inFlag
		if outFlag != "" {
			return "", "", &um2nc.ConfigError{Detail: "too many output files"}
		}
		outPath = args[0]
	case inFlag != "":
		inPath = inFlag
	case len(args) > 0:
		inPath = args[0]
	default:
		return "", "", &um2nc.ConfigError{Detail: "an input file is required"}
	}

	if outPath == "" {
		switch {
		case outFlag != "" && len(args) > 1:
			return "", "", &um2nc.ConfigError{Detail: "too many output files"}
		case outFlag != "":
			outPath = outFlag
		case len(args) > 1:
			outPath = args[1]
		default:
			outPath = uniquePath(inPath + ".nc")
		}
	}
	return inPath, outPath, nil
}

// uniquePath appends a numeric suffix until the path names a file that
// does not exist yet.
func uniquePath(p string) string {
	if _, err := os.Stat(p); os.IsNotExist(err) {
		return p
	}
	for i := 1; ; i++ {
		cand := fmt.Sprintf("%s.%d", p, i)
		if _, err := os.Stat(cand); os.IsNotExist(err) {
			return cand
		}
	}
}
