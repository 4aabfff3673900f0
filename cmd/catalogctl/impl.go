package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/yungbote/pyplots-catalog/internal/catalog/header"
	"github.com/yungbote/pyplots-catalog/internal/catalog/layout"
	"github.com/yungbote/pyplots-catalog/internal/domain/catalog"
	"github.com/yungbote/pyplots-catalog/internal/pkg/pointers"
)

func implCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "impl",
		Aliases: []string{"implementation"},
		Short:   "Register, list and evaluate implementations",
	}
	cmd.AddCommand(implRegisterCmd(g), implListCmd(g), implMarkCmd(g))
	return cmd
}

func parseKeyArgs(args []string, variant string) (catalog.Key, error) {
	lib, ok := catalog.ParseLibraryID(args[1])
	if !ok {
		return catalog.Key{}, catalog.Errorf(catalog.CodeUnknownLibrary, "catalogctl", args[1], "library is not one of the supported libraries")
	}
	if variant == "" {
		variant = catalog.DefaultVariant
	}
	return catalog.Key{SpecID: args[0], LibraryID: lib, Variant: variant}, nil
}

func implRegisterCmd(g *globalFlags) *cobra.Command {
	var variant, filePath, plotFunction, python string
	var quality float64
	cmd := &cobra.Command{
		Use:   "register <spec-id> <library>",
		Short: "Register an implementation script; facts default to its header",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKeyArgs(args, variant)
			if err != nil {
				return err
			}
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if filePath == "" {
				filePath = layout.ScriptPath(key.SpecID, key.LibraryID, key.Variant)
			}
			impl := &catalog.Implementation{
				SpecID:        key.SpecID,
				LibraryID:     key.LibraryID,
				Variant:       key.Variant,
				FilePath:      filePath,
				PlotFunction:  plotFunction,
				PythonVersion: python,
			}
			if src, err := os.ReadFile(filepath.Join(a.Registry.Root(), filepath.FromSlash(filePath))); err == nil {
				if h, err := header.Parse(src); err == nil {
					if impl.PythonVersion == "" {
						impl.PythonVersion = h.PythonVersion
					}
					impl.QualityScore = h.Quality
				}
				if impl.PlotFunction == "" {
					impl.PlotFunction = header.PlotFunction(src)
				}
			}
			if cmd.Flags().Changed("quality") {
				impl.QualityScore = pointers.Ptr(quality)
			}
			if _, err := a.Registry.RegisterImplementation(cmd.Context(), impl); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s (%s)\n", impl.Key(), impl.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&variant, "variant", catalog.DefaultVariant, "variant name")
	cmd.Flags().StringVar(&filePath, "file", "", "script path relative to the catalog root")
	cmd.Flags().StringVar(&plotFunction, "plot-function", "", "entry function name")
	cmd.Flags().StringVar(&python, "python", "", "python version (default: from header)")
	cmd.Flags().Float64Var(&quality, "quality", 0, "quality score in [0, 100]")
	return cmd
}

func implListCmd(g *globalFlags) *cobra.Command {
	var specID, library string
	var tested bool
	var minQuality float64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List implementations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := catalog.ImplementationFilter{SpecID: specID, LibraryID: catalog.LibraryID(library)}
			if cmd.Flags().Changed("tested") {
				filter.Tested = pointers.Ptr(tested)
			}
			if cmd.Flags().Changed("min-quality") {
				filter.MinQuality = pointers.Ptr(minQuality)
			}
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "SPEC\tLIBRARY\tVARIANT\tTESTED\tQUALITY\tPYTHON\tFILE")
			for impl, err := range a.Registry.ListImplementations(cmd.Context(), filter) {
				if err != nil {
					return err
				}
				q := "-"
				if impl.QualityScore != nil {
					q = strconv.FormatFloat(*impl.QualityScore, 'f', -1, 64)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\t%s\n",
					impl.SpecID, impl.LibraryID, impl.Variant, impl.Tested, q, impl.PythonVersion, impl.FilePath)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&specID, "spec", "", "only this spec")
	cmd.Flags().StringVar(&library, "library", "", "only this library")
	cmd.Flags().BoolVar(&tested, "tested", false, "only tested (or, with =false, untested) implementations")
	cmd.Flags().Float64Var(&minQuality, "min-quality", 0, "minimum quality score")
	return cmd
}

func implMarkCmd(g *globalFlags) *cobra.Command {
	var variant string
	var tested bool
	var quality float64
	cmd := &cobra.Command{
		Use:   "mark <spec-id> <library>",
		Short: "Record an evaluation result (tested flag, quality score)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKeyArgs(args, variant)
			if err != nil {
				return err
			}
			var testedPtr *bool
			var qualityPtr *float64
			if cmd.Flags().Changed("tested") {
				testedPtr = pointers.Ptr(tested)
			}
			if cmd.Flags().Changed("quality") {
				qualityPtr = pointers.Ptr(quality)
			}
			if testedPtr == nil && qualityPtr == nil {
				return fmt.Errorf("nothing to record: pass --tested and/or --quality")
			}
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			impl, err := a.Registry.UpdateEvaluation(cmd.Context(), key, testedPtr, qualityPtr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s: tested=%t\n", impl.Key(), impl.Tested)
			return nil
		},
	}
	cmd.Flags().StringVar(&variant, "variant", catalog.DefaultVariant, "variant name")
	cmd.Flags().BoolVar(&tested, "tested", false, "mark as tested")
	cmd.Flags().Float64Var(&quality, "quality", 0, "quality score in [0, 100]")
	return cmd
}
