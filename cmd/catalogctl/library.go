package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yungbote/pyplots-catalog/internal/domain/catalog"
)

func libraryCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "library",
		Aliases: []string{"lib"},
		Short:   "Inspect and update library rows",
	}
	cmd.AddCommand(libraryListCmd(g), librarySetCmd(g))
	return cmd
}

func libraryListCmd(g *globalFlags) *cobra.Command {
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List libraries and their recorded versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			libs, err := a.Registry.ListLibraries(cmd.Context(), activeOnly)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tNAME\tVERSION\tACTIVE\tDOCS")
			for _, l := range libs {
				docs := ""
				if l.DocumentationURL != nil {
					docs = *l.DocumentationURL
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", l.ID, l.Name, l.Version, l.Active, docs)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only active libraries")
	return cmd
}

func librarySetCmd(g *globalFlags) *cobra.Command {
	var name, version, docs string
	var active bool
	cmd := &cobra.Command{
		Use:   "set <library>",
		Short: "Insert or update a library row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			lib := &catalog.Library{
				ID:      catalog.LibraryID(strings.ToLower(strings.TrimSpace(args[0]))),
				Name:    name,
				Version: version,
				Active:  active,
			}
			if docs != "" {
				lib.DocumentationURL = &docs
			}
			out, err := a.Registry.UpsertLibrary(cmd.Context(), lib)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "library %s: version %s, active=%t\n", out.ID, out.Version, out.Active)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name (default: canonical name)")
	cmd.Flags().StringVar(&version, "version", "", "installed version (default: unknown)")
	cmd.Flags().StringVar(&docs, "docs", "", "documentation URL")
	cmd.Flags().BoolVar(&active, "active", true, "whether the library is active")
	return cmd
}
