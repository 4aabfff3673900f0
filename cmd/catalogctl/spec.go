package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/datatypes"

	"github.com/yungbote/pyplots-catalog/internal/domain/catalog"
)

func specCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spec",
		Short: "Create, inspect and delete plot specifications",
	}
	cmd.AddCommand(specCreateCmd(g), specShowCmd(g), specListCmd(g), specDeleteCmd(g))
	return cmd
}

func specCreateCmd(g *globalFlags) *cobra.Command {
	var (
		title, description, dataReq, optional string
		tags                                  []string
	)
	cmd := &cobra.Command{
		Use:   "create <spec-id>",
		Short: "Create a spec",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			spec := &catalog.Spec{
				ID:               args[0],
				Title:            title,
				DataRequirements: datatypes.JSON([]byte(dataReq)),
			}
			if strings.TrimSpace(description) != "" {
				spec.Description = &description
			}
			if strings.TrimSpace(optional) != "" {
				spec.OptionalParams = datatypes.JSON([]byte(optional))
			}
			spec.SetTags(tags)
			if _, err := a.Registry.CreateSpec(cmd.Context(), spec); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created spec %s\n", spec.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "human-readable title")
	cmd.Flags().StringVar(&description, "description", "", "optional description")
	cmd.Flags().StringVar(&dataReq, "data", "", `data requirements as a JSON object, e.g. '{"x":"numeric","y":"numeric"}'`)
	cmd.Flags().StringVar(&optional, "params", "", "optional parameters as a JSON object")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func specShowCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <spec-id>",
		Short: "Print a spec as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			spec, err := a.Registry.GetSpec(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(spec)
		},
	}
}

func specListCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List specs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			specs, err := a.Registry.ListSpecs(cmd.Context())
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tTITLE\tTAGS")
			for _, s := range specs {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.Title, strings.Join(s.TagList(), ","))
			}
			return tw.Flush()
		},
	}
}

func specDeleteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <spec-id>",
		Short: "Delete a spec and its implementation rows (files are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Registry.DeleteSpec(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted spec %s and %d implementation rows\n", args[0], n)
			return nil
		},
	}
}
