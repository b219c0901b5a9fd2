package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"caseledger/internal/catalog"
)

// NewCatalogCommand creates the catalog command, which compiles CUE
// resource type and policy definitions and reports what they declare.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Compile CUE catalog definitions",
		Long:  "Compile resource type and policy definitions from a directory of CUE files and report the result.",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}

			defs, errs := catalog.LoadDefinitions(dir)
			if len(errs) > 0 {
				details := make([]string, 0, len(errs))
				for _, err := range errs {
					details = append(details, err.Error())
				}
				formatter.Error("catalog compilation failed", details)
				return NewExitError(ExitCommandError, fmt.Sprintf("%d definition error(s)", len(errs)))
			}

			names := make([]string, 0, len(defs.ResourceTypes))
			for name := range defs.ResourceTypes {
				names = append(names, name)
			}
			sort.Strings(names)

			summary := catalogSummary{
				ResourceTypes: names,
				PolicyCount:   len(defs.Policies),
			}
			if rootOpts.Format == "json" {
				return formatter.Success(summary)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Compiled %d resource type(s), %d policy(ies)\n", len(names), len(defs.Policies))
			for _, name := range names {
				rt := defs.ResourceTypes[name]
				fmt.Fprintf(cmd.OutOrStdout(), "  %s (%s, unit %s)\n", name, rt.Category, rt.Unit)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "directory of CUE definition files")
	cmd.MarkFlagRequired("dir")
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	return cmd
}

type catalogSummary struct {
	ResourceTypes []string `json:"resource_types"`
	PolicyCount   int      `json:"policy_count"`
}
