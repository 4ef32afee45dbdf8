package cmd

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alloysearch/alloy/internal/output"
)

func newCompareCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "compare <query>",
		Short: "Compare fusion weight configurations side by side",
		Long: `Run one query under several fixed weight configurations, including
pure-vector and pure-keyword baselines, and show each ranked result set.
The backends are queried once; only the fusion weights vary.

Examples:
  alloy compare "apple stock performance"
  alloy compare "股票" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runCompare(cmd, query, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	return cmd
}

func runCompare(cmd *cobra.Command, query, format string) error {
	out := output.New(cmd.OutOrStdout())

	e, err := openEngine(projectDir)
	if err != nil {
		return err
	}
	defer e.close()

	methods, err := e.basic.CompareMethods(cmd.Context(), query)
	if err != nil {
		return err
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(methods)
	}

	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)

	out.Header("method comparison for " + query)
	for _, name := range names {
		result := methods[name]
		out.Newline()
		out.Linef("%s (%d results)", name, result.Count)
		for i, snippet := range result.Snippets {
			out.Linef("  %d. %s", i+1, snippet)
		}
	}
	return nil
}
