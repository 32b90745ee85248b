package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/martinemde/stepagent/unifiedllm"
	"github.com/spf13/cobra"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models [provider]",
		Short: "List the built-in model catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := ""
			if len(args) == 1 {
				provider = strings.ToLower(args[0])
			}
			models := unifiedllm.ListModels(provider)
			if len(models) == 0 {
				return fmt.Errorf("no catalog entries for provider %q", provider)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tMODEL\tCONTEXT\tJSON\tNAME")
			for _, m := range models {
				fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\n", m.Provider, m.ID, m.ContextWindow, m.SupportsJSON, m.DisplayName)
			}
			return w.Flush()
		},
	}
}
