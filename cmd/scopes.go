package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newScopesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scopes",
		Short: "Print the WebPAC search scope table",
		Long: `Prints the search scopes offered by the catalog's search form. Paging list XML
links each title to the scope whose name matches the list's branch, ignoring
spaces and dots.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newCatalogClient(a.cfg.Catalog)
			scopes, err := client.FetchSearchScopes(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to fetch search scopes: %w", err)
			}

			names := make([]string, 0, len(scopes))
			for name := range scopes {
				names = append(names, name)
			}
			sort.Strings(names)

			out := cmd.OutOrStdout()
			for _, name := range names {
				fmt.Fprintf(out, "%s\t%s\n", scopes[name], name)
			}
			return nil
		},
	}
}
