package cmd

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// discoveryRow is one line of discover output.
type discoveryRow struct {
	CategoryID string   `json:"category_id"`
	Strategy   string   `json:"strategy,omitempty"`
	Fallback   bool     `json:"fallback,omitempty"`
	Count      int      `json:"count"`
	IDs        []string `json:"ids,omitempty"`
}

func newDiscoverCmd() *cobra.Command {
	var showIDs bool
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Resolves product ids per category without fetching products",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			results := appInstance.Discover(cmd.Context())
			rows := make([]discoveryRow, 0, len(results))
			for id, res := range results {
				row := discoveryRow{CategoryID: id, Strategy: res.Strategy, Fallback: res.Fallback, Count: len(res.IDs)}
				if showIDs {
					row.IDs = res.IDs
				}
				rows = append(rows, row)
			}
			sort.Slice(rows, func(i, j int) bool { return rows[i].CategoryID < rows[j].CategoryID })

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, row := range rows {
				if err := enc.Encode(row); err != nil {
					return fmt.Errorf("encode discovery result: %w", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showIDs, "ids", false, "include the resolved ids in the output")
	return cmd
}
