package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		fmt.Fprintf(os.Stderr, "schema up to date (%s)\n", cfg.Store.Driver)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show row counts for brands, places, menu items and price reports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		counts, err := st.Counts(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return printJSON(os.Stdout, map[string]any{
				"counts":    counts,
				"timestamp": time.Now().UTC(),
			})
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TABLE\tROWS")
		fmt.Fprintf(w, "brands\t%d\n", counts.Brands)
		fmt.Fprintf(w, "places\t%d\n", counts.Places)
		fmt.Fprintf(w, "menu_items\t%d\n", counts.MenuItems)
		fmt.Fprintf(w, "price_reports\t%d\n", counts.PriceReports)
		return w.Flush()
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "print JSON instead of a table")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statusCmd)
}
