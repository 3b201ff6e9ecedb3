package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var brandsCmd = &cobra.Command{
	Use:   "brands",
	Short: "List stored brands and when their menus were last imported",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		brands, err := st.ListBrands(ctx)
		if err != nil {
			return eris.Wrap(err, "list brands")
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			return printJSON(os.Stdout, brands)
		}

		if len(brands) == 0 {
			fmt.Fprintln(os.Stderr, "no brands stored; run discover first")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tNAME\tLAST IMPORTED")
		for _, b := range brands {
			imported := "never"
			if b.LastImportedAt != nil {
				imported = b.LastImportedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", b.Key, b.DisplayName, imported)
		}
		return w.Flush()
	},
}

func init() {
	brandsCmd.Flags().Bool("json", false, "print JSON instead of a table")
	rootCmd.AddCommand(brandsCmd)
}
