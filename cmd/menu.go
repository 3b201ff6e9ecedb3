package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/macro-finder/internal/fetcher"
	"github.com/sells-group/macro-finder/internal/menu"
)

var importCmd = &cobra.Command{
	Use:   "import <brand-key> [brand-key...]",
	Short: "Import brand menus from the configured nutrition sources",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		asJSON, _ := cmd.Flags().GetBool("json")

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if !env.Importer.Configured() {
			return menu.ErrNotConfigured
		}

		var results []*menu.ImportResult
		var failed int
		for _, key := range args {
			res, err := env.Importer.Import(ctx, key)
			if err != nil {
				if ctx.Err() != nil {
					return eris.Wrap(err, "import")
				}
				fmt.Fprintf(os.Stderr, "%s: %v\n", key, err)
				failed++
				continue
			}
			results = append(results, res)
		}

		if asJSON {
			if err := printJSON(os.Stdout, results); err != nil {
				return err
			}
		} else {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "BRAND\tSOURCE\tINSERTED\tUPDATED\tRAW\tMATCHED\tNOTE")
			for _, r := range results {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
					r.Brand, r.Source, r.Inserted, r.Updated, r.TotalRaw, r.TotalMatched, r.Reason)
			}
			if err := w.Flush(); err != nil {
				return err
			}
		}

		if failed > 0 {
			return eris.Errorf("import: %d of %d brands failed", failed, len(args))
		}
		return nil
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file.csv|file.xlsx>",
	Short: "Upload curated menu items from a spreadsheet",
	Long:  "Reads brand, item_name, calories, protein_g and optional default_price and notes columns. Uploaded rows are stored as verified manual items.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		asJSON, _ := cmd.Flags().GetBool("json")

		recs, err := fetcher.ReadFile(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "upload")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := menu.NewUploader(st).UploadRecords(ctx, recs)
		if err != nil {
			return eris.Wrap(err, "upload")
		}

		if asJSON {
			return printJSON(os.Stdout, res)
		}

		fmt.Fprintf(os.Stderr, "inserted %d, updated %d, skipped %d\n", res.Inserted, res.Updated, res.Skipped)
		if len(res.Errors) == 0 {
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ITEM\tREASON")
		for _, e := range res.Errors {
			fmt.Fprintf(w, "%s\t%s\n", e.Item, e.Reason)
		}
		return w.Flush()
	},
}

func init() {
	importCmd.Flags().Bool("json", false, "print JSON instead of a table")
	uploadCmd.Flags().Bool("json", false, "print JSON instead of a summary")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(uploadCmd)
}
