package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/macro-finder/internal/geo"
	"github.com/sells-group/macro-finder/internal/model"
	"github.com/sells-group/macro-finder/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Discover places and import menus across US metros",
	Long:  "Runs a seed job in the foreground. Each metro is discovered in turn and its stale brands imported; progress is recorded and visible with 'seed status'.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		metros, _ := cmd.Flags().GetStringArray("metro")
		topMetros, _ := cmd.Flags().GetInt("top-metros")
		radius, _ := cmd.Flags().GetFloat64("radius")
		topBrands, _ := cmd.Flags().GetInt("top-brands")
		asJSON, _ := cmd.Flags().GetBool("json")

		if len(metros) == 0 && topMetros > 0 {
			for _, m := range geo.TopMetros(topMetros) {
				metros = append(metros, m.Name)
			}
		}

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		job, err := env.Seeds.Run(ctx, seed.Request{
			Metros:    metros,
			RadiusKm:  radius,
			TopBrands: topBrands,
		})
		if job != nil {
			if asJSON {
				if perr := printJSON(os.Stdout, job); perr != nil {
					return perr
				}
			} else if werr := writeSeedJob(job); werr != nil {
				return werr
			}
		}
		if err != nil {
			return eris.Wrap(err, "seed")
		}
		return nil
	},
}

var seedStatusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Show one seed job or list recent jobs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if len(args) == 1 {
			job, err := st.GetSeedJob(ctx, args[0])
			if err != nil {
				return eris.Wrapf(err, "seed status %s", args[0])
			}
			if asJSON {
				return printJSON(os.Stdout, job)
			}
			return writeSeedJob(job)
		}

		jobs, err := st.ListSeedJobs(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "seed status")
		}
		if asJSON {
			return printJSON(os.Stdout, jobs)
		}
		if len(jobs) == 0 {
			fmt.Fprintln(os.Stderr, "no seed jobs recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tPROGRESS\tOK\tFAILED\tCREATED")
		for _, j := range jobs {
			fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d\t%d\t%s\n",
				j.ID, j.Status, j.Processed, j.Total, j.Succeeded, j.Failed, j.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var seedMetrosCmd = &cobra.Command{
	Use:   "metros",
	Short: "List the built-in metros in seeding order",
	RunE: func(cmd *cobra.Command, _ []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tMETRO\tLAT\tLNG\tPOPULATION")
		for i, m := range geo.Metros {
			fmt.Fprintf(w, "%d\t%s\t%.4f\t%.4f\t%d\n", i+1, m.Name, m.Lat, m.Lng, m.Population)
		}
		return w.Flush()
	},
}

func writeSeedJob(job *model.SeedJob) error {
	fmt.Fprintf(os.Stderr, "job %s %s: %d/%d metros, %d ok, %d failed\n",
		job.ID, job.Status, job.Processed, job.Total, job.Succeeded, job.Failed)
	if job.Error != "" {
		fmt.Fprintf(os.Stderr, "error: %s\n", job.Error)
	}
	if len(job.Results) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METRO\tOK\tPLACES\tIMPORTED\tERROR")
	for _, r := range job.Results {
		fmt.Fprintf(w, "%s\t%t\t%d\t%d\t%s\n", r.Metro, r.Success, r.Places, r.BrandsImported, r.Error)
	}
	return w.Flush()
}

func init() {
	seedCmd.Flags().StringArray("metro", nil, `metro to seed, e.g. "Austin, TX" (repeatable; default all)`)
	seedCmd.Flags().Int("top-metros", 0, "seed the N most populous metros")
	seedCmd.Flags().Float64("radius", 0, "discovery radius per metro in km (default from config)")
	seedCmd.Flags().Int("top-brands", 0, "brands to import per metro (default from config)")
	seedCmd.Flags().Bool("json", false, "print JSON instead of a table")

	seedStatusCmd.Flags().Int("limit", 20, "max number of jobs to list")
	seedStatusCmd.Flags().Bool("json", false, "print JSON instead of a table")

	seedCmd.AddCommand(seedStatusCmd)
	seedCmd.AddCommand(seedMetrosCmd)
	rootCmd.AddCommand(seedCmd)
}
