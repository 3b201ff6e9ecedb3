package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/macro-finder/internal/discovery"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find chain restaurants around a point and store them",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		lat, _ := cmd.Flags().GetFloat64("lat")
		lng, _ := cmd.Flags().GetFloat64("lng")
		radius, _ := cmd.Flags().GetFloat64("radius")
		brands, _ := cmd.Flags().GetStringSlice("brands")
		asJSON, _ := cmd.Flags().GetBool("json")

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Discovery.Discover(ctx, discovery.Request{
			Lat:       lat,
			Lng:       lng,
			RadiusKm:  radius,
			BrandKeys: splitList(brands),
		})
		if err != nil {
			return eris.Wrap(err, "discover")
		}

		if asJSON {
			return printJSON(os.Stdout, res)
		}

		if res.Count == 0 {
			fmt.Fprintln(os.Stderr, res.Message)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tLAT\tLNG\tCITY\tSOURCE")
		for _, p := range res.Places {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.Name, formatCoord(p.Lat), formatCoord(p.Lng), p.City, p.Source)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%d places via %s (broad=%t)\n", res.Count, res.Provider, res.Broad)
		return nil
	},
}

func formatCoord(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.5f", *v)
}

func init() {
	discoverCmd.Flags().Float64("lat", 0, "latitude of the search center (required)")
	discoverCmd.Flags().Float64("lng", 0, "longitude of the search center (required)")
	discoverCmd.Flags().Float64("radius", 0, "search radius in km (default from config)")
	discoverCmd.Flags().StringSlice("brands", nil, "brand keys to search for (default from config)")
	discoverCmd.Flags().Bool("json", false, "print JSON instead of a table")
	_ = discoverCmd.MarkFlagRequired("lat")
	_ = discoverCmd.MarkFlagRequired("lng")

	rootCmd.AddCommand(discoverCmd)
}
