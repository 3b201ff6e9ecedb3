package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sells-group/macro-finder/internal/model"
	"github.com/sells-group/macro-finder/internal/rank"
	"github.com/sells-group/macro-finder/internal/refresh"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Rank menu items near a point for a macro goal",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		req, err := searchRequestFromFlags(cmd.Flags())
		if err != nil {
			return err
		}
		doRefresh, _ := cmd.Flags().GetBool("refresh")
		asJSON, _ := cmd.Flags().GetBool("json")

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if doRefresh {
			if req.Lat == nil {
				return model.Invalid("lat", "--refresh needs --lat and --lng")
			}
			res, err := env.Refresher.Refresh(ctx, refresh.Request{
				Lat:           *req.Lat,
				Lng:           *req.Lng,
				RadiusKm:      req.RadiusKm,
				IncludeBrands: req.IncludeBrands,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "refresh failed: %v\n", err)
			} else {
				fmt.Fprintf(os.Stderr, "refresh: %d places, %d of %d brands imported\n",
					res.DiscoveredCount, res.BrandsImported, res.BrandsNeedingImport)
			}
		}

		resp, err := env.Ranker.Rank(ctx, req)
		if err != nil {
			return eris.Wrap(err, "search")
		}

		if asJSON {
			return printJSON(os.Stdout, resp)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tBRAND\tITEM\tKCAL\tPROTEIN\tPRICE\tKM\tSCORE")
		for _, r := range resp.Results {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\t%s\t%.4f\n",
				r.Rank, r.BrandKey, r.ItemName, r.Calories, r.ProteinG, formatPrice(r.Price), formatKm(r.DistanceKm), r.Score)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if d := resp.Debug; d != nil {
			fmt.Fprintf(os.Stderr, "considered %d, matched %d; store has %d brands, %d places, %d items (coverage %s %s)\n",
				d.Considered, d.Matched, d.BrandCount, d.PlaceCount, d.ItemCount, d.Coverage, d.SeededArea)
		}
		return nil
	},
}

// searchRequestFromFlags builds a ranking request. Optional numeric fields
// are only set when their flag was given.
func searchRequestFromFlags(fs *pflag.FlagSet) (rank.Request, error) {
	var req rank.Request

	mode, _ := fs.GetString("mode")
	req.Mode = rank.Mode(mode)
	req.WP, _ = fs.GetFloat64("wp")
	req.WC, _ = fs.GetFloat64("wc")
	req.WR, _ = fs.GetFloat64("wr")
	req.RadiusKm, _ = fs.GetFloat64("radius")
	req.Limit, _ = fs.GetInt("limit")
	req.Debug, _ = fs.GetBool("debug")

	include, _ := fs.GetStringSlice("include")
	exclude, _ := fs.GetStringSlice("exclude")
	req.IncludeBrands = splitList(include)
	req.ExcludeBrands = splitList(exclude)

	if fs.Changed("lat") || fs.Changed("lng") {
		lat, _ := fs.GetFloat64("lat")
		lng, _ := fs.GetFloat64("lng")
		req.Lat, req.Lng = &lat, &lng
		if !fs.Changed("lat") || !fs.Changed("lng") {
			return req, model.Invalid("lat", "lat and lng must be given together")
		}
	}
	if fs.Changed("protein") {
		v, _ := fs.GetInt("protein")
		req.TargetProtein = &v
	}
	if fs.Changed("calories") {
		v, _ := fs.GetInt("calories")
		req.TargetCalories = &v
	}
	if fs.Changed("price-cap") {
		v, _ := fs.GetFloat64("price-cap")
		req.PriceCap = &v
	}
	if fs.Changed("min-protein") {
		v, _ := fs.GetInt("min-protein")
		req.MinProtein = &v
	}
	return req, req.Validate()
}

var priceCmd = &cobra.Command{
	Use:   "price <place-id> <item-id> <price>",
	Short: "Record the observed price of an item at a place",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		price, err := parsePriceArg(args[2])
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		report, err := st.SetPrice(ctx, args[0], args[1], price)
		if err != nil {
			return eris.Wrap(err, "set price")
		}
		return printJSON(os.Stdout, report)
	},
}

func parsePriceArg(s string) (float64, error) {
	price, err := strconv.ParseFloat(strings.TrimPrefix(s, "$"), 64)
	if err != nil {
		return 0, model.Invalid("price", "not a number: %q", s)
	}
	if err := model.ValidatePrice("price", price); err != nil {
		return 0, err
	}
	return price, nil
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Discover places around a point and import stale menus",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		lat, _ := cmd.Flags().GetFloat64("lat")
		lng, _ := cmd.Flags().GetFloat64("lng")
		radius, _ := cmd.Flags().GetFloat64("radius")
		include, _ := cmd.Flags().GetStringSlice("include")
		asJSON, _ := cmd.Flags().GetBool("json")

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Refresher.Refresh(ctx, refresh.Request{
			Lat:           lat,
			Lng:           lng,
			RadiusKm:      radius,
			IncludeBrands: splitList(include),
		})
		if err != nil {
			return eris.Wrap(err, "refresh")
		}

		if asJSON {
			return printJSON(os.Stdout, res)
		}

		if res.Message != "" {
			fmt.Fprintln(os.Stderr, res.Message)
		}
		fmt.Fprintf(os.Stderr, "%d places, %d brands, %d needed import, %d imported in %dms\n",
			res.DiscoveredCount, res.UniqueBrands, res.BrandsNeedingImport, res.BrandsImported, res.DurationMs)
		if len(res.ImportResults) == 0 {
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "BRAND\tOK\tINSERTED\tUPDATED\tERROR")
		for _, o := range res.ImportResults {
			fmt.Fprintf(w, "%s\t%t\t%d\t%d\t%s\n", o.Brand, o.Success, o.Inserted, o.Updated, o.Error)
		}
		return w.Flush()
	},
}

func addSearchFlags(f *pflag.FlagSet) {
	f.String("mode", string(rank.Bulking), "scoring mode: bulking or cutting")
	f.Int("protein", 0, "target protein in grams")
	f.Int("calories", 0, "target calories")
	f.Float64("wp", 1, "protein weight (0-5)")
	f.Float64("wc", 1, "calorie weight (0-5)")
	f.Float64("wr", 1, "price weight (0-5)")
	f.Float64("lat", 0, "latitude of the search center")
	f.Float64("lng", 0, "longitude of the search center")
	f.Float64("radius", rank.DefaultRadiusKm, "search radius in km")
	f.Float64("price-cap", 0, "maximum effective price")
	f.Int("min-protein", 0, "minimum protein in grams")
	f.StringSlice("include", nil, "only these brand keys")
	f.StringSlice("exclude", nil, "skip these brand keys")
	f.Int("limit", rank.DefaultLimit, "maximum results")
	f.Bool("debug", false, "report candidate counts and coverage")
}

func init() {
	addSearchFlags(searchCmd.Flags())
	searchCmd.Flags().Bool("refresh", false, "discover and import stale menus before ranking")
	searchCmd.Flags().Bool("json", false, "print JSON instead of a table")

	refreshCmd.Flags().Float64("lat", 0, "latitude of the search center (required)")
	refreshCmd.Flags().Float64("lng", 0, "longitude of the search center (required)")
	refreshCmd.Flags().Float64("radius", 0, "search radius in km")
	refreshCmd.Flags().StringSlice("include", nil, "only refresh these brand keys")
	refreshCmd.Flags().Bool("json", false, "print JSON instead of a table")
	_ = refreshCmd.MarkFlagRequired("lat")
	_ = refreshCmd.MarkFlagRequired("lng")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(priceCmd)
	rootCmd.AddCommand(refreshCmd)
}
