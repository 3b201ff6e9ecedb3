package rank

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/macro-finder/internal/brand"
	"github.com/sells-group/macro-finder/internal/geo"
	"github.com/sells-group/macro-finder/internal/model"
	"github.com/sells-group/macro-finder/internal/store"
)

const (
	// DefaultRadiusKm applies when a point is given without a radius.
	DefaultRadiusKm = 8.0
	// DefaultLimit applies when a request omits its limit.
	DefaultLimit = 30
	// MaxLimit bounds the number of returned rows.
	MaxLimit = 500
)

// Store reads ranking candidates and, for debug output, table totals.
type Store interface {
	Candidates(ctx context.Context, f store.CandidateFilter) ([]model.Candidate, error)
	Counts(ctx context.Context) (*model.StoreCounts, error)
}

// Request is a ranking call. Lat and Lng must be given together.
type Request struct {
	Mode           Mode     `json:"mode,omitempty"`
	TargetProtein  *int     `json:"targetProtein,omitempty"`
	TargetCalories *int     `json:"targetCalories,omitempty"`
	WP             float64  `json:"wP"`
	WC             float64  `json:"wC"`
	WR             float64  `json:"wR"`
	Lat            *float64 `json:"lat,omitempty"`
	Lng            *float64 `json:"lng,omitempty"`
	RadiusKm       float64  `json:"radiusKm,omitempty"`
	PriceCap       *float64 `json:"priceCap,omitempty"`
	MinProtein     *int     `json:"minProtein,omitempty"`
	IncludeBrands  []string `json:"includeBrands,omitempty"`
	ExcludeBrands  []string `json:"excludeBrands,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	Debug          bool     `json:"debug,omitempty"`
}

// Debug reports raw store totals alongside how many candidate rows the
// ranking read and kept.
type Debug struct {
	BrandCount int64  `json:"brandCount"`
	PlaceCount int64  `json:"restaurantCount"`
	ItemCount  int64  `json:"itemCount"`
	Considered int    `json:"considered"`
	Matched    int    `json:"matched"`
	SeededArea string `json:"seededArea,omitempty"`
	Coverage   string `json:"coverage,omitempty"`
}

// Response is the ranked list plus optional debug counts.
type Response struct {
	Results []model.RankResult `json:"results"`
	Debug   *Debug             `json:"debug,omitempty"`
}

// Ranker scores store candidates against a request.
type Ranker struct {
	store Store
}

// NewRanker creates a Ranker.
func NewRanker(st Store) *Ranker {
	return &Ranker{store: st}
}

// Validate checks the request and fills defaults.
func (req *Request) Validate() error {
	switch req.Mode {
	case "":
		req.Mode = Bulking
	case Bulking, Cutting:
	default:
		return model.Invalid("mode", "must be bulking or cutting")
	}
	if (req.Lat == nil) != (req.Lng == nil) {
		return model.Invalid("lat", "lat and lng must be given together")
	}
	if req.Lat != nil {
		if err := model.ValidateLatLng(*req.Lat, *req.Lng); err != nil {
			return err
		}
	}
	if req.RadiusKm < 0 {
		return model.Invalid("radiusKm", "must not be negative")
	}
	if req.RadiusKm == 0 {
		req.RadiusKm = DefaultRadiusKm
	}
	if req.Limit < 0 {
		return model.Invalid("limit", "must not be negative")
	}
	if req.Limit == 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	if req.PriceCap != nil && *req.PriceCap < 0 {
		return model.Invalid("priceCap", "must not be negative")
	}
	return nil
}

// Rank returns candidates ordered by ascending score.
func (r *Ranker) Rank(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	include := keySet(req.IncludeBrands)
	exclude := keySet(req.ExcludeBrands)

	filter := store.CandidateFilter{}
	for k := range include {
		filter.IncludeBrands = append(filter.IncludeBrands, k)
	}
	sort.Strings(filter.IncludeBrands)
	hasPoint := req.Lat != nil
	if hasPoint {
		filter.Bounds = geo.BoundingBox(*req.Lat, *req.Lng, req.RadiusKm)
	}

	candidates, err := r.store.Candidates(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "rank: candidates")
	}

	weights := Weights{Protein: req.WP, Calories: req.WC, Price: req.WR}.Clamp()
	targets := Targets{Protein: req.TargetProtein, Calories: req.TargetCalories}

	var results []model.RankResult
	for _, c := range candidates {
		var distance *float64
		if hasPoint {
			if !c.Place.HasCoordinates() {
				continue
			}
			d := geo.Haversine(*req.Lat, *req.Lng, *c.Place.Lat, *c.Place.Lng)
			if d > req.RadiusKm {
				continue
			}
			d = geo.Round(d, 2)
			distance = &d
		}
		if req.MinProtein != nil && c.Item.ProteinG < *req.MinProtein {
			continue
		}
		if exclude[c.BrandKey] || (len(include) > 0 && !include[c.BrandKey]) {
			continue
		}

		price, reported := ResolvePrice(c)
		if req.PriceCap != nil && price > *req.PriceCap {
			continue
		}

		row := model.RankResult{
			PlaceID:    c.Place.ID,
			PlaceName:  c.Place.Name,
			BrandKey:   c.BrandKey,
			ItemID:     c.Item.ID,
			ItemName:   c.Item.Name,
			Calories:   c.Item.Calories,
			ProteinG:   c.Item.ProteinG,
			Price:      price,
			Score:      Score(req.Mode, weights, targets, c.Item.Calories, c.Item.ProteinG, price),
			Lat:        c.Place.Lat,
			Lng:        c.Place.Lng,
			DistanceKm: distance,
		}
		if reported {
			row.PriceUpdatedAt = c.ReportUpdated
		}
		results = append(results, row)
	}

	sortResults(results)
	matched := len(results)
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	if results == nil {
		results = []model.RankResult{}
	}

	zap.L().Debug("rank complete",
		zap.String("component", "rank"),
		zap.Int("candidates", len(candidates)),
		zap.Int("matched", matched),
		zap.Int("returned", len(results)),
	)

	resp := &Response{Results: results}
	if req.Debug {
		counts, err := r.store.Counts(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "rank: debug counts")
		}
		resp.Debug = debugCounts(counts, len(candidates), matched, req)
	}
	return resp, nil
}

// sortResults orders by score, then distance with pointless rows last, then
// item id, then place id.
func sortResults(rows []model.RankResult) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		switch {
		case a.DistanceKm != nil && b.DistanceKm == nil:
			return true
		case a.DistanceKm == nil && b.DistanceKm != nil:
			return false
		case a.DistanceKm != nil && *a.DistanceKm != *b.DistanceKm:
			return *a.DistanceKm < *b.DistanceKm
		}
		if a.ItemID != b.ItemID {
			return a.ItemID < b.ItemID
		}
		return a.PlaceID < b.PlaceID
	})
}

func debugCounts(counts *model.StoreCounts, considered, matched int, req Request) *Debug {
	d := &Debug{
		BrandCount: counts.Brands,
		PlaceCount: counts.Places,
		ItemCount:  counts.MenuItems,
		Considered: considered,
		Matched:    matched,
	}
	if req.Lat != nil {
		m, dist, ok := geo.NearestMetro(*req.Lat, *req.Lng, geo.SeededThresholdKm)
		if ok {
			d.SeededArea = m.Name
		}
		d.Coverage = geo.Classify(dist)
	}
	return d
}

func keySet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k = brand.Normalize(k); k != "" {
			set[k] = true
		}
	}
	return set
}
