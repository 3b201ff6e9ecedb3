// Package refresh keeps menu data fresh for the brands located around a
// point, discovering places first when the area is empty.
package refresh

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/macro-finder/internal/brand"
	"github.com/sells-group/macro-finder/internal/discovery"
	"github.com/sells-group/macro-finder/internal/geo"
	"github.com/sells-group/macro-finder/internal/menu"
	"github.com/sells-group/macro-finder/internal/model"
	"github.com/sells-group/macro-finder/internal/resilience"
)

// NoPlacesMessage is returned when discovery finds nothing after widening.
const NoPlacesMessage = "No restaurants found nearby. Try expanding your search radius or visiting areas with chain restaurants."

// Store is the persistence refresh reads.
type Store interface {
	PlacesInBounds(ctx context.Context, b *geom.Bounds) ([]model.Place, error)
	BrandsByID(ctx context.Context, ids []string) ([]model.Brand, error)
}

// Discoverer finds and persists places around a point.
type Discoverer interface {
	Discover(ctx context.Context, req discovery.Request) (*discovery.Result, error)
}

// Importer imports one brand's menu.
type Importer interface {
	Import(ctx context.Context, brandKey string) (*menu.ImportResult, error)
}

// Request is a refresh call.
type Request struct {
	Lat           float64  `json:"lat"`
	Lng           float64  `json:"lng"`
	RadiusKm      float64  `json:"radiusKm,omitempty"`
	IncludeBrands []string `json:"includeBrands,omitempty"`
}

// Outcome is one brand's import attempt.
type Outcome struct {
	Brand    string `json:"brand"`
	Success  bool   `json:"success"`
	Inserted int    `json:"inserted,omitempty"`
	Updated  int    `json:"updated,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Result aggregates a refresh.
type Result struct {
	DiscoveredCount     int       `json:"discoveredCount"`
	UniqueBrands        int       `json:"uniqueBrands"`
	BrandsChecked       int       `json:"brandsChecked"`
	BrandsNeedingImport int       `json:"brandsNeedingImport"`
	BrandsImported      int       `json:"brandsImported"`
	DurationMs          int64     `json:"durationMs"`
	ImportResults       []Outcome `json:"importResults"`
	Message             string    `json:"message,omitempty"`
}

// Options tunes a Refresher.
type Options struct {
	StaleAfter        time.Duration
	Concurrency       int
	DiscoveryAttempts int
	RadiusGrowth      float64
	// DefaultBrands are discovered when a request names none.
	DefaultBrands []string
	ImportRetry   resilience.RetryConfig
}

// DefaultOptions returns a seven day staleness window, four concurrent
// imports and three discovery attempts growing the radius by half each time.
// Imports retry on rate limits after 2s and 4s.
func DefaultOptions() Options {
	return Options{
		StaleAfter:        7 * 24 * time.Hour,
		Concurrency:       4,
		DiscoveryAttempts: 3,
		RadiusGrowth:      1.5,
		ImportRetry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     8 * time.Second,
			Multiplier:     2,
			JitterFraction: -1,
		},
	}
}

// Refresher imports stale menus for brands near a point.
type Refresher struct {
	store    Store
	discover Discoverer
	importer Importer
	opts     Options
	now      func() time.Time
}

// New creates a Refresher. Zero option fields fall back to DefaultOptions.
func New(st Store, d Discoverer, im Importer, opts Options) *Refresher {
	def := DefaultOptions()
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = def.StaleAfter
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.DiscoveryAttempts <= 0 {
		opts.DiscoveryAttempts = def.DiscoveryAttempts
	}
	if opts.RadiusGrowth <= 1 {
		opts.RadiusGrowth = def.RadiusGrowth
	}
	if opts.ImportRetry.MaxAttempts <= 0 {
		opts.ImportRetry = def.ImportRetry
	}
	return &Refresher{store: st, discover: d, importer: im, opts: opts, now: time.Now}
}

// Refresh finds the brands with places inside the area and imports every
// stale one. Per-brand failures are reported in ImportResults, not returned.
func (r *Refresher) Refresh(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	if err := model.ValidateLatLng(req.Lat, req.Lng); err != nil {
		return nil, err
	}
	if req.RadiusKm < 0 {
		return nil, model.Invalid("radiusKm", "must not be negative")
	}
	radius := req.RadiusKm
	if radius == 0 {
		radius = discovery.DefaultRadiusKm
	}

	log := zap.L().With(zap.String("component", "refresh"),
		zap.Float64("lat", req.Lat), zap.Float64("lng", req.Lng), zap.Float64("radius_km", radius))

	places, err := r.store.PlacesInBounds(ctx, geo.BoundingBox(req.Lat, req.Lng, radius))
	if err != nil {
		return nil, eris.Wrap(err, "refresh: places in bounds")
	}
	if len(places) == 0 {
		places, err = r.discoverWidening(ctx, req, radius, log)
		if err != nil {
			return nil, err
		}
	}

	res := &Result{ImportResults: []Outcome{}}
	if len(places) == 0 {
		res.Message = NoPlacesMessage
		res.DurationMs = time.Since(start).Milliseconds()
		log.Info("no places found")
		return res, nil
	}
	res.DiscoveredCount = len(places)

	seen := make(map[string]bool)
	var ids []string
	for _, p := range places {
		if p.BrandID != "" && !seen[p.BrandID] {
			seen[p.BrandID] = true
			ids = append(ids, p.BrandID)
		}
	}
	brands, err := r.store.BrandsByID(ctx, ids)
	if err != nil {
		return nil, eris.Wrap(err, "refresh: brands by id")
	}

	include := make(map[string]bool)
	for _, k := range req.IncludeBrands {
		if k = brand.Normalize(k); k != "" {
			include[k] = true
		}
	}
	now := r.now()
	var stale []model.Brand
	for _, b := range brands {
		if len(include) > 0 && !include[b.Key] {
			continue
		}
		res.UniqueBrands++
		if b.IsStale(now, r.opts.StaleAfter) {
			stale = append(stale, b)
		}
	}
	res.BrandsChecked = res.UniqueBrands
	res.BrandsNeedingImport = len(stale)

	log.Info("brands checked",
		zap.Int("places", res.DiscoveredCount),
		zap.Int("brands", res.UniqueBrands),
		zap.Int("stale", len(stale)),
	)

	outcomes := make([]Outcome, len(stale))
	var imported atomic.Int64

	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for i, b := range stale {
		g.Go(func() error {
			outcomes[i] = r.importBrand(ctx, b.Key)
			if outcomes[i].Success {
				imported.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res.ImportResults = outcomes
	res.BrandsImported = int(imported.Load())
	res.DurationMs = time.Since(start).Milliseconds()

	log.Info("refresh complete",
		zap.Int("imported", res.BrandsImported),
		zap.Int("needed", res.BrandsNeedingImport),
		zap.Int64("duration_ms", res.DurationMs),
	)
	return res, nil
}

// discoverWidening runs discovery with a growing radius until places appear
// or attempts run out, then re-reads the area at the last radius used.
func (r *Refresher) discoverWidening(ctx context.Context, req Request, radius float64, log *zap.Logger) ([]model.Place, error) {
	keys := req.IncludeBrands
	if len(keys) == 0 {
		keys = r.opts.DefaultBrands
	}

	for attempt := 1; attempt <= r.opts.DiscoveryAttempts; attempt++ {
		radius = math.Min(radius, discovery.MaxRadiusKm)
		found, err := r.discover.Discover(ctx, discovery.Request{
			Lat: req.Lat, Lng: req.Lng, RadiusKm: radius, BrandKeys: keys,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "refresh: discover")
			}
			log.Warn("discovery failed", zap.Int("attempt", attempt), zap.Error(err))
			return nil, nil
		}
		log.Info("discovery attempt",
			zap.Int("attempt", attempt),
			zap.Float64("radius_km", radius),
			zap.Int("found", found.Count),
		)
		if found.Count > 0 {
			places, err := r.store.PlacesInBounds(ctx, geo.BoundingBox(req.Lat, req.Lng, radius))
			if err != nil {
				return nil, eris.Wrap(err, "refresh: places in bounds after discovery")
			}
			return places, nil
		}
		if radius >= discovery.MaxRadiusKm {
			break
		}
		radius *= r.opts.RadiusGrowth
	}
	return nil, nil
}

// importBrand imports one brand, backing off on rate limits.
func (r *Refresher) importBrand(ctx context.Context, key string) Outcome {
	retry := r.opts.ImportRetry
	retry.ShouldRetry = resilience.IsRateLimited
	retry.OnRetry = resilience.RetryLogger("menu-import", key)

	got, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*menu.ImportResult, error) {
		return r.importer.Import(ctx, key)
	})
	if err != nil {
		zap.L().Warn("brand import failed",
			zap.String("component", "refresh"),
			zap.String("brand", key),
			zap.Error(err),
		)
		return Outcome{Brand: key, Error: err.Error()}
	}
	return Outcome{Brand: key, Success: true, Inserted: got.Inserted, Updated: got.Updated}
}
