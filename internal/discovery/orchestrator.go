package discovery

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/macro-finder/internal/brand"
	"github.com/sells-group/macro-finder/internal/model"
)

const (
	// DefaultRadiusKm is used when a request omits its radius.
	DefaultRadiusKm = 8.0
	// MaxRadiusKm bounds a single discovery request.
	MaxRadiusKm = 50.0
)

// DefaultBrandKeys are searched when a request names no brands.
var DefaultBrandKeys = []string{"mcdonalds", "chipotle", "wingstop"}

// Fetcher returns features for a query and the provider that served them.
type Fetcher interface {
	Fetch(ctx context.Context, q Query) ([]Feature, string, error)
}

// Store is the persistence the orchestrator needs.
type Store interface {
	EnsureBrand(ctx context.Context, key, displayName string) (*model.Brand, error)
	UpsertPlace(ctx context.Context, p model.Place) (*model.Place, error)
}

// Request is a discovery call. Explicit BrandKeys restrict persisted places
// to those brands.
type Request struct {
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	RadiusKm  float64  `json:"radiusKm,omitempty"`
	BrandKeys []string `json:"chainKeys,omitempty"`
}

// Result lists the places upserted by a discovery call.
type Result struct {
	Count    int           `json:"count"`
	Places   []model.Place `json:"places"`
	Provider string        `json:"provider,omitempty"`
	Broad    bool          `json:"broad"`
	Message  string        `json:"message,omitempty"`
}

// Orchestrator runs discovery against a provider chain and persists what it
// finds.
type Orchestrator struct {
	fetcher       Fetcher
	registry      *brand.Registry
	store         Store
	defaultRadius float64
	defaultKeys   []string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDefaultRadius overrides DefaultRadiusKm.
func WithDefaultRadius(km float64) Option {
	return func(o *Orchestrator) {
		if km > 0 {
			o.defaultRadius = km
		}
	}
}

// WithDefaultBrands overrides DefaultBrandKeys.
func WithDefaultBrands(keys []string) Option {
	return func(o *Orchestrator) {
		if len(keys) > 0 {
			o.defaultKeys = keys
		}
	}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(fetcher Fetcher, registry *brand.Registry, store Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher:       fetcher,
		registry:      registry,
		store:         store,
		defaultRadius: DefaultRadiusKm,
		defaultKeys:   DefaultBrandKeys,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Discover finds brand locations around the request point. Provider failures
// are never fatal: when nothing is found the result is empty. Only
// validation, persistence and context errors are returned.
func (o *Orchestrator) Discover(ctx context.Context, req Request) (*Result, error) {
	if err := model.ValidateLatLng(req.Lat, req.Lng); err != nil {
		return nil, err
	}
	if req.RadiusKm < 0 || req.RadiusKm > MaxRadiusKm {
		return nil, model.Invalid("radiusKm", "must be between 0 and %g", MaxRadiusKm)
	}
	radius := req.RadiusKm
	if radius == 0 {
		radius = o.defaultRadius
	}

	keys := req.BrandKeys
	restrict := len(keys) > 0
	if !restrict {
		keys = o.defaultKeys
	}
	normalized := make([]string, 0, len(keys))
	allowed := make(map[string]bool, len(keys))
	var names []string
	for _, k := range keys {
		k = brand.Normalize(k)
		normalized = append(normalized, k)
		allowed[k] = true
		if e, ok := o.registry.Lookup(k); ok {
			names = append(names, e.DisplayName)
		}
	}

	log := zap.L().With(zap.String("component", "discovery"),
		zap.Float64("lat", req.Lat), zap.Float64("lng", req.Lng), zap.Float64("radius_km", radius))

	q := Query{
		Lat:      req.Lat,
		Lng:      req.Lng,
		RadiusKm: radius,
		Pattern:  o.registry.QueryPattern(normalized),
		Names:    names,
	}

	features, provider, err := o.fetcher.Fetch(ctx, q)
	if ctx.Err() != nil {
		return nil, eris.Wrap(ctx.Err(), "discovery: fetch")
	}
	if err != nil {
		log.Warn("brand query failed on every provider", zap.Error(err))
	}

	res := &Result{Places: []model.Place{}}
	if len(features) == 0 {
		q.Broad = true
		res.Broad = true
		features, provider, err = o.fetcher.Fetch(ctx, q)
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "discovery: broad fetch")
		}
		if err != nil {
			log.Warn("broad query failed on every provider", zap.Error(err))
		}
	}
	res.Provider = provider

	brandIDs := make(map[string]string)
	seen := make(map[string]bool)
	for _, f := range features {
		if f.Lat == nil || f.Lng == nil {
			continue
		}
		if f.Name == "" && f.Brand == "" {
			continue
		}
		entry, ok := o.registry.Resolve(f.Name, f.Brand)
		if !ok {
			continue
		}
		if restrict && !allowed[entry.Key] {
			continue
		}
		extID := f.ExternalID()
		if seen[extID] {
			continue
		}
		seen[extID] = true

		brandID, ok := brandIDs[entry.Key]
		if !ok {
			b, err := o.store.EnsureBrand(ctx, entry.Key, entry.DisplayName)
			if err != nil {
				return nil, eris.Wrapf(err, "discovery: ensure brand %s", entry.Key)
			}
			brandID = b.ID
			brandIDs[entry.Key] = brandID
		}

		name := f.Name
		if name == "" {
			name = entry.DisplayName
		}
		p, err := o.store.UpsertPlace(ctx, model.Place{
			ExternalID: extID,
			BrandID:    brandID,
			Name:       name,
			Lat:        f.Lat,
			Lng:        f.Lng,
			Street:     f.Street,
			City:       f.City,
			State:      f.State,
			Postcode:   f.Postcode,
			Source:     f.Source,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "discovery: upsert place %s", extID)
		}
		res.Places = append(res.Places, *p)
	}

	res.Count = len(res.Places)
	if res.Count == 0 {
		res.Message = "No restaurants found nearby"
	}
	log.Info("discovery complete",
		zap.Int("features", len(features)),
		zap.Int("places", res.Count),
		zap.String("provider", provider),
		zap.Bool("broad", res.Broad),
	)
	return res, nil
}
