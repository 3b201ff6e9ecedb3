// Package store persists brands, places, menu items, price reports and seed
// jobs. PostgresStore is the production backend; SQLiteStore serves local
// runs and tests.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/macro-finder/internal/db"
	"github.com/sells-group/macro-finder/internal/model"
)

// ErrNotFound is returned (wrapped) when a keyed lookup or a referenced row
// does not exist.
var ErrNotFound = eris.New("store: not found")

// CandidateFilter narrows the rows read for ranking. A nil Bounds reads every
// place, including those without coordinates.
type CandidateFilter struct {
	Bounds        *geom.Bounds
	IncludeBrands []string
}

// Store defines the persistence interface for discovery, import, ranking
// and seeding.
type Store interface {
	// Brands
	EnsureBrand(ctx context.Context, key, displayName string) (*model.Brand, error)
	GetBrand(ctx context.Context, key string) (*model.Brand, error)
	ListBrands(ctx context.Context) ([]model.Brand, error)
	BrandsByID(ctx context.Context, ids []string) ([]model.Brand, error)
	MarkImported(ctx context.Context, brandID string, at time.Time) error

	// Places
	UpsertPlace(ctx context.Context, p model.Place) (*model.Place, error)
	PlacesInBounds(ctx context.Context, b *geom.Bounds) ([]model.Place, error)

	// Menu items. UpsertMenuItems never replaces a stored default price;
	// UpsertManualItems replaces it only when the incoming price is set.
	UpsertMenuItems(ctx context.Context, brandID string, items []model.MenuItem) (db.UpsertResult, error)
	UpsertManualItems(ctx context.Context, items []model.MenuItem) (db.UpsertResult, error)
	ListMenuItems(ctx context.Context, brandID string) ([]model.MenuItem, error)

	// Prices and ranking
	SetPrice(ctx context.Context, placeID, itemID string, price float64) (*model.PriceReport, error)
	Candidates(ctx context.Context, f CandidateFilter) ([]model.Candidate, error)
	Counts(ctx context.Context) (*model.StoreCounts, error)

	// Seed jobs
	CreateSeedJob(ctx context.Context, job *model.SeedJob) error
	UpdateSeedJob(ctx context.Context, job *model.SeedJob) error
	GetSeedJob(ctx context.Context, id string) (*model.SeedJob, error)
	ListSeedJobs(ctx context.Context, limit int) ([]model.SeedJob, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// boundsArgs returns minLat, maxLat, minLng, maxLng.
func boundsArgs(b *geom.Bounds) (float64, float64, float64, float64) {
	return b.Min(1), b.Max(1), b.Min(0), b.Max(0)
}

// menuItemColumns is the column order used by both backends when writing
// menu items.
var menuItemColumns = []string{
	"id", "brand_id", "name", "calories", "protein_g", "default_price",
	"source", "external_ref", "verification_status", "last_verified_at",
	"notes", "updated_at",
}

func menuItemRow(id, brandID string, it model.MenuItem, now time.Time) []any {
	source := it.Source
	if source == "" {
		source = model.SourceManual
	}
	status := it.VerificationStatus
	if status == "" {
		status = model.Unverified
	}
	return []any{
		id, brandID, it.Name, it.Calories, it.ProteinG, it.DefaultPrice,
		string(source), it.ExternalRef, string(status), it.LastVerifiedAt,
		it.Notes, now,
	}
}

const candidateSelect = `SELECT p.id, p.external_id, p.brand_id, p.name, p.lat, p.lng, p.street, p.city, p.state, p.postcode, p.source, p.updated_at,
	b.key,
	m.id, m.name, m.calories, m.protein_g, m.default_price, m.source, m.external_ref, m.verification_status, m.last_verified_at, m.notes, m.updated_at,
	r.price, r.updated_at
FROM places p
JOIN brands b ON b.id = p.brand_id
JOIN menu_items m ON m.brand_id = p.brand_id
LEFT JOIN price_reports r ON r.place_id = p.id AND r.item_id = m.id`
