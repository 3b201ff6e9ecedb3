package menu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/macro-finder/internal/brand"
	"github.com/sells-group/macro-finder/internal/db"
	"github.com/sells-group/macro-finder/internal/model"
	"github.com/sells-group/macro-finder/internal/resilience"
	"github.com/sells-group/macro-finder/internal/store"
)

var (
	// ErrNotConfigured means no nutrition source has credentials.
	ErrNotConfigured = eris.New("menu: no nutrition source configured")
	// ErrBrandNotFound means the brand key has no stored brand.
	ErrBrandNotFound = eris.New("menu: brand not found")
)

// Store is the persistence the importer and uploader need.
type Store interface {
	GetBrand(ctx context.Context, key string) (*model.Brand, error)
	UpsertMenuItems(ctx context.Context, brandID string, items []model.MenuItem) (db.UpsertResult, error)
	UpsertManualItems(ctx context.Context, items []model.MenuItem) (db.UpsertResult, error)
	MarkImported(ctx context.Context, brandID string, at time.Time) error
}

// ImportResult reports one brand import. Reason is set when nothing was
// imported.
type ImportResult struct {
	Brand        string           `json:"brand"`
	Inserted     int              `json:"inserted"`
	Updated      int              `json:"updated"`
	Source       model.ItemSource `json:"source,omitempty"`
	TotalRaw     int              `json:"totalRaw"`
	TotalMatched int              `json:"totalMatched"`
	Reason       string           `json:"reason,omitempty"`
}

// Importer fetches a brand's menu from the first source that yields items
// and upserts it, keeping any stored default price.
type Importer struct {
	store    Store
	registry *brand.Registry
	sources  []Source
	retry    resilience.RetryConfig
	now      func() time.Time
}

// NewImporter creates an Importer over sources in priority order. The
// registry supplies Nutritionix brand ids and may be nil.
func NewImporter(st Store, registry *brand.Registry, retry resilience.RetryConfig, sources ...Source) *Importer {
	return &Importer{
		store:    st,
		registry: registry,
		sources:  sources,
		retry:    retry,
		now:      time.Now,
	}
}

// Configured reports whether any source is available.
func (im *Importer) Configured() bool { return len(im.sources) > 0 }

// Import fetches and stores the menu for brandKey. Zero items is a valid
// result carrying a Reason. When every source fails the last error is
// returned; rate-limit errors stay detectable with resilience.IsRateLimited.
func (im *Importer) Import(ctx context.Context, brandKey string) (*ImportResult, error) {
	if !im.Configured() {
		return nil, ErrNotConfigured
	}
	key := brand.Normalize(brandKey)
	if key == "" {
		return nil, model.Invalid("chainKey", "is required")
	}

	b, err := im.store.GetBrand(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, eris.Wrapf(ErrBrandNotFound, "menu: brand %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "menu: get brand %s", key)
	}

	target := Target{Key: b.Key, DisplayName: b.DisplayName}
	if im.registry != nil {
		if e, ok := im.registry.Lookup(b.Key); ok {
			target.NutritionixID = e.NutritionixID
		}
	}

	log := zap.L().With(zap.String("component", "menu"), zap.String("brand", b.Key))

	res := &ImportResult{Brand: b.Key}
	var (
		batch   *Batch
		lastErr error
		served  bool
	)
	for _, src := range im.sources {
		retry := im.retry
		retry.OnRetry = resilience.RetryLogger(string(src.Name()), "fetch")
		got, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*Batch, error) {
			return src.Fetch(ctx, target)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "menu: import")
			}
			log.Warn("source failed", zap.String("source", string(src.Name())), zap.Error(err))
			lastErr = err
			continue
		}

		served = true
		batch = got
		res.Source = src.Name()
		res.TotalRaw = got.Raw
		res.TotalMatched = got.Matched
		log.Info("source answered",
			zap.String("source", string(src.Name())),
			zap.Int("raw", got.Raw),
			zap.Int("matched", got.Matched),
			zap.Int("items", len(got.Items)),
		)
		if len(got.Items) > 0 {
			break
		}
	}

	if !served {
		return nil, eris.Wrapf(lastErr, "menu: fetch %s from every source", b.Key)
	}

	if len(batch.Items) == 0 {
		if res.TotalRaw == 0 {
			res.Reason = "No items returned from API"
		} else {
			res.Reason = fmt.Sprintf("Filtered out all %d items - brand name mismatch", res.TotalRaw)
		}
	} else {
		items := make([]model.MenuItem, len(batch.Items))
		for i, it := range batch.Items {
			items[i] = model.MenuItem{
				Name:               it.Name,
				Calories:           it.Calories,
				ProteinG:           it.ProteinG,
				Source:             res.Source,
				ExternalRef:        it.ExternalRef,
				VerificationStatus: model.Unverified,
			}
		}
		up, err := im.store.UpsertMenuItems(ctx, b.ID, items)
		if err != nil {
			return nil, eris.Wrapf(err, "menu: upsert items for %s", b.Key)
		}
		res.Inserted = int(up.Inserted)
		res.Updated = int(up.Updated)
	}

	if err := im.store.MarkImported(ctx, b.ID, im.now().UTC()); err != nil {
		return nil, eris.Wrapf(err, "menu: mark imported %s", b.Key)
	}

	log.Info("import complete",
		zap.String("source", string(res.Source)),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.String("reason", res.Reason),
	)
	return res, nil
}
