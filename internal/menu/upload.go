package menu

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/macro-finder/internal/brand"
	"github.com/sells-group/macro-finder/internal/fetcher"
	"github.com/sells-group/macro-finder/internal/model"
	"github.com/sells-group/macro-finder/internal/store"
)

// ManualItem is one curated menu row.
type ManualItem struct {
	Brand        string   `json:"brand"`
	Name         string   `json:"itemName"`
	Calories     *int     `json:"calories"`
	ProteinG     *int     `json:"proteinG"`
	DefaultPrice *float64 `json:"defaultPrice,omitempty"`
	Notes        string   `json:"notes,omitempty"`
}

// RowError explains why an uploaded row was skipped.
type RowError struct {
	Item   string `json:"itemName"`
	Reason string `json:"reason"`
}

// UploadResult summarizes a manual upload.
type UploadResult struct {
	Inserted int        `json:"inserted"`
	Updated  int        `json:"updated"`
	Skipped  int        `json:"skipped"`
	Errors   []RowError `json:"errors"`
}

// Uploader stores curated items as verified manual rows. A supplied default
// price replaces the stored one; an omitted price leaves it alone.
type Uploader struct {
	store Store
	now   func() time.Time
}

// NewUploader creates an Uploader.
func NewUploader(st Store) *Uploader {
	return &Uploader{store: st, now: time.Now}
}

type itemKey struct {
	brandID string
	name    string
}

// Upload validates items, skipping bad rows with a reason, and upserts the
// rest in one batch.
func (u *Uploader) Upload(ctx context.Context, items []ManualItem) (*UploadResult, error) {
	if len(items) == 0 {
		return nil, model.Invalid("items", "must not be empty")
	}

	res := &UploadResult{Errors: []RowError{}}
	skip := func(name, reason string) {
		if name == "" {
			name = "unknown"
		}
		res.Errors = append(res.Errors, RowError{Item: name, Reason: reason})
		res.Skipped++
	}

	now := u.now().UTC()
	brandIDs := make(map[string]string)
	seen := make(map[itemKey]bool)
	var rows []model.MenuItem
	for _, it := range items {
		name := strings.TrimSpace(it.Name)
		key := brand.Normalize(it.Brand)
		if key == "" || name == "" || it.Calories == nil || it.ProteinG == nil {
			skip(name, "Missing required fields (brand, itemName, calories, or proteinG)")
			continue
		}
		if *it.Calories < 0 || *it.ProteinG < 0 {
			skip(name, "calories and proteinG must not be negative")
			continue
		}
		if it.DefaultPrice != nil {
			if err := model.ValidatePrice("defaultPrice", *it.DefaultPrice); err != nil {
				skip(name, err.Error())
				continue
			}
		}

		brandID, ok := brandIDs[key]
		if !ok {
			b, err := u.store.GetBrand(ctx, key)
			if errors.Is(err, store.ErrNotFound) {
				brandIDs[key] = ""
			} else if err != nil {
				return nil, eris.Wrapf(err, "menu: get brand %s", key)
			} else {
				brandIDs[key] = b.ID
			}
			brandID = brandIDs[key]
		}
		if brandID == "" {
			skip(name, fmt.Sprintf("Brand not found: %s", key))
			continue
		}

		k := itemKey{brandID: brandID, name: name}
		if seen[k] {
			skip(name, "Duplicate item in upload")
			continue
		}
		seen[k] = true

		rows = append(rows, model.MenuItem{
			BrandID:            brandID,
			Name:               name,
			Calories:           *it.Calories,
			ProteinG:           *it.ProteinG,
			DefaultPrice:       it.DefaultPrice,
			Source:             model.SourceManual,
			VerificationStatus: model.Verified,
			LastVerifiedAt:     &now,
			Notes:              strings.TrimSpace(it.Notes),
		})
	}

	if len(rows) > 0 {
		up, err := u.store.UpsertManualItems(ctx, rows)
		if err != nil {
			return nil, eris.Wrap(err, "menu: upsert manual items")
		}
		res.Inserted = int(up.Inserted)
		res.Updated = int(up.Updated)
	}

	zap.L().Info("manual upload complete",
		zap.String("component", "menu"),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// UploadRecords parses spreadsheet records and uploads them. Rows that fail
// to parse are reported as skipped alongside validation failures.
func (u *Uploader) UploadRecords(ctx context.Context, recs []fetcher.Record) (*UploadResult, error) {
	items, bad := ParseRecords(recs)
	if len(items) == 0 && len(bad) > 0 {
		return &UploadResult{Skipped: len(bad), Errors: bad}, nil
	}
	res, err := u.Upload(ctx, items)
	if err != nil {
		return nil, err
	}
	res.Errors = append(bad, res.Errors...)
	res.Skipped += len(bad)
	return res, nil
}

// ParseRecords converts spreadsheet rows into ManualItems. Rows whose
// numbers do not parse are returned as RowErrors.
func ParseRecords(recs []fetcher.Record) ([]ManualItem, []RowError) {
	var items []ManualItem
	var bad []RowError
	for i, r := range recs {
		it := ManualItem{
			Brand: r.Get("brand", "brand_key", "chain_key"),
			Name:  r.Get("item_name", "name", "item"),
			Notes: r.Get("notes"),
		}
		label := it.Name
		if label == "" {
			label = fmt.Sprintf("row %d", i+2)
		}

		var err error
		if it.Calories, err = parseInt(r.Get("calories", "kcal")); err != nil {
			bad = append(bad, RowError{Item: label, Reason: "calories: " + err.Error()})
			continue
		}
		if it.ProteinG, err = parseInt(r.Get("protein_g", "protein")); err != nil {
			bad = append(bad, RowError{Item: label, Reason: "proteinG: " + err.Error()})
			continue
		}
		if it.DefaultPrice, err = parsePrice(r.Get("default_price", "price")); err != nil {
			bad = append(bad, RowError{Item: label, Reason: "defaultPrice: " + err.Error()})
			continue
		}
		items = append(items, it)
	}
	return items, bad
}

func parseInt(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, eris.Errorf("not a number: %q", s)
	}
	v := int(math.Round(f))
	return &v, nil
}

func parsePrice(s string) (*float64, error) {
	s = strings.TrimPrefix(s, "$")
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, eris.Errorf("not a number: %q", s)
	}
	return &v, nil
}
