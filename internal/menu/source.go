// Package menu imports brand menus from nutrition sources and accepts
// curated manual uploads.
package menu

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/macro-finder/internal/brand"
	"github.com/sells-group/macro-finder/internal/model"
	"github.com/sells-group/macro-finder/pkg/nutritionix"
	"github.com/sells-group/macro-finder/pkg/usda"
)

// Target identifies the brand a source searches for.
type Target struct {
	Key           string
	DisplayName   string
	NutritionixID string
}

// Item is one menu item produced by a source.
type Item struct {
	Name        string
	Calories    int
	ProteinG    int
	ExternalRef string
}

// Batch is a source's answer: the usable items plus the raw and
// brand-matched counts used for reporting.
type Batch struct {
	Items   []Item
	Raw     int
	Matched int
}

// Source is one nutrition data provider.
type Source interface {
	Name() model.ItemSource
	Fetch(ctx context.Context, t Target) (*Batch, error)
}

// NutritionixSource searches Nutritionix branded foods.
type NutritionixSource struct {
	client nutritionix.Client
}

// NewNutritionixSource wraps a Nutritionix client.
func NewNutritionixSource(client nutritionix.Client) *NutritionixSource {
	return &NutritionixSource{client: client}
}

// Name implements Source.
func (s *NutritionixSource) Name() model.ItemSource { return model.SourceNutritionix }

// Fetch implements Source. A hit belongs to the brand when its nix brand id
// matches, its normalized brand name equals the display name, or its brand
// name contains the key.
func (s *NutritionixSource) Fetch(ctx context.Context, t Target) (*Batch, error) {
	resp, err := s.client.SearchInstant(ctx, t.DisplayName)
	if err != nil {
		return nil, eris.Wrapf(err, "menu: nutritionix search %s", t.Key)
	}

	normDisplay := brand.Normalize(t.DisplayName)
	normKey := brand.Normalize(t.Key)

	b := &Batch{Raw: len(resp.Branded)}
	seen := make(map[string]bool)
	for _, f := range resp.Branded {
		itemBrand := brand.Normalize(f.BrandName)
		matched := (t.NutritionixID != "" && f.NixBrandID == t.NutritionixID) ||
			(itemBrand != "" && itemBrand == normDisplay) ||
			(normKey != "" && strings.Contains(itemBrand, normKey))
		if !matched {
			continue
		}
		b.Matched++

		name := strings.TrimSpace(f.FoodName)
		norm := brand.Normalize(name)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true

		nixID := f.NixBrandID
		if nixID == "" {
			nixID = t.NutritionixID
		}
		if nixID == "" {
			nixID = "unknown"
		}
		b.Items = append(b.Items, Item{
			Name:        name,
			Calories:    roundNonNeg(f.Calories),
			ProteinG:    roundNonNeg(f.Protein),
			ExternalRef: "nutritionix:" + nixID + ":" + name,
		})
	}
	return b, nil
}

// USDASource searches FoodData Central branded foods.
type USDASource struct {
	client usda.Client
}

// NewUSDASource wraps a FoodData Central client.
func NewUSDASource(client usda.Client) *USDASource {
	return &USDASource{client: client}
}

// Name implements Source.
func (s *USDASource) Name() model.ItemSource { return model.SourceUSDA }

// Fetch implements Source. A food belongs to the brand when its brand owner
// or description contains the key or display name. Foods without calories
// are dropped.
func (s *USDASource) Fetch(ctx context.Context, t Target) (*Batch, error) {
	resp, err := s.client.SearchBranded(ctx, t.DisplayName)
	if err != nil {
		return nil, eris.Wrapf(err, "menu: usda search %s", t.Key)
	}

	needles := []string{brand.Normalize(t.Key), brand.Normalize(t.DisplayName)}

	b := &Batch{Raw: len(resp.Foods)}
	seen := make(map[string]bool)
	for _, f := range resp.Foods {
		owner := brand.Normalize(f.BrandOwner)
		desc := brand.Normalize(f.Description)
		if !containsAny(owner, needles) && !containsAny(desc, needles) {
			continue
		}
		b.Matched++

		cal := roundNonNeg(f.Calories())
		if cal == 0 {
			continue
		}
		name := strings.TrimSpace(f.Description)
		norm := brand.Normalize(name)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true

		b.Items = append(b.Items, Item{
			Name:        name,
			Calories:    cal,
			ProteinG:    roundNonNeg(f.Protein()),
			ExternalRef: "usda:" + strconv.FormatInt(f.FdcID, 10),
		})
	}
	return b, nil
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func roundNonNeg(v float64) int {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return int(math.Round(v))
}
