// Package rank resolves effective prices for place menu items and orders
// them by how closely they fit a macro target.
package rank

import (
	"math"

	"github.com/sells-group/macro-finder/internal/geo"
	"github.com/sells-group/macro-finder/internal/model"
)

// Mode selects the scoring profile.
type Mode string

const (
	Bulking Mode = "bulking"
	Cutting Mode = "cutting"
)

const (
	// FallbackPrice is used when neither a price report nor a default price
	// exists.
	FallbackPrice = 9.99
	// MaxWeight caps each scoring weight.
	MaxWeight = 5.0
	// cuttingPenaltyPer1000 is added per 1000 kcal in cutting mode.
	cuttingPenaltyPer1000 = 0.15
)

// Weights are the per-term multipliers of the score.
type Weights struct {
	Protein  float64
	Calories float64
	Price    float64
}

// Clamp bounds each weight to [0, MaxWeight].
func (w Weights) Clamp() Weights {
	return Weights{
		Protein:  clamp(w.Protein, 0, MaxWeight),
		Calories: clamp(w.Calories, 0, MaxWeight),
		Price:    clamp(w.Price, 0, MaxWeight),
	}
}

// Targets holds the optional macro goals. A nil target contributes nothing.
type Targets struct {
	Protein  *int
	Calories *int
}

// ResolvePrice picks the local report, then the item's default price, then
// FallbackPrice.
func ResolvePrice(c model.Candidate) (price float64, updatedAt bool) {
	switch {
	case c.ReportPrice != nil:
		return *c.ReportPrice, c.ReportUpdated != nil
	case c.Item.DefaultPrice != nil:
		return *c.Item.DefaultPrice, false
	default:
		return FallbackPrice, false
	}
}

// Score computes the fit score for one item. Lower is better. The result is
// rounded to four decimal places.
func Score(mode Mode, w Weights, t Targets, calories, protein int, price float64) float64 {
	var proteinDiff, calorieDiff float64
	if t.Protein != nil {
		proteinDiff = math.Abs(float64(protein-*t.Protein)) / math.Max(1, float64(*t.Protein))
	}
	if t.Calories != nil {
		calorieDiff = math.Abs(float64(calories-*t.Calories)) / math.Max(1, float64(*t.Calories))
	}
	var penalty float64
	if mode == Cutting {
		penalty = cuttingPenaltyPer1000 * float64(calories) / 1000
	}
	s := w.Protein*proteinDiff + w.Calories*calorieDiff + w.Price*price + penalty
	return geo.Round(s, 4)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
