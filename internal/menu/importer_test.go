package menu

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/macro-finder/internal/brand"
	"github.com/sells-group/macro-finder/internal/model"
	"github.com/sells-group/macro-finder/internal/resilience"
	"github.com/sells-group/macro-finder/pkg/nutritionix"
	"github.com/sells-group/macro-finder/pkg/usda"
)

func noRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 1}
}

func TestImport_NotConfigured(t *testing.T) {
	im := NewImporter(newTestStore(t), brand.Default(), noRetry())
	assert.False(t, im.Configured())
	_, err := im.Import(context.Background(), "kfc")
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestImport_BrandNotFound(t *testing.T) {
	im := NewImporter(newTestStore(t), brand.Default(), noRetry(), NewNutritionixSource(&fakeNutritionix{}))
	_, err := im.Import(context.Background(), "kfc")
	assert.True(t, errors.Is(err, ErrBrandNotFound))
}

func TestImport_EmptyKey(t *testing.T) {
	im := NewImporter(newTestStore(t), brand.Default(), noRetry(), NewNutritionixSource(&fakeNutritionix{}))
	_, err := im.Import(context.Background(), "  ")
	var ve *model.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestImport_PreservesDefaultPriceUpdatesMacros(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	b, err := st.EnsureBrand(ctx, "chipotle", "Chipotle Mexican Grill")
	require.NoError(t, err)
	_, err = st.UpsertManualItems(ctx, []model.MenuItem{
		{BrandID: b.ID, Name: "Chicken Burrito Bowl", Calories: 600, ProteinG: 35, DefaultPrice: floatp(10.95)},
	})
	require.NoError(t, err)

	nix := &fakeNutritionix{resp: &nutritionix.InstantResponse{Branded: []nutritionix.BrandedFood{
		{FoodName: "Chicken Burrito Bowl", BrandName: "Chipotle", NixBrandID: "513fbc1283aa2dc80c00001b", Calories: 665, Protein: 42},
		{FoodName: "Chips & Guacamole", BrandName: "Chipotle", NixBrandID: "513fbc1283aa2dc80c00001b", Calories: 770, Protein: 9},
	}}}
	im := NewImporter(st, brand.Default(), noRetry(), NewNutritionixSource(nix), NewUSDASource(&fakeUSDA{}))
	fixed := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	im.now = func() time.Time { return fixed }

	res, err := im.Import(ctx, "chipotle")
	require.NoError(t, err)

	assert.Equal(t, "chipotle", res.Brand)
	assert.Equal(t, model.SourceNutritionix, res.Source)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 2, res.TotalRaw)
	assert.Equal(t, 2, res.TotalMatched)
	assert.Empty(t, res.Reason)

	items, err := st.ListMenuItems(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	bowl := items[0]
	assert.Equal(t, "Chicken Burrito Bowl", bowl.Name)
	assert.Equal(t, 665, bowl.Calories)
	assert.Equal(t, 42, bowl.ProteinG)
	require.NotNil(t, bowl.DefaultPrice)
	assert.Equal(t, 10.95, *bowl.DefaultPrice)
	assert.Equal(t, model.SourceNutritionix, bowl.Source)
	assert.Equal(t, model.Unverified, bowl.VerificationStatus)

	got, err := st.GetBrand(ctx, "chipotle")
	require.NoError(t, err)
	require.NotNil(t, got.LastImportedAt)
	assert.True(t, fixed.Equal(*got.LastImportedAt))
}

func TestImport_FallsBackToUSDA(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, err := st.EnsureBrand(ctx, "kfc", "KFC")
	require.NoError(t, err)

	nix := &fakeNutritionix{err: resilience.NewTransientError(eris.New("nutritionix: unexpected status 429"), http.StatusTooManyRequests)}
	fdc := &fakeUSDA{resp: &usda.SearchResponse{Foods: []usda.Food{
		{FdcID: 77, Description: "KFC Original Recipe Breast", BrandOwner: "KFC Corporation", LabelNutrients: labeled(390, 39)},
	}}}
	im := NewImporter(st, brand.Default(), noRetry(), NewNutritionixSource(nix), NewUSDASource(fdc))

	res, err := im.Import(ctx, "KFC")
	require.NoError(t, err)
	assert.Equal(t, model.SourceUSDA, res.Source)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, fdc.calls)
}

func TestImport_FirstSourceWithItemsWins(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, err := st.EnsureBrand(ctx, "subway", "Subway")
	require.NoError(t, err)

	empty := &scriptedSource{name: model.SourceNutritionix, batch: &Batch{Raw: 4, Matched: 0}}
	full := &scriptedSource{name: model.SourceUSDA, batch: &Batch{Raw: 1, Matched: 1, Items: []Item{{Name: "6in Turkey", Calories: 280, ProteinG: 18, ExternalRef: "usda:9"}}}}
	unused := &scriptedSource{name: model.SourceManual, batch: &Batch{}}
	im := NewImporter(st, nil, noRetry(), empty, full, unused)

	res, err := im.Import(ctx, "subway")
	require.NoError(t, err)
	assert.Equal(t, model.SourceUSDA, res.Source)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 0, unused.calls)
}

func TestImport_NoItemsReasons(t *testing.T) {
	tests := []struct {
		name   string
		batch  *Batch
		reason string
	}{
		{"nothing returned", &Batch{}, "No items returned from API"},
		{"all filtered", &Batch{Raw: 12}, "Filtered out all 12 items - brand name mismatch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := newTestStore(t)
			_, err := st.EnsureBrand(ctx, "wendys", "Wendy's")
			require.NoError(t, err)

			im := NewImporter(st, nil, noRetry(), &scriptedSource{name: model.SourceUSDA, batch: tt.batch})
			res, err := im.Import(ctx, "wendys")
			require.NoError(t, err)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Zero(t, res.Inserted+res.Updated)

			b, err := st.GetBrand(ctx, "wendys")
			require.NoError(t, err)
			assert.NotNil(t, b.LastImportedAt)
		})
	}
}

func TestImport_AllSourcesFailKeepsRateLimitSignal(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, err := st.EnsureBrand(ctx, "popeyes", "Popeyes")
	require.NoError(t, err)

	limited := resilience.NewTransientError(eris.New("usda: unexpected status 429"), http.StatusTooManyRequests)
	im := NewImporter(st, nil, noRetry(),
		&scriptedSource{name: model.SourceNutritionix, errs: []error{eris.New("boom")}},
		&scriptedSource{name: model.SourceUSDA, errs: []error{limited}},
	)

	_, err = im.Import(ctx, "popeyes")
	require.Error(t, err)
	assert.True(t, resilience.IsRateLimited(err))

	b, err := st.GetBrand(ctx, "popeyes")
	require.NoError(t, err)
	assert.Nil(t, b.LastImportedAt)
}

func TestImport_RetriesTransientSourceErrors(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, err := st.EnsureBrand(ctx, "kfc", "KFC")
	require.NoError(t, err)

	src := &scriptedSource{
		name: model.SourceNutritionix,
		errs: []error{resilience.NewTransientError(eris.New("nutritionix: unexpected status 503"), http.StatusServiceUnavailable)},
		batch: &Batch{Raw: 1, Matched: 1, Items: []Item{{Name: "Famous Bowl", Calories: 740, ProteinG: 26}}},
	}
	retry := resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, JitterFraction: -1}
	im := NewImporter(st, nil, retry, src)

	res, err := im.Import(ctx, "kfc")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
	assert.Equal(t, 1, res.Inserted)
}
