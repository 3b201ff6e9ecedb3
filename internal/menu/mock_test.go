package menu

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/macro-finder/internal/model"
	"github.com/sells-group/macro-finder/internal/store"
	"github.com/sells-group/macro-finder/pkg/nutritionix"
	"github.com/sells-group/macro-finder/pkg/usda"
)

type fakeNutritionix struct {
	resp    *nutritionix.InstantResponse
	err     error
	queries []string
}

func (f *fakeNutritionix) SearchInstant(_ context.Context, query string) (*nutritionix.InstantResponse, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeUSDA struct {
	resp  *usda.SearchResponse
	err   error
	calls int
}

func (f *fakeUSDA) SearchBranded(_ context.Context, _ string) (*usda.SearchResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

// scriptedSource returns its errors in order, then its batch.
type scriptedSource struct {
	name  model.ItemSource
	errs  []error
	batch *Batch
	calls int
}

func (s *scriptedSource) Name() model.ItemSource { return s.name }

func (s *scriptedSource) Fetch(_ context.Context, _ Target) (*Batch, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return nil, s.errs[s.calls-1]
	}
	return s.batch, nil
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "menu.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }
func labeled(cal, protein float64) *usda.LabelNutrients {
	return &usda.LabelNutrients{Calories: &usda.NutrientValue{Value: cal}, Protein: &usda.NutrientValue{Value: protein}}
}
