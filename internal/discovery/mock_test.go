package discovery

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/sells-group/macro-finder/internal/model"
)

// fakeProvider returns scripted results call by call; the last entry repeats.
type fakeProvider struct {
	name  string
	steps []fakeStep
	calls int
	seen  []Query
}

type fakeStep struct {
	features  []Feature
	exhausted bool
	err       error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) TryFetch(_ context.Context, q Query) ([]Feature, bool, error) {
	p.seen = append(p.seen, q)
	i := p.calls
	if i >= len(p.steps) {
		i = len(p.steps) - 1
	}
	p.calls++
	s := p.steps[i]
	return s.features, s.exhausted, s.err
}

// fakeFetcher answers brand and broad queries separately.
type fakeFetcher struct {
	brand    []Feature
	broad    []Feature
	provider string
	err      error
	queries  []Query
}

func (f *fakeFetcher) Fetch(_ context.Context, q Query) ([]Feature, string, error) {
	f.queries = append(f.queries, q)
	if q.Broad {
		if len(f.broad) == 0 {
			return nil, "", f.err
		}
		return f.broad, f.provider, nil
	}
	if len(f.brand) == 0 {
		return nil, "", f.err
	}
	return f.brand, f.provider, nil
}

// memStore keeps brands and places in maps keyed like the real store.
type memStore struct {
	mu       sync.Mutex
	brands   map[string]*model.Brand
	places   map[string]*model.Place
	upserts  int
	placeErr error
}

func newMemStore() *memStore {
	return &memStore{brands: map[string]*model.Brand{}, places: map[string]*model.Place{}}
}

func (m *memStore) EnsureBrand(_ context.Context, key, displayName string) (*model.Brand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.brands[key]; ok {
		return b, nil
	}
	b := &model.Brand{ID: uuid.NewString(), Key: key, DisplayName: displayName}
	m.brands[key] = b
	return b, nil
}

func (m *memStore) UpsertPlace(_ context.Context, p model.Place) (*model.Place, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.placeErr != nil {
		return nil, m.placeErr
	}
	m.upserts++
	if existing, ok := m.places[p.ExternalID]; ok {
		p.ID = existing.ID
	} else {
		p.ID = uuid.NewString()
	}
	m.places[p.ExternalID] = &p
	return &p, nil
}

func ptr(v float64) *float64 { return &v }

func feature(typ, id, name, brand string, lat, lng float64) Feature {
	return Feature{Source: "osm", Type: typ, ID: id, Name: name, Brand: brand, Lat: ptr(lat), Lng: ptr(lng)}
}
