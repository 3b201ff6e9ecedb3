// Package discovery finds chain restaurant locations near a point through an
// ordered chain of map providers and persists them as places.
package discovery

import (
	"context"
	"math"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/macro-finder/internal/geo"
	"github.com/sells-group/macro-finder/pkg/google"
	"github.com/sells-group/macro-finder/pkg/overpass"
)

// Query is one provider lookup around a point.
type Query struct {
	Lat      float64
	Lng      float64
	RadiusKm float64
	// Pattern is the case-insensitive brand alternation for map queries.
	Pattern string
	// Names are brand display names, used by text search providers.
	Names []string
	// Broad asks for any branded fast-food venue instead of Pattern.
	Broad bool
}

// Feature is a point of interest returned by a provider.
type Feature struct {
	Source   string
	Type     string
	ID       string
	Name     string
	Brand    string
	Lat      *float64
	Lng      *float64
	Street   string
	City     string
	State    string
	Postcode string
}

// ExternalID is the stable place key derived from the provider's own feature
// type and id.
func (f Feature) ExternalID() string {
	if f.Type == "" {
		return f.Source + ":" + f.ID
	}
	return f.Source + ":" + f.Type + ":" + f.ID
}

// Provider is one map-data source. exhausted reports that the provider has
// nothing to offer for this query shape and the chain should move on.
type Provider interface {
	Name() string
	TryFetch(ctx context.Context, q Query) (features []Feature, exhausted bool, err error)
}

// OverpassProvider queries one Overpass interpreter endpoint.
type OverpassProvider struct {
	name        string
	client      overpass.Client
	timeoutSecs int
}

// NewOverpassProvider wraps an Overpass client. name distinguishes the
// primary endpoint from mirrors in logs and breaker state.
func NewOverpassProvider(name string, client overpass.Client, timeoutSecs int) *OverpassProvider {
	return &OverpassProvider{name: name, client: client, timeoutSecs: timeoutSecs}
}

// Name implements Provider.
func (p *OverpassProvider) Name() string { return p.name }

// TryFetch implements Provider.
func (p *OverpassProvider) TryFetch(ctx context.Context, q Query) ([]Feature, bool, error) {
	around := overpass.Around{Lat: q.Lat, Lng: q.Lng, RadiusM: int(math.Round(q.RadiusKm * 1000))}

	var ql string
	if q.Broad {
		ql = overpass.BroadQuery(around, p.timeoutSecs)
	} else {
		ql = overpass.BrandQuery(around, q.Pattern, p.timeoutSecs)
	}

	resp, err := p.client.Interpreter(ctx, ql)
	if err != nil {
		return nil, false, eris.Wrapf(err, "discovery: %s interpreter", p.name)
	}

	features := make([]Feature, 0, len(resp.Elements))
	for _, el := range resp.Elements {
		f := Feature{
			Source:   "osm",
			Type:     el.Type,
			ID:       strconv.FormatInt(el.ID, 10),
			Name:     el.Tag("name"),
			Brand:    el.Tag("brand"),
			Street:   joinStreet(el.Tag("addr:housenumber"), el.Tag("addr:street")),
			City:     el.Tag("addr:city"),
			State:    el.Tag("addr:state"),
			Postcode: el.Tag("addr:postcode"),
		}
		if lat, lng, ok := el.Coordinates(); ok {
			f.Lat, f.Lng = &lat, &lng
		}
		features = append(features, f)
	}
	return features, false, nil
}

// maxPlacesPages limits pagination per brand name.
const maxPlacesPages = 3

// PlacesProvider runs Google Places text searches restricted to the query's
// bounding box.
type PlacesProvider struct {
	client google.Client
}

// NewPlacesProvider wraps a Places client.
func NewPlacesProvider(client google.Client) *PlacesProvider {
	return &PlacesProvider{client: client}
}

// Name implements Provider.
func (p *PlacesProvider) Name() string { return "google_places" }

// TryFetch implements Provider. A broad query becomes a single fast-food
// search; a brand query issues one search per brand name.
func (p *PlacesProvider) TryFetch(ctx context.Context, q Query) ([]Feature, bool, error) {
	bounds := geo.BoundingBox(q.Lat, q.Lng, q.RadiusKm)
	rect := &google.LocationRect{Rectangle: google.Rectangle{
		Low:  google.LatLng{Latitude: bounds.Min(1), Longitude: bounds.Min(0)},
		High: google.LatLng{Latitude: bounds.Max(1), Longitude: bounds.Max(0)},
	}}

	var searches []google.SearchTextRequest
	if q.Broad {
		searches = append(searches, google.SearchTextRequest{
			TextQuery:    "fast food restaurant",
			IncludedType: "fast_food_restaurant",
		})
	} else {
		for _, name := range q.Names {
			searches = append(searches, google.SearchTextRequest{TextQuery: name})
		}
	}
	if len(searches) == 0 {
		return nil, true, nil
	}

	seen := make(map[string]bool)
	var features []Feature
	for _, sr := range searches {
		sr.LocationRestriction = rect
		sr.PageSize = 20
		for page := 0; page < maxPlacesPages; page++ {
			resp, err := p.client.SearchText(ctx, sr)
			if err != nil {
				return nil, false, eris.Wrapf(err, "discovery: places search %q", sr.TextQuery)
			}
			for _, pl := range resp.Places {
				if seen[pl.ID] {
					continue
				}
				seen[pl.ID] = true
				f := Feature{
					Source: "gplaces",
					ID:     pl.ID,
					Name:   pl.DisplayName.Text,
					Street: pl.FormattedAddress,
				}
				if pl.Location != nil {
					lat, lng := pl.Location.Latitude, pl.Location.Longitude
					f.Lat, f.Lng = &lat, &lng
				}
				features = append(features, f)
			}
			if resp.NextPageToken == "" {
				break
			}
			sr.PageToken = resp.NextPageToken
		}
	}
	return features, false, nil
}

func joinStreet(number, street string) string {
	switch {
	case number == "":
		return street
	case street == "":
		return ""
	default:
		return number + " " + street
	}
}
