package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversine(t *testing.T) {
	assert.InDelta(t, 0, Haversine(40.7128, -74.0060, 40.7128, -74.0060), 1e-9)

	// New York to Los Angeles is roughly 3936 km.
	d := Haversine(40.7128, -74.0060, 34.0522, -118.2437)
	assert.InDelta(t, 3936, d, 5)

	// One degree of latitude along a meridian.
	assert.InDelta(t, 111.19, Haversine(0, 0, 1, 0), 0.01)

	// Symmetric.
	assert.InDelta(t, Haversine(1, 2, 3, 4), Haversine(3, 4, 1, 2), 1e-9)
}

func TestBoundingBox(t *testing.T) {
	b := BoundingBox(0, 0, 111)
	assert.InDelta(t, -1, b.Min(1), 1e-9)
	assert.InDelta(t, 1, b.Max(1), 1e-9)
	assert.InDelta(t, -1, b.Min(0), 1e-9)
	assert.InDelta(t, 1, b.Max(0), 1e-9)

	// Longitude delta widens with latitude.
	b = BoundingBox(60, 10, 111)
	assert.InDelta(t, 4, b.Max(0)-b.Min(0), 1e-6)
	assert.InDelta(t, 59, b.Min(1), 1e-9)
	assert.InDelta(t, 61, b.Max(1), 1e-9)
}

func TestBoundingBox_Pole(t *testing.T) {
	b := BoundingBox(90, 0, 50)
	assert.Equal(t, 90.0, b.Max(1))
	assert.Equal(t, -180.0, b.Min(0))
	assert.Equal(t, 180.0, b.Max(0))
}

func TestBoundingBox_ContainsCircle(t *testing.T) {
	lat, lng, r := 32.7767, -96.7970, 8.0
	b := BoundingBox(lat, lng, r)
	require.True(t, Contains(b, lat, lng))

	// A point 7.9 km due north is inside both the circle and the box.
	north := lat + 7.9/111.0
	assert.True(t, Contains(b, north, lng))
	assert.Less(t, Haversine(lat, lng, north, lng), r)

	assert.False(t, Contains(b, lat+1, lng))
}

func TestPoint(t *testing.T) {
	p := Point(40.5, -73.25)
	assert.Equal(t, -73.25, p.X())
	assert.Equal(t, 40.5, p.Y())
	assert.Equal(t, 4326, p.SRID())
}

func TestRound(t *testing.T) {
	assert.Equal(t, 1.8267, Round(1.826666666, 4))
	assert.Equal(t, 2.0, Round(1.99999, 2))
	assert.Equal(t, 3.14, Round(3.14159, 2))
}
