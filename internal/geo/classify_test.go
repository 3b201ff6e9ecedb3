package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		expected string
	}{
		{"core: at center", 0, CoverageCore},
		{"core: at threshold", 8.0, CoverageCore},
		{"seeded: past core", 8.1, CoverageSeeded},
		{"seeded: at threshold", 20.0, CoverageSeeded},
		{"unseeded: far", 20.5, CoverageUnseeded},
		{"unseeded: no metro", -1, CoverageUnseeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.distance))
		})
	}
}
