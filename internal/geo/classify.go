package geo

// Coverage classes for a search point relative to the nearest seeded metro.
const (
	CoverageCore     = "metro_core"
	CoverageSeeded   = "seeded"
	CoverageUnseeded = "unseeded"
)

// Distance thresholds for coverage (kilometers).
const (
	coreThresholdKm   = 8.0
	SeededThresholdKm = 20.0
)

// Classify returns the coverage class for a point at distanceKm from the
// nearest metro center. A negative distance means no metro was found.
//   - metro_core: distance <= 8km
//   - seeded: distance <= 20km
//   - unseeded: otherwise
func Classify(distanceKm float64) string {
	switch {
	case distanceKm < 0:
		return CoverageUnseeded
	case distanceKm <= coreThresholdKm:
		return CoverageCore
	case distanceKm <= SeededThresholdKm:
		return CoverageSeeded
	default:
		return CoverageUnseeded
	}
}
