package geo

import "math"

// Metro is a seeded metropolitan center.
type Metro struct {
	Name       string  `json:"name"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Population int     `json:"population"`
}

// Metros lists the largest US cities by population. Seed jobs walk it in
// order.
var Metros = []Metro{
	{"New York, NY", 40.7128, -74.0060, 8336817},
	{"Los Angeles, CA", 34.0522, -118.2437, 3979576},
	{"Chicago, IL", 41.8781, -87.6298, 2693976},
	{"Houston, TX", 29.7604, -95.3698, 2320268},
	{"Phoenix, AZ", 33.4484, -112.0740, 1680992},
	{"Philadelphia, PA", 39.9526, -75.1652, 1584064},
	{"San Antonio, TX", 29.4241, -98.4936, 1547253},
	{"San Diego, CA", 32.7157, -117.1611, 1423851},
	{"Dallas, TX", 32.7767, -96.7970, 1343573},
	{"San Jose, CA", 37.3382, -121.8863, 1021795},
	{"Austin, TX", 30.2672, -97.7431, 978908},
	{"Jacksonville, FL", 30.3322, -81.6557, 949611},
	{"Fort Worth, TX", 32.7555, -97.3308, 918915},
	{"Columbus, OH", 39.9612, -82.9988, 905748},
	{"Charlotte, NC", 35.2271, -80.8431, 885708},
	{"San Francisco, CA", 37.7749, -122.4194, 873965},
	{"Indianapolis, IN", 39.7684, -86.1581, 887642},
	{"Seattle, WA", 47.6062, -122.3321, 753675},
	{"Denver, CO", 39.7392, -104.9903, 727211},
	{"Washington, DC", 38.9072, -77.0369, 705749},
	{"Boston, MA", 42.3601, -71.0589, 692600},
	{"El Paso, TX", 31.7619, -106.4850, 681728},
	{"Nashville, TN", 36.1627, -86.7816, 689447},
	{"Detroit, MI", 42.3314, -83.0458, 639111},
	{"Oklahoma City, OK", 35.4676, -97.5164, 687725},
	{"Portland, OR", 45.5152, -122.6784, 652503},
	{"Las Vegas, NV", 36.1699, -115.1398, 641903},
	{"Memphis, TN", 35.1495, -90.0490, 633104},
	{"Louisville, KY", 38.2527, -85.7585, 617638},
	{"Baltimore, MD", 39.2904, -76.6122, 585708},
	{"Milwaukee, WI", 43.0389, -87.9065, 577222},
	{"Albuquerque, NM", 35.0844, -106.6504, 564559},
	{"Tucson, AZ", 32.2226, -110.9747, 548073},
	{"Fresno, CA", 36.7378, -119.7871, 542107},
	{"Mesa, AZ", 33.4152, -111.8315, 528159},
	{"Sacramento, CA", 38.5816, -121.4944, 524943},
	{"Atlanta, GA", 33.7490, -84.3880, 498715},
	{"Kansas City, MO", 39.0997, -94.5786, 508090},
	{"Colorado Springs, CO", 38.8339, -104.8214, 498879},
	{"Raleigh, NC", 35.7796, -78.6382, 474069},
	{"Miami, FL", 25.7617, -80.1918, 442241},
	{"Long Beach, CA", 33.7701, -118.1937, 466742},
	{"Virginia Beach, VA", 36.8529, -75.9780, 459470},
	{"Omaha, NE", 41.2565, -95.9345, 486051},
	{"Oakland, CA", 37.8044, -122.2712, 440646},
	{"Minneapolis, MN", 44.9778, -93.2650, 429954},
	{"Tulsa, OK", 36.1540, -95.9928, 413066},
	{"Tampa, FL", 27.9506, -82.4572, 399700},
	{"Arlington, TX", 32.7357, -97.1081, 398121},
	{"New Orleans, LA", 29.9511, -90.0715, 389617},
}

// NearestMetro returns the closest metro within maxKm of (lat, lng) and its
// distance. ok is false when none is in range.
func NearestMetro(lat, lng, maxKm float64) (m Metro, distanceKm float64, ok bool) {
	best := math.Inf(1)
	for _, candidate := range Metros {
		d := Haversine(lat, lng, candidate.Lat, candidate.Lng)
		if d < best && d <= maxKm {
			best = d
			m = candidate
			ok = true
		}
	}
	if !ok {
		return Metro{}, -1, false
	}
	return m, best, true
}

// TopMetros returns the first n metros, or all of them when n <= 0 or n
// exceeds the table.
func TopMetros(n int) []Metro {
	if n <= 0 || n > len(Metros) {
		n = len(Metros)
	}
	out := make([]Metro, n)
	copy(out, Metros[:n])
	return out
}
