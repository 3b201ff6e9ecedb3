package overpass

import (
	"fmt"
	"strconv"
	"strings"
)

// Around is a circular search area.
type Around struct {
	Lat     float64
	Lng     float64
	RadiusM int
}

func (a Around) filter() string {
	return fmt.Sprintf("(around:%d,%s,%s)", a.RadiusM,
		strconv.FormatFloat(a.Lat, 'f', -1, 64),
		strconv.FormatFloat(a.Lng, 'f', -1, 64))
}

// broadCuisines are the cuisine tags accepted by BroadQuery.
const broadCuisines = "burger|pizza|chicken|sandwich|mexican"

// BrandQuery selects fast-food and restaurant nodes and ways whose name or
// brand tag matches pattern case-insensitively.
func BrandQuery(a Around, pattern string, timeoutSecs int) string {
	var b strings.Builder
	writeHeader(&b, timeoutSecs)
	for _, kind := range []string{"node", "way"} {
		for _, tag := range []string{"brand", "name"} {
			fmt.Fprintf(&b, "  %s[\"amenity\"~\"^(fast_food|restaurant)$\"][%q~\"(%s)\",i]%s;\n",
				kind, tag, pattern, a.filter())
		}
	}
	b.WriteString(");\nout center tags;")
	return b.String()
}

// BroadQuery selects any fast-food venue that carries a brand tag or a
// common chain cuisine.
func BroadQuery(a Around, timeoutSecs int) string {
	var b strings.Builder
	writeHeader(&b, timeoutSecs)
	for _, kind := range []string{"node", "way"} {
		fmt.Fprintf(&b, "  %s[\"amenity\"=\"fast_food\"][\"brand\"]%s;\n", kind, a.filter())
		fmt.Fprintf(&b, "  %s[\"amenity\"=\"fast_food\"][\"cuisine\"~\"%s\",i]%s;\n", kind, broadCuisines, a.filter())
	}
	b.WriteString(");\nout center tags;")
	return b.String()
}

func writeHeader(b *strings.Builder, timeoutSecs int) {
	if timeoutSecs <= 0 {
		timeoutSecs = 25
	}
	fmt.Fprintf(b, "[out:json][timeout:%d];\n(\n", timeoutSecs)
}
