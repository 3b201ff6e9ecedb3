package brand

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"McDonald's", "mcdonalds"},
		{"Chick-fil-A #0142", "chickfila0142"},
		{"  Taco   Bell ", "tacobell"},
		{"Café Rio", "caferio"},
		{"Wendy’s", "wendys"},
		{"", ""},
		{"!!!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := Default()
	keys := r.Keys()
	require.GreaterOrEqual(t, len(keys), 15)
	assert.Equal(t, "mcdonalds", keys[0])
	assert.Equal(t, "chipotle", keys[1])

	e, ok := r.Lookup("chickfila")
	require.True(t, ok)
	assert.Equal(t, "Chick-fil-A", e.DisplayName)
	assert.Equal(t, "513fbc1283aa2dc80c00001c", e.NutritionixID)

	_, ok = r.Lookup("nope")
	assert.False(t, ok)
}

func TestDefaultRegistry_RegexPatternsKeptVerbatim(t *testing.T) {
	r, err := LoadRegistry("")
	require.NoError(t, err)

	tests := map[string][]string{
		"wingstop":  {"Wing[ ]?stop"},
		"tacobell":  {"Taco[ ]?Bell"},
		"chickfila": {"Chick[- ]?fil[- ]?A"},
		"fiveguys":  {"Five[ ]?Guys", "5[ ]?Guys"},
		"pizzahut":  {"Pizza[ ]?Hut"},
	}
	for key, want := range tests {
		e, ok := r.Lookup(key)
		require.True(t, ok, key)
		assert.Equal(t, want, e.Patterns, key)
	}
}

func TestResolve(t *testing.T) {
	r := Default()
	tests := []struct {
		name  string
		label string
		tag   string
		want  string
		ok    bool
	}{
		{"exact name", "McDonald's", "", "mcdonalds", true},
		{"spaced alias", "Mc Donalds Drive Thru", "", "mcdonalds", true},
		{"brand tag only", "Store #42", "Chipotle", "chipotle", true},
		{"hyphenated", "Chick-fil-A", "", "chickfila", true},
		{"spaced", "Chick Fil A at Mall", "", "chickfila", true},
		{"numeric alias", "5 Guys Burgers", "", "fiveguys", true},
		{"synonym", "Kentucky Fried Chicken", "", "kfc", true},
		{"short synonym", "Panda Inn", "", "pandaexpress", true},
		{"no match", "Joe's Diner", "", "", false},
		{"empty", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := r.Resolve(tt.label, tt.tag)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, e.Key)
		})
	}
}

func TestResolve_FirstRegisteredWins(t *testing.T) {
	r, err := NewRegistry([]Entry{
		{Key: "burgerking", DisplayName: "Burger King", Synonyms: []string{"burger king"}},
		{Key: "king", DisplayName: "King", Synonyms: []string{"king"}},
	})
	require.NoError(t, err)

	e, ok := r.Resolve("Burger King", "")
	require.True(t, ok)
	assert.Equal(t, "burgerking", e.Key)

	e, ok = r.Resolve("King Buffet", "")
	require.True(t, ok)
	assert.Equal(t, "king", e.Key)
}

func TestNewRegistry_Invalid(t *testing.T) {
	_, err := NewRegistry(nil)
	assert.Error(t, err)

	_, err = NewRegistry([]Entry{{Key: "Taco Bell"}})
	assert.Error(t, err)

	_, err = NewRegistry([]Entry{{Key: "kfc"}, {Key: "kfc"}})
	assert.Error(t, err)
}

func TestNewRegistry_DisplayNameDefaultsToKey(t *testing.T) {
	r, err := NewRegistry([]Entry{{Key: "sonic"}})
	require.NoError(t, err)
	e, ok := r.Lookup("sonic")
	require.True(t, ok)
	assert.Equal(t, "sonic", e.DisplayName)
	assert.Equal(t, 1, r.Len())
}

func TestLoadRegistry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "brands.yaml")
	doc := `brands:
  - key: sonic
    display_name: Sonic Drive-In
    synonyms: [sonic]
  - key: culvers
    display_name: Culver's
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	r, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"sonic", "culvers"}, r.Keys())

	e, ok := r.Resolve("Culvers of Madison", "")
	require.True(t, ok)
	assert.Equal(t, "culvers", e.Key)
}

func TestLoadRegistry_Errors(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("brands: [::"), 0o644))
	_, err = LoadRegistry(path)
	assert.Error(t, err)
}

func TestLoadRegistry_EmptyPathUsesDefault(t *testing.T) {
	r, err := LoadRegistry("")
	require.NoError(t, err)
	assert.Equal(t, Default().Keys(), r.Keys())
}

func TestQueryPattern(t *testing.T) {
	r := Default()

	p := r.QueryPattern([]string{"chickfila", "tacobell"})
	assert.Contains(t, p, "Chick-fil-A")
	assert.Contains(t, p, "Chick[- ]?fil[- ]?A")
	assert.Contains(t, p, "Taco[ ]?Bell")
	assert.NotContains(t, p, "McDonald")

	assert.Equal(t, fallbackPattern, r.QueryPattern(nil))
	assert.Equal(t, fallbackPattern, r.QueryPattern([]string{"unknown"}))
}

func TestQueryPattern_Dedupes(t *testing.T) {
	r, err := NewRegistry([]Entry{
		{Key: "subway", DisplayName: "Subway", Synonyms: []string{"Subway"}, Patterns: []string{"Subway"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Subway", r.QueryPattern([]string{"subway", "subway"}))
}

func TestSanitizePattern(t *testing.T) {
	assert.Equal(t, "Domino's", sanitizePattern(` "Domino's\`))
	assert.Equal(t, "ab", sanitizePattern("a|b"))
}
