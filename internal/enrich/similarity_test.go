package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDice(t *testing.T) {
	assert.InDelta(t, 1.0, Dice("night", "night"), 0.0001)
	assert.InDelta(t, 0.25, Dice("night", "nacht"), 0.0001)
	assert.InDelta(t, 0.0, Dice("a", "ab"), 0.0001)
	assert.InDelta(t, 0.0, Dice("abc", "xyz"), 0.0001)
}

func TestDice_RepeatedBigramsCountOnce(t *testing.T) {
	// "aaaa" has three "aa" bigrams, "aa" has one; only one can pair.
	assert.InDelta(t, 0.5, Dice("aaaa", "aa"), 0.0001)
}

func TestFoldKey(t *testing.T) {
	assert.Equal(t, "cafedeparis", foldKey("Café de Paris"))
	assert.Equal(t, "acmeplumbing", foldKey("  Acme\tPlumbing "))
}

func TestNameHostSimilarity(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		atLeast float64
		below   float64
	}{
		{"Acme Plumbing", "https://acmeplumbing.ca", 0.8, 1.01},
		{"Acme Plumbing", "https://www.acmeplumbing.ca/contact", 0.8, 1.01},
		{"Café Olé", "https://cafeole.com", 0.6, 1.01},
		{"Acme Plumbing", "https://totallyunrelated.com", 0, 0.2},
		{"Acme Plumbing", "://bad", 0, 0.0001},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got := NameHostSimilarity(tt.name, tt.url)
			assert.GreaterOrEqual(t, got, tt.atLeast)
			assert.Less(t, got, tt.below)
		})
	}
}
