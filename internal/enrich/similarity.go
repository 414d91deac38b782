package enrich

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldKey lower-cases s, strips diacritics and removes all whitespace.
func foldKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, folded)
}

// Dice returns the Sorensen-Dice coefficient of the character bigram
// multisets of a and b, in [0, 1].
func Dice(a, b string) float64 {
	if a == b {
		return 1
	}
	ar, br := []rune(a), []rune(b)
	if len(ar) < 2 || len(br) < 2 {
		return 0
	}

	counts := make(map[[2]rune]int, len(ar)-1)
	for i := 0; i < len(ar)-1; i++ {
		counts[[2]rune{ar[i], ar[i+1]}]++
	}
	shared := 0
	for i := 0; i < len(br)-1; i++ {
		k := [2]rune{br[i], br[i+1]}
		if counts[k] > 0 {
			counts[k]--
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(ar)-1+len(br)-1)
}

// NameHostSimilarity scores how much rawURL's hostname looks like the
// business name. Unparseable URLs score 0.
func NameHostSimilarity(name, rawURL string) float64 {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return 0
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	return Dice(foldKey(name), host)
}
