package dedupe

import (
	"strings"
	"unicode"
)

// Similarity scores two titles in [0,1]. The detector treats the function as
// pluggable so the algorithm and threshold can be tuned independently of
// merge logic.
type Similarity func(a, b string) float64

// NormalizeTitle case-folds, strips punctuation and collapses whitespace, so
// "Water Treatment Plant, Austin TX" and "water treatment plant austin tx"
// compare equal.
func NormalizeTitle(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Levenshtein returns normalized edit-distance similarity of the two
// normalized titles: 1 - distance/max(len).
func Levenshtein(a, b string) float64 {
	ra := []rune(NormalizeTitle(a))
	rb := []rune(NormalizeTitle(b))
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	return 1 - float64(prev[len(rb)])/float64(longest)
}

// TokenOverlap returns the Jaccard overlap of the normalized title tokens.
func TokenOverlap(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	shared := 0
	for tok := range ta {
		if tb[tok] {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

// TitleSimilarity is the default: the better of edit-distance and token-set
// similarity, so reordered words and small typos both score high.
func TitleSimilarity(a, b string) float64 {
	lev := Levenshtein(a, b)
	if overlap := TokenOverlap(a, b); overlap > lev {
		return overlap
	}
	return lev
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(NormalizeTitle(s)) {
		set[tok] = true
	}
	return set
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
