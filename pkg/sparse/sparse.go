package sparse

import (
	"math"
	"regexp"
	"strings"
)

// Vector is a sparse token-weight representation of a text, used for the
// lexical half of hybrid search.
type Vector map[string]float64

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// Encoder computes TF-IDF weighted sparse vectors over a pool of texts.
// Weights are L2-normalized so Cosine of two vectors lands in [0,1].
// An encoder without a fitted pool falls back to plain term frequency.
type Encoder struct {
	df        map[string]int
	docCount  int
	stopwords map[string]struct{}
}

func NewEncoder() *Encoder {
	return &Encoder{
		df:        make(map[string]int),
		stopwords: defaultStopwords(),
	}
}

// Fit builds document frequencies from the pool. Calling Fit replaces any
// previous pool.
func (e *Encoder) Fit(pool []string) {
	e.df = make(map[string]int)
	e.docCount = len(pool)
	for _, text := range pool {
		seen := make(map[string]struct{})
		for _, tok := range e.tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			e.df[tok]++
		}
	}
}

// Encode produces the sparse vector for text. Texts with no usable tokens
// yield an empty vector, not an error.
func (e *Encoder) Encode(text string) Vector {
	tokens := e.tokenize(text)
	if len(tokens) == 0 {
		return Vector{}
	}

	tf := make(map[string]int)
	for _, tok := range tokens {
		tf[tok]++
	}

	vec := make(Vector, len(tf))
	for tok, count := range tf {
		weight := float64(count) / float64(len(tokens))
		if e.docCount > 0 {
			// smoothed IDF; unseen terms get the maximum weight
			weight *= math.Log((1+float64(e.docCount))/(1+float64(e.df[tok]))) + 1.0
		}
		vec[tok] = weight
	}

	norm := 0.0
	for _, w := range vec {
		norm += w * w
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for tok := range vec {
			vec[tok] /= norm
		}
	}
	return vec
}

// Cosine returns the similarity of two L2-normalized sparse vectors.
func Cosine(a, b Vector) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	sum := 0.0
	for tok, w := range a {
		sum += w * b[tok]
	}
	if sum < 0 {
		return 0
	}
	if sum > 1 {
		return 1
	}
	return sum
}

func (e *Encoder) tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, tok := range raw {
		if _, stop := e.stopwords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for",
		"to", "of", "in", "on", "at", "by", "with", "as", "is", "are",
		"was", "were", "be", "been", "being", "it", "this", "that", "these",
		"those", "from", "about", "into", "through", "during", "before",
		"after", "above", "below", "up", "down", "out", "off", "over",
		"under", "again", "than", "so", "such", "can", "will", "just",
		"has", "have", "had", "what", "which", "who", "whom", "all", "me",
		"my", "give", "show", "list",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
