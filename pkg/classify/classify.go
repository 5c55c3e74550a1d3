package classify

import (
	"regexp"
	"strings"

	"github.com/xhad/docdex/internal/models"
)

type ClassifierConfig struct {
	DefaultTopK  int
	DefaultAlpha float64
	Stoplist     []string // extra generic words that never start a name
}

// Classifier decides whether a query asks about a named individual. This is
// a heuristic over surface patterns; anything without a confident subject
// falls back to general mode.
type Classifier struct {
	config   ClassifierConfig
	stoplist map[string]struct{}
}

// personCues are phrases that signal a person-oriented question when they
// appear near a name-like span.
var personCues = regexp.MustCompile(`(?i)\b(worked on|works on|done|who is|profile|experience|expertise|resume|project history|background|involved in|responsible for|role)\b`)

// nameSpan matches a capitalized multi-token span, the shape of a full name.
var nameSpan = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+\b`)

func NewWithConfig(config ClassifierConfig) Classifier {
	if config.DefaultTopK <= 0 {
		config.DefaultTopK = 5
	}
	if config.DefaultAlpha <= 0 || config.DefaultAlpha > 1 {
		config.DefaultAlpha = 0.7
	}

	stoplist := make(map[string]struct{})
	for _, w := range defaultStoplist() {
		stoplist[strings.ToLower(w)] = struct{}{}
	}
	for _, w := range config.Stoplist {
		stoplist[strings.ToLower(w)] = struct{}{}
	}

	return Classifier{config: config, stoplist: stoplist}
}

func New() Classifier {
	return NewWithConfig(ClassifierConfig{})
}

// Classify inspects the query text and returns it with a resolved mode and,
// for person queries, the extracted subject name.
func (c Classifier) Classify(query string) models.Query {
	q := models.Query{
		Raw:   query,
		Mode:  models.ModeGeneral,
		TopK:  c.config.DefaultTopK,
		Alpha: c.config.DefaultAlpha,
	}

	if !personCues.MatchString(query) {
		return q
	}

	if subject := c.extractSubject(query); subject != "" {
		q.Mode = models.ModePerson
		q.Subject = subject
	}
	return q
}

// extractSubject returns the first capitalized multi-token span that still
// has at least two non-generic words after leading stoplist words (sentence
// starters like "Has", "Show") are trimmed, or "" when no span qualifies.
func (c Classifier) extractSubject(query string) string {
	for _, span := range nameSpan.FindAllString(query, -1) {
		words := strings.Fields(span)
		for len(words) > 0 && c.generic(words[0]) {
			words = words[1:]
		}
		if len(words) < 2 {
			continue
		}
		qualified := true
		for _, word := range words {
			if c.generic(word) {
				qualified = false
				break
			}
		}
		if qualified {
			return strings.Join(words, " ")
		}
	}
	return ""
}

func (c Classifier) generic(word string) bool {
	_, ok := c.stoplist[strings.ToLower(word)]
	return ok
}

// defaultStoplist holds generic words that are capitalized in prose but
// never form part of a person's name in our document set.
func defaultStoplist() []string {
	return []string{
		"give", "show", "list", "tell", "find", "what", "which", "who",
		"whose", "when", "where", "how", "the", "all", "any", "some",
		"has", "have", "had", "does", "did", "is", "are", "was", "were",
		"project", "projects", "document", "documents", "report", "reports",
		"resume", "profile", "company", "client", "engineer", "engineering",
		"water", "treatment", "plant", "construction", "design", "phase",
		"north", "south", "east", "west", "new", "united", "states",
	}
}
