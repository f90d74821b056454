// Package canonical maps free-form merchant text onto a fixed list of reference merchant names.
package canonical

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultThreshold is the minimum similarity score for accepting a reference name.
const DefaultThreshold = 90

var (
	punctuation = strings.NewReplacer("*", " ", "-", " ", "_", " ")
	whitespace  = regexp.MustCompile(`\s+`)
)

// Clean normalizes merchant punctuation, collapses whitespace and uppercases the text.
func Clean(raw string) string {
	s := punctuation.Replace(raw)
	s = whitespace.ReplaceAllString(strings.TrimSpace(s), " ")
	// Casers keep state, so each call gets its own.
	return cases.Upper(language.Und).String(s)
}

// Canonicalizer resolves cleaned merchant text to the best matching reference name.
// It is immutable after New and safe for concurrent use.
type Canonicalizer struct {
	names     []string
	keys      []string // scoring form of names, same order
	threshold int
}

// New builds a Canonicalizer over names, kept in the given order for tie-breaks.
// A threshold outside 0..100 falls back to DefaultThreshold.
func New(names []string, threshold int) *Canonicalizer {
	if threshold < 0 || threshold > 100 {
		threshold = DefaultThreshold
	}
	c := &Canonicalizer{
		names:     make([]string, len(names)),
		keys:      make([]string, len(names)),
		threshold: threshold,
	}
	copy(c.names, names)
	for i, n := range names {
		c.keys[i] = scoringKey(n)
	}
	return c
}

// Threshold returns the acceptance score.
func (c *Canonicalizer) Threshold() int { return c.threshold }

// Canonicalize cleans raw and returns the best reference name with its score when the score
// reaches the threshold. Otherwise it returns the cleaned text itself with the best score seen.
func (c *Canonicalizer) Canonicalize(raw string) (string, int) {
	cleaned := Clean(raw)
	name, score := c.BestMatch(cleaned)
	if name != "" && score >= c.threshold {
		return name, score
	}
	return cleaned, score
}

// BestMatch returns the highest scoring reference name for text. Ties keep the earliest name.
// It returns "" and 0 when there are no reference names.
func (c *Canonicalizer) BestMatch(text string) (string, int) {
	key := scoringKey(text)

	best, bestScore := -1, -1
	for i, k := range c.keys {
		s := weightedRatio(key, k)
		if s > bestScore {
			best, bestScore = i, s
		}
		if s == 100 {
			break
		}
	}
	if best < 0 {
		return "", 0
	}
	return c.names[best], bestScore
}
