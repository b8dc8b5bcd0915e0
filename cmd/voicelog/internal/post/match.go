// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package post

import (
	"strings"
	"unicode/utf8"
)

// Matcher finds the candidate a user query refers to. Candidates are task
// texts followed by their tags, as in "Buy milk #shop".
type Matcher interface {
	// Find returns the index of the best candidate for query, or false if
	// none matches.
	Find(candidates []string, query string) (int, bool)
}

// SubstringMatcher matches candidates that contain the query, ignoring case.
// Among them it picks the tightest one, the one where the query makes up the
// largest share of the candidate. Ties go to the first candidate.
type SubstringMatcher struct{}

// Find implements [Matcher].
func (SubstringMatcher) Find(candidates []string, query string) (int, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return -1, false
	}
	qlen := float64(utf8.RuneCountInString(q))

	best, bestScore := -1, 0.0
	for i, c := range candidates {
		lc := strings.ToLower(c)
		if !strings.Contains(lc, q) {
			continue
		}
		score := qlen / float64(utf8.RuneCountInString(lc))
		if best == -1 || score > bestScore {
			best, bestScore = i, score
		}
	}
	return best, best != -1
}

// ExactMatcher matches a candidate equal to the query, ignoring case and
// surrounding whitespace.
type ExactMatcher struct{}

// Find implements [Matcher].
func (ExactMatcher) Find(candidates []string, query string) (int, bool) {
	q := strings.TrimSpace(query)
	if q == "" {
		return -1, false
	}
	for i, c := range candidates {
		if strings.EqualFold(strings.TrimSpace(c), q) {
			return i, true
		}
	}
	return -1, false
}
