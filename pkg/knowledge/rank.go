package knowledge

import (
	"slices"
	"strings"
)

// RankedMatch is a document with its relevance to one message.
type RankedMatch struct {
	Document Document
	Score    int
}

// Rank scores docs against the message text and returns them best first. Documents with
// equal scores keep their input order. docs is not modified.
func Rank(docs []Document, subject, body, customerRequest string) []RankedMatch {
	text := strings.ToLower(subject + " " + body + " " + customerRequest)

	matches := make([]RankedMatch, 0, len(docs))
	for _, doc := range docs {
		matches = append(matches, RankedMatch{Document: doc, Score: relevance(&doc, text)})
	}
	slices.SortStableFunc(matches, func(a, b RankedMatch) int {
		return b.Score - a.Score
	})
	return matches
}

// RankAndDedupe drops repeated documents (first occurrence wins), then orders the rest by
// relevance. Documents without an ID have no identity and are skipped.
func RankAndDedupe(docs []Document, subject, body, customerRequest string) []Document {
	seen := make(map[int64]bool, len(docs))
	unique := make([]Document, 0, len(docs))
	for _, doc := range docs {
		if doc.ID == 0 || seen[doc.ID] {
			continue
		}
		seen[doc.ID] = true
		unique = append(unique, doc)
	}

	ranked := Rank(unique, subject, body, customerRequest)
	out := make([]Document, len(ranked))
	for i, m := range ranked {
		out[i] = m.Document
	}
	return out
}

// relevance is one point per keyword present in text, plus two when the whole title is.
func relevance(doc *Document, text string) int {
	score := 0
	for _, kw := range doc.Keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			score++
		}
	}
	if strings.Contains(text, strings.ToLower(doc.Title)) {
		score += 2
	}
	return score
}
