// Package knowledge holds the support knowledge corpus: documents, stores, term extraction
// and relevance ranking.
package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Document is one support knowledge article. IDs are assigned by the store and never reused.
type Document struct {
	ID        int64     `json:"id" yaml:"id,omitempty"`
	Category  string    `json:"category" yaml:"category"`
	Title     string    `json:"title" yaml:"title"`
	Content   string    `json:"content" yaml:"content"`
	Keywords  []string  `json:"keywords" yaml:"keywords"`
	CreatedAt time.Time `json:"createdAt" yaml:"created_at,omitempty"`
}

// Store is the document store contract used by retrieval.
type Store interface {
	// Search returns documents whose title, content or any keyword contains term,
	// case-insensitively. No match is an empty result, not an error.
	Search(ctx context.Context, term string) ([]Document, error)
	// AddDocument stores doc and returns its new ID.
	AddDocument(ctx context.Context, doc Document) (int64, error)
	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)
}

// normalize validates doc and lowercases its keywords.
func normalize(doc Document) (Document, error) {
	if strings.TrimSpace(doc.Title) == "" {
		return Document{}, fmt.Errorf("document title is required")
	}
	keywords := make([]string, 0, len(doc.Keywords))
	seen := make(map[string]bool, len(doc.Keywords))
	for _, kw := range doc.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		keywords = append(keywords, kw)
	}
	doc.Keywords = keywords
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	return doc, nil
}

// matches reports whether doc matches an already lowercased term.
func matches(doc *Document, term string) bool {
	if strings.Contains(strings.ToLower(doc.Title), term) || strings.Contains(strings.ToLower(doc.Content), term) {
		return true
	}
	for _, kw := range doc.Keywords {
		if strings.Contains(kw, term) {
			return true
		}
	}
	return false
}
