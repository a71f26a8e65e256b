package knowledge

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"
)

// supportTerms is the fixed vocabulary matched against message text.
var supportTerms = []string{
	"password", "login", "access", "account", "billing", "invoice",
	"api", "integration", "error", "bug", "issue", "problem",
	"upgrade", "downgrade", "cancel", "refund", "payment",
	"tutorial", "guide", "help", "setup", "configuration",
}

var productPattern = regexp.MustCompile(`\b(?:dashboard|api|service|platform|app|system)\b`)

// maxConcurrentSearches bounds the fan-out in SearchTerms.
const maxConcurrentSearches = 4

// ExtractTerms returns the lowercase search terms found in a message: vocabulary terms
// contained anywhere in the text, then product nouns matched as whole words. Each term
// appears once, in first-found order.
func ExtractTerms(subject, body, customerRequest string) []string {
	text := strings.ToLower(subject + " " + body + " " + customerRequest)

	seen := make(map[string]bool)
	terms := []string{}
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			terms = append(terms, t)
		}
	}
	for _, t := range supportTerms {
		if strings.Contains(text, t) {
			add(t)
		}
	}
	for _, t := range productPattern.FindAllString(text, -1) {
		add(t)
	}
	return terms
}

// SearchTerms runs one store search per term and concatenates the results in term order.
// Failed searches are skipped; their errors are joined into the returned error alongside
// whatever the other terms found.
func SearchTerms(ctx context.Context, store Store, terms []string) ([]Document, error) {
	if store == nil {
		return nil, fmt.Errorf("document store is nil")
	}
	perTerm := make([][]Document, len(terms))
	errs := make([]error, len(terms))

	var g errgroup.Group
	g.SetLimit(maxConcurrentSearches)
	for i, term := range terms {
		g.Go(func() error {
			docs, err := store.Search(ctx, term)
			if err != nil {
				errs[i] = fmt.Errorf("search %q: %w", term, err)
				return nil
			}
			perTerm[i] = docs
			return nil
		})
	}
	_ = g.Wait()

	var all []Document
	for _, docs := range perTerm {
		all = append(all, docs...)
	}
	return all, errors.Join(errs...)
}
