package knowledge

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"mailtriage/pkg/logx"
)

// DefaultDocuments returns the built-in support corpus.
func DefaultDocuments() []Document {
	return []Document{
		{
			Category: "Account Issues",
			Title:    "Password Reset Process",
			Content:  `To reset your password, go to the login page and click "Forgot Password". Enter your email address and check your inbox for reset instructions. If you don't receive the email, check your spam folder.`,
			Keywords: []string{"password", "reset", "login", "access", "forgot", "account"},
		},
		{
			Category: "Account Issues",
			Title:    "Account Lockout Resolution",
			Content:  "If your account is locked due to multiple failed login attempts, wait 15 minutes before trying again. For immediate assistance, contact support with your username and email address.",
			Keywords: []string{"locked", "lockout", "failed", "attempts", "unlock", "access"},
		},
		{
			Category: "Technical Issues",
			Title:    "Browser Compatibility",
			Content:  "Our platform works best with Chrome, Firefox, Safari, or Edge. Clear your browser cache and cookies if you experience issues. Disable browser extensions temporarily to test.",
			Keywords: []string{"browser", "compatibility", "chrome", "firefox", "safari", "edge", "cache", "cookies"},
		},
		{
			Category: "Technical Issues",
			Title:    "API Rate Limits",
			Content:  "Pro plan users have a rate limit of 1000 requests per hour. Free plan users have 100 requests per hour. Rate limits reset every hour. Contact us to upgrade your plan for higher limits.",
			Keywords: []string{"api", "rate", "limit", "requests", "pro", "plan", "upgrade"},
		},
		{
			Category: "Billing",
			Title:    "Invoice Requests",
			Content:  "To request an invoice, log into your account and go to Billing > Invoice History. You can download invoices directly or request them via email. For custom billing periods, contact our billing team.",
			Keywords: []string{"invoice", "billing", "payment", "receipt", "download", "history"},
		},
		{
			Category: "Billing",
			Title:    "Subscription Management",
			Content:  "You can upgrade, downgrade, or cancel your subscription from your account settings. Changes take effect at the next billing cycle. Refunds are processed within 5-7 business days.",
			Keywords: []string{"subscription", "upgrade", "downgrade", "cancel", "billing", "refund"},
		},
		{
			Category: "General",
			Title:    "Getting Started Guide",
			Content:  "New users should start with our onboarding tutorial. Import your data using the CSV template provided. Set up integrations in the Settings tab. Watch our video tutorials for step-by-step guidance.",
			Keywords: []string{"getting started", "onboarding", "tutorial", "import", "data", "setup", "guide"},
		},
		{
			Category: "General",
			Title:    "Feature Requests",
			Content:  "We welcome feature requests! Submit them through our feedback form or email us directly. Popular requests are prioritized in our development roadmap. We review all suggestions monthly.",
			Keywords: []string{"feature", "request", "suggestion", "feedback", "roadmap", "development"},
		},
	}
}

// Seed adds docs to store when the store is empty and returns how many were added.
// A store that already holds documents is left alone.
func Seed(ctx context.Context, store Store, docs []Document) (int, error) {
	n, err := store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	if n > 0 {
		logx.Debug(ctx, "knowledge", "store already holds %d documents; skipping seed", n)
		return 0, nil
	}

	added := 0
	for i := range docs {
		if _, err := store.AddDocument(ctx, docs[i]); err != nil {
			return added, fmt.Errorf("failed to seed document %q: %w", docs[i].Title, err)
		}
		added++
	}
	return added, nil
}

// corpusFile is the on-disk layout read by LoadDocuments.
type corpusFile struct {
	Documents []Document `yaml:"documents"`
}

// LoadDocuments reads a YAML corpus of the form:
//
//	documents:
//	  - category: Billing
//	    title: Invoice Requests
//	    content: ...
//	    keywords: [invoice, billing]
func LoadDocuments(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus file %s: %w", path, err)
	}
	var file corpusFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse corpus file %s: %w", path, err)
	}
	for i, doc := range file.Documents {
		if doc.Title == "" {
			return nil, fmt.Errorf("corpus file %s: document %d has no title", path, i+1)
		}
		file.Documents[i].ID = 0
	}
	return file.Documents, nil
}
