package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"mailtriage/pkg/knowledge"
	"mailtriage/pkg/proto"
)

// systemInstruction is sent with every reply request.
const systemInstruction = `You are Alex, an expert customer support assistant. Use the provided context to give accurate, helpful responses.

Guidelines:
- Be empathetic and professional
- Use specific information from the knowledge base when available
- If the customer is frustrated (negative sentiment), acknowledge their feelings first
- Provide clear, actionable steps
- If you don't have enough information, ask specific questions
- Always sign off as "Alex from Support"`

// replyClosing ends every reply prompt and survives truncation.
const replyClosing = "\nGenerate a helpful, context-aware response to this customer.\n"

// excerpt returns the first n bytes of s, backed off to a rune boundary.
func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func summaryPrompt(item proto.WorkItem, docs []knowledge.Document, excerptChars int) string {
	entries := make([]string, 0, len(docs))
	for i := range docs {
		entries = append(entries, fmt.Sprintf("%s: %s...", docs[i].Title, excerpt(docs[i].Content, excerptChars)))
	}

	var sb strings.Builder
	sb.WriteString("Based on the customer email and relevant knowledge base entries, provide a brief context summary:\n\n")
	sb.WriteString("Customer Email:\n")
	fmt.Fprintf(&sb, "Subject: %s\n", item.Subject)
	fmt.Fprintf(&sb, "Request: %s\n\n", item.CustomerRequest)
	sb.WriteString("Relevant Knowledge Base Entries:\n")
	sb.WriteString(strings.Join(entries, "\n\n"))
	sb.WriteString("\n\nProvide a 2-3 sentence summary of the context and what information is available to help this customer.\n")
	return sb.String()
}

func actionsPrompt(item proto.WorkItem, docs []knowledge.Document) string {
	titles := make([]string, 0, len(docs))
	for i := range docs {
		titles = append(titles, docs[i].Title)
	}

	var sb strings.Builder
	sb.WriteString("Based on the customer email and available knowledge base entries, suggest 3-5 specific actions the support agent should take:\n\n")
	fmt.Fprintf(&sb, "Customer Request: %s\n", item.CustomerRequest)
	fmt.Fprintf(&sb, "Available Knowledge: %s\n\n", strings.Join(titles, ", "))
	sb.WriteString("Provide specific, actionable steps. Format as a simple list.\n")
	return sb.String()
}

func replyPrompt(item proto.WorkItem, bundle *Bundle) string {
	var sb strings.Builder
	sb.WriteString("Customer Email Analysis:\n")
	fmt.Fprintf(&sb, "- Sentiment: %s\n", item.Sentiment)
	fmt.Fprintf(&sb, "- Priority: %s\n", item.Urgency)
	fmt.Fprintf(&sb, "- Request: %s\n\n", item.CustomerRequest)
	sb.WriteString("Original Email:\n")
	fmt.Fprintf(&sb, "Subject: %s\n", item.Subject)
	fmt.Fprintf(&sb, "Body: %s\n", item.Body)

	if len(bundle.Documents) > 0 {
		sb.WriteString("\nRelevant Information:\n")
		for i := range bundle.Documents {
			fmt.Fprintf(&sb, "- %s: %s\n", bundle.Documents[i].Title, bundle.Documents[i].Content)
		}
	}
	if len(bundle.Actions) > 0 {
		sb.WriteString("\nSuggested Actions:\n")
		for _, action := range bundle.Actions {
			fmt.Fprintf(&sb, "- %s\n", action)
		}
	}

	return sb.String()
}
