// Package classify tags incoming messages with urgency, sentiment and the customer's request.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"mailtriage/pkg/llm"
	"mailtriage/pkg/logx"
	"mailtriage/pkg/proto"
	"mailtriage/pkg/queue"
)

// Method records how an item was classified.
type Method string

const (
	MethodModel     Method = "model"
	MethodHeuristic Method = "heuristic"
)

// Analysis is the classification of one message.
type Analysis struct {
	Sentiment       proto.Sentiment
	Urgency         proto.Urgency
	Summary         string
	CustomerRequest string
	Contact         *proto.ContactDetails
}

// Apply copies the analysis onto item.
func (a *Analysis) Apply(item *proto.WorkItem) {
	item.Sentiment = a.Sentiment
	item.Urgency = a.Urgency
	item.Summary = a.Summary
	item.CustomerRequest = a.CustomerRequest
	item.Contact = a.Contact
}

const analysisInstruction = `You classify customer support emails. Respond with a single JSON object and nothing else:
{
  "sentiment": "Positive" | "Negative" | "Neutral",
  "priority": "Urgent" | "Not Urgent",
  "summary": "one or two sentence summary of the email",
  "customerRequest": "the primary request or question from the customer",
  "contactDetails": {"phone": "phone number if any", "alternateEmail": "alternate email if any"}
}
Mark the email Urgent for account access problems, critical failures, or explicit mentions of urgency.`

// analysisResponse mirrors the JSON the generator is asked for. Pointers tell missing
// fields from empty ones.
type analysisResponse struct {
	Sentiment       *string `json:"sentiment"`
	Priority        *string `json:"priority"`
	Summary         *string `json:"summary"`
	CustomerRequest *string `json:"customerRequest"`
	ContactDetails  *struct {
		Phone          string `json:"phone"`
		AlternateEmail string `json:"alternateEmail"`
	} `json:"contactDetails"`
}

// Analyzer classifies messages with a generator, falling back to Heuristic.
type Analyzer struct {
	gen    llm.Generator
	logger *logx.Logger
}

// NewAnalyzer returns an analyzer over gen; nil means heuristics only.
func NewAnalyzer(gen llm.Generator) *Analyzer {
	if gen == nil {
		gen = llm.Disabled
	}
	return &Analyzer{gen: gen, logger: logx.NewLogger("classify")}
}

// Analyze asks the generator for a structured analysis. A response that is not valid
// JSON or carries unknown enum values is an error.
func (a *Analyzer) Analyze(ctx context.Context, subject, body string) (Analysis, error) {
	prompt := fmt.Sprintf("Analyze the following email and provide a structured JSON response.\n\nSubject: \"%s\"\n\nBody:\n---\n%s\n---\n", subject, body)
	out, err := a.gen.Generate(ctx, prompt, analysisInstruction)
	if err != nil {
		return Analysis{}, fmt.Errorf("failed to analyze email: %w", err)
	}
	return ParseAnalysis(out)
}

// ParseAnalysis decodes a generator response, tolerating code fences and surrounding prose.
func ParseAnalysis(text string) (Analysis, error) {
	raw := extractJSON(text)
	var resp analysisResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return Analysis{}, fmt.Errorf("analysis is not valid JSON: %w", err)
	}
	if resp.Sentiment == nil || resp.Priority == nil || resp.Summary == nil || resp.CustomerRequest == nil {
		return Analysis{}, fmt.Errorf("analysis is missing required fields")
	}

	sentiment, err := proto.ParseSentiment(*resp.Sentiment)
	if err != nil {
		return Analysis{}, fmt.Errorf("invalid analysis: %w", err)
	}
	urgency, err := proto.ParseUrgency(*resp.Priority)
	if err != nil {
		return Analysis{}, fmt.Errorf("invalid analysis: %w", err)
	}

	analysis := Analysis{
		Sentiment:       sentiment,
		Urgency:         urgency,
		Summary:         strings.TrimSpace(*resp.Summary),
		CustomerRequest: strings.TrimSpace(*resp.CustomerRequest),
	}
	if cd := resp.ContactDetails; cd != nil && (cd.Phone != "" || cd.AlternateEmail != "") {
		analysis.Contact = &proto.ContactDetails{Phone: cd.Phone, AlternateEmail: cd.AlternateEmail}
	}
	return analysis, nil
}

// extractJSON strips Markdown fences and anything outside the outermost braces.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return strings.TrimSpace(text)
}

// Classify fills in item's classification. Generator failures fall back to Heuristic and
// never fail the item.
func (a *Analyzer) Classify(ctx context.Context, item *proto.WorkItem) Method {
	analysis, err := a.Analyze(ctx, item.Subject, item.Body)
	if err == nil {
		analysis.Apply(item)
		return MethodModel
	}
	if !llm.IsDisabled(err) {
		a.logger.Warn("analysis of %s failed, using heuristics: %v", item.ID, err)
	}
	heuristic := Heuristic(*item)
	heuristic.Apply(item)
	return MethodHeuristic
}

var (
	negativeWords = []string{"frustrat", "angry", "unacceptable", "terrible", "cannot", "can't", "broken", "not working", "disappointed", "down", "stuck", "unresponsive"}
	positiveWords = []string{"thank", "great", "fantastic", "love", "awesome", "excellent", "appreciate", "amazing"}

	phonePattern = regexp.MustCompile(`\b\d{3}[-.\s]\d{3}[-.\s]\d{4}\b`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
)

// Heuristic classifies without a generator: urgent when a scoring keyword appears,
// sentiment by counting frustration and praise words, the subject as the request.
func Heuristic(item proto.WorkItem) Analysis {
	text := strings.ToLower(item.Text())

	analysis := Analysis{
		Urgency:         proto.UrgencyNotUrgent,
		Sentiment:       proto.SentimentNeutral,
		Summary:         firstSentence(item.Body),
		CustomerRequest: item.Subject,
	}
	if queue.UrgencyKeywordHit(text) {
		analysis.Urgency = proto.UrgencyUrgent
	}

	neg, pos := countWords(text, negativeWords), countWords(text, positiveWords)
	switch {
	case neg > pos:
		analysis.Sentiment = proto.SentimentNegative
	case pos > neg:
		analysis.Sentiment = proto.SentimentPositive
	}

	contact := proto.ContactDetails{Phone: phonePattern.FindString(item.Body)}
	for _, addr := range emailPattern.FindAllString(item.Body, -1) {
		if !strings.EqualFold(addr, item.Sender) {
			contact.AlternateEmail = addr
			break
		}
	}
	if contact.Phone != "" || contact.AlternateEmail != "" {
		analysis.Contact = &contact
	}
	return analysis
}

func countWords(text string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			n++
		}
	}
	return n
}

const maxSummaryBytes = 200

// firstSentence returns the body up to its first sentence end, capped at maxSummaryBytes.
func firstSentence(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	if i := strings.IndexAny(body, ".!?"); i >= 0 {
		body = body[:i+1]
	}
	if len(body) > maxSummaryBytes {
		cut := maxSummaryBytes
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = strings.TrimSpace(body[:cut]) + "..."
	}
	return body
}
