// Package inbox supplies raw support messages: a built-in demo set and YAML files.
package inbox

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"mailtriage/pkg/proto"
)

// Stagger is the spacing between demo messages, newest first.
const Stagger = 45 * time.Minute

type mockMessage struct {
	sender  string
	subject string
	body    string
}

//nolint:gochecknoglobals // fixed demo data
var mockMessages = []mockMessage{
	{
		sender:  "frustrated_user@example.com",
		subject: "URGENT Support Request: Cannot access my account!",
		body: `Hi team,

I've been trying to log into my account for the last hour and it's not working. The password reset link is also broken. This is a critical issue for me as I need to access my files immediately for a client presentation.

My username is frustrated_user. Please help me ASAP. My contact number is 555-123-4567.

This is incredibly frustrating.

Regards,
Jane Doe`,
	},
	{
		sender:  "happy_customer@example.com",
		subject: "Positive Feedback on your new feature",
		body: `Hello!

Just wanted to say that the new dashboard update is fantastic! It's so much more intuitive and has saved me a lot of time.

Great job to the entire team. Keep up the amazing work!

Best,
John Smith`,
	},
	{
		sender:  "curious_dev@example.com",
		subject: "Query about API integration",
		body: `Hi Support,

I'm looking into integrating your service with our internal tools via your API. I was reading the documentation but had a quick question about the rate limits for the Pro plan. Could you clarify what the exact limits are?

Thanks for your help.

Cheers,
Alex Ray`,
	},
	{
		sender:  "billing_dept@corp.com",
		subject: "Request: Invoice for last month",
		body: `Hello,

Could you please provide the invoice for our subscription for the previous month? We need it for our records. Our account is under billing_dept@corp.com.

Thank you.`,
	},
	{
		sender:  "confused_newbie@example.com",
		subject: "Help needed with setup process",
		body: `Hi there,

I just signed up and I'm a bit lost on how to get started. I've tried following the tutorial video but I seem to be stuck at the data import step. Can someone guide me through it?

My alternate email is newbie_help@provider.com.

Thanks,
Sam Wilson`,
	},
	{
		sender:  "sandra_o@techfirm.com",
		subject: "Critical Support: Production server is down",
		body:    `This is an emergency. Our production instance that relies on your service is completely unresponsive. We are losing business every minute this is down. I need immediate assistance. Call me at 555-987-6543 if needed.`,
	},
}

// Mock returns the six demo messages email_1..email_6, the first received at now and
// each later one Stagger earlier. Items are unclassified.
func Mock(now time.Time) []proto.WorkItem {
	items := make([]proto.WorkItem, len(mockMessages))
	for i, m := range mockMessages {
		items[i] = proto.WorkItem{
			ID:         fmt.Sprintf("email_%d", i+1),
			Sender:     m.sender,
			Subject:    m.subject,
			Body:       m.body,
			ReceivedAt: now.Add(-time.Duration(i) * Stagger),
		}
	}
	return items
}

// messageFile is the YAML layout read by LoadFile:
//
//	messages:
//	  - id: optional
//	    sender: a@example.com
//	    subject: ...
//	    body: |
//	      ...
//	    received_at: 2026-03-02T09:00:00Z   # optional
//	    urgency: Urgent                     # optional, classified when absent
//	    sentiment: Negative                 # optional
type messageFile struct {
	Messages []fileMessage `yaml:"messages"`
}

type fileMessage struct {
	ID         string    `yaml:"id"`
	Sender     string    `yaml:"sender"`
	Subject    string    `yaml:"subject"`
	Body       string    `yaml:"body"`
	ReceivedAt time.Time `yaml:"received_at"`
	Urgency    string    `yaml:"urgency"`
	Sentiment  string    `yaml:"sentiment"`
}

// LoadFile reads messages from a YAML file. Missing ids get a fresh identity and missing
// dates get now. Classification tags present in the file are validated and kept.
func LoadFile(path string, now time.Time) ([]proto.WorkItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inbox file: %w", err)
	}
	var file messageFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse inbox file %s: %w", path, err)
	}

	items := make([]proto.WorkItem, 0, len(file.Messages))
	seen := make(map[string]bool, len(file.Messages))
	for i, m := range file.Messages {
		if strings.TrimSpace(m.Subject) == "" && strings.TrimSpace(m.Body) == "" {
			return nil, fmt.Errorf("message %d in %s has neither subject nor body", i+1, path)
		}
		item := proto.WorkItem{
			ID:         m.ID,
			Sender:     m.Sender,
			Subject:    m.Subject,
			Body:       strings.TrimSpace(m.Body),
			ReceivedAt: m.ReceivedAt,
		}
		if item.ID == "" {
			item.ID = "msg_" + uuid.NewString()
		}
		if seen[item.ID] {
			return nil, fmt.Errorf("duplicate message id %q in %s", item.ID, path)
		}
		seen[item.ID] = true
		if item.ReceivedAt.IsZero() {
			item.ReceivedAt = now
		}
		if m.Urgency != "" {
			if item.Urgency, err = proto.ParseUrgency(m.Urgency); err != nil {
				return nil, fmt.Errorf("message %s: %w", item.ID, err)
			}
		}
		if m.Sentiment != "" {
			if item.Sentiment, err = proto.ParseSentiment(m.Sentiment); err != nil {
				return nil, fmt.Errorf("message %s: %w", item.ID, err)
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// Classified reports whether item already carries both classification tags.
func Classified(item *proto.WorkItem) bool {
	return item.Urgency != "" && item.Sentiment != ""
}
