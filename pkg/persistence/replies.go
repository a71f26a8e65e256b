package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"mailtriage/pkg/proto"
)

// ReplyStore persists processed messages.
type ReplyStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewReplyStore creates a store over an open database.
func NewReplyStore(db *DB) *ReplyStore {
	return &ReplyStore{db: db.SQL(), now: time.Now}
}

const messageColumns = `item_id, sender, subject, body, received_at, urgency, sentiment, summary,
	customer_request, contact, context_summary, actions, document_ids, draft, status, attempts,
	created_at, updated_at`

// Save inserts msg or, when the item was saved before, replaces its content and counts
// another attempt. Status and CreatedAt of an existing record are preserved.
func (s *ReplyStore) Save(ctx context.Context, msg *ProcessedMessage) error {
	if msg == nil || msg.Item.ID == "" {
		return fmt.Errorf("processed message requires an item id")
	}
	status := msg.Status
	if status == "" {
		status = StatusPending
	}
	if !IsValidStatus(string(status)) {
		return fmt.Errorf("invalid message status: %q", status)
	}

	contact, err := encodeJSON(msg.Item.Contact)
	if err != nil {
		return err
	}
	actions, err := encodeJSON(nonNil(msg.Actions))
	if err != nil {
		return err
	}
	docIDs, err := encodeJSON(nonNil(msg.DocumentIDs))
	if err != nil {
		return err
	}

	now := formatTime(s.now())
	item := msg.Item
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO processed_messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			sender = excluded.sender,
			subject = excluded.subject,
			body = excluded.body,
			urgency = excluded.urgency,
			sentiment = excluded.sentiment,
			summary = excluded.summary,
			customer_request = excluded.customer_request,
			contact = excluded.contact,
			context_summary = excluded.context_summary,
			actions = excluded.actions,
			document_ids = excluded.document_ids,
			draft = excluded.draft,
			attempts = processed_messages.attempts + 1,
			updated_at = excluded.updated_at
	`, item.ID, item.Sender, item.Subject, item.Body, formatTime(item.ReceivedAt),
		string(item.Urgency), string(item.Sentiment), item.Summary, item.CustomerRequest,
		contact, msg.ContextSummary, actions, docIDs, msg.Draft, string(status), now, now)
	if err != nil {
		return fmt.Errorf("failed to save processed message %s: %w", item.ID, err)
	}
	return nil
}

// Get returns the record for itemID, or ErrNotFound.
func (s *ReplyStore) Get(ctx context.Context, itemID string) (*ProcessedMessage, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM processed_messages WHERE item_id = ?`, itemID)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("processed message %s: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// UpdateStatus sets the status of one record.
func (s *ReplyStore) UpdateStatus(ctx context.Context, itemID string, status MessageStatus) error {
	if !IsValidStatus(string(status)) {
		return fmt.Errorf("invalid message status: %q", status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE processed_messages SET status = ?, updated_at = ? WHERE item_id = ?
	`, string(status), formatTime(s.now()), itemID)
	if err != nil {
		return fmt.Errorf("failed to update status for %s: %w", itemID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("processed message %s: %w", itemID, ErrNotFound)
	}
	return nil
}

// List returns records newest first.
func (s *ReplyStore) List(ctx context.Context, filter ListFilter) ([]*ProcessedMessage, error) {
	var (
		query strings.Builder
		args  []any
	)
	query.WriteString(`SELECT ` + messageColumns + ` FROM processed_messages`)
	if filter.Status != "" {
		query.WriteString(` WHERE status = ?`)
		args = append(args, string(filter.Status))
	}
	query.WriteString(` ORDER BY received_at DESC, item_id`)
	if filter.Limit > 0 {
		query.WriteString(` LIMIT ?`)
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list processed messages: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Close in defer is safe

	var out []*ProcessedMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

// Analytics aggregates every record relative to now. Hourly buckets cover the 24 hours
// before now and use the hour of the received time in now's location.
func (s *ReplyStore) Analytics(ctx context.Context, now time.Time) (*Analytics, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT received_at, urgency, sentiment, status FROM processed_messages`)
	if err != nil {
		return nil, fmt.Errorf("failed to query analytics: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Close in defer is safe

	a := &Analytics{
		SentimentCounts: map[string]int{
			string(proto.SentimentPositive): 0,
			string(proto.SentimentNegative): 0,
			string(proto.SentimentNeutral):  0,
		},
		UrgencyCounts: map[string]int{
			string(proto.UrgencyUrgent):    0,
			string(proto.UrgencyNotUrgent): 0,
		},
	}
	cutoff := now.Add(-24 * time.Hour)
	for rows.Next() {
		var received, urgency, sentiment, status string
		if err := rows.Scan(&received, &urgency, &sentiment, &status); err != nil {
			return nil, fmt.Errorf("failed to scan analytics row: %w", err)
		}
		a.TotalMessages++
		switch MessageStatus(status) {
		case StatusPending:
			a.PendingMessages++
		case StatusResolved:
			a.Resolved++
		}
		a.SentimentCounts[sentiment]++
		a.UrgencyCounts[urgency]++

		t, err := parseTime(received)
		if err != nil {
			continue
		}
		if t.Before(cutoff) {
			continue
		}
		a.Last24h++
		a.ByHour[t.In(now.Location()).Hour()]++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return a, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*ProcessedMessage, error) {
	var (
		msg                          ProcessedMessage
		received, urgency, sentiment string
		contact                      sql.NullString
		actions, docIDs, status      string
		created, updated             string
	)
	item := &msg.Item
	err := row.Scan(&item.ID, &item.Sender, &item.Subject, &item.Body, &received, &urgency, &sentiment,
		&item.Summary, &item.CustomerRequest, &contact, &msg.ContextSummary, &actions, &docIDs,
		&msg.Draft, &status, &msg.Attempts, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan processed message: %w", err)
	}

	item.Urgency = proto.Urgency(urgency)
	item.Sentiment = proto.Sentiment(sentiment)
	msg.Status = MessageStatus(status)
	if item.ReceivedAt, err = parseTime(received); err != nil {
		return nil, err
	}
	if msg.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if msg.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	if contact.Valid && contact.String != "null" {
		item.Contact = &proto.ContactDetails{}
		if err := json.Unmarshal([]byte(contact.String), item.Contact); err != nil {
			return nil, fmt.Errorf("failed to decode contact for %s: %w", item.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(actions), &msg.Actions); err != nil {
		return nil, fmt.Errorf("failed to decode actions for %s: %w", item.ID, err)
	}
	if err := json.Unmarshal([]byte(docIDs), &msg.DocumentIDs); err != nil {
		return nil, fmt.Errorf("failed to decode document ids for %s: %w", item.ID, err)
	}
	return &msg, nil
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode column: %w", err)
	}
	return string(b), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}
