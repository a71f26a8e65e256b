package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SQLiteStore keeps documents in the knowledge_documents table created by the
// persistence schema. Keywords are stored as a JSON array and matched with json_each.
// Title and content are matched against copies folded with strings.ToLower, so case
// folding agrees with MemoryStore for non-ASCII text.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open database.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AddDocument(ctx context.Context, doc Document) (int64, error) {
	doc, err := normalize(doc)
	if err != nil {
		return 0, err
	}
	keywords, err := json.Marshal(doc.Keywords)
	if err != nil {
		return 0, fmt.Errorf("failed to encode keywords: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO knowledge_documents (category, title, content, keywords, created_at, title_folded, content_folded)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, doc.Category, doc.Title, doc.Content, string(keywords), doc.CreatedAt.UTC().Format(time.RFC3339Nano),
		strings.ToLower(doc.Title), strings.ToLower(doc.Content))
	if err != nil {
		return 0, fmt.Errorf("failed to insert document %q: %w", doc.Title, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read document id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) Search(ctx context.Context, term string) ([]Document, error) {
	term = strings.ToLower(term)
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.category, d.title, d.content, d.keywords, d.created_at
		FROM knowledge_documents d
		WHERE instr(d.title_folded, ?1) > 0
		   OR instr(d.content_folded, ?1) > 0
		   OR EXISTS (
		        SELECT 1 FROM json_each(d.keywords) k
		        WHERE instr(k.value, ?1) > 0
		   )
		ORDER BY d.id
	`, term)
	if err != nil {
		return nil, fmt.Errorf("knowledge search failed: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Close in defer is safe

	docs := []Document{}
	for rows.Next() {
		var (
			doc      Document
			keywords string
			created  string
		)
		if err := rows.Scan(&doc.ID, &doc.Category, &doc.Title, &doc.Content, &keywords, &created); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if err := json.Unmarshal([]byte(keywords), &doc.Keywords); err != nil {
			return nil, fmt.Errorf("failed to decode keywords for document %d: %w", doc.ID, err)
		}
		if t, perr := time.Parse(time.RFC3339Nano, created); perr == nil {
			doc.CreatedAt = t
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return docs, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}
