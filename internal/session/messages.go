package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/reqengine/internal/memory"
)

// Message is one stored conversation turn.
type Message struct {
	ID        int64          `json:"id"`
	SessionID string         `json:"session_id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"timestamp"`
}

// Summary is a stored conversation summary.
type Summary struct {
	SessionID   string    `json:"session_id"`
	Summary     string    `json:"summary"`
	KeyConcepts []string  `json:"key_concepts"`
	CreatedAt   time.Time `json:"created_at"`
}

// ContextUpdate changes session metadata. Nil fields are left unchanged.
type ContextUpdate struct {
	ProjectContext *string
	Domain         *string
	Title          *string
}

// UpdateSessionContext applies u to the session with id.
func (s *Store) UpdateSessionContext(ctx context.Context, id string, u ContextUpdate) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.touch(ctx, tx, id); err != nil {
			return err
		}
		sets := []struct {
			column string
			value  *string
		}{
			{"project_context", u.ProjectContext},
			{"domain", u.Domain},
			{"title", u.Title},
		}
		for _, set := range sets {
			if set.value == nil {
				continue
			}
			// column names come from the fixed list above
			if _, err := tx.ExecContext(ctx, "UPDATE sessions SET "+set.column+" = ? WHERE id = ?", *set.value, id); err != nil {
				return fmt.Errorf("updating session %s: %w", set.column, err)
			}
		}
		return nil
	})
}

// AddMessage appends a turn to a session's conversation.
func (s *Store) AddMessage(ctx context.Context, sessionID, role, content string, metadata map[string]any) error {
	meta := []byte("{}")
	if len(metadata) > 0 {
		var err error
		if meta, err = json.Marshal(metadata); err != nil {
			return fmt.Errorf("encoding message metadata: %w", err)
		}
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.touch(ctx, tx, sessionID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, role, content, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
			sessionID, role, content, string(meta), s.now().UnixNano())
		if err != nil {
			return fmt.Errorf("adding message: %w", err)
		}
		return nil
	})
}

// Messages returns the last limit messages of a session in chronological
// order. A non-positive limit returns all of them.
func (s *Store) Messages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, metadata, created_at FROM (
			SELECT * FROM messages WHERE session_id = ? ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var m Message
		var meta string
		var created int64
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &meta, &created); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &m.Metadata); err != nil {
				return nil, fmt.Errorf("decoding message metadata: %w", err)
			}
		}
		m.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// ConversationHistory returns the last limit turns of a session,
// chronologically, in the shape the memory context consumes.
func (s *Store) ConversationHistory(ctx context.Context, sessionID string, limit int) ([]memory.Turn, error) {
	msgs, err := s.Messages(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	turns := make([]memory.Turn, len(msgs))
	for i, m := range msgs {
		turns[i] = memory.Turn{Role: m.Role, Content: m.Content}
	}
	return turns, nil
}

// AddSummary stores a conversation summary.
func (s *Store) AddSummary(ctx context.Context, sessionID, summary string, keyConcepts []string) error {
	if keyConcepts == nil {
		keyConcepts = []string{}
	}
	concepts, err := json.Marshal(keyConcepts)
	if err != nil {
		return fmt.Errorf("encoding key concepts: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.touch(ctx, tx, sessionID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO session_summaries (session_id, summary, key_concepts, created_at) VALUES (?, ?, ?, ?)`,
			sessionID, summary, string(concepts), s.now().UnixNano())
		if err != nil {
			return fmt.Errorf("adding summary: %w", err)
		}
		return nil
	})
}

// LatestSummary returns the most recent summary of a session, or ErrNotFound.
func (s *Store) LatestSummary(ctx context.Context, sessionID string) (*Summary, error) {
	var sum Summary
	var concepts string
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, summary, key_concepts, created_at FROM session_summaries
		 WHERE session_id = ? ORDER BY id DESC LIMIT 1`, sessionID,
	).Scan(&sum.SessionID, &sum.Summary, &concepts, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("summary for session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting summary: %w", err)
	}
	if err := json.Unmarshal([]byte(concepts), &sum.KeyConcepts); err != nil {
		return nil, fmt.Errorf("decoding key concepts: %w", err)
	}
	sum.CreatedAt = time.Unix(0, created).UTC()
	return &sum, nil
}
