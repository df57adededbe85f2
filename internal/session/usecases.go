package session

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/reqengine/internal/dedup"
	"github.com/fyrsmithlabs/reqengine/internal/usecase"
)

// StoredUseCase is a persisted use case.
type StoredUseCase struct {
	usecase.UseCase `yaml:",inline"`

	ID        string    `json:"id" yaml:"id"`
	SessionID string    `json:"session_id" yaml:"session_id"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// SaveUseCase stores uc in a session with its embedding vector, which may be
// nil, and returns the stored record.
func (s *Store) SaveUseCase(ctx context.Context, sessionID string, uc usecase.UseCase, vector []float32) (*StoredUseCase, error) {
	payload, err := json.Marshal(uc)
	if err != nil {
		return nil, fmt.Errorf("encoding use case: %w", err)
	}
	now := s.now()
	stored := &StoredUseCase{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UseCase:   uc,
		CreatedAt: now,
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.touch(ctx, tx, sessionID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO use_cases (id, session_id, title, payload, embedding, dimensions, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			stored.ID, sessionID, uc.Title, string(payload), blobArg(vector), len(vector),
			now.UnixNano(), now.UnixNano())
		if err != nil {
			return fmt.Errorf("saving use case: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// UseCases returns a session's use cases in insertion order.
func (s *Store) UseCases(ctx context.Context, sessionID string) ([]*StoredUseCase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, payload, created_at FROM use_cases
		 WHERE session_id = ? ORDER BY created_at, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing use cases: %w", err)
	}
	defer rows.Close()

	out := []*StoredUseCase{}
	for rows.Next() {
		uc, err := scanUseCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, uc)
	}
	return out, rows.Err()
}

// Titles returns the titles of a session's use cases in insertion order.
func (s *Store) Titles(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT title FROM use_cases WHERE session_id = ? ORDER BY created_at, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing titles: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scanning title: %w", err)
		}
		out = append(out, title)
	}
	return out, rows.Err()
}

// GetUseCase returns the use case with id, or ErrNotFound.
func (s *Store) GetUseCase(ctx context.Context, id string) (*StoredUseCase, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, payload, created_at FROM use_cases WHERE id = ?`, id)
	uc, err := scanUseCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("use case %s: %w", id, ErrNotFound)
	}
	return uc, err
}

// UpdateUseCase replaces the stored record wholesale. A nil vector keeps the
// stored embedding.
func (s *Store) UpdateUseCase(ctx context.Context, id string, uc usecase.UseCase, vector []float32) error {
	payload, err := json.Marshal(uc)
	if err != nil {
		return fmt.Errorf("encoding use case: %w", err)
	}
	now := s.now().UnixNano()

	var res sql.Result
	if vector == nil {
		res, err = s.db.ExecContext(ctx,
			`UPDATE use_cases SET title = ?, payload = ?, updated_at = ? WHERE id = ?`,
			uc.Title, string(payload), now, id)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE use_cases SET title = ?, payload = ?, embedding = ?, dimensions = ?, updated_at = ? WHERE id = ?`,
			uc.Title, string(payload), blobArg(vector), len(vector), now, id)
	}
	if err != nil {
		return fmt.Errorf("updating use case: %w", err)
	}
	return expectRow(res, "use case", id)
}

// DeleteUseCase removes a use case.
func (s *Store) DeleteUseCase(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM use_cases WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting use case: %w", err)
	}
	return expectRow(res, "use case", id)
}

// Embedding returns the stored vector of a use case; nil when none is stored.
func (s *Store) Embedding(ctx context.Context, id string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT embedding FROM use_cases WHERE id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("use case %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting embedding for use case %s: %w", id, err)
	}
	return bytesToFloat32(blob), nil
}

func scanUseCase(row scanner) (*StoredUseCase, error) {
	var uc StoredUseCase
	var payload string
	var created int64
	if err := row.Scan(&uc.ID, &uc.SessionID, &payload, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning use case: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &uc.UseCase); err != nil {
		return nil, fmt.Errorf("decoding use case %s: %w", uc.ID, err)
	}
	uc.CreatedAt = time.Unix(0, created).UTC()
	return &uc, nil
}

// Add stores vec as the embedding of use case id.
func (s *Store) Add(ctx context.Context, sessionID, id string, vec []float32) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE use_cases SET embedding = ?, dimensions = ? WHERE id = ? AND session_id = ?`,
		blobArg(vec), len(vec), id, sessionID)
	if err != nil {
		return fmt.Errorf("storing embedding for use case %s: %w", id, err)
	}
	return expectRow(res, "use case", id)
}

// Remove clears the embedding of use case id. The record itself stays.
func (s *Store) Remove(ctx context.Context, sessionID, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE use_cases SET embedding = NULL, dimensions = 0 WHERE id = ? AND session_id = ?`,
		id, sessionID)
	if err != nil {
		return fmt.Errorf("clearing embedding for use case %s: %w", id, err)
	}
	return nil
}

// Nearest scans the session's stored embeddings for the most similar one.
func (s *Store) Nearest(ctx context.Context, sessionID string, vec []float32) (dedup.Match, bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, embedding FROM use_cases
		 WHERE session_id = ? AND embedding IS NOT NULL AND dimensions = ?
		 ORDER BY created_at, rowid`, sessionID, len(vec))
	if err != nil {
		return dedup.Match{}, false, fmt.Errorf("scanning embeddings: %w", err)
	}
	defer rows.Close()

	var ids []string
	var vectors [][]float32
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return dedup.Match{}, false, fmt.Errorf("scanning embedding: %w", err)
		}
		ids = append(ids, id)
		vectors = append(vectors, bytesToFloat32(blob))
	}
	if err := rows.Err(); err != nil {
		return dedup.Match{}, false, err
	}

	sim, at := dedup.MaxSimilarity(vec, vectors)
	if at < 0 {
		return dedup.Match{}, false, nil
	}
	return dedup.Match{ID: ids[at], Similarity: sim}, true, nil
}

var _ dedup.Index = (*Store)(nil)

// blobArg binds a nil vector as SQL NULL rather than an empty blob.
func blobArg(vec []float32) any {
	if vec == nil {
		return nil
	}
	return float32ToBytes(vec)
}

// float32ToBytes encodes a vector as little-endian float32s. Nil stays nil.
func float32ToBytes(vec []float32) []byte {
	if vec == nil {
		return nil
	}
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// bytesToFloat32 decodes a little-endian float32 vector.
func bytesToFloat32(buf []byte) []float32 {
	if buf == nil {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
