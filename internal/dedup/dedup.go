// Package dedup flags candidate use cases that repeat one already stored in
// the same session.
//
// A candidate is embedded from its title and main flow and compared by
// cosine similarity against the session's stored vectors. A maximum
// similarity at or above Threshold marks it a duplicate.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reqengine/internal/usecase"
)

// Threshold is the similarity at which a candidate counts as a duplicate.
// It is fixed, not a per-call setting.
const Threshold = 0.85

// ErrDimensionMismatch is returned when two vectors differ in length.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Embedder produces sentence embeddings. inference.Service satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Match is the closest stored vector to a query.
type Match struct {
	ID         string
	Similarity float64
}

// Index stores use case vectors per session.
type Index interface {
	// Add stores vec under id in the session.
	Add(ctx context.Context, sessionID, id string, vec []float32) error
	// Remove deletes id from the session. Unknown ids are not an error.
	Remove(ctx context.Context, sessionID, id string) error
	// Nearest returns the most similar stored vector in the session, and
	// false when the session has none.
	Nearest(ctx context.Context, sessionID string, vec []float32) (Match, bool, error)
}

// Verdict is the outcome of checking one candidate.
type Verdict struct {
	Duplicate  bool
	Similarity float64
	MatchID    string
	// Vector is the candidate embedding, kept so callers can store it.
	Vector []float32
}

// IsDuplicate reports whether similarity reaches Threshold.
func IsDuplicate(similarity float64) bool {
	return similarity >= Threshold
}

// Detector checks candidates against an Index.
type Detector struct {
	embedder Embedder
	index    Index
	logger   *zap.Logger
}

// NewDetector returns a Detector. A nil logger disables logging.
func NewDetector(embedder Embedder, index Index, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{embedder: embedder, index: index, logger: logger}
}

// Check embeds uc and compares it with the session's stored use cases.
func (d *Detector) Check(ctx context.Context, sessionID string, uc usecase.UseCase) (Verdict, error) {
	vec, err := d.embedder.Embed(ctx, uc.EmbeddingText())
	if err != nil {
		return Verdict{}, fmt.Errorf("embedding candidate: %w", err)
	}

	v := Verdict{Vector: vec}
	m, ok, err := d.index.Nearest(ctx, sessionID, vec)
	if err != nil {
		return Verdict{}, fmt.Errorf("querying index: %w", err)
	}
	if ok {
		v.Similarity = m.Similarity
		v.MatchID = m.ID
		v.Duplicate = IsDuplicate(m.Similarity)
	}
	if v.Duplicate {
		d.logger.Debug("duplicate use case",
			zap.String("title", uc.Title),
			zap.String("match_id", m.ID),
			zap.Float64("similarity", m.Similarity))
	}
	return v, nil
}

// Remember stores a persisted use case's vector so later candidates are
// compared against it.
func (d *Detector) Remember(ctx context.Context, sessionID, id string, vec []float32) error {
	if err := d.index.Add(ctx, sessionID, id, vec); err != nil {
		return fmt.Errorf("indexing use case: %w", err)
	}
	return nil
}

// Forget removes a use case from the index.
func (d *Detector) Forget(ctx context.Context, sessionID, id string) error {
	return d.index.Remove(ctx, sessionID, id)
}

// Cosine returns the cosine similarity of a and b. Zero vectors have
// similarity 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// MaxSimilarity returns the highest cosine similarity between vec and any of
// existing, with the index of that vector, or -1 when existing is empty.
// Vectors of a different dimension are skipped.
func MaxSimilarity(vec []float32, existing [][]float32) (float64, int) {
	best, at := 0.0, -1
	for i, e := range existing {
		sim, err := Cosine(vec, e)
		if err != nil {
			continue
		}
		if at < 0 || sim > best {
			best, at = sim, i
		}
	}
	return best, at
}
