package qdrant

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fyrsmithlabs/reqengine/internal/dedup"
)

const (
	// DefaultCollection holds every session's use case vectors.
	DefaultCollection = "reqengine_use_cases"

	fieldSession = "session_id"
	fieldUseCase = "use_case_id"
)

// ErrInvalidConfig is returned for an unusable index configuration.
var ErrInvalidConfig = errors.New("invalid qdrant index config")

var tracer = otel.Tracer("reqengine.qdrant")

// IndexConfig configures an Index.
type IndexConfig struct {
	Collection string
	VectorSize int
}

// Index stores use case vectors as points of one collection. Sessions are
// separated by a payload filter. Point ids are the use case ids, which must
// be UUIDs.
type Index struct {
	client     Client
	collection string
	vectorSize int

	once    sync.Once
	initErr error
}

// NewIndex wraps client. The collection is created on first use.
func NewIndex(client Client, cfg IndexConfig) (*Index, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: client is required", ErrInvalidConfig)
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.VectorSize <= 0 {
		return nil, fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return &Index{client: client, collection: cfg.Collection, vectorSize: cfg.VectorSize}, nil
}

func (x *Index) ensureCollection(ctx context.Context) error {
	x.once.Do(func() {
		exists, err := x.client.CollectionExists(ctx, x.collection)
		if err != nil {
			x.initErr = fmt.Errorf("checking collection %s: %w", x.collection, err)
			return
		}
		if exists {
			return
		}
		if err := x.client.CreateCollection(ctx, x.collection, uint64(x.vectorSize)); err != nil {
			x.initErr = fmt.Errorf("creating collection %s: %w", x.collection, err)
		}
	})
	return x.initErr
}

func (x *Index) checkDims(vec []float32) error {
	if len(vec) != x.vectorSize {
		return fmt.Errorf("%w: got %d, collection expects %d", dedup.ErrDimensionMismatch, len(vec), x.vectorSize)
	}
	return nil
}

// Add upserts the vector of use case id.
func (x *Index) Add(ctx context.Context, sessionID, id string, vec []float32) error {
	ctx, span := tracer.Start(ctx, "qdrant.Index.Add")
	defer span.End()

	if err := x.checkDims(vec); err != nil {
		return err
	}
	if err := x.ensureCollection(ctx); err != nil {
		return err
	}
	return x.client.Upsert(ctx, x.collection, []*Point{{
		ID:     id,
		Vector: vec,
		Payload: map[string]string{
			fieldSession: sessionID,
			fieldUseCase: id,
		},
	}})
}

// Remove deletes the point of use case id.
func (x *Index) Remove(ctx context.Context, _ string, id string) error {
	ctx, span := tracer.Start(ctx, "qdrant.Index.Remove")
	defer span.End()

	if err := x.ensureCollection(ctx); err != nil {
		return err
	}
	return x.client.Delete(ctx, x.collection, []string{id})
}

// Nearest returns the session's closest point. With cosine distance the
// score is the similarity.
func (x *Index) Nearest(ctx context.Context, sessionID string, vec []float32) (dedup.Match, bool, error) {
	ctx, span := tracer.Start(ctx, "qdrant.Index.Nearest")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	if len(vec) != x.vectorSize {
		return dedup.Match{}, false, nil
	}
	if err := x.ensureCollection(ctx); err != nil {
		return dedup.Match{}, false, err
	}
	hits, err := x.client.Search(ctx, x.collection, vec, 1, &Filter{
		Must: []Condition{{Field: fieldSession, Match: sessionID}},
	})
	if err != nil {
		return dedup.Match{}, false, fmt.Errorf("searching %s: %w", x.collection, err)
	}
	if len(hits) == 0 {
		return dedup.Match{}, false, nil
	}
	return dedup.Match{ID: hits[0].ID, Similarity: float64(hits[0].Score)}, true, nil
}

// Close closes the underlying client.
func (x *Index) Close() error {
	return x.client.Close()
}

var _ dedup.Index = (*Index)(nil)
