// Package qdrant stores use case embeddings in a Qdrant collection over gRPC.
package qdrant

import (
	"context"
)

// Client is the subset of Qdrant operations the index needs.
type Client interface {
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
	CollectionExists(ctx context.Context, name string) (bool, error)

	Upsert(ctx context.Context, collection string, points []*Point) error
	Search(ctx context.Context, collection string, vector []float32, limit uint64, filter *Filter) ([]*ScoredPoint, error)
	Delete(ctx context.Context, collection string, ids []string) error

	Health(ctx context.Context) error
	Close() error
}

// Point is a vector keyed by a UUID. The index only ever stores keyword
// payload values, so Payload is a plain string map.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]string
}

// ScoredPoint is a search hit.
type ScoredPoint struct {
	Point
	Score float32
}

// Filter restricts a search. All Must conditions have to hold.
type Filter struct {
	Must []Condition
}

// Condition is an exact keyword match on a payload field.
type Condition struct {
	Field string
	Match string
}
