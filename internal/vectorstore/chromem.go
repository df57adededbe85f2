package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reqengine/internal/dedup"
)

var chromemTracer = otel.Tracer("reqengine.vectorstore.chromem")

const metaSession = "session_id"

// ErrInvalidConfig is returned for an unusable backend configuration.
var ErrInvalidConfig = errors.New("invalid vectorstore config")

// ChromemConfig holds configuration for the embedded chromem-go index.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty keeps the index
	// in memory only.
	Path string

	// Compress enables gzip compression of the stored files.
	Compress bool

	// Collection is the collection name.
	// Default: "reqengine_use_cases"
	Collection string
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
}

// ChromemIndex implements dedup.Index on a chromem-go collection.
// Documents carry the session id as metadata and queries filter on it.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	logger     *zap.Logger
}

// NewChromemIndex opens or creates the index.
func NewChromemIndex(cfg ChromemConfig, logger *zap.Logger) (*ChromemIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		path, err := expandPath(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("expanding path: %w", err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		if db, err = chromem.NewPersistentDB(path, cfg.Compress); err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
		cfg.Path = path
	}

	// Vectors are always supplied, so the embedding func is never called.
	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", cfg.Collection, err)
	}

	x := &ChromemIndex{db: db, collection: collection, logger: logger}

	logger.Info("chromem index initialized",
		zap.String("path", cfg.Path),
		zap.String("collection", cfg.Collection),
		zap.Int("documents", collection.Count()))
	return x, nil
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromem index requires precomputed embeddings")
}

// Add stores vec as the document id of the session.
func (x *ChromemIndex) Add(ctx context.Context, sessionID, id string, vec []float32) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Add")
	defer span.End()

	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", dedup.ErrDimensionMismatch)
	}
	doc := chromem.Document{
		ID:        id,
		Metadata:  map[string]string{metaSession: sessionID},
		Embedding: append([]float32(nil), vec...),
	}
	if err := x.collection.AddDocument(ctx, doc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "add failed")
		return fmt.Errorf("adding document %s: %w", id, err)
	}
	return nil
}

// Remove deletes document id. Unknown ids are ignored.
func (x *ChromemIndex) Remove(ctx context.Context, sessionID, id string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Remove")
	defer span.End()

	doc, err := x.collection.GetByID(ctx, id)
	if err != nil || doc.Metadata[metaSession] != sessionID {
		return nil
	}
	if err := x.collection.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	return nil
}

// Nearest queries the session's documents for the closest one. chromem
// normalizes vectors, so the returned similarity is the cosine.
func (x *ChromemIndex) Nearest(ctx context.Context, sessionID string, vec []float32) (dedup.Match, bool, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemIndex.Nearest")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	// chromem rejects asking for more results than the collection holds.
	if x.collection.Count() == 0 || len(vec) == 0 {
		return dedup.Match{}, false, nil
	}
	results, err := x.collection.QueryEmbedding(ctx, vec, 1, map[string]string{metaSession: sessionID}, nil)
	if err != nil {
		if strings.Contains(err.Error(), "same length") {
			return dedup.Match{}, false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return dedup.Match{}, false, fmt.Errorf("querying collection: %w", err)
	}
	if len(results) == 0 {
		return dedup.Match{}, false, nil
	}
	return dedup.Match{ID: results[0].ID, Similarity: float64(results[0].Similarity)}, true, nil
}

// Count returns the number of stored documents.
func (x *ChromemIndex) Count() int {
	return x.collection.Count()
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

var _ dedup.Index = (*ChromemIndex)(nil)
