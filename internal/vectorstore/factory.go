package vectorstore

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reqengine/internal/dedup"
	"github.com/fyrsmithlabs/reqengine/internal/logging"
	"github.com/fyrsmithlabs/reqengine/internal/qdrant"
	"github.com/fyrsmithlabs/reqengine/internal/session"
)

// Backend names.
const (
	BackendSQLite  = "sqlite"
	BackendMemory  = "memory"
	BackendChromem = "chromem"
	BackendQdrant  = "qdrant"
)

// DefaultCollection names the chromem and qdrant collections.
const DefaultCollection = "reqengine_use_cases"

// Backends lists the supported backend names.
var Backends = []string{BackendSQLite, BackendMemory, BackendChromem, BackendQdrant}

// Config selects and configures a backend.
type Config struct {
	Backend    string
	Path       string
	Compress   bool
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	VectorSize int
}

// Index is an opened backend. Close releases external connections.
type Index struct {
	dedup.Index
	Backend string
	closer  io.Closer
}

// Close releases the backend.
func (i *Index) Close() error {
	if i.closer == nil {
		return nil
	}
	return i.closer.Close()
}

// Open builds the configured backend.
//
// The sqlite backend reads the embeddings the session store already holds,
// so store is required for it and ignored otherwise.
func Open(cfg Config, store *session.Store, logger *logging.Logger) (*Index, error) {
	zl := zap.NewNop()
	if logger != nil {
		zl = logger.Underlying()
	}

	var idx dedup.Index
	var closer io.Closer
	backend := cfg.Backend
	switch backend {
	case BackendSQLite, "":
		if store == nil {
			return nil, fmt.Errorf("%w: sqlite index needs the session store", ErrInvalidConfig)
		}
		backend = BackendSQLite
		idx = store

	case BackendMemory:
		idx = dedup.NewMemoryIndex()

	case BackendChromem:
		c, err := NewChromemIndex(ChromemConfig{
			Path:       cfg.Path,
			Compress:   cfg.Compress,
			Collection: cfg.Collection,
		}, zl)
		if err != nil {
			return nil, err
		}
		idx = c

	case BackendQdrant:
		if logger == nil {
			logger = logging.NewNop()
		}
		client, err := qdrant.NewGRPCClient(&qdrant.ClientConfig{
			Host:   cfg.Host,
			Port:   cfg.Port,
			APIKey: cfg.APIKey,
			UseTLS: cfg.UseTLS,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to qdrant: %w", err)
		}
		q, err := qdrant.NewIndex(client, qdrant.IndexConfig{
			Collection: cfg.Collection,
			VectorSize: cfg.VectorSize,
		})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		idx, closer = q, q

	default:
		return nil, fmt.Errorf("%w: unsupported index backend %q (supported: %v)", ErrInvalidConfig, cfg.Backend, Backends)
	}

	zl.Debug("vector index opened", zap.String("backend", backend))
	return &Index{Index: Instrument(backend, idx), Backend: backend, closer: closer}, nil
}
