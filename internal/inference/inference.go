// Package inference bundles the model capabilities the pipeline depends on:
// text completion and sentence embedding.
//
// One Service is built at startup and passed to every component that needs
// a model, so models are loaded once and no package holds global handles.
package inference

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/reqengine/internal/embeddings"
	"github.com/fyrsmithlabs/reqengine/internal/llm"
	"github.com/fyrsmithlabs/reqengine/internal/prompt"
)

// ErrNoEmbedder is returned by Embed when the service has no embedder.
var ErrNoEmbedder = errors.New("no embedding provider configured")

// Service is the process-wide completion and embedding capability set.
type Service struct {
	backend  llm.Backend
	embedder embeddings.Embedder
}

// New returns a Service. embedder may be nil when duplicate detection is
// not needed.
func New(backend llm.Backend, embedder embeddings.Embedder) *Service {
	return &Service{backend: backend, embedder: embedder}
}

// Complete runs one completion against the configured backend.
func (s *Service) Complete(ctx context.Context, p prompt.Prompt, opts llm.Options) (string, error) {
	return s.backend.Complete(ctx, p, opts)
}

// Embed returns the sentence embedding of text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, ErrNoEmbedder
	}
	vec, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	return vec, nil
}

// EmbedBatch embeds several texts in one call.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if s.embedder == nil {
		return nil, ErrNoEmbedder
	}
	vecs, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding texts: %w", err)
	}
	return vecs, nil
}

// Backend exposes the completion backend.
func (s *Service) Backend() llm.Backend {
	return s.backend
}

// Name reports the backend name.
func (s *Service) Name() string {
	return s.backend.Name()
}
