//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	fastembed "github.com/anush008/fastembed-go"
)

const (
	defaultMaxLength = 512
	// passageBatch is the number of use cases embedded per ONNX run.
	passageBatch = 64
)

// FastEmbedConfig configures the local ONNX provider.
type FastEmbedConfig struct {
	// Model is a Hugging Face name or a fastembed alias. Empty means
	// DefaultModel.
	Model string
	// CacheDir holds downloaded model files. Empty means ./local_cache.
	CacheDir string
	// MaxLength caps the input sequence length. Zero means 512 tokens.
	MaxLength int
}

// FastEmbedProvider embeds text in-process with a local ONNX model.
type FastEmbedProvider struct {
	mu        sync.RWMutex
	model     *fastembed.FlagEmbedding
	modelName string
	dimension int
	metrics   *metrics
}

var fastembedModels = map[string]fastembed.EmbeddingModel{
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"BAAI/bge-small-zh-v1.5":                 fastembed.BGESmallZH,
}

// resolveFastembedModel maps a configured name to a fastembed model.
func resolveFastembedModel(name string) (fastembed.EmbeddingModel, bool) {
	if m, ok := fastembedModels[name]; ok {
		return m, true
	}
	if strings.HasPrefix(name, "fast-") {
		if _, ok := modelDimensions[name]; ok {
			return fastembed.EmbeddingModel(name), true
		}
	}
	return "", false
}

// NewFastEmbedProvider loads the model, downloading it into CacheDir on
// first use.
func NewFastEmbedProvider(cfg FastEmbedConfig) (*FastEmbedProvider, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	model, ok := resolveFastembedModel(cfg.Model)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported fastembed model %q", ErrInvalidConfig, cfg.Model)
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(".", "local_cache")
	}
	if cfg.MaxLength == 0 {
		cfg.MaxLength = defaultMaxLength
	}

	quiet := false
	flag, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cfg.CacheDir,
		MaxLength:            cfg.MaxLength,
		ShowDownloadProgress: &quiet,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing fastembed: %w", err)
	}

	dim, _ := knownModelDimension(cfg.Model)
	return &FastEmbedProvider{
		model:     flag,
		modelName: cfg.Model,
		dimension: dim,
		metrics:   newMetrics(ProviderFastEmbed),
	}, nil
}

// EmbedDocuments embeds stored use case text with the passage prefix.
func (p *FastEmbedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := p.embedDocuments(ctx, texts)
	p.metrics.observe(ctx, opDocuments, p.modelName, len(texts), start, err)
	return vectors, err
}

func (p *FastEmbedProvider) embedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	vectors, err := p.model.PassageEmbed(texts, passageBatch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vectors, nil
}

// EmbedQuery embeds a search or duplicate-check query.
func (p *FastEmbedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vector, err := p.embedQuery(ctx, text)
	p.metrics.observe(ctx, opQuery, p.modelName, 1, start, err)
	return vector, err
}

func (p *FastEmbedProvider) embedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	vector, err := p.model.QueryEmbed(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vector, nil
}

func (p *FastEmbedProvider) Dimension() int { return p.dimension }

// Close releases the ONNX session.
func (p *FastEmbedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return nil
	}
	err := p.model.Destroy()
	p.model = nil
	return err
}
