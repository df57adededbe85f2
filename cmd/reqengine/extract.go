package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/reqengine/internal/config"
	"github.com/fyrsmithlabs/reqengine/internal/embeddings"
	"github.com/fyrsmithlabs/reqengine/internal/inference"
	"github.com/fyrsmithlabs/reqengine/internal/llm"
	"github.com/fyrsmithlabs/reqengine/internal/pipeline"
	"github.com/fyrsmithlabs/reqengine/internal/session"
)

// Output formats accepted by --format.
const (
	formatJSON = "json"
	formatYAML = "yaml"
)

func newExtractCmd(opts *options) *cobra.Command {
	var format string
	var maxUseCases int
	cmd := &cobra.Command{
		Use:   "extract FILE",
		Short: "Extract use cases from a file with the configured LLM",
		Long: `Extract use cases from FILE ("-" reads stdin) and print them with their
validation results. Nothing is stored.

Examples:
  # Let the estimator pick the target count
  reqengine extract requirements.md

  # At most three use cases, as YAML
  reqengine extract --max 3 --format yaml requirements.md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != formatJSON && format != formatYAML {
				return fmt.Errorf("unknown format %q (want %s or %s)", format, formatJSON, formatYAML)
			}
			text, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			svc, closeFn, err := newExtractor(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			out, err := svc.Extract(cmd.Context(), text, maxUseCases)
			if err != nil {
				return err
			}
			return writeFormatted(cmd.OutOrStdout(), format, out)
		},
	}
	cmd.Flags().StringVar(&format, "format", formatJSON, "output format: json or yaml")
	cmd.Flags().IntVar(&maxUseCases, "max", 0, "maximum use cases (0 lets the estimator decide)")
	return cmd
}

// newExtractor builds a pipeline for stateless extraction. Extract never
// embeds or persists, so an in-memory store and the hashing embedder stand
// in for the configured ones.
func newExtractor(cfg *config.Config) (*pipeline.Service, func(), error) {
	scrubber, err := newScrubber(cfg.Secrets)
	if err != nil {
		return nil, nil, err
	}
	backend, err := llm.New(llmConfig(cfg.LLM), scrubber)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create llm backend: %w", err)
	}
	store, err := session.Open(session.Config{Path: session.MemoryPath})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open scratch store: %w", err)
	}
	infer := inference.New(backend, embeddings.NewHashProvider(0))
	svc, err := pipeline.New(pipeline.Deps{Completer: infer, Embedder: infer, Store: store},
		pipeline.Config{ChunkMaxTokens: cfg.Chunking.MaxTokens}, nil)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return svc, func() { _ = store.Close() }, nil
}

func writeFormatted(w io.Writer, format string, v any) error {
	if format == formatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}
