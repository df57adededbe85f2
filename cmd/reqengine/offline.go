package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/reqengine/internal/chunking"
	"github.com/fyrsmithlabs/reqengine/internal/pipeline"
	"github.com/fyrsmithlabs/reqengine/internal/usecase"
	"github.com/fyrsmithlabs/reqengine/internal/validator"
)

func newEstimateCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "estimate FILE",
		Short: "Estimate how many use cases a document holds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			return writeFormatted(cmd.OutOrStdout(), format, pipeline.Estimate(text))
		},
	}
	cmd.Flags().StringVar(&format, "format", formatJSON, "output format: json or yaml")
	return cmd
}

// ChunkOutput is printed by the chunk command.
type ChunkOutput struct {
	Strategy chunking.Strategy `json:"strategy" yaml:"strategy"`
	Chunks   []chunking.Chunk  `json:"chunks" yaml:"chunks"`
}

func newChunkCmd() *cobra.Command {
	var maxTokens int
	var strategy string
	cmd := &cobra.Command{
		Use:   "chunk FILE",
		Short: "Split a document the way large uploads are split",
		Long: `Split FILE into the chunks a large document upload would be extracted
from. The strategy is detected from the text unless --strategy names one of
section, paragraph or sentence.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			s := chunking.ParseStrategy(strategy)
			if s == chunking.StrategyAuto {
				s = chunking.DetectStrategy(text)
			}
			chunks := chunking.New(maxTokens).Chunk(text, s)
			return writeFormatted(cmd.OutOrStdout(), formatJSON, ChunkOutput{Strategy: s, Chunks: chunks})
		},
	}
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "token budget per chunk (0 uses the default)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "section, paragraph or sentence (default: detect)")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Score use cases from a JSON file",
		Long: `Validate the use cases in FILE, a JSON object or array of objects with the
fields title, preconditions, main_flow, sub_flows, alternate_flows, outcomes
and stakeholders.

With --strict the command fails when any use case has issues.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			useCases, err := decodeUseCases([]byte(text))
			if err != nil {
				return err
			}

			pass := color.New(color.FgGreen, color.Bold)
			warn := color.New(color.FgYellow, color.Bold)
			faint := color.New(color.Faint)
			w := cmd.OutOrStdout()

			failed := 0
			for _, uc := range useCases {
				report := validator.Analyze(uc)
				if report.IsValid {
					pass.Fprint(w, "PASS")
				} else {
					failed++
					warn.Fprint(w, "WARN")
				}
				fmt.Fprintf(w, " %s (score %.1f)\n", uc.Title, report.ValidationScore)
				for _, issue := range report.Issues {
					fmt.Fprintf(w, "  - %s\n", issue)
				}
				for _, s := range report.Suggestions {
					faint.Fprintf(w, "  > %s\n", s)
				}
			}
			fmt.Fprintf(w, "%d use case(s), %d with issues\n", len(useCases), failed)

			if strict && failed > 0 {
				return fmt.Errorf("%d use case(s) failed validation", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when any use case has issues")
	return cmd
}

// decodeUseCases accepts one use case object or an array of them.
func decodeUseCases(data []byte) ([]usecase.UseCase, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var uc usecase.UseCase
		if err := json.Unmarshal(data, &uc); err != nil {
			return nil, fmt.Errorf("failed to decode use case: %w", err)
		}
		return []usecase.UseCase{uc}, nil
	}
	var list []usecase.UseCase
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to decode use cases: %w", err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no use cases in input")
	}
	return list, nil
}
