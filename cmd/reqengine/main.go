// Reqengine extracts structured use cases from requirement documents.
//
// The serve command runs the REST API. The remaining commands work on a
// single file and print their result to stdout.
//
// Usage:
//
//	# Start the API with ~/.config/reqengine/config.yaml
//	reqengine serve
//
//	# Size a document without calling a model
//	reqengine estimate requirements.md
//
//	# Extract use cases as YAML
//	reqengine extract --format yaml requirements.md
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/reqengine/internal/config"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options are the persistent flags shared by every command.
type options struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "reqengine",
		Short: "Extract and enrich use cases from requirement documents",
		Long: `reqengine turns free-form requirement text into structured use cases.

It serves a REST API backed by a local or hosted LLM, and offers offline
commands for sizing, chunking and validating documents.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, gitCommit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/reqengine/config.yaml)")

	root.AddCommand(
		newServeCmd(opts),
		newWatchCmd(opts),
		newExtractCmd(opts),
		newEstimateCmd(),
		newChunkCmd(),
		newValidateCmd(),
	)
	return root
}

func (o *options) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// readInput reads the named file, or stdin for "-".
func readInput(cmd *cobra.Command, name string) (string, error) {
	var content []byte
	var err error
	if name == "-" {
		content, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(name)
		if err != nil {
			return "", fmt.Errorf("failed to read file %s: %w", name, err)
		}
	}
	if len(content) == 0 {
		return "", fmt.Errorf("no content in %s", name)
	}
	return string(content), nil
}
