package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reqengine/internal/pipeline"
	"github.com/fyrsmithlabs/reqengine/internal/watch"
)

type watchOptions struct {
	sessionID      string
	projectContext string
	domain         string
	extensions     []string
}

func newWatchCmd(opts *options) *cobra.Command {
	wo := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch DIR",
		Short: "Extract use cases from files as they land in a directory",
		Long: `Watch DIR and run every requirement file written to it through the
document pipeline, storing the results in one session.

Without --session a new session is created on the first file.

Examples:
  # Collect everything dropped into ./inbox
  reqengine watch ./inbox --domain retail

  # Add to an existing session, Markdown files only
  reqengine watch ./inbox --session 0b6f... --ext md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			w, err := watch.New(args[0],
				watch.WithExtensions(wo.extensions...),
				watch.WithLogger(a.logger.Underlying().Named("watch")))
			if err != nil {
				return err
			}
			if err := w.Start(ctx); err != nil {
				return err
			}
			defer w.Stop()

			fmt.Fprintf(cmd.OutOrStdout(), "watching %s\n", args[0])
			return consume(ctx, a.svc, w.Files(), wo, cmd.OutOrStdout(), a.logger.Underlying())
		},
	}
	cmd.Flags().StringVar(&wo.sessionID, "session", "", "session to add use cases to (default: create one)")
	cmd.Flags().StringVar(&wo.projectContext, "project-context", "", "project context for a new session")
	cmd.Flags().StringVar(&wo.domain, "domain", "", "domain for a new session")
	cmd.Flags().StringSliceVar(&wo.extensions, "ext", watch.DefaultExtensions, "file extensions to process")
	return cmd
}

// consume processes files until ctx is done. A file that fails is reported
// and skipped; the first success fixes the session for later files.
func consume(ctx context.Context, svc *pipeline.Service, files <-chan string, wo *watchOptions, out io.Writer, logger *zap.Logger) error {
	ok := color.New(color.FgGreen)
	bad := color.New(color.FgRed)
	for {
		select {
		case <-ctx.Done():
			return nil
		case path := <-files:
			sum, err := processFile(ctx, svc, path, wo)
			if err != nil {
				logger.Warn("processing watched file failed", zap.String("file", path), zap.Error(err))
				bad.Fprintf(out, "%s: %v\n", filepath.Base(path), err)
				continue
			}
			wo.sessionID = sum.SessionID
			ok.Fprintf(out, "%s: stored %d, duplicates %d (session %s)\n",
				filepath.Base(path), sum.StoredCount, sum.DuplicateCount, sum.SessionID)
		}
	}
}

func processFile(ctx context.Context, svc *pipeline.Service, path string, wo *watchOptions) (*pipeline.Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("not UTF-8 text")
	}
	return svc.ProcessDocument(ctx, pipeline.DocumentRequest{
		SessionID:      wo.sessionID,
		Text:           string(data),
		ProjectContext: wo.projectContext,
		Domain:         wo.domain,
		Filename:       filepath.Base(path),
	})
}
