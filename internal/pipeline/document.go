package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reqengine/internal/chunking"
	"github.com/fyrsmithlabs/reqengine/internal/dedup"
	"github.com/fyrsmithlabs/reqengine/internal/estimator"
	"github.com/fyrsmithlabs/reqengine/internal/events"
	"github.com/fyrsmithlabs/reqengine/internal/memory"
	"github.com/fyrsmithlabs/reqengine/internal/session"
	"github.com/fyrsmithlabs/reqengine/internal/usecase"
)

// Extraction methods reported in a Summary.
const (
	MethodDirect  = "direct_smart"
	MethodChunked = "chunked_processing_smart"
)

// Result statuses.
const (
	StatusStored    = "stored"
	StatusDuplicate = "duplicate_skipped"
)

const (
	historyLimit = 10

	// message metadata types
	requirementInput = "requirement_input"
	extractionResult = "extraction_result"
)

// DocumentRequest is one requirement document submitted to a session.
type DocumentRequest struct {
	// SessionID selects an existing session. Empty creates a new one.
	SessionID      string
	Text           string
	ProjectContext string
	Domain         string
	// Filename is set for uploads and names the generated session title.
	Filename string
	// MaxUseCases <= 0 lets the estimator choose.
	MaxUseCases int
}

// ChunkSummary reports what one chunk produced.
type ChunkSummary struct {
	ChunkID       int `json:"chunk_id"`
	UseCasesFound int `json:"use_cases_found"`
	CharCount     int `json:"char_count"`
}

// ResultEntry is one extracted use case and what happened to it.
type ResultEntry struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
	usecase.UseCase
}

// Summary is the outcome of ProcessDocument.
type Summary struct {
	Message               string             `json:"message"`
	SessionID             string             `json:"session_id"`
	Filename              string             `json:"filename,omitempty"`
	ChunksProcessed       int                `json:"chunks_processed"`
	ChunkSummaries        []ChunkSummary     `json:"chunk_summaries"`
	ExtractedCount        int                `json:"extracted_count"`
	StoredCount           int                `json:"stored_count"`
	DuplicateCount        int                `json:"duplicate_count"`
	ProcessingTimeSeconds float64            `json:"processing_time_seconds"`
	SpeedPerChunk         float64            `json:"speed_per_chunk"`
	Results               []ResultEntry      `json:"results"`
	ValidationResults     []ValidationResult `json:"validation_results"`
	ExtractionMethod      string             `json:"extraction_method"`
}

// ProcessDocument extracts use cases from a document, drops duplicates of
// what the session already holds and stores the rest. Documents classified
// large or very large are chunked first.
func (s *Service) ProcessDocument(ctx context.Context, req DocumentRequest) (*Summary, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	start := s.now()

	sess, err := s.resolveSession(ctx, req)
	if err != nil {
		return nil, err
	}

	chunked := estimator.Classify(len(req.Text)).NeedsChunking()
	path := "direct"
	if chunked {
		path = "chunked"
	}
	ctx, span := startSpan(ctx, "pipeline.ProcessDocument")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("pipeline.path", path),
		attribute.Int("document.chars", len(req.Text)),
	)
	logger := s.logger.With(zap.String("session_id", sess.ID), zap.String("path", path))

	history, err := s.store.ConversationHistory(ctx, sess.ID, historyLimit)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	titles, err := s.store.Titles(ctx, sess.ID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	mc := memory.Context{
		ProjectContext: sess.ProjectContext,
		Domain:         sess.Domain,
		History:        history,
		PreviousTitles: titles,
	}

	if err := s.store.AddMessage(ctx, sess.ID, memory.RoleUser, req.Text,
		map[string]any{"type": requirementInput}); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	sum := &Summary{
		SessionID:         sess.ID,
		Filename:          req.Filename,
		ChunkSummaries:    []ChunkSummary{},
		Results:           []ResultEntry{},
		ValidationResults: []ValidationResult{},
	}

	var extracted []usecase.UseCase
	if chunked {
		sum.ExtractionMethod = MethodChunked
		extracted = s.extractChunks(ctx, req, mc, sum, logger)
	} else {
		sum.ExtractionMethod = MethodDirect
		out := s.engine.Run(ctx, req.Text, memory.Build(mc), req.MaxUseCases)
		useCasesExtracted.WithLabelValues(out.Method).Add(float64(len(out.UseCases)))
		extracted = out.UseCases
		sum.ChunksProcessed = 1
		sum.ChunkSummaries = append(sum.ChunkSummaries, ChunkSummary{
			ChunkID:       0,
			UseCasesFound: len(out.UseCases),
			CharCount:     len(req.Text),
		})
	}
	sum.ExtractedCount = len(extracted)

	// Every candidate is checked against the session as it was before this
	// document, so near-identical candidates of one request are all kept.
	verdicts := make([]dedup.Verdict, len(extracted))
	for i, uc := range extracted {
		verdicts[i] = s.checkCandidate(ctx, sess.ID, uc, logger)
	}
	for i, uc := range extracted {
		entry, err := s.storeCandidate(ctx, sess.ID, uc, verdicts[i], logger)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if entry.Status == StatusDuplicate {
			sum.DuplicateCount++
		} else {
			sum.StoredCount++
		}
		sum.Results = append(sum.Results, entry)
		sum.ValidationResults = append(sum.ValidationResults, validate(uc))
	}
	duplicatesSkipped.Add(float64(sum.DuplicateCount))

	elapsed := s.now().Sub(start).Seconds()
	sum.ProcessingTimeSeconds = round1(elapsed)
	if sum.ChunksProcessed > 0 {
		sum.SpeedPerChunk = round1(elapsed / float64(sum.ChunksProcessed))
	}
	sum.Message = summaryMessage(sum, elapsed)

	if err := s.store.AddMessage(ctx, sess.ID, memory.RoleAssistant, sum.Message, map[string]any{
		"type":              extractionResult,
		"extraction_method": sum.ExtractionMethod,
		"extracted_count":   sum.ExtractedCount,
		"stored_count":      sum.StoredCount,
		"duplicate_count":   sum.DuplicateCount,
		"chunks_processed":  sum.ChunksProcessed,
	}); err != nil {
		logger.Warn("storing assistant message failed", zap.Error(err))
	}

	documentsProcessed.WithLabelValues(path).Inc()
	documentDuration.WithLabelValues(path).Observe(elapsed)
	span.SetAttributes(
		attribute.Int("pipeline.extracted", sum.ExtractedCount),
		attribute.Int("pipeline.stored", sum.StoredCount),
		attribute.Int("pipeline.duplicates", sum.DuplicateCount),
	)
	logger.Info("document processed",
		zap.String("method", sum.ExtractionMethod),
		zap.Int("chunks", sum.ChunksProcessed),
		zap.Int("extracted", sum.ExtractedCount),
		zap.Int("stored", sum.StoredCount),
		zap.Int("duplicates", sum.DuplicateCount),
		zap.Float64("seconds", sum.ProcessingTimeSeconds))
	s.events.Emit(ctx, events.Event{
		Type:      events.DocumentProcessed,
		SessionID: sess.ID,
		Data: map[string]any{
			"filename":          sum.Filename,
			"extraction_method": sum.ExtractionMethod,
			"extracted_count":   sum.ExtractedCount,
			"stored_count":      sum.StoredCount,
			"duplicate_count":   sum.DuplicateCount,
		},
	})
	return sum, nil
}

// extractChunks runs extraction chunk by chunk. Each chunk's memory context
// also lists the titles produced by earlier chunks. A chunk that yields
// nothing is recorded and skipped.
func (s *Service) extractChunks(ctx context.Context, req DocumentRequest, mc memory.Context, sum *Summary, logger *zap.Logger) []usecase.UseCase {
	chunks := s.chunker.Chunk(req.Text, chunking.StrategyAuto)
	logger.Info("document chunked", zap.Int("chunks", len(chunks)), zap.Int("chars", len(req.Text)))

	perChunk := make([][]usecase.UseCase, 0, len(chunks))
	for _, c := range chunks {
		out := s.engine.Run(ctx, c.Text, memory.Build(mc), 0)
		if out.Failure != nil {
			logger.Warn("chunk fell back to pattern extraction",
				zap.Int("chunk_id", c.ID), zap.Error(out.Failure))
		}
		useCasesExtracted.WithLabelValues(out.Method).Add(float64(len(out.UseCases)))
		chunksProcessed.Inc()

		sum.ChunkSummaries = append(sum.ChunkSummaries, ChunkSummary{
			ChunkID:       c.ID,
			UseCasesFound: len(out.UseCases),
			CharCount:     c.CharCount,
		})
		perChunk = append(perChunk, out.UseCases)
		for _, uc := range out.UseCases {
			mc = mc.WithTitles(uc.Title)
		}
	}
	sum.ChunksProcessed = len(chunks)

	merged := chunking.Merge(perChunk)
	if req.MaxUseCases > 0 && len(merged) > req.MaxUseCases {
		logger.Debug("capping merged use cases",
			zap.Int("merged", len(merged)), zap.Int("max", req.MaxUseCases))
		merged = merged[:req.MaxUseCases]
	}
	return merged
}

// checkCandidate runs the duplicate check for uc. A failed check yields a
// zero verdict, so the use case is stored without a vector.
func (s *Service) checkCandidate(ctx context.Context, sessionID string, uc usecase.UseCase, logger *zap.Logger) dedup.Verdict {
	verdict, err := s.detector.Check(ctx, sessionID, uc)
	if err != nil {
		logger.Warn("duplicate check failed, storing without embedding",
			zap.String("title", uc.Title), zap.Error(err))
		return dedup.Verdict{}
	}
	return verdict
}

// storeCandidate stores uc unless its verdict marks it a duplicate.
func (s *Service) storeCandidate(ctx context.Context, sessionID string, uc usecase.UseCase, verdict dedup.Verdict, logger *zap.Logger) (ResultEntry, error) {
	if verdict.Duplicate {
		return ResultEntry{Status: StatusDuplicate, UseCase: uc}, nil
	}

	stored, err := s.store.SaveUseCase(ctx, sessionID, uc, verdict.Vector)
	if err != nil {
		return ResultEntry{}, fmt.Errorf("storing use case %q: %w", uc.Title, err)
	}
	if verdict.Vector != nil {
		if err := s.detector.Remember(ctx, sessionID, stored.ID, verdict.Vector); err != nil {
			logger.Warn("indexing use case failed", zap.String("id", stored.ID), zap.Error(err))
		}
	}
	return ResultEntry{Status: StatusStored, ID: stored.ID, UseCase: uc}, nil
}

// resolveSession loads or creates the session a document belongs to. New
// non-empty context values replace the stored ones; the title is kept.
func (s *Service) resolveSession(ctx context.Context, req DocumentRequest) (*session.Session, error) {
	if req.SessionID == "" {
		source := req.Text
		if req.Filename != "" {
			source = req.Filename
		}
		title := s.titleFor(ctx, source, req.Filename != "")
		return s.store.CreateSession(ctx, req.ProjectContext, req.Domain, title)
	}

	sess, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	var u session.ContextUpdate
	if p := strings.TrimSpace(req.ProjectContext); p != "" && p != sess.ProjectContext {
		u.ProjectContext = &p
		sess.ProjectContext = p
	}
	if d := strings.TrimSpace(req.Domain); d != "" && d != sess.Domain {
		u.Domain = &d
		sess.Domain = d
	}
	if u.ProjectContext != nil || u.Domain != nil {
		if err := s.store.UpdateSessionContext(ctx, sess.ID, u); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

func summaryMessage(sum *Summary, elapsed float64) string {
	switch {
	case sum.ExtractedCount == 0:
		return "No use cases could be extracted"
	case sum.ExtractionMethod == MethodChunked:
		return fmt.Sprintf("Chunked extraction: %d use cases from %d chunks in %.1fs",
			sum.ExtractedCount, sum.ChunksProcessed, elapsed)
	default:
		return fmt.Sprintf("Smart extraction: %d use cases in %.1fs", sum.ExtractedCount, elapsed)
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
