package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reqengine/internal/events"
	"github.com/fyrsmithlabs/reqengine/internal/llm"
	"github.com/fyrsmithlabs/reqengine/internal/prompt"
	"github.com/fyrsmithlabs/reqengine/internal/session"
	"github.com/fyrsmithlabs/reqengine/internal/usecase"
	"github.com/fyrsmithlabs/reqengine/internal/validator"
)

// Refine asks the model to improve a stored use case and replaces the record
// with the result. On any failure the stored record is left untouched.
func (s *Service) Refine(ctx context.Context, id, kind string) (*session.StoredUseCase, error) {
	ctx, span := startSpan(ctx, "pipeline.Refine")
	defer span.End()

	stored, err := s.store.GetUseCase(ctx, id)
	if err != nil {
		return nil, err
	}
	refined, err := s.engine.Refine(ctx, stored.UseCase, kind)
	if err != nil {
		return nil, fmt.Errorf("refining use case %s: %w", id, err)
	}

	vec, err := s.embedder.Embed(ctx, refined.EmbeddingText())
	if err != nil {
		s.logger.Warn("embedding refined use case failed, keeping previous vector",
			zap.String("id", id), zap.Error(err))
		vec = nil
	}
	if err := s.store.UpdateUseCase(ctx, id, refined, vec); err != nil {
		return nil, err
	}
	if vec != nil {
		if err := s.detector.Remember(ctx, stored.SessionID, id, vec); err != nil {
			s.logger.Warn("reindexing refined use case failed", zap.String("id", id), zap.Error(err))
		}
	}

	s.logger.Info("use case refined",
		zap.String("id", id),
		zap.String("kind", kind),
		zap.Int("main_flow", len(refined.MainFlow)))
	stored.UseCase = refined
	s.events.Emit(ctx, events.Event{
		Type:      events.UseCaseRefined,
		SessionID: stored.SessionID,
		UseCaseID: id,
		Data:      map[string]any{"refinement_type": kind, "title": refined.Title},
	})
	return stored, nil
}

// Validation returns the combined validation report of a stored use case.
func (s *Service) Validation(ctx context.Context, id string) (validator.Report, error) {
	stored, err := s.store.GetUseCase(ctx, id)
	if err != nil {
		return validator.Report{}, err
	}
	return validator.Analyze(stored.UseCase), nil
}

// DeleteUseCase removes a stored use case and its index entry, so a later
// document may produce it again.
func (s *Service) DeleteUseCase(ctx context.Context, id string) error {
	stored, err := s.store.GetUseCase(ctx, id)
	if err != nil {
		return err
	}
	if err := s.detector.Forget(ctx, stored.SessionID, id); err != nil {
		s.logger.Warn("removing use case from index failed", zap.String("id", id), zap.Error(err))
	}
	if err := s.store.DeleteUseCase(ctx, id); err != nil {
		return err
	}
	s.events.Emit(ctx, events.Event{Type: events.UseCaseDeleted, SessionID: stored.SessionID, UseCaseID: id})
	return nil
}

// Answer is the reply to a question about a session's use cases.
type Answer struct {
	Answer           string   `json:"answer"`
	RelevantUseCases []string `json:"relevant_use_cases"`
	TotalUseCases    int      `json:"total_use_cases"`
}

// NoUseCasesAnswer is returned for sessions that hold no use cases yet.
const NoUseCasesAnswer = "No use cases found for this session yet."

var queryOptions = llm.Options{MaxTokens: 400, Temperature: 0.5, TopP: 0.9}

var (
	useCaseRefs = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\(Use Case\s+\d+\)`),
		regexp.MustCompile(`(?i)\(Use Cases\s+\d+[,\s]*\d*\)`),
		regexp.MustCompile(`(?i)Use Case\s+\d+`),
		regexp.MustCompile(`(?i)UC\s+\d+`),
	}
	spaces      = regexp.MustCompile(`\s+`)
	doubleComma = regexp.MustCompile(`\s*,\s*,`)
	commaStop   = regexp.MustCompile(`\s*,\s*\.`)
)

// Query answers a question about a session's use cases. Use case ids and
// ordinal references never appear in the answer.
func (s *Service) Query(ctx context.Context, sessionID, question string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	ctx, span := startSpan(ctx, "pipeline.Query")
	defer span.End()

	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	stored, err := s.store.UseCases(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return &Answer{Answer: NoUseCasesAnswer, RelevantUseCases: []string{}}, nil
	}

	records := make([]usecase.UseCase, 0, len(stored))
	for _, st := range stored {
		records = append(records, st.UseCase)
	}
	rendered, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("rendering use cases: %w", err)
	}

	raw, err := s.completer.Complete(ctx, prompt.Query(string(rendered), question), queryOptions)
	if err != nil {
		return nil, fmt.Errorf("answering query: %w", err)
	}

	return &Answer{
		Answer:           stripReferences(raw),
		RelevantUseCases: relevantTitles(records, question),
		TotalUseCases:    len(records),
	}, nil
}

func stripReferences(answer string) string {
	for _, re := range useCaseRefs {
		answer = re.ReplaceAllString(answer, "")
	}
	answer = spaces.ReplaceAllString(answer, " ")
	answer = doubleComma.ReplaceAllString(answer, ",")
	answer = commaStop.ReplaceAllString(answer, ".")
	return strings.TrimSpace(answer)
}

// relevantTitles returns the titles sharing a word of three or more letters
// with the question.
func relevantTitles(records []usecase.UseCase, question string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(question)) {
		w = strings.Trim(w, ".,;:!?'\"()")
		if len(w) >= 3 {
			words = append(words, w)
		}
	}
	out := []string{}
	for _, uc := range records {
		title := strings.ToLower(uc.Title)
		for _, w := range words {
			if strings.Contains(title, w) {
				out = append(out, uc.Title)
				break
			}
		}
	}
	return out
}
