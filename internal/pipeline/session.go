package pipeline

import (
	"context"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/fyrsmithlabs/reqengine/internal/events"
	"github.com/fyrsmithlabs/reqengine/internal/llm"
	"github.com/fyrsmithlabs/reqengine/internal/memory"
	"github.com/fyrsmithlabs/reqengine/internal/prompt"
	"github.com/fyrsmithlabs/reqengine/internal/session"
)

const (
	maxTitleChars    = 50
	minTitleWords    = 3
	maxTitleWords    = 10
	fallbackWords    = 6
	titlePromptChars = 1000
	keyConceptCount  = 5
)

var (
	titleOptions   = llm.Options{MaxTokens: 30, Temperature: 0.3, TopP: 0.85}
	summaryOptions = llm.Options{MaxTokens: 150, Temperature: 0.3, TopP: 0.9}
)

// SessionTitle generates a short title for requirement text. It falls back to
// the first words of the text when the model fails or answers out of shape.
func (s *Service) SessionTitle(ctx context.Context, text string) string {
	return s.titleFor(ctx, text, false)
}

func (s *Service) titleFor(ctx context.Context, source string, filename bool) string {
	source = strings.TrimSpace(source)
	if source == "" {
		return session.DefaultTitle
	}
	if filename {
		return fileTitle(source)
	}

	raw, err := s.completer.Complete(ctx, prompt.SessionTitle(truncateRunes(source, titlePromptChars)), titleOptions)
	if err != nil {
		s.logger.Debug("title generation failed", zap.Error(err))
		return firstWords(source, fallbackWords)
	}
	title := cleanTitle(raw)
	if n := len(strings.Fields(title)); n < minTitleWords || n > maxTitleWords || len(title) > maxTitleChars {
		return firstWords(source, fallbackWords)
	}
	return title
}

// fileTitle turns "user_login-flow.md" into "User Login Flow".
func fileTitle(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	title := cases.Title(language.English).String(strings.Join(strings.Fields(base), " "))
	if title == "" {
		return session.DefaultTitle
	}
	if len(title) > maxTitleChars {
		return title[:maxTitleChars-3] + "..."
	}
	return title
}

func cleanTitle(raw string) string {
	t := strings.ReplaceAll(strings.TrimSpace(raw), "\n", " ")
	t = strings.Trim(t, "\"'.,;: ")
	return strings.Join(strings.Fields(t), " ")
}

func firstWords(text string, n int) string {
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	t := strings.Join(words, " ")
	if len(t) > maxTitleChars {
		t = t[:maxTitleChars-3] + "..."
	}
	return t
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// SummarizeSession summarizes the session's conversation and stores the
// summary with its key concepts. A model failure stores a descriptive
// fallback instead.
func (s *Service) SummarizeSession(ctx context.Context, sessionID string) (*session.Summary, error) {
	ctx, span := startSpan(ctx, "pipeline.SummarizeSession")
	defer span.End()

	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	history, err := s.store.ConversationHistory(ctx, sessionID, 0)
	if err != nil {
		return nil, err
	}

	transcript := memory.Transcript(history)
	summary := memory.FallbackSummary(history)
	if transcript != "" {
		raw, err := s.completer.Complete(ctx, prompt.SessionSummary(transcript), summaryOptions)
		if err != nil {
			s.logger.Warn("session summary failed, using fallback",
				zap.String("session_id", sessionID), zap.Error(err))
		} else if t := strings.TrimSpace(raw); t != "" {
			summary = t
		}
	}

	concepts := memory.KeyConcepts(transcript, keyConceptCount)
	if err := s.store.AddSummary(ctx, sessionID, summary, concepts); err != nil {
		return nil, err
	}
	s.events.Emit(ctx, events.Event{
		Type:      events.SessionSummarized,
		SessionID: sessionID,
		Data:      map[string]any{"key_concepts": concepts},
	})
	return s.store.LatestSummary(ctx, sessionID)
}
