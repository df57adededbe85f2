package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/reqengine/internal/chunking"
	"github.com/fyrsmithlabs/reqengine/internal/dedup"
	"github.com/fyrsmithlabs/reqengine/internal/estimator"
	"github.com/fyrsmithlabs/reqengine/internal/events"
	"github.com/fyrsmithlabs/reqengine/internal/extraction"
	"github.com/fyrsmithlabs/reqengine/internal/llm"
	"github.com/fyrsmithlabs/reqengine/internal/memory"
	"github.com/fyrsmithlabs/reqengine/internal/prompt"
	"github.com/fyrsmithlabs/reqengine/internal/session"
	"github.com/fyrsmithlabs/reqengine/internal/telemetry"
	"github.com/fyrsmithlabs/reqengine/internal/validator"
)

const requirements = "User can login. User can search products."

// twoUseCasesReply continues the "[" the extraction prompt primes with.
const twoUseCasesReply = `{"title": "User logs in to the system",
  "preconditions": ["User has a registered account"],
  "main_flow": ["User opens the login page", "User enters credentials", "System verifies credentials", "System opens the dashboard"],
  "alternate_flows": ["If credentials are wrong, system shows an error"],
  "outcomes": ["User is logged in"],
  "stakeholders": ["User", "System"]},
 {"title": "User searches for products",
  "main_flow": ["User types a query", "System lists matching products"],
  "stakeholders": ["User"]}
]`

// keywordEmbedder maps text onto one axis per keyword, choosing the keyword
// that appears first.
type keywordEmbedder struct {
	err error
}

func (e keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	lowered := strings.ToLower(text)
	vec := make([]float32, 4)
	best, axis := -1, 3
	for i, kw := range []string{"log", "search", "pay"} {
		if at := strings.Index(lowered, kw); at >= 0 && (best < 0 || at < best) {
			best, axis = at, i
		}
	}
	vec[axis] = 1
	return vec, nil
}

type fixture struct {
	svc     *Service
	backend *llm.Scripted
	store   *session.Store
	events  *events.Recorder
}

func newFixture(t *testing.T, embedder dedup.Embedder, replies ...llm.Reply) *fixture {
	t.Helper()
	store, err := session.Open(session.Config{Path: session.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	if embedder == nil {
		embedder = keywordEmbedder{}
	}
	backend := llm.NewScripted(replies...)
	rec := &events.Recorder{}
	svc, err := New(Deps{Completer: backend, Embedder: embedder, Store: store, Events: rec}, Config{}, nil)
	require.NoError(t, err)

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	return &fixture{svc: svc, backend: backend, store: store, events: rec}
}

func (f *fixture) session(t *testing.T) *session.Session {
	t.Helper()
	sess, err := f.store.CreateSession(context.Background(), "Online bookstore", "retail", "Bookstore")
	require.NoError(t, err)
	return sess
}

func TestNew(t *testing.T) {
	store, err := session.Open(session.Config{Path: session.MemoryPath})
	require.NoError(t, err)
	defer store.Close()
	backend := llm.NewScripted()

	tests := []struct {
		name string
		deps Deps
	}{
		{"no completer", Deps{Embedder: keywordEmbedder{}, Store: store}},
		{"no embedder", Deps{Completer: backend, Store: store}},
		{"no store", Deps{Completer: backend, Embedder: keywordEmbedder{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.deps, Config{}, nil)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	svc, err := New(Deps{Completer: backend, Embedder: keywordEmbedder{}, Store: store}, Config{}, nil)
	require.NoError(t, err)
	assert.Same(t, store, svc.Store())
}

func TestEstimate(t *testing.T) {
	est := Estimate(requirements)
	assert.GreaterOrEqual(t, est.SmartMax, 1)
	assert.LessOrEqual(t, est.SmartMax, 3)
	assert.LessOrEqual(t, est.Min, est.Max)
	assert.False(t, est.NeedsChunking)
	assert.Equal(t, len(requirements), est.Details.CharCount)

	big := Estimate(strings.Repeat("The user can export the report. ", 400))
	assert.True(t, big.NeedsChunking)
}

func TestExtract(t *testing.T) {
	ctx := context.Background()

	t.Run("empty text", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := f.svc.Extract(ctx, "  \n", 0)
		assert.ErrorIs(t, err, ErrEmptyText)
	})

	t.Run("llm", func(t *testing.T) {
		f := newFixture(t, nil, llm.Reply{Text: twoUseCasesReply})
		res, err := f.svc.Extract(ctx, requirements, 0)
		require.NoError(t, err)
		assert.Equal(t, extraction.MethodSingle, res.Method)
		require.Len(t, res.UseCases, 2)
		require.Len(t, res.Validation, 2)
		assert.Equal(t, "User logs in to the system", res.Validation[0].Title)
		for i, v := range res.Validation {
			ok, issues := validator.Validate(res.UseCases[i])
			assert.Equal(t, ok, v.Status == validator.StatusValid, v.Title)
			assert.Equal(t, issues, v.Issues, v.Title)
			assert.Equal(t, validator.QualityScore(res.UseCases[i]), v.QualityScore, v.Title)
		}
		assert.Empty(t, res.Fallback)

		sessions, err := f.store.ListSessions(ctx)
		require.NoError(t, err)
		assert.Empty(t, sessions, "extraction is stateless")
	})

	t.Run("fallback", func(t *testing.T) {
		f := newFixture(t, nil, llm.Reply{Err: errors.New("model offline")})
		res, err := f.svc.Extract(ctx, "The admin can export monthly sales reports for auditors.", 0)
		require.NoError(t, err)
		assert.Equal(t, extraction.MethodFallback, res.Method)
		assert.Contains(t, res.Fallback, "model offline")
		require.Len(t, res.UseCases, 1)
	})
}

func TestProcessDocument_Direct(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, llm.Reply{Text: twoUseCasesReply}, llm.Reply{Text: twoUseCasesReply})
	sess := f.session(t)

	sum, err := f.svc.ProcessDocument(ctx, DocumentRequest{SessionID: sess.ID, Text: requirements})
	require.NoError(t, err)
	assert.Equal(t, MethodDirect, sum.ExtractionMethod)
	assert.Equal(t, "Smart extraction: 2 use cases in 0.0s", sum.Message)
	assert.Equal(t, 1, sum.ChunksProcessed)
	assert.Equal(t, []ChunkSummary{{ChunkID: 0, UseCasesFound: 2, CharCount: len(requirements)}}, sum.ChunkSummaries)
	assert.Equal(t, 2, sum.ExtractedCount)
	assert.Equal(t, 2, sum.StoredCount)
	assert.Equal(t, 0, sum.DuplicateCount)
	require.Len(t, sum.Results, 2)
	for _, r := range sum.Results {
		assert.Equal(t, StatusStored, r.Status)
		assert.NotEmpty(t, r.ID)
	}
	require.Len(t, sum.ValidationResults, 2)

	stored, err := f.store.UseCases(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, sum.Results[0].ID, stored[0].ID)

	msgs, err := f.store.Messages(ctx, sess.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, memory.RoleUser, msgs[0].Role)
	assert.Equal(t, requirements, msgs[0].Content)
	assert.Equal(t, requirementInput, msgs[0].Metadata["type"])
	assert.Equal(t, memory.RoleAssistant, msgs[1].Role)
	assert.Equal(t, sum.Message, msgs[1].Content)
	assert.Equal(t, float64(2), msgs[1].Metadata["stored_count"])

	// The same document again only yields duplicates.
	again, err := f.svc.ProcessDocument(ctx, DocumentRequest{SessionID: sess.ID, Text: requirements})
	require.NoError(t, err)
	assert.Equal(t, 2, again.ExtractedCount)
	assert.Equal(t, 0, again.StoredCount)
	assert.Equal(t, 2, again.DuplicateCount)
	for _, r := range again.Results {
		assert.Equal(t, StatusDuplicate, r.Status)
		assert.Empty(t, r.ID)
	}

	// The second prompt carries the session memory.
	calls := f.backend.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].User, "PROJECT CONTEXT:\nOnline bookstore")
	assert.Contains(t, calls[1].User, "RECENT CONVERSATION:")
	assert.Contains(t, calls[1].User, "- User searches for products")
}

func TestProcessDocument_Span(t *testing.T) {
	tt := telemetry.NewTestTelemetry(t)
	f := newFixture(t, nil, llm.Reply{Text: twoUseCasesReply})
	sess := f.session(t)

	_, err := f.svc.ProcessDocument(context.Background(), DocumentRequest{SessionID: sess.ID, Text: requirements})
	require.NoError(t, err)

	attrs := tt.SpanAttributes("pipeline.ProcessDocument")
	require.NotNil(t, attrs, "spans: %v", tt.SpanNames())
	assert.Equal(t, sess.ID, attrs["session.id"])
	assert.Equal(t, "direct", attrs["pipeline.path"])
	assert.Equal(t, int64(len(requirements)), attrs["document.chars"])
	assert.Equal(t, int64(2), attrs["pipeline.extracted"])
	assert.Equal(t, int64(2), attrs["pipeline.stored"])
	assert.Equal(t, int64(0), attrs["pipeline.duplicates"])
}

func TestProcessDocument_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.svc.ProcessDocument(ctx, DocumentRequest{Text: " "})
	assert.ErrorIs(t, err, ErrEmptyText)

	_, err = f.svc.ProcessDocument(ctx, DocumentRequest{SessionID: "missing", Text: requirements})
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.Empty(t, f.backend.Calls())
}

func TestProcessDocument_NewSession(t *testing.T) {
	ctx := context.Background()

	t.Run("filename title", func(t *testing.T) {
		f := newFixture(t, nil, llm.Reply{Text: twoUseCasesReply})
		sum, err := f.svc.ProcessDocument(ctx, DocumentRequest{
			Text:     requirements,
			Filename: "docs/user_login-flow.md",
			Domain:   "retail",
		})
		require.NoError(t, err)
		assert.Equal(t, "docs/user_login-flow.md", sum.Filename)

		sess, err := f.store.GetSession(ctx, sum.SessionID)
		require.NoError(t, err)
		assert.Equal(t, "User Login Flow", sess.Title)
		assert.Equal(t, "retail", sess.Domain)
		assert.Len(t, f.backend.Calls(), 1, "filename titles need no model call")
	})

	t.Run("generated title", func(t *testing.T) {
		f := newFixture(t, nil, llm.Reply{Text: "Bookstore Login And Search"}, llm.Reply{Text: twoUseCasesReply})
		sum, err := f.svc.ProcessDocument(ctx, DocumentRequest{Text: requirements})
		require.NoError(t, err)
		sess, err := f.store.GetSession(ctx, sum.SessionID)
		require.NoError(t, err)
		assert.Equal(t, "Bookstore Login And Search", sess.Title)
		assert.Equal(t, prompt.KindSessionTitle, f.backend.Calls()[0].Kind)
		assert.Equal(t, 2, sum.StoredCount)
	})
}

func TestProcessDocument_UpdatesContext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, llm.Reply{Text: twoUseCasesReply})
	sess := f.session(t)

	_, err := f.svc.ProcessDocument(ctx, DocumentRequest{
		SessionID: sess.ID,
		Text:      requirements,
		Domain:    "e-commerce",
	})
	require.NoError(t, err)

	got, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "e-commerce", got.Domain)
	assert.Equal(t, "Online bookstore", got.ProjectContext, "empty values keep the stored context")
	assert.Equal(t, "Bookstore", got.Title)
	assert.Contains(t, f.backend.Calls()[0].User, "DOMAIN: e-commerce")
}

func TestProcessDocument_NothingExtracted(t *testing.T) {
	f := newFixture(t, nil, llm.Reply{Err: errors.New("model offline")})
	sess := f.session(t)

	sum, err := f.svc.ProcessDocument(context.Background(), DocumentRequest{SessionID: sess.ID, Text: "!!!...???"})
	require.NoError(t, err)
	assert.Equal(t, "No use cases could be extracted", sum.Message)
	assert.Equal(t, 0, sum.ExtractedCount)
	assert.Empty(t, sum.Results)
	assert.NotNil(t, sum.Results)
}

func TestProcessDocument_EmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, keywordEmbedder{err: errors.New("embedder down")}, llm.Reply{Text: twoUseCasesReply})
	sess := f.session(t)

	sum, err := f.svc.ProcessDocument(ctx, DocumentRequest{SessionID: sess.ID, Text: requirements})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.StoredCount)

	vec, err := f.store.Embedding(ctx, sum.Results[0].ID)
	require.NoError(t, err)
	assert.Nil(t, vec)
}

func TestProcessDocument_Chunked(t *testing.T) {
	ctx := context.Background()
	store, err := session.Open(session.Config{Path: session.MemoryPath})
	require.NoError(t, err)
	defer store.Close()

	backend := llm.NewScripted()
	backend.Default = llm.Reply{Text: twoUseCasesReply}
	svc, err := New(Deps{Completer: backend, Embedder: keywordEmbedder{}, Store: store}, Config{ChunkMaxTokens: 500}, nil)
	require.NoError(t, err)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	paragraph := strings.Repeat("Lorem ipsum dolor sit amet consectetur adipiscing elit. ", 12)
	var b strings.Builder
	for b.Len() < 9000 {
		b.WriteString(paragraph)
		b.WriteString("\n\n")
	}
	text := b.String()

	sess, err := store.CreateSession(ctx, "", "", "Large")
	require.NoError(t, err)
	sum, err := svc.ProcessDocument(ctx, DocumentRequest{SessionID: sess.ID, Text: text, Filename: "big.txt"})
	require.NoError(t, err)

	assert.Equal(t, MethodChunked, sum.ExtractionMethod)
	assert.Greater(t, sum.ChunksProcessed, 1)
	assert.Len(t, sum.ChunkSummaries, sum.ChunksProcessed)
	for i, cs := range sum.ChunkSummaries {
		assert.Equal(t, i, cs.ChunkID)
		assert.Positive(t, cs.UseCasesFound)
		assert.LessOrEqual(t, cs.CharCount, 2000)
	}
	// Every chunk repeats the same titles; the merge keeps one of each.
	assert.Equal(t, 2, sum.ExtractedCount)
	assert.Equal(t, 2, sum.StoredCount)
	assert.Equal(t, fmt.Sprintf("Chunked extraction: 2 use cases from %d chunks in 0.0s", sum.ChunksProcessed), sum.Message)

	calls := backend.Calls()
	require.GreaterOrEqual(t, len(calls), sum.ChunksProcessed)
	assert.Contains(t, calls[len(calls)-1].User, "- User logs in to the system",
		"later chunks see the titles of earlier ones")
}

func TestProcessDocument_ChunkedIgnoresRequestCount(t *testing.T) {
	ctx := context.Background()
	store, err := session.Open(session.Config{Path: session.MemoryPath})
	require.NoError(t, err)
	defer store.Close()

	backend := llm.NewScripted()
	backend.Default = llm.Reply{Text: twoUseCasesReply}
	svc, err := New(Deps{Completer: backend, Embedder: keywordEmbedder{}, Store: store}, Config{ChunkMaxTokens: 500}, nil)
	require.NoError(t, err)

	paragraph := strings.Repeat("Lorem ipsum dolor sit amet consectetur adipiscing elit. ", 12)
	var b strings.Builder
	for b.Len() < 9000 {
		b.WriteString(paragraph)
		b.WriteString("\n\n")
	}
	text := b.String()
	chunks := chunking.New(500).Chunk(text, chunking.StrategyAuto)
	require.Greater(t, len(chunks), 1)

	// Each chunk is sized by the estimator alone, so the call count follows
	// the per-chunk estimate rather than the request's max.
	wantCalls := 0
	for _, c := range chunks {
		target := estimator.SmartMax(c.Text)
		require.Greater(t, target, 1, "chunk %d", c.ID)
		if target >= extraction.BatchMinTarget && len(c.Text)/4 > extraction.BatchMinTokens {
			wantCalls += (target + extraction.BatchSize - 1) / extraction.BatchSize
		} else {
			wantCalls++
		}
	}

	sess, err := store.CreateSession(ctx, "", "", "Large")
	require.NoError(t, err)
	sum, err := svc.ProcessDocument(ctx, DocumentRequest{SessionID: sess.ID, Text: text, MaxUseCases: 1})
	require.NoError(t, err)

	assert.Equal(t, MethodChunked, sum.ExtractionMethod)
	assert.Equal(t, len(chunks), sum.ChunksProcessed)
	assert.Len(t, backend.Calls(), wantCalls)
	for _, p := range backend.Calls() {
		assert.NotContains(t, p.User, "approximately 1 ")
	}

	// The request max caps the merged result.
	assert.Equal(t, 1, sum.ExtractedCount)
	assert.Equal(t, 1, sum.StoredCount)
	require.Len(t, sum.Results, 1)
	assert.Equal(t, "User logs in to the system", sum.Results[0].UseCase.Title)
}

func TestProcessDocument_DedupAgainstPriorRows(t *testing.T) {
	ctx := context.Background()
	// Both candidates land on the "log" axis, so they would match each other.
	twins := `{"title": "User logs in to the system", "main_flow": ["User opens the login page", "User enters credentials"]},
 {"title": "User logs in with a password", "main_flow": ["User types the password", "System checks it"]}
]`
	f := newFixture(t, nil, llm.Reply{Text: twins}, llm.Reply{Text: twins})
	sess := f.session(t)

	sum, err := f.svc.ProcessDocument(ctx, DocumentRequest{SessionID: sess.ID, Text: "User can login. User can login with a password."})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.StoredCount, "candidates of one document are not compared with each other")
	assert.Equal(t, 0, sum.DuplicateCount)

	sum, err = f.svc.ProcessDocument(ctx, DocumentRequest{SessionID: sess.ID, Text: "User can login. User can login with a password."})
	require.NoError(t, err)
	assert.Equal(t, 0, sum.StoredCount)
	assert.Equal(t, 2, sum.DuplicateCount)
}
