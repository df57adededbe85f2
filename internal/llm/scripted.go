package llm

import (
	"context"
	"sync"

	"github.com/fyrsmithlabs/reqengine/internal/prompt"
)

// Reply is one scripted completion.
type Reply struct {
	Text string
	Err  error
}

// Scripted is a Backend that replays canned replies in order. Once the
// script runs out, it repeats Default. It is used by tests and by the CLI
// when no model is configured.
type Scripted struct {
	mu      sync.Mutex
	replies []Reply
	Default Reply
	calls   []prompt.Prompt
	opts    []Options
}

// NewScripted returns a Scripted backend for replies.
func NewScripted(replies ...Reply) *Scripted {
	return &Scripted{replies: replies, Default: Reply{Err: ErrEmptyCompletion}}
}

func (s *Scripted) Name() string { return "scripted" }

func (s *Scripted) Complete(ctx context.Context, p prompt.Prompt, opts Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, p)
	s.opts = append(s.opts, opts)
	r := s.Default
	if len(s.replies) > 0 {
		r = s.replies[0]
		s.replies = s.replies[1:]
	}
	return r.Text, r.Err
}

// Calls returns the prompts received so far.
func (s *Scripted) Calls() []prompt.Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]prompt.Prompt(nil), s.calls...)
}

// CallOptions returns the options received so far.
func (s *Scripted) CallOptions() []Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Options(nil), s.opts...)
}

var _ Backend = (*Scripted)(nil)
