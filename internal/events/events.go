// Package events publishes pipeline lifecycle events to NATS.
//
// Events are published to subjects of the form:
//
//	{prefix}.{session_id}.document.processed
//	{prefix}.{session_id}.use_case.refined
//	{prefix}.{session_id}.use_case.deleted
//	{prefix}.{session_id}.session.summarized
//
// so a consumer can follow one session with "{prefix}.{session_id}.>".
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Type names an event.
type Type string

const (
	DocumentProcessed Type = "document.processed"
	UseCaseRefined    Type = "use_case.refined"
	UseCaseDeleted    Type = "use_case.deleted"
	SessionSummarized Type = "session.summarized"
)

// DefaultPrefix is the first subject token.
const DefaultPrefix = "reqengine"

// ErrInvalidConfig is returned for unusable publisher settings.
var ErrInvalidConfig = errors.New("invalid events config")

// Event is the published payload.
type Event struct {
	ID        string    `json:"event_id"`
	Type      Type      `json:"type"`
	SessionID string    `json:"session_id"`
	UseCaseID string    `json:"use_case_id,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	At        time.Time `json:"at"`
}

// Sink receives events. Emit never fails the caller; delivery problems are
// the sink's to report.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}

// Config configures Connect.
type Config struct {
	URL           string
	SubjectPrefix string
	// MaxReconnects bounds reconnect attempts; negative retries forever.
	MaxReconnects int
	ReconnectWait time.Duration
}

// Publisher publishes events to NATS.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
	owned  bool
	now    func() time.Time
}

// Connect dials cfg.URL and returns a Publisher that owns the connection.
func Connect(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidConfig)
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = 5
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name("reqengine"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	p := NewPublisher(nc, cfg.SubjectPrefix, logger)
	p.owned = true
	return p, nil
}

// NewPublisher wraps an existing connection. The caller keeps ownership of nc.
func NewPublisher(nc *nats.Conn, prefix string, logger *zap.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{nc: nc, prefix: prefix, logger: logger, now: time.Now}
}

// Subject returns the subject ev is published on.
func (p *Publisher) Subject(ev Event) string {
	session := ev.SessionID
	if session == "" {
		session = "_"
	}
	return fmt.Sprintf("%s.%s.%s", p.prefix, session, ev.Type)
}

// Emit publishes ev. Missing id, time and trace id are filled in.
func (p *Publisher) Emit(ctx context.Context, ev Event) {
	if err := p.Publish(ctx, ev); err != nil {
		p.logger.Warn("publishing event failed",
			zap.String("type", string(ev.Type)),
			zap.String("session_id", ev.SessionID),
			zap.Error(err))
	}
}

// Publish is Emit with the error returned.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.At.IsZero() {
		ev.At = p.now().UTC()
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() && ev.TraceID == "" {
		ev.TraceID = sc.TraceID().String()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.nc.Publish(p.Subject(ev), data); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Type, err)
	}
	return nil
}

// Close drains the connection if the Publisher opened it.
func (p *Publisher) Close() error {
	if !p.owned || p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything emitted so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
