package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // Random port
		NoLog:  true,
		NoSigs: true,
	}
	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(server.Shutdown)
	return server
}

func TestPublisher_Subject(t *testing.T) {
	p := NewPublisher(nil, "", nil)
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{"document", Event{Type: DocumentProcessed, SessionID: "s1"}, "reqengine.s1.document.processed"},
		{"use case", Event{Type: UseCaseDeleted, SessionID: "s1"}, "reqengine.s1.use_case.deleted"},
		{"no session", Event{Type: SessionSummarized}, "reqengine._.session.summarized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Subject(tt.ev))
		})
	}

	custom := NewPublisher(nil, "acme.req", nil)
	assert.Equal(t, "acme.req.s2.use_case.refined", custom.Subject(Event{Type: UseCaseRefined, SessionID: "s2"}))
}

func TestPublisher_Publish(t *testing.T) {
	server := startTestNATSServer(t)

	pub, err := Connect(Config{URL: server.ClientURL()}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { pub.Close() })

	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	sub, err := nc.SubscribeSync("reqengine.s1.>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	traceID, err := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("b7ad6b7169203331")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(),
		trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID}))

	require.NoError(t, pub.Publish(ctx, Event{
		Type:      DocumentProcessed,
		SessionID: "s1",
		Data:      map[string]int{"stored": 2},
	}))
	pub.Emit(context.Background(), Event{Type: UseCaseDeleted, SessionID: "other"})

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "reqengine.s1.document.processed", msg.Subject)

	var got Event
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, DocumentProcessed, got.Type)
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", got.TraceID)
	assert.False(t, got.At.IsZero())
	assert.Equal(t, map[string]any{"stored": float64(2)}, got.Data)

	_, err = sub.NextMsg(100 * time.Millisecond)
	assert.ErrorIs(t, err, nats.ErrTimeout, "other sessions are not delivered")
}

func TestPublisher_ClosedConnection(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)

	pub := NewPublisher(nc, "", nil)
	nc.Close()

	assert.Error(t, pub.Publish(context.Background(), Event{Type: DocumentProcessed, SessionID: "s1"}))
	assert.NotPanics(t, func() { pub.Emit(context.Background(), Event{Type: DocumentProcessed}) })
	assert.NoError(t, pub.Close(), "borrowed connections are not drained")
}

func TestConnect_RequiresURL(t *testing.T) {
	_, err := Connect(Config{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRecorder(t *testing.T) {
	var r Recorder
	var sink Sink = &r
	sink.Emit(context.Background(), Event{Type: DocumentProcessed, SessionID: "a"})
	sink.Emit(context.Background(), Event{Type: UseCaseRefined, SessionID: "a"})
	sink.Emit(context.Background(), Event{Type: DocumentProcessed, SessionID: "b"})

	assert.Len(t, r.Events(), 3)
	assert.Len(t, r.OfType(DocumentProcessed), 2)
	assert.Empty(t, r.OfType(SessionSummarized))

	Nop{}.Emit(context.Background(), Event{})
}
