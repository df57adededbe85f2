package qdrant

import (
	"context"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/reqengine/internal/logging"
)

func TestClientConfig_ApplyDefaults(t *testing.T) {
	cfg := &ClientConfig{Host: "qdrant.internal", RetryAttempts: 1}
	cfg.ApplyDefaults()

	want := DefaultClientConfig()
	want.Host = "qdrant.internal"
	want.RetryAttempts = 1
	assert.Equal(t, want, cfg)
	assert.Equal(t, qdrant.Distance_Cosine, cfg.Distance)
}

func TestClientConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ClientConfig)
		errMsg string
	}{
		{"defaults", func(*ClientConfig) {}, ""},
		{"no host", func(c *ClientConfig) { c.Host = "" }, "host is required"},
		{"port zero", func(c *ClientConfig) { c.Port = 0 }, "out of range"},
		{"port too large", func(c *ClientConfig) { c.Port = 70000 }, "out of range"},
		{"no message size", func(c *ClientConfig) { c.MaxMessageSize = 0 }, "max message size"},
		{"negative retries", func(c *ClientConfig) { c.RetryAttempts = -1 }, "retry attempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultClientConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestNewGRPCClient_InvalidConfig(t *testing.T) {
	_, err := NewGRPCClient(&ClientConfig{Port: -1}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestToPointStruct(t *testing.T) {
	id := "5b0f6a6e-7d1c-4c1e-9a57-0f2d8fbc3a11"
	ps := toPointStruct(&Point{
		ID:      id,
		Vector:  []float32{0.1, 0.2},
		Payload: map[string]string{fieldSession: "s1", fieldUseCase: id},
	})

	assert.Equal(t, id, ps.GetId().GetUuid())
	assert.Equal(t, "s1", ps.GetPayload()[fieldSession].GetStringValue())
	assert.Equal(t, id, ps.GetPayload()[fieldUseCase].GetStringValue())
	require.NotNil(t, ps.GetVectors())
}

func TestToFilter(t *testing.T) {
	assert.Nil(t, toFilter(nil))
	assert.Nil(t, toFilter(&Filter{}))

	f := toFilter(&Filter{Must: []Condition{{Field: fieldSession, Match: "s1"}}})
	require.Len(t, f.GetMust(), 1)
	field := f.GetMust()[0].GetField()
	assert.Equal(t, fieldSession, field.GetKey())
	assert.Equal(t, "s1", field.GetMatch().GetKeyword())
}

func TestFromScoredPoint(t *testing.T) {
	hit := fromScoredPoint(&qdrant.ScoredPoint{
		Id:    qdrant.NewIDUUID("u1"),
		Score: 0.93,
		Payload: map[string]*qdrant.Value{
			fieldSession: qdrant.NewValueString("s1"),
			"count":      qdrant.NewValueInt(3),
		},
	})
	assert.Equal(t, "u1", hit.ID)
	assert.InDelta(t, 0.93, hit.Score, 1e-6)
	assert.Equal(t, map[string]string{fieldSession: "s1"}, hit.Payload, "non-string values are dropped")
}

func TestPointID(t *testing.T) {
	tests := []struct {
		name string
		id   *qdrant.PointId
		want string
	}{
		{"nil", nil, ""},
		{"uuid", qdrant.NewIDUUID("u1"), "u1"},
		{"numeric", qdrant.NewIDNum(42), "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pointID(tt.id))
		})
	}
}

func TestStringPayload_Empty(t *testing.T) {
	assert.Nil(t, stringPayload(nil))
	assert.Nil(t, stringPayload(map[string]*qdrant.Value{}))
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unavailable", status.Error(codes.Unavailable, "down"), true},
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), true},
		{"aborted", status.Error(codes.Aborted, "conflict"), true},
		{"exhausted", status.Error(codes.ResourceExhausted, "busy"), true},
		{"invalid argument", status.Error(codes.InvalidArgument, "bad vector"), false},
		{"not found", status.Error(codes.NotFound, "no collection"), false},
		{"plain error", assert.AnError, false},
		{"cancelled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransientError(tt.err))
		})
	}
}

func TestRetry(t *testing.T) {
	unavailable := status.Error(codes.Unavailable, "down")

	tests := []struct {
		name     string
		failures []error
		attempts int
		calls    int
		wantErr  error
		logged   map[zapcore.Level]string
	}{
		{
			name:     "first try",
			attempts: 3,
			calls:    1,
		},
		{
			name:     "recovers",
			failures: []error{unavailable},
			attempts: 3,
			calls:    2,
			logged: map[zapcore.Level]string{
				zapcore.DebugLevel: "retrying qdrant call",
				zapcore.InfoLevel:  "qdrant call recovered",
			},
		},
		{
			name:     "exhausted",
			failures: []error{unavailable, unavailable, unavailable},
			attempts: 2,
			calls:    3,
			wantErr:  unavailable,
			logged:   map[zapcore.Level]string{zapcore.WarnLevel: "qdrant call failed after retries"},
		},
		{
			name:     "permanent",
			failures: []error{status.Error(codes.InvalidArgument, "bad vector")},
			attempts: 3,
			calls:    1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := logging.NewTestLogger()
			calls := 0
			err := retry(context.Background(), logs.Logger, tt.attempts, time.Millisecond, func() error {
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			})

			assert.Equal(t, tt.calls, calls)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case len(tt.failures) >= tt.calls:
				assert.Error(t, err)
				assert.Empty(t, logs.All(), "permanent failures are returned without retry logs")
			default:
				assert.NoError(t, err)
			}
			for level, msg := range tt.logged {
				logs.AssertLogged(t, level, msg)
			}
		})
	}
}

func TestRetry_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retry(ctx, logging.NewNop(), 5, time.Hour, func() error {
		calls++
		cancel()
		return status.Error(codes.Unavailable, "down")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
