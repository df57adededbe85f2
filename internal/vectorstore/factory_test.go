package vectorstore

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/reqengine/internal/session"
)

func TestOpen(t *testing.T) {
	store, err := session.Open(session.Config{Path: session.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tests := []struct {
		name    string
		cfg     Config
		store   *session.Store
		backend string
		wantErr bool
	}{
		{name: "default is sqlite", cfg: Config{}, store: store, backend: BackendSQLite},
		{name: "sqlite needs store", cfg: Config{Backend: BackendSQLite}, wantErr: true},
		{name: "memory", cfg: Config{Backend: BackendMemory}, backend: BackendMemory},
		{name: "chromem", cfg: Config{Backend: BackendChromem, Path: t.TempDir()}, backend: BackendChromem},
		{name: "unknown", cfg: Config{Backend: "faiss"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, err := Open(tt.cfg, tt.store, nil)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			defer idx.Close()
			assert.Equal(t, tt.backend, idx.Backend)
		})
	}
}

func TestOpen_Instrumented(t *testing.T) {
	ctx := context.Background()
	idx, err := Open(Config{Backend: BackendMemory}, nil, nil)
	require.NoError(t, err)

	before := testutil.ToFloat64(IndexOperations.WithLabelValues(BackendMemory, "add", "success"))
	require.NoError(t, idx.Add(ctx, "s1", "a", []float32{1, 0}))
	after := testutil.ToFloat64(IndexOperations.WithLabelValues(BackendMemory, "add", "success"))
	assert.Equal(t, before+1, after)

	m, ok, err := idx.Nearest(ctx, "s1", []float32{1, 0})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", m.ID)
	require.NoError(t, idx.Remove(ctx, "s1", "a"))
}
