package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reqengine/internal/embeddings"
	"github.com/fyrsmithlabs/reqengine/internal/inference"
	"github.com/fyrsmithlabs/reqengine/internal/llm"
	"github.com/fyrsmithlabs/reqengine/internal/pipeline"
	"github.com/fyrsmithlabs/reqengine/internal/session"
)

func TestConsume(t *testing.T) {
	store, err := session.Open(session.Config{Path: session.MemoryPath})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	backend := llm.NewScripted(llm.Reply{Text: loginUseCase + "\n]"}, llm.Reply{Text: loginUseCase + "\n]"})
	infer := inference.New(backend, embeddings.NewHashProvider(0))
	svc, err := pipeline.New(pipeline.Deps{Completer: infer, Embedder: infer, Store: store}, pipeline.Config{}, nil)
	require.NoError(t, err)

	dir := t.TempDir()
	first := filepath.Join(dir, "login.md")
	second := filepath.Join(dir, "login_again.md")
	binary := filepath.Join(dir, "scan.md")
	require.NoError(t, os.WriteFile(first, []byte("User can login."), 0o600))
	require.NoError(t, os.WriteFile(second, []byte("User can login with a password."), 0o600))
	require.NoError(t, os.WriteFile(binary, []byte{0xff, 0xfe}, 0o600))

	files := make(chan string, 3)
	files <- first
	files <- binary
	files <- second

	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	wo := &watchOptions{domain: "auth"}
	done := make(chan error, 1)
	go func() { done <- consume(ctx, svc, files, wo, &out, zap.NewNop()) }()

	require.Eventually(t, func() bool { return len(backend.Calls()) == 2 && len(files) == 0 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	sessions, err := store.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1, "later files join the first file's session")
	assert.Equal(t, "auth", sessions[0].Domain)
	assert.Equal(t, sessions[0].ID, wo.sessionID)

	text := out.String()
	assert.Contains(t, text, "login.md: stored 1, duplicates 0")
	assert.Contains(t, text, "scan.md: not UTF-8 text")
	assert.Contains(t, text, "login_again.md: stored 0, duplicates 1")
}
