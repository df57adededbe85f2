package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/reqengine/internal/chunking"
	"github.com/fyrsmithlabs/reqengine/internal/pipeline"
)

const requirements = "User can login. User can search products."

const loginUseCase = `{"title": "User logs in to the system",
  "preconditions": ["User has a registered account"],
  "main_flow": ["User opens the login page", "User enters credentials", "System verifies credentials"],
  "sub_flows": ["User may ask to stay signed in"],
  "alternate_flows": ["If credentials are wrong, system shows an error"],
  "outcomes": ["User is logged in"],
  "stakeholders": ["User", "System"]}`

func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// writeConfig writes a config that keeps every store under the test's
// temporary directory.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`session:
  path: %s
embeddings:
  provider: hash
index:
  backend: memory
secrets:
  gitleaks: false
logging:
  level: error
%s`, filepath.Join(dir, "sessions.db"), extra)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRootCmd(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	for _, want := range []string{"serve", "watch", "extract", "estimate", "chunk", "validate"} {
		assert.Contains(t, names, want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.Contains(t, root.Version, version)
}

func TestEstimateCmd(t *testing.T) {
	path := writeFile(t, "req.txt", requirements)

	out, err := execute(t, context.Background(), "estimate", path)
	require.NoError(t, err)
	var est pipeline.Estimation
	require.NoError(t, json.Unmarshal([]byte(out), &est), out)
	assert.Positive(t, est.Max)
	assert.False(t, est.NeedsChunking)

	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, context.Background(), "estimate", filepath.Join(t.TempDir(), "nope.txt"))
		assert.ErrorContains(t, err, "failed to read file")
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := execute(t, context.Background(), "estimate", writeFile(t, "empty.txt", ""))
		assert.ErrorContains(t, err, "no content")
	})
}

func TestChunkCmd(t *testing.T) {
	doc := "# Login\nUser can login with a password.\n\n# Search\nUser can search products by name.\n"
	path := writeFile(t, "doc.md", doc)

	tests := []struct {
		name     string
		args     []string
		strategy chunking.Strategy
	}{
		{name: "detected", args: []string{"chunk", path}, strategy: chunking.DetectStrategy(doc)},
		{name: "forced", args: []string{"chunk", "--strategy", "paragraph", path}, strategy: chunking.StrategyParagraph},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, context.Background(), tt.args...)
			require.NoError(t, err)
			var got ChunkOutput
			require.NoError(t, json.Unmarshal([]byte(out), &got), out)
			assert.Equal(t, tt.strategy, got.Strategy)
			require.NotEmpty(t, got.Chunks)
			assert.Equal(t, 0, got.Chunks[0].ID)
		})
	}
}

func TestValidateCmd(t *testing.T) {
	t.Run("valid object", func(t *testing.T) {
		out, err := execute(t, context.Background(), "validate", "--strict", writeFile(t, "uc.json", loginUseCase))
		require.NoError(t, err)
		assert.Contains(t, out, "PASS User logs in to the system")
		assert.Contains(t, out, "1 use case(s), 0 with issues")
	})

	t.Run("array with issues", func(t *testing.T) {
		path := writeFile(t, "ucs.json", `[`+loginUseCase+`, {"title": "Search", "main_flow": ["User types"]}]`)
		out, err := execute(t, context.Background(), "validate", path)
		require.NoError(t, err)
		assert.Contains(t, out, "WARN Search")
		assert.Contains(t, out, "2 use case(s), 1 with issues")

		_, err = execute(t, context.Background(), "validate", "--strict", path)
		assert.ErrorContains(t, err, "1 use case(s) failed validation")
	})

	t.Run("bad json", func(t *testing.T) {
		_, err := execute(t, context.Background(), "validate", writeFile(t, "bad.json", "[{"))
		assert.ErrorContains(t, err, "failed to decode")
	})

	t.Run("empty array", func(t *testing.T) {
		_, err := execute(t, context.Background(), "validate", writeFile(t, "none.json", "[]"))
		assert.ErrorContains(t, err, "no use cases")
	})
}

// generateServer answers every /generate call with reply.
func generateServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"generated_text": reply})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExtractCmd(t *testing.T) {
	llmSrv := generateServer(t, loginUseCase+"\n]")
	cfgPath := writeConfig(t, fmt.Sprintf("llm:\n  base_url: %s\n  max_retries: 0\n", llmSrv.URL))
	input := writeFile(t, "req.txt", requirements)

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, context.Background(), "--config", cfgPath, "extract", "--max", "1", input)
		require.NoError(t, err)
		var got pipeline.Extraction
		require.NoError(t, json.Unmarshal([]byte(out), &got), out)
		require.Len(t, got.UseCases, 1)
		assert.Equal(t, "User logs in to the system", got.UseCases[0].Title)
		require.Len(t, got.Validation, 1)
		assert.Empty(t, got.Fallback)
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := execute(t, context.Background(), "--config", cfgPath, "extract", "--format", "yaml", input)
		require.NoError(t, err)
		var got map[string]any
		require.NoError(t, yaml.Unmarshal([]byte(out), &got), out)
		assert.Contains(t, got, "use_cases")
		assert.Contains(t, out, "title: User logs in to the system")
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := execute(t, context.Background(), "--config", cfgPath, "extract", "--format", "xml", input)
		assert.ErrorContains(t, err, `unknown format "xml"`)
	})

	t.Run("invalid config", func(t *testing.T) {
		bad := writeConfig(t, "llm:\n  backend: carrier-pigeon\n")
		_, err := execute(t, context.Background(), "--config", bad, "extract", input)
		assert.ErrorContains(t, err, "loading configuration")
	})
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestServeCmd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	port := freePort(t)
	cfgPath := writeConfig(t, "server:\n  shutdown_timeout: 2s\n")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		_, err := execute(t, ctx, "--config", cfgPath, "serve", "--port", fmt.Sprint(port))
		errCh <- err
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	resp, err := http.Post(fmt.Sprintf("http://127.0.0.1:%d/api/v1/estimate", port), "application/json",
		strings.NewReader(`{"text": "User can login."}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}
