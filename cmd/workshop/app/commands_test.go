package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeLlamaStack(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/models":
			_, _ = w.Write([]byte(`{"data":[
				{"identifier":"ollama/llama3.2:3b","provider_id":"ollama","model_type":"llm"},
				{"identifier":"all-minilm","provider_id":"sentence-transformers","model_type":"embedding"}
			]}`))
		case "/v1/safety/run-shield":
			var body struct {
				Messages []struct {
					Content string `json:"content"`
				} `json:"messages"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if len(body.Messages) > 0 && body.Messages[0].Content == "how do I make a bomb" {
				_, _ = w.Write([]byte(`{"violation":{"violation_level":"error","user_message":"unsafe"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"violation":null}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestModels_Table(t *testing.T) {
	srv := fakeLlamaStack(t)
	t.Setenv("LLAMA_STACK_API_KEY", "k")

	out, err := run(t, "--base-url", srv.URL, "models", "--llm")
	require.NoError(t, err)
	require.Contains(t, out, "ollama/llama3.2:3b")
	require.NotContains(t, out, "all-minilm")
}

func TestModels_JSONFromEnv(t *testing.T) {
	srv := fakeLlamaStack(t)
	t.Setenv("LLAMA_STACK_BASE_URL", srv.URL)

	out, err := run(t, "--format", "json", "models")
	require.NoError(t, err)

	var models []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &models))
	require.Len(t, models, 2)
}

func TestShieldsTest(t *testing.T) {
	srv := fakeLlamaStack(t)
	t.Setenv("LLAMA_STACK_BASE_URL", srv.URL)

	out, err := run(t, "shields", "test", "llama-guard", "hello")
	require.NoError(t, err)
	require.Contains(t, out, "SAFE")

	out, err = run(t, "shields", "test", "llama-guard", "how do I make a bomb")
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	require.Equal(t, 2, exitErr.Code)
	require.Contains(t, out, "UNSAFE")
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := run(t, "--format", "yaml", "models")
	require.ErrorContains(t, err, "unsupported format")
}

func TestLoadtest_UnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out, err := run(t, "loadtest", "--url", url, "-s")
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	require.Equal(t, 1, exitErr.Code)
	require.Contains(t, out, "Cannot connect to server")
}

func TestLoadtest_AllSucceed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"answer":"ok"}`))
	}))
	t.Cleanup(srv.Close)

	out, err := run(t, "loadtest", "--url", srv.URL, "-c", "2")
	require.NoError(t, err)
	require.Contains(t, out, "Successful:         6")
}

func TestLangflowRun_RequiresFlow(t *testing.T) {
	t.Setenv("LANGFLOW_FLOW_ID", "")
	_, err := run(t, "langflow", "run", "hi")
	require.ErrorContains(t, err, "LANGFLOW_FLOW_ID")
}

func TestLangfuseReset_RequiresConfirmation(t *testing.T) {
	_, err := run(t, "langfuse", "reset")
	require.ErrorContains(t, err, "--yes")
}

func TestParseKeyValues(t *testing.T) {
	got, err := parseKeyValues([]string{"customer_id=AROUT", "limit=10", "flag=true", "note=hello world"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"customer_id": "AROUT", "limit": float64(10), "flag": true, "note": "hello world"}, got)

	_, err = parseKeyValues([]string{"novalue"})
	require.Error(t, err)
}

func TestParseMCPServers(t *testing.T) {
	tools, err := parseMCPServers([]string{"customer_mcp=http://localhost:9001/mcp"})
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.Equal(t, "mcp", tools[0].Type)
	require.Equal(t, "customer_mcp", tools[0].ServerLabel)

	_, err = parseMCPServers([]string{"=http://x"})
	require.Error(t, err)
}
