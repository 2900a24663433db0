package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func questionServer(t *testing.T, fail string) (*httptest.Server, *[]string) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.WriteHeader(http.StatusOK)
		case "/question":
			q := r.URL.Query().Get("q")
			mu.Lock()
			seen = append(seen, q)
			mu.Unlock()
			if fail != "" && strings.Contains(q, fail) {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"question": q, "answer": "ok"})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestDefaultBaseURL(t *testing.T) {
	require.Equal(t, "http://langgraph-fastapi:8000", DefaultBaseURL(""))
	require.Equal(t, "http://localhost:8000", DefaultBaseURL("localhost"))
}

func TestNewRunner_Validates(t *testing.T) {
	_, err := NewRunner(Config{})
	require.Error(t, err)
	_, err = NewRunner(Config{BaseURL: "not a url"})
	require.Error(t, err)
}

func TestRunner_Workload(t *testing.T) {
	r, err := NewRunner(Config{BaseURL: "http://localhost:8000", Iterations: 2})
	require.NoError(t, err)
	require.Len(t, r.Workload(), 2*len(DefaultQueries))
}

func TestRunner_Check(t *testing.T) {
	srv, _ := questionServer(t, "")
	r, err := NewRunner(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	status, err := r.Check(context.Background())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	srv.Close()
	_, err = r.Check(context.Background())
	require.Error(t, err)
}

func TestRunner_Sequential(t *testing.T) {
	srv, seen := questionServer(t, "")
	var progress bytes.Buffer
	r, err := NewRunner(Config{BaseURL: srv.URL, Sequential: true, Progress: &progress})
	require.NoError(t, err)

	results, total := r.Run(context.Background())
	require.Len(t, results, len(DefaultQueries))
	require.Equal(t, DefaultQueries, *seen)
	require.Positive(t, total)
	require.Contains(t, progress.String(), "Sending: list invoices for Thomas Hardy?")

	s := Summarize(results, total)
	require.Equal(t, 6, s.Successful)
	require.Zero(t, s.ExitCode())
}

func TestRunner_ConcurrentIsBounded(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	r, err := NewRunner(Config{BaseURL: srv.URL, Concurrent: 2, Iterations: 2})
	require.NoError(t, err)

	results, _ := r.Run(context.Background())
	require.Len(t, results, 12)
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunner_FailedQueriesReported(t *testing.T) {
	srv, _ := questionServer(t, "Liu Wong")
	r, err := NewRunner(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	results, total := r.Run(context.Background())
	s := Summarize(results, total)
	require.Equal(t, 5, s.Successful)
	require.Len(t, s.Failed, 1)
	require.Equal(t, "get me invoices for Liu Wong?", s.Failed[0].Query)
	require.Equal(t, 1, s.ExitCode())

	var out bytes.Buffer
	s.Print(&out)
	require.Contains(t, out.String(), "Failed:             1")
	require.Contains(t, out.String(), "- get me invoices for Liu Wong?...")
}

func TestSummarize_Stats(t *testing.T) {
	results := []Result{
		{Query: "a", StatusCode: 200, Elapsed: 1 * time.Second},
		{Query: "b", StatusCode: 200, Elapsed: 2 * time.Second},
		{Query: "c", StatusCode: 200, Elapsed: 3 * time.Second},
		{Query: "d", StatusCode: 502, Elapsed: 9 * time.Second},
	}
	s := Summarize(results, 6*time.Second)
	require.Equal(t, 4, s.Total)
	require.Equal(t, 3, s.Successful)
	require.Equal(t, time.Second, s.Min)
	require.Equal(t, 3*time.Second, s.Max)
	require.Equal(t, 2*time.Second, s.Mean)
	require.Equal(t, time.Second, s.StdDev)
	require.InDelta(t, 0.5, s.RPS, 1e-9)
}

func TestSummarize_SingleSampleHasNoStdDev(t *testing.T) {
	s := Summarize([]Result{{StatusCode: 200, Elapsed: time.Second}}, time.Second)
	require.Zero(t, s.StdDev)

	var out bytes.Buffer
	s.Print(&out)
	require.NotContains(t, out.String(), "Std Dev")
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, 0)
	require.Zero(t, s.Total)
	require.Zero(t, s.ExitCode())
}

func TestRunner_OKWithNonJSONBodyFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>proxy error page</html>"))
	}))
	t.Cleanup(srv.Close)

	var progress bytes.Buffer
	r, err := NewRunner(Config{BaseURL: srv.URL, Sequential: true, Queries: []string{"find orders for thomashardy@example.com?"}, Progress: &progress})
	require.NoError(t, err)

	results, _ := r.Run(context.Background())
	require.Len(t, results, 1)
	require.Equal(t, http.StatusOK, results[0].StatusCode)
	require.Error(t, results[0].Err)
	require.False(t, results[0].Success())
	require.Equal(t, 1, Summarize(results, time.Second).ExitCode())
}
