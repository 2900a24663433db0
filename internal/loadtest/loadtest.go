// Package loadtest drives concurrent GET /question requests against the agent
// API and reports latency statistics.
package loadtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"fantaco-agents/internal/integrations/httpapi"
)

const (
	DefaultConcurrent = 3
	DefaultIterations = 1

	connectTimeout = 5 * time.Second
	requestTimeout = 120 * time.Second
)

// DefaultQueries mirror the workshop curl examples.
var DefaultQueries = []string{
	"list invoices for Thomas Hardy?",
	"find orders for thomashardy@example.com?",
	"get me invoices for Liu Wong?",
	"fetch orders for liuwong@example.com?",
	"fetch invoices for Fran Wilson?",
	"fetch orders for franwilson@example.com?",
}

// DefaultBaseURL builds the in-cluster URL from the SERVICE_URL host.
func DefaultBaseURL(serviceHost string) string {
	if strings.TrimSpace(serviceHost) == "" {
		serviceHost = "langgraph-fastapi"
	}
	return "http://" + serviceHost + ":8000"
}

type Config struct {
	BaseURL    string
	Concurrent int
	Iterations int
	Sequential bool
	Queries    []string
	// Progress receives one line per finished request. Nil discards.
	Progress io.Writer
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

type Result struct {
	Query      string
	StatusCode int
	Elapsed    time.Duration
	Body       string
	Err        error
}

func (r Result) Success() bool {
	return r.Err == nil && r.StatusCode == http.StatusOK
}

type Runner struct {
	cfg Config
	api *httpapi.Client
	mu  sync.Mutex
}

func NewRunner(cfg Config) (*Runner, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("loadtest: base URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("loadtest: invalid base URL: %w", err)
	}
	if cfg.Concurrent <= 0 {
		cfg.Concurrent = DefaultConcurrent
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = DefaultIterations
	}
	if len(cfg.Queries) == 0 {
		cfg.Queries = DefaultQueries
	}
	if cfg.Progress == nil {
		cfg.Progress = io.Discard
	}

	api := httpapi.New(cfg.BaseURL)
	if cfg.HTTPClient != nil {
		api.HTTPClient = cfg.HTTPClient
	} else {
		api.HTTPClient = &http.Client{}
	}
	return &Runner{cfg: cfg, api: api}, nil
}

// Workload is the query list repeated once per iteration.
func (r *Runner) Workload() []string {
	out := make([]string, 0, len(r.cfg.Queries)*r.cfg.Iterations)
	for i := 0; i < r.cfg.Iterations; i++ {
		out = append(out, r.cfg.Queries...)
	}
	return out
}

// Check verifies that GET / answers within five seconds. Any HTTP status
// counts as reachable.
func (r *Runner) Check(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	status, _, err := r.api.Raw(ctx, http.MethodGet, "/", nil, nil)
	if err != nil {
		return 0, fmt.Errorf("loadtest: cannot connect to %s: %w", r.cfg.BaseURL, err)
	}
	return status, nil
}

// Run sends the workload and returns the results in completion order along
// with the wall-clock time of the whole run.
func (r *Runner) Run(ctx context.Context) ([]Result, time.Duration) {
	queries := r.Workload()
	start := time.Now()

	if r.cfg.Sequential {
		results := make([]Result, 0, len(queries))
		for _, q := range queries {
			fmt.Fprintf(r.cfg.Progress, "  Sending: %s...\n", truncate(q, 50))
			res := r.ask(ctx, q)
			r.report(res, statusLabel(res))
			results = append(results, res)
		}
		return results, time.Since(start)
	}

	var (
		mu      sync.Mutex
		results = make([]Result, 0, len(queries))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrent)
	for _, q := range queries {
		g.Go(func() error {
			res := r.ask(gctx, q)
			r.report(res, truncate(q, 40)+"...")
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results, time.Since(start)
}

func (r *Runner) ask(ctx context.Context, query string) Result {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	start := time.Now()
	status, body, err := r.api.Raw(ctx, http.MethodGet, "/question", url.Values{"q": {query}}, nil)
	if err == nil && status == http.StatusOK {
		// A 200 whose body is not JSON still counts as a failed request.
		var answer any
		if derr := json.Unmarshal(body, &answer); derr != nil {
			err = fmt.Errorf("loadtest: decode response: %w", derr)
		}
	}
	return Result{
		Query:      query,
		StatusCode: status,
		Elapsed:    time.Since(start),
		Body:       string(body),
		Err:        err,
	}
}

func (r *Runner) report(res Result, label string) {
	mark := "✓"
	if !res.Success() {
		mark = "✗"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.cfg.Progress, "  %s %.2fs - %s\n", mark, res.Elapsed.Seconds(), label)
}

func statusLabel(res Result) string {
	if res.StatusCode == 0 {
		return "Status: none"
	}
	return fmt.Sprintf("Status: %d", res.StatusCode)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
