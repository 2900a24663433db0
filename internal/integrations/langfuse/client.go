// Package langfuse is a small client for the Langfuse public API: batched
// ingestion of traces and generations, feedback scores, and trace listing
// and deletion used to reset a demo project.
package langfuse

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"fantaco-agents/internal/integrations/httpapi"
)

const (
	defaultBaseURL      = "https://cloud.langfuse.com"
	resetPageSize       = 100
	defaultPollInterval = time.Second
)

// Event types accepted by the ingestion endpoint.
const (
	EventTraceCreate      = "trace-create"
	EventGenerationCreate = "generation-create"
	EventSpanCreate       = "span-create"
	EventScoreCreate      = "score-create"
)

// Event is one item of an ingestion batch.
type Event struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Body      any    `json:"body"`
}

// Trace is the body of a trace-create event.
type Trace struct {
	ID        string         `json:"id"`
	Name      string         `json:"name,omitempty"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	UserID    string         `json:"userId,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
	Input     any            `json:"input,omitempty"`
	Output    any            `json:"output,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
}

// Usage reports token counts of a generation.
type Usage struct {
	Input  int `json:"input,omitempty"`
	Output int `json:"output,omitempty"`
	Total  int `json:"total,omitempty"`
}

// Generation is the body of a generation-create event.
type Generation struct {
	ID              string         `json:"id"`
	TraceID         string         `json:"traceId"`
	Name            string         `json:"name,omitempty"`
	Model           string         `json:"model,omitempty"`
	ModelParameters map[string]any `json:"modelParameters,omitempty"`
	Input           any            `json:"input,omitempty"`
	Output          any            `json:"output,omitempty"`
	StartTime       *time.Time     `json:"startTime,omitempty"`
	EndTime         *time.Time     `json:"endTime,omitempty"`
	Usage           *Usage         `json:"usage,omitempty"`
	Level           string         `json:"level,omitempty"`
	StatusMessage   string         `json:"statusMessage,omitempty"`
}

// Span is the body of a span-create event, used for tool calls made while
// answering.
type Span struct {
	ID                  string         `json:"id"`
	TraceID             string         `json:"traceId"`
	ParentObservationID string         `json:"parentObservationId,omitempty"`
	Name                string         `json:"name,omitempty"`
	Input               any            `json:"input,omitempty"`
	Output              any            `json:"output,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
	StartTime           *time.Time     `json:"startTime,omitempty"`
	EndTime             *time.Time     `json:"endTime,omitempty"`
	Level               string         `json:"level,omitempty"`
	StatusMessage       string         `json:"statusMessage,omitempty"`
}

// Score is user feedback or an evaluation attached to a trace.
type Score struct {
	ID            string  `json:"id,omitempty"`
	TraceID       string  `json:"traceId"`
	ObservationID string  `json:"observationId,omitempty"`
	Name          string  `json:"name"`
	Value         float64 `json:"value"`
	Comment       string  `json:"comment,omitempty"`
}

// TraceSummary is an entry of the trace listing.
type TraceSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"userId"`
	SessionID string    `json:"sessionId"`
}

// Page is the pagination block of list responses.
type Page struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
}

// TraceList is one page of traces.
type TraceList struct {
	Data []TraceSummary `json:"data"`
	Meta Page           `json:"meta"`
}

type ingestionResult struct {
	Successes []struct {
		ID     string `json:"id"`
		Status int    `json:"status"`
	} `json:"successes"`
	Errors []struct {
		ID      string `json:"id"`
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Client talks to one Langfuse project.
type Client struct {
	api          *httpapi.Client
	now          func() time.Time
	id           func() string
	pollInterval time.Duration
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.api.HTTPClient = httpClient
		}
	}
}

// NewClient authenticates with the project's public and secret keys.
func NewClient(baseURL, publicKey, secretKey string, opts ...Option) (*Client, error) {
	publicKey = strings.TrimSpace(publicKey)
	secretKey = strings.TrimSpace(secretKey)
	if publicKey == "" || secretKey == "" {
		return nil, errors.New("langfuse: public and secret keys are required")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		api:          httpapi.New(baseURL),
		now:          time.Now,
		id:           uuid.NewString,
		pollInterval: defaultPollInterval,
	}
	auth := "Basic " + base64.StdEncoding.EncodeToString([]byte(publicKey+":"+secretKey))
	c.api.Header = func(_ context.Context, h http.Header) error {
		h.Set("Authorization", auth)
		return nil
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Ingest sends events in one batch. Events without id or timestamp get one.
// Partial failures reported with 207 are returned as an error naming the
// rejected event ids.
func (c *Client) Ingest(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	for i := range events {
		if events[i].ID == "" {
			events[i].ID = c.id()
		}
		if events[i].Timestamp == "" {
			events[i].Timestamp = c.now().UTC().Format(time.RFC3339Nano)
		}
	}

	var res ingestionResult
	body := map[string]any{"batch": events}
	if err := c.api.Do(ctx, http.MethodPost, "/api/public/ingestion", nil, body, &res); err != nil {
		return fmt.Errorf("langfuse: ingest: %w", err)
	}
	if len(res.Errors) > 0 {
		failed := make([]string, 0, len(res.Errors))
		for _, e := range res.Errors {
			failed = append(failed, fmt.Sprintf("%s (%d %s)", e.ID, e.Status, e.Message))
		}
		return fmt.Errorf("langfuse: ingest: %d of %d events rejected: %s", len(res.Errors), len(events), strings.Join(failed, ", "))
	}
	return nil
}

// TraceGeneration records a trace, one generation under it and any spans,
// which are parented to the generation. Missing ids are generated; the trace
// id is returned.
func (c *Client) TraceGeneration(ctx context.Context, trace Trace, gen Generation, spans ...Span) (string, error) {
	if trace.ID == "" {
		trace.ID = c.id()
	}
	if gen.ID == "" {
		gen.ID = c.id()
	}
	gen.TraceID = trace.ID
	if trace.Timestamp == nil {
		ts := c.now().UTC()
		trace.Timestamp = &ts
	}
	events := []Event{
		{Type: EventTraceCreate, Body: trace},
		{Type: EventGenerationCreate, Body: gen},
	}
	for _, sp := range spans {
		if sp.ID == "" {
			sp.ID = c.id()
		}
		sp.TraceID = trace.ID
		if sp.ParentObservationID == "" {
			sp.ParentObservationID = gen.ID
		}
		events = append(events, Event{Type: EventSpanCreate, Body: sp})
	}
	err := c.Ingest(ctx, events...)
	return trace.ID, err
}

// Score attaches feedback to a trace.
func (c *Client) Score(ctx context.Context, s Score) error {
	if strings.TrimSpace(s.TraceID) == "" {
		return errors.New("langfuse: score: trace id is required")
	}
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("langfuse: score: name is required")
	}
	if err := c.api.Do(ctx, http.MethodPost, "/api/public/scores", nil, s, nil); err != nil {
		return fmt.Errorf("langfuse: score: %w", err)
	}
	return nil
}

// ListTraces returns one page of traces, newest first. page is 1-based.
func (c *Client) ListTraces(ctx context.Context, page, limit int) (TraceList, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	q := url.Values{"page": {strconv.Itoa(page)}, "limit": {strconv.Itoa(limit)}}
	var out TraceList
	if err := c.api.Do(ctx, http.MethodGet, "/api/public/traces", q, nil, &out); err != nil {
		return TraceList{}, fmt.Errorf("langfuse: list traces: %w", err)
	}
	return out, nil
}

// DeleteTraces removes the given traces.
func (c *Client) DeleteTraces(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{"traceIds": ids}
	if err := c.api.Do(ctx, http.MethodDelete, "/api/public/traces", nil, body, nil); err != nil {
		return fmt.Errorf("langfuse: delete traces: %w", err)
	}
	return nil
}

// ResetTraces deletes every trace in the project and returns how many were
// removed. Deletion is asynchronous on the server, so listings may still
// carry traces already sent for deletion: a page holding only those moves
// on to the next one, and after the last page the listing restarts from
// page 1 after a short pause. It stops when page 1 comes back empty or
// maxRounds listings have been made.
func (c *Client) ResetTraces(ctx context.Context, maxRounds int) (int, error) {
	if maxRounds <= 0 {
		maxRounds = 100
	}
	deleted := 0
	seen := make(map[string]struct{})
	page := 1
	for round := 0; round < maxRounds; round++ {
		list, err := c.ListTraces(ctx, page, resetPageSize)
		if err != nil {
			return deleted, err
		}
		if len(list.Data) == 0 {
			if page == 1 {
				return deleted, nil
			}
			page = 1
			continue
		}
		ids := make([]string, 0, len(list.Data))
		for _, t := range list.Data {
			if _, ok := seen[t.ID]; ok {
				continue
			}
			seen[t.ID] = struct{}{}
			ids = append(ids, t.ID)
		}
		if len(ids) > 0 {
			if err := c.DeleteTraces(ctx, ids); err != nil {
				return deleted, err
			}
			deleted += len(ids)
			continue
		}
		if page < list.Meta.TotalPages {
			page++
			continue
		}
		page = 1
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
