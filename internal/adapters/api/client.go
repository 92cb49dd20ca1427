// Package api is the single gateway to the remote venue API. Every call
// returns a normalized Result; failures are values, not errors.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"glamour/internal/adapters/http/perf"
)

// DefaultBaseURL is the production venue API.
const DefaultBaseURL = "https://glamour-events-sever.onrender.com/api"

// FallbackError is used when a failed response carries no message.
const FallbackError = "Something went wrong"

// Request describes one API call.
type Request struct {
	Method  string
	Path    string // relative to the base URL, e.g. "/auth/login"
	Query   url.Values
	Token   string      // bearer token; empty for anonymous calls
	Body    any         // JSON-encoded when non-nil
	Form    *Multipart  // sent instead of Body when non-nil
	Headers http.Header // replaces the default JSON headers when set
}

// Multipart is a form body with ordered text fields and an optional file.
type Multipart struct {
	Fields [][2]string
	File   *FilePart
}

// FilePart is one uploaded file.
type FilePart struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// Result is the normalized outcome of a call.
// INVARIANT: Success implies Error == ""
type Result struct {
	Success bool
	Status  int             // 0 when the request never got a response
	Data    json.RawMessage // full response body on success
	Error   string
	Code    string // machine-readable code from the error body, if any
}

// Decode unmarshals the response body into v.
func (r Result) Decode(v any) error {
	if len(r.Data) == 0 {
		return errors.New("empty response body")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Client issues requests against one base URL.
type Client struct {
	base      string
	http      *http.Client
	collector *perf.Collector
	metrics   *Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport (tests use httptest servers).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithCollector records every call as an upstream perf entry.
func WithCollector(pc *perf.Collector) Option {
	return func(c *Client) { c.collector = pc }
}

// WithMetrics records every call in Prometheus.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client for baseURL.
// POST: the client has no timeout of its own; callers bound calls with ctx
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.base
}

// Do performs the request and normalizes the response.
// PRE: req.Method and req.Path are set
// POST: never panics on transport or decode failures; they become Result.Error
func (c *Client) Do(ctx context.Context, req Request) Result {
	start := time.Now()
	res := c.do(ctx, req)
	c.record(req, res, start)
	return res
}

func (c *Client) do(ctx context.Context, req Request) Result {
	target := c.base + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		return Result{Error: err.Error()}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return Result{Error: err.Error()}
	}

	if req.Headers != nil {
		for k, vs := range req.Headers {
			for _, v := range vs {
				httpReq.Header.Add(k, v)
			}
		}
	} else {
		httpReq.Header.Set("Accept", "application/json")
		if req.Form == nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{Error: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Status: resp.StatusCode, Error: err.Error()}
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if ok {
		if len(bytes.TrimSpace(raw)) == 0 {
			return Result{Success: true, Status: resp.StatusCode}
		}
		if !json.Valid(raw) {
			return Result{Status: resp.StatusCode, Error: "invalid JSON in response body"}
		}
		return Result{Success: true, Status: resp.StatusCode, Data: raw}
	}

	var envelope struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	msg := FallbackError
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Message != "" {
		msg = envelope.Message
	}
	return Result{Status: resp.StatusCode, Error: msg, Code: envelope.Code}
}

// encodeBody returns the request body and, for multipart, its content type.
func encodeBody(req Request) (io.Reader, string, error) {
	if req.Form != nil {
		return encodeMultipart(req.Form)
	}
	if req.Body == nil {
		return nil, "", nil
	}
	data, err := json.Marshal(req.Body)
	if err != nil {
		return nil, "", fmt.Errorf("marshal request body: %w", err)
	}
	return bytes.NewReader(data), "", nil
}

func encodeMultipart(form *Multipart) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range form.Fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	if fp := form.File; fp != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fp.Field, fp.Filename))
		ct := fp.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create file part: %w", err)
		}
		if _, err := part.Write(fp.Data); err != nil {
			return nil, "", fmt.Errorf("write file part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func (c *Client) record(req Request, res Result, start time.Time) {
	elapsed := time.Since(start)
	route := RouteLabel(req.Path)
	label := req.Method + " " + route

	if !res.Success {
		slog.Warn("api_call_failed", "call", label, "status", res.Status, "code", res.Code, "error", res.Error)
	} else {
		slog.Debug("api_call", "call", label, "status", res.Status, "duration_ms", elapsed.Milliseconds())
	}

	c.collector.Record(perf.Entry{
		Kind:       perf.KindUpstream,
		Path:       label,
		StatusCode: res.Status,
		DurationMs: float64(elapsed.Microseconds()) / 1000.0,
		Timestamp:  start,
	})
	c.metrics.observe(req.Method, route, res.Status, elapsed.Seconds())
}
