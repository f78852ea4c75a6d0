package ingest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

// DefaultHTTPInterval and DefaultHTTPTimeout are the poller's defaults;
// no http_poller.py was retrieved in original_source/, so these follow
// ingest_manager.py's config defaults for the http mode
// (interval=1.0s, timeout=5s, method=GET).
const (
	DefaultHTTPInterval = time.Second
	DefaultHTTPTimeout  = 5 * time.Second
)

// HTTPPoller polls a rotating list of URLs on a fixed interval and emits
// each response's latency and status as one telemetry event, generalizing
// ingest_manager.py's http mode (whose HTTPPoller implementation was not
// retrieved, so only the shape config describes is reproduced here).
type HTTPPoller struct {
	URLs    []string
	Method  string
	Headers map[string]string
	Interval time.Duration
	Timeout  time.Duration

	client *http.Client
	next   int
}

// NewHTTPPoller builds a poller with defaults filled in for zero values.
func NewHTTPPoller(urls []string, method string, headers map[string]string, interval, timeout time.Duration) *HTTPPoller {
	if len(urls) == 0 {
		urls = []string{"https://www.google.com"}
	}
	if method == "" {
		method = http.MethodGet
	}
	if interval <= 0 {
		interval = DefaultHTTPInterval
	}
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTTPPoller{
		URLs:     urls,
		Method:   method,
		Headers:  headers,
		Interval: interval,
		Timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
	}
}

func (p *HTTPPoller) Connect(ctx context.Context) error { return nil }
func (p *HTTPPoller) Close(ctx context.Context) error    { return nil }

// Read waits one Interval, polls the next URL in rotation, and returns an
// event carrying its status code and round-trip latency in milliseconds.
// A transport-level failure (no response at all) is reported as status
// code 0 rather than aborting the stream.
func (p *HTTPPoller) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(p.Interval):
	}

	url := p.URLs[p.next%len(p.URLs)]
	p.next++

	req, err := http.NewRequestWithContext(ctx, p.Method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("http poll build request: %w", err)
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, statusCode, err := p.do(req)
	elapsedMS := float64(time.Since(start).Microseconds()) / 1000.0
	if resp != nil {
		resp.Body.Close()
	}

	wire := struct {
		Timestamp    string  `json:"timestamp"`
		Endpoint     string  `json:"endpoint"`
		StatusCode   int     `json:"status_code"`
		ResponseTime float64 `json:"response_time"`
	}{
		Timestamp:    time.Now().Format("2006-01-02 15:04:05.000000"),
		Endpoint:     url,
		StatusCode:   statusCode,
		ResponseTime: elapsedMS,
	}
	_ = err // a transport error is already folded into statusCode == 0
	return json.Marshal(wire)
}

func (p *HTTPPoller) do(req *http.Request) (*http.Response, int, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	return resp, resp.StatusCode, nil
}
