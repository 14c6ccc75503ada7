// Package probe holds the leaf checks: HTTP reachability, TLS certificate
// expiry and host resource sampling.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrProbe       = errors.New("probe failed")
	ErrCertificate = errors.New("certificate inspection failed")
	ErrSample      = errors.New("system sampling failed")
)

type HTTPResult struct {
	URL        string
	StatusCode int
	Latency    time.Duration
	Err        error
}

func (r HTTPResult) Up() bool { return r.Err == nil }

// Reason is a short human readable cause for a failed probe.
func (r HTTPResult) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

type HTTPProber struct {
	client *http.Client
}

func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{client: &http.Client{Timeout: timeout}}
}

// Probe issues a GET. Transport errors, timeouts and any final status
// outside 2xx/3xx are failures.
func (p *HTTPProber) Probe(ctx context.Context, url string) HTTPResult {
	res := HTTPResult{URL: url}
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		res.Err = fmt.Errorf("%w: %v", ErrProbe, err)
		return res
	}
	resp, err := p.client.Do(req)
	res.Latency = time.Since(start)
	if err != nil {
		res.Err = fmt.Errorf("%w: %v", ErrProbe, err)
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		res.Err = fmt.Errorf("%w: %d %s", ErrProbe, resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return res
}
