// Package httpclient executes the bridge's outbound requests to the peer:
// a one-shot client with a connect timeout capped independently of the
// overall request timeout, optional source-IP binding, and an optional
// disabled TLS verification for lab deployments behind a self-signed proxy.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/tss-ch/mas004-databridge/internal/config"
)

// Client is a thin wrapper over http.Client configured per spec §4.2/§9:
// connect timeout capped at 1.5s regardless of the configured value, a
// separate overall request timeout, and source-IP / TLS-verify options.
type Client struct {
	http *http.Client
}

// New builds a Client from the HTTP client section of the configuration.
func New(cfg config.HTTPClientConfig) *Client {
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 || connectTimeout > 1500*time.Millisecond {
		connectTimeout = 1500 * time.Millisecond
	}

	dialer := &net.Dialer{Timeout: connectTimeout}
	if cfg.SourceIP != "" {
		if ip := net.ParseIP(cfg.SourceIP); ip != nil {
			dialer.LocalAddr = &net.TCPAddr{IP: ip}
		}
	}

	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: !cfg.TLSVerify},
		TLSHandshakeTimeout: connectTimeout,
		DisableKeepAlives:   true,
	}

	overall := cfg.OverallTimeout
	if overall <= 0 {
		overall = 5 * time.Second
	}

	return &Client{http: &http.Client{Timeout: overall, Transport: transport}}
}

// Result is a successful response: status code and a bounded body excerpt.
type Result struct {
	StatusCode int
	Body       string
}

// StatusError reports a non-2xx response, carrying enough of the body for
// diagnostics without risking unbounded memory use on a misbehaving peer.
type StatusError struct {
	StatusCode int
	Excerpt    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("peer returned status %d: %s", e.StatusCode, e.Excerpt)
}

const maxExcerpt = 2048

// Do issues method against url with the given headers and body, returning
// the response body on any 2xx status and a *StatusError otherwise.
func (c *Client) Do(ctx context.Context, method, url string, headers map[string]string, body []byte) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxExcerpt))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Excerpt: string(data)}
	}
	return &Result{StatusCode: resp.StatusCode, Body: string(data)}, nil
}
