package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http2"

	"github.com/newsroomkit/beacon-go/pkg/event"
)

const (
	siteKeyHeader = "X-Site-Key"

	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "beacon-go"

	// Mobile radios drop connections without a FIN; health-check pings
	// make such half-open HTTP/2 connections fail fast instead of
	// stalling a flush until the request timeout.
	readIdleTimeout = 30 * time.Second
	pingTimeout     = 10 * time.Second
)

// HTTPConfig configures the default Transport.
type HTTPConfig struct {
	// Endpoint receives batches via POST. Required.
	Endpoint string
	// SiteKey is sent as X-Site-Key on every request when set.
	SiteKey string
	// UserAgent overrides the default request User-Agent.
	UserAgent string
	// Timeout bounds a whole send attempt. Defaults to 10s.
	Timeout time.Duration
}

// HTTP posts each batch as a JSON array to a collection endpoint.
type HTTP struct {
	endpoint  string
	siteKey   string
	userAgent string
	client    *http.Client
}

var _ Transport = (*HTTP)(nil)

// NewHTTP validates the endpoint and builds the underlying client.
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("endpoint %q: scheme must be http or https", cfg.Endpoint)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	tr := &http.Transport{
		MaxIdleConns:    4,
		IdleConnTimeout: 90 * time.Second,
	}
	if h2, err := http2.ConfigureTransports(tr); err == nil {
		h2.ReadIdleTimeout = readIdleTimeout
		h2.PingTimeout = pingTimeout
	}

	return &HTTP{
		endpoint:  cfg.Endpoint,
		siteKey:   cfg.SiteKey,
		userAgent: cfg.UserAgent,
		client: &http.Client{
			Transport: tr,
			Timeout:   cfg.Timeout,
		},
	}, nil
}

// Send posts the batch and reports the server's verdict.
func (h *HTTP) Send(ctx context.Context, batch []event.Event) (*Result, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", h.userAgent)
	if h.siteKey != "" {
		req.Header.Set(siteKeyHeader, h.siteKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send batch: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	return &Result{Status: resp.StatusCode}, nil
}
