package connectivity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/wikiedit/horosafe"
)

// maxHTTPResponseBody caps remote responses. Whole page sources pass
// through here, so the cap is generous (10 MiB).
const maxHTTPResponseBody int64 = 10 << 20

// HTTPConfig is the per-endpoint config passed to the factory as JSON.
type HTTPConfig struct {
	Method       string            `json:"method"`        // POST (default) or GET
	ContentType  string            `json:"content_type"`  // POST only
	TimeoutMs    int64             `json:"timeout_ms"`    // client timeout, default 30s
	AllowPrivate bool              `json:"allow_private"` // self-hosted wikis, tests
	Headers      map[string]string `json:"headers"`
}

type httpFactoryOptions struct {
	client    *http.Client
	userAgent string
}

// HTTPOption configures HTTPFactory.
type HTTPOption func(*httpFactoryOptions)

// WithClient makes the factory reuse c (e.g. one carrying a cookie jar for
// the wiki login session). The config timeout is ignored when set.
func WithClient(c *http.Client) HTTPOption {
	return func(o *httpFactoryOptions) { o.client = c }
}

// WithUserAgent sets the User-Agent header; Wikimedia rejects blank agents.
func WithUserAgent(ua string) HTTPOption {
	return func(o *httpFactoryOptions) { o.userAgent = ua }
}

// HTTPFactory creates Handlers that call a remote HTTP endpoint.
// For POST the payload is the request body. For GET the payload, if any,
// is an encoded query string appended to the endpoint.
//
// The endpoint is validated against private/loopback addresses unless the
// config sets allow_private.
func HTTPFactory(opts ...HTTPOption) TransportFactory {
	var fo httpFactoryOptions
	for _, o := range opts {
		o(&fo)
	}

	return func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		var cfg HTTPConfig
		if len(config) > 0 {
			if err := json.Unmarshal(config, &cfg); err != nil {
				return nil, nil, fmt.Errorf("connectivity/http: config: %w", err)
			}
		}

		validate := horosafe.ValidateURL
		if cfg.AllowPrivate {
			validate = horosafe.ValidateURLAllowPrivate
		}
		if err := validate(endpoint); err != nil {
			return nil, nil, fmt.Errorf("connectivity/http: %w", err)
		}

		method := strings.ToUpper(cfg.Method)
		if method == "" {
			method = http.MethodPost
		}
		if method != http.MethodPost && method != http.MethodGet {
			return nil, nil, fmt.Errorf("connectivity/http: unsupported method %q", cfg.Method)
		}
		contentType := cfg.ContentType
		if contentType == "" {
			contentType = "application/x-www-form-urlencoded"
		}

		client := fo.client
		if client == nil {
			timeout := 30 * time.Second
			if cfg.TimeoutMs > 0 {
				timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
			}
			client = &http.Client{Timeout: timeout}
		}

		handler := func(ctx context.Context, payload []byte) ([]byte, error) {
			var req *http.Request
			var err error
			if method == http.MethodGet {
				target := endpoint
				if len(payload) > 0 {
					sep := "?"
					if strings.Contains(endpoint, "?") {
						sep = "&"
					}
					target += sep + string(payload)
				}
				req, err = http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
			} else {
				req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
				if err == nil {
					req.Header.Set("Content-Type", contentType)
				}
			}
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: create request: %w", err)
			}
			if fo.userAgent != "" {
				req.Header.Set("User-Agent", fo.userAgent)
			}
			for k, v := range cfg.Headers {
				req.Header.Set(k, v)
			}

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: do request: %w", err)
			}
			defer resp.Body.Close()

			body, err := horosafe.LimitedReadAll(resp.Body, maxHTTPResponseBody)
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: read response: %w", err)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				snippet := string(body)
				if len(snippet) > 256 {
					snippet = snippet[:256]
				}
				return nil, &ErrHTTPStatus{Endpoint: endpoint, Status: resp.StatusCode, Body: snippet}
			}
			return body, nil
		}

		closeFn := func() {
			if fo.client == nil {
				client.CloseIdleConnections()
			}
		}
		return handler, closeFn, nil
	}
}
