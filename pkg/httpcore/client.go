// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpcore is the public facade over the engine's four core
// subsystems: the request pipeline (internal/pipeline), the HTTP/1.1
// wire layer (internal/codec, internal/pool, internal/transport), the
// correctness middleware set (internal/retry, internal/redirect,
// internal/cookiejar, internal/cache), and the forward proxy tunnel
// (internal/proxy). Callers construct one long-lived Client and issue
// many requests against many hosts through it.
package httpcore

import (
	"context"
	"net"
	"net/url"
	"time"

	"github.com/tombee/httpcore/internal/cache"
	"github.com/tombee/httpcore/internal/cookiejar"
	"github.com/tombee/httpcore/internal/header"
	httplog "github.com/tombee/httpcore/internal/log"
	"github.com/tombee/httpcore/internal/message"
	"github.com/tombee/httpcore/internal/pipeline"
	"github.com/tombee/httpcore/internal/pool"
	"github.com/tombee/httpcore/internal/proxy"
	"github.com/tombee/httpcore/internal/redirect"
	"github.com/tombee/httpcore/internal/requestctx"
	"github.com/tombee/httpcore/internal/retry"
	"github.com/tombee/httpcore/internal/transport"
)

// Re-exported value types so callers need only import pkg/httpcore for
// everyday use; internal/message remains the source of truth.
type (
	Request  = message.Request
	Response = message.Response
	Method   = message.Method
)

const (
	MethodGet     = message.MethodGet
	MethodHead    = message.MethodHead
	MethodOptions = message.MethodOptions
	MethodPost    = message.MethodPost
	MethodPut     = message.MethodPut
	MethodPatch   = message.MethodPatch
	MethodDelete  = message.MethodDelete
)

// NewHeaders re-exports internal/header's Map constructor for callers
// building a Request.
var NewHeaders = header.New

// Known request metadata keys (spec §3).
const (
	MetaFollowRedirects             = message.MetaFollowRedirects
	MetaMaxRedirects                = message.MetaMaxRedirects
	MetaAllowHTTPSToHTTPDowngrade   = message.MetaAllowHTTPSToHTTPDowngrade
	MetaEnforceRedirectTotalTimeout = message.MetaEnforceRedirectTotalTimeout
	MetaIsCrossSiteRequest          = message.MetaIsCrossSiteRequest
)

// DefaultRequestTimeout is applied by NewRequest when the caller does
// not specify one.
const DefaultRequestTimeout = 30 * time.Second

// Client is the engine's entry point: a pipeline of interceptors
// terminating at a pooled HTTP/1.1 transport, built once and safe for
// concurrent use by many goroutines issuing many requests against many
// hosts.
type Client struct {
	cfg   Config
	pool  *pool.Pool
	jar   *cookiejar.Jar
	chain pipeline.Next
}

// New constructs a Client from DefaultConfig with opts applied in order.
func New(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewFromConfig(cfg)
}

// NewFromConfig constructs a Client from a fully-formed Config, bypassing
// the functional-option layer. Useful for tests that want precise
// control over every field.
func NewFromConfig(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dialer := &pool.NetDialer{
		Timeout:       cfg.DialTimeout,
		TLSConfig:     cfg.TLSConfig,
		ALPNProtocols: cfg.ALPNProtocols,
	}
	p := pool.New(dialer, cfg.poolLimits())

	storage := cfg.CacheStorage
	if storage == nil {
		storage = cache.NewMemoryStorage()
	}
	jar := cookiejar.New(cfg.Cookie)
	logger := cfg.logger()

	tr := transport.New(p, cfg.limits())
	tunnel := proxy.NewTunnel(&net.Dialer{Timeout: cfg.DialTimeout}, cfg.TLSConfig, logger)

	chain := pipeline.Build(tr.Send,
		httplog.NewInterceptor(logger),
		redirect.New(cfg.Redirect),
		cache.New(storage, cfg.CachePolicy),
		retry.New(cfg.Retry),
		cookiejar.NewInterceptor(jar),
		proxy.New(cfg.Proxy, tunnel),
	)

	return &Client{cfg: cfg, pool: p, jar: jar, chain: chain}, nil
}

// Jar returns the client's cookie jar, e.g. to pre-seed cookies or
// inspect stored ones between requests.
func (c *Client) Jar() *cookiejar.Jar { return c.jar }

// Close closes every idle pooled connection. In-flight requests are not
// interrupted; it is intended for a clean shutdown once the caller is
// done issuing requests.
func (c *Client) Close() error {
	return c.pool.Close()
}

// NewRequest builds a Request for the given method and absolute URI,
// applying a positive timeout (DefaultRequestTimeout if d <= 0).
func NewRequest(method Method, rawURL string, headers *header.Map, body []byte, d time.Duration) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if d <= 0 {
		d = DefaultRequestTimeout
	}
	return message.New(method, u, headers, body, d)
}

// Do sends req through the client's interceptor pipeline and returns the
// resulting Response. ctx governs cancellation; req's own Timeout is the
// per-attempt deadline the transport enforces (spec §4.10).
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	resp, _, err := c.DoTraced(ctx, req)
	return resp, err
}

// DoTraced behaves like Do but also returns the execution's recorded
// timeline (spec §3's "Request context"), for callers that want to
// inspect dnsStart/tcpConnectEnd/redirectHop-style events — e.g. the
// httpcoreprobe CLI.
func (c *Client) DoTraced(ctx context.Context, req *Request) (*Response, []requestctx.Event, error) {
	rc := requestctx.New(req)
	resp, err := c.chain(ctx, rc)
	return resp, rc.Timeline(), err
}

// Get is a convenience wrapper around Do for a GET request with no body.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	req, err := NewRequest(MethodGet, rawURL, nil, nil, 0)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}

// Post is a convenience wrapper around Do for a POST request with body
// and a Content-Type header.
func (c *Client) Post(ctx context.Context, rawURL, contentType string, body []byte) (*Response, error) {
	h := header.New()
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	req, err := NewRequest(MethodPost, rawURL, h, body, 0)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req)
}
