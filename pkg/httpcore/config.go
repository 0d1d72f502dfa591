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

package httpcore

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/tombee/httpcore/internal/cache"
	"github.com/tombee/httpcore/internal/codec"
	"github.com/tombee/httpcore/internal/cookiejar"
	httplog "github.com/tombee/httpcore/internal/log"
	"github.com/tombee/httpcore/internal/pool"
	"github.com/tombee/httpcore/internal/proxy"
	"github.com/tombee/httpcore/internal/redirect"
	"github.com/tombee/httpcore/internal/retry"
)

// Config gathers every construction-time knob spec §6's "Configuration
// surface" table names. Build one with DefaultConfig and override fields
// via Option, or via New's functional options directly; either way,
// Config itself stays a plain struct so tests can build one without
// going through the option machinery.
type Config struct {
	// Connection pool (spec §6, §4.2).
	MaxConnectionsPerHost int64
	MaxTotalConnections   int64
	IdleConnectionTimeout time.Duration
	MaxIdlePerHost        int

	// Retry (spec §6, §4.5).
	Retry retry.Config

	// Redirect (spec §6, §4.6).
	Redirect redirect.Config

	// Cookie jar (spec §6, §4.7).
	Cookie cookiejar.Config

	// Cache (spec §6, §4.8). Storage defaults to an in-memory map
	// (cache.NewMemoryStorage) when nil.
	CachePolicy  cache.Policy
	CacheStorage cache.Storage

	// Proxy (spec §6, §4.9).
	Proxy proxy.Config

	// Response limits (spec §6, §4.1).
	MaxBodyBytes        int64
	MaxHeaderBlockBytes int64
	MaxLineBytes        int64

	// TLSConfig is passed to every TLS handshake (pooled connections and
	// proxy tunnels alike). Defaults to tls.Config{MinVersion: VersionTLS12}.
	TLSConfig *tls.Config
	// ALPNProtocols is offered during the TLS handshake. The engine only
	// proceeds over HTTP/1.1; see internal/tlsdial for the h2 handoff rule.
	ALPNProtocols []string

	// Logger receives one structured line per top-level Do call
	// (spec §3.1). Defaults to httplog.FromEnv()'s logger.
	Logger *slog.Logger

	// DialTimeout bounds TCP connect time for both pooled connections
	// and proxy CONNECT dials.
	DialTimeout time.Duration
}

// DefaultConfig returns the configuration spec §6 documents as the
// engine's defaults.
func DefaultConfig() Config {
	return Config{
		MaxConnectionsPerHost: 6,
		MaxTotalConnections:   64,
		IdleConnectionTimeout: 90 * time.Second,
		MaxIdlePerHost:        2,

		Retry:    retry.DefaultConfig(),
		Redirect: redirect.DefaultConfig(),
		Cookie:   cookiejar.DefaultConfig(),

		CachePolicy: cache.DefaultPolicy(),

		Proxy: proxy.DefaultConfig(),

		MaxBodyBytes:        codec.DefaultMaxBodyBytes,
		MaxHeaderBlockBytes: codec.DefaultMaxHeaderBytes,
		MaxLineBytes:        codec.DefaultMaxLineBytes,

		TLSConfig:   &tls.Config{MinVersion: tls.VersionTLS12},
		DialTimeout: 10 * time.Second,
	}
}

// Validate reports whether c's fields form a usable configuration.
func (c Config) Validate() error {
	if c.MaxConnectionsPerHost <= 0 {
		return fmt.Errorf("httpcore: MaxConnectionsPerHost must be > 0")
	}
	if c.MaxTotalConnections <= 0 {
		return fmt.Errorf("httpcore: MaxTotalConnections must be > 0")
	}
	if c.MaxTotalConnections < c.MaxConnectionsPerHost {
		return fmt.Errorf("httpcore: MaxTotalConnections must be >= MaxConnectionsPerHost")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("httpcore: Retry.MaxRetries must be >= 0")
	}
	if c.Redirect.MaxRedirects < 0 {
		return fmt.Errorf("httpcore: Redirect.MaxRedirects must be >= 0")
	}
	return nil
}

func (c Config) limits() codec.Limits {
	return codec.Limits{
		MaxHeaderBytes: c.MaxHeaderBlockBytes,
		MaxBodyBytes:   c.MaxBodyBytes,
		MaxLineBytes:   c.MaxLineBytes,
	}
}

func (c Config) poolLimits() pool.Limits {
	return pool.Limits{
		MaxTotal:       c.MaxTotalConnections,
		MaxPerHost:     c.MaxConnectionsPerHost,
		MaxIdlePerHost: c.MaxIdlePerHost,
		IdleTimeout:    c.IdleConnectionTimeout,
	}
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return httplog.New(httplog.FromEnv())
}

// Option mutates a Config at construction time. Options return an error
// so invalid input (a nil required value, a malformed proxy URL) fails
// New rather than silently producing an unusable client.
type Option func(*Config) error

// WithMaxConnsPerHost overrides the per-host connection cap.
func WithMaxConnsPerHost(n int64) Option {
	return func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("httpcore: WithMaxConnsPerHost requires n > 0")
		}
		c.MaxConnectionsPerHost = n
		return nil
	}
}

// WithMaxTotalConns overrides the global connection cap.
func WithMaxTotalConns(n int64) Option {
	return func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("httpcore: WithMaxTotalConns requires n > 0")
		}
		c.MaxTotalConnections = n
		return nil
	}
}

// WithIdleConnectionTimeout overrides how long an idle pooled connection
// is kept before being discarded on next acquisition.
func WithIdleConnectionTimeout(d time.Duration) Option {
	return func(c *Config) error {
		c.IdleConnectionTimeout = d
		return nil
	}
}

// WithRetry overrides the retry interceptor's configuration.
func WithRetry(cfg retry.Config) Option {
	return func(c *Config) error {
		c.Retry = cfg
		return nil
	}
}

// WithRedirect overrides the redirect interceptor's configuration.
func WithRedirect(cfg redirect.Config) Option {
	return func(c *Config) error {
		c.Redirect = cfg
		return nil
	}
}

// WithCookieConfig overrides the cookie jar's storage bounds.
func WithCookieConfig(cfg cookiejar.Config) Option {
	return func(c *Config) error {
		c.Cookie = cfg
		return nil
	}
}

// WithCachePolicy overrides the cache interceptor's storage policy.
func WithCachePolicy(p cache.Policy) Option {
	return func(c *Config) error {
		c.CachePolicy = p
		return nil
	}
}

// WithCacheStorage supplies a custom cache.Storage backend (e.g. a disk
// store) in place of the default in-memory map.
func WithCacheStorage(s cache.Storage) Option {
	return func(c *Config) error {
		if s == nil {
			return fmt.Errorf("httpcore: WithCacheStorage requires a non-nil Storage")
		}
		c.CacheStorage = s
		return nil
	}
}

// WithProxy configures a forward HTTP proxy explicitly, disabling
// environment-variable discovery.
func WithProxy(address string, username, password string) Option {
	return func(c *Config) error {
		u, err := url.Parse(address)
		if err != nil {
			return fmt.Errorf("httpcore: WithProxy: %w", err)
		}
		c.Proxy.Address = u
		c.Proxy.Username = username
		c.Proxy.Password = password
		c.Proxy.UseEnvironmentVariables = false
		return nil
	}
}

// WithProxyBypass adds host patterns (exact, ".suffix", "*.suffix", or
// "host:port") that should never be routed through the proxy.
func WithProxyBypass(patterns ...string) Option {
	return func(c *Config) error {
		c.Proxy.Bypass = append(c.Proxy.Bypass, patterns...)
		return nil
	}
}

// WithAllowPlaintextProxyAuth permits Basic proxy credentials over a
// plaintext connection to the proxy (refused by default, spec §4.9).
func WithAllowPlaintextProxyAuth(allow bool) Option {
	return func(c *Config) error {
		c.Proxy.AllowPlaintextAuth = allow
		return nil
	}
}

// WithResponseLimits overrides the codec's header/body/line size caps.
func WithResponseLimits(maxBodyBytes, maxHeaderBlockBytes, maxLineBytes int64) Option {
	return func(c *Config) error {
		c.MaxBodyBytes = maxBodyBytes
		c.MaxHeaderBlockBytes = maxHeaderBlockBytes
		c.MaxLineBytes = maxLineBytes
		return nil
	}
}

// WithTLSConfig overrides the TLS client configuration used for every
// pooled connection and proxy tunnel.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Config) error {
		if cfg == nil {
			return fmt.Errorf("httpcore: WithTLSConfig requires a non-nil *tls.Config")
		}
		c.TLSConfig = cfg
		return nil
	}
}

// WithALPNProtocols overrides the ALPN protocol list offered during the
// TLS handshake.
func WithALPNProtocols(protocols ...string) Option {
	return func(c *Config) error {
		c.ALPNProtocols = protocols
		return nil
	}
}

// WithLogger overrides the logger the logging interceptor writes to.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) error {
		if logger == nil {
			return fmt.Errorf("httpcore: WithLogger requires a non-nil *slog.Logger")
		}
		c.Logger = logger
		return nil
	}
}

// WithDialTimeout overrides the TCP connect timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return fmt.Errorf("httpcore: WithDialTimeout requires d > 0")
		}
		c.DialTimeout = d
		return nil
	}
}
