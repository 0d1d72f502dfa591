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

// Package proxy implements the forward HTTP proxy tunnel (spec §4.9):
// CONNECT with optional Basic authentication for https targets, direct
// absolute-form relay for http targets, bypass-pattern matching, and
// HTTPS_PROXY/HTTP_PROXY/NO_PROXY environment discovery.
package proxy

import (
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Config describes one proxy policy.
type Config struct {
	// Address is the proxy's own URL (scheme http, host, port). Nil
	// means "no explicit proxy configured"; UseEnvironmentVariables may
	// still supply one per request.
	Address *url.URL
	Username string
	Password string
	// AllowPlaintextAuth permits sending Basic credentials over a
	// plaintext connection to the proxy. Spec §4.9 requires this be
	// explicit.
	AllowPlaintextAuth bool
	// Bypass lists hosts that should never be proxied: exact hostname,
	// ".suffix", "*.suffix", or "host:port".
	Bypass []string
	// UseEnvironmentVariables enables HTTPS_PROXY/HTTP_PROXY/NO_PROXY
	// discovery at client construction time.
	UseEnvironmentVariables bool
}

// HasCredentials reports whether Username is set.
func (c Config) HasCredentials() bool {
	return c.Username != ""
}

// DefaultConfig matches spec §6's configuration surface defaults: no
// explicit proxy, environment discovery on, plaintext auth refused.
func DefaultConfig() Config {
	return Config{UseEnvironmentVariables: true}
}

// FromEnvironment overlays HTTPS_PROXY/HTTP_PROXY and NO_PROXY onto cfg
// when cfg.UseEnvironmentVariables is set and cfg.Address is unset,
// grounded on the teacher's env-var-driven host resolution
// (internal/client/dial.go's ParseConductorHost, generalized here to
// standard proxy env vars). It never falls back from one scheme's
// variable to the other.
func FromEnvironment(cfg Config) Config {
	if !cfg.UseEnvironmentVariables {
		return cfg
	}
	if len(cfg.Bypass) == 0 {
		if np := firstNonEmpty(os.Getenv("NO_PROXY"), os.Getenv("no_proxy")); np != "" {
			cfg.Bypass = append(cfg.Bypass, splitAndTrim(np)...)
		}
	}
	return cfg
}

// ResolveForScheme returns the proxy URL this Config prescribes for a
// request of the given scheme ("http" or "https"), reading the
// environment when cfg.Address is unset and UseEnvironmentVariables is
// true. A nil return means "connect directly".
func ResolveForScheme(cfg Config, scheme string) *url.URL {
	if cfg.Address != nil {
		return cfg.Address
	}
	if !cfg.UseEnvironmentVariables {
		return nil
	}
	var raw string
	switch scheme {
	case "https":
		raw = firstNonEmpty(os.Getenv("HTTPS_PROXY"), os.Getenv("https_proxy"))
	case "http":
		raw = firstNonEmpty(os.Getenv("HTTP_PROXY"), os.Getenv("http_proxy"))
	}
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	return u
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Bypasses reports whether host:port should bypass the proxy according
// to patterns: exact hostname (case-insensitive), ".suffix" (host ends
// with suffix), "*.suffix" (at least one subdomain of suffix), or
// "host:port" for port-specific bypass.
func Bypasses(patterns []string, host, port string) bool {
	host = strings.ToLower(host)
	for _, raw := range patterns {
		p := strings.ToLower(strings.TrimSpace(raw))
		if p == "" {
			continue
		}
		if pHost, pPort, ok := splitHostPort(p); ok {
			if pPort != port {
				continue
			}
			p = pHost
		}
		switch {
		case strings.HasPrefix(p, "*."):
			suffix := p[1:] // keep leading "."
			if strings.HasSuffix(host, suffix) && host != strings.TrimPrefix(suffix, ".") {
				return true
			}
		case strings.HasPrefix(p, "."):
			if strings.HasSuffix(host, p) {
				return true
			}
		default:
			if host == p {
				return true
			}
		}
	}
	return false
}

func splitHostPort(p string) (host, port string, ok bool) {
	i := strings.LastIndexByte(p, ':')
	if i < 0 {
		return "", "", false
	}
	host, port = p[:i], p[i+1:]
	if _, err := strconv.Atoi(port); err != nil {
		return "", "", false
	}
	return host, port, true
}
