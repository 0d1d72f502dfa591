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

// Package redirect implements the 3xx-handling interceptor (spec §4.6):
// method/body rewriting, cross-origin header scrubbing, loop and
// downgrade protection, and an optional total-timeout budget shared
// across every hop.
package redirect

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tombee/httpcore/internal/message"
	"github.com/tombee/httpcore/internal/pipeline"
	"github.com/tombee/httpcore/internal/requestctx"
	"github.com/tombee/httpcore/pkg/httperr"
)

// Config is the client-wide default redirect policy; individual
// requests may override it via the metadata keys in spec §3.
type Config struct {
	FollowRedirects              bool
	MaxRedirects                 int
	AllowHTTPSToHTTPDowngrade    bool
	EnforceRedirectTotalTimeout  bool
}

// DefaultConfig matches spec §6's configuration surface defaults.
func DefaultConfig() Config {
	return Config{
		FollowRedirects:             true,
		MaxRedirects:                10,
		AllowHTTPSToHTTPDowngrade:   false,
		EnforceRedirectTotalTimeout: true,
	}
}

// redirectStatuses is the set of statuses this interceptor auto-follows.
// 300 Multiple Choices is deliberately excluded per spec §4.6.
var redirectStatuses = map[int]bool{301: true, 302: true, 303: true, 307: true, 308: true}

// Interceptor implements redirect-following as described in spec §4.6.
type Interceptor struct {
	cfg Config
}

// New constructs a redirect Interceptor from cfg.
func New(cfg Config) *Interceptor {
	return &Interceptor{cfg: cfg}
}

// Intercept implements pipeline.Interceptor.
func (ic *Interceptor) Intercept(ctx context.Context, rc *requestctx.Context, next pipeline.Next) (*message.Response, error) {
	origReq := rc.Request()
	follow := origReq.MetadataBool(message.MetaFollowRedirects, ic.cfg.FollowRedirects)
	if !follow {
		return next(ctx, rc)
	}

	maxRedirects := ic.cfg.MaxRedirects
	if v, ok := origReq.Metadata(message.MetaMaxRedirects); ok {
		if n, ok := v.(int); ok && n >= 0 {
			maxRedirects = n
		}
	}
	allowDowngrade := origReq.MetadataBool(message.MetaAllowHTTPSToHTTPDowngrade, ic.cfg.AllowHTTPSToHTTPDowngrade)
	enforceBudget := origReq.MetadataBool(message.MetaEnforceRedirectTotalTimeout, ic.cfg.EnforceRedirectTotalTimeout)

	originalTimeout := origReq.Timeout()
	seen := map[string]bool{canonicalKey(origReq.URI()): true}

	hop := 0
	for {
		resp, err := next(ctx, rc)
		if err != nil {
			return resp, err
		}
		if !redirectStatuses[resp.Status] {
			return resp, nil
		}

		loc := resp.Headers.Get("Location")
		if loc == "" {
			return resp, nil
		}

		cur := rc.Request()
		target, err := resolveLocation(cur.URI(), loc)
		if err != nil {
			return nil, httperr.Wrap(httperr.KindInvalidRequest, "redirect.Intercept", err)
		}

		if hop >= maxRedirects {
			return nil, httperr.New(httperr.KindInvalidRequest, "redirect.Intercept", "Redirect limit exceeded")
		}
		key := canonicalKey(target)
		if seen[key] {
			return nil, httperr.New(httperr.KindInvalidRequest, "redirect.Intercept", "Redirect loop detected")
		}
		if cur.URI().Scheme == "https" && target.Scheme == "http" && !allowDowngrade {
			return nil, httperr.New(httperr.KindInvalidRequest, "redirect.Intercept", "scheme downgrade not permitted")
		}

		nextTimeout := cur.Timeout()
		if enforceBudget {
			remaining := originalTimeout - rc.Elapsed()
			if remaining <= 0 {
				return nil, httperr.New(httperr.KindTimeout, "redirect.Intercept", "redirect total-timeout budget exhausted")
			}
			if remaining < originalTimeout {
				nextTimeout = remaining
			} else {
				nextTimeout = originalTimeout
			}
		}

		crossOrigin := isCrossOrigin(cur.URI(), target)
		newReq := buildNextRequest(cur, target, resp.Status, nextTimeout, crossOrigin)

		hop++
		seen[key] = true
		rc.RecordEvent("redirectHop", map[string]string{
			"from": cur.URI().String(),
			"to":   target.String(),
			"status": strconv.Itoa(resp.Status),
			"hop":  strconv.Itoa(hop),
		})
		rc.SetRequest(newReq)
	}
}

// resolveLocation resolves a (possibly relative) Location header value
// against base, inheriting base's fragment when Location has none
// (RFC 9110 §15.4).
func resolveLocation(base *url.URL, loc string) (*url.URL, error) {
	ref, err := url.Parse(loc)
	if err != nil {
		return nil, err
	}
	target := base.ResolveReference(ref)
	if target.Fragment == "" && base.Fragment != "" {
		target.Fragment = base.Fragment
	}
	return target, nil
}

// canonicalKey renders a loop-detection key: lowercased scheme+host,
// explicit port only if non-default, plus path+query.
func canonicalKey(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port != "" && !isDefaultPort(scheme, port) {
		host = host + ":" + port
	}
	return scheme + "://" + host + u.RequestURI()
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

// isCrossOrigin reports whether scheme, host, or port differ between a
// and b, case-insensitively for scheme/host.
func isCrossOrigin(a, b *url.URL) bool {
	if !strings.EqualFold(a.Scheme, b.Scheme) {
		return true
	}
	if !strings.EqualFold(a.Hostname(), b.Hostname()) {
		return true
	}
	return effectivePort(a) != effectivePort(b)
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	if u.Scheme == "https" {
		return "443"
	}
	return "80"
}

// bodyHeaders are dropped whenever the method/body is rewritten away.
var bodyHeaders = []string{"Content-Length", "Content-Type", "Transfer-Encoding"}

// buildNextRequest applies the method/body rewrite rules and header
// scrubbing for one hop, per spec §4.6.
func buildNextRequest(cur *message.Request, target *url.URL, status int, timeout time.Duration, crossOrigin bool) *message.Request {
	method := cur.Method()
	clearBody := false

	switch {
	case (status == 301 || status == 302) && method == message.MethodPost:
		method = message.MethodGet
		clearBody = true
	case status == 303 && method != message.MethodHead:
		method = message.MethodGet
		clearBody = true
	case status == 307 || status == 308:
		// method and body preserved
	}

	headers := cur.Headers().Clone()
	headers.Remove("Host")
	if clearBody {
		for _, h := range bodyHeaders {
			headers.Remove(h)
		}
	}
	if crossOrigin {
		headers.Remove("Authorization")
		headers.Remove("Proxy-Authorization")
		headers.Remove("Cookie")
	}

	opts := message.RewriteOptions{
		Method:  &method,
		URI:     target,
		Headers: headers,
		Timeout: &timeout,
	}
	if clearBody {
		opts.ClearBody = true
	}
	next := cur.Rewrite(opts)
	return next.WithMetadata(message.MetaIsCrossSiteRequest, crossOrigin)
}
