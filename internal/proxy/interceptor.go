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

package proxy

import (
	"context"
	"encoding/base64"
	"net"
	"net/url"

	"github.com/tombee/httpcore/internal/message"
	"github.com/tombee/httpcore/internal/pipeline"
	"github.com/tombee/httpcore/internal/pool"
	"github.com/tombee/httpcore/internal/requestctx"
	"github.com/tombee/httpcore/internal/transport"
	"github.com/tombee/httpcore/pkg/httperr"
)

// Interceptor routes a request at a forward proxy when one applies: for
// http targets it redirects the transport at the proxy with an
// absolute-form request target; for https targets it establishes a
// CONNECT tunnel itself and hands the transport the raw tunneled
// connection (spec §4.9).
type Interceptor struct {
	Cfg    Config
	Tunnel *Tunnel
}

// New constructs a proxy Interceptor. cfg is resolved against the
// environment once at construction time (spec §6).
func New(cfg Config, tunnel *Tunnel) *Interceptor {
	return &Interceptor{Cfg: FromEnvironment(cfg), Tunnel: tunnel}
}

// Intercept implements pipeline.Interceptor.
func (ic *Interceptor) Intercept(ctx context.Context, rc *requestctx.Context, next pipeline.Next) (*message.Response, error) {
	req := rc.Request()
	uri := req.URI()

	proxyURL := ResolveForScheme(ic.Cfg, uri.Scheme)
	if proxyURL == nil {
		return next(ctx, rc)
	}
	if Bypasses(ic.Cfg.Bypass, uri.Hostname(), effectivePort(uri)) {
		return next(ctx, rc)
	}

	if uri.Scheme == "http" {
		return ic.relayPlain(ctx, rc, next, proxyURL)
	}
	return ic.tunnel(ctx, rc, next, proxyURL)
}

// relayPlain sends an http request directly to the proxy with an
// absolute-form target and an attached Proxy-Authorization header; no
// tunnel is established (spec §4.9).
func (ic *Interceptor) relayPlain(ctx context.Context, rc *requestctx.Context, next pipeline.Next, proxyURL *url.URL) (*message.Response, error) {
	req := rc.Request()
	if ic.Cfg.HasCredentials() {
		h := req.Headers().Clone()
		creds := base64.StdEncoding.EncodeToString([]byte(ic.Cfg.Username + ":" + ic.Cfg.Password))
		h.Set("Proxy-Authorization", "Basic "+creds)
		req = req.Rewrite(message.RewriteOptions{Headers: h})
		rc.SetRequest(req)
	}

	key := pool.Key{Scheme: "http", Host: proxyURL.Hostname(), Port: effectivePort(proxyURL)}
	rc.SetState(transport.StateTargetKey, key)
	rc.SetState(transport.StateUseAbsoluteForm, true)
	return next(ctx, rc)
}

// tunnel establishes a CONNECT tunnel to the origin through proxyURL and
// hands the transport the raw tunneled+TLS-wrapped connection directly,
// bypassing the pool (internal/transport.StateTunnelConn).
func (ic *Interceptor) tunnel(ctx context.Context, rc *requestctx.Context, next pipeline.Next, proxyURL *url.URL) (*message.Response, error) {
	req := rc.Request()
	uri := req.URI()
	targetPort := effectivePort(uri)

	rc.RecordEvent("proxyConnectStart", map[string]string{"proxy": proxyURL.Host})
	result, err := ic.Tunnel.Open(ctx, net.JoinHostPort(proxyURL.Hostname(), effectivePort(proxyURL)), uri.Hostname(), targetPort, ic.Cfg)
	if err != nil {
		rc.RecordEvent("proxyConnectError", map[string]string{"error": err.Error()})
		var herr *httperr.Error
		if httperr.As(err, &herr) {
			return nil, herr
		}
		return nil, httperr.Wrap(httperr.KindProxyConnectFailed, "proxy.Intercept", err)
	}
	rc.RecordEvent("proxyConnectEnd", map[string]string{"alpn": result.NegotiatedALPN})

	rc.SetState(transport.StateTunnelConn, result.Conn)
	return next(ctx, rc)
}

// effectivePort returns u's explicit port, or the scheme's default.
func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	if u.Scheme == "https" {
		return "443"
	}
	return "80"
}
