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
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"

	"github.com/tombee/httpcore/internal/codec"
	"github.com/tombee/httpcore/internal/tlsdial"
	"github.com/tombee/httpcore/pkg/httperr"
)

// Dialer opens the raw TCP connection to the proxy. Production code
// uses net.Dialer; tests substitute an in-process pipe.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Tunnel establishes CONNECT tunnels through one proxy.
type Tunnel struct {
	Dialer    Dialer
	TLSConfig *tls.Config
	Logger    *slog.Logger
}

// NewTunnel constructs a Tunnel using dialer (or a plain *net.Dialer if
// nil).
func NewTunnel(dialer Dialer, tlsConfig *tls.Config, logger *slog.Logger) *Tunnel {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	return &Tunnel{Dialer: dialer, TLSConfig: tlsConfig, Logger: logger}
}

// Open performs the full sequence spec §4.9 describes for an https
// target reached through proxyAddr: TCP-connect to the proxy, send
// CONNECT host:port, retry once on 407 with Basic credentials on a
// fresh connection, then TLS-handshake to the origin over the tunnel.
func (t *Tunnel) Open(ctx context.Context, proxyAddr, targetHost, targetPort string, cfg Config) (*tlsdial.Result, error) {
	conn, authSent, err := t.connectOnce(ctx, proxyAddr, targetHost, targetPort, cfg, false)
	if err != nil {
		return nil, err
	}
	_ = authSent

	result, err := tlsdial.Wrap(ctx, conn, targetHost, nil, t.TLSConfig)
	if err != nil {
		conn.Close()
		return nil, httperr.Wrap(httperr.KindTLS, "proxy.Tunnel.Open", err)
	}
	return result, nil
}

// connectOnce dials the proxy and sends one CONNECT, retrying exactly
// once with credentials if the first attempt was unauthenticated and
// drew a 407. It returns the connected-and-tunneled raw conn.
func (t *Tunnel) connectOnce(ctx context.Context, proxyAddr, host, port string, cfg Config, withAuth bool) (net.Conn, bool, error) {
	conn, err := t.Dialer.DialContext(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, false, httperr.Wrap(httperr.KindProxyConnectFailed, "proxy.Tunnel.connectOnce", err)
	}

	status, hdrs, err := t.sendConnect(conn, host, port, cfg, withAuth)
	if err != nil {
		conn.Close()
		return nil, withAuth, httperr.Wrap(httperr.KindProxyConnectFailed, "proxy.Tunnel.connectOnce", err)
	}
	_ = hdrs

	if status == 407 {
		conn.Close()
		if withAuth || !cfg.HasCredentials() {
			return nil, withAuth, httperr.New(httperr.KindProxyAuthRequired, "proxy.Tunnel.connectOnce", "proxy returned 407")
		}
		return t.connectOnce(ctx, proxyAddr, host, port, cfg, true)
	}
	if status < 200 || status >= 300 {
		conn.Close()
		return nil, withAuth, httperr.New(httperr.KindProxyTunnelFailed, "proxy.Tunnel.connectOnce", fmt.Sprintf("CONNECT failed with status %d", status))
	}
	return conn, withAuth, nil
}

func (t *Tunnel) sendConnect(conn net.Conn, host, port string, cfg Config, withAuth bool) (int, map[string]string, error) {
	authority := host + ":" + port
	req := "CONNECT " + authority + " HTTP/1.1\r\nHost: " + authority + "\r\n"
	if withAuth && cfg.HasCredentials() {
		_, isTLS := conn.(*tls.Conn)
		if !isTLS {
			if !cfg.AllowPlaintextAuth {
				return 0, nil, fmt.Errorf("proxy: refusing to send Basic auth over a plaintext proxy connection (set AllowPlaintextAuth to override)")
			}
			if t.Logger != nil {
				t.Logger.Warn("sending Basic proxy credentials over a plaintext connection", "proxy", authority)
			}
		}
		creds := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		req += "Proxy-Authorization: Basic " + creds + "\r\n"
	}
	req += "\r\n"

	if _, err := conn.Write([]byte(req)); err != nil {
		return 0, nil, err
	}

	br := bufio.NewReader(conn)
	parsed, err := codec.ReadResponse(br, true, codec.Limits{})
	if err != nil {
		return 0, nil, err
	}
	hdrs := make(map[string]string)
	for _, name := range parsed.Headers.Names() {
		hdrs[name] = parsed.Headers.Get(name)
	}
	return parsed.Status, hdrs, nil
}
