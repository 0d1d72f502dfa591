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
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/tombee/httpcore/internal/message"
	"github.com/tombee/httpcore/internal/pool"
	"github.com/tombee/httpcore/internal/requestctx"
	"github.com/tombee/httpcore/internal/transport"
)

func newReqCtx(t *testing.T, raw string) *requestctx.Context {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	req, err := message.New(message.MethodGet, u, nil, nil, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	return requestctx.New(req)
}

func TestInterceptor_DirectWhenNoProxyConfigured(t *testing.T) {
	ic := New(Config{}, nil)
	rc := newReqCtx(t, "http://example.test/path")

	called := false
	next := func(ctx context.Context, rc *requestctx.Context) (*message.Response, error) {
		called = true
		if _, ok := rc.GetState(transport.StateTargetKey); ok {
			t.Fatal("expected no target-key override for a direct request")
		}
		return &message.Response{Status: 200}, nil
	}

	if _, err := ic.Intercept(context.Background(), rc, next); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatal("expected next to be called")
	}
}

func TestInterceptor_DirectWhenBypassed(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.internal:3128")
	ic := New(Config{Address: proxyURL, Bypass: []string{"example.test"}}, nil)
	rc := newReqCtx(t, "http://example.test/path")

	next := func(ctx context.Context, rc *requestctx.Context) (*message.Response, error) {
		if _, ok := rc.GetState(transport.StateTargetKey); ok {
			t.Fatal("expected bypassed host to skip the proxy")
		}
		return &message.Response{Status: 200}, nil
	}
	if _, err := ic.Intercept(context.Background(), rc, next); err != nil {
		t.Fatal(err)
	}
}

func TestInterceptor_PlainHTTPUsesAbsoluteFormAndAuth(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.internal:3128")
	ic := New(Config{Address: proxyURL, Username: "u", Password: "p"}, nil)
	rc := newReqCtx(t, "http://example.test/path")

	next := func(ctx context.Context, rc *requestctx.Context) (*message.Response, error) {
		key, ok := rc.GetState(transport.StateTargetKey)
		if !ok {
			t.Fatal("expected a target-key override")
		}
		pk := key.(pool.Key)
		if pk.Host != "proxy.internal" || pk.Port != "3128" {
			t.Fatalf("unexpected target key %+v", pk)
		}
		abs, _ := rc.GetState(transport.StateUseAbsoluteForm)
		if abs != true {
			t.Fatal("expected absolute-form to be forced")
		}
		if rc.Request().Headers().Get("Proxy-Authorization") == "" {
			t.Fatal("expected Proxy-Authorization header to be attached")
		}
		return &message.Response{Status: 200}, nil
	}
	if _, err := ic.Intercept(context.Background(), rc, next); err != nil {
		t.Fatal(err)
	}
}

// pipeConnDialer hands back one half of an in-process net.Pipe,
// driving the other half as a fake proxy that answers CONNECT with 200.
type pipeConnDialer struct {
	serverBehavior func(net.Conn)
}

func (d *pipeConnDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	client, server := net.Pipe()
	go d.serverBehavior(server)
	return client, nil
}

func TestInterceptor_HTTPSTunnelSetsTunnelConn(t *testing.T) {
	dialer := &pipeConnDialer{serverBehavior: func(conn net.Conn) {
		defer conn.Close()
		br := bufio.NewReader(conn)
		if _, err := br.ReadString('\n'); err != nil {
			return
		}
		for {
			line, err := br.ReadString('\n')
			if err != nil || line == "\r\n" {
				break
			}
		}
		conn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n"))
		// The test does not complete a real TLS handshake; Tunnel.Open's
		// tlsdial.Wrap call is expected to error, which is asserted below
		// rather than a full loopback TLS server.
	}}

	tunnel := NewTunnel(dialer, nil, nil)
	proxyURL, _ := url.Parse("http://proxy.internal:3128")
	ic := New(Config{Address: proxyURL}, tunnel)
	rc := newReqCtx(t, "https://example.test/path")

	next := func(ctx context.Context, rc *requestctx.Context) (*message.Response, error) {
		t.Fatal("next should not be reached: TLS handshake over the fake tunnel is expected to fail")
		return nil, nil
	}

	_, err := ic.Intercept(context.Background(), rc, next)
	if err == nil {
		t.Fatal("expected a TLS handshake error over the non-TLS fake tunnel")
	}
}
