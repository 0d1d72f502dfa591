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

// Package transport performs a single request/response exchange: it
// acquires a pooled connection, serializes the request, parses the
// response, and maps any failure onto the engine's error-kind taxonomy.
// It is the innermost stage of the interceptor chain built by
// internal/pipeline; it never retries or redirects itself, except for
// the one safe retry described below.
package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/tombee/httpcore/internal/codec"
	"github.com/tombee/httpcore/internal/header"
	"github.com/tombee/httpcore/internal/message"
	"github.com/tombee/httpcore/internal/pool"
	"github.com/tombee/httpcore/internal/requestctx"
	"github.com/tombee/httpcore/pkg/httperr"
)

// State keys internal/proxy and internal/pipeline use to redirect a
// send at a forward proxy instead of the request's own origin.
const (
	// StateTargetKey overrides the pool.Key a request dials (a proxy's
	// address instead of the origin's), value type pool.Key.
	StateTargetKey = "transport.targetKey"
	// StateUseAbsoluteForm forces origin-form vs. absolute-form request
	// target selection, value type bool.
	StateUseAbsoluteForm = "transport.useAbsoluteForm"
	// StateTunnelConn supplies an already-established tunnel
	// (post-CONNECT) connection to send the TLS-wrapped request over,
	// value type net.Conn. When set, the pool is bypassed entirely.
	StateTunnelConn = "transport.tunnelConn"
)

// Transport sends one request over a pooled connection and parses its
// response.
type Transport struct {
	Pool   *pool.Pool
	Limits codec.Limits
}

// New constructs a Transport backed by p.
func New(p *pool.Pool, limits codec.Limits) *Transport {
	return &Transport{Pool: p, Limits: limits}
}

// Send performs one request/response exchange for the current request
// in rc. On a stale reused connection that fails before any bytes are
// written, and only for an idempotent method, Send discards the
// connection and retries exactly once on a fresh one.
func (t *Transport) Send(ctx context.Context, rc *requestctx.Context) (*message.Response, error) {
	req := rc.Request()

	if tunnelConn, ok := rc.GetState(StateTunnelConn); ok {
		conn := tunnelConn.(net.Conn)
		// Tunneled connections are single-use here (the pool is bypassed
		// entirely, see StateTunnelConn's doc comment), so close it on
		// every exit path rather than leasing it back to anything.
		defer conn.Close()
		wr, err := t.sendOverConn(conn, req, false)
		if err != nil {
			rc.RecordEvent("sendError", map[string]string{"error": err.Error()})
			return nil, mapSendError(err)
		}
		rc.RecordEvent("response", map[string]string{"status": strconv.Itoa(wr.parsed.Status)})
		return toMessageResponse(req, wr, rc.Elapsed()), nil
	}

	key, err := targetKey(rc, req)
	if err != nil {
		return nil, httperr.Wrap(httperr.KindInvalidRequest, "transport.Send", err)
	}
	useAbsoluteForm := false
	if v, ok := rc.GetState(StateUseAbsoluteForm); ok {
		useAbsoluteForm, _ = v.(bool)
	}

	conn, err := t.Pool.Acquire(ctx, key)
	if err != nil {
		return nil, classifyDialError(err)
	}

	rc.RecordEvent("gotConn", map[string]string{"reused": boolString(conn.Reused())})

	resp, sendErr := t.sendOverConn(conn, req, useAbsoluteForm)
	if sendErr != nil && conn.Reused() && req.Method().IsIdempotent() && nothingReadYet(sendErr) {
		conn.Discard()
		rc.RecordEvent("staleConnRetry", nil)

		fresh, dialErr := t.Pool.Acquire(ctx, key)
		if dialErr != nil {
			return nil, classifyDialError(dialErr)
		}
		resp, sendErr = t.sendOverConn(fresh, req, useAbsoluteForm)
		conn = fresh
	}

	if sendErr != nil {
		conn.Discard()
		rc.RecordEvent("sendError", map[string]string{"error": sendErr.Error()})
		return nil, mapSendError(sendErr)
	}

	conn.Release(!resp.wireClose)
	rc.RecordEvent("response", map[string]string{"status": strconv.Itoa(resp.parsed.Status)})

	return toMessageResponse(req, resp, rc.Elapsed()), nil
}

type wireResponse struct {
	parsed    *codec.ParsedResponse
	wireClose bool
}

func (t *Transport) sendOverConn(conn netConn, req *message.Request, useAbsoluteForm bool) (*wireResponse, error) {
	if err := conn.SetDeadline(deadlineFor(req)); err != nil {
		return nil, err
	}

	if err := codec.WriteRequest(conn, req, useAbsoluteForm); err != nil {
		return nil, err
	}

	br := bufio.NewReader(conn)
	parsed, err := codec.ReadResponse(br, req.Method() == message.MethodHead, t.Limits)
	if err != nil {
		return nil, err
	}

	return &wireResponse{
		parsed:    parsed,
		wireClose: parsed.Close,
	}, nil
}

// netConn is the subset of *pool.Conn (or a raw net.Conn for tunneled
// sends) Send needs.
type netConn interface {
	io.Reader
	io.Writer
	SetDeadline(time.Time) error
}

func deadlineFor(req *message.Request) time.Time {
	if req.Timeout() <= 0 {
		return time.Time{}
	}
	return time.Now().Add(req.Timeout())
}

func toMessageResponse(req *message.Request, wr *wireResponse, elapsed time.Duration) *message.Response {
	return &message.Response{
		Request:    req,
		Status:     wr.parsed.Status,
		StatusText: wr.parsed.StatusText,
		Headers:    wr.parsed.Headers,
		Body:       wr.parsed.Body,
		Elapsed:    elapsed,
	}
}

func targetKey(rc *requestctx.Context, req *message.Request) (pool.Key, error) {
	if v, ok := rc.GetState(StateTargetKey); ok {
		return v.(pool.Key), nil
	}
	return keyFromURI(req.URI())
}

func keyFromURI(u *url.URL) (pool.Key, error) {
	host := u.Hostname()
	if host == "" {
		return pool.Key{}, errors.New("transport: request URI has no host")
	}
	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	return pool.Key{Scheme: u.Scheme, Host: host, Port: port}, nil
}

// nothingReadYet reports whether err looks like the kind of failure a
// server closing a stale keep-alive connection produces: write/connect
// resets and unexpected EOF before any response bytes arrived. It is a
// deliberately narrow, conservative check since retrying a request that
// already reached the server would double-apply it.
func nothingReadYet(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

func classifyDialError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return httperr.Wrap(httperr.KindTimeout, "transport.Acquire", err)
	}
	if errors.Is(err, context.Canceled) {
		return httperr.Wrap(httperr.KindCancelled, "transport.Acquire", err)
	}
	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		return httperr.Wrap(httperr.KindTLS, "transport.Acquire", err)
	}
	return httperr.Wrap(httperr.KindNetwork, "transport.Acquire", err)
}

func mapSendError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return httperr.Wrap(httperr.KindTimeout, "transport.Send", err)
	}
	if errors.Is(err, context.Canceled) {
		return httperr.Wrap(httperr.KindCancelled, "transport.Send", err)
	}
	if errors.Is(err, codec.ErrBodyTooLarge) {
		return httperr.Wrap(httperr.KindResponseTooLarge, "transport.Send", err)
	}
	if errors.Is(err, codec.ErrMalformedResponse) {
		return httperr.Wrap(httperr.KindDecodeError, "transport.Send", err)
	}
	if errors.Is(err, header.ErrInvalidHeader) {
		return httperr.Wrap(httperr.KindInvalidRequest, "transport.Send", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return httperr.Wrap(httperr.KindTimeout, "transport.Send", err)
	}
	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		return httperr.Wrap(httperr.KindTLS, "transport.Send", err)
	}
	return httperr.Wrap(httperr.KindNetwork, "transport.Send", err)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
