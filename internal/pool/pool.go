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

// Package pool manages per-host TCP/TLS connection reuse: a bounded
// global semaphore caps total concurrent connections, a bounded
// per-host semaphore caps per-host concurrency, and a FIFO idle queue
// hands a connection back to the next Acquire for the same key before
// dialing a fresh one.
package pool

import (
	"container/list"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tombee/httpcore/internal/tlsdial"
)

// Key identifies a pool partition: scheme, host and port. Two requests
// share a connection only if their Key is identical.
type Key struct {
	Scheme string
	Host   string
	Port   string
}

func (k Key) String() string {
	return fmt.Sprintf("%s://%s:%s", k.Scheme, k.Host, k.Port)
}

// Dialer opens a fresh connection for key, performing the TLS handshake
// itself when key.Scheme is "https".
type Dialer interface {
	Dial(ctx context.Context, key Key) (net.Conn, error)
}

// NetDialer is the default Dialer, grounded on a plain net.Dialer plus a
// crypto/tls client handshake (via internal/tlsdial) for https keys.
type NetDialer struct {
	Timeout       time.Duration
	TLSConfig     *tls.Config
	ALPNProtocols []string
}

// Dial implements Dialer.
func (d *NetDialer) Dial(ctx context.Context, key Key) (net.Conn, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialer := &net.Dialer{Timeout: timeout}

	addr := net.JoinHostPort(key.Host, key.Port)
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	if key.Scheme != "https" {
		return conn, nil
	}

	result, err := tlsdial.Wrap(ctx, conn, key.Host, d.ALPNProtocols, d.TLSConfig)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &alpnConn{Conn: result.Conn, alpn: result.NegotiatedALPN, version: result.TLSVersion}, nil
}

// alpnConn is a net.Conn that remembers what tlsdial negotiated so
// Pool.Acquire can stamp it onto the returned *Conn.
type alpnConn struct {
	net.Conn
	alpn    string
	version uint16
}

// Conn is a pooled connection. Callers obtain one from Acquire and must
// call Release (normal path) or Discard (the connection is broken or
// the server asked to close) exactly once.
type Conn struct {
	net.Conn
	key           Key
	pool          *Pool
	reused        bool
	idleAt        time.Time
	element       *list.Element // set while sitting in the idle list
	createdAt     time.Time
	lastUsedAt    time.Time
	negotiatedALPN string
	tlsVersion    uint16
}

// Reused reports whether this connection previously served a request.
func (c *Conn) Reused() bool { return c.reused }

// CreatedAt returns when the underlying socket was dialed.
func (c *Conn) CreatedAt() time.Time { return c.createdAt }

// LastUsedAt returns when this connection was last handed out by Acquire.
func (c *Conn) LastUsedAt() time.Time { return c.lastUsedAt }

// NegotiatedALPN returns the ALPN protocol the TLS handshake selected,
// or "" for a plaintext connection.
func (c *Conn) NegotiatedALPN() string { return c.negotiatedALPN }

// TLSVersion returns the negotiated TLS version, or 0 for plaintext.
func (c *Conn) TLSVersion() uint16 { return c.tlsVersion }

// Limits bounds how many connections a Pool will hold open.
type Limits struct {
	// MaxTotal caps connections across every host. Zero means 100.
	MaxTotal int64
	// MaxPerHost caps connections to a single Key. Zero means 8.
	MaxPerHost int64
	// MaxIdlePerHost caps idle connections retained per Key for reuse.
	// Zero means 2.
	MaxIdlePerHost int
	// IdleTimeout is how long an idle connection may sit before it is
	// closed outright instead of being handed to the next Acquire.
	// Zero means 90 seconds.
	IdleTimeout time.Duration
}

func (l Limits) maxTotal() int64 {
	if l.MaxTotal > 0 {
		return l.MaxTotal
	}
	return 100
}

func (l Limits) maxPerHost() int64 {
	if l.MaxPerHost > 0 {
		return l.MaxPerHost
	}
	return 8
}

func (l Limits) maxIdlePerHost() int {
	if l.MaxIdlePerHost > 0 {
		return l.MaxIdlePerHost
	}
	return 2
}

func (l Limits) idleTimeout() time.Duration {
	if l.IdleTimeout > 0 {
		return l.IdleTimeout
	}
	return 90 * time.Second
}

// Pool manages connections across every Key it has seen. The zero value
// is not usable; construct with New.
type Pool struct {
	dialer Dialer
	limits Limits

	global *semaphore.Weighted

	mu    sync.Mutex
	hosts map[Key]*hostState
}

type hostState struct {
	sem  *semaphore.Weighted
	idle *list.List // of *Conn, front = most recently released
}

// New constructs a Pool that dials through dialer, bounded by limits.
func New(dialer Dialer, limits Limits) *Pool {
	return &Pool{
		dialer: dialer,
		limits: limits,
		global: semaphore.NewWeighted(limits.maxTotal()),
		hosts:  make(map[Key]*hostState),
	}
}

func (p *Pool) stateFor(key Key) *hostState {
	p.mu.Lock()
	defer p.mu.Unlock()
	hs, ok := p.hosts[key]
	if !ok {
		hs = &hostState{
			sem:  semaphore.NewWeighted(p.limits.maxPerHost()),
			idle: list.New(),
		}
		p.hosts[key] = hs
	}
	return hs
}

// Acquire returns a connection for key: an idle, still-fresh connection
// if one is queued, otherwise a freshly dialed one. It blocks until a
// per-host and a global permit are both available or ctx is done.
func (p *Pool) Acquire(ctx context.Context, key Key) (*Conn, error) {
	hs := p.stateFor(key)

	if err := p.global.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := hs.sem.Acquire(ctx, 1); err != nil {
		p.global.Release(1)
		return nil, err
	}

	if c := p.popIdle(hs); c != nil {
		c.lastUsedAt = time.Now()
		return c, nil
	}

	conn, err := p.dialer.Dial(ctx, key)
	if err != nil {
		hs.sem.Release(1)
		p.global.Release(1)
		return nil, err
	}
	now := time.Now()
	out := &Conn{Conn: conn, key: key, pool: p, createdAt: now, lastUsedAt: now}
	if ac, ok := conn.(*alpnConn); ok {
		out.negotiatedALPN = ac.alpn
		out.tlsVersion = ac.version
	}
	return out, nil
}

// popIdle pops the least recently released idle connection for hs (FIFO,
// so a stale or broken connection surfaces and is retired sooner rather
// than sitting behind newer ones), skipping (and closing) any that have
// gone stale or timed out, until it finds a usable one or the idle list
// is empty.
func (p *Pool) popIdle(hs *hostState) *Conn {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		back := hs.idle.Back()
		if back == nil {
			return nil
		}
		hs.idle.Remove(back)
		c := back.Value.(*Conn)
		c.element = nil

		if time.Since(c.idleAt) > p.limits.idleTimeout() || !isAlive(c.Conn) {
			c.Conn.Close()
			continue
		}
		c.reused = true
		return c
	}
}

// isAlive performs a zero-timeout read to detect whether the peer has
// already closed or sent unsolicited bytes on a supposedly idle
// connection, the same probe net/http's transport uses before handing
// an idle conn back out.
func isAlive(conn net.Conn) bool {
	type deadliner interface {
		SetReadDeadline(time.Time) error
	}
	dl, ok := conn.(deadliner)
	if !ok {
		return true
	}
	if err := dl.SetReadDeadline(time.Now()); err != nil {
		return true
	}
	defer dl.SetReadDeadline(time.Time{})

	one := make([]byte, 1)
	n, err := conn.Read(one)
	if n != 0 || err == nil {
		// Unsolicited data: treat as unusable, the caller will discard it.
		return false
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return true
	}
	return false
}

// Release returns c to the idle pool for reuse, subject to MaxIdlePerHost;
// beyond that cap, or if keepAlive is false, the connection is closed.
func (c *Conn) Release(keepAlive bool) {
	hs := c.pool.stateFor(c.key)
	defer hs.sem.Release(1)
	defer c.pool.global.Release(1)

	if !keepAlive {
		c.Conn.Close()
		return
	}

	c.pool.mu.Lock()
	defer c.pool.mu.Unlock()

	if hs.idle.Len() >= c.pool.limits.maxIdlePerHost() {
		c.Conn.Close()
		return
	}
	c.idleAt = time.Now()
	c.element = hs.idle.PushFront(c)
}

// Discard closes c and releases its permits without returning it to the
// idle pool. Call this when the connection is known broken.
func (c *Conn) Discard() {
	hs := c.pool.stateFor(c.key)
	c.Conn.Close()
	hs.sem.Release(1)
	c.pool.global.Release(1)
}

// Close closes every idle connection across every host and drops them
// from the idle lists. In-flight (leased) connections are unaffected;
// each closes itself normally when its lease is released or discarded.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, hs := range p.hosts {
		for e := hs.idle.Front(); e != nil; e = e.Next() {
			e.Value.(*Conn).Conn.Close()
		}
		hs.idle.Init()
	}
	return nil
}
