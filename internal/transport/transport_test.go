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

package transport

import (
	"bufio"
	"context"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/httpcore/internal/codec"
	"github.com/tombee/httpcore/internal/message"
	"github.com/tombee/httpcore/internal/pool"
	"github.com/tombee/httpcore/internal/requestctx"
)

// fixedReplyServer accepts connections on ln and writes one canned
// HTTP/1.1 response per request line it reads, as many times as
// replies has entries (one per accepted connection, reused across
// requests on a keep-alive connection).
func fixedReplyServer(t *testing.T, ln net.Listener, replies []string) {
	t.Helper()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				br := bufio.NewReader(conn)
				for i := 0; ; i++ {
					for {
						line, err := br.ReadString('\n')
						if err != nil {
							return
						}
						if line == "\r\n" {
							break
						}
					}
					if _, err := conn.Write([]byte(replies[i%len(replies)])); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
}

func dialerFor(ln net.Listener) pool.Dialer {
	return dialerFunc(func(ctx context.Context, key pool.Key) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", ln.Addr().String())
	})
}

type dialerFunc func(ctx context.Context, key pool.Key) (net.Conn, error)

func (f dialerFunc) Dial(ctx context.Context, key pool.Key) (net.Conn, error) { return f(ctx, key) }

func newTestTransport(t *testing.T, ln net.Listener) *Transport {
	t.Helper()
	p := pool.New(dialerFor(ln), pool.Limits{})
	return New(p, codec.Limits{})
}

func requestContext(t *testing.T, rawURL string) *requestctx.Context {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	req, err := message.New(message.MethodGet, u, nil, nil, 2*time.Second)
	require.NoError(t, err)
	return requestctx.New(req)
}

func TestSendParsesFixedLengthResponse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	fixedReplyServer(t, ln, []string{
		"HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok",
	})

	tr := newTestTransport(t, ln)
	rc := requestContext(t, "http://example.test/resource")

	resp, err := tr.Send(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, []byte("ok"), resp.Body)
}

func TestSendReusesConnectionOnKeepAlive(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	fixedReplyServer(t, ln, []string{
		"HTTP/1.1 200 OK\r\nContent-Length: 1\r\n\r\na",
	})

	p := pool.New(dialerFor(ln), pool.Limits{})
	tr := New(p, codec.Limits{})

	rc1 := requestContext(t, "http://example.test/resource")
	_, err = tr.Send(context.Background(), rc1)
	require.NoError(t, err)

	rc2 := requestContext(t, "http://example.test/resource")
	_, err = tr.Send(context.Background(), rc2)
	require.NoError(t, err)

	var reused string
	for _, ev := range rc2.Timeline() {
		if ev.Name == "gotConn" {
			reused = ev.Attributes["reused"]
		}
	}
	assert.Equal(t, "true", reused)
}

func TestSendRecordsTimelineEvents(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	fixedReplyServer(t, ln, []string{
		"HTTP/1.1 204 No Content\r\n\r\n",
	})

	tr := newTestTransport(t, ln)
	rc := requestContext(t, "http://example.test/resource")

	_, err = tr.Send(context.Background(), rc)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, ev := range rc.Timeline() {
		names[ev.Name] = true
	}
	assert.True(t, names["gotConn"])
	assert.True(t, names["response"])
}

func TestSendRejectsURIWithoutHost(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	tr := newTestTransport(t, ln)
	u := &url.URL{Scheme: "http", Path: "/resource"}
	req, err := message.New(message.MethodGet, u, nil, nil, time.Second)
	require.NoError(t, err)
	rc := requestctx.New(req)

	_, err = tr.Send(context.Background(), rc)
	assert.Error(t, err)
}
