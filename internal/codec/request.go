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

// Package codec serializes Requests onto the wire and parses Responses
// off of it, speaking HTTP/1.1 directly over a bufio-wrapped net.Conn.
// It never touches net/http's own client machinery.
package codec

import (
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/tombee/httpcore/internal/message"
)

// WriteRequest serializes req as an HTTP/1.1 request onto w. useProxy
// selects the request-target form: origin-form ("/path?query") for a
// direct connection, absolute-form ("http://host/path?query") when
// writing through a forward proxy tunnel, per RFC 9112 section 3.2.
func WriteRequest(w io.Writer, req *message.Request, useProxy bool) error {
	uri := req.URI()
	headers := req.Headers()
	if err := headers.Validate(); err != nil {
		return err
	}

	target := uri.RequestURI()
	if useProxy && uri.Scheme == "http" {
		target = uri.String()
	}

	var b strings.Builder
	b.Grow(256 + len(req.Body()))

	b.WriteString(string(req.Method()))
	b.WriteByte(' ')
	b.WriteString(target)
	b.WriteString(" HTTP/1.1\r\n")

	if !headers.Has("Host") {
		b.WriteString("Host: ")
		b.WriteString(hostHeaderValue(uri))
		b.WriteString("\r\n")
	}

	body := req.Body()
	if body != nil && !headers.Has("Content-Length") && !headers.Has("Transfer-Encoding") {
		b.WriteString("Content-Length: ")
		b.WriteString(strconv.Itoa(len(body)))
		b.WriteString("\r\n")
	}

	if !headers.Has("Connection") {
		b.WriteString("Connection: keep-alive\r\n")
	}

	headers.WriteTo(&b)
	b.WriteString("\r\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return err
		}
	}
	return nil
}

// hostHeaderValue renders the Host header value for uri, including the
// port only when the URL specified one explicitly.
func hostHeaderValue(uri *url.URL) string {
	host := uri.Hostname()
	port := uri.Port()
	if port == "" {
		return host
	}
	return host + ":" + port
}
