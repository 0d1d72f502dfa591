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

package codec

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tombee/httpcore/internal/header"
)

// DefaultMaxHeaderBytes bounds the status line plus header block read for
// a single response, guarding against a server that never terminates its
// headers. Matches spec §6's response.maxHeaderBlockBytes default.
const DefaultMaxHeaderBytes = 64 << 10 // 64 KiB

// DefaultMaxBodyBytes bounds a response body read into memory. Responses
// whose framed length (or cumulative chunked length) exceeds this return
// ErrBodyTooLarge. Matches spec §6's response.maxBodyBytes default.
const DefaultMaxBodyBytes = 100 << 20 // 100 MiB

// DefaultMaxLineBytes bounds any single status/header/chunk-size line,
// independent of the cumulative header-block budget, so one absurdly
// long header line can't consume the whole budget before the block limit
// even has a chance to fire.
const DefaultMaxLineBytes = 8 << 10 // 8 KiB

// ErrBodyTooLarge is returned by ReadResponse when the response body
// exceeds the configured maximum.
var ErrBodyTooLarge = fmt.Errorf("codec: response body exceeds configured maximum")

// ErrMalformedResponse is returned for a response that parses structurally
// but violates a wire-level invariant: conflicting Content-Length values,
// a Transfer-Encoding whose last coding isn't chunked, or an unbounded
// run of 1xx informational responses.
var ErrMalformedResponse = fmt.Errorf("codec: malformed response")

// Limits bounds the amount of data ReadResponse will buffer. The zero
// value selects DefaultMaxHeaderBytes, DefaultMaxBodyBytes and
// DefaultMaxLineBytes.
type Limits struct {
	MaxHeaderBytes int64
	MaxBodyBytes   int64
	MaxLineBytes   int64
}

func (l Limits) headerLimit() int64 {
	if l.MaxHeaderBytes > 0 {
		return l.MaxHeaderBytes
	}
	return DefaultMaxHeaderBytes
}

func (l Limits) bodyLimit() int64 {
	if l.MaxBodyBytes > 0 {
		return l.MaxBodyBytes
	}
	return DefaultMaxBodyBytes
}

func (l Limits) lineLimit() int64 {
	if l.MaxLineBytes > 0 {
		return l.MaxLineBytes
	}
	return DefaultMaxLineBytes
}

// maxInformationalResponses bounds the number of 1xx responses
// ReadResponse will skip before giving up on ever seeing a final
// response, guarding against a server that only ever sends interim
// responses.
const maxInformationalResponses = 10

// ParsedResponse is the wire-level result of reading one HTTP/1.1
// response: a status line, a header block, a fully drained body, and
// any trailers sent after a chunked body. Close reports whether the
// server requested the connection be closed after this response
// (explicit "Connection: close", or an HTTP/1.0 peer without
// keep-alive).
type ParsedResponse struct {
	Status     int
	StatusText string
	Proto      string
	Headers    *header.Map
	Body       []byte
	Trailers   *header.Map
	Close      bool
}

// ReadResponse reads a single HTTP/1.1 response from r, including its
// body, and returns the final non-1xx response. Per RFC 9110 section 15.2,
// any 1xx informational responses (such as 100 Continue) preceding the
// final response are consumed and discarded; headRequest suppresses
// body-framing rules that don't apply when the request method was HEAD.
func ReadResponse(r *bufio.Reader, headRequest bool, limits Limits) (*ParsedResponse, error) {
	for i := 0; ; i++ {
		if i >= maxInformationalResponses {
			return nil, fmt.Errorf("%w: too many 1xx informational responses", ErrMalformedResponse)
		}
		resp, err := readOneResponse(r, limits)
		if err != nil {
			return nil, err
		}
		if resp.Status < 100 || resp.Status >= 200 {
			if headRequest || resp.Status == 204 || resp.Status == 304 {
				resp.Body = nil
				return resp, nil
			}
			if err := readBody(r, resp, limits); err != nil {
				return nil, err
			}
			return resp, nil
		}
		// Informational response: no body, keep reading for the real one.
	}
}

func readOneResponse(r *bufio.Reader, limits Limits) (*ParsedResponse, error) {
	lr := &limitedLineReader{r: r, remaining: limits.headerLimit(), lineLimit: limits.lineLimit()}

	line, err := lr.readLine()
	if err != nil {
		return nil, fmt.Errorf("codec: reading status line: %w", err)
	}
	proto, status, text, err := parseStatusLine(line)
	if err != nil {
		return nil, err
	}

	headers := header.New()
	for {
		line, err := lr.readLine()
		if err != nil {
			return nil, fmt.Errorf("codec: reading headers: %w", err)
		}
		if line == "" {
			break
		}
		name, value, err := parseHeaderLine(line)
		if err != nil {
			return nil, err
		}
		headers.Add(name, value)
	}

	return &ParsedResponse{
		Status:     status,
		StatusText: text,
		Proto:      proto,
		Headers:    headers,
		Close:      connectionWantsClose(proto, headers),
	}, nil
}

func parseStatusLine(line string) (proto string, status int, text string, err error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return "", 0, "", fmt.Errorf("codec: malformed status line %q", line)
	}
	proto = parts[0]
	status, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, "", fmt.Errorf("codec: malformed status code in %q", line)
	}
	if len(parts) == 3 {
		text = parts[2]
	}
	return proto, status, text, nil
}

func parseHeaderLine(line string) (name, value string, err error) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return "", "", fmt.Errorf("codec: malformed header line %q", line)
	}
	name = strings.TrimSpace(line[:i])
	value = strings.TrimSpace(line[i+1:])
	if name == "" {
		return "", "", fmt.Errorf("codec: empty header name in %q", line)
	}
	return name, value, nil
}

// connectionWantsClose reports whether the response's Connection header
// (or HTTP/1.0 default) means the server will close after this response.
func connectionWantsClose(proto string, h *header.Map) bool {
	conn := strings.ToLower(h.Get("Connection"))
	if conn == "close" {
		return true
	}
	if conn == "keep-alive" {
		return false
	}
	return proto == "HTTP/1.0"
}

// readBody drains resp's body according to the framing rules of RFC 9112
// section 6.3: chunked transfer-coding takes priority over Content-Length;
// an explicit length frames exactly that many bytes; otherwise the body
// runs until the connection closes.
func readBody(r *bufio.Reader, resp *ParsedResponse, limits Limits) error {
	chunked, err := transferEncodingIsChunked(resp.Headers)
	if err != nil {
		return err
	}
	if chunked {
		body, trailers, err := readChunkedBody(r, limits)
		if err != nil {
			return err
		}
		resp.Body = body
		resp.Trailers = trailers
		return nil
	}

	if cl, ok, err := contentLength(resp.Headers); err != nil {
		return err
	} else if ok {
		if cl == 0 {
			resp.Body = nil
			return nil
		}
		if cl > limits.bodyLimit() {
			return ErrBodyTooLarge
		}
		buf := make([]byte, cl)
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("codec: reading fixed-length body: %w", err)
		}
		resp.Body = buf
		return nil
	}

	// No framing header: read until EOF (close-delimited body).
	buf, err := readUpTo(r, limits.bodyLimit())
	if err != nil && err != io.EOF {
		return fmt.Errorf("codec: reading close-delimited body: %w", err)
	}
	resp.Body = buf
	resp.Close = true
	return nil
}

// transferEncodingIsChunked reports whether the body is chunked-framed,
// per RFC 9112 §6.1: the last coding in Transfer-Encoding must literally
// be "chunked" for chunked framing to apply. "identity" is treated as
// equivalent to the header being absent. Any other trailing coding (this
// engine applies no content codings of its own) is a malformed response.
func transferEncodingIsChunked(h *header.Map) (bool, error) {
	values := h.GetAll("Transfer-Encoding")
	if len(values) == 0 {
		return false, nil
	}
	last := values[len(values)-1]
	tokens := strings.Split(last, ",")
	lastTok := strings.ToLower(strings.TrimSpace(tokens[len(tokens)-1]))
	switch lastTok {
	case "chunked":
		return true, nil
	case "identity":
		return false, nil
	default:
		return false, fmt.Errorf("%w: Transfer-Encoding's last coding is %q, not chunked", ErrMalformedResponse, lastTok)
	}
}

// contentLength parses Content-Length, rejecting a response that sends
// multiple conflicting values (RFC 9112 §6.3 requires they all agree, a
// response-smuggling guard).
func contentLength(h *header.Map) (int64, bool, error) {
	values := h.GetAll("Content-Length")
	if len(values) == 0 {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(values[0]), 10, 64)
	if err != nil || n < 0 {
		return 0, false, fmt.Errorf("%w: invalid Content-Length %q", ErrMalformedResponse, values[0])
	}
	for _, v := range values[1:] {
		if strings.TrimSpace(v) != strings.TrimSpace(values[0]) {
			return 0, false, fmt.Errorf("%w: conflicting Content-Length values", ErrMalformedResponse)
		}
	}
	return n, true, nil
}

// readChunkedBody decodes an RFC 9112 section 7.1 chunked body, returning
// the assembled payload and any trailer fields sent after the terminating
// zero-size chunk.
func readChunkedBody(r *bufio.Reader, limits Limits) ([]byte, *header.Map, error) {
	lr := &limitedLineReader{r: r, remaining: limits.headerLimit(), lineLimit: limits.lineLimit()}
	var out bytes.Buffer
	limit := limits.bodyLimit()

	for {
		line, err := lr.readLine()
		if err != nil {
			return nil, nil, fmt.Errorf("codec: reading chunk size: %w", err)
		}
		sizeStr := line
		if i := strings.IndexByte(line, ';'); i >= 0 {
			sizeStr = line[:i] // discard chunk extensions
		}
		size, err := strconv.ParseInt(strings.TrimSpace(sizeStr), 16, 64)
		if err != nil || size < 0 {
			return nil, nil, fmt.Errorf("%w: malformed chunk size %q", ErrMalformedResponse, line)
		}
		if size == 0 {
			break
		}
		if int64(out.Len())+size > limit {
			return nil, nil, ErrBodyTooLarge
		}
		if _, err := io.CopyN(&out, r, size); err != nil {
			return nil, nil, fmt.Errorf("codec: reading chunk data: %w", err)
		}
		// Each chunk is followed by a bare CRLF.
		if _, err := lr.readLine(); err != nil {
			return nil, nil, fmt.Errorf("codec: reading chunk terminator: %w", err)
		}
	}

	trailers := header.New()
	for {
		line, err := lr.readLine()
		if err != nil {
			return nil, nil, fmt.Errorf("codec: reading trailers: %w", err)
		}
		if line == "" {
			break
		}
		name, value, err := parseHeaderLine(line)
		if err != nil {
			return nil, nil, err
		}
		trailers.Add(name, value)
	}

	return out.Bytes(), trailers, nil
}

// readUpTo reads from r until EOF or limit bytes, whichever comes first,
// returning ErrBodyTooLarge if the stream has not ended by limit.
func readUpTo(r *bufio.Reader, limit int64) ([]byte, error) {
	var out bytes.Buffer
	lr := io.LimitReader(r, limit+1)
	n, err := io.Copy(&out, lr)
	if err != nil {
		return nil, err
	}
	if n > limit {
		return nil, ErrBodyTooLarge
	}
	return out.Bytes(), nil
}

// limitedLineReader reads CRLF- or LF-terminated lines from a
// bufio.Reader while enforcing both a per-line cap and a cumulative
// byte budget, so a peer that never sends a blank line (or sends one
// absurdly long line) cannot force unbounded buffering.
type limitedLineReader struct {
	r         *bufio.Reader
	remaining int64
	lineLimit int64
}

func (l *limitedLineReader) readLine() (string, error) {
	line, err := l.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	if l.lineLimit > 0 && int64(len(line)) > l.lineLimit {
		return "", fmt.Errorf("%w: single line exceeds configured maximum", ErrMalformedResponse)
	}
	l.remaining -= int64(len(line))
	if l.remaining < 0 {
		return "", fmt.Errorf("codec: header block exceeds configured maximum")
	}
	return strings.TrimRight(line, "\r\n"), nil
}
