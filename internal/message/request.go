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

// Package message defines the engine's immutable Request and Response
// value types, the fixed Method enumeration, and the per-execution
// request context (timeline, state map, stopwatch) that flows through
// the interceptor pipeline.
package message

import (
	"fmt"
	"net/url"
	"time"

	"github.com/tombee/httpcore/internal/header"
)

// Known metadata keys recognized on a Request. Callers may set arbitrary
// additional keys; interceptors only interpret these.
const (
	// MetaFollowRedirects overrides the client's default follow behavior (bool).
	MetaFollowRedirects = "followRedirects"
	// MetaMaxRedirects caps redirects for this request only (int >= 0).
	MetaMaxRedirects = "maxRedirects"
	// MetaAllowHTTPSToHTTPDowngrade permits a scheme downgrade on redirect (bool).
	MetaAllowHTTPSToHTTPDowngrade = "allowHttpsToHttpDowngrade"
	// MetaEnforceRedirectTotalTimeout deducts elapsed time from each hop's budget (bool).
	MetaEnforceRedirectTotalTimeout = "enforceRedirectTotalTimeout"
	// MetaIsCrossSiteRequest influences cookie SameSite filtering (bool).
	MetaIsCrossSiteRequest = "isCrossSiteRequest"
)

// Request is an immutable record of a single HTTP request. Once
// constructed it is never mutated; interceptors that need a different
// request (redirect, retry-with-rewritten-headers) build a new one with
// Rewrite or New and replace their local reference wholesale.
type Request struct {
	method   Method
	uri      *url.URL
	headers  *header.Map
	body     []byte // nil means no body; never mutated once set
	timeout  time.Duration
	metadata map[string]any
}

// New constructs a Request. headers is defensively cloned; body is
// shared by reference and must never be mutated by the caller afterward.
func New(method Method, uri *url.URL, headers *header.Map, body []byte, timeout time.Duration) (*Request, error) {
	if uri == nil {
		return nil, fmt.Errorf("message: nil URI")
	}
	if uri.Scheme != "http" && uri.Scheme != "https" {
		return nil, fmt.Errorf("message: unsupported scheme %q", uri.Scheme)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("message: timeout must be positive")
	}
	if headers == nil {
		headers = header.New()
	}
	return &Request{
		method:   method,
		uri:      uri,
		headers:  headers.Clone(),
		body:     body,
		timeout:  timeout,
		metadata: make(map[string]any),
	}, nil
}

func (r *Request) Method() Method         { return r.method }
func (r *Request) URI() *url.URL          { return r.uri }
func (r *Request) Headers() *header.Map   { return r.headers }
func (r *Request) Body() []byte           { return r.body }
func (r *Request) Timeout() time.Duration { return r.timeout }
func (r *Request) HasBody() bool          { return r.body != nil }

// Metadata returns the value stored under key, and whether it was set.
func (r *Request) Metadata(key string) (any, bool) {
	v, ok := r.metadata[key]
	return v, ok
}

// MetadataBool returns the boolean metadata value for key, defaulting to
// def if unset or of the wrong type.
func (r *Request) MetadataBool(key string, def bool) bool {
	if v, ok := r.metadata[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// MetadataInt returns the integer metadata value for key, defaulting to
// def if unset or of the wrong type.
func (r *Request) MetadataInt(key string, def int) int {
	if v, ok := r.metadata[key]; ok {
		if i, ok := v.(int); ok {
			return i
		}
	}
	return def
}

// Rewrite returns a new Request derived from r with the given field
// overrides applied. r is never mutated. Metadata is copied to the new
// request.
type RewriteOptions struct {
	Method  *Method
	URI     *url.URL
	Headers *header.Map // replaces headers wholesale if non-nil
	Body    []byte      // replaces body; pass a zero-length non-nil slice to clear it explicitly
	ClearBody bool
	Timeout *time.Duration
}

func (r *Request) Rewrite(opts RewriteOptions) *Request {
	next := &Request{
		method:   r.method,
		uri:      r.uri,
		headers:  r.headers.Clone(),
		body:     r.body,
		timeout:  r.timeout,
		metadata: make(map[string]any, len(r.metadata)),
	}
	for k, v := range r.metadata {
		next.metadata[k] = v
	}
	if opts.Method != nil {
		next.method = *opts.Method
	}
	if opts.URI != nil {
		next.uri = opts.URI
	}
	if opts.Headers != nil {
		next.headers = opts.Headers.Clone()
	}
	if opts.ClearBody {
		next.body = nil
	} else if opts.Body != nil {
		next.body = opts.Body
	}
	if opts.Timeout != nil {
		next.timeout = *opts.Timeout
	}
	return next
}

// WithMetadata returns a copy of r with key set to value in its metadata
// map. r is not mutated.
func (r *Request) WithMetadata(key string, value any) *Request {
	next := r.Rewrite(RewriteOptions{})
	next.metadata[key] = value
	return next
}
