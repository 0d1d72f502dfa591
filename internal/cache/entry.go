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

// Package cache implements the response-cache interceptor and its
// storage collaborator (spec §4.8): conditional revalidation keyed by
// ETag/Last-Modified, freshness from Cache-Control/Expires with a
// heuristic fallback, and the X-Cache disposition header.
package cache

import (
	"strconv"
	"strings"
	"time"

	"github.com/tombee/httpcore/internal/header"
)

// Entry is a stored response, keyed by Key().
type Entry struct {
	RequestKey      string
	ResponseStatus  int
	ResponseHeaders *header.Map
	ResponseBody    []byte
	ReceivedAt           time.Time
	Expires              time.Time
	HasExpiry            bool
	MustRevalidateAlways bool
	ETag                 string
	LastModified         string
	VaryKey              string
}

// Storage is the pluggable collaborator spec §6 describes: get/put/
// invalidate by key. The in-memory implementation is the only one
// shipped in core.
type Storage interface {
	Get(key string) (*Entry, bool)
	Put(key string, entry *Entry)
	Invalidate(key string)
}

// Key builds the cache key for a request: method + canonical URI +
// vary-key.
func Key(method, canonicalURI, varyKey string) string {
	return method + " " + canonicalURI + "|" + varyKey
}

// VaryKey computes the vary-key for a request given the Vary header
// value from a prior response: the concatenation of the request's
// header values for each named header, canonicalized (lowercased name,
// trimmed value).
func VaryKey(varyHeaderValue string, reqHeaders *header.Map) string {
	if varyHeaderValue == "" {
		return ""
	}
	names := strings.Split(varyHeaderValue, ",")
	var b strings.Builder
	for i, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(n)
		b.WriteByte('=')
		b.WriteString(strings.TrimSpace(reqHeaders.Get(n)))
	}
	return b.String()
}

// cacheControl holds the parsed directives this interceptor cares about.
type cacheControl struct {
	noStore bool
	noCache bool
	private bool
	public  bool
	maxAge  *int
	sMaxAge *int
}

func parseCacheControl(v string) cacheControl {
	var cc cacheControl
	for _, tok := range strings.Split(v, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		name := tok
		val := ""
		if i := strings.IndexByte(tok, '='); i >= 0 {
			name = strings.TrimSpace(tok[:i])
			val = strings.Trim(strings.TrimSpace(tok[i+1:]), `"`)
		}
		switch strings.ToLower(name) {
		case "no-store":
			cc.noStore = true
		case "no-cache":
			cc.noCache = true
		case "private":
			cc.private = true
		case "public":
			cc.public = true
		case "max-age":
			if n, err := strconv.Atoi(val); err == nil {
				cc.maxAge = &n
			}
		case "s-maxage":
			if n, err := strconv.Atoi(val); err == nil {
				cc.sMaxAge = &n
			}
		}
	}
	return cc
}

// Freshness bundles what the interceptor needs to decide whether to
// store a response and, once stored, whether it is still fresh.
type Freshness struct {
	Store     bool
	MustRevalidateAlways bool
	Expires   time.Time
	HasExpiry bool
}

// HeuristicMaxAge bounds freshness computed from Last-Modified alone,
// when neither Cache-Control max-age nor Expires is present.
const defaultHeuristicMaxAge = 24 * time.Hour

// ComputeFreshness applies spec §4.8's freshness rules to a response's
// headers, received at receivedAt. heuristicMaxAge bounds the
// Last-Modified-derived fallback (defaults to 24h if zero).
func ComputeFreshness(h *header.Map, receivedAt time.Time, heuristicMaxAge time.Duration) Freshness {
	if heuristicMaxAge <= 0 {
		heuristicMaxAge = defaultHeuristicMaxAge
	}
	cc := parseCacheControl(h.Get("Cache-Control"))
	if cc.noStore {
		return Freshness{Store: false}
	}
	f := Freshness{Store: true, MustRevalidateAlways: cc.noCache}
	if cc.noCache {
		return f
	}

	if cc.sMaxAge != nil {
		f.Expires = receivedAt.Add(time.Duration(*cc.sMaxAge) * time.Second)
		f.HasExpiry = true
		return f
	}
	if cc.maxAge != nil {
		f.Expires = receivedAt.Add(time.Duration(*cc.maxAge) * time.Second)
		f.HasExpiry = true
		return f
	}
	if expiresHeader := h.Get("Expires"); expiresHeader != "" {
		if t, err := time.Parse(time.RFC1123, expiresHeader); err == nil {
			f.Expires = t.UTC()
			f.HasExpiry = true
			return f
		}
	}
	if lm := h.Get("Last-Modified"); lm != "" {
		if t, err := time.Parse(time.RFC1123, lm); err == nil {
			age := receivedAt.Sub(t.UTC())
			if age > 0 {
				heuristic := time.Duration(float64(age) * 0.1)
				if heuristic > heuristicMaxAge {
					heuristic = heuristicMaxAge
				}
				f.Expires = receivedAt.Add(heuristic)
				f.HasExpiry = true
			}
		}
	}
	return f
}

// IsFresh reports whether entry is still within its freshness window at
// now. An entry with MustRevalidateAlways (no-cache) is never fresh.
func (e *Entry) IsFresh(now time.Time) bool {
	if e.MustRevalidateAlways {
		return false
	}
	if !e.HasExpiry {
		return false
	}
	return now.Before(e.Expires)
}
