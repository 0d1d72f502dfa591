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

package cache

import (
	"context"
	"time"

	"github.com/tombee/httpcore/internal/message"
	"github.com/tombee/httpcore/internal/pipeline"
	"github.com/tombee/httpcore/internal/requestctx"
)

// Policy controls what the cache interceptor is allowed to store.
type Policy struct {
	AllowSetCookieResponses bool
	AllowAuthorizedResponses bool
	HeuristicMaxAge         time.Duration
	// ServeStaleOnError, if true, serves a stale entry stamped X-Cache:
	// STALE when the inner call fails with a network error. Spec §9's
	// default is false: propagate the error instead.
	ServeStaleOnError bool
}

// DefaultPolicy matches spec §6's configuration surface defaults.
func DefaultPolicy() Policy {
	return Policy{
		AllowSetCookieResponses:  false,
		AllowAuthorizedResponses: false,
		HeuristicMaxAge:          24 * time.Hour,
		ServeStaleOnError:        false,
	}
}

// cacheableMethods is the set of methods considered for caching by
// default (safe methods only).
var cacheableMethods = map[message.Method]bool{
	message.MethodGet:  true,
	message.MethodHead: true,
}

// Interceptor implements conditional-revalidation response caching per
// spec §4.8.
type Interceptor struct {
	Storage Storage
	Policy  Policy
}

// New constructs a cache Interceptor over storage with policy.
func New(storage Storage, policy Policy) *Interceptor {
	return &Interceptor{Storage: storage, Policy: policy}
}

const (
	headerXCache = "X-Cache"
	cacheHit          = "HIT"
	cacheMiss         = "MISS"
	cacheRevalidated  = "REVALIDATED"
	cacheStale        = "STALE"
)

// Intercept implements pipeline.Interceptor.
func (ic *Interceptor) Intercept(ctx context.Context, rc *requestctx.Context, next pipeline.Next) (*message.Response, error) {
	req := rc.Request()
	if !cacheableMethods[req.Method()] {
		return next(ctx, rc)
	}
	if !ic.Policy.AllowAuthorizedResponses && req.Headers().Has("Authorization") {
		return next(ctx, rc)
	}

	canonicalURI := req.URI().Scheme + "://" + req.URI().Host + req.URI().RequestURI()
	probeKey := Key(string(req.Method()), canonicalURI, "")

	entry, found := ic.Storage.Get(probeKey)
	if found && entry.VaryKey != "" {
		// The stored entry was scoped by Vary; recompute the real key
		// using the request's own header values and look it up again.
		key := Key(string(req.Method()), canonicalURI, VaryKey(entry.VaryKey, req.Headers()))
		entry, found = ic.Storage.Get(key)
		probeKey = key
	}

	now := time.Now()
	if found && entry.IsFresh(now) {
		rc.RecordEvent("cacheHit", nil)
		return stampedResponse(req, entry, cacheHit), nil
	}

	if found {
		req = attachValidators(req, entry)
		rc.SetRequest(req)
	}

	resp, err := next(ctx, rc)
	if err != nil {
		if found && ic.Policy.ServeStaleOnError {
			rc.RecordEvent("cacheStale", nil)
			return stampedResponse(req, entry, cacheStale), nil
		}
		return resp, err
	}

	if found && resp.Status == 304 {
		merged := mergeRevalidated(entry, resp, ic.Policy.HeuristicMaxAge)
		ic.Storage.Put(probeKey, merged)
		rc.RecordEvent("cacheRevalidated", nil)
		return stampedResponse(req, merged, cacheRevalidated), nil
	}

	if resp.Status >= 200 && resp.Status < 300 {
		ic.maybeStore(req, resp, canonicalURI, now)
	}
	resp.Headers.Set(headerXCache, cacheMiss)
	return resp, nil
}

func (ic *Interceptor) maybeStore(req *message.Request, resp *message.Response, canonicalURI string, now time.Time) {
	if !ic.Policy.AllowSetCookieResponses && resp.Headers.Has("Set-Cookie") {
		return
	}
	if !ic.Policy.AllowAuthorizedResponses && req.Headers().Has("Authorization") {
		return
	}

	fresh := ComputeFreshness(resp.Headers, now, ic.Policy.HeuristicMaxAge)
	if !fresh.Store {
		return
	}

	varyHeaderValue := resp.Headers.Get("Vary")
	varyKey := VaryKey(varyHeaderValue, req.Headers())
	key := Key(string(req.Method()), canonicalURI, varyKey)

	entry := &Entry{
		RequestKey:           key,
		ResponseStatus:       resp.Status,
		ResponseHeaders:      resp.Headers.Clone(),
		ResponseBody:         resp.Body,
		ReceivedAt:           now,
		Expires:              fresh.Expires,
		HasExpiry:            fresh.HasExpiry,
		MustRevalidateAlways: fresh.MustRevalidateAlways,
		ETag:                 resp.Headers.Get("ETag"),
		LastModified:         resp.Headers.Get("Last-Modified"),
		VaryKey:              varyHeaderValue,
	}
	ic.Storage.Put(key, entry)
	if varyHeaderValue != "" {
		// Also store a vary-less probe entry recording the Vary header
		// itself, so a later differently-varied request can discover
		// which headers to key on before it knows the real key.
		probe := Key(string(req.Method()), canonicalURI, "")
		if probe != key {
			ic.Storage.Put(probe, &Entry{VaryKey: varyHeaderValue})
		}
	}
}

// attachValidators rewrites req with If-None-Match/If-Modified-Since
// from entry, for a revalidation round-trip.
func attachValidators(req *message.Request, entry *Entry) *message.Request {
	if entry.ETag == "" && entry.LastModified == "" {
		return req
	}
	h := req.Headers().Clone()
	if entry.ETag != "" {
		h.Set("If-None-Match", entry.ETag)
	}
	if entry.LastModified != "" {
		h.Set("If-Modified-Since", entry.LastModified)
	}
	return req.Rewrite(message.RewriteOptions{Headers: h})
}

// mergeRevalidated combines the stored body with the fresh headers from
// a 304 response, per spec §4.8.
func mergeRevalidated(entry *Entry, resp *message.Response, heuristicMaxAge time.Duration) *Entry {
	merged := *entry
	merged.ReceivedAt = time.Now()
	merged.ResponseHeaders = entry.ResponseHeaders.Clone()
	for _, name := range resp.Headers.Names() {
		merged.ResponseHeaders.Set(name, resp.Headers.Get(name))
	}
	fresh := ComputeFreshness(merged.ResponseHeaders, merged.ReceivedAt, heuristicMaxAge)
	merged.HasExpiry = fresh.HasExpiry
	merged.Expires = fresh.Expires
	merged.MustRevalidateAlways = fresh.MustRevalidateAlways
	if etag := resp.Headers.Get("ETag"); etag != "" {
		merged.ETag = etag
	}
	return &merged
}

func stampedResponse(req *message.Request, entry *Entry, disposition string) *message.Response {
	h := entry.ResponseHeaders.Clone()
	h.Set(headerXCache, disposition)
	return &message.Response{
		Request:    req,
		Status:     entry.ResponseStatus,
		Headers:    h,
		Body:       entry.ResponseBody,
		StatusText: "",
	}
}
