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

// Package httpcore assembles the engine's components — header map,
// immutable request/response, HTTP/1.1 codec, pooled transport, and the
// retry/redirect/cookie-jar/cache/proxy middleware set — into a single
// long-lived Client, built once and reused across every request a
// latency-sensitive application issues.
//
// The engine never delegates to net/http.Transport or an OS HTTP stack:
// every byte on the wire is written and parsed by internal/codec over a
// raw TCP or TLS socket.
//
// # Usage
//
// Create a client with default settings:
//
//	client, err := httpcore.New()
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	resp, err := client.Get(ctx, "https://api.example.com/resource")
//
// Customize configuration with functional options:
//
//	client, err := httpcore.New(
//	    httpcore.WithMaxConnsPerHost(12),
//	    httpcore.WithRetry(retry.Config{MaxRetries: 5, InitialDelay: 200 * time.Millisecond}),
//	    httpcore.WithProxy("http://proxy.internal:8080", "user", "pass"),
//	)
//
// # Retry and redirect behavior
//
// GET/HEAD/OPTIONS/PUT/DELETE requests are retried on a 5xx response or a
// retryable error kind (network, timeout, proxyConnectFailed), with
// exponential, jittered backoff bounded by Config.Retry. 3xx responses
// are followed per RFC 9110, rewriting method and body where the status
// requires it and scrubbing credentials across origin changes.
//
// # Cookies and caching
//
// Every Client carries its own embedded, bounded cookie jar (spec'd RFC
// 6265 domain/path/SameSite matching) and an optional response cache
// with conditional revalidation. Both are populated and consulted
// automatically; Client.Jar exposes the jar for inspection or
// pre-seeding.
package httpcore
