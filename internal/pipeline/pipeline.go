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

// Package pipeline builds the interceptor chain a request passes
// through before reaching internal/transport: each Interceptor may
// inspect or rewrite the current request, call the next stage, and
// inspect or rewrite the resulting response before returning it.
package pipeline

import (
	"context"

	"github.com/tombee/httpcore/internal/message"
	"github.com/tombee/httpcore/internal/requestctx"
)

// Next is the continuation an Interceptor calls to hand control to the
// next stage of the chain, terminating in internal/transport.
type Next func(ctx context.Context, rc *requestctx.Context) (*message.Response, error)

// Interceptor wraps Next with additional behavior. Implementations must
// call next exactly once in the common path; skipping it (e.g. to serve
// a cached response) is allowed but must still return a valid Response.
type Interceptor interface {
	Intercept(ctx context.Context, rc *requestctx.Context, next Next) (*message.Response, error)
}

// InterceptorFunc adapts a plain function to the Interceptor interface.
type InterceptorFunc func(ctx context.Context, rc *requestctx.Context, next Next) (*message.Response, error)

// Intercept implements Interceptor.
func (f InterceptorFunc) Intercept(ctx context.Context, rc *requestctx.Context, next Next) (*message.Response, error) {
	return f(ctx, rc, next)
}

// Build composes interceptors (outermost first) around terminal into a
// single Next, so calling the result runs interceptors[0], then
// interceptors[1], ..., then terminal.
func Build(terminal Next, interceptors ...Interceptor) Next {
	next := terminal
	for i := len(interceptors) - 1; i >= 0; i-- {
		ic := interceptors[i]
		prevNext := next
		next = func(ctx context.Context, rc *requestctx.Context) (*message.Response, error) {
			return ic.Intercept(ctx, rc, prevNext)
		}
	}
	return next
}
