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

package log

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/tombee/httpcore/internal/message"
	"github.com/tombee/httpcore/internal/pipeline"
	"github.com/tombee/httpcore/internal/requestctx"
)

// Interceptor logs every request/response pair passing through the
// pipeline with a sanitized URL, the per-call execution ID, and the
// eventual cache disposition, using CallRequest/CallResponse's field
// set (internal/log/middleware.go).
type Interceptor struct {
	Logger *slog.Logger
}

// NewInterceptor builds a logging Interceptor over logger.
func NewInterceptor(logger *slog.Logger) *Interceptor {
	return &Interceptor{Logger: logger}
}

// Intercept implements pipeline.Interceptor.
func (ic *Interceptor) Intercept(ctx context.Context, rc *requestctx.Context, next pipeline.Next) (*message.Response, error) {
	req := rc.Request()
	start := time.Now()
	host := req.URI().Hostname()
	logger := WithExecutionContext(ic.Logger, string(rc.ID()), host)

	LogCallRequest(logger, &CallRequest{
		Method:      string(req.Method()),
		Host:        host,
		ExecutionID: string(rc.ID()),
		Metadata:    map[string]interface{}{"url": pipeline.SanitizeURL(req.URI())},
	})

	resp, err := next(ctx, rc)

	attempt := attemptCount(rc)
	if attempt > 0 {
		logger = WithAttempt(logger, attempt)
	}

	callResp := &CallResponse{
		DurationMs: time.Since(start).Milliseconds(),
		Err:        err,
	}
	if resp != nil {
		callResp.Status = resp.Status
		if resp.Headers != nil {
			callResp.Cache = resp.Headers.Get("X-Cache")
		}
	}
	LogCallResponse(logger, &CallRequest{
		Method:      string(req.Method()),
		Host:        host,
		ExecutionID: string(rc.ID()),
		Attempt:     attempt,
	}, callResp)

	return resp, err
}

// attemptCount derives the final attempt number (1-based) from the
// number of retryWait events internal/retry recorded on rc's timeline;
// zero means the call never retried and no Attempt field is logged.
func attemptCount(rc *requestctx.Context) int {
	n := 0
	for _, ev := range rc.Timeline() {
		if strings.HasPrefix(ev.Name, "retryWait") {
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return n + 1
}
