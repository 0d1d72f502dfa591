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
	"log/slog"
	"time"
)

// CallRequest carries the fields logged when a request enters the
// pipeline.
type CallRequest struct {
	// Method is the HTTP method.
	Method string

	// Host is the request's target host.
	Host string

	// ExecutionID is the correlation ID for this Do() call.
	ExecutionID string

	// Attempt is the retry/redirect attempt number, starting at 1.
	Attempt int

	// Metadata contains additional request metadata.
	Metadata map[string]interface{}
}

// CallResponse carries the fields logged when a request leaves the
// pipeline.
type CallResponse struct {
	// Status is the response status code; zero if Err is set.
	Status int

	// Err is the transport-level error, if any.
	Err error

	// DurationMs is the duration of the call in milliseconds.
	DurationMs int64

	// Cache is the cache disposition ("hit", "miss", "revalidated"), or
	// empty if no cache interceptor was involved.
	Cache string

	// Metadata contains additional response metadata.
	Metadata map[string]interface{}
}

// LogCallRequest logs an outgoing request.
func LogCallRequest(logger *slog.Logger, req *CallRequest) {
	attrs := []any{
		"event", "request",
		MethodKey, req.Method,
		HostKey, req.Host,
	}

	if req.ExecutionID != "" {
		attrs = append(attrs, ExecutionIDKey, req.ExecutionID)
	}

	if req.Attempt > 0 {
		attrs = append(attrs, AttemptKey, req.Attempt)
	}

	for k, v := range req.Metadata {
		attrs = append(attrs, k, v)
	}

	logger.Debug("sending request", attrs...)
}

// LogCallResponse logs the response or error for a request previously
// logged with LogCallRequest.
func LogCallResponse(logger *slog.Logger, req *CallRequest, resp *CallResponse) {
	attrs := []any{
		"event", "response",
		MethodKey, req.Method,
		HostKey, req.Host,
		DurationKey, resp.DurationMs,
	}

	if req.ExecutionID != "" {
		attrs = append(attrs, ExecutionIDKey, req.ExecutionID)
	}

	if resp.Status != 0 {
		attrs = append(attrs, StatusKey, resp.Status)
	}

	if resp.Cache != "" {
		attrs = append(attrs, CacheKey, resp.Cache)
	}

	if resp.Err != nil {
		attrs = append(attrs, "error", resp.Err.Error())
	}

	for k, v := range resp.Metadata {
		attrs = append(attrs, k, v)
	}

	level := slog.LevelDebug
	message := "request completed"

	switch {
	case resp.Err != nil:
		level = slog.LevelWarn
		message = "request failed"
	case resp.Status >= 400:
		level = slog.LevelWarn
	}

	logger.Log(nil, level, message, attrs...)
}

// CallMiddleware wraps a request-sending function with request/response
// logging.
type CallMiddleware struct {
	logger *slog.Logger
}

// NewCallMiddleware creates a new call logging middleware.
func NewCallMiddleware(logger *slog.Logger) *CallMiddleware {
	return &CallMiddleware{
		logger: logger,
	}
}

// Wrap logs req, runs send, and logs the resulting status (or error)
// with elapsed duration.
func (m *CallMiddleware) Wrap(req *CallRequest, send func() (status int, err error)) (int, error) {
	start := time.Now()

	LogCallRequest(m.logger, req)

	status, err := send()

	resp := &CallResponse{
		Status:     status,
		Err:        err,
		DurationMs: time.Since(start).Milliseconds(),
	}

	LogCallResponse(m.logger, req, resp)

	return status, err
}
