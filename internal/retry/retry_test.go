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

package retry

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/tombee/httpcore/internal/message"
	"github.com/tombee/httpcore/internal/pipeline"
	"github.com/tombee/httpcore/internal/requestctx"
	"github.com/tombee/httpcore/pkg/httperr"
)

func newReq(t *testing.T, method message.Method) *requestctx.Context {
	t.Helper()
	u, err := url.Parse("https://example.test/resource")
	if err != nil {
		t.Fatal(err)
	}
	req, err := message.New(method, u, nil, nil, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	return requestctx.New(req)
}

func noSleep() *Interceptor {
	i := New(Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, JitterFraction: 0})
	i.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return i
}

func TestInterceptor_SucceedsWithoutRetry(t *testing.T) {
	rc := newReq(t, message.MethodGet)
	i := noSleep()
	calls := 0
	next := func(ctx context.Context, rc *requestctx.Context) (*message.Response, error) {
		calls++
		return &message.Response{Status: 200}, nil
	}
	resp, err := i.Intercept(context.Background(), rc, next)
	if err != nil || resp.Status != 200 {
		t.Fatalf("unexpected result: %+v %v", resp, err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestInterceptor_RetriesOn5xxThenSucceeds(t *testing.T) {
	rc := newReq(t, message.MethodGet)
	i := noSleep()
	calls := 0
	next := func(ctx context.Context, rc *requestctx.Context) (*message.Response, error) {
		calls++
		if calls < 3 {
			return &message.Response{Status: 503}, nil
		}
		return &message.Response{Status: 200}, nil
	}
	resp, err := i.Intercept(context.Background(), rc, next)
	if err != nil || resp.Status != 200 {
		t.Fatalf("unexpected result: %+v %v", resp, err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestInterceptor_ExhaustionReturnsLastResponse(t *testing.T) {
	rc := newReq(t, message.MethodGet)
	i := noSleep()
	calls := 0
	next := func(ctx context.Context, rc *requestctx.Context) (*message.Response, error) {
		calls++
		return &message.Response{Status: 503}, nil
	}
	resp, err := i.Intercept(context.Background(), rc, next)
	if err != nil || resp.Status != 503 {
		t.Fatalf("unexpected result: %+v %v", resp, err)
	}
	if calls != 4 { // initial + 3 retries
		t.Fatalf("expected 4 calls, got %d", calls)
	}
}

func TestInterceptor_NonIdempotentNeverRetries(t *testing.T) {
	rc := newReq(t, message.MethodPost)
	i := noSleep()
	calls := 0
	next := func(ctx context.Context, rc *requestctx.Context) (*message.Response, error) {
		calls++
		return &message.Response{Status: 503}, nil
	}
	resp, _ := i.Intercept(context.Background(), rc, next)
	if resp.Status != 503 {
		t.Fatalf("unexpected status %d", resp.Status)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call for a non-idempotent method, got %d", calls)
	}
}

func TestInterceptor_RetryableErrorExhaustionPropagatesError(t *testing.T) {
	rc := newReq(t, message.MethodGet)
	i := noSleep()
	calls := 0
	next := func(ctx context.Context, rc *requestctx.Context) (*message.Response, error) {
		calls++
		return nil, httperr.New(httperr.KindNetwork, "test", "boom")
	}
	_, err := i.Intercept(context.Background(), rc, next)
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}
}

func TestInterceptor_NonRetryableErrorStopsImmediately(t *testing.T) {
	rc := newReq(t, message.MethodGet)
	i := noSleep()
	calls := 0
	next := func(ctx context.Context, rc *requestctx.Context) (*message.Response, error) {
		calls++
		return nil, httperr.New(httperr.KindInvalidRequest, "test", "bad")
	}
	_, err := i.Intercept(context.Background(), rc, next)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestInterceptor_BackoffMonotonicBeforeJitter(t *testing.T) {
	i := New(Config{MaxRetries: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, JitterFraction: 0})
	var prev time.Duration
	for attempt := 0; attempt < 5; attempt++ {
		d := i.backoff(attempt)
		if d < prev {
			t.Fatalf("backoff not monotonic at attempt %d: %v < %v", attempt, d, prev)
		}
		prev = d
	}
}

var _ pipeline.Interceptor = (*Interceptor)(nil)
