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

// Package retry implements the idempotency-aware, bounded, jittered
// retry interceptor (spec §4.5): it wraps the remainder of the pipeline
// and re-invokes it on a retryable outcome for an idempotent method,
// sleeping an exponentially growing, jittered delay between attempts.
package retry

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/tombee/httpcore/internal/message"
	"github.com/tombee/httpcore/internal/pipeline"
	"github.com/tombee/httpcore/internal/requestctx"
	"github.com/tombee/httpcore/pkg/httperr"
)

// Config bounds the retry interceptor's behavior. The zero value is not
// useful; construct with DefaultConfig and override as needed.
type Config struct {
	// MaxRetries is the number of retry attempts after the first try
	// (so total transport invocations are at most MaxRetries+1).
	MaxRetries int
	// InitialDelay is the backoff for the first retry (attempt 0).
	InitialDelay time.Duration
	// MaxDelay caps the backoff before jitter is applied.
	MaxDelay time.Duration
	// JitterFraction scales the uniform jitter window around the
	// computed delay: delay * uniform(1-f, 1+f). Zero disables jitter.
	JitterFraction float64
}

// DefaultConfig matches spec §6's configuration surface defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       30 * time.Second,
		JitterFraction: 0.2,
	}
}

// Interceptor retries idempotent requests on a retryable error or 5xx
// response, per spec §4.5.
type Interceptor struct {
	cfg Config
	// rand is overridable by tests for deterministic jitter; defaults to
	// the package-level source.
	randFloat func() float64
	// sleep is overridable by tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New constructs a retry Interceptor from cfg.
func New(cfg Config) *Interceptor {
	return &Interceptor{
		cfg:       cfg,
		randFloat: rand.Float64,
		sleep:     sleepContext,
	}
}

// Intercept implements pipeline.Interceptor.
func (i *Interceptor) Intercept(ctx context.Context, rc *requestctx.Context, next pipeline.Next) (*message.Response, error) {
	req := rc.Request()
	idempotent := req.Method().IsIdempotent()

	var resp *message.Response
	var err error

	for attempt := 0; ; attempt++ {
		resp, err = next(ctx, rc)

		if !idempotent {
			return resp, err
		}

		retryable := shouldRetry(resp, err)
		if !retryable || attempt >= i.cfg.MaxRetries {
			return resp, err
		}

		delay := i.backoff(attempt)
		rc.RecordEvent("retryWait", map[string]string{
			"attempt": strconv.Itoa(attempt + 1),
			"delayMs": strconv.Itoa(int(delay / time.Millisecond)),
		})
		if sleepErr := i.sleep(ctx, delay); sleepErr != nil {
			if ctx.Err() == context.Canceled {
				return nil, httperr.Wrap(httperr.KindCancelled, "retry.Intercept", sleepErr)
			}
			return nil, httperr.Wrap(httperr.KindTimeout, "retry.Intercept", sleepErr)
		}
	}
}

// shouldRetry reports whether the outcome of one attempt warrants
// another: a transport error whose Kind is retryable, or a 5xx response.
func shouldRetry(resp *message.Response, err error) bool {
	if err != nil {
		var herr *httperr.Error
		if httperr.As(err, &herr) {
			return herr.Retryable()
		}
		return false
	}
	if resp != nil {
		return httperr.StatusRetryable(resp.Status)
	}
	return false
}

// backoff computes delay_k = min(maxDelay, initialDelay * 2^k) jittered
// by uniform(1-jitterFraction, 1+jitterFraction).
func (i *Interceptor) backoff(attempt int) time.Duration {
	base := float64(i.cfg.InitialDelay) * math.Pow(2, float64(attempt))
	if max := float64(i.cfg.MaxDelay); max > 0 && base > max {
		base = max
	}
	if i.cfg.JitterFraction <= 0 {
		return time.Duration(base)
	}
	lo := 1 - i.cfg.JitterFraction
	span := 2 * i.cfg.JitterFraction
	factor := lo + i.randFloat()*span
	return time.Duration(base * factor)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
