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

package httpmock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tombee/httpcore/internal/header"
	"github.com/tombee/httpcore/internal/message"
	"github.com/tombee/httpcore/internal/pipeline"
	"github.com/tombee/httpcore/internal/requestctx"
)

// QueuedResponse is one canned answer a Queue hands back in order.
type QueuedResponse struct {
	Status     int
	StatusText string
	Headers    *header.Map
	Body       []byte
	// Err, if set, is returned instead of a response (simulating a
	// transport-level failure such as a timeout or reset).
	Err error
	// Delay simulates network latency before the response is returned.
	// Honored as a context-cancellable sleep.
	Delay time.Duration
}

// Queue serves a fixed, ordered sequence of QueuedResponse values,
// looping back to the start once exhausted so long-running retry/redirect
// tests don't need to size the queue exactly.
type Queue struct {
	mu        sync.Mutex
	responses []QueuedResponse
	next      int
	Requests  []*message.Request // every request observed, in call order
}

// NewQueue constructs a Queue that serves responses in order.
func NewQueue(responses ...QueuedResponse) *Queue {
	return &Queue{responses: responses}
}

// Terminal adapts the Queue to a pipeline.Next, suitable as the innermost
// stage of an interceptor chain in place of internal/transport.
func (q *Queue) Terminal() pipeline.Next {
	return q.serve
}

func (q *Queue) serve(ctx context.Context, rc *requestctx.Context) (*message.Response, error) {
	q.mu.Lock()
	if len(q.responses) == 0 {
		q.mu.Unlock()
		return nil, fmt.Errorf("httpmock: queue is empty")
	}
	qr := q.responses[q.next%len(q.responses)]
	q.next++
	q.Requests = append(q.Requests, rc.Request())
	q.mu.Unlock()

	if qr.Delay > 0 {
		select {
		case <-time.After(qr.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if qr.Err != nil {
		return nil, qr.Err
	}

	h := qr.Headers
	if h == nil {
		h = header.New()
	}
	return &message.Response{
		Request:    rc.Request(),
		Status:     qr.Status,
		StatusText: qr.StatusText,
		Headers:    h.Clone(),
		Body:       qr.Body,
	}, nil
}

// Len reports how many responses remain in one cycle of the queue.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.responses)
}

// Calls reports how many requests the queue has served so far.
func (q *Queue) Calls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.Requests)
}
