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

// Package requestctx carries per-execution state through the interceptor
// pipeline: the current (possibly rewritten) request, a growing timeline
// of named events, an opaque state map interceptors use to pass data to
// each other, and a stopwatch for elapsed-time reporting.
package requestctx

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/httpcore/internal/message"
)

// ID uniquely identifies one execution of the pipeline (one call to
// Client.Do, including every redirect hop and retry attempt within it).
type ID string

// NewID generates a fresh execution ID.
func NewID() ID {
	return ID(uuid.NewString())
}

// Event is a single named point on the execution timeline.
type Event struct {
	Name       string
	Elapsed    time.Duration
	Attributes map[string]string
}

// Context is the mutable, thread-safe execution context threaded through
// every interceptor and the transport for a single top-level Do call.
// All mutating operations are serialized by mu.
type Context struct {
	id    ID
	start time.Time

	mu       sync.Mutex
	request  *message.Request
	timeline []Event
	state    map[string]any
}

// New creates a Context wrapping the initial request, with the stopwatch
// started immediately.
func New(req *message.Request) *Context {
	return &Context{
		id:      NewID(),
		start:   time.Now(),
		request: req,
		state:   make(map[string]any),
	}
}

// ID returns the execution's unique identifier.
func (c *Context) ID() ID { return c.id }

// Request returns the current request reference. Interceptors that
// rewrite the request (redirect, retry) call SetRequest to publish the
// new reference for later interceptors and for the timeline.
func (c *Context) Request() *message.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.request
}

// SetRequest atomically replaces the current request reference.
func (c *Context) SetRequest(req *message.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.request = req
}

// Elapsed returns the time elapsed since the context's stopwatch started,
// in milliseconds.
func (c *Context) Elapsed() time.Duration {
	return time.Since(c.start)
}

// RecordEvent appends a timeline event with the given name and
// attributes, stamped with the elapsed time since the stopwatch started.
func (c *Context) RecordEvent(name string, attrs map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeline = append(c.timeline, Event{
		Name:       name,
		Elapsed:    time.Since(c.start),
		Attributes: attrs,
	})
}

// Timeline returns a copy of the recorded events in insertion order.
func (c *Context) Timeline() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.timeline))
	copy(out, c.timeline)
	return out
}

// SetState stores an opaque value under key for later interceptors to
// retrieve with GetState.
func (c *Context) SetState(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state[key] = value
}

// GetState retrieves the value stored under key, if any.
func (c *Context) GetState(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.state[key]
	return v, ok
}
