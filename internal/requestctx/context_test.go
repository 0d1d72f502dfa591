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

package requestctx

import (
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/tombee/httpcore/internal/message"
)

func newTestRequest(t *testing.T) *message.Request {
	t.Helper()
	u, err := url.Parse("https://example.test/resource")
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	req, err := message.New(message.MethodGet, u, nil, nil, 5*time.Second)
	if err != nil {
		t.Fatalf("message.New: %v", err)
	}
	return req
}

func TestNewAssignsUniqueIDs(t *testing.T) {
	c1 := New(newTestRequest(t))
	c2 := New(newTestRequest(t))

	if c1.ID() == c2.ID() {
		t.Fatal("expected distinct execution IDs")
	}
}

func TestRecordEventAccumulatesInOrder(t *testing.T) {
	c := New(newTestRequest(t))

	c.RecordEvent("dnsStart", nil)
	c.RecordEvent("dnsEnd", nil)
	c.RecordEvent("tcpConnectStart", nil)

	timeline := c.Timeline()
	if len(timeline) != 3 {
		t.Fatalf("Timeline() len = %d, want 3", len(timeline))
	}
	want := []string{"dnsStart", "dnsEnd", "tcpConnectStart"}
	for i, name := range want {
		if timeline[i].Name != name {
			t.Errorf("Timeline()[%d].Name = %q, want %q", i, timeline[i].Name, name)
		}
	}
}

func TestSetRequestReplacesReference(t *testing.T) {
	c := New(newTestRequest(t))
	original := c.Request()

	rewritten := newTestRequest(t)
	c.SetRequest(rewritten)

	if c.Request() == original {
		t.Fatal("expected Request() to return the rewritten reference")
	}
	if c.Request() != rewritten {
		t.Fatal("expected Request() to return exactly the rewritten request")
	}
}

func TestStateRoundTrip(t *testing.T) {
	c := New(newTestRequest(t))

	if _, ok := c.GetState("missing"); ok {
		t.Fatal("expected missing key to report ok=false")
	}

	c.SetState("attempt", 3)
	v, ok := c.GetState("attempt")
	if !ok || v.(int) != 3 {
		t.Fatalf("GetState(attempt) = (%v, %v), want (3, true)", v, ok)
	}
}

func TestConcurrentMutationIsSerialized(t *testing.T) {
	c := New(newTestRequest(t))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.RecordEvent("concurrent", nil)
			c.SetState("last", n)
		}(i)
	}
	wg.Wait()

	if len(c.Timeline()) != 50 {
		t.Fatalf("Timeline() len = %d, want 50", len(c.Timeline()))
	}
}

func TestElapsedIsMonotonic(t *testing.T) {
	c := New(newTestRequest(t))
	first := c.Elapsed()
	time.Sleep(time.Millisecond)
	second := c.Elapsed()

	if second < first {
		t.Fatalf("Elapsed() went backwards: %v then %v", first, second)
	}
}
