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
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/tombee/httpcore/internal/header"
	"github.com/tombee/httpcore/internal/message"
	"github.com/tombee/httpcore/internal/requestctx"
)

func TestInterceptor_LogsRequestAndResponse(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ic := NewInterceptor(logger)

	u, _ := url.Parse("https://example.test/resource?api_key=shouldnotmatter")
	req, err := message.New(message.MethodGet, u, nil, nil, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	rc := requestctx.New(req)

	next := func(ctx context.Context, rc *requestctx.Context) (*message.Response, error) {
		h := header.New()
		h.Set("X-Cache", "HIT")
		return &message.Response{Status: 200, Headers: h}, nil
	}

	if _, err := ic.Intercept(context.Background(), rc, next); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines (request, response), got %d: %q", len(lines), buf.String())
	}

	var reqLine, respLine map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &reqLine); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &respLine); err != nil {
		t.Fatal(err)
	}

	if reqLine[MethodKey] != "GET" {
		t.Errorf("expected method GET in request log line, got %v", reqLine[MethodKey])
	}
	if respLine[CacheKey] != "HIT" {
		t.Errorf("expected cache disposition HIT in response log line, got %v", respLine[CacheKey])
	}
	if respLine[StatusKey] != float64(200) {
		t.Errorf("expected status 200 in response log line, got %v", respLine[StatusKey])
	}
}
