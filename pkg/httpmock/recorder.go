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
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/tombee/httpcore/internal/message"
	"github.com/tombee/httpcore/internal/pipeline"
	"github.com/tombee/httpcore/internal/requestctx"
	"gopkg.in/yaml.v3"
)

// Config controls where a Recorder writes fixtures and which redaction
// rules it applies, grounded on the teacher's fixture-recorder Config
// (FixturesDir plus an optional custom Redactor).
type Config struct {
	// FixturesDir is the parent directory; fixtures are written under
	// FixturesDir/.recorded, matching the teacher's layout.
	FixturesDir string
	// Redactor overrides the standard pattern set when non-nil.
	Redactor *Redactor
}

// Recorder wraps a live pipeline.Next, writing a redacted YAML fixture
// for every exchange that passes through it while still returning the
// real response to the caller.
type Recorder struct {
	dir      string
	redactor *Redactor

	mu  sync.Mutex
	seq int
}

// NewRecorder creates the fixtures directory (mode 0750) and returns a
// Recorder ready to wrap a transport.
func NewRecorder(cfg Config) (*Recorder, error) {
	dir := filepath.Join(cfg.FixturesDir, ".recorded")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("httpmock: creating fixtures dir: %w", err)
	}
	redactor := cfg.Redactor
	if redactor == nil {
		redactor = NewRedactor()
	}
	return &Recorder{dir: dir, redactor: redactor}, nil
}

// Wrap returns a pipeline.Next that records every exchange passing
// through next before returning its result unmodified.
func (rec *Recorder) Wrap(next pipeline.Next) pipeline.Next {
	return func(ctx context.Context, rc *requestctx.Context) (*message.Response, error) {
		req := rc.Request()
		resp, err := next(ctx, rc)
		if recErr := rec.record(req, resp, err); recErr != nil {
			// Recording failures must never fail the underlying call;
			// they only cost the caller a fixture.
			_ = recErr
		}
		return resp, err
	}
}

func (rec *Recorder) record(req *message.Request, resp *message.Response, callErr error) error {
	rec.mu.Lock()
	rec.seq++
	seq := rec.seq
	rec.mu.Unlock()

	fixture := Fixture{
		Method:         string(req.Method()),
		URI:            req.URI().String(),
		RequestHeaders: rec.redactor.RedactHeaders(headerMapToLists(req.Headers())),
		RequestBody:    string(rec.redactor.RedactBody(req.Body())),
		RecordedAt:     time.Now().UTC(),
	}
	if callErr != nil {
		fixture.Error = rec.redactor.RedactString(callErr.Error())
	} else if resp != nil {
		fixture.Status = resp.Status
		fixture.StatusText = resp.StatusText
		fixture.ResponseHeaders = rec.redactor.RedactHeaders(headerMapToLists(resp.Headers))
		fixture.ResponseBody = string(rec.redactor.RedactBody(resp.Body))
	}

	name := fmt.Sprintf("%04d_%s_%s.yaml", seq, fixture.Method, sanitizeForFilename(req.URI().Host+req.URI().Path))
	data, err := yaml.Marshal(fixture)
	if err != nil {
		return fmt.Errorf("httpmock: marshaling fixture: %w", err)
	}
	path := filepath.Join(rec.dir, name)
	return os.WriteFile(path, data, 0600)
}

var filenameUnsafe = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func sanitizeForFilename(s string) string {
	if s == "" {
		return "root"
	}
	return filenameUnsafe.ReplaceAllString(s, "_")
}
