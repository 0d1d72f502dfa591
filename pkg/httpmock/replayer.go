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
	"sync"

	"github.com/tombee/httpcore/internal/message"
	"github.com/tombee/httpcore/internal/pipeline"
	"github.com/tombee/httpcore/internal/requestctx"
	"gopkg.in/yaml.v3"
)

// Replayer serves fixtures previously written by Recorder, keyed by
// method + canonical URI (scheme://host/path?query). Multiple fixtures
// recorded for the same key are served in recording order, then the last
// one repeats, mirroring a Queue's looping behavior.
type Replayer struct {
	mu        sync.Mutex
	fixtures  map[string][]Fixture
	cursor    map[string]int
}

// NewReplayer loads every *.yaml fixture under dir/.recorded.
func NewReplayer(dir string) (*Replayer, error) {
	recordedDir := filepath.Join(dir, ".recorded")
	entries, err := os.ReadDir(recordedDir)
	if err != nil {
		return nil, fmt.Errorf("httpmock: reading fixtures dir: %w", err)
	}

	r := &Replayer{
		fixtures: make(map[string][]Fixture),
		cursor:   make(map[string]int),
	}
	for _, ent := range entries {
		if ent.IsDir() || filepath.Ext(ent.Name()) != ".yaml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(recordedDir, ent.Name()))
		if err != nil {
			return nil, fmt.Errorf("httpmock: reading fixture %s: %w", ent.Name(), err)
		}
		var f Fixture
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("httpmock: parsing fixture %s: %w", ent.Name(), err)
		}
		key := fixtureKey(f.Method, f.URI)
		r.fixtures[key] = append(r.fixtures[key], f)
	}
	return r, nil
}

// Terminal adapts the Replayer to a pipeline.Next.
func (r *Replayer) Terminal() pipeline.Next {
	return r.serve
}

func (r *Replayer) serve(ctx context.Context, rc *requestctx.Context) (*message.Response, error) {
	req := rc.Request()
	key := fixtureKey(string(req.Method()), req.URI().String())

	r.mu.Lock()
	series, ok := r.fixtures[key]
	if !ok || len(series) == 0 {
		r.mu.Unlock()
		return nil, fmt.Errorf("httpmock: no recorded fixture for %s", key)
	}
	idx := r.cursor[key]
	if idx >= len(series) {
		idx = len(series) - 1
	} else {
		r.cursor[key] = idx + 1
	}
	f := series[idx]
	r.mu.Unlock()

	if f.Error != "" {
		return nil, fmt.Errorf("httpmock: replayed error: %s", f.Error)
	}
	return &message.Response{
		Request:    req,
		Status:     f.Status,
		StatusText: f.StatusText,
		Headers:    listsToHeaderMap(f.ResponseHeaders),
		Body:       []byte(f.ResponseBody),
	}, nil
}
