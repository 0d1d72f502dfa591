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

// Package httpmock provides three substitutes for a live
// internal/transport.Transport in tests: Queue (deterministic canned
// responses), Recorder (tees real traffic to redacted YAML fixtures),
// and Replayer (serves those fixtures back by method+URI). All three
// expose a pipeline.Next-shaped terminal, so they drop into the same
// interceptor chain a real client builds.
package httpmock

import "time"

// Fixture is the on-disk YAML representation of one recorded
// request/response exchange.
type Fixture struct {
	Method          string              `yaml:"method"`
	URI             string              `yaml:"uri"`
	RequestHeaders  map[string][]string `yaml:"requestHeaders,omitempty"`
	RequestBody     string              `yaml:"requestBody,omitempty"`
	Status          int                 `yaml:"status"`
	StatusText      string              `yaml:"statusText,omitempty"`
	ResponseHeaders map[string][]string `yaml:"responseHeaders,omitempty"`
	ResponseBody    string              `yaml:"responseBody,omitempty"`
	Error           string              `yaml:"error,omitempty"`
	RecordedAt      time.Time           `yaml:"recordedAt"`
	Comment         string              `yaml:"comment,omitempty"`
}

// fixtureKey identifies a fixture by the request it answers: method plus
// canonical scheme://host/path?query, matching internal/cache's
// canonicalization so recorded and replayed lookups agree.
func fixtureKey(method, canonicalURI string) string {
	return method + " " + canonicalURI
}
