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
	"regexp"
	"strings"
)

// RedactionPattern matches sensitive substrings in recorded traffic and
// replaces them before a fixture touches disk.
type RedactionPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// StandardRedactionPatterns is the default set applied by Recorder,
// grounded on the teacher's fixture redactor (originally written for LLM
// and integration-call fixtures, carried over unchanged here since API
// keys, bearer tokens and JWTs show up in HTTP traffic exactly the same
// way).
func StandardRedactionPatterns() []RedactionPattern {
	return []RedactionPattern{
		{
			Name:        "openai_key",
			Regex:       regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
			Replacement: "[REDACTED-OPENAI-KEY]",
		},
		{
			Name:        "stripe_key",
			Regex:       regexp.MustCompile(`sk_(live|test)_[a-zA-Z0-9]{24,}`),
			Replacement: "[REDACTED-STRIPE-KEY]",
		},
		{
			Name:        "github_token",
			Regex:       regexp.MustCompile(`ghp_[a-zA-Z0-9]{20,}`),
			Replacement: "[REDACTED-GITHUB-TOKEN]",
		},
		{
			Name:        "slack_token",
			Regex:       regexp.MustCompile(`xoxb-[a-zA-Z0-9\-]{20,}`),
			Replacement: "[REDACTED-SLACK-TOKEN]",
		},
		{
			Name:        "aws_access_key",
			Regex:       regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
			Replacement: "[REDACTED-AWS-KEY]",
		},
		{
			Name:        "gitlab_token",
			Regex:       regexp.MustCompile(`glpat_[a-zA-Z0-9\-_]{20,}`),
			Replacement: "[REDACTED-GITLAB-TOKEN]",
		},
		{
			Name:        "jwt",
			Regex:       regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`),
			Replacement: "[REDACTED-JWT]",
		},
		{
			Name:        "bearer_token",
			Regex:       regexp.MustCompile(`(?i)Bearer\s+[a-zA-Z0-9_\-\.]{20,}`),
			Replacement: "Bearer [REDACTED]",
		},
		{
			Name:        "private_key",
			Regex:       regexp.MustCompile(`(?s)(-----BEGIN (RSA |EC |DSA )?PRIVATE KEY-----).*?(-----END (RSA |EC |DSA )?PRIVATE KEY-----)`),
			Replacement: "$1[REDACTED]$3",
		},
	}
}

// sensitiveHeaderNames are always redacted regardless of content, per the
// teacher's shouldRedactKey heuristic.
var sensitiveHeaderNames = []string{
	"authorization",
	"proxy-authorization",
	"cookie",
	"set-cookie",
	"x-api-key",
	"api-key",
}

// Redactor applies RedactionPattern rules to recorded headers and bodies
// before a Recorder writes them to a fixture file.
type Redactor struct {
	patterns []RedactionPattern
}

// NewRedactor builds a Redactor with the standard pattern set.
func NewRedactor() *Redactor {
	return &Redactor{patterns: StandardRedactionPatterns()}
}

// NewRedactorWithPatterns builds a Redactor with a caller-supplied pattern
// set, for projects recording fixtures against a different set of
// internal token formats.
func NewRedactorWithPatterns(patterns []RedactionPattern) *Redactor {
	return &Redactor{patterns: patterns}
}

// AddPattern appends a custom pattern.
func (r *Redactor) AddPattern(p RedactionPattern) {
	r.patterns = append(r.patterns, p)
}

// RedactString applies every pattern to s in order.
func (r *Redactor) RedactString(s string) string {
	out := s
	for _, p := range r.patterns {
		out = p.Regex.ReplaceAllString(out, p.Replacement)
	}
	return out
}

// RedactHeaders redacts a name->values header map: names in
// sensitiveHeaderNames are blanked outright, everything else is run
// through RedactString value by value.
func (r *Redactor) RedactHeaders(h map[string][]string) map[string][]string {
	out := make(map[string][]string, len(h))
	for name, values := range h {
		lower := strings.ToLower(name)
		if isSensitiveHeader(lower) {
			out[name] = []string{"[REDACTED]"}
			continue
		}
		redacted := make([]string, len(values))
		for i, v := range values {
			redacted[i] = r.RedactString(v)
		}
		out[name] = redacted
	}
	return out
}

// RedactBody runs a response/request body through pattern redaction. It
// never attempts JSON-aware field redaction (unlike the teacher's
// original LLM-fixture redactor): HTTP bodies are opaque byte payloads of
// arbitrary content type, so only pattern matching applies.
func (r *Redactor) RedactBody(body []byte) []byte {
	if len(body) == 0 {
		return body
	}
	return []byte(r.RedactString(string(body)))
}

func isSensitiveHeader(lowerName string) bool {
	for _, n := range sensitiveHeaderNames {
		if lowerName == n {
			return true
		}
	}
	return false
}
