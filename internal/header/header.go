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

// Package header implements the case-insensitive, multi-value, CRLF-safe
// header container used by requests and responses throughout the engine.
package header

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// ErrInvalidHeader is wrapped by every error Validate returns, so callers
// can distinguish a malformed header from an I/O failure via errors.Is.
var ErrInvalidHeader = errors.New("header: invalid header")

// Map is a case-insensitive, order-preserving, multi-value header
// container. The zero value is not usable; construct with New.
type Map struct {
	// canon maps a lowercased header name to the original-case name last
	// used to set it, and to its ordered values.
	entries map[string]*entry
	order   []string // lowercased keys in first-set order
}

type entry struct {
	original string
	values   []string
}

// New returns an empty header map.
func New() *Map {
	return &Map{entries: make(map[string]*entry)}
}

func canon(name string) string {
	return strings.ToLower(name)
}

// Set replaces all values of name with value. The original case of name
// is preserved for wire output.
func (m *Map) Set(name, value string) {
	key := canon(name)
	if e, ok := m.entries[key]; ok {
		e.original = name
		e.values = []string{value}
		return
	}
	m.entries[key] = &entry{original: name, values: []string{value}}
	m.order = append(m.order, key)
}

// Add appends value to the ordered list of values for name.
func (m *Map) Add(name, value string) {
	key := canon(name)
	if e, ok := m.entries[key]; ok {
		e.values = append(e.values, value)
		return
	}
	m.entries[key] = &entry{original: name, values: []string{value}}
	m.order = append(m.order, key)
}

// Get returns the first value associated with name, or "" if absent.
func (m *Map) Get(name string) string {
	if e, ok := m.entries[canon(name)]; ok && len(e.values) > 0 {
		return e.values[0]
	}
	return ""
}

// GetAll returns every value associated with name, in set order. The
// returned slice must not be mutated by the caller.
func (m *Map) GetAll(name string) []string {
	if e, ok := m.entries[canon(name)]; ok {
		return e.values
	}
	return nil
}

// Has reports whether name has at least one value set.
func (m *Map) Has(name string) bool {
	_, ok := m.entries[canon(name)]
	return ok
}

// Remove deletes every value associated with name.
func (m *Map) Remove(name string) {
	key := canon(name)
	if _, ok := m.entries[key]; !ok {
		return
	}
	delete(m.entries, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Names returns the header names in stable (first-set) order, using the
// original case of each name.
func (m *Map) Names() []string {
	names := make([]string, 0, len(m.order))
	for _, key := range m.order {
		names = append(names, m.entries[key].original)
	}
	return names
}

// Clone returns a deep copy of m.
func (m *Map) Clone() *Map {
	if m == nil {
		return New()
	}
	out := New()
	for _, key := range m.order {
		e := m.entries[key]
		values := make([]string, len(e.values))
		copy(values, e.values)
		out.entries[key] = &entry{original: e.original, values: values}
		out.order = append(out.order, key)
	}
	return out
}

// SortedNames returns the header names sorted case-insensitively, for
// deterministic diagnostic output and cache vary-key computation.
func (m *Map) SortedNames() []string {
	names := m.Names()
	sort.Slice(names, func(i, j int) bool {
		return strings.ToLower(names[i]) < strings.ToLower(names[j])
	})
	return names
}

// Validate checks every name/value pair for CRLF injection and RFC 9110
// token conformance, returning the first violation found. The codec calls
// this immediately before serializing a request; it is defense-in-depth
// since most header mutation already goes through Set/Add.
func (m *Map) Validate() error {
	for _, key := range m.order {
		e := m.entries[key]
		if e.original == "" {
			return fmt.Errorf("%w: empty name", ErrInvalidHeader)
		}
		if !httpguts.ValidHeaderFieldName(e.original) {
			return fmt.Errorf("%w: invalid field name %q", ErrInvalidHeader, e.original)
		}
		for _, v := range e.values {
			if !httpguts.ValidHeaderFieldValue(v) {
				return fmt.Errorf("%w: invalid value for %q", ErrInvalidHeader, e.original)
			}
			if strings.ContainsAny(v, "\r\n") {
				return fmt.Errorf("%w: CR/LF in value for %q", ErrInvalidHeader, e.original)
			}
		}
	}
	return nil
}

// WriteTo appends the wire form of every header (in first-set order) to
// buf, each line terminated by CRLF. It does not write the trailing blank
// line that ends the header block.
func (m *Map) WriteTo(buf *strings.Builder) {
	for _, key := range m.order {
		e := m.entries[key]
		for _, v := range e.values {
			buf.WriteString(e.original)
			buf.WriteString(": ")
			buf.WriteString(v)
			buf.WriteString("\r\n")
		}
	}
}
