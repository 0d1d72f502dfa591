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

package message

// Method is one of the fixed set of HTTP methods the engine understands.
type Method string

const (
	MethodGet     Method = "GET"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodPatch   Method = "PATCH"
	MethodDelete  Method = "DELETE"
)

// idempotent is the set of methods whose semantic repetition has the
// same effect as a single invocation.
var idempotent = map[Method]bool{
	MethodGet:     true,
	MethodHead:    true,
	MethodOptions: true,
	MethodPut:     true,
	MethodDelete:  true,
}

// carriesBodyByDefault is the set of methods that carry a request body
// by default.
var carriesBodyByDefault = map[Method]bool{
	MethodPost:   true,
	MethodPut:    true,
	MethodPatch:  true,
	MethodDelete: true,
}

// IsIdempotent reports whether m is in the idempotent method set.
func (m Method) IsIdempotent() bool {
	return idempotent[m]
}

// CarriesBodyByDefault reports whether m is expected to carry a body.
func (m Method) CarriesBodyByDefault() bool {
	return carriesBodyByDefault[m]
}

// Valid reports whether m is one of the fixed enumeration values.
func (m Method) Valid() bool {
	switch m {
	case MethodGet, MethodHead, MethodOptions, MethodPost, MethodPut, MethodPatch, MethodDelete:
		return true
	default:
		return false
	}
}
