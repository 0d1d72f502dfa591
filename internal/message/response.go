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

import (
	"time"

	"github.com/tombee/httpcore/internal/header"
)

// Response is the result of sending a Request: either a populated status
// line/headers/body, or a non-nil Err. A Response always references the
// Request that produced it.
type Response struct {
	Request    *Request
	Status     int
	StatusText string
	Headers    *header.Map
	Body       []byte
	Elapsed    time.Duration
	Err        error
}

// IsSuccess reports whether the status code is in [200, 300).
func (r *Response) IsSuccess() bool {
	return r.Status >= 200 && r.Status < 300
}

// IsError reports whether the response carries a transport-level error
// rather than a completed status line. HTTP 4xx/5xx responses are not
// errors; they are ordinary responses with IsSuccess() == false.
func (r *Response) IsError() bool {
	return r.Err != nil
}

// EnsureSuccess returns Err if set, otherwise a generic error if the
// status is not 2xx, otherwise nil.
func (r *Response) EnsureSuccess() error {
	if r.Err != nil {
		return r.Err
	}
	if !r.IsSuccess() {
		return &StatusError{Status: r.Status, StatusText: r.StatusText}
	}
	return nil
}

// StatusError reports a non-2xx response surfaced via EnsureSuccess.
type StatusError struct {
	Status     int
	StatusText string
}

func (e *StatusError) Error() string {
	return "unsuccessful response: " + e.StatusText
}
