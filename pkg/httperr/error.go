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

// Package httperr defines the engine's closed error-kind taxonomy and the
// retryability classifier every interceptor consults.
//
// Domain code should construct *Error values with New/Wrap rather than
// ad hoc fmt.Errorf, so that retry, redirect, and caller-facing code can
// always recover a Kind via As.
package httperr

import (
	"fmt"

	httperrs "github.com/tombee/httpcore/pkg/errors"
)

// Kind identifies the category of failure. The set is exhaustive and
// closed; new kinds are not added without a corresponding spec update.
type Kind string

const (
	// KindNetwork is an I/O failure during connect/write/read.
	KindNetwork Kind = "network"
	// KindTimeout is a deadline firing before completion.
	KindTimeout Kind = "timeout"
	// KindCancelled is a caller-initiated cancellation.
	KindCancelled Kind = "cancelled"
	// KindTLS is a certificate or handshake failure.
	KindTLS Kind = "tls"
	// KindInvalidRequest covers bad URIs, bad headers, redirect loops,
	// scheme downgrades, and redirect-cap violations.
	KindInvalidRequest Kind = "invalidRequest"
	// KindResponseTooLarge is a header block or body exceeding a
	// configured limit.
	KindResponseTooLarge Kind = "responseTooLarge"
	// KindProxyAuthRequired is a 407 with no, or rejected, credentials.
	KindProxyAuthRequired Kind = "proxyAuthRequired"
	// KindProxyConnectFailed is a failure to reach the proxy endpoint.
	KindProxyConnectFailed Kind = "proxyConnectFailed"
	// KindProxyTunnelFailed is a non-2xx response to CONNECT other than
	// the first 407.
	KindProxyTunnelFailed Kind = "proxyTunnelFailed"
	// KindDecodeError is a malformed response: bad chunk size, conflicting
	// Content-Length headers, or other protocol violations.
	KindDecodeError Kind = "decodeError"
)

// retryableKinds holds the kinds the spec's error taxonomy marks
// retryable independent of status code.
var retryableKinds = map[Kind]bool{
	KindNetwork:            true,
	KindTimeout:            true,
	KindProxyConnectFailed: true,
}

// Error is the engine's structured error record. It always carries a
// Kind, optionally an Op describing where it occurred, a message, and a
// wrapped cause.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

// New constructs an Error with no cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap constructs an Error of kind wrapping cause. If cause is nil, Wrap
// returns nil.
func Wrap(kind Kind, op string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: cause.Error(), Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any, enabling errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the error's Kind is retryable independent of
// any HTTP status code. Network and timeout are retryable; cancelled,
// tls, and invalidRequest are not; proxyConnectFailed is retryable (the
// tunnel never got established so no bytes were sent to the origin);
// proxyAuthRequired/proxyTunnelFailed/decodeError/responseTooLarge are
// not.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	return retryableKinds[e.Kind]
}

// StatusRetryable reports whether a response status code should trigger
// a retry: 5xx is retryable, everything else (including all 4xx) is not.
func StatusRetryable(status int) bool {
	return status >= 500 && status < 600
}

// Is reports whether err (or any error in its tree) is an *Error of the
// given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !httperrs.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// As is a thin re-export of pkg/errors.As for callers that only import
// httperr.
func As(err error, target interface{}) bool {
	return httperrs.As(err, target)
}
