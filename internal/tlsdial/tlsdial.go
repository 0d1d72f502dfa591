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

// Package tlsdial adapts crypto/tls to the TLS collaborator contract
// spec §6 describes: wrap a raw connection, negotiate ALPN, fail fast on
// a bad certificate, and report back what was negotiated. Certificate
// validation and ALPN backend selection policy themselves are the
// caller's concern (spec §1 places them out of core scope); this package
// only performs the handshake and surfaces the result.
package tlsdial

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
)

// Result is what the core learns after a successful handshake.
type Result struct {
	Conn           net.Conn
	NegotiatedALPN string
	TLSVersion     uint16
}

// ErrALPNBackendUnavailable is wrapped into the returned error when a
// caller asked for "h2" in alpnProtocols but no HTTP/2 collaborator is
// registered to take over the connection; HTTP/2 framing is out of
// scope for this core (spec §1), so the engine refuses rather than
// silently falling back to HTTP/1.1 against the caller's stated intent.
var ErrALPNBackendUnavailable = fmt.Errorf("tlsdial: h2 negotiated but no HTTP/2 collaborator is registered")

// Wrap performs a TLS client handshake over conn for host, offering
// alpnProtocols (may be nil/empty to offer none). cfg is cloned and
// given a ServerName/NextProtos if unset; a nil cfg gets a default with
// MinVersion TLS 1.2. The handshake honors ctx's deadline/cancellation.
func Wrap(ctx context.Context, conn net.Conn, host string, alpnProtocols []string, cfg *tls.Config) (*Result, error) {
	base := cfg
	if base == nil {
		base = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	out := base.Clone()
	if out.ServerName == "" {
		out.ServerName = host
	}
	if len(alpnProtocols) > 0 && len(out.NextProtos) == 0 {
		out.NextProtos = alpnProtocols
	}

	tlsConn := tls.Client(conn, out)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("tlsdial: handshake with %s: %w", host, err)
	}

	state := tlsConn.ConnectionState()
	if state.NegotiatedProtocol == "h2" {
		return nil, ErrALPNBackendUnavailable
	}

	return &Result{
		Conn:           tlsConn,
		NegotiatedALPN: state.NegotiatedProtocol,
		TLSVersion:     state.Version,
	}, nil
}
