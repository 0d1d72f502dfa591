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

// Package cookiejar implements an RFC 6265 cookie store and the
// interceptor that attaches outbound cookies to requests and stores
// inbound Set-Cookie headers from responses (spec §4.7). Storage is
// in-process and bounded; the jar is embedded, not pluggable (spec §6).
package cookiejar

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SameSite is the cookie's cross-site attachment policy.
type SameSite int

const (
	SameSiteUnspecified SameSite = iota
	SameSiteLax
	SameSiteStrict
	SameSiteNone
)

// Cookie is a single stored cookie record. Its unique key is
// (Name, Domain, Path).
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	HostOnly bool
	Path     string
	Expires  time.Time // zero means session cookie (no expiry)
	HasExpiry bool
	Secure   bool
	HTTPOnly bool
	SameSite SameSite

	CreatedAt      time.Time
	LastAccessedAt time.Time
}

type cookieKey struct {
	name, domain, path string
}

func (c *Cookie) key() cookieKey {
	return cookieKey{name: c.Name, domain: c.Domain, path: c.Path}
}

// expired reports whether c's expiry, if any, has passed as of now.
func (c *Cookie) expired(now time.Time) bool {
	return c.HasExpiry && !c.Expires.After(now)
}

// parseSameSite parses a SameSite attribute value case-insensitively.
func parseSameSite(v string) (SameSite, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "lax":
		return SameSiteLax, true
	case "strict":
		return SameSiteStrict, true
	case "none":
		return SameSiteNone, true
	default:
		return SameSiteUnspecified, false
	}
}

// defaultPath computes the default cookie path for a request URI lacking
// an explicit Path attribute: the directory portion of the request path,
// minus the trailing slash, defaulting to "/" (spec §4.7).
func defaultPath(requestPath string) string {
	if requestPath == "" {
		return "/"
	}
	i := strings.LastIndexByte(requestPath, '/')
	if i <= 0 {
		return "/"
	}
	dir := requestPath[:i]
	if dir == "" {
		return "/"
	}
	return dir
}

// parseSetCookie parses one Set-Cookie header value into a Cookie
// populated from name=value plus any recognized attributes. now is
// used to resolve Max-Age; reqHost/reqPath/reqSecure describe the
// request that elicited the response, for domain/path defaulting and
// the Secure-over-plaintext rejection rule.
func parseSetCookie(raw string, now time.Time, reqHost, reqPath string, reqSecure bool) (*Cookie, bool) {
	parts := strings.Split(raw, ";")
	if len(parts) == 0 {
		return nil, false
	}

	nameValue := strings.TrimSpace(parts[0])
	eq := strings.IndexByte(nameValue, '=')
	if eq < 0 {
		return nil, false
	}
	name := strings.TrimSpace(nameValue[:eq])
	value := strings.TrimSpace(nameValue[eq+1:])
	if name == "" {
		return nil, false
	}
	value = strings.Trim(value, `"`)

	c := &Cookie{
		Name:           name,
		Value:          value,
		HostOnly:       true,
		Domain:         strings.ToLower(reqHost),
		Path:           defaultPath(reqPath),
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	var maxAgeSet bool
	var expiresSet bool
	var maxAgeExpiry time.Time
	var expiresExpiry time.Time

	for _, attr := range parts[1:] {
		attr = strings.TrimSpace(attr)
		if attr == "" {
			continue
		}
		key := attr
		val := ""
		if i := strings.IndexByte(attr, '='); i >= 0 {
			key = attr[:i]
			val = strings.TrimSpace(attr[i+1:])
		}
		switch strings.ToLower(key) {
		case "domain":
			d := strings.ToLower(strings.TrimPrefix(val, "."))
			if d == "" {
				continue
			}
			if !domainMatches(d, reqHost) {
				return nil, false
			}
			if isPublicSuffix(d) {
				return nil, false
			}
			c.Domain = d
			c.HostOnly = false
		case "path":
			if strings.HasPrefix(val, "/") {
				c.Path = val
			}
		case "expires":
			if t, err := parseHTTPDate(val); err == nil {
				expiresExpiry = t.UTC()
				expiresSet = true
			}
		case "max-age":
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				continue
			}
			if n <= 0 {
				maxAgeExpiry = now.Add(-time.Second)
			} else {
				const maxSeconds = int64(1) << 32
				if n > maxSeconds {
					n = maxSeconds
				}
				maxAgeExpiry = now.Add(time.Duration(n) * time.Second)
			}
			maxAgeSet = true
		case "secure":
			c.Secure = true
		case "httponly":
			c.HTTPOnly = true
		case "samesite":
			if ss, ok := parseSameSite(val); ok {
				c.SameSite = ss
			}
		}
	}

	// Max-Age wins over Expires when both are present (spec §4.7).
	switch {
	case maxAgeSet:
		c.Expires = maxAgeExpiry
		c.HasExpiry = true
	case expiresSet:
		c.Expires = expiresExpiry
		c.HasExpiry = true
	}

	if c.Secure && !reqSecure {
		return nil, false
	}
	if c.expired(now) {
		return nil, true // valid parse, caller should delete any existing entry
	}
	return c, true
}

// domainMatches reports whether the cookie's declared domain domain is
// host itself or a superdomain of host with a "." boundary.
func domainMatches(domain, host string) bool {
	host = strings.ToLower(host)
	if domain == host {
		return true
	}
	return strings.HasSuffix(host, "."+domain)
}

// publicSuffixes is the heuristic list spec §4.7/§9 calls for: known
// multi-label suffixes, preserved as-is rather than upgraded to a full
// public-suffix-list provider.
var publicSuffixes = map[string]bool{
	"co.uk":  true,
	"com.au": true,
	"ac.jp":  true,
	"co.jp":  true,
	"com.br": true,
	"co.in":  true,
	"co.nz":  true,
	"co.za":  true,
	"com.cn": true,
}

var genericSecondLevelTokens = map[string]bool{
	"co": true, "com": true, "edu": true, "gov": true, "net": true,
	"org": true, "ne": true, "or": true, "go": true, "mil": true, "ac": true,
}

// isPublicSuffix approximates whether domain targets a public suffix:
// a matching entry in the known multi-label list, or a two-label domain
// whose left label is a generic token and whose right label is exactly
// two characters (e.g. "co.uk"-shaped but not in the explicit list).
func isPublicSuffix(domain string) bool {
	if publicSuffixes[domain] {
		return true
	}
	labels := strings.Split(domain, ".")
	if len(labels) == 2 && genericSecondLevelTokens[labels[0]] && len(labels[1]) == 2 {
		return true
	}
	return false
}

// parseHTTPDate parses RFC 1123/IMF-fixdate cookie Expires values.
func parseHTTPDate(v string) (time.Time, error) {
	layouts := []string{
		time.RFC1123,
		"Mon, 02-Jan-2006 15:04:05 MST", // legacy Netscape cookie format
		time.RFC850,
		time.ANSIC,
	}
	var lastErr error
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}

// matchesPath reports whether requestPath is covered by cookiePath per
// RFC 6265 §5.1.4: equal, or requestPath is cookiePath followed by "/",
// or cookiePath itself ends with "/".
func matchesPath(cookiePath, requestPath string) bool {
	if cookiePath == requestPath {
		return true
	}
	if strings.HasPrefix(requestPath, cookiePath) {
		if strings.HasSuffix(cookiePath, "/") {
			return true
		}
		if len(requestPath) > len(cookiePath) && requestPath[len(cookiePath)] == '/' {
			return true
		}
	}
	return false
}

// appliesToDomain reports whether a cookie owned by (domain, hostOnly)
// applies to the given request host.
func appliesToDomain(domain string, hostOnly bool, reqHost string) bool {
	reqHost = strings.ToLower(reqHost)
	if hostOnly {
		return domain == reqHost
	}
	return domainMatches(domain, reqHost)
}

// canonicalURL is a narrow helper used by the interceptor to pull
// host/path/scheme/method out of a *url.URL without importing message
// into this file.
func canonicalURL(u *url.URL) (host, path string, secure bool) {
	host = u.Hostname()
	path = u.Path
	if path == "" {
		path = "/"
	}
	secure = u.Scheme == "https"
	return host, path, secure
}
