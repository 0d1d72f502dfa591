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

package cookiejar

import (
	"context"
	"strings"

	"github.com/tombee/httpcore/internal/message"
	"github.com/tombee/httpcore/internal/pipeline"
	"github.com/tombee/httpcore/internal/requestctx"
)

// Interceptor attaches outbound cookies from Jar to each request and
// stores any Set-Cookie headers from each response, per spec §4.7.
type Interceptor struct {
	Jar *Jar
}

// NewInterceptor wraps jar as a pipeline.Interceptor.
func NewInterceptor(jar *Jar) *Interceptor {
	return &Interceptor{Jar: jar}
}

// Intercept implements pipeline.Interceptor.
func (ic *Interceptor) Intercept(ctx context.Context, rc *requestctx.Context, next pipeline.Next) (*message.Response, error) {
	req := rc.Request()
	host, path, secure := canonicalURL(req.URI())
	crossSite := req.MetadataBool(message.MetaIsCrossSiteRequest, false)
	safeMethod := req.Method() == message.MethodGet || req.Method() == message.MethodHead || req.Method() == message.MethodOptions

	selected := ic.Jar.Select(host, path, secure, crossSite, safeMethod)
	if len(selected) > 0 {
		req = attachCookies(req, selected)
		rc.SetRequest(req)
	}

	resp, err := next(ctx, rc)
	if err != nil {
		return resp, err
	}
	if resp != nil && resp.Headers != nil {
		setCookies := resp.Headers.GetAll("Set-Cookie")
		if len(setCookies) > 0 {
			ic.Jar.Store(setCookies, host, path, secure)
		}
	}
	return resp, err
}

// attachCookies merges selected cookies into req's Cookie header,
// preserving any existing Cookie values (existing names take precedence
// over the jar, per spec §4.7) and returns a rewritten request.
func attachCookies(req *message.Request, selected []*Cookie) *message.Request {
	existingNames := make(map[string]bool)
	existing := req.Headers().Get("Cookie")
	var pairs []string
	if existing != "" {
		for _, p := range strings.Split(existing, ";") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			pairs = append(pairs, p)
			if i := strings.IndexByte(p, '='); i >= 0 {
				existingNames[strings.TrimSpace(p[:i])] = true
			}
		}
	}
	for _, c := range selected {
		if existingNames[c.Name] {
			continue
		}
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	if len(pairs) == 0 {
		return req
	}

	headers := req.Headers().Clone()
	headers.Set("Cookie", strings.Join(pairs, "; "))
	return req.Rewrite(message.RewriteOptions{Headers: headers})
}
