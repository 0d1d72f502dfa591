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

import "github.com/tombee/httpcore/internal/header"

func headerMapToLists(h *header.Map) map[string][]string {
	if h == nil {
		return nil
	}
	out := make(map[string][]string, len(h.Names()))
	for _, name := range h.Names() {
		out[name] = h.GetAll(name)
	}
	return out
}

func listsToHeaderMap(lists map[string][]string) *header.Map {
	h := header.New()
	for name, values := range lists {
		for _, v := range values {
			h.Add(name, v)
		}
	}
	return h
}
