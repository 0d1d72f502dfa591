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

// Command httpcoreprobe is a small diagnostic CLI over pkg/httpcore: it
// issues one request and prints its status, headers, and timeline
// events, and can record or replay fixtures for pkg/httpmock.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "httpcoreprobe",
		Short: "Issue and inspect requests against the httpcore engine",
	}

	root.AddCommand(newGetCommand())
	root.AddCommand(newRecordCommand())
	root.AddCommand(newReplayCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
