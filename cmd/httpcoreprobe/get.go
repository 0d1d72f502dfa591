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

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/httpcore/pkg/httpcore"
)

func newGetCommand() *cobra.Command {
	var timeout time.Duration
	var showTimeline bool
	var proxyAddr string

	cmd := &cobra.Command{
		Use:   "get <url>",
		Short: "Issue a GET request and print its status, headers, and body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []httpcore.Option{}
			if proxyAddr != "" {
				opts = append(opts, httpcore.WithProxy(proxyAddr, "", ""))
			}
			client, err := httpcore.New(opts...)
			if err != nil {
				return err
			}
			defer client.Close()

			req, err := httpcore.NewRequest(httpcore.MethodGet, args[0], nil, nil, timeout)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), timeout+5*time.Second)
			defer cancel()

			resp, timeline, err := client.DoTraced(ctx, req)
			if err != nil {
				return err
			}

			fmt.Printf("HTTP %d %s\n", resp.Status, resp.StatusText)
			for _, name := range resp.Headers.Names() {
				for _, v := range resp.Headers.GetAll(name) {
					fmt.Printf("%s: %s\n", name, v)
				}
			}
			fmt.Printf("\n%s\n", resp.Body)

			if showTimeline {
				fmt.Println("\ntimeline:")
				for _, ev := range timeline {
					fmt.Printf("  %-20s %v %v\n", ev.Name, ev.Elapsed, ev.Attributes)
				}
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "per-request timeout")
	cmd.Flags().BoolVar(&showTimeline, "timeline", false, "print the recorded execution timeline")
	cmd.Flags().StringVar(&proxyAddr, "proxy", "", "forward proxy URL, e.g. http://localhost:8080")

	return cmd
}
