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

	"github.com/spf13/cobra"

	"github.com/tombee/httpcore/internal/requestctx"
	"github.com/tombee/httpcore/pkg/httpcore"
	"github.com/tombee/httpcore/pkg/httpmock"
)

func newReplayCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "replay <url>",
		Short: "Serve a GET request's response from a fixture recorded by 'record', without touching the network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			replayer, err := httpmock.NewReplayer(dir)
			if err != nil {
				return err
			}

			req, err := httpcore.NewRequest(httpcore.MethodGet, args[0], nil, nil, 0)
			if err != nil {
				return err
			}

			resp, err := replayer.Terminal()(context.Background(), requestctx.New(req))
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
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "fixtures parent directory (fixtures live under <dir>/.recorded)")

	return cmd
}
