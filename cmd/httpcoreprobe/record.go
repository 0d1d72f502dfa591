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

	"github.com/tombee/httpcore/internal/requestctx"
	"github.com/tombee/httpcore/pkg/httpcore"
	"github.com/tombee/httpcore/pkg/httpmock"
)

func newRecordCommand() *cobra.Command {
	var timeout time.Duration
	var dir string

	cmd := &cobra.Command{
		Use:   "record <url>",
		Short: "Issue a GET request and write a redacted fixture under <dir>/.recorded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := httpcore.New()
			if err != nil {
				return err
			}
			defer client.Close()

			rec, err := httpmock.NewRecorder(httpmock.Config{FixturesDir: dir})
			if err != nil {
				return err
			}

			req, err := httpcore.NewRequest(httpcore.MethodGet, args[0], nil, nil, timeout)
			if err != nil {
				return err
			}

			wrapped := rec.Wrap(func(ctx context.Context, rc *requestctx.Context) (*httpcore.Response, error) {
				return client.Do(ctx, rc.Request())
			})

			ctx, cancel := context.WithTimeout(context.Background(), timeout+5*time.Second)
			defer cancel()

			resp, err := wrapped(ctx, requestctx.New(req))
			if err != nil {
				return err
			}
			fmt.Printf("recorded HTTP %d %s into %s/.recorded\n", resp.Status, resp.StatusText, dir)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "per-request timeout")
	cmd.Flags().StringVar(&dir, "dir", ".", "fixtures parent directory")

	return cmd
}
