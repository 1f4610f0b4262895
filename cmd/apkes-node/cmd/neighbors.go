/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/apkes-project/apkes/admin"
)

// colorStatus highlights a neighbor's lifecycle status the way diag.go
// highlights PASS/WARN/FAIL: green once it's usable, yellow mid-handshake.
func colorStatus(status string) string {
	switch status {
	case "PERMANENT":
		return color.GreenString(status)
	case "TENTATIVE", "TENTATIVE_AWAITING_ACK":
		return color.YellowString(status)
	default:
		return color.RedString(status)
	}
}

var neighborsAddrFlag string

func init() {
	RootCmd.AddCommand(neighborsCmd)
	neighborsCmd.Flags().StringVarP(&neighborsAddrFlag, "admin", "a", "127.0.0.1:9541", "admin address of a running apkes-node")
}

var neighborsCmd = &cobra.Command{
	Use:   "neighbors",
	Short: "List the neighbor table of a running apkes-node",
	RunE: func(_ *cobra.Command, _ []string) error {
		ConfigureVerbosity()
		views, err := admin.FetchNeighbors(neighborsAddrFlag)
		if err != nil {
			return err
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Extended", "Short", "Status", "Local Index"})
		for _, v := range views {
			table.Append([]string{
				fmt.Sprintf("%#016x", v.Extended),
				fmt.Sprintf("%#04x", v.Short),
				colorStatus(v.Status),
				fmt.Sprintf("%d", v.LocalIndex),
			})
		}
		table.Render()
		return nil
	},
}
