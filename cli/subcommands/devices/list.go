// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package devices

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bundlenudge/bundlenudge/cli/api"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all devices",
	Long:  `List all devices known to the server`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := api.CtxGetApi(cmd.Context())
		appId, _ := cmd.Flags().GetString("app")
		if appId == "" {
			appId = a.DefaultApp
		}
		orderBy, _ := cmd.Flags().GetString("order-by")
		return listDevices(cmd, a, appId, orderBy)
	},
}

func init() {
	DevicesCmd.AddCommand(listCmd)
	listCmd.Flags().String("app", "", "Only list devices for this app")
	listCmd.Flags().String("order-by", "", "Sort order, eg last-seen-desc or created-at-asc")
}

func listDevices(cmd *cobra.Command, a *api.Api, appId, orderBy string) error {
	devices, err := a.Devices().List(appId, orderBy)
	cobra.CheckErr(err)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "UUID\tAPP\tCHANNEL\tVERSION\tSDK\tLAST SEEN")
	for _, d := range devices {
		lastSeen := time.Unix(d.LastSeen, 0).Format(time.DateTime)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.Uuid, d.AppId, d.Channel, d.CurrentVersion, d.SdkVersion, lastSeen)
	}
	return w.Flush()
}
