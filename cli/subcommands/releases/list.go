// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package releases

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bundlenudge/bundlenudge/cli/api"
)

var listCmd = &cobra.Command{
	Use:   "list [app-id]",
	Short: "List an app's releases",
	Long:  `List an app's releases. The app id may be omitted when the active context has a default app.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := api.CtxGetApi(cmd.Context())
		appId := a.DefaultApp
		if len(args) > 0 {
			appId = args[0]
		}
		if appId == "" {
			return fmt.Errorf("an app id is required; pass one or set a default app with 'nudgectl login --default-app'")
		}
		channel, _ := cmd.Flags().GetString("channel")
		return listReleases(cmd, a, appId, channel)
	},
}

func init() {
	ReleasesCmd.AddCommand(listCmd)
	listCmd.Flags().String("channel", "", "Only list releases for this channel")
}

func listReleases(cmd *cobra.Command, a *api.Api, appId, channel string) error {
	releases, err := a.Releases(appId).List(channel)
	cobra.CheckErr(err)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CHANNEL\tVERSION\tSIZE\tENABLED\tCREATED")
	for _, r := range releases {
		created := time.Unix(r.CreatedAt, 0).Format(time.DateTime)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%v\t%s\n",
			r.Channel, r.Version, r.BundleSize, r.Enabled, created)
	}
	return w.Flush()
}
