// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package apps

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bundlenudge/bundlenudge/cli/api"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all apps",
	Long:  `List all apps registered with the server`,
	RunE: func(cmd *cobra.Command, args []string) error {
		api := api.CtxGetApi(cmd.Context())
		return listApps(cmd, api)
	},
}

func init() {
	AppsCmd.AddCommand(listCmd)
}

func listApps(cmd *cobra.Command, a *api.Api) error {
	apps, err := a.Apps().List()
	cobra.CheckErr(err)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tTIER\tCREATED")
	for _, app := range apps {
		created := time.Unix(app.CreatedAt, 0).Format(time.DateOnly)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", app.Id, app.Name, app.Tier, created)
	}
	return w.Flush()
}
