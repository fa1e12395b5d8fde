// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package api

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"

	"github.com/bundlenudge/bundlenudge/server"
	basestorage "github.com/bundlenudge/bundlenudge/storage"
	"github.com/bundlenudge/bundlenudge/storage/api"
)

type App = api.App

type appCreateReq struct {
	Name string `json:"name"`
	Tier string `json:"tier"`
}

// @Summary List apps
// @Produce json
// @Success 200 {array} App
// @Router  /apps [get]
func (h *handlers) appList(c echo.Context) error {
	apps, err := h.storage.AppsList()
	if err != nil {
		return server.EchoError(c, err, http.StatusInternalServerError, "Unexpected error listing apps")
	}
	if apps == nil {
		apps = []App{}
	}
	return c.JSON(http.StatusOK, apps)
}

// @Summary Register a new app
// @Accept  json
// @Param   app body appCreateReq true "App definition"
// @Produce json
// @Success 201 {object} App
// @Router  /apps [post]
func (h *handlers) appCreate(c echo.Context) error {
	var req appCreateReq
	if err := server.ReadJsonBody(c, &req); err != nil {
		return err
	}
	if req.Name == "" {
		return c.String(http.StatusBadRequest, "App name is required")
	}
	if req.Tier == "" {
		req.Tier = basestorage.TierFree
	}
	tiers := []string{basestorage.TierFree, basestorage.TierTeam, basestorage.TierEnterprise}
	if !slices.Contains(tiers, req.Tier) {
		return c.String(http.StatusBadRequest, fmt.Sprintf("Invalid tier: %s", req.Tier))
	}

	app, err := h.storage.AppCreate(req.Name, req.Tier)
	if err != nil {
		return server.EchoError(c, err, http.StatusInternalServerError, "Unexpected error creating app")
	}
	// The token appears exactly once, in this response.
	return c.JSON(http.StatusCreated, app)
}
