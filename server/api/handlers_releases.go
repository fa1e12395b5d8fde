// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bundlenudge/bundlenudge/server"
	storage "github.com/bundlenudge/bundlenudge/storage/api"
)

type Release = storage.Release

type releaseCreateReq struct {
	Channel string `json:"channel"`
	Version string `json:"version"`
	// Bundle is the raw bundle content, base64 encoded on the wire.
	Bundle         []byte                 `json:"bundle"`
	CriticalConfig storage.CriticalConfig `json:"critical-config"`
}

type releaseUpdateReq struct {
	Enabled bool `json:"enabled"`
}

// @Summary List an app's releases
// @Produce json
// @Success 200 {array} Release
// @Router  /apps/:app/releases [get]
func (h *handlers) releaseList(c echo.Context) error {
	releases, err := h.storage.ReleasesList(c.Param("app"), c.QueryParam("channel"))
	if err != nil {
		return server.EchoError(c, err, http.StatusInternalServerError, "Unexpected error listing releases")
	}
	if releases == nil {
		releases = []Release{}
	}
	return c.JSON(http.StatusOK, releases)
}

// @Summary Publish a release
// @Accept  json
// @Param   release body releaseCreateReq true "Release definition"
// @Produce json
// @Success 201 {object} Release
// @Router  /apps/:app/releases [post]
func (h *handlers) releaseCreate(c echo.Context) error {
	var req releaseCreateReq
	if err := server.ReadJsonBody(c, &req); err != nil {
		return err
	}
	if req.Version == "" || len(req.Bundle) == 0 {
		return c.String(http.StatusBadRequest, "Release version and bundle are required")
	}
	if req.Channel == "" {
		req.Channel = "production"
	}

	release, err := h.storage.ReleaseCreate(c.Param("app"), req.Channel, req.Version, req.Bundle, req.CriticalConfig)
	if err != nil {
		if storage.IsDbError(err, storage.ErrDbConstraintUnique) {
			return server.EchoError(c, err, http.StatusConflict, "Release already exists")
		}
		return server.EchoError(c, err, http.StatusInternalServerError, "Unexpected error creating release")
	}
	return c.JSON(http.StatusCreated, release)
}

// @Summary Enable or disable a release
// @Accept  json
// @Param   release body releaseUpdateReq true "Release state"
// @Produce plain
// @Success 200 ""
// @Router  /apps/:app/releases/:channel/:version [put]
func (h *handlers) releaseUpdate(c echo.Context) error {
	var req releaseUpdateReq
	if err := server.ReadJsonBody(c, &req); err != nil {
		return err
	}
	err := h.storage.ReleaseSetEnabled(c.Param("app"), c.Param("channel"), c.Param("version"), req.Enabled)
	if err != nil {
		return server.EchoError(c, err, http.StatusInternalServerError, "Unexpected error updating release")
	}
	return c.String(http.StatusOK, "")
}
