// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package api

import (
	"github.com/labstack/echo/v4"

	"github.com/bundlenudge/bundlenudge/auth"
	"github.com/bundlenudge/bundlenudge/storage/api"
)

type handlers struct {
	storage *api.Storage
}

func RegisterHandlers(e *echo.Echo, storage *api.Storage, authFunc auth.AuthUserFunc) {
	h := handlers{storage: storage}
	e.Use(authUser(authFunc))

	e.GET("/apps", h.appList, requireScope(auth.ScopeDevicesRead))
	e.POST("/apps", h.appCreate, requireScope(auth.ScopeAppsWrite))

	e.GET("/devices", h.deviceList, requireScope(auth.ScopeDevicesRead))
	e.GET("/devices/:uuid", h.deviceGet, requireScope(auth.ScopeDevicesRead))
	e.GET("/devices/:uuid/telemetry", h.deviceTelemetry, requireScope(auth.ScopeTelemetryRead))

	e.GET("/apps/:app/releases", h.releaseList, requireScope(auth.ScopeReleasesRead))
	e.POST("/apps/:app/releases", h.releaseCreate, requireScope(auth.ScopeReleasesWrite))
	e.PUT("/apps/:app/releases/:channel/:version", h.releaseUpdate, requireScope(auth.ScopeReleasesWrite))
}
