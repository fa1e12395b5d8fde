// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package gateway

import (
	cache "github.com/go-pkgz/expirable-cache/v3"
	"github.com/labstack/echo/v4"

	"github.com/bundlenudge/bundlenudge/server"
	storage "github.com/bundlenudge/bundlenudge/storage/gateway"
)

var EchoError = server.EchoError

type handlers struct {
	storage  *storage.Storage
	appCache cache.Cache[string, *storage.App]
	signer   *ManifestSigner
}

func RegisterHandlers(e *echo.Echo, strg *storage.Storage, signer *ManifestSigner) {
	h := handlers{
		storage:  strg,
		appCache: cache.NewCache[string, *storage.App]().WithTTL(appCacheTTL).WithMaxKeys(1024),
		signer:   signer,
	}
	e.Use(h.authApp)
	e.Use(h.resolveDevice)

	e.GET("/v1/update-check", h.updateCheck)
	e.GET("/v1/bundles/:version", h.bundleGet)
	e.POST("/v1/telemetry", h.telemetryUpload)
}
