// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package gateway

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	headerDeviceId   = "X-Device-Id"
	headerSdkVersion = "X-Sdk-Version"
)

// authApp resolves the bearer token to the app it belongs to. Tokens are
// looked up through a short lived cache; a fleet of devices polling for
// updates would otherwise hammer the database with identical queries.
func (h handlers) authApp(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
		if !ok || len(token) == 0 {
			return c.String(http.StatusUnauthorized, "Missing bearer token")
		}

		app, cached := h.appCache.Get(token)
		if !cached {
			var err error
			app, err = h.storage.AppGetByToken(token)
			if err != nil {
				log := CtxGetLog(c.Request().Context())
				log.Error("Unable to query for app", "error", err)
				return c.String(http.StatusBadGateway, err.Error())
			}
			if app != nil {
				h.appCache.Set(token, app, 0)
			}
		}
		if app == nil {
			return c.String(http.StatusUnauthorized, "Invalid bearer token")
		}

		req := c.Request()
		ctx := req.Context()
		log := CtxGetLog(ctx).With("app", app.Id)
		ctx = CtxWithLog(ctx, log)
		ctx = CtxWithApp(ctx, app)
		c.SetRequest(req.WithContext(ctx))

		return next(c)
	}
}

// resolveDevice registers the device on first contact. Devices are created
// lazily because the SDK has no enrollment step: a valid app token plus a
// fresh uuid is a new install.
func (h handlers) resolveDevice(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		uuid := c.Request().Header.Get(headerDeviceId)
		if uuid == "" {
			return next(c)
		}

		req := c.Request()
		ctx := req.Context()
		log := CtxGetLog(ctx).With("device", uuid)
		app := CtxGetApp(ctx)

		device, err := h.storage.DeviceGet(uuid)
		if err != nil {
			log.Error("Unable to query for device", "error", err)
			return c.String(http.StatusBadGateway, err.Error())
		} else if device == nil {
			sdkVersion := req.Header.Get(headerSdkVersion)
			device, err = h.storage.DeviceCreate(uuid, app.Id, c.QueryParam("channel"), sdkVersion)
			if err != nil {
				log.Error("Unable to create device", "error", err)
				return c.String(http.StatusBadGateway, err.Error())
			}
			log.Info("Created device")
		} else if device.Deleted {
			return c.String(http.StatusForbidden, fmt.Sprintf("Device(%s) has been deleted", uuid))
		} else if device.AppId != app.Id {
			return c.String(http.StatusForbidden, fmt.Sprintf("Device(%s) belongs to another app", uuid))
		}

		ctx = CtxWithLog(ctx, log)
		ctx = CtxWithDevice(ctx, device)
		c.SetRequest(req.WithContext(ctx))

		return next(c)
	}
}

const appCacheTTL = 5 * time.Minute
