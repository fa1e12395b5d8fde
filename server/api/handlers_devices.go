// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bundlenudge/bundlenudge/server"
	storage "github.com/bundlenudge/bundlenudge/storage/api"
)

type (
	Device         = storage.Device
	DeviceListOpts = storage.DeviceListOpts
)

// @Summary List devices
// @Param _ query DeviceListOpts false "Filtering and sorting options"
// @Accept  json
// @Produce json
// @Success 200 {array} storage.DeviceListItem
// @Router  /devices [get]
func (h *handlers) deviceList(c echo.Context) error {
	opts := storage.DeviceListOpts{
		OrderBy: storage.OrderByDeviceLastSeenDsc,
		Limit:   1000,
		Offset:  0,
	}
	if err := c.Bind(&opts); err != nil {
		return server.EchoError(c, err, http.StatusInternalServerError, "Failed to parse list options")
	}

	devices, err := h.storage.DevicesList(opts)
	if err != nil {
		return server.EchoError(c, err, http.StatusInternalServerError, "Unexpected error listing devices")
	}

	// TODO handle pagination in response
	return c.JSON(http.StatusOK, devices)
}

// @Summary Get a device by its UUID
// @Produce json
// @Success 200 Device
// @Router  /devices/:uuid [get]
func (h *handlers) deviceGet(c echo.Context) error {
	uuid := c.Param("uuid")

	device, err := h.storage.DeviceGet(uuid)
	if err != nil {
		return server.EchoError(c, err, http.StatusInternalServerError, "Failed to lookup device")
	}

	if device == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Not found")
	}
	return c.JSON(http.StatusOK, device)
}

// @Summary Get a device's stored telemetry, newest first
// @Produce json
// @Success 200 {array} storage.DeviceTelemetryEvent
// @Router  /devices/:uuid/telemetry [get]
func (h *handlers) deviceTelemetry(c echo.Context) error {
	uuid := c.Param("uuid")

	device, err := h.storage.DeviceGet(uuid)
	if err != nil {
		return server.EchoError(c, err, http.StatusInternalServerError, "Failed to lookup device")
	}
	if device == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Not found")
	}

	events, err := device.Telemetry()
	if err != nil {
		return server.EchoError(c, err, http.StatusInternalServerError, "Failed to read telemetry")
	}
	if events == nil {
		events = []storage.DeviceTelemetryEvent{}
	}
	return c.JSON(http.StatusOK, events)
}
