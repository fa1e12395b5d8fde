// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// @Summary Upload telemetry events
// @Accept  json
// @Param   events body []TelemetryEvent true "Telemetry events"
// @Produce plain
// @Success 200 ""
// @Router  /v1/telemetry [post]
func (h handlers) telemetryUpload(c echo.Context) error {
	ctx := c.Request().Context()
	log := CtxGetLog(ctx)
	app := CtxGetApp(ctx)

	events, err := readTelemetryBody(c)
	if err != nil {
		return err
	}
	// Apply zero-error logic below this line:
	// As long as an upload has valid JSON structure, we should not return validation errors.

	valid := make(map[string][]TelemetryEvent)
	for _, event := range events {
		if event.DeviceId == "" {
			event.DeviceId = c.Request().Header.Get(headerDeviceId)
		}
		if event.DeviceId == "" {
			log.Warn("Missing telemetry device id - skip it", "event", event.EventType)
			continue
		}
		if event.EventType == "" {
			log.Warn("Missing telemetry event type - skip it", "device", event.DeviceId)
			continue
		}
		// The app id is derived from the token; never trust the body's.
		event.AppId = app.Id
		if _, err := time.Parse(time.RFC3339, event.DeviceTime); err != nil {
			event.DeviceTime = time.Now().UTC().Format(time.RFC3339)
		}
		valid[event.DeviceId] = append(valid[event.DeviceId], event)
	}

	for uuid, deviceEvents := range valid {
		device, err := h.deviceForTelemetry(c, uuid)
		if err != nil {
			log.Error("Unable to resolve telemetry device", "device", uuid, "error", err)
			continue
		}
		if err := device.SaveTelemetry(deviceEvents); err != nil {
			return EchoError(c, err, http.StatusInternalServerError, "Failed to save telemetry")
		}
	}
	return c.String(http.StatusOK, "")
}

// readTelemetryBody accepts both a single event object (what the SDK
// sends) and an array of events (batched uploads).
func readTelemetryBody(c echo.Context) ([]TelemetryEvent, error) {
	var raw bytes.Buffer
	if _, err := raw.ReadFrom(c.Request().Body); err != nil {
		return nil, EchoError(c, err, http.StatusBadRequest, "Unable to read request body")
	}
	body := bytes.TrimSpace(raw.Bytes())
	if len(body) > 0 && body[0] == '[' {
		var events []TelemetryEvent
		if err := unmarshalBody(c, body, &events); err != nil {
			return nil, err
		}
		return events, nil
	}
	var event TelemetryEvent
	if err := unmarshalBody(c, body, &event); err != nil {
		return nil, err
	}
	return []TelemetryEvent{event}, nil
}

func unmarshalBody(c echo.Context, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return EchoError(c, err, http.StatusBadRequest, "Invalid JSON body")
	}
	return nil
}

func (h handlers) deviceForTelemetry(c echo.Context, uuid string) (*Device, error) {
	ctx := c.Request().Context()
	if d := CtxGetDevice(ctx); d != nil && d.Uuid == uuid {
		return d, nil
	}
	app := CtxGetApp(ctx)
	d, err := h.storage.DeviceGet(uuid)
	if err != nil {
		return nil, err
	} else if d == nil {
		return h.storage.DeviceCreate(uuid, app.Id, "", c.Request().Header.Get(headerSdkVersion))
	}
	return d, nil
}
