// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package api

import (
	"net/url"

	models "github.com/bundlenudge/bundlenudge/storage/api"
)

type (
	Device               = models.Device
	DeviceListItem       = models.DeviceListItem
	DeviceTelemetryEvent = models.DeviceTelemetryEvent
)

type DevicesApi struct {
	api *Api
}

func (a *Api) Devices() DevicesApi {
	return DevicesApi{api: a}
}

func (d DevicesApi) List(appId, orderBy string) ([]DeviceListItem, error) {
	query := url.Values{}
	if appId != "" {
		query.Set("app", appId)
	}
	if orderBy != "" {
		query.Set("order-by", orderBy)
	}
	resource := "/devices"
	if len(query) > 0 {
		resource += "?" + query.Encode()
	}
	var devices []DeviceListItem
	return devices, d.api.Get(resource, &devices)
}

func (d DevicesApi) Get(uuid string) (Device, error) {
	var device Device
	return device, d.api.Get("/devices/"+uuid, &device)
}

func (d DevicesApi) Telemetry(uuid string) ([]DeviceTelemetryEvent, error) {
	var events []DeviceTelemetryEvent
	return events, d.api.Get("/devices/"+uuid+"/telemetry", &events)
}
