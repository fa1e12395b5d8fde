// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package api

import (
	models "github.com/bundlenudge/bundlenudge/storage/api"
)

type App = models.App

type AppsApi struct {
	api *Api
}

func (a *Api) Apps() AppsApi {
	return AppsApi{api: a}
}

func (a AppsApi) List() ([]App, error) {
	var apps []App
	return apps, a.api.Get("/apps", &apps)
}

// Create registers a new app. The returned App carries the gateway token;
// this is the only time the server will reveal it.
func (a AppsApi) Create(name, tier string) (*App, error) {
	body := map[string]string{"name": name, "tier": tier}
	var app App
	return &app, a.api.Post("/apps", body, &app)
}
