// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package api

import (
	models "github.com/bundlenudge/bundlenudge/storage/api"
)

type (
	Release        = models.Release
	CriticalConfig = models.CriticalConfig
)

type ReleasesApi struct {
	api   *Api
	AppId string
}

// Releases returns a ReleasesApi scoped to the given app.
func (a *Api) Releases(appId string) ReleasesApi {
	return ReleasesApi{
		api:   a,
		AppId: appId,
	}
}

func (r ReleasesApi) List(channel string) ([]Release, error) {
	resource := "/apps/" + r.AppId + "/releases"
	if channel != "" {
		resource += "?channel=" + channel
	}
	var releases []Release
	return releases, r.api.Get(resource, &releases)
}

type ReleasePublishReq struct {
	Channel string `json:"channel"`
	Version string `json:"version"`
	// Bundle is the raw bundle content, base64 encoded on the wire.
	Bundle         []byte         `json:"bundle"`
	CriticalConfig CriticalConfig `json:"critical-config"`
}

func (r ReleasesApi) Publish(req ReleasePublishReq) (Release, error) {
	var release Release
	endpoint := "/apps/" + r.AppId + "/releases"
	return release, r.api.Post(endpoint, req, &release)
}

func (r ReleasesApi) SetEnabled(channel, version string, enabled bool) error {
	endpoint := "/apps/" + r.AppId + "/releases/" + channel + "/" + version
	return r.api.Put(endpoint, map[string]bool{"enabled": enabled})
}
