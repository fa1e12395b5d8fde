// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	basestorage "github.com/bundlenudge/bundlenudge/storage"
)

const defaultChannel = "production"

// @Summary Check for a newer release on the device's channel
// @Produce json
// @Success 200 {object} ReleaseManifest
// @Success 204 ""
// @Router  /v1/update-check [get]
func (h handlers) updateCheck(c echo.Context) error {
	ctx := c.Request().Context()
	log := CtxGetLog(ctx)
	app := CtxGetApp(ctx)

	if qApp := c.QueryParam("app"); qApp != "" && qApp != app.Id {
		return c.String(http.StatusForbidden, "App id does not match bearer token")
	}
	channel := c.QueryParam("channel")
	if channel == "" {
		channel = defaultChannel
	}
	version := c.QueryParam("version")

	if d := CtxGetDevice(ctx); d != nil {
		sdkVersion := c.Request().Header.Get(headerSdkVersion)
		if sdkVersion == "" {
			sdkVersion = d.SdkVersion
		}
		if err := d.CheckIn(channel, version, d.PreviousVersion, sdkVersion); err != nil {
			// A failed check-in must not block the update path.
			log.Error("Unable to check in device", "error", err)
		}
	}

	release, err := h.storage.ReleaseLatest(app.Id, channel)
	if err != nil {
		return EchoError(c, err, http.StatusInternalServerError, "Unexpected error looking up releases")
	}
	if release == nil || release.Version == version {
		return c.NoContent(http.StatusNoContent)
	}

	manifest := ReleaseManifest{
		Version:    release.Version,
		BundleUrl:  h.bundleUrl(c, release.Version, channel),
		BundleHash: release.BundleHash,
		Channel:    channel,
	}
	manifest.CriticalEvents = release.CriticalConfig.Events
	manifest.CriticalEndpoints = release.CriticalConfig.Endpoints
	// Route monitoring is a paid feature; free tier manifests never
	// carry route config.
	if app.Tier != basestorage.TierFree {
		manifest.CriticalRoutes = release.CriticalConfig.Routes
	}

	if h.signer == nil {
		return c.JSON(http.StatusOK, manifest)
	}

	payload, err := json.Marshal(manifest)
	if err != nil {
		return EchoError(c, err, http.StatusInternalServerError, "Unexpected error building manifest")
	}
	jws, err := h.signer.Sign(payload)
	if err != nil {
		return EchoError(c, err, http.StatusInternalServerError, "Unexpected error signing manifest")
	}
	return c.JSON(http.StatusOK, SignedManifest{Manifest: jws})
}

func (h handlers) bundleUrl(c echo.Context, version, channel string) string {
	return fmt.Sprintf("%s://%s/v1/bundles/%s?channel=%s", c.Scheme(), c.Request().Host, version, channel)
}

// @Summary Download a release bundle
// @Produce octet-stream
// @Success 200 ""
// @Router  /v1/bundles/{version} [get]
func (h handlers) bundleGet(c echo.Context) error {
	ctx := c.Request().Context()
	app := CtxGetApp(ctx)

	channel := c.QueryParam("channel")
	if channel == "" {
		channel = defaultChannel
	}
	version := c.Param("version")

	release, err := h.storage.ReleaseGet(app.Id, channel, version)
	if err != nil {
		return EchoError(c, err, http.StatusInternalServerError, "Unexpected error looking up release")
	}
	if release == nil {
		return c.String(http.StatusNotFound, fmt.Sprintf("No release %s on channel %s", version, channel))
	}

	bundle, err := h.storage.ReadBundle(app.Id, version)
	if err != nil {
		return EchoError(c, err, http.StatusInternalServerError, "Unexpected error reading bundle")
	}
	return c.Blob(http.StatusOK, "application/octet-stream", bundle)
}
