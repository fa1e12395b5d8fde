// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package gateway

import (
	"encoding/json"

	storage "github.com/bundlenudge/bundlenudge/storage/gateway"
)

type (
	App            = storage.App
	Device         = storage.Device
	TelemetryEvent = storage.DeviceTelemetryEvent
)

// ReleaseManifest is the update-check response body. The critical config
// payloads are passed through verbatim from the release record; the SDK
// owns their shape.
type ReleaseManifest struct {
	Version           string          `json:"version"`
	BundleUrl         string          `json:"bundleUrl"`
	BundleHash        string          `json:"bundleHash"`
	Channel           string          `json:"channel,omitempty"`
	CriticalRoutes    json.RawMessage `json:"criticalRoutes,omitempty"`
	CriticalEvents    json.RawMessage `json:"criticalEvents,omitempty"`
	CriticalEndpoints json.RawMessage `json:"criticalEndpoints,omitempty"`
}

// SignedManifest wraps a manifest in a compact JWS when the server has a
// signing key configured.
type SignedManifest struct {
	Manifest string `json:"manifest"`
}
