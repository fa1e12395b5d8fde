// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package storage

import "encoding/json"

// DeviceTelemetryEvent is a telemetry record a device posts to the gateway.
type DeviceTelemetryEvent struct {
	DeviceId   string         `json:"deviceId"`
	AppId      string         `json:"appId"`
	EventType  string         `json:"eventType"`
	DeviceTime string         `json:"deviceTime,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// App tiers. The route-monitor verification config is only served to paid
// tiers.
const (
	TierFree       = "free"
	TierTeam       = "team"
	TierEnterprise = "enterprise"
)

// CriticalConfig is the per-release verification config stored with a
// release. The payloads are kept opaque here; the SDK owns their shape.
type CriticalConfig struct {
	Routes    json.RawMessage `json:"routes,omitempty"`
	Events    json.RawMessage `json:"events,omitempty"`
	Endpoints json.RawMessage `json:"endpoints,omitempty"`
}
