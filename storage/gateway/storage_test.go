// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package gateway

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bundlenudge/bundlenudge/storage"
	"github.com/bundlenudge/bundlenudge/storage/api"
)

func testStorages(t *testing.T) (*Storage, *api.Storage) {
	tmpdir := t.TempDir()
	db, err := storage.NewDb(filepath.Join(tmpdir, "sql.db"))
	require.Nil(t, err)
	t.Cleanup(func() {
		require.Nil(t, db.Close())
	})
	fs, err := storage.NewFs(tmpdir)
	require.Nil(t, err)

	s, err := NewStorage(db, fs)
	require.Nil(t, err)
	apiStorage, err := api.NewStorage(db, fs)
	require.Nil(t, err)
	return s, apiStorage
}

func TestStorageDevices(t *testing.T) {
	s, apiStorage := testStorages(t)

	app, err := apiStorage.AppCreate("shopping", storage.TierTeam)
	require.Nil(t, err)

	d, err := s.DeviceGet("does not exist")
	require.Nil(t, err)
	require.Nil(t, d)

	uuid := "1234-567-890"
	d, err = s.DeviceCreate(uuid, app.Id, "production", "1.4.0")
	require.Nil(t, err)

	d2, err := s.DeviceGet(uuid)
	require.Nil(t, err)
	require.Equal(t, d.AppId, d2.AppId)
	require.Equal(t, d.Channel, d2.Channel)
	require.Equal(t, d.SdkVersion, d2.SdkVersion)

	time.Sleep(time.Second)
	require.Nil(t, d2.CheckIn("production", "2.0.0", "1.9.0", "1.4.0"))
	d2, err = s.DeviceGet(uuid)
	require.Nil(t, err)
	require.Less(t, d.LastSeen, d2.LastSeen)
	require.Equal(t, "2.0.0", d2.CurrentVersion)
	require.Equal(t, "1.9.0", d2.PreviousVersion)

	// Unchanged fields inside the check-in window skip the database.
	lastSeen := d2.LastSeen
	require.Nil(t, d2.CheckIn("production", "2.0.0", "1.9.0", "1.4.0"))
	d3, err := s.DeviceGet(uuid)
	require.Nil(t, err)
	require.Equal(t, lastSeen, d3.LastSeen)
}

func TestStorageAppToken(t *testing.T) {
	s, apiStorage := testStorages(t)

	app, err := apiStorage.AppCreate("shopping", storage.TierFree)
	require.Nil(t, err)
	require.NotEmpty(t, app.Token)

	found, err := s.AppGetByToken(app.Token)
	require.Nil(t, err)
	require.NotNil(t, found)
	require.Equal(t, app.Id, found.Id)
	require.Equal(t, storage.TierFree, found.Tier)

	missing, err := s.AppGetByToken("not-a-token")
	require.Nil(t, err)
	require.Nil(t, missing)
}

func TestStorageReleases(t *testing.T) {
	s, apiStorage := testStorages(t)

	app, err := apiStorage.AppCreate("shopping", storage.TierEnterprise)
	require.Nil(t, err)

	r, err := s.ReleaseLatest(app.Id, "production")
	require.Nil(t, err)
	require.Nil(t, r)

	routes, err := json.Marshal([]map[string]any{
		{"id": "checkout", "method": "POST", "pattern": "/api/checkout", "required": true},
	})
	require.Nil(t, err)

	_, err = apiStorage.ReleaseCreate(app.Id, "production", "1.0.0", []byte("bundle-one"), api.CriticalConfig{})
	require.Nil(t, err)
	r2, err := apiStorage.ReleaseCreate(app.Id, "production", "2.0.0", []byte("bundle-two"), api.CriticalConfig{Routes: routes})
	require.Nil(t, err)

	r, err = s.ReleaseLatest(app.Id, "production")
	require.Nil(t, err)
	require.NotNil(t, r)
	require.Equal(t, "2.0.0", r.Version)
	require.Equal(t, r2.BundleHash, r.BundleHash)
	require.NotEmpty(t, r.CriticalConfig.Routes)

	bundle, err := s.ReadBundle(app.Id, "2.0.0")
	require.Nil(t, err)
	require.Equal(t, []byte("bundle-two"), bundle)

	// Disabled releases are never served.
	require.Nil(t, apiStorage.ReleaseSetEnabled(app.Id, "production", "2.0.0", false))
	r, err = s.ReleaseLatest(app.Id, "production")
	require.Nil(t, err)
	require.Equal(t, "1.0.0", r.Version)

	r, err = s.ReleaseGet(app.Id, "production", "2.0.0")
	require.Nil(t, err)
	require.NotNil(t, r)
	r, err = s.ReleaseGet(app.Id, "production", "9.9.9")
	require.Nil(t, err)
	require.Nil(t, r)
}

func TestStorageTelemetry(t *testing.T) {
	s, apiStorage := testStorages(t)

	app, err := apiStorage.AppCreate("shopping", storage.TierFree)
	require.Nil(t, err)
	d, err := s.DeviceCreate("dev-1", app.Id, "production", "1.4.0")
	require.Nil(t, err)

	events := []DeviceTelemetryEvent{
		{DeviceId: "dev-1", AppId: app.Id, EventType: "update_applied", Metadata: map[string]any{"version": "2.0.0"}},
		{DeviceId: "dev-1", AppId: app.Id, EventType: "update_verified"},
	}
	require.Nil(t, d.SaveTelemetry(events))

	apiDevice, err := apiStorage.DeviceGet("dev-1")
	require.Nil(t, err)
	stored, err := apiDevice.Telemetry()
	require.Nil(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, "update_applied", stored[0].EventType)
	require.Equal(t, "2.0.0", stored[0].Metadata["version"])
}
