// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bundlenudge/bundlenudge/auth"
	"github.com/bundlenudge/bundlenudge/context"
	"github.com/bundlenudge/bundlenudge/server"
	apiStorage "github.com/bundlenudge/bundlenudge/storage/api"
	gatewayStorage "github.com/bundlenudge/bundlenudge/storage/gateway"
)

type testClient struct {
	t   *testing.T
	ctx Context
	fs  *apiStorage.FsHandle
	api *apiStorage.Storage
	gw  *gatewayStorage.Storage
	e   *echo.Echo
}

func (c testClient) Do(req *http.Request) *httptest.ResponseRecorder {
	req = req.WithContext(c.ctx)
	rec := httptest.NewRecorder()
	c.e.ServeHTTP(rec, req)
	return rec
}

func (c testClient) GET(resource string, status int) []byte {
	req := httptest.NewRequest(http.MethodGet, resource, nil)
	rec := c.Do(req)
	require.Equal(c.t, status, rec.Code, rec.Body.String())
	return rec.Body.Bytes()
}

func (c testClient) POST(resource string, status int, data any) []byte {
	req := httptest.NewRequest(http.MethodPost, resource, c.marshalBody(data))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := c.Do(req)
	require.Equal(c.t, status, rec.Code, rec.Body.String())
	return rec.Body.Bytes()
}

func (c testClient) PUT(resource string, status int, data any) []byte {
	req := httptest.NewRequest(http.MethodPut, resource, c.marshalBody(data))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := c.Do(req)
	require.Equal(c.t, status, rec.Code, rec.Body.String())
	return rec.Body.Bytes()
}

func (c testClient) marshalBody(data any) io.Reader {
	if s, ok := data.(string); ok {
		return strings.NewReader(s)
	} else if b, ok := data.([]byte); ok {
		return bytes.NewReader(b)
	} else {
		b, err := json.Marshal(data)
		require.Nil(c.t, err)
		return bytes.NewReader(b)
	}
}

func NewTestClient(t *testing.T) *testClient {
	ctx := context.Background()
	tmpDir := t.TempDir()
	fsS, err := apiStorage.NewFs(tmpDir)
	require.Nil(t, err)
	db, err := apiStorage.NewDb(filepath.Join(tmpDir, apiStorage.DbFile))
	require.Nil(t, err)
	apiS, err := apiStorage.NewStorage(db, fsS)
	require.Nil(t, err)
	gwS, err := gatewayStorage.NewStorage(db, fsS)
	require.Nil(t, err)

	log, err := context.InitLogger("debug")
	require.Nil(t, err)
	ctx = CtxWithLog(ctx, log)

	e := server.NewEchoServer()
	RegisterHandlers(e, apiS, auth.FakeAuthUser)

	return &testClient{
		t:   t,
		ctx: ctx,
		fs:  fsS,
		api: apiS,
		gw:  gwS,
		e:   e,
	}
}

func TestApiApps(t *testing.T) {
	tc := NewTestClient(t)
	tc.POST("/apps?deny-has-scope=1", 403, appCreateReq{Name: "x"})

	data := tc.GET("/apps", 200)
	require.Equal(t, "[]\n", string(data))

	data = tc.POST("/apps", 201, appCreateReq{Name: "shopping", Tier: "team"})
	var app App
	require.Nil(t, json.Unmarshal(data, &app))
	require.NotEmpty(t, app.Id)
	require.NotEmpty(t, app.Token)

	tc.POST("/apps", 400, appCreateReq{Name: ""})
	tc.POST("/apps", 400, appCreateReq{Name: "x", Tier: "platinum"})
	tc.POST("/apps", 400, "{not json")

	data = tc.GET("/apps", 200)
	var apps []App
	require.Nil(t, json.Unmarshal(data, &apps))
	require.Len(t, apps, 1)
	assert.Empty(t, apps[0].Token)
}

func TestApiDeviceList(t *testing.T) {
	tc := NewTestClient(t)
	tc.GET("/devices?deny-has-scope=1", 403)

	// No devices
	data := tc.GET("/devices", 200)
	require.Equal(t, "[]\n", string(data))

	app, err := tc.api.AppCreate("shopping", "free")
	require.Nil(t, err)

	// two devices with different last seen times
	_, err = tc.gw.DeviceCreate("test-device-1", app.Id, "production", "1.0.0")
	require.Nil(t, err)
	time.Sleep(1 * time.Second)
	_, err = tc.gw.DeviceCreate("test-device-2", app.Id, "production", "1.0.0")
	require.Nil(t, err)

	data = tc.GET("/devices", 200)
	var devices []apiStorage.DeviceListItem
	require.Nil(t, json.Unmarshal(data, &devices))
	require.Len(t, devices, 2)
	assert.Equal(t, "test-device-2", devices[0].Uuid)
	assert.Equal(t, "test-device-1", devices[1].Uuid)

	// test sorting
	data = tc.GET("/devices?order-by=last-seen-asc", 200)
	require.Nil(t, json.Unmarshal(data, &devices))
	assert.Equal(t, "test-device-1", devices[0].Uuid)
	assert.Equal(t, "test-device-2", devices[1].Uuid)
}

func TestApiDeviceGet(t *testing.T) {
	tc := NewTestClient(t)
	tc.GET("/devices/foo?deny-has-scope=1", 403)

	_ = tc.GET("/devices/does-not-exist", 404)

	app, err := tc.api.AppCreate("shopping", "free")
	require.Nil(t, err)
	_, err = tc.gw.DeviceCreate("test-device-1", app.Id, "production", "1.0.0")
	require.Nil(t, err)

	data := tc.GET("/devices/test-device-1", 200)
	var device Device
	require.Nil(t, json.Unmarshal(data, &device))
	require.Equal(t, app.Id, device.AppId)
}

func TestApiDeviceTelemetry(t *testing.T) {
	tc := NewTestClient(t)
	tc.GET("/devices/foo/telemetry?deny-has-scope=1", 403)
	tc.GET("/devices/does-not-exist/telemetry", 404)

	app, err := tc.api.AppCreate("shopping", "free")
	require.Nil(t, err)
	d, err := tc.gw.DeviceCreate("test-device-1", app.Id, "production", "1.0.0")
	require.Nil(t, err)

	data := tc.GET("/devices/test-device-1/telemetry", 200)
	require.Equal(t, "[]\n", string(data))

	require.Nil(t, d.SaveTelemetry([]gatewayStorage.DeviceTelemetryEvent{
		{DeviceId: "test-device-1", AppId: app.Id, EventType: "update_applied"},
	}))

	data = tc.GET("/devices/test-device-1/telemetry", 200)
	var events []apiStorage.DeviceTelemetryEvent
	require.Nil(t, json.Unmarshal(data, &events))
	require.Len(t, events, 1)
	require.Equal(t, "update_applied", events[0].EventType)
}

func TestApiReleases(t *testing.T) {
	tc := NewTestClient(t)

	app, err := tc.api.AppCreate("shopping", "team")
	require.Nil(t, err)

	base := "/apps/" + app.Id + "/releases"
	tc.GET(base+"?deny-has-scope=1", 403)

	data := tc.GET(base, 200)
	require.Equal(t, "[]\n", string(data))

	routes, err := json.Marshal([]map[string]any{
		{"id": "checkout", "method": "POST", "pattern": "/api/checkout", "required": true},
	})
	require.Nil(t, err)

	req := releaseCreateReq{
		Channel:        "production",
		Version:        "2.0.0",
		Bundle:         []byte("bundle bytes"),
		CriticalConfig: apiStorage.CriticalConfig{Routes: routes},
	}
	data = tc.POST(base, 201, req)
	var release Release
	require.Nil(t, json.Unmarshal(data, &release))
	require.Equal(t, "2.0.0", release.Version)
	require.NotEmpty(t, release.BundleHash)

	// Republishing the same version conflicts.
	tc.POST(base, 409, req)

	tc.POST(base, 400, releaseCreateReq{Version: "3.0.0"})

	data = tc.GET(base+"?channel=production", 200)
	var releases []Release
	require.Nil(t, json.Unmarshal(data, &releases))
	require.Len(t, releases, 1)
	require.NotEmpty(t, releases[0].CriticalConfig.Routes)

	tc.PUT(base+"/production/2.0.0", 200, releaseUpdateReq{Enabled: false})
	data = tc.GET(base, 200)
	require.Nil(t, json.Unmarshal(data, &releases))
	require.False(t, releases[0].Enabled)
}
