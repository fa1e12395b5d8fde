// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package gateway

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	jose "gopkg.in/go-jose/go-jose.v2"

	"github.com/bundlenudge/bundlenudge/context"
	"github.com/bundlenudge/bundlenudge/server"
	basestorage "github.com/bundlenudge/bundlenudge/storage"
	apistorage "github.com/bundlenudge/bundlenudge/storage/api"
	storage "github.com/bundlenudge/bundlenudge/storage/gateway"
)

type testClient struct {
	t   *testing.T
	gw  *storage.Storage
	api *apistorage.Storage
	e   *echo.Echo
	log *slog.Logger

	app      *apistorage.App
	deviceId string
}

func (c testClient) Do(req *http.Request) *httptest.ResponseRecorder {
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+c.app.Token)
	if c.deviceId != "" {
		req.Header.Set(headerDeviceId, c.deviceId)
		req.Header.Set(headerSdkVersion, "1.0.0")
	}
	req = req.WithContext(context.CtxWithLog(req.Context(), c.log))
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

func (c testClient) POST(resource string, body []byte, status int) []byte {
	req := httptest.NewRequest(http.MethodPost, resource, bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := c.Do(req)
	require.Equal(c.t, status, rec.Code, rec.Body.String())
	return rec.Body.Bytes()
}

func NewTestClient(t *testing.T, tier string, signer *ManifestSigner) *testClient {
	tmpDir := t.TempDir()
	fsS, err := storage.NewFs(tmpDir)
	require.Nil(t, err)
	db, err := storage.NewDb(fsS.Config.DbFile())
	require.Nil(t, err)
	gwS, err := storage.NewStorage(db, fsS)
	require.Nil(t, err)
	apiS, err := apistorage.NewStorage(db, fsS)
	require.Nil(t, err)

	app, err := apiS.AppCreate("testapp", tier)
	require.Nil(t, err)

	log, err := context.InitLogger("debug")
	require.Nil(t, err)

	e := server.NewEchoServer()
	RegisterHandlers(e, gwS, signer)

	return &testClient{
		t:   t,
		gw:  gwS,
		api: apiS,
		e:   e,
		log: log,

		app:      app,
		deviceId: "test-device-uuid",
	}
}

func verifyJws(t *testing.T, compact string, pub ed25519.PublicKey) []byte {
	sig, err := jose.ParseSigned(compact)
	require.Nil(t, err)
	payload, err := sig.Verify(pub)
	require.Nil(t, err)
	return payload
}

func routesConfig(t *testing.T) json.RawMessage {
	routes, err := json.Marshal([]map[string]any{
		{"id": "checkout", "method": "POST", "pattern": "/api/checkout", "required": true},
	})
	require.Nil(t, err)
	return routes
}

func TestUpdateCheck(t *testing.T) {
	tc := NewTestClient(t, basestorage.TierTeam, nil)

	// No releases yet.
	tc.GET("/v1/update-check?channel=production&version=", http.StatusNoContent)

	_, err := tc.api.ReleaseCreate(tc.app.Id, "production", "2.0.0", []byte("bundle"),
		apistorage.CriticalConfig{Routes: routesConfig(t)})
	require.Nil(t, err)

	body := tc.GET("/v1/update-check?channel=production&version=1.0.0", http.StatusOK)
	var m ReleaseManifest
	require.Nil(t, json.Unmarshal(body, &m))
	require.Equal(t, "2.0.0", m.Version)
	require.NotEmpty(t, m.BundleHash)
	require.Contains(t, m.BundleUrl, "/v1/bundles/2.0.0")
	require.NotEmpty(t, m.CriticalRoutes)

	// Devices already on the release get nothing.
	tc.GET("/v1/update-check?channel=production&version=2.0.0", http.StatusNoContent)

	// The device got registered and checked in along the way.
	d, err := tc.gw.DeviceGet(tc.deviceId)
	require.Nil(t, err)
	require.NotNil(t, d)
	require.Equal(t, tc.app.Id, d.AppId)
	require.Equal(t, "2.0.0", d.CurrentVersion)
	require.Equal(t, "1.0.0", d.SdkVersion)
}

func TestUpdateCheckFreeTier(t *testing.T) {
	tc := NewTestClient(t, basestorage.TierFree, nil)

	_, err := tc.api.ReleaseCreate(tc.app.Id, "production", "2.0.0", []byte("bundle"),
		apistorage.CriticalConfig{Routes: routesConfig(t)})
	require.Nil(t, err)

	body := tc.GET("/v1/update-check?version=1.0.0", http.StatusOK)
	var m ReleaseManifest
	require.Nil(t, json.Unmarshal(body, &m))
	require.Equal(t, "2.0.0", m.Version)
	require.Empty(t, m.CriticalRoutes)
}

func TestUpdateCheckSigned(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.Nil(t, err)

	tmpDir := t.TempDir()
	fsS, err := storage.NewFs(tmpDir)
	require.Nil(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	require.Nil(t, err)
	keyPem := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	require.Nil(t, fsS.Auth.WriteFile(storage.SigningKeyFile, string(keyPem)))

	signer, err := NewManifestSigner(fsS)
	require.Nil(t, err)
	require.NotNil(t, signer)

	tc := NewTestClient(t, basestorage.TierEnterprise, signer)
	_, err = tc.api.ReleaseCreate(tc.app.Id, "production", "2.0.0", []byte("bundle"), apistorage.CriticalConfig{})
	require.Nil(t, err)

	body := tc.GET("/v1/update-check?version=1.0.0", http.StatusOK)
	var envelope SignedManifest
	require.Nil(t, json.Unmarshal(body, &envelope))
	require.NotEmpty(t, envelope.Manifest)

	// Devices verify the JWS against the distributed public key.
	payload := verifyJws(t, envelope.Manifest, pub)
	var m ReleaseManifest
	require.Nil(t, json.Unmarshal(payload, &m))
	require.Equal(t, "2.0.0", m.Version)
}

func TestBundleDownload(t *testing.T) {
	tc := NewTestClient(t, basestorage.TierFree, nil)

	_, err := tc.api.ReleaseCreate(tc.app.Id, "production", "2.0.0", []byte("bundle bytes"), apistorage.CriticalConfig{})
	require.Nil(t, err)

	body := tc.GET("/v1/bundles/2.0.0", http.StatusOK)
	require.Equal(t, []byte("bundle bytes"), body)

	tc.GET("/v1/bundles/9.9.9", http.StatusNotFound)
}

func TestTelemetryUpload(t *testing.T) {
	tc := NewTestClient(t, basestorage.TierFree, nil)

	evt := TelemetryEvent{
		DeviceId:  tc.deviceId,
		AppId:     "spoofed-app-id",
		EventType: "rollback_triggered",
		Metadata:  map[string]any{"reason": "crash_detected"},
	}
	body, err := json.Marshal(evt)
	require.Nil(t, err)
	tc.POST("/v1/telemetry", body, http.StatusOK)

	d, err := tc.api.DeviceGet(tc.deviceId)
	require.Nil(t, err)
	require.NotNil(t, d)
	stored, err := d.Telemetry()
	require.Nil(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "rollback_triggered", stored[0].EventType)
	require.Equal(t, "crash_detected", stored[0].Metadata["reason"])
	// The app id always comes from the bearer token.
	require.Equal(t, tc.app.Id, stored[0].AppId)
	require.NotEmpty(t, stored[0].DeviceTime)
}

func TestTelemetryUploadBatch(t *testing.T) {
	tc := NewTestClient(t, basestorage.TierFree, nil)

	events := []TelemetryEvent{
		{DeviceId: tc.deviceId, EventType: "update_applied"},
		{DeviceId: tc.deviceId, EventType: ""}, // dropped, not an error
		{DeviceId: "", EventType: "update_verified"},
	}
	body, err := json.Marshal(events)
	require.Nil(t, err)
	tc.POST("/v1/telemetry", body, http.StatusOK)

	d, err := tc.api.DeviceGet(tc.deviceId)
	require.Nil(t, err)
	stored, err := d.Telemetry()
	require.Nil(t, err)
	// The empty device id falls back to the device header.
	require.Len(t, stored, 2)
}

func TestAuthRejected(t *testing.T) {
	tc := NewTestClient(t, basestorage.TierFree, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/update-check", nil)
	req = req.WithContext(context.CtxWithLog(req.Context(), tc.log))
	rec := httptest.NewRecorder()
	tc.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/update-check", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer bogus-token")
	req = req.WithContext(context.CtxWithLog(req.Context(), tc.log))
	rec = httptest.NewRecorder()
	tc.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
