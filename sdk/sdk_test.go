// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package sdk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type sdkFixture struct {
	t      *testing.T
	client *Client
	host   *fakeHost
	srv    *httptest.Server

	mu           sync.Mutex
	verified     int
	rollbacks    []string
	routeResults []string
	telemetry    []TelemetryEvent
}

func newSdkFixture(t *testing.T, routes []CriticalRoute, events []CriticalEvent) *sdkFixture {
	f := &sdkFixture{t: t, host: &fakeHost{}}

	bundle := []byte("console.log('v2')")
	sum := sha256.Sum256(bundle)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/update-check", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ReleaseManifest{
			Version:        "2.0.0",
			BundleUrl:      f.srv.URL + "/bundles/2.0.0",
			BundleHash:     hex.EncodeToString(sum[:]),
			CriticalRoutes: routes,
		})
	})
	mux.HandleFunc("/bundles/2.0.0", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bundle)
	})
	mux.HandleFunc("/v1/telemetry", func(w http.ResponseWriter, r *http.Request) {
		var evt TelemetryEvent
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.telemetry = append(f.telemetry, evt)
		f.mu.Unlock()
	})
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/api/broken/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	c, err := New(Config{
		ServerURL:      f.srv.URL,
		AppId:          "app-1",
		Channel:        "production",
		DataDir:        t.TempDir(),
		Host:           f.host,
		HTTPClient:     f.srv.Client(),
		Events:         events,
		CrashWindow:    time.Minute,
		CrashThreshold: 3,
		RouteTimeout:   time.Minute,
		Callbacks: Callbacks{
			OnVerified: func() {
				f.mu.Lock()
				f.verified++
				f.mu.Unlock()
			},
			OnRollback: func(reason RollbackReason, from string) {
				f.mu.Lock()
				f.rollbacks = append(f.rollbacks, string(reason)+":"+from)
				f.mu.Unlock()
			},
			OnRouteResult: func(routeId string, success bool, statusCode int) {
				f.mu.Lock()
				f.routeResults = append(f.routeResults, fmt.Sprintf("%s:%v:%d", routeId, success, statusCode))
				f.mu.Unlock()
			},
		},
	})
	require.Nil(t, err)
	t.Cleanup(c.Close)
	f.client = c
	return f
}

func (f *sdkFixture) downloadUpdate() {
	m, err := f.client.CheckForUpdate(context.Background())
	require.Nil(f.t, err)
	require.NotNil(f.t, m)
	_, err = f.client.DownloadUpdate(context.Background(), m)
	require.Nil(f.t, err)
}

func (f *sdkFixture) counts() (int, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verified, append([]string{}, f.rollbacks...)
}

func TestClientUpdateVerifiedLifecycle(t *testing.T) {
	f := newSdkFixture(t,
		[]CriticalRoute{{Id: "me", Method: "GET", Pattern: "**/api/me", Required: true}},
		[]CriticalEvent{{Name: "app_loaded", Required: true}})

	f.downloadUpdate()
	require.True(t, f.client.Metadata().PendingUpdate)

	// Boot on the new bundle: pending applies and the window opens
	require.Nil(t, f.client.Initialize())
	md := f.client.Metadata()
	require.Equal(t, "2.0.0", md.CurrentVersion)
	require.Empty(t, md.PreviousVersion) // first install had no current version
	require.False(t, md.PendingUpdate)

	// Health barrier: required event plus app-ready
	f.client.ReportEvent("app_loaded")
	f.client.NotifyAppReady()

	// Route barrier: the critical route succeeds through the wrapped client
	verified, _ := f.counts()
	require.Equal(t, 0, verified)
	_, err := f.srv.Client().Get(f.srv.URL + "/api/me")
	require.Nil(t, err)

	require.Eventually(t, func() bool {
		verified, _ := f.counts()
		return verified == 1
	}, time.Second, 5*time.Millisecond)

	md = f.client.Metadata()
	require.Equal(t, VerificationVerified, md.VerificationState)
	require.Empty(t, md.PreviousVersion)
}

func TestClientRouteFailureRollsBack(t *testing.T) {
	f := newSdkFixture(t,
		[]CriticalRoute{{Id: "broken", Method: "GET", Pattern: "**/api/broken", Required: true}},
		nil)

	// Seed version 1.0.0 so there is something to roll back to
	require.Nil(t, f.client.store.SetPending("1.0.0", "hash-1"))
	_, err := f.client.store.Apply()
	require.Nil(t, err)

	// The fixture mux only knows /api/; register a failing route
	f.downloadUpdate()
	require.Nil(t, f.client.Initialize())
	require.Equal(t, "2.0.0", f.client.Metadata().CurrentVersion)

	resp, err := f.srv.Client().Get(f.srv.URL + "/api/broken/404")
	require.Nil(t, err)
	_ = resp.Body.Close()

	// 404 is outside [200,300): immediate rollback to 1.0.0
	require.Eventually(t, func() bool {
		_, rollbacks := f.counts()
		return len(rollbacks) == 1
	}, time.Second, 5*time.Millisecond)

	_, rollbacks := f.counts()
	require.Equal(t, []string{"route_failure:2.0.0"}, rollbacks)
	md := f.client.Metadata()
	require.Equal(t, "1.0.0", md.CurrentVersion)
	require.Equal(t, []bool{false}, f.host.restarts)

	verified, _ := f.counts()
	require.Equal(t, 0, verified)
}

func TestClientCrashThresholdRollsBack(t *testing.T) {
	f := newSdkFixture(t, nil, []CriticalEvent{{Name: "app_loaded", Required: true}})

	require.Nil(t, f.client.store.SetPending("1.0.0", "hash-1"))
	_, err := f.client.store.Apply()
	require.Nil(t, err)

	f.downloadUpdate()
	require.Nil(t, f.client.Initialize())
	require.Equal(t, "2.0.0", f.client.Metadata().CurrentVersion)

	// Crash-restart loop: the third abnormal boot breaches the threshold
	f.host.crashed = true
	require.Nil(t, f.client.Initialize())
	require.Nil(t, f.client.Initialize())
	require.Equal(t, "2.0.0", f.client.Metadata().CurrentVersion)
	require.Nil(t, f.client.Initialize())

	_, rollbacks := f.counts()
	require.Equal(t, []string{"crash_detected:2.0.0"}, rollbacks)
	require.Equal(t, "1.0.0", f.client.Metadata().CurrentVersion)
	require.Equal(t, []bool{false}, f.host.restarts)
}

func TestClientManualRollbackRequiresPrevious(t *testing.T) {
	f := newSdkFixture(t, nil, nil)
	require.False(t, f.client.CanRollback())
	require.ErrorIs(t, f.client.Rollback(RollbackManual), ErrNoPreviousVersion)
}

func TestClientRouteResultTelemetry(t *testing.T) {
	f := newSdkFixture(t,
		[]CriticalRoute{{Id: "me", Method: "GET", Pattern: "**/api/me", Required: true}},
		nil)

	f.downloadUpdate()
	require.Nil(t, f.client.Initialize())

	resp, err := f.srv.Client().Get(f.srv.URL + "/api/me")
	require.Nil(t, err)
	_ = resp.Body.Close()

	// The observation is reported to the server and to the host callback
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, evt := range f.telemetry {
			if evt.EventType == EventRouteResult {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Equal(t, []string{"me:true:200"}, f.routeResults)
	var evt TelemetryEvent
	for _, e := range f.telemetry {
		if e.EventType == EventRouteResult {
			evt = e
		}
	}
	require.Equal(t, "me", evt.Metadata["route"])
	require.Equal(t, true, evt.Metadata["success"])
	require.Equal(t, float64(200), evt.Metadata["status"])
}

func TestClientRollbackFailureDoesNotLatch(t *testing.T) {
	f := newSdkFixture(t, nil, nil)

	// Every failed attempt fails loudly; a failure never makes later calls
	// report success
	require.ErrorIs(t, f.client.Rollback(RollbackManual), ErrNoPreviousVersion)
	require.ErrorIs(t, f.client.Rollback(RollbackCrashDetected), ErrNoPreviousVersion)

	// Once a previous version exists the retry goes through
	require.Nil(t, f.client.store.SetPending("1.0.0", "hash-1"))
	_, err := f.client.store.Apply()
	require.Nil(t, err)
	require.Nil(t, f.client.store.SetPending("2.0.0", "hash-2"))
	_, err = f.client.store.Apply()
	require.Nil(t, err)

	require.Nil(t, f.client.Rollback(RollbackManual))
	require.Equal(t, "1.0.0", f.client.Metadata().CurrentVersion)

	// Now the latch holds: no double swap back to 2.0.0
	require.Nil(t, f.client.Rollback(RollbackManual))
	require.Equal(t, "1.0.0", f.client.Metadata().CurrentVersion)
	_, rollbacks := f.counts()
	require.Equal(t, []string{"manual:2.0.0"}, rollbacks)
}
