// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package sdk

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type routeRecorder struct {
	mu       sync.Mutex
	verified int
	failed   []CriticalRoute
	results  []string
}

func (r *routeRecorder) onVerified() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verified++
}

func (r *routeRecorder) onFailed(route CriticalRoute, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, route)
}

func (r *routeRecorder) onResult(id string, success bool, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	suffix := "ok"
	if !success {
		suffix = "fail"
	}
	r.results = append(r.results, id+":"+suffix)
}

func (r *routeRecorder) snapshot() (int, []CriticalRoute, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.verified, append([]CriticalRoute{}, r.failed...), append([]string{}, r.results...)
}

func newRouteServer(t *testing.T, statuses map[string]int) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, ok := statuses[r.URL.Path]
		if !ok {
			status = http.StatusOK
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRouteMonitorAllRequiredPass(t *testing.T) {
	srv := newRouteServer(t, nil)
	client := srv.Client()
	rec := &routeRecorder{}

	m, err := NewRouteMonitor(client, []CriticalRoute{
		{Id: "a", Method: "GET", Pattern: srv.URL + "/api/a", Required: true},
		{Id: "b", Method: "*", Pattern: srv.URL + "/api/b/*", Required: true},
	}, time.Minute, rec.onVerified, rec.onFailed, rec.onResult)
	require.Nil(t, err)
	m.Start()

	_, err = client.Get(srv.URL + "/api/a")
	require.Nil(t, err)
	verified, _, _ := rec.snapshot()
	require.Equal(t, 0, verified)

	_, err = client.Post(srv.URL+"/api/b/submit", "application/json", nil)
	require.Nil(t, err)

	verified, failed, results := rec.snapshot()
	require.Equal(t, 1, verified)
	require.Empty(t, failed)
	require.Equal(t, []string{"a:ok", "b:ok"}, results)
}

func TestRouteMonitorRequiredFailureShortCircuits(t *testing.T) {
	srv := newRouteServer(t, map[string]int{"/api/b": http.StatusInternalServerError})
	client := srv.Client()
	rec := &routeRecorder{}

	m, err := NewRouteMonitor(client, []CriticalRoute{
		{Id: "a", Method: "GET", Pattern: srv.URL + "/api/a", Required: true},
		{Id: "b", Method: "GET", Pattern: srv.URL + "/api/b", Required: true},
	}, time.Minute, rec.onVerified, rec.onFailed, rec.onResult)
	require.Nil(t, err)
	m.Start()

	_, err = client.Get(srv.URL + "/api/a")
	require.Nil(t, err)
	_, err = client.Get(srv.URL + "/api/b")
	require.Nil(t, err)

	verified, failed, _ := rec.snapshot()
	require.Equal(t, 0, verified)
	require.Len(t, failed, 1)
	require.Equal(t, "b", failed[0].Id)

	// The transport is already detached; later calls are invisible and no
	// "all passed" can fire after the failure
	_, err = client.Get(srv.URL + "/api/a")
	require.Nil(t, err)
	verified, failed, _ = rec.snapshot()
	require.Equal(t, 0, verified)
	require.Len(t, failed, 1)
}

func TestRouteMonitorTimeoutWithoutTrafficIsSuccess(t *testing.T) {
	srv := newRouteServer(t, nil)
	client := srv.Client()
	rec := &routeRecorder{}

	m, err := NewRouteMonitor(client, []CriticalRoute{
		{Id: "a", Method: "GET", Pattern: srv.URL + "/api/a", Required: true},
		{Id: "b", Method: "GET", Pattern: srv.URL + "/api/b", Required: true},
	}, 30*time.Millisecond, rec.onVerified, rec.onFailed, rec.onResult)
	require.Nil(t, err)
	m.Start()

	verified, _, _ := rec.snapshot()
	require.Equal(t, 0, verified)

	require.Eventually(t, func() bool {
		verified, failed, _ := rec.snapshot()
		return verified == 1 && len(failed) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestRouteMonitorTimeoutWithRecordedFailure(t *testing.T) {
	srv := newRouteServer(t, map[string]int{"/api/b": http.StatusBadGateway})
	client := srv.Client()
	rec := &routeRecorder{}

	m, err := NewRouteMonitor(client, []CriticalRoute{
		{Id: "a", Method: "GET", Pattern: srv.URL + "/api/a", Required: true},
		{Id: "b", Method: "GET", Pattern: srv.URL + "/api/b", Required: false},
	}, 30*time.Millisecond, rec.onVerified, rec.onFailed, rec.onResult)
	require.Nil(t, err)
	m.Start()

	// An optional route failing does not short-circuit...
	_, err = client.Get(srv.URL + "/api/b")
	require.Nil(t, err)
	verified, failed, _ := rec.snapshot()
	require.Equal(t, 0, verified)
	require.Empty(t, failed)

	// ...but it does poison the window at timeout
	require.Eventually(t, func() bool {
		verified, failed, _ := rec.snapshot()
		return verified == 0 && len(failed) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRouteMonitorStopRestoresTransport(t *testing.T) {
	srv := newRouteServer(t, nil)
	client := srv.Client()
	base := client.Transport
	rec := &routeRecorder{}

	m, err := NewRouteMonitor(client, []CriticalRoute{
		{Id: "a", Method: "GET", Pattern: srv.URL + "/api/a", Required: true},
	}, time.Minute, rec.onVerified, rec.onFailed, rec.onResult)
	require.Nil(t, err)

	m.Start()
	require.NotEqual(t, base, client.Transport)

	m.Stop()
	require.Equal(t, base, client.Transport)

	// Stop is idempotent and a stopped monitor cannot be restarted
	m.Stop()
	m.Start()
	require.Equal(t, base, client.Transport)

	verified, failed, _ := rec.snapshot()
	require.Equal(t, 0, verified)
	require.Empty(t, failed)
}

func TestGlobToRegexp(t *testing.T) {
	re, err := globToRegexp("https://api.example.com/v1/users/*")
	require.Nil(t, err)
	require.True(t, re.MatchString("https://api.example.com/v1/users/42"))
	require.False(t, re.MatchString("https://api.example.com/v1/users/42/posts"))

	re, err = globToRegexp("https://api.example.com/v1/**")
	require.Nil(t, err)
	require.True(t, re.MatchString("https://api.example.com/v1/users/42/posts"))
}
