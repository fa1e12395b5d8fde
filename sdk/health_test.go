// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package sdk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newHealthFixture(t *testing.T, events []CriticalEvent, endpoints []CriticalEndpoint) (*HealthMonitor, *CrashDetector, *int) {
	d, _ := newTestDetector(t, time.Minute, 3)
	require.Nil(t, d.StartVerificationWindow())
	allPassed := 0
	m := NewHealthMonitor(events, endpoints, d, func() { allPassed++ }, nil)
	return m, d, &allPassed
}

func TestHealthMonitorSingleEvent(t *testing.T) {
	m, d, allPassed := newHealthFixture(t,
		[]CriticalEvent{{Name: "app_loaded", Required: true}}, nil)

	require.False(t, m.IsFullyVerified())
	require.Equal(t, []string{"app_loaded"}, m.MissingEvents())

	m.ReportEvent("app_loaded")
	require.True(t, m.IsFullyVerified())
	require.Empty(t, m.MissingEvents())
	require.Equal(t, 1, *allPassed)
	// health passed moved the detector to its intermediate state
	require.Equal(t, crashWaitingReady, d.state)
}

func TestHealthMonitorIdempotence(t *testing.T) {
	m, d, allPassed := newHealthFixture(t,
		[]CriticalEvent{{Name: "app_loaded", Required: true}}, nil)

	m.ReportEvent("app_loaded")
	m.ReportEvent("app_loaded")
	m.ReportEvent("app_loaded")
	require.Equal(t, 1, *allPassed)
	require.Equal(t, crashWaitingReady, d.state)
	require.True(t, m.IsFullyVerified())
}

func TestHealthMonitorUnknownSignalsAreNoOps(t *testing.T) {
	m, _, allPassed := newHealthFixture(t,
		[]CriticalEvent{{Name: "app_loaded", Required: true}},
		[]CriticalEndpoint{{Method: "GET", URL: "/api/me", ExpectedStatus: []int{200}, Required: true}})

	m.ReportEvent("never_configured")
	m.ReportEndpoint("POST", "/api/me", 200)
	m.ReportEndpoint("GET", "/api/other", 200)
	require.False(t, m.IsFullyVerified())
	require.Equal(t, 0, *allPassed)
	require.Equal(t, []string{"app_loaded"}, m.MissingEvents())
	require.Equal(t, []string{"GET:/api/me"}, m.MissingEndpoints())
}

func TestHealthMonitorEndpointStatus(t *testing.T) {
	var failedEndpoint CriticalEndpoint
	failedStatus := 0
	d, _ := newTestDetector(t, time.Minute, 3)
	require.Nil(t, d.StartVerificationWindow())
	m := NewHealthMonitor(nil,
		[]CriticalEndpoint{{Method: "GET", URL: "/api/me", ExpectedStatus: []int{200, 204}, Required: true}},
		d, nil, func(e CriticalEndpoint, status int) {
			failedEndpoint = e
			failedStatus = status
		})

	// A rejected status surfaces via the callback but does not complete or
	// regress anything
	m.ReportEndpoint("GET", "/api/me", 500)
	require.False(t, m.IsFullyVerified())
	require.Equal(t, "/api/me", failedEndpoint.URL)
	require.Equal(t, 500, failedStatus)

	m.ReportEndpoint("GET", "/api/me", 204)
	require.True(t, m.IsFullyVerified())
}

func TestHealthMonitorMixedRequirements(t *testing.T) {
	m, _, allPassed := newHealthFixture(t,
		[]CriticalEvent{
			{Name: "app_loaded", Required: true},
			{Name: "nice_to_have", Required: false},
		},
		[]CriticalEndpoint{{Method: "GET", URL: "/api/me", ExpectedStatus: []int{200}, Required: true}})

	// Optional signals do not gate completion
	m.ReportEvent("app_loaded")
	require.False(t, m.IsFullyVerified())
	m.ReportEndpoint("GET", "/api/me", 200)
	require.True(t, m.IsFullyVerified())
	require.Equal(t, 1, *allPassed)

	// Reports after completion stay silent
	m.ReportEvent("nice_to_have")
	require.Equal(t, 1, *allPassed)
}

func TestHealthMonitorEmptyConfigVacuouslyVerified(t *testing.T) {
	m, d, allPassed := newHealthFixture(t, nil, nil)
	require.True(t, m.IsFullyVerified())
	require.Equal(t, 1, *allPassed)
	require.Equal(t, crashWaitingReady, d.state)
	require.Empty(t, m.MissingEvents())
	require.Empty(t, m.MissingEndpoints())
}

func TestHealthMonitorReset(t *testing.T) {
	m, _, allPassed := newHealthFixture(t,
		[]CriticalEvent{{Name: "app_loaded", Required: true}}, nil)

	m.ReportEvent("app_loaded")
	require.True(t, m.IsFullyVerified())

	m.Reset()
	require.False(t, m.IsFullyVerified())
	require.Equal(t, []string{"app_loaded"}, m.MissingEvents())

	m.ReportEvent("app_loaded")
	require.True(t, m.IsFullyVerified())
	require.Equal(t, 2, *allPassed)
}
