// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package sdk

import (
	"fmt"
	"sync"
)

// CriticalEvent is an application-lifecycle signal the host must report
// before an update counts as healthy. Immutable once a session starts.
type CriticalEvent struct {
	Name      string `json:"name"`
	Required  bool   `json:"required"`
	TimeoutMs int64  `json:"timeoutMs,omitempty"`
}

// CriticalEndpoint is an HTTP outcome the host must observe with an accepted
// status before an update counts as healthy.
type CriticalEndpoint struct {
	Method         string `json:"method"`
	URL            string `json:"url"`
	ExpectedStatus []int  `json:"expectedStatus"`
	Required       bool   `json:"required"`
}

func (e CriticalEndpoint) key() string {
	return e.Method + ":" + e.URL
}

func (e CriticalEndpoint) accepts(status int) bool {
	for _, s := range e.ExpectedStatus {
		if s == status {
			return true
		}
	}
	return false
}

// HealthMonitor tracks a fixed set of required events and endpoints across
// one verification window. The first time every required signal has passed it
// notifies the crash detector exactly once.
type HealthMonitor struct {
	mu sync.Mutex

	events    []CriticalEvent
	endpoints []CriticalEndpoint
	detector  *CrashDetector

	onAllPassed      func()
	onEndpointFailed func(CriticalEndpoint, int)

	passedEvents    map[string]bool
	passedEndpoints map[string]bool
	complete        bool
}

// NewHealthMonitor builds a monitor over an immutable signal set. A
// configuration with no required signals is vacuously satisfied and completes
// immediately.
func NewHealthMonitor(events []CriticalEvent, endpoints []CriticalEndpoint, detector *CrashDetector,
	onAllPassed func(), onEndpointFailed func(CriticalEndpoint, int)) *HealthMonitor {
	m := &HealthMonitor{
		events:           events,
		endpoints:        endpoints,
		detector:         detector,
		onAllPassed:      onAllPassed,
		onEndpointFailed: onEndpointFailed,
		passedEvents:     map[string]bool{},
		passedEndpoints:  map[string]bool{},
	}
	m.checkCompletion()
	return m
}

// ReportEvent marks a configured event as passed. Unknown names and repeated
// reports are no-ops.
func (m *HealthMonitor) ReportEvent(name string) {
	m.mu.Lock()
	known := false
	for _, e := range m.events {
		if e.Name == name {
			known = true
			break
		}
	}
	if !known || m.passedEvents[name] {
		m.mu.Unlock()
		return
	}
	m.passedEvents[name] = true
	m.mu.Unlock()

	m.checkCompletion()
}

// ReportEndpoint marks a configured endpoint as passed when status is among
// its accepted codes. A rejected status on a required endpoint surfaces
// through the failure callback; the rollback decision stays with the caller.
func (m *HealthMonitor) ReportEndpoint(method, url string, status int) {
	m.mu.Lock()
	var matched *CriticalEndpoint
	for i := range m.endpoints {
		if m.endpoints[i].Method == method && m.endpoints[i].URL == url {
			matched = &m.endpoints[i]
			break
		}
	}
	if matched == nil {
		m.mu.Unlock()
		return
	}
	if !matched.accepts(status) {
		failed := *matched
		required := matched.Required
		m.mu.Unlock()
		if required && m.onEndpointFailed != nil {
			m.onEndpointFailed(failed, status)
		}
		return
	}
	if m.passedEndpoints[matched.key()] {
		m.mu.Unlock()
		return
	}
	m.passedEndpoints[matched.key()] = true
	m.mu.Unlock()

	m.checkCompletion()
}

// checkCompletion recomputes the required set; on the first transition to
// fully-passed it fires the crash detector notification and onAllPassed.
func (m *HealthMonitor) checkCompletion() {
	m.mu.Lock()
	if m.complete {
		m.mu.Unlock()
		return
	}
	for _, e := range m.events {
		if e.Required && !m.passedEvents[e.Name] {
			m.mu.Unlock()
			return
		}
	}
	for _, e := range m.endpoints {
		if e.Required && !m.passedEndpoints[e.key()] {
			m.mu.Unlock()
			return
		}
	}
	m.complete = true
	m.mu.Unlock()

	if m.detector != nil {
		m.detector.NotifyHealthPassed()
	}
	if m.onAllPassed != nil {
		m.onAllPassed()
	}
}

// IsFullyVerified reports whether every required signal has passed.
func (m *HealthMonitor) IsFullyVerified() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.complete
}

// MissingEvents returns the required events not yet reported, for
// diagnostics.
func (m *HealthMonitor) MissingEvents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var missing []string
	for _, e := range m.events {
		if e.Required && !m.passedEvents[e.Name] {
			missing = append(missing, e.Name)
		}
	}
	return missing
}

// MissingEndpoints returns the required endpoints not yet passed as
// "METHOD:url" keys.
func (m *HealthMonitor) MissingEndpoints() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var missing []string
	for _, e := range m.endpoints {
		if e.Required && !m.passedEndpoints[e.key()] {
			missing = append(missing, e.key())
		}
	}
	return missing
}

// Reset clears the passed sets and completion flag for the next update
// cycle. An empty configuration completes again right away.
func (m *HealthMonitor) Reset() {
	m.mu.Lock()
	m.passedEvents = map[string]bool{}
	m.passedEndpoints = map[string]bool{}
	m.complete = false
	m.mu.Unlock()

	m.checkCompletion()
}

func (m *HealthMonitor) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("HealthMonitor(events=%d endpoints=%d complete=%v)",
		len(m.events), len(m.endpoints), m.complete)
}
