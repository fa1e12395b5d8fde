// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package sdk

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"
)

const DefaultRouteTimeout = 5 * time.Minute

// CriticalRoute declares an outgoing HTTP call that must succeed at least
// once during the verification window. Method "*" matches any method; the
// pattern supports "*" glob segments.
type CriticalRoute struct {
	Id       string `json:"id"`
	Method   string `json:"method"`
	Pattern  string `json:"pattern"`
	Required bool   `json:"required"`
}

type compiledRoute struct {
	CriticalRoute
	re *regexp.Regexp
}

// RouteMonitor wraps an http.Client's transport at Start and classifies
// every request matching a critical route. It never touches global state;
// Stop restores the original transport synchronously.
type RouteMonitor struct {
	mu sync.Mutex

	client  *http.Client
	routes  []compiledRoute
	timeout time.Duration

	onVerified    func()
	onFailed      func(CriticalRoute, int)
	onRouteResult func(routeId string, success bool, status int)

	base      http.RoundTripper
	installed bool
	timer     *time.Timer
	succeeded map[string]bool
	failed    *compiledRoute
	failedAt  int
	done      bool
}

// NewRouteMonitor compiles the route patterns up front so a bad glob fails
// at configuration time, not mid-window.
func NewRouteMonitor(client *http.Client, routes []CriticalRoute, timeout time.Duration,
	onVerified func(), onFailed func(CriticalRoute, int),
	onRouteResult func(string, bool, int)) (*RouteMonitor, error) {
	if timeout <= 0 {
		timeout = DefaultRouteTimeout
	}
	m := &RouteMonitor{
		client:        client,
		timeout:       timeout,
		onVerified:    onVerified,
		onFailed:      onFailed,
		onRouteResult: onRouteResult,
		succeeded:     map[string]bool{},
	}
	for _, r := range routes {
		re, err := globToRegexp(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid route pattern %q: %w", r.Pattern, err)
		}
		m.routes = append(m.routes, compiledRoute{CriticalRoute: r, re: re})
	}
	return m, nil
}

// Start installs the interception transport and arms the window timer.
func (m *RouteMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.installed || m.done {
		return
	}
	m.base = m.client.Transport
	if m.base == nil {
		m.base = http.DefaultTransport
	}
	m.client.Transport = &routeTripper{monitor: m, base: m.base}
	m.installed = true
	m.timer = time.AfterFunc(m.timeout, m.expire)
}

// Stop detaches the transport and cancels the timer. Idempotent and safe to
// call at any point in the window.
func (m *RouteMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detachLocked()
	m.done = true
}

func (m *RouteMonitor) detachLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.installed {
		m.client.Transport = m.base
		m.installed = false
	}
}

type routeTripper struct {
	monitor *RouteMonitor
	base    http.RoundTripper
}

func (t *routeTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	t.monitor.observe(req.Method, req.URL.String(), status, err)
	return resp, err
}

// observe classifies one intercepted call. A failure on a required route
// short-circuits the whole window; the completion flag is checked first so a
// late response can never race a rollback that already fired.
func (m *RouteMonitor) observe(method, url string, status int, reqErr error) {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return
	}
	route := m.matchLocked(method, url)
	if route == nil {
		m.mu.Unlock()
		return
	}

	success := reqErr == nil && status >= 200 && status < 300
	resultCb := m.onRouteResult
	if !success {
		if m.failed == nil {
			failed := *route
			m.failed = &failed
			m.failedAt = status
		}
		if route.Required {
			// Immediate rollback; nothing else in this window matters.
			m.done = true
			m.detachLocked()
			failed := route.CriticalRoute
			failCb := m.onFailed
			m.mu.Unlock()
			if resultCb != nil {
				resultCb(route.Id, false, status)
			}
			if failCb != nil {
				failCb(failed, status)
			}
			return
		}
		m.mu.Unlock()
		if resultCb != nil {
			resultCb(route.Id, false, status)
		}
		return
	}

	m.succeeded[route.Id] = true
	allPassed := true
	for _, r := range m.routes {
		if r.Required && !m.succeeded[r.Id] {
			allPassed = false
			break
		}
	}
	var verifiedCb func()
	if allPassed {
		// Verified as soon as the last required route lands; the timer
		// is not waited out.
		m.done = true
		m.detachLocked()
		verifiedCb = m.onVerified
	}
	m.mu.Unlock()

	if resultCb != nil {
		resultCb(route.Id, true, status)
	}
	if verifiedCb != nil {
		verifiedCb()
	}
}

// expire resolves the window at timeout. A recorded failure rolls back;
// routes that were simply never exercised count as safe.
func (m *RouteMonitor) expire() {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return
	}
	m.done = true
	m.detachLocked()
	failed := m.failed
	failedAt := m.failedAt
	verifiedCb := m.onVerified
	failCb := m.onFailed
	m.mu.Unlock()

	if failed != nil {
		if failCb != nil {
			failCb(failed.CriticalRoute, failedAt)
		}
		return
	}
	if verifiedCb != nil {
		verifiedCb()
	}
}

func (m *RouteMonitor) matchLocked(method, url string) *compiledRoute {
	for i := range m.routes {
		r := &m.routes[i]
		if r.Method != "*" && !strings.EqualFold(r.Method, method) {
			continue
		}
		if r.re.MatchString(url) {
			return r
		}
	}
	return nil
}

// globToRegexp converts a route glob into an anchored regexp: "*" matches a
// single path segment, "**" matches across segments.
func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		switch {
		case pattern[i] == '*' && i+1 < len(pattern) && pattern[i+1] == '*':
			b.WriteString(".*")
			i++
		case pattern[i] == '*':
			b.WriteString("[^/]*")
		default:
			b.WriteString(regexp.QuoteMeta(string(pattern[i])))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
