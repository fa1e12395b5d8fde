// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// Scopes is a bitmask of the operations an operator token permits.
type Scopes int64

const (
	ScopeDevicesRead Scopes = 1 << iota
	ScopeReleasesRead
	ScopeReleasesWrite
	ScopeTelemetryRead
	ScopeAppsWrite
)

var scopeNames = []struct {
	scope Scopes
	name  string
}{
	{ScopeDevicesRead, "devices:read"},
	{ScopeReleasesRead, "releases:read"},
	{ScopeReleasesWrite, "releases:write"},
	{ScopeTelemetryRead, "telemetry:read"},
	{ScopeAppsWrite, "apps:write"},
}

// ScopeAll covers everything; used for bootstrap operators.
const ScopeAll = ScopeDevicesRead | ScopeReleasesRead | ScopeReleasesWrite | ScopeTelemetryRead | ScopeAppsWrite

func (s Scopes) Has(scope Scopes) bool {
	return s&scope == scope
}

func (s Scopes) String() string {
	var names []string
	for _, entry := range scopeNames {
		if s.Has(entry.scope) {
			names = append(names, entry.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

func ScopesFromSlice(names []string) (Scopes, error) {
	var scopes Scopes
	for _, name := range names {
		found := false
		for _, entry := range scopeNames {
			if entry.name == name {
				scopes |= entry.scope
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown scope: %s", name)
		}
	}
	return scopes, nil
}

// User is an authenticated operator as seen by API middleware.
type User interface {
	Id() string
	HasScope(Scopes) error
}

// AuthUserFunc allows us to define a generic way for middleware to do
// authentication and authorization based on the incoming http request.
// The function returns nil if the user wasn't authenticated implying
// this function returned the proper error to the caller.
type AuthUserFunc func(w http.ResponseWriter, r *http.Request) (User, error)
