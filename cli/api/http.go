// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

func (a Api) Get(resource string, result any) error {
	resp, err := a.Client.Get(a.URL + resource)
	if err != nil {
		return err
	}
	return a.decodeResponse(resp, http.StatusOK, result)
}

// send issues a request with a JSON encoded body and decodes the JSON
// response into result (which may be nil when the caller only cares about
// the status code).
func (a Api) send(method, resource string, body, result any, expected int) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(method, a.URL+resource, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return err
	}
	return a.decodeResponse(resp, expected, result)
}

func (a Api) Post(resource string, body, result any) error {
	return a.send(http.MethodPost, resource, body, result, http.StatusCreated)
}

func (a Api) Put(resource string, body any) error {
	return a.send(http.MethodPut, resource, body, nil, http.StatusOK)
}

func (a Api) decodeResponse(resp *http.Response, expected int, result any) error {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			fmt.Printf("warning: failed to close response body: %v\n", err)
		}
	}()

	if resp.StatusCode != expected {
		buf, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("API request failed with status %d and unreadable body", resp.StatusCode)
		}
		rid := resp.Header.Get("X-Request-ID")
		return fmt.Errorf("API request (id=%s) failed with status %d: %s", rid, resp.StatusCode, string(buf))
	}

	if result == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(result)
}
