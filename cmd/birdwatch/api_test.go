/*
AUTHORS
  Mira Okafor <mira@ausocean.org>

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean).

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  This is distributed in the hope that it will be useful, but WITHOUT
  ANY WARRANTY; without even the implied warranty of MERCHANTABILITY
  or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU General Public
  License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ausocean/birdwatch/model"
)

func TestAPI(t *testing.T) {
	dp, h := newTestDispatcher(t, 2)
	h.putStream(&model.Stream{ID: 7, Active: true, Cadence: hourCadence})
	_, err := dp.Admit(context.Background(), 7)
	require.NoError(t, err)
	waitReading(t, dp, 7)

	app := newApp(dp)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health struct {
		Status  string `json:"status"`
		Version string `json:"version"`
		Workers int    `json:"workers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, version, health.Version)
	assert.Equal(t, 1, health.Workers)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/workers", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var workers []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&workers))
	require.Len(t, workers, 1)
	assert.EqualValues(t, 7, workers[0]["stream_id"])
	assert.Equal(t, "READING", workers[0]["state"])
	assert.NotEmpty(t, workers[0]["run_id"])

	tests := []struct {
		path string
		want int
	}{
		{"/api/workers/abc", http.StatusBadRequest},
		{"/api/workers/0", http.StatusBadRequest},
		{"/api/workers/8", http.StatusNotFound},
		{"/api/workers/7", http.StatusNoContent},
	}
	for _, test := range tests {
		resp, err := app.Test(httptest.NewRequest(http.MethodDelete, test.path, nil))
		require.NoError(t, err)
		assert.Equal(t, test.want, resp.StatusCode, test.path)
	}
	require.Eventually(t, func() bool { return len(dp.Active()) == 0 }, waitFor, tick)
}
