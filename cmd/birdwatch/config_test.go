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
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ausocean/utils/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	cfg, err := loadConfig(path, false)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.MaxStreams)
	assert.Equal(t, "cloud", cfg.Store.Kind)
	assert.Equal(t, "s3", cfg.Storage.Kind)
	assert.Equal(t, "sns", cfg.Notify.Kind)
	assert.Equal(t, "new_stream_subscriptions", cfg.Queue.Name)
	assert.Equal(t, defaultSweepSpec, cfg.Sweep.Spec)
	assert.EqualValues(t, 50, cfg.Classify.MaxLabels)

	cfg, err = loadConfig(path, true)
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Store.Kind)
	assert.Equal(t, "local", cfg.Storage.Kind)
	assert.Equal(t, "log", cfg.Notify.Kind)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	const yaml = `
max_streams: 4
log:
  level: debug
  caller_filters: [worker.go]
store:
  kind: sqlite
  url: /var/lib/birdwatch/birdwatch.db
notify:
  kind: mqtt
  broker: tcp://broker:1883
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))
	t.Setenv("BIRDWATCH_MAX_STREAMS", "6")
	t.Setenv("BIRDWATCH_STORAGE_BUCKET", "birds")

	cfg, err := loadConfig(path, false)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.MaxStreams, "environment must override the file")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"worker.go"}, cfg.Log.CallerFilters)
	assert.Equal(t, "sqlite", cfg.Store.Kind)
	assert.Equal(t, "/var/lib/birdwatch/birdwatch.db", cfg.Store.URL)
	assert.Equal(t, "mqtt", cfg.Notify.Kind)
	assert.Equal(t, "tcp://broker:1883", cfg.Notify.Broker)
	assert.Equal(t, "birds", cfg.Storage.Bucket)
}

func TestLoadConfigInvalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("max_streams: [\n"), 0644))
	_, err := loadConfig(bad, false)
	assert.Error(t, err)

	zero := filepath.Join(dir, "zero.yaml")
	require.NoError(t, os.WriteFile(zero, []byte("max_streams: 0\n"), 0644))
	_, err = loadConfig(zero, false)
	assert.Error(t, err)
}

func TestApplyLogConfig(t *testing.T) {
	l := logging.New(logging.Info, io.Discard, true)
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "none.yaml"), true)
	require.NoError(t, err)

	cfg.Log.Level = "warning"
	assert.NoError(t, applyLogConfig(l, cfg))

	cfg.Log.Level = "loud"
	assert.Error(t, applyLogConfig(l, cfg))

	// Non-JSON loggers are left alone.
	assert.NoError(t, applyLogConfig((*logging.TestLogger)(t), cfg))
}
