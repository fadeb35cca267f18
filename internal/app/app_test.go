package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"io/fs"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/sds/internal/config"
)

func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.GRPC.Addr = "127.0.0.1:0"
	cfg.Snapshot.FlushInterval = 0
	return cfg
}

func startApp(t *testing.T, dir string) *App {
	t.Helper()
	a, err := New(testConfig(t, dir), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	return a
}

func call(t *testing.T, a *App, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, "http://"+a.HTTPAddr()+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestApp_PersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	a := startApp(t, dir)
	assert.NotEmpty(t, a.GRPCAddr())

	resp := call(t, a, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = call(t, a, http.MethodPut, "/api/v1/types/WaveData", `{
	  "properties": [
	    {"id": "Order", "data_type": "Int32", "is_key": true},
	    {"id": "Sin", "data_type": "Float64"}
	  ]
	}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = call(t, a, http.MethodPut, "/api/v1/streams/s1", `{"type_id": "WaveData", "tags": ["wave"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = call(t, a, http.MethodPost, "/api/v1/streams/s1/data", `[{"Order": 1, "Sin": 0.5}, {"Order": 2, "Sin": 1.5}]`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.NoError(t, a.Stop(context.Background()))
	require.NoError(t, a.Stop(context.Background()))

	b := startApp(t, dir)
	t.Cleanup(func() { b.Stop(context.Background()) })

	resp = call(t, b, http.MethodGet, "/api/v1/streams/s1/data/last", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var last map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&last))
	assert.Equal(t, float64(2), last["Order"])
	assert.Equal(t, 1.5, last["Sin"])

	tags, err := b.Service().GetTags("s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"wave"}, tags)
}

func TestApp_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Storage.Type = "tape"
	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestApp_StartTwice(t *testing.T) {
	a := startApp(t, t.TempDir())
	t.Cleanup(func() { a.Stop(context.Background()) })
	assert.Error(t, a.Start(context.Background()))
}

func TestApp_FlushLoopWritesChangedStreams(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.GRPC.Enabled = false
	cfg.Snapshot.FlushInterval = 20 * time.Millisecond
	a, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { a.Stop(context.Background()) })

	snapshots := func() int {
		n := 0
		filepath.WalkDir(cfg.Storage.Path, func(_ string, d fs.DirEntry, err error) error {
			if err == nil && !d.IsDir() {
				n++
			}
			return nil
		})
		return n
	}
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, snapshots(), "nothing changed, nothing flushed")

	resp := call(t, a, http.MethodPut, "/api/v1/types/WaveData",
		`{"properties": [{"id": "Order", "data_type": "Int32", "is_key": true}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = call(t, a, http.MethodPut, "/api/v1/streams/s1", `{"type_id": "WaveData"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = call(t, a, http.MethodPost, "/api/v1/streams/s1/data", `[{"Order": 1}]`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Eventually(t, func() bool { return snapshots() > 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, a.GRPCAddr())
}
