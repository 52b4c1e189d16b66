package cmd

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/rq/internal/daemon"
	"github.com/joescharf/rq/internal/store"
)

func TestPidFile_Path(t *testing.T) {
	dir := testEnv(t)

	assert.Equal(t, filepath.Join(dir, "rq-serve.pid"), pidFile().Path)
	assert.Equal(t, filepath.Join(dir, "rq-serve.log"), serveLogPath())
}

func TestServeStatusRun_NotRunning(t *testing.T) {
	testEnv(t)

	assert.NoError(t, serveStatusRun())
}

func TestServeStopRun_NotRunning(t *testing.T) {
	testEnv(t)

	err := serveStopRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}

func TestServeStartRun_AlreadyRunning(t *testing.T) {
	dir := testEnv(t)

	// The current process is alive, so the PID file looks owned.
	pf := daemon.NewPIDFile(filepath.Join(dir, "rq-serve.pid"))
	require.NoError(t, pf.WritePID(os.Getpid()))
	t.Cleanup(func() { _ = os.Remove(pf.Path) })

	err := serveStartRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestNewServeHandler(t *testing.T) {
	dir := testEnv(t)
	s, err := store.NewSQLiteStore(filepath.Join(dir, "serve.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	ts := httptest.NewServer(newServeHandler(s, prometheus.NewRegistry()))
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/api/v1/submission/statuses")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "rq_http_requests_total")
}
