package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/rq/internal/api"
	"github.com/joescharf/rq/internal/daemon"
	"github.com/joescharf/rq/internal/logging"
	"github.com/joescharf/rq/internal/metrics"
	"github.com/joescharf/rq/internal/store"
)

const (
	shutdownGrace = 10 * time.Second
	stopWait      = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the review REST API in the foreground",
	Long: `Start the HTTP server that serves submissions to review sessions.

Endpoints live under /api/v1; Prometheus metrics are exposed at /metrics.
By default it listens on port 8080. Use --port to change it, or
'rq serve start' to run it in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the API server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background API server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.PersistentFlags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("serve.port", serveCmd.PersistentFlags().Lookup("port"))

	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "rq-serve.pid"))
}

func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "rq-serve.log")
}

// newServeHandler mounts the API and the metrics endpoint on one mux.
func newServeHandler(s store.Store, reg *prometheus.Registry) http.Handler {
	m := metrics.New(reg)
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/", api.NewServer(s, m).Router())
	return mux
}

func serveRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logging.Component("serve")

	s, err := getStore()
	if err != nil {
		return err
	}

	pf := pidFile()
	if err := os.MkdirAll(filepath.Dir(pf.Path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	if err := pf.Acquire(os.Getpid()); err != nil {
		return err
	}
	defer func() { _ = pf.Release(os.Getpid()) }()

	addr := fmt.Sprintf(":%d", viper.GetInt("serve.port"))
	srv := &http.Server{
		Addr:              addr,
		Handler:           newServeHandler(s, prometheus.NewRegistry()),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	ui.Info("Serving API at http://localhost%s/api/v1 (metrics at /metrics)", addr)
	log.Info().Str("addr", addr).Msg("listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	ui.Success("Server stopped")
	return nil
}

func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("server already running (pid %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	logPath := serveLogPath()
	if dryRun {
		ui.DryRunMsg("Would start %s serve --port %d (log: %s)", exe, viper.GetInt("serve.port"), logPath)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, "serve", "--port", fmt.Sprint(viper.GetInt("serve.port")))
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	ui.Success("Server started (pid %d), logging to %s", child.Process.Pid, logPath)
	return child.Process.Release()
}

func serveStopRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		return daemon.ErrNotRunning
	}

	if dryRun {
		ui.DryRunMsg("Would stop server (pid %d)", pid)
		return nil
	}

	pid, killed, err := pf.Stop(stopWait)
	if err != nil {
		return fmt.Errorf("stop server: %w", err)
	}
	if killed {
		ui.Warning("Server did not exit within %s and was killed (pid %d)", stopWait, pid)
		return nil
	}
	ui.Success("Server stopped (pid %d)", pid)
	return nil
}

func serveStatusRun() error {
	pid, running := pidFile().IsRunning()
	if !running {
		ui.Info("Server: %s", "not running")
		return nil
	}
	ui.Success("Server running (pid %d) on port %d", pid, viper.GetInt("serve.port"))
	return nil
}
