package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/itskum47/mailforge/internal/config"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	alertStreamPongWait   = 60 * time.Second
	alertStreamPingPeriod = alertStreamPongWait * 9 / 10
)

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	return *cfg, nil
}

func newServeCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the worker pool, stale-lease reaper, optimizer, and alert monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "override the configured metrics listen address")
	return cmd
}

func runServe(metricsAddrOverride string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := cfg.MetricsAddr
	if metricsAddrOverride != "" {
		addr = metricsAddrOverride
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go a.reaper.Run(ctx)
	go a.hub.Run(ctx)
	go a.monitor.Run(ctx, cfg.AlertInterval)
	go runOptimizerLoop(ctx, a, cfg.OptimizerInterval)

	go func() {
		if err := a.pool.Run(ctx); err != nil && err != context.Canceled {
			a.log.Error("worker pool exited", zap.Error(err))
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/alerts/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			a.log.Warn("alert stream upgrade failed", zap.Error(err))
			return
		}
		a.hub.Register(conn)
		go runAlertStreamReadPump(conn, a)
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.log.Info("mailforge serving", zap.String("metrics_addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// runAlertStreamReadPump mirrors the teacher's api_stream.go keepalive loop:
// a read deadline plus pong handler detects a dead peer, and a ping ticker
// keeps an idle-but-live connection open. The subscriber never sends
// anything meaningful, so any read error (including the deadline firing)
// means the connection is gone and must be unregistered.
func runAlertStreamReadPump(conn *websocket.Conn, a *app) {
	defer a.hub.Unregister(conn)

	_ = conn.SetReadDeadline(time.Now().Add(alertStreamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(alertStreamPongWait))
	})

	ticker := time.NewTicker(alertStreamPingPeriod)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// runOptimizerLoop runs the Optimizer's maintenance pass on a ticker until
// ctx is cancelled, the way scheduler.Reaper.Run and alert.Monitor.Run drive
// their own periodic work off a single ticker loop.
func runOptimizerLoop(ctx context.Context, a *app, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.opt.RunMaintenance(ctx); err != nil {
				a.log.Warn("optimizer maintenance pass failed", zap.Error(err))
			}
		}
	}
}
