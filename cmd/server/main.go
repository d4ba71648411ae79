package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tss-ch/mas004-databridge/internal/config"
	"github.com/tss-ch/mas004-databridge/internal/device"
	"github.com/tss-ch/mas004-databridge/internal/handler"
	"github.com/tss-ch/mas004-databridge/internal/httpclient"
	"github.com/tss-ch/mas004-databridge/internal/logstore"
	"github.com/tss-ch/mas004-databridge/internal/middleware"
	"github.com/tss-ch/mas004-databridge/internal/router"
	"github.com/tss-ch/mas004-databridge/internal/sender"
	"github.com/tss-ch/mas004-databridge/internal/store"
	"github.com/tss-ch/mas004-databridge/internal/watchdog"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	configPath := flag.String("config", os.Getenv("DATABRIDGE_CONFIG"), "path to JSON config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		slog.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.Close()

	hc := httpclient.New(cfg.HTTP)

	var peerWatchdog *watchdog.Watchdog
	if cfg.Peer.WatchdogHost != "" || cfg.Peer.BaseURL != "" {
		peerWatchdog = watchdog.New(watchdog.Config{
			Host:                     cfg.Peer.WatchdogHost,
			HealthURL:                cfg.Peer.BaseURL + cfg.Peer.HealthPath,
			Interval:                 cfg.Peer.PollInterval,
			ProbeTimeout:             cfg.Peer.ProbeTimeout,
			ConsecutiveFailThreshold: cfg.Peer.ConsecutiveFailThreshold,
		})
	}

	clients := buildDeviceClients(cfg.Devices)
	bridge := device.New(st, clients, logger)
	logs := logstore.New(cfg.Logs.RingBufferSize, time.Duration(cfg.Logs.RetentionDays)*24*time.Hour)

	snd := sender.New(st, hc, peerWatchdog, sender.Config{RetryBase: cfg.HTTP.RetryBase, RetryCap: cfg.HTTP.RetryCap, Logs: logs}, logger)
	snd.Start()
	defer snd.Stop()

	rtr := router.New(st, bridge, logs, cfg.Peer.BaseURL, logger)
	routerStop := make(chan struct{})
	go runRouterLoop(rtr, routerStop)
	defer close(routerStop)

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Rate:   60,
		Window: time.Minute,
		Burst:  20,
	})
	defer rateLimiter.Stop()

	intakeHandler := handler.NewIntakeHandler(st, cfg.Server.SharedSecret, logger)
	adminHandler := handler.NewAdminHandler(st, logs, logger)
	healthHandler := handler.NewHealthHandler()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.ServeHTTP)
	mux.HandleFunc("POST /api/inbox", intakeHandler.ServeHTTP)

	adminAuth := middleware.AdminToken(cfg.Server.UIToken)
	mux.Handle("GET /api/inbox/next", adminAuth(http.HandlerFunc(adminHandler.InboxNext)))
	mux.Handle("POST /api/inbox/{id}/ack", adminAuth(http.HandlerFunc(adminHandler.InboxAck)))
	mux.Handle("POST /api/outbox/enqueue", adminAuth(http.HandlerFunc(adminHandler.OutboxEnqueue)))
	mux.Handle("GET /api/logs/{channel}", adminAuth(http.HandlerFunc(adminHandler.LogsChannel)))
	mux.Handle("GET /api/params", adminAuth(http.HandlerFunc(adminHandler.ParamsList)))
	mux.Handle("POST /api/params/{pkey}/value", adminAuth(http.HandlerFunc(adminHandler.ParamSetValue)))

	wrapped := middleware.Chain(
		mux,
		middleware.RequestID,
		middleware.Logger,
		middleware.Recovery,
		middleware.RateLimit(rateLimiter),
		middleware.Compress,
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      wrapped,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting server", slog.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", slog.String("error", err.Error()))
	}

	slog.Info("server exited")
}

// buildDeviceClients wires the three field-device configs to their
// protocol clients, per spec §4.9: printer speaks ZBC, laser speaks
// Ultimate ASCII, the line PLC speaks the line protocol.
func buildDeviceClients(d config.DevicesConfig) device.Clients {
	const dialTimeout = 2 * time.Second

	clients := device.Clients{
		PLCSim:      d.PLC.Simulation,
		ZBCSim:      d.Printer.Simulation,
		UltimateSim: d.Laser.Simulation,
	}

	if d.PLC.Host != "" {
		clients.PLC = device.NewLineClient(d.PLC.Host, strconv.Itoa(d.PLC.Port), dialTimeout)
		if d.PLC.WatchdogHost != "" {
			clients.PLCWatchdog = watchdog.New(watchdog.Config{Host: d.PLC.WatchdogHost, Interval: 5 * time.Second})
		}
	}
	if d.Printer.Host != "" {
		clients.ZBC = device.NewZBCClient(d.Printer.Host, strconv.Itoa(d.Printer.Port), dialTimeout)
	}
	if d.Laser.Host != "" {
		clients.Ultimate = device.NewUltimateClient(d.Laser.Host, strconv.Itoa(d.Laser.Port), dialTimeout)
	}

	return clients
}

// runRouterLoop drains the inbox continuously, backing off briefly when
// it finds nothing to do so an idle bridge doesn't spin.
func runRouterLoop(r *router.Router, stop <-chan struct{}) {
	const idleDelay = 100 * time.Millisecond
	for {
		select {
		case <-stop:
			return
		default:
		}
		if !r.TickOnce() {
			select {
			case <-time.After(idleDelay):
			case <-stop:
				return
			}
		}
	}
}
