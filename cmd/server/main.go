// Package main is the cluster monitor server entry point: it wires every
// component (C1-C10) together and runs the HTTP, WebSocket, and BMC UDP
// listeners until signaled to stop.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clustermon/clustermon/internal/bmc"
	"github.com/clustermon/clustermon/internal/eventbus"
	"github.com/clustermon/clustermon/internal/eventstore"
	"github.com/clustermon/clustermon/internal/httpapi"
	"github.com/clustermon/clustermon/internal/liveness"
	"github.com/clustermon/clustermon/internal/metrics"
	"github.com/clustermon/clustermon/internal/registry"
	"github.com/clustermon/clustermon/internal/rules"
	"github.com/clustermon/clustermon/internal/rulestore"
	"github.com/clustermon/clustermon/internal/tsdb"
	"github.com/clustermon/clustermon/pkg/config"
	"github.com/clustermon/clustermon/pkg/logger"
	"github.com/clustermon/clustermon/pkg/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lg := logger.New(toLoggerConfig(cfg.Logging))
	lg.WithField("version", version.FullVersion()).Info("starting clustermon server")

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tsStore, err := tsdb.Open(rootCtx, cfg.TDengineHost, cfg.ResourceDB, cfg.ResourcePool, cfg.RedisAddr, lg)
	if err != nil {
		log.Fatalf("open ts store: %v", err)
	}
	defer tsStore.Close(context.Background())

	ruleStore, err := rulestore.Open(rootCtx, cfg.MySQLDSN(cfg.AlarmDB), cfg.AlarmPool, lg)
	if err != nil {
		log.Fatalf("open rule store: %v", err)
	}
	defer ruleStore.Close(context.Background())

	eventStore, err := eventstore.Open(rootCtx, cfg.MySQLDSN(cfg.AlarmDB), cfg.AlarmPool, lg)
	if err != nil {
		log.Fatalf("open event store: %v", err)
	}
	defer eventStore.Close(context.Background())

	reg := registry.New()
	mtx := metrics.New()

	hub := eventbus.NewHub(lg)
	bus := eventbus.New(eventStore, hub, nil, lg).WithMetrics(mtx)
	defer bus.Stop()

	engine := rules.New(ruleStore, tsStore, bus, cfg.EvaluationInterval, lg).WithMetrics(mtx)
	engine.Start(rootCtx)
	defer engine.Stop()

	liveMonitor := liveness.New(reg, bus)
	liveMonitor.Start(rootCtx)
	defer liveMonitor.Stop()

	bmcListener := bmc.New(fmt.Sprintf("%s:%d", cfg.BMCMulticastIP, cfg.BMCMulticastPort), tsStore, reg, lg).WithMetrics(mtx)
	if err := bmcListener.Start(rootCtx); err != nil {
		log.Fatalf("start bmc listener: %v", err)
	}
	defer bmcListener.Stop()

	go reportPoolStats(rootCtx, mtx, ruleStore, eventStore, tsStore)

	router := httpapi.NewRouter(httpapi.Deps{
		TSStore:   tsStore,
		Registry:  reg,
		RuleStore: ruleStore,
		Events:    eventStore,
		Log:       lg,
		Metrics:   mtx,
	})

	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	httpServer := &http.Server{Addr: httpAddr, Handler: router}

	wsAddr := fmt.Sprintf(":%d", cfg.WebsocketPort)
	wsServer := &http.Server{Addr: wsAddr, Handler: hub}

	go func() {
		lg.WithField("addr", httpAddr).Info("http listener starting")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http listener: %v", err)
		}
	}()

	go func() {
		lg.WithField("addr", wsAddr).Info("websocket listener starting")
		if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("websocket listener: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	lg.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		lg.WithField("error", err).Error("http listener shutdown")
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		lg.WithField("error", err).Error("websocket listener shutdown")
	}
	cancel()
}

// reportPoolStats polls each store's connection pool and republishes its
// counters as gauges, until ctx is canceled.
func reportPoolStats(ctx context.Context, m *metrics.Metrics, ruleStore *rulestore.Store, eventStore *eventstore.Store, tsStore *tsdb.Store) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rs := ruleStore.Stats()
			m.SetPoolStats("rule_store", rs.Active, rs.Idle, rs.PendingWaiters)
			es := eventStore.Stats()
			m.SetPoolStats("event_store", es.Active, es.Idle, es.PendingWaiters)
			ts := tsStore.Stats()
			m.SetPoolStats("ts_store", ts.Active, ts.Idle, ts.PendingWaiters)
		}
	}
}

// toLoggerConfig adapts config.LoggingConfig (decoded from YAML/env via
// envdecode tags) to logger.LoggingConfig (consumed by logrus setup via
// mapstructure tags) — two distinct types with the same shape because
// they serve two different decoding libraries.
func toLoggerConfig(c config.LoggingConfig) logger.LoggingConfig {
	return logger.LoggingConfig{
		Level:      c.Level,
		Format:     c.Format,
		Output:     c.Output,
		FilePrefix: c.FilePrefix,
	}
}
