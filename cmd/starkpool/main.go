// starkpool is the STARK proof-of-work mining pool coordinator: it accepts
// Stratum-over-WebSocket connections from miners, validates their share and
// block submissions, tracks reputation and pending payouts in Redis, and
// exposes pool/miner stats and Prometheus metrics over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/starkpool/coordinator/internal/api"
	"github.com/starkpool/coordinator/internal/config"
	"github.com/starkpool/coordinator/internal/coordinator"
	"github.com/starkpool/coordinator/internal/notify"
	"github.com/starkpool/coordinator/internal/payout"
	"github.com/starkpool/coordinator/internal/profiling"
	"github.com/starkpool/coordinator/internal/store"
	"github.com/starkpool/coordinator/internal/stratum"
	"github.com/starkpool/coordinator/internal/telemetry"
	"github.com/starkpool/coordinator/internal/util"
	"github.com/starkpool/coordinator/internal/validator"
	"github.com/starkpool/coordinator/internal/verifier"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	redisURL := flag.String("redis-url", "", "Override redis.url")
	poolName := flag.String("pool-name", "", "Override pool.name")
	poolFee := flag.Float64("pool-fee", -1, "Override pool.fee_percent")
	minPayout := flag.Uint64("min-payout", 0, "Override payouts.min_payout")
	httpBind := flag.String("http-bind", "", "Override api.bind (Stratum WebSocket shares this port at GET /)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("starkpool v%s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *redisURL != "" {
		cfg.Redis.URL = *redisURL
	}
	if *poolName != "" {
		cfg.Pool.Name = *poolName
	}
	if *poolFee >= 0 {
		cfg.Pool.FeePercent = *poolFee
	}
	if *minPayout > 0 {
		cfg.Payouts.MinPayout = *minPayout
	}
	if *httpBind != "" {
		cfg.API.Bind = *httpBind
	}

	if err := util.InitLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	util.Infof("starkpool v%s starting, pool=%q fee=%.2f%%", version, cfg.Pool.Name, cfg.Pool.FeePercent)

	s, err := store.NewRedisStore(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		util.Fatalf("failed to connect to redis: %v", err)
	}
	defer s.Close()

	var pprofServer *profiling.Server
	if cfg.Profiling.Enabled {
		pprofServer = profiling.NewServer(&cfg.Profiling)
		if err := pprofServer.Start(); err != nil {
			util.Errorf("failed to start profiling server: %v", err)
		}
	}

	telem := telemetry.NewAgent(&cfg.Telemetry)
	if err := telem.Start(); err != nil {
		util.Errorf("failed to start telemetry agent: %v", err)
	}
	defer telem.Stop()

	oracle := verifier.DefaultOracle{}
	v := validator.New(s, oracle)
	p := payout.New(s, cfg.Pool.FeePercent)
	n := notify.NewNotifier(&notify.WebhookConfig{
		DiscordURL:   cfg.Webhook.DiscordURL,
		TelegramBot:  cfg.Webhook.TelegramBot,
		TelegramChat: cfg.Webhook.TelegramChat,
		Enabled:      cfg.Webhook.Enabled,
		PoolName:     cfg.Pool.Name,
		PoolURL:      cfg.Webhook.PoolURL,
	})

	coord := coordinator.New(s, v, p, n, telem, cfg.Pool.FeePercent)

	stratumServer := stratum.NewServer(coord)

	apiServer := api.NewServer(&api.Config{
		Bind:        cfg.API.Bind,
		CORSOrigins: cfg.API.CORSOrigins,
	}, coord, stratumServer)

	if err := apiServer.Start(); err != nil {
		util.Fatalf("failed to start API server: %v", err)
	}

	maintenanceInterval := cfg.Payouts.MaintenanceInterval
	if maintenanceInterval <= 0 {
		maintenanceInterval = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := coord.RunMaintenance(ctx); err != nil {
					util.Errorf("maintenance run failed: %v", err)
				}
			}
		}
	}()

	util.Info("starkpool coordinator started. Press Ctrl+C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	util.Info("shutting down...")
	cancel()
	stratumServer.Stop()
	if err := apiServer.Stop(); err != nil {
		util.Errorf("error stopping API server: %v", err)
	}
	if pprofServer != nil {
		if err := pprofServer.Stop(); err != nil {
			util.Errorf("error stopping profiling server: %v", err)
		}
	}
	util.Info("shutdown complete")
}
