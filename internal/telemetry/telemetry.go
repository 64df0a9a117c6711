// Package telemetry wraps the New Relic APM agent. The coordinator uses it to
// record custom events for share submissions and queued payouts and custom
// metrics for pool gauges; it does not open transactions around those paths.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/starkpool/coordinator/internal/config"
	"github.com/starkpool/coordinator/internal/util"
)

// Agent wraps New Relic APM functionality.
type Agent struct {
	cfg *config.TelemetryConfig
	app *newrelic.Application
	mu  sync.RWMutex
}

// NewAgent creates a new telemetry agent.
func NewAgent(cfg *config.TelemetryConfig) *Agent {
	return &Agent{cfg: cfg}
}

// Start initializes the New Relic agent.
func (a *Agent) Start() error {
	if !a.cfg.Enabled {
		util.Info("New Relic APM disabled")
		return nil
	}
	if a.cfg.LicenseKey == "" {
		util.Warn("New Relic license key not configured, APM disabled")
		return nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(a.cfg.AppName),
		newrelic.ConfigLicense(a.cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
	if err != nil {
		return err
	}

	if err := app.WaitForConnection(5 * time.Second); err != nil {
		util.Warnf("New Relic connection timeout: %v (will retry in background)", err)
	}

	a.mu.Lock()
	a.app = app
	a.mu.Unlock()

	util.Infof("New Relic APM enabled for app: %s", a.cfg.AppName)
	return nil
}

// Stop shuts down the New Relic agent.
func (a *Agent) Stop() {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app != nil {
		util.Info("shutting down New Relic agent")
		app.Shutdown(10 * time.Second)
	}
}

func (a *Agent) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.app != nil
}

func (a *Agent) Application() *newrelic.Application {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.app
}

// StartTransaction starts a New Relic transaction, or returns nil if the
// agent is disabled.
func (a *Agent) StartTransaction(name string) *newrelic.Transaction {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()
	if app == nil {
		return nil
	}
	return app.StartTransaction(name)
}

func (a *Agent) RecordCustomEvent(eventType string, params map[string]interface{}) {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()
	if app != nil {
		app.RecordCustomEvent(eventType, params)
	}
}

func (a *Agent) RecordCustomMetric(name string, value float64) {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()
	if app != nil {
		app.RecordCustomMetric(name, value)
	}
}

func (a *Agent) NoticeError(txn *newrelic.Transaction, err error) {
	if txn != nil && err != nil {
		txn.NoticeError(err)
	}
}

func (a *Agent) NewContext(ctx context.Context, txn *newrelic.Transaction) context.Context {
	if txn == nil {
		return ctx
	}
	return newrelic.NewContext(ctx, txn)
}

func (a *Agent) FromContext(ctx context.Context) *newrelic.Transaction {
	return newrelic.FromContext(ctx)
}

// RecordShareSubmission records a share submission event.
func (a *Agent) RecordShareSubmission(minerAddress string, difficulty uint64, valid, isBlock bool) {
	status := "valid"
	if !valid {
		status = "invalid"
	}
	a.RecordCustomEvent("ShareSubmission", map[string]interface{}{
		"minerAddress": minerAddress,
		"difficulty":   difficulty,
		"status":       status,
		"isBlock":      isBlock,
	})
}

// RecordPayoutQueued records a payout batch being queued.
func (a *Agent) RecordPayoutQueued(totalAmount uint64, minerCount int) {
	a.RecordCustomEvent("PayoutQueued", map[string]interface{}{
		"totalAmount": totalAmount,
		"minerCount":  minerCount,
	})
}

// UpdatePoolMetrics records pool-wide gauges as custom New Relic metrics.
func (a *Agent) UpdatePoolMetrics(hashrate float64, activeMiners int64) {
	a.RecordCustomMetric("Custom/Pool/Hashrate", hashrate)
	a.RecordCustomMetric("Custom/Pool/ActiveMiners", float64(activeMiners))
}
