package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xMathyu/hvac-scanner/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker runs periodic alert checks in the background.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
	}
}

// Interval returns the configured check period, defaulting to five minutes.
func (c *Checker) Interval() time.Duration {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		return defaultCheckInterval
	}
	return interval
}

// Run checks once per interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := c.Interval()
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			if _, err := c.CheckOnce(ctx); err != nil {
				log.Error("monitoring: check failed", zap.Error(err))
			}
		}
	}
}

// CheckOnce collects a snapshot, evaluates it and delivers any alerts.
// It returns the triggered alerts whether or not delivery succeeded.
func (c *Checker) CheckOnce(ctx context.Context) ([]Alert, error) {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		return nil, err
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		zap.L().Debug("monitoring: no alerts triggered", zap.Int("reports", snap.ReportsTotal))
		return nil, nil
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	zap.L().Info("monitoring: alert check complete",
		zap.Int("reports", snap.ReportsTotal),
		zap.Float64("fail_rate", snap.ReportFailRate),
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
	return alerts, nil
}
