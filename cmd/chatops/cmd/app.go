package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/G3niusYukki/xianyu-chatops/pkg/compliance"
	"github.com/G3niusYukki/xianyu-chatops/pkg/config"
	"github.com/G3niusYukki/xianyu-chatops/pkg/quote"
	"github.com/G3niusYukki/xianyu-chatops/pkg/sla"
	"github.com/G3niusYukki/xianyu-chatops/pkg/workflow"
)

// app bundles the opened stores and engines every data-touching
// subcommand needs, built fresh per invocation — this is a one-shot CLI,
// not a long-lived server, so there is no benefit to a shared singleton.
type app struct {
	cfg        *config.Config
	compliance *compliance.Center
	quote      *quote.Engine
	quoteStore *quote.SnapshotStore
	workflow   *workflow.Store
	sla        *sla.Monitor
	slaStore   *sla.Store
	logger     *slog.Logger
}

func newApp() (*app, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := slog.Default()

	complianceStore, err := compliance.OpenStore(cfg.Compliance.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open compliance store: %w", err)
	}
	center := compliance.NewCenter(complianceStore, cfg.Compliance.PolicyPath,
		time.Duration(cfg.Compliance.ReloadPollIntervalSeconds)*time.Second, logger)

	snapshotStore, err := quote.OpenSnapshotStore(cfg.Quote.SnapshotDBPath)
	if err != nil {
		return nil, fmt.Errorf("open quote snapshot store: %w", err)
	}
	engine := quote.NewEngine(quote.EngineConfig{
		Mode:                     cfg.Quote.Mode,
		TimeoutPerAttempt:        time.Duration(cfg.Quote.TimeoutMs) * time.Millisecond,
		RetryTimes:               cfg.Quote.RetryTimes,
		SafetyMargin:             cfg.Quote.SafetyMargin,
		CircuitFailThreshold:     cfg.Quote.CircuitFailThreshold,
		CircuitOpenDuration:      time.Duration(cfg.Quote.CircuitOpenSeconds) * time.Second,
		HalfOpenSuccessThreshold: cfg.Quote.HalfOpenSuccessThreshold,
		HotCacheTTL:              time.Duration(cfg.Quote.HotCacheTTLSeconds) * time.Second,
		PrimaryCacheTTL:          time.Duration(cfg.Quote.PrimaryCacheTTLSeconds) * time.Second,
		MaxStale:                 time.Duration(cfg.Quote.MaxStaleSeconds) * time.Second,
	}, nil, nil, snapshotStore, logger)

	workflowStore, err := workflow.OpenStore(cfg.Workflow.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open workflow store: %w", err)
	}

	slaStore := sla.NewStore(workflowStore.DB())
	monitor, err := sla.NewMonitor(context.Background(), sla.Config{
		WindowSize:                 cfg.SLA.WindowSize,
		AlertMinSamples:            cfg.SLA.AlertMinSamples,
		AlertFailureRateThreshold:  cfg.SLA.AlertFailureRateThreshold,
		AlertFirstReplyRatioThresh: cfg.SLA.AlertFirstReplyRatioThreshold,
		AlertCycleP95Seconds:       cfg.SLA.AlertCycleP95Seconds,
		AlertCooldown:              time.Duration(cfg.SLA.AlertCooldownSeconds) * time.Second,
		FirstReplyTargetSeconds:    cfg.SLA.FirstReplyTargetSeconds,
		MetricsPath:                cfg.SLA.MetricsPath,
	}, slaStore, logger)
	if err != nil {
		return nil, fmt.Errorf("build sla monitor: %w", err)
	}

	return &app{
		cfg: cfg, compliance: center, quote: engine, quoteStore: snapshotStore,
		workflow: workflowStore, sla: monitor, slaStore: slaStore, logger: logger,
	}, nil
}

func (a *app) Close() {
	_ = a.quoteStore.Close()
	_ = a.workflow.Close()
}
