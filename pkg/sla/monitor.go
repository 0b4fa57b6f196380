package sla

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Monitor holds a bounded in-memory rolling window of recent cycle events
// and derives the sample/summary/alert views the worker and the CLI's
// sla-benchmark subcommand publish.
//
// Grounded on the reference implementation's WorkflowSlaMonitor: a fixed
// window of the most recent N events, percentile/ratio math recomputed on
// every record, and alerts raised once per cooldown window rather than
// once per breach.
type Monitor struct {
	mu     sync.Mutex
	cfg    Config
	window []CycleEvent
	store  *Store
	logger *slog.Logger
}

// NewMonitor builds a Monitor, seeding its window from the most recent
// persisted events so a process restart doesn't reset the rolling average.
func NewMonitor(ctx context.Context, cfg Config, store *Store, logger *slog.Logger) (*Monitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 500
	}
	m := &Monitor{cfg: cfg, store: store, logger: logger.With("component", "sla-monitor")}

	seed, err := store.RecentEvents(ctx, cfg.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("seed sla window: %w", err)
	}
	m.window = seed
	return m, nil
}

// RecordCycle appends one observation to the window and persists it.
func (m *Monitor) RecordCycle(ctx context.Context, ev CycleEvent) error {
	if err := m.store.InsertEvent(ctx, ev); err != nil {
		return err
	}

	m.mu.Lock()
	m.window = append(m.window, ev)
	if len(m.window) > m.cfg.WindowSize {
		m.window = m.window[len(m.window)-m.cfg.WindowSize:]
	}
	m.mu.Unlock()
	return nil
}

// buildSample aggregates the current window. Caller must hold m.mu.
func (m *Monitor) buildSample() Sample {
	var s Sample
	s.ProcessedSessions = len(m.window)
	for _, ev := range m.window {
		switch ev.Stage {
		case StageFirstReply:
			s.FirstReplyTotal++
			if ev.Outcome == OutcomeSuccess {
				s.FirstReplyWithinTarget++
			}
		case StageQuoteFollowup:
			s.QuoteFollowupTotal++
			if ev.Outcome == OutcomeSuccess {
				s.QuoteFollowupSuccess++
			}
		case StageReadNoReply:
			s.ReadNoReplyTotal++
			if ev.Outcome == OutcomeSuccess {
				s.ReadNoReplySuccess++
			}
		}
	}
	return s
}

// computeSummary derives percentile/ratio figures from the window and
// sample. Caller must hold m.mu.
func (m *Monitor) computeSummary(sample Sample) Summary {
	var latencies []float64
	var failures int
	for _, ev := range m.window {
		latencies = append(latencies, float64(ev.LatencyMs)/1000.0)
		if ev.Outcome == OutcomeFailure {
			failures++
		}
	}

	var summary Summary
	if len(m.window) > 0 {
		summary.FailureRate = float64(failures) / float64(len(m.window))
	}
	summary.CycleP50Seconds = percentile(latencies, 0.50)
	summary.CycleP95Seconds = percentile(latencies, 0.95)
	if sample.FirstReplyTotal > 0 {
		summary.FirstReplyOnTimeRate = float64(sample.FirstReplyWithinTarget) / float64(sample.FirstReplyTotal)
	}
	if sample.QuoteFollowupTotal > 0 {
		summary.QuoteFollowupRate = float64(sample.QuoteFollowupSuccess) / float64(sample.QuoteFollowupTotal)
	}
	return summary
}

// Sample returns the current aggregate sample and derived summary.
func (m *Monitor) Sample() (Sample, Summary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sample := m.buildSample()
	return sample, m.computeSummary(sample)
}

// EvaluateAlerts checks the current window against configured thresholds,
// raising a new alert row per breached condition unless one of the same
// type was already raised within AlertCooldown.
func (m *Monitor) EvaluateAlerts(ctx context.Context) ([]Alert, error) {
	sample, summary := m.Sample()

	var raised []Alert
	if sample.ProcessedSessions < m.cfg.AlertMinSamples {
		return nil, nil
	}

	checks := []struct {
		breach  bool
		kind    AlertType
		title   string
		message string
	}{
		{
			breach:  summary.FailureRate > m.cfg.AlertFailureRateThreshold,
			kind:    AlertHighFailureRate,
			title:   "High workflow failure rate",
			message: fmt.Sprintf("failure rate %.2f exceeds threshold %.2f", summary.FailureRate, m.cfg.AlertFailureRateThreshold),
		},
		{
			breach:  sample.FirstReplyTotal > 0 && summary.FirstReplyOnTimeRate < m.cfg.AlertFirstReplyRatioThresh,
			kind:    AlertFirstReplyDegraded,
			title:   "First-reply SLA degraded",
			message: fmt.Sprintf("on-time rate %.2f below threshold %.2f", summary.FirstReplyOnTimeRate, m.cfg.AlertFirstReplyRatioThresh),
		},
		{
			breach:  summary.CycleP95Seconds > m.cfg.AlertCycleP95Seconds,
			kind:    AlertWorkflowCycleSlow,
			title:   "Workflow cycle time elevated",
			message: fmt.Sprintf("p95 cycle time %.1fs exceeds threshold %.1fs", summary.CycleP95Seconds, m.cfg.AlertCycleP95Seconds),
		},
	}

	for _, c := range checks {
		if !c.breach {
			continue
		}
		last, found, err := m.store.LastAlert(ctx, c.kind)
		if err != nil {
			return raised, err
		}
		if found && last.Status == AlertActive && time.Since(last.CreatedAt) < m.cfg.AlertCooldown {
			continue
		}
		id, err := m.store.RaiseAlert(ctx, c.kind, c.title, c.message)
		if err != nil {
			return raised, err
		}
		raised = append(raised, Alert{ID: id, AlertType: c.kind, Title: c.title, Message: c.message, Status: AlertActive, CreatedAt: time.Now().UTC()})
		m.logger.Warn("sla alert raised", "type", c.kind, "message", c.message)
	}

	return raised, nil
}

// WriteSnapshot renders the current sample/summary/active-alerts to
// MetricsPath, writing to a temp file in the same directory and renaming
// over the target so concurrent readers never observe a partial write.
func (m *Monitor) WriteSnapshot(ctx context.Context) error {
	if m.cfg.MetricsPath == "" {
		return nil
	}
	sample, summary := m.Sample()
	alerts, err := m.store.ActiveAlerts(ctx)
	if err != nil {
		return err
	}

	doc := Snapshot{GeneratedAt: time.Now().UTC(), Sample: sample, Summary: summary, Alerts: alerts}
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sla snapshot: %w", err)
	}

	dir := filepath.Dir(m.cfg.MetricsPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure sla snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".sla-snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create sla snapshot temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write sla snapshot temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close sla snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpPath, m.cfg.MetricsPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename sla snapshot into place: %w", err)
	}
	return nil
}
