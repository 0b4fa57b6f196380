package quote

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SnapshotStore persists one row per computed quote, exclusively owned by
// the quote engine.
type SnapshotStore struct {
	db *sqlx.DB
}

func OpenSnapshotStore(path string) (*SnapshotStore, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open quote snapshot db: %w", err)
	}
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, fmt.Errorf("quote goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("quote migrate: %w", err)
	}

	return &SnapshotStore{db: db}, nil
}

func (s *SnapshotStore) Close() error { return s.db.Close() }

// Save persists one quote snapshot.
func (s *SnapshotStore) Save(ctx context.Context, cacheKey string, result Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quote_snapshots
			(cache_key, provider, cost_source, cost_version, pricing_rule_version, total_fee, latency_ms, provider_chain, fallback_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cacheKey, result.Provider, result.Snapshot.CostSource, result.Snapshot.CostVersion,
		result.Snapshot.PricingRuleVersion, result.TotalFee, result.Snapshot.LatencyMs,
		strings.Join(result.Snapshot.ProviderChain, ","), result.Snapshot.FallbackReason, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save quote snapshot: %w", err)
	}
	return nil
}

// GetLatest returns the most recent snapshot for a cache key, if any.
func (s *SnapshotStore) GetLatest(ctx context.Context, cacheKey string) (Result, bool, error) {
	type row struct {
		Provider      string  `db:"provider"`
		CostSource    string  `db:"cost_source"`
		CostVersion   string  `db:"cost_version"`
		RuleVersion   string  `db:"pricing_rule_version"`
		TotalFee      float64 `db:"total_fee"`
		LatencyMs     int64   `db:"latency_ms"`
		ProviderChain string  `db:"provider_chain"`
		FallbackReason string `db:"fallback_reason"`
	}
	var r row
	err := s.db.GetContext(ctx, &r, `
		SELECT provider, cost_source, cost_version, pricing_rule_version, total_fee, latency_ms, provider_chain, fallback_reason
		FROM quote_snapshots WHERE cache_key = ? ORDER BY id DESC LIMIT 1`, cacheKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, false, nil
		}
		return Result{}, false, fmt.Errorf("get latest quote snapshot: %w", err)
	}

	var chain []string
	if r.ProviderChain != "" {
		chain = strings.Split(r.ProviderChain, ",")
	}

	return Result{
		Provider: r.Provider,
		TotalFee: r.TotalFee,
		Snapshot: Snapshot{
			CostSource: r.CostSource, CostVersion: r.CostVersion, PricingRuleVersion: r.RuleVersion,
			LatencyMs: r.LatencyMs, ProviderChain: chain, FallbackReason: r.FallbackReason,
		},
	}, true, nil
}
