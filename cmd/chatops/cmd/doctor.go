package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/G3niusYukki/xianyu-chatops/pkg/compliance"
	"github.com/G3niusYukki/xianyu-chatops/pkg/config"
	"github.com/G3niusYukki/xianyu-chatops/pkg/quote"
	"github.com/G3niusYukki/xianyu-chatops/pkg/workflow"
)

type doctorCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"` // ok | warn | fail
	Detail string `json:"detail,omitempty"`
}

// doctorCmd never exits non-zero on its own: a missing cookie or an
// unreachable DOM-control endpoint is operator-actionable, not a CLI
// failure. Only a panic-level condition (none currently modeled) would
// warrant a non-zero exit, so RunE always returns nil.
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration and store readiness without side effects",
	RunE: func(cmd *cobra.Command, args []string) error {
		var checks []doctorCheck
		var nextSteps []string
		ready := true

		fail := func(name, detail, step string) {
			checks = append(checks, doctorCheck{Name: name, Status: "fail", Detail: detail})
			nextSteps = append(nextSteps, step)
			ready = false
		}
		warn := func(name, detail, step string) {
			checks = append(checks, doctorCheck{Name: name, Status: "warn", Detail: detail})
			if step != "" {
				nextSteps = append(nextSteps, step)
			}
		}
		ok := func(name, detail string) {
			checks = append(checks, doctorCheck{Name: name, Status: "ok", Detail: detail})
		}

		cfg, err := config.Load(configDir)
		if err != nil {
			fail("config", err.Error(), fmt.Sprintf("fix app.yaml under %q and rerun doctor", configDir))
			return emitJSON(map[string]any{
				"ready":      false,
				"summary":    "configuration failed to load; no further checks were run",
				"checks":     checks,
				"next_steps": nextSteps,
			})
		}
		ok("config", "app.yaml loaded and validated")

		if cookie, found := cfg.CookieFor(""); !found || cookie == "" {
			warn("transport_cookie", fmt.Sprintf("environment variable %q is unset", cfg.Transport.CookieEnv),
				fmt.Sprintf("export %s with a valid marketplace session cookie before running messages/worker", cfg.Transport.CookieEnv))
		} else {
			ok("transport_cookie", "session cookie resolved from environment")
		}

		for _, acct := range cfg.Accounts {
			if cookie, found := cfg.CookieFor(acct.ID); !found || cookie == "" {
				warn("account_cookie:"+acct.ID, fmt.Sprintf("environment variable %q is unset", acct.CookieEnv),
					fmt.Sprintf("export %s for account %q", acct.CookieEnv, acct.ID))
			}
		}

		if complianceStore, cerr := compliance.OpenStore(cfg.Compliance.DBPath); cerr != nil {
			fail("compliance_store", cerr.Error(), "verify the compliance db_path directory is writable")
		} else {
			_ = complianceStore.Close()
			ok("compliance_store", cfg.Compliance.DBPath)
		}

		if snapshotStore, qerr := quote.OpenSnapshotStore(cfg.Quote.SnapshotDBPath); qerr != nil {
			fail("quote_snapshot_store", qerr.Error(), "verify the quote snapshot_db_path directory is writable")
		} else {
			_ = snapshotStore.Close()
			ok("quote_snapshot_store", cfg.Quote.SnapshotDBPath)
		}

		if workflowStore, werr := workflow.OpenStore(cfg.Workflow.DBPath); werr != nil {
			fail("workflow_store", werr.Error(), "verify the workflow db_path directory is writable")
		} else {
			_ = workflowStore.Close()
			ok("workflow_store", cfg.Workflow.DBPath)
		}

		if cfg.Notify.Enabled {
			if cfg.Notify.TokenEnv == "" {
				warn("notify_slack", "notify.enabled is true but token_env is empty", "set notify.token_env in app.yaml")
			} else if tok := os.Getenv(cfg.Notify.TokenEnv); tok != "" {
				ok("notify_slack", "slack token env configured")
			} else {
				warn("notify_slack", fmt.Sprintf("environment variable %q is unset", cfg.Notify.TokenEnv),
					fmt.Sprintf("export %s with a Slack bot token to enable SLA alert delivery", cfg.Notify.TokenEnv))
			}
		} else {
			ok("notify_slack", "disabled")
		}

		summary := "all checks passed"
		if !ready {
			summary = "one or more stores are unreachable; see next_steps"
		} else if len(nextSteps) > 0 {
			summary = "ready, with operator follow-ups pending"
		}

		return emitJSON(map[string]any{
			"ready":      ready,
			"summary":    summary,
			"checks":     checks,
			"next_steps": nextSteps,
		})
	},
}
