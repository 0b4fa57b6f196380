package config

import "time"

// TransportConfig configures the dual-mode chat transport (C3).
type TransportConfig struct {
	Mode                  string `yaml:"mode" validate:"oneof=auto ws dom"`
	CookieEnv             string `yaml:"cookie_env" validate:"required"`
	AppKey                string `yaml:"app_key" validate:"required"`
	TokenRefreshInterval  int    `yaml:"token_refresh_interval_seconds" validate:"min=10"`
	HeartbeatInterval     int    `yaml:"heartbeat_interval_seconds" validate:"min=1"`
	HeartbeatTimeout      int    `yaml:"heartbeat_timeout_seconds" validate:"min=1"`
	ReconnectDelay        int    `yaml:"reconnect_delay_seconds" validate:"min=1"`
	MaxBackoffSeconds     int    `yaml:"max_backoff_seconds" validate:"min=1"`
	MessageExpireMs       int64  `yaml:"message_expire_ms" validate:"min=1000"`
	MaxQueueSize          int    `yaml:"max_queue_size" validate:"min=1"`
	QueueWaitSeconds      int    `yaml:"queue_wait_seconds" validate:"min=0"`
	DOMControlBaseURL     string `yaml:"dom_control_base_url"`
	DOMControlProfile     string `yaml:"dom_control_profile"`
	AllowTransportFailover bool  `yaml:"allow_transport_failover"`
}

// DedupWindow returns the duration within which a repeated fingerprint is
// suppressed: at least twice the message expiry window, per §9's design
// note (a single monotonic clock, not the original's wall-clock comparison).
func (c TransportConfig) DedupWindow() time.Duration {
	expire := time.Duration(c.MessageExpireMs) * time.Millisecond
	window := 2 * expire
	if window < 120*time.Second {
		window = 120 * time.Second
	}
	return window
}

// QuoteConfig configures the quote engine (C2).
type QuoteConfig struct {
	Mode                     string   `yaml:"mode" validate:"oneof=rule_only hybrid"`
	TimeoutMs                int      `yaml:"timeout_ms" validate:"min=1"`
	RetryTimes               int      `yaml:"retry_times" validate:"min=0"`
	SafetyMargin             float64  `yaml:"safety_margin" validate:"min=0"`
	CircuitFailThreshold     int      `yaml:"circuit_fail_threshold" validate:"min=1"`
	CircuitOpenSeconds       int      `yaml:"circuit_open_seconds" validate:"min=1"`
	HalfOpenSuccessThreshold int      `yaml:"half_open_success_threshold" validate:"min=1"`
	HotCacheTTLSeconds       int      `yaml:"hot_cache_ttl_seconds" validate:"min=1"`
	PrimaryCacheTTLSeconds   int      `yaml:"primary_cache_ttl_seconds" validate:"min=1"`
	MaxStaleSeconds          int      `yaml:"max_stale_seconds" validate:"min=0"`
	SnapshotDBPath           string   `yaml:"snapshot_db_path" validate:"required"`
	PrewarmRoutes            []string `yaml:"prewarm_routes"`
}

// ComplianceConfig configures the policy center (C1).
type ComplianceConfig struct {
	PolicyPath                  string `yaml:"policy_path" validate:"required"`
	DBPath                      string `yaml:"db_path" validate:"required"`
	ReloadPollIntervalSeconds   int    `yaml:"reload_poll_interval_seconds" validate:"min=1"`
	OutboundComplianceEnabled   bool   `yaml:"outbound_compliance_enabled"`
	OutboundMinIntervalSeconds  int    `yaml:"outbound_min_interval_seconds" validate:"min=0"`
	OutboundMaxPerSessionHour   int    `yaml:"outbound_max_per_session_hour" validate:"min=1"`
	OutboundMaxPerSessionDay    int    `yaml:"outbound_max_per_session_day" validate:"min=1"`
}

// WorkflowConfig configures the durable store and job queue (C4).
type WorkflowConfig struct {
	DBPath             string `yaml:"db_path" validate:"required"`
	LeaseSeconds       int    `yaml:"lease_seconds" validate:"min=1"`
	ClaimLimit         int    `yaml:"claim_limit" validate:"min=1"`
	ScanLimit          int    `yaml:"scan_limit" validate:"min=1"`
	MaxAttempts        int    `yaml:"max_attempts" validate:"min=1"`
	BaseBackoffSeconds int    `yaml:"base_backoff_seconds" validate:"min=1"`
}

// WorkerConfig configures the worker loop (C6).
type WorkerConfig struct {
	IntervalSeconds   int     `yaml:"interval_seconds" validate:"min=1"`
	JitterSeconds     int     `yaml:"jitter_seconds" validate:"min=0"`
	BackoffSeconds    int     `yaml:"backoff_seconds" validate:"min=1"`
	MaxBackoffSeconds int     `yaml:"max_backoff_seconds" validate:"min=1"`
	MaxCycles         int     `yaml:"max_cycles"`
	MaxRuntimeSeconds int     `yaml:"max_runtime_seconds"`
	StateSnapshotPath string  `yaml:"state_snapshot_path" validate:"required"`
	MaxSendsPerSecond float64 `yaml:"max_sends_per_second" validate:"min=0"`
	SendBurst         int     `yaml:"send_burst" validate:"min=1"`
}

// SLAConfig configures the rolling metrics window and alert thresholds (C7).
type SLAConfig struct {
	Enabled                        bool    `yaml:"worker_sla_enabled"`
	MetricsPath                    string  `yaml:"worker_sla_path" validate:"required"`
	WindowSize                     int     `yaml:"worker_sla_window_size" validate:"min=10"`
	AlertMinSamples                int     `yaml:"worker_alert_min_samples" validate:"min=1"`
	AlertFailureRateThreshold      float64 `yaml:"worker_alert_failure_rate_threshold" validate:"min=0,max=1"`
	AlertFirstReplyRatioThreshold  float64 `yaml:"worker_alert_first_reply_within_target_ratio_threshold" validate:"min=0,max=1"`
	AlertCycleP95Seconds           float64 `yaml:"worker_alert_cycle_p95_seconds" validate:"min=0"`
	AlertCooldownSeconds           int     `yaml:"alert_cooldown_seconds" validate:"min=1"`
	FirstReplyTargetSeconds        float64 `yaml:"first_reply_target_seconds" validate:"min=0"`
}

// NotifyConfig configures the optional Slack delivery channel for SLA alerts.
type NotifyConfig struct {
	Enabled   bool   `yaml:"enabled"`
	TokenEnv  string `yaml:"token_env"`
	ChannelID string `yaml:"channel_id"`
}

// AccountConfig carries per-account overrides (cookie env var, policy scope id).
type AccountConfig struct {
	ID        string `yaml:"id" validate:"required"`
	CookieEnv string `yaml:"cookie_env" validate:"required"`
}

// Config is the top-level application configuration.
type Config struct {
	Runtime     string                   `yaml:"runtime" validate:"oneof=auto lite pro"`
	Transport   TransportConfig          `yaml:"transport" validate:"required"`
	Quote       QuoteConfig              `yaml:"quote" validate:"required"`
	Compliance  ComplianceConfig         `yaml:"compliance" validate:"required"`
	Workflow    WorkflowConfig           `yaml:"workflow" validate:"required"`
	Worker      WorkerConfig             `yaml:"worker" validate:"required"`
	SLA         SLAConfig                `yaml:"sla" validate:"required"`
	Notify      NotifyConfig             `yaml:"notify"`
	Accounts    []AccountConfig          `yaml:"accounts"`
	Messages    MessagesConfig           `yaml:"messages" validate:"required"`
}

// MessagesConfig configures the reply pipeline (C5).
type MessagesConfig struct {
	ReplyPrefix              string            `yaml:"reply_prefix"`
	DefaultReply             string            `yaml:"default_reply" validate:"required"`
	MaxRepliesPerRun         int               `yaml:"max_replies_per_run" validate:"min=1"`
	KeywordReplies           map[string]string `yaml:"keyword_replies"`
	OrderKeywords            []string          `yaml:"order_keywords"`
	StrictFormatReplyEnabled bool              `yaml:"strict_format_reply_enabled"`
	QuoteValidityMinutes     int               `yaml:"quote_validity_minutes" validate:"min=1"`

	// OriginCity seeds quote.Request.Origin for buyer messages that never
	// name a pickup city explicitly. QuoteReplyTemplate, when set,
	// overrides message.DefaultQuoteReplyTemplate.
	OriginCity        string `yaml:"origin_city" validate:"required"`
	QuoteReplyTemplate string `yaml:"quote_reply_template"`
}
