package config

// Defaults returns the built-in configuration baseline. Operator-supplied
// YAML is deep-merged on top of this with mergo.WithOverride, the same
// override-merge idiom used for layering compliance policy scopes.
func Defaults() *Config {
	return &Config{
		Runtime: "auto",
		Transport: TransportConfig{
			Mode:                 "auto",
			CookieEnv:            "XIANYU_COOKIE_1",
			AppKey:               "444e9908a51d1cb236a27862abc769c9",
			TokenRefreshInterval: 1800,
			HeartbeatInterval:    15,
			HeartbeatTimeout:     5,
			ReconnectDelay:       5,
			MaxBackoffSeconds:    120,
			MessageExpireMs:      300_000,
			MaxQueueSize:         200,
			QueueWaitSeconds:     5,
		},
		Quote: QuoteConfig{
			Mode:                     "hybrid",
			TimeoutMs:                3000,
			RetryTimes:               1,
			SafetyMargin:             0.0,
			CircuitFailThreshold:     3,
			CircuitOpenSeconds:       60,
			HalfOpenSuccessThreshold: 1,
			HotCacheTTLSeconds:       30,
			PrimaryCacheTTLSeconds:   300,
			MaxStaleSeconds:          120,
			SnapshotDBPath:           "data/quote_snapshots.db",
		},
		Compliance: ComplianceConfig{
			PolicyPath:                 "config/compliance_policies.yaml",
			DBPath:                     "data/compliance.db",
			ReloadPollIntervalSeconds:  5,
			OutboundComplianceEnabled:  true,
			OutboundMinIntervalSeconds: 1,
			OutboundMaxPerSessionHour:  6,
			OutboundMaxPerSessionDay:   20,
		},
		Workflow: WorkflowConfig{
			DBPath:             "data/workflow.db",
			LeaseSeconds:       30,
			ClaimLimit:         10,
			ScanLimit:          20,
			MaxAttempts:        5,
			BaseBackoffSeconds: 10,
		},
		Worker: WorkerConfig{
			IntervalSeconds:   5,
			JitterSeconds:     2,
			BackoffSeconds:    5,
			MaxBackoffSeconds: 120,
			StateSnapshotPath: "data/workflow_worker_state.json",
			MaxSendsPerSecond: 0.5,
			SendBurst:         3,
		},
		SLA: SLAConfig{
			Enabled:                       true,
			MetricsPath:                   "data/workflow_sla_metrics.json",
			WindowSize:                    500,
			AlertMinSamples:               10,
			AlertFailureRateThreshold:     0.2,
			AlertFirstReplyRatioThreshold: 0.7,
			AlertCycleP95Seconds:          20.0,
			AlertCooldownSeconds:          1800,
			FirstReplyTargetSeconds:       120,
		},
		Messages: MessagesConfig{
			DefaultReply:     "您好，宝贝在的，感兴趣可以直接拍下。",
			MaxRepliesPerRun: 10,
			KeywordReplies: map[string]string{
				"还在": "在的，商品还在，直接拍就可以。",
				"在吗": "在的，有需要可以直接下单。",
				"最低": "价格已经尽量实在了，诚心要的话可以小刀。",
				"便宜": "价格是参考同款成色定的，诚心要可以聊。",
				"包邮": "默认不包邮，具体看地区可以商量。",
				"瑕疵": "有正常使用痕迹，主要细节我都拍在图里了。",
				"发票": "如需发票或购买凭证，我可以帮你再确认一下。",
				"验货": "支持走闲鱼平台流程，验货后确认收货更安心。",
				"自提": "可以自提，时间地点可以私聊约。",
			},
			OrderKeywords:            []string{"下单", "已付款", "拍了", "付款了"},
			StrictFormatReplyEnabled: false,
			QuoteValidityMinutes:     30,
			OriginCity:               "杭州",
		},
	}
}
