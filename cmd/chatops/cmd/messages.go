package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/G3niusYukki/xianyu-chatops/pkg/message"
	"github.com/G3niusYukki/xianyu-chatops/pkg/transport"
	"github.com/G3niusYukki/xianyu-chatops/pkg/worker"
)

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Inspect and drive the chat reply pipeline",
}

var messagesAccountID string

func init() {
	messagesCmd.PersistentFlags().StringVar(&messagesAccountID, "account-id", "", "account id (empty selects the default account)")
	messagesCmd.AddCommand(listUnreadCmd, replyCmd, autoReplyCmd, slaBenchmarkCmd)
}

// openChannel builds and starts the configured transport for one command
// invocation; callers must Stop() it when done.
func openChannel(a *app) (transport.Channel, error) {
	cookie, _ := a.cfg.CookieFor(messagesAccountID)
	tcfg := transport.Config{
		Mode:                   a.cfg.Transport.Mode,
		AppKey:                 a.cfg.Transport.AppKey,
		Cookie:                 cookie,
		TokenRefreshInterval:   time.Duration(a.cfg.Transport.TokenRefreshInterval) * time.Second,
		HeartbeatInterval:      time.Duration(a.cfg.Transport.HeartbeatInterval) * time.Second,
		HeartbeatTimeout:       time.Duration(a.cfg.Transport.HeartbeatTimeout) * time.Second,
		ReconnectDelay:         time.Duration(a.cfg.Transport.ReconnectDelay) * time.Second,
		MaxBackoff:             time.Duration(a.cfg.Transport.MaxBackoffSeconds) * time.Second,
		MessageExpire:          time.Duration(a.cfg.Transport.MessageExpireMs) * time.Millisecond,
		MaxQueueSize:           a.cfg.Transport.MaxQueueSize,
		QueueWait:              time.Duration(a.cfg.Transport.QueueWaitSeconds) * time.Second,
		DOMControlBaseURL:      a.cfg.Transport.DOMControlBaseURL,
		DOMControlProfile:      a.cfg.Transport.DOMControlProfile,
		AllowTransportFailover: a.cfg.Transport.AllowTransportFailover,
	}

	ch, err := transport.NewChannel(tcfg, a.logger)
	if err != nil {
		return nil, err
	}
	if err := ch.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("start transport: %w", err)
	}
	return ch, nil
}

func buildPipeline(a *app, ch transport.Channel) (*message.Pipeline, message.CooldownStore) {
	policy := message.CooldownPolicy{
		MinIntervalSeconds: a.cfg.Compliance.OutboundMinIntervalSeconds,
		MaxPerHour:         a.cfg.Compliance.OutboundMaxPerSessionHour,
		MaxPerDay:          a.cfg.Compliance.OutboundMaxPerSessionDay,
		HistoryCap:         200,
	}
	cooldownStore := worker.NewCooldownStore(a.workflow)
	return message.NewPipeline(a.compliance, cooldownStore, ch, policy, a.logger), cooldownStore
}

var listUnreadCmd = &cobra.Command{
	Use:   "list-unread",
	Short: "List sessions with unread messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ch, err := openChannel(a)
		if err != nil {
			return err
		}
		defer ch.Stop() //nolint:errcheck

		msgs, err := ch.GetUnreadSessions(context.Background())
		if err != nil {
			return fmt.Errorf("get unread sessions: %w", err)
		}
		return emitJSON(map[string]any{"sessions": msgs, "count": len(msgs)})
	},
}

var (
	replySessionID string
	replyText      string
)

var replyCmd = &cobra.Command{
	Use:   "reply",
	Short: "Send a reply to one session",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replySessionID == "" || replyText == "" {
			return fmt.Errorf("--session-id and --text are required")
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ch, err := openChannel(a)
		if err != nil {
			return err
		}
		defer ch.Stop() //nolint:errcheck

		pipeline, _ := buildPipeline(a, ch)
		decision, err := pipeline.Send(context.Background(), message.SendParams{
			AccountID: messagesAccountID,
			SessionID: replySessionID,
			Actor:     "cli",
			ReplyText: replyText,
		})
		if err != nil {
			return fmt.Errorf("send reply: %w", err)
		}
		return emitJSON(decision)
	},
}

func init() {
	replyCmd.Flags().StringVar(&replySessionID, "session-id", "", "target session id")
	replyCmd.Flags().StringVar(&replyText, "text", "", "reply text")
}

var (
	autoReplyLimit  int
	autoReplyDryRun bool
)

var autoReplyCmd = &cobra.Command{
	Use:   "auto-reply",
	Short: "Classify and reply to up to --limit unread sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ch, err := openChannel(a)
		if err != nil {
			return err
		}
		defer ch.Stop() //nolint:errcheck

		ctx := context.Background()
		msgs, err := ch.GetUnreadSessions(ctx)
		if err != nil {
			return fmt.Errorf("get unread sessions: %w", err)
		}
		if len(msgs) > autoReplyLimit {
			msgs = msgs[:autoReplyLimit]
		}

		pipeline, cooldowns := buildPipeline(a, ch)

		type outcome struct {
			SessionID  string         `json:"session_id"`
			Intent     message.Intent `json:"intent"`
			ReplyText  string         `json:"reply_text"`
			Dispatched bool           `json:"dispatched"`
		}
		results := make([]outcome, 0, len(msgs))

		for _, msg := range msgs {
			var offeredCouriers []string
			if state, serr := cooldowns.LoadCooldown(ctx, msg.SessionID); serr == nil && !state.CourierLocked {
				offeredCouriers = state.QuotedCouriers
			}

			intent := message.Classify(msg.Text, a.cfg.Messages.OrderKeywords, a.cfg.Messages.KeywordReplies, offeredCouriers)

			params := message.SendParams{
				AccountID: messagesAccountID,
				SessionID: msg.SessionID,
				Actor:     "cli-auto-reply",
				Intent:    intent,
			}
			switch intent {
			case message.IntentKeyword:
				if kw, ok := message.KeywordReply(msg.Text, a.cfg.Messages.KeywordReplies); ok {
					params.ReplyText = kw
				} else {
					params.ReplyText = a.cfg.Messages.DefaultReply
				}
			case message.IntentQuote:
				parsed := message.ParseQuoteRequest(msg.Text, a.cfg.Messages.OriginCity)
				if len(parsed.MissingFields) > 0 {
					params.ReplyText = message.BuildQuoteFormatHintReply(parsed)
					params.QuoteNeedInfo = true
				} else {
					req := parsed.Request
					result, qerr := a.quote.GetQuote(ctx, req)
					if qerr == nil {
						params.ReplyText = message.ComposeQuoteReply(req, result, a.cfg.Messages.QuoteValidityMinutes, a.cfg.Messages.QuoteReplyTemplate)
						params.IsQuote = true
						params.QuoteFallback = result.FallbackUsed
						if courier, ok := result.Explain["matched_courier"].(string); ok && courier != "" && courier != "auto" {
							params.OfferedCouriers = []string{courier}
						}
					} else {
						params.ReplyText = a.cfg.Messages.DefaultReply
					}
				}
			case message.IntentCourierChoice:
				courier, _ := message.MatchOfferedCourier(msg.Text, offeredCouriers)
				params.ReplyText = fmt.Sprintf("好的，已为您安排%s，感谢支持~", courier)
				params.LockCourier = true
			case message.IntentOrder:
				params.ReplyText = "好的，祝您购物愉快，拍下后请及时付款哦~"
				params.IsOrderIntent = true
			default:
				params.ReplyText = a.cfg.Messages.DefaultReply
			}

			dispatched := false
			if !autoReplyDryRun {
				if _, serr := pipeline.Send(ctx, params); serr == nil {
					dispatched = true
				}
			}
			results = append(results, outcome{SessionID: msg.SessionID, Intent: intent, ReplyText: params.ReplyText, Dispatched: dispatched})
		}

		return emitJSON(map[string]any{"dry_run": autoReplyDryRun, "results": results})
	},
}

func init() {
	autoReplyCmd.Flags().IntVar(&autoReplyLimit, "limit", 10, "maximum sessions to process")
	autoReplyCmd.Flags().BoolVar(&autoReplyDryRun, "dry-run", false, "classify and compose replies without sending")
}

var slaBenchmarkCmd = &cobra.Command{
	Use:   "sla-benchmark",
	Short: "Report the current SLA rolling-window sample and summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sample, summary := a.sla.Sample()
		alerts, err := a.sla.EvaluateAlerts(context.Background())
		if err != nil {
			return fmt.Errorf("evaluate alerts: %w", err)
		}
		return emitJSON(map[string]any{"sample": sample, "summary": summary, "newly_raised_alerts": alerts})
	},
}
