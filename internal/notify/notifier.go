// Package notify forwards task-cron escalation messages to configured
// external channels (Telegram, DingTalk, Lark, Discord, Slack, a
// generic webhook) so a human owner gets paged alongside the in-fleet
// dispatch. A nil Manager is a no-op: none of TaskCron's dispatch
// semantics depend on a channel being configured.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"opengoat/internal/logger"

	nfy "github.com/nikoksr/notify"
	nfydd "github.com/nikoksr/notify/service/dingding"
	nfydc "github.com/nikoksr/notify/service/discord"
	nfyhttp "github.com/nikoksr/notify/service/http"
	nfylark "github.com/nikoksr/notify/service/lark"
	nfyslack "github.com/nikoksr/notify/service/slack"
	nfytg "github.com/nikoksr/notify/service/telegram"
)

// Manager wraps nikoksr/notify.Notify and manages channel lifecycle.
type Manager struct {
	mu               sync.RWMutex
	notifier         *nfy.Notify
	channelNames     []string
	channelNotifiers map[string]*nfy.Notify
}

// NewManager creates an empty notification manager.
func NewManager() *Manager {
	return &Manager{notifier: nfy.New()}
}

// Reload rebuilds the configured channels from OPENGOAT_NOTIFY_*
// environment variables. OpenGoat keeps channel credentials out of
// ui-settings.json (that file is replicated into agent-visible config
// and is not a place to park webhook tokens), so Reload reads the
// process environment rather than a settings repository.
func (m *Manager) Reload() {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := nfy.New()
	perChannel := make(map[string]*nfy.Notify)
	var names []string

	if tgToken := os.Getenv("OPENGOAT_NOTIFY_TELEGRAM_TOKEN"); tgToken != "" {
		if tgChatID := os.Getenv("OPENGOAT_NOTIFY_TELEGRAM_CHAT_ID"); tgChatID != "" {
			if tgSvc, err := nfytg.New(tgToken); err == nil {
				if id, err := strconv.ParseInt(strings.TrimSpace(tgChatID), 10, 64); err == nil {
					tgSvc.AddReceivers(id)
					n.UseServices(tgSvc)
					pc := nfy.New()
					pc.UseServices(tgSvc)
					perChannel["telegram"] = pc
					names = append(names, "telegram")
				} else {
					logger.Core.Warn().Str("chat_id", tgChatID).Msg("notify: telegram chat id invalid")
				}
			} else {
				logger.Core.Warn().Err(err).Msg("notify: telegram init failed")
			}
		}
	}

	if ddToken := os.Getenv("OPENGOAT_NOTIFY_DINGTALK_TOKEN"); ddToken != "" {
		ddSvc := nfydd.New(&nfydd.Config{Token: ddToken, Secret: os.Getenv("OPENGOAT_NOTIFY_DINGTALK_SECRET")})
		n.UseServices(ddSvc)
		pc := nfy.New()
		pc.UseServices(ddSvc)
		perChannel["dingtalk"] = pc
		names = append(names, "dingtalk")
	}

	if larkURL := os.Getenv("OPENGOAT_NOTIFY_LARK_WEBHOOK_URL"); larkURL != "" {
		larkSvc := nfylark.NewWebhookService(larkURL)
		n.UseServices(larkSvc)
		pc := nfy.New()
		pc.UseServices(larkSvc)
		perChannel["lark"] = pc
		names = append(names, "lark")
	}

	if dcToken := os.Getenv("OPENGOAT_NOTIFY_DISCORD_TOKEN"); dcToken != "" {
		if dcChannelID := os.Getenv("OPENGOAT_NOTIFY_DISCORD_CHANNEL_ID"); dcChannelID != "" {
			dcSvc := nfydc.New()
			if err := dcSvc.AuthenticateWithBotToken(dcToken); err == nil {
				dcSvc.AddReceivers(strings.TrimSpace(dcChannelID))
				n.UseServices(dcSvc)
				pc := nfy.New()
				pc.UseServices(dcSvc)
				perChannel["discord"] = pc
				names = append(names, "discord")
			} else {
				logger.Core.Warn().Err(err).Msg("notify: discord init failed")
			}
		}
	}

	if slackToken := os.Getenv("OPENGOAT_NOTIFY_SLACK_TOKEN"); slackToken != "" {
		if slackChannelID := os.Getenv("OPENGOAT_NOTIFY_SLACK_CHANNEL_ID"); slackChannelID != "" {
			slackSvc := nfyslack.New(slackToken)
			slackSvc.AddReceivers(strings.TrimSpace(slackChannelID))
			n.UseServices(slackSvc)
			pc := nfy.New()
			pc.UseServices(slackSvc)
			perChannel["slack"] = pc
			names = append(names, "slack")
		}
	}

	if whURL := os.Getenv("OPENGOAT_NOTIFY_WEBHOOK_URL"); whURL != "" {
		whMethod := os.Getenv("OPENGOAT_NOTIFY_WEBHOOK_METHOD")
		if whMethod == "" {
			whMethod = "POST"
		}
		whHeaders := os.Getenv("OPENGOAT_NOTIFY_WEBHOOK_HEADERS")

		hdrs := make(http.Header)
		if whHeaders != "" {
			for _, h := range strings.Split(whHeaders, ",") {
				parts := strings.SplitN(strings.TrimSpace(h), ":", 2)
				if len(parts) == 2 {
					hdrs.Set(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
				}
			}
		}

		httpSvc := nfyhttp.New()
		httpSvc.AddReceivers(&nfyhttp.Webhook{
			URL:         whURL,
			Header:      hdrs,
			ContentType: "application/json; charset=utf-8",
			Method:      whMethod,
			BuildPayload: func(subject, message string) (payload any) {
				return fmt.Sprintf(`{"subject":"%s","message":"%s"}`, escapeJSON(subject), escapeJSON(message))
			},
		})
		n.UseServices(httpSvc)
		pc := nfy.New()
		pc.UseServices(httpSvc)
		perChannel["webhook"] = pc
		names = append(names, "webhook")
	}

	m.notifier = n
	m.channelNames = names
	m.channelNotifiers = perChannel

	logger.Core.Info().Int("channels", len(names)).Strs("names", names).Msg("notify: channels reloaded")
}

// Send dispatches a message to all configured channels.
func (m *Manager) Send(subject, text string) {
	if m == nil {
		return
	}
	m.mu.RLock()
	n := m.notifier
	m.mu.RUnlock()

	if n == nil {
		return
	}
	if err := n.Send(context.Background(), subject, text); err != nil {
		logger.Core.Warn().Err(err).Msg("notify: send failed")
	}
}

// SendAlert formats and sends an escalation alert raised by TaskCron.
// dispatchKind is the cron's dispatch kind, "blocked" or "inactive".
func (m *Manager) SendAlert(dispatchKind, subjectAgentID, message string) {
	if m == nil {
		return
	}
	subject := fmt.Sprintf("opengoat: %s", dispatchKind)
	if subjectAgentID != "" {
		subject = fmt.Sprintf("opengoat: %s (%s)", dispatchKind, subjectAgentID)
	}
	m.Send(subject, message)
}

// SendToChannel dispatches a message to a specific channel by name.
func (m *Manager) SendToChannel(channel, subject, text string) error {
	if m == nil {
		return fmt.Errorf("channel %q not configured", channel)
	}
	m.mu.RLock()
	pc := m.channelNotifiers[channel]
	m.mu.RUnlock()

	if pc == nil {
		return fmt.Errorf("channel %q not configured", channel)
	}
	if err := pc.Send(context.Background(), subject, text); err != nil {
		logger.Core.Warn().Err(err).Str("channel", channel).Msg("notify: send to channel failed")
		return err
	}
	return nil
}

// HasChannels returns true if at least one channel is configured.
func (m *Manager) HasChannels() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.channelNames) > 0
}

// ChannelNames returns the names of all configured channels.
func (m *Manager) ChannelNames() []string {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]string, len(m.channelNames))
	copy(result, m.channelNames)
	return result
}

func escapeJSON(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
	return r.Replace(s)
}
