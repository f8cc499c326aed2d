package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"opengoat/internal/database"
	"opengoat/internal/logger"
	"opengoat/internal/openclaw"
)

// Collector runs two feeds into the audit ledger: a periodic tail of
// OpenClaw's on-disk session transcripts, and (when a gateway client is
// attached) live tool/session/error events pushed over the gateway
// websocket. Either feed can run alone; both write through the same
// ActivityRepo and OnActivity callback.
type Collector struct {
	parser   *SessionParser
	client   *openclaw.GWClient
	activity *database.ActivityRepo
	interval time.Duration
	stopCh   chan struct{}
	running  bool

	// OnActivity, if set, is invoked for every ledger write in addition
	// to the ActivityRepo. The service facade uses this to surface a
	// bounded recent-activity view without a dependency on storage.
	OnActivity func(NormalizedEvent)

	lastSessions map[string]sessionSnapshot
}

type sessionSnapshot struct {
	TotalTokens int64
	UpdatedAt   int64
}

// NewCollector builds a collector that tails session transcripts under
// openclawDir every intervalSec seconds. client may be nil to disable
// the live gateway feed.
func NewCollector(openclawDir string, client *openclaw.GWClient, activity *database.ActivityRepo, intervalSec int) *Collector {
	if intervalSec < 10 {
		intervalSec = 30
	}
	return &Collector{
		parser:       NewSessionParser(openclawDir),
		client:       client,
		activity:     activity,
		interval:     time.Duration(intervalSec) * time.Second,
		stopCh:       make(chan struct{}),
		lastSessions: make(map[string]sessionSnapshot),
	}
}

func (c *Collector) IsRunning() bool { return c.running }

// Start runs the transcript-tail loop until Stop is called. It blocks;
// callers run it in its own goroutine.
func (c *Collector) Start() {
	c.running = true
	logger.Core.Info().Dur("interval", c.interval).Msg("monitor: collector started")

	if c.client != nil {
		c.client.OnEvent = c.handleGatewayEvent
	}

	c.scan()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.scan()
			if c.client != nil {
				c.pollSessions()
			}
		case <-c.stopCh:
			c.running = false
			logger.Core.Info().Msg("monitor: collector stopped")
			return
		}
	}
}

func (c *Collector) Stop() {
	if c.running {
		close(c.stopCh)
		c.stopCh = make(chan struct{})
	}
}

func (c *Collector) scan() {
	events, err := c.parser.ReadNewEvents()
	if err != nil {
		logger.Core.Warn().Err(err).Msg("monitor: transcript scan failed")
		return
	}
	for _, evt := range events {
		c.record(evt)
	}
}

func (c *Collector) record(evt NormalizedEvent) {
	c.activity.Log("monitor", evt.Category, "", evt.SessionID, evt.Summary)
	if c.OnActivity != nil {
		c.OnActivity(evt)
	}
}

func (c *Collector) handleGatewayEvent(frame openclaw.EventFrame) {
	switch {
	case frame.Event == "session.updated" || frame.Event == "session.created":
		var data struct {
			Key   string `json:"key"`
			Model string `json:"model"`
		}
		_ = json.Unmarshal(frame.Payload, &data)
		c.record(NormalizedEvent{
			Timestamp: time.Now().UTC(),
			Category:  CategorySystem,
			Risk:      RiskLow,
			Summary:   fmt.Sprintf("session %s: %s (%s)", strings.TrimPrefix(frame.Event, "session."), data.Key, data.Model),
			SessionID: data.Key,
		})
	case strings.HasPrefix(frame.Event, "tool."):
		var data struct {
			Tool      string `json:"tool"`
			SessionID string `json:"sessionId"`
		}
		_ = json.Unmarshal(frame.Payload, &data)
		c.record(NormalizedEvent{
			Timestamp: time.Now().UTC(),
			Category:  classifyCategory(data.Tool),
			Risk:      assessRisk(data.Tool, nil),
			Summary:   "tool call: " + data.Tool,
			SessionID: data.SessionID,
		})
	case frame.Event == "error":
		var data struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(frame.Payload, &data)
		c.record(NormalizedEvent{
			Timestamp: time.Now().UTC(),
			Category:  CategorySystem,
			Risk:      RiskMedium,
			Summary:   "gateway error: " + data.Message,
		})
	}
}

// pollSessions requests the current session list and logs a ledger
// entry for any session whose token usage advanced since the last
// poll. This complements the event-pushed feed for gateways that don't
// emit a session.updated event on every token delta.
func (c *Collector) pollSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result, err := c.client.Call(ctx, "sessions.list", map[string]interface{}{})
	if err != nil {
		return
	}
	var parsed struct {
		Sessions []struct {
			Key         string `json:"key"`
			Model       string `json:"model"`
			TotalTokens int64  `json:"totalTokens"`
			UpdatedAt   int64  `json:"updatedAt"`
		} `json:"sessions"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return
	}
	for _, sess := range parsed.Sessions {
		prev, known := c.lastSessions[sess.Key]
		c.lastSessions[sess.Key] = sessionSnapshot{TotalTokens: sess.TotalTokens, UpdatedAt: sess.UpdatedAt}
		if known && sess.TotalTokens > prev.TotalTokens {
			c.record(NormalizedEvent{
				Timestamp: time.Now().UTC(),
				Category:  CategoryMessage,
				Risk:      RiskLow,
				Summary:   fmt.Sprintf("session %s: +%d tokens (%s)", sess.Key, sess.TotalTokens-prev.TotalTokens, sess.Model),
				SessionID: sess.Key,
			})
		}
	}
}
