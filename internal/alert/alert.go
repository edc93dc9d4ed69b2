// Package alert fans operational notifications out to pluggable channels:
// the structured log, and the venue's own alert facility.
package alert

import (
	"context"
	"sync"
	"time"

	"wave_trader/internal/core"
)

type Level string

const (
	Info     Level = "INFO"
	Warning  Level = "WARNING"
	Error    Level = "ERROR"
	Critical Level = "CRITICAL"
)

type Payload struct {
	Level     Level
	Title     string
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

type Channel interface {
	Send(ctx context.Context, alert Payload) error
	Name() string
}

type Manager struct {
	channels []Channel
	logger   core.ILogger
	mu       sync.RWMutex
}

func NewManager(logger core.ILogger) *Manager {
	return &Manager{
		channels: make([]Channel, 0),
		logger:   logger.WithField("component", "alert_manager"),
	}
}

func (am *Manager) AddChannel(ch Channel) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.channels = append(am.channels, ch)
	am.logger.Info("Added alert channel", "name", ch.Name())
}

// Alert delivers asynchronously to every channel; delivery failures are
// logged, never propagated to the trading path.
func (am *Manager) Alert(ctx context.Context, title, message string, level Level, fields map[string]string) {
	payload := newPayload(title, message, level, fields)
	am.logger.Info("Triggering alert", "title", title, "level", level)

	am.mu.RLock()
	defer am.mu.RUnlock()

	for _, ch := range am.channels {
		go func(c Channel) {
			am.deliver(ctx, c, payload)
		}(ch)
	}
}

// AlertSync delivers to every channel on the calling goroutine and returns
// only once each delivery has been attempted. Used where the caller must
// not proceed ahead of delivery, such as completion notifications that
// race run shutdown.
func (am *Manager) AlertSync(ctx context.Context, title, message string, level Level, fields map[string]string) {
	payload := newPayload(title, message, level, fields)
	am.logger.Info("Triggering alert", "title", title, "level", level)

	am.mu.RLock()
	channels := make([]Channel, len(am.channels))
	copy(channels, am.channels)
	am.mu.RUnlock()

	for _, ch := range channels {
		am.deliver(ctx, ch, payload)
	}
}

func (am *Manager) deliver(ctx context.Context, ch Channel, payload Payload) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := ch.Send(timeoutCtx, payload); err != nil {
		am.logger.Error("Failed to send alert", "channel", ch.Name(), "error", err)
	}
}

func newPayload(title, message string, level Level, fields map[string]string) Payload {
	return Payload{
		Level:     level,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
		Fields:    fields,
	}
}
