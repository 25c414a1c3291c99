package tunnel

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// HealthPublisher mirrors routing.HealthPublisher.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// HealthSnapshot is the JSON payload a HealthReporter publishes.
type HealthSnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	State         string    `json:"state"`
	TelegramsRx   uint64    `json:"telegrams_rx"`
	TelegramsTx   uint64    `json:"telegrams_tx"`
	Errors        uint64    `json:"errors"`
}

// HealthReporterConfig configures a HealthReporter.
type HealthReporterConfig struct {
	Topic     string
	Interval  time.Duration
	Publisher HealthPublisher
}

// HealthReporter periodically publishes a Client's Stats() snapshot,
// mirroring routing.HealthReporter.
type HealthReporter struct {
	client    *Client
	topic     string
	interval  time.Duration
	publisher HealthPublisher
	startTime time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHealthReporter creates a reporter for client.
func NewHealthReporter(client *Client, cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Topic == "" {
		cfg.Topic = "knx/health/tunnel"
	}
	return &HealthReporter{
		client:    client,
		topic:     cfg.Topic,
		interval:  cfg.Interval,
		publisher: cfg.Publisher,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
}

// Start begins periodic health reporting until ctx is cancelled or Stop is
// called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop halts periodic reporting. Safe to call more than once.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
	})
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.publishNow(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			h.publishNow(ctx)
		}
	}
}

func (h *HealthReporter) publishNow(ctx context.Context) {
	if h.publisher == nil {
		return
	}
	stats, err := h.client.Stats(ctx)
	if err != nil {
		return
	}
	snap := HealthSnapshot{
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		State:         stats.State.String(),
		TelegramsRx:   stats.TelegramsRx,
		TelegramsTx:   stats.TelegramsTx,
		Errors:        stats.Errors,
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return
	}
	_ = h.publisher.Publish(h.topic, payload, 1, true)
}
