// Package telemetry implements the optional InfluxDB sink for decoded
// datapoint samples: it subscribes to a routing.Client/tunnel.Client and
// writes one point per group_write/group_response telegram.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/knxnetip"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second
	millisecondsPerSecond = 1000
	maxBatchSize          = 100000
	maxFlushIntervalSecs  = 3600
)

// Source is the subset of routing.Client / tunnel.Client this sink
// consumes.
type Source interface {
	Subscribe(ctx context.Context) (uint64, <-chan knxnetip.Telegram, error)
	Unsubscribe(id uint64)
}

// Logger is the minimal structured-logging interface the sink uses.
type Logger interface {
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// Config configures a Sink, mirroring the teacher's InfluxDBConfig.
type Config struct {
	URL           string
	Token         string
	Org           string
	Bucket        string
	Measurement   string
	BatchSize     uint
	FlushInterval time.Duration
	Logger        Logger
}

func (c *Config) setDefaults() {
	if c.Measurement == "" {
		c.Measurement = "knx_telegram"
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = 10 * time.Second
	}
}

// Sink writes decoded telegram values to InfluxDB as they arrive on
// Source, using the non-blocking batched WriteAPI, grounded on
// internal/infrastructure/influxdb/client.go.
type Sink struct {
	cfg      Config
	client   influxdb2.Client
	writeAPI api.WriteAPI
	source   Source

	subID uint64
	done  chan struct{}
	wg    sync.WaitGroup

	mu        sync.RWMutex
	connected bool
}

// Connect verifies connectivity to InfluxDB and returns a Sink ready to
// start forwarding telegrams from source via Start.
func Connect(ctx context.Context, cfg Config, source Source) (*Sink, error) {
	cfg.setDefaults()
	if cfg.BatchSize > maxBatchSize {
		return nil, fmt.Errorf("telemetry: batch_size %d exceeds maximum %d", cfg.BatchSize, maxBatchSize)
	}
	if cfg.FlushInterval > maxFlushIntervalSecs*time.Second {
		return nil, fmt.Errorf("telemetry: flush_interval exceeds maximum %v", maxFlushIntervalSecs*time.Second)
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(cfg.BatchSize).
			SetFlushInterval(uint(cfg.FlushInterval/time.Millisecond)))

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("telemetry: ping failed: %w", err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("telemetry: server not healthy")
	}

	s := &Sink{
		cfg:       cfg,
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		source:    source,
		done:      make(chan struct{}),
		connected: true,
	}
	go s.handleWriteErrors(s.writeAPI.Errors())
	return s, nil
}

// Start subscribes to source and begins writing a point per non-read
// telegram until ctx is cancelled or Close is called.
func (s *Sink) Start(ctx context.Context) error {
	id, ch, err := s.source.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("telemetry: subscribe: %w", err)
	}
	s.subID = id

	s.wg.Add(1)
	go s.consumeLoop(ch)
	return nil
}

func (s *Sink) consumeLoop(ch <-chan knxnetip.Telegram) {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case t := <-ch:
			if t.Kind == knxnetip.GroupRead {
				continue
			}
			s.writePoint(t)
		}
	}
}

func (s *Sink) writePoint(t knxnetip.Telegram) {
	fields := map[string]any{}
	switch v := t.Value.(type) {
	case bool:
		fields["value"] = v
	case float64, float32, int, int64, uint64:
		fields["value"] = v
	default:
		fields["value"] = fmt.Sprint(v)
	}

	p := influxdb2.NewPoint(
		s.cfg.Measurement,
		map[string]string{
			"address": t.Destination.String(),
			"source":  t.Source.String(),
			"kind":    t.Kind.String(),
		},
		fields,
		time.Now(),
	)
	s.writeAPI.WritePoint(p)
}

// Close unsubscribes from source, flushes pending writes, and closes the
// underlying InfluxDB client. The flush happens before the error-handling
// goroutine is stopped so any final write errors still reach the logger.
func (s *Sink) Close() {
	s.source.Unsubscribe(s.subID)
	close(s.done)
	s.wg.Wait()

	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()

	s.writeAPI.Flush()
	s.client.Close()
}

func (s *Sink) handleWriteErrors(errs <-chan error) {
	for err := range errs {
		if s.cfg.Logger != nil {
			s.cfg.Logger.Error("telemetry write failed", "error", err.Error())
		}
	}
}

// IsConnected reports whether Connect's initial ping succeeded and Close
// has not yet been called.
func (s *Sink) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}
