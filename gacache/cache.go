// Package gacache implements the address-value cache: a concurrent map from
// group address to its most recently known decoded value, with optional
// startup hydration and write-through updates on send.
package gacache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/knxnetip"
)

// Logger is the minimal logging interface used by the cache during
// hydration. A nil Logger disables logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Reader issues a read_group_address request through whichever client
// (routing or tunnel) the cache is bound to. Implemented by
// *routing.Client and *tunnel.Client.
type Reader interface {
	ReadGroupAddress(ctx context.Context, ga knxnetip.GroupAddress) (any, error)
}

// Entry is one cache record. HasValue is false until a value has been
// observed by receive, hydration, or write-through.
type Entry struct {
	DPT        string
	Name       string
	HasValue   bool
	Value      any
	LastUpdate time.Time
}

// HydrationRecord is one entry of a persisted snapshot, as produced by
// ToHydrationState and consumed by HydrateStatic.
type HydrationRecord struct {
	GA          string
	Value       any
	UnixSeconds int64
}

// Cache is a concurrent GroupAddress -> Entry store. The zero value is not
// usable; construct with New or NewFromMap.
type Cache struct {
	mu      sync.RWMutex
	entries map[knxnetip.GroupAddress]Entry
	logger  Logger
}

// New creates an empty cache with no known group addresses.
func New() *Cache {
	return &Cache{entries: make(map[knxnetip.GroupAddress]Entry)}
}

// NewFromMap seeds the cache from an inline map of GA-string to DPT-string,
// as produced by a project source or supplied directly by the caller.
func NewFromMap(gaToDPT map[string]string) (*Cache, error) {
	c := New()
	for gaStr, dpt := range gaToDPT {
		ga, err := knxnetip.ParseGroupAddress(gaStr)
		if err != nil {
			return nil, fmt.Errorf("gacache: seed %q: %w", gaStr, err)
		}
		c.entries[ga] = Entry{DPT: dpt}
	}
	return c, nil
}

// SetLogger installs a logger used for hydration diagnostics.
func (c *Cache) SetLogger(logger Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = logger
}

// Add registers a group address with the cache, or replaces an existing
// entry's DPT/name while preserving its current value if any.
func (c *Cache) Add(ga knxnetip.GroupAddress, dpt, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	existing := c.entries[ga]
	existing.DPT = dpt
	existing.Name = name
	c.entries[ga] = existing
}

// Remove drops a group address from the cache entirely.
func (c *Cache) Remove(ga knxnetip.GroupAddress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, ga)
}

// Get returns the current entry for ga and whether it is known to the
// cache. A known entry with no observed value yet has HasValue == false.
func (c *Cache) Get(ga knxnetip.GroupAddress) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[ga]
	return e, ok
}

// DPTFor returns the configured DPT string for a known group address.
func (c *Cache) DPTFor(ga knxnetip.GroupAddress) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[ga]
	if !ok {
		return "", false
	}
	return e.DPT, true
}

// OnReceive records a value observed on the bus (group_write or
// group_response) for ga. Unknown group addresses are ignored, per the
// observational nature of the cache.
func (c *Cache) OnReceive(ga knxnetip.GroupAddress, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[ga]
	if !ok {
		return
	}
	e.Value = value
	e.HasValue = true
	e.LastUpdate = time.Now()
	c.entries[ga] = e
}

// OnWriteSuccess records the value sent in a successful write_group_address
// call. Callers must not invoke this on send failure — the cache is left
// untouched in that case.
func (c *Cache) OnWriteSuccess(ga knxnetip.GroupAddress, value any) {
	c.OnReceive(ga, value)
}

// HydrateStatic inserts a persisted snapshot into the cache without
// generating bus traffic. Unknown group addresses in the snapshot are
// skipped.
func (c *Cache) HydrateStatic(records []HydrationRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rec := range records {
		ga, err := knxnetip.ParseGroupAddress(rec.GA)
		if err != nil {
			return fmt.Errorf("gacache: hydrate %q: %w", rec.GA, err)
		}
		e, ok := c.entries[ga]
		if !ok {
			continue
		}
		e.Value = rec.Value
		e.HasValue = true
		e.LastUpdate = time.Unix(rec.UnixSeconds, 0)
		c.entries[ga] = e
	}
	return nil
}

// HydrateFromBus issues a read_group_address through reader for every GA in
// gas. Successful reads are stored with the current time; failures are
// logged and leave that entry's value absent. Returns only on ctx
// cancellation or once every GA has been attempted.
func (c *Cache) HydrateFromBus(ctx context.Context, reader Reader, gas []knxnetip.GroupAddress) error {
	for _, ga := range gas {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		value, err := reader.ReadGroupAddress(ctx, ga)
		if err != nil {
			c.logWarn("hydration read failed", "ga", ga.String(), "error", err.Error())
			continue
		}
		c.mu.Lock()
		e, ok := c.entries[ga]
		if ok {
			e.Value = value
			e.HasValue = true
			e.LastUpdate = time.Now()
			c.entries[ga] = e
		}
		c.mu.Unlock()
	}
	return nil
}

// ToHydrationState snapshots every entry that currently has a value, for
// persistence by the caller.
func (c *Cache) ToHydrationState() []HydrationRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]HydrationRecord, 0, len(c.entries))
	for ga, e := range c.entries {
		if !e.HasValue {
			continue
		}
		out = append(out, HydrationRecord{
			GA:          ga.String(),
			Value:       e.Value,
			UnixSeconds: e.LastUpdate.Unix(),
		})
	}
	return out
}

// Len returns the number of group addresses known to the cache.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns a copy of every known entry keyed by group address
// string, for read-only operational visibility (statusapi's /cache
// endpoint).
func (c *Cache) Snapshot() map[string]Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Entry, len(c.entries))
	for ga, e := range c.entries {
		out[ga.String()] = e
	}
	return out
}

func (c *Cache) logWarn(msg string, keysAndValues ...any) {
	c.mu.RLock()
	logger := c.logger
	c.mu.RUnlock()
	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
