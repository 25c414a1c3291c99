package gacache

import (
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/knxnetip"
)

// Persister is an optional sink for passive sightings, implemented by
// package store. A nil Persister means sightings are kept in memory only.
type Persister interface {
	RecordDevice(addr string, seen time.Time) error
	RecordGroupAddress(addr string, seen time.Time, isResponse bool) error
}

// Sighting is what the Recorder knows about one address.
type Sighting struct {
	LastSeen        time.Time
	MessageCount    uint64
	HasReadResponse bool // group addresses only: has a group_response ever been seen
}

// Recorder observes every telegram a client delivers and builds up a table
// of individual addresses and group addresses actually seen on the bus,
// independent of any configured cache entries. This lets operators discover
// devices and group addresses that were never explicitly configured.
type Recorder struct {
	mu        sync.RWMutex
	devices   map[string]Sighting
	groups    map[string]Sighting
	persister Persister
	logger    Logger
}

// NewRecorder creates an empty passive recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		devices: make(map[string]Sighting),
		groups:  make(map[string]Sighting),
	}
}

// SetPersister installs an optional persistence sink. Errors from the sink
// are logged and otherwise ignored — the in-memory record is authoritative
// for the running process.
func (r *Recorder) SetPersister(p Persister) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.persister = p
}

// SetLogger installs a logger for persistence failures.
func (r *Recorder) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// RecordTelegram records a telegram's source individual address and
// destination group address. isResponse marks whether the telegram was a
// group_response, which some operators use to prioritise health-check
// targets known to answer reads.
func (r *Recorder) RecordTelegram(source knxnetip.IndividualAddress, ga knxnetip.GroupAddress, isResponse bool) {
	now := time.Now()
	sourceStr := source.String()
	gaStr := ga.String()

	r.mu.Lock()
	d := r.devices[sourceStr]
	d.LastSeen = now
	d.MessageCount++
	r.devices[sourceStr] = d

	g := r.groups[gaStr]
	g.LastSeen = now
	g.MessageCount++
	if isResponse {
		g.HasReadResponse = true
	}
	r.groups[gaStr] = g
	persister := r.persister
	r.mu.Unlock()

	if persister == nil {
		return
	}
	if err := persister.RecordDevice(sourceStr, now); err != nil {
		r.logError("persist device sighting failed", "address", sourceStr, "error", err.Error())
	}
	if err := persister.RecordGroupAddress(gaStr, now, isResponse); err != nil {
		r.logError("persist group address sighting failed", "address", gaStr, "error", err.Error())
	}
}

// Devices returns known individual addresses ordered by most recently
// seen first.
func (r *Recorder) Devices() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return orderBySeen(r.devices)
}

// GroupAddresses returns known group addresses: those that have answered a
// group_read first, and within each of the two groups the most recently
// seen first.
func (r *Recorder) GroupAddresses() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addrs := make([]string, 0, len(r.groups))
	for addr := range r.groups {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		a, b := r.groups[addrs[i]], r.groups[addrs[j]]
		if a.HasReadResponse != b.HasReadResponse {
			return a.HasReadResponse
		}
		return a.LastSeen.After(b.LastSeen)
	})
	return addrs
}

// DeviceCount returns the number of distinct individual addresses seen.
func (r *Recorder) DeviceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// GroupAddressCount returns the number of distinct group addresses seen.
func (r *Recorder) GroupAddressCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

func orderBySeen(m map[string]Sighting) []string {
	addrs := make([]string, 0, len(m))
	for addr := range m {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return m[addrs[i]].LastSeen.After(m[addrs[j]].LastSeen)
	})
	return addrs
}

func (r *Recorder) logError(msg string, keysAndValues ...any) {
	r.mu.RLock()
	logger := r.logger
	r.mu.RUnlock()
	if logger != nil {
		logger.Error(msg, keysAndValues...)
	}
}
