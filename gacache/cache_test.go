package gacache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/knxnetip"
)

func mustGA(t *testing.T, s string) knxnetip.GroupAddress {
	t.Helper()
	ga, err := knxnetip.ParseGroupAddress(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ga
}

func TestNewFromMapSeedsEntries(t *testing.T) {
	c, err := NewFromMap(map[string]string{"1/2/3": "1.001"})
	if err != nil {
		t.Fatalf("NewFromMap: %v", err)
	}
	ga := mustGA(t, "1/2/3")
	entry, ok := c.Get(ga)
	if !ok {
		t.Fatal("expected entry to exist")
	}
	if entry.DPT != "1.001" {
		t.Errorf("DPT = %q, want 1.001", entry.DPT)
	}
	if entry.HasValue {
		t.Error("expected no value before any receive/hydrate")
	}
}

func TestOnReceiveUnknownGAIgnored(t *testing.T) {
	c := New()
	ga := mustGA(t, "1/2/3")
	c.OnReceive(ga, true)
	if _, ok := c.Get(ga); ok {
		t.Fatal("unknown GA should not be created by receive")
	}
}

func TestOnReceiveUpdatesKnownEntry(t *testing.T) {
	c, _ := NewFromMap(map[string]string{"1/2/3": "1.001"})
	ga := mustGA(t, "1/2/3")
	c.OnReceive(ga, true)
	entry, ok := c.Get(ga)
	if !ok || !entry.HasValue || entry.Value != true {
		t.Fatalf("got %+v, ok=%v", entry, ok)
	}
}

func TestHydrateStaticSkipsUnknownGA(t *testing.T) {
	c, _ := NewFromMap(map[string]string{"1/2/3": "1.001"})
	err := c.HydrateStatic([]HydrationRecord{
		{GA: "1/2/3", Value: true, UnixSeconds: 1000},
		{GA: "4/5/6", Value: false, UnixSeconds: 1000},
	})
	if err != nil {
		t.Fatalf("HydrateStatic: %v", err)
	}
	known := mustGA(t, "1/2/3")
	entry, _ := c.Get(known)
	if !entry.HasValue || entry.Value != true {
		t.Fatalf("expected hydrated value, got %+v", entry)
	}
	unknown := mustGA(t, "4/5/6")
	if _, ok := c.Get(unknown); ok {
		t.Fatal("unconfigured GA must not be created by static hydration")
	}
}

type stubReader struct {
	values map[string]any
	errs   map[string]error
}

func (s stubReader) ReadGroupAddress(ctx context.Context, ga knxnetip.GroupAddress) (any, error) {
	str := ga.String()
	if err, ok := s.errs[str]; ok {
		return nil, err
	}
	return s.values[str], nil
}

func TestHydrateFromBusStoresSuccessesAndSkipsFailures(t *testing.T) {
	c, _ := NewFromMap(map[string]string{"1/2/3": "1.001", "1/2/4": "1.001"})
	reader := stubReader{
		values: map[string]any{"1/2/3": true},
		errs:   map[string]error{"1/2/4": errors.New("timeout")},
	}
	ga3 := mustGA(t, "1/2/3")
	ga4 := mustGA(t, "1/2/4")

	if err := c.HydrateFromBus(context.Background(), reader, []knxnetip.GroupAddress{ga3, ga4}); err != nil {
		t.Fatalf("HydrateFromBus: %v", err)
	}

	e3, _ := c.Get(ga3)
	if !e3.HasValue || e3.Value != true {
		t.Fatalf("ga3 = %+v, want hydrated true", e3)
	}
	e4, _ := c.Get(ga4)
	if e4.HasValue {
		t.Fatalf("ga4 should remain without a value after read failure, got %+v", e4)
	}
}

func TestToHydrationStateOnlyIncludesEntriesWithValue(t *testing.T) {
	c, _ := NewFromMap(map[string]string{"1/2/3": "1.001", "1/2/4": "1.001"})
	ga3 := mustGA(t, "1/2/3")
	c.OnReceive(ga3, true)

	snapshot := c.ToHydrationState()
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 record, got %d", len(snapshot))
	}
	if snapshot[0].GA != "1/2/3" || snapshot[0].Value != true {
		t.Errorf("unexpected record: %+v", snapshot[0])
	}
}

func TestOnWriteSuccessActsLikeReceive(t *testing.T) {
	c, _ := NewFromMap(map[string]string{"1/2/3": "1.001"})
	ga := mustGA(t, "1/2/3")
	before := time.Now()
	c.OnWriteSuccess(ga, false)
	entry, _ := c.Get(ga)
	if !entry.HasValue || entry.Value != false {
		t.Fatalf("got %+v", entry)
	}
	if entry.LastUpdate.Before(before) {
		t.Error("expected LastUpdate to advance")
	}
}

func TestAddAndRemove(t *testing.T) {
	c := New()
	ga := mustGA(t, "1/2/3")
	c.Add(ga, "1.001", "light")
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
	c.Remove(ga)
	if _, ok := c.Get(ga); ok {
		t.Fatal("expected entry removed")
	}
}
