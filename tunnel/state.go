package tunnel

import (
	"context"
	"fmt"

	"github.com/nerrad567/knxnetip"
	"github.com/nerrad567/knxnetip/cemi"
	"github.com/nerrad567/knxnetip/dpt"
	"github.com/nerrad567/knxnetip/knxnet"
)

// tunnelState is the mutable state owned exclusively by Run's select loop.
type tunnelState struct {
	cfg Config

	gaDPT map[knxnetip.GroupAddress]string

	subscribers map[uint64]chan knxnetip.Telegram
	nextSubID   uint64

	state    State
	queue    []*queuedTelegram
	inFlight *queuedTelegram

	stats Stats
}

func newTunnelState(cfg Config) *tunnelState {
	s := &tunnelState{
		cfg:         cfg,
		gaDPT:       make(map[knxnetip.GroupAddress]string, len(cfg.GroupAddresses)),
		subscribers: make(map[uint64]chan knxnetip.Telegram),
	}
	for gaStr, dptName := range cfg.GroupAddresses {
		ga, err := knxnetip.ParseGroupAddress(gaStr)
		if err != nil {
			continue
		}
		s.gaDPT[ga] = dptName
	}
	return s
}

// RawValue is a pre-encoded value bitstring, used by WriteRaw when the
// target group address is unknown and AllowUnknownGPA permits sending it
// anyway, mirroring routing.RawValue.
type RawValue struct {
	Data []byte
	Bits int
}

type subscribeCmd struct{ reply chan subscribeResult }
type subscribeResult struct {
	id uint64
	ch chan knxnetip.Telegram
}
type unsubscribeCmd struct{ id uint64 }
type getGAsCmd struct{ reply chan map[string]string }
type addGACmd struct {
	ga   knxnetip.GroupAddress
	dpt  string
	done chan struct{}
}
type removeGACmd struct {
	ga   knxnetip.GroupAddress
	done chan struct{}
}
type statsCmd struct{ reply chan Stats }
type readGACmd struct {
	ga    knxnetip.GroupAddress
	reply chan error
}
type writeGACmd struct {
	ga    knxnetip.GroupAddress
	value any
	raw   *RawValue
	reply chan error
}

func (c *Client) submit(ctx context.Context, cmd any) error {
	select {
	case c.cmds <- cmd:
		return nil
	case <-c.closed:
		return knxnetip.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers a new subscriber and returns its id and delivery
// channel, per the same contract as routing.Client.Subscribe.
func (c *Client) Subscribe(ctx context.Context) (uint64, <-chan knxnetip.Telegram, error) {
	reply := make(chan subscribeResult, 1)
	if err := c.submit(ctx, subscribeCmd{reply: reply}); err != nil {
		return 0, nil, err
	}
	select {
	case res := <-reply:
		return res.id, res.ch, nil
	case <-c.closed:
		return 0, nil, knxnetip.ErrClosed
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

// Unsubscribe removes a subscriber. Unknown ids are a no-op.
func (c *Client) Unsubscribe(id uint64) {
	select {
	case c.cmds <- unsubscribeCmd{id: id}:
	case <-c.closed:
	}
}

// GetGroupAddresses returns a snapshot of the current known set.
func (c *Client) GetGroupAddresses(ctx context.Context) (map[string]string, error) {
	reply := make(chan map[string]string, 1)
	if err := c.submit(ctx, getGAsCmd{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case m := <-reply:
		return m, nil
	case <-c.closed:
		return nil, knxnetip.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AddGroupAddress registers ga with the given DPT name.
func (c *Client) AddGroupAddress(ctx context.Context, ga knxnetip.GroupAddress, dptName string) error {
	done := make(chan struct{})
	if err := c.submit(ctx, addGACmd{ga: ga, dpt: dptName, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-c.closed:
		return knxnetip.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RemoveGroupAddress drops ga from the known set.
func (c *Client) RemoveGroupAddress(ctx context.Context, ga knxnetip.GroupAddress) error {
	done := make(chan struct{})
	if err := c.submit(ctx, removeGACmd{ga: ga, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-c.closed:
		return knxnetip.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of current activity counters and session state.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	if err := c.submit(ctx, statsCmd{reply: reply}); err != nil {
		return Stats{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-c.closed:
		return Stats{}, knxnetip.ErrClosed
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

// ReadGroupAddress sends a group_read to ga and awaits the first
// group_response for it, per the same contract as routing.Client.
func (c *Client) ReadGroupAddress(ctx context.Context, ga knxnetip.GroupAddress) (any, error) {
	id, ch, err := c.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Unsubscribe(id)

	reply := make(chan error, 1)
	if err := c.submit(ctx, readGACmd{ga: ga, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case err := <-reply:
		if err != nil {
			return nil, err
		}
	case <-c.closed:
		return nil, knxnetip.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for {
		select {
		case t := <-ch:
			if t.Kind == knxnetip.GroupResponse && t.Destination == ga {
				return t.Value, nil
			}
		case <-c.closed:
			return nil, knxnetip.ErrClosed
		case <-ctx.Done():
			return nil, fmt.Errorf("%w", knxnetip.ErrTimeout)
		}
	}
}

// WriteGroupAddress DPT-encodes value and enqueues a group_write telegram.
// At most one telegram is in flight at any time; this call enqueues and
// returns once the telegram has actually been acknowledged (or ctx
// expires first).
func (c *Client) WriteGroupAddress(ctx context.Context, ga knxnetip.GroupAddress, value any) error {
	reply := make(chan error, 1)
	if err := c.submit(ctx, writeGACmd{ga: ga, value: value, reply: reply}); err != nil {
		return err
	}
	return c.awaitReply(ctx, reply)
}

// WriteRaw sends a pre-encoded value bitstring to ga, bypassing the DPT
// codec, mirroring routing.Client.WriteRaw.
func (c *Client) WriteRaw(ctx context.Context, ga knxnetip.GroupAddress, raw RawValue) error {
	reply := make(chan error, 1)
	if err := c.submit(ctx, writeGACmd{ga: ga, raw: &raw, reply: reply}); err != nil {
		return err
	}
	return c.awaitReply(ctx, reply)
}

func (c *Client) awaitReply(ctx context.Context, reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-c.closed:
		return knxnetip.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) handleCommand(s *tunnelState, cmd any) {
	switch v := cmd.(type) {
	case subscribeCmd:
		s.nextSubID++
		ch := make(chan knxnetip.Telegram, 16)
		s.subscribers[s.nextSubID] = ch
		v.reply <- subscribeResult{id: s.nextSubID, ch: ch}

	case unsubscribeCmd:
		delete(s.subscribers, v.id)

	case getGAsCmd:
		out := make(map[string]string, len(s.gaDPT))
		for ga, d := range s.gaDPT {
			out[ga.String()] = d
		}
		v.reply <- out

	case addGACmd:
		s.gaDPT[v.ga] = v.dpt
		close(v.done)

	case removeGACmd:
		delete(s.gaDPT, v.ga)
		close(v.done)

	case statsCmd:
		snap := s.stats
		snap.State = s.state
		v.reply <- snap

	case readGACmd:
		c.enqueueRead(s, v.ga, v.reply)

	case writeGACmd:
		c.enqueueWrite(s, v.ga, v.value, v.raw, v.reply)
	}
}

// enqueueRead and enqueueWrite run on the run loop goroutine (from inside
// handleCommand) and must never block: a validation failure completes
// reply immediately, otherwise the built telegram is appended to the send
// queue with reply attached directly to the queuedTelegram, so the
// eventual ackEvent (handled by a later, separate trip through the select
// loop) is what actually completes it.

func (c *Client) enqueueRead(s *tunnelState, ga knxnetip.GroupAddress, reply chan error) {
	if _, known := s.gaDPT[ga]; !known && !s.cfg.AllowUnknownGPA {
		reply <- fmt.Errorf("%w: %s", knxnetip.ErrUnknownGroupAddress, ga)
		return
	}
	rec := cemi.DataRecord{TPCI: cemi.TPCI{Kind: cemi.UnnumberedData}, APCI: cemi.APCIGroupRead}
	c.enqueueDataRecord(s, ga, rec, reply)
}

func (c *Client) enqueueWrite(s *tunnelState, ga knxnetip.GroupAddress, value any, raw *RawValue, reply chan error) {
	dptName, known := s.gaDPT[ga]
	if !known && !s.cfg.AllowUnknownGPA {
		reply <- fmt.Errorf("%w: %s", knxnetip.ErrUnknownGroupAddress, ga)
		return
	}

	rec := cemi.DataRecord{TPCI: cemi.TPCI{Kind: cemi.UnnumberedData}, APCI: cemi.APCIGroupWrite}
	if raw != nil {
		rec.Value = raw.Data
		rec.ValueBits = raw.Bits
	} else {
		if !known {
			reply <- fmt.Errorf("%w: %s", knxnetip.ErrUnknownGroupAddress, ga)
			return
		}
		encoded, err := dpt.Encode(dptName, value)
		if err != nil {
			reply <- err
			return
		}
		rec.Value = encoded
		if dpt.IsShortForm(dptName) && len(encoded) == 1 {
			rec.ValueBits = 6
		}
	}
	c.enqueueDataRecord(s, ga, rec, reply)
}

func (c *Client) enqueueDataRecord(s *tunnelState, ga knxnetip.GroupAddress, rec cemi.DataRecord, reply chan error) {
	ind := &knxnet.RoutingIndication{
		MessageCode: cemi.DataRequest,
		Control:     defaultControlField.WithDestinationGroup(true),
		Source:      s.cfg.SourceAddress.ToUint16(),
		Destination: ga.ToUint16(),
		Data:        &rec,
	}
	data, err := ind.Encode()
	if err != nil {
		reply <- err
		return
	}

	s.queue = append(s.queue, &queuedTelegram{data: data, reply: reply})
	c.drainQueue(s)
}

// defaultControlField mirrors routing.defaultControlField: a standard
// group telegram with hop count 6.
const defaultControlField = cemi.ControlField(0xBCE0)
