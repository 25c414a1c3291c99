package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/knxnetip"
	"github.com/nerrad567/knxnetip/cemi"
	"github.com/nerrad567/knxnetip/dpt"
	"github.com/nerrad567/knxnetip/knxnet"
)

// clientState is the mutable state owned exclusively by the run loop: the
// known group-address table, the subscriber list, and activity counters.
// Nothing outside Run/handleCommand/handleDatagram may touch it.
type clientState struct {
	cfg Config

	gaDPT map[knxnetip.GroupAddress]string

	subscribers map[uint64]chan knxnetip.Telegram
	nextSubID   uint64

	stats Stats
}

func newClientState(cfg Config) *clientState {
	s := &clientState{
		cfg:         cfg,
		gaDPT:       make(map[knxnetip.GroupAddress]string, len(cfg.GroupAddresses)),
		subscribers: make(map[uint64]chan knxnetip.Telegram),
		stats:       Stats{Connected: true},
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
// anyway. Bits is 0 for the long form (Data holds full bytes); a non-zero
// Bits (must be 6) selects the short cEMI form, with Data[0]'s low Bits
// bits carrying the payload.
type RawValue struct {
	Data []byte
	Bits int
}

// --- public API: commands submitted to the run loop ---

type subscribeCmd struct {
	reply chan subscribeResult
}
type subscribeResult struct {
	id uint64
	ch chan knxnetip.Telegram
}

type unsubscribeCmd struct {
	id uint64
}

type getGAsCmd struct {
	reply chan map[string]string
}

type addGACmd struct {
	ga   knxnetip.GroupAddress
	dpt  string
	done chan struct{}
}

type removeGACmd struct {
	ga   knxnetip.GroupAddress
	done chan struct{}
}

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

type sendFrameCmd struct {
	body  knxnet.Body
	reply chan error
}

type statsCmd struct {
	reply chan Stats
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

// Subscribe registers a new subscriber and returns its id (for Unsubscribe)
// and the channel telegrams will be delivered on. The channel is buffered;
// a slow subscriber does not block the client's socket loop (fan-out runs
// in a detached worker per spec.md §4.6/§5), but a persistently full
// channel will drop that subscriber's telegrams rather than block forever.
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

// Unsubscribe removes a subscriber. Duplicate or unknown ids are a no-op.
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

// AddGroupAddress registers ga with the given DPT name, replacing any
// existing mapping.
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

// Stats returns a snapshot of current activity counters.
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
// group_response for it via a transient subscription, per spec.md §4.6.
// Returns ErrUnknownGroupAddress if ga is not known and AllowUnknownGPA is
// false, or ErrTimeout if ctx expires first.
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

// WriteGroupAddress DPT-encodes value for ga's configured DPT and sends a
// group_write. Fails with ErrUnknownGroupAddress if ga is not known and
// AllowUnknownGPA is false, or with a *dpt.EncodeError on range/shape
// violations.
func (c *Client) WriteGroupAddress(ctx context.Context, ga knxnetip.GroupAddress, value any) error {
	reply := make(chan error, 1)
	if err := c.submit(ctx, writeGACmd{ga: ga, value: value, reply: reply}); err != nil {
		return err
	}
	return c.awaitReply(ctx, reply)
}

// WriteRaw sends a pre-encoded value bitstring to ga, bypassing the DPT
// codec entirely. Valid only when ga is unknown and AllowUnknownGPA is
// true, or when the caller deliberately wants to bypass the configured DPT
// for a known ga.
func (c *Client) WriteRaw(ctx context.Context, ga knxnetip.GroupAddress, raw RawValue) error {
	reply := make(chan error, 1)
	if err := c.submit(ctx, writeGACmd{ga: ga, raw: &raw, reply: reply}); err != nil {
		return err
	}
	return c.awaitReply(ctx, reply)
}

// SendFrame emits body verbatim (wrapped in the outer header), with no DPT
// or GA involvement at all.
func (c *Client) SendFrame(ctx context.Context, body knxnet.Body) error {
	reply := make(chan error, 1)
	if err := c.submit(ctx, sendFrameCmd{body: body, reply: reply}); err != nil {
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

// --- run-loop-side command handling ---

func (c *Client) handleCommand(s *clientState, cmd any) {
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
		v.reply <- s.stats

	case readGACmd:
		err := c.emitRead(s, v.ga)
		if err == nil {
			s.stats.TelegramsTx++
		}
		v.reply <- err

	case writeGACmd:
		err := c.emitWrite(s, v.ga, v.value, v.raw)
		if err == nil {
			s.stats.TelegramsTx++
		}
		v.reply <- err

	case sendFrameCmd:
		err := c.emitFrame(knxnet.Frame{Body: v.body})
		if err == nil {
			s.stats.TelegramsTx++
		}
		v.reply <- err
	}
}

func (c *Client) emitRead(s *clientState, ga knxnetip.GroupAddress) error {
	if _, known := s.gaDPT[ga]; !known && !s.cfg.AllowUnknownGPA {
		return fmt.Errorf("%w: %s", knxnetip.ErrUnknownGroupAddress, ga)
	}
	rec := cemi.DataRecord{
		TPCI: cemi.TPCI{Kind: cemi.UnnumberedData},
		APCI: cemi.APCIGroupRead,
	}
	return c.sendDataRecord(ga, rec)
}

func (c *Client) emitWrite(s *clientState, ga knxnetip.GroupAddress, value any, raw *RawValue) error {
	dptName, known := s.gaDPT[ga]
	if !known && !s.cfg.AllowUnknownGPA {
		return fmt.Errorf("%w: %s", knxnetip.ErrUnknownGroupAddress, ga)
	}

	var rec cemi.DataRecord
	rec.TPCI = cemi.TPCI{Kind: cemi.UnnumberedData}
	rec.APCI = cemi.APCIGroupWrite

	if raw != nil {
		rec.Value = raw.Data
		rec.ValueBits = raw.Bits
	} else {
		if !known {
			return fmt.Errorf("%w: %s", knxnetip.ErrUnknownGroupAddress, ga)
		}
		encoded, err := dpt.Encode(dptName, value)
		if err != nil {
			return err
		}
		rec.Value = encoded
		if dpt.IsShortForm(dptName) && len(encoded) == 1 {
			rec.ValueBits = 6
		}
	}

	if err := c.sendDataRecord(ga, rec); err != nil {
		return err
	}
	return nil
}

// defaultControlField is a standard-frame, don't-repeat, broadcast,
// hop-count-6 control word, the conventional default for an outgoing group
// telegram; WithDestinationGroup always (re)asserts bit 7 regardless.
const defaultControlField = cemi.ControlField(0xBCE0)

func (c *Client) sendDataRecord(ga knxnetip.GroupAddress, rec cemi.DataRecord) error {
	ind := &knxnet.RoutingIndication{
		MessageCode: cemi.DataRequest,
		Control:     defaultControlField.WithDestinationGroup(true),
		Source:      c.cfg.SourceAddress.ToUint16(),
		Destination: ga.ToUint16(),
		Data:        &rec,
	}
	return c.emitFrame(knxnet.Frame{Body: ind})
}

func (c *Client) emitFrame(frame knxnet.Frame) error {
	datagram, err := frame.Encode()
	if err != nil {
		return err
	}
	return c.send(datagram)
}

// --- run-loop-side receive handling ---

func (c *Client) handleDatagram(s *clientState, datagram []byte) {
	frame, err := knxnet.ParseFrame(datagram)
	if err != nil {
		c.logDebug("dropping frame", "error", err.Error())
		s.stats.Errors++
		return
	}
	s.stats.LastActivity = time.Now()

	ind, ok := frame.Body.(*knxnet.RoutingIndication)
	if !ok {
		return
	}
	if ind.Data == nil {
		// A routing indication whose message code is neither data_request
		// nor data_indicator carries only Raw bytes: no telegram is built.
		c.invokeCallback(ind, false)
		return
	}
	if !ind.Control.IsDestinationGroup() {
		c.invokeCallback(ind, false)
		return
	}

	var kind knxnetip.TelegramKind
	switch ind.Data.APCI {
	case cemi.APCIGroupRead:
		kind = knxnetip.GroupRead
	case cemi.APCIGroupResponse:
		kind = knxnetip.GroupResponse
	case cemi.APCIGroupWrite:
		kind = knxnetip.GroupWrite
	default:
		c.invokeCallback(ind, false)
		return
	}

	ga := knxnetip.GroupAddressFromUint16(ind.Destination)
	src := knxnetip.IndividualAddressFromUint16(ind.Source)

	dptName, known := s.gaDPT[ga]
	if !known && !s.cfg.AllowUnknownGPA {
		c.logDebug("unknown group address, dropping", "ga", ga.String())
		c.invokeCallback(ind, false)
		return
	}

	var value any
	if kind != knxnetip.GroupRead {
		if known {
			decoded, err := dpt.Decode(dptName, ind.Data.Value)
			if err != nil {
				c.logInfo("dpt decode failed", "ga", ga.String(), "dpt", dptName, "error", err.Error())
				c.invokeCallback(ind, false)
				return
			}
			value = decoded
		} else {
			value = append([]byte(nil), ind.Data.Value...)
		}
	}

	s.stats.TelegramsRx++
	telegram := knxnetip.Telegram{Kind: kind, Source: src, Destination: ga, Value: value}
	c.fanout(s, telegram)
	c.invokeCallback(ind, true)
}

// fanout hands the telegram to a detached worker per spec.md §4.6/§5: the
// client task must never block on subscriber processing, since a
// subscriber may itself call back into WriteGroupAddress.
func (c *Client) fanout(s *clientState, t knxnetip.Telegram) {
	if len(s.subscribers) == 0 {
		return
	}
	subs := make([]chan knxnetip.Telegram, 0, len(s.subscribers))
	for _, ch := range s.subscribers {
		subs = append(subs, ch)
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.fanoutSem.Acquire(ctx, 1); err != nil {
			return
		}
		defer c.fanoutSem.Release(1)
		for _, ch := range subs {
			select {
			case ch <- t:
			default:
				c.logWarn("subscriber channel full, dropping telegram")
			}
		}
	}()
}

func (c *Client) invokeCallback(ind *knxnet.RoutingIndication, handled bool) {
	cb := c.cfg.FrameCallback
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logError("frame callback panicked", "recovered", fmt.Sprint(r))
		}
	}()
	cb(ind, handled)
}
