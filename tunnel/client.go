// Package tunnel implements the KNXnet/IP unicast tunnelling client: the
// same external contract as package routing (§4.6) but driven by a
// unicast tunnelling session instead of multicast, with a single-in-flight
// outbound send queue and a reconnect policy (spec.md §4.7).
//
// The KNXnet/IP tunnelling handshake (CONNECT_REQUEST/RESPONSE,
// CONNECTIONSTATE_REQUEST, TUNNELLING_REQUEST/ACK, heartbeats) is treated
// as an external collaborator per spec.md §4.7 and §9: this package drives
// a Connection implementation rather than owning that protocol state
// itself, the same way the teacher's Bridge drives an MQTTClient
// collaborator rather than embedding a broker client.
package tunnel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/knxnetip"
	"github.com/nerrad567/knxnetip/cemi"
	"github.com/nerrad567/knxnetip/dpt"
	"github.com/nerrad567/knxnetip/knxnet"
)

// DisconnectReason classifies why the tunnelling session dropped, driving
// the reconnect policy in spec.md §4.7.
type DisconnectReason uint8

const (
	DisconnectRequested             DisconnectReason = iota // caller-initiated
	DisconnectTunnellingAckError                             // ACK carried an error status
	DisconnectConnectionStateError                           // heartbeat / connection-state check failed
	DisconnectConnectResponseError                           // the initial CONNECT_RESPONSE failed
)

// backoff returns the reconnect delay for reason, per spec.md §4.7: zero
// for three reasons, 10s only for a failed connect response.
func (r DisconnectReason) backoff() time.Duration {
	if r == DisconnectConnectResponseError {
		return 10 * time.Second
	}
	return 0
}

// State is the tunnelling session's connection state machine.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Handlers are the callbacks a Connection invokes into the Client. A
// Connection implementation calls these from its own goroutine(s); Client
// marshals them onto its single run loop via an internal event channel, so
// Handlers methods must never block.
type Handlers struct {
	OnConnect     func()
	OnDisconnect  func(reason DisconnectReason)
	OnTelegram    func(data []byte)
	OnTelegramAck func()
}

// Connection is the external tunnelling-session collaborator: it owns the
// KNXnet/IP CONNECT/TUNNELLING/heartbeat handshake and the underlying
// unicast UDP socket, and reports session lifecycle and inbound telegrams
// via the Handlers registered with SetHandlers.
type Connection interface {
	SetHandlers(h Handlers)
	Connect(ctx context.Context) error
	Disconnect()
	// SendTelegram transmits one cEMI data-service payload (the same byte
	// shape knxnet.RoutingIndication.Encode produces). The caller must wait
	// for OnTelegramAck before sending the next one.
	SendTelegram(data []byte) error
}

// Logger is the minimal structured-logging interface the client uses.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// Config configures a Client at construction, mirroring routing.Config
// where the contract is shared.
type Config struct {
	AllowUnknownGPA bool
	GroupAddresses  map[string]string
	SourceAddress   knxnetip.IndividualAddress
	Logger          Logger
	RequestTimeout  time.Duration
}

func (c *Config) setDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 5 * time.Second
	}
}

// Stats is a point-in-time activity snapshot, per SPEC_FULL.md §3
// supplement #3.
type Stats struct {
	TelegramsRx  uint64
	TelegramsTx  uint64
	Errors       uint64
	LastActivity time.Time
	State        State
}

// queuedTelegram is one pending outbound send: the encoded cEMI bytes plus
// the reply channel WriteGroupAddress/SendTelegram is waiting on.
type queuedTelegram struct {
	data  []byte
	reply chan error
}

// Client is a KNXnet/IP tunnelling client. Construct with New, then call
// Run to start the cooperative task; Run blocks until ctx is cancelled or
// Close is called.
type Client struct {
	cfg  Config
	conn Connection

	events chan any
	cmds   chan any

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// New creates a Client bound to conn. It registers its Handlers with conn
// immediately; conn.Connect is invoked by Run.
func New(cfg Config, conn Connection) *Client {
	cfg.setDefaults()
	if cfg.GroupAddresses == nil {
		cfg.GroupAddresses = map[string]string{}
	}
	c := &Client{
		cfg:    cfg,
		conn:   conn,
		events: make(chan any, 16),
		cmds:   make(chan any),
		closed: make(chan struct{}),
	}
	conn.SetHandlers(Handlers{
		OnConnect:     func() { c.postEvent(connectedEvent{}) },
		OnDisconnect:  func(reason DisconnectReason) { c.postEvent(disconnectedEvent{reason: reason}) },
		OnTelegram:    func(data []byte) { c.postEvent(telegramEvent{data: data}) },
		OnTelegramAck: func() { c.postEvent(ackEvent{}) },
	})
	return c
}

func (c *Client) postEvent(ev any) {
	select {
	case c.events <- ev:
	case <-c.closed:
	}
}

type connectedEvent struct{}
type disconnectedEvent struct{ reason DisconnectReason }
type telegramEvent struct{ data []byte }
type ackEvent struct{}

// Run starts the client's cooperative task: it connects, then multiplexes
// connection lifecycle events, inbound telegrams, outbound API commands,
// and shutdown, applying the reconnect policy on disconnect. Run blocks
// until ctx is cancelled or Close is called.
func (c *Client) Run(ctx context.Context) error {
	s := newTunnelState(c.cfg)
	s.state = StateConnecting
	if err := c.conn.Connect(ctx); err != nil {
		return fmt.Errorf("tunnel: initial connect: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			c.conn.Disconnect()
			close(c.closed)
			return ctx.Err()
		case <-c.closed:
			return nil
		case ev := <-c.events:
			c.handleEvent(ctx, s, ev)
		case cmd := <-c.cmds:
			c.handleCommand(s, cmd)
		}
	}
}

// Close stops the run loop and disconnects. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.conn.Disconnect()
		close(c.closed)
	})
	return nil
}

func (c *Client) handleEvent(ctx context.Context, s *tunnelState, ev any) {
	switch v := ev.(type) {
	case connectedEvent:
		s.state = StateConnected
		c.logInfo("tunnel connected")
		c.drainQueue(s)

	case disconnectedEvent:
		s.state = StateDisconnected
		s.inFlight = nil
		c.logWarn("tunnel disconnected", "reason", fmt.Sprint(v.reason))
		delay := v.reason.backoff()
		go func() {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-c.closed:
					return
				}
			}
			select {
			case <-c.closed:
				return
			default:
			}
			if err := c.conn.Connect(ctx); err != nil {
				c.logError("reconnect failed", "error", err.Error())
			}
		}()

	case telegramEvent:
		c.handleTelegram(s, v.data)

	case ackEvent:
		if s.inFlight != nil {
			s.inFlight.reply <- nil
			s.inFlight = nil
		}
		c.drainQueue(s)
	}
}

func (c *Client) drainQueue(s *tunnelState) {
	if s.state != StateConnected || s.inFlight != nil || len(s.queue) == 0 {
		return
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	if err := c.conn.SendTelegram(next.data); err != nil {
		next.reply <- err
		c.drainQueue(s)
		return
	}
	s.inFlight = next
	s.stats.TelegramsTx++
}

func (c *Client) handleTelegram(s *tunnelState, data []byte) {
	ind, err := knxnet.ParseRoutingIndicationBody(data)
	if err != nil {
		c.logDebug("dropping malformed telegram", "error", err.Error())
		s.stats.Errors++
		return
	}
	if ind.Data == nil || !ind.Control.IsDestinationGroup() {
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
		return
	}

	ga := knxnetip.GroupAddressFromUint16(ind.Destination)
	src := knxnetip.IndividualAddressFromUint16(ind.Source)

	dptName, known := s.gaDPT[ga]
	if !known && !s.cfg.AllowUnknownGPA {
		c.logDebug("unknown group address, dropping", "ga", ga.String())
		return
	}

	var value any
	if kind != knxnetip.GroupRead {
		if known {
			decoded, err := dpt.Decode(dptName, ind.Data.Value)
			if err != nil {
				c.logInfo("dpt decode failed", "ga", ga.String(), "dpt", dptName, "error", err.Error())
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
}

func (c *Client) fanout(s *tunnelState, t knxnetip.Telegram) {
	for _, ch := range s.subscribers {
		select {
		case ch <- t:
		default:
			c.logWarn("subscriber channel full, dropping telegram")
		}
	}
}

func (c *Client) logDebug(msg string, kv ...any) { c.log(Logger.Debug, msg, kv...) }
func (c *Client) logInfo(msg string, kv ...any)  { c.log(Logger.Info, msg, kv...) }
func (c *Client) logWarn(msg string, kv ...any)  { c.log(Logger.Warn, msg, kv...) }
func (c *Client) logError(msg string, kv ...any) { c.log(Logger.Error, msg, kv...) }

func (c *Client) log(fn func(Logger, string, ...any), msg string, kv ...any) {
	if c.cfg.Logger == nil {
		return
	}
	fn(c.cfg.Logger, msg, kv...)
}
