// Package routing implements the KNXnet/IP routing client: a UDP multicast
// endpoint that joins the KNX routing group, drives the frame/cEMI/DPT
// codecs, owns the known-group-address table, fans decoded telegrams out to
// subscribers, and accepts outgoing read/write/raw-frame requests (spec.md
// §4.6).
//
// The client is a single cooperative task (the run loop below) that owns
// all of its mutable state — subscribers, the GA table, the stats counters.
// External callers never touch that state directly; they submit commands
// over a channel and block for a reply up to their own context's deadline,
// the same shape as the teacher's busmonitor/bridge done-channel loops.
package routing

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/sync/semaphore"

	"github.com/nerrad567/knxnetip"
	"github.com/nerrad567/knxnetip/knxnet"
)

// Defaults per spec.md §6/§4.6.
const (
	DefaultMulticastIP = "224.0.23.12"
	DefaultPort        = 3671

	defaultRequestTimeout = 5 * time.Second
	defaultFanoutLimit    = 32
)

// Logger is the minimal structured-logging interface the client uses.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// FrameCallback is invoked once per received routing_indication after
// receive-path handling, with whether the destination's DPT was known (or
// allow_unknown_gpa made it irrelevant). A panicking callback is recovered
// and logged. The callback runs on the client's run loop, so a slow
// callback delays the handling of later datagrams and commands.
type FrameCallback func(ind *knxnet.RoutingIndication, handled bool)

// Config configures a Client at construction. GroupAddresses and
// SourceAddress are required; everything else defaults per spec.md §4.6.
type Config struct {
	// AllowUnknownGPA, if true, permits send/receive on group addresses not
	// present in GroupAddresses: received values surface as raw bytes, sent
	// values must be pre-encoded (see WriteRaw).
	AllowUnknownGPA bool

	// GroupAddresses seeds the initial known set: "M/I/S" -> "main.sub".
	GroupAddresses map[string]string

	// LocalIP selects the outgoing interface; nil lets the OS choose.
	LocalIP net.IP
	// MulticastIP defaults to 224.0.23.12.
	MulticastIP net.IP
	// Port defaults to 3671.
	Port int

	// SourceAddress is stamped on every outgoing cEMI data frame.
	SourceAddress knxnetip.IndividualAddress

	// FrameCallback is optional; see FrameCallback's doc comment.
	FrameCallback FrameCallback
	Logger        Logger

	// RequestTimeout defaults to 5s. The client stores it but does not
	// apply it: public calls are bounded only by their context's deadline.
	RequestTimeout time.Duration

	// FanoutLimit bounds the number of concurrently running subscriber
	// fan-out workers. Defaults to 32.
	FanoutLimit int64
}

func (c *Config) setDefaults() {
	if c.MulticastIP == nil {
		c.MulticastIP = net.ParseIP(DefaultMulticastIP)
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.FanoutLimit == 0 {
		c.FanoutLimit = defaultFanoutLimit
	}
}

// Stats is a point-in-time snapshot of client activity, per SPEC_FULL.md §3
// supplement #3.
type Stats struct {
	TelegramsRx  uint64
	TelegramsTx  uint64
	Errors       uint64
	LastActivity time.Time
	Connected    bool
}

// Client is a KNXnet/IP routing client bound to a UDP multicast socket.
// Construct with New, then call Run to start the cooperative task; Run
// blocks until ctx is cancelled or Close is called.
type Client struct {
	cfg  Config
	conn *net.UDPConn
	pc   *ipv4.PacketConn
	dst  *net.UDPAddr

	cmds chan any

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup

	fanoutSem *semaphore.Weighted
}

// New creates a Client bound to the configured (or default) multicast group
// and port, and joins the multicast group on the configured (or
// OS-selected) interface. It does not start the run loop; call Run.
func New(cfg Config) (*Client, error) {
	cfg.setDefaults()
	if cfg.GroupAddresses == nil {
		cfg.GroupAddresses = map[string]string{}
	}

	udpAddr := &net.UDPAddr{IP: cfg.MulticastIP, Port: cfg.Port}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: cfg.Port})
	if err != nil {
		return nil, fmt.Errorf("routing: listen: %w", err)
	}

	pc := ipv4.NewPacketConn(conn)
	iface, err := selectInterface(cfg.LocalIP)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("routing: select interface: %w", err)
	}
	if err := pc.JoinGroup(iface, &net.UDPAddr{IP: cfg.MulticastIP}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("routing: join multicast group: %w", err)
	}
	if err := pc.SetMulticastTTL(16); err != nil {
		conn.Close()
		return nil, fmt.Errorf("routing: set multicast TTL: %w", err)
	}

	return &Client{
		cfg:       cfg,
		conn:      conn,
		pc:        pc,
		dst:       udpAddr,
		cmds:      make(chan any),
		closed:    make(chan struct{}),
		fanoutSem: semaphore.NewWeighted(cfg.FanoutLimit),
	}, nil
}

// selectInterface finds the network interface carrying localIP, or nil
// (any/default interface) when localIP is unset — a best-effort helper per
// spec.md §9; callers with precise requirements should bind an interface
// externally and are not required to use this path.
func selectInterface(localIP net.IP) (*net.Interface, error) {
	if localIP == nil {
		return nil, nil
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if ok && ipNet.IP.Equal(localIP) {
				return &ifaces[i], nil
			}
		}
	}
	return nil, fmt.Errorf("no interface carries address %s", localIP)
}

// Run starts the client's cooperative task: it multiplexes inbound
// datagrams, outbound API commands, and shutdown. Run blocks until ctx is
// cancelled or Close is called, then releases the socket.
func (c *Client) Run(ctx context.Context) error {
	datagrams := make(chan []byte, 64)
	readErrs := make(chan error, 1)

	c.wg.Add(1)
	go c.readLoop(datagrams, readErrs)

	state := newClientState(c.cfg)
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			c.wg.Wait()
			return ctx.Err()
		case <-c.closed:
			c.wg.Wait()
			return nil
		case err := <-readErrs:
			c.logWarn("socket read failed, closing", "error", err.Error())
			c.shutdown()
			c.wg.Wait()
			return err
		case datagram := <-datagrams:
			c.handleDatagram(state, datagram)
		case cmd := <-c.cmds:
			c.handleCommand(state, cmd)
		}
	}
}

// Close stops the run loop and releases the socket. Safe to call more than
// once and from any goroutine.
func (c *Client) Close() error {
	c.shutdown()
	return nil
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

func (c *Client) readLoop(out chan<- []byte, errs chan<- error) {
	defer c.wg.Done()
	buf := make([]byte, 2048)
	for {
		n, _, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
			}
			errs <- err
			return
		}
		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		select {
		case out <- datagram:
		case <-c.closed:
			return
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

// send writes an already-encoded datagram to the multicast group.
func (c *Client) send(datagram []byte) error {
	_, err := c.conn.WriteToUDP(datagram, c.dst)
	return err
}
