package tunnel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/knxnetip"
	"github.com/nerrad567/knxnetip/cemi"
	"github.com/nerrad567/knxnetip/knxnet"
)

// fakeConn is a Connection test double driven directly by the test: Connect
// always succeeds and fires OnConnect, SendTelegram records the payload and
// requires the test to ack it explicitly via ack(), matching the real
// single-in-flight contract.
type fakeConn struct {
	mu       sync.Mutex
	handlers Handlers
	sent     [][]byte
	connects int
	failNext bool
}

func (f *fakeConn) SetHandlers(h Handlers) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = h
}

func (f *fakeConn) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connects++
	fail := f.failNext
	f.failNext = false
	h := f.handlers
	f.mu.Unlock()
	if fail {
		return knxnetip.ErrTimeout
	}
	h.OnConnect()
	return nil
}

func (f *fakeConn) Disconnect() {}

func (f *fakeConn) SendTelegram(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeConn) ack() {
	f.mu.Lock()
	h := f.handlers
	f.mu.Unlock()
	h.OnTelegramAck()
}

func (f *fakeConn) deliver(data []byte) {
	f.mu.Lock()
	h := f.handlers
	f.mu.Unlock()
	h.OnTelegram(data)
}

func (f *fakeConn) disconnect(reason DisconnectReason) {
	f.mu.Lock()
	h := f.handlers
	f.mu.Unlock()
	h.OnDisconnect(reason)
}

func newTestClient(t *testing.T, cfg Config) (*Client, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	c := New(cfg, conn)
	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-runDone:
		case <-time.After(2 * time.Second):
			t.Error("Run did not return after cancel")
		}
	})
	time.Sleep(10 * time.Millisecond)
	return c, conn
}

func TestTunnelConnectsOnRun(t *testing.T) {
	src, _ := knxnetip.NewIndividualAddress(1, 1, 1)
	c, conn := newTestClient(t, Config{SourceAddress: src})

	stats, err := c.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.State != StateConnected {
		t.Errorf("State = %v, want connected", stats.State)
	}
	if conn.connects != 1 {
		t.Errorf("connects = %d, want 1", conn.connects)
	}
}

func TestTunnelWriteGroupAddressWaitsForAck(t *testing.T) {
	src, _ := knxnetip.NewIndividualAddress(1, 1, 1)
	c, conn := newTestClient(t, Config{
		SourceAddress:  src,
		GroupAddresses: map[string]string{"1/2/3": "1.001"},
	})

	ga, _ := knxnetip.ParseGroupAddress("1/2/3")
	writeDone := make(chan error, 1)
	go func() { writeDone <- c.WriteGroupAddress(context.Background(), ga, true) }()

	deadline := time.After(time.Second)
	for {
		select {
		case <-writeDone:
			t.Fatal("WriteGroupAddress returned before the telegram was acked")
		case <-deadline:
			t.Fatal("timed out waiting for fake connection to see the send")
		default:
		}
		conn.mu.Lock()
		n := len(conn.sent)
		conn.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	conn.ack()
	select {
	case err := <-writeDone:
		if err != nil {
			t.Fatalf("WriteGroupAddress: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WriteGroupAddress did not return after ack")
	}
}

func TestTunnelWriteGroupAddressUnknownGA(t *testing.T) {
	src, _ := knxnetip.NewIndividualAddress(1, 1, 1)
	c, _ := newTestClient(t, Config{SourceAddress: src})

	ga, _ := knxnetip.ParseGroupAddress("9/9/9")
	if err := c.WriteGroupAddress(context.Background(), ga, true); err == nil {
		t.Fatal("expected ErrUnknownGroupAddress for unconfigured GA")
	}
}

func TestTunnelInboundTelegramFansOutToSubscribers(t *testing.T) {
	src, _ := knxnetip.NewIndividualAddress(1, 1, 1)
	c, conn := newTestClient(t, Config{
		SourceAddress:  src,
		GroupAddresses: map[string]string{"1/2/3": "1.001"},
	})

	_, ch, err := c.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ga, _ := knxnetip.ParseGroupAddress("1/2/3")
	rec := cemi.DataRecord{
		TPCI:      cemi.TPCI{Kind: cemi.UnnumberedData},
		APCI:      cemi.APCIGroupWrite,
		Value:     []byte{0x01},
		ValueBits: 6,
	}
	ind := &knxnet.RoutingIndication{
		MessageCode: cemi.DataRequest,
		Control:     defaultControlField.WithDestinationGroup(true),
		Source:      src.ToUint16(),
		Destination: ga.ToUint16(),
		Data:        &rec,
	}
	body, err := ind.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	conn.deliver(body)

	select {
	case telegram := <-ch:
		if telegram.Kind != knxnetip.GroupWrite || telegram.Destination != ga {
			t.Errorf("got %+v, want group_write to %s", telegram, ga)
		}
		if v, ok := telegram.Value.(bool); !ok || !v {
			t.Errorf("decoded value = %v, want true", telegram.Value)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fanned-out telegram")
	}
}

func TestTunnelReconnectsAfterDisconnect(t *testing.T) {
	src, _ := knxnetip.NewIndividualAddress(1, 1, 1)
	c, conn := newTestClient(t, Config{SourceAddress: src})

	conn.disconnect(DisconnectTunnellingAckError)

	deadline := time.After(time.Second)
	for {
		stats, err := c.Stats(context.Background())
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if stats.State == StateConnected {
			break
		}
		select {
		case <-deadline:
			t.Fatal("client never reconnected")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if conn.connects < 2 {
		t.Errorf("connects = %d, want at least 2 after reconnect", conn.connects)
	}
}

func TestDisconnectReasonBackoff(t *testing.T) {
	if got := DisconnectRequested.backoff(); got != 0 {
		t.Errorf("DisconnectRequested.backoff() = %v, want 0", got)
	}
	if got := DisconnectConnectResponseError.backoff(); got != 10*time.Second {
		t.Errorf("DisconnectConnectResponseError.backoff() = %v, want 10s", got)
	}
}
