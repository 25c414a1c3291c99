package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/knxnetip"
)

// Source is the subset of routing.Client / tunnel.Client this bridge
// drives. Both concrete clients satisfy it with their existing method
// sets, so a Bridge can front either.
type Source interface {
	Subscribe(ctx context.Context) (uint64, <-chan knxnetip.Telegram, error)
	Unsubscribe(id uint64)
	WriteGroupAddress(ctx context.Context, ga knxnetip.GroupAddress, value any) error
}

// Logger is the minimal structured-logging interface the bridge uses.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// Config configures a Bridge.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
	Logger   Logger
}

// Bridge publishes StateMessages for every telegram its Source emits and
// subscribes to CommandSubscribeTopic to drive WriteGroupAddress calls on Source,
// grounded on the teacher's Bridge/mqtt.Client pairing in bridge.go.
type Bridge struct {
	cfg    Config
	source Source
	client pahomqtt.Client

	subID uint64
	done  chan struct{}
	wg    sync.WaitGroup

	startTime time.Time
}

// New constructs a Bridge bound to source. Call Start to connect and begin
// forwarding telegrams; call Stop to disconnect.
func New(cfg Config, source Source) *Bridge {
	if cfg.QoS == 0 {
		cfg.QoS = 1
	}
	return &Bridge{cfg: cfg, source: source, done: make(chan struct{})}
}

// Start connects to the configured broker, subscribes to the command topic,
// and begins forwarding telegrams from Source as state messages.
func (b *Bridge) Start(ctx context.Context) error {
	opts := pahomqtt.NewClientOptions().
		AddBroker(b.cfg.Broker).
		SetClientID(b.cfg.ClientID).
		SetUsername(b.cfg.Username).
		SetPassword(b.cfg.Password).
		SetAutoReconnect(true).
		SetCleanSession(true)

	lwt, err := marshal(NewLWTMessage())
	if err == nil {
		opts.SetWill(HealthTopic(), string(lwt), b.cfg.QoS, true)
	}

	b.client = pahomqtt.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqttbridge: connect timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqttbridge: connect: %w", err)
	}

	if t := b.client.Subscribe(CommandSubscribeTopic(), b.cfg.QoS, b.onCommand); t.Wait() && t.Error() != nil {
		return fmt.Errorf("mqttbridge: subscribe commands: %w", t.Error())
	}

	id, ch, err := b.source.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("mqttbridge: subscribe to source: %w", err)
	}
	b.subID = id
	b.startTime = time.Now()

	b.wg.Add(1)
	go b.forwardLoop(ch)

	b.logInfo("mqttbridge started", "broker", b.cfg.Broker)
	return nil
}

// Stop unsubscribes from Source and disconnects from the broker. Safe to
// call once after a successful Start.
func (b *Bridge) Stop() {
	close(b.done)
	b.source.Unsubscribe(b.subID)
	b.wg.Wait()
	if b.client != nil {
		b.client.Disconnect(250)
	}
}

func (b *Bridge) forwardLoop(ch <-chan knxnetip.Telegram) {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case t := <-ch:
			if t.Kind == knxnetip.GroupRead {
				continue
			}
			b.publishState(t)
		}
	}
}

func (b *Bridge) publishState(t knxnetip.Telegram) {
	msg := NewStateMessage(t.Destination.String(), t.Value)
	payload, err := marshal(msg)
	if err != nil {
		b.logWarn("failed to marshal state message", "error", err.Error())
		return
	}
	b.client.Publish(StateTopic(t.Destination.String()), b.cfg.QoS, true, payload)
}

// onCommand handles an inbound CommandMessage: parse the target group
// address, call Source.WriteGroupAddress, and publish an ack keyed by the
// command's correlation ID (falling back to a generated uuid if the
// command didn't carry one, matching the teacher's CommandMessage.ID
// correlation idiom).
func (b *Bridge) onCommand(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logError("command handler panic recovered", "panic", r)
		}
	}()

	var cmd CommandMessage
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		b.logWarn("dropping malformed command", "error", err.Error())
		return
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	ga, err := knxnetip.ParseGroupAddress(cmd.Address)
	if err != nil {
		b.publishAck(NewAckError(cmd, cmd.Address, err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.source.WriteGroupAddress(ctx, ga, cmd.Value); err != nil {
		b.publishAck(NewAckError(cmd, cmd.Address, err))
		return
	}
	b.publishAck(NewAckMessage(cmd, cmd.Address))
}

// Publish satisfies routing.HealthPublisher / tunnel.HealthPublisher so a
// Bridge can back a HealthReporter directly.
func (b *Bridge) Publish(topic string, payload []byte, qos byte, retained bool) error {
	token := b.client.Publish(topic, qos, retained, payload)
	token.Wait()
	return token.Error()
}

func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := marshal(ack)
	if err != nil {
		b.logWarn("failed to marshal ack message", "error", err.Error())
		return
	}
	b.client.Publish(AckTopic(ack.Address), b.cfg.QoS, false, payload)
}

func (b *Bridge) logDebug(msg string, kv ...any) { b.log(Logger.Debug, msg, kv...) }
func (b *Bridge) logInfo(msg string, kv ...any)  { b.log(Logger.Info, msg, kv...) }
func (b *Bridge) logWarn(msg string, kv ...any)  { b.log(Logger.Warn, msg, kv...) }
func (b *Bridge) logError(msg string, kv ...any) { b.log(Logger.Error, msg, kv...) }

func (b *Bridge) log(fn func(Logger, string, ...any), msg string, kv ...any) {
	if b.cfg.Logger == nil {
		return
	}
	fn(b.cfg.Logger, msg, kv...)
}
