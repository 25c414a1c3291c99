// Package mqttbridge implements the optional MQTT command/state bridge
// (SPEC_FULL.md §2, §3 supplement #4): it publishes decoded telegrams and
// cache state to MQTT and accepts outbound write commands over MQTT,
// driving a routing.Client or tunnel.Client. It intentionally carries none
// of the teacher's device-function-mapping machinery (no device registry
// exists in this library); it bridges group addresses and raw values.
package mqttbridge

import (
	"encoding/json"
	"fmt"
	"time"
)

// TopicPrefix is the base topic for all messages this bridge publishes and
// subscribes to.
const TopicPrefix = "knx"

// CommandMessage requests a group_write on a group address. Published by a
// host application, consumed by the bridge.
type CommandMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Address   string    `json:"address"`
	Value     any       `json:"value"`
}

// AckStatus is the outcome of a CommandMessage.
type AckStatus string

const (
	AckAccepted AckStatus = "accepted"
	AckFailed   AckStatus = "failed"
)

// AckMessage acknowledges a CommandMessage by ID.
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	Address   string    `json:"address"`
	Status    AckStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
}

// StateMessage reports a decoded telegram's value for a group address.
// Published on every received group_write/group_response.
type StateMessage struct {
	Address   string    `json:"address"`
	Timestamp time.Time `json:"timestamp"`
	Value     any       `json:"value"`
}

// HealthStatus is the bridge's own operational status.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
)

// HealthMessage reports bridge-level health, mirroring the shape of the
// routing/tunnel client's Stats() snapshot (SPEC_FULL.md §3 supplement #3).
type HealthMessage struct {
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	TelegramsRx   uint64       `json:"telegrams_rx"`
	TelegramsTx   uint64       `json:"telegrams_tx"`
	Errors        uint64       `json:"errors"`
	Reason        string       `json:"reason,omitempty"`
}

// NewAckMessage builds an accepted acknowledgment for cmd.
func NewAckMessage(cmd CommandMessage, address string) AckMessage {
	return AckMessage{CommandID: cmd.ID, Timestamp: time.Now().UTC(), Address: address, Status: AckAccepted}
}

// NewAckError builds a failed acknowledgment for cmd.
func NewAckError(cmd CommandMessage, address string, err error) AckMessage {
	return AckMessage{CommandID: cmd.ID, Timestamp: time.Now().UTC(), Address: address, Status: AckFailed, Error: err.Error()}
}

// NewStateMessage builds a state message for address/value.
func NewStateMessage(address string, value any) StateMessage {
	return StateMessage{Address: address, Timestamp: time.Now().UTC(), Value: value}
}

// NewLWTMessage builds the Last Will and Testament payload, published by the
// broker if the bridge disconnects unexpectedly.
func NewLWTMessage() HealthMessage {
	return HealthMessage{Timestamp: time.Now().UTC(), Status: HealthOffline, Reason: "unexpected_disconnect"}
}

// Topic helpers. Group addresses contain slashes, which are encoded as
// "%2F" so they can appear as a single topic segment.

func CommandTopic(address string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, EncodeTopicAddress(address))
}

func AckTopic(address string) string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefix, EncodeTopicAddress(address))
}

func StateTopic(address string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, EncodeTopicAddress(address))
}

func HealthTopic() string {
	return fmt.Sprintf("%s/health", TopicPrefix)
}

func CommandSubscribeTopic() string {
	return fmt.Sprintf("%s/command/#", TopicPrefix)
}

// EncodeTopicAddress replaces "/" with "%2F" so a KNX group address can
// appear as a single MQTT topic segment.
func EncodeTopicAddress(address string) string {
	out := make([]byte, 0, len(address)+6)
	for i := 0; i < len(address); i++ {
		if address[i] == '/' {
			out = append(out, '%', '2', 'F')
		} else {
			out = append(out, address[i])
		}
	}
	return string(out)
}

// DecodeTopicAddress reverses EncodeTopicAddress.
func DecodeTopicAddress(encoded string) string {
	out := make([]byte, 0, len(encoded))
	for i := 0; i < len(encoded); i++ {
		if i+2 < len(encoded) && encoded[i] == '%' && encoded[i+1] == '2' && encoded[i+2] == 'F' {
			out = append(out, '/')
			i += 2
			continue
		}
		out = append(out, encoded[i])
	}
	return string(out)
}

// marshal is a small helper so callers get a consistently-formatted error.
func marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mqttbridge: marshal: %w", err)
	}
	return data, nil
}
