// Package knxnet implements the outer KNXnet/IP frame codec: the fixed
// 6-byte header, host protocol address info (HPAI), the per-request-type
// body parsers and encoders, and the Description Information Block (DIB)
// codec used inside search/description bodies.
package knxnet

import (
	"encoding/binary"
	"fmt"

	"github.com/nerrad567/knxnetip"
	"github.com/nerrad567/knxnetip/cemi"
)

// RequestType is the 16-bit service identifier in the frame header.
type RequestType uint16

// Request type codes fixed by KNXnet/IP (§6).
const (
	SearchRequest           RequestType = 0x0201
	SearchResponse          RequestType = 0x0202
	DescriptionRequest      RequestType = 0x0203
	DescriptionResponse     RequestType = 0x0204
	ConnectRequest          RequestType = 0x0205
	ConnectResponse         RequestType = 0x0206
	ConnectionStateRequest  RequestType = 0x0207
	ConnectionStateResponse RequestType = 0x0208
	DisconnectRequest       RequestType = 0x0209
	DisconnectResponse      RequestType = 0x020A
	DeviceConfigRequest     RequestType = 0x0310
	DeviceConfigAck         RequestType = 0x0311
	TunnellingRequest       RequestType = 0x0420
	TunnellingAck           RequestType = 0x0421
	RoutingIndicationType   RequestType = 0x0530
	RoutingLostMessageType  RequestType = 0x0531
	RoutingBusyType         RequestType = 0x0532
	SecureWrapper           RequestType = 0x0950
	SecureSessionRequest    RequestType = 0x0951
	SecureSessionResponse   RequestType = 0x0952
	SecureSessionAuth       RequestType = 0x0953
	SecureSessionStatus     RequestType = 0x0954
	SecureTimerNotify       RequestType = 0x0955
	ObjectServer            RequestType = 0xF080
)

const (
	headerSize      uint8 = 6
	protocolVersion uint8 = 0x10
)

// HPAI is an 8-byte Host Protocol Address Info record.
type HPAI struct {
	Protocol uint8
	IP       [4]byte
	Port     uint16
}

func (h HPAI) pack() []byte {
	buf := make([]byte, 8)
	buf[0] = 8
	buf[1] = h.Protocol
	copy(buf[2:6], h.IP[:])
	binary.BigEndian.PutUint16(buf[6:8], h.Port)
	return buf
}

func parseHPAI(data []byte) (HPAI, []byte, error) {
	if len(data) < 8 {
		return HPAI{}, nil, fmt.Errorf("%w: truncated HPAI", knxnetip.ErrInvalidFrame)
	}
	if data[0] != 8 {
		return HPAI{}, nil, fmt.Errorf("%w: bad HPAI length %d", knxnetip.ErrInvalidFrame, data[0])
	}
	h := HPAI{Protocol: data[1]}
	copy(h.IP[:], data[2:6])
	h.Port = binary.BigEndian.Uint16(data[6:8])
	return h, data[8:], nil
}

// Body is satisfied by every decoded frame body variant.
type Body interface {
	RequestType() RequestType
	Encode() ([]byte, error)
}

// Frame is a fully decoded KNXnet/IP datagram.
type Frame struct {
	Body Body
}

// Encode wraps the body's encoded bytes with the outer header, computing
// total_length.
func (f Frame) Encode() ([]byte, error) {
	body, err := f.Body.Encode()
	if err != nil {
		return nil, err
	}
	total := 6 + len(body)
	out := make([]byte, total)
	out[0] = headerSize
	out[1] = protocolVersion
	binary.BigEndian.PutUint16(out[2:4], uint16(f.Body.RequestType()))
	binary.BigEndian.PutUint16(out[4:6], uint16(total))
	copy(out[6:], body)
	return out, nil
}

// ParseFrame decodes a full datagram. Per §4.5: a total_length mismatch
// against the received buffer is ErrInvalidFrame (reject outright); a
// header_size/protocol_version this core doesn't support is ErrIgnoreFrame
// (caller should drop silently, not treat as malformed); anything else
// propagates the inner body-parser error.
func ParseFrame(data []byte) (Frame, error) {
	if len(data) < 6 {
		return Frame{}, fmt.Errorf("%w: short header", knxnetip.ErrInvalidFrame)
	}
	totalLength := binary.BigEndian.Uint16(data[4:6])
	if int(totalLength) != len(data) {
		return Frame{}, fmt.Errorf("%w: total_length %d != %d", knxnetip.ErrInvalidFrame, totalLength, len(data))
	}
	if data[0] != headerSize || data[1] != protocolVersion {
		return Frame{}, ErrIgnoreFrame
	}

	reqType := RequestType(binary.BigEndian.Uint16(data[2:4]))
	body := data[6:]

	parsed, err := parseBody(reqType, body)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Body: parsed}, nil
}

func parseBody(reqType RequestType, body []byte) (Body, error) {
	switch reqType {
	case SearchRequest, DescriptionRequest:
		hpai, _, err := parseHPAI(body)
		if err != nil {
			return nil, err
		}
		return &AddressedRequest{Type: reqType, HPAI: hpai}, nil
	case SearchResponse, DescriptionResponse:
		hpai, rest, err := parseHPAI(body)
		if err != nil {
			return nil, err
		}
		dibs, err := ParseDIBs(rest)
		if err != nil {
			return nil, err
		}
		if reqType == DescriptionResponse {
			if _, err := FindDeviceInfo(dibs); err != nil {
				return nil, err
			}
		}
		return &DescribedResponse{Type: reqType, HPAI: hpai, DIBs: dibs}, nil
	case RoutingIndicationType:
		return parseRoutingIndication(body)
	case RoutingBusyType:
		return parseRoutingBusy(body)
	case RoutingLostMessageType:
		return parseRoutingLostMessage(body)
	default:
		return &Opaque{Type: reqType, Data: append([]byte(nil), body...)}, nil
	}
}

// AddressedRequest covers search_request and description_request, both of
// which carry only an HPAI.
type AddressedRequest struct {
	Type RequestType
	HPAI HPAI
}

func (r *AddressedRequest) RequestType() RequestType { return r.Type }
func (r *AddressedRequest) Encode() ([]byte, error)  { return r.HPAI.pack(), nil }

// DescribedResponse covers search_response and description_response, both
// of which carry an HPAI followed by a DIB sequence.
type DescribedResponse struct {
	Type RequestType
	HPAI HPAI
	DIBs []DIB
}

func (r *DescribedResponse) RequestType() RequestType { return r.Type }
func (r *DescribedResponse) Encode() ([]byte, error) {
	return append(r.HPAI.pack(), EncodeDIBs(r.DIBs)...), nil
}

// RoutingIndication is the one-shot multicast frame carrying a cEMI
// telegram.
type RoutingIndication struct {
	MessageCode  uint8
	AdditionalInfo []byte
	Control      cemi.ControlField
	Source       uint16
	Destination  uint16
	// Data holds the decoded record when MessageCode is data_request or
	// data_indicator. Raw holds the remaining bytes verbatim otherwise.
	Data *cemi.DataRecord
	Raw  []byte
}

func (r *RoutingIndication) RequestType() RequestType { return RoutingIndicationType }

func (r *RoutingIndication) Encode() ([]byte, error) {
	if r.Data == nil {
		out := make([]byte, 1+1+len(r.AdditionalInfo)+len(r.Raw))
		out[0] = r.MessageCode
		out[1] = uint8(len(r.AdditionalInfo))
		copy(out[2:], r.AdditionalInfo)
		copy(out[2+len(r.AdditionalInfo):], r.Raw)
		return out, nil
	}
	dataLength, npdu := cemi.EncodeDataRecord(*r.Data)
	head := make([]byte, 1+1+len(r.AdditionalInfo)+2+2+2+1)
	head[0] = r.MessageCode
	head[1] = uint8(len(r.AdditionalInfo))
	copy(head[2:], r.AdditionalInfo)
	off := 2 + len(r.AdditionalInfo)
	binary.BigEndian.PutUint16(head[off:off+2], uint16(r.Control))
	binary.BigEndian.PutUint16(head[off+2:off+4], r.Source)
	binary.BigEndian.PutUint16(head[off+4:off+6], r.Destination)
	head[off+6] = dataLength
	return append(head, npdu...), nil
}

// ParseRoutingIndicationBody decodes a bare cEMI data-service payload (the
// same byte shape RoutingIndication.Encode produces, with no outer
// KNXnet/IP header). The tunnel client's external tunnelling-connection
// collaborator exchanges exactly this shape, since tunnelling frames carry
// the same cEMI body as routing indications (§4.7).
func ParseRoutingIndicationBody(body []byte) (*RoutingIndication, error) {
	return parseRoutingIndication(body)
}

func parseRoutingIndication(body []byte) (*RoutingIndication, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("%w: short routing_indication", knxnetip.ErrInvalidFrame)
	}
	messageCode := body[0]
	addInfoLen := int(body[1])
	if len(body) < 2+addInfoLen {
		return nil, fmt.Errorf("%w: truncated additional_info", knxnetip.ErrInvalidFrame)
	}
	addInfo := body[2 : 2+addInfoLen]
	rest := body[2+addInfoLen:]

	if messageCode != cemi.DataRequest && messageCode != cemi.DataIndicator {
		return &RoutingIndication{
			MessageCode:    messageCode,
			AdditionalInfo: append([]byte(nil), addInfo...),
			Raw:            append([]byte(nil), rest...),
		}, nil
	}

	if len(rest) < 7 {
		return nil, fmt.Errorf("%w: truncated cemi data service", knxnetip.ErrInvalidFrame)
	}
	control := cemi.ControlField(binary.BigEndian.Uint16(rest[0:2]))
	source := binary.BigEndian.Uint16(rest[2:4])
	dest := binary.BigEndian.Uint16(rest[4:6])
	dataLength := rest[6]
	npdu := rest[7:]

	rec, err := cemi.ParseDataRecord(dataLength, npdu)
	if err != nil {
		return nil, err
	}

	return &RoutingIndication{
		MessageCode:    messageCode,
		AdditionalInfo: append([]byte(nil), addInfo...),
		Control:        control,
		Source:         source,
		Destination:    dest,
		Data:           &rec,
	}, nil
}

// RoutingBusy notifies that a router's receive queue is filling up. This
// core recognises the frame but performs no flow control in response.
type RoutingBusy struct {
	DeviceState uint8
	BusyWaitMs  uint16
	Control     uint16
}

func (r *RoutingBusy) RequestType() RequestType { return RoutingBusyType }
func (r *RoutingBusy) Encode() ([]byte, error) {
	buf := make([]byte, 6)
	buf[0] = 6
	buf[1] = r.DeviceState
	binary.BigEndian.PutUint16(buf[2:4], r.BusyWaitMs)
	binary.BigEndian.PutUint16(buf[4:6], r.Control)
	return buf, nil
}

func parseRoutingBusy(body []byte) (*RoutingBusy, error) {
	if len(body) < 6 {
		return nil, fmt.Errorf("%w: short routing_busy", knxnetip.ErrInvalidFrame)
	}
	return &RoutingBusy{
		DeviceState: body[1],
		BusyWaitMs:  binary.BigEndian.Uint16(body[2:4]),
		Control:     binary.BigEndian.Uint16(body[4:6]),
	}, nil
}

// RoutingLostMessage reports that a router had to discard frames.
type RoutingLostMessage struct {
	DeviceState uint8
	NumLost     uint16
}

func (r *RoutingLostMessage) RequestType() RequestType { return RoutingLostMessageType }
func (r *RoutingLostMessage) Encode() ([]byte, error) {
	buf := make([]byte, 4)
	buf[0] = 4
	buf[1] = r.DeviceState
	binary.BigEndian.PutUint16(buf[2:4], r.NumLost)
	return buf, nil
}

func parseRoutingLostMessage(body []byte) (*RoutingLostMessage, error) {
	if len(body) < 4 {
		return nil, fmt.Errorf("%w: short routing_lost_message", knxnetip.ErrInvalidFrame)
	}
	return &RoutingLostMessage{
		DeviceState: body[1],
		NumLost:     binary.BigEndian.Uint16(body[2:4]),
	}, nil
}

// Opaque is the body of any recognised-but-unparsed request type (connect
// family, tunnelling, secure_*, object_server, …): this core keeps the
// bytes verbatim rather than interpreting them.
type Opaque struct {
	Type RequestType
	Data []byte
}

func (o *Opaque) RequestType() RequestType { return o.Type }
func (o *Opaque) Encode() ([]byte, error)  { return o.Data, nil }
