package knxnet

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// DIBType identifies the binary layout of a Description Information Block.
type DIBType uint8

const (
	DIBDeviceInfo           DIBType = 0x01
	DIBSupportedSvcFamilies DIBType = 0x02
	DIBIPConfig             DIBType = 0x03
	DIBIPCurConfig          DIBType = 0x04
	DIBKNXAddresses         DIBType = 0x05
	DIBManufacturerData     DIBType = 0xFE
)

// IP assignment methods (§6).
const (
	AssignManual  uint8 = 1
	AssignDHCP    uint8 = 2
	AssignBootP   uint8 = 4
	AssignAutoIP  uint8 = 8
)

// ValidateAssignmentMethod rejects any byte outside the recognised set.
func ValidateAssignmentMethod(b uint8) error {
	switch b {
	case AssignManual, AssignDHCP, AssignBootP, AssignAutoIP:
		return nil
	default:
		return fmt.Errorf("%w: %#02x", ErrUnknownAssignmentMethod, b)
	}
}

// DIB is satisfied by every decoded Description Information Block variant.
// Pack returns the full length-prefixed on-wire record (including its own
// length and type bytes).
type DIB interface {
	Type() DIBType
	Pack() []byte
}

// ServiceFamily is one entry of a SupportedServiceFamiliesDIB.
type ServiceFamily struct {
	Family  uint8
	Version uint8
}

// Service family type bytes (§6).
const (
	ServiceFamilyCore       uint8 = 0x02
	ServiceFamilyDeviceMgmt uint8 = 0x03
	ServiceFamilyTunnelling uint8 = 0x04
	ServiceFamilyRouting    uint8 = 0x05
)

// DeviceInfoDIB is the fixed-layout device_info block.
type DeviceInfoDIB struct {
	Medium         uint8
	Status         uint8
	IndividualAddr uint16
	ProjectID      uint16
	Serial         [6]byte
	MulticastAddr  [4]byte
	MAC            [6]byte
	Name           string
}

func (d *DeviceInfoDIB) Type() DIBType { return DIBDeviceInfo }

func (d *DeviceInfoDIB) Pack() []byte {
	buf := make([]byte, 54)
	buf[0] = 54
	buf[1] = byte(DIBDeviceInfo)
	buf[2] = d.Medium
	buf[3] = d.Status
	binary.BigEndian.PutUint16(buf[4:6], d.IndividualAddr)
	binary.BigEndian.PutUint16(buf[6:8], d.ProjectID)
	copy(buf[8:14], d.Serial[:])
	copy(buf[14:18], d.MulticastAddr[:])
	copy(buf[18:24], d.MAC[:])
	name := []byte(d.Name)
	if len(name) > 30 {
		name = name[:30]
	}
	copy(buf[24:54], name)
	return buf
}

func parseDeviceInfoDIB(payload []byte) (*DeviceInfoDIB, error) {
	if len(payload) < 52 {
		return nil, fmt.Errorf("%w: device_info", ErrTruncatedDIB)
	}
	d := &DeviceInfoDIB{
		Medium:         payload[0],
		Status:         payload[1],
		IndividualAddr: binary.BigEndian.Uint16(payload[2:4]),
		ProjectID:      binary.BigEndian.Uint16(payload[4:6]),
	}
	copy(d.Serial[:], payload[6:12])
	copy(d.MulticastAddr[:], payload[12:16])
	copy(d.MAC[:], payload[16:22])
	d.Name = strings.TrimRight(string(payload[22:52]), "\x00")
	return d, nil
}

// SupportedServiceFamiliesDIB lists protocol families and versions the
// gateway supports.
type SupportedServiceFamiliesDIB struct {
	Families []ServiceFamily
}

func (d *SupportedServiceFamiliesDIB) Type() DIBType { return DIBSupportedSvcFamilies }

func (d *SupportedServiceFamiliesDIB) Pack() []byte {
	buf := make([]byte, 2+2*len(d.Families))
	buf[1] = byte(DIBSupportedSvcFamilies)
	for i, f := range d.Families {
		buf[2+2*i] = f.Family
		buf[2+2*i+1] = f.Version
	}
	buf[0] = byte(len(buf))
	return buf
}

func parseSupportedServiceFamiliesDIB(payload []byte) (*SupportedServiceFamiliesDIB, error) {
	if len(payload)%2 != 0 {
		return nil, fmt.Errorf("%w: supported_svc_families", ErrTruncatedDIB)
	}
	d := &SupportedServiceFamiliesDIB{}
	for i := 0; i+1 < len(payload); i += 2 {
		d.Families = append(d.Families, ServiceFamily{Family: payload[i], Version: payload[i+1]})
	}
	return d, nil
}

// IPConfigDIB is the fixed-layout ip_config block.
type IPConfigDIB struct {
	IP               [4]byte
	Netmask          [4]byte
	Gateway          [4]byte
	Capabilities     uint8
	AssignmentMethod uint8
}

func (d *IPConfigDIB) Type() DIBType { return DIBIPConfig }

func (d *IPConfigDIB) Pack() []byte {
	buf := make([]byte, 16)
	buf[0] = 16
	buf[1] = byte(DIBIPConfig)
	copy(buf[2:6], d.IP[:])
	copy(buf[6:10], d.Netmask[:])
	copy(buf[10:14], d.Gateway[:])
	buf[14] = d.Capabilities
	buf[15] = d.AssignmentMethod
	return buf
}

func parseIPConfigDIB(payload []byte) (*IPConfigDIB, error) {
	if len(payload) < 14 {
		return nil, fmt.Errorf("%w: ip_config", ErrTruncatedDIB)
	}
	d := &IPConfigDIB{Capabilities: payload[12], AssignmentMethod: payload[13]}
	copy(d.IP[:], payload[0:4])
	copy(d.Netmask[:], payload[4:8])
	copy(d.Gateway[:], payload[8:12])
	return d, nil
}

// IPCurrentConfigDIB is the fixed-layout ip_cur_config block. Per spec.md
// §4.3 its capabilities byte is forced to zero on decode; the byte that
// structurally holds capabilities in the plain IPConfigDIB layout is
// reinterpreted here as AssignmentMethod.
type IPCurrentConfigDIB struct {
	IP               [4]byte
	Netmask          [4]byte
	Gateway          [4]byte
	AssignmentMethod uint8
	Reserved         uint8
}

func (d *IPCurrentConfigDIB) Type() DIBType { return DIBIPCurConfig }

func (d *IPCurrentConfigDIB) Pack() []byte {
	buf := make([]byte, 16)
	buf[0] = 16
	buf[1] = byte(DIBIPCurConfig)
	copy(buf[2:6], d.IP[:])
	copy(buf[6:10], d.Netmask[:])
	copy(buf[10:14], d.Gateway[:])
	buf[14] = d.AssignmentMethod
	buf[15] = d.Reserved
	return buf
}

func parseIPCurrentConfigDIB(payload []byte) (*IPCurrentConfigDIB, error) {
	if len(payload) < 14 {
		return nil, fmt.Errorf("%w: ip_cur_config", ErrTruncatedDIB)
	}
	d := &IPCurrentConfigDIB{AssignmentMethod: payload[12], Reserved: payload[13]}
	copy(d.IP[:], payload[0:4])
	copy(d.Netmask[:], payload[4:8])
	copy(d.Gateway[:], payload[8:12])
	return d, nil
}

// KNXAddressesDIB lists the individual addresses a gateway owns.
type KNXAddressesDIB struct {
	Primary    uint16
	Additional []uint16
}

func (d *KNXAddressesDIB) Type() DIBType { return DIBKNXAddresses }

func (d *KNXAddressesDIB) Pack() []byte {
	buf := make([]byte, 4+2*len(d.Additional))
	buf[1] = byte(DIBKNXAddresses)
	binary.BigEndian.PutUint16(buf[2:4], d.Primary)
	for i, a := range d.Additional {
		binary.BigEndian.PutUint16(buf[4+2*i:6+2*i], a)
	}
	buf[0] = byte(len(buf))
	return buf
}

func parseKNXAddressesDIB(payload []byte) (*KNXAddressesDIB, error) {
	if len(payload) < 2 || len(payload)%2 != 0 {
		return nil, fmt.Errorf("%w: knx_addresses", ErrTruncatedDIB)
	}
	d := &KNXAddressesDIB{Primary: binary.BigEndian.Uint16(payload[0:2])}
	for i := 2; i+1 < len(payload); i += 2 {
		d.Additional = append(d.Additional, binary.BigEndian.Uint16(payload[i:i+2]))
	}
	return d, nil
}

// ManufacturerDataDIB is an opaque, vendor-defined block.
type ManufacturerDataDIB struct {
	Data []byte
}

func (d *ManufacturerDataDIB) Type() DIBType { return DIBManufacturerData }

func (d *ManufacturerDataDIB) Pack() []byte {
	buf := make([]byte, 2+len(d.Data))
	buf[1] = byte(DIBManufacturerData)
	copy(buf[2:], d.Data)
	buf[0] = byte(len(buf))
	return buf
}

// UnknownDIB preserves the raw payload of a DIB type this core does not
// model, so the surrounding sequence still parses to completion.
type UnknownDIB struct {
	RawType DIBType
	Data    []byte
}

func (d *UnknownDIB) Type() DIBType { return d.RawType }

func (d *UnknownDIB) Pack() []byte {
	buf := make([]byte, 2+len(d.Data))
	buf[1] = byte(d.RawType)
	copy(buf[2:], d.Data)
	buf[0] = byte(len(buf))
	return buf
}

// ParseDIBs scans a buffer of back-to-back length-prefixed DIB records.
// Each record is length:u8, type:u8, payload[length-2]. Unrecognised types
// are kept as UnknownDIB rather than dropped, so callers that need them
// (or just an accurate count) still see them; §4.3 only requires that
// parsing as a whole not fail because of them.
func ParseDIBs(data []byte) ([]DIB, error) {
	var dibs []DIB
	for len(data) > 0 {
		if len(data) < 2 {
			return nil, fmt.Errorf("%w: dangling byte", ErrTruncatedDIB)
		}
		length := int(data[0])
		typ := DIBType(data[1])
		if length < 2 || length > len(data) {
			return nil, fmt.Errorf("%w: declared length %d", ErrTruncatedDIB, length)
		}
		payload := data[2:length]

		var (
			dib DIB
			err error
		)
		switch typ {
		case DIBDeviceInfo:
			dib, err = parseDeviceInfoDIB(payload)
		case DIBSupportedSvcFamilies:
			dib, err = parseSupportedServiceFamiliesDIB(payload)
		case DIBIPConfig:
			dib, err = parseIPConfigDIB(payload)
		case DIBIPCurConfig:
			dib, err = parseIPCurrentConfigDIB(payload)
		case DIBKNXAddresses:
			dib, err = parseKNXAddressesDIB(payload)
		case DIBManufacturerData:
			dib = &ManufacturerDataDIB{Data: append([]byte(nil), payload...)}
		default:
			dib = &UnknownDIB{RawType: typ, Data: append([]byte(nil), payload...)}
		}
		if err != nil {
			return nil, err
		}
		dibs = append(dibs, dib)
		data = data[length:]
	}
	return dibs, nil
}

// EncodeDIBs concatenates the on-wire form of each DIB in order.
func EncodeDIBs(dibs []DIB) []byte {
	var out []byte
	for _, d := range dibs {
		out = append(out, d.Pack()...)
	}
	return out
}

// FindDeviceInfo returns the single device_info DIB in dibs, per §3's
// invariant that a description response must include exactly one.
func FindDeviceInfo(dibs []DIB) (*DeviceInfoDIB, error) {
	var found *DeviceInfoDIB
	count := 0
	for _, d := range dibs {
		if di, ok := d.(*DeviceInfoDIB); ok {
			found = di
			count++
		}
	}
	if count != 1 {
		return nil, ErrMissingDeviceInfo
	}
	return found, nil
}
