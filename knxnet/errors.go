package knxnet

import "errors"

// Sentinel errors for the outer frame and DIB codecs.
var (
	// ErrIgnoreFrame is returned when the outer header's header_size or
	// protocol_version does not match the supported values. The frame is
	// not malformed in the sense of ErrInvalidFrame; it is simply not one
	// this core understands and should be dropped silently.
	ErrIgnoreFrame = errors.New("knxnet: unsupported frame header")

	// ErrTruncatedDIB is returned when a DIB's declared length exceeds the
	// bytes remaining in the buffer.
	ErrTruncatedDIB = errors.New("knxnet: truncated DIB")

	// ErrUnknownAssignmentMethod is returned when an IP assignment method
	// byte is outside the recognised set {1,2,4,8}.
	ErrUnknownAssignmentMethod = errors.New("knxnet: unknown IP assignment method")

	// ErrMissingDeviceInfo is returned when a description_response body
	// does not contain exactly one device_info DIB.
	ErrMissingDeviceInfo = errors.New("knxnet: description response missing device_info DIB")
)
