package i2cp

import "errors"

// Codec errors.
var (
	ErrTruncatedInput   = errors.New("i2cp: truncated input")
	ErrStringTooLong    = errors.New("i2cp: string longer than 255 bytes")
	ErrMalformedMapping = errors.New("i2cp: malformed mapping")
)

// Session level error classes. Protocol violations and resource exhaustion
// tear the session down; malformed payloads only abort the message at hand.
var (
	ErrProtocolViolation      = errors.New("i2cp: protocol violation")
	ErrMalformedPayload       = errors.New("i2cp: malformed payload")
	ErrDestinationUnavailable = errors.New("i2cp: destination unavailable")
	ErrResourceExhaustion     = errors.New("i2cp: resource exhaustion")
	ErrSessionClosed          = errors.New("i2cp: session closed")
)
