package i2cp

import (
	"encoding/binary"
	"time"

	"github.com/go-i2p/common/data"
	"github.com/go-i2p/go-i2cpd/lib/tunnel"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// Fixed field sizes of message payloads.
const (
	sessionIDSize            = 2
	dateSize                 = 8
	signingPrivateKeySize    = 20
	EncryptionPrivateKeySize = 256
	maxLeasesPerRequest      = 16
)

func malformed(code, format string, args ...interface{}) error {
	return oops.In("i2cp").Code(code).Wrapf(ErrMalformedPayload, format, args...)
}

func readSessionID(payload []byte, what string) (uint16, error) {
	if len(payload) < sessionIDSize {
		return 0, malformed("truncated_"+what, "%s needs a session ID, got %d bytes", what, len(payload))
	}
	return binary.BigEndian.Uint16(payload[0:2]), nil
}

// CreateSessionPayload is the client's request to bind a destination.
//
// Wire format:
//
//	Destination  (variable)
//	Mapping      options
//	Date         8 bytes, ms since epoch
//	Signature    remainder, over everything before it
type CreateSessionPayload struct {
	Identity  *Identity
	Options   Mapping
	Date      time.Time
	Signed    []byte
	Signature []byte
}

// ParseCreateSessionPayload decodes a CreateSession payload, reading the
// destination with codec.
func ParseCreateSessionPayload(codec IdentityCodec, payload []byte) (*CreateSessionPayload, error) {
	ident, offset, err := codec.ReadIdentity(payload)
	if err != nil {
		return nil, err
	}
	options, n, err := ExtractMapping(payload[offset:])
	if err != nil {
		return nil, oops.In("i2cp").Code("bad_session_options").
			Wrapf(ErrMalformedPayload, "session options: %v", err)
	}
	offset += n
	if len(payload)-offset < dateSize {
		return nil, malformed("truncated_create_session", "missing date at offset %d", offset)
	}
	date := int64(binary.BigEndian.Uint64(payload[offset : offset+dateSize]))
	offset += dateSize
	return &CreateSessionPayload{
		Identity:  ident,
		Options:   options,
		Date:      time.UnixMilli(date),
		Signed:    payload[:offset],
		Signature: payload[offset:],
	}, nil
}

// CreateLeaseSetPayload carries the LeaseSet the client built from a
// RequestVariableLeaseSet.
//
// Wire format:
//
//	SessionID             2 bytes
//	SigningPrivateKey     20 bytes (unused, kept for compatibility)
//	EncryptionPrivateKey  256 bytes
//	LeaseSet              remainder
type CreateLeaseSetPayload struct {
	SessionID            uint16
	EncryptionPrivateKey [EncryptionPrivateKeySize]byte
	LeaseSet             []byte
}

// ParseCreateLeaseSetPayload decodes a CreateLeaseSet payload.
func ParseCreateLeaseSetPayload(payload []byte) (*CreateLeaseSetPayload, error) {
	const fixed = sessionIDSize + signingPrivateKeySize + EncryptionPrivateKeySize
	if len(payload) < fixed {
		return nil, malformed("truncated_create_leaseset", "create leaseset needs %d bytes, got %d", fixed, len(payload))
	}
	p := &CreateLeaseSetPayload{SessionID: binary.BigEndian.Uint16(payload[0:2])}
	offset := sessionIDSize + signingPrivateKeySize
	copy(p.EncryptionPrivateKey[:], payload[offset:offset+EncryptionPrivateKeySize])
	p.LeaseSet = payload[fixed:]
	return p, nil
}

// SendMessagePayload is an outbound datagram request.
//
// Wire format:
//
//	SessionID    2 bytes
//	Destination  (variable)
//	Length       4 bytes
//	Payload      Length bytes
//	Nonce        4 bytes
type SendMessagePayload struct {
	SessionID   uint16
	Destination *Identity
	Payload     []byte
	Nonce       uint32
}

// ParseSendMessagePayload decodes a SendMessage payload, reading the remote
// destination with codec.
func ParseSendMessagePayload(codec IdentityCodec, payload []byte) (*SendMessagePayload, error) {
	sid, err := readSessionID(payload, "send_message")
	if err != nil {
		return nil, err
	}
	ident, n, err := codec.ReadIdentity(payload[sessionIDSize:])
	if err != nil {
		return nil, err
	}
	offset := sessionIDSize + n
	if len(payload)-offset < 4 {
		log.WithFields(logger.Fields{
			"at":          "i2cp.ParseSendMessagePayload",
			"payloadSize": len(payload),
			"offset":      offset,
		}).Debug("send_message_missing_length")
		return nil, malformed("truncated_send_message", "missing payload length at offset %d", offset)
	}
	length := binary.BigEndian.Uint32(payload[offset : offset+4])
	offset += 4
	if uint64(len(payload)-offset) < uint64(length)+4 {
		return nil, malformed("truncated_send_message", "payload declares %d bytes, %d available", length, len(payload)-offset)
	}
	body := make([]byte, length)
	copy(body, payload[offset:offset+int(length)])
	offset += int(length)
	return &SendMessagePayload{
		SessionID:   sid,
		Destination: ident,
		Payload:     body,
		Nonce:       binary.BigEndian.Uint32(payload[offset : offset+4]),
	}, nil
}

// MarshalBinary encodes the request as a client would send it.
func (p *SendMessagePayload) MarshalBinary() ([]byte, error) {
	if p.Destination == nil {
		return nil, oops.Errorf("send message without destination")
	}
	out := make([]byte, 0, sessionIDSize+len(p.Destination.Bytes)+8+len(p.Payload))
	out = binary.BigEndian.AppendUint16(out, p.SessionID)
	out = append(out, p.Destination.Bytes...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(p.Payload)))
	out = append(out, p.Payload...)
	out = binary.BigEndian.AppendUint32(out, p.Nonce)
	return out, nil
}

// HostLookupPayload asks the router to resolve a hash or hostname.
//
// Wire format:
//
//	SessionID  2 bytes (0xFFFF without a session)
//	RequestID  4 bytes
//	Timeout    4 bytes, ms
//	Type       1 byte: 0 hash, 1 hostname
//	Hash       32 bytes, or String hostname
type HostLookupPayload struct {
	SessionID uint16
	RequestID uint32
	Timeout   time.Duration
	Type      uint8
	Hash      data.Hash
	Hostname  string
}

// ParseHostLookupPayload decodes a HostLookup payload. Unknown lookup types
// are returned without a query so the caller can answer not-found.
func ParseHostLookupPayload(payload []byte) (*HostLookupPayload, error) {
	const fixed = sessionIDSize + 4 + 4 + 1
	if len(payload) < fixed {
		return nil, malformed("truncated_host_lookup", "host lookup needs %d bytes, got %d", fixed, len(payload))
	}
	p := &HostLookupPayload{
		SessionID: binary.BigEndian.Uint16(payload[0:2]),
		RequestID: binary.BigEndian.Uint32(payload[2:6]),
		Timeout:   time.Duration(binary.BigEndian.Uint32(payload[6:10])) * time.Millisecond,
		Type:      payload[10],
	}
	rest := payload[fixed:]
	switch p.Type {
	case HostLookupTypeHash:
		if len(rest) < len(p.Hash) {
			return p, malformed("truncated_host_lookup", "hash lookup needs %d bytes, got %d", len(p.Hash), len(rest))
		}
		copy(p.Hash[:], rest)
	case HostLookupTypeHostname:
		name, _, err := ExtractString(rest)
		if err != nil {
			return p, oops.In("i2cp").Code("bad_hostname").Wrapf(ErrMalformedPayload, "hostname: %v", err)
		}
		p.Hostname = name
	}
	return p, nil
}

// MarshalBinary encodes the lookup as a client would send it.
func (p *HostLookupPayload) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 11+len(p.Hash))
	out = binary.BigEndian.AppendUint16(out, p.SessionID)
	out = binary.BigEndian.AppendUint32(out, p.RequestID)
	out = binary.BigEndian.AppendUint32(out, uint32(p.Timeout/time.Millisecond))
	out = append(out, p.Type)
	switch p.Type {
	case HostLookupTypeHash:
		out = append(out, p.Hash[:]...)
	case HostLookupTypeHostname:
		name, err := PutString(p.Hostname)
		if err != nil {
			return nil, err
		}
		out = append(out, name...)
	}
	return out, nil
}

// HostReplyPayload answers a HostLookup.
//
// Wire format:
//
//	SessionID    2 bytes
//	RequestID    4 bytes
//	Result       1 byte: 0 found, 1 not found
//	Destination  present only when found
type HostReplyPayload struct {
	SessionID uint16
	RequestID uint32
	Result    uint8
	Identity  []byte
}

// MarshalBinary encodes the reply.
func (p *HostReplyPayload) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 7+len(p.Identity))
	out = binary.BigEndian.AppendUint16(out, p.SessionID)
	out = binary.BigEndian.AppendUint32(out, p.RequestID)
	out = append(out, p.Result)
	if p.Result == HostReplySuccess {
		out = append(out, p.Identity...)
	}
	return out, nil
}

// ParseHostReplyPayload decodes a HostReply.
func ParseHostReplyPayload(payload []byte) (*HostReplyPayload, error) {
	if len(payload) < 7 {
		return nil, malformed("truncated_host_reply", "host reply needs 7 bytes, got %d", len(payload))
	}
	return &HostReplyPayload{
		SessionID: binary.BigEndian.Uint16(payload[0:2]),
		RequestID: binary.BigEndian.Uint32(payload[2:6]),
		Result:    payload[6],
		Identity:  payload[7:],
	}, nil
}

// MessageStatusPayload reports the fate of a SendMessage.
//
// Wire format:
//
//	SessionID  2 bytes
//	MessageID  4 bytes
//	Status     1 byte
//	Size       4 bytes
//	Nonce      4 bytes
type MessageStatusPayload struct {
	SessionID uint16
	MessageID uint32
	Status    MessageStatus
	Size      uint32
	Nonce     uint32
}

// MarshalBinary encodes the status.
func (p *MessageStatusPayload) MarshalBinary() ([]byte, error) {
	out := make([]byte, 15)
	binary.BigEndian.PutUint16(out[0:2], p.SessionID)
	binary.BigEndian.PutUint32(out[2:6], p.MessageID)
	out[6] = uint8(p.Status)
	binary.BigEndian.PutUint32(out[7:11], p.Size)
	binary.BigEndian.PutUint32(out[11:15], p.Nonce)
	return out, nil
}

// ParseMessageStatusPayload decodes a MessageStatus.
func ParseMessageStatusPayload(payload []byte) (*MessageStatusPayload, error) {
	if len(payload) < 15 {
		return nil, malformed("truncated_message_status", "message status needs 15 bytes, got %d", len(payload))
	}
	return &MessageStatusPayload{
		SessionID: binary.BigEndian.Uint16(payload[0:2]),
		MessageID: binary.BigEndian.Uint32(payload[2:6]),
		Status:    MessageStatus(payload[6]),
		Size:      binary.BigEndian.Uint32(payload[7:11]),
		Nonce:     binary.BigEndian.Uint32(payload[11:15]),
	}, nil
}

// MessagePayloadPayload delivers an inbound datagram to the client.
//
// Wire format:
//
//	SessionID  2 bytes
//	MessageID  4 bytes
//	Length     4 bytes
//	Payload    Length bytes
type MessagePayloadPayload struct {
	SessionID uint16
	MessageID uint32
	Payload   []byte
}

// MarshalBinary encodes the delivery.
func (p *MessagePayloadPayload) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 10+len(p.Payload))
	out = binary.BigEndian.AppendUint16(out, p.SessionID)
	out = binary.BigEndian.AppendUint32(out, p.MessageID)
	out = binary.BigEndian.AppendUint32(out, uint32(len(p.Payload)))
	return append(out, p.Payload...), nil
}

// ParseMessagePayloadPayload decodes a MessagePayload.
func ParseMessagePayloadPayload(payload []byte) (*MessagePayloadPayload, error) {
	if len(payload) < 10 {
		return nil, malformed("truncated_message_payload", "message payload needs 10 bytes, got %d", len(payload))
	}
	length := binary.BigEndian.Uint32(payload[6:10])
	if uint64(len(payload)-10) < uint64(length) {
		return nil, malformed("truncated_message_payload", "declares %d bytes, %d available", length, len(payload)-10)
	}
	return &MessagePayloadPayload{
		SessionID: binary.BigEndian.Uint16(payload[0:2]),
		MessageID: binary.BigEndian.Uint32(payload[2:6]),
		Payload:   payload[10 : 10+length],
	}, nil
}

// SessionStatusPayload reports a session lifecycle change: SessionID(2) |
// Status(1).
type SessionStatusPayload struct {
	SessionID uint16
	Status    SessionStatus
}

// MarshalBinary encodes the status.
func (p *SessionStatusPayload) MarshalBinary() ([]byte, error) {
	out := make([]byte, 3)
	binary.BigEndian.PutUint16(out[0:2], p.SessionID)
	out[2] = uint8(p.Status)
	return out, nil
}

// ParseSessionStatusPayload decodes a SessionStatus.
func ParseSessionStatusPayload(payload []byte) (*SessionStatusPayload, error) {
	if len(payload) < 3 {
		return nil, malformed("truncated_session_status", "session status needs 3 bytes, got %d", len(payload))
	}
	return &SessionStatusPayload{
		SessionID: binary.BigEndian.Uint16(payload[0:2]),
		Status:    SessionStatus(payload[2]),
	}, nil
}

// SetDatePayload is the router's answer to GetDate: Date(8) | String version.
type SetDatePayload struct {
	Date    time.Time
	Version string
}

// MarshalBinary encodes the reply.
func (p *SetDatePayload) MarshalBinary() ([]byte, error) {
	version, err := PutString(p.Version)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, dateSize+len(version))
	out = binary.BigEndian.AppendUint64(out, uint64(p.Date.UnixMilli()))
	return append(out, version...), nil
}

// ParseSetDatePayload decodes a SetDate. The version is optional.
func ParseSetDatePayload(payload []byte) (*SetDatePayload, error) {
	if len(payload) < dateSize {
		return nil, malformed("truncated_set_date", "set date needs 8 bytes, got %d", len(payload))
	}
	p := &SetDatePayload{Date: time.UnixMilli(int64(binary.BigEndian.Uint64(payload[0:8])))}
	if len(payload) > dateSize {
		version, _, err := ExtractString(payload[dateSize:])
		if err != nil {
			return nil, err
		}
		p.Version = version
	}
	return p, nil
}

// RequestVariableLeaseSetPayload asks the client to sign a LeaseSet over the
// given inbound tunnels.
//
// Wire format:
//
//	SessionID  2 bytes
//	Count      1 byte
//	Lease      44 bytes each: gateway(32) | tunnel id(4) | end date ms(8)
type RequestVariableLeaseSetPayload struct {
	SessionID uint16
	Leases    []tunnel.InboundTunnel
}

// MarshalBinary encodes the request, keeping at most 16 leases.
func (p *RequestVariableLeaseSetPayload) MarshalBinary() ([]byte, error) {
	leases := p.Leases
	if len(leases) == 0 {
		return nil, oops.Errorf("leaseset request without leases")
	}
	if len(leases) > maxLeasesPerRequest {
		leases = leases[:maxLeasesPerRequest]
	}
	out := make([]byte, 0, 3+len(leases)*tunnel.LeaseSize)
	out = binary.BigEndian.AppendUint16(out, p.SessionID)
	out = append(out, byte(len(leases)))
	for _, l := range leases {
		out = append(out, l.Gateway[:]...)
		out = binary.BigEndian.AppendUint32(out, l.ID)
		out = binary.BigEndian.AppendUint64(out, uint64(l.Expires.UnixMilli()))
	}
	return out, nil
}

// ParseRequestVariableLeaseSetPayload decodes a RequestVariableLeaseSet.
func ParseRequestVariableLeaseSetPayload(payload []byte) (*RequestVariableLeaseSetPayload, error) {
	if len(payload) < 3 {
		return nil, malformed("truncated_leaseset_request", "leaseset request needs 3 bytes, got %d", len(payload))
	}
	count := int(payload[2])
	if len(payload)-3 < count*tunnel.LeaseSize {
		return nil, malformed("truncated_leaseset_request", "%d leases need %d bytes, got %d", count, count*tunnel.LeaseSize, len(payload)-3)
	}
	p := &RequestVariableLeaseSetPayload{SessionID: binary.BigEndian.Uint16(payload[0:2])}
	offset := 3
	for i := 0; i < count; i++ {
		var l tunnel.InboundTunnel
		copy(l.Gateway[:], payload[offset:offset+32])
		l.ID = binary.BigEndian.Uint32(payload[offset+32 : offset+36])
		l.Expires = time.UnixMilli(int64(binary.BigEndian.Uint64(payload[offset+36 : offset+44])))
		p.Leases = append(p.Leases, l)
		offset += tunnel.LeaseSize
	}
	return p, nil
}
