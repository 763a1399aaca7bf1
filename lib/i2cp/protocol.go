package i2cp

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// ProtocolByte must be the first byte a client sends on a new connection.
const ProtocolByte = 0x2a

// RouterAPIVersion is reported in SetDate when the client sends no version.
const RouterAPIVersion = "0.9.28"

// DefaultBufferSize bounds header plus payload of a single inbound message.
const DefaultBufferSize = 65536

// Message types.
const (
	MessageTypeCreateSession           = 1
	MessageTypeDestroySession          = 3
	MessageTypeCreateLeaseSet          = 4
	MessageTypeSendMessage             = 5
	MessageTypeSessionStatus           = 20
	MessageTypeMessageStatus           = 22
	MessageTypeMessagePayload          = 31
	MessageTypeGetDate                 = 32
	MessageTypeSetDate                 = 33
	MessageTypeRequestVariableLeaseSet = 37
	MessageTypeHostLookup              = 38
	MessageTypeHostReply               = 39
)

// MessageStatus codes carried by MessageStatus replies.
type MessageStatus uint8

const (
	MessageStatusAccepted          MessageStatus = 1
	MessageStatusGuaranteedSuccess MessageStatus = 4
	MessageStatusGuaranteedFailure MessageStatus = 5
	MessageStatusNoLeaseSet        MessageStatus = 21
)

func (s MessageStatus) String() string {
	switch s {
	case MessageStatusAccepted:
		return "Accepted"
	case MessageStatusGuaranteedSuccess:
		return "GuaranteedSuccess"
	case MessageStatusGuaranteedFailure:
		return "GuaranteedFailure"
	case MessageStatusNoLeaseSet:
		return "NoLeaseSet"
	default:
		return fmt.Sprintf("MessageStatus(%d)", uint8(s))
	}
}

// SessionStatus codes carried by SessionStatus replies.
type SessionStatus uint8

const (
	SessionStatusDestroyed SessionStatus = 0
	SessionStatusCreated   SessionStatus = 1
	SessionStatusUpdated   SessionStatus = 2
	SessionStatusInvalid   SessionStatus = 3
	SessionStatusRefused   SessionStatus = 4
)

// HostReply result codes.
const (
	HostReplySuccess  = 0
	HostReplyNotFound = 1
)

// HostLookup request types.
const (
	HostLookupTypeHash     = 0
	HostLookupTypeHostname = 1
)

// SessionIDNone is accepted by HostLookup from clients without a session.
const SessionIDNone = 0xFFFF

// Session options understood by the router.
const (
	OptionDontPublishLeaseSet = "i2cp.dontPublishLeaseSet"
	OptionMessageReliability  = "i2cp.messageReliability"
)

// Message is one framed protocol unit.
type Message struct {
	Type    uint8
	Payload []byte
}

// MarshalBinary returns header and payload as they appear on the wire.
func (m *Message) MarshalBinary() ([]byte, error) {
	if uint64(len(m.Payload)) > 0xFFFFFFFF {
		return nil, oops.In("i2cp").Code("payload_too_large").
			Wrapf(ErrResourceExhaustion, "payload of %d bytes", len(m.Payload))
	}
	out := make([]byte, HeaderSize+len(m.Payload))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(m.Payload)))
	out[4] = m.Type
	copy(out[HeaderSize:], m.Payload)
	return out, nil
}

// ReadMessage reads one complete message from r. It is the blocking
// counterpart of the session framer, used by clients and tests.
func ReadMessage(r io.Reader) (*Message, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("failed to read I2CP header: %w", err)
	}
	length, msgType, err := DecodeHeader(header)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("failed to read I2CP payload: %w", err)
	}
	return &Message{Type: msgType, Payload: payload}, nil
}

// WriteMessage writes a complete message to w.
func WriteMessage(w io.Writer, msg *Message) error {
	data, err := msg.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		log.WithFields(logger.Fields{
			"at":      "i2cp.WriteMessage",
			"msgType": MessageTypeName(msg.Type),
			"error":   err.Error(),
		}).Debug("failed_to_write_message")
		return fmt.Errorf("failed to write I2CP message: %w", err)
	}
	return nil
}

// MessageTypeName returns a human-readable name for the message type.
func MessageTypeName(msgType uint8) string {
	switch msgType {
	case MessageTypeCreateSession:
		return "CreateSession"
	case MessageTypeDestroySession:
		return "DestroySession"
	case MessageTypeCreateLeaseSet:
		return "CreateLeaseSet"
	case MessageTypeSendMessage:
		return "SendMessage"
	case MessageTypeSessionStatus:
		return "SessionStatus"
	case MessageTypeMessageStatus:
		return "MessageStatus"
	case MessageTypeMessagePayload:
		return "MessagePayload"
	case MessageTypeGetDate:
		return "GetDate"
	case MessageTypeSetDate:
		return "SetDate"
	case MessageTypeRequestVariableLeaseSet:
		return "RequestVariableLeaseSet"
	case MessageTypeHostLookup:
		return "HostLookup"
	case MessageTypeHostReply:
		return "HostReply"
	default:
		return fmt.Sprintf("Unknown(%d)", msgType)
	}
}
