package i2cp

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// handlerFunc processes one message on the session's reader goroutine.
type handlerFunc func(s *Session, msg *Message)

// defaultHostLookupTimeout applies when a HostLookup carries no timeout.
const defaultHostLookupTimeout = 10 * time.Second

// newDispatchTable builds the message type to handler table shared by all
// sessions of a server. It is never modified after construction.
func newDispatchTable() [256]handlerFunc {
	var t [256]handlerFunc
	t[MessageTypeGetDate] = (*Session).handleGetDate
	t[MessageTypeCreateSession] = (*Session).handleCreateSession
	t[MessageTypeDestroySession] = (*Session).handleDestroySession
	t[MessageTypeCreateLeaseSet] = (*Session).handleCreateLeaseSet
	t[MessageTypeSendMessage] = (*Session).handleSendMessage
	t[MessageTypeHostLookup] = (*Session).handleHostLookup
	return t
}

func (s *Session) warnDropped(at string, msg *Message, err error) {
	f := s.fields(at)
	f["msgType"] = MessageTypeName(msg.Type)
	f["error"] = err.Error()
	log.WithFields(f).Warn("message_dropped")
}

// checkSessionID reports whether the session ID leading payload addresses
// this session.
func (s *Session) checkSessionID(at string, msg *Message) bool {
	sid, err := readSessionID(msg.Payload, "session_id")
	if err != nil {
		s.warnDropped(at, msg, err)
		return false
	}
	if sid != s.id {
		s.warnDropped(at, msg, fmt.Errorf("%w: session ID %d, expected %d", ErrProtocolViolation, sid, s.id))
		return false
	}
	return true
}

func (s *Session) handleGetDate(msg *Message) {
	version := RouterAPIVersion
	if len(msg.Payload) > 0 {
		if v, _, err := ExtractString(msg.Payload); err == nil && v != "" {
			version = v
		}
	}
	f := s.fields("i2cp.Session.handleGetDate")
	f["version"] = version
	log.WithFields(f).Debug("get_date")
	s.send(MessageTypeSetDate, &SetDatePayload{Date: s.server.clock.Now(), Version: version})
}

func (s *Session) handleCreateSession(msg *Message) {
	const at = "i2cp.Session.handleCreateSession"
	if s.Destination() != nil {
		s.warnDropped(at, msg, fmt.Errorf("%w: session already has a destination", ErrProtocolViolation))
		s.sendSessionStatus(SessionStatusRefused)
		return
	}
	req, err := ParseCreateSessionPayload(s.server.codec, msg.Payload)
	if err != nil {
		s.warnDropped(at, msg, err)
		s.sendSessionStatus(SessionStatusRefused)
		return
	}
	if v := req.Identity.Verifier; v != nil {
		if err := v.Verify(req.Signed, req.Signature); err != nil {
			s.warnDropped(at, msg, fmt.Errorf("%w: signature: %v", ErrMalformedPayload, err))
			s.sendSessionStatus(SessionStatusInvalid)
			return
		}
	}
	if !s.server.reg.claimDestination(req.Identity.Hash, s.id) {
		s.warnDropped(at, msg, fmt.Errorf("%w: destination in use by another session", ErrProtocolViolation))
		s.sendSessionStatus(SessionStatusRefused)
		return
	}

	dest := newDestination(s, req.Identity, req.Options)
	s.mu.Lock()
	if s.isTerminated() {
		s.mu.Unlock()
		return
	}
	s.destination = dest
	s.sendSessionStatus(SessionStatusCreated)
	dest.Start()
	s.mu.Unlock()

	f := s.fields(at)
	f["destination"] = shortIdentHash(req.Identity)
	f["options"] = req.Options.ToMap()
	log.WithFields(f).Info("session_created")
}

func (s *Session) handleDestroySession(msg *Message) {
	if !s.checkSessionID("i2cp.Session.handleDestroySession", msg) {
		return
	}
	payload, err := (&SessionStatusPayload{SessionID: s.id, Status: SessionStatusDestroyed}).MarshalBinary()
	if err != nil {
		s.warnDropped("i2cp.Session.handleDestroySession", msg, err)
		return
	}
	log.WithFields(s.fields("i2cp.Session.handleDestroySession")).Info("session_destroyed")
	s.terminate(&Message{Type: MessageTypeSessionStatus, Payload: payload})
}

func (s *Session) handleCreateLeaseSet(msg *Message) {
	const at = "i2cp.Session.handleCreateLeaseSet"
	if !s.checkSessionID(at, msg) {
		return
	}
	dest := s.Destination()
	if dest == nil {
		s.warnDropped(at, msg, ErrDestinationUnavailable)
		return
	}
	req, err := ParseCreateLeaseSetPayload(msg.Payload)
	if err != nil {
		s.warnDropped(at, msg, err)
		return
	}
	if err := dest.CreateLeaseSet(req.EncryptionPrivateKey, req.LeaseSet); err != nil {
		s.warnDropped(at, msg, err)
	}
}

func (s *Session) handleSendMessage(msg *Message) {
	const at = "i2cp.Session.handleSendMessage"
	if !s.checkSessionID(at, msg) {
		return
	}
	req, err := ParseSendMessagePayload(s.server.codec, msg.Payload)
	if err != nil {
		s.warnDropped(at, msg, err)
		return
	}
	messageID := s.allocateMessageID()
	size := uint32(len(req.Payload))

	dest := s.Destination()
	if dest == nil || !sendAcceptedSuppressed(dest.Options()) {
		s.sendMessageStatus(messageID, MessageStatusAccepted, size, req.Nonce)
	}
	if dest == nil {
		s.sendMessageStatus(messageID, MessageStatusNoLeaseSet, size, req.Nonce)
		return
	}
	dest.SendMsgTo(messageID, req.Destination, req.Payload, req.Nonce)
}

func sendAcceptedSuppressed(options Mapping) bool {
	v, _ := options.Get(OptionMessageReliability)
	return v == "none"
}

func (s *Session) handleHostLookup(msg *Message) {
	const at = "i2cp.Session.handleHostLookup"
	req, err := ParseHostLookupPayload(msg.Payload)
	if err != nil {
		s.warnDropped(at, msg, err)
		if req != nil && s.hostLookupAddressed(req.SessionID) {
			s.sendHostReply(req.SessionID, req.RequestID, nil)
		}
		return
	}
	if !s.hostLookupAddressed(req.SessionID) {
		s.warnDropped(at, msg, fmt.Errorf("%w: session ID %d", ErrProtocolViolation, req.SessionID))
		return
	}
	resolver := s.server.config.Resolver
	if resolver == nil || (req.Type != HostLookupTypeHash && req.Type != HostLookupTypeHostname) {
		s.server.metrics.hostLookup(false)
		s.sendHostReply(req.SessionID, req.RequestID, nil)
		return
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultHostLookupTimeout
	}
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()

		var identity []byte
		var err error
		if req.Type == HostLookupTypeHash {
			identity, err = resolver.ResolveHash(ctx, req.Hash)
		} else {
			identity, err = resolver.ResolveName(ctx, req.Hostname)
		}
		f := s.fields(at)
		f["requestID"] = req.RequestID
		f["type"] = req.Type
		if err != nil {
			f["error"] = err.Error()
			if errors.Is(err, context.DeadlineExceeded) {
				log.WithFields(f).Warn("host_lookup_timed_out")
			} else {
				log.WithFields(f).Debug("host_lookup_not_found")
			}
			identity = nil
		}
		s.server.metrics.hostLookup(len(identity) > 0)
		s.sendHostReply(req.SessionID, req.RequestID, identity)
	}()
}

func (s *Session) hostLookupAddressed(sid uint16) bool {
	return sid == s.id || sid == SessionIDNone
}
