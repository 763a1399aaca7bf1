package i2cp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-i2p/logger"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// flushTimeout bounds how long a terminating session spends writing queued
// replies before the connection is closed.
const flushTimeout = 2 * time.Second

// SessionState is a position in the per-connection state machine.
type SessionState int32

const (
	StateAwaitingProtocolByte SessionState = iota
	StateAwaitingHeader
	StateAwaitingBody
	StateDispatching
	StateTerminated
)

func (s SessionState) String() string {
	switch s {
	case StateAwaitingProtocolByte:
		return "AwaitingProtocolByte"
	case StateAwaitingHeader:
		return "AwaitingHeader"
	case StateAwaitingBody:
		return "AwaitingBody"
	case StateDispatching:
		return "Dispatching"
	case StateTerminated:
		return "Terminated"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

// Session owns one client connection. A single reader goroutine frames and
// dispatches messages in arrival order; a writer goroutine serializes
// replies, which may be produced by any goroutine through enqueue.
type Session struct {
	id     uint16
	epoch  uint64
	connID string
	conn   net.Conn
	server *Server

	state   atomic.Int32
	framer  *framer
	limiter *rate.Limiter

	out        chan []byte
	final      []byte
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
	ctx        context.Context
	cancel     context.CancelFunc
	tasks      sync.WaitGroup

	mu          sync.Mutex
	destination *Destination

	nextMessageID atomic.Uint32
}

func newSession(srv *Server, conn net.Conn, id uint16, epoch uint64) *Session {
	ctx, cancel := context.WithCancel(srv.ctx)
	s := &Session{
		id:         id,
		epoch:      epoch,
		connID:     uuid.NewString(),
		conn:       conn,
		server:     srv,
		framer:     newFramer(srv.config.BufferSize),
		out:        make(chan []byte, srv.config.MessageQueueSize),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	if srv.config.MessagesPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(srv.config.MessagesPerSecond), srv.config.MessageBurst)
	}
	s.state.Store(int32(StateAwaitingProtocolByte))
	return s
}

// ID returns the session ID allocated at accept time.
func (s *Session) ID() uint16 { return s.id }

// ConnID returns the connection's log correlation ID.
func (s *Session) ConnID() string { return s.connID }

// State returns the current state.
func (s *Session) State() SessionState { return SessionState(s.state.Load()) }

// Destination returns the session's destination, or nil before CreateSession.
func (s *Session) Destination() *Destination {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destination
}

// Done is closed once the session is terminated.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) ref() sessionRef {
	return sessionRef{reg: s.server.reg, id: s.id, epoch: s.epoch}
}

func (s *Session) isTerminated() bool {
	return s.State() == StateTerminated
}

// setState moves to next unless the session is already terminated.
func (s *Session) setState(next SessionState) {
	for {
		cur := s.state.Load()
		if SessionState(cur) == StateTerminated {
			return
		}
		if s.state.CompareAndSwap(cur, int32(next)) {
			return
		}
	}
}

func (s *Session) fields(at string) logger.Fields {
	return logger.Fields{
		"at":        at,
		"sessionID": s.id,
		"connID":    s.connID,
	}
}

// run drives the session until it terminates. It returns after the writer
// has flushed and every task the session started has finished.
func (s *Session) run() {
	go s.writeLoop()
	defer func() {
		s.Terminate()
		s.tasks.Wait()
		<-s.writerDone
	}()

	if !s.readProtocolByte() {
		return
	}
	s.setState(StateAwaitingHeader)
	s.readLoop()
}

func (s *Session) readProtocolByte() bool {
	if t := s.server.config.ReadTimeout; t > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(t))
	}
	marker := make([]byte, 1)
	if _, err := io.ReadFull(s.conn, marker); err != nil {
		f := s.fields("i2cp.Session.readProtocolByte")
		f["error"] = err.Error()
		log.WithFields(f).Debug("failed_to_read_protocol_byte")
		return false
	}
	if marker[0] != ProtocolByte {
		f := s.fields("i2cp.Session.readProtocolByte")
		f["remoteAddr"] = s.conn.RemoteAddr().String()
		f["expected"] = fmt.Sprintf("0x%02x", ProtocolByte)
		f["received"] = fmt.Sprintf("0x%02x", marker[0])
		log.WithFields(f).Error("invalid_protocol_byte")
		s.server.metrics.connection("bad_protocol")
		return false
	}
	log.WithFields(s.fields("i2cp.Session.readProtocolByte")).Debug("protocol_handshake_successful")
	return true
}

func (s *Session) readLoop() {
	for !s.isTerminated() {
		buf := s.framer.space()
		if len(buf) == 0 {
			log.WithFields(s.fields("i2cp.Session.readLoop")).Error("read_buffer_full")
			return
		}
		if t := s.server.config.ReadTimeout; t > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(t))
		}
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.framer.advance(n)
			if !s.dispatchBuffered() {
				return
			}
		}
		if err != nil {
			s.logReadError(err)
			return
		}
	}
}

func (s *Session) logReadError(err error) {
	if s.isTerminated() {
		return
	}
	f := s.fields("i2cp.Session.readLoop")
	f["error"] = err.Error()
	switch {
	case errors.Is(err, io.EOF):
		log.WithFields(f).Debug("client_disconnected")
	case errors.Is(err, os.ErrDeadlineExceeded):
		log.WithFields(f).Warn("read_timeout")
	default:
		log.WithFields(f).Error("read_failed")
	}
}

// dispatchBuffered dispatches every complete message currently buffered. It
// reports false once the session must stop reading.
func (s *Session) dispatchBuffered() bool {
	for {
		msg, err := s.framer.next()
		if err != nil {
			f := s.fields("i2cp.Session.dispatchBuffered")
			f["error"] = err.Error()
			log.WithFields(f).Error("framing_failed")
			return false
		}
		if msg == nil {
			break
		}
		if !s.dispatch(msg) {
			return false
		}
	}
	if s.framer.awaitingBody() {
		s.setState(StateAwaitingBody)
	} else {
		s.setState(StateAwaitingHeader)
	}
	return true
}

func (s *Session) dispatch(msg *Message) bool {
	s.setState(StateDispatching)
	if s.limiter != nil {
		if err := s.limiter.Wait(s.ctx); err != nil {
			return false
		}
	}
	s.server.metrics.received(msg.Type)

	f := s.fields("i2cp.Session.dispatch")
	f["msgType"] = MessageTypeName(msg.Type)
	f["payloadSize"] = len(msg.Payload)

	handler := s.server.handlers[msg.Type]
	if handler == nil {
		log.WithFields(f).Warn("unknown_message_type_dropped")
		s.server.metrics.unknown()
		return true
	}
	log.WithFields(f).Debug("dispatching_message")
	handler(s, msg)
	return !s.isTerminated()
}

func (s *Session) writeLoop() {
	defer close(s.writerDone)
	defer s.conn.Close()
	for {
		select {
		case frame := <-s.out:
			if err := s.write(frame); err != nil {
				s.Terminate()
				return
			}
		case <-s.done:
			if s.flush() == nil && s.final != nil {
				_ = s.write(s.final)
			}
			return
		}
	}
}

// flush writes whatever is still queued.
func (s *Session) flush() error {
	for {
		select {
		case frame := <-s.out:
			if err := s.write(frame); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (s *Session) write(frame []byte) error {
	if _, err := s.conn.Write(frame); err != nil {
		if !s.isTerminated() {
			f := s.fields("i2cp.Session.write")
			f["error"] = err.Error()
			log.WithFields(f).Error("write_failed")
		}
		return err
	}
	return nil
}

// enqueue hands msg to the writer. It blocks while the queue is full and
// fails with ErrSessionClosed once the session is terminated.
func (s *Session) enqueue(msg *Message) error {
	frame, err := msg.MarshalBinary()
	if err != nil {
		return err
	}
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.out <- frame:
		s.server.metrics.sent(msg.Type)
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

type marshaler interface {
	MarshalBinary() ([]byte, error)
}

func (s *Session) send(msgType uint8, p marshaler) {
	payload, err := p.MarshalBinary()
	if err == nil {
		err = s.enqueue(&Message{Type: msgType, Payload: payload})
	}
	if err != nil && !errors.Is(err, ErrSessionClosed) {
		f := s.fields("i2cp.Session.send")
		f["msgType"] = MessageTypeName(msgType)
		f["error"] = err.Error()
		log.WithFields(f).Error("failed_to_queue_reply")
	}
}

func (s *Session) allocateMessageID() uint32 {
	return s.nextMessageID.Add(1)
}

func (s *Session) sendSessionStatus(status SessionStatus) {
	s.send(MessageTypeSessionStatus, &SessionStatusPayload{SessionID: s.id, Status: status})
}

func (s *Session) sendMessageStatus(messageID uint32, status MessageStatus, size, nonce uint32) {
	s.server.metrics.status(status)
	s.send(MessageTypeMessageStatus, &MessageStatusPayload{
		SessionID: s.id,
		MessageID: messageID,
		Status:    status,
		Size:      size,
		Nonce:     nonce,
	})
}

func (s *Session) sendMessagePayload(payload []byte) {
	s.send(MessageTypeMessagePayload, &MessagePayloadPayload{
		SessionID: s.id,
		MessageID: s.allocateMessageID(),
		Payload:   payload,
	})
}

func (s *Session) sendHostReply(sessionID uint16, requestID uint32, identity []byte) {
	reply := &HostReplyPayload{SessionID: sessionID, RequestID: requestID, Result: HostReplyNotFound}
	if len(identity) > 0 {
		reply.Result = HostReplySuccess
		reply.Identity = identity
	}
	s.send(MessageTypeHostReply, reply)
}

// Terminate tears the session down: the destination is released, the
// session leaves the registry, queued replies are flushed and the connection
// is closed. It is safe to call from any goroutine, any number of times.
func (s *Session) Terminate() {
	s.terminate(nil)
}

// terminate is Terminate with an optional last message, written after the
// replies queued so far. Replies produced once teardown started are dropped.
func (s *Session) terminate(final *Message) {
	s.closeOnce.Do(func() {
		if final != nil {
			if frame, err := final.MarshalBinary(); err == nil {
				s.final = frame
				s.server.metrics.sent(final.Type)
			}
		}
		prev := SessionState(s.state.Swap(int32(StateTerminated)))
		close(s.done)
		s.cancel()
		_ = s.conn.SetReadDeadline(time.Now())
		_ = s.conn.SetWriteDeadline(time.Now().Add(flushTimeout))

		s.mu.Lock()
		dest := s.destination
		s.destination = nil
		s.mu.Unlock()
		if dest != nil {
			dest.Stop()
		}

		s.server.reg.removeExact(s.id, s.epoch)
		s.server.metrics.sessionClosed()

		f := s.fields("i2cp.Session.Terminate")
		f["previousState"] = prev.String()
		log.WithFields(f).Info("session_terminated")
	})
}
