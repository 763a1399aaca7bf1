package i2cp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// DefaultPort is the standard I2CP port.
const DefaultPort = 7654

// ServerConfig holds configuration for the I2CP server
type ServerConfig struct {
	// Address to listen on (e.g., "localhost:7654" or "/tmp/i2cp.sock" for Unix socket)
	ListenAddr string

	// Network type: "tcp" or "unix"
	Network string

	// Maximum number of concurrent sessions. Connections over the cap are
	// closed right after accept.
	MaxSessions int

	// BufferSize bounds header plus payload of one inbound message.
	BufferSize int

	// MessageQueueSize is the number of replies buffered per session before
	// producers block.
	MessageQueueSize int

	// ReadTimeout closes sessions idle for longer. Zero disables it.
	ReadTimeout time.Duration

	// MessagesPerSecond limits dispatch rate per session. Zero disables it.
	MessagesPerSecond float64
	MessageBurst      int

	// Collaborators. Any of them may be nil; the matching operations then
	// report failure to the client.
	LeaseSets LeaseSetService
	Tunnels   TunnelService
	Resolver  NameResolver

	// Clock answers GetDate. Defaults to the system clock.
	Clock Clock

	// Identities reads destinations from payloads. Defaults to DestinationCodec.
	Identities IdentityCodec

	// ValidateLeaseSet checks CreateLeaseSet blobs. Defaults to ValidateLeaseSet.
	ValidateLeaseSet LeaseSetValidator

	// Metrics may be nil.
	Metrics *Metrics
}

// DefaultServerConfig returns a ServerConfig with sensible defaults
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddr:       fmt.Sprintf("localhost:%d", DefaultPort),
		Network:          "tcp",
		MaxSessions:      100,
		BufferSize:       DefaultBufferSize,
		MessageQueueSize: 64,
		MessageBurst:     256,
	}
}

func (c *ServerConfig) applyDefaults() {
	d := DefaultServerConfig()
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.Network == "" {
		c.Network = d.Network
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = d.MaxSessions
	}
	if c.BufferSize < HeaderSize {
		c.BufferSize = d.BufferSize
	}
	if c.MessageQueueSize <= 0 {
		c.MessageQueueSize = d.MessageQueueSize
	}
	if c.MessageBurst <= 0 {
		c.MessageBurst = d.MessageBurst
	}
}

// Server is an I2CP protocol server that accepts client connections
type Server struct {
	config   ServerConfig
	reg      *registry
	handlers [256]handlerFunc
	clock    Clock
	codec    IdentityCodec
	metrics  *Metrics

	mu       sync.RWMutex
	running  bool
	listener net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a server. A nil config uses DefaultServerConfig.
func NewServer(config *ServerConfig) (*Server, error) {
	if config == nil {
		config = DefaultServerConfig()
	}
	cfg := *config
	cfg.applyDefaults()
	if cfg.Network != "tcp" && cfg.Network != "unix" {
		return nil, oops.In("i2cp").Code("bad_network").Errorf("unsupported network %q", cfg.Network)
	}

	log.WithFields(logger.Fields{
		"at":          "i2cp.NewServer",
		"network":     cfg.Network,
		"listenAddr":  cfg.ListenAddr,
		"maxSessions": cfg.MaxSessions,
		"bufferSize":  cfg.BufferSize,
	}).Info("creating_i2cp_server")

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:   cfg,
		reg:      newRegistry(),
		handlers: newDispatchTable(),
		clock:    cfg.Clock,
		codec:    cfg.Identities,
		metrics:  cfg.Metrics,
		ctx:      ctx,
		cancel:   cancel,
	}
	if s.clock == nil {
		s.clock = systemClock{}
	}
	if s.codec == nil {
		s.codec = DestinationCodec()
	}
	return s, nil
}

// Start begins listening for I2CP connections
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("server already running")
	}
	if s.ctx.Err() != nil {
		return fmt.Errorf("server stopped")
	}

	listener, err := net.Listen(s.config.Network, s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddr, err)
	}
	s.listener = listener
	s.running = true

	log.WithFields(logger.Fields{
		"at":      "i2cp.Server.Start",
		"network": s.config.Network,
		"address": listener.Addr().String(),
	}).Info("i2cp_server_started")

	s.wg.Add(1)
	go s.acceptLoop(listener)
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// IsRunning reports whether the server is accepting connections.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Stop closes the listener, terminates every live session and waits for
// their goroutines.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	listener := s.listener
	s.mu.Unlock()

	s.cancel()
	if err := listener.Close(); err != nil {
		log.WithError(err).Warn("error_closing_listener")
	}
	for _, session := range s.reg.snapshot() {
		session.Terminate()
	}
	s.wg.Wait()

	log.WithField("at", "i2cp.Server.Stop").Info("i2cp_server_stopped")
	return nil
}

// RemoveSession evicts the session with the given ID and tears it down.
// Removing an unknown ID is a no-op.
func (s *Server) RemoveSession(id uint16) {
	session := s.reg.remove(id)
	if session == nil {
		return
	}
	session.Terminate()
	log.WithFields(logger.Fields{
		"at":        "i2cp.Server.RemoveSession",
		"sessionID": id,
	}).Debug("session_removed")
}

// Session returns the live session with the given ID.
func (s *Server) Session(id uint16) (*Session, bool) {
	return s.reg.get(id)
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int {
	return s.reg.count()
}

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.handleAcceptError(err) {
				return
			}
			continue
		}
		s.handleConnection(conn)
	}
}

// handleAcceptError reports whether the accept loop should terminate.
func (s *Server) handleAcceptError(err error) bool {
	if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
		return true
	}
	log.WithError(err).Error("failed_to_accept_connection")
	time.Sleep(10 * time.Millisecond)
	return false
}

func (s *Server) handleConnection(conn net.Conn) {
	if s.reg.count() >= s.config.MaxSessions {
		log.WithFields(logger.Fields{
			"at":           "i2cp.Server.handleConnection",
			"sessionCount": s.reg.count(),
			"maxSessions":  s.config.MaxSessions,
			"remoteAddr":   conn.RemoteAddr().String(),
		}).Warn("max_sessions_reached_rejecting_connection")
		s.metrics.connection("rejected")
		conn.Close()
		return
	}

	session, err := s.reg.create(func(id uint16, epoch uint64) *Session {
		return newSession(s, conn, id, epoch)
	})
	if err != nil {
		log.WithError(err).Error("failed_to_allocate_session")
		s.metrics.connection("rejected")
		conn.Close()
		return
	}
	s.metrics.connection("accepted")
	s.metrics.sessionOpened()
	if s.ctx.Err() != nil {
		session.Terminate()
	}

	log.WithFields(logger.Fields{
		"at":             "i2cp.Server.handleConnection",
		"sessionID":      session.ID(),
		"connID":         session.ConnID(),
		"remoteAddr":     conn.RemoteAddr().String(),
		"activeSessions": s.reg.count(),
	}).Info("client_connected")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		session.run()
	}()
}
