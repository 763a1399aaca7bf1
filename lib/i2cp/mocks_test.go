package i2cp

// Shared fakes and helpers used across the i2cp tests.

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	common "github.com/go-i2p/common/data"
	"github.com/go-i2p/go-i2cpd/lib/netdb"
	"github.com/go-i2p/go-i2cpd/lib/tunnel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

// fakeIdentityTag starts every identity produced by fakeCodec:
// tag(1) | nameLen(1) | name.
const fakeIdentityTag = 0xD5

type fakeCodec struct{}

func (fakeCodec) ReadIdentity(buf []byte) (*Identity, int, error) {
	if len(buf) < 2 || buf[0] != fakeIdentityTag {
		return nil, 0, oops.Wrapf(ErrMalformedPayload, "not a test identity")
	}
	n := 2 + int(buf[1])
	if len(buf) < n {
		return nil, 0, oops.Wrapf(ErrMalformedPayload, "truncated test identity")
	}
	raw := append([]byte(nil), buf[:n]...)
	return &Identity{Bytes: raw, Hash: common.HashData(raw), Verifier: fakeVerifier{}}, n, nil
}

type fakeVerifier struct{}

func (fakeVerifier) Verify(data, sig []byte) error {
	want := fakeSign(data)
	if string(sig) != string(want) {
		return errors.New("bad signature")
	}
	return nil
}

func fakeSign(data []byte) []byte {
	h := common.HashData(data)
	return h[:16]
}

func testIdentity(name string) *Identity {
	raw := append([]byte{fakeIdentityTag, byte(len(name))}, name...)
	id, _, err := fakeCodec{}.ReadIdentity(raw)
	if err != nil {
		panic(err)
	}
	return id
}

func acceptLeaseSet(_ *Identity, raw []byte) error {
	if len(raw) == 0 || string(raw) == "bad" {
		return oops.Wrapf(ErrMalformedPayload, "rejected leaseset")
	}
	return nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// fakeTunnels records sends and completes them with result, after hold is
// closed when it is set.
type fakeTunnels struct {
	mu       sync.Mutex
	sends    int
	result   error
	sendErr  error
	hold     chan struct{}
	attached map[common.Hash]tunnel.InboundHandler
	leases   []tunnel.InboundTunnel
}

func newFakeTunnels() *fakeTunnels {
	return &fakeTunnels{
		attached: make(map[common.Hash]tunnel.InboundHandler),
		leases: []tunnel.InboundTunnel{
			{ID: 1, Expires: time.Now().Add(5 * time.Minute)},
			{ID: 2, Expires: time.Now().Add(9 * time.Minute)},
		},
	}
}

func (f *fakeTunnels) InboundTunnels(ctx context.Context, local common.Hash) ([]tunnel.InboundTunnel, error) {
	return f.leases, nil
}

func (f *fakeTunnels) SendMessage(ctx context.Context, from common.Hash, remote *netdb.LeaseSet, payload []byte) (<-chan error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	ch := make(chan error, 1)
	if f.hold == nil {
		ch <- f.result
		return ch, nil
	}
	hold, result := f.hold, f.result
	go func() {
		<-hold
		ch <- result
	}()
	return ch, nil
}

func (f *fakeTunnels) Attach(local common.Hash, handler tunnel.InboundHandler) func() {
	f.mu.Lock()
	f.attached[local] = handler
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.attached, local)
		f.mu.Unlock()
	}
}

func (f *fakeTunnels) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

func (f *fakeTunnels) handler(h common.Hash) tunnel.InboundHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attached[h]
}

// fakeResolver answers from fixed tables; block makes lookups wait for ctx.
type fakeResolver struct {
	hashes map[common.Hash][]byte
	names  map[string][]byte
	block  bool
}

func (r *fakeResolver) ResolveHash(ctx context.Context, h common.Hash) ([]byte, error) {
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if d, ok := r.hashes[h]; ok {
		return d, nil
	}
	return nil, netdb.ErrNotFound
}

func (r *fakeResolver) ResolveName(ctx context.Context, name string) ([]byte, error) {
	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if d, ok := r.names[name]; ok {
		return d, nil
	}
	return nil, netdb.ErrNotFound
}

// testConfig returns a server configuration on an ephemeral port with fake
// identities and its own metrics registry.
func testConfig(t *testing.T) *ServerConfig {
	t.Helper()
	store, err := netdb.NewLeaseSetStore(16)
	require.NoError(t, err)
	return &ServerConfig{
		ListenAddr:       "localhost:0",
		Network:          "tcp",
		MaxSessions:      10,
		LeaseSets:        store,
		Tunnels:          newFakeTunnels(),
		Resolver:         &fakeResolver{},
		Clock:            fixedClock{t: time.UnixMilli(1700000000123)},
		Identities:       fakeCodec{},
		ValidateLeaseSet: acceptLeaseSet,
		Metrics:          NewMetrics(prometheus.NewRegistry()),
	}
}

func startTestServer(t *testing.T, cfg *ServerConfig) *Server {
	t.Helper()
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

func dialI2CPClient(addr string) (net.Conn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write([]byte{ProtocolByte}); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

type testClient struct {
	t    *testing.T
	conn net.Conn
	sid  uint16
}

func dialTestClient(t *testing.T, srv *Server) *testClient {
	t.Helper()
	conn, err := dialI2CPClient(srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn}
}

func (c *testClient) send(msgType uint8, payload []byte) {
	c.t.Helper()
	require.NoError(c.t, WriteMessage(c.conn, &Message{Type: msgType, Payload: payload}))
}

func (c *testClient) read() *Message {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(testTimeout)))
	msg, err := ReadMessage(c.conn)
	require.NoError(c.t, err)
	return msg
}

// expect reads until a message of msgType arrives, skipping the types in skip
// and failing on anything else.
func (c *testClient) expect(msgType uint8, skip ...uint8) *Message {
	c.t.Helper()
	for {
		msg := c.read()
		if msg.Type == msgType {
			return msg
		}
		skipped := false
		for _, s := range skip {
			if msg.Type == s {
				skipped = true
			}
		}
		require.True(c.t, skipped, "unexpected %s while waiting for %s",
			MessageTypeName(msg.Type), MessageTypeName(msgType))
	}
}

func (c *testClient) expectSessionStatus(want SessionStatus, skip ...uint8) {
	c.t.Helper()
	msg := c.expect(MessageTypeSessionStatus, skip...)
	status, err := ParseSessionStatusPayload(msg.Payload)
	require.NoError(c.t, err)
	require.Equal(c.t, want, status.Status)
	c.sid = status.SessionID
}

func (c *testClient) expectMessageStatus(skip ...uint8) *MessageStatusPayload {
	c.t.Helper()
	msg := c.expect(MessageTypeMessageStatus, skip...)
	status, err := ParseMessageStatusPayload(msg.Payload)
	require.NoError(c.t, err)
	return status
}

// expectClosed waits for the server to close the connection.
func (c *testClient) expectClosed() {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(testTimeout)))
	_, err := io.Copy(io.Discard, c.conn)
	var netErr net.Error
	if errors.As(err, &netErr) {
		require.False(c.t, netErr.Timeout(), "connection was not closed")
	}
}

func createSessionPayload(id *Identity, options Mapping, valid bool) []byte {
	mapping, err := PutMapping(options)
	if err != nil {
		panic(err)
	}
	out := append([]byte(nil), id.Bytes...)
	out = append(out, mapping...)
	out = binary.BigEndian.AppendUint64(out, uint64(time.Now().UnixMilli()))
	sig := fakeSign(out)
	if !valid {
		sig[0] ^= 0xFF
	}
	return append(out, sig...)
}

// createSession performs CreateSession and waits for Created.
func (c *testClient) createSession(id *Identity, options Mapping) {
	c.t.Helper()
	c.send(MessageTypeCreateSession, createSessionPayload(id, options, true))
	c.expectSessionStatus(SessionStatusCreated)
}

func createLeaseSetPayload(sid uint16, key byte, leaseSet []byte) []byte {
	out := binary.BigEndian.AppendUint16(nil, sid)
	out = append(out, make([]byte, signingPrivateKeySize)...)
	enc := make([]byte, EncryptionPrivateKeySize)
	for i := range enc {
		enc[i] = key
	}
	out = append(out, enc...)
	return append(out, leaseSet...)
}

func sendMessagePayload(sid uint16, to *Identity, body []byte, nonce uint32) []byte {
	p, err := (&SendMessagePayload{SessionID: sid, Destination: to, Payload: body, Nonce: nonce}).MarshalBinary()
	if err != nil {
		panic(err)
	}
	return p
}

func getDatePayload(version string) []byte {
	v, err := PutString(version)
	if err != nil {
		panic(err)
	}
	return v
}
