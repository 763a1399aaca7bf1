package tunnel

import (
	"context"
	"fmt"
	"sync"
	"time"

	common "github.com/go-i2p/common/data"
	"github.com/go-i2p/go-i2cpd/lib/netdb"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// LocalConfig configures a LocalService.
type LocalConfig struct {
	// RouterHash is used as the gateway of every inbound tunnel.
	RouterHash common.Hash
	// InboundQuantity is the number of tunnels returned per destination (default: 2).
	InboundQuantity int
	// Lifetime is the validity of each tunnel (default: 10 minutes).
	Lifetime time.Duration
}

// DefaultLocalConfig returns a LocalConfig with sensible defaults.
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		InboundQuantity: 2,
		Lifetime:        10 * time.Minute,
	}
}

// LocalService delivers messages between destinations attached to this router.
type LocalService struct {
	config LocalConfig
	now    func() time.Time

	mu       sync.RWMutex
	attached map[common.Hash]InboundHandler
	nextID   uint32

	wg sync.WaitGroup
}

// NewLocalService creates a LocalService, filling zero config fields with defaults.
func NewLocalService(config LocalConfig) *LocalService {
	defaults := DefaultLocalConfig()
	if config.InboundQuantity <= 0 {
		config.InboundQuantity = defaults.InboundQuantity
	}
	if config.Lifetime <= 0 {
		config.Lifetime = defaults.Lifetime
	}
	return &LocalService{
		config:   config,
		now:      time.Now,
		attached: make(map[common.Hash]InboundHandler),
		nextID:   1,
	}
}

// InboundTunnels returns fresh inbound tunnels for the local destination.
func (l *LocalService) InboundTunnels(ctx context.Context, local common.Hash) ([]InboundTunnel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	expires := l.now().Add(l.config.Lifetime)

	l.mu.Lock()
	defer l.mu.Unlock()
	tunnels := make([]InboundTunnel, 0, l.config.InboundQuantity)
	for i := 0; i < l.config.InboundQuantity; i++ {
		tunnels = append(tunnels, InboundTunnel{
			Gateway: l.config.RouterHash,
			ID:      l.nextID,
			Expires: expires,
		})
		l.nextID++
		if l.nextID == 0 {
			l.nextID = 1
		}
	}
	log.WithFields(logger.Fields{
		"at":          "tunnel.LocalService.InboundTunnels",
		"destination": fmt.Sprintf("%x", local[:8]),
		"count":       len(tunnels),
	}).Debug("inbound_tunnels_allocated")
	return tunnels, nil
}

// Attach registers handler as the receiver for local. The returned function
// detaches it; calling it more than once is harmless.
func (l *LocalService) Attach(local common.Hash, handler InboundHandler) func() {
	l.mu.Lock()
	l.attached[local] = handler
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.attached, local)
			l.mu.Unlock()
		})
	}
}

// SendMessage delivers payload to the destination owning remote. The returned
// channel yields exactly one value: nil on delivery, an error otherwise.
func (l *LocalService) SendMessage(ctx context.Context, from common.Hash, remote *netdb.LeaseSet, payload []byte) (<-chan error, error) {
	if remote == nil {
		return nil, oops.Errorf("cannot send to nil leaseset")
	}
	if remote.Expired(l.now()) {
		return nil, oops.Wrapf(ErrUnreachable, "leaseset for %x expired", remote.Hash[:8])
	}

	l.mu.RLock()
	handler := l.attached[remote.Hash]
	l.mu.RUnlock()

	data := append([]byte(nil), payload...)
	result := make(chan error, 1)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := ctx.Err(); err != nil {
			result <- err
			return
		}
		if handler == nil {
			result <- ErrUnreachable
			return
		}
		handler(data)
		log.WithFields(logger.Fields{
			"at":   "tunnel.LocalService.SendMessage",
			"from": fmt.Sprintf("%x", from[:8]),
			"to":   fmt.Sprintf("%x", remote.Hash[:8]),
			"size": len(data),
		}).Debug("message_delivered_locally")
		result <- nil
	}()
	return result, nil
}

// Wait blocks until all in-flight deliveries have finished.
func (l *LocalService) Wait() {
	l.wg.Wait()
}
