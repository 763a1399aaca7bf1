package i2cp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-i2p/go-i2cpd/lib/netdb"
	"github.com/go-i2p/logger"
)

// Destination bridges a session's requests to the LeaseSet and tunnel
// services. It refers back to its session only through a sessionRef, so a
// reply produced after teardown is dropped.
type Destination struct {
	ref      sessionRef
	identity *Identity
	options  Mapping

	leaseSets LeaseSetService
	tunnels   TunnelService
	validate  LeaseSetValidator
	clock     Clock

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	detach func()

	mu                   sync.RWMutex
	encryptionPrivateKey [EncryptionPrivateKeySize]byte
	leaseSetExpires      time.Time
	leaseSet             *netdb.LeaseSet
}

func newDestination(s *Session, identity *Identity, options Mapping) *Destination {
	ctx, cancel := context.WithCancel(s.ctx)
	validate := s.server.config.ValidateLeaseSet
	if validate == nil {
		validate = ValidateLeaseSet
	}
	return &Destination{
		ref:       s.ref(),
		identity:  identity,
		options:   options,
		leaseSets: s.server.config.LeaseSets,
		tunnels:   s.server.config.Tunnels,
		validate:  validate,
		clock:     s.server.clock,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Identity returns the destination's public identity.
func (d *Destination) Identity() *Identity { return d.identity }

// Options returns the session options supplied at creation.
func (d *Destination) Options() Mapping { return d.options }

// LeaseSetExpires returns the end date of the latest requested lease.
func (d *Destination) LeaseSetExpires() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.leaseSetExpires
}

// LeaseSet returns the installed LeaseSet, or nil before CreateLeaseSet.
func (d *Destination) LeaseSet() *netdb.LeaseSet {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.leaseSet
}

// EncryptionPrivateKey returns a copy of the key supplied with the LeaseSet.
func (d *Destination) EncryptionPrivateKey() [EncryptionPrivateKeySize]byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.encryptionPrivateKey
}

func (d *Destination) fields(at string) logger.Fields {
	return logger.Fields{
		"at":          at,
		"sessionID":   d.ref.id,
		"destination": shortIdentHash(d.identity),
	}
}

// leaseSetRetryInterval is the wait before asking for tunnels again after
// none were available.
const leaseSetRetryInterval = 10 * time.Second

// minLeaseSetRefresh keeps already expired tunnels from spinning the
// maintenance loop.
const minLeaseSetRefresh = 50 * time.Millisecond

// Start attaches the destination to the tunnel service and keeps the client
// supplied with fresh leases: a LeaseSet is requested as soon as inbound
// tunnels are available and again once half of the leases' lifetime passed.
func (d *Destination) Start() {
	if d.tunnels == nil {
		log.WithFields(d.fields("i2cp.Destination.Start")).Warn("no_tunnel_service")
		return
	}
	d.detach = d.tunnels.Attach(d.identity.Hash, d.HandleIncoming)

	d.wg.Add(1)
	go d.leaseSetMaintenanceLoop()
}

func (d *Destination) leaseSetMaintenanceLoop() {
	defer d.wg.Done()
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-d.ctx.Done():
			log.WithFields(d.fields("i2cp.Destination.leaseSetMaintenanceLoop")).Debug("leaseset_maintenance_stopped")
			return
		case <-timer.C:
		}
		wait := leaseSetRetryInterval
		if expires, ok := d.requestLeaseSet(); ok {
			wait = max(time.Until(expires)/2, minLeaseSetRefresh)
		}
		timer.Reset(wait)
	}
}

// requestLeaseSet sends RequestVariableLeaseSet with the current inbound
// tunnels and reports when the latest of them expires.
func (d *Destination) requestLeaseSet() (time.Time, bool) {
	tunnels, err := d.tunnels.InboundTunnels(d.ctx, d.identity.Hash)
	if err != nil || len(tunnels) == 0 {
		if d.ctx.Err() != nil {
			return time.Time{}, false
		}
		f := d.fields("i2cp.Destination.requestLeaseSet")
		f["tunnels"] = len(tunnels)
		if err != nil {
			f["error"] = err.Error()
		}
		log.WithFields(f).Warn("no_inbound_tunnels")
		return time.Time{}, false
	}
	var expires time.Time
	for _, t := range tunnels {
		if t.Expires.After(expires) {
			expires = t.Expires
		}
	}
	d.mu.Lock()
	d.leaseSetExpires = expires
	d.mu.Unlock()

	s := d.ref.resolve()
	if s == nil {
		return time.Time{}, false
	}
	s.send(MessageTypeRequestVariableLeaseSet, &RequestVariableLeaseSetPayload{
		SessionID: s.id,
		Leases:    tunnels,
	})
	f := d.fields("i2cp.Destination.requestLeaseSet")
	f["leases"] = len(tunnels)
	f["expires"] = expires
	log.WithFields(f).Debug("leaseset_requested")
	return expires, true
}

// CreateLeaseSet validates and installs the client-signed LeaseSet and
// publishes it unless the session disabled publication.
func (d *Destination) CreateLeaseSet(encryptionKey [EncryptionPrivateKeySize]byte, raw []byte) error {
	if err := d.validate(d.identity, raw); err != nil {
		return err
	}
	d.mu.Lock()
	d.encryptionPrivateKey = encryptionKey
	ls := &netdb.LeaseSet{
		Hash:     d.identity.Hash,
		Identity: d.identity.Bytes,
		Raw:      append([]byte(nil), raw...),
		Expires:  d.leaseSetExpires,
	}
	d.leaseSet = ls
	d.mu.Unlock()

	f := d.fields("i2cp.Destination.CreateLeaseSet")
	f["size"] = len(raw)
	f["expires"] = ls.Expires
	if v, _ := d.options.Get(OptionDontPublishLeaseSet); v == "true" {
		log.WithFields(f).Debug("leaseset_created_unpublished")
		return nil
	}
	if d.leaseSets == nil {
		log.WithFields(f).Warn("no_leaseset_service")
		return nil
	}
	if err := d.leaseSets.PublishLeaseSet(ls); err != nil {
		f["error"] = err.Error()
		log.WithFields(f).Error("leaseset_publish_failed")
		return err
	}
	log.WithFields(f).Info("leaseset_published")
	return nil
}

// leaseSetReady reports whether a LeaseSet has been installed.
func (d *Destination) leaseSetReady() bool {
	return d.LeaseSet() != nil
}

// SendMsgTo delivers payload to the destination with the given hash. The
// outcome is reported to the session as a MessageStatus carrying messageID
// and nonce.
func (d *Destination) SendMsgTo(messageID uint32, remote *Identity, payload []byte, nonce uint32) {
	size := uint32(len(payload))
	if !d.leaseSetReady() {
		d.reportStatus(messageID, MessageStatusNoLeaseSet, size, nonce)
		return
	}
	if d.leaseSets == nil || d.tunnels == nil {
		d.reportStatus(messageID, MessageStatusGuaranteedFailure, size, nonce)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.reportStatus(messageID, d.deliver(remote, payload), size, nonce)
	}()
}

func (d *Destination) deliver(remote *Identity, payload []byte) MessageStatus {
	f := d.fields("i2cp.Destination.deliver")
	f["remote"] = shortIdentHash(remote)
	f["size"] = len(payload)

	ls, err := d.leaseSets.LookupLeaseSet(d.ctx, remote.Hash)
	if err != nil {
		f["error"] = err.Error()
		if errors.Is(err, netdb.ErrNotFound) {
			log.WithFields(f).Debug("remote_leaseset_not_found")
			return MessageStatusNoLeaseSet
		}
		log.WithFields(f).Warn("remote_leaseset_lookup_failed")
		return MessageStatusGuaranteedFailure
	}
	result, err := d.tunnels.SendMessage(d.ctx, d.identity.Hash, ls, payload)
	if err != nil {
		f["error"] = err.Error()
		log.WithFields(f).Warn("send_failed")
		return MessageStatusGuaranteedFailure
	}
	select {
	case err := <-result:
		if err != nil {
			f["error"] = err.Error()
			log.WithFields(f).Debug("delivery_failed")
			return MessageStatusGuaranteedFailure
		}
		log.WithFields(f).Debug("delivery_succeeded")
		return MessageStatusGuaranteedSuccess
	case <-d.ctx.Done():
		return MessageStatusGuaranteedFailure
	}
}

func (d *Destination) reportStatus(messageID uint32, status MessageStatus, size, nonce uint32) {
	s := d.ref.resolve()
	if s == nil {
		return
	}
	s.sendMessageStatus(messageID, status, size, nonce)
}

// HandleIncoming passes an inbound payload to the client as MessagePayload.
func (d *Destination) HandleIncoming(payload []byte) {
	s := d.ref.resolve()
	if s == nil {
		return
	}
	s.sendMessagePayload(payload)
}

// Stop cancels in-flight work, detaches from the tunnel service and waits
// for the destination's goroutines.
func (d *Destination) Stop() {
	d.cancel()
	if d.detach != nil {
		d.detach()
	}
	d.wg.Wait()
	log.WithFields(d.fields("i2cp.Destination.Stop")).Debug("destination_stopped")
}

func shortIdentHash(id *Identity) string {
	if id == nil {
		return ""
	}
	return fmt.Sprintf("%x", id.Hash[:8])
}
