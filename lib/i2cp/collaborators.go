package i2cp

import (
	"context"
	"time"

	common "github.com/go-i2p/common/data"
	"github.com/go-i2p/go-i2cpd/lib/netdb"
	"github.com/go-i2p/go-i2cpd/lib/tunnel"
)

// LeaseSetService publishes local LeaseSets and finds remote ones.
// This is satisfied by *netdb.LeaseSetStore.
type LeaseSetService interface {
	PublishLeaseSet(ls *netdb.LeaseSet) error
	// LookupLeaseSet returns netdb.ErrNotFound when the LeaseSet is unknown.
	LookupLeaseSet(ctx context.Context, key common.Hash) (*netdb.LeaseSet, error)
}

// TunnelService builds the paths destinations send and receive through.
// This is satisfied by *tunnel.LocalService.
type TunnelService interface {
	InboundTunnels(ctx context.Context, local common.Hash) ([]tunnel.InboundTunnel, error)
	// SendMessage starts a delivery. The channel yields exactly one result.
	SendMessage(ctx context.Context, from common.Hash, remote *netdb.LeaseSet, payload []byte) (<-chan error, error)
	// Attach routes inbound payloads for local to handler until detached.
	Attach(local common.Hash, handler tunnel.InboundHandler) (detach func())
}

// NameResolver turns hashes and hostnames into serialized destinations.
// This is satisfied by *netdb.Resolver.
type NameResolver interface {
	ResolveHash(ctx context.Context, h common.Hash) ([]byte, error)
	ResolveName(ctx context.Context, name string) ([]byte, error)
}

// Clock is the router's notion of current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
