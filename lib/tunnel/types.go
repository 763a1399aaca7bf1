package tunnel

import (
	"errors"
	"time"

	common "github.com/go-i2p/common/data"
	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// ErrUnreachable is reported when no attached destination matches a send.
var ErrUnreachable = errors.New("tunnel: destination unreachable")

// LeaseSize is the wire size of one lease: gateway(32) + tunnel id(4) + end date(8).
const LeaseSize = 44

// InboundTunnel describes one inbound tunnel usable as a lease.
type InboundTunnel struct {
	Gateway common.Hash
	ID      uint32
	Expires time.Time
}

// InboundHandler receives end-to-end payloads addressed to a destination.
type InboundHandler func(payload []byte)
