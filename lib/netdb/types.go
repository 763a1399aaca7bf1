package netdb

import (
	"errors"
	"time"

	common "github.com/go-i2p/common/data"
)

// ErrNotFound is returned when a LeaseSet or host is not known locally.
var ErrNotFound = errors.New("netdb: not found")

// LeaseSet is a published LeaseSet together with the destination it belongs to.
type LeaseSet struct {
	// Hash is the SHA-256 of the serialized destination.
	Hash common.Hash
	// Identity is the serialized destination.
	Identity []byte
	// Raw is the serialized LeaseSet as signed by the client.
	Raw []byte
	// Expires is the end date of the latest lease.
	Expires time.Time
}

// Expired reports whether the LeaseSet is no longer usable at now.
// A zero Expires never expires.
func (ls *LeaseSet) Expired(now time.Time) bool {
	return !ls.Expires.IsZero() && !now.Before(ls.Expires)
}
