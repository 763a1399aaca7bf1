package netdb

import (
	"context"
	"errors"
	"strings"

	"github.com/go-i2p/common/base32"
	common "github.com/go-i2p/common/data"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// B32Suffix marks a hostname that encodes a destination hash.
const B32Suffix = ".b32.i2p"

// Resolver answers HostLookup queries from the LeaseSet store and the
// address book. Either source may be nil.
type Resolver struct {
	store *LeaseSetStore
	book  *AddressBook
}

// NewResolver combines a LeaseSet store and an address book.
func NewResolver(store *LeaseSetStore, book *AddressBook) *Resolver {
	return &Resolver{store: store, book: book}
}

// ResolveHash returns the serialized destination whose hash is h.
func (r *Resolver) ResolveHash(ctx context.Context, h common.Hash) ([]byte, error) {
	if r.store != nil {
		ls, err := r.store.LookupLeaseSet(ctx, h)
		if err == nil {
			return ls.Identity, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	if r.book != nil {
		entry, err := r.book.LookupHash(h)
		if err == nil {
			return entry.Destination, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	log.WithFields(logger.Fields{
		"at":   "netdb.Resolver.ResolveHash",
		"hash": shortHash(h),
	}).Debug("hash_not_resolved")
	return nil, ErrNotFound
}

// ResolveName resolves a hostname. Names ending in .b32.i2p are decoded to a
// hash and resolved with ResolveHash; other names go through the address book.
func (r *Resolver) ResolveName(ctx context.Context, name string) ([]byte, error) {
	name = normalizeHostname(name)
	if strings.HasSuffix(name, B32Suffix) {
		h, err := DecodeB32Address(name)
		if err != nil {
			return nil, err
		}
		return r.ResolveHash(ctx, h)
	}
	if r.book == nil {
		return nil, ErrNotFound
	}
	entry, err := r.book.Lookup(name)
	if err != nil {
		return nil, err
	}
	return entry.Destination, nil
}

// DecodeB32Address decodes "<52 chars>.b32.i2p" into a destination hash.
func DecodeB32Address(name string) (common.Hash, error) {
	var h common.Hash
	label := strings.TrimSuffix(normalizeHostname(name), B32Suffix)
	if len(label) != 52 {
		return h, oops.Errorf("b32 address %q has %d characters, want 52", name, len(label))
	}
	raw, err := base32.DecodeStringNoPadding(label)
	if err != nil {
		return h, oops.Wrapf(err, "invalid b32 address %q", name)
	}
	if len(raw) != len(h) {
		return h, oops.Errorf("b32 address %q decodes to %d bytes", name, len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

// EncodeB32Address renders a destination hash as a .b32.i2p hostname.
func EncodeB32Address(h common.Hash) string {
	return base32.EncodeToStringNoPadding(h[:]) + B32Suffix
}
