package netdb

import (
	"context"
	"time"

	common "github.com/go-i2p/common/data"
	"github.com/go-i2p/logger"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/samber/oops"
)

// DefaultLeaseSetCacheSize is used when NewLeaseSetStore is given a
// non-positive size.
const DefaultLeaseSetCacheSize = 1024

// LeaseSetStore keeps the most recently published LeaseSets in memory.
// Expired entries are dropped lazily on lookup.
type LeaseSetStore struct {
	cache *lru.Cache[common.Hash, *LeaseSet]
	now   func() time.Time
}

// NewLeaseSetStore creates a store holding at most size LeaseSets.
func NewLeaseSetStore(size int) (*LeaseSetStore, error) {
	if size <= 0 {
		size = DefaultLeaseSetCacheSize
	}
	cache, err := lru.New[common.Hash, *LeaseSet](size)
	if err != nil {
		return nil, oops.Wrapf(err, "failed to create leaseset cache of size %d", size)
	}
	return &LeaseSetStore{cache: cache, now: time.Now}, nil
}

// PublishLeaseSet stores ls, replacing any previous LeaseSet for the same
// destination.
func (s *LeaseSetStore) PublishLeaseSet(ls *LeaseSet) error {
	if ls == nil {
		return oops.Errorf("cannot publish nil leaseset")
	}
	if len(ls.Raw) == 0 {
		return oops.Errorf("leaseset for %s has no data", shortHash(ls.Hash))
	}
	if ls.Expired(s.now()) {
		return oops.Errorf("leaseset for %s already expired at %s", shortHash(ls.Hash), ls.Expires)
	}
	evicted := s.cache.Add(ls.Hash, ls)
	log.WithFields(logger.Fields{
		"at":      "netdb.LeaseSetStore.PublishLeaseSet",
		"hash":    shortHash(ls.Hash),
		"size":    len(ls.Raw),
		"expires": ls.Expires,
		"evicted": evicted,
	}).Debug("leaseset_stored")
	return nil
}

// LookupLeaseSet returns the LeaseSet for key or ErrNotFound.
func (s *LeaseSetStore) LookupLeaseSet(ctx context.Context, key common.Hash) (*LeaseSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ls, ok := s.cache.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	if ls.Expired(s.now()) {
		s.cache.Remove(key)
		log.WithFields(logger.Fields{
			"at":   "netdb.LeaseSetStore.LookupLeaseSet",
			"hash": shortHash(key),
		}).Debug("leaseset_expired")
		return nil, ErrNotFound
	}
	return ls, nil
}

// Remove drops the LeaseSet for key, if any.
func (s *LeaseSetStore) Remove(key common.Hash) {
	s.cache.Remove(key)
}

// Len returns the number of cached LeaseSets, expired ones included.
func (s *LeaseSetStore) Len() int {
	return s.cache.Len()
}
