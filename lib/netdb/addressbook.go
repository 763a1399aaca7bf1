package netdb

import (
	"errors"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	common "github.com/go-i2p/common/data"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	bolt "go.etcd.io/bbolt"
)

const (
	hostsBucket  = "hosts"
	hashesBucket = "hashes"
)

// MaxHostnameLength matches the longest String a HostLookup can carry.
const MaxHostnameLength = 255

// HostEntry is one address book record.
type HostEntry struct {
	Name        string      `cbor:"1,keyasint"`
	Destination []byte      `cbor:"2,keyasint"`
	Hash        common.Hash `cbor:"3,keyasint"`
	Added       int64       `cbor:"4,keyasint"`
}

// AddressBook is a persistent hostname to destination map backed by bbolt.
// Hostnames are case-insensitive.
type AddressBook struct {
	db *bolt.DB
}

// OpenAddressBook opens or creates the address book database at path.
func OpenAddressBook(path string) (*AddressBook, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, oops.Wrapf(err, "failed to open address book %s", path)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(hostsBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(hashesBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, oops.Wrapf(err, "failed to initialize address book %s", path)
	}
	log.WithFields(logger.Fields{
		"at":   "netdb.OpenAddressBook",
		"path": path,
	}).Debug("address_book_opened")
	return &AddressBook{db: db}, nil
}

// Close closes the underlying database.
func (b *AddressBook) Close() error {
	return b.db.Close()
}

func normalizeHostname(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Add stores name -> destination, replacing an existing entry for name.
func (b *AddressBook) Add(name string, destination []byte) error {
	name = normalizeHostname(name)
	if name == "" || len(name) > MaxHostnameLength {
		return oops.Errorf("invalid hostname %q", name)
	}
	if len(destination) == 0 {
		return oops.Errorf("empty destination for %q", name)
	}
	entry := HostEntry{
		Name:        name,
		Destination: append([]byte(nil), destination...),
		Hash:        common.HashData(destination),
		Added:       time.Now().UnixMilli(),
	}
	raw, err := cbor.Marshal(entry)
	if err != nil {
		return oops.Wrapf(err, "failed to encode host entry %q", name)
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		hosts := tx.Bucket([]byte(hostsBucket))
		hashes := tx.Bucket([]byte(hashesBucket))
		if old := hosts.Get([]byte(name)); old != nil {
			var prev HostEntry
			if err := cbor.Unmarshal(old, &prev); err == nil {
				if err := hashes.Delete(prev.Hash[:]); err != nil {
					return err
				}
			}
		}
		if err := hosts.Put([]byte(name), raw); err != nil {
			return err
		}
		return hashes.Put(entry.Hash[:], []byte(name))
	})
	if err != nil {
		return oops.Wrapf(err, "failed to store host entry %q", name)
	}
	log.WithFields(logger.Fields{
		"at":   "netdb.AddressBook.Add",
		"name": name,
		"hash": shortHash(entry.Hash),
	}).Info("address_book_entry_added")
	return nil
}

// Lookup returns the entry for name or ErrNotFound.
func (b *AddressBook) Lookup(name string) (*HostEntry, error) {
	name = normalizeHostname(name)
	var entry *HostEntry
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(hostsBucket)).Get([]byte(name))
		if raw == nil {
			return ErrNotFound
		}
		entry = &HostEntry{}
		return cbor.Unmarshal(raw, entry)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, oops.Wrapf(err, "failed to read host entry %q", name)
	}
	return entry, nil
}

// LookupHash returns the entry whose destination hashes to h or ErrNotFound.
func (b *AddressBook) LookupHash(h common.Hash) (*HostEntry, error) {
	var name string
	if err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(hashesBucket)).Get(h[:])
		if raw == nil {
			return ErrNotFound
		}
		name = string(raw)
		return nil
	}); err != nil {
		return nil, err
	}
	return b.Lookup(name)
}

// Remove deletes name. Removing an unknown name is not an error.
func (b *AddressBook) Remove(name string) error {
	name = normalizeHostname(name)
	return b.db.Update(func(tx *bolt.Tx) error {
		hosts := tx.Bucket([]byte(hostsBucket))
		raw := hosts.Get([]byte(name))
		if raw == nil {
			return nil
		}
		var entry HostEntry
		if err := cbor.Unmarshal(raw, &entry); err == nil {
			if err := tx.Bucket([]byte(hashesBucket)).Delete(entry.Hash[:]); err != nil {
				return err
			}
		}
		return hosts.Delete([]byte(name))
	})
}

// List returns every entry ordered by hostname.
func (b *AddressBook) List() ([]HostEntry, error) {
	var entries []HostEntry
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(hostsBucket)).ForEach(func(k, v []byte) error {
			var entry HostEntry
			if err := cbor.Unmarshal(v, &entry); err != nil {
				return oops.Wrapf(err, "corrupt host entry %q", k)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
