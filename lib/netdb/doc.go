// Package netdb is the router's local view of the network database as seen
// by I2CP clients.
//
// It stores LeaseSets published by local destinations (and any learned from
// peers) in a bounded LRU cache, keeps a persistent address book mapping
// hostnames to destinations, and combines both into a Resolver used by
// HostLookup.
//
// # Thread Safety
//
// LeaseSetStore, AddressBook and Resolver are safe for concurrent use.
package netdb
