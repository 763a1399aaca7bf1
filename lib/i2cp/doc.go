// Package i2cp implements the router side of the I2P Client Protocol (I2CP).
//
// Local client applications connect over TCP (localhost:7654 by default),
// create a session bound to a destination, hand the router signed
// LeaseSets, send end-to-end messages and resolve hostnames.
//
// Wire format (all integers big endian):
//   - the first byte of every connection is the protocol marker 0x2a
//   - every message is length(4) + type(1) + payload(length)
//   - String is length(1) + bytes, Mapping is size(2) + String=String; pairs
//
// Main components:
//   - Server: accepts connections, owns the session registry and dispatch table
//   - Session: per-connection framing state machine and message handlers
//   - Destination: bridges a session to the leaseset, tunnel and NetDb services
package i2cp

import "github.com/go-i2p/logger"

var log = logger.GetGoI2PLogger()
