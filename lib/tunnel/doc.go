// Package tunnel provides the tunnel collaborator used by I2CP destinations.
//
// LocalService is an in-router implementation: it hands out inbound tunnel
// descriptors whose gateway is this router and delivers end-to-end messages
// directly between destinations attached to the same router. It stands in
// for a full tunnel pool when the router runs without transports.
//
// # Thread Safety
//
// LocalService is safe for concurrent use. Deliveries run on their own
// goroutines and never block the sender.
package tunnel
