package i2cp

import (
	"github.com/go-i2p/common/data"
	"github.com/go-i2p/common/destination"
	"github.com/go-i2p/common/lease_set"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// SignatureVerifier checks a signature over unhashed data.
type SignatureVerifier interface {
	Verify(data, sig []byte) error
}

// Identity is a client destination as read off the wire.
type Identity struct {
	// Bytes is the serialized destination.
	Bytes []byte
	// Hash is the SHA-256 of Bytes.
	Hash data.Hash
	// Verifier checks signatures made with the destination's signing key.
	// Nil means signatures are not checked.
	Verifier SignatureVerifier
}

// IdentityCodec reads destinations embedded in message payloads.
type IdentityCodec interface {
	// ReadIdentity parses the destination at the start of buf and reports
	// how many bytes it occupied.
	ReadIdentity(buf []byte) (*Identity, int, error)
}

// LeaseSetValidator accepts or rejects a LeaseSet signed by a client for
// the given destination.
type LeaseSetValidator func(owner *Identity, leaseSet []byte) error

// DestinationCodec returns the IdentityCodec backed by go-i2p/common.
func DestinationCodec() IdentityCodec {
	return destinationCodec{}
}

type destinationCodec struct{}

func (destinationCodec) ReadIdentity(buf []byte) (*Identity, int, error) {
	dest, remaining, err := destination.ReadDestination(buf)
	if err != nil {
		log.WithFields(logger.Fields{
			"at":          "i2cp.destinationCodec.ReadIdentity",
			"payloadSize": len(buf),
			"error":       err.Error(),
		}).Debug("failed_to_read_destination")
		return nil, 0, oops.In("i2cp").Code("bad_identity").
			Wrapf(ErrMalformedPayload, "failed to read destination: %v", err)
	}
	n := len(buf) - len(remaining)
	raw := append([]byte(nil), buf[:n]...)

	spk, err := dest.SigningPublicKey()
	if err != nil {
		return nil, 0, oops.In("i2cp").Code("bad_identity").
			Wrapf(ErrMalformedPayload, "destination has no usable signing key: %v", err)
	}
	verifier, err := spk.NewVerifier()
	if err != nil {
		return nil, 0, oops.In("i2cp").Code("bad_identity").
			Wrapf(ErrMalformedPayload, "failed to create verifier: %v", err)
	}
	return &Identity{
		Bytes:    raw,
		Hash:     data.HashData(raw),
		Verifier: verifier,
	}, n, nil
}

// ValidateLeaseSet is the default LeaseSetValidator: the blob must parse as
// a LeaseSet.
func ValidateLeaseSet(owner *Identity, leaseSet []byte) error {
	if len(leaseSet) == 0 {
		return oops.In("i2cp").Code("empty_leaseset").Wrapf(ErrMalformedPayload, "empty leaseset")
	}
	if _, err := lease_set.ReadLeaseSet(leaseSet); err != nil {
		return oops.In("i2cp").Code("bad_leaseset").
			Wrapf(ErrMalformedPayload, "leaseset for %x does not parse: %v", owner.Hash[:8], err)
	}
	return nil
}
