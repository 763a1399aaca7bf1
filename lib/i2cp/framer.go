package i2cp

import (
	"github.com/samber/oops"
)

// framer reassembles messages from a byte stream delivered in arbitrary
// chunks. The caller reads into space(), reports the count with advance(),
// then drains complete messages with next() until it reports none.
type framer struct {
	buf   []byte
	start int
	end   int

	haveHeader bool
	length     uint32
	msgType    uint8
}

func newFramer(size int) *framer {
	if size < HeaderSize {
		size = DefaultBufferSize
	}
	return &framer{buf: make([]byte, size)}
}

// space compacts the buffer and returns the region the next read fills.
func (f *framer) space() []byte {
	if f.start > 0 {
		n := copy(f.buf, f.buf[f.start:f.end])
		f.start = 0
		f.end = n
	}
	return f.buf[f.end:]
}

// advance records n bytes written into the slice returned by space.
func (f *framer) advance(n int) {
	f.end += n
}

// buffered reports how many unconsumed bytes are held.
func (f *framer) buffered() int {
	return f.end - f.start
}

// awaitingBody reports whether a header has been decoded and its payload is
// still incomplete.
func (f *framer) awaitingBody() bool {
	return f.haveHeader
}

// next returns the next complete message, or nil when more input is needed.
// A declared length that can never fit the buffer is reported as
// ErrResourceExhaustion.
func (f *framer) next() (*Message, error) {
	if !f.haveHeader {
		if f.buffered() < HeaderSize {
			return nil, nil
		}
		length, msgType, err := DecodeHeader(f.buf[f.start:f.end])
		if err != nil {
			return nil, err
		}
		if uint64(length)+HeaderSize > uint64(len(f.buf)) {
			return nil, oops.In("i2cp").Code("message_too_large").
				Wrapf(ErrResourceExhaustion, "message of %d bytes exceeds %d byte buffer", length, len(f.buf)-HeaderSize)
		}
		f.start += HeaderSize
		f.length = length
		f.msgType = msgType
		f.haveHeader = true
	}
	if uint64(f.buffered()) < uint64(f.length) {
		return nil, nil
	}
	payload := make([]byte, f.length)
	copy(payload, f.buf[f.start:f.start+int(f.length)])
	f.start += int(f.length)
	f.haveHeader = false
	return &Message{Type: f.msgType, Payload: payload}, nil
}
