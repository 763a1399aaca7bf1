package i2cp

import (
	"bytes"
	"encoding/binary"

	"github.com/samber/oops"
)

// HeaderSize is the size of the common I2CP message header:
// payload length(4) + type(1).
const HeaderSize = 5

// MaxStringLength is the largest string an I2P String can carry.
const MaxStringLength = 255

// DecodeHeader parses a 5-byte message header.
func DecodeHeader(header []byte) (length uint32, msgType uint8, err error) {
	if len(header) < HeaderSize {
		return 0, 0, oops.In("i2cp").Code("truncated_header").
			Wrapf(ErrTruncatedInput, "header needs %d bytes, have %d", HeaderSize, len(header))
	}
	return binary.BigEndian.Uint32(header[0:4]), header[4], nil
}

// EncodeHeader returns the 5-byte wire header for a message.
func EncodeHeader(length uint32, msgType uint8) []byte {
	header := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(header[0:4], length)
	header[4] = msgType
	return header
}

// ExtractString reads a length-prefixed I2P String from buf and reports how
// many bytes it consumed.
func ExtractString(buf []byte) (string, int, error) {
	if len(buf) < 1 {
		return "", 0, oops.In("i2cp").Code("truncated_string").
			Wrapf(ErrTruncatedInput, "missing string length byte")
	}
	n := int(buf[0])
	if len(buf)-1 < n {
		return "", 0, oops.In("i2cp").Code("truncated_string").
			Wrapf(ErrTruncatedInput, "string declares %d bytes, %d available", n, len(buf)-1)
	}
	return string(buf[1 : 1+n]), 1 + n, nil
}

// PutString encodes str as an I2P String.
func PutString(str string) ([]byte, error) {
	if len(str) > MaxStringLength {
		return nil, oops.In("i2cp").Code("string_too_long").
			Wrapf(ErrStringTooLong, "string is %d bytes, max %d", len(str), MaxStringLength)
	}
	out := make([]byte, 1+len(str))
	out[0] = byte(len(str))
	copy(out[1:], str)
	return out, nil
}

// MappingEntry is one key/value pair of a Mapping.
type MappingEntry struct {
	Key   string
	Value string
}

// Mapping is an ordered list of string options. Duplicate keys are kept so
// that a decoded mapping re-encodes byte for byte.
type Mapping []MappingEntry

// Get returns the value of the first entry whose key equals key.
func (m Mapping) Get(key string) (string, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// ToMap flattens the mapping, keeping the first value for duplicated keys.
func (m Mapping) ToMap() map[string]string {
	out := make(map[string]string, len(m))
	for _, e := range m {
		if _, ok := out[e.Key]; !ok {
			out[e.Key] = e.Value
		}
	}
	return out
}

// ExtractMapping reads a 2-byte length prefixed mapping block and returns the
// decoded pairs plus the total number of bytes consumed (prefix included).
//
// Each segment is String '=' String ';'. The ';' of the final segment may be
// omitted.
func ExtractMapping(buf []byte) (Mapping, int, error) {
	if len(buf) < 2 {
		return nil, 0, oops.In("i2cp").Code("truncated_mapping").
			Wrapf(ErrTruncatedInput, "mapping needs 2 length bytes, have %d", len(buf))
	}
	size := int(binary.BigEndian.Uint16(buf[0:2]))
	if len(buf)-2 < size {
		return nil, 0, oops.In("i2cp").Code("truncated_mapping").
			Wrapf(ErrTruncatedInput, "mapping declares %d bytes, %d available", size, len(buf)-2)
	}
	m, err := parseMappingBlock(buf[2 : 2+size])
	if err != nil {
		return nil, 0, err
	}
	return m, 2 + size, nil
}

func parseMappingBlock(block []byte) (Mapping, error) {
	m := Mapping{}
	offset := 0
	for offset < len(block) {
		key, n, err := ExtractString(block[offset:])
		if err != nil {
			return nil, oops.In("i2cp").Code("malformed_mapping").
				Wrapf(ErrMalformedMapping, "key at offset %d: %v", offset, err)
		}
		offset += n
		if offset >= len(block) || block[offset] != '=' {
			return nil, oops.In("i2cp").Code("malformed_mapping").
				Wrapf(ErrMalformedMapping, "segment %q has no '='", key)
		}
		offset++
		value, n, err := ExtractString(block[offset:])
		if err != nil {
			return nil, oops.In("i2cp").Code("malformed_mapping").
				Wrapf(ErrMalformedMapping, "value of %q: %v", key, err)
		}
		offset += n
		m = append(m, MappingEntry{Key: key, Value: value})
		if offset == len(block) {
			break
		}
		if block[offset] != ';' {
			return nil, oops.In("i2cp").Code("malformed_mapping").
				Wrapf(ErrMalformedMapping, "segment %q not terminated by ';'", key)
		}
		offset++
	}
	return m, nil
}

// PutMapping encodes m with its 2-byte length prefix.
func PutMapping(m Mapping) ([]byte, error) {
	var block bytes.Buffer
	for _, e := range m {
		k, err := PutString(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := PutString(e.Value)
		if err != nil {
			return nil, err
		}
		block.Write(k)
		block.WriteByte('=')
		block.Write(v)
		block.WriteByte(';')
	}
	if block.Len() > 0xFFFF {
		return nil, oops.In("i2cp").Code("mapping_too_long").
			Wrapf(ErrMalformedPayload, "mapping block is %d bytes", block.Len())
	}
	out := make([]byte, 2+block.Len())
	binary.BigEndian.PutUint16(out[0:2], uint16(block.Len()))
	copy(out[2:], block.Bytes())
	return out, nil
}
