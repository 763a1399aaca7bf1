package i2cp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	header := EncodeHeader(0x01020304, MessageTypeSendMessage)
	require.Len(t, header, HeaderSize)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, header)

	length, msgType, err := DecodeHeader(header)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x01020304), length)
	assert.Equal(t, uint8(MessageTypeSendMessage), msgType)

	_, _, err = DecodeHeader(header[:4])
	assert.ErrorIs(t, err, ErrTruncatedInput)
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "a", "i2cp.dontPublishLeaseSet", strings.Repeat("x", MaxStringLength)} {
		enc, err := PutString(s)
		require.NoError(t, err)
		got, n, err := ExtractString(enc)
		require.NoError(t, err)
		assert.Equal(t, s, got)
		assert.Equal(t, len(enc), n)
	}
}

func TestPutStringTooLong(t *testing.T) {
	_, err := PutString(strings.Repeat("x", MaxStringLength+1))
	assert.ErrorIs(t, err, ErrStringTooLong)
}

func TestExtractStringTruncated(t *testing.T) {
	_, _, err := ExtractString(nil)
	assert.ErrorIs(t, err, ErrTruncatedInput)

	// declares 10 bytes, carries 3
	_, _, err = ExtractString([]byte{10, 'a', 'b', 'c'})
	assert.ErrorIs(t, err, ErrTruncatedInput)
}

func TestExtractStringIgnoresTrailingBytes(t *testing.T) {
	got, n, err := ExtractString([]byte{2, 'h', 'i', 'x', 'y'})
	require.NoError(t, err)
	assert.Equal(t, "hi", got)
	assert.Equal(t, 3, n)
}

func TestMappingRoundTripPreservesOrder(t *testing.T) {
	m := Mapping{
		{Key: "z", Value: "1"},
		{Key: "a", Value: ""},
		{Key: "z", Value: "2"},
		{Key: OptionMessageReliability, Value: "none"},
	}
	enc, err := PutMapping(m)
	require.NoError(t, err)

	got, n, err := ExtractMapping(enc)
	require.NoError(t, err)
	assert.Equal(t, m, got)
	assert.Equal(t, len(enc), n)

	again, err := PutMapping(got)
	require.NoError(t, err)
	assert.Equal(t, enc, again)
}

func TestEmptyMapping(t *testing.T) {
	enc, err := PutMapping(nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0}, enc)

	got, n, err := ExtractMapping(enc)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 2, n)
}

func TestExtractMappingFinalDelimiterOptional(t *testing.T) {
	block := []byte{1, 'a', '=', 1, '1', ';', 1, 'b', '=', 1, '2'}
	buf := append([]byte{0, byte(len(block))}, block...)

	got, n, err := ExtractMapping(buf)
	require.NoError(t, err)
	assert.Equal(t, Mapping{{"a", "1"}, {"b", "2"}}, got)
	assert.Equal(t, len(buf), n)
}

func TestExtractMappingMissingEquals(t *testing.T) {
	block := []byte{1, 'a', ':', 1, '1', ';'}
	buf := append([]byte{0, byte(len(block))}, block...)
	_, _, err := ExtractMapping(buf)
	assert.ErrorIs(t, err, ErrMalformedMapping)
}

func TestExtractMappingBadSeparator(t *testing.T) {
	block := []byte{1, 'a', '=', 1, '1', ',', 1, 'b', '=', 1, '2'}
	buf := append([]byte{0, byte(len(block))}, block...)
	_, _, err := ExtractMapping(buf)
	assert.ErrorIs(t, err, ErrMalformedMapping)
}

func TestExtractMappingNeverReadsPastBlock(t *testing.T) {
	// the value claims 200 bytes; the block holds 4 while more bytes follow it
	block := []byte{1, 'a', '=', 200}
	buf := append([]byte{0, byte(len(block))}, block...)
	buf = append(buf, make([]byte, 300)...)
	_, _, err := ExtractMapping(buf)
	assert.ErrorIs(t, err, ErrMalformedMapping)
}

func TestExtractMappingTruncated(t *testing.T) {
	_, _, err := ExtractMapping([]byte{0})
	assert.ErrorIs(t, err, ErrTruncatedInput)

	_, _, err = ExtractMapping([]byte{0, 10, 1, 'a'})
	assert.ErrorIs(t, err, ErrTruncatedInput)
}

func TestMappingDuplicateKeysFirstWins(t *testing.T) {
	m := Mapping{
		{Key: OptionDontPublishLeaseSet, Value: "true"},
		{Key: OptionDontPublishLeaseSet, Value: "false"},
	}
	v, ok := m.Get(OptionDontPublishLeaseSet)
	require.True(t, ok)
	assert.Equal(t, "true", v)
	assert.Equal(t, map[string]string{OptionDontPublishLeaseSet: "true"}, m.ToMap())

	_, ok = m.Get("missing")
	assert.False(t, ok)
}

func TestMessageMarshalAndRead(t *testing.T) {
	msg := &Message{Type: MessageTypeGetDate, Payload: []byte("abc")}
	raw, err := msg.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 3, MessageTypeGetDate, 'a', 'b', 'c'}, raw)

	got, err := ReadMessage(strings.NewReader(string(raw)))
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	_, err = ReadMessage(strings.NewReader(string(raw[:6])))
	assert.Error(t, err)
}

func TestMessageTypeName(t *testing.T) {
	assert.Equal(t, "HostLookup", MessageTypeName(MessageTypeHostLookup))
	assert.Equal(t, "Unknown(99)", MessageTypeName(99))
	assert.Equal(t, "NoLeaseSet", MessageStatusNoLeaseSet.String())
}
