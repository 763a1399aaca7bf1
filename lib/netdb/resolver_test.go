package netdb

import (
	"context"
	"strings"
	"testing"
	"time"

	common "github.com/go-i2p/common/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestB32AddressRoundTrip(t *testing.T) {
	h := common.HashData([]byte("some destination"))
	name := EncodeB32Address(h)
	assert.True(t, strings.HasSuffix(name, B32Suffix))
	assert.Len(t, name, 52+len(B32Suffix))
	assert.NotContains(t, name, "=")

	got, err := DecodeB32Address(strings.ToUpper(name))
	require.NoError(t, err)
	assert.Equal(t, h, got)

	_, err = DecodeB32Address("short.b32.i2p")
	assert.Error(t, err)
	_, err = DecodeB32Address(strings.Repeat("1", 52) + B32Suffix)
	assert.Error(t, err)
}

func TestResolverPrefersStoreThenBook(t *testing.T) {
	store, err := NewLeaseSetStore(4)
	require.NoError(t, err)
	book := openTestAddressBook(t)
	r := NewResolver(store, book)
	ctx := context.Background()

	published := testLeaseSet("alice", time.Now().Add(time.Minute))
	require.NoError(t, store.PublishLeaseSet(published))
	require.NoError(t, book.Add("bob.i2p", []byte("bob-destination")))

	got, err := r.ResolveHash(ctx, published.Hash)
	require.NoError(t, err)
	assert.Equal(t, published.Identity, got)

	got, err = r.ResolveHash(ctx, common.HashData([]byte("bob-destination")))
	require.NoError(t, err)
	assert.Equal(t, []byte("bob-destination"), got)

	_, err = r.ResolveHash(ctx, common.Hash{0x03})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolverResolveName(t *testing.T) {
	store, err := NewLeaseSetStore(4)
	require.NoError(t, err)
	book := openTestAddressBook(t)
	r := NewResolver(store, book)
	ctx := context.Background()

	require.NoError(t, book.Add("bob.i2p", []byte("bob-destination")))
	got, err := r.ResolveName(ctx, " BOB.i2p ")
	require.NoError(t, err)
	assert.Equal(t, []byte("bob-destination"), got)

	published := testLeaseSet("alice", time.Now().Add(time.Minute))
	require.NoError(t, store.PublishLeaseSet(published))
	got, err = r.ResolveName(ctx, EncodeB32Address(published.Hash))
	require.NoError(t, err)
	assert.Equal(t, published.Identity, got)

	_, err = r.ResolveName(ctx, "nobody.i2p")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolverWithoutSources(t *testing.T) {
	r := NewResolver(nil, nil)
	_, err := r.ResolveName(context.Background(), "bob.i2p")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.ResolveHash(context.Background(), common.Hash{})
	assert.ErrorIs(t, err, ErrNotFound)
}
