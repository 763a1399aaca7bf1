package netdb

import (
	"path/filepath"
	"strings"
	"testing"

	common "github.com/go-i2p/common/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestAddressBook(t *testing.T) *AddressBook {
	t.Helper()
	book, err := OpenAddressBook(filepath.Join(t.TempDir(), "addressbook.db"))
	require.NoError(t, err)
	t.Cleanup(func() { book.Close() })
	return book
}

func TestAddressBookAddLookup(t *testing.T) {
	book := openTestAddressBook(t)
	dest := []byte("bob-destination")

	require.NoError(t, book.Add("Bob.I2P", dest))

	entry, err := book.Lookup("bob.i2p")
	require.NoError(t, err)
	assert.Equal(t, "bob.i2p", entry.Name)
	assert.Equal(t, dest, entry.Destination)
	assert.Equal(t, common.HashData(dest), entry.Hash)
	assert.NotZero(t, entry.Added)

	byHash, err := book.LookupHash(common.HashData(dest))
	require.NoError(t, err)
	assert.Equal(t, "bob.i2p", byHash.Name)

	_, err = book.Lookup("nobody.i2p")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = book.LookupHash(common.Hash{0x02})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddressBookReplaceDropsOldHash(t *testing.T) {
	book := openTestAddressBook(t)
	require.NoError(t, book.Add("bob.i2p", []byte("old")))
	require.NoError(t, book.Add("bob.i2p", []byte("new")))

	_, err := book.LookupHash(common.HashData([]byte("old")))
	assert.ErrorIs(t, err, ErrNotFound)
	entry, err := book.LookupHash(common.HashData([]byte("new")))
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), entry.Destination)
}

func TestAddressBookRejectsInvalid(t *testing.T) {
	book := openTestAddressBook(t)
	assert.Error(t, book.Add("", []byte("x")))
	assert.Error(t, book.Add(strings.Repeat("a", MaxHostnameLength+1), []byte("x")))
	assert.Error(t, book.Add("empty.i2p", nil))
}

func TestAddressBookRemoveAndList(t *testing.T) {
	book := openTestAddressBook(t)
	require.NoError(t, book.Add("b.i2p", []byte("b")))
	require.NoError(t, book.Add("a.i2p", []byte("a")))

	entries, err := book.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.i2p", entries[0].Name)
	assert.Equal(t, "b.i2p", entries[1].Name)

	require.NoError(t, book.Remove("A.i2p"))
	require.NoError(t, book.Remove("unknown.i2p"))
	_, err = book.LookupHash(common.HashData([]byte("a")))
	assert.ErrorIs(t, err, ErrNotFound)

	entries, err = book.List()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAddressBookPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "addressbook.db")
	book, err := OpenAddressBook(path)
	require.NoError(t, err)
	require.NoError(t, book.Add("bob.i2p", []byte("bob")))
	require.NoError(t, book.Close())

	book, err = OpenAddressBook(path)
	require.NoError(t, err)
	defer book.Close()
	entry, err := book.Lookup("bob.i2p")
	require.NoError(t, err)
	assert.Equal(t, []byte("bob"), entry.Destination)
}
