package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-i2p/common/base64"
	common "github.com/go-i2p/common/data"
	"github.com/go-i2p/go-i2cpd/lib/config"
	"github.com/go-i2p/go-i2cpd/lib/netdb"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute(), out.String())
	return out.String()
}

func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	t.Cleanup(func() {
		viper.Reset()
		config.CfgFile = ""
	})
	dir := t.TempDir()
	bookPath := filepath.Join(dir, "book", "addressbook.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	raw := "i2cp:\n  max_sessions: 3\nnetdb:\n  addressbook_path: " + bookPath + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(raw), 0o600))
	return cfgPath, bookPath
}

func TestConfigCommandPrintsEffectiveConfig(t *testing.T) {
	cfgPath, bookPath := writeTestConfig(t)

	out := runCommand(t, "--config", cfgPath, "config")
	var cfg config.ConfigDefaults
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 3, cfg.I2CP.MaxSessions)
	assert.Equal(t, bookPath, cfg.NetDB.AddressBookPath)
	assert.Equal(t, config.Defaults().I2CP.Address, cfg.I2CP.Address)
}

func TestAddressBookCommands(t *testing.T) {
	cfgPath, bookPath := writeTestConfig(t)
	dest := []byte("bob destination bytes")

	runCommand(t, "--config", cfgPath, "addressbook", "add", "bob.i2p", base64.EncodeToString(dest))

	out := runCommand(t, "--config", cfgPath, "addressbook", "list")
	assert.True(t, strings.HasPrefix(out, "bob.i2p"))
	assert.Contains(t, out, netdb.EncodeB32Address(common.HashData(dest)))

	runCommand(t, "--config", cfgPath, "addressbook", "remove", "bob.i2p")
	book, err := netdb.OpenAddressBook(bookPath)
	require.NoError(t, err)
	defer book.Close()
	entries, err := book.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAddressBookAddRejectsBadBase64(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--config", cfgPath, "addressbook", "add", "bob.i2p", "!!!"})
	assert.Error(t, root.Execute())
}

func TestNewRouterHashIsRandom(t *testing.T) {
	a, err := newRouterHash()
	require.NoError(t, err)
	b, err := newRouterHash()
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, a)
	assert.NotEqual(t, a, b)
}
