package tunnel

import (
	"context"
	"testing"
	"time"

	common "github.com/go-i2p/common/data"
	"github.com/go-i2p/go-i2cpd/lib/netdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaseSetFor(h common.Hash, expires time.Time) *netdb.LeaseSet {
	return &netdb.LeaseSet{Hash: h, Raw: []byte("ls"), Expires: expires}
}

func awaitResult(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("delivery result not reported")
		return nil
	}
}

func TestLocalServiceInboundTunnels(t *testing.T) {
	router := common.Hash{0xAA}
	l := NewLocalService(LocalConfig{RouterHash: router, InboundQuantity: 3, Lifetime: time.Minute})
	now := time.Now()
	l.now = func() time.Time { return now }

	first, err := l.InboundTunnels(context.Background(), common.Hash{0x01})
	require.NoError(t, err)
	require.Len(t, first, 3)
	for i, tun := range first {
		assert.Equal(t, router, tun.Gateway)
		assert.Equal(t, uint32(i+1), tun.ID)
		assert.Equal(t, now.Add(time.Minute), tun.Expires)
	}

	second, err := l.InboundTunnels(context.Background(), common.Hash{0x01})
	require.NoError(t, err)
	assert.Equal(t, uint32(4), second[0].ID, "tunnel IDs are not reused")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.InboundTunnels(ctx, common.Hash{0x01})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalServiceDefaults(t *testing.T) {
	l := NewLocalService(LocalConfig{})
	assert.Equal(t, DefaultLocalConfig().InboundQuantity, l.config.InboundQuantity)
	assert.Equal(t, DefaultLocalConfig().Lifetime, l.config.Lifetime)
}

func TestLocalServiceDelivers(t *testing.T) {
	l := NewLocalService(LocalConfig{})
	defer l.Wait()
	bob := common.Hash{0x0B}

	received := make(chan []byte, 1)
	detach := l.Attach(bob, func(payload []byte) { received <- payload })

	body := []byte("hello")
	result, err := l.SendMessage(context.Background(), common.Hash{0x0A}, leaseSetFor(bob, time.Now().Add(time.Minute)), body)
	require.NoError(t, err)
	body[0] = 'j'
	require.NoError(t, awaitResult(t, result))
	assert.Equal(t, []byte("hello"), <-received)

	detach()
	detach()
	result, err = l.SendMessage(context.Background(), common.Hash{0x0A}, leaseSetFor(bob, time.Now().Add(time.Minute)), body)
	require.NoError(t, err)
	assert.ErrorIs(t, awaitResult(t, result), ErrUnreachable)
}

func TestLocalServiceSendErrors(t *testing.T) {
	l := NewLocalService(LocalConfig{})
	defer l.Wait()

	_, err := l.SendMessage(context.Background(), common.Hash{}, nil, nil)
	assert.Error(t, err)

	_, err = l.SendMessage(context.Background(), common.Hash{}, leaseSetFor(common.Hash{0x01}, time.Now().Add(-time.Second)), nil)
	assert.ErrorIs(t, err, ErrUnreachable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Attach(common.Hash{0x02}, func([]byte) { t.Error("delivered on a cancelled context") })
	result, err := l.SendMessage(ctx, common.Hash{}, leaseSetFor(common.Hash{0x02}, time.Now().Add(time.Minute)), nil)
	require.NoError(t, err)
	assert.ErrorIs(t, awaitResult(t, result), context.Canceled)
}
