package sntp

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/beevik/ntp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNTPClient struct {
	mu        sync.Mutex
	responses map[string]*ntp.Response
	queried   []string
}

func (f *fakeNTPClient) QueryWithOptions(host string, _ ntp.QueryOptions) (*ntp.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried = append(f.queried, host)
	if resp, ok := f.responses[host]; ok {
		return resp, nil
	}
	return nil, errors.New("unreachable")
}

func goodResponse(offset time.Duration) *ntp.Response {
	return &ntp.Response{
		Time:        time.Now(),
		ClockOffset: offset,
		Stratum:     2,
		Leap:        ntp.LeapNoWarning,
	}
}

func TestClockUpdateAdoptsFirstValidOffset(t *testing.T) {
	client := &fakeNTPClient{responses: map[string]*ntp.Response{
		"bad":  {Time: time.Now(), Stratum: 0},
		"good": goodResponse(3 * time.Second),
		"late": goodResponse(time.Hour),
	}}
	c := NewClock(client, Config{Servers: []string{"down", "bad", "good", "late"}})
	fixed := time.Unix(1700000000, 0)
	c.now = func() time.Time { return fixed }

	require.NoError(t, c.Update())
	assert.True(t, c.Synced())
	assert.Equal(t, 3*time.Second, c.Offset())
	assert.Equal(t, fixed.Add(3*time.Second), c.Now())
	assert.Equal(t, []string{"down", "bad", "good"}, client.queried)
}

func TestClockUpdateAllFail(t *testing.T) {
	c := NewClock(&fakeNTPClient{}, Config{Servers: []string{"a", "b"}})
	assert.Error(t, c.Update())
	assert.False(t, c.Synced())
	assert.Zero(t, c.Offset())
}

func TestClockDisabledStartStop(t *testing.T) {
	client := &fakeNTPClient{}
	c := NewClock(client, Config{Disabled: true})
	c.Start()
	c.Stop()
	c.Stop()
	assert.Empty(t, client.queried)
}

func TestNewClockDefaults(t *testing.T) {
	c := NewClock(nil, Config{QueryInterval: time.Second})
	assert.Equal(t, DefaultServers(), c.config.Servers)
	assert.Equal(t, minQueryInterval, c.config.QueryInterval)
	assert.Equal(t, defaultTimeout, c.config.Timeout)
}

func TestValidateResponse(t *testing.T) {
	assert.NoError(t, validateResponse(goodResponse(time.Second)))

	notSynced := goodResponse(0)
	notSynced.Leap = ntp.LeapNotInSync
	assert.Error(t, validateResponse(notSynced))

	badStratum := goodResponse(0)
	badStratum.Stratum = 16
	assert.Error(t, validateResponse(badStratum))

	assert.Error(t, validateResponse(goodResponse(48*time.Hour)))
	assert.Error(t, validateResponse(nil))
}
