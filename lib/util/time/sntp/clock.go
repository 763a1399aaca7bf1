package sntp

import (
	"strings"
	"sync"
	"time"

	"github.com/beevik/ntp"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

// NTPClient queries a single NTP server.
type NTPClient interface {
	QueryWithOptions(host string, options ntp.QueryOptions) (*ntp.Response, error)
}

// DefaultNTPClient queries real servers with beevik/ntp.
type DefaultNTPClient struct{}

func (c *DefaultNTPClient) QueryWithOptions(host string, options ntp.QueryOptions) (*ntp.Response, error) {
	return ntp.QueryWithOptions(host, options)
}

const (
	minQueryInterval     = 5 * time.Minute
	defaultQueryInterval = 11 * time.Minute
	defaultTimeout       = 10 * time.Second
	defaultServerList    = "0.pool.ntp.org,1.pool.ntp.org,2.pool.ntp.org"
)

// DefaultServers returns the public pool servers used when none are configured.
func DefaultServers() []string {
	return strings.Split(defaultServerList, ",")
}

// Config configures a Clock.
type Config struct {
	Servers       []string
	Disabled      bool
	QueryInterval time.Duration
	Timeout       time.Duration
}

// Clock reports system time corrected by the last accepted NTP offset. With
// no successful query it reports plain system time.
type Clock struct {
	config Config
	client NTPClient
	now    func() time.Time

	mu     sync.RWMutex
	offset time.Duration
	synced bool

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewClock creates a Clock. A nil client uses DefaultNTPClient.
func NewClock(client NTPClient, config Config) *Clock {
	if client == nil {
		client = &DefaultNTPClient{}
	}
	if len(config.Servers) == 0 {
		config.Servers = DefaultServers()
	}
	if config.QueryInterval <= 0 {
		config.QueryInterval = defaultQueryInterval
	}
	if config.QueryInterval < minQueryInterval {
		config.QueryInterval = minQueryInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	return &Clock{
		config: config,
		client: client,
		now:    time.Now,
		stop:   make(chan struct{}),
	}
}

// Now returns the corrected current time.
func (c *Clock) Now() time.Time {
	return c.now().Add(c.Offset())
}

// Offset returns the correction applied to system time.
func (c *Clock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// Synced reports whether any query has succeeded.
func (c *Clock) Synced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.synced
}

// Update queries the configured servers in order and adopts the offset of the
// first valid response.
func (c *Clock) Update() error {
	var lastErr error
	for _, server := range c.config.Servers {
		resp, err := c.client.QueryWithOptions(server, ntp.QueryOptions{Timeout: c.config.Timeout})
		if err == nil {
			err = validateResponse(resp)
		}
		if err != nil {
			log.WithFields(logger.Fields{
				"at":     "sntp.Clock.Update",
				"server": server,
				"error":  err.Error(),
			}).Debug("ntp_query_failed")
			lastErr = err
			continue
		}
		c.mu.Lock()
		c.offset = resp.ClockOffset
		c.synced = true
		c.mu.Unlock()
		log.WithFields(logger.Fields{
			"at":      "sntp.Clock.Update",
			"server":  server,
			"offset":  resp.ClockOffset,
			"stratum": resp.Stratum,
		}).Debug("clock_offset_updated")
		return nil
	}
	return oops.Wrapf(lastErr, "no NTP server of %d answered", len(c.config.Servers))
}

// Start performs an initial query and keeps refreshing the offset in the
// background. It does nothing when the clock is disabled.
func (c *Clock) Start() {
	if c.config.Disabled {
		log.WithField("at", "sntp.Clock.Start").Debug("ntp_disabled")
		return
	}
	c.wg.Add(1)
	go c.run()
}

func (c *Clock) run() {
	defer c.wg.Done()
	if err := c.Update(); err != nil {
		log.WithError(err).Warn("initial_ntp_query_failed")
	}
	ticker := time.NewTicker(c.config.QueryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if err := c.Update(); err != nil {
				log.WithError(err).Warn("ntp_query_failed")
			}
		}
	}
}

// Stop ends background refreshing. It is safe to call more than once.
func (c *Clock) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
}
