package sntp

import (
	"time"

	"github.com/beevik/ntp"
	"github.com/samber/oops"
)

// maxClockOffset rejects answers claiming the local clock is wildly off.
const maxClockOffset = 24 * time.Hour

// validateResponse rejects unsynchronized servers, kiss-of-death and invalid
// stratum values, and implausible offsets.
func validateResponse(resp *ntp.Response) error {
	if resp == nil {
		return oops.Errorf("empty NTP response")
	}
	if resp.Leap == ntp.LeapNotInSync {
		return oops.Errorf("server clock not synchronized")
	}
	if resp.Stratum == 0 || resp.Stratum > 15 {
		return oops.Errorf("stratum %d out of range", resp.Stratum)
	}
	if resp.Time.IsZero() {
		return oops.Errorf("zero transmit time")
	}
	offset := resp.ClockOffset
	if offset < 0 {
		offset = -offset
	}
	if offset > maxClockOffset {
		return oops.Errorf("clock offset %s out of bounds", resp.ClockOffset)
	}
	return nil
}
