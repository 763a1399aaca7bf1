package netdb

import (
	"fmt"

	common "github.com/go-i2p/common/data"
	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// shortHash renders the first bytes of a hash for log fields.
func shortHash(h common.Hash) string {
	return fmt.Sprintf("%x", h[:8])
}
