// Package sntp keeps the router's clock close to network time by applying
// an offset measured against NTP servers.
package sntp
