package config

import (
	"os"
	"strings"
)

func boolFromEnv(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if val == "true" {
		return true
	}
	if val == "false" {
		return false
	}
	return def
}

// AutoSyncEnabled gates the background drain loop. Default on: an offline-first
// client that never drains its outbox is just an offline client.
func AutoSyncEnabled() bool {
	return boolFromEnv("AUTO_SYNC_ENABLED", true)
}

// ReservationSweepEnabled gates the periodic expiry sweep. availableStock is
// correct without it (expiry is applied at query time), so it is safe to turn
// off on constrained devices.
func ReservationSweepEnabled() bool {
	return boolFromEnv("RESERVATION_SWEEP_ENABLED", true)
}

// StatusAPIEnabled gates the loopback status API used by UI collaborators.
func StatusAPIEnabled() bool {
	return boolFromEnv("STATUS_API_ENABLED", true)
}

// StatusAPIAddress is the listen address for the loopback status API.
func StatusAPIAddress() string {
	addr := strings.TrimSpace(os.Getenv("STATUS_API_ADDRESS"))
	if addr == "" {
		addr = "127.0.0.1:7319"
	}
	return addr
}
