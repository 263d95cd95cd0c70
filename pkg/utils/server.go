package utils

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strings"
)

// GetInstanceID returns a stable, key-safe identifier for this process.
// Logic:
// 1. Return provided override if not empty.
// 2. Try OS Hostname.
// 3. Generate a random one.
func GetInstanceID(override string) string {
	if override != "" {
		return override
	}

	hostname, err := os.Hostname()
	if err == nil && hostname != "" && hostname != "localhost" {
		cleanHost := strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
				return r
			}
			return -1
		}, hostname)
		if cleanHost != "" {
			return "azusers-" + cleanHost
		}
	}

	randomPart := make([]byte, 4)
	_, _ = rand.Read(randomPart)
	return "azusers-" + hex.EncodeToString(randomPart)
}
