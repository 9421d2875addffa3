package instance

import (
	"os"

	"github.com/angelmondragon/farmlink-backend/pkg/env"
)

// ID returns the process identifier used in logs and lock ownership:
// FARMLINK_INSTANCE_ID, then the hostname, then "local".
func ID() string {
	if id := env.String("instance_id", ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
