package instance

import (
	"os"

	"github.com/nokasa/pickup-backend/pkg/env"
)

// EnvKey overrides the instance name; useful when several replicas share a host.
const EnvKey = env.Prefix + instanceName

const instanceName = "INSTANCE_ID"

// ID returns the name this process logs under: PICKUP_INSTANCE_ID, then the
// hostname, then kind-0.
func ID(kind string) string {
	fallback := kind + "-0"
	if host, err := os.Hostname(); err == nil && host != "" {
		fallback = host
	}
	return env.Pickup(instanceName, fallback)
}
