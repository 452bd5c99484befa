package instance

import "os"

// GetID identifies the running process in logs and lock values. The platform
// dyno name wins over the explicit override, which wins over the hostname.
func GetID() string {
	for _, key := range []string{"DYNO", "STOREFRONT_INSTANCE_ID"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
