package config

import (
	"fmt"
	"time"

	"github.com/shmel1k/mysqlrouter/internal/cluster"
)

const (
	defaultMaxConnections   = 512
	defaultMaxConnectErrors = 100

	minConnectTimeout       = 1 * time.Second
	minClientConnectTimeout = 2 * time.Second
	maxClientConnectTimeout = 31536000 * time.Second
	minNetBufferLength      = 1024
	maxNetBufferLength      = 1048576
)

// validateListener applies defaults and checks one listener's options
// against their valid ranges, failing on the first violation.
func validateListener(l *ListenerConfig) error {
	switch l.Mode {
	case "read-write":
		l.role = cluster.RolePrimaryOnly
	case "read-only":
		l.role = cluster.RoleSecondaryOnly
	default:
		return ConfigError{Option: "mode", Detail: "must be 'read-write' or 'read-only'"}
	}

	if l.BindAddress == "" && l.Socket == "" {
		return ConfigError{Option: "bind_address", Detail: "either bind_address or socket option needs to be supplied, or both"}
	}
	if l.BindAddress == "" && l.Socket == "" && (l.BindPort < 1 || l.BindPort > 65535) {
		return ConfigError{Option: "bind_port", Detail: "must be between 1 and 65535"}
	}

	dest, err := ParseDestinations(l.Destinations)
	if err != nil {
		return ConfigError{Option: "destinations", Detail: err.Error()}
	}
	l.destinations = dest

	if err := validateDuration(&l.connectTimeout, l.ConnectTimeout, defaultConnectTimeout, minConnectTimeout, 0); err != nil {
		return ConfigError{Option: "connect_timeout", Detail: err.Error()}
	}
	if err := validateDuration(&l.clientConnectTimeout, l.ClientConnectTimeout, defaultClientConnectTimeout, minClientConnectTimeout, maxClientConnectTimeout); err != nil {
		return ConfigError{Option: "client_connect_timeout", Detail: err.Error()}
	}

	if l.MaxConnections == 0 {
		l.MaxConnections = defaultMaxConnections
	}
	if l.MaxConnectErrors == 0 {
		l.MaxConnectErrors = defaultMaxConnectErrors
	}
	if l.NetBufferLength == 0 {
		l.NetBufferLength = defaultNetBufferLength
	}
	if l.NetBufferLength < minNetBufferLength || l.NetBufferLength > maxNetBufferLength {
		return ConfigError{Option: "net_buffer_length", Detail: "must be between 1024 and 1048576"}
	}

	if dest.Kind == DestinationMetadataCache {
		if err := validateDuration(&l.metadataRefreshTTL, l.MetadataRefreshTTL, defaultMetadataTTL, time.Second, 0); err != nil {
			return ConfigError{Option: "metadata_refresh_ttl", Detail: err.Error()}
		}
		if l.MetadataUser == "" {
			return ConfigError{Option: "metadata_user", Detail: "required when destinations names a replica set"}
		}
		servers, err := ParseDestinations(l.MetadataServersRaw)
		if err != nil || servers.Kind != DestinationStatic || len(servers.Static) == 0 {
			return ConfigError{Option: "metadata_servers", Detail: "required host[:port] list when destinations names a replica set"}
		}
		l.metadataServers = servers.Static
	}

	return nil
}

// validateDuration parses raw (a Go duration string, or a bare integer
// meaning seconds) into *out, defaulting to def when raw is empty and rejecting values
// outside [min, max]. A zero max means "no upper bound".
func validateDuration(out *time.Duration, raw string, def, min, max time.Duration) error {
	d := def
	if raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			secs, serr := parseSeconds(raw)
			if serr != nil {
				return fmt.Errorf("invalid duration %q", raw)
			}
			parsed = secs
		}
		d = parsed
	}

	if d < min {
		return fmt.Errorf("%s is below the minimum of %s", d, min)
	}
	if max > 0 && d > max {
		return fmt.Errorf("%s is above the maximum of %s", d, max)
	}

	*out = d
	return nil
}

func parseSeconds(raw string) (time.Duration, error) {
	var n int64
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("not a number: %q", raw)
		}
		n = n*10 + int64(c-'0')
	}
	return time.Duration(n) * time.Second, nil
}
