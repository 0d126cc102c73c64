package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/shmel1k/mysqlrouter/internal/cluster"
)

// DestinationKind distinguishes the two forms a "destinations" option can
// take.
type DestinationKind int

const (
	// DestinationStatic is a fixed comma-separated host[:port] list, routed
	// by the static round-robin selector.
	DestinationStatic DestinationKind = iota
	// DestinationMetadataCache is a mysql:// or fabric+cache:// URI naming a
	// replica set whose members come from the metadata cache.
	DestinationMetadataCache
)

// Destinations is the parsed form of the "destinations" option: either a
// fixed address list or a named replica set resolved through the metadata
// cache.
type Destinations struct {
	Kind           DestinationKind
	ReplicaSetName string // set when Kind == DestinationMetadataCache
	Static         []cluster.Destination
}

// ParseDestinations parses the "destinations" option: a mysql:// URI
// selects the metadata-cache selector against the named replica set (path
// must be "replicaset"); a fabric+cache:// URI is the legacy equivalent
// (path must be "group"); anything else is parsed as a comma-separated
// host[:port] list, default port 3306, rejecting any empty element.
func ParseDestinations(raw string) (Destinations, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Destinations{}, fmt.Errorf("must not be empty")
	}

	if u, err := url.Parse(raw); err == nil && u.Scheme != "" {
		switch u.Scheme {
		case "mysql":
			return parseMetadataCacheURI(u, raw, "replicaset")
		case "fabric+cache":
			return parseMetadataCacheURI(u, raw, "group")
		}
	}

	return parseStaticList(raw)
}

func parseMetadataCacheURI(u *url.URL, raw, wantCmd string) (Destinations, error) {
	cmd := strings.ToLower(strings.TrimPrefix(u.Path, "/"))
	if cmd != wantCmd {
		return Destinations{}, fmt.Errorf("has an invalid command in URI %q; was %q", raw, cmd)
	}
	name := u.Host
	if name == "" {
		return Destinations{}, fmt.Errorf("URI %q names no replica set", raw)
	}
	return Destinations{Kind: DestinationMetadataCache, ReplicaSetName: name}, nil
}

func parseStaticList(raw string) (Destinations, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, ",") || strings.HasSuffix(trimmed, ",") {
		return Destinations{}, fmt.Errorf("empty address found in destination list (was %q)", raw)
	}

	parts := strings.Split(trimmed, ",")
	out := make([]cluster.Destination, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return Destinations{}, fmt.Errorf("empty address found in destination list (was %q)", raw)
		}

		host, port, err := splitHostPortDefault(part, 3306)
		if err != nil {
			return Destinations{}, fmt.Errorf("has an invalid destination address %q: %w", part, err)
		}
		out = append(out, cluster.Destination{Host: host, Port: port, XPort: port * 10})
	}

	return Destinations{Kind: DestinationStatic, Static: out}, nil
}

// splitHostPortDefault splits "host[:port]", applying defaultPort when no
// port is present.
func splitHostPortDefault(addr string, defaultPort uint16) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, defaultPort, nil
	}
	if portStr == "" {
		return host, defaultPort, nil
	}
	p, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, err
	}
	return host, uint16(p), nil
}
