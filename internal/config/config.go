// Package config loads and validates the router's YAML configuration:
// one or more listener sections, each with a destinations spec that is
// either a static host list or a metadata-cache URI.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/shmel1k/mysqlrouter/internal/cluster"
)

const (
	defaultConnectTimeout       = 1 * time.Second
	defaultClientConnectTimeout = 9 * time.Second
	defaultNetBufferLength      = 16384
	defaultMetadataTTL          = 5 * time.Second
	defaultHTTPAddr             = ":8080"
)

// Config is the top-level router configuration.
type Config struct {
	HTTPAddr  string           `yaml:"http_addr"`
	Logging   Logging          `yaml:"logging"`
	Listeners []ListenerConfig `yaml:"listeners"`

	listenersByName map[string]*ListenerConfig
}

// Logging controls where the structured log stream is written: stdout is
// always on, syslog and a rotating file are both optional and additive.
type Logging struct {
	Level              string `yaml:"level"`
	SysLogEnabled      bool   `yaml:"syslog_enabled"`
	FileLoggingEnabled bool   `yaml:"file_logging_enabled"`
	Filename           string `yaml:"filename"`
	MaxSize            int    `yaml:"max_size"`
	MaxBackups         int    `yaml:"max_backups"`
	MaxAge             int    `yaml:"max_age"`
}

// ListenerConfig is one routing section: where to accept connections and
// where to send them.
type ListenerConfig struct {
	Name                 string `yaml:"name"`
	Destinations         string `yaml:"destinations"`
	BindAddress          string `yaml:"bind_address"`
	BindPort             uint16 `yaml:"bind_port"`
	Socket               string `yaml:"socket"`
	Mode                 string `yaml:"mode"`
	ConnectTimeout       string `yaml:"connect_timeout"`
	ClientConnectTimeout string `yaml:"client_connect_timeout"`
	MaxConnections       uint16 `yaml:"max_connections"`
	MaxConnectErrors     uint32 `yaml:"max_connect_errors"`
	NetBufferLength      int    `yaml:"net_buffer_length"`
	MetadataServersRaw   string `yaml:"metadata_servers"`
	MetadataUser         string `yaml:"metadata_user"`
	MetadataPassword     string `yaml:"metadata_password"`
	MetadataRefreshTTL   string `yaml:"metadata_refresh_ttl"`

	connectTimeout       time.Duration
	clientConnectTimeout time.Duration
	metadataRefreshTTL   time.Duration
	role                 cluster.Role
	destinations         Destinations
	metadataServers      []cluster.Destination
}

// MetadataServers returns the candidate metadata servers parsed by
// Validate, used to seed Resolver.Connect at the start of each refresh
// cycle. Empty unless Destinations names a replica set.
func (l *ListenerConfig) MetadataServers() []cluster.Destination { return l.metadataServers }

// ParsedConnectTimeout, ParsedClientConnectTimeout and MetadataTTL return
// the parsed durations computed by Validate, with defaults applied.
func (l *ListenerConfig) ParsedConnectTimeout() time.Duration       { return l.connectTimeout }
func (l *ListenerConfig) ParsedClientConnectTimeout() time.Duration { return l.clientConnectTimeout }
func (l *ListenerConfig) MetadataTTL() time.Duration                { return l.metadataRefreshTTL }

// Role returns the parsed routing role (primary or secondary) computed by
// Validate from the Mode field.
func (l *ListenerConfig) Role() cluster.Role { return l.role }

// ParsedDestinations returns the destinations spec parsed by Validate.
func (l *ListenerConfig) ParsedDestinations() Destinations { return l.destinations }

// ConfigError is the operator-facing error for an invalid option.
type ConfigError struct {
	Option string
	Detail string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("config: invalid option %q: %s", e.Option, e.Detail)
}

// Load reads path, parses it as YAML and validates every listener. The
// returned error is fatal at startup.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate applies defaults and checks every listener's options, failing on
// the first violation.
func (c *Config) Validate() error {
	if len(c.Listeners) == 0 {
		return ConfigError{Option: "listeners", Detail: "at least one listener must be configured"}
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = defaultHTTPAddr
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	c.listenersByName = make(map[string]*ListenerConfig, len(c.Listeners))
	for i := range c.Listeners {
		l := &c.Listeners[i]
		if l.Name == "" {
			return ConfigError{Option: "name", Detail: "listener name must not be empty"}
		}
		if _, dup := c.listenersByName[l.Name]; dup {
			return ConfigError{Option: "name", Detail: fmt.Sprintf("duplicate listener name %q", l.Name)}
		}
		if err := validateListener(l); err != nil {
			return err
		}
		c.listenersByName[l.Name] = l
	}
	return nil
}

// Listener looks up a validated listener by name.
func (c *Config) Listener(name string) (*ListenerConfig, bool) {
	l, ok := c.listenersByName[name]
	return l, ok
}
