package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shmel1k/mysqlrouter/internal/cluster"
)

func testdataPath(t *testing.T, name string) string {
	t.Helper()
	abs, err := filepath.Abs(filepath.Join("testdata", name))
	require.NoError(t, err)
	return abs
}

func TestLoad_InvalidPath(t *testing.T) {
	cfg, err := Load("no/such/file.yml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_NoListeners(t *testing.T) {
	var cfg Config
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Equal(t, ConfigError{Option: "listeners", Detail: "at least one listener must be configured"}, err)
}

func TestLoad_StaticDestinations(t *testing.T) {
	cfg, err := Load(testdataPath(t, "static.yml"))
	require.NoError(t, err)
	require.NotNil(t, cfg)

	l, ok := cfg.Listener("writers")
	require.True(t, ok)

	assert.Equal(t, cluster.RolePrimaryOnly, l.Role())
	assert.Equal(t, 1*time.Second, l.ParsedConnectTimeout())
	assert.Equal(t, 9*time.Second, l.ParsedClientConnectTimeout())

	dest := l.ParsedDestinations()
	require.Equal(t, DestinationStatic, dest.Kind)
	require.Len(t, dest.Static, 3)
	assert.Equal(t, cluster.Destination{Host: "10.0.0.1", Port: 3310, XPort: 33100}, dest.Static[0])
	assert.Equal(t, cluster.Destination{Host: "10.0.0.3", Port: 3330, XPort: 33300}, dest.Static[2])
}

func TestLoad_MetadataCacheDestinations(t *testing.T) {
	cfg, err := Load(testdataPath(t, "metadata-cache.yml"))
	require.NoError(t, err)

	l, ok := cfg.Listener("readers")
	require.True(t, ok)

	assert.Equal(t, cluster.RoleSecondaryOnly, l.Role())

	dest := l.ParsedDestinations()
	require.Equal(t, DestinationMetadataCache, dest.Kind)
	assert.Equal(t, "prod-cluster-1", dest.ReplicaSetName)

	assert.Equal(t, 5*time.Second, l.MetadataTTL())
	require.Len(t, l.MetadataServers(), 3)
	assert.Equal(t, cluster.Destination{Host: "10.0.0.2", Port: 3320, XPort: 33200}, l.MetadataServers()[1])
}

func TestLoad_InvalidMode(t *testing.T) {
	cfg, err := Load(testdataPath(t, "bad-mode.yml"))
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.IsType(t, ConfigError{}, err)
}

func TestValidateListener_RequiresBindAddressOrSocket(t *testing.T) {
	l := ListenerConfig{
		Name:         "x",
		Destinations: "10.0.0.1:3306",
		Mode:         "read-write",
	}
	err := validateListener(&l)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "either bind_address or socket option needs to be supplied, or both")
}

func TestValidateListener_SocketOnlyIsValid(t *testing.T) {
	l := ListenerConfig{
		Name:         "x",
		Destinations: "10.0.0.1:3306",
		Mode:         "read-write",
		Socket:       "/tmp/router.sock",
	}
	err := validateListener(&l)
	require.NoError(t, err)
}

func TestValidateListener_AppliesDefaults(t *testing.T) {
	l := ListenerConfig{
		Name:         "x",
		Destinations: "10.0.0.1:3306",
		Mode:         "read-write",
		BindAddress:  "0.0.0.0:6446",
	}
	err := validateListener(&l)
	require.NoError(t, err)
	assert.Equal(t, defaultConnectTimeout, l.ParsedConnectTimeout())
	assert.Equal(t, defaultClientConnectTimeout, l.ParsedClientConnectTimeout())
	assert.EqualValues(t, defaultMaxConnections, l.MaxConnections)
	assert.EqualValues(t, defaultMaxConnectErrors, l.MaxConnectErrors)
	assert.Equal(t, defaultNetBufferLength, l.NetBufferLength)
}

func TestValidateListener_RejectsOutOfRangeNetBufferLength(t *testing.T) {
	l := ListenerConfig{
		Name:            "x",
		Destinations:    "10.0.0.1:3306",
		Mode:            "read-write",
		BindAddress:     "0.0.0.0:6446",
		NetBufferLength: 42,
	}
	err := validateListener(&l)
	require.Error(t, err)
	assert.Equal(t, "net_buffer_length", err.(ConfigError).Option)
}

func TestValidateListener_DuplicateNamesRejected(t *testing.T) {
	cfg := Config{
		Listeners: []ListenerConfig{
			{Name: "dup", Destinations: "10.0.0.1:3306", Mode: "read-write", BindAddress: "0.0.0.0:6446"},
			{Name: "dup", Destinations: "10.0.0.2:3306", Mode: "read-write", BindAddress: "0.0.0.0:6447"},
		},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate listener name "dup"`)
}
