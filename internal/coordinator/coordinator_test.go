package coordinator

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shmel1k/mysqlrouter/internal/config"
	"github.com/shmel1k/mysqlrouter/internal/storage"
)

func staticListener(t *testing.T, name string) *config.ListenerConfig {
	t.Helper()

	cfg := &config.Config{Listeners: []config.ListenerConfig{{
		Name:           name,
		Destinations:   "127.0.0.1:3306",
		BindAddress:    "127.0.0.1:0",
		Mode:           "read-write",
		ConnectTimeout: "1",
	}}}
	require.NoError(t, cfg.Validate())

	l, ok := cfg.Listener(name)
	require.True(t, ok)
	return l
}

func TestRegisterListener_Static(t *testing.T) {
	c := New(zerolog.Nop(), storage.MockedStorage{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := staticListener(t, "writers")
	require.NoError(t, c.RegisterListener(ctx, l))

	_, ok := c.ReplicaSetSnapshot("writers")
	assert.False(t, ok, "a static listener has no cache to snapshot")

	entries, ok := c.ListenerQuarantine("writers")
	assert.True(t, ok)
	assert.Empty(t, entries)

	_, ok = c.ListenerQuarantine("unknown")
	assert.False(t, ok)
}

func TestRegisterListener_Duplicate(t *testing.T) {
	c := New(zerolog.Nop(), storage.MockedStorage{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := staticListener(t, "writers")
	require.NoError(t, c.RegisterListener(ctx, l))

	err := c.RegisterListener(ctx, l)
	assert.Equal(t, ErrListenerAlreadyExist, err)
}
