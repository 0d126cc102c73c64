// Package coordinator wires one metadata cache (when needed), selector,
// quarantine registry and dispatcher per configured listener, and owns the
// shutdown sequence: a shutdownTask slice walked in reverse on Shutdown,
// one constructor per registered listener.
package coordinator

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/shmel1k/mysqlrouter/internal/cache"
	"github.com/shmel1k/mysqlrouter/internal/cluster"
	"github.com/shmel1k/mysqlrouter/internal/config"
	"github.com/shmel1k/mysqlrouter/internal/dispatcher"
	"github.com/shmel1k/mysqlrouter/internal/metrics"
	"github.com/shmel1k/mysqlrouter/internal/netio"
	"github.com/shmel1k/mysqlrouter/internal/quarantine"
	"github.com/shmel1k/mysqlrouter/internal/selector"
	"github.com/shmel1k/mysqlrouter/internal/storage"
)

// quarantinePollInterval bounds how often a listener's quarantine registry
// is sampled for the gauge and the transition audit log.
const quarantinePollInterval = 5 * time.Second

// ErrListenerAlreadyExist is returned by RegisterListener for a name
// already registered with this coordinator.
var ErrListenerAlreadyExist = errors.New("listener with such name already registered")

type shutdownTask func()

// listenerUnit is everything the coordinator owns for one configured
// listener: its cache (nil for a static selector), its quarantine registry
// and the replica set name it serves (empty for a static selector).
type listenerUnit struct {
	replicaSetName string
	cache          *cache.Cache
	quarantine     *quarantine.Registry
}

// Coordinator registers and shuts down every listener described by a
// config.Config.
type Coordinator struct {
	logger zerolog.Logger
	store  storage.Storage

	listeners map[string]*listenerUnit

	shutdownQueue []shutdownTask
}

// New builds a Coordinator. store may be storage.MockedStorage{} when audit
// persistence isn't configured.
func New(logger zerolog.Logger, store storage.Storage) *Coordinator {
	return &Coordinator{
		logger:    logger,
		store:     store,
		listeners: make(map[string]*listenerUnit),
	}
}

// RegisterListener builds and starts the cache (if any), selector,
// quarantine registry, dispatcher and net.Listener(s) for one configured
// listener, and registers their shutdown with the coordinator.
func (c *Coordinator) RegisterListener(ctx context.Context, cfg *config.ListenerConfig) error {
	if _, exist := c.listeners[cfg.Name]; exist {
		return ErrListenerAlreadyExist
	}

	listenerLogger := c.logger.With().Str("listener", cfg.Name).Logger()

	reg := quarantine.New(cfg.MaxConnectErrors)
	unit := &listenerUnit{quarantine: reg}

	dest := cfg.ParsedDestinations()

	var sel selector.Selector
	switch dest.Kind {
	case config.DestinationStatic:
		sel = selector.NewStatic(dest.Static, reg)
	case config.DestinationMetadataCache:
		resolver := cluster.NewResolver(cfg.MetadataUser, cfg.MetadataPassword, cfg.ParsedConnectTimeout(), nil, listenerLogger)
		mdCache := cache.New(resolver, cfg.MetadataServers(), dest.ReplicaSetName, cfg.MetadataTTL(), listenerLogger)
		mdCache.Start(ctx)

		unit.cache = mdCache
		unit.replicaSetName = dest.ReplicaSetName
		sel = selector.NewCache(mdCache, dest.ReplicaSetName, cfg.Role(), reg)

		go c.auditSnapshots(ctx, mdCache, dest.ReplicaSetName)
	default:
		return errors.New("coordinator: unknown destinations kind")
	}

	dispCfg := dispatcher.Config{
		Name:                 cfg.Name,
		ConnectTimeout:       cfg.ParsedConnectTimeout(),
		ClientConnectTimeout: cfg.ParsedClientConnectTimeout(),
		MaxConnections:       int(cfg.MaxConnections),
		NetBufferLength:      cfg.NetBufferLength,
	}
	disp := dispatcher.New(dispCfg, sel, reg, netio.Unix{}, listenerLogger)

	listeners, err := openListeners(cfg)
	if err != nil {
		if unit.cache != nil {
			unit.cache.Shutdown()
		}
		return err
	}

	for _, ln := range listeners {
		ln := ln
		go func() {
			if err := disp.Serve(ctx, ln); err != nil {
				listenerLogger.Error().Err(err).Msg("accept loop exited")
			}
		}()
	}

	c.listeners[cfg.Name] = unit
	c.addShutdownTask(func() {
		for _, ln := range listeners {
			_ = ln.Close()
		}
		if unit.cache != nil {
			unit.cache.Shutdown()
		}
	})

	go c.auditQuarantine(ctx, cfg.Name, reg)

	return nil
}

// auditSnapshots persists every published ClusterSnapshot for a
// metadata-cache-backed listener, driven by the cache's pub/sub channel
// rather than polling: the cache only notifies once a new generation has
// actually been published, so there is no need to poll for changes.
func (c *Coordinator) auditSnapshots(ctx context.Context, mdCache *cache.Cache, replicaSetName string) {
	ch := mdCache.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			snap := mdCache.Snapshot()
			if err := c.store.SaveSnapshot(ctx, replicaSetName, snap); err != nil {
				c.logger.Error().Err(err).Str("replicaset", replicaSetName).Msg("failed to persist cluster snapshot")
			}
		}
	}
}

// auditQuarantine periodically reports the quarantined-destination gauge
// and appends a transition row whenever a destination's quarantined state
// changes since the last poll. The registry itself has no pub/sub, so
// polling is the only option here, unlike auditSnapshots above.
func (c *Coordinator) auditQuarantine(ctx context.Context, listenerName string, reg *quarantine.Registry) {
	ticker := time.NewTicker(quarantinePollInterval)
	defer ticker.Stop()

	last := make(map[cluster.Destination]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := reg.Snapshot()

			quarantined := 0
			for dest, e := range snap {
				if e.Quarantined {
					quarantined++
				}
				if prev, ok := last[dest]; ok && prev == e.Quarantined {
					continue
				}
				last[dest] = e.Quarantined
				t := storage.QuarantineTransition{
					ListenerName: listenerName,
					Host:         dest.Host,
					Port:         dest.Port,
					Quarantined:  e.Quarantined,
					RecordedAt:   time.Now().Unix(),
				}
				if err := c.store.SaveQuarantineTransition(ctx, t); err != nil {
					c.logger.Error().Err(err).Str("listener", listenerName).Msg("failed to persist quarantine transition")
				}
			}
			metrics.SetQuarantinedCount(listenerName, quarantined)
		}
	}
}

func openListeners(cfg *config.ListenerConfig) ([]net.Listener, error) {
	var out []net.Listener

	if cfg.BindAddress != "" {
		ln, err := net.Listen("tcp", cfg.BindAddress)
		if err != nil {
			return nil, err
		}
		out = append(out, ln)
	}
	if cfg.Socket != "" {
		ln, err := net.Listen("unix", cfg.Socket)
		if err != nil {
			for _, o := range out {
				_ = o.Close()
			}
			return nil, err
		}
		out = append(out, ln)
	}

	return out, nil
}

// Shutdown runs every registered shutdown task in reverse registration
// order.
func (c *Coordinator) Shutdown() {
	for i := len(c.shutdownQueue) - 1; i >= 0; i-- {
		c.shutdownQueue[i]()
	}
}

func (c *Coordinator) addShutdownTask(task shutdownTask) {
	c.shutdownQueue = append(c.shutdownQueue, task)
}

// ReplicaSetSnapshot implements routerhttp.Service: it returns the current
// ClusterSnapshot published by whichever listener's metadata cache tracks
// replicaSetName.
func (c *Coordinator) ReplicaSetSnapshot(replicaSetName string) (cluster.ClusterSnapshot, bool) {
	for _, unit := range c.listeners {
		if unit.cache == nil || unit.replicaSetName != replicaSetName {
			continue
		}
		return unit.cache.Snapshot(), true
	}
	return cluster.ClusterSnapshot{}, false
}

// ListenerQuarantine implements routerhttp.Service.
func (c *Coordinator) ListenerQuarantine(listenerName string) (map[cluster.Destination]quarantine.Entry, bool) {
	unit, ok := c.listeners[listenerName]
	if !ok {
		return nil, false
	}
	return unit.quarantine.Snapshot(), true
}

// ListenerNames implements routerhttp.Service: it reports every listener
// currently registered, for the /debug/health check to confirm against.
func (c *Coordinator) ListenerNames() []string {
	names := make([]string, 0, len(c.listeners))
	for name := range c.listeners {
		names = append(names, name)
	}
	return names
}
