package world

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"botgrid/internal/spatial"
)

// Manager owns the set of loaded maps. All methods are safe for concurrent
// use; the worlds themselves keep their single-writer rule.
type Manager struct {
	mu     sync.RWMutex
	worlds map[uint32]*World
	logger *slog.Logger
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		worlds: make(map[uint32]*World),
		logger: logger,
	}
}

// Load creates, populates and starts a world for cfg.MapID.
func (m *Manager) Load(cfg Config, pop Population) (*World, error) {
	if cfg.Logger == nil {
		cfg.Logger = m.logger
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.worlds[cfg.MapID]; ok {
		return nil, fmt.Errorf("%w: %d", ErrMapLoaded, cfg.MapID)
	}
	w, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := w.Populate(pop); err != nil {
		w.Close()
		return nil, err
	}
	w.Start()
	m.worlds[cfg.MapID] = w

	m.logger.Info("🗺️ Map loaded", slog.Uint64("map", uint64(cfg.MapID)), slog.String("name", cfg.Name))
	return w, nil
}

// Unload stops the world, publishes an empty buffer and releases its cache.
// Readers still holding the cache see empty results from then on.
func (m *Manager) Unload(mapID uint32) error {
	m.mu.Lock()
	w, ok := m.worlds[mapID]
	delete(m.worlds, mapID)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrMapNotLoaded, mapID)
	}
	w.Close()
	m.logger.Info("🗺️ Map unloaded", slog.Uint64("map", uint64(mapID)))
	return nil
}

// Get returns the world for mapID.
func (m *Manager) Get(mapID uint32) (*World, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.worlds[mapID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrMapNotLoaded, mapID)
	}
	return w, nil
}

// Maps returns the loaded worlds ordered by map ID.
func (m *Manager) Maps() []*World {
	m.mu.RLock()
	out := make([]*World, 0, len(m.worlds))
	for _, w := range m.worlds {
		out = append(out, w)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Submit queues cmd on the world for mapID.
func (m *Manager) Submit(mapID uint32, cmd Command) error {
	w, err := m.Get(mapID)
	if err != nil {
		return err
	}
	return w.Submit(cmd)
}

// Spawn queues a new entity on mapID and returns its GUID.
func (m *Manager) Spawn(mapID uint32, req SpawnRequest) (spatial.GUID, error) {
	w, err := m.Get(mapID)
	if err != nil {
		return spatial.EmptyGUID, err
	}
	return w.Spawn(req)
}

// Stats returns the counters of every loaded world, ordered by map ID.
func (m *Manager) Stats() []Stats {
	maps := m.Maps()
	out := make([]Stats, 0, len(maps))
	for _, w := range maps {
		out = append(out, w.Stats())
	}
	return out
}

// Cache returns the snapshot cache of mapID.
func (m *Manager) Cache(mapID uint32) (*spatial.Cache, error) {
	w, err := m.Get(mapID)
	if err != nil {
		return nil, err
	}
	return w.Cache(), nil
}

// Close unloads every map.
func (m *Manager) Close() {
	for _, w := range m.Maps() {
		_ = m.Unload(w.ID())
	}
}
