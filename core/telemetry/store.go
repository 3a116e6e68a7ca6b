package telemetry

import (
	"sort"
	"sync"

	"github.com/battswap/boothd/core/model"
)

// Store holds the latest hardware-reported snapshot per slot.
type Store interface {
	Set(model.TelemetrySnapshot)
	Get(model.SlotRef) (model.TelemetrySnapshot, bool)
	List(boothID string) []model.TelemetrySnapshot
}

// MemoryStore is the default in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[model.SlotRef]model.TelemetrySnapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[model.SlotRef]model.TelemetrySnapshot{}}
}

func (s *MemoryStore) Set(snap model.TelemetrySnapshot) {
	s.mu.Lock()
	s.data[snap.Slot] = snap
	s.mu.Unlock()
}

func (s *MemoryStore) Get(ref model.SlotRef) (model.TelemetrySnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.data[ref]
	return snap, ok
}

func (s *MemoryStore) List(boothID string) []model.TelemetrySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.TelemetrySnapshot, 0, len(s.data))
	for ref, snap := range s.data {
		if boothID != "" && ref.BoothID != boothID {
			continue
		}
		res = append(res, snap)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Slot.String() < res[j].Slot.String() })
	return res
}
