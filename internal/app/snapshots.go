// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"sort"
	"sync"

	"github.com/relabs-tech/nrf_orientation/internal/orientation"
)

// Snapshots holds the latest snapshot per device for the web and display
// views. Safe for concurrent use.
type Snapshots struct {
	mu       sync.RWMutex
	byDevice map[string]orientation.Snapshot
	latest   string
}

func NewSnapshots() *Snapshots {
	return &Snapshots{byDevice: make(map[string]orientation.Snapshot)}
}

// Put records snap for its device. The overall latest is the snapshot
// with the newest Time.
func (s *Snapshots) Put(snap orientation.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byDevice[snap.Device] = snap
	if cur, ok := s.byDevice[s.latest]; !ok || s.latest == snap.Device || !snap.Time.Before(cur.Time) {
		s.latest = snap.Device
	}
}

// Latest returns the newest snapshot of any device.
func (s *Snapshots) Latest() (orientation.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.byDevice[s.latest]
	return snap, ok
}

// Get returns the snapshot of device.
func (s *Snapshots) Get(device string) (orientation.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.byDevice[device]
	return snap, ok
}

// Pick returns device's snapshot, or the overall latest when device is "".
func (s *Snapshots) Pick(device string) (orientation.Snapshot, bool) {
	if device == "" {
		return s.Latest()
	}
	return s.Get(device)
}

// All returns every device's snapshot ordered by device name.
func (s *Snapshots) All() []orientation.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]orientation.Snapshot, 0, len(s.byDevice))
	for _, snap := range s.byDevice {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Device < out[j].Device })
	return out
}
