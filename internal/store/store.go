// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package store keeps the last snapshot of each device in a bbolt file so
// the web and display views have something to show after a restart.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/relabs-tech/nrf_orientation/internal/orientation"
)

var snapshotBucket = []byte("snapshots")

// ErrNotFound is returned by Get for a device with no stored snapshot.
var ErrNotFound = errors.New("store: no snapshot for device")

// Store is safe for concurrent use; bbolt serialises writers.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the store at path. Opening a file another process
// holds blocks until timeout.
func Open(path string, timeout time.Duration) (*Store, error) {
	// Opening a writable DB takes a file lock; a second writer blocks.
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put replaces the stored snapshot for snap.Device.
func (s *Store) Put(snap orientation.Snapshot) error {
	if snap.Device == "" {
		return fmt.Errorf("store: snapshot has no device")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("store: encode snapshot: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(snapshotBucket).Put([]byte(snap.Device), data)
	})
}

// Get returns the last snapshot stored for device.
func (s *Store) Get(device string) (orientation.Snapshot, error) {
	var snap orientation.Snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		// The value returned by Get is only valid inside the transaction.
		got := tx.Bucket(snapshotBucket).Get([]byte(device))
		if got == nil {
			return ErrNotFound
		}
		return json.Unmarshal(got, &snap)
	})
	return snap, err
}

// All returns every stored snapshot keyed by device.
func (s *Store) All() (map[string]orientation.Snapshot, error) {
	out := make(map[string]orientation.Snapshot)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(snapshotBucket).ForEach(func(k, v []byte) error {
			var snap orientation.Snapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return fmt.Errorf("store: decode %s: %w", k, err)
			}
			out[string(k)] = snap
			return nil
		})
	})
	return out, err
}

// Latest returns the most recent snapshot across all devices.
func (s *Store) Latest() (orientation.Snapshot, error) {
	all, err := s.All()
	if err != nil {
		return orientation.Snapshot{}, err
	}
	var (
		latest orientation.Snapshot
		found  bool
	)
	for _, snap := range all {
		if !found || snap.Time.After(latest.Time) {
			latest = snap
			found = true
		}
	}
	if !found {
		return latest, ErrNotFound
	}
	return latest, nil
}
