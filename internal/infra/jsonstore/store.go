// Package jsonstore keeps subscriptions and scheduled items in memory and,
// when opened on a directory, mirrors every mutation to JSON files:
//
//   - <dir>/subscriptions.json
//   - <dir>/scheduled-followups.json
//   - <dir>/scheduled-active-checkins.json
//
// The files use the record layout of earlier server versions, so existing
// data directories load unchanged. Each collection has its own mutex and
// every mutation rewrites that collection's file before the lock is
// released; a failed write leaves the in-memory state untouched.
package jsonstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"push_notification_server/internal/domain/notification"
	"push_notification_server/internal/domain/subscription"

	"github.com/sirupsen/logrus"
)

const (
	subscriptionsFile  = "subscriptions.json"
	followUpsFile      = "scheduled-followups.json"
	activeCheckInsFile = "scheduled-active-checkins.json"
)

// Store implements subscription.Repository and notification.Store.
type Store struct {
	logger logrus.FieldLogger

	subsMu   sync.Mutex
	subsPath string
	subs     []*subscription.Subscription

	followUps      *queueRepo
	activeCheckIns *queueRepo
}

// Open loads (or creates) the data files in dir.
func Open(dir string, logger logrus.FieldLogger) (*Store, error) {
	if dir == "" {
		return nil, errors.New("jsonstore: data directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := newStore(logger)
	s.subsPath = filepath.Join(dir, subscriptionsFile)
	s.followUps.path = filepath.Join(dir, followUpsFile)
	s.activeCheckIns.path = filepath.Join(dir, activeCheckInsFile)

	if err := loadOrCreate(s.subsPath, &s.subs); err != nil {
		return nil, err
	}
	if err := loadOrCreate(s.followUps.path, &s.followUps.items); err != nil {
		return nil, err
	}
	if err := loadOrCreate(s.activeCheckIns.path, &s.activeCheckIns.items); err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"subscriptions":   len(s.subs),
		"followups":       len(s.followUps.items),
		"active_checkins": len(s.activeCheckIns.items),
		"data_directory":  dir,
	}).Info("JSON store loaded")
	return s, nil
}

// NewInMemory returns a store that never touches the filesystem.
func NewInMemory(logger logrus.FieldLogger) *Store {
	return newStore(logger)
}

func newStore(logger logrus.FieldLogger) *Store {
	return &Store{
		logger:         logger,
		followUps:      &queueRepo{queue: notification.QueueFollowUps},
		activeCheckIns: &queueRepo{queue: notification.QueueActiveCheckIns, onePerEvent: true},
	}
}

// Queue returns the repository of q.
func (s *Store) Queue(q notification.Queue) notification.Repository {
	if q == notification.QueueActiveCheckIns {
		return s.activeCheckIns
	}
	return s.followUps
}

// Close is a no-op; every mutation is already on disk.
func (s *Store) Close() error { return nil }

func loadOrCreate[T any](path string, into *[]T) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		*into = []T{}
		return writeJSON(path, *into)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	if *into == nil {
		*into = []T{}
	}
	return nil
}

// writeJSON replaces path atomically. An empty path means memory only.
func writeJSON(path string, v any) error {
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
