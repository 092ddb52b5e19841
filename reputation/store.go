package reputation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrNoSnapshot = errors.New("reputation store has no snapshot")

// Store holds the current Snapshot behind an atomic pointer. Readers grab a
// snapshot once per request; reloads build a complete new snapshot before
// swapping it in.
type Store struct {
	source  Source
	logger  logrus.FieldLogger
	current atomic.Pointer[Snapshot]
	reloads atomic.Int64
	failed  atomic.Int64
}

// Load builds a Store from source. Callers treat an error here as fatal.
func Load(ctx context.Context, source Source, logger logrus.FieldLogger) (*Store, error) {
	s := &Store{
		source: source,
		logger: logger.WithField("component", "reputation"),
	}

	snap, err := s.build(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reputation data: %w", err)
	}
	s.current.Store(snap)

	s.logger.WithFields(logrus.Fields{
		"domains": len(snap.domains),
		"brands":  len(snap.brands),
	}).Info("reputation data loaded")
	return s, nil
}

// NewStore wraps an already built snapshot, with no source to reload from.
func NewStore(snap *Snapshot, logger logrus.FieldLogger) *Store {
	s := &Store{logger: logger.WithField("component", "reputation")}
	s.current.Store(snap)
	return s
}

func (s *Store) build(ctx context.Context) (*Snapshot, error) {
	ds, err := s.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(ds)
}

// Snapshot returns the current snapshot. It is never nil for a Store
// returned by Load.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Reload rebuilds the snapshot from the source. On failure the previous
// snapshot keeps serving and the error is returned.
func (s *Store) Reload(ctx context.Context) error {
	if s.source == nil {
		return errors.New("reputation store has no source")
	}

	snap, err := s.build(ctx)
	if err != nil {
		s.failed.Add(1)
		s.logger.WithError(err).Warn("reputation reload failed, keeping previous data")
		return err
	}

	s.current.Store(snap)
	s.reloads.Add(1)
	s.logger.WithFields(logrus.Fields{
		"domains": len(snap.domains),
		"brands":  len(snap.brands),
	}).Info("reputation data reloaded")
	return nil
}

// Run reloads on every tick until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Reload(ctx)
		}
	}
}

// StoreStats adds reload counters to the snapshot stats.
type StoreStats struct {
	Stats
	Reloads       int64 `json:"reloads"`
	FailedReloads int64 `json:"failed_reloads"`
}

func (s *Store) Stats() StoreStats {
	out := StoreStats{
		Reloads:       s.reloads.Load(),
		FailedReloads: s.failed.Load(),
	}
	if snap := s.Snapshot(); snap != nil {
		out.Stats = snap.Stats()
	}
	return out
}
