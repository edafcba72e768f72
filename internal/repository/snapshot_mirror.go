package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"NKDash/internal/domain/models"
	drepo "NKDash/internal/domain/repository"
	"NKDash/pkg/cache"
)

const latestSnapshotKey = "snapshot:latest"

type mirrorRecord struct {
	ReceivedAt time.Time       `json:"received_at"`
	Payload    json.RawMessage `json:"payload"`
}

// CacheSnapshotMirror keeps the latest snapshot in a cache with a TTL so other
// processes can read the live value. Only one key is ever written.
type CacheSnapshotMirror struct {
	cache cache.Service
	ttl   time.Duration
}

// NewCacheSnapshotMirror creates the mirror.
func NewCacheSnapshotMirror(c cache.Service, ttl time.Duration) drepo.SnapshotMirror {
	return &CacheSnapshotMirror{cache: c, ttl: ttl}
}

func (m *CacheSnapshotMirror) Mirror(ctx context.Context, s *models.Snapshot) error {
	if s == nil {
		return nil
	}
	rec := mirrorRecord{ReceivedAt: s.ReceivedAt, Payload: s.Raw}
	if err := m.cache.Set(ctx, latestSnapshotKey, rec, m.ttl); err != nil {
		return fmt.Errorf("mirror snapshot: %w", err)
	}
	return nil
}

func (m *CacheSnapshotMirror) Latest(ctx context.Context) (*models.Snapshot, error) {
	var rec mirrorRecord
	if err := m.cache.Get(ctx, latestSnapshotKey, &rec); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, drepo.ErrNoSnapshot
		}
		return nil, fmt.Errorf("read mirrored snapshot: %w", err)
	}
	return models.DecodeSnapshot(rec.Payload, rec.ReceivedAt)
}

func (m *CacheSnapshotMirror) Close() error { return m.cache.Close() }
