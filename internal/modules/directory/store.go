// README: Directory snapshots kept in Redis with a sliding TTL.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tripmate/internal/modules/matching"
	"tripmate/internal/modules/trips"
	"tripmate/internal/upstream"
)

// Snapshot is the serialisable state of a Directory. Trips are stored raw
// and normalized again after restore.
type Snapshot struct {
	UID          string                 `json:"uid"`
	Session      trips.SessionUser      `json:"session"`
	MyTrips      []trips.RawTrip        `json:"my_trips"`
	Feed         []trips.RawTrip        `json:"feed"`
	FeedQuery    upstream.FeedQuery     `json:"feed_query"`
	Search       []trips.RawTrip        `json:"search"`
	SearchQuery  upstream.SearchQuery   `json:"search_query"`
	SearchActive bool                   `json:"search_active"`
	Matches      []matching.MatchRecord `json:"matches"`
	Loaded       bool                   `json:"loaded"`
	SavedAt      time.Time              `json:"saved_at"`
}

// SnapshotStore persists snapshots by uid. Load returns (nil, nil) when no
// snapshot exists.
type SnapshotStore interface {
	Load(ctx context.Context, uid string) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot, ttl time.Duration) error
	Delete(ctx context.Context, uid string) error
}

type RedisStore struct {
	redis *redis.Client
}

func NewRedisStore(redis *redis.Client) *RedisStore {
	return &RedisStore{redis: redis}
}

func snapshotKey(uid string) string {
	return fmt.Sprintf("tripmate:session:%s:directory", uid)
}

func (s *RedisStore) Load(ctx context.Context, uid string) (*Snapshot, error) {
	b, err := s.redis.Get(ctx, snapshotKey(uid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func (s *RedisStore) Save(ctx context.Context, snap *Snapshot, ttl time.Duration) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.redis.Set(ctx, snapshotKey(snap.UID), b, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, uid string) error {
	return s.redis.Del(ctx, snapshotKey(uid)).Err()
}

// Snapshot captures the directory state.
func (d *Directory) Snapshot() *Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	matches := make([]matching.MatchRecord, len(d.matches))
	copy(matches, d.matches)
	return &Snapshot{
		UID:          d.uid,
		Session:      d.session,
		MyTrips:      append([]trips.RawTrip(nil), d.myTrips...),
		Feed:         append([]trips.RawTrip(nil), d.feed...),
		FeedQuery:    d.feedQuery,
		Search:       append([]trips.RawTrip(nil), d.search...),
		SearchQuery:  d.searchQuery,
		SearchActive: d.searchActive,
		Matches:      matches,
		Loaded:       d.loaded,
	}
}

// Restore replaces the directory state with snap. In-flight fetches that
// started before the restore are dropped when they return.
func (d *Directory) Restore(snap *Snapshot) {
	if snap == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for k := range d.gen {
		d.gen[k]++
	}
	d.session = snap.Session
	if d.session.UID == "" {
		d.session.UID = d.uid
	}
	d.myTrips = snap.MyTrips
	d.feed = snap.Feed
	d.feedQuery = snap.FeedQuery
	d.search = snap.Search
	d.searchQuery = snap.SearchQuery
	d.searchActive = snap.SearchActive
	d.matches = snap.Matches
	d.loaded = snap.Loaded
}
