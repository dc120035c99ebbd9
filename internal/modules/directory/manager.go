// README: Per-user directory lifecycle: live instances in memory, snapshots in Redis.
package directory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultSessionTTL = 30 * time.Minute

type entry struct {
	dir  *Directory
	seen time.Time
	// synced is the SavedAt of the snapshot the live directory last wrote or
	// restored.
	synced time.Time
}

// Manager hands out one live Directory per uid, so concurrent requests of a
// user share sequencing state. Idle directories are evicted after ttl and
// rebuilt from the snapshot store on next use. A live directory is replaced
// by a newer snapshot saved by another instance.
type Manager struct {
	store SnapshotStore
	log   *zap.Logger
	ttl   time.Duration
	now   func() time.Time

	mu   sync.Mutex
	live map[string]*entry
}

func NewManager(store SnapshotStore, ttl time.Duration, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Manager{
		store: store,
		log:   log,
		ttl:   ttl,
		now:   time.Now,
		live:  make(map[string]*entry),
	}
}

// Open returns the uid's directory bound to src. A snapshot that cannot be
// read is logged and the directory is served as it is.
func (m *Manager) Open(ctx context.Context, uid string, src Source) *Directory {
	now := m.now()

	m.mu.Lock()
	m.evictLocked(now)
	e, ok := m.live[uid]
	if ok {
		e.seen = now
	}
	m.mu.Unlock()

	snap := m.load(ctx, uid)

	if ok {
		m.mu.Lock()
		if snap != nil && snap.SavedAt.After(e.synced) {
			e.dir.Restore(snap)
			e.synced = snap.SavedAt
			m.log.Debug("live directory replaced by newer snapshot",
				zap.String("uid", uid), zap.Time("saved_at", snap.SavedAt))
		}
		m.mu.Unlock()
		e.dir.Bind(src)
		return e.dir
	}

	d := New(uid, src, m.log)
	var synced time.Time
	if snap != nil {
		d.Restore(snap)
		synced = snap.SavedAt
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another request may have opened the same uid meanwhile.
	if e, ok := m.live[uid]; ok {
		e.seen = now
		e.dir.Bind(src)
		return e.dir
	}
	m.live[uid] = &entry{dir: d, seen: now, synced: synced}
	return d
}

func (m *Manager) load(ctx context.Context, uid string) *Snapshot {
	if m.store == nil {
		return nil
	}
	snap, err := m.store.Load(ctx, uid)
	if err != nil {
		m.log.Warn("load directory snapshot", zap.String("uid", uid), zap.Error(err))
		return nil
	}
	return snap
}

// Save writes the directory snapshot and extends its TTL.
func (m *Manager) Save(ctx context.Context, d *Directory) {
	if m.store == nil {
		return
	}
	snap := d.Snapshot()
	snap.SavedAt = m.now()
	if err := m.store.Save(ctx, snap, m.ttl); err != nil {
		m.log.Warn("save directory snapshot", zap.String("uid", d.UID()), zap.Error(err))
		return
	}
	m.mu.Lock()
	if e, ok := m.live[d.UID()]; ok && e.dir == d && snap.SavedAt.After(e.synced) {
		e.synced = snap.SavedAt
	}
	m.mu.Unlock()
}

// Forget drops the uid's live directory and snapshot.
func (m *Manager) Forget(ctx context.Context, uid string) error {
	m.mu.Lock()
	delete(m.live, uid)
	m.mu.Unlock()
	if m.store == nil {
		return nil
	}
	return m.store.Delete(ctx, uid)
}

// Live reports how many directories are held in memory.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

func (m *Manager) evictLocked(now time.Time) {
	for uid, e := range m.live {
		if now.Sub(e.seen) > m.ttl {
			delete(m.live, uid)
		}
	}
}
