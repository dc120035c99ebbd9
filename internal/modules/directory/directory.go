// README: Trip directory: one caller's trips, candidate feed and match records for a session.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tripmate/internal/modules/discovery"
	"tripmate/internal/modules/matching"
	"tripmate/internal/modules/trips"
	"tripmate/internal/types"
	"tripmate/internal/upstream"
)

// Source is the travel backend as seen by one caller.
type Source interface {
	HostProfile(ctx context.Context) (types.Raw, error)
	MyTrips(ctx context.Context) ([]trips.RawTrip, error)
	ReceivedMatches(ctx context.Context) ([]matching.MatchRecord, error)
	PublicTrips(ctx context.Context, q upstream.FeedQuery) ([]trips.RawTrip, error)
	SearchTrips(ctx context.Context, q upstream.SearchQuery) ([]trips.RawTrip, error)
}

type fetchKind int

const (
	fetchSession fetchKind = iota
	fetchMyTrips
	fetchMatches
	fetchFeed
	fetchSearch
	numFetchKinds
)

var fetchNames = [numFetchKinds]string{"session", "my_trips", "matches", "feed", "search"}

// Directory holds raw backend records and normalizes them on read, so a
// late-arriving host profile is reflected in every plan.
//
// Each fetch kind carries a generation counter: a response is applied only
// if no newer request of the same kind was issued after it.
type Directory struct {
	uid string
	log *zap.Logger

	mu           sync.RWMutex
	src          Source
	session      trips.SessionUser
	myTrips      []trips.RawTrip
	feed         []trips.RawTrip
	feedQuery    upstream.FeedQuery
	search       []trips.RawTrip
	searchQuery  upstream.SearchQuery
	searchActive bool
	matches      []matching.MatchRecord
	loaded       bool
	gen          [numFetchKinds]uint64
}

func New(uid string, src Source, log *zap.Logger) *Directory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Directory{
		uid:     uid,
		src:     src,
		log:     log.With(zap.String("uid", uid)),
		session: trips.SessionUser{UID: uid},
	}
}

// Bind swaps the backend source, e.g. when the caller's token was refreshed.
func (d *Directory) Bind(src Source) {
	d.mu.Lock()
	d.src = src
	d.mu.Unlock()
}

func (d *Directory) UID() string { return d.uid }

// Loaded reports whether a full Refresh has completed at least once.
func (d *Directory) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

// Refresh fetches the host profile, my trips, matches, the feed and (when a
// search is active) the search results concurrently. Each fetch lands on its
// own; the returned error joins every failure.
func (d *Directory) Refresh(ctx context.Context) error {
	d.mu.RLock()
	feedQuery, searchQuery, searching := d.feedQuery, d.searchQuery, d.searchActive
	d.mu.RUnlock()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	run := func(f func(context.Context) error) {
		g.Go(func() error {
			if err := f(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	run(d.RefreshSession)
	run(d.RefreshMyTrips)
	run(d.RefreshMatches)
	run(func(ctx context.Context) error { return d.LoadFeed(ctx, feedQuery) })
	if searching {
		run(func(ctx context.Context) error { return d.Search(ctx, searchQuery) })
	}
	_ = g.Wait()

	d.mu.Lock()
	d.loaded = true
	d.mu.Unlock()

	if len(errs) > 0 {
		d.log.Warn("directory refresh incomplete", zap.Int("failed", len(errs)), zap.Error(errors.Join(errs...)))
	}
	return errors.Join(errs...)
}

func (d *Directory) RefreshSession(ctx context.Context) error {
	src, g := d.begin(fetchSession)
	raw, err := src.HostProfile(ctx)
	if err != nil {
		return fmt.Errorf("host profile: %w", err)
	}
	d.commit(fetchSession, g, func() {
		d.session = trips.SessionFromProfile(d.uid, raw)
	})
	return nil
}

func (d *Directory) RefreshMyTrips(ctx context.Context) error {
	src, g := d.begin(fetchMyTrips)
	raws, err := src.MyTrips(ctx)
	if err != nil {
		return fmt.Errorf("my trips: %w", err)
	}
	d.commit(fetchMyTrips, g, func() {
		d.myTrips = raws
		d.matches = d.withPendingLocalLocked(confirmedOnly(d.matches))
	})
	return nil
}

// RefreshMatches replaces the match list with the backend's. Optimistic
// records survive until the pair shows up in the backend's data, since the
// received list never carries the caller's outgoing requests.
func (d *Directory) RefreshMatches(ctx context.Context) error {
	src, g := d.begin(fetchMatches)
	recs, err := src.ReceivedMatches(ctx)
	if err != nil {
		return fmt.Errorf("received matches: %w", err)
	}
	d.commit(fetchMatches, g, func() {
		d.matches = d.withPendingLocalLocked(recs)
	})
	return nil
}

// LoadFeed fetches a page of the public feed filtered by origin country.
func (d *Directory) LoadFeed(ctx context.Context, q upstream.FeedQuery) error {
	src, g := d.begin(fetchFeed)
	raws, err := src.PublicTrips(ctx, q)
	if err != nil {
		return fmt.Errorf("public trips: %w", err)
	}
	d.commit(fetchFeed, g, func() {
		d.feed = raws
		d.feedQuery = q
	})
	return nil
}

// Search runs an explicit search. While active and non-empty, its results
// replace the feed as the candidate source.
func (d *Directory) Search(ctx context.Context, q upstream.SearchQuery) error {
	src, g := d.begin(fetchSearch)
	raws, err := src.SearchTrips(ctx, q)
	if err != nil {
		return fmt.Errorf("search trips: %w", err)
	}
	d.commit(fetchSearch, g, func() {
		d.search = raws
		d.searchQuery = q
		d.searchActive = true
	})
	return nil
}

// ClearSearch returns the candidate source to the feed. In-flight searches
// are invalidated.
func (d *Directory) ClearSearch() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen[fetchSearch]++
	d.search = nil
	d.searchQuery = upstream.SearchQuery{}
	d.searchActive = false
}

// AddMyTrip records a trip the caller just created, ahead of the next
// RefreshMyTrips.
func (d *Directory) AddMyTrip(raw trips.RawTrip) {
	if raw == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := raw.ID("id", "trip_id")
	for i, t := range d.myTrips {
		if id != "" && t.ID("id", "trip_id") == id {
			d.myTrips[i] = raw
			return
		}
	}
	d.myTrips = append(d.myTrips, raw)
}

func (d *Directory) Session() trips.SessionUser {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.session
}

func (d *Directory) MyTrips() []trips.Plan {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.myTripsLocked()
}

// Matches returns a copy of the session match list.
func (d *Directory) Matches() []matching.MatchRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]matching.MatchRecord, len(d.matches))
	copy(out, d.matches)
	return out
}

// SearchActive reports whether search results are the candidate source.
func (d *Directory) SearchActive() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.searchActive && len(d.search) > 0
}

// Candidates returns the plans the caller may match with: search results
// when a search is active and returned something, the feed otherwise;
// deduplicated by id and without the caller's own trips.
func (d *Directory) Candidates() []trips.Plan {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.candidatesLocked(d.myTripsLocked())
}

// View runs the read pipeline: candidates, match status, filter.
func (d *Directory) View(f discovery.FilterState) []discovery.AnnotatedPlan {
	d.mu.RLock()
	defer d.mu.RUnlock()
	mine := d.myTripsLocked()
	annotated := discovery.Annotate(d.candidatesLocked(mine), mine, d.matches)
	return discovery.Filter(annotated, f)
}

// OwnedTripIDs lists the ids of the caller's trips in backend order.
func (d *Directory) OwnedTripIDs() []types.ID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]types.ID, 0, len(d.myTrips))
	for _, raw := range d.myTrips {
		if id := raw.ID("id", "trip_id"); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// FindMatch looks a record up by id in the session list, then in the match
// lists carried by the caller's trips.
func (d *Directory) FindMatch(id types.ID) (matching.MatchRecord, bool) {
	if id == "" {
		return matching.MatchRecord{}, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, m := range d.matches {
		if m.ID == id {
			return m, true
		}
	}
	for _, p := range d.myTripsLocked() {
		for _, m := range p.Matches {
			if m.ID == id {
				return m, true
			}
		}
	}
	return matching.MatchRecord{}, false
}

// FindOutgoing returns the record from requester to target. When several
// exist, a pending or accepted one wins over a rejected one.
func (d *Directory) FindOutgoing(requester, target types.ID) (matching.MatchRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var (
		found matching.MatchRecord
		ok    bool
	)
	consider := func(m matching.MatchRecord) {
		if m.RequesterTripID != requester || m.TargetTripID != target {
			return
		}
		if !ok || found.Status == matching.StatusRejected {
			found, ok = m, true
		}
	}
	for _, m := range d.matches {
		consider(m)
	}
	for _, p := range d.myTripsLocked() {
		for _, m := range p.Matches {
			if m.RequesterTripID == "" {
				m.RequesterTripID = p.ID
			}
			consider(m)
		}
	}
	return found, ok
}

func (d *Directory) AppendPending(rec matching.MatchRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.matches = append(d.matches, rec)
}

func (d *Directory) RemoveMatch(id types.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.matches[:0:0]
	for _, m := range d.matches {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	d.matches = kept
}

// Sender returns the current backend source when it can also deliver match
// actions.
func (d *Directory) Sender() (matching.ActionSender, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.src.(matching.ActionSender)
	return s, ok
}

// withPendingLocalLocked appends to recs the optimistic records whose pair is
// neither in recs nor in the match lists of the caller's trips.
func (d *Directory) withPendingLocalLocked(recs []matching.MatchRecord) []matching.MatchRecord {
	known := make(map[[2]types.ID]bool)
	for _, m := range recs {
		known[[2]types.ID{m.RequesterTripID, m.TargetTripID}] = true
	}
	for _, p := range d.myTripsLocked() {
		for _, m := range p.Matches {
			requester := m.RequesterTripID
			if requester == "" {
				requester = p.ID
			}
			known[[2]types.ID{requester, m.TargetTripID}] = true
		}
	}
	out := make([]matching.MatchRecord, 0, len(recs))
	out = append(out, recs...)
	for _, m := range d.matches {
		if m.Local && !known[[2]types.ID{m.RequesterTripID, m.TargetTripID}] {
			out = append(out, m)
		}
	}
	return out
}

func confirmedOnly(recs []matching.MatchRecord) []matching.MatchRecord {
	out := make([]matching.MatchRecord, 0, len(recs))
	for _, m := range recs {
		if !m.Local {
			out = append(out, m)
		}
	}
	return out
}

func (d *Directory) myTripsLocked() []trips.Plan {
	return trips.NormalizeAll(d.myTrips, d.session)
}

func (d *Directory) candidatesLocked(mine []trips.Plan) []trips.Plan {
	source := d.feed
	if d.searchActive && len(d.search) > 0 {
		source = d.search
	}
	owned := make(map[types.ID]bool, len(mine))
	for _, p := range mine {
		owned[p.ID] = true
	}
	merged := MergeCandidates(trips.NormalizeAll(source, d.session))
	return ExcludeOwn(merged, d.session.HostID, owned)
}

func (d *Directory) begin(k fetchKind) (Source, uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen[k]++
	return d.src, d.gen[k]
}

func (d *Directory) commit(k fetchKind, g uint64, apply func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen[k] != g {
		d.log.Debug("dropping stale response",
			zap.String("fetch", fetchNames[k]),
			zap.Uint64("generation", g),
			zap.Uint64("latest", d.gen[k]))
		return false
	}
	apply()
	return true
}

// MergeCandidates concatenates plan lists and removes duplicate ids. The
// last occurrence of an id wins, kept at the position of the first one.
// Plans without an id cannot be matched with and are dropped.
func MergeCandidates(lists ...[]trips.Plan) []trips.Plan {
	index := make(map[types.ID]int)
	var out []trips.Plan
	for _, list := range lists {
		for _, p := range list {
			if p.ID == "" {
				continue
			}
			if i, ok := index[p.ID]; ok {
				out[i] = p
				continue
			}
			index[p.ID] = len(out)
			out = append(out, p)
		}
	}
	if out == nil {
		out = []trips.Plan{}
	}
	return out
}

// ExcludeOwn drops plans hosted by hostID or listed in owned.
func ExcludeOwn(plans []trips.Plan, hostID types.ID, owned map[types.ID]bool) []trips.Plan {
	out := make([]trips.Plan, 0, len(plans))
	for _, p := range plans {
		if hostID != "" && p.HostID == hostID {
			continue
		}
		if owned[p.ID] {
			continue
		}
		out = append(out, p)
	}
	return out
}
