// README: Directory tests: candidate selection, sequencing, partial refresh, match flow.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"tripmate/internal/modules/discovery"
	"tripmate/internal/modules/matching"
	"tripmate/internal/modules/trips"
	"tripmate/internal/types"
	"tripmate/internal/upstream"
)

// ---------------------------------------------------------------------------
// fake backend
// ---------------------------------------------------------------------------

type fakeSource struct {
	mu sync.Mutex

	profile    types.Raw
	profileErr error
	myTrips    []trips.RawTrip
	myTripsErr error
	matches    []matching.MatchRecord
	matchesErr error
	feed       []trips.RawTrip
	feedErr    error
	search     func(q upstream.SearchQuery) ([]trips.RawTrip, error)

	actions   []matching.ActionCommand
	actionRes matching.ActionResult
}

func (f *fakeSource) HostProfile(context.Context) (types.Raw, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profile, f.profileErr
}

func (f *fakeSource) MyTrips(context.Context) ([]trips.RawTrip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.myTrips, f.myTripsErr
}

func (f *fakeSource) ReceivedMatches(context.Context) ([]matching.MatchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.matches, f.matchesErr
}

func (f *fakeSource) PublicTrips(context.Context, upstream.FeedQuery) ([]trips.RawTrip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.feed, f.feedErr
}

func (f *fakeSource) SearchTrips(_ context.Context, q upstream.SearchQuery) ([]trips.RawTrip, error) {
	f.mu.Lock()
	search := f.search
	f.mu.Unlock()
	if search == nil {
		return nil, nil
	}
	return search(q)
}

func (f *fakeSource) MatchAction(_ context.Context, cmd matching.ActionCommand) (matching.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, cmd)
	return f.actionRes, nil
}

func feedTrip(id, hostID, name string) trips.RawTrip {
	return trips.RawTrip{"id": id, "host_id": hostID, "host": map[string]any{"full_name": name}, "to_city": "Goa"}
}

func ownTrip(id string) trips.RawTrip {
	return trips.RawTrip{"id": id, "from_city": "Pune", "to_city": "Goa", "sent_matches": []any{}}
}

func planIDs(plans []trips.Plan) []types.ID {
	out := make([]types.ID, 0, len(plans))
	for _, p := range plans {
		out = append(out, p.ID)
	}
	return out
}

func equalIDs(a, b []types.ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func newTestDirectory(src Source) *Directory {
	return New("u1", src, zap.NewNop())
}

// ---------------------------------------------------------------------------
// candidates
// ---------------------------------------------------------------------------

func TestMergeCandidates_LastWriteWinsAtFirstPosition(t *testing.T) {
	a1 := trips.Plan{ID: "a", Traveler: trips.Traveler{FullName: "first"}}
	b := trips.Plan{ID: "b"}
	a2 := trips.Plan{ID: "a", Traveler: trips.Traveler{FullName: "second"}}
	noID := trips.Plan{}

	got := MergeCandidates([]trips.Plan{a1, b, noID}, []trips.Plan{a2})
	if !equalIDs(planIDs(got), []types.ID{"a", "b"}) {
		t.Fatalf("ids = %v", planIDs(got))
	}
	if got[0].Traveler.FullName != "second" {
		t.Errorf("duplicate should take the last value, got %q", got[0].Traveler.FullName)
	}
}

func TestCandidates_ExcludeOwnTrips(t *testing.T) {
	src := &fakeSource{
		profile: types.Raw{"id": "h1", "full_name": "Asha"},
		myTrips: []trips.RawTrip{ownTrip("t1")},
		feed: []trips.RawTrip{
			feedTrip("p1", "h2", "Ravi"),
			feedTrip("p2", "h1", "Asha"), // hosted by the caller
			feedTrip("t1", "", ""),       // one of the caller's trips
			feedTrip("p1", "h2", "Ravi K"),
		},
	}
	d := newTestDirectory(src)
	if err := d.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	got := d.Candidates()
	if !equalIDs(planIDs(got), []types.ID{"p1"}) {
		t.Fatalf("candidates = %v", planIDs(got))
	}
	if got[0].Traveler.FullName != "Ravi K" {
		t.Errorf("name = %q", got[0].Traveler.FullName)
	}
}

func TestCandidates_SearchTakesPriority(t *testing.T) {
	src := &fakeSource{feed: []trips.RawTrip{feedTrip("f1", "h2", "")}}
	src.search = func(q upstream.SearchQuery) ([]trips.RawTrip, error) {
		if q.FromCountry == "nowhere" {
			return []trips.RawTrip{}, nil
		}
		return []trips.RawTrip{feedTrip("s1", "h3", ""), feedTrip("s2", "h4", "")}, nil
	}
	d := newTestDirectory(src)
	ctx := context.Background()
	if err := d.LoadFeed(ctx, upstream.FeedQuery{}); err != nil {
		t.Fatal(err)
	}
	if !equalIDs(planIDs(d.Candidates()), []types.ID{"f1"}) {
		t.Fatalf("feed candidates = %v", planIDs(d.Candidates()))
	}

	if err := d.Search(ctx, upstream.SearchQuery{FromCountry: "India"}); err != nil {
		t.Fatal(err)
	}
	if !equalIDs(planIDs(d.Candidates()), []types.ID{"s1", "s2"}) {
		t.Fatalf("search candidates = %v", planIDs(d.Candidates()))
	}

	if err := d.Search(ctx, upstream.SearchQuery{FromCountry: "nowhere"}); err != nil {
		t.Fatal(err)
	}
	if !equalIDs(planIDs(d.Candidates()), []types.ID{"f1"}) {
		t.Fatalf("empty search should fall back to feed, got %v", planIDs(d.Candidates()))
	}

	if err := d.Search(ctx, upstream.SearchQuery{FromCountry: "India"}); err != nil {
		t.Fatal(err)
	}
	d.ClearSearch()
	if d.SearchActive() || !equalIDs(planIDs(d.Candidates()), []types.ID{"f1"}) {
		t.Fatalf("cleared search should show feed, got %v", planIDs(d.Candidates()))
	}
}

func TestDirectory_UnloadedReadsEmpty(t *testing.T) {
	d := newTestDirectory(&fakeSource{})
	if d.Loaded() {
		t.Fatal("new directory should not be loaded")
	}
	if len(d.Candidates()) != 0 || len(d.MyTrips()) != 0 || len(d.Matches()) != 0 || len(d.OwnedTripIDs()) != 0 {
		t.Fatal("unloaded collections should be empty")
	}
	if v := d.View(discovery.FilterState{}); v == nil || len(v) != 0 {
		t.Fatalf("view = %v", v)
	}
}

// ---------------------------------------------------------------------------
// sequencing and partial refresh
// ---------------------------------------------------------------------------

func TestSearch_StaleResponseDropped(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	src := &fakeSource{}
	src.search = func(q upstream.SearchQuery) ([]trips.RawTrip, error) {
		if q.FromCountry == "slow" {
			close(started)
			<-release
			return []trips.RawTrip{feedTrip("old", "h9", "")}, nil
		}
		return []trips.RawTrip{feedTrip("new", "h8", "")}, nil
	}
	d := newTestDirectory(src)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- d.Search(ctx, upstream.SearchQuery{FromCountry: "slow"}) }()
	<-started

	if err := d.Search(ctx, upstream.SearchQuery{FromCountry: "fast"}); err != nil {
		t.Fatal(err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	if got := planIDs(d.Candidates()); !equalIDs(got, []types.ID{"new"}) {
		t.Fatalf("stale search replaced newer results: %v", got)
	}
}

func TestClearSearch_InvalidatesInFlightSearch(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	src := &fakeSource{feed: []trips.RawTrip{feedTrip("f1", "h2", "")}}
	src.search = func(upstream.SearchQuery) ([]trips.RawTrip, error) {
		close(started)
		<-release
		return []trips.RawTrip{feedTrip("s1", "h3", "")}, nil
	}
	d := newTestDirectory(src)
	ctx := context.Background()
	if err := d.LoadFeed(ctx, upstream.FeedQuery{}); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- d.Search(ctx, upstream.SearchQuery{FromCountry: "India"}) }()
	<-started
	d.ClearSearch()
	close(release)
	<-done

	if d.SearchActive() {
		t.Fatal("search should stay cleared")
	}
}

func TestRefresh_PartialFailureKeepsLoadedCollections(t *testing.T) {
	src := &fakeSource{
		profileErr: errors.New("profile boom"),
		myTrips:    []trips.RawTrip{ownTrip("t1")},
		matchesErr: errors.New("matches boom"),
		feed:       []trips.RawTrip{feedTrip("p1", "h2", "")},
	}
	d := newTestDirectory(src)
	err := d.Refresh(context.Background())
	if err == nil {
		t.Fatal("expected joined error")
	}
	for _, want := range []string{"host profile", "profile boom", "received matches", "matches boom"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %q", err, want)
		}
	}
	if !d.Loaded() {
		t.Error("directory should be marked loaded")
	}
	if !equalIDs(d.OwnedTripIDs(), []types.ID{"t1"}) {
		t.Errorf("my trips = %v", d.OwnedTripIDs())
	}
	if !equalIDs(planIDs(d.Candidates()), []types.ID{"p1"}) {
		t.Errorf("feed = %v", planIDs(d.Candidates()))
	}
}

func TestRefreshMatches_FailureKeepsPrevious(t *testing.T) {
	src := &fakeSource{matches: []matching.MatchRecord{{ID: "m1", Status: matching.StatusPending}}}
	d := newTestDirectory(src)
	ctx := context.Background()
	if err := d.RefreshMatches(ctx); err != nil {
		t.Fatal(err)
	}
	src.mu.Lock()
	src.matchesErr = errors.New("down")
	src.mu.Unlock()
	if err := d.RefreshMatches(ctx); err == nil {
		t.Fatal("expected error")
	}
	if len(d.Matches()) != 1 {
		t.Errorf("matches = %v", d.Matches())
	}
}

// ---------------------------------------------------------------------------
// match flow
// ---------------------------------------------------------------------------

func TestMatchFlow_PostTripThenRequest(t *testing.T) {
	src := &fakeSource{
		profile:   types.Raw{"id": "h1", "full_name": "Asha"},
		feed:      []trips.RawTrip{feedTrip("p1", "h2", "Ravi")},
		actionRes: matching.ActionResult{Success: true},
	}
	d := newTestDirectory(src)
	ctx := context.Background()
	if err := d.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	svc := matching.NewService(nil, zap.NewNop())
	sender, ok := d.Sender()
	if !ok {
		t.Fatal("fake source should send actions")
	}

	if _, err := svc.Request(ctx, sender, d, matching.RequestCommand{TargetTripID: "p1"}); !errors.Is(err, matching.ErrNoOwnedTrip) {
		t.Fatalf("expected ErrNoOwnedTrip, got %v", err)
	}
	if len(src.actions) != 0 {
		t.Fatal("no backend call expected without an owned trip")
	}

	d.AddMyTrip(ownTrip("t1"))
	if _, err := svc.Request(ctx, sender, d, matching.RequestCommand{TargetTripID: "p1"}); err != nil {
		t.Fatalf("request: %v", err)
	}
	matches := d.Matches()
	if len(matches) != 1 || matches[0].RequesterTripID != "t1" || matches[0].Status != matching.StatusPending {
		t.Fatalf("matches = %+v", matches)
	}

	view := d.View(discovery.FilterState{})
	if len(view) != 1 || view[0].ID != "p1" || view[0].MatchStatus != matching.StatusPending {
		t.Fatalf("view = %+v", view)
	}
	pending := d.View(discovery.FilterState{Status: matching.StatusPending})
	if len(pending) != 1 {
		t.Fatalf("status filter = %+v", pending)
	}
}

func TestMatchFlow_AcceptReceivedRequest(t *testing.T) {
	src := &fakeSource{
		myTrips:   []trips.RawTrip{ownTrip("t1")},
		matches:   []matching.MatchRecord{{ID: "m1", RequesterTripID: "p1", TargetTripID: "t1", Status: matching.StatusPending}},
		feed:      []trips.RawTrip{feedTrip("p1", "h2", "Ravi")},
		actionRes: matching.ActionResult{Success: true},
	}
	d := newTestDirectory(src)
	ctx := context.Background()
	if err := d.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if v := d.View(discovery.FilterState{}); v[0].MatchStatus != matching.StatusPending {
		t.Fatalf("incoming status = %q", v[0].MatchStatus)
	}

	// The backend now reports the record accepted.
	src.mu.Lock()
	src.matches = []matching.MatchRecord{{ID: "m1", RequesterTripID: "p1", TargetTripID: "t1", Status: matching.StatusAccepted}}
	src.mu.Unlock()

	svc := matching.NewService(nil, zap.NewNop())
	if err := svc.Accept(ctx, src, d, matching.DecisionCommand{MatchID: "m1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got := src.actions[0]; got.TripID != "t1" || got.MatchedTripID != "p1" || got.Action != matching.ActionAccept {
		t.Errorf("sent %+v", got)
	}
	if v := d.View(discovery.FilterState{}); v[0].MatchStatus != matching.StatusAccepted {
		t.Errorf("status after accept = %q", v[0].MatchStatus)
	}
	if err := svc.Accept(ctx, src, d, matching.DecisionCommand{MatchID: "m1"}); !errors.Is(err, matching.ErrInvalidState) {
		t.Errorf("second accept: expected ErrInvalidState, got %v", err)
	}
	if len(src.actions) != 1 {
		t.Errorf("actions = %d, want 1", len(src.actions))
	}
}

func statusOf(t *testing.T, d *Directory, id types.ID) matching.Status {
	t.Helper()
	for _, p := range d.View(discovery.FilterState{}) {
		if p.ID == id {
			return p.MatchStatus
		}
	}
	t.Fatalf("plan %s not in view", id)
	return ""
}

func TestMatchFlow_OutgoingRequestSurvivesUnrelatedDecision(t *testing.T) {
	src := &fakeSource{
		profile:   types.Raw{"id": "h1", "full_name": "Asha"},
		myTrips:   []trips.RawTrip{ownTrip("t1")},
		matches:   []matching.MatchRecord{{ID: "m1", RequesterTripID: "p2", TargetTripID: "t1", Status: matching.StatusPending}},
		feed:      []trips.RawTrip{feedTrip("p1", "h2", "Ravi"), feedTrip("p2", "h3", "Meera")},
		actionRes: matching.ActionResult{Success: true},
	}
	d := newTestDirectory(src)
	ctx := context.Background()
	if err := d.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	svc := matching.NewService(nil, zap.NewNop())

	if _, err := svc.Request(ctx, src, d, matching.RequestCommand{TargetTripID: "p1"}); err != nil {
		t.Fatalf("request: %v", err)
	}
	if got := statusOf(t, d, "p1"); got != matching.StatusPending {
		t.Fatalf("p1 after request = %q", got)
	}

	src.mu.Lock()
	src.matches = []matching.MatchRecord{{ID: "m1", RequesterTripID: "p2", TargetTripID: "t1", Status: matching.StatusAccepted}}
	src.mu.Unlock()
	if err := svc.Accept(ctx, src, d, matching.DecisionCommand{MatchID: "m1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got := statusOf(t, d, "p1"); got != matching.StatusPending {
		t.Fatalf("p1 after accepting m1 = %q, want pending", got)
	}
	if _, err := svc.Request(ctx, src, d, matching.RequestCommand{TargetTripID: "p1"}); !errors.Is(err, matching.ErrInvalidState) {
		t.Fatalf("repeated request: expected ErrInvalidState, got %v", err)
	}
	if len(src.actions) != 2 {
		t.Errorf("actions = %d, want 2", len(src.actions))
	}

	// The backend now lists the request under the caller's trip.
	src.mu.Lock()
	src.myTrips = []trips.RawTrip{{
		"id": "t1", "from_city": "Pune", "to_city": "Goa",
		"sent_matches": []any{map[string]any{"id": "s1", "requester_trip_id": "t1", "target_trip_id": "p1", "status": "pending"}},
	}}
	src.mu.Unlock()
	if err := d.RefreshMyTrips(ctx); err != nil {
		t.Fatal(err)
	}
	for _, m := range d.Matches() {
		if m.Local {
			t.Errorf("optimistic record should be superseded: %+v", m)
		}
	}
	if got := statusOf(t, d, "p1"); got != matching.StatusPending {
		t.Errorf("p1 after my-trips refresh = %q", got)
	}
}

func TestFindOutgoing_PrefersLiveRecordOverRejected(t *testing.T) {
	d := newTestDirectory(&fakeSource{})
	d.AppendPending(matching.MatchRecord{ID: "old", RequesterTripID: "t1", TargetTripID: "p1", Status: matching.StatusRejected})
	d.AppendPending(matching.MatchRecord{ID: "new", RequesterTripID: "t1", TargetTripID: "p1", Status: matching.StatusPending, Local: true})

	m, ok := d.FindOutgoing("t1", "p1")
	if !ok || m.ID != "new" {
		t.Fatalf("got %+v, %v", m, ok)
	}
	if _, ok := d.FindOutgoing("p1", "t1"); ok {
		t.Error("direction matters")
	}
}

// ---------------------------------------------------------------------------
// snapshots
// ---------------------------------------------------------------------------

func TestSnapshot_RestoreThroughJSON(t *testing.T) {
	src := &fakeSource{
		profile: types.Raw{"id": "h1", "full_name": "Asha"},
		myTrips: []trips.RawTrip{ownTrip("t1")},
		matches: []matching.MatchRecord{{ID: "m1", RequesterTripID: "p1", TargetTripID: "t1", Status: matching.StatusPending}},
		feed:    []trips.RawTrip{feedTrip("p1", "h2", "Ravi")},
	}
	d := newTestDirectory(src)
	if err := d.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	d.AppendPending(matching.MatchRecord{ID: "local-x", RequesterTripID: "t1", TargetTripID: "p9", Status: matching.StatusPending, Local: true})

	b, err := json.Marshal(d.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		t.Fatal(err)
	}

	restored := newTestDirectory(&fakeSource{})
	restored.Restore(&snap)

	if !restored.Loaded() || restored.Session().FullName != "Asha" {
		t.Fatalf("session = %+v", restored.Session())
	}
	if !equalIDs(restored.OwnedTripIDs(), []types.ID{"t1"}) {
		t.Errorf("my trips = %v", restored.OwnedTripIDs())
	}
	if m, ok := restored.FindMatch("local-x"); !ok || !m.Local {
		t.Errorf("optimistic record lost: %+v", m)
	}
	if v := restored.View(discovery.FilterState{}); len(v) != 1 || v[0].MatchStatus != matching.StatusPending {
		t.Errorf("view = %+v", v)
	}
}
