// README: Match state resolution for candidate plans, derived fresh on every read.
package discovery

import (
	"tripmate/internal/modules/matching"
	"tripmate/internal/modules/trips"
	"tripmate/internal/types"
)

// AnnotatedPlan pairs a plan with the caller's match status for it.
type AnnotatedPlan struct {
	trips.Plan
	MatchStatus matching.Status `json:"match_status"`
}

// ResolveStatus derives the caller's match status for plan.
//
// An outgoing record (one of myTrips requested plan) wins over an incoming
// one, so a caller who already sent a request sees that request's status.
func ResolveStatus(plan trips.Plan, myTrips []trips.Plan, matches []matching.MatchRecord) matching.Status {
	return resolve(plan.ID, ownedSet(myTrips), myTrips, matches)
}

// Annotate resolves every plan. Neither plans nor their match lists are modified.
func Annotate(plans, myTrips []trips.Plan, matches []matching.MatchRecord) []AnnotatedPlan {
	owned := ownedSet(myTrips)
	out := make([]AnnotatedPlan, 0, len(plans))
	for _, p := range plans {
		out = append(out, AnnotatedPlan{Plan: p, MatchStatus: resolve(p.ID, owned, myTrips, matches)})
	}
	return out
}

func resolve(planID types.ID, owned map[types.ID]bool, myTrips []trips.Plan, matches []matching.MatchRecord) matching.Status {
	if rec, ok := findOutgoing(planID, owned, myTrips, matches); ok {
		return rec.Status
	}
	if rec, ok := findIncoming(planID, owned, matches); ok {
		return rec.Status
	}
	return matching.StatusNone
}

func ownedSet(myTrips []trips.Plan) map[types.ID]bool {
	owned := make(map[types.ID]bool, len(myTrips))
	for _, t := range myTrips {
		if t.ID != "" {
			owned[t.ID] = true
		}
	}
	return owned
}

// findOutgoing scans the match lists of the caller's own trips first, then
// the session match list where optimistic requests are appended.
func findOutgoing(planID types.ID, owned map[types.ID]bool, myTrips []trips.Plan, matches []matching.MatchRecord) (matching.MatchRecord, bool) {
	if planID == "" {
		return matching.MatchRecord{}, false
	}
	for _, t := range myTrips {
		for _, m := range t.Matches {
			if m.TargetTripID == planID && (m.RequesterTripID == t.ID || m.RequesterTripID == "") {
				return m, true
			}
		}
	}
	for _, m := range matches {
		if m.TargetTripID == planID && owned[m.RequesterTripID] {
			return m, true
		}
	}
	return matching.MatchRecord{}, false
}

// findIncoming looks for a record naming the plan that the caller did not send.
func findIncoming(planID types.ID, owned map[types.ID]bool, matches []matching.MatchRecord) (matching.MatchRecord, bool) {
	if planID == "" {
		return matching.MatchRecord{}, false
	}
	for _, m := range matches {
		if owned[m.RequesterTripID] {
			continue
		}
		if m.TargetTripID == planID || (m.RequesterTripID == planID && owned[m.TargetTripID]) {
			return m, true
		}
	}
	return matching.MatchRecord{}, false
}
