// README: Client-side filter predicate over annotated plans.
package discovery

import (
	"strings"

	"golang.org/x/text/cases"

	"tripmate/internal/modules/matching"
	"tripmate/internal/modules/trips"
)

// FilterState holds the active filters. Empty fields match everything.
type FilterState struct {
	SearchText    string          `form:"q" json:"q"`
	OriginCountry string          `form:"origin_country" json:"origin_country"`
	State         string          `form:"state" json:"state"`
	City          string          `form:"city" json:"city"`
	Status        matching.Status `form:"status" json:"status"`
}

// IsZero reports whether no filter is active.
func (f FilterState) IsZero() bool {
	return strings.TrimSpace(f.SearchText) == "" &&
		strings.TrimSpace(f.OriginCountry) == "" &&
		f.State == "" &&
		strings.TrimSpace(f.City) == "" &&
		f.Status == ""
}

// Matches reports whether p passes every active filter.
// OriginCountry filters on where the traveler departs from, not where they go.
func Matches(p AnnotatedPlan, f FilterState) bool {
	fold := cases.Fold()

	if q := strings.TrimSpace(f.SearchText); q != "" {
		needle := fold.String(q)
		hit := false
		for _, field := range []string{
			p.Traveler.FullName,
			p.DestinationLabel,
			p.Flight.OriginCity,
			p.Flight.DestinationCity,
		} {
			if strings.Contains(fold.String(field), needle) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}

	if c := strings.TrimSpace(f.OriginCountry); c != "" {
		want := fold.String(trips.NormalizeCountry(c))
		got := fold.String(trips.NormalizeCountry(p.Flight.OriginCountry))
		if got != want {
			return false
		}
	}

	if f.State != "" && p.Traveler.State != f.State {
		return false
	}

	if city := strings.TrimSpace(f.City); city != "" {
		if !strings.Contains(fold.String(p.Flight.OriginCity), fold.String(city)) {
			return false
		}
	}

	if f.Status != "" && p.MatchStatus != f.Status {
		return false
	}
	return true
}

// Filter returns the visible subset of plans, preserving order.
func Filter(plans []AnnotatedPlan, f FilterState) []AnnotatedPlan {
	out := make([]AnnotatedPlan, 0, len(plans))
	for _, p := range plans {
		if Matches(p, f) {
			out = append(out, p)
		}
	}
	return out
}
