// README: Normalization of heterogeneous backend trip records into one Plan.
package trips

import (
	"strings"

	"tripmate/internal/modules/matching"
	"tripmate/internal/types"
)

// Classify tags a raw record with the first backend shape it matches.
func Classify(raw RawTrip) Shape {
	switch {
	case raw.Has("sent_matches") || raw.Has("received_matches"):
		return ShapeMyTrip
	case raw.IsObj("flight") && raw.IsObj("host") && raw.IsObj("trip_meta"):
		return ShapePreformatted
	case raw.IsObj("flight") && raw.IsObj("user"):
		return ShapeLegacy
	}
	return ShapeRaw
}

// Normalize maps any known record shape onto a Plan. It is total: missing
// or mistyped fields fall back to defaults and it never panics.
func Normalize(raw RawTrip, session SessionUser) Plan {
	var p Plan
	switch shape := Classify(raw); shape {
	case ShapeMyTrip:
		p = fromMyTrip(raw, session)
	case ShapePreformatted:
		p = fromPreformatted(raw, session)
	case ShapeLegacy:
		p = fromLegacy(raw, session)
	default:
		p = fromRaw(raw, session)
	}
	return finish(p)
}

// NormalizeAll normalizes a list, preserving order.
func NormalizeAll(raws []RawTrip, session SessionUser) []Plan {
	plans := make([]Plan, 0, len(raws))
	for _, raw := range raws {
		plans = append(plans, Normalize(raw, session))
	}
	return plans
}

func fromMyTrip(raw RawTrip, s SessionUser) Plan {
	traveler := s.Traveler()
	travelDate := raw.Str("travel_date", "departure_date")
	hostID := firstID(raw.ID("host_id", "host"), raw.Obj("host").ID("id"), s.HostID)

	matches := matching.DecodeRecords(raw.List("sent_matches"))
	matches = append(matches, matching.DecodeRecords(raw.List("received_matches"))...)

	return Plan{
		ID:               raw.ID("id", "trip_id"),
		HostID:           hostID,
		Traveler:         traveler,
		DestinationLabel: label(raw.Str("to_city", "destination_city"), raw.Str("to_country", "destination_country")),
		TravelDate:       travelDate,
		DepartureTime:    raw.Str("departure_time"),
		Flight: Flight{
			Airline:         raw.Str("airline"),
			FlightNumber:    raw.Str("flight_number"),
			OriginCity:      raw.Str("from_city", "origin_city"),
			DestinationCity: raw.Str("to_city", "destination_city"),
			OriginCountry:   firstNonEmpty(NormalizeCountry(raw.Str("from_country", "origin_country")), traveler.Country),
			DepartureDate:   travelDate,
			DepartureTime:   raw.Str("departure_time"),
			ArrivalDate:     raw.Str("arrival_date"),
			ArrivalTime:     raw.Str("arrival_time"),
		},
		Matches: matches,
		Shape:   ShapeMyTrip,
	}
}

func fromPreformatted(raw RawTrip, s SessionUser) Plan {
	f, h, meta := raw.Obj("flight"), raw.Obj("host"), raw.Obj("trip_meta")
	hostID := firstID(h.ID("id", "host_id"), raw.ID("host_id"), meta.ID("host_id"))

	t := travelerFrom(h, nameOf(hostID, s, h.Str("full_name", "name"), h.Obj("user").Str("full_name")))
	t.ImageURL = firstImage(raw, "host.image", "host.profile_image", "host.user.image", "image")

	return Plan{
		ID:       firstID(raw.ID("id"), meta.ID("id", "trip_id")),
		HostID:   hostID,
		Traveler: t,
		DestinationLabel: firstNonEmpty(
			meta.Str("destination", "destination_label"),
			label(f.Str("to_city", "destination_city"), f.Str("to_country", "destination_country")),
		),
		TravelDate:    firstNonEmpty(meta.Str("travel_date"), f.Str("departure_date")),
		DepartureTime: firstNonEmpty(meta.Str("departure_time"), f.Str("departure_time")),
		Flight:        flightFrom(f, h),
		Matches:       matching.DecodeRecords(raw.List("matches")),
		Shape:         ShapePreformatted,
	}
}

func fromLegacy(raw RawTrip, s SessionUser) Plan {
	f, u := raw.Obj("flight"), raw.Obj("user")
	hostID := firstID(raw.ID("host_id"), u.ID("host_id"), raw.Obj("host").ID("id"))

	t := travelerFrom(u, nameOf(hostID, s, u.Str("full_name", "name")))
	t.ImageURL = firstImage(raw, "user.image", "user.profile_image", "image")

	return Plan{
		ID:               raw.ID("id", "trip_id"),
		HostID:           hostID,
		Traveler:         t,
		DestinationLabel: label(f.Str("to_city", "destination_city"), f.Str("to_country", "destination_country")),
		TravelDate:       firstNonEmpty(raw.Str("travel_date"), f.Str("departure_date")),
		DepartureTime:    firstNonEmpty(raw.Str("departure_time"), f.Str("departure_time")),
		Flight:           flightFrom(f, u),
		Matches:          matching.DecodeRecords(raw.List("matches")),
		Shape:            ShapeLegacy,
	}
}

func fromRaw(raw RawTrip, s SessionUser) Plan {
	host, user := raw.Obj("host"), raw.Obj("user")
	hostID := firstID(raw.ID("host_id", "host"), host.ID("id"))

	name := nameOf(hostID, s,
		host.Str("full_name"),
		user.Str("full_name"),
		host.Obj("user").Str("full_name"),
	)

	langs := languagesFrom(raw, "languages")
	if len(langs) == 0 {
		langs = languagesFrom(host, "languages")
	}

	country := NormalizeCountry(firstNonEmpty(host.Str("country"), user.Str("country"), raw.Str("country")))
	travelDate := raw.Str("travel_date", "departure_date")

	return Plan{
		ID:     raw.ID("id", "trip_id"),
		HostID: hostID,
		Traveler: Traveler{
			FullName:  name,
			Age:       firstInt(raw.Int("age"), host.Int("age"), user.Int("age")),
			Gender:    firstNonEmpty(raw.Str("gender"), host.Str("gender"), user.Str("gender")),
			Country:   country,
			State:     firstNonEmpty(raw.Str("state"), host.Str("state"), user.Str("state")),
			City:      firstNonEmpty(raw.Str("city"), host.Str("city"), user.Str("city")),
			Languages: langs,
			ImageURL:  firstImage(raw, "image", "user.image", "user.profile_image", "host.image", "host.profile_image"),
			Verified:  host.Bool("verified", "is_verified") || user.Bool("verified", "is_verified"),
		},
		DestinationLabel: label(raw.Str("to_city", "destination_city"), raw.Str("to_country", "destination_country")),
		TravelDate:       travelDate,
		DepartureTime:    raw.Str("departure_time"),
		Flight: Flight{
			Airline:         raw.Str("airline"),
			FlightNumber:    raw.Str("flight_number"),
			OriginCity:      raw.Str("from_city", "origin_city"),
			DestinationCity: raw.Str("to_city", "destination_city"),
			OriginCountry:   firstNonEmpty(NormalizeCountry(raw.Str("from_country", "origin_country")), country),
			DepartureDate:   travelDate,
			DepartureTime:   raw.Str("departure_time"),
			ArrivalDate:     raw.Str("arrival_date"),
			ArrivalTime:     raw.Str("arrival_time"),
		},
		Matches: matching.DecodeRecords(raw.List("matches")),
		Shape:   ShapeRaw,
	}
}

// finish enforces the defaults every Plan carries regardless of shape.
func finish(p Plan) Plan {
	if p.Traveler.FullName == "" {
		p.Traveler.FullName = DefaultTravelerName
	}
	if p.Traveler.Languages == nil {
		p.Traveler.Languages = []string{}
	}
	if p.Matches == nil {
		p.Matches = []matching.MatchRecord{}
	}
	if t, ok := types.ParseTime(p.TravelDate); ok {
		p.TravelDay = &t
	}
	return p
}

func travelerFrom(person types.Raw, name string) Traveler {
	return Traveler{
		FullName:  name,
		Age:       person.Int("age"),
		Gender:    person.Str("gender"),
		Country:   NormalizeCountry(person.Str("country")),
		State:     person.Str("state"),
		City:      person.Str("city"),
		Languages: languagesFrom(person, "languages"),
		Verified:  person.Bool("verified", "is_verified"),
	}
}

// flightFrom maps a nested flight object; the origin country falls back to
// the traveler's home country.
func flightFrom(f, person types.Raw) Flight {
	return Flight{
		Airline:         f.Str("airline"),
		FlightNumber:    f.Str("flight_number"),
		OriginCity:      f.Str("from_city", "origin_city"),
		DestinationCity: f.Str("to_city", "destination_city"),
		OriginCountry: firstNonEmpty(
			NormalizeCountry(f.Str("from_country", "origin_country")),
			NormalizeCountry(person.Str("country")),
		),
		DepartureDate: f.Str("departure_date"),
		DepartureTime: f.Str("departure_time"),
		ArrivalDate:   f.Str("arrival_date"),
		ArrivalTime:   f.Str("arrival_time"),
	}
}

// nameOf picks the first non-empty candidate, then the session user's name
// when the trip is theirs, then DefaultTravelerName.
func nameOf(hostID types.ID, s SessionUser, candidates ...string) string {
	if name := firstNonEmpty(candidates...); name != "" {
		return name
	}
	if hostID != "" && hostID == s.HostID && s.FullName != "" {
		return s.FullName
	}
	return DefaultTravelerName
}

// languagesFrom reads a language list that may be an array or a
// comma-separated string.
func languagesFrom(r types.Raw, key string) []string {
	if list := r.List(key); list != nil {
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	}
	if r == nil {
		return nil
	}
	s, ok := r[key].(string)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// firstImage returns the first non-empty image among dotted paths into r.
func firstImage(r types.Raw, paths ...string) *string {
	for _, path := range paths {
		if v := lookup(r, path); v != "" {
			return &v
		}
	}
	return nil
}

func lookup(r types.Raw, path string) string {
	parts := strings.Split(path, ".")
	for _, p := range parts[:len(parts)-1] {
		r = r.Obj(p)
	}
	return r.Str(parts[len(parts)-1])
}

func label(city, country string) string {
	parts := make([]string, 0, 2)
	if city = strings.TrimSpace(city); city != "" {
		parts = append(parts, city)
	}
	if country = NormalizeCountry(country); country != "" {
		parts = append(parts, country)
	}
	return strings.Join(parts, ", ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstID(ids ...types.ID) types.ID {
	for _, id := range ids {
		if id != "" {
			return id
		}
	}
	return ""
}

func firstInt(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
