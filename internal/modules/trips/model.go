// README: Canonical trip view model (Plan) and the signed-in session user.
package trips

import (
	"time"

	"tripmate/internal/modules/matching"
	"tripmate/internal/types"
)

// RawTrip is a trip record as returned by the backend, shape unknown.
type RawTrip = types.Raw

// Shape tags the backend response variant a record was read from.
type Shape string

const (
	// ShapeMyTrip is the lightweight "my trips" record carrying sent/received matches.
	ShapeMyTrip Shape = "my_trip"
	// ShapePreformatted carries nested flight, host and trip_meta objects.
	ShapePreformatted Shape = "preformatted"
	// ShapeLegacy carries nested flight and user objects.
	ShapeLegacy Shape = "legacy"
	// ShapeRaw carries flat fields only.
	ShapeRaw Shape = "raw"
)

// DefaultTravelerName is shown when no source names the traveler.
const DefaultTravelerName = "Traveler"

type Traveler struct {
	FullName  string   `json:"full_name"`
	Age       int      `json:"age,omitempty"`
	Gender    string   `json:"gender,omitempty"`
	Country   string   `json:"country,omitempty"`
	State     string   `json:"state,omitempty"`
	City      string   `json:"city,omitempty"`
	Languages []string `json:"languages"`
	ImageURL  *string  `json:"image_url"`
	Verified  bool     `json:"verified"`
}

type Flight struct {
	Airline         string `json:"airline,omitempty"`
	FlightNumber    string `json:"flight_number,omitempty"`
	OriginCity      string `json:"origin_city,omitempty"`
	DestinationCity string `json:"destination_city,omitempty"`
	OriginCountry   string `json:"origin_country,omitempty"`
	DepartureDate   string `json:"departure_date,omitempty"`
	DepartureTime   string `json:"departure_time,omitempty"`
	ArrivalDate     string `json:"arrival_date,omitempty"`
	ArrivalTime     string `json:"arrival_time,omitempty"`
}

// Plan is the canonical view of one trip. Match status is derived at read
// time and deliberately not stored here.
type Plan struct {
	ID               types.ID               `json:"id"`
	HostID           types.ID               `json:"host_id"`
	Traveler         Traveler               `json:"traveler"`
	DestinationLabel string                 `json:"destination_label"`
	TravelDate       string                 `json:"travel_date,omitempty"`
	TravelDay        *time.Time             `json:"travel_day,omitempty"`
	DepartureTime    string                 `json:"departure_time,omitempty"`
	Flight           Flight                 `json:"flight"`
	Matches          []matching.MatchRecord `json:"matches"`
	Shape            Shape                  `json:"shape"`
}

// SessionUser is the signed-in caller's host profile.
type SessionUser struct {
	UID       string   `json:"uid"`
	HostID    types.ID `json:"host_id"`
	FullName  string   `json:"full_name"`
	Age       int      `json:"age,omitempty"`
	Gender    string   `json:"gender,omitempty"`
	Country   string   `json:"country,omitempty"`
	State     string   `json:"state,omitempty"`
	City      string   `json:"city,omitempty"`
	Languages []string `json:"languages,omitempty"`
	ImageURL  *string  `json:"image_url,omitempty"`
	Verified  bool     `json:"verified"`
}

// Traveler renders the session user as the traveler of their own trips.
func (u SessionUser) Traveler() Traveler {
	name := u.FullName
	if name == "" {
		name = DefaultTravelerName
	}
	langs := make([]string, len(u.Languages))
	copy(langs, u.Languages)
	return Traveler{
		FullName:  name,
		Age:       u.Age,
		Gender:    u.Gender,
		Country:   NormalizeCountry(u.Country),
		State:     u.State,
		City:      u.City,
		Languages: langs,
		ImageURL:  u.ImageURL,
		Verified:  u.Verified,
	}
}

// SessionFromProfile reads the host-profile response. The profile may nest
// personal fields under "user".
func SessionFromProfile(uid string, raw types.Raw) SessionUser {
	user := raw.Obj("user")
	pick := func(keys ...string) string {
		if v := raw.Str(keys...); v != "" {
			return v
		}
		return user.Str(keys...)
	}
	age := raw.Int("age")
	if age == 0 {
		age = user.Int("age")
	}
	langs := languagesFrom(raw, "languages")
	if len(langs) == 0 {
		langs = languagesFrom(user, "languages")
	}
	return SessionUser{
		UID:       uid,
		HostID:    raw.ID("id", "host_id"),
		FullName:  pick("full_name", "name"),
		Age:       age,
		Gender:    pick("gender"),
		Country:   NormalizeCountry(pick("country")),
		State:     pick("state"),
		City:      pick("city"),
		Languages: langs,
		ImageURL:  firstImage(raw, "image", "profile_image", "user.image", "user.profile_image"),
		Verified:  raw.Bool("verified", "is_verified") || user.Bool("verified", "is_verified"),
	}
}
