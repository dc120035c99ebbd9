// README: REST client for the external travel backend; forwards the caller's bearer token.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tripmate/internal/modules/matching"
	"tripmate/internal/modules/trips"
	"tripmate/internal/types"
)

const (
	pathMyTrips      = "/travel/my-trips/"
	pathReceived     = "/travel/matches/received/"
	pathPublicTrips  = "/travel/public-trips/"
	pathSearchTrips  = "/travel/search-trips/"
	pathMatchAction  = "/travel/match-action/"
	pathCreateTrip   = "/travel/create-trip/"
	pathHostProfile  = "/host/profile/"
	maxErrorBodySize = 64 << 10
)

// FeedQuery selects a page of the public, country-filtered trip listing.
type FeedQuery struct {
	Country string `json:"country" form:"country"`
	Page    int    `json:"page" form:"page"`
	Limit   int    `json:"limit" form:"limit"`
}

// SearchQuery is an explicit trip search.
type SearchQuery struct {
	FromCountry string `json:"from_country" form:"from_country"`
	ToCountry   string `json:"to_country" form:"to_country"`
	Date        string `json:"date" form:"date"`
}

// CreateTripInput is the body of create-trip. Countries are canonicalized
// before they are sent.
type CreateTripInput struct {
	FromCity      string   `json:"from_city" binding:"required"`
	FromCountry   string   `json:"from_country" binding:"required"`
	ToCity        string   `json:"to_city" binding:"required"`
	ToCountry     string   `json:"to_country" binding:"required"`
	TravelDate    string   `json:"travel_date" binding:"required"`
	DepartureTime string   `json:"departure_time,omitempty"`
	ArrivalDate   string   `json:"arrival_date,omitempty"`
	ArrivalTime   string   `json:"arrival_time,omitempty"`
	Airline       string   `json:"airline,omitempty"`
	FlightNumber  string   `json:"flight_number,omitempty"`
	Languages     []string `json:"languages,omitempty"`
	Description   string   `json:"description,omitempty"`
}

// Client is safe for concurrent use. WithToken returns a copy bound to one caller.
type Client struct {
	baseURL string
	httpc   *http.Client
	token   string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
	}
}

// WithToken returns a client that authenticates as the given caller.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) MyTrips(ctx context.Context) ([]trips.RawTrip, error) {
	var body struct {
		Trips []types.Raw `json:"trips"`
	}
	if err := c.do(ctx, http.MethodGet, pathMyTrips, nil, nil, &body); err != nil {
		return nil, err
	}
	return body.Trips, nil
}

// ReceivedMatches reads incoming match requests; the legacy "matches" key
// is accepted when "requests" is absent.
func (c *Client) ReceivedMatches(ctx context.Context) ([]matching.MatchRecord, error) {
	var body struct {
		Requests []matching.MatchRecord `json:"requests"`
		Matches  []matching.MatchRecord `json:"matches"`
	}
	if err := c.do(ctx, http.MethodGet, pathReceived, nil, nil, &body); err != nil {
		return nil, err
	}
	if body.Requests != nil {
		return matching.Compact(body.Requests), nil
	}
	return matching.Compact(body.Matches), nil
}

func (c *Client) PublicTrips(ctx context.Context, q FeedQuery) ([]trips.RawTrip, error) {
	params := url.Values{}
	params.Set("status", "active")
	if q.Country != "" {
		params.Set("country", trips.NormalizeCountry(q.Country))
	}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	var body struct {
		Results []types.Raw `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, pathPublicTrips, params, nil, &body); err != nil {
		return nil, err
	}
	return body.Results, nil
}

func (c *Client) SearchTrips(ctx context.Context, q SearchQuery) ([]trips.RawTrip, error) {
	params := url.Values{}
	if q.FromCountry != "" {
		params.Set("from_country", trips.NormalizeCountry(q.FromCountry))
	}
	if q.ToCountry != "" {
		params.Set("to_country", trips.NormalizeCountry(q.ToCountry))
	}
	if q.Date != "" {
		params.Set("date", q.Date)
	}
	var body struct {
		Results []types.Raw `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, pathSearchTrips, params, nil, &body); err != nil {
		return nil, err
	}
	return body.Results, nil
}

func (c *Client) MatchAction(ctx context.Context, cmd matching.ActionCommand) (matching.ActionResult, error) {
	var res matching.ActionResult
	if err := c.do(ctx, http.MethodPost, pathMatchAction, nil, cmd, &res); err != nil {
		return matching.ActionResult{}, err
	}
	return res, nil
}

func (c *Client) CreateTrip(ctx context.Context, in CreateTripInput) (trips.RawTrip, error) {
	in.FromCountry = trips.NormalizeCountry(in.FromCountry)
	in.ToCountry = trips.NormalizeCountry(in.ToCountry)
	var created types.Raw
	if err := c.do(ctx, http.MethodPost, pathCreateTrip, nil, in, &created); err != nil {
		return nil, err
	}
	return created, nil
}

// HostProfile returns the caller's host profile as a raw object.
func (c *Client) HostProfile(ctx context.Context) (types.Raw, error) {
	var body types.Raw
	if err := c.do(ctx, http.MethodGet, pathHostProfile, nil, nil, &body); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, in, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return newAPIError(method, path, resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
