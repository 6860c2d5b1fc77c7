// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package places defines the nearby place search used to annotate the current position with the
// closest point of interest.
package places

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/text/language"

	"github.com/wneessen/waybar-locshare/internal/geolocation"
)

// Status is the outcome of a nearby search as reported by the provider.
type Status string

const (
	StatusOK             Status = "OK"
	StatusZeroResults    Status = "ZERO_RESULTS"
	StatusOverQueryLimit Status = "OVER_QUERY_LIMIT"
	StatusRequestDenied  Status = "REQUEST_DENIED"
	StatusInvalidRequest Status = "INVALID_REQUEST"
	StatusUnknownError   Status = "UNKNOWN_ERROR"
)

// RankBy controls the order of the search results.
type RankBy string

const (
	RankByDistance   RankBy = "distance"
	RankByProminence RankBy = "prominence"
)

const TypePointOfInterest = "point_of_interest"

// Place is a single search result.
type Place struct {
	Name     string
	Types    []string
	Address  string
	Location geolocation.Coordinate
	PlaceID  string
}

// Request describes a nearby search around Location.
type Request struct {
	Location geolocation.Coordinate
	RankBy   RankBy
	Type     string
	Language language.Tag
}

// Response holds the status and the results of a nearby search, nearest first for
// RankByDistance requests.
type Response struct {
	Status   Status
	Results  []Place
	CacheHit bool
}

// Finder performs nearby searches against a places service.
type Finder interface {
	Name() string
	NearbySearch(ctx context.Context, req Request) (Response, error)
}

// NearbyRequest returns the request used to find the point of interest closest to loc.
func NearbyRequest(loc geolocation.Coordinate, lang language.Tag) Request {
	return Request{
		Location: loc,
		RankBy:   RankByDistance,
		Type:     TypePointOfInterest,
		Language: lang,
	}
}

// Nearest returns the first result of a successful response. Any other status or an empty
// result set yields false.
func (r Response) Nearest() (Place, bool) {
	if r.Status != StatusOK || len(r.Results) == 0 {
		return Place{}, false
	}
	return r.Results[0], true
}

// Summary renders the place as "name (type, type)".
func (p Place) Summary() string {
	if len(p.Types) == 0 {
		return p.Name
	}
	return p.Name + " (" + strings.Join(p.Types, ", ") + ")"
}

func (p Place) LogValue() slog.Value {
	return slog.GroupValue(slog.String("name", p.Name), slog.String("address", p.Address))
}
