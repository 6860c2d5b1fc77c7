// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package google

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/wneessen/waybar-locshare/internal/geolocation"
	"github.com/wneessen/waybar-locshare/internal/http"
	"github.com/wneessen/waybar-locshare/internal/places"
)

const (
	APINearbyEndpoint = "https://maps.googleapis.com/maps/api/place/nearbysearch/json"
	APITimeout        = time.Second * 10
	name              = "google"
)

var (
	ErrMissingAPIKey = errors.New("google places API requires an API key")
	ErrNoStatus      = errors.New("google places API returned no status")
)

type Google struct {
	http   *http.Client
	apikey string
}

type NearbyResult struct {
	Status       string  `json:"status"`
	ErrorMessage string  `json:"error_message"`
	Results      []Place `json:"results"`
}

type Place struct {
	Name     string   `json:"name"`
	PlaceID  string   `json:"place_id"`
	Types    []string `json:"types"`
	Vicinity string   `json:"vicinity"`
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
}

func New(client *http.Client, apikey string) (*Google, error) {
	if apikey == "" {
		return nil, ErrMissingAPIKey
	}
	return &Google{
		http:   client,
		apikey: apikey,
	}, nil
}

func (g *Google) Name() string {
	return name
}

// NearbySearch queries the Places nearby search. The API reports failures like a rejected key as
// a status with HTTP 200, so those are passed through as Response status and not as error.
func (g *Google) NearbySearch(ctx context.Context, req places.Request) (places.Response, error) {
	query := url.Values{}
	query.Set("location", strconv.FormatFloat(req.Location.Lat, 'f', -1, 64)+","+
		strconv.FormatFloat(req.Location.Lon, 'f', -1, 64))
	if req.RankBy != "" {
		query.Set("rankby", string(req.RankBy))
	}
	if req.Type != "" {
		query.Set("type", req.Type)
	}
	if req.Language.String() != "und" {
		query.Set("language", req.Language.String())
	}
	query.Set("key", g.apikey)

	var result NearbyResult
	if _, err := g.http.GetWithTimeout(ctx, APINearbyEndpoint, &result, query, nil, APITimeout); err != nil {
		return places.Response{}, fmt.Errorf("failed to fetch nearby places from Google Places API: %w", err)
	}
	if result.Status == "" {
		return places.Response{}, ErrNoStatus
	}

	resp := places.Response{Status: places.Status(result.Status)}
	for _, p := range result.Results {
		resp.Results = append(resp.Results, places.Place{
			Name:    p.Name,
			Types:   p.Types,
			Address: p.Vicinity,
			PlaceID: p.PlaceID,
			Location: geolocation.Coordinate{
				Lat: p.Geometry.Location.Lat,
				Lon: p.Geometry.Location.Lng,
			},
		})
	}
	return resp, nil
}
