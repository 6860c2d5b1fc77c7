// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package nominatim

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/waybar-locshare/internal/http"
	"github.com/wneessen/waybar-locshare/internal/places"
)

const (
	APIReverseEndpoint = "https://nominatim.openstreetmap.org/reverse"
	APITimeout         = time.Second * 10
	name               = "osm-nominatim"

	// zoomBuilding makes reverse lookups resolve to the closest building or POI
	zoomBuilding = 18
)

// Nominatim answers nearby searches with a reverse lookup at building level. Nominatim returns
// at most one object, which is the closest one, so the results are ranked by distance by nature.
type Nominatim struct {
	http *http.Client
}

type ReverseResult struct {
	Error       string  `json:"error"`
	PlaceID     int64   `json:"place_id"`
	OSMType     string  `json:"osm_type"`
	OSMID       int64   `json:"osm_id"`
	APILat      string  `json:"lat"`
	APILon      string  `json:"lon"`
	Category    string  `json:"category"`
	Type        string  `json:"type"`
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Address     Address `json:"address"`
}

type Address struct {
	HouseNumber string `json:"house_number"`
	Road        string `json:"road"`
	Suburb      string `json:"suburb"`
	City        string `json:"city"`
	Town        string `json:"town"`
	Village     string `json:"village"`
	Postcode    string `json:"postcode"`
	Country     string `json:"country"`
}

func New(client *http.Client) *Nominatim {
	return &Nominatim{
		http: client,
	}
}

func (n *Nominatim) Name() string {
	return name
}

func (n *Nominatim) NearbySearch(ctx context.Context, req places.Request) (places.Response, error) {
	if req.Type != "" && req.Type != places.TypePointOfInterest {
		return places.Response{Status: places.StatusInvalidRequest}, nil
	}

	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("lat", fmt.Sprintf("%f", req.Location.Lat))
	query.Set("lon", fmt.Sprintf("%f", req.Location.Lon))
	query.Set("zoom", strconv.Itoa(zoomBuilding))
	query.Set("addressdetails", "1")
	if req.Language.String() != "und" {
		query.Set("accept-language", req.Language.String())
	}

	var result ReverseResult
	if _, err := n.http.GetWithTimeout(ctx, APIReverseEndpoint, &result, query, nil, APITimeout); err != nil {
		return places.Response{}, fmt.Errorf("failed to fetch reverse address details from Nominatim API: %w", err)
	}
	// Unnamed objects are plain addresses or roads, not points of interest
	if result.Error != "" || result.Name == "" {
		return places.Response{Status: places.StatusZeroResults}, nil
	}

	place := places.Place{
		Name:    result.Name,
		PlaceID: strconv.FormatInt(result.PlaceID, 10),
		Address: address(result),
	}
	for _, t := range []string{result.Type, result.Category} {
		if t != "" && t != "yes" {
			place.Types = append(place.Types, t)
		}
	}
	var err error
	place.Location.Lat, err = strconv.ParseFloat(result.APILat, 64)
	if err != nil {
		return places.Response{}, fmt.Errorf("failed to parse latitude from Nominatim API response: %w", err)
	}
	place.Location.Lon, err = strconv.ParseFloat(result.APILon, 64)
	if err != nil {
		return places.Response{}, fmt.Errorf("failed to parse longitude from Nominatim API response: %w", err)
	}

	return places.Response{Status: places.StatusOK, Results: []places.Place{place}}, nil
}

// address builds a short vicinity string like "Friedrichstraße 67, Berlin".
func address(result ReverseResult) string {
	city := result.Address.City
	if city == "" {
		city = result.Address.Town
	}
	if city == "" {
		city = result.Address.Village
	}
	street := strings.TrimSpace(result.Address.Road + " " + result.Address.HouseNumber)

	var parts []string
	for _, p := range []string{street, city} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return result.DisplayName
	}
	return strings.Join(parts, ", ")
}
