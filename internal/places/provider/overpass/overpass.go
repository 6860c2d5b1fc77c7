// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package overpass finds nearby points of interest in OpenStreetMap data through the Overpass API.
package overpass

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/waybar-locshare/internal/geolocation"
	"github.com/wneessen/waybar-locshare/internal/http"
	"github.com/wneessen/waybar-locshare/internal/places"
)

const (
	APIEndpoint = "https://overpass-api.de/api/interpreter"
	APITimeout  = time.Second * 15
	name        = "overpass"
)

// categoryKeys are the OSM keys that turn a named node into a point of interest. Their values
// become the place types, in this order.
var categoryKeys = []string{"amenity", "tourism", "shop", "leisure", "historic"}

type Overpass struct {
	http   *http.Client
	radius int
}

type Result struct {
	Elements []Element `json:"elements"`
}

type Element struct {
	Type string            `json:"type"`
	ID   int64             `json:"id"`
	Lat  float64           `json:"lat"`
	Lon  float64           `json:"lon"`
	Tags map[string]string `json:"tags"`
}

// New returns an Overpass finder that searches within radius meters around the requested location.
func New(client *http.Client, radius int) *Overpass {
	return &Overpass{
		http:   client,
		radius: radius,
	}
}

func (o *Overpass) Name() string {
	return name
}

// NearbySearch fetches all named POI nodes within the radius. Overpass has no ranking of its own,
// so results are always ordered by distance.
func (o *Overpass) NearbySearch(ctx context.Context, req places.Request) (places.Response, error) {
	if req.Type != "" && req.Type != places.TypePointOfInterest {
		return places.Response{Status: places.StatusInvalidRequest}, nil
	}

	form := url.Values{}
	form.Set("data", o.query(req.Location))
	var result Result
	if _, err := o.http.PostWithTimeout(ctx, APIEndpoint, &result, strings.NewReader(form.Encode()),
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"}, APITimeout); err != nil {
		return places.Response{}, fmt.Errorf("failed to fetch nearby places from Overpass API: %w", err)
	}

	lang, _ := req.Language.Base()
	found := make([]places.Place, 0, len(result.Elements))
	for _, e := range result.Elements {
		if e.Type != "node" || e.Tags["name"] == "" {
			continue
		}
		found = append(found, toPlace(e, lang.String()))
	}
	if len(found) == 0 {
		return places.Response{Status: places.StatusZeroResults}, nil
	}

	slices.SortStableFunc(found, func(a, b places.Place) int {
		da, db := req.Location.DistanceTo(a.Location), req.Location.DistanceTo(b.Location)
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		}
		return 0
	})
	return places.Response{Status: places.StatusOK, Results: found}, nil
}

func (o *Overpass) query(loc geolocation.Coordinate) string {
	around := fmt.Sprintf("(around:%d,%s,%s)", o.radius, strconv.FormatFloat(loc.Lat, 'f', -1, 64),
		strconv.FormatFloat(loc.Lon, 'f', -1, 64))
	var q strings.Builder
	q.WriteString("[out:json][timeout:10];(")
	for _, key := range categoryKeys {
		fmt.Fprintf(&q, `node%s["name"][%q];`, around, key)
	}
	q.WriteString(");out body;")
	return q.String()
}

func toPlace(e Element, lang string) places.Place {
	place := places.Place{
		Name:     e.Tags["name"],
		PlaceID:  e.Type + "/" + strconv.FormatInt(e.ID, 10),
		Location: geolocation.Coordinate{Lat: e.Lat, Lon: e.Lon},
	}
	if localized := e.Tags["name:"+lang]; localized != "" {
		place.Name = localized
	}
	for _, key := range categoryKeys {
		if v := e.Tags[key]; v != "" {
			place.Types = append(place.Types, v)
		}
	}
	place.Types = append(place.Types, places.TypePointOfInterest)

	street := strings.TrimSpace(e.Tags["addr:street"] + " " + e.Tags["addr:housenumber"])
	parts := make([]string, 0, 2)
	for _, p := range []string{street, e.Tags["addr:city"]} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	place.Address = strings.Join(parts, ", ")
	return place
}
