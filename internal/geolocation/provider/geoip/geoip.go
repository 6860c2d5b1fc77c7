// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/waybar-locshare/internal/geolocation"
	"github.com/wneessen/waybar-locshare/internal/http"
)

const (
	apiEndpoint   = "https://reallyfreegeoip.org/json/"
	lookupTimeout = time.Second * 5
	name          = "geoip"
)

type GeolocationGeoIPProvider struct {
	name     string
	http     *http.Client
	period   time.Duration
	locateFn geolocation.LocateFunc
}

type APIResult struct {
	IP          string  `json:"ip"`
	CountryCode string  `json:"country_code"`
	Country     string  `json:"country_name"`
	RegionCode  string  `json:"region_code,omitempty"`
	Region      string  `json:"region_name,omitempty"`
	City        string  `json:"city,omitempty"`
	ZipCode     string  `json:"zip_code,omitempty"`
	TimeZone    string  `json:"time_zone"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

func NewGeolocationGeoIPProvider(http *http.Client) (*GeolocationGeoIPProvider, error) {
	if http == nil {
		return nil, errors.New("http client is required")
	}
	provider := &GeolocationGeoIPProvider{
		name:   name,
		http:   http,
		period: time.Minute * 30,
	}
	provider.locateFn = provider.locate
	return provider, nil
}

func (p *GeolocationGeoIPProvider) Name() string {
	return p.name
}

func (p *GeolocationGeoIPProvider) Precise() bool {
	return false
}

func (p *GeolocationGeoIPProvider) Locate(ctx context.Context) (geolocation.Coordinate, error) {
	return p.locateFn(ctx)
}

// LookupStream re-resolves the public IP address location periodically and emits significant changes.
func (p *GeolocationGeoIPProvider) LookupStream(ctx context.Context) <-chan geolocation.Coordinate {
	return geolocation.PollStream(ctx, p.period, p.locateFn)
}

func (p *GeolocationGeoIPProvider) locate(ctx context.Context) (geolocation.Coordinate, error) {
	ctxHttp, cancelHttp := context.WithTimeout(ctx, lookupTimeout)
	defer cancelHttp()

	result := new(APIResult)
	if _, err := p.http.Get(ctxHttp, apiEndpoint, result, nil, nil); err != nil {
		return geolocation.Coordinate{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}
	coord := geolocation.Coordinate{
		Lat: geolocation.Truncate(result.Latitude, geolocation.TruncPrecision),
		Lon: geolocation.Truncate(result.Longitude, geolocation.TruncPrecision),
		Acc: accuracy(result),
	}
	if !coord.Valid() {
		return geolocation.Coordinate{}, fmt.Errorf("API returned invalid coordinates: %f, %f", coord.Lat, coord.Lon)
	}
	return coord, nil
}

// accuracy derives an uncertainty radius from the most specific field the API resolved.
func accuracy(result *APIResult) float64 {
	switch {
	case result.ZipCode != "":
		return geolocation.AccuracyZip
	case result.City != "":
		return geolocation.AccuracyCity
	case result.RegionCode != "":
		return geolocation.AccuracyRegion
	case result.CountryCode != "":
		return geolocation.AccuracyCountry
	default:
		return geolocation.AccuracyUnknown
	}
}
