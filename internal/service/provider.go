// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/waybar-locshare/internal/geolocation"
	"github.com/wneessen/waybar-locshare/internal/geolocation/provider/geoip"
	"github.com/wneessen/waybar-locshare/internal/geolocation/provider/geolocation_file"
	"github.com/wneessen/waybar-locshare/internal/geolocation/provider/gpsd"
	"github.com/wneessen/waybar-locshare/internal/geolocation/provider/ichnaea"
	"github.com/wneessen/waybar-locshare/internal/http"
	"github.com/wneessen/waybar-locshare/internal/logger"
	"github.com/wneessen/waybar-locshare/internal/maps"
	"github.com/wneessen/waybar-locshare/internal/places"
	"github.com/wneessen/waybar-locshare/internal/places/provider/google"
	nominatim "github.com/wneessen/waybar-locshare/internal/places/provider/osm-nominatim"
	"github.com/wneessen/waybar-locshare/internal/places/provider/overpass"
	"github.com/wneessen/waybar-locshare/internal/tracker"
)

const (
	cacheHitTTL  = time.Minute * 10
	cacheMissTTL = time.Minute * 2
)

// selectGeolocationSources returns all enabled geolocation sources. Sources that can't be
// initialized on this system are skipped.
func (s *Service) selectGeolocationSources(httpClient *http.Client) ([]geolocation.Source, error) {
	var sources []geolocation.Source

	if !s.config.GeoLocation.DisableGeolocationFile {
		sources = append(sources, geolocation_file.NewGeolocationFileProvider(s.config.GeoLocation.File))
	}

	if !s.config.GeoLocation.DisableGPSD {
		sources = append(sources, gpsd.NewGeolocationGPSDProvider(s.logger, s.config.GeoLocation.GPSDHost,
			s.config.GeoLocation.GPSDPort))
	}

	if !s.config.GeoLocation.DisableGeoIP {
		gip, err := geoip.NewGeolocationGeoIPProvider(httpClient)
		if err != nil {
			return nil, fmt.Errorf("failed to create GeoIP provider: %w", err)
		}
		sources = append(sources, gip)
	}

	if !s.config.GeoLocation.DisableICHNAEA {
		mls, err := ichnaea.NewGeolocationICHNAEAProvider(httpClient)
		if err != nil {
			s.logger.Error("failed to create ICHNAEA provider", logger.Err(err))
		} else {
			sources = append(sources, mls)
		}
	}

	return sources, nil
}

// selectGeolocator combines the sources into a Geolocator. If no source is available, nil is
// returned and the tracker reports that geolocation is not supported.
func (s *Service) selectGeolocator(sources []geolocation.Source) tracker.Geolocator {
	locator, err := geolocation.NewLocator(s.logger, sources...)
	if err != nil {
		s.logger.Warn("geolocation is not available", logger.Err(err))
		return nil
	}
	return locator
}

// selectPlaceFinder returns the cached place finder of the configured maps provider. A google
// provider without API key yields a nil finder, the map surface reports the missing key.
func (s *Service) selectPlaceFinder(httpClient *http.Client) (places.Finder, error) {
	var finder places.Finder

	switch strings.ToLower(s.config.Maps.Provider) {
	case maps.ProviderGoogle:
		if s.config.Maps.APIKey == "" {
			return nil, nil
		}
		g, err := google.New(httpClient, s.config.Maps.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create google places provider: %w", err)
		}
		finder = g
	case "overpass":
		finder = overpass.New(httpClient, s.config.Maps.Radius)
	case "nominatim":
		finder = nominatim.New(httpClient)
	default:
		return nil, fmt.Errorf("unsupported maps provider: %s", s.config.Maps.Provider)
	}

	return places.NewCachedFinder(finder, cacheHitTTL, cacheMissTTL), nil
}
