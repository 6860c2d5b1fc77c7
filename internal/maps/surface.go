// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package maps models the map surface the position is shown on. The surface goes through a
// loading phase, after which it either is ready and hands out the place finder, or failed.
package maps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"

	"github.com/wneessen/waybar-locshare/internal/geolocation"
	"github.com/wneessen/waybar-locshare/internal/logger"
	"github.com/wneessen/waybar-locshare/internal/places"
)

const ProviderGoogle = "google"

var (
	ErrMissingAPIKey = errors.New("maps provider requires an API key")
	ErrKeyRejected   = errors.New("maps provider rejected the API key")
	ErrNoFinder      = errors.New("no place finder configured")
)

// State is the lifecycle state of a Surface.
type State int

const (
	StateLoading State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config describes the maps provider backing a Surface.
type Config struct {
	Provider    string
	APIKey      string
	RequiresKey bool
	Zoom        int
}

// Surface tracks the lifecycle of the map and guards access to the place finder.
type Surface struct {
	config Config
	finder places.Finder
	logger *logger.Logger

	mu        sync.RWMutex
	state     State
	err       error
	listeners []func(State)
}

// NewSurface returns a Surface in StateLoading.
func NewSurface(log *logger.Logger, finder places.Finder, config Config) *Surface {
	return &Surface{
		config: config,
		finder: finder,
		logger: log,
	}
}

// Subscribe registers fn to be called after every state change.
func (s *Surface) Subscribe(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Load initializes the surface. It fails if the provider requires an API key that is missing or
// if no finder was configured. Load is a no-op once the surface left StateLoading.
func (s *Surface) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if state, err := s.State(); state != StateLoading {
		return err
	}

	switch {
	case s.config.RequiresKey && s.config.APIKey == "":
		s.fail(ErrMissingAPIKey)
		return ErrMissingAPIKey
	case s.finder == nil:
		s.fail(ErrNoFinder)
		return ErrNoFinder
	}

	s.transition(StateLoading, StateReady, nil)
	return nil
}

// State returns the current state and, in StateFailed, the reason.
func (s *Surface) State() (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.err
}

// Finder returns the place finder once the surface is ready.
func (s *Surface) Finder() (places.Finder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateReady {
		return nil, false
	}
	return &surfaceFinder{surface: s, Finder: s.finder}, true
}

// Zoom returns the configured zoom level.
func (s *Surface) Zoom() int {
	return s.config.Zoom
}

// URL returns a shareable link to the map centered on center.
func (s *Surface) URL(center geolocation.Coordinate) string {
	lat := strconv.FormatFloat(center.Lat, 'f', -1, 64)
	lon := strconv.FormatFloat(center.Lon, 'f', -1, 64)
	zoom := strconv.Itoa(s.config.Zoom)

	if s.config.Provider == ProviderGoogle {
		query := url.Values{}
		query.Set("api", "1")
		query.Set("map_action", "map")
		query.Set("center", lat+","+lon)
		query.Set("zoom", zoom)
		return "https://www.google.com/maps/@?" + query.Encode()
	}

	query := url.Values{}
	query.Set("mlat", lat)
	query.Set("mlon", lon)
	return "https://www.openstreetmap.org/?" + query.Encode() + "#map=" + zoom + "/" + lat + "/" + lon
}

func (s *Surface) fail(err error) {
	s.mu.RLock()
	from := s.state
	s.mu.RUnlock()
	if from == StateFailed {
		return
	}
	s.logger.Error("map surface failed", slog.String("provider", s.config.Provider), logger.Err(err))
	s.transition(from, StateFailed, err)
}

// transition moves the surface from one state to another, unless another goroutine changed the
// state in the meantime.
func (s *Surface) transition(from, to State, err error) {
	s.mu.Lock()
	if s.state != from {
		s.mu.Unlock()
		return
	}
	s.state, s.err = to, err
	listeners := append([]func(State){}, s.listeners...)
	s.mu.Unlock()

	s.logger.Debug("map surface state changed", slog.String("from", from.String()),
		slog.String("to", to.String()))
	for _, fn := range listeners {
		fn(to)
	}
}

// surfaceFinder fails the surface when the provider rejects the API key.
type surfaceFinder struct {
	places.Finder
	surface *Surface
}

func (f *surfaceFinder) NearbySearch(ctx context.Context, req places.Request) (places.Response, error) {
	resp, err := f.Finder.NearbySearch(ctx, req)
	if err == nil && resp.Status == places.StatusRequestDenied {
		f.surface.fail(fmt.Errorf("%w: %s", ErrKeyRejected, f.Finder.Name()))
	}
	return resp, err
}
