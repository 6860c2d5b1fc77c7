// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"sync"

	"github.com/wneessen/waybar-locshare/internal/places"
	"github.com/wneessen/waybar-locshare/internal/vartype"
)

// Selection holds the place whose info popup is open on the map. It is interaction state of
// the presenter and never touches the tracker state.
type Selection struct {
	mu    sync.RWMutex
	place vartype.Variable[places.Place]
}

// Select opens the popup for place.
func (s *Selection) Select(place places.Place) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.place.Set(place)
}

// Close closes the popup.
func (s *Selection) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.place.Reset()
}

// Current returns the selected place, if any.
func (s *Selection) Current() (places.Place, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.place.Get()
}

// Toggle closes an open popup or opens it for candidate. It reports whether the popup is open
// afterwards.
func (s *Selection) Toggle(candidate vartype.Variable[places.Place]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.place.IsSet() {
		s.place.Reset()
		return false
	}
	place, ok := candidate.Get()
	if !ok {
		return false
	}
	s.place.Set(place)
	return true
}
