// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package maps

import (
	"github.com/wneessen/waybar-locshare/internal/geolocation"
	"github.com/wneessen/waybar-locshare/internal/places"
)

// Marker is a pin on the map.
type Marker struct {
	Label    string
	Location geolocation.Coordinate
}

// Description is everything needed to draw the map: the view port, the markers and an optional
// info popup for a selected place.
type Description struct {
	Center  geolocation.Coordinate
	Zoom    int
	Markers []Marker
	Popup   *places.Place
	URL     string
}

// Describe returns the map centered on the user's position with a marker for it. If popup is
// set, an additional info popup is placed at the place's location.
func (s *Surface) Describe(position geolocation.Coordinate, popup *places.Place) Description {
	desc := Description{
		Center:  position,
		Zoom:    s.config.Zoom,
		Markers: []Marker{{Label: "position", Location: position}},
		URL:     s.URL(position),
	}
	if popup != nil {
		p := *popup
		desc.Popup = &p
	}
	return desc
}
