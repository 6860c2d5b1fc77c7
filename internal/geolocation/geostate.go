// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geolocation

// GeolocationState tracks the last emitted coordinate of a source, so that streams only
// emit when the position moved significantly.
type GeolocationState struct {
	last     Coordinate
	haveLast bool
}

// HasChanged reports whether c differs significantly from the last stored coordinate. An empty
// state always reports a change.
func (s *GeolocationState) HasChanged(c Coordinate) bool {
	if !s.haveLast {
		return true
	}
	return c.PosHasSignificantChange(s.last)
}

// Update stores c as the last emitted coordinate.
func (s *GeolocationState) Update(c Coordinate) {
	s.last = c
	s.haveLast = true
}
