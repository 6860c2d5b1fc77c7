// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package tracker

import (
	"errors"
	"time"

	"github.com/wneessen/waybar-locshare/internal/geolocation"
	"github.com/wneessen/waybar-locshare/internal/places"
	"github.com/wneessen/waybar-locshare/internal/vartype"
)

var (
	ErrUnsupported         = errors.New("geolocation is not supported on this system")
	ErrHighAccuracyTimeout = errors.New("high accuracy mode timed out, switching to low accuracy mode")
	ErrAcquisitionFailed   = errors.New("failed to acquire the position, please try again")
)

// State is a snapshot of the tracker. Snapshots are values and never change after they were
// handed out.
type State struct {
	SessionID   string
	Mode        AccuracyMode
	Loading     bool
	Unsupported bool
	// Err is the last acquisition error. It is cleared by the next successful update.
	Err        error
	Position   vartype.Variable[geolocation.Position]
	Place      vartype.Variable[places.Place]
	LastUpdate time.Time
}
