// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package tracker

import (
	"time"

	"github.com/wneessen/waybar-locshare/internal/geolocation"
)

// AccuracyMode selects which acquisition options are used. A session starts in ModeHigh and
// falls back to ModeLow on the first high accuracy timeout. It never goes back.
type AccuracyMode int

const (
	ModeHigh AccuracyMode = iota
	ModeLow
)

func (m AccuracyMode) String() string {
	if m == ModeHigh {
		return "high"
	}
	return "low"
}

// OnTimeout returns the mode that follows a timeout in m and whether the failed request should
// be retried in that mode.
func (m AccuracyMode) OnTimeout() (next AccuracyMode, retry bool) {
	if m == ModeHigh {
		return ModeLow, true
	}
	return ModeLow, false
}

// Modes holds the acquisition options of both accuracy modes.
type Modes struct {
	High geolocation.Options
	Low  geolocation.Options
}

// DefaultModes returns high accuracy with a 10s timeout and no cached positions, and low accuracy
// with a 15s timeout accepting positions up to a minute old.
func DefaultModes() Modes {
	return Modes{
		High: geolocation.Options{EnableHighAccuracy: true, Timeout: 10 * time.Second},
		Low:  geolocation.Options{EnableHighAccuracy: false, Timeout: 15 * time.Second, MaximumAge: time.Minute},
	}
}

// For returns the options of mode.
func (m Modes) For(mode AccuracyMode) geolocation.Options {
	if mode == ModeHigh {
		return m.High
	}
	return m.Low
}
