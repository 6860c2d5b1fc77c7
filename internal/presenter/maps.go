// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"github.com/vorlif/spreak/localize"

	"github.com/wneessen/waybar-locshare/internal/maps"
	"github.com/wneessen/waybar-locshare/internal/tracker"
)

const msgRenderFailed localize.MsgID = "The map could not be rendered"

// modeLabels maps the accuracy modes to their message ids
var modeLabels = map[tracker.AccuracyMode]localize.MsgID{
	tracker.ModeHigh: "High accuracy",
	tracker.ModeLow:  "Low accuracy",
}

var errorMessages = []struct {
	err error
	id  localize.MsgID
}{
	{tracker.ErrUnsupported, "Geolocation is not supported on this system"},
	{tracker.ErrHighAccuracyTimeout, "High accuracy mode timed out. Switching to low accuracy mode."},
	{tracker.ErrAcquisitionFailed, "Failed to acquire the position. Please try again."},
	{maps.ErrMissingAPIKey, "The maps provider requires an API key"},
	{maps.ErrKeyRejected, "The maps provider rejected the API key"},
	{maps.ErrNoFinder, "No place provider configured"},
}

// i18nVars are short keys that can be used with the loc template function
var i18nVars = map[string]localize.MsgID{
	"lat":      "Latitude",
	"lon":      "Longitude",
	"acc":      "Accuracy",
	"updated":  "Last update",
	"mode":     "Accuracy mode",
	"nearby":   "Nearby",
	"title":    "Location sharing",
	"error":    "Error",
	"acquire":  "Acquiring position...",
	"loading":  "Loading map...",
	"maperror": "Map failed to load",
	"nodata":   "Position could not be determined",
}
