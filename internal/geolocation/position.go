// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geolocation

import (
	"errors"
	"log/slog"
	"time"
)

// ErrorCode classifies why a position could not be acquired.
type ErrorCode int

const (
	PermissionDenied ErrorCode = iota + 1
	PositionUnavailable
	Timeout
)

// Position is a Coordinate captured at a specific point in time by a named source.
type Position struct {
	Coordinate
	Timestamp time.Time
	Source    string
}

func (p Position) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("lat", p.Lat),
		slog.Float64("lon", p.Lon),
		slog.Float64("acc", p.Acc),
		slog.String("source", p.Source),
	)
}

// Options control a single position request or a watch.
type Options struct {
	// EnableHighAccuracy prefers precise sources (e.g. GNSS) over network based ones
	EnableHighAccuracy bool
	// Timeout is the maximum time a request may take to produce a position. Zero disables it.
	Timeout time.Duration
	// MaximumAge is the maximum age of a cached position that is acceptable to return
	MaximumAge time.Duration
}

// Reading is a single delivery of a position watch: either a Position or an error.
type Reading struct {
	Position Position
	Err      error
}

// PositionError is returned when a position request fails.
type PositionError struct {
	Code    ErrorCode
	Message string
}

func (e *PositionError) Error() string {
	return e.Message
}

func (c ErrorCode) String() string {
	switch c {
	case PermissionDenied:
		return "permission denied"
	case PositionUnavailable:
		return "position unavailable"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Unavailable returns a PositionError that marks a source as permanently unable to provide a
// position.
func Unavailable(msg string) error {
	return &PositionError{Code: PositionUnavailable, Message: msg}
}

// IsTimeout reports whether err is a PositionError caused by a timeout.
func IsTimeout(err error) bool {
	var perr *PositionError
	return errors.As(err, &perr) && perr.Code == Timeout
}
