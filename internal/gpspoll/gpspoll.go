// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package gpspoll implements a minimal one-shot client for gpsd. It opens a WATCH on the
// daemon, waits for a TPV report with a usable fix and hangs up again.
package gpspoll

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/wneessen/waybar-locshare/internal/geolocation"
)

const (
	accuracy3DFix = 10  // meters, consumer GNSS receiver in open sky
	accuracy2DFix = 25  // meters
	accuracyNoFix = 1e6 // unusable
	pollTimeout   = time.Second * 2

	mode2D = 2
	mode3D = 3

	watchCommand = `?WATCH={"enable":true,"json":true}`
)

var (
	ErrNoTPV = errors.New("no TPV report received from gpsd")
	ErrGPSD  = errors.New("gpsd reported an error")
)

// Client polls a single gpsd instance.
type Client struct {
	Addr string
}

// Fix is a single position report of gpsd.
type Fix struct {
	Device string
	Time   time.Time
	Lat    float64
	Lon    float64
	Alt    float64
	Acc    float64
	Mode   int
}

// report holds the fields of the gpsd TPV and ERROR classes that are used here.
type report struct {
	Class   string    `json:"class"`
	Message string    `json:"message"`
	Device  string    `json:"device"`
	Time    time.Time `json:"time"`
	Lat     float64   `json:"lat"`
	Lon     float64   `json:"lon"`
	Alt     float64   `json:"alt"`
	Mode    int       `json:"mode"`
	Epx     float64   `json:"epx"`
	Epy     float64   `json:"epy"`
	Eph     float64   `json:"eph"`
}

// New returns a Client for the gpsd instance at host:port.
func New(host, port string) *Client {
	return &Client{Addr: net.JoinHostPort(host, port)}
}

// Poll connects to gpsd and returns the first TPV report with at least a 2D fix. Reports without
// a fix are skipped; if the daemon hangs up before a fix arrives, the last of them is returned so
// the caller can tell "no fix yet" apart from "no receiver". The connection is closed before
// returning.
func (c *Client) Poll(ctx context.Context) (Fix, error) {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return Fix{}, fmt.Errorf("failed to connect to gpsd at %s: %w", c.Addr, err)
	}
	defer func() {
		_ = conn.Close()
	}()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(pollTimeout)
	}
	_ = conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err = fmt.Fprintln(conn, watchCommand); err != nil {
		return Fix{}, fmt.Errorf("failed to send WATCH command to gpsd: %w", err)
	}

	var (
		last    Fix
		haveTPV bool
	)
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var r report
		if err = json.Unmarshal(scanner.Bytes(), &r); err != nil {
			continue
		}
		switch r.Class {
		case "ERROR":
			return Fix{}, fmt.Errorf("%w: %s", ErrGPSD, r.Message)
		case "TPV":
			last, haveTPV = r.fix(), true
			if last.Has2DFix() {
				return last, nil
			}
		}
	}

	if err = ctx.Err(); err != nil {
		return Fix{}, err
	}
	if haveTPV {
		return last, nil
	}
	if err = scanner.Err(); err != nil {
		return Fix{}, fmt.Errorf("failed to read gpsd response: %w", err)
	}
	return Fix{}, ErrNoTPV
}

func (r report) fix() Fix {
	return Fix{
		Device: r.Device,
		Time:   r.Time,
		Lat:    r.Lat,
		Lon:    r.Lon,
		Alt:    r.Alt,
		Acc:    HorizontalAccuracy(r.Eph, r.Epx, r.Epy, r.Mode),
		Mode:   r.Mode,
	}
}

// Has2DFix reports whether the fix has at least a 2D fix.
func (f Fix) Has2DFix() bool {
	return f.Mode >= mode2D
}

// Coordinate converts the fix into a truncated geolocation coordinate.
func (f Fix) Coordinate() geolocation.Coordinate {
	return geolocation.Coordinate{
		Lat: geolocation.Truncate(f.Lat, geolocation.TruncPrecision),
		Lon: geolocation.Truncate(f.Lon, geolocation.TruncPrecision),
		Acc: geolocation.Truncate(f.Acc, geolocation.TruncPrecision),
	}
}

// HorizontalAccuracy estimates the horizontal error of a TPV report in meters. eph is preferred,
// then the combined longitude and latitude errors, then a fixed value per fix mode.
func HorizontalAccuracy(eph, epx, epy float64, mode int) float64 {
	switch {
	case eph > 0:
		return eph
	case epx > 0 && epy > 0:
		return math.Hypot(epx, epy)
	}

	switch mode {
	case mode3D:
		return accuracy3DFix
	case mode2D:
		return accuracy2DFix
	default:
		return accuracyNoFix
	}
}
