// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geolocation_file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/waybar-locshare/internal/geolocation"
)

const name = "geolocation_file"

var ErrNoCoordinates = errors.New("no valid coordinates found in geolocation file")

// GeolocationFileProvider reads a manually maintained position from a file. The first line that
// holds a "lat, lon" pair wins, lines starting with # are ignored.
type GeolocationFileProvider struct {
	name     string
	path     string
	period   time.Duration
	locateFn geolocation.LocateFunc
}

func NewGeolocationFileProvider(path string) *GeolocationFileProvider {
	provider := &GeolocationFileProvider{
		name:   name,
		path:   path,
		period: time.Minute * 2,
	}
	provider.locateFn = provider.readFile
	return provider
}

func (p *GeolocationFileProvider) Name() string {
	return p.name
}

func (p *GeolocationFileProvider) Precise() bool {
	return false
}

// Locate reads the file once. A missing or unusable file will not fix itself within a request,
// so it is reported as a permanent failure.
func (p *GeolocationFileProvider) Locate(ctx context.Context) (geolocation.Coordinate, error) {
	coord, err := p.locateFn(ctx)
	if err != nil {
		return coord, geolocation.Unavailable(err.Error())
	}
	return coord, nil
}

// LookupStream re-reads the file periodically and emits the position whenever it changed.
func (p *GeolocationFileProvider) LookupStream(ctx context.Context) <-chan geolocation.Coordinate {
	return geolocation.PollStream(ctx, p.period, p.locateFn)
}

func (p *GeolocationFileProvider) readFile(context.Context) (geolocation.Coordinate, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return geolocation.Coordinate{}, fmt.Errorf("failed to read geolocation file %q: %w", p.path, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 2 {
			continue
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			continue
		}
		coord := geolocation.Coordinate{Lat: lat, Lon: lon, Acc: geolocation.AccuracyZip}
		if !coord.Valid() {
			continue
		}
		return coord, nil
	}
	return geolocation.Coordinate{}, ErrNoCoordinates
}
