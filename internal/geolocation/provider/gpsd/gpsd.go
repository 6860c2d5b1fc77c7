// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/waybar-locshare/internal/geolocation"
	"github.com/wneessen/waybar-locshare/internal/gpspoll"
	"github.com/wneessen/waybar-locshare/internal/logger"
)

const name = "gpsd"

var ErrNoFix = errors.New("gpsd has no 2D fix yet")

// GeolocationGPSDProvider is a precise geolocation source backed by a local gpsd instance.
type GeolocationGPSDProvider struct {
	name     string
	addr     string
	logger   *logger.Logger
	period   time.Duration
	locateFn func(ctx context.Context) (gpspoll.Fix, error)
}

func NewGeolocationGPSDProvider(log *logger.Logger, host, port string) *GeolocationGPSDProvider {
	provider := &GeolocationGPSDProvider{
		name:   name,
		addr:   net.JoinHostPort(host, port),
		logger: log,
		period: time.Second * 30,
	}
	provider.locateFn = gpspoll.New(host, port).Poll
	return provider
}

func (p *GeolocationGPSDProvider) Name() string {
	return p.name
}

func (p *GeolocationGPSDProvider) Precise() bool {
	return true
}

// Locate polls gpsd for a single fix. Fixes without at least 2D mode are rejected.
func (p *GeolocationGPSDProvider) Locate(ctx context.Context) (geolocation.Coordinate, error) {
	fix, err := p.locateFn(ctx)
	if err != nil {
		return geolocation.Coordinate{}, err
	}
	if !fix.Has2DFix() {
		return geolocation.Coordinate{}, ErrNoFix
	}
	return fix.Coordinate(), nil
}

// LookupStream keeps a gpsd watch session open and emits every TPV report that moved the position
// significantly. Lost connections are re-established after a delay.
func (p *GeolocationGPSDProvider) LookupStream(ctx context.Context) <-chan geolocation.Coordinate {
	out := make(chan geolocation.Coordinate)
	fixes := make(chan geolocation.Coordinate)

	go func() {
		defer close(out)
		state := geolocation.GeolocationState{}

		for {
			if ctx.Err() != nil {
				return
			}

			session, err := gpsd.Dial(p.addr)
			if err != nil {
				p.logger.Debug("failed to connect to gpsd", slog.String("address", p.addr), logger.Err(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.period):
					continue
				}
			}

			// Filters run on the session's reader goroutine, so they hand fixes over instead
			// of writing to out directly
			session.AddFilter("TPV", func(r interface{}) {
				tpv, ok := r.(*gpsd.TPVReport)
				if !ok || tpv.Mode < gpsd.Mode2D {
					return
				}
				fix := gpspoll.Fix{
					Lat:  tpv.Lat,
					Lon:  tpv.Lon,
					Alt:  tpv.Alt,
					Acc:  gpspoll.HorizontalAccuracy(0, tpv.Epx, tpv.Epy, int(tpv.Mode)),
					Mode: int(tpv.Mode),
				}
				select {
				case <-ctx.Done():
				case fixes <- fix.Coordinate():
				}
			})
			done := session.Watch()

		watch:
			for {
				select {
				case <-ctx.Done():
					return
				case <-done:
					break watch
				case coord := <-fixes:
					if !state.HasChanged(coord) {
						continue
					}
					state.Update(coord)
					select {
					case <-ctx.Done():
						return
					case out <- coord:
					}
				}
			}

			p.logger.Debug("gpsd watch session ended, reconnecting", slog.String("address", p.addr))
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.period):
			}
		}
	}()

	return out
}
