// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geolocation

import (
	"context"
	"time"
)

// LocateFunc performs a single coordinate lookup.
type LocateFunc func(ctx context.Context) (Coordinate, error)

// PollStream calls locate right away and then once per period, emitting every coordinate that
// differs significantly from the previously emitted one. Failed lookups are skipped. The
// returned channel is closed once ctx is done.
func PollStream(ctx context.Context, period time.Duration, locate LocateFunc) <-chan Coordinate {
	out := make(chan Coordinate)
	go func() {
		defer close(out)
		state := GeolocationState{}
		firstRun := true

		for {
			if !firstRun {
				select {
				case <-ctx.Done():
					return
				case <-time.After(period):
				}
			}
			firstRun = false

			coord, err := locate(ctx)
			if err != nil {
				continue
			}
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
	}()
	return out
}
