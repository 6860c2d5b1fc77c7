// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geolocation

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"
	"time"
)

func TestPollStream(t *testing.T) {
	t.Run("failed lookups are skipped", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			runCount := 0
			out := PollStream(ctx, time.Minute, func(context.Context) (Coordinate, error) {
				if runCount == 0 {
					runCount++
					return Coordinate{}, errors.New("intentionally failing")
				}
				return Coordinate{Lat: 1, Lon: 2, Acc: 3}, nil
			})

			start := time.Now()
			coord := <-out
			if coord.Lat != 1 || coord.Lon != 2 || coord.Acc != 3 {
				t.Errorf("expected coordinate 1,2 (3m), got %+v", coord)
			}
			if elapsed := time.Since(start); elapsed != time.Minute {
				t.Errorf("expected coordinate after one period, got %s", elapsed)
			}
		})
	})
	t.Run("unchanged coordinates are not emitted again", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			calls := 0
			coords := []Coordinate{
				{Lat: 52.52, Lon: 13.405, Acc: 20},
				{Lat: 52.52001, Lon: 13.405, Acc: 20},
				{Lat: 52.53, Lon: 13.405, Acc: 20},
			}
			out := PollStream(ctx, time.Second, func(context.Context) (Coordinate, error) {
				c := coords[min(calls, len(coords)-1)]
				calls++
				return c, nil
			})

			first := <-out
			second := <-out
			if first != coords[0] {
				t.Errorf("expected first coordinate to be %+v, got %+v", coords[0], first)
			}
			if second != coords[2] {
				t.Errorf("expected second coordinate to be %+v, got %+v", coords[2], second)
			}
		})
	})
	t.Run("stream is closed when the context is cancelled", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			out := PollStream(ctx, time.Second, func(context.Context) (Coordinate, error) {
				return Coordinate{}, errors.New("intentionally failing")
			})
			cancel()
			synctest.Wait()
			if _, ok := <-out; ok {
				t.Error("expected stream to be closed")
			}
		})
	})
}
