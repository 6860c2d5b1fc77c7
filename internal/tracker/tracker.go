// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package tracker keeps the current position and the nearest place up to date. It acquires the
// position through a Geolocator with an accuracy fallback, maintains a continuous watch, refreshes
// periodically and looks up the closest point of interest for every new position.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/wneessen/waybar-locshare/internal/geolocation"
	"github.com/wneessen/waybar-locshare/internal/job"
	"github.com/wneessen/waybar-locshare/internal/logger"
	"github.com/wneessen/waybar-locshare/internal/metrics"
	"github.com/wneessen/waybar-locshare/internal/places"
)

const (
	DefaultRefresh = time.Minute
	eventBuffer    = 16
)

// Geolocator provides one-shot position requests and continuous watches. Cancelling the watch
// context ends the watch.
type Geolocator interface {
	CurrentPosition(ctx context.Context, opts geolocation.Options) (geolocation.Position, error)
	WatchPosition(ctx context.Context, opts geolocation.Options) <-chan geolocation.Reading
}

// PlaceProvider hands out the place finder once it is ready to be used.
type PlaceProvider interface {
	Finder() (places.Finder, bool)
}

// Config holds the optional settings of a Tracker.
type Config struct {
	Modes    Modes
	Refresh  time.Duration
	Language language.Tag
	Metrics  *metrics.Metrics
	// OnChange is called from the tracker goroutine with every new snapshot
	OnChange func(State)
}

// Tracker owns the position state. All state changes happen in the goroutine running Run; other
// goroutines deliver their results as events.
type Tracker struct {
	geo      Geolocator
	places   PlaceProvider
	modes    Modes
	lang     language.Tag
	logger   *logger.Logger
	metrics  *metrics.Metrics
	onChange func(State)
	session  string

	refresh *job.Job
	events  chan event
	done    chan struct{}
	once    sync.Once

	mu    sync.RWMutex
	state State

	// watchers tracks the watch forwarders and the refresh job
	watchers sync.WaitGroup

	// only accessed from the Run goroutine
	watchGen  int
	lookupSeq int
}

type event interface{}

type (
	oneShotResult struct {
		mode AccuracyMode
		pos  geolocation.Position
		err  error
	}
	watchReading struct {
		gen     int
		mode    AccuracyMode
		reading geolocation.Reading
	}
	lookupResult struct {
		seq  int
		resp places.Response
		err  error
	}
	refreshTick  struct{}
	surfaceReady struct{}
)

// New returns a Tracker. geo may be nil if no geolocation capability is available, in which case
// the tracker settles in the unsupported state. places may be nil to disable place lookups.
func New(log *logger.Logger, geo Geolocator, places PlaceProvider, config Config) *Tracker {
	if config.Refresh <= 0 {
		config.Refresh = DefaultRefresh
	}
	if config.Modes == (Modes{}) {
		config.Modes = DefaultModes()
	}

	session := uuid.NewString()
	t := &Tracker{
		geo:      geo,
		places:   places,
		modes:    config.Modes,
		lang:     config.Language,
		logger:   log.With(slog.String("session", session)),
		metrics:  config.Metrics,
		onChange: config.OnChange,
		session:  session,
		events:   make(chan event, eventBuffer),
		done:     make(chan struct{}),
		state:    State{SessionID: session, Mode: ModeHigh, Loading: true},
	}
	t.refresh = job.New(config.Refresh, func(ctx context.Context) {
		t.send(ctx, refreshTick{})
	})
	return t
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Refresh requests an immediate one-shot acquisition, e.g. after resuming from sleep. The periodic
// refresh starts over afterwards.
func (t *Tracker) Refresh() {
	t.refresh.Trigger()
}

// SurfaceReady notifies the tracker that the place finder became available. If a position is
// known, the nearest place is looked up right away.
func (t *Tracker) SurfaceReady() {
	t.send(context.Background(), surfaceReady{})
}

// Run acquires and watches the position until ctx is cancelled. It must only be called once.
// When Run returns, the watch and the periodic refresh have been released and no further state
// changes happen.
func (t *Tracker) Run(ctx context.Context) error {
	defer t.watchers.Wait()
	defer t.once.Do(func() { close(t.done) })

	st := t.Snapshot()
	if t.geo == nil {
		st.Loading = false
		st.Unsupported = true
		st.Err = ErrUnsupported
		t.logger.Warn("no geolocation capability available")
		t.publish(st)
		return nil
	}

	t.logger.Info("starting position tracker", slog.String("mode", st.Mode.String()))
	t.publish(st)

	refreshCtx, cancelRefresh := context.WithCancel(ctx)
	defer cancelRefresh()
	t.watchers.Add(1)
	go func() {
		defer t.watchers.Done()
		t.refresh.Start(refreshCtx)
	}()

	cancelWatch := t.startWatch(ctx, st.Mode)
	defer func() { cancelWatch() }()
	t.acquire(ctx, st.Mode)

	for {
		select {
		case <-ctx.Done():
			t.logger.Debug("position tracker stopped")
			return nil
		case ev := <-t.events:
			// Events that raced with the cancellation must not touch the state anymore
			if ctx.Err() != nil {
				return nil
			}
			next, modeChanged := t.handle(ctx, st, ev)
			if modeChanged {
				cancelWatch()
				cancelWatch = t.startWatch(ctx, next.Mode)
			}
			st = next
			t.publish(st)
		}
	}
}

// handle applies a single event to st and returns the new state and whether the accuracy mode
// changed.
func (t *Tracker) handle(ctx context.Context, st State, ev event) (State, bool) {
	prevMode := st.Mode

	switch ev := ev.(type) {
	case oneShotResult:
		switch {
		case ev.err == nil:
			t.metrics.ObserveAcquisition("oneshot", ev.mode.String(), "success")
			st = t.applyPosition(ctx, st, ev.pos)
		case geolocation.IsTimeout(ev.err):
			t.metrics.ObserveAcquisition("oneshot", ev.mode.String(), "timeout")
			st = t.handleOneShotTimeout(ctx, st, ev.mode)
		case errors.Is(ev.err, context.Canceled):
		default:
			t.metrics.ObserveAcquisition("oneshot", ev.mode.String(), "error")
			t.logger.Error("failed to acquire position", logger.Err(ev.err))
			st.Loading = false
			st.Err = fmt.Errorf("failed to acquire position: %w", ev.err)
		}

	case watchReading:
		if ev.gen != t.watchGen {
			break
		}
		switch err := ev.reading.Err; {
		case err == nil:
			t.metrics.ObserveAcquisition("watch", ev.mode.String(), "success")
			st = t.applyPosition(ctx, st, ev.reading.Position)
		case geolocation.IsTimeout(err):
			t.metrics.ObserveAcquisition("watch", ev.mode.String(), "timeout")
			st.Loading = false
			if st.Mode == ModeHigh {
				st.Mode, _ = st.Mode.OnTimeout()
				st.Err = ErrHighAccuracyTimeout
				t.logger.Warn("position watch timed out in high accuracy mode")
				t.acquire(ctx, st.Mode)
				break
			}
			st.Err = ErrAcquisitionFailed
		default:
			t.metrics.ObserveAcquisition("watch", ev.mode.String(), "error")
			t.logger.Error("position watch failed", logger.Err(err))
			st.Loading = false
			st.Err = fmt.Errorf("failed to watch position: %w", err)
		}

	case lookupResult:
		if ev.seq != t.lookupSeq {
			break
		}
		if ev.err != nil {
			t.metrics.ObserveLookup("error")
			t.logger.Error("nearby place lookup failed", logger.Err(ev.err))
			st.Place.Reset()
			break
		}
		t.metrics.ObserveLookup(string(ev.resp.Status))
		place, ok := ev.resp.Nearest()
		if !ok {
			t.logger.Debug("no nearby place found", slog.String("status", string(ev.resp.Status)))
			st.Place.Reset()
			break
		}
		st.Place.Set(place)

	case refreshTick:
		t.acquire(ctx, st.Mode)

	case surfaceReady:
		if pos, ok := st.Position.Get(); ok {
			t.lookup(ctx, pos.Coordinate)
		}
	}

	if st.Mode != prevMode {
		t.metrics.ObserveModeSwitch()
		t.logger.Info("accuracy mode changed", slog.String("from", prevMode.String()),
			slog.String("to", st.Mode.String()))
		return st, true
	}
	return st, false
}

// handleOneShotTimeout implements the accuracy fallback for one-shot requests. The decision is
// based on the mode at delivery time. A timeout of a request that was issued in high accuracy mode
// after the tracker already fell back is ignored, since the fallback issued its own request.
func (t *Tracker) handleOneShotTimeout(ctx context.Context, st State, requested AccuracyMode) State {
	if st.Mode == ModeHigh {
		next, retry := st.Mode.OnTimeout()
		st.Mode = next
		t.logger.Warn("high accuracy position request timed out, retrying with low accuracy")
		if retry {
			t.acquire(ctx, next)
		}
		return st
	}
	if requested != st.Mode {
		return st
	}
	t.logger.Error("position request timed out", slog.String("mode", st.Mode.String()))
	st.Loading = false
	st.Err = ErrAcquisitionFailed
	return st
}

func (t *Tracker) applyPosition(ctx context.Context, st State, pos geolocation.Position) State {
	st.Position.Set(pos)
	st.LastUpdate = time.Now()
	st.Loading = false
	st.Err = nil
	t.metrics.SetAccuracy(pos.Acc)
	t.logger.Debug("position updated", slog.Any("position", pos))
	t.lookup(ctx, pos.Coordinate)
	return st
}

// acquire issues a one-shot request with the options of mode. Run does not wait for it, a
// result delivered after the tracker stopped is dropped.
func (t *Tracker) acquire(ctx context.Context, mode AccuracyMode) {
	opts := t.modes.For(mode)
	go func() {
		pos, err := t.geo.CurrentPosition(ctx, opts)
		t.send(ctx, oneShotResult{mode: mode, pos: pos, err: err})
	}()
}

// startWatch subscribes to position updates with the options of mode and returns the function
// that ends the subscription. Readings of earlier subscriptions are discarded.
func (t *Tracker) startWatch(ctx context.Context, mode AccuracyMode) context.CancelFunc {
	t.watchGen++
	gen := t.watchGen
	watchCtx, cancel := context.WithCancel(ctx)
	readings := t.geo.WatchPosition(watchCtx, t.modes.For(mode))

	t.watchers.Add(1)
	go func() {
		defer t.watchers.Done()
		for {
			select {
			case <-watchCtx.Done():
				return
			case reading, ok := <-readings:
				if !ok {
					return
				}
				t.send(watchCtx, watchReading{gen: gen, mode: mode, reading: reading})
			}
		}
	}()
	return cancel
}

// lookup searches the place closest to coord. It is a no-op while no finder is available.
func (t *Tracker) lookup(ctx context.Context, coord geolocation.Coordinate) {
	if t.places == nil {
		return
	}
	finder, ok := t.places.Finder()
	if !ok {
		return
	}

	t.lookupSeq++
	seq := t.lookupSeq
	req := places.NearbyRequest(coord, t.lang)
	go func() {
		resp, err := finder.NearbySearch(ctx, req)
		t.send(ctx, lookupResult{seq: seq, resp: resp, err: err})
	}()
}

// send delivers ev to the Run goroutine. The event is dropped if the tracker has been stopped.
func (t *Tracker) send(ctx context.Context, ev event) {
	select {
	case t.events <- ev:
	case <-t.done:
	case <-ctx.Done():
	}
}

func (t *Tracker) publish(st State) {
	t.mu.Lock()
	t.state = st
	t.mu.Unlock()
	if t.onChange != nil {
		t.onChange(st)
	}
}
