// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geolocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wneessen/waybar-locshare/internal/logger"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

var ErrNoSources = errors.New("no geolocation sources available")

// Source defines an interface for geolocation sources such as GNSS receivers or network based
// lookup services.
type Source interface {
	Name() string
	// Precise reports whether the source is able to deliver high accuracy positions
	Precise() bool
	// Locate performs a single position lookup
	Locate(ctx context.Context) (Coordinate, error)
	// LookupStream emits coordinates whenever the source detects a significant change. The
	// channel is closed when ctx is done or the source gives up.
	LookupStream(ctx context.Context) <-chan Coordinate
}

// Locator combines a set of sources into a single geolocation facility offering one-shot
// requests and continuous watches.
type Locator struct {
	logger  *logger.Logger
	sources []Source

	mu       sync.RWMutex
	last     Position
	haveLast bool
}

// NewLocator returns a Locator for the given sources. At least one source is required.
func NewLocator(log *logger.Logger, sources ...Source) (*Locator, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	return &Locator{
		logger:  log,
		sources: sources,
	}, nil
}

// Sources returns the names of all configured sources.
func (l *Locator) Sources() []string {
	names := make([]string, 0, len(l.sources))
	for _, s := range l.sources {
		names = append(names, s.Name())
	}
	return names
}

// CurrentPosition performs a one-shot position request. All sources matching the accuracy
// preference are queried concurrently and the first successful coordinate wins. Failing sources
// are retried with backoff until the request times out. If a cached position is younger than
// opts.MaximumAge it is returned right away.
func (l *Locator) CurrentPosition(ctx context.Context, opts Options) (Position, error) {
	if pos, ok := l.cached(opts.MaximumAge); ok {
		return pos, nil
	}

	reqCtx, cancel := withOptionalTimeout(ctx, opts.Timeout)
	defer cancel()

	sources := l.sourcesFor(opts.EnableHighAccuracy)
	results := make(chan Position, len(sources))
	failures := make(chan error, len(sources))
	for _, s := range sources {
		go l.locateWithRetry(reqCtx, s, results, failures)
	}

	var firstErr error
	failed := 0
	for {
		select {
		case pos := <-results:
			l.store(pos)
			return pos, nil
		case err := <-failures:
			if firstErr == nil {
				firstErr = err
			}
			if failed++; failed == len(sources) {
				return Position{}, firstErr
			}
		case <-reqCtx.Done():
			if ctx.Err() != nil {
				return Position{}, ctx.Err()
			}
			return Position{}, &PositionError{
				Code:    Timeout,
				Message: fmt.Sprintf("no position acquired within %s", opts.Timeout),
			}
		}
	}
}

// WatchPosition continuously delivers positions from all sources matching the accuracy
// preference. opts.Timeout bounds the acquisition of the first position only: if nothing
// arrives within that time, a single timeout Reading is delivered and the watch keeps waiting.
// Sources emit on significant movement, so silence after the first position means the device
// did not move. The watch ends and the channel is closed when ctx is cancelled.
func (l *Locator) WatchPosition(ctx context.Context, opts Options) <-chan Reading {
	out := make(chan Reading)
	merged := make(chan Position)
	sources := l.sourcesFor(opts.EnableHighAccuracy)

	var wg sync.WaitGroup
	for _, s := range sources {
		wg.Add(1)
		go func(s Source) {
			defer wg.Done()
			l.trackSource(ctx, s, merged)
		}(s)
	}

	go func() {
		defer close(out)
		defer wg.Wait()

		var timeout <-chan time.Time
		pos, fresh := l.cached(opts.MaximumAge)
		if fresh {
			if !send(ctx, out, Reading{Position: pos}) {
				return
			}
		} else if opts.Timeout > 0 {
			timer := time.NewTimer(opts.Timeout)
			defer timer.Stop()
			timeout = timer.C
		}

		for {
			select {
			case <-ctx.Done():
				return
			case pos := <-merged:
				l.store(pos)
				timeout = nil
				if !send(ctx, out, Reading{Position: pos}) {
					return
				}
			case <-timeout:
				timeout = nil
				err := &PositionError{
					Code:    Timeout,
					Message: fmt.Sprintf("no position acquired within %s", opts.Timeout),
				}
				if !send(ctx, out, Reading{Err: err}) {
					return
				}
			}
		}
	}()

	return out
}

// sourcesFor selects the sources that match the accuracy preference. If no source matches,
// all sources are used.
func (l *Locator) sourcesFor(highAccuracy bool) []Source {
	var selected []Source
	for _, s := range l.sources {
		if s.Precise() == highAccuracy {
			selected = append(selected, s)
		}
	}
	if len(selected) == 0 {
		return l.sources
	}
	return selected
}

// locateWithRetry calls Locate on the source until it succeeds, fails permanently or ctx is done.
func (l *Locator) locateWithRetry(ctx context.Context, s Source, results chan<- Position, failures chan<- error) {
	backoff := initialBackoff
	for {
		coord, err := l.safeLocate(ctx, s)
		if err == nil {
			results <- Position{Coordinate: coord, Timestamp: time.Now(), Source: s.Name()}
			return
		}

		var perr *PositionError
		if errors.As(err, &perr) {
			failures <- err
			return
		}
		l.logger.Debug("geolocation source lookup failed, retrying", slog.String("source", s.Name()),
			logger.Err(err))
		if !sleepOrDone(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

// trackSource continuously tracks a Source, forwarding positions to out and implementing backoff
// whenever the source stream ends.
func (l *Locator) trackSource(ctx context.Context, s Source, out chan<- Position) {
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		stream := l.safeLookup(ctx, s)
		if stream == nil {
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

	receive:
		for {
			select {
			case <-ctx.Done():
				return
			case coord, ok := <-stream:
				if !ok {
					break receive
				}
				pos := Position{Coordinate: coord, Timestamp: time.Now(), Source: s.Name()}
				select {
				case <-ctx.Done():
					return
				case out <- pos:
				}
				backoff = initialBackoff
			}
		}

		if !sleepOrDone(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

// safeLocate invokes Locate on a Source and recovers from potential panics.
func (l *Locator) safeLocate(ctx context.Context, s Source) (coord Coordinate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("geolocation source %s panicked: %v", s.Name(), r)
		}
	}()
	return s.Locate(ctx)
}

// safeLookup invokes LookupStream on a Source and recovers from potential panics.
// Returns nil if the operation fails.
func (l *Locator) safeLookup(ctx context.Context, s Source) (ch <-chan Coordinate) {
	defer func() { _ = recover() }()
	return s.LookupStream(ctx)
}

func (l *Locator) cached(maxAge time.Duration) (Position, bool) {
	if maxAge <= 0 {
		return Position{}, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.haveLast || time.Since(l.last.Timestamp) > maxAge {
		return Position{}, false
	}
	return l.last, true
}

func (l *Locator) store(pos Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.haveLast && pos.Timestamp.Before(l.last.Timestamp) {
		return
	}
	l.last = pos
	l.haveLast = true
}

func send(ctx context.Context, out chan<- Reading, r Reading) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- r:
		return true
	}
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d *= 2; d > maxBackoff {
		return maxBackoff
	}
	return d
}
