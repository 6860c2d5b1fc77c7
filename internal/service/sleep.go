// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/waybar-locshare/internal/logger"
)

const (
	login1Path      = "/org/freedesktop/login1"
	login1Interface = "org.freedesktop.login1.Manager"
	sleepMember     = "PrepareForSleep"

	debounceWindow   = time.Second * 2
	signalBufferSize = 8

	busReconnectDelay   = time.Second * 5
	networkWakeupDelay  = time.Second * 10
	reconnectDelay      = time.Second * 2
	subscribeRetryDelay = time.Second * 10
)

// monitorSleepResume listens for logind's PrepareForSleep signal and refreshes the position after
// every resume. Lost bus connections are re-established until ctx is cancelled.
func (s *Service) monitorSleepResume(ctx context.Context) {
	for {
		conn := s.connectToSystemBus(ctx)
		if conn == nil {
			return
		}

		signals, err := s.subscribeSleepSignal(conn)
		if err != nil {
			s.logger.Error("failed to subscribe to dbus signal", slog.String("interface", login1Interface),
				slog.String("member", sleepMember), logger.Err(err))
			s.closeBus(conn)
			if !sleepOrDone(ctx, subscribeRetryDelay) {
				return
			}
			continue
		}

		s.handleSleepSignals(ctx, signals)
		conn.RemoveSignal(signals)
		s.closeBus(conn)
		if !sleepOrDone(ctx, reconnectDelay) {
			return
		}
	}
}

// connectToSystemBus connects to the system bus, retrying until it succeeds. It returns nil once
// ctx is cancelled. The connection is closed together with ctx.
func (s *Service) connectToSystemBus(ctx context.Context) *dbus.Conn {
	for {
		conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
		if err == nil {
			return conn
		}
		s.logger.Debug("failed to connect to system bus", logger.Err(err))
		if !sleepOrDone(ctx, busReconnectDelay) {
			return nil
		}
	}
}

func (s *Service) subscribeSleepSignal(conn *dbus.Conn) (chan *dbus.Signal, error) {
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(login1Path),
		dbus.WithMatchInterface(login1Interface),
		dbus.WithMatchMember(sleepMember),
	); err != nil {
		return nil, err
	}
	signals := make(chan *dbus.Signal, signalBufferSize)
	conn.Signal(signals)
	s.logger.Debug("subscribed to dbus signal", slog.String("interface", login1Interface),
		slog.String("member", sleepMember))
	return signals, nil
}

// handleSleepSignals returns when ctx is done or the bus closed the signal channel.
func (s *Service) handleSleepSignals(ctx context.Context, signals <-chan *dbus.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			s.processSleepSignal(ctx, sig)
		}
	}
}

// processSleepSignal handles a PrepareForSleep signal. Its only argument is true before the
// system suspends and false after it resumed.
func (s *Service) processSleepSignal(ctx context.Context, sig *dbus.Signal) {
	if len(sig.Body) != 1 {
		return
	}
	sleeping, ok := sig.Body[0].(bool)
	if !ok {
		return
	}
	if sleeping {
		s.logger.Debug("system is going to sleep")
		return
	}
	s.handleResume(ctx)
}

// handleResume waits for the network to come back and requests a fresh position. Resume events
// within debounceWindow of the previous one are dropped.
func (s *Service) handleResume(ctx context.Context) {
	s.resumeLock.Lock()
	now := time.Now()
	if now.Sub(s.lastResume) < debounceWindow {
		s.resumeLock.Unlock()
		return
	}
	s.lastResume = now
	s.resumeLock.Unlock()

	if !sleepOrDone(ctx, networkWakeupDelay) {
		return
	}
	s.logger.Debug("resumed from sleep, refreshing position")
	s.tracker.Refresh()
}

func (s *Service) closeBus(conn *dbus.Conn) {
	if err := conn.Close(); err != nil {
		s.logger.Error("failed to close system bus connection", logger.Err(err))
	}
}

// sleepOrDone waits for d and reports false if ctx was cancelled first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
