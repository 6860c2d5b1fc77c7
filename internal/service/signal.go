// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

type signalSource interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

// stdLibSignalSource is the production implementation.
type stdLibSignalSource struct{}

func (stdLibSignalSource) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

func (stdLibSignalSource) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}

// HandleSignals handles the user signals sent by waybar. SIGUSR1 opens or closes the popup for
// the nearest place, SIGUSR2 logs the current location state.
func (s *Service) HandleSignals(ctx context.Context, sigChan chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGUSR1:
				open := s.selection.Toggle(s.tracker.Snapshot().Place)
				s.logger.Debug("place popup toggled", slog.Bool("open", open))
				s.printOutput(ctx)
			case syscall.SIGUSR2:
				s.logState(s.tracker.Snapshot())
			}
		}
	}
}
