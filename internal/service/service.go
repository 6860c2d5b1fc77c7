// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/vorlif/spreak"

	"github.com/wneessen/waybar-locshare/internal/config"
	"github.com/wneessen/waybar-locshare/internal/geolocation"
	"github.com/wneessen/waybar-locshare/internal/http"
	"github.com/wneessen/waybar-locshare/internal/logger"
	"github.com/wneessen/waybar-locshare/internal/maps"
	"github.com/wneessen/waybar-locshare/internal/metrics"
	"github.com/wneessen/waybar-locshare/internal/presenter"
	"github.com/wneessen/waybar-locshare/internal/tracker"
)

// requestSpacing is the minimum delay between two requests to the same API host
const requestSpacing = time.Second

type Service struct {
	config    *config.Config
	logger    *logger.Logger
	presenter *presenter.Presenter
	scheduler gocron.Scheduler
	t         *spreak.Localizer

	metrics   *metrics.Metrics
	selection *presenter.Selection
	surface   *maps.Surface
	tracker   *tracker.Tracker

	outputLock sync.Mutex
	output     io.Writer
	SignalSrc  signalSource

	resumeLock sync.Mutex
	lastResume time.Time
}

func New(conf *config.Config, log *logger.Logger, t *spreak.Localizer) (*Service, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	pres, err := presenter.New(conf, t, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create presenter: %w", err)
	}

	service := &Service{
		config:    conf,
		logger:    log,
		presenter: pres,
		scheduler: scheduler,
		t:         t,
		selection: new(presenter.Selection),
		output:    os.Stdout,
		SignalSrc: stdLibSignalSource{},
	}
	if conf.Metrics.Listen != "" {
		service.metrics = metrics.New()
	}

	httpClient := http.New(log, http.WithMinInterval(requestSpacing))
	finder, err := service.selectPlaceFinder(httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create place finder: %w", err)
	}
	service.surface = maps.NewSurface(log, finder, maps.Config{
		Provider:    conf.Maps.Provider,
		APIKey:      conf.Maps.APIKey,
		RequiresKey: conf.RequiresAPIKey(),
		Zoom:        conf.Maps.Zoom,
	})

	sources, err := service.selectGeolocationSources(httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to select geolocation sources: %w", err)
	}
	service.tracker = tracker.New(log, service.selectGeolocator(sources), service.surface, tracker.Config{
		Modes:    service.accuracyModes(),
		Refresh:  conf.Intervals.Refresh,
		Language: t.Language(),
		Metrics:  service.metrics,
		OnChange: func(tracker.State) { service.printOutput(context.Background()) },
	})
	service.surface.Subscribe(func(state maps.State) {
		if state == maps.StateReady {
			service.tracker.SurfaceReady()
		}
		service.printOutput(context.Background())
	})

	return service, nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.createScheduledJob(ctx, s.config.Intervals.Output, s.printOutput,
		"locshare_output_job"); err != nil {
		return err
	}
	s.scheduler.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.tracker.Run(ctx); err != nil {
			s.logger.Error("position tracker failed", logger.Err(err))
		}
	}()

	// A failed surface is reported through the map error view
	if err := s.surface.Load(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("map surface could not be loaded", logger.Err(err))
	}

	if s.metrics != nil {
		go func() {
			if err := s.metrics.Serve(ctx, s.config.Metrics.Listen, s.logger); err != nil {
				s.logger.Error("failed to serve metrics", logger.Err(err))
			}
		}()
	}

	go s.monitorSleepResume(ctx)

	sigChan := make(chan os.Signal, 1)
	s.SignalSrc.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		defer s.SignalSrc.Stop(sigChan)
		s.HandleSignals(ctx, sigChan)
	}()

	<-ctx.Done()
	wg.Wait()
	return s.scheduler.Shutdown()
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	return nil
}

// printOutput renders the current state and writes it as a single JSON line for waybar.
// The state is read while holding the output lock, so the last line written always reflects the
// latest tracker and surface state.
func (s *Service) printOutput(context.Context) {
	s.outputLock.Lock()
	defer s.outputLock.Unlock()

	tplCtx := s.presenter.BuildContext(s.surface, s.tracker.Snapshot(), s.selection, time.Now())
	output := s.presenter.Render(tplCtx)
	if err := json.NewEncoder(s.output).Encode(output); err != nil {
		s.logger.Error("failed to encode location data", logger.Err(err))
	}
}

func (s *Service) accuracyModes() tracker.Modes {
	return tracker.Modes{
		High: geolocation.Options{
			EnableHighAccuracy: true,
			Timeout:            s.config.Accuracy.High.Timeout,
			MaximumAge:         s.config.Accuracy.High.MaximumAge,
		},
		Low: geolocation.Options{
			Timeout:    s.config.Accuracy.Low.Timeout,
			MaximumAge: s.config.Accuracy.Low.MaximumAge,
		},
	}
}

func (s *Service) logState(st tracker.State) {
	attrs := []any{
		slog.String("session", st.SessionID),
		slog.String("mode", st.Mode.String()),
		slog.Bool("loading", st.Loading),
		slog.Any("position", st.Position),
		slog.Any("place", st.Place),
	}
	if st.Err != nil {
		attrs = append(attrs, logger.Err(st.Err))
	}
	s.logger.Info("current location state", attrs...)
}
