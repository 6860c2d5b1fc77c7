// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package metrics exposes acquisition and lookup counters in the Prometheus text format. All
// methods are safe to call on a nil *Metrics, which disables collection.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wneessen/waybar-locshare/internal/logger"
)

const (
	namespace       = "waybar_locshare"
	shutdownTimeout = time.Second * 5
)

type Metrics struct {
	registry     *prometheus.Registry
	acquisitions *prometheus.CounterVec
	modeSwitches prometheus.Counter
	lookups      *prometheus.CounterVec
	accuracy     prometheus.Gauge
}

// New returns Metrics registered with a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		acquisitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "acquisitions_total",
				Help:      "Total number of position acquisitions by kind, accuracy mode and result",
			},
			[]string{"kind", "mode", "result"},
		),
		modeSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accuracy_mode_switches_total",
			Help:      "Total number of switches from high to low accuracy mode",
		}),
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "place_lookups_total",
				Help:      "Total number of nearby place lookups by status",
			},
			[]string{"status"},
		),
		accuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "position_accuracy_meters",
			Help:      "Accuracy radius of the last acquired position",
		}),
	}
	m.registry.MustRegister(m.acquisitions, m.modeSwitches, m.lookups, m.accuracy)
	return m
}

// ObserveAcquisition counts a one-shot or watch delivery.
func (m *Metrics) ObserveAcquisition(kind, mode, result string) {
	if m == nil {
		return
	}
	m.acquisitions.WithLabelValues(kind, mode, result).Inc()
}

func (m *Metrics) ObserveModeSwitch() {
	if m == nil {
		return
	}
	m.modeSwitches.Inc()
}

// ObserveLookup counts a place lookup. Transport failures are reported with status "error".
func (m *Metrics) ObserveLookup(status string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(status).Inc()
}

func (m *Metrics) SetAccuracy(meters float64) {
	if m == nil {
		return
	}
	m.accuracy.Set(meters)
}

// Handler returns the HTTP handler serving the metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes the metrics on addr under /metrics until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, log *logger.Logger) error {
	if m == nil {
		return errors.New("metrics are disabled")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: time.Second * 5,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("serving metrics", slog.String("address", addr))
		errChan <- server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down metrics server: %w", err)
		}
		return nil
	}
}
