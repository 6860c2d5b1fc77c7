// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"testing/synctest"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/waybar-locshare/internal/config"
	"github.com/wneessen/waybar-locshare/internal/http"
	"github.com/wneessen/waybar-locshare/internal/i18n"
	"github.com/wneessen/waybar-locshare/internal/logger"
	"github.com/wneessen/waybar-locshare/internal/places"
	"github.com/wneessen/waybar-locshare/internal/presenter"
)

func TestNew(t *testing.T) {
	t.Run("new service succeeds", func(t *testing.T) {
		_, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
	})
	t.Run("initializing service with different maps providers", func(t *testing.T) {
		tests := []struct {
			name     string
			env      []string
			wantName string
			wantNil  bool
		}{
			{
				"osm-nominatim",
				[]string{"WAYBARLOCSHARE_MAPS_PROVIDER=nominatim"},
				"osm-nominatim",
				false,
			},
			{
				"overpass",
				[]string{"WAYBARLOCSHARE_MAPS_PROVIDER=overpass"},
				"overpass",
				false,
			},
			{
				"google without api-key",
				[]string{"WAYBARLOCSHARE_MAPS_PROVIDER=google"},
				"",
				true,
			},
			{
				"google with api-key",
				[]string{
					"WAYBARLOCSHARE_MAPS_PROVIDER=google",
					"WAYBARLOCSHARE_MAPS_APIKEY=abc",
				},
				"google",
				false,
			},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				for _, envVars := range tc.env {
					vals := strings.Split(envVars, "=")
					if len(vals) != 2 {
						t.Fatalf("invalid env var %q", envVars)
					}
					t.Setenv(vals[0], vals[1])
				}
				serv, err := testService(t, false)
				if err != nil {
					t.Fatalf("failed to create service: %s", err)
				}
				finder, err := serv.selectPlaceFinder(http.New(serv.logger))
				if err != nil {
					t.Fatalf("failed to select place finder: %s", err)
				}
				if tc.wantNil {
					if finder != nil {
						t.Errorf("expected finder to be nil, got %q", finder.Name())
					}
					return
				}
				if finder == nil {
					t.Fatal("expected finder to be non-nil")
				}
				name := fmt.Sprintf("places cache using %s", tc.wantName)
				if finder.Name() != name {
					t.Errorf("expected finder name to be %q, got %q", name, finder.Name())
				}
			})
		}
	})
	t.Run("unsupported maps provider fails", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		serv.config.Maps.Provider = "invalid"
		_, err = serv.selectPlaceFinder(http.New(serv.logger))
		if err == nil {
			t.Fatal("expected place finder selection to fail")
		}
		wantErr := "unsupported maps provider: invalid"
		if !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %q", wantErr, err)
		}
	})
	t.Run("invalid template configuration should fail", func(t *testing.T) {
		t.Setenv("WAYBARLOCSHARE_TEMPLATES_TEXT", "{{")
		_, err := testService(t, false)
		if err == nil {
			t.Fatal("expected service creation to fail")
		}
		wantErr := "failed to parse success template"
		if !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %q", wantErr, err)
		}
	})
	t.Run("nil logger fails", func(t *testing.T) {
		_, err := testService(t, true)
		if err == nil {
			t.Fatal("expected service creation to fail")
		}
		wantErr := "logger is required"
		if !strings.Contains(err.Error(), wantErr) {
			t.Errorf("expected error to contain %q, got %q", wantErr, err)
		}
	})
	t.Run("metrics are only enabled with a listen address", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		if serv.metrics != nil {
			t.Error("expected metrics to be disabled")
		}
		t.Setenv("WAYBARLOCSHARE_METRICS_LISTEN", "127.0.0.1:0")
		serv, err = testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		if serv.metrics == nil {
			t.Error("expected metrics to be enabled")
		}
	})
}

func TestService_Run(t *testing.T) {
	t.Run("start the service and gracefully shut it down", func(t *testing.T) {
		disableGeolocation(t)
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			afterFuncCalled := false
			context.AfterFunc(ctx, func() {
				afterFuncCalled = true
			})

			serv, err := testService(t, false)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
			serv.output = buf

			errChan := make(chan error, 1)
			go func() {
				errChan <- serv.Run(ctx)
			}()

			synctest.Wait()
			output := lastOutput(t, buf.String())
			if output.Class != presenter.ViewPositionError.String() {
				t.Errorf("expected class to be %q, got %q", presenter.ViewPositionError, output.Class)
			}
			wantText := "Geolocation is not supported on this system"
			if !strings.Contains(output.Text, wantText) {
				t.Errorf("expected text to contain %q, got %q", wantText, output.Text)
			}

			cancel()
			synctest.Wait()
			if !afterFuncCalled {
				t.Fatalf("before context is canceled: AfterFunc not called")
			}
			if err = <-errChan; err != nil {
				t.Errorf("failed to run service: %s", err)
			}
		})
	})
	t.Run("map error is shown for a google provider without api-key", func(t *testing.T) {
		disableGeolocation(t)
		t.Setenv("WAYBARLOCSHARE_GEOLOCATION_DISABLE_GEOLOCATION_FILE", "false")
		t.Setenv("WAYBARLOCSHARE_GEOLOCATION_FILE", "../../testdata/geolocation")
		t.Setenv("WAYBARLOCSHARE_MAPS_PROVIDER", "google")
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			serv, err := testService(t, false)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
			serv.output = buf
			go func() {
				_ = serv.Run(ctx)
			}()

			synctest.Wait()
			output := lastOutput(t, buf.String())
			if output.Class != presenter.ViewMapError.String() {
				t.Errorf("expected class to be %q, got %q", presenter.ViewMapError, output.Class)
			}
			wantText := "The maps provider requires an API key"
			if !strings.Contains(output.Text, wantText) {
				t.Errorf("expected text to contain %q, got %q", wantText, output.Text)
			}
			cancel()
			synctest.Wait()
		})
	})
	t.Run("unsupported geolocation is not hidden by a failed map", func(t *testing.T) {
		disableGeolocation(t)
		t.Setenv("WAYBARLOCSHARE_MAPS_PROVIDER", "google")
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			serv, err := testService(t, false)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
			serv.output = buf
			go func() {
				_ = serv.Run(ctx)
			}()

			synctest.Wait()
			output := lastOutput(t, buf.String())
			if output.Class != presenter.ViewPositionError.String() {
				t.Errorf("expected class to be %q, got %q", presenter.ViewPositionError, output.Class)
			}
			cancel()
			synctest.Wait()
		})
	})
	t.Run("output is printed periodically", func(t *testing.T) {
		disableGeolocation(t)
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			serv, err := testService(t, false)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
			serv.output = buf
			go func() {
				_ = serv.Run(ctx)
			}()

			synctest.Wait()
			before := strings.Count(buf.String(), "\n")
			time.Sleep(serv.config.Intervals.Output + time.Second)
			synctest.Wait()
			after := strings.Count(buf.String(), "\n")
			if after <= before {
				t.Errorf("expected output to be printed again, got %d lines before and %d after", before, after)
			}
			cancel()
			synctest.Wait()
		})
	})
}

func TestService_printOutput(t *testing.T) {
	t.Run("print output to a buffer", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := bytes.NewBuffer(nil)
		serv.output = buf
		serv.printOutput(t.Context())

		var output presenter.Output
		if err = json.Unmarshal(buf.Bytes(), &output); err != nil {
			t.Fatalf("failed to unmarshal JSON: %s", err)
		}
		if output.Class != presenter.ViewAcquiring.String() {
			t.Errorf("expected class to be %q, got %q", presenter.ViewAcquiring, output.Class)
		}
		if output.Text == "" {
			t.Error("expected text to be set")
		}
		if output.Tooltip != output.Text {
			t.Errorf("expected tooltip to be %q, got %q", output.Text, output.Tooltip)
		}
	})
	t.Run("output is a single line per print", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := bytes.NewBuffer(nil)
		serv.output = buf
		serv.printOutput(t.Context())
		serv.printOutput(t.Context())
		if lines := strings.Count(buf.String(), "\n"); lines != 2 {
			t.Errorf("expected 2 lines of output, got %d", lines)
		}
	})
	t.Run("failing writer is logged", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		logBuf := bytes.NewBuffer(nil)
		serv.logger = logger.NewLogger(slog.LevelError, logBuf)
		serv.output = &failWriter{}
		serv.printOutput(t.Context())
		wantErr := `msg="failed to encode location data" error="failed to write"`
		if !strings.Contains(logBuf.String(), wantErr) {
			t.Errorf("expected log to contain %q, got %q", wantErr, logBuf.String())
		}
	})
}

func TestService_selectGeolocationSources(t *testing.T) {
	tests := []struct {
		name   string
		confFn func(*config.Config)
		want   []string
	}{
		{
			name: "only geolocation file",
			confFn: func(c *config.Config) {
				c.GeoLocation.DisableGeoIP = true
				c.GeoLocation.DisableGeolocationFile = false
				c.GeoLocation.DisableGPSD = true
				c.GeoLocation.DisableICHNAEA = true
			},
			want: []string{"geolocation_file"},
		},
		{
			name: "only gpsd",
			confFn: func(c *config.Config) {
				c.GeoLocation.DisableGeoIP = true
				c.GeoLocation.DisableGeolocationFile = true
				c.GeoLocation.DisableGPSD = false
				c.GeoLocation.DisableICHNAEA = true
			},
			want: []string{"gpsd"},
		},
		{
			name: "only geo ip",
			confFn: func(c *config.Config) {
				c.GeoLocation.DisableGeoIP = false
				c.GeoLocation.DisableGeolocationFile = true
				c.GeoLocation.DisableGPSD = true
				c.GeoLocation.DisableICHNAEA = true
			},
			want: []string{"geoip"},
		},
		{
			name: "file and gpsd",
			confFn: func(c *config.Config) {
				c.GeoLocation.DisableGeoIP = true
				c.GeoLocation.DisableGeolocationFile = false
				c.GeoLocation.DisableGPSD = false
				c.GeoLocation.DisableICHNAEA = true
			},
			want: []string{"geolocation_file", "gpsd"},
		},
		{
			name: "no source",
			confFn: func(c *config.Config) {
				c.GeoLocation.DisableGeoIP = true
				c.GeoLocation.DisableGeolocationFile = true
				c.GeoLocation.DisableGPSD = true
				c.GeoLocation.DisableICHNAEA = true
			},
			want: nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			serv, err := testService(t, false)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			tc.confFn(serv.config)
			sources, err := serv.selectGeolocationSources(http.New(serv.logger))
			if err != nil {
				t.Fatalf("failed to select geolocation sources: %s", err)
			}
			if len(sources) != len(tc.want) {
				t.Fatalf("expected %d sources, got %d", len(tc.want), len(sources))
			}
			for i, source := range sources {
				if source.Name() != tc.want[i] {
					t.Errorf("expected source %d to be %q, got %q", i, tc.want[i], source.Name())
				}
			}

			geo := serv.selectGeolocator(sources)
			if len(tc.want) == 0 && geo != nil {
				t.Error("expected geolocator to be nil without sources")
			}
			if len(tc.want) > 0 && geo == nil {
				t.Error("expected geolocator to be non-nil")
			}
		})
	}
}

func TestService_accuracyModes(t *testing.T) {
	serv, err := testService(t, false)
	if err != nil {
		t.Fatalf("failed to create service: %s", err)
	}
	serv.config.Accuracy.High.Timeout = time.Second * 3
	serv.config.Accuracy.Low.Timeout = time.Second * 7
	serv.config.Accuracy.Low.MaximumAge = time.Minute * 2

	modes := serv.accuracyModes()
	if !modes.High.EnableHighAccuracy {
		t.Error("expected high accuracy mode to enable high accuracy")
	}
	if modes.Low.EnableHighAccuracy {
		t.Error("expected low accuracy mode to disable high accuracy")
	}
	if modes.High.Timeout != time.Second*3 {
		t.Errorf("expected high accuracy timeout to be %s, got %s", time.Second*3, modes.High.Timeout)
	}
	if modes.Low.Timeout != time.Second*7 {
		t.Errorf("expected low accuracy timeout to be %s, got %s", time.Second*7, modes.Low.Timeout)
	}
	if modes.Low.MaximumAge != time.Minute*2 {
		t.Errorf("expected low accuracy maximum age to be %s, got %s", time.Minute*2, modes.Low.MaximumAge)
	}
}

func TestService_HandleSignals(t *testing.T) {
	t.Run("USR1 signal closes an open popup", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
		serv.output = buf
		serv.selection.Select(places.Place{Name: "Tokyo Tower"})

		sigChan := make(chan os.Signal, 1)
		serv.SignalSrc.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
		go func() {
			defer serv.SignalSrc.Stop(sigChan)
			serv.HandleSignals(ctx, sigChan)
		}()

		sigChan <- syscall.SIGUSR1
		time.Sleep(time.Millisecond * 100)
		if _, ok := serv.selection.Current(); ok {
			t.Error("expected popup to be closed")
		}
		if buf.String() == "" {
			t.Error("expected output to be printed after the toggle")
		}
		cancel()
	})
	t.Run("USR1 signal without a nearby place keeps the popup closed", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		serv.output = io.Discard

		sigChan := make(chan os.Signal, 1)
		go serv.HandleSignals(ctx, sigChan)

		sigChan <- syscall.SIGUSR1
		time.Sleep(time.Millisecond * 100)
		if _, ok := serv.selection.Current(); ok {
			t.Error("expected popup to be closed")
		}
		cancel()
	})
	t.Run("USR2 signal is handled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		buf := &syncBuffer{buf: bytes.NewBuffer(nil)}
		serv.logger = logger.NewLogger(slog.LevelInfo, buf)
		sigChan := make(chan os.Signal, 1)
		serv.SignalSrc.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
		go func() {
			defer serv.SignalSrc.Stop(sigChan)
			serv.HandleSignals(ctx, sigChan)
		}()

		sigChan <- syscall.SIGUSR2
		time.Sleep(time.Millisecond * 100)
		wantLog := fmt.Sprintf(`msg="current location state" session=%s mode=high loading=true `+
			`position="not available" place="not available"`, serv.tracker.Snapshot().SessionID)
		if !strings.Contains(buf.String(), wantLog) {
			t.Errorf("expected log to contain %q, got %q", wantLog, buf.String())
		}
		cancel()
		time.Sleep(time.Millisecond * 100)
	})
}

func TestService_processSleepSignal(t *testing.T) {
	tests := []struct {
		name       string
		body       []any
		wantResume bool
	}{
		{"resume", []any{false}, true},
		{"going to sleep", []any{true}, false},
		{"invalid body type", []any{"false"}, false},
		{"empty body", nil, false},
		{"too many values", []any{false, false}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			serv, err := testService(t, false)
			if err != nil {
				t.Fatalf("failed to create service: %s", err)
			}
			synctest.Test(t, func(t *testing.T) {
				serv.processSleepSignal(t.Context(), &dbus.Signal{Body: tc.body})
				if tc.wantResume && serv.lastResume.IsZero() {
					t.Error("expected resume to be recorded")
				}
				if !tc.wantResume && !serv.lastResume.IsZero() {
					t.Errorf("expected no resume to be recorded, got %s", serv.lastResume)
				}
			})
		})
	}
	t.Run("consecutive resume events are debounced", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		synctest.Test(t, func(t *testing.T) {
			start := time.Now()
			serv.lastResume = start
			serv.handleResume(t.Context())
			if !serv.lastResume.Equal(start) {
				t.Errorf("expected resume timestamp to be unchanged, got %s", serv.lastResume)
			}

			time.Sleep(debounceWindow)
			serv.handleResume(t.Context())
			if !serv.lastResume.Equal(start.Add(debounceWindow)) {
				t.Errorf("expected resume timestamp to be updated, got %s", serv.lastResume)
			}
			if elapsed := time.Since(start); elapsed < debounceWindow+networkWakeupDelay {
				t.Errorf("expected resume to wait for the network, waited %s", elapsed)
			}
		})
	})
	t.Run("resume is abandoned on cancellation", func(t *testing.T) {
		serv, err := testService(t, false)
		if err != nil {
			t.Fatalf("failed to create service: %s", err)
		}
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			start := time.Now()
			go func() {
				time.Sleep(time.Second)
				cancel()
			}()
			serv.handleResume(ctx)
			if elapsed := time.Since(start); elapsed != time.Second {
				t.Errorf("expected resume to return after cancellation, waited %s", elapsed)
			}
		})
	})
}

func testService(t *testing.T, nilLogger bool) (*Service, error) {
	t.Setenv("WAYBARLOCSHARE_LOCALE", "en")
	conf, err := config.New()
	if err != nil {
		return nil, err
	}

	var log *logger.Logger
	if !nilLogger {
		log = logger.NewLogger(conf.LogLevel, io.Discard)
	}

	lang, err := i18n.New(conf.Locale)
	if err != nil {
		return nil, err
	}
	serv, err := New(conf, log, lang)
	if err != nil {
		return nil, err
	}

	return serv, nil
}

func disableGeolocation(t *testing.T) {
	t.Helper()
	t.Setenv("WAYBARLOCSHARE_GEOLOCATION_DISABLE_GPSD", "true")
	t.Setenv("WAYBARLOCSHARE_GEOLOCATION_DISABLE_GEOIP", "true")
	t.Setenv("WAYBARLOCSHARE_GEOLOCATION_DISABLE_GEOLOCATION_FILE", "true")
	t.Setenv("WAYBARLOCSHARE_GEOLOCATION_DISABLE_ICHNAEA", "true")
}

func lastOutput(t *testing.T, data string) presenter.Output {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(data), "\n")
	var output presenter.Output
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &output); err != nil {
		t.Fatalf("failed to unmarshal JSON: %s", err)
	}
	return output
}

type (
	failWriter struct{}
	syncBuffer struct {
		mu  sync.Mutex
		buf *bytes.Buffer
	}
)

func (f failWriter) Write([]byte) (int, error) { return 0, fmt.Errorf("failed to write") }

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}
