// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wneessen/waybar-locshare/internal/gpspoll"
	"github.com/wneessen/waybar-locshare/internal/logger"
)

const (
	testLat = 40.7185
	testLon = -74.0025
	testTPV = `{"class":"TPV","device":"/dev/ttyACM0","mode":3,"time":"2025-11-24T10:44:41.000Z","lat":40.7185,"lon":-74.0025,"alt":12.0,"epx":3.0,"epy":4.0}`
)

func TestNewGeolocationGPSDProvider(t *testing.T) {
	t.Run("new GPSd provider succeeds", func(t *testing.T) {
		provider := NewGeolocationGPSDProvider(logger.New(slog.LevelInfo), "localhost", "2947")
		if provider == nil {
			t.Fatal("expected provider to be non-nil")
		}
		if provider.addr != "localhost:2947" {
			t.Errorf("expected address to be localhost:2947, got %s", provider.addr)
		}
	})
}

func TestGeolocationGPSDProvider_Name(t *testing.T) {
	provider := NewGeolocationGPSDProvider(logger.New(slog.LevelInfo), "localhost", "2947")
	if !strings.EqualFold(provider.Name(), name) {
		t.Errorf("expected provider name to be %s, got %s", name, provider.Name())
	}
	if !provider.Precise() {
		t.Error("expected gpsd provider to be precise")
	}
}

func TestGeolocationGPSDProvider_Locate(t *testing.T) {
	t.Run("locate returns the polled fix", func(t *testing.T) {
		provider := NewGeolocationGPSDProvider(logger.New(slog.LevelInfo), "localhost", "2947")
		provider.locateFn = func(context.Context) (gpspoll.Fix, error) {
			return gpspoll.Fix{Lat: testLat, Lon: testLon, Acc: 5, Mode: 3}, nil
		}
		coord, err := provider.Locate(t.Context())
		if err != nil {
			t.Fatalf("failed to locate: %s", err)
		}
		if coord.Lat != testLat {
			t.Errorf("expected latitude to be %f, got %f", testLat, coord.Lat)
		}
		if coord.Lon != testLon {
			t.Errorf("expected longitude to be %f, got %f", testLon, coord.Lon)
		}
		if coord.Acc != 5 {
			t.Errorf("expected accuracy to be %f, got %f", 5.0, coord.Acc)
		}
	})
	t.Run("locate without 2D fix fails", func(t *testing.T) {
		provider := NewGeolocationGPSDProvider(logger.New(slog.LevelInfo), "localhost", "2947")
		provider.locateFn = func(context.Context) (gpspoll.Fix, error) {
			return gpspoll.Fix{Lat: testLat, Lon: testLon, Mode: 1}, nil
		}
		if _, err := provider.Locate(t.Context()); !errors.Is(err, ErrNoFix) {
			t.Errorf("expected error to be %s, got %v", ErrNoFix, err)
		}
	})
	t.Run("locate passes through poll errors", func(t *testing.T) {
		provider := NewGeolocationGPSDProvider(logger.New(slog.LevelInfo), "localhost", "2947")
		wantErr := errors.New("intentionally failing")
		provider.locateFn = func(context.Context) (gpspoll.Fix, error) {
			return gpspoll.Fix{}, wantErr
		}
		if _, err := provider.Locate(t.Context()); !errors.Is(err, wantErr) {
			t.Errorf("expected error to be %s, got %v", wantErr, err)
		}
	})
}

func TestGeolocationGPSDProvider_LookupStream(t *testing.T) {
	t.Run("watch session delivers TPV reports", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(t.Context(), time.Second*5)
		defer cancel()

		addr := startMockGPSD(t, testTPV)
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			t.Fatalf("failed to parse mock gpsd address: %s", err)
		}
		provider := NewGeolocationGPSDProvider(logger.NewLogger(slog.LevelDebug, os.Stderr), host, port)

		select {
		case coord := <-provider.LookupStream(ctx):
			if coord.Lat != testLat {
				t.Errorf("expected latitude to be %f, got %f", testLat, coord.Lat)
			}
			if coord.Lon != testLon {
				t.Errorf("expected longitude to be %f, got %f", testLon, coord.Lon)
			}
			if coord.Acc != 5 {
				t.Errorf("expected accuracy to be %f, got %f", 5.0, coord.Acc)
			}
		case <-ctx.Done():
			t.Fatal("no coordinate received from mock gpsd")
		}
	})
	t.Run("stream closes when gpsd is unreachable and context ends", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		provider := NewGeolocationGPSDProvider(logger.New(slog.LevelInfo), "127.0.0.1", "1")
		out := provider.LookupStream(ctx)
		cancel()
		for range out {
			t.Error("expected no coordinates from unreachable gpsd")
		}
	})
}

func startMockGPSD(t *testing.T, tpv string) string {
	t.Helper()

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen for mock gpsd: %s", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var conns []net.Conn
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
			_, _ = fmt.Fprintln(conn, `{"class":"VERSION","release":"gpsd 3.26","proto_major":3,"proto_minor":14}`)
			_, _ = fmt.Fprintln(conn, tpv)
		}
	}()

	t.Cleanup(func() {
		_ = ln.Close()
		wg.Wait()
		mu.Lock()
		defer mu.Unlock()
		for _, conn := range conns {
			_ = conn.Close()
		}
	})

	return ln.Addr().String()
}
