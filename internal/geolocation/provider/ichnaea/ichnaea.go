// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package ichnaea resolves the position from nearby WiFi access points via an Ichnaea compatible
// geolocation API (beaconDB).
package ichnaea

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdhttp "net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mdlayher/wifi"

	"github.com/wneessen/waybar-locshare/internal/geolocation"
	"github.com/wneessen/waybar-locshare/internal/http"
)

const (
	apiEndpoint   = "https://api.beacondb.net/v1/geolocate"
	lookupTimeout = time.Second * 5
	scanInterval  = time.Minute * 2
	pollInterval  = time.Minute * 5
	name          = "ichnaea"

	// Ichnaea ignores WiFi data with fewer than two access points
	minAccessPoints = 2
	maxAccessPoints = 20
)

var ErrNotFound = errors.New("no position known for the visible networks")

type GeolocationICHNAEAProvider struct {
	http     *http.Client
	period   time.Duration
	scanFn   func() ([]AccessPoint, error)
	locateFn geolocation.LocateFunc

	mu  sync.RWMutex
	aps []AccessPoint
}

// AccessPoint is a single entry of the wifiAccessPoints list of a geolocate request.
type AccessPoint struct {
	MACAddress     string `json:"macAddress"`
	SignalStrength int32  `json:"signalStrength"`
	Age            int64  `json:"age"`
}

type geolocateRequest struct {
	ConsiderIP   bool          `json:"considerIp"`
	AccessPoints []AccessPoint `json:"wifiAccessPoints,omitempty"`
}

type geolocateResponse struct {
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
}

// NewGeolocationICHNAEAProvider returns a provider that scans the station interfaces of the
// system. It fails if the system offers no nl80211 support.
func NewGeolocationICHNAEAProvider(http *http.Client) (*GeolocationICHNAEAProvider, error) {
	if http == nil {
		return nil, errors.New("http client is required")
	}
	wlan, err := wifi.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create wifi client: %w", err)
	}
	provider := newProvider(http)
	provider.scanFn = func() ([]AccessPoint, error) {
		return scan(wlan)
	}
	return provider, nil
}

func newProvider(http *http.Client) *GeolocationICHNAEAProvider {
	provider := &GeolocationICHNAEAProvider{
		http:   http,
		period: pollInterval,
		scanFn: func() ([]AccessPoint, error) { return nil, nil },
	}
	provider.locateFn = provider.locate
	return provider
}

func (p *GeolocationICHNAEAProvider) Name() string {
	return name
}

func (p *GeolocationICHNAEAProvider) Precise() bool {
	return false
}

// Locate scans for access points right away and resolves them. A failed scan still allows an
// IP based answer from the API.
func (p *GeolocationICHNAEAProvider) Locate(ctx context.Context) (geolocation.Coordinate, error) {
	p.rescan()
	return p.locateFn(ctx)
}

func (p *GeolocationICHNAEAProvider) LookupStream(ctx context.Context) <-chan geolocation.Coordinate {
	go func() {
		ticker := time.NewTicker(scanInterval)
		defer ticker.Stop()
		for {
			p.rescan()
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return geolocation.PollStream(ctx, p.period, p.locateFn)
}

// rescan keeps the previous scan result if scanning fails.
func (p *GeolocationICHNAEAProvider) rescan() {
	aps, err := p.scanFn()
	if err != nil {
		return
	}
	p.mu.Lock()
	p.aps = aps
	p.mu.Unlock()
}

// request builds the geolocate request from the strongest access points of the last scan. The
// IP address is only considered if there are not enough access points for a WiFi based answer.
func (p *GeolocationICHNAEAProvider) request() geolocateRequest {
	p.mu.RLock()
	aps := slices.Clone(p.aps)
	p.mu.RUnlock()

	slices.SortStableFunc(aps, func(a, b AccessPoint) int {
		return cmp.Compare(b.SignalStrength, a.SignalStrength)
	})
	if len(aps) > maxAccessPoints {
		aps = aps[:maxAccessPoints]
	}
	return geolocateRequest{
		ConsiderIP:   len(aps) < minAccessPoints,
		AccessPoints: aps,
	}
}

func (p *GeolocationICHNAEAProvider) locate(ctx context.Context) (geolocation.Coordinate, error) {
	body := bytes.NewBuffer(nil)
	if err := json.NewEncoder(body).Encode(p.request()); err != nil {
		return geolocation.Coordinate{}, fmt.Errorf("failed to encode geolocate request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	result := new(geolocateResponse)
	status, err := p.http.Post(ctx, apiEndpoint, result, body, map[string]string{"Content-Type": "application/json"})
	switch {
	case status == stdhttp.StatusNotFound:
		return geolocation.Coordinate{}, fmt.Errorf("%w: %w", ErrNotFound, err)
	case err != nil:
		return geolocation.Coordinate{}, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}

	return geolocation.Coordinate{
		Lat: geolocation.Truncate(result.Location.Lat, geolocation.TruncPrecision),
		Lon: geolocation.Truncate(result.Location.Lng, geolocation.TruncPrecision),
		Acc: geolocation.Truncate(result.Accuracy, geolocation.TruncPrecision),
	}, nil
}

// scan lists the access points visible to all station interfaces. Hidden networks and networks
// that opted out of location services with the _nomap suffix are skipped.
func scan(wlan *wifi.Client) ([]AccessPoint, error) {
	ifaces, err := wlan.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	var list []AccessPoint
	for _, iface := range ifaces {
		if iface.Type != wifi.InterfaceTypeStation {
			continue
		}
		bss, err := wlan.AccessPoints(iface)
		if err != nil {
			continue
		}
		for _, ap := range bss {
			if ap.SSID == "" || ap.SSID[0] == '\x00' || strings.HasSuffix(ap.SSID, "_nomap") {
				continue
			}
			list = append(list, AccessPoint{
				MACAddress:     ap.BSSID.String(),
				SignalStrength: ap.Signal / 100,
				Age:            ap.LastSeen.Milliseconds(),
			})
		}
	}
	return list, nil
}
