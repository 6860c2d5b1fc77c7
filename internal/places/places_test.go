// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package places

import (
	"testing"

	"golang.org/x/text/language"

	"github.com/wneessen/waybar-locshare/internal/geolocation"
)

func TestPlace_Summary(t *testing.T) {
	tests := []struct {
		name  string
		place Place
		want  string
	}{
		{"name with types", Place{Name: "Tokyo Tower", Types: []string{"tourist_attraction", "point_of_interest"}},
			"Tokyo Tower (tourist_attraction, point_of_interest)"},
		{"name with single type", Place{Name: "Cafe", Types: []string{"cafe"}}, "Cafe (cafe)"},
		{"name without types", Place{Name: "Somewhere"}, "Somewhere"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.place.Summary(); got != tc.want {
				t.Errorf("expected summary to be %q, got %q", tc.want, got)
			}
		})
	}
}

func TestResponse_Nearest(t *testing.T) {
	first := Place{Name: "first"}
	tests := []struct {
		name   string
		resp   Response
		wantOK bool
	}{
		{"ok with results", Response{Status: StatusOK, Results: []Place{first, {Name: "second"}}}, true},
		{"ok without results", Response{Status: StatusOK}, false},
		{"zero results", Response{Status: StatusZeroResults}, false},
		{"denied with results", Response{Status: StatusRequestDenied, Results: []Place{first}}, false},
		{"over query limit", Response{Status: StatusOverQueryLimit}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			place, ok := tc.resp.Nearest()
			if ok != tc.wantOK {
				t.Fatalf("expected ok to be %t, got %t", tc.wantOK, ok)
			}
			if ok && place.Name != first.Name {
				t.Errorf("expected nearest place to be %q, got %q", first.Name, place.Name)
			}
		})
	}
}

func TestNearbyRequest(t *testing.T) {
	loc := geolocation.Coordinate{Lat: 35.0, Lon: 139.0, Acc: 15}
	req := NearbyRequest(loc, language.Japanese)
	if req.Location != loc {
		t.Errorf("expected location to be %+v, got %+v", loc, req.Location)
	}
	if req.RankBy != RankByDistance {
		t.Errorf("expected rank by to be %s, got %s", RankByDistance, req.RankBy)
	}
	if req.Type != TypePointOfInterest {
		t.Errorf("expected type to be %s, got %s", TypePointOfInterest, req.Type)
	}
	if req.Language != language.Japanese {
		t.Errorf("expected language to be %s, got %s", language.Japanese, req.Language)
	}
}
