package location

import (
	"math"
	"testing"

	"ridepool/internal/types"
)

func TestDistanceMeters_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      types.Point
		wantM     float64
		tolerance float64
	}{
		{
			name:      "same point",
			a:         types.Point{Lat: 26.13, Lng: 50.55},
			b:         types.Point{Lat: 26.13, Lng: 50.55},
			wantM:     0,
			tolerance: 0.001,
		},
		{
			name:      "one degree of latitude",
			a:         types.Point{Lat: 26.0, Lng: 50.5},
			b:         types.Point{Lat: 27.0, Lng: 50.5},
			wantM:     111195,
			tolerance: 5,
		},
		{
			name:      "New York to Los Angeles (~3944km)",
			a:         types.Point{Lat: 40.7128, Lng: -74.0060},
			b:         types.Point{Lat: 34.0522, Lng: -118.2437},
			wantM:     3944000,
			tolerance: 50000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceMeters(tt.a, tt.b)
			if math.Abs(got-tt.wantM) > tt.tolerance {
				t.Errorf("DistanceMeters() = %f, want %f (±%f)", got, tt.wantM, tt.tolerance)
			}
		})
	}
}

func TestDistanceMeters_Symmetry(t *testing.T) {
	a := types.Point{Lat: 26.0, Lng: 50.0}
	b := types.Point{Lat: 26.2, Lng: 50.6}
	if d1, d2 := DistanceMeters(a, b), DistanceMeters(b, a); math.Abs(d1-d2) > 0.0001 {
		t.Errorf("haversine is not symmetric: %f vs %f", d1, d2)
	}
}

func TestWithin_SearchRadius(t *testing.T) {
	origin := types.Point{Lat: 26.1300, Lng: 50.5500}
	// ~111195 m per degree of latitude
	near := types.Point{Lat: origin.Lat + 4000.0/111195.0, Lng: origin.Lng}
	far := types.Point{Lat: origin.Lat + 6000.0/111195.0, Lng: origin.Lng}

	if !Within(origin, near, 5000) {
		t.Errorf("point ~4000 m away should be within 5000 m (got %f)", DistanceMeters(origin, near))
	}
	if Within(origin, far, 5000) {
		t.Errorf("point ~6000 m away should be outside 5000 m (got %f)", DistanceMeters(origin, far))
	}
}

type ranked struct {
	id   string
	dist float64
	at   int
}

func TestSortByDistance(t *testing.T) {
	items := []ranked{
		{id: "c", dist: 5.0},
		{id: "a", dist: 1.0},
		{id: "b", dist: 3.0},
	}

	SortByDistance(items, func(r ranked) float64 { return r.dist }, nil)

	if items[0].id != "a" || items[1].id != "b" || items[2].id != "c" {
		t.Errorf("unexpected sort order: %v", items)
	}
}

func TestSortByDistance_TieBreak(t *testing.T) {
	items := []ranked{
		{id: "late", dist: 2.0, at: 30},
		{id: "far", dist: 9.0, at: 1},
		{id: "early", dist: 2.0, at: 10},
	}

	SortByDistance(items,
		func(r ranked) float64 { return r.dist },
		func(a, b ranked) bool { return a.at < b.at },
	)

	want := []string{"early", "late", "far"}
	for i, id := range want {
		if items[i].id != id {
			t.Fatalf("position %d: got %s, want %s (%v)", i, items[i].id, id, items)
		}
	}
}

func TestSortByDistance_Empty(t *testing.T) {
	var items []ranked
	SortByDistance(items, func(r ranked) float64 { return r.dist }, nil)
	if len(items) != 0 {
		t.Errorf("expected empty slice")
	}
}
