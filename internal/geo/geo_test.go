package geo

import (
	"math"
	"testing"
)

func TestHaversineKm_SamePointIsZero(t *testing.T) {
	p := Point{Lat: 35.9208, Lng: 74.3144}
	if d := HaversineKm(p, p); d != 0 {
		t.Errorf("expected 0, got %f", d)
	}
}

func TestHaversineKm_Symmetric(t *testing.T) {
	pairs := []struct {
		name string
		a, b Point
	}{
		{"gilgit to skardu", Point{35.9208, 74.3144}, Point{35.2971, 75.6333}},
		{"across the meridian", Point{51.5074, -0.1278}, Point{48.8566, 2.3522}},
		{"across the equator", Point{-1.2921, 36.8219}, Point{0.3476, 32.5825}},
		{"antipodal", Point{0, 0}, Point{0, 180}},
	}

	for _, tc := range pairs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ab := HaversineKm(tc.a, tc.b)
			ba := HaversineKm(tc.b, tc.a)
			if math.Abs(ab-ba) > 1e-9 {
				t.Errorf("expected symmetric distance, got %f and %f", ab, ba)
			}
			if ab < 0 {
				t.Errorf("expected non-negative distance, got %f", ab)
			}
		})
	}
}

func TestHaversineKm_KnownDistances(t *testing.T) {
	testCases := []struct {
		name    string
		a, b    Point
		wantKm  float64
		epsilon float64
	}{
		{"london to paris", Point{51.5074, -0.1278}, Point{48.8566, 2.3522}, 343.5, 1.0},
		{"one degree of latitude", Point{0, 0}, Point{1, 0}, 111.19, 0.01},
		{"half the circumference", Point{0, 0}, Point{0, 180}, math.Pi * EarthRadiusKm, 1e-6},
	}

	for _, tc := range testCases {
		got := HaversineKm(tc.a, tc.b)
		if math.Abs(got-tc.wantKm) > tc.epsilon {
			t.Errorf("%s: expected %.3f km, got %.3f km", tc.name, tc.wantKm, got)
		}
	}
}

func TestTravelMinutes(t *testing.T) {
	testCases := []struct {
		km   float64
		want int
	}{
		{0, 0},
		{0.2, 0},
		{0.25, 1},
		{1, 2},
		{3.3, 7},
		{12.74, 25},
	}

	for _, tc := range testCases {
		if got := TravelMinutes(tc.km); got != tc.want {
			t.Errorf("TravelMinutes(%v): expected %d, got %d", tc.km, tc.want, got)
		}
	}
}

func TestPointValid(t *testing.T) {
	testCases := []struct {
		name  string
		point Point
		want  bool
	}{
		{"origin", Point{0, 0}, true},
		{"north pole", Point{90, 0}, true},
		{"date line", Point{0, -180}, true},
		{"latitude too high", Point{90.1, 0}, false},
		{"longitude too low", Point{0, -180.5}, false},
		{"nan", Point{math.NaN(), 10}, false},
	}

	for _, tc := range testCases {
		if got := tc.point.Valid(); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
