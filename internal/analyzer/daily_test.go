package analyzer

import "testing"

func TestDailyAggregation(t *testing.T) {
	fuel1 := 0.4
	trips := []*Trip{
		{
			DistanceKm:      12.5,
			DurationMinutes: 25,
			MaxSpeed:        90,
			FuelUsedLiters:  &fuel1,
			DriverBehavior: &DriverBehavior{
				DriverScore:     90,
				EfficiencyScore: 100,
				HardBraking:     2,
				IdleMinutes:     3,
				Confidence:      Confidence{Level: "high"},
			},
		},
		{
			DistanceKm:      4.2,
			DurationMinutes: 8,
			MaxSpeed:        60,
			DriverBehavior: &DriverBehavior{
				DriverScore:     100,
				EfficiencyScore: 96,
				PerfectTrip:     true,
				Confidence:      Confidence{Level: "high"},
			},
		},
	}

	s := Daily("2024-01-01", trips)

	if s.TripCount != 2 {
		t.Errorf("tripCount = %d", s.TripCount)
	}
	if s.DistanceKm != 16.7 {
		t.Errorf("distanceKm = %v, want 16.7", s.DistanceKm)
	}
	if s.DrivingMinutes != 33 {
		t.Errorf("drivingMinutes = %d", s.DrivingMinutes)
	}
	if s.MaxSpeed != 90 {
		t.Errorf("maxSpeed = %d", s.MaxSpeed)
	}
	if s.FuelUsedLiters == nil || *s.FuelUsedLiters != 0.4 {
		t.Errorf("fuelUsedLiters = %v", s.FuelUsedLiters)
	}
	if s.AvgDriverScore == nil || *s.AvgDriverScore != 95 {
		t.Errorf("avgDriverScore = %v", s.AvgDriverScore)
	}
	if s.HardBraking != 2 || s.PerfectTrips != 1 || s.IdleMinutes != 3 {
		t.Errorf("counters = brake:%d perfect:%d idle:%d", s.HardBraking, s.PerfectTrips, s.IdleMinutes)
	}
}

func TestDailyEmptyDay(t *testing.T) {
	s := Daily("2024-01-01", nil)
	if s.TripCount != 0 || s.FuelUsedLiters != nil || s.AvgDriverScore != nil {
		t.Errorf("empty day summary = %+v", s)
	}
}
