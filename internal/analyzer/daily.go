package analyzer

import (
	"math"
)

// DailySummary aggregates the trips of one UTC calendar day.
type DailySummary struct {
	Date               string   `json:"date"`
	TripCount          int      `json:"tripCount"`
	DistanceKm         float64  `json:"distanceKm"`
	DrivingMinutes     int      `json:"drivingMinutes"`
	IdleMinutes        int      `json:"idleMinutes"`
	MaxSpeed           int      `json:"maxSpeed"`
	FuelUsedLiters     *float64 `json:"fuelUsedLiters,omitempty"`
	AvgDriverScore     *int     `json:"avgDriverScore,omitempty"`
	AvgEfficiencyScore *int     `json:"avgEfficiencyScore,omitempty"`
	HardBraking        int      `json:"hardBraking"`
	HardAcceleration   int      `json:"hardAcceleration"`
	HarshCornering     int      `json:"harshCornering"`
	PerfectTrips       int      `json:"perfectTrips"`
	Trips              []*Trip  `json:"trips"`
}

// Daily folds the trips of one day into its summary. The trips are assumed
// to already belong to the requested date window.
func Daily(date string, trips []*Trip) *DailySummary {
	s := &DailySummary{Date: date, Trips: trips, TripCount: len(trips)}

	var fuel float64
	fuelSeen := false
	var scoreSum, scoreCount, effSum int

	for _, t := range trips {
		s.DistanceKm += t.DistanceKm
		s.DrivingMinutes += t.DurationMinutes
		if t.MaxSpeed > s.MaxSpeed {
			s.MaxSpeed = t.MaxSpeed
		}
		if t.FuelUsedLiters != nil {
			fuel += *t.FuelUsedLiters
			fuelSeen = true
		}
		if b := t.DriverBehavior; b != nil {
			s.IdleMinutes += b.IdleMinutes
			s.HardBraking += b.HardBraking
			s.HardAcceleration += b.HardAcceleration
			s.HarshCornering += b.HarshCornering
			if b.PerfectTrip {
				s.PerfectTrips++
			}
			scoreSum += b.DriverScore
			effSum += b.EfficiencyScore
			scoreCount++
		}
	}

	s.DistanceKm = math.Round(s.DistanceKm*10) / 10
	if fuelSeen {
		f := math.Round(fuel*1000) / 1000
		s.FuelUsedLiters = &f
	}
	if scoreCount > 0 {
		avg := int(math.Round(float64(scoreSum) / float64(scoreCount)))
		s.AvgDriverScore = &avg
		eff := int(math.Round(float64(effSum) / float64(scoreCount)))
		s.AvgEfficiencyScore = &eff
	}
	return s
}
