// Package analyzer synthesizes trips, driver-behavior scores, and daily
// summaries from chronologically ordered records. It is pure: records are
// borrowed read-only and nothing here touches the store.
package analyzer

import (
	"fmt"
	"math"

	"avl-gateway/internal/model"
)

// A quiet period of engine-off longer than this closes the open trip.
const quietGapSeconds = 60

// Emission thresholds: anything shorter and flatter is ignition noise.
const (
	minTripMinutes  = 2
	minTripMeters   = 100
)

type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp string  `json:"timestamp"`
}

// Trip is a synthesized engine-on run. Never stored; rebuilt per query.
type Trip struct {
	StartTime         string          `json:"startTime"`
	EndTime           string          `json:"endTime"`
	StartOdometer     *int64          `json:"startOdometer,omitempty"`
	EndOdometer       *int64          `json:"endOdometer,omitempty"`
	DistanceMeters    float64         `json:"distanceMeters"`
	DistanceKm        float64         `json:"distanceKm"`
	DistanceEstimated bool            `json:"distanceEstimated,omitempty"`
	DurationMinutes   int             `json:"durationMinutes"`
	Duration          string          `json:"duration"`
	MaxSpeed          int             `json:"maxSpeed"`
	AvgSpeedMoving    *float64        `json:"avgSpeedMoving,omitempty"`
	AvgSpeedTotal     *float64        `json:"avgSpeedTotal,omitempty"`
	FuelUsedLiters    *float64        `json:"fuelUsedLiters,omitempty"`
	FuelPer100km      *float64        `json:"fuelPer100km,omitempty"`
	FuelFromGps       bool            `json:"fuelFromGps,omitempty"`
	StartPosition     *Position       `json:"startPosition,omitempty"`
	EndPosition       *Position       `json:"endPosition,omitempty"`
	DriverBehavior    *DriverBehavior `json:"driverBehavior,omitempty"`
}

// engineOn is the trip predicate: ignition or a turning engine.
func engineOn(r *model.Record) bool {
	if ign, ok := r.Int("ignition"); ok && ign == 1 {
		return true
	}
	if rpm, ok := r.Int("obdEngineRpm"); ok && rpm > 0 {
		return true
	}
	return false
}

// speedOf prefers the OBD vehicle speed over the GPS speed.
func speedOf(r *model.Record) int {
	if v, ok := r.Int("obdVehicleSpeed"); ok {
		return int(v)
	}
	return r.GPS.Speed
}

// SegmentTrips walks records (ascending by timestamp) and cuts them into
// engine-on runs separated by >60 s of continuous engine-off. Runs below the
// emission thresholds are discarded.
func SegmentTrips(records []model.Record) []*Trip {
	trips := []*Trip{}

	var open []*model.Record // records of the trip in progress
	var lastOnIdx int        // index into open of the last engine-on record

	flush := func() {
		if open == nil {
			return
		}
		// Close at the last engine-on record; trailing off-records fall away.
		if t := buildTrip(open[:lastOnIdx+1]); t != nil {
			trips = append(trips, t)
		}
		open = nil
	}

	for i := range records {
		r := &records[i]
		on := engineOn(r)

		if open == nil {
			if on {
				open = []*model.Record{r}
				lastOnIdx = 0
			}
			continue
		}

		if on {
			open = append(open, r)
			lastOnIdx = len(open) - 1
			continue
		}

		gap := r.Time().Sub(open[lastOnIdx].Time()).Seconds()
		if gap > quietGapSeconds {
			flush()
			continue
		}
		// Brief off-record inside the run stays with the trip.
		open = append(open, r)
	}
	flush()

	return trips
}

// buildTrip computes the metrics of one closed run, or nil when the run is
// below emission thresholds.
func buildTrip(recs []*model.Record) *Trip {
	if len(recs) == 0 {
		return nil
	}
	first, last := recs[0], recs[len(recs)-1]

	t := &Trip{
		StartTime: first.Timestamp,
		EndTime:   last.Timestamp,
	}

	durationSec := last.Time().Sub(first.Time()).Seconds()
	t.DurationMinutes = int(math.Round(durationSec / 60))
	t.Duration = formatDuration(t.DurationMinutes)

	t.StartOdometer, t.EndOdometer = odometerSpan(recs)
	distanceEstimated := false
	var distance float64
	if t.StartOdometer != nil && t.EndOdometer != nil && *t.EndOdometer > *t.StartOdometer {
		distance = float64(*t.EndOdometer - *t.StartOdometer)
	} else {
		distance = integrateDistance(recs)
		distanceEstimated = true
	}
	t.DistanceMeters = distance
	t.DistanceKm = math.Round(distance/100) / 10
	t.DistanceEstimated = distanceEstimated

	if t.DurationMinutes < minTripMinutes && t.DistanceMeters <= minTripMeters {
		return nil
	}

	movingSum, movingCount := 0, 0
	for _, r := range recs {
		spd := speedOf(r)
		if spd > t.MaxSpeed {
			t.MaxSpeed = spd
		}
		if spd > 0 {
			movingSum += spd
			movingCount++
		}
	}
	if movingCount > 0 {
		avg := math.Round(float64(movingSum)/float64(movingCount)*10) / 10
		t.AvgSpeedMoving = &avg
	}
	if t.DurationMinutes > 0 {
		avg := math.Round(t.DistanceKm/(float64(t.DurationMinutes)/60)*10) / 10
		t.AvgSpeedTotal = &avg
	}

	applyFuel(t, recs)
	t.StartPosition, t.EndPosition = positionSpan(recs)
	t.DriverBehavior = Score(recs, t.DurationMinutes, t.DistanceEstimated)

	return t
}

// odometerSpan finds the first and last totalOdometer readings of the run.
func odometerSpan(recs []*model.Record) (start, end *int64) {
	for _, r := range recs {
		if v, ok := r.Int("totalOdometer"); ok {
			if start == nil {
				s := v
				start = &s
			}
			e := v
			end = &e
		}
	}
	return start, end
}

// integrateDistance is the fallback when the odometer is flat or absent:
// speed x dt over successive records, in meters.
func integrateDistance(recs []*model.Record) float64 {
	var meters float64
	for i := 1; i < len(recs); i++ {
		dt := recs[i].Time().Sub(recs[i-1].Time()).Seconds()
		if dt <= 0 || dt > 300 {
			continue
		}
		meters += float64(speedOf(recs[i])) / 3.6 * dt
	}
	return math.Round(meters)
}

// applyFuel emits GPS-estimated fuel figures when the trip is long enough to
// make the estimate meaningful.
func applyFuel(t *Trip, recs []*model.Record) {
	var startMl, endMl float64
	seen := false
	for _, r := range recs {
		if v, ok := r.Num("fuelUsedGps"); ok {
			if !seen {
				startMl = v
				seen = true
			}
			endMl = v
		}
	}
	if !seen {
		return
	}
	usedMl := endMl - startMl
	if t.DistanceKm < 2 || t.DurationMinutes < 5 || usedMl <= 0 {
		return
	}
	liters := math.Round(usedMl) / 1000
	t.FuelUsedLiters = &liters
	t.FuelFromGps = true
	if t.DistanceKm > 0 {
		per100 := math.Round(liters/t.DistanceKm*100*10) / 10
		t.FuelPer100km = &per100
	}
}

// positionSpan picks the first and last GPS fix with satellite lock, falling
// back to the outer records when no record has one.
func positionSpan(recs []*model.Record) (start, end *Position) {
	for _, r := range recs {
		if r.GPS.Satellites > 0 {
			if start == nil {
				start = positionOf(r)
			}
			end = positionOf(r)
		}
	}
	if start == nil {
		start = positionOf(recs[0])
		end = positionOf(recs[len(recs)-1])
	}
	return start, end
}

func positionOf(r *model.Record) *Position {
	return &Position{
		Latitude:  r.GPS.Latitude,
		Longitude: r.GPS.Longitude,
		Timestamp: r.Timestamp,
	}
}

// formatDuration renders minutes as "Hh Mm", hours suppressed when zero.
func formatDuration(minutes int) string {
	if minutes >= 60 {
		return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
	}
	return fmt.Sprintf("%dm", minutes)
}
