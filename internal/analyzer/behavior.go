package analyzer

import (
	"math"

	"github.com/montanaflynn/stats"

	"avl-gateway/internal/model"
)

// Accelerometer thresholds in mG, applied to baseline-subtracted, median
// filtered samples. X is longitudinal, Y lateral.
const (
	brakeThreshold  = -150
	accelThreshold  = 200
	cornerThreshold = 150

	minEventSpeed  = 10 // km/h
	minCornerSpeed = 20

	eventCooldownMs = 2000
)

type Confidence struct {
	Level   string   `json:"level"`
	Reasons []string `json:"reasons"`
}

type DriverBehavior struct {
	DriverScore      int        `json:"driverScore"`
	EfficiencyScore  int        `json:"efficiencyScore"`
	HardBraking      int        `json:"hardBraking"`
	HardAcceleration int        `json:"hardAcceleration"`
	HarshCornering   int        `json:"harshCornering"`
	IdleMinutes      int        `json:"idleMinutes"`
	Confidence       Confidence `json:"confidence"`
	PerfectTrip      bool       `json:"perfectTrip"`
}

// accelSample is one record bearing both accelerometer axes.
type accelSample struct {
	rec  *model.Record
	x, y float64
}

// Score derives the behavior block for one trip. Returns nil when fewer than
// five records carry accelerometer X and Y.
func Score(recs []*model.Record, durationMinutes int, distanceEstimated bool) *DriverBehavior {
	samples := collectAccel(recs)
	if len(samples) < 5 {
		return nil
	}

	baseX, baseY := baseline(samples)
	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	for i, s := range samples {
		xs[i] = s.x - baseX
		ys[i] = s.y - baseY
	}
	fx := medianFilter3(xs)
	fy := medianFilter3(ys)

	b := &DriverBehavior{}
	var lastBrake, lastAccel, lastCorner int64 = -1 << 62, -1 << 62, -1 << 62
	for i, s := range samples {
		spd := speedOf(s.rec)
		if spd < minEventSpeed {
			continue
		}
		ms := s.rec.Time().UnixMilli()

		if fx[i] < brakeThreshold && ms-lastBrake > eventCooldownMs {
			b.HardBraking++
			lastBrake = ms
		}
		if fx[i] > accelThreshold && ms-lastAccel > eventCooldownMs {
			b.HardAcceleration++
			lastAccel = ms
		}
		if math.Abs(fy[i]) > cornerThreshold && spd >= minCornerSpeed && ms-lastCorner > eventCooldownMs {
			b.HarshCornering++
			lastCorner = ms
		}
	}

	idleMinutes := idleTime(recs)
	b.IdleMinutes = int(math.Round(idleMinutes))

	brakePen := math.Min(float64(b.HardBraking)*4, 25)
	accelPen := math.Min(float64(b.HardAcceleration)*2, 20)
	cornerPen := math.Min(float64(b.HarshCornering)*3, 15)
	totalRaw := brakePen + accelPen + cornerPen

	durationFactor := clampF(float64(durationMinutes)/10, 1, 6)
	severeFloor := 0.0
	if b.HardBraking+b.HarshCornering > 0 {
		severeFloor = 3
	}
	normalized := math.Max(totalRaw/durationFactor, severeFloor)
	b.DriverScore = clampI(int(math.Round(100-normalized)), 0, 100)

	idlePenalty := math.Min(30, math.Floor(idleMinutes/5)*2)
	b.EfficiencyScore = clampI(int(100-idlePenalty), 0, 100)

	b.Confidence = confidence(recs, len(samples), durationMinutes, distanceEstimated)
	if b.Confidence.Level == "low" && b.DriverScore > 95 {
		b.DriverScore = 95
	}

	b.PerfectTrip = totalRaw == 0 && b.Confidence.Level == "high" && durationMinutes >= 5
	return b
}

func collectAccel(recs []*model.Record) []accelSample {
	samples := make([]accelSample, 0, len(recs))
	for _, r := range recs {
		x, okX := r.Num("accelerometerX")
		y, okY := r.Num("accelerometerY")
		if okX && okY {
			samples = append(samples, accelSample{rec: r, x: x, y: y})
		}
	}
	return samples
}

// baseline estimates the sensor's rest offset: median over stationary samples
// when at least three exist, otherwise the mean of the first five samples.
func baseline(samples []accelSample) (float64, float64) {
	var stX, stY []float64
	for _, s := range samples {
		if speedOf(s.rec) < 3 {
			stX = append(stX, s.x)
			stY = append(stY, s.y)
		}
	}
	if len(stX) >= 3 {
		mx, _ := stats.Median(stX)
		my, _ := stats.Median(stY)
		return mx, my
	}

	n := 5
	if len(samples) < n {
		n = len(samples)
	}
	var fx, fy []float64
	for _, s := range samples[:n] {
		fx = append(fx, s.x)
		fy = append(fy, s.y)
	}
	mx, _ := stats.Mean(fx)
	my, _ := stats.Mean(fy)
	return mx, my
}

// medianFilter3 applies a 3-sample sliding median; endpoints pass through.
func medianFilter3(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	for i := 1; i < len(v)-1; i++ {
		out[i] = median3(v[i-1], v[i], v[i+1])
	}
	return out
}

func median3(a, b, c float64) float64 {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b = c
	}
	if a > b {
		b = a
	}
	return b
}

// idleTime accumulates minutes spent with ignition on, no movement, and no
// speed. Steps are clamped to [1 s, 60 s] against clock drift.
func idleTime(recs []*model.Record) float64 {
	var idleSec float64
	for i := 1; i < len(recs); i++ {
		r := recs[i]
		ign, _ := r.Int("ignition")
		mov, hasMov := r.Int("movement")
		if ign != 1 || speedOf(r) >= 3 || !hasMov || mov != 0 {
			continue
		}
		dt := r.Time().Sub(recs[i-1].Time()).Seconds()
		idleSec += clampF(dt, 1, 60)
	}
	return idleSec / 60
}

func confidence(recs []*model.Record, accelCount, durationMinutes int, distanceEstimated bool) Confidence {
	reasons := []string{}
	affecting := 0

	var satSum, satCount int
	for _, r := range recs {
		if r.GPS.Satellites > 0 {
			satSum += r.GPS.Satellites
			satCount++
		}
	}
	if satCount == 0 || float64(satSum)/float64(satCount) < 3 {
		reasons = append(reasons, "poor_gnss")
		affecting++
	}
	if float64(accelCount)/float64(len(recs)) < 0.30 {
		reasons = append(reasons, "low_accel_coverage")
		affecting++
	}
	if durationMinutes < 5 {
		// Recorded for the caller but does not degrade the score.
		reasons = append(reasons, "short_trip")
	}
	if distanceEstimated {
		reasons = append(reasons, "distance_estimated")
		affecting++
	}

	level := "high"
	switch {
	case affecting == 1:
		level = "medium"
	case affecting >= 2:
		level = "low"
	}
	return Confidence{Level: level, Reasons: reasons}
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampI(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
