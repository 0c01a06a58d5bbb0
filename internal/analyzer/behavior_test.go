package analyzer

import (
	"testing"
	"time"

	"avl-gateway/internal/model"
)

// accelRec builds a record with accelerometer axes at base+offset seconds.
func accelRec(offsetSec, speed, sats int, x, y int64, extra map[string]interface{}) *model.Record {
	named := map[string]interface{}{
		"ignition":       int64(1),
		"accelerometerX": x,
		"accelerometerY": y,
	}
	for k, v := range extra {
		named[k] = v
	}
	ts := tripBase.Add(time.Duration(offsetSec) * time.Second)
	return &model.Record{
		Timestamp: ts.Format(model.TimestampLayout),
		GPS:       model.GPS{Satellites: sats, Speed: speed},
		Named:     named,
	}
}

// Scenario: 60 samples at 1 s spacing, 40 km/h, X flat at zero except one
// three-sample cluster at -400 mG. The filter keeps all three cluster samples;
// the cooldown collapses them into one braking event.
func TestHardBrakingClusterCountsOnce(t *testing.T) {
	recs := make([]*model.Record, 0, 60)
	for i := 0; i < 60; i++ {
		var x int64
		if i >= 30 && i < 33 {
			x = -400
		}
		recs = append(recs, accelRec(i, 40, 9, x, 0, nil))
	}

	b := Score(recs, 1, false)
	if b == nil {
		t.Fatal("behavior expected")
	}
	if b.HardBraking != 1 {
		t.Errorf("hardBraking = %d, want 1", b.HardBraking)
	}
	if b.HardAcceleration != 0 || b.HarshCornering != 0 {
		t.Errorf("other events = %d/%d, want none", b.HardAcceleration, b.HarshCornering)
	}
	if b.DriverScore != 96 {
		t.Errorf("driverScore = %d, want 96", b.DriverScore)
	}
	if b.Confidence.Level != "high" {
		t.Errorf("confidence = %q, want high", b.Confidence.Level)
	}
	if b.PerfectTrip {
		t.Error("a braking event is never a perfect trip")
	}
}

func TestSingleSampleSpikeFilteredOut(t *testing.T) {
	recs := make([]*model.Record, 0, 30)
	for i := 0; i < 30; i++ {
		var x int64
		if i == 15 {
			x = -400 // isolated: the sliding median swallows it
		}
		recs = append(recs, accelRec(i, 40, 9, x, 0, nil))
	}

	b := Score(recs, 1, false)
	if b == nil {
		t.Fatal("behavior expected")
	}
	if b.HardBraking != 0 {
		t.Errorf("hardBraking = %d, want 0 (spike filtered)", b.HardBraking)
	}
}

func TestTooFewAccelSamplesReturnsNil(t *testing.T) {
	recs := make([]*model.Record, 0, 4)
	for i := 0; i < 4; i++ {
		recs = append(recs, accelRec(i, 40, 9, 0, 0, nil))
	}
	if b := Score(recs, 1, false); b != nil {
		t.Fatalf("behavior = %+v, want nil under 5 samples", b)
	}
}

// A constant mounting offset must not register as events: the stationary
// median baseline removes it.
func TestBaselineRemovesMountingOffset(t *testing.T) {
	recs := make([]*model.Record, 0, 40)
	// Five stationary samples establish the baseline.
	for i := 0; i < 5; i++ {
		recs = append(recs, accelRec(i, 0, 9, -300, 200, nil))
	}
	for i := 5; i < 40; i++ {
		recs = append(recs, accelRec(i, 50, 9, -300, 200, nil))
	}

	b := Score(recs, 1, false)
	if b == nil {
		t.Fatal("behavior expected")
	}
	if b.HardBraking != 0 || b.HarshCornering != 0 {
		t.Errorf("offset misread as events: brake=%d corner=%d", b.HardBraking, b.HarshCornering)
	}
}

func TestCorneringRequiresSpeed(t *testing.T) {
	mk := func(speed int) []*model.Record {
		recs := make([]*model.Record, 0, 30)
		for i := 0; i < 30; i++ {
			var y int64
			if i >= 14 && i < 17 {
				y = 300
			}
			recs = append(recs, accelRec(i, speed, 9, 0, y, nil))
		}
		return recs
	}

	if b := Score(mk(40), 1, false); b == nil || b.HarshCornering != 1 {
		t.Errorf("cornering at 40 km/h = %+v, want 1 event", b)
	}
	// Below 20 km/h lateral spikes are parking-lot maneuvering.
	if b := Score(mk(15), 1, false); b == nil || b.HarshCornering != 0 {
		t.Errorf("cornering at 15 km/h = %+v, want no events", b)
	}
}

func TestIdlePenalty(t *testing.T) {
	recs := make([]*model.Record, 0, 30)
	// 11 idling samples at 60 s spacing: ten full minutes of idle.
	for i := 0; i < 11; i++ {
		recs = append(recs, accelRec(i*60, 0, 9, 0, 0, map[string]interface{}{
			"movement": int64(0),
		}))
	}
	// Then driving, to keep accel coverage meaningful.
	for i := 0; i < 10; i++ {
		recs = append(recs, accelRec(660+i, 50, 9, 0, 0, nil))
	}

	b := Score(recs, 11, false)
	if b == nil {
		t.Fatal("behavior expected")
	}
	if b.IdleMinutes != 10 {
		t.Errorf("idleMinutes = %d, want 10", b.IdleMinutes)
	}
	// floor(10/5)*2 = 4 points off.
	if b.EfficiencyScore != 96 {
		t.Errorf("efficiencyScore = %d, want 96", b.EfficiencyScore)
	}
}

func TestScoresStayInBounds(t *testing.T) {
	recs := make([]*model.Record, 0, 200)
	for i := 0; i < 200; i++ {
		x := int64(0)
		y := int64(0)
		switch i % 4 {
		case 0:
			x = -500
		case 1:
			x = 400
		case 2:
			y = 350
		}
		recs = append(recs, accelRec(i*3, 60, 9, x, y, map[string]interface{}{
			"movement": int64(1),
		}))
	}

	b := Score(recs, 10, true)
	if b == nil {
		t.Fatal("behavior expected")
	}
	if b.DriverScore < 0 || b.DriverScore > 100 {
		t.Errorf("driverScore = %d out of range", b.DriverScore)
	}
	if b.EfficiencyScore < 0 || b.EfficiencyScore > 100 {
		t.Errorf("efficiencyScore = %d out of range", b.EfficiencyScore)
	}
}

func TestLowConfidenceClampsScore(t *testing.T) {
	recs := make([]*model.Record, 0, 40)
	for i := 0; i < 40; i++ {
		// No satellites anywhere: poor_gnss.
		recs = append(recs, accelRec(i, 40, 0, 0, 0, nil))
	}

	// distance_estimated adds the second score-affecting reason.
	b := Score(recs, 10, true)
	if b == nil {
		t.Fatal("behavior expected")
	}
	if b.Confidence.Level != "low" {
		t.Fatalf("confidence = %q, want low (reasons %v)", b.Confidence.Level, b.Confidence.Reasons)
	}
	if b.DriverScore > 95 {
		t.Errorf("driverScore = %d, want clamped at 95", b.DriverScore)
	}
	if b.PerfectTrip {
		t.Error("low confidence can never be a perfect trip")
	}
}

func TestPerfectTrip(t *testing.T) {
	recs := make([]*model.Record, 0, 80)
	for i := 0; i < 80; i++ {
		recs = append(recs, accelRec(i*5, 50, 9, 0, 0, nil))
	}

	b := Score(recs, 7, false)
	if b == nil {
		t.Fatal("behavior expected")
	}
	if !b.PerfectTrip {
		t.Errorf("perfectTrip = false; score=%d confidence=%q", b.DriverScore, b.Confidence.Level)
	}
	if b.DriverScore != 100 {
		t.Errorf("driverScore = %d, want 100", b.DriverScore)
	}
}
