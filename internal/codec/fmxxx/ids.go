// Package fmxxx carries the canonical FMC003 IO ID tables.
package fmxxx

// IO ids referenced by name elsewhere in the gateway.
const (
	FuelUsedGPS   = 12
	FuelRateGPS   = 13
	TotalOdometer = 16
	AxisX         = 17
	AxisY         = 18
	AxisZ         = 19
	GSMSignal     = 21
	SpeedIO       = 24
	ExtVoltage    = 66
	BattVoltage   = 67
	BattCurrent   = 68
	BattLevel     = 113
	GnssPDOP      = 181
	GnssHDOP      = 182
	TripOdometer  = 199
	Ignition      = 239
	Movement      = 240

	OBDEngineLoad     = 31
	OBDCoolantTemp    = 32
	OBDEngineRPM      = 36
	OBDVehicleSpeed   = 37
	OBDFuelLevelInput = 48
	OBDFuelRate       = 60
	OBDTotalMileage   = 389
	OBDOemFuelLevel   = 390

	VIN      = 256
	DTCFault = 281
	Beacon   = 385
)
