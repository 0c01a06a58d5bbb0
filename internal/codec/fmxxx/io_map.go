package fmxxx

// IODef describes one canonical FMC003 IO id: the stable field name records
// carry, whether the raw value is a signed 16-bit quantity, and the unit.
type IODef struct {
	Name   string
	Signed bool
	Unit   string
}

// Defs is the canonical id -> definition table for the FMC003. Ids missing
// from the table are retained with a synthetic IO_<id> name.
var Defs = map[uint16]IODef{
	1:  {Name: "digitalInput1"},
	2:  {Name: "digitalInput2"},
	9:  {Name: "analogInput1", Unit: "mV"},
	11: {Name: "iccid1"},
	12: {Name: "fuelUsedGps", Unit: "ml"},
	13: {Name: "fuelRateGps", Unit: "ml/100km"},
	16: {Name: "totalOdometer", Unit: "m"},
	17: {Name: "accelerometerX", Signed: true, Unit: "mG"},
	18: {Name: "accelerometerY", Signed: true, Unit: "mG"},
	19: {Name: "accelerometerZ", Signed: true, Unit: "mG"},
	21: {Name: "gsmSignal"},
	24: {Name: "speedIO", Unit: "km/h"},

	30: {Name: "obdDtcCount"},
	31: {Name: "obdEngineLoad", Unit: "%"},
	32: {Name: "obdCoolantTemp", Signed: true, Unit: "C"},
	33: {Name: "obdShortFuelTrim", Signed: true, Unit: "%"},
	34: {Name: "obdFuelPressure", Unit: "kPa"},
	35: {Name: "obdIntakeMap", Unit: "kPa"},
	36: {Name: "obdEngineRpm", Unit: "rpm"},
	37: {Name: "obdVehicleSpeed", Unit: "km/h"},
	38: {Name: "obdTimingAdvance", Signed: true, Unit: "deg"},
	39: {Name: "obdIntakeAirTemp", Signed: true, Unit: "C"},
	40: {Name: "obdMaf", Unit: "g/s"},
	41: {Name: "obdThrottlePosition", Unit: "%"},
	42: {Name: "obdRuntime", Unit: "s"},
	43: {Name: "obdDistanceMilOn", Unit: "km"},
	44: {Name: "obdRelativeFuelPressure", Unit: "kPa"},
	45: {Name: "obdDirectFuelPressure", Unit: "bar"},
	46: {Name: "obdCommandedEgr", Unit: "%"},
	47: {Name: "obdEgrError", Signed: true, Unit: "%"},
	48: {Name: "obdFuelLevelInput", Unit: "%"},
	49: {Name: "obdDistanceSinceCleared", Unit: "km"},
	50: {Name: "obdBarometricPressure", Unit: "kPa"},
	51: {Name: "obdModuleVoltage", Unit: "mV"},
	52: {Name: "obdAbsoluteLoad", Unit: "%"},
	53: {Name: "obdAmbientAirTemp", Signed: true, Unit: "C"},
	54: {Name: "obdTimeMilOn", Unit: "min"},
	55: {Name: "obdTimeSinceCleared", Unit: "min"},
	56: {Name: "obdAbsoluteFuelRailPressure", Unit: "kPa"},
	57: {Name: "obdHybridBatteryLife", Unit: "%"},
	58: {Name: "obdEngineOilTemp", Signed: true, Unit: "C"},
	59: {Name: "obdFuelInjectionTiming", Signed: true, Unit: "deg"},
	60: {Name: "obdFuelRate", Unit: "l/100km"},

	66:  {Name: "externalVoltage", Unit: "mV"},
	67:  {Name: "batteryVoltage", Unit: "mV"},
	68:  {Name: "batteryCurrent", Unit: "mA"},
	69:  {Name: "gnssStatus"},
	80:  {Name: "dataMode"},
	113: {Name: "batteryLevel", Unit: "%"},
	179: {Name: "digitalOutput1"},
	180: {Name: "digitalOutput2"},
	181: {Name: "gnssPdop"},
	182: {Name: "gnssHdop"},
	199: {Name: "tripOdometer", Unit: "m"},
	200: {Name: "sleepMode"},
	205: {Name: "gsmCellId"},
	206: {Name: "gsmAreaCode"},
	237: {Name: "networkType"},
	239: {Name: "ignition"},
	240: {Name: "movement"},
	241: {Name: "activeGsmOperator"},

	389: {Name: "obdTotalMileage", Unit: "m"},
	390: {Name: "obdOemFuelLevel", Unit: "0.1l"},

	256: {Name: "vin"},
	281: {Name: "faultCodes"},
	385: {Name: "beacon"},
}

// ASCIIIds are the variable-length ids whose payload is ASCII text with
// trailing NULs stripped. Every other NX payload is kept hex-encoded.
var ASCIIIds = map[uint16]bool{
	VIN:      true,
	DTCFault: true,
	Beacon:   true,
}

// Name resolves an id to its canonical field name.
func Name(id uint16) (string, bool) {
	def, ok := Defs[id]
	if !ok {
		return "", false
	}
	return def.Name, true
}
