package max31865

type WireCount int

const (
	WireCount2 WireCount = iota
	WireCount3
	WireCount4
)

const (
	configReg uint8 = iota
	rtdMsbReg
	rtdLsbReg
	hFaultMsbReg
	hFaultLsbReg
	lFaultMsbReg
	lFaultLsbReg
	faultStatReg
)

// Fault status bits
const (
	faultHighThresh uint8 = 7
	faultLowThresh  uint8 = 6
	faultRefInLow   uint8 = 5
	faultRefInHigh  uint8 = 4
	faultRtdInLow   uint8 = 3
	faultOvUv       uint8 = 2
)

// Config register bits
const (
	configFlagFilter50Hz     uint8 = 0
	configFlagFaultClear     uint8 = 1
	configFlagWireCount      uint8 = 4
	configFlagOneShot        uint8 = 5
	configFlagContinuousMode uint8 = 6
	configFlagBiasVoltage    uint8 = 7
)

// Bits that must be written as zero when clearing a fault: one-shot and the
// fault detection cycle.
const configClearMask uint8 = 0x2C

// The RTD data registers hold a 15-bit ratio of RTD to reference resistance.
const codeFullScale = 1 << 15
