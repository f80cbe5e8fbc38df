// Package od holds the object dictionary entries of the Elmo drive that
// this driver reads or writes over SDO. The drive exposes a fixed,
// hardware defined dictionary, so no description file is loaded.
package od

// CoE communication area
const (
	EntryRxPdoAssignment uint16 = 0x1C12
	EntryTxPdoAssignment uint16 = 0x1C13
)

// CiA 402 profile area
const (
	EntryErrorCode               uint16 = 0x603F
	EntryControlword             uint16 = 0x6040
	EntryStatusword              uint16 = 0x6041
	EntryQuickStopOptionCode     uint16 = 0x605A
	EntryModesOfOperation        uint16 = 0x6060
	EntryModesOfOperationDisplay uint16 = 0x6061
	EntryPositionActualValue     uint16 = 0x6064
	EntryVelocityActualValue     uint16 = 0x606C
	EntryTargetTorque            uint16 = 0x6071
	EntryMaxTorque               uint16 = 0x6072
	EntryMaxCurrent              uint16 = 0x6073
	EntryMotorRatedCurrent       uint16 = 0x6075
	EntryMotorRatedTorque        uint16 = 0x6076
	EntryTargetPosition          uint16 = 0x607A
	EntryTargetVelocity          uint16 = 0x60FF
)
