// Package cia402 implements the CiA 402 power stage state machine :
// statusword decoding, controlword bit patterns and the transition
// lookup between drive states. The package is free of any I/O, the
// execution engines driving a physical device live in package drive.
package cia402

import "fmt"

// Possible drive states, derived from the statusword.
// States are never set directly on the drive, only requested through
// controlword transitions.
type DriveState uint8

const (
	StateNA DriveState = iota
	StateSwitchOnDisabled
	StateReadyToSwitchOn
	StateSwitchedOn
	StateOperationEnabled
	StateQuickStopActive
	StateFault
)

var stateMap = map[DriveState]string{
	StateNA:               "N/A",
	StateSwitchOnDisabled: "SWITCH-ON-DISABLED",
	StateReadyToSwitchOn:  "READY-TO-SWITCH-ON",
	StateSwitchedOn:       "SWITCHED-ON",
	StateOperationEnabled: "OPERATION-ENABLED",
	StateQuickStopActive:  "QUICK-STOP-ACTIVE",
	StateFault:            "FAULT",
}

func (s DriveState) String() string {
	name, ok := stateMap[s]
	if !ok {
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
	return name
}
