package cia402

import (
	"fmt"
	"strings"
)

// ModeOfOperation selects the control mode of the drive (object 0x6060).
type ModeOfOperation int8

const (
	ModeNA                        ModeOfOperation = 0
	ModeProfiledPosition          ModeOfOperation = 1
	ModeProfiledVelocity          ModeOfOperation = 3
	ModeProfiledTorque            ModeOfOperation = 4
	ModeHoming                    ModeOfOperation = 6
	ModeCyclicSynchronousPosition ModeOfOperation = 8
	ModeCyclicSynchronousVelocity ModeOfOperation = 9
	ModeCyclicSynchronousTorque   ModeOfOperation = 10
)

var modeMap = map[ModeOfOperation]string{
	ModeNA:                        "N/A",
	ModeProfiledPosition:          "ProfiledPosition",
	ModeProfiledVelocity:          "ProfiledVelocity",
	ModeProfiledTorque:            "ProfiledTorque",
	ModeHoming:                    "Homing",
	ModeCyclicSynchronousPosition: "CyclicSynchronousPosition",
	ModeCyclicSynchronousVelocity: "CyclicSynchronousVelocity",
	ModeCyclicSynchronousTorque:   "CyclicSynchronousTorque",
}

func (m ModeOfOperation) String() string {
	name, ok := modeMap[m]
	if !ok {
		return fmt.Sprintf("UNKNOWN(%d)", int8(m))
	}
	return name
}

// ParseModeOfOperation resolves a mode name as found in configuration
// files. Matching is case insensitive and accepts an optional "Mode"
// suffix, e.g. "CyclicSynchronousTorqueMode".
func ParseModeOfOperation(name string) (ModeOfOperation, error) {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	trimmed = strings.TrimSuffix(trimmed, "mode")
	if trimmed == "" || trimmed == "na" || trimmed == "n/a" {
		return ModeNA, nil
	}
	for mode, modeName := range modeMap {
		if strings.ToLower(modeName) == trimmed {
			return mode, nil
		}
	}
	return ModeNA, fmt.Errorf("unknown mode of operation : %q", name)
}
