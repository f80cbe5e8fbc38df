// Package config holds the static per-drive parameters and their file
// loaders. The driver only consumes the resulting [Configuration]
// value; it is loaded once at startup and may be revised through an
// explicit reconfiguration call, never during cyclic exchange.
package config

import (
	"errors"
	"time"

	"github.com/samsamfire/goelmo/pkg/cia402"
	"github.com/samsamfire/goelmo/pkg/pdo"
)

type Configuration struct {
	// Timeouts and debounce of the state machine engines
	ConfigRunSdoVerifyTimeout        time.Duration
	DriveStateChangeMinTimeout       time.Duration
	DriveStateChangeMaxTimeout       time.Duration
	MinSuccessfulTargetStateReadings int

	// Cyclic data layout and control mode
	RxPdoType       pdo.RxType
	TxPdoType       pdo.TxType
	ModeOfOperation cia402.ModeOfOperation

	// Motor and encoder parameters
	PositionEncoderResolution uint32
	GearRatio                 float64
	MotorConstant             float64
	MotorRatedCurrentA        float64 // 0 means load from hardware during preop
	MaxCurrentA               float64

	// Behaviour flags
	UseRawCommands              bool
	UseMultipleModeOfOperations bool

	// Reading error log behaviour
	ErrorStorageCapacity  int
	ForceAppendEqualError bool
}

// Default returns a [Configuration] with every tunable at its default.
// Hardware parameters still have to be filled in.
func Default() Configuration {
	c := Configuration{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero valued tunables with their defaults.
func (c *Configuration) ApplyDefaults() {
	if c.ConfigRunSdoVerifyTimeout == 0 {
		c.ConfigRunSdoVerifyTimeout = 20 * time.Millisecond
	}
	if c.DriveStateChangeMinTimeout == 0 {
		c.DriveStateChangeMinTimeout = 5 * time.Millisecond
	}
	if c.DriveStateChangeMaxTimeout == 0 {
		c.DriveStateChangeMaxTimeout = 300 * time.Millisecond
	}
	if c.MinSuccessfulTargetStateReadings == 0 {
		c.MinSuccessfulTargetStateReadings = 3
	}
	if c.GearRatio == 0 {
		c.GearRatio = 1.0
	}
	if c.MotorConstant == 0 {
		c.MotorConstant = 1.0
	}
	if c.ErrorStorageCapacity == 0 {
		c.ErrorStorageCapacity = 25
	}
}

// Validate checks the parameters a drive cannot operate without.
// MotorRatedCurrentA may be zero, the value is then read from the
// hardware during pre-operational configuration.
func (c *Configuration) Validate() error {
	if c.PositionEncoderResolution == 0 {
		return errors.New("position encoder resolution must be set")
	}
	if c.MaxCurrentA <= 0 {
		return errors.New("max current must be positive")
	}
	if c.GearRatio <= 0 {
		return errors.New("gear ratio must be positive")
	}
	if c.MotorConstant <= 0 {
		return errors.New("motor constant must be positive")
	}
	if c.MotorRatedCurrentA < 0 {
		return errors.New("motor rated current may not be negative")
	}
	if c.DriveStateChangeMinTimeout > c.DriveStateChangeMaxTimeout {
		return errors.New("drive state change min timeout exceeds max timeout")
	}
	return nil
}
