package drive

import (
	"math"
	"slices"
	"time"

	"github.com/samsamfire/goelmo/pkg/cia402"
	"github.com/samsamfire/goelmo/pkg/config"
)

// ErrorEntry is one typed entry of the reading error log.
type ErrorEntry struct {
	Type ErrorType
	Time time.Time
}

// Fault is one hardware fault code read from the drive after the
// statusword reported the FAULT state.
type Fault struct {
	Code uint16
	Time time.Time
}

// Reading is the last decoded telemetry snapshot plus the accumulated
// error and fault logs. The drive owns the single live instance;
// callers always receive copies.
type Reading struct {
	actualPositionRaw int32
	actualVelocityRaw int32
	actualCurrentRaw  int16
	digitalInputs     uint32
	analogInput       int16
	busVoltage        uint32
	statusword        cia402.Statusword
	driveState        cia402.DriveState

	positionFactor   float64 // encoder counts per rad
	currentFactor    float64 // raw per A
	motorConstant    float64
	gearRatio        float64
	errorCapacity    int
	appendEqualError bool

	errors []ErrorEntry
	faults []Fault
}

func (r *Reading) configure(cfg config.Configuration) {
	r.positionFactor = float64(cfg.PositionEncoderResolution) / (2.0 * math.Pi)
	r.currentFactor = 0
	if cfg.MotorRatedCurrentA > 0 {
		r.currentFactor = 1000.0 / cfg.MotorRatedCurrentA
	}
	r.motorConstant = cfg.MotorConstant
	r.gearRatio = cfg.GearRatio
	r.errorCapacity = cfg.ErrorStorageCapacity
	r.appendEqualError = cfg.ForceAppendEqualError
}

// ActualPosition in rad.
func (r *Reading) ActualPosition() float64 {
	if r.positionFactor == 0 {
		return 0
	}
	return float64(r.actualPositionRaw) / r.positionFactor
}

// ActualVelocity in rad/s.
func (r *Reading) ActualVelocity() float64 {
	if r.positionFactor == 0 {
		return 0
	}
	return float64(r.actualVelocityRaw) / r.positionFactor
}

// ActualCurrent in A.
func (r *Reading) ActualCurrent() float64 {
	if r.currentFactor == 0 {
		return 0
	}
	return float64(r.actualCurrentRaw) / r.currentFactor
}

// ActualTorque in N·m, derived from the measured motor current.
func (r *Reading) ActualTorque() float64 {
	return r.ActualCurrent() * r.motorConstant * r.gearRatio
}

func (r *Reading) DigitalInputs() uint32          { return r.digitalInputs }
func (r *Reading) AnalogInput() int16             { return r.analogInput }
func (r *Reading) BusVoltage() uint32             { return r.busVoltage }
func (r *Reading) Statusword() cia402.Statusword  { return r.statusword }
func (r *Reading) DriveState() cia402.DriveState  { return r.driveState }
func (r *Reading) Errors() []ErrorEntry           { return r.errors }
func (r *Reading) Faults() []Fault                { return r.faults }

// addError appends a typed entry. Consecutive duplicates are dropped
// unless force append is configured, and the log is bounded by the
// configured capacity, oldest entries first.
func (r *Reading) addError(errorType ErrorType) {
	if !r.appendEqualError && len(r.errors) > 0 &&
		r.errors[len(r.errors)-1].Type == errorType {
		return
	}
	r.errors = append(r.errors, ErrorEntry{Type: errorType, Time: time.Now()})
	if r.errorCapacity > 0 && len(r.errors) > r.errorCapacity {
		r.errors = r.errors[len(r.errors)-r.errorCapacity:]
	}
}

func (r *Reading) addFault(code uint16) {
	r.faults = append(r.faults, Fault{Code: code, Time: time.Now()})
	if r.errorCapacity > 0 && len(r.faults) > r.errorCapacity {
		r.faults = r.faults[len(r.faults)-r.errorCapacity:]
	}
}

// clone returns a deep copy safe to hand out to callers.
func (r *Reading) clone() Reading {
	copied := *r
	copied.errors = slices.Clone(r.errors)
	copied.faults = slices.Clone(r.faults)
	return copied
}
