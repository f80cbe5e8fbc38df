package drive

import (
	"math"

	"github.com/samsamfire/goelmo/pkg/cia402"
	"github.com/samsamfire/goelmo/pkg/config"
)

// Command is a physical unit target set. The caller owns its instance;
// staging converts a copy, so the instance may be reused or discarded
// after the call.
type Command struct {
	TargetPosition  float64 // rad
	TargetVelocity  float64 // rad/s
	TargetTorque    float64 // N·m
	TorqueOffset    float64 // N·m
	ModeOfOperation cia402.ModeOfOperation

	// Raw values produced by staging
	targetPositionRaw int32
	targetVelocityRaw int32
	targetTorqueRaw   int16
	maxTorqueRaw      uint16
	torqueOffsetRaw   int16
}

func (c *Command) TargetPositionRaw() int32 { return c.targetPositionRaw }
func (c *Command) TargetVelocityRaw() int32 { return c.targetVelocityRaw }
func (c *Command) TargetTorqueRaw() int16   { return c.targetTorqueRaw }
func (c *Command) MaxTorqueRaw() uint16     { return c.maxTorqueRaw }
func (c *Command) TorqueOffsetRaw() int16   { return c.torqueOffsetRaw }

// conversionFactors translate between physical units and the drive raw
// representation. Torque is commanded as motor current, so the torque
// factor shares the current unit (per-mille of rated current).
type conversionFactors struct {
	position    float64 // rad -> encoder counts
	velocity    float64 // rad/s -> counts/s
	current     float64 // A -> per-mille of rated current
	torque      float64 // N·m -> per-mille of rated current
	maxTorqueNm float64
}

// Factors are recomputed from the live configuration at every staging
// call, a reconfiguration between cycles takes effect on the next one.
func factorsFromConfiguration(cfg config.Configuration) conversionFactors {
	f := conversionFactors{}
	f.position = float64(cfg.PositionEncoderResolution) / (2.0 * math.Pi)
	f.velocity = f.position
	if cfg.MotorRatedCurrentA > 0 {
		f.current = 1000.0 / cfg.MotorRatedCurrentA
		f.torque = f.current / (cfg.MotorConstant * cfg.GearRatio)
	}
	f.maxTorqueNm = cfg.MaxCurrentA * cfg.MotorConstant * cfg.GearRatio
	return f
}

// convert fills the raw fields. With useRaw set, the physical fields
// are taken as already-raw integers and no factor or clamp is applied
// to the targets; the max torque still derives from the configuration.
func (c *Command) convert(f conversionFactors, useRaw bool) {
	c.maxTorqueRaw = uint16(math.Round(f.maxTorqueNm * f.torque))
	if useRaw {
		c.targetPositionRaw = int32(c.TargetPosition)
		c.targetVelocityRaw = int32(c.TargetVelocity)
		c.targetTorqueRaw = int16(c.TargetTorque)
		c.torqueOffsetRaw = int16(c.TorqueOffset)
		return
	}
	torque := min(max(c.TargetTorque, -f.maxTorqueNm), f.maxTorqueNm)
	c.targetPositionRaw = int32(math.Round(c.TargetPosition * f.position))
	c.targetVelocityRaw = int32(math.Round(c.TargetVelocity * f.velocity))
	c.targetTorqueRaw = int16(math.Round(torque * f.torque))
	c.torqueOffsetRaw = int16(math.Round(c.TorqueOffset * f.torque))
}
