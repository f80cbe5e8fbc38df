// Package drive implements the device driver for an Elmo motor drive
// on an EtherCAT network. It exposes a physical unit command/reading
// interface towards a motion controller and internally drives the
// CiA 402 power stage state machine, negotiates the cyclic data layout
// and converts between physical units and the drive raw representation.
//
// Two execution contexts interact with a [Drive] : a hard real-time
// cyclic thread invoking [Drive.UpdateWrite] / [Drive.UpdateRead] once
// per fieldbus cycle, and external threads staging commands, requesting
// states and reading back telemetry. Shared state is partitioned into
// three independently locked resources (device/state machine, staged
// command, reading) so that no external call ever blocks the cyclic
// path beyond a short lived lock.
package drive

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/samsamfire/goelmo/pkg/cia402"
	"github.com/samsamfire/goelmo/pkg/config"
	"github.com/samsamfire/goelmo/pkg/ecat"
	"github.com/samsamfire/goelmo/pkg/od"
	"github.com/samsamfire/goelmo/pkg/pdo"
	"github.com/samsamfire/goelmo/pkg/sdo"
)

// Interval at which a blocking state request re-checks the engine,
// with the device lock released in between.
const stateChangePollInterval = time.Millisecond

type Drive struct {
	logger  *slog.Logger
	name    string
	bus     ecat.Bus
	address uint16
	client  *sdo.Client
	mapper  *pdo.Mapper

	// Device and state machine resource
	mu              sync.Mutex
	configuration   config.Configuration
	layout          pdo.Layout
	pdoSizes        ecat.PdoSizes
	controlword     cia402.Controlword
	modeOfOperation cia402.ModeOfOperation
	allowModeChange bool

	// Cycle paced state machine engine
	conductStateChange    bool
	stateChangeSuccessful bool
	targetState           cia402.DriveState
	stateChangeTime       time.Time
	targetStateReadings   int
	hasRead               bool

	// Staged command resource
	stagedMu      sync.Mutex
	stagedCommand Command

	// Reading resource
	readingMu sync.Mutex
	reading   Reading
}

// New creates a driver for the drive at the given slave address.
func New(bus ecat.Bus, address uint16, name string, cfg config.Configuration, logger *slog.Logger) (*Drive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("service", "[DRIVE]", "name", name)
	d := &Drive{
		logger:  logger,
		name:    name,
		bus:     bus,
		address: address,
		client:  sdo.NewClient(bus, address, logger),
	}
	d.mapper = pdo.NewMapper(d.client, logger, cfg.ConfigRunSdoVerifyTimeout)
	err := d.LoadConfiguration(cfg)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Drive) Name() string {
	return d.name
}

// LoadConfiguration installs a new configuration. Must not be called
// while cyclic exchange is running.
func (d *Drive) LoadConfiguration(cfg config.Configuration) error {
	err := cfg.Validate()
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.configuration = cfg
	// Runtime mode switching needs both layouts standard, the CST
	// frames have no position / velocity fields to switch to.
	d.allowModeChange = cfg.UseMultipleModeOfOperations &&
		cfg.RxPdoType == pdo.RxStandard &&
		cfg.TxPdoType == pdo.TxStandard
	d.modeOfOperation = cfg.ModeOfOperation
	d.mu.Unlock()

	d.readingMu.Lock()
	d.reading.configure(cfg)
	d.readingMu.Unlock()
	return nil
}

// Configuration returns a copy of the active configuration.
func (d *Drive) Configuration() config.Configuration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.configuration
}

// RunPreopConfiguration performs the hardware configuration that must
// happen in the pre-operational transport state : motor rated current
// resolution, forcing READY-TO-SWITCH-ON over SDO, PDO mapping, initial
// mode of operation and the current limits. Partial failures do not
// abort the sequence; a single ConfigurationError is reported when any
// step failed.
func (d *Drive) RunPreopConfiguration() error {
	cfg := d.Configuration()
	success := true

	// Rated current not specified, load the hardware value
	if cfg.MotorRatedCurrentA == 0 {
		ratedCurrent, err := d.client.ReadUint32(od.EntryMotorRatedCurrent, 0)
		if err != nil || ratedCurrent == 0 {
			d.logger.Error("failed to load motor rated current", "error", err)
			success = false
		} else {
			cfg.MotorRatedCurrentA = float64(ratedCurrent) / 1000.0
			err = d.LoadConfiguration(cfg)
			if err != nil {
				success = false
			}
		}
	}

	err := d.SetStateViaSdo(cia402.StateReadyToSwitchOn)
	if err != nil {
		success = false
	}

	_, err = d.mapper.Map(cfg.RxPdoType, cfg.TxPdoType)
	if err != nil {
		d.addError(mappingErrorType(err))
		success = false
	}

	err = d.client.WriteVerified(od.EntryModesOfOperation, 0,
		int8(cfg.ModeOfOperation), cfg.ConfigRunSdoVerifyTimeout)
	if err != nil {
		success = false
	}

	err = d.autoConfigurePdoSizes()
	if err != nil {
		success = false
	}

	// The rated torque is set to the rated current value : the torque
	// to current conversion is handled in this driver, not on the
	// hardware.
	ratedCurrent := uint32(math.Round(1000.0 * cfg.MotorRatedCurrentA))
	err = d.client.WriteVerified(od.EntryMotorRatedCurrent, 0, ratedCurrent, cfg.ConfigRunSdoVerifyTimeout)
	if err != nil {
		success = false
	}
	err = d.client.WriteVerified(od.EntryMotorRatedTorque, 0, ratedCurrent, cfg.ConfigRunSdoVerifyTimeout)
	if err != nil {
		success = false
	}
	maxCurrent := uint16(math.Floor(1000.0 * cfg.MaxCurrentA))
	err = d.client.WriteVerified(od.EntryMaxCurrent, 0, maxCurrent, cfg.ConfigRunSdoVerifyTimeout)
	if err != nil {
		success = false
	}

	if !success {
		d.addError(ErrorTypeConfiguration)
		return fmt.Errorf("preop configuration of %q failed", d.name)
	}
	return nil
}

// Startup adopts the configured layout pair as the active cyclic
// layout. The pair must have been negotiated completely; a partially
// mapped pair is a configuration error.
func (d *Drive) Startup() error {
	cfg := d.Configuration()
	if cfg.RxPdoType == pdo.RxNone {
		d.addError(ErrorTypeRxPdoType)
		return fmt.Errorf("rx : %w", pdo.ErrTypeNotConfigured)
	}
	if cfg.TxPdoType == pdo.TxNone {
		d.addError(ErrorTypeTxPdoType)
		return fmt.Errorf("tx : %w", pdo.ErrTypeNotConfigured)
	}
	negotiated := d.mapper.Current()
	if negotiated.Rx != cfg.RxPdoType || negotiated.Tx != cfg.TxPdoType {
		d.addError(ErrorTypeConfiguration)
		return ErrLayoutNotNegotiated
	}
	d.mu.Lock()
	d.layout = negotiated
	d.mu.Unlock()
	return nil
}

// Shutdown requests the transport INIT state for this slave.
func (d *Drive) Shutdown() error {
	return d.bus.SetState(ecat.StateInit, d.address)
}

func (d *Drive) autoConfigurePdoSizes() error {
	sizes, err := d.bus.PdoSizes(d.address)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.pdoSizes = sizes
	cfg := d.configuration
	d.mu.Unlock()
	if int(sizes.Rx) != pdo.RxFrameSize(cfg.RxPdoType) ||
		int(sizes.Tx) != pdo.TxFrameSize(cfg.TxPdoType) {
		d.logger.Warn("negotiated pdo sizes do not match configured layout",
			"rx", sizes.Rx, "tx", sizes.Tx,
			"rxExpected", pdo.RxFrameSize(cfg.RxPdoType),
			"txExpected", pdo.TxFrameSize(cfg.TxPdoType),
		)
	}
	return nil
}

// PdoSizes returns the negotiated cyclic frame sizes.
func (d *Drive) PdoSizes() ecat.PdoSizes {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pdoSizes
}

// StageCommand converts a physical unit command and stores it as the
// one staged command consumed by the next cyclic write. Conversion
// factors are recomputed from the live configuration on every call.
// Never blocks, never touches the transport.
func (d *Drive) StageCommand(command Command) {
	d.mu.Lock()
	cfg := d.configuration
	allowModeChange := d.allowModeChange
	d.mu.Unlock()

	command.convert(factorsFromConfiguration(cfg), cfg.UseRawCommands)

	d.stagedMu.Lock()
	d.stagedCommand = command
	d.stagedMu.Unlock()

	if allowModeChange {
		d.mu.Lock()
		d.modeOfOperation = command.ModeOfOperation
		d.mu.Unlock()
	}
}

// GetReading returns a copy of the last telemetry snapshot including
// the error and fault logs.
func (d *Drive) GetReading() Reading {
	d.readingMu.Lock()
	defer d.readingMu.Unlock()
	return d.reading.clone()
}

// SetStateViaSdo drives the state machine to the target immediately
// over the service data channel : the statusword is read once, then the
// precomputed transition chain for the observed pair is written step by
// step without read-back in between. Used during setup and forced
// reconfiguration, never on the cyclic path.
func (d *Drive) SetStateViaSdo(target cia402.DriveState) error {
	rawStatusword, err := d.client.ReadUint16(od.EntryStatusword, 0)
	if err != nil {
		d.addError(ErrorTypeSdoStateTransition)
		return err
	}
	current := cia402.Statusword(rawStatusword).State()
	chain, err := cia402.TransitionChain(target, current)
	if err != nil {
		d.addError(ErrorTypeSdoStateTransition)
		return err
	}
	for _, transition := range chain {
		err := d.client.WriteRaw(od.EntryControlword, 0, uint16(transition.Controlword()))
		if err != nil {
			d.addError(ErrorTypeSdoStateTransition)
			return fmt.Errorf("transition %v from %v towards %v : %w", transition, current, target, err)
		}
	}
	return nil
}

// RequestState arms the cycle paced state machine engine with a new
// target. With waitForCompletion the call blocks until the engine
// confirms the target or maxWait elapses; the device lock is released
// during every sleep interval so the cyclic thread keeps running.
// maxWait of zero means the configured drive state change max timeout.
// On timeout the armed request is left as-is, a later cycle or a
// re-request may still complete it.
func (d *Drive) RequestState(target cia402.DriveState, waitForCompletion bool, maxWait time.Duration) error {
	d.mu.Lock()
	d.stateChangeSuccessful = false
	d.conductStateChange = true
	d.targetState = target
	d.targetStateReadings = 0
	// At least one genuinely new reading before engaging
	d.hasRead = false
	d.stateChangeTime = time.Now()
	if maxWait <= 0 {
		maxWait = d.configuration.DriveStateChangeMaxTimeout
	}
	if !waitForCompletion {
		d.mu.Unlock()
		return nil
	}

	start := time.Now()
	for {
		if d.stateChangeSuccessful {
			d.mu.Unlock()
			return nil
		}
		if time.Since(start) > maxWait {
			d.mu.Unlock()
			d.logger.Error("state change timed out", "target", target.String())
			return ErrStateChangeTimeout
		}
		// The lock MUST be released while sleeping, cyclic writes and
		// therefore state changes could not happen at all otherwise.
		d.mu.Unlock()
		time.Sleep(stateChangePollInterval)
		d.mu.Lock()
	}
}

// UpdateWrite builds and sends the cyclic command frame : staged
// command, active controlword and mode of operation. Called once per
// cycle from the cyclic thread, before [Drive.UpdateRead].
func (d *Drive) UpdateWrite() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.modeOfOperation == cia402.ModeNA {
		d.addError(ErrorTypeModeOfOperation)
		return ErrModeOfOperationNotSet
	}

	// Engage the state machine first so the controlword it produces is
	// part of this cycle's frame.
	if d.conductStateChange && d.hasRead {
		d.engageStateMachine()
	}

	d.stagedMu.Lock()
	command := d.stagedCommand
	d.stagedMu.Unlock()

	switch d.layout.Rx {
	case pdo.RxStandard:
		frame := pdo.RxFrameStandard{
			TargetPosition:  command.TargetPositionRaw(),
			TargetVelocity:  command.TargetVelocityRaw(),
			TargetTorque:    command.TargetTorqueRaw(),
			MaxTorque:       command.MaxTorqueRaw(),
			Controlword:     uint16(d.controlword),
			ModeOfOperation: int8(d.modeOfOperation),
			TorqueOffset:    command.TorqueOffsetRaw(),
		}
		data, err := frame.MarshalBinary()
		if err != nil {
			return err
		}
		return d.bus.WriteRxPdo(d.address, data)
	case pdo.RxCST:
		frame := pdo.RxFrameCST{
			TargetTorque:    command.TargetTorqueRaw(),
			Controlword:     uint16(d.controlword),
			ModeOfOperation: int8(d.modeOfOperation),
		}
		data, err := frame.MarshalBinary()
		if err != nil {
			return err
		}
		return d.bus.WriteRxPdo(d.address, data)
	default:
		d.addError(ErrorTypeRxPdoType)
		return fmt.Errorf("rx : %w", pdo.ErrTypeNotConfigured)
	}
}

// UpdateRead receives and decodes the cyclic telemetry frame and
// publishes it into the reading. On a FAULT state one additional SDO
// read fetches the fault code. Called once per cycle from the cyclic
// thread, after [Drive.UpdateWrite].
func (d *Drive) UpdateRead() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := d.bus.ReadTxPdo(d.address)
	if err != nil {
		return err
	}

	var state cia402.DriveState
	switch d.layout.Tx {
	case pdo.TxStandard:
		frame := pdo.TxFrameStandard{}
		err := frame.UnmarshalBinary(data)
		if err != nil {
			return err
		}
		d.readingMu.Lock()
		d.reading.actualPositionRaw = frame.ActualPosition
		d.reading.digitalInputs = frame.DigitalInputs
		d.reading.actualVelocityRaw = frame.ActualVelocity
		d.reading.statusword = cia402.Statusword(frame.Statusword)
		d.reading.analogInput = frame.AnalogInput
		d.reading.actualCurrentRaw = frame.ActualCurrent
		d.reading.busVoltage = frame.BusVoltage
		d.reading.driveState = d.reading.statusword.State()
		state = d.reading.driveState
		d.readingMu.Unlock()
	case pdo.TxCST:
		frame := pdo.TxFrameCST{}
		err := frame.UnmarshalBinary(data)
		if err != nil {
			return err
		}
		d.readingMu.Lock()
		d.reading.actualPositionRaw = frame.ActualPosition
		// Torque telemetry is a current reading, converted on access
		d.reading.actualCurrentRaw = frame.ActualTorque
		d.reading.statusword = cia402.Statusword(frame.Statusword)
		d.reading.actualVelocityRaw = frame.ActualVelocity
		d.reading.driveState = d.reading.statusword.State()
		state = d.reading.driveState
		d.readingMu.Unlock()
	default:
		d.addError(ErrorTypeTxPdoType)
		return fmt.Errorf("tx : %w", pdo.ErrTypeNotConfigured)
	}

	// Gates the cycle paced engine on genuinely new data
	d.hasRead = true

	if state == cia402.StateFault {
		faultCode, err := d.client.ReadUint16(od.EntryErrorCode, 0)
		if err != nil {
			d.addError(ErrorTypeErrorReading)
		} else {
			d.readingMu.Lock()
			d.reading.addFault(faultCode)
			d.readingMu.Unlock()
		}
	}
	return nil
}

// engageStateMachine advances the cycle paced engine by one evaluation.
// Caller holds the device lock.
func (d *Drive) engageStateMachine() {
	d.readingMu.Lock()
	current := d.reading.driveState
	d.readingMu.Unlock()

	if current == d.targetState {
		d.targetStateReadings++
		if d.targetStateReadings >= d.configuration.MinSuccessfulTargetStateReadings {
			d.conductStateChange = false
			d.targetStateReadings = 0
			d.stateChangeSuccessful = true
			d.logger.Info("state change confirmed", "state", current.String())
			return
		}
	} else if time.Since(d.stateChangeTime) > d.configuration.DriveStateChangeMinTimeout {
		// Give the drive at least the minimum dwell time to react
		// before issuing the next transition.
		controlword, err := cia402.NextControlword(d.targetState, current)
		if err != nil {
			d.addError(ErrorTypePdoStateTransition)
		}
		d.controlword = controlword
		d.stateChangeTime = time.Now()
	}

	// Force a new reading before the next evaluation
	d.hasRead = false
}

// addError appends a typed entry to the reading error log and emits
// the corresponding log event.
func (d *Drive) addError(errorType ErrorType) {
	d.readingMu.Lock()
	d.reading.addError(errorType)
	d.readingMu.Unlock()
	d.logger.Error("drive error", "type", errorType.String())
}

func mappingErrorType(err error) ErrorType {
	if errors.Is(err, pdo.ErrTypeNotConfigured) {
		return ErrorTypeRxPdoType
	}
	return ErrorTypePdoMapping
}
