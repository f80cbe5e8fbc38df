// Package virtual provides an in-memory [ecat.Bus] with simulated
// drives. The simulation implements enough of the object dictionary,
// the PDO assignment protocol and the CiA 402 power stage reactions to
// run the full driver against it, without any hardware or external
// process. Used by the tests and the examples.
package virtual

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/samsamfire/goelmo/pkg/cia402"
	"github.com/samsamfire/goelmo/pkg/ecat"
	"github.com/samsamfire/goelmo/pkg/od"
	"github.com/samsamfire/goelmo/pkg/pdo"
)

var statuswordMap = map[cia402.DriveState]uint16{
	cia402.StateNA:               0x0000,
	cia402.StateSwitchOnDisabled: 0x0040,
	cia402.StateReadyToSwitchOn:  0x0021,
	cia402.StateSwitchedOn:       0x0023,
	cia402.StateOperationEnabled: 0x0027,
	cia402.StateQuickStopActive:  0x0007,
	cia402.StateFault:            0x0008,
}

// Device is one simulated drive. All accessors are safe for concurrent
// use.
type Device struct {
	mu         sync.Mutex
	objects    map[uint32][]byte
	driveState cia402.DriveState
	state      ecat.State
	frozen     bool
	sdoWrites  int

	// Last received targets, echoed back as actual values
	targetPosition int32
	targetVelocity int32
	targetTorque   int16
}

func objectKey(index uint16, subindex uint8) uint32 {
	return uint32(index)<<8 | uint32(subindex)
}

func newDevice() *Device {
	d := &Device{
		objects:    make(map[uint32][]byte),
		driveState: cia402.StateSwitchOnDisabled,
		state:      ecat.StatePreOp,
	}
	d.setObjectUint16(od.EntryControlword, 0, 0)
	d.setObjectUint8(od.EntryModesOfOperation, 0, 0)
	d.setObjectUint16(od.EntryErrorCode, 0, 0)
	d.setObjectUint32(od.EntryMotorRatedCurrent, 0, 5000)
	d.setObjectUint32(od.EntryMotorRatedTorque, 0, 5000)
	d.setObjectUint16(od.EntryMaxCurrent, 0, 10000)
	d.setObjectUint8(od.EntryRxPdoAssignment, 0, 0)
	d.setObjectUint8(od.EntryTxPdoAssignment, 0, 0)
	return d
}

func (d *Device) setObjectUint8(index uint16, subindex uint8, value uint8) {
	d.objects[objectKey(index, subindex)] = []byte{value}
}

func (d *Device) setObjectUint16(index uint16, subindex uint8, value uint16) {
	data := make([]byte, 2)
	binary.LittleEndian.PutUint16(data, value)
	d.objects[objectKey(index, subindex)] = data
}

func (d *Device) setObjectUint32(index uint16, subindex uint8, value uint32) {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, value)
	d.objects[objectKey(index, subindex)] = data
}

// applyControlword reacts to a received controlword the way the power
// stage would. Only the exact command words of the state diagram are
// recognized, which is all this driver ever issues.
func (d *Device) applyControlword(controlword uint16) {
	if d.frozen {
		return
	}
	switch controlword {
	case 0x0080: // fault reset
		if d.driveState == cia402.StateFault {
			d.driveState = cia402.StateSwitchOnDisabled
		}
	case 0x0006: // shutdown
		switch d.driveState {
		case cia402.StateSwitchOnDisabled,
			cia402.StateSwitchedOn,
			cia402.StateOperationEnabled:
			d.driveState = cia402.StateReadyToSwitchOn
		}
	case 0x0007: // switch on / disable operation
		switch d.driveState {
		case cia402.StateReadyToSwitchOn, cia402.StateOperationEnabled:
			d.driveState = cia402.StateSwitchedOn
		}
	case 0x000F: // enable operation
		if d.driveState == cia402.StateSwitchedOn {
			d.driveState = cia402.StateOperationEnabled
		}
	case 0x0002: // quick stop
		if d.driveState == cia402.StateOperationEnabled {
			d.driveState = cia402.StateQuickStopActive
		}
	case 0x0000: // disable voltage
		switch d.driveState {
		case cia402.StateReadyToSwitchOn,
			cia402.StateSwitchedOn,
			cia402.StateOperationEnabled,
			cia402.StateQuickStopActive:
			d.driveState = cia402.StateSwitchOnDisabled
		}
	}
}

// rxType resolves the active command layout from the first assigned
// object, mirroring how the real drive interprets x1C12.
func (d *Device) rxType() pdo.RxType {
	count := d.objects[objectKey(od.EntryRxPdoAssignment, 0)]
	if len(count) == 0 || count[0] == 0 {
		return pdo.RxNone
	}
	first := d.objects[objectKey(od.EntryRxPdoAssignment, 1)]
	if len(first) < 2 {
		return pdo.RxNone
	}
	switch binary.LittleEndian.Uint16(first) {
	case 0x1605:
		return pdo.RxStandard
	case 0x1602:
		return pdo.RxCST
	default:
		return pdo.RxNone
	}
}

func (d *Device) txType() pdo.TxType {
	count := d.objects[objectKey(od.EntryTxPdoAssignment, 0)]
	if len(count) == 0 || count[0] == 0 {
		return pdo.TxNone
	}
	first := d.objects[objectKey(od.EntryTxPdoAssignment, 1)]
	if len(first) < 2 {
		return pdo.TxNone
	}
	switch binary.LittleEndian.Uint16(first) {
	case 0x1A03:
		return pdo.TxStandard
	case 0x1A02:
		return pdo.TxCST
	default:
		return pdo.TxNone
	}
}

// Freeze stops the power stage from reacting to controlwords. Received
// frames are still decoded and echoed.
func (d *Device) Freeze() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frozen = true
}

// Unfreeze re-enables the power stage reactions.
func (d *Device) Unfreeze() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frozen = false
}

// InjectFault puts the drive in the FAULT state with the given code.
func (d *Device) InjectFault(code uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.driveState = cia402.StateFault
	d.setObjectUint16(od.EntryErrorCode, 0, code)
}

// SetDriveState forces the power stage state.
func (d *Device) SetDriveState(state cia402.DriveState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.driveState = state
}

// DriveState returns the current power stage state.
func (d *Device) DriveState() cia402.DriveState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.driveState
}

// State returns the current slave transport state.
func (d *Device) State() ecat.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// SdoWriteCount returns the number of mailbox writes received.
func (d *Device) SdoWriteCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sdoWrites
}

// SetObject installs raw bytes at an object dictionary entry.
func (d *Device) SetObject(index uint16, subindex uint8, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.objects[objectKey(index, subindex)] = append([]byte(nil), data...)
}

// RemoveObject deletes an object dictionary entry, subsequent reads
// fail.
func (d *Device) RemoveObject(index uint16, subindex uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.objects, objectKey(index, subindex))
}

// Object returns the raw bytes of an object dictionary entry.
func (d *Device) Object(index uint16, subindex uint8) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.objects[objectKey(index, subindex)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Bus is an in-memory [ecat.Bus] holding simulated drives by address.
type Bus struct {
	mu      sync.Mutex
	devices map[uint16]*Device
}

func NewBus() *Bus {
	return &Bus{devices: make(map[uint16]*Device)}
}

// AddDevice creates a simulated drive at the given address and returns
// it for test orchestration.
func (b *Bus) AddDevice(address uint16) *Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	device := newDevice()
	b.devices[address] = device
	return device
}

func (b *Bus) device(address uint16) (*Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	device, ok := b.devices[address]
	if !ok {
		return nil, fmt.Errorf("no device at address %v", address)
	}
	return device, nil
}

func (b *Bus) WriteRxPdo(address uint16, data []byte) error {
	device, err := b.device(address)
	if err != nil {
		return err
	}
	device.mu.Lock()
	defer device.mu.Unlock()

	switch device.rxType() {
	case pdo.RxStandard:
		frame := pdo.RxFrameStandard{}
		err := frame.UnmarshalBinary(data)
		if err != nil {
			return err
		}
		device.targetPosition = frame.TargetPosition
		device.targetVelocity = frame.TargetVelocity
		device.targetTorque = frame.TargetTorque
		device.setObjectUint8(od.EntryModesOfOperation, 0, uint8(frame.ModeOfOperation))
		device.applyControlword(frame.Controlword)
	case pdo.RxCST:
		frame := pdo.RxFrameCST{}
		err := frame.UnmarshalBinary(data)
		if err != nil {
			return err
		}
		device.targetTorque = frame.TargetTorque
		device.setObjectUint8(od.EntryModesOfOperation, 0, uint8(frame.ModeOfOperation))
		device.applyControlword(frame.Controlword)
	default:
		return fmt.Errorf("no rx pdo mapped on device %v", address)
	}
	return nil
}

func (b *Bus) ReadTxPdo(address uint16) ([]byte, error) {
	device, err := b.device(address)
	if err != nil {
		return nil, err
	}
	device.mu.Lock()
	defer device.mu.Unlock()

	statusword := statuswordMap[device.driveState]
	switch device.txType() {
	case pdo.TxStandard:
		frame := pdo.TxFrameStandard{
			ActualPosition: device.targetPosition,
			ActualVelocity: device.targetVelocity,
			Statusword:     statusword,
			ActualCurrent:  device.targetTorque,
			BusVoltage:     48000,
		}
		return frame.MarshalBinary()
	case pdo.TxCST:
		frame := pdo.TxFrameCST{
			ActualPosition: device.targetPosition,
			ActualTorque:   device.targetTorque,
			Statusword:     statusword,
			ActualVelocity: device.targetVelocity,
		}
		return frame.MarshalBinary()
	default:
		return nil, fmt.Errorf("no tx pdo mapped on device %v", address)
	}
}

func (b *Bus) SdoRead(address uint16, index uint16, subindex uint8, buf []byte) (int, error) {
	device, err := b.device(address)
	if err != nil {
		return 0, err
	}
	device.mu.Lock()
	defer device.mu.Unlock()

	// The statusword is synthesized from the live power stage state
	if index == od.EntryStatusword && subindex == 0 {
		device.setObjectUint16(od.EntryStatusword, 0, statuswordMap[device.driveState])
	}
	data, ok := device.objects[objectKey(index, subindex)]
	if !ok {
		return 0, fmt.Errorf("object x%x|x%x does not exist", index, subindex)
	}
	n := copy(buf, data)
	return n, nil
}

func (b *Bus) SdoWrite(address uint16, index uint16, subindex uint8, data []byte) error {
	device, err := b.device(address)
	if err != nil {
		return err
	}
	device.mu.Lock()
	defer device.mu.Unlock()

	device.sdoWrites++
	device.objects[objectKey(index, subindex)] = append([]byte(nil), data...)
	if index == od.EntryControlword && subindex == 0 && len(data) >= 2 {
		device.applyControlword(binary.LittleEndian.Uint16(data))
	}
	return nil
}

func (b *Bus) PdoSizes(address uint16) (ecat.PdoSizes, error) {
	device, err := b.device(address)
	if err != nil {
		return ecat.PdoSizes{}, err
	}
	device.mu.Lock()
	defer device.mu.Unlock()
	return ecat.PdoSizes{
		Rx: uint16(pdo.RxFrameSize(device.rxType())),
		Tx: uint16(pdo.TxFrameSize(device.txType())),
	}, nil
}

func (b *Bus) SetState(state ecat.State, address uint16) error {
	device, err := b.device(address)
	if err != nil {
		return err
	}
	device.mu.Lock()
	defer device.mu.Unlock()
	device.state = state
	return nil
}
