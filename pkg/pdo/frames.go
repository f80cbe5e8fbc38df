package pdo

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Cyclic frame layouts. Field order matches the assigned PDO objects,
// values are packed little endian without padding.

type RxFrameStandard struct {
	TargetPosition  int32
	TargetVelocity  int32
	TargetTorque    int16
	MaxTorque       uint16
	Controlword     uint16
	ModeOfOperation int8
	TorqueOffset    int16
}

type RxFrameCST struct {
	TargetTorque    int16
	Controlword     uint16
	ModeOfOperation int8
}

type TxFrameStandard struct {
	ActualPosition int32
	DigitalInputs  uint32
	ActualVelocity int32
	Statusword     uint16
	AnalogInput    int16
	ActualCurrent  int16
	BusVoltage     uint32
}

type TxFrameCST struct {
	ActualPosition int32
	ActualTorque   int16
	Statusword     uint16
	ActualVelocity int32
}

func marshalFrame(frame any) ([]byte, error) {
	buffer := new(bytes.Buffer)
	err := binary.Write(buffer, binary.LittleEndian, frame)
	if err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func unmarshalFrame(data []byte, frame any) error {
	expected := binary.Size(frame)
	if len(data) < expected {
		return fmt.Errorf("pdo frame too short : expected %v bytes, got %v", expected, len(data))
	}
	return binary.Read(bytes.NewReader(data), binary.LittleEndian, frame)
}

// Both directions implement both codecs : the driver sends rx and
// receives tx, a simulated drive does the opposite.

func (f *RxFrameStandard) MarshalBinary() ([]byte, error) { return marshalFrame(f) }
func (f *RxFrameCST) MarshalBinary() ([]byte, error)      { return marshalFrame(f) }
func (f *TxFrameStandard) MarshalBinary() ([]byte, error) { return marshalFrame(f) }
func (f *TxFrameCST) MarshalBinary() ([]byte, error)      { return marshalFrame(f) }

func (f *RxFrameStandard) UnmarshalBinary(data []byte) error { return unmarshalFrame(data, f) }
func (f *RxFrameCST) UnmarshalBinary(data []byte) error      { return unmarshalFrame(data, f) }
func (f *TxFrameStandard) UnmarshalBinary(data []byte) error { return unmarshalFrame(data, f) }
func (f *TxFrameCST) UnmarshalBinary(data []byte) error      { return unmarshalFrame(data, f) }

// RxFrameSize returns the byte size of the command frame for a layout
// kind, 0 when unset.
func RxFrameSize(t RxType) int {
	switch t {
	case RxStandard:
		return binary.Size(RxFrameStandard{})
	case RxCST:
		return binary.Size(RxFrameCST{})
	default:
		return 0
	}
}

// TxFrameSize returns the byte size of the telemetry frame for a layout
// kind, 0 when unset.
func TxFrameSize(t TxType) int {
	switch t {
	case TxStandard:
		return binary.Size(TxFrameStandard{})
	case TxCST:
		return binary.Size(TxFrameCST{})
	default:
		return 0
	}
}
