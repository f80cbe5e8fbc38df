package pdo_test

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/samsamfire/goelmo/pkg/ecat/virtual"
	"github.com/samsamfire/goelmo/pkg/od"
	"github.com/samsamfire/goelmo/pkg/pdo"
	"github.com/samsamfire/goelmo/pkg/sdo"
)

const testVerifyTimeout = 5 * time.Millisecond

func newTestMapper(t *testing.T) (*pdo.Mapper, *virtual.Device) {
	t.Helper()
	bus := virtual.NewBus()
	device := bus.AddDevice(1)
	client := sdo.NewClient(bus, 1, nil)
	return pdo.NewMapper(client, nil, testVerifyTimeout), device
}

func assignmentUint16(t *testing.T, device *virtual.Device, index uint16, subindex uint8) uint16 {
	t.Helper()
	data, ok := device.Object(index, subindex)
	assert.True(t, ok)
	assert.Len(t, data, 2)
	return binary.LittleEndian.Uint16(data)
}

func TestMapperNegotiation(t *testing.T) {
	mapper, device := newTestMapper(t)

	layout, err := mapper.Map(pdo.RxStandard, pdo.TxStandard)
	assert.Nil(t, err)
	assert.Equal(t, pdo.Layout{Rx: pdo.RxStandard, Tx: pdo.TxStandard}, layout)
	assert.Equal(t, layout, mapper.Current())

	// Assignment entries written in catalog order, count activated last
	count, ok := device.Object(od.EntryRxPdoAssignment, 0)
	assert.True(t, ok)
	assert.Equal(t, []byte{2}, count)
	assert.EqualValues(t, 0x1605, assignmentUint16(t, device, od.EntryRxPdoAssignment, 1))
	assert.EqualValues(t, 0x1618, assignmentUint16(t, device, od.EntryRxPdoAssignment, 2))

	count, ok = device.Object(od.EntryTxPdoAssignment, 0)
	assert.True(t, ok)
	assert.Equal(t, []byte{4}, count)
	assert.EqualValues(t, 0x1A03, assignmentUint16(t, device, od.EntryTxPdoAssignment, 1))
	assert.EqualValues(t, 0x1A1D, assignmentUint16(t, device, od.EntryTxPdoAssignment, 2))
	assert.EqualValues(t, 0x1A1F, assignmentUint16(t, device, od.EntryTxPdoAssignment, 3))
	assert.EqualValues(t, 0x1A18, assignmentUint16(t, device, od.EntryTxPdoAssignment, 4))
}

func TestMapperIdempotent(t *testing.T) {
	mapper, device := newTestMapper(t)

	_, err := mapper.Map(pdo.RxStandard, pdo.TxStandard)
	assert.Nil(t, err)
	writesAfterFirst := device.SdoWriteCount()

	// Re-mapping the current layout must not touch the device
	_, err = mapper.Map(pdo.RxStandard, pdo.TxStandard)
	assert.Nil(t, err)
	assert.Equal(t, writesAfterFirst, device.SdoWriteCount())
}

func TestMapperRemapsChangedDirection(t *testing.T) {
	mapper, device := newTestMapper(t)

	_, err := mapper.Map(pdo.RxStandard, pdo.TxStandard)
	assert.Nil(t, err)
	writesAfterFirst := device.SdoWriteCount()

	layout, err := mapper.Map(pdo.RxCST, pdo.TxStandard)
	assert.Nil(t, err)
	assert.Equal(t, pdo.Layout{Rx: pdo.RxCST, Tx: pdo.TxStandard}, layout)
	assert.Greater(t, device.SdoWriteCount(), writesAfterFirst)
	assert.EqualValues(t, 0x1602, assignmentUint16(t, device, od.EntryRxPdoAssignment, 1))
	assert.EqualValues(t, 0x160B, assignmentUint16(t, device, od.EntryRxPdoAssignment, 2))
}

func TestMapperUnconfiguredType(t *testing.T) {
	mapper, device := newTestMapper(t)

	layout, err := mapper.Map(pdo.RxNone, pdo.TxStandard)
	assert.ErrorIs(t, err, pdo.ErrTypeNotConfigured)

	// The valid direction is still negotiated
	assert.Equal(t, pdo.RxNone, layout.Rx)
	assert.Equal(t, pdo.TxStandard, layout.Tx)
	assert.EqualValues(t, 0x1A03, assignmentUint16(t, device, od.EntryTxPdoAssignment, 1))
}

func TestFrameSizes(t *testing.T) {
	assert.Equal(t, 17, pdo.RxFrameSize(pdo.RxStandard))
	assert.Equal(t, 5, pdo.RxFrameSize(pdo.RxCST))
	assert.Equal(t, 22, pdo.TxFrameSize(pdo.TxStandard))
	assert.Equal(t, 12, pdo.TxFrameSize(pdo.TxCST))
	assert.Equal(t, 0, pdo.RxFrameSize(pdo.RxNone))
	assert.Equal(t, 0, pdo.TxFrameSize(pdo.TxNone))
}

func TestFrameCodec(t *testing.T) {
	frame := pdo.RxFrameStandard{
		TargetPosition:  -100000,
		TargetVelocity:  2500,
		TargetTorque:    -42,
		MaxTorque:       1000,
		Controlword:     0x000F,
		ModeOfOperation: 9,
		TorqueOffset:    7,
	}
	data, err := frame.MarshalBinary()
	assert.Nil(t, err)
	assert.Len(t, data, 17)
	// Controlword sits after the two targets, the torque and max torque
	assert.EqualValues(t, 0x000F, binary.LittleEndian.Uint16(data[12:14]))

	decoded := pdo.RxFrameStandard{}
	err = decoded.UnmarshalBinary(data)
	assert.Nil(t, err)
	assert.Equal(t, frame, decoded)

	short := pdo.TxFrameStandard{}
	err = short.UnmarshalBinary(data[:10])
	assert.NotNil(t, err)
}
