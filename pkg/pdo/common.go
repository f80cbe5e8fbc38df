// Package pdo defines the cyclic data layouts of the drive : the fixed
// catalog of PDO assignments per layout kind, the binary frame codecs
// and the [Mapper] negotiating the active layout over SDO.
package pdo

import (
	"errors"
	"fmt"
	"strings"
)

var ErrTypeNotConfigured = errors.New("pdo type not configured")

// RxType selects the layout of the cyclic command frame.
type RxType int8

// TxType selects the layout of the cyclic telemetry frame.
type TxType int8

const (
	RxNone RxType = iota
	RxStandard
	RxCST
)

const (
	TxNone TxType = iota
	TxStandard
	TxCST
)

var rxTypeMap = map[RxType]string{
	RxNone:     "N/A",
	RxStandard: "RxPdoStandard",
	RxCST:      "RxPdoCST",
}

var txTypeMap = map[TxType]string{
	TxNone:     "N/A",
	TxStandard: "TxPdoStandard",
	TxCST:      "TxPdoCST",
}

func (t RxType) String() string {
	name, ok := rxTypeMap[t]
	if !ok {
		return fmt.Sprintf("UNKNOWN(%d)", int8(t))
	}
	return name
}

func (t TxType) String() string {
	name, ok := txTypeMap[t]
	if !ok {
		return fmt.Sprintf("UNKNOWN(%d)", int8(t))
	}
	return name
}

// ParseRxType resolves an rx layout name as found in configuration
// files, e.g. "standard" or "RxPdoCST".
func ParseRxType(name string) (RxType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "na", "n/a", "none":
		return RxNone, nil
	case "standard", "rxpdostandard":
		return RxStandard, nil
	case "cst", "rxpdocst":
		return RxCST, nil
	default:
		return RxNone, fmt.Errorf("unknown rx pdo type : %q", name)
	}
}

// ParseTxType resolves a tx layout name as found in configuration files.
func ParseTxType(name string) (TxType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "na", "n/a", "none":
		return TxNone, nil
	case "standard", "txpdostandard":
		return TxStandard, nil
	case "cst", "txpdocst":
		return TxCST, nil
	default:
		return TxNone, fmt.Errorf("unknown tx pdo type : %q", name)
	}
}

// Layout is the negotiated pair of cyclic data layouts. It is produced
// once by the [Mapper] and read, never mutated, by the cyclic exchange.
type Layout struct {
	Rx RxType
	Tx TxType
}

// Drive defined PDO objects assigned per layout kind, in the order they
// must be written to the assignment entry.
var rxAssignments = map[RxType][]uint16{
	RxStandard: {0x1605, 0x1618},
	RxCST:      {0x1602, 0x160B},
}

var txAssignments = map[TxType][]uint16{
	TxStandard: {0x1A03, 0x1A1D, 0x1A1F, 0x1A18},
	TxCST:      {0x1A02, 0x1A11},
}
