// Package ecat defines the boundary towards the EtherCAT master.
// The driver itself does not implement frame scheduling or mailbox
// handling, it only consumes this interface. Implementations :
// a real master binding, or [virtual] for testing.
package ecat

import "fmt"

// EtherCAT slave states
type State uint8

const (
	StateInit   State = 0x01
	StatePreOp  State = 0x02
	StateSafeOp State = 0x04
	StateOp     State = 0x08
)

var stateMap = map[State]string{
	StateInit:   "INIT",
	StatePreOp:  "PRE-OPERATIONAL",
	StateSafeOp: "SAFE-OPERATIONAL",
	StateOp:     "OPERATIONAL",
}

func (s State) String() string {
	name, ok := stateMap[s]
	if !ok {
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
	return name
}

// PdoSizes holds the negotiated byte sizes of the cyclic frames,
// as reported by the master after PDO mapping.
type PdoSizes struct {
	Rx uint16
	Tx uint16
}

// A Bus gives addressed access to one or more slaves on an EtherCAT
// network. PDO accessors exchange the raw bytes of the currently mapped
// cyclic frames, SDO accessors use the mailbox channel.
type Bus interface {
	WriteRxPdo(address uint16, data []byte) error                              // Send the cyclic command frame
	ReadTxPdo(address uint16) ([]byte, error)                                  // Receive the cyclic telemetry frame
	SdoRead(address uint16, index uint16, subindex uint8, buf []byte) (int, error) // Read an object dictionary entry
	SdoWrite(address uint16, index uint16, subindex uint8, data []byte) error  // Write an object dictionary entry
	PdoSizes(address uint16) (PdoSizes, error)                                 // Negotiated cyclic frame sizes
	SetState(state State, address uint16) error                                // Request a slave state change
}
