package cia402

// Controlword is the raw outbound bitfield commanding the power stage
// state machine (object 0x6040).
type Controlword uint16

const (
	ControlwordSwitchOn        Controlword = 1 << 0
	ControlwordEnableVoltage   Controlword = 1 << 1
	ControlwordQuickStop       Controlword = 1 << 2
	ControlwordEnableOperation Controlword = 1 << 3
	ControlwordFaultReset      Controlword = 1 << 7
	ControlwordHalt            Controlword = 1 << 8
)
