package cia402

// Statusword is the raw inbound bitfield reporting the power stage
// state machine (object 0x6041).
type Statusword uint16

const (
	statuswordVoltageEnabled      Statusword = 1 << 4
	statuswordWarning             Statusword = 1 << 7
	statuswordTargetReached       Statusword = 1 << 10
	statuswordInternalLimitActive Statusword = 1 << 11
)

// State decodes the drive state from the statusword bit pattern.
// A fault reaction in progress is reported as [StateFault], unknown
// patterns as [StateNA].
func (s Statusword) State() DriveState {
	switch {
	case s&0x4F == 0x40:
		return StateSwitchOnDisabled
	case s&0x6F == 0x21:
		return StateReadyToSwitchOn
	case s&0x6F == 0x23:
		return StateSwitchedOn
	case s&0x6F == 0x27:
		return StateOperationEnabled
	case s&0x6F == 0x07:
		return StateQuickStopActive
	case s&0x4F == 0x08, s&0x4F == 0x0F:
		return StateFault
	default:
		return StateNA
	}
}

func (s Statusword) VoltageEnabled() bool {
	return s&statuswordVoltageEnabled != 0
}

func (s Statusword) Warning() bool {
	return s&statuswordWarning != 0
}

func (s Statusword) TargetReached() bool {
	return s&statuswordTargetReached != 0
}

func (s Statusword) InternalLimitActive() bool {
	return s&statuswordInternalLimitActive != 0
}
