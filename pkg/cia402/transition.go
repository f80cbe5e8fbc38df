package cia402

import (
	"errors"
	"fmt"
)

// StateTransition identifies one of the standard defined power stage
// transitions. Values follow the numbering of the CiA 402 state diagram.
type StateTransition uint8

const (
	Transition2  StateTransition = 2  // Shutdown : SWITCH-ON-DISABLED -> READY-TO-SWITCH-ON
	Transition3  StateTransition = 3  // Switch on : READY-TO-SWITCH-ON -> SWITCHED-ON
	Transition4  StateTransition = 4  // Enable operation : SWITCHED-ON -> OPERATION-ENABLED
	Transition5  StateTransition = 5  // Disable operation : OPERATION-ENABLED -> SWITCHED-ON
	Transition6  StateTransition = 6  // Shutdown : SWITCHED-ON -> READY-TO-SWITCH-ON
	Transition7  StateTransition = 7  // Disable voltage : READY-TO-SWITCH-ON -> SWITCH-ON-DISABLED
	Transition8  StateTransition = 8  // Shutdown : OPERATION-ENABLED -> READY-TO-SWITCH-ON
	Transition9  StateTransition = 9  // Disable voltage : OPERATION-ENABLED -> SWITCH-ON-DISABLED
	Transition10 StateTransition = 10 // Disable voltage : SWITCHED-ON -> SWITCH-ON-DISABLED
	Transition11 StateTransition = 11 // Quick stop : OPERATION-ENABLED -> QUICK-STOP-ACTIVE
	Transition12 StateTransition = 12 // Disable voltage : QUICK-STOP-ACTIVE -> SWITCH-ON-DISABLED
	Transition15 StateTransition = 15 // Fault reset : FAULT -> SWITCH-ON-DISABLED
)

var (
	ErrAlreadyAtTarget          = errors.New("drive state has already been reached")
	ErrTransitionNotImplemented = errors.New("state transition not implemented")
)

var transitionControlwords = map[StateTransition]Controlword{
	Transition2:  ControlwordEnableVoltage | ControlwordQuickStop,
	Transition3:  ControlwordSwitchOn | ControlwordEnableVoltage | ControlwordQuickStop,
	Transition4:  ControlwordSwitchOn | ControlwordEnableVoltage | ControlwordQuickStop | ControlwordEnableOperation,
	Transition5:  ControlwordSwitchOn | ControlwordEnableVoltage | ControlwordQuickStop,
	Transition6:  ControlwordEnableVoltage | ControlwordQuickStop,
	Transition7:  0,
	Transition8:  ControlwordEnableVoltage | ControlwordQuickStop,
	Transition9:  0,
	Transition10: 0,
	Transition11: ControlwordEnableVoltage,
	Transition12: 0,
	Transition15: ControlwordFaultReset,
}

// The state the drive is expected to reach once a transition has been
// accepted. Used when composing multi step chains without re-reading
// the hardware in between.
var transitionDestinations = map[StateTransition]DriveState{
	Transition2:  StateReadyToSwitchOn,
	Transition3:  StateSwitchedOn,
	Transition4:  StateOperationEnabled,
	Transition5:  StateSwitchedOn,
	Transition6:  StateReadyToSwitchOn,
	Transition7:  StateSwitchOnDisabled,
	Transition8:  StateReadyToSwitchOn,
	Transition9:  StateSwitchOnDisabled,
	Transition10: StateSwitchOnDisabled,
	Transition11: StateQuickStopActive,
	Transition12: StateSwitchOnDisabled,
	Transition15: StateSwitchOnDisabled,
}

// Controlword returns the bit pattern commanding this transition.
func (t StateTransition) Controlword() Controlword {
	return transitionControlwords[t]
}

// Destination returns the expected post-transition drive state.
func (t StateTransition) Destination() DriveState {
	return transitionDestinations[t]
}

func (t StateTransition) String() string {
	return fmt.Sprintf("T%d", uint8(t))
}

// NextTransition returns the single transition bringing the drive one
// step from current towards target. Multi hop targets need repeated
// invocations as the measured state advances.
// Returns [ErrAlreadyAtTarget] when target equals current and
// [ErrTransitionNotImplemented] for pairs outside the standard diagram.
func NextTransition(target DriveState, current DriveState) (StateTransition, error) {
	if target == current {
		return 0, ErrAlreadyAtTarget
	}
	switch target {
	case StateSwitchOnDisabled:
		switch current {
		case StateReadyToSwitchOn:
			return Transition7, nil
		case StateSwitchedOn:
			return Transition10, nil
		case StateOperationEnabled:
			return Transition9, nil
		case StateQuickStopActive:
			return Transition12, nil
		case StateFault:
			return Transition15, nil
		}
	case StateReadyToSwitchOn:
		switch current {
		case StateSwitchOnDisabled:
			return Transition2, nil
		case StateSwitchedOn:
			return Transition6, nil
		case StateOperationEnabled:
			return Transition8, nil
		case StateQuickStopActive:
			return Transition12, nil
		case StateFault:
			return Transition15, nil
		}
	case StateSwitchedOn:
		switch current {
		case StateSwitchOnDisabled:
			return Transition2, nil
		case StateReadyToSwitchOn:
			return Transition3, nil
		case StateOperationEnabled:
			return Transition5, nil
		case StateQuickStopActive:
			return Transition12, nil
		case StateFault:
			return Transition15, nil
		}
	case StateOperationEnabled:
		switch current {
		case StateSwitchOnDisabled:
			return Transition2, nil
		case StateReadyToSwitchOn:
			return Transition3, nil
		case StateSwitchedOn:
			return Transition4, nil
		case StateQuickStopActive:
			return Transition12, nil
		case StateFault:
			return Transition15, nil
		}
	case StateQuickStopActive:
		switch current {
		case StateSwitchOnDisabled:
			return Transition2, nil
		case StateReadyToSwitchOn:
			return Transition3, nil
		case StateSwitchedOn:
			return Transition4, nil
		case StateOperationEnabled:
			return Transition11, nil
		case StateFault:
			return Transition15, nil
		}
	}
	return 0, ErrTransitionNotImplemented
}

// NextControlword is [NextTransition] resolved to its bit pattern.
// On error the returned controlword commands nothing (all bits low).
func NextControlword(target DriveState, current DriveState) (Controlword, error) {
	transition, err := NextTransition(target, current)
	if err != nil {
		return 0, err
	}
	return transition.Controlword(), nil
}

// TransitionChain composes the full transition sequence from current to
// target by repeatedly applying [NextTransition] against the expected
// post-transition state, without consulting the hardware in between.
// An empty chain and no error is returned when the states already match.
func TransitionChain(target DriveState, current DriveState) ([]StateTransition, error) {
	chain := make([]StateTransition, 0, 5)
	for current != target {
		transition, err := NextTransition(target, current)
		if err != nil {
			return nil, err
		}
		chain = append(chain, transition)
		current = transition.Destination()
	}
	return chain, nil
}
