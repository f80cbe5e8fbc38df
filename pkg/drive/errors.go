package drive

import (
	"errors"
	"fmt"
)

// ErrorType tags every degraded condition appended to the reading
// error log. The log is one of two independent reporting channels, the
// other being the error returned by the failing operation itself.
type ErrorType uint8

const (
	ErrorTypeConfiguration ErrorType = iota
	ErrorTypeModeOfOperation
	ErrorTypePdoMapping
	ErrorTypeRxPdoType
	ErrorTypeTxPdoType
	ErrorTypeSdoStateTransition
	ErrorTypePdoStateTransition
	ErrorTypeErrorReading
)

var errorTypeMap = map[ErrorType]string{
	ErrorTypeConfiguration:      "ConfigurationError",
	ErrorTypeModeOfOperation:    "ModeOfOperationError",
	ErrorTypePdoMapping:         "PdoMappingError",
	ErrorTypeRxPdoType:          "RxPdoTypeError",
	ErrorTypeTxPdoType:          "TxPdoTypeError",
	ErrorTypeSdoStateTransition: "SdoStateTransitionError",
	ErrorTypePdoStateTransition: "PdoStateTransitionError",
	ErrorTypeErrorReading:       "ErrorReadingError",
}

func (e ErrorType) String() string {
	name, ok := errorTypeMap[e]
	if !ok {
		return fmt.Sprintf("UNKNOWN(%d)", uint8(e))
	}
	return name
}

var (
	ErrModeOfOperationNotSet = errors.New("mode of operation has not been set")
	ErrStateChangeTimeout    = errors.New("drive state change timed out")
	ErrLayoutNotNegotiated   = errors.New("pdo layout has not been negotiated")
)
