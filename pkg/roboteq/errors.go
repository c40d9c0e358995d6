package roboteq

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout indicates no carriage-return terminated response arrived
	// within the transport read timeout.
	ErrTimeout = errors.New("exchange timeout")
	// ErrNoMatch indicates a response line did not carry the expected
	// KEY=value pair. During the control loop this means telemetry is
	// unavailable for the cycle; during configuration it is fatal.
	ErrNoMatch = errors.New("response did not match expected key")
	// ErrNak indicates the controller rejected a command with "-".
	ErrNak = errors.New("command rejected by controller")
	// ErrInvalidMotorConfig indicates structurally invalid motor parameters.
	ErrInvalidMotorConfig = errors.New("invalid motor config")
	// ErrInvalidDigitalInput indicates a digital input action that cannot
	// be encoded, e.g. a motor channel above 2 in its target set.
	ErrInvalidDigitalInput = errors.New("invalid digital input config")
)

// ConfigureError wraps the failing step of the startup configuration
// sequence. Any ConfigureError is fatal: the controller may be left
// partially programmed and must not be run.
type ConfigureError struct {
	Step string
	Err  error
}

// Error implements error.
func (e *ConfigureError) Error() string {
	return fmt.Sprintf("configure %s: %v", e.Step, e.Err)
}

// Unwrap exposes the underlying transport or protocol error.
func (e *ConfigureError) Unwrap() error { return e.Err }
