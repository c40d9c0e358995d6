package roboteq

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// MotorConfig holds the per-channel parameters programmed into the
// controller at startup. Immutable after load.
type MotorConfig struct {
	// Channel is the hardware address of the motor port (1-based).
	Channel int
	// Reversed flips the sign convention of commands and reported
	// velocity for this channel.
	Reversed bool
	// MaxSpeed is the speed programmed as the controller's max RPM and
	// used as the command scaling denominator, in rad/s. Must be > 0.
	MaxSpeed float64
	// MaxAccel and MaxDecel limit speed changes, in rad/s^2.
	MaxAccel float64
	MaxDecel float64
	// MaxDutyCycle limits output power, 0..1.
	MaxDutyCycle float64
	// MaxCurrent is the amp limit, in amps.
	MaxCurrent float64
	// PID gains of the closed-loop speed controller.
	KP float64
	KI float64
	KD float64
	// EncoderPPR is encoder pulses per revolution. Must be > 0.
	EncoderPPR int
}

// Validate reports structurally invalid parameters. Validation failures
// are fatal at load time; an invalid config never reaches the loop.
func (c *MotorConfig) Validate() error {
	if c.Channel < 1 {
		return fmt.Errorf("%w: channel %d", ErrInvalidMotorConfig, c.Channel)
	}
	if !(c.MaxSpeed > 0) {
		return fmt.Errorf("%w: channel %d max speed %v", ErrInvalidMotorConfig, c.Channel, c.MaxSpeed)
	}
	if c.EncoderPPR <= 0 {
		return fmt.Errorf("%w: channel %d encoder ppr %d", ErrInvalidMotorConfig, c.Channel, c.EncoderPPR)
	}
	return nil
}

// Motor pairs a channel's immutable configuration with its mutable
// state. Commands arrive asynchronously from the pub/sub side; telemetry
// is written by the control loop once per cycle.
type Motor struct {
	Config MotorConfig

	mu sync.Mutex
	// Command and its receipt stamp are written together under mu so the
	// loop never observes a half-updated pair.
	cmdVel   float64
	cmdStamp time.Time
	// Last observed telemetry. Unknown until the first successful parse;
	// afterwards a failed parse keeps the previous value.
	velocity     float64
	haveVelocity bool
	encoder      int64
	haveEncoder  bool
}

// NewMotor validates the config and creates a Motor with unknown
// telemetry and the command stamp at the zero time, so the staleness
// failsafe holds the motor stopped until the first command arrives.
func NewMotor(config MotorConfig) (*Motor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Motor{Config: config}, nil
}

// SetCommand records a commanded velocity in rad/s (user-facing sign
// convention, before reversal) and stamps its arrival time.
func (m *Motor) SetCommand(radPerSec float64, now time.Time) {
	m.mu.Lock()
	m.cmdVel, m.cmdStamp = radPerSec, now
	m.mu.Unlock()
}

// EffectiveCommand resolves the command to act on this cycle: the last
// commanded velocity, or zero once it is older than timeout (failsafe
// against a dead upstream command source).
func (m *Motor) EffectiveCommand(now time.Time, timeout time.Duration) float64 {
	m.mu.Lock()
	vel, stamp := m.cmdVel, m.cmdStamp
	m.mu.Unlock()
	if now.Sub(stamp) >= timeout {
		return 0
	}
	return vel
}

// ScaledCommand converts an effective velocity into the controller's
// signed command range: thousandths of max speed, reversal applied.
// Values beyond max speed intentionally leave the nominal +/-1000 range
// so misconfiguration surfaces at the controller instead of saturating.
func (m *Motor) ScaledCommand(effective float64) int64 {
	if m.Config.Reversed {
		effective = -effective
	}
	return int64(math.Round(1000 * effective / m.Config.MaxSpeed))
}

// SetObservedVelocity records a parsed velocity in rad/s.
func (m *Motor) SetObservedVelocity(radPerSec float64) {
	m.mu.Lock()
	m.velocity, m.haveVelocity = radPerSec, true
	m.mu.Unlock()
}

// ObservedVelocity returns the last parsed velocity; ok is false until
// the first successful parse.
func (m *Motor) ObservedVelocity() (radPerSec float64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.velocity, m.haveVelocity
}

// SetEncoderCount records a parsed absolute encoder count.
func (m *Motor) SetEncoderCount(count int64) {
	m.mu.Lock()
	m.encoder, m.haveEncoder = count, true
	m.mu.Unlock()
}

// EncoderCount returns the last parsed absolute encoder count; ok is
// false until the first successful parse.
func (m *Motor) EncoderCount() (count int64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.encoder, m.haveEncoder
}
