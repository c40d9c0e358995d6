package roboteq

import (
	"fmt"
	"math"

	"github.com/golang/glog"

	"github.com/jonbinney/roboteq.go/pkg/units"
)

// SafetyLimits are the process-wide power stage limits, programmed once
// during configuration.
type SafetyLimits struct {
	// UnderVolts and OverVolts bound the supply voltage, in volts.
	UnderVolts float64
	OverVolts  float64
}

// DigitalInput configures one controller digital input to trigger an
// action on a set of motor channels.
type DigitalInput struct {
	// Channel is the input channel on the controller.
	Channel int
	// Action is the base action code.
	Action int
	// Motors lists the motor channels the action applies to.
	Motors []int
}

// ActionMask encodes the action with its target motor channels: the
// controller adds 16 for channel 1 and 32 for channel 2. The encoding
// has no bit for a third channel, so anything above 2 is rejected.
func (d *DigitalInput) ActionMask() (int64, error) {
	mask := int64(d.Action)
	for _, ch := range d.Motors {
		switch ch {
		case 1:
			mask += 16
		case 2:
			mask += 32
		default:
			return 0, fmt.Errorf("%w: input %d targets motor channel %d",
				ErrInvalidDigitalInput, d.Channel, ch)
		}
	}
	return mask, nil
}

// Fixed hardware parameters of the amp trigger: trip for 100 ms, then
// safety-stop both channels (action 1 + 16 + 32).
const (
	ampTriggerDelayMS = 100
	ampTriggerAction  = 49
)

// Configure runs the one-shot startup configuration program against the
// controller: global safety limits, then per-motor limits, gains and
// operating modes in increasing channel order, then digital input
// actions, then a save to non-volatile storage.
//
// Any failed exchange aborts immediately with a ConfigureError. A
// partially configured controller is unsafe to run, so callers must
// treat the error as fatal to startup; there are no retries.
func Configure(x Exchanger, limits SafetyLimits, motors []*Motor, inputs []DigitalInput) error {
	step := func(name, cmd string) error {
		line, err := x.Exchange(cmd)
		if err != nil {
			return &ConfigureError{Step: name, Err: err}
		}
		if !IsAck(line) {
			return &ConfigureError{Step: name, Err: fmt.Errorf("%w: %q", ErrNak, line)}
		}
		return nil
	}

	// Echo is still on for this first command, so the line read back is
	// the command's own echo, not an ack. Discard it, then flush any
	// output still buffered behind it (e.g. the command's own ack);
	// a leftover line would shift every later ack check off by one.
	if _, err := x.Exchange(ConfigCmd("ECHOF", 1)); err != nil {
		return &ConfigureError{Step: "echo off", Err: err}
	}
	if d, ok := x.(interface{ Drain() error }); ok {
		if err := d.Drain(); err != nil {
			return &ConfigureError{Step: "echo off", Err: err}
		}
	}

	if err := step("script abort", RuntimeCmd("r", 0)); err != nil {
		return err
	}
	if err := step("undervoltage limit",
		ConfigCmd("UVL", tenths(limits.UnderVolts))); err != nil {
		return err
	}
	if err := step("overvoltage limit",
		ConfigCmd("OVL", tenths(limits.OverVolts))); err != nil {
		return err
	}
	if err := step("mixing mode", ConfigCmd("MXMD", 0)); err != nil {
		return err
	}

	for _, m := range motors {
		if err := configureMotor(step, m); err != nil {
			return err
		}
	}

	for _, in := range inputs {
		mask, err := in.ActionMask()
		if err != nil {
			return &ConfigureError{Step: "digital input action", Err: err}
		}
		name := fmt.Sprintf("digital input %d action", in.Channel)
		if err := step(name, ConfigCmd("DINA", int64(in.Channel), mask)); err != nil {
			return err
		}
	}

	if err := step("save to eeprom", MaintenanceCmd("EESAV")); err != nil {
		return err
	}
	glog.Infof("controller configured: %d motors, %d digital inputs", len(motors), len(inputs))
	return nil
}

func configureMotor(step func(name, cmd string) error, m *Motor) error {
	ch := int64(m.Config.Channel)
	cmds := []struct {
		name string
		cmd  string
	}{
		{"input capture", ConfigCmd("PMOD", ch, 1)},
		{"closed loop error detection", ConfigCmd("CLERD", ch, 0)},
		{"stall detection", ConfigCmd("BLSTD", ch, 0)},
		{"amp limit", ConfigCmd("ALIM", ch, tenths(m.Config.MaxCurrent))},
		{"amp trigger level", ConfigCmd("ATRIG", ch, tenths(m.Config.MaxCurrent))},
		{"amp trigger delay", ConfigCmd("ATGD", ch, ampTriggerDelayMS)},
		{"amp trigger action", ConfigCmd("ATGA", ch, ampTriggerAction)},
		// Accel/decel are stored in tenths of RPM per second.
		{"acceleration", ConfigCmd("MAC", ch, tenths(units.ToRPMPerSec(m.Config.MaxAccel)))},
		{"deceleration", ConfigCmd("MDEC", ch, tenths(units.ToRPMPerSec(m.Config.MaxDecel)))},
		{"operating mode", ConfigCmd("MMOD", ch, 1)},
		{"max rpm", ConfigCmd("MXRPM", ch, round(units.ToRPM(m.Config.MaxSpeed)))},
		{"max forward power", ConfigCmd("MXPF", ch, round(m.Config.MaxDutyCycle*100))},
		{"max reverse power", ConfigCmd("MXPR", ch, round(m.Config.MaxDutyCycle*100))},
		{"encoder mode", ConfigCmd("EMOD", ch, encoderFeedbackMode(m.Config.Channel))},
		{"encoder ppr", ConfigCmd("EPPR", ch, int64(m.Config.EncoderPPR))},
		{"proportional gain", ConfigCmd("KP", ch, tenths(m.Config.KP))},
		{"integral gain", ConfigCmd("KI", ch, tenths(m.Config.KI))},
		{"differential gain", ConfigCmd("KD", ch, tenths(m.Config.KD))},
	}
	for _, c := range cmds {
		name := fmt.Sprintf("motor %d %s", m.Config.Channel, c.name)
		if err := step(name, c.cmd); err != nil {
			return err
		}
	}
	return nil
}

// encoderFeedbackMode builds the EMOD value selecting this encoder as
// closed-loop feedback: usage bits 2, plus the channel bit pattern
// (16 for channel 1, 32 for channel 2).
func encoderFeedbackMode(channel int) int64 {
	return 2 + int64(16)<<(channel-1)
}

// tenths converts to the controller's fixed-point convention of one
// decimal digit stored as value*10.
func tenths(v float64) int64 {
	return int64(math.Round(v * 10))
}

func round(v float64) int64 {
	return int64(math.Round(v))
}
