package roboteq

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// scriptedExchanger records every request and answers via respond.
type scriptedExchanger struct {
	requests []string
	respond  func(req string) (string, error)
}

func (x *scriptedExchanger) Exchange(req string) (string, error) {
	x.requests = append(x.requests, req)
	return x.respond(req)
}

// ackAll answers the first exchange with its own echo (echo is still on
// at that point) and everything else with an ack.
func ackAll() func(req string) (string, error) {
	first := true
	return func(req string) (string, error) {
		if first {
			first = false
			return strings.TrimSuffix(req, "\r"), nil
		}
		return "+", nil
	}
}

func testMotors(t *testing.T) []*Motor {
	m1, err := NewMotor(validConfig())
	require.NoError(t, err)
	cfg2 := validConfig()
	cfg2.Channel = 2
	cfg2.Reversed = true
	m2, err := NewMotor(cfg2)
	require.NoError(t, err)
	return []*Motor{m1, m2}
}

func TestConfigureSequence(t *testing.T) {
	x := &scriptedExchanger{respond: ackAll()}
	limits := SafetyLimits{UnderVolts: 5.5, OverVolts: 16}
	inputs := []DigitalInput{{Channel: 5, Action: 0, Motors: []int{1, 2}}}

	require.NoError(t, Configure(x, limits, testMotors(t), inputs))

	// Strict order of the global steps.
	require.Equal(t, "^ECHOF 1\r", x.requests[0])
	require.Equal(t, "!r 0\r", x.requests[1])
	require.Equal(t, "^UVL 55\r", x.requests[2])
	require.Equal(t, "^OVL 160\r", x.requests[3])
	require.Equal(t, "^MXMD 0\r", x.requests[4])
	require.Equal(t, "%EESAV\r", x.requests[len(x.requests)-1])

	all := strings.Join(x.requests, "")
	// Per-motor programming, channel 1 before channel 2.
	require.Contains(t, all, "^PMOD 1 1\r")
	require.Contains(t, all, "^CLERD 1 0\r")
	require.Contains(t, all, "^BLSTD 1 0\r")
	require.Contains(t, all, "^ALIM 1 75\r")
	require.Contains(t, all, "^ATRIG 1 75\r")
	require.Contains(t, all, "^ATGD 1 100\r")
	require.Contains(t, all, "^ATGA 1 49\r")
	require.Contains(t, all, "^MMOD 1 1\r")
	// MaxSpeed 10 rad/s is 95.49 RPM.
	require.Contains(t, all, "^MXRPM 1 95\r")
	require.Contains(t, all, "^MXPF 1 90\r")
	require.Contains(t, all, "^MXPR 1 90\r")
	require.Contains(t, all, "^EMOD 1 18\r")
	require.Contains(t, all, "^EMOD 2 34\r")
	require.Contains(t, all, "^EPPR 1 500\r")
	require.Contains(t, all, "^KP 1 20\r")
	require.Contains(t, all, "^KI 1 5\r")
	require.Contains(t, all, "^KD 1 0\r")
	require.Less(t, strings.Index(all, "^PMOD 1 1\r"), strings.Index(all, "^PMOD 2 1\r"))
	// Digital input action mask: base 0, +16 for motor 1, +32 for motor 2.
	require.Contains(t, all, "^DINA 5 48\r")
	// Motors are programmed before digital inputs and the save.
	require.Less(t, strings.Index(all, "^KD 2 0\r"), strings.Index(all, "^DINA 5 48\r"))
}

// drainingExchanger models a transport whose input buffer can hold
// residue lines; an undrained residue line would be returned as the
// response to the next exchange.
type drainingExchanger struct {
	scriptedExchanger
	residue []string
	drains  int
}

func (x *drainingExchanger) Exchange(req string) (string, error) {
	if len(x.residue) > 0 {
		line := x.residue[0]
		x.residue = x.residue[1:]
		x.requests = append(x.requests, req)
		return line, nil
	}
	return x.scriptedExchanger.Exchange(req)
}

func (x *drainingExchanger) Drain() error {
	x.drains++
	x.residue = nil
	return nil
}

func TestConfigureDrainsEchoResidue(t *testing.T) {
	x := &drainingExchanger{}
	x.respond = func(req string) (string, error) {
		if strings.HasPrefix(req, "^ECHOF") {
			// The ack to the echo-off command arrived behind its echo
			// and is still buffered.
			x.residue = []string{"+"}
			return strings.TrimSuffix(req, "\r"), nil
		}
		if strings.HasPrefix(req, "!r") {
			// Without the drain the buffered "+" would answer this
			// step instead and the real failure below would be
			// attributed one step late.
			return "-", nil
		}
		return "+", nil
	}

	err := Configure(x, SafetyLimits{UnderVolts: 5.5, OverVolts: 16}, testMotors(t), nil)
	require.ErrorIs(t, err, ErrNak)
	require.Equal(t, 1, x.drains)
	require.Equal(t, "!r 0\r", x.requests[len(x.requests)-1])
}

func TestConfigureAbortsOnFailure(t *testing.T) {
	ack := ackAll()
	x := &scriptedExchanger{respond: func(req string) (string, error) {
		if strings.HasPrefix(req, "^MXMD") {
			return "", ErrTimeout
		}
		return ack(req)
	}}

	err := Configure(x, SafetyLimits{UnderVolts: 5.5, OverVolts: 16}, testMotors(t), nil)
	require.Error(t, err)
	var cerr *ConfigureError
	require.ErrorAs(t, err, &cerr)
	require.ErrorIs(t, err, ErrTimeout)
	// No step after the failing one was attempted.
	require.Equal(t, "^MXMD 0\r", x.requests[len(x.requests)-1])
}

func TestConfigureAbortsOnNak(t *testing.T) {
	ack := ackAll()
	x := &scriptedExchanger{respond: func(req string) (string, error) {
		if strings.HasPrefix(req, "^EPPR 2") {
			return "-", nil
		}
		return ack(req)
	}}

	err := Configure(x, SafetyLimits{UnderVolts: 5.5, OverVolts: 16}, testMotors(t), nil)
	require.ErrorIs(t, err, ErrNak)
	require.Equal(t, "^EPPR 2 500\r", x.requests[len(x.requests)-1])
}

func TestDigitalInputActionMask(t *testing.T) {
	testCases := []struct {
		name   string
		input  DigitalInput
		mask   int64
		hasErr bool
	}{
		{"both channels", DigitalInput{Channel: 5, Action: 0, Motors: []int{1, 2}}, 48, false},
		{"channel 1 only", DigitalInput{Channel: 1, Action: 2, Motors: []int{1}}, 18, false},
		{"channel 2 only", DigitalInput{Channel: 1, Action: 1, Motors: []int{2}}, 33, false},
		{"no channels", DigitalInput{Channel: 1, Action: 4}, 4, false},
		{"third channel", DigitalInput{Channel: 1, Action: 0, Motors: []int{3}}, 0, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mask, err := tc.input.ActionMask()
			if tc.hasErr {
				require.ErrorIs(t, err, ErrInvalidDigitalInput)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.mask, mask)
		})
	}
}

func TestConfigureRejectsUnencodableInput(t *testing.T) {
	x := &scriptedExchanger{respond: ackAll()}
	inputs := []DigitalInput{{Channel: 1, Action: 0, Motors: []int{1, 3}}}
	err := Configure(x, SafetyLimits{UnderVolts: 5.5, OverVolts: 16}, testMotors(t), inputs)
	require.ErrorIs(t, err, ErrInvalidDigitalInput)
	// The save step never ran.
	require.NotContains(t, strings.Join(x.requests, ""), "%EESAV")
}
