package roboteq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() MotorConfig {
	return MotorConfig{
		Channel:      1,
		MaxSpeed:     10,
		MaxAccel:     20,
		MaxDecel:     20,
		MaxDutyCycle: 0.9,
		MaxCurrent:   7.5,
		KP:           2, KI: 0.5, KD: 0,
		EncoderPPR: 500,
	}
}

func TestMotorConfigValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*MotorConfig)
		ok     bool
	}{
		{"valid", func(*MotorConfig) {}, true},
		{"zero max speed", func(c *MotorConfig) { c.MaxSpeed = 0 }, false},
		{"negative max speed", func(c *MotorConfig) { c.MaxSpeed = -1 }, false},
		{"zero channel", func(c *MotorConfig) { c.Channel = 0 }, false},
		{"zero ppr", func(c *MotorConfig) { c.EncoderPPR = 0 }, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			_, err := NewMotor(cfg)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrInvalidMotorConfig)
			}
		})
	}
}

func TestEffectiveCommandStaleness(t *testing.T) {
	m, err := NewMotor(validConfig())
	require.NoError(t, err)

	timeout := 500 * time.Millisecond
	t0 := time.Now()
	m.SetCommand(5, t0)

	require.Equal(t, 5.0, m.EffectiveCommand(t0.Add(400*time.Millisecond), timeout))
	require.Equal(t, 0.0, m.EffectiveCommand(t0.Add(600*time.Millisecond), timeout))
	// Exactly at the timeout counts as stale.
	require.Equal(t, 0.0, m.EffectiveCommand(t0.Add(timeout), timeout))
}

func TestEffectiveCommandBeforeFirstCommand(t *testing.T) {
	m, err := NewMotor(validConfig())
	require.NoError(t, err)
	// Stamp starts at the zero time, so the failsafe holds zero.
	require.Equal(t, 0.0, m.EffectiveCommand(time.Now(), 500*time.Millisecond))
}

func TestScaledCommand(t *testing.T) {
	cfg := validConfig() // MaxSpeed 10 rad/s
	m, err := NewMotor(cfg)
	require.NoError(t, err)

	require.Equal(t, int64(500), m.ScaledCommand(5))
	require.Equal(t, int64(-500), m.ScaledCommand(-5))
	require.Equal(t, int64(1000), m.ScaledCommand(10))
	require.Equal(t, int64(333), m.ScaledCommand(3.333))
	// Beyond max speed the value leaves the nominal range unclamped.
	require.Equal(t, int64(1500), m.ScaledCommand(15))

	cfg.Reversed = true
	rev, err := NewMotor(cfg)
	require.NoError(t, err)
	require.Equal(t, int64(-500), rev.ScaledCommand(5))
}

func TestTelemetryUnknownUntilFirstParse(t *testing.T) {
	m, err := NewMotor(validConfig())
	require.NoError(t, err)

	_, ok := m.ObservedVelocity()
	require.False(t, ok)
	_, ok = m.EncoderCount()
	require.False(t, ok)

	m.SetObservedVelocity(1.5)
	m.SetEncoderCount(-77)

	vel, ok := m.ObservedVelocity()
	require.True(t, ok)
	require.Equal(t, 1.5, vel)
	count, ok := m.EncoderCount()
	require.True(t, ok)
	require.Equal(t, int64(-77), count)
}
