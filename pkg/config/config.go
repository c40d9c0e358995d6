// Package config loads driver startup parameters from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonbinney/roboteq.go/pkg/roboteq"
)

// Config holds all startup parameters of the driver daemon.
type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Battery BatteryConfig `yaml:"battery"`

	// CommandTimeoutSec is the per-motor staleness failsafe in seconds.
	CommandTimeoutSec float64 `yaml:"command_timeout_sec"`
	// CycleHz is the control loop cadence.
	CycleHz int `yaml:"cycle_hz"`

	// Motors are listed in channel order: the first entry is channel 1.
	Motors []MotorConfig `yaml:"motors"`
	// Inputs configures controller digital input actions.
	Inputs []DigitalInputConfig `yaml:"digital_inputs"`
}

type SerialConfig struct {
	Port string `yaml:"port"`
}

type MQTTConfig struct {
	BrokerURL string `yaml:"broker_url"`
}

type BatteryConfig struct {
	UnderVolts float64 `yaml:"under_volts"`
	OverVolts  float64 `yaml:"over_volts"`
}

type MotorConfig struct {
	Reversed     bool    `yaml:"reversed"`
	MaxSpeed     float64 `yaml:"max_speed"`      // rad/s
	MaxAccel     float64 `yaml:"max_accel"`      // rad/s^2
	MaxDecel     float64 `yaml:"max_decel"`      // rad/s^2
	MaxDutyCycle float64 `yaml:"max_duty_cycle"` // 0..1
	MaxCurrent   float64 `yaml:"max_current"`    // amps
	KP           float64 `yaml:"kp"`
	KI           float64 `yaml:"ki"`
	KD           float64 `yaml:"kd"`
	EncoderPPR   int     `yaml:"encoder_ppr"`
}

type DigitalInputConfig struct {
	Channel int   `yaml:"channel"`
	Action  int   `yaml:"action"`
	Motors  []int `yaml:"motors"`
}

// Default returns a config with the fixed protocol defaults filled in.
func Default() *Config {
	return &Config{
		Serial:            SerialConfig{Port: "/dev/ttyACM0"},
		MQTT:              MQTTConfig{BrokerURL: "mqtt://localhost:1883"},
		Battery:           BatteryConfig{UnderVolts: 5.5, OverVolts: 30},
		CommandTimeoutSec: 0.5,
		CycleHz:           50,
	}
}

// Load reads the YAML file at path over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.CommandTimeoutSec <= 0 {
		cfg.CommandTimeoutSec = 0.5
	}
	if cfg.CycleHz <= 0 {
		cfg.CycleHz = 50
	}
	return cfg, nil
}

// CommandTimeout returns the staleness failsafe as a duration.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSec * float64(time.Second))
}

// CycleInterval returns the control loop period.
func (c *Config) CycleInterval() time.Duration {
	return time.Second / time.Duration(c.CycleHz)
}

// Motorize builds validated Motors from the config list; the channel of
// each motor is its 1-based position in the list.
func (c *Config) Motorize() ([]*roboteq.Motor, error) {
	motors := make([]*roboteq.Motor, 0, len(c.Motors))
	for i, mc := range c.Motors {
		m, err := roboteq.NewMotor(roboteq.MotorConfig{
			Channel:      i + 1,
			Reversed:     mc.Reversed,
			MaxSpeed:     mc.MaxSpeed,
			MaxAccel:     mc.MaxAccel,
			MaxDecel:     mc.MaxDecel,
			MaxDutyCycle: mc.MaxDutyCycle,
			MaxCurrent:   mc.MaxCurrent,
			KP:           mc.KP,
			KI:           mc.KI,
			KD:           mc.KD,
			EncoderPPR:   mc.EncoderPPR,
		})
		if err != nil {
			return nil, err
		}
		motors = append(motors, m)
	}
	return motors, nil
}

// DigitalInputs converts the digital input list to driver types.
func (c *Config) DigitalInputs() []roboteq.DigitalInput {
	inputs := make([]roboteq.DigitalInput, 0, len(c.Inputs))
	for _, in := range c.Inputs {
		inputs = append(inputs, roboteq.DigitalInput{
			Channel: in.Channel,
			Action:  in.Action,
			Motors:  in.Motors,
		})
	}
	return inputs
}

// SafetyLimits converts the battery section to driver types.
func (c *Config) SafetyLimits() roboteq.SafetyLimits {
	return roboteq.SafetyLimits{
		UnderVolts: c.Battery.UnderVolts,
		OverVolts:  c.Battery.OverVolts,
	}
}
