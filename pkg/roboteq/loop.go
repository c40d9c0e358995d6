package roboteq

import (
	"context"
	"math"
	"time"

	"github.com/golang/glog"

	"github.com/jonbinney/roboteq.go/pkg/units"
)

// Publisher receives telemetry from the control loop. Per-motor fields
// are only published once known; supply voltage is always published,
// NaN when the controller's answer could not be parsed this cycle.
type Publisher interface {
	PublishEncoderCount(channel int, count int64)
	PublishVelocity(channel int, radPerSec float64)
	PublishSupplyVoltage(volts float64)
}

const (
	// DefaultInterval is the target cycle cadence (50 Hz).
	DefaultInterval = 20 * time.Millisecond
	// DefaultCommandTimeout is the command staleness failsafe.
	DefaultCommandTimeout = 500 * time.Millisecond

	// Supply voltage is read from the battery terminal, query "?V 2".
	voltageChannelBattery = 2
)

// Loop is the steady-state control cycle: per motor it issues the
// effective velocity command and queries encoder count and velocity,
// then reads the supply voltage once, at a fixed cadence. Transport
// failures inside a cycle degrade telemetry for that cycle; they never
// stop the loop.
type Loop struct {
	Transport Exchanger
	Motors    []*Motor
	Publisher Publisher
	// Interval is the cycle cadence; zero selects DefaultInterval. An
	// overrunning iteration is followed immediately by the next one, with
	// no catch-up of missed cycles.
	Interval time.Duration
	// CommandTimeout is the staleness failsafe; zero selects
	// DefaultCommandTimeout.
	CommandTimeout time.Duration

	now func() time.Time // test hook
}

// NewLoop creates a Loop with default cadence and command timeout.
func NewLoop(x Exchanger, motors []*Motor, pub Publisher) *Loop {
	return &Loop{Transport: x, Motors: motors, Publisher: pub}
}

// Run implements framework.Runnable. It cycles until the context is
// canceled, checking for shutdown at the top of each cycle so no
// exchange is abandoned mid-flight.
func (l *Loop) Run(ctx context.Context) error {
	interval := l.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	glog.Infof("control loop running at %v for %d motors", interval, len(l.Motors))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.cycle(l.timeNow())
		}
	}
}

func (l *Loop) timeNow() time.Time {
	if l.now != nil {
		return l.now()
	}
	return time.Now()
}

func (l *Loop) commandTimeout() time.Duration {
	if l.CommandTimeout == 0 {
		return DefaultCommandTimeout
	}
	return l.CommandTimeout
}

// cycle runs one iteration: motors in channel order, then supply
// voltage. Order within a motor matters (command before queries) but a
// failure in any exchange only skips that field for the cycle.
func (l *Loop) cycle(now time.Time) {
	for _, m := range l.Motors {
		l.driveMotor(m, now)
	}
	l.Publisher.PublishSupplyVoltage(l.readSupplyVoltage())
}

func (l *Loop) driveMotor(m *Motor, now time.Time) {
	ch := m.Config.Channel
	effective := m.EffectiveCommand(now, l.commandTimeout())
	cmd := RuntimeCmd("g", int64(ch), m.ScaledCommand(effective))
	if _, err := l.Transport.Exchange(cmd); err != nil {
		glog.Warningf("motor %d: go command: %v", ch, err)
	}

	if count, err := query(l.Transport, "C", "C", int64(ch)); err != nil {
		glog.V(1).Infof("motor %d: encoder count unavailable: %v", ch, err)
	} else {
		m.SetEncoderCount(count)
	}

	if rpm, err := query(l.Transport, "S", "S", int64(ch)); err != nil {
		glog.V(1).Infof("motor %d: velocity unavailable: %v", ch, err)
	} else {
		vel := units.FromRPM(float64(rpm))
		if m.Config.Reversed {
			vel = -vel
		}
		m.SetObservedVelocity(vel)
	}

	if count, ok := m.EncoderCount(); ok {
		l.Publisher.PublishEncoderCount(ch, count)
	}
	if vel, ok := m.ObservedVelocity(); ok {
		l.Publisher.PublishVelocity(ch, vel)
	}
}

// readSupplyVoltage queries the battery voltage; the value is reported
// in tenths of a volt. There is no last-known retention for voltage:
// a failed cycle reports NaN.
func (l *Loop) readSupplyVoltage() float64 {
	v, err := query(l.Transport, "V", "V", voltageChannelBattery)
	if err != nil {
		glog.V(1).Infof("supply voltage unavailable: %v", err)
		return math.NaN()
	}
	return float64(v) / 10
}
