package bridge

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang/glog"

	"github.com/jonbinney/roboteq.go/pkg/roboteq"
)

// PubSub is the messaging surface the bridge needs; Queue implements it
// and tests substitute a fake.
type PubSub interface {
	Sub(topic string, handler Handler)
	Pub(topic string, payload []byte)
}

// Bridge maps pub/sub topics onto the motor model. Inbound
// motors/<n>/speed_command payloads (rad/s as an ASCII float) become
// motor commands stamped with their arrival time; it implements
// roboteq.Publisher for the outbound telemetry topics.
type Bridge struct {
	queue  PubSub
	motors []*roboteq.Motor

	now func() time.Time // test hook
}

// New creates a Bridge over the given pub/sub connection.
func New(queue PubSub, motors []*roboteq.Motor) *Bridge {
	return &Bridge{queue: queue, motors: motors}
}

// Subscribe registers the command subscription for every motor.
func (b *Bridge) Subscribe() {
	for _, m := range b.motors {
		motor := m
		topic := fmt.Sprintf("motors/%d/speed_command", motor.Config.Channel)
		b.queue.Sub(topic, func(topic string, payload []byte) {
			vel, err := strconv.ParseFloat(string(payload), 64)
			if err != nil {
				glog.Warningf("bad payload on %s: %q", topic, payload)
				return
			}
			motor.SetCommand(vel, b.timeNow())
		})
	}
}

func (b *Bridge) timeNow() time.Time {
	if b.now != nil {
		return b.now()
	}
	return time.Now()
}

// PublishEncoderCount implements roboteq.Publisher.
func (b *Bridge) PublishEncoderCount(channel int, count int64) {
	topic := fmt.Sprintf("motors/%d/feedback/encoder_count", channel)
	b.queue.Pub(topic, []byte(strconv.FormatInt(count, 10)))
}

// PublishVelocity implements roboteq.Publisher.
func (b *Bridge) PublishVelocity(channel int, radPerSec float64) {
	topic := fmt.Sprintf("motors/%d/feedback/velocity", channel)
	b.queue.Pub(topic, []byte(strconv.FormatFloat(radPerSec, 'g', -1, 64)))
}

// PublishSupplyVoltage implements roboteq.Publisher. The payload may be
// "NaN" when the voltage could not be read this cycle.
func (b *Bridge) PublishSupplyVoltage(volts float64) {
	b.queue.Pub("supply_voltage", []byte(strconv.FormatFloat(volts, 'g', -1, 64)))
}
