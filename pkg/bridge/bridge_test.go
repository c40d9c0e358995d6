package bridge

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jonbinney/roboteq.go/pkg/roboteq"
)

type fakePubSub struct {
	subs      map[string]Handler
	published map[string][]string
}

func newFakePubSub() *fakePubSub {
	return &fakePubSub{
		subs:      make(map[string]Handler),
		published: make(map[string][]string),
	}
}

func (f *fakePubSub) Sub(topic string, handler Handler) {
	f.subs[topic] = handler
}

func (f *fakePubSub) Pub(topic string, payload []byte) {
	f.published[topic] = append(f.published[topic], string(payload))
}

func (f *fakePubSub) deliver(t *testing.T, topic, payload string) {
	h, ok := f.subs[topic]
	require.True(t, ok, "no subscription for %s", topic)
	h(topic, []byte(payload))
}

func testMotors(t *testing.T) []*roboteq.Motor {
	m1, err := roboteq.NewMotor(roboteq.MotorConfig{
		Channel: 1, MaxSpeed: 10, EncoderPPR: 500,
	})
	require.NoError(t, err)
	m2, err := roboteq.NewMotor(roboteq.MotorConfig{
		Channel: 2, MaxSpeed: 10, EncoderPPR: 500,
	})
	require.NoError(t, err)
	return []*roboteq.Motor{m1, m2}
}

func TestCommandSubscription(t *testing.T) {
	ps := newFakePubSub()
	motors := testMotors(t)
	b := New(ps, motors)
	stamp := time.Now()
	b.now = func() time.Time { return stamp }
	b.Subscribe()

	ps.deliver(t, "motors/1/speed_command", "2.5")
	ps.deliver(t, "motors/2/speed_command", "-1.25")

	require.Equal(t, 2.5, motors[0].EffectiveCommand(stamp, time.Second))
	require.Equal(t, -1.25, motors[1].EffectiveCommand(stamp, time.Second))
}

func TestCommandSubscriptionBadPayload(t *testing.T) {
	ps := newFakePubSub()
	motors := testMotors(t)
	b := New(ps, motors)
	b.Subscribe()

	ps.deliver(t, "motors/1/speed_command", "fast")
	require.Equal(t, 0.0, motors[0].EffectiveCommand(time.Now(), time.Second))
}

func TestTelemetryPublishing(t *testing.T) {
	ps := newFakePubSub()
	b := New(ps, nil)

	b.PublishEncoderCount(1, -1234)
	b.PublishVelocity(2, 1.5)
	b.PublishSupplyVoltage(24.7)
	b.PublishSupplyVoltage(math.NaN())

	require.Equal(t, []string{"-1234"}, ps.published["motors/1/feedback/encoder_count"])
	require.Equal(t, []string{"1.5"}, ps.published["motors/2/feedback/velocity"])
	require.Equal(t, []string{"24.7", "NaN"}, ps.published["supply_voltage"])
}

func TestMatchTopic(t *testing.T) {
	testCases := []struct {
		topic, pattern string
		match          bool
	}{
		{"motors/1/speed_command", "motors/1/speed_command", true},
		{"motors/1/speed_command", "motors/+/speed_command", true},
		{"motors/1/speed_command", "motors/#", true},
		{"motors/1/speed_command", "motors/2/speed_command", false},
		{"motors/1", "motors/1/speed_command", false},
		{"motors/1/feedback/velocity", "motors/+/speed_command", false},
		{"supply_voltage", "supply_voltage", true},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.match, MatchTopic(tc.topic, tc.pattern),
			"topic %q pattern %q", tc.topic, tc.pattern)
	}
}
