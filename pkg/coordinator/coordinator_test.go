package coordinator

import (
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teslashibe/go-rebel/pkg/kinematics"
	"github.com/teslashibe/go-rebel/pkg/protocol"
)

// fakeTransport records emitted messages and delivers inbound events
// synchronously.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []*protocol.Message
	nextID   int
	handlers map[protocol.MessageType][]fakeHandler
}

type fakeHandler struct {
	id int
	fn func(*protocol.Message)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers: make(map[protocol.MessageType][]fakeHandler),
	}
}

func (f *fakeTransport) Emit(msg *protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) Subscribe(t protocol.MessageType, h func(*protocol.Message)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.handlers[t] = append(f.handlers[t], fakeHandler{id: id, fn: h})
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		hs := f.handlers[t]
		for i, fh := range hs {
			if fh.id == id {
				f.handlers[t] = append(hs[:i:i], hs[i+1:]...)
				break
			}
		}
		if len(f.handlers[t]) == 0 {
			delete(f.handlers, t)
		}
	}
}

func (f *fakeTransport) deliver(msg *protocol.Message) {
	f.mu.Lock()
	hs := append([]fakeHandler{}, f.handlers[msg.Type]...)
	f.mu.Unlock()
	for _, h := range hs {
		h.fn(msg)
	}
}

func (f *fakeTransport) subscribed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, hs := range f.handlers {
		n += len(hs)
	}
	return n
}

func (f *fakeTransport) messages() []*protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*protocol.Message{}, f.sent...)
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	f.sent = nil
	f.mu.Unlock()
}

func benchGeometry() kinematics.Config {
	return kinematics.Config{
		Base:        10,
		V0:          5,
		V1:          5,
		V2:          5,
		V3:          2,
		EndEffector: 1,
		InverseType: kinematics.InverseBasic,
	}
}

func newTestCoordinator(t *testing.T, robotID string, run bool) (*Coordinator, *fakeTransport, *clock.Mock) {
	t.Helper()
	tr := newFakeTransport()
	mock := clock.NewMock()
	c := New(tr, Session{
		RobotID:    robotID,
		RunOnRobot: run,
		Geometry:   benchGeometry(),
		Clock:      mock,
	})
	t.Cleanup(c.Close)
	return c, tr, mock
}

func roster(ids ...string) protocol.Roster {
	r := protocol.Roster{}
	for _, id := range ids {
		r[id] = Descriptor(id)
	}
	return r
}

func TestRegisterSessionEmitsDescriptor(t *testing.T) {
	c, tr, _ := newTestCoordinator(t, "", false)

	require.NoError(t, c.RegisterSession(""))

	msgs := tr.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.TypeRegister, msgs[0].Type)

	desc, err := msgs[0].GetDescriptor()
	require.NoError(t, err)
	assert.Equal(t, "1", desc.ID)
	assert.Equal(t, "default", desc.Key)
	assert.Equal(t, "IgusRebel", desc.RobotType)
	assert.Len(t, desc.Motors, 4)
	for _, m := range []string{"j0", "j1", "j2", "j3"} {
		assert.Equal(t, m, desc.Motors[m].ID)
	}

	assert.Equal(t, "1", c.Session().RobotID)
}

func TestRegisterSessionKeepsSelection(t *testing.T) {
	c, tr, _ := newTestCoordinator(t, "A", false)

	require.NoError(t, c.RegisterSession("B"))

	desc, err := tr.messages()[0].GetDescriptor()
	require.NoError(t, err)
	assert.Equal(t, "B", desc.ID)
	assert.Equal(t, "A", c.Session().RobotID)
}

// Arm commands need both a live connection and run mode.
func TestArmCommandGate(t *testing.T) {
	tests := []struct {
		name      string
		connected bool
		run       bool
		wantEmit  bool
	}{
		{"connected and running", true, true, true},
		{"connected only", true, false, false},
		{"running only", false, true, false},
		{"neither", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, tr, mock := newTestCoordinator(t, "A", tt.run)
			if tt.connected {
				c.OnRosterUpdate(roster("A"))
			}

			poses := make(chan r3.Vector, 1)
			c.OnPose(func(p r3.Vector) { poses <- p })

			c.SetJoint("j1", 10)
			assert.True(t, c.SetJointAngles([]float64{1, 2, 3, 4}, 50))
			before := c.Display()
			assert.Equal(t, []float64{1, 2, 3, 4}, before.Joints[:4])
			assert.True(t, c.RefreshPending())

			assert.True(t, c.MoveToPose(12, 0, 17, 0, 0, 0, 50))
			d := c.Display()
			assert.Equal(t, 12.0, d.X)
			assert.Equal(t, 17.0, d.Z)
			assert.NotEqual(t, before.Joints, d.Joints)
			assert.True(t, c.RefreshPending())

			// The display and pose follow every intent, gated or not
			mock.Add(DefaultDebounce)
			select {
			case p := <-poses:
				assert.InDelta(t, 12.0, p.X, 1e-6)
				assert.InDelta(t, 0.0, p.Y, 1e-6)
				assert.InDelta(t, 17.0, p.Z, 1e-6)
			case <-time.After(time.Second):
				t.Fatal("pose was not recomputed")
			}

			if tt.wantEmit {
				msgs := tr.messages()
				require.Len(t, msgs, 3)
				assert.Equal(t, protocol.TypeMotorSetPos, msgs[0].Type)
				assert.Equal(t, protocol.TypeRobotSetAngles, msgs[1].Type)
				assert.Equal(t, protocol.TypeRobotSetAngles, msgs[2].Type)
			} else {
				assert.Empty(t, tr.messages())
			}
		})
	}
}

func TestSetJointPayload(t *testing.T) {
	c, tr, _ := newTestCoordinator(t, "A", true)
	c.OnRosterUpdate(roster("A"))

	c.SetJoint("j2", -15.5)

	msgs := tr.messages()
	require.Len(t, msgs, 1)
	cmd, err := msgs[0].GetMotorSetPos()
	require.NoError(t, err)
	assert.Equal(t, "A", cmd.RobotID)
	assert.Equal(t, "j2", cmd.MotorID)
	assert.Equal(t, -15.5, cmd.Value)
	assert.False(t, c.RefreshPending(), "jog must not schedule a pose refresh")
}

// The gripper ignores run mode but still needs a connection.
func TestGripperGate(t *testing.T) {
	c, tr, _ := newTestCoordinator(t, "A", false)

	c.SetGripper(30, 100, 50)
	assert.Empty(t, tr.messages())
	assert.Equal(t, 30.0, c.Display().Gripper)

	c.OnRosterUpdate(roster("A"))
	c.SetGripper(45, 100, 50)

	msgs := tr.messages()
	require.Len(t, msgs, 1)
	cmd, err := msgs[0].GetGripperSetPos()
	require.NoError(t, err)
	assert.Equal(t, "A", cmd.RobotID)
	assert.Equal(t, 45.0, cmd.Value)
	assert.Equal(t, 100.0, cmd.Speed)
	assert.Equal(t, 50.0, cmd.Force)
	assert.Equal(t, 45.0, c.Display().Gripper)
}

func TestConfigCommandsNeedConnection(t *testing.T) {
	c, tr, _ := newTestCoordinator(t, "A", false)

	c.UpdateConfig("speed", 20)
	c.SaveConfig()
	assert.Empty(t, tr.messages())

	c.OnRosterUpdate(roster("A"))
	c.UpdateConfig("speed", 20)
	c.SaveConfig()

	msgs := tr.messages()
	require.Len(t, msgs, 2)

	upd, err := msgs[0].GetRobotUpdateConfig()
	require.NoError(t, err)
	assert.Equal(t, "A", upd.RobotID)
	assert.Equal(t, "speed", upd.Key)
	assert.EqualValues(t, 20, upd.Value)

	wr, err := msgs[1].GetRobotWriteConfig()
	require.NoError(t, err)
	assert.Equal(t, "A", wr.RobotID)
}

func TestMoveToPoseUnreachableIsNoOp(t *testing.T) {
	c, tr, _ := newTestCoordinator(t, "A", true)
	c.OnRosterUpdate(roster("A"))

	require.True(t, c.SetJointAngles([]float64{10, 20, 30, 40}, 50))
	tr.reset()
	before := c.Display()

	assert.False(t, c.MoveToPose(1000, 0, 0, 0, 0, 0, 50))

	assert.Empty(t, tr.messages())
	assert.Equal(t, before, c.Display())
}

func TestSetJointAnglesRejectsNaN(t *testing.T) {
	c, tr, _ := newTestCoordinator(t, "A", true)
	c.OnRosterUpdate(roster("A"))

	assert.False(t, c.SetJointAngles([]float64{1, math.NaN(), 3, 4}, 50))

	assert.Empty(t, tr.messages())
	assert.Equal(t, DisplayState{}, c.Display())
	assert.False(t, c.RefreshPending())
}

func TestSetJointAnglesPayload(t *testing.T) {
	c, tr, _ := newTestCoordinator(t, "A", true)
	c.OnRosterUpdate(roster("A"))

	angles := []float64{5, 10, 15, 20}
	require.True(t, c.SetJointAngles(angles, 70))
	angles[0] = 99

	msgs := tr.messages()
	require.Len(t, msgs, 1)
	cmd, err := msgs[0].GetRobotSetAngles()
	require.NoError(t, err)
	assert.Equal(t, "A", cmd.RobotID)
	assert.Equal(t, []float64{5, 10, 15, 20}, cmd.Angles)
	assert.Equal(t, 70.0, cmd.Speed)

	d := c.Display()
	assert.Equal(t, [kinematics.NumJoints]float64{5, 10, 15, 20, 0, 0}, d.Joints)
}

// Poses round-trip through the solver and the debounced forward refresh.
func TestMoveToPoseRoundTrip(t *testing.T) {
	c, tr, mock := newTestCoordinator(t, "A", true)
	c.OnRosterUpdate(roster("A"))

	poses := make(chan r3.Vector, 4)
	c.OnPose(func(p r3.Vector) { poses <- p })

	require.True(t, c.MoveToPose(12, 0, 17, 0, 0, 0, 50))

	d := c.Display()
	assert.Equal(t, 12.0, d.X)
	assert.Equal(t, 0.0, d.Y)
	assert.Equal(t, 17.0, d.Z)

	msgs := tr.messages()
	require.Len(t, msgs, 1)
	cmd, err := msgs[0].GetRobotSetAngles()
	require.NoError(t, err)
	require.Len(t, cmd.Angles, kinematics.ActuatedJoints)
	for i := 0; i < kinematics.ActuatedJoints; i++ {
		assert.InDelta(t, d.Joints[i], cmd.Angles[i], 1e-9)
	}

	mock.Add(DefaultDebounce)

	select {
	case p := <-poses:
		assert.InDelta(t, 12.0, p.X, 1e-9)
		assert.InDelta(t, 0.0, p.Y, 1e-9)
		assert.InDelta(t, 17.0, p.Z, 1e-9)
	case <-time.After(time.Second):
		t.Fatal("pose was not recomputed")
	}
}

// A burst of intents yields one refresh reflecting the final joints.
func TestRefreshIsDebounced(t *testing.T) {
	c, _, mock := newTestCoordinator(t, "A", false)

	var mu sync.Mutex
	var got []r3.Vector
	c.OnPose(func(p r3.Vector) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		require.True(t, c.SetJointAngles([]float64{0, float64(i * 10), 0, 0}, 50))
		mock.Add(DefaultDebounce / 2)
	}
	require.True(t, c.SetJointAngles([]float64{0, 45, 0, 0}, 50))

	mock.Add(DefaultDebounce)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	mock.Add(10 * DefaultDebounce)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)

	params := benchGeometry().Params()
	want := kinematics.ForwardDegrees([kinematics.ActuatedJoints]float64{0, 45, 0, 0}, params)
	assert.InDelta(t, want.X, got[0].X, 1e-9)
	assert.InDelta(t, want.Y, got[0].Y, 1e-9)
	assert.InDelta(t, want.Z, got[0].Z, 1e-9)

	for i := 0; i < 5; i++ {
		earlier := kinematics.ForwardDegrees([kinematics.ActuatedJoints]float64{0, float64(i * 10), 0, 0}, params)
		assert.Greater(t, got[0].Sub(earlier).Norm(), 1e-3, "pose matches burst target %d", i)
	}
}

func TestRecomputeForwardPoseUsesDisplay(t *testing.T) {
	c, _, _ := newTestCoordinator(t, "A", false)

	pose := c.RecomputeForwardPose()
	assert.InDelta(t, 0.0, pose.X, 1e-9)
	assert.InDelta(t, 28.0, pose.Z, 1e-9)
	assert.Equal(t, pose, c.Pose())
}

func TestConnectivityEvents(t *testing.T) {
	c, _, _ := newTestCoordinator(t, "A", false)
	c.OnRosterUpdate(roster("A"))
	require.True(t, c.Connected())

	c.OnDisconnected("A")
	assert.False(t, c.Connected())
	assert.Equal(t, ErrDisconnected, c.FieldError(FieldRobotID))
	assert.Equal(t, ErrDisconnected, c.FieldError(FieldMotorID))
	assert.Equal(t, StatusDisconnected, c.Status("A"))

	c.OnConnected("A")
	assert.True(t, c.Connected())
	assert.Empty(t, c.FieldError(FieldRobotID))
	assert.Empty(t, c.FieldError(FieldMotorID))
	assert.Equal(t, StatusConnected, c.Status("A"))
}

func TestConnectivityEventsForOtherRobotsIgnored(t *testing.T) {
	c, _, _ := newTestCoordinator(t, "A", false)
	c.OnRosterUpdate(roster("A", "B"))

	c.OnDisconnected("B")
	assert.True(t, c.Connected())
	assert.Empty(t, c.FieldError(FieldRobotID))

	c.OnDisconnected("A")
	c.OnConnected("B")
	assert.False(t, c.Connected())
	assert.Equal(t, ErrDisconnected, c.FieldError(FieldRobotID))
}

func TestRosterDerivesConnection(t *testing.T) {
	c, _, _ := newTestCoordinator(t, "A", false)

	c.OnRosterUpdate(roster("A", "B"))
	assert.True(t, c.Connected())
	assert.Equal(t, StatusConnected, c.Status("A"))
	assert.Equal(t, StatusConnected, c.Status("B"))

	c.OnRosterUpdate(roster("B"))
	assert.False(t, c.Connected())
	assert.Equal(t, StatusUnknown, c.Status("A"), "absent robots are unknown, not disconnected")
	assert.Equal(t, StatusUnknown, c.Status("C"))
}

func TestRosterReplacedWholesale(t *testing.T) {
	c, _, _ := newTestCoordinator(t, "A", false)

	r := roster("A", "B")
	c.OnRosterUpdate(r)
	delete(r, "B")
	assert.True(t, c.Robots().Has("B"), "roster must be copied")

	c.OnRosterUpdate(roster("C"))
	got := c.Robots()
	assert.Len(t, got, 1)
	assert.True(t, got.Has("C"))
}

func TestStateUpdateReplacesEntry(t *testing.T) {
	c, _, _ := newTestCoordinator(t, "A", false)

	c.OnStateUpdate("A", json.RawMessage(`{"v":1}`))
	c.OnStateUpdate("A", json.RawMessage(`{"v":2}`))
	c.OnStateUpdate("B", json.RawMessage(`{"v":3}`))

	st, ok := c.State("A")
	require.True(t, ok)
	assert.JSONEq(t, `{"v":2}`, string(st))

	st, ok = c.State("B")
	require.True(t, ok)
	assert.JSONEq(t, `{"v":3}`, string(st))

	_, ok = c.State("Z")
	assert.False(t, ok)
}

func TestInboundEventsThroughTransport(t *testing.T) {
	c, tr, _ := newTestCoordinator(t, "A", false)

	msg, err := protocol.NewRobotsMessage(roster("A"))
	require.NoError(t, err)
	tr.deliver(msg)
	assert.True(t, c.Connected())

	msg, err = protocol.NewRobotStateMessage("A", map[string]int{"j0": 5})
	require.NoError(t, err)
	tr.deliver(msg)
	st, ok := c.State("A")
	require.True(t, ok)
	assert.JSONEq(t, `{"j0":5}`, string(st))

	msg, err = protocol.NewDisconnectedMessage("A")
	require.NoError(t, err)
	tr.deliver(msg)
	assert.False(t, c.Connected())

	msg, err = protocol.NewConnectedMessage("A")
	require.NoError(t, err)
	tr.deliver(msg)
	assert.True(t, c.Connected())
}

func TestSelectRobotRederivesConnection(t *testing.T) {
	c, _, _ := newTestCoordinator(t, "A", false)
	c.OnRosterUpdate(roster("B"))
	assert.False(t, c.Connected())

	c.SelectRobot("B")
	assert.True(t, c.Connected())
	assert.Equal(t, "B", c.Session().RobotID)
}

func TestCloseUnsubscribesAndStops(t *testing.T) {
	tr := newFakeTransport()
	mock := clock.NewMock()
	var others int
	unsub := tr.Subscribe(protocol.TypeRobots, func(*protocol.Message) { others++ })
	defer unsub()

	c := New(tr, Session{RobotID: "A", Geometry: benchGeometry(), Clock: mock})
	assert.Equal(t, 5, tr.subscribed())

	var calls int
	c.OnPose(func(r3.Vector) { calls++ })
	require.True(t, c.SetJointAngles([]float64{1, 2, 3, 4}, 10))

	c.Close()
	c.Close()
	assert.Equal(t, 1, tr.subscribed(), "other subscribers must survive Close")

	rosterMsg, err := protocol.NewRobotsMessage(roster("A"))
	require.NoError(t, err)
	tr.deliver(rosterMsg)
	assert.Equal(t, 1, others)
	assert.Equal(t, StatusUnknown, c.Status("A"))

	mock.Add(10 * DefaultDebounce)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, calls)

	assert.False(t, c.SetJointAngles([]float64{1, 2, 3, 4}, 10))
	assert.False(t, c.MoveToPose(12, 0, 17, 0, 0, 0, 10))
}

func TestDisplayValues(t *testing.T) {
	d := DisplayState{X: 1, Gripper: 7}
	d.Joints[3] = 40

	v := d.Values()
	assert.Equal(t, 1.0, v["x"])
	assert.Equal(t, 7.0, v["gripper"])
	assert.Equal(t, 40.0, v["j3"])
	assert.Contains(t, v, "j5")
	assert.Len(t, v, 13)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "unknown", StatusUnknown.String())
}
