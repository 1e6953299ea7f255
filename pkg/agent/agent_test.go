package agent

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teslashibe/go-rebel/pkg/kinematics"
	"github.com/teslashibe/go-rebel/pkg/protocol"
	"github.com/teslashibe/go-rebel/pkg/robot"
)

type fakeTransport struct {
	mu       sync.Mutex
	sent     []*protocol.Message
	handlers map[protocol.MessageType]func(*protocol.Message)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[protocol.MessageType]func(*protocol.Message))}
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
	f.handlers[t] = h
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, t)
	}
}

func (f *fakeTransport) deliver(t *testing.T, msg *protocol.Message, err error) {
	t.Helper()
	require.NoError(t, err)
	f.mu.Lock()
	h := f.handlers[msg.Type]
	f.mu.Unlock()
	if h != nil {
		h(msg)
	}
}

func (f *fakeTransport) subscribed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

// lastState returns the most recent robot state emitted.
func (f *fakeTransport) lastState(t *testing.T) (State, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].Type != protocol.TypeRobot {
			continue
		}
		data, err := f.sent[i].GetRobotState()
		require.NoError(t, err)
		var st State
		require.NoError(t, json.Unmarshal(data.State, &st))
		return st, true
	}
	return State{}, false
}

func newTestAgent(t *testing.T, settingsFile string) (*Agent, *fakeTransport, *robot.SimArm) {
	t.Helper()
	tr := newFakeTransport()
	arm := robot.NewSimArm()
	a, err := New(tr, arm, Config{
		RobotID:      "7",
		Geometry:     kinematics.DefaultConfig(),
		SettingsFile: settingsFile,
		Debounce:     5 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, a.Start())
	t.Cleanup(a.Close)
	return a, tr, arm
}

func TestStartRegisters(t *testing.T) {
	_, tr, _ := newTestAgent(t, "")

	tr.mu.Lock()
	first := tr.sent[0]
	tr.mu.Unlock()

	require.Equal(t, protocol.TypeRegister, first.Type)
	d, err := first.GetDescriptor()
	require.NoError(t, err)
	assert.Equal(t, "7", d.ID)
	assert.Equal(t, protocol.DefaultRobotType, d.RobotType)
	assert.Len(t, d.Motors, 4)
	assert.Contains(t, d.Motors, "j3")
	assert.Equal(t, 5, tr.subscribed())
}

func TestSetAnglesDrivesArmAndReports(t *testing.T) {
	_, tr, arm := newTestAgent(t, "")

	msg, err := protocol.NewRobotSetAnglesMessage("7", []float64{90, 0, 0, 0}, 40)
	tr.deliver(t, msg, err)

	pos, _ := arm.Position()
	assert.Equal(t, [robot.NumJoints]float64{90, 0, 0, 0}, pos.Joints)

	want := kinematics.ForwardDegrees([4]float64{90, 0, 0, 0}, kinematics.DefaultConfig().Params())
	require.Eventually(t, func() bool {
		st, ok := tr.lastState(t)
		return ok && len(st.Joints) == 4 && st.Joints[0] == 90
	}, time.Second, 5*time.Millisecond)

	st, _ := tr.lastState(t)
	assert.InDelta(t, want.X, st.Pose.X, 1e-6)
	assert.InDelta(t, want.Y, st.Pose.Y, 1e-6)
	assert.InDelta(t, want.Z, st.Pose.Z, 1e-6)
	assert.Equal(t, DefaultSettings().Speed, st.Settings.Speed)
}

func TestCommandsForOtherRobotsIgnored(t *testing.T) {
	_, tr, arm := newTestAgent(t, "")

	msg, err := protocol.NewRobotSetAnglesMessage("8", []float64{10, 10, 10, 10}, 40)
	tr.deliver(t, msg, err)
	msg, err = protocol.NewMotorSetPosMessage("8", "j1", 10)
	tr.deliver(t, msg, err)
	msg, err = protocol.NewGripperSetPosMessage("8", 50, 1, 1)
	tr.deliver(t, msg, err)

	assert.Zero(t, arm.Commands())
}

func TestMotorAndGripper(t *testing.T) {
	_, tr, arm := newTestAgent(t, "")

	msg, err := protocol.NewMotorSetPosMessage("7", "j2", -30)
	tr.deliver(t, msg, err)
	msg, err = protocol.NewMotorSetPosMessage("7", "j9", 10)
	tr.deliver(t, msg, err)
	msg, err = protocol.NewGripperSetPosMessage("7", 60, 0, 0)
	tr.deliver(t, msg, err)

	pos, _ := arm.Position()
	assert.Equal(t, -30.0, pos.Joints[2])
	assert.Equal(t, 60.0, pos.Gripper)
	assert.Equal(t, uint64(2), arm.Commands())
}

func TestUpdateConfig(t *testing.T) {
	a, tr, _ := newTestAgent(t, "")

	msg, err := protocol.NewRobotUpdateConfigMessage("7", "speed", "75")
	tr.deliver(t, msg, err)
	msg, err = protocol.NewRobotUpdateConfigMessage("7", "reportRate", "1s")
	tr.deliver(t, msg, err)
	msg, err = protocol.NewRobotUpdateConfigMessage("7", "colour", "red")
	tr.deliver(t, msg, err)
	msg, err = protocol.NewRobotUpdateConfigMessage("8", "speed", 5)
	tr.deliver(t, msg, err)

	s := a.Settings()
	assert.Equal(t, 75.0, s.Speed)
	assert.Equal(t, time.Second, s.ReportRate)
	assert.Equal(t, DefaultSettings().GripperForce, s.GripperForce)
}

func TestWriteConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent", "settings.yaml")
	_, tr, _ := newTestAgent(t, path)

	msg, err := protocol.NewRobotUpdateConfigMessage("7", "home", []float64{10, 20, 30, 40})
	tr.deliver(t, msg, err)
	msg, err = protocol.NewRobotWriteConfigMessage("7")
	tr.deliver(t, msg, err)

	loaded, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20, 30, 40}, loaded.Home)

	// a fresh agent picks the saved settings up
	a2, _, _ := newTestAgent(t, path)
	assert.Equal(t, loaded, a2.Settings())
}

func TestHome(t *testing.T) {
	a, tr, arm := newTestAgent(t, "")

	msg, err := protocol.NewRobotUpdateConfigMessage("7", "home", []interface{}{5, "6", 7.5, 8})
	tr.deliver(t, msg, err)
	require.NoError(t, a.Home())

	pos, _ := arm.Position()
	assert.Equal(t, [robot.NumJoints]float64{5, 6, 7.5, 8}, pos.Joints)
}

func TestCloseUnsubscribes(t *testing.T) {
	a, tr, _ := newTestAgent(t, "")
	a.Close()
	a.Close()
	assert.Zero(t, tr.subscribed())
}

func TestSnapshot(t *testing.T) {
	a, _, arm := newTestAgent(t, "")
	require.NoError(t, arm.SetGripper(33, 0, 0))

	st, err := a.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 33.0, st.Gripper)
	assert.Equal(t, []float64{0, 0, 0, 0}, st.Joints)
}

func TestMotorIndex(t *testing.T) {
	tests := []struct {
		id      string
		want    int
		wantErr bool
	}{
		{"j0", 0, false},
		{"j3", 3, false},
		{"2", 2, false},
		{"j4", 0, true},
		{"-1", 0, true},
		{"wrist", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := motorIndex(tt.id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
