package protocol

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewDescriptor builds a descriptor for id with the given motor ids.
func NewDescriptor(id, key, robotType string, motorIDs ...string) RobotDescriptor {
	motors := make(map[string]MotorDescriptor, len(motorIDs))
	for _, m := range motorIDs {
		motors[m] = MotorDescriptor{ID: m}
	}
	return RobotDescriptor{
		ID:        id,
		Key:       key,
		RobotType: robotType,
		Motors:    motors,
	}
}

// NewRegisterMessage creates a register message
func NewRegisterMessage(d RobotDescriptor) (*Message, error) {
	return NewMessage(TypeRegister, d)
}

// NewRobotsMessage creates a roster message
func NewRobotsMessage(roster Roster) (*Message, error) {
	if roster == nil {
		roster = Roster{}
	}
	return NewMessage(TypeRobots, roster)
}

// NewRobotStateMessage creates a state snapshot message. state may be any
// JSON-encodable value or pre-encoded json.RawMessage.
func NewRobotStateMessage(id string, state interface{}) (*Message, error) {
	raw, ok := state.(json.RawMessage)
	if !ok {
		var err error
		raw, err = json.Marshal(state)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal robot state: %w", err)
		}
	}
	return NewMessage(TypeRobot, RobotStateData{ID: id, State: raw})
}

// NewConnectedMessage creates a robotConnected message
func NewConnectedMessage(id string) (*Message, error) {
	return NewMessage(TypeRobotConnected, RobotIDData{ID: id})
}

// NewDisconnectedMessage creates a robotDisconnected message
func NewDisconnectedMessage(id string) (*Message, error) {
	return NewMessage(TypeRobotDisconnected, RobotIDData{ID: id})
}

// NewMotorSetPosMessage creates a single joint command
func NewMotorSetPosMessage(robotID, motorID string, value float64) (*Message, error) {
	return NewMessage(TypeMotorSetPos, MotorSetPos{
		RobotID: robotID,
		MotorID: motorID,
		Value:   value,
	})
}

// NewGripperSetPosMessage creates a gripper command
func NewGripperSetPosMessage(robotID string, value, speed, force float64) (*Message, error) {
	return NewMessage(TypeGripperSetPos, GripperSetPos{
		RobotID: robotID,
		Value:   value,
		Speed:   speed,
		Force:   force,
	})
}

// NewRobotSetAnglesMessage creates a multi-joint command
func NewRobotSetAnglesMessage(robotID string, angles []float64, speed float64) (*Message, error) {
	return NewMessage(TypeRobotSetAngles, RobotSetAngles{
		RobotID: robotID,
		Angles:  angles,
		Speed:   speed,
	})
}

// NewRobotUpdateConfigMessage creates a config field update
func NewRobotUpdateConfigMessage(robotID, key string, value interface{}) (*Message, error) {
	return NewMessage(TypeRobotUpdateConfig, RobotUpdateConfig{
		RobotID: robotID,
		Key:     key,
		Value:   value,
	})
}

// NewRobotWriteConfigMessage creates a config persist request
func NewRobotWriteConfigMessage(robotID string) (*Message, error) {
	return NewMessage(TypeRobotWriteConfig, RobotWriteConfig{RobotID: robotID})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string, ts int64) (*Message, error) {
	return NewMessage(TypePing, PingData{ID: id, Timestamp: ts})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetDescriptor extracts a register payload
func (m *Message) GetDescriptor() (*RobotDescriptor, error) {
	var data RobotDescriptor
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetRoster extracts a roster
func (m *Message) GetRoster() (Roster, error) {
	data := Roster{}
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return data, nil
}

// GetRobotState extracts a state snapshot
func (m *Message) GetRobotState() (*RobotStateData, error) {
	var data RobotStateData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetRobotID extracts a bare robot id
func (m *Message) GetRobotID() (string, error) {
	var data RobotIDData
	if err := m.ParseData(&data); err != nil {
		return "", err
	}
	return data.ID, nil
}

// GetMotorSetPos extracts a single joint command
func (m *Message) GetMotorSetPos() (*MotorSetPos, error) {
	var data MotorSetPos
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetGripperSetPos extracts a gripper command
func (m *Message) GetGripperSetPos() (*GripperSetPos, error) {
	var data GripperSetPos
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetRobotSetAngles extracts a multi-joint command
func (m *Message) GetRobotSetAngles() (*RobotSetAngles, error) {
	var data RobotSetAngles
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetRobotUpdateConfig extracts a config field update
func (m *Message) GetRobotUpdateConfig() (*RobotUpdateConfig, error) {
	var data RobotUpdateConfig
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetRobotWriteConfig extracts a config persist request
func (m *Message) GetRobotWriteConfig() (*RobotWriteConfig, error) {
	var data RobotWriteConfig
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// CommandRobotID returns the robot a command is addressed to. It is used by
// the relay to route commands without decoding the full payload.
func (m *Message) CommandRobotID() (string, error) {
	if !m.Type.IsCommand() {
		return "", fmt.Errorf("%s is not a command", m.Type)
	}
	var data struct {
		RobotID string `json:"robotId"`
	}
	if err := m.ParseData(&data); err != nil {
		return "", err
	}
	return data.RobotID, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
