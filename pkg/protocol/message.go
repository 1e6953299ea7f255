// Package protocol defines the WebSocket message types exchanged between
// operator sessions, the relay server and robot agents.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Session/agent → relay
	TypeRegister MessageType = "register" // Announce a robot descriptor

	// Relay → session
	TypeRobots            MessageType = "robots"            // Full roster replace
	TypeRobotConnected    MessageType = "robotConnected"    // Robot came online
	TypeRobotDisconnected MessageType = "robotDisconnected" // Robot went away

	// Agent → relay → session
	TypeRobot MessageType = "robot" // Per-robot state snapshot

	// Session → relay → agent
	TypeMotorSetPos       MessageType = "motorSetPos"       // Jog one joint
	TypeGripperSetPos     MessageType = "gripperSetPos"     // Actuate gripper
	TypeRobotSetAngles    MessageType = "robotSetAngles"    // Move all actuated joints
	TypeRobotUpdateConfig MessageType = "robotUpdateConfig" // Mutate a remote config field
	TypeRobotWriteConfig  MessageType = "robotWriteConfig"  // Persist remote config

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// IsCommand reports whether t is a command that the relay forwards to a robot.
func (t MessageType) IsCommand() bool {
	switch t {
	case TypeMotorSetPos, TypeGripperSetPos, TypeRobotSetAngles,
		TypeRobotUpdateConfig, TypeRobotWriteConfig:
		return true
	}
	return false
}

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s data: %w", msgType, err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Registration and roster
// =============================================================================

// Default registration values used by operator sessions.
const (
	DefaultRobotID   = "1"
	DefaultKey       = "default"
	DefaultRobotType = "IgusRebel"
)

// MotorDescriptor describes one motor of a robot.
type MotorDescriptor struct {
	ID string `json:"id"`
}

// RobotDescriptor is the registration payload.
type RobotDescriptor struct {
	ID        string                     `json:"id"`
	Key       string                     `json:"key"`
	RobotType string                     `json:"robotType"`
	Motors    map[string]MotorDescriptor `json:"motors"`
}

// Roster maps robot id to descriptor. It is always sent whole.
type Roster map[string]RobotDescriptor

// Has reports whether id is in the roster.
func (r Roster) Has(id string) bool {
	_, ok := r[id]
	return ok
}

// Clone returns a copy that shares no map with r.
func (r Roster) Clone() Roster {
	out := make(Roster, len(r))
	for id, d := range r {
		out[id] = d
	}
	return out
}

// RobotStateData is a state snapshot for one robot. State is opaque to
// everything except the agent that produced it.
type RobotStateData struct {
	ID    string          `json:"id"`
	State json.RawMessage `json:"state"`
}

// RobotIDData carries a bare robot id (connect/disconnect/write config).
type RobotIDData struct {
	ID string `json:"id"`
}

// =============================================================================
// Commands
// =============================================================================

// MotorSetPos jogs one joint.
type MotorSetPos struct {
	RobotID string  `json:"robotId"`
	MotorID string  `json:"motorId"`
	Value   float64 `json:"value"`
}

// GripperSetPos actuates the gripper.
type GripperSetPos struct {
	RobotID string  `json:"robotId"`
	Value   float64 `json:"value"`
	Speed   float64 `json:"speed"`
	Force   float64 `json:"force"`
}

// RobotSetAngles moves all actuated joints. Angles are in degrees.
type RobotSetAngles struct {
	RobotID string    `json:"robotId"`
	Angles  []float64 `json:"angles"`
	Speed   float64   `json:"speed"`
}

// RobotUpdateConfig mutates one remote config field.
type RobotUpdateConfig struct {
	RobotID string      `json:"robotId"`
	Key     string      `json:"key"`
	Value   interface{} `json:"value"`
}

// RobotWriteConfig asks the robot to persist its config.
type RobotWriteConfig struct {
	RobotID string `json:"robotId"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
