// Package relay is the server side of the transport. Robot controllers and
// operator sessions connect over WebSocket; the relay keeps the roster,
// routes commands to controllers and fans robot events out to sessions.
package relay

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/teslashibe/go-rebel/internal/log"
	"github.com/teslashibe/go-rebel/pkg/protocol"
)

// Conn is one controller or session connection.
type Conn struct {
	ID        string
	RobotID   string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	mu sync.Mutex
}

// Send writes a message to the connection.
func (c *Conn) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) touch() {
	c.mu.Lock()
	c.LastSeen = time.Now()
	c.mu.Unlock()
}

// Relay tracks controllers, sessions and the roster.
type Relay struct {
	logger *slog.Logger

	mu       sync.RWMutex
	robots   map[string]*Conn
	roster   protocol.Roster
	sessions map[string]*Conn

	// Observers
	onRoster       func(protocol.Roster)
	onState        func(robotID string, state json.RawMessage)
	onConnectivity func(robotID string, connected bool)
	monitor        func(*protocol.Message)

	// Stats
	messagesReceived  atomic.Uint64
	messagesSent      atomic.Uint64
	commandsForwarded atomic.Uint64
	commandsDropped   atomic.Uint64
}

// New creates an empty relay.
func New() *Relay {
	return &Relay{
		logger:   log.With("component", "relay"),
		robots:   make(map[string]*Conn),
		roster:   protocol.Roster{},
		sessions: make(map[string]*Conn),
	}
}

// OnRoster sets the callback for roster changes.
func (r *Relay) OnRoster(callback func(protocol.Roster)) {
	r.mu.Lock()
	r.onRoster = callback
	r.mu.Unlock()
}

// OnState sets the callback for robot state snapshots.
func (r *Relay) OnState(callback func(robotID string, state json.RawMessage)) {
	r.mu.Lock()
	r.onState = callback
	r.mu.Unlock()
}

// OnConnectivity sets the callback for robot connects and disconnects.
func (r *Relay) OnConnectivity(callback func(robotID string, connected bool)) {
	r.mu.Lock()
	r.onConnectivity = callback
	r.mu.Unlock()
}

// SetMonitor receives a copy of every message the relay routes.
func (r *Relay) SetMonitor(fn func(*protocol.Message)) {
	r.mu.Lock()
	r.monitor = fn
	r.mu.Unlock()
}

// RegisterRoutes registers WebSocket routes on a Fiber app.
func (r *Relay) RegisterRoutes(app fiber.Router) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/robot/:id", websocket.New(r.handleRobot))
	app.Get("/ws/session", websocket.New(r.handleSession))
}

// =============================================================================
// Robot controllers
// =============================================================================

func (r *Relay) handleRobot(c *websocket.Conn) {
	conn := &Conn{
		ID:        uuid.NewString(),
		RobotID:   c.Params("id"),
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}
	logger := r.logger.With("conn", conn.ID, "path_id", conn.RobotID)
	logger.Debug("controller connected")

	defer func() {
		r.removeRobot(conn)
		logger.Debug("controller disconnected")
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		conn.touch()
		r.messagesReceived.Add(1)

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			logger.Debug("parse error", "error", err)
			continue
		}
		r.handleRobotMessage(conn, msg)
	}
}

func (r *Relay) handleRobotMessage(conn *Conn, msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeRegister:
		desc, err := msg.GetDescriptor()
		if err != nil {
			r.logger.Warn("bad register", "conn", conn.ID, "error", err)
			return
		}
		r.addRobot(conn, *desc)

	case protocol.TypeRobot:
		st, err := msg.GetRobotState()
		if err != nil {
			return
		}
		if st.ID == "" {
			st.ID = conn.RobotID
		}
		r.publishState(st.ID, st.State)

	case protocol.TypePing:
		r.pong(conn, msg)
	}
}

func (r *Relay) addRobot(conn *Conn, desc protocol.RobotDescriptor) {
	if desc.ID == "" {
		desc.ID = conn.RobotID
	}
	if desc.ID == "" {
		desc.ID = protocol.DefaultRobotID
	}

	r.mu.Lock()
	// A controller re-registering under a new id gives up its old one
	renamed := ""
	if prev := conn.RobotID; prev != "" && prev != desc.ID && r.robots[prev] == conn {
		delete(r.robots, prev)
		delete(r.roster, prev)
		renamed = prev
	}
	old := r.robots[desc.ID]
	conn.RobotID = desc.ID
	r.robots[desc.ID] = conn
	r.roster[desc.ID] = desc
	roster := r.roster.Clone()
	r.mu.Unlock()

	if old != nil && old != conn {
		r.logger.Info("controller replaced", "robot", desc.ID, "old", old.ID, "new", conn.ID)
		old.Conn.Close()
	}
	if renamed != "" {
		r.logger.Info("robot renamed", "old", renamed, "robot", desc.ID, "conn", conn.ID)
	}
	r.logger.Info("robot registered", "robot", desc.ID, "type", desc.RobotType, "motors", len(desc.Motors))

	r.publishRoster(roster)
	if renamed != "" {
		r.publishConnectivity(renamed, false)
	}
	r.publishConnectivity(desc.ID, true)
}

func (r *Relay) removeRobot(conn *Conn) {
	r.mu.Lock()
	id := conn.RobotID
	if r.robots[id] != conn {
		// Never registered, or replaced by a newer controller
		r.mu.Unlock()
		return
	}
	delete(r.robots, id)
	delete(r.roster, id)
	roster := r.roster.Clone()
	r.mu.Unlock()

	r.logger.Info("robot unregistered", "robot", id)
	r.publishRoster(roster)
	r.publishConnectivity(id, false)
}

// =============================================================================
// Operator sessions
// =============================================================================

func (r *Relay) handleSession(c *websocket.Conn) {
	conn := &Conn{
		ID:        uuid.NewString(),
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	r.mu.Lock()
	r.sessions[conn.ID] = conn
	count := len(r.sessions)
	r.mu.Unlock()
	r.logger.Debug("session connected", "conn", conn.ID, "sessions", count)

	defer func() {
		r.mu.Lock()
		delete(r.sessions, conn.ID)
		r.mu.Unlock()
		r.logger.Debug("session disconnected", "conn", conn.ID)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		conn.touch()
		r.messagesReceived.Add(1)

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			r.logger.Debug("parse error", "conn", conn.ID, "error", err)
			continue
		}
		r.handleSessionMessage(conn, msg)
	}
}

func (r *Relay) handleSessionMessage(conn *Conn, msg *protocol.Message) {
	switch {
	case msg.Type == protocol.TypeRegister:
		desc, err := msg.GetDescriptor()
		if err != nil {
			return
		}
		r.welcome(conn, desc.ID)

	case msg.Type.IsCommand():
		robotID, err := msg.CommandRobotID()
		if err != nil {
			r.logger.Debug("bad command", "type", msg.Type, "error", err)
			return
		}
		r.monitorMessage(msg)
		if err := r.sendToRobot(robotID, msg); err != nil {
			r.commandsDropped.Add(1)
			r.logger.Debug("command dropped", "type", msg.Type, "robot", robotID, "error", err)
			return
		}
		r.commandsForwarded.Add(1)

	case msg.Type == protocol.TypePing:
		r.pong(conn, msg)
	}
}

// welcome answers a session's register with the roster, plus
// robotConnected when its robot is already here.
func (r *Relay) welcome(conn *Conn, robotID string) {
	conn.mu.Lock()
	conn.RobotID = robotID
	conn.mu.Unlock()

	r.mu.RLock()
	roster := r.roster.Clone()
	r.mu.RUnlock()

	if msg, err := protocol.NewRobotsMessage(roster); err == nil {
		r.send(conn, msg)
	}
	if roster.Has(robotID) {
		if msg, err := protocol.NewConnectedMessage(robotID); err == nil {
			r.send(conn, msg)
		}
	}
}

// =============================================================================
// Fan-out
// =============================================================================

func (r *Relay) publishRoster(roster protocol.Roster) {
	msg, err := protocol.NewRobotsMessage(roster)
	if err != nil {
		return
	}
	r.broadcast(msg)

	r.mu.RLock()
	cb := r.onRoster
	r.mu.RUnlock()
	if cb != nil {
		cb(roster)
	}
}

func (r *Relay) publishConnectivity(robotID string, connected bool) {
	var msg *protocol.Message
	var err error
	if connected {
		msg, err = protocol.NewConnectedMessage(robotID)
	} else {
		msg, err = protocol.NewDisconnectedMessage(robotID)
	}
	if err != nil {
		return
	}
	r.broadcast(msg)

	r.mu.RLock()
	cb := r.onConnectivity
	r.mu.RUnlock()
	if cb != nil {
		cb(robotID, connected)
	}
}

func (r *Relay) publishState(robotID string, state json.RawMessage) {
	msg, err := protocol.NewRobotStateMessage(robotID, state)
	if err != nil {
		return
	}
	r.broadcast(msg)

	r.mu.RLock()
	cb := r.onState
	r.mu.RUnlock()
	if cb != nil {
		cb(robotID, state)
	}
}

// broadcast sends msg to every session and the monitor.
func (r *Relay) broadcast(msg *protocol.Message) {
	r.mu.RLock()
	sessions := make([]*Conn, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		r.send(s, msg)
	}
	r.monitorMessage(msg)
}

func (r *Relay) monitorMessage(msg *protocol.Message) {
	r.mu.RLock()
	fn := r.monitor
	r.mu.RUnlock()
	if fn != nil {
		fn(msg)
	}
}

func (r *Relay) send(conn *Conn, msg *protocol.Message) {
	r.messagesSent.Add(1)
	if err := conn.Send(msg); err != nil {
		r.logger.Debug("send failed", "conn", conn.ID, "type", msg.Type, "error", err)
	}
}

func (r *Relay) pong(conn *Conn, msg *protocol.Message) {
	id := conn.RobotID
	ts := msg.Timestamp
	if ping, err := msg.GetPingData(); err == nil {
		if ping.ID != "" {
			id = ping.ID
		}
		if ping.Timestamp != 0 {
			ts = ping.Timestamp
		}
	}
	if resp, err := protocol.NewPongMessage(id, ts, time.Now().UnixMilli()); err == nil {
		r.send(conn, resp)
	}
}

// sendToRobot forwards a message to a robot's controller.
func (r *Relay) sendToRobot(robotID string, msg *protocol.Message) error {
	r.mu.RLock()
	robot, ok := r.robots[robotID]
	r.mu.RUnlock()

	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "robot not connected")
	}

	r.messagesSent.Add(1)
	return robot.Send(msg)
}

// =============================================================================
// Queries
// =============================================================================

// Roster returns a copy of the current roster.
func (r *Relay) Roster() protocol.Roster {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roster.Clone()
}

// RobotCount returns the number of registered robots.
func (r *Relay) RobotCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.robots)
}

// SessionCount returns the number of operator sessions.
func (r *Relay) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Stats contains relay statistics.
type Stats struct {
	RobotCount        int    `json:"robot_count"`
	SessionCount      int    `json:"session_count"`
	MessagesReceived  uint64 `json:"messages_received"`
	MessagesSent      uint64 `json:"messages_sent"`
	CommandsForwarded uint64 `json:"commands_forwarded"`
	CommandsDropped   uint64 `json:"commands_dropped"`
}

// GetStats returns relay statistics.
func (r *Relay) GetStats() Stats {
	return Stats{
		RobotCount:        r.RobotCount(),
		SessionCount:      r.SessionCount(),
		MessagesReceived:  r.messagesReceived.Load(),
		MessagesSent:      r.messagesSent.Load(),
		CommandsForwarded: r.commandsForwarded.Load(),
		CommandsDropped:   r.commandsDropped.Load(),
	}
}

// RobotInfo describes a registered robot's controller.
type RobotInfo struct {
	ID        string    `json:"id"`
	RobotType string    `json:"robotType"`
	Conn      string    `json:"conn"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// GetRobotInfos returns info about all registered robots.
func (r *Relay) GetRobotInfos() []RobotInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]RobotInfo, 0, len(r.robots))
	for id, c := range r.robots {
		c.mu.Lock()
		infos = append(infos, RobotInfo{
			ID:        id,
			RobotType: r.roster[id].RobotType,
			Conn:      c.ID,
			Connected: c.Connected,
			LastSeen:  c.LastSeen,
		})
		c.mu.Unlock()
	}
	return infos
}
