// Package protocol defines the WebSocket message types exchanged between
// pose-reporting clients and the look trigger service.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/teslashibe/go-looktrigger/pkg/vec"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Client → Service messages
	TypePose  MessageType = "pose"  // Pawn position and aim
	TypeLeave MessageType = "leave" // Pawn left the scene

	// Service → Client messages
	TypeOutcome  MessageType = "outcome"  // A monitor fired
	TypeMonitors MessageType = "monitors" // Monitor state snapshot
	TypeAck      MessageType = "ack"      // Pose accepted
	TypeError    MessageType = "error"    // Request rejected

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

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
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
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
	if m.Data == nil {
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
// Client → Service Message Types
// =============================================================================

// PoseData reports one pawn's pose. An empty ID asks the service to assign one.
type PoseData struct {
	ID       string   `json:"id,omitempty"`
	Name     string   `json:"name,omitempty"`
	Position vec.Vec3 `json:"position"`
	Forward  vec.Vec3 `json:"forward"`
}

// LeaveData removes a pawn
type LeaveData struct {
	ID string `json:"id"`
}

// =============================================================================
// Service → Client Message Types
// =============================================================================

// OutcomeData is a fired monitor outcome
type OutcomeData struct {
	MonitorID  string `json:"monitor_id"`
	Monitor    string `json:"monitor"`
	Output     string `json:"output"` // "success", "timeout"
	OccupantID string `json:"occupant_id"`
	Time       int64  `json:"time"` // Unix milliseconds
}

// MonitorState is one monitor's view in a snapshot
type MonitorState struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Volume         string   `json:"volume"`
	Target         string   `json:"target"`
	Phase          string   `json:"phase"`
	Enabled        bool     `json:"enabled"`
	TargetResolved bool     `json:"target_resolved"`
	SinceActivated float64  `json:"since_activated"` // Seconds
	SinceLookAt    float64  `json:"since_look_at"`   // Seconds
	Occupants      []string `json:"occupants"`
}

// MonitorsData is a snapshot of every live monitor
type MonitorsData struct {
	Monitors []MonitorState `json:"monitors"`
}

// AckData confirms a pose was applied
type AckData struct {
	ID string `json:"id"`
}

// ErrorData describes a rejected request
type ErrorData struct {
	Message string `json:"message"`
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
