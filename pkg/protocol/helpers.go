package protocol

import (
	"time"

	"github.com/teslashibe/go-looktrigger/pkg/vec"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewPoseMessage creates a pose message
func NewPoseMessage(id, name string, position, forward vec.Vec3) (*Message, error) {
	return NewMessage(TypePose, PoseData{
		ID:       id,
		Name:     name,
		Position: position,
		Forward:  forward,
	})
}

// NewLeaveMessage creates a leave message
func NewLeaveMessage(id string) (*Message, error) {
	return NewMessage(TypeLeave, LeaveData{ID: id})
}

// NewOutcomeMessage creates an outcome message stamped with at
func NewOutcomeMessage(monitorID, monitor, output, occupantID string, at time.Time) (*Message, error) {
	return NewMessage(TypeOutcome, OutcomeData{
		MonitorID:  monitorID,
		Monitor:    monitor,
		Output:     output,
		OccupantID: occupantID,
		Time:       at.UnixMilli(),
	})
}

// NewMonitorsMessage creates a monitor snapshot message
func NewMonitorsMessage(monitors []MonitorState) (*Message, error) {
	if monitors == nil {
		monitors = []MonitorState{}
	}
	return NewMessage(TypeMonitors, MonitorsData{Monitors: monitors})
}

// NewAckMessage acknowledges a pose
func NewAckMessage(id string) (*Message, error) {
	return NewMessage(TypeAck, AckData{ID: id})
}

// NewErrorMessage creates an error message
func NewErrorMessage(message string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: message})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
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

// GetPoseData extracts pose data from a message
func (m *Message) GetPoseData() (*PoseData, error) {
	var data PoseData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetLeaveData extracts leave data from a message
func (m *Message) GetLeaveData() (*LeaveData, error) {
	var data LeaveData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetOutcomeData extracts outcome data from a message
func (m *Message) GetOutcomeData() (*OutcomeData, error) {
	var data OutcomeData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetMonitorsData extracts a monitor snapshot from a message
func (m *Message) GetMonitorsData() (*MonitorsData, error) {
	var data MonitorsData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetAckData extracts ack data from a message
func (m *Message) GetAckData() (*AckData, error) {
	var data AckData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
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
