package web

import (
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-looktrigger/internal/log"
	"github.com/teslashibe/go-looktrigger/pkg/hub"
	"github.com/teslashibe/go-looktrigger/pkg/lookat"
	"github.com/teslashibe/go-looktrigger/pkg/protocol"
)

// recentOutcomes bounds the outcome history kept for the API
const recentOutcomes = 100

// Sink delivers fired outcomes to event subscribers and the log.
// It implements lookat.OutputSink.
type Sink struct {
	events *hub.Hub
	log    *slog.Logger
	now    func() time.Time

	recent   []protocol.OutcomeData
	recentMu sync.RWMutex
}

// NewSink creates a sink broadcasting on events
func NewSink(events *hub.Hub) *Sink {
	return &Sink{
		events: events,
		log:    log.Component("outcomes"),
		now:    time.Now,
		recent: make([]protocol.OutcomeData, 0, recentOutcomes),
	}
}

// Hub returns the event hub outcomes are broadcast on
func (s *Sink) Hub() *hub.Hub {
	return s.events
}

// Fire implements lookat.OutputSink
func (s *Sink) Fire(ev lookat.Event) {
	at := s.now()

	s.log.Info("outcome", "monitor", ev.MonitorName, "monitor_id", ev.MonitorID,
		"output", ev.Output, "occupant", ev.Occupant.ID)

	msg, err := protocol.NewOutcomeMessage(ev.MonitorID, ev.MonitorName, ev.Output, ev.Occupant.ID, at)
	if err != nil {
		s.log.Error("failed to encode outcome", "error", err)
		return
	}

	s.recentMu.Lock()
	s.recent = append(s.recent, protocol.OutcomeData{
		MonitorID:  ev.MonitorID,
		Monitor:    ev.MonitorName,
		Output:     ev.Output,
		OccupantID: ev.Occupant.ID,
		Time:       at.UnixMilli(),
	})
	if len(s.recent) > recentOutcomes {
		s.recent = s.recent[1:]
	}
	s.recentMu.Unlock()

	data, err := msg.Bytes()
	if err != nil {
		s.log.Error("failed to encode outcome", "error", err)
		return
	}
	s.events.Broadcast(hub.NewMonitorMessage(ev.MonitorName, data))
}

// Recent returns the latest outcomes, oldest first
func (s *Sink) Recent() []protocol.OutcomeData {
	s.recentMu.RLock()
	defer s.recentMu.RUnlock()
	return append([]protocol.OutcomeData{}, s.recent...)
}
