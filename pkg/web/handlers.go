package web

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-looktrigger/pkg/engine"
	"github.com/teslashibe/go-looktrigger/pkg/hub"
	"github.com/teslashibe/go-looktrigger/pkg/protocol"
	"github.com/teslashibe/go-looktrigger/pkg/scene"
	"github.com/teslashibe/go-looktrigger/pkg/vec"
)

// monitorStates converts engine snapshots to their wire form
func monitorStates(infos []engine.MonitorInfo) []protocol.MonitorState {
	states := make([]protocol.MonitorState, 0, len(infos))
	for _, info := range infos {
		states = append(states, monitorState(info))
	}
	return states
}

func monitorState(info engine.MonitorInfo) protocol.MonitorState {
	return protocol.MonitorState{
		ID:             info.ID,
		Name:           info.Name,
		Volume:         info.Volume,
		Target:         string(info.Config.LookTarget),
		Phase:          info.State.Phase.String(),
		Enabled:        info.Enabled,
		TargetResolved: info.TargetResolved,
		SinceActivated: info.State.SinceActivated.Seconds(),
		SinceLookAt:    info.State.SinceLookAt.Seconds(),
		Occupants:      info.Occupants,
	}
}

// notFound maps sentinel lookups to 404 and everything else to 500
func notFound(err error) error {
	if errors.Is(err, engine.ErrMonitorNotFound) || errors.Is(err, scene.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}

// handleHealth reports liveness
func (s *Server) handleHealth(c *fiber.Ctx) error {
	stats := s.engine.Stats()
	return c.JSON(fiber.Map{
		"status":      "ok",
		"version":     s.opts.Version,
		"monitors":    stats.Monitors,
		"subscribers": s.events.ClientCount(),
		"ingest":      s.ingest.ConnectionCount(),
	})
}

// handleMetrics renders counters in the text exposition format
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	stats := s.engine.Stats()
	events := s.events.Stats()
	gw := s.ingest.GetStats()

	return c.SendString(fmt.Sprintf(`# HELP looktrigger_ticks_total Engine ticks evaluated
# TYPE looktrigger_ticks_total counter
looktrigger_ticks_total %d

# HELP looktrigger_outcomes_total Outcomes fired by output
# TYPE looktrigger_outcomes_total counter
looktrigger_outcomes_total{output="success"} %d
looktrigger_outcomes_total{output="timeout"} %d

# HELP looktrigger_monitors_destroyed_total Fire-once monitors removed
# TYPE looktrigger_monitors_destroyed_total counter
looktrigger_monitors_destroyed_total %d

# HELP looktrigger_monitors Live monitors
# TYPE looktrigger_monitors gauge
looktrigger_monitors %d

# HELP looktrigger_entities Scene entities
# TYPE looktrigger_entities gauge
looktrigger_entities %d

# HELP looktrigger_subscribers Connected event subscribers
# TYPE looktrigger_subscribers gauge
looktrigger_subscribers %d

# HELP looktrigger_events_dropped_total Subscribers dropped for falling behind
# TYPE looktrigger_events_dropped_total counter
looktrigger_events_dropped_total %d

# HELP looktrigger_ingest_connections Open pose ingest connections
# TYPE looktrigger_ingest_connections gauge
looktrigger_ingest_connections %d

# HELP looktrigger_poses_total Poses applied
# TYPE looktrigger_poses_total counter
looktrigger_poses_total %d
`, stats.Ticks, stats.Successes, stats.Timeouts, stats.Destroyed, stats.Monitors, stats.Entities,
		events.Clients, events.Dropped, gw.Connections, gw.PosesApplied))
}

// handleListMonitors returns every live monitor
func (s *Server) handleListMonitors(c *fiber.Ctx) error {
	states := monitorStates(s.engine.Monitors())
	return c.JSON(fiber.Map{
		"monitors": states,
		"count":    len(states),
	})
}

// handleGetMonitor returns one monitor
func (s *Server) handleGetMonitor(c *fiber.Ctx) error {
	info, err := s.engine.Monitor(c.Params("id"))
	if err != nil {
		return notFound(err)
	}
	return c.JSON(monitorState(info))
}

// handleDeleteMonitor removes a monitor
func (s *Server) handleDeleteMonitor(c *fiber.Ctx) error {
	if err := s.engine.RemoveMonitor(c.Params("id")); err != nil {
		return notFound(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleSetEnabled toggles evaluation of a monitor
func (s *Server) handleSetEnabled(enabled bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if err := s.engine.SetEnabled(id, enabled); err != nil {
			return notFound(err)
		}
		s.log.Info("monitor toggled", "monitor_id", id, "enabled", enabled)
		return c.JSON(fiber.Map{
			"id":      id,
			"enabled": enabled,
		})
	}
}

// handleListEntities returns the scene
func (s *Server) handleListEntities(c *fiber.Ctx) error {
	entities := s.engine.Scene().All()
	return c.JSON(fiber.Map{
		"entities": entities,
		"count":    len(entities),
	})
}

// EntityRequest is the request body for placing an entity
type EntityRequest struct {
	Name     string    `json:"name"`
	Position vec.Vec3  `json:"position"`
	Forward  *vec.Vec3 `json:"forward,omitempty"`
}

// handlePutEntity moves a target or upserts a pawn
func (s *Server) handlePutEntity(c *fiber.Ctx) error {
	id := c.Params("id")

	var req EntityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	sc := s.engine.Scene()
	if existing, ok := sc.Get(id); ok && existing.Kind == scene.KindTarget {
		if err := sc.MoveTarget(existing.ID, req.Position); err != nil {
			return notFound(err)
		}
		e, _ := sc.Get(existing.ID)
		return c.JSON(e)
	}

	forward := vec.Zero
	if req.Forward != nil {
		forward = *req.Forward
	} else if existing, ok := sc.Get(id); ok {
		forward = existing.Forward
	}
	return c.JSON(sc.UpsertPawn(id, req.Name, "", req.Position, forward))
}

// handleDeleteEntity removes an entity
func (s *Server) handleDeleteEntity(c *fiber.Ctx) error {
	if err := s.engine.Scene().Remove(c.Params("id")); err != nil {
		return notFound(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleListOutcomes returns recent outcomes
func (s *Server) handleListOutcomes(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"outcomes": s.sink.Recent(),
	})
}

// handleStats returns engine and delivery counters
func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"engine": s.engine.Stats(),
		"events": s.events.Stats(),
		"ingest": s.ingest.GetStats(),
	})
}

// handleEventsWS streams outcomes. ?monitor=name narrows the stream.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	hub.NewClient(s.events, c, c.Query("monitor")).Run()
}
