// Package ingest accepts pose streams from clients over WebSocket and applies
// them to the scene. Each connection owns the pawns it reported; they leave
// the scene when it disconnects.
package ingest

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/teslashibe/go-looktrigger/internal/log"
	"github.com/teslashibe/go-looktrigger/pkg/debug"
	"github.com/teslashibe/go-looktrigger/pkg/protocol"
	"github.com/teslashibe/go-looktrigger/pkg/scene"
)

// ErrNotOwner is returned when a connection touches a pawn it does not own
var ErrNotOwner = scene.ErrNotOwner

// Connection is one pose-reporting client
type Connection struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time
	Poses     uint64

	mu sync.Mutex
}

// Send writes a message to the client
func (c *Connection) Send(msg *protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// Gateway manages ingest connections
type Gateway struct {
	mu    sync.RWMutex
	conns map[string]*Connection
	scene *scene.Scene
	log   *slog.Logger

	// Stats
	messagesReceived atomic.Uint64
	posesApplied     atomic.Uint64
	rejected         atomic.Uint64
}

// NewGateway creates a gateway writing into sc
func NewGateway(sc *scene.Scene) *Gateway {
	return &Gateway{
		conns: make(map[string]*Connection),
		scene: sc,
		log:   log.Component("ingest"),
	}
}

// RegisterRoutes registers the ingest WebSocket routes. The caller installs
// the /ws upgrade guard.
func (g *Gateway) RegisterRoutes(app *fiber.App) {
	app.Get("/ws/ingest", websocket.New(g.handleConn))
	app.Get("/ws/ingest/:id", websocket.New(g.handleConn))
}

// handleConn serves one ingest connection
func (g *Gateway) handleConn(c *websocket.Conn) {
	connID := c.Params("id")
	if connID == "" {
		connID = uuid.New().String()
	}

	conn := &Connection{
		ID:        connID,
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	g.mu.Lock()
	if _, exists := g.conns[connID]; exists {
		g.mu.Unlock()
		g.log.Warn("duplicate ingest connection rejected", "conn", connID)
		if msg, err := protocol.NewErrorMessage("connection id already in use"); err == nil {
			conn.Send(msg)
		}
		return
	}
	g.conns[connID] = conn
	count := len(g.conns)
	g.mu.Unlock()

	g.log.Info("ingest connected", "conn", connID, "total", count)

	defer func() {
		g.mu.Lock()
		delete(g.conns, connID)
		count := len(g.conns)
		g.mu.Unlock()

		removed := g.scene.RemoveOwned(connID)
		g.log.Info("ingest disconnected", "conn", connID, "total", count, "pawns_removed", removed)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			debug.Log("ingest read ended", "conn", connID, "error", err)
			return
		}

		conn.mu.Lock()
		conn.LastSeen = time.Now()
		conn.mu.Unlock()

		g.messagesReceived.Add(1)
		if reply := g.handleMessage(conn, data); reply != nil {
			if err := conn.Send(reply); err != nil {
				g.log.Warn("ingest reply failed", "conn", connID, "error", err)
				return
			}
		}
	}
}

// handleMessage applies one message and returns the reply, if any
func (g *Gateway) handleMessage(conn *Connection, data []byte) *protocol.Message {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		return g.reject(conn, err)
	}

	switch msg.Type {
	case protocol.TypePose:
		pose, err := msg.GetPoseData()
		if err != nil {
			return g.reject(conn, fmt.Errorf("invalid pose: %w", err))
		}
		e, err := g.ApplyPose(conn.ID, pose)
		if err != nil {
			return g.reject(conn, err)
		}
		conn.mu.Lock()
		conn.Poses++
		conn.mu.Unlock()
		reply, _ := protocol.NewAckMessage(e.ID)
		return reply

	case protocol.TypeLeave:
		leave, err := msg.GetLeaveData()
		if err != nil {
			return g.reject(conn, fmt.Errorf("invalid leave: %w", err))
		}
		if err := g.Leave(conn.ID, leave.ID); err != nil {
			return g.reject(conn, err)
		}
		reply, _ := protocol.NewAckMessage(leave.ID)
		return reply

	case protocol.TypePing:
		var id string
		if ping, err := msg.GetPingData(); err == nil {
			id = ping.ID
		}
		reply, _ := protocol.NewPongMessage(id, msg.Timestamp, time.Now().UnixMilli())
		return reply

	default:
		return g.reject(conn, fmt.Errorf("unsupported message type %q", msg.Type))
	}
}

func (g *Gateway) reject(conn *Connection, err error) *protocol.Message {
	g.rejected.Add(1)
	debug.Log("ingest message rejected", "conn", conn.ID, "error", err)
	reply, _ := protocol.NewErrorMessage(err.Error())
	return reply
}

// ApplyPose upserts a pawn on behalf of owner. Pawns reported by another
// connection are refused.
func (g *Gateway) ApplyPose(owner string, pose *protocol.PoseData) (scene.Entity, error) {
	e, err := g.scene.UpsertOwnedPawn(pose.ID, pose.Name, owner, pose.Position, pose.Forward)
	if err != nil {
		return scene.Entity{}, err
	}

	g.posesApplied.Add(1)
	if debug.Tracking {
		debug.TrackLog("pose", "conn", owner, "pawn", e.ID, "position", e.Position.String(),
			"forward", e.Forward.String())
	}
	return e, nil
}

// Leave removes a pawn owned by owner
func (g *Gateway) Leave(owner, id string) error {
	return g.scene.RemoveOwnedPawn(owner, id)
}

// ConnectionCount returns the number of open ingest connections
func (g *Gateway) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

// Stats contains gateway statistics
type Stats struct {
	Connections      int    `json:"connections"`
	MessagesReceived uint64 `json:"messages_received"`
	PosesApplied     uint64 `json:"poses_applied"`
	Rejected         uint64 `json:"rejected"`
}

// GetStats returns gateway statistics
func (g *Gateway) GetStats() Stats {
	return Stats{
		Connections:      g.ConnectionCount(),
		MessagesReceived: g.messagesReceived.Load(),
		PosesApplied:     g.posesApplied.Load(),
		Rejected:         g.rejected.Load(),
	}
}

// ConnectionInfo describes one open connection
type ConnectionInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
	Poses     uint64    `json:"poses"`
}

// GetConnectionInfos returns info about all open connections
func (g *Gateway) GetConnectionInfos() []ConnectionInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()

	infos := make([]ConnectionInfo, 0, len(g.conns))
	for _, c := range g.conns {
		c.mu.Lock()
		infos = append(infos, ConnectionInfo{
			ID:        c.ID,
			Connected: c.Connected,
			LastSeen:  c.LastSeen,
			Poses:     c.Poses,
		})
		c.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes registers connection inspection routes
func (g *Gateway) RegisterAPIRoutes(api fiber.Router) {
	conns := api.Group("/connections")

	conns.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"connections": g.GetConnectionInfos(),
			"count":       g.ConnectionCount(),
		})
	})

	conns.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(g.GetStats())
	})
}
