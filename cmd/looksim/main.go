// looksim: pose simulator for looktrigger
// Walks a pawn into a trigger volume over /ws/ingest, aims it at a point (or
// away from it) and prints the outcomes streamed on /ws/events.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-looktrigger/internal/httpc"
	"github.com/teslashibe/go-looktrigger/internal/log"
	"github.com/teslashibe/go-looktrigger/pkg/protocol"
	"github.com/teslashibe/go-looktrigger/pkg/vec"
)

var (
	server   = flag.String("server", "ws://localhost:8080", "looktrigger base URL")
	name     = flag.String("name", "sim", "pawn display name")
	from     = flag.String("from", "20,0,0", "walk start position x,y,z")
	to       = flag.String("to", "0,0,0", "walk end position x,y,z (inside the volume)")
	aim      = flag.String("aim", "10,0,0", "point to aim at once inside")
	lookAway = flag.Bool("look-away", false, "aim directly away from the aim point")
	steps    = flag.Int("steps", 20, "poses spent walking in")
	rate     = flag.Duration("rate", 50*time.Millisecond, "interval between poses")
	hold     = flag.Duration("hold", 6*time.Second, "how long to stay inside")
	monitor  = flag.String("monitor", "", "only print outcomes for this monitor")
	list     = flag.Bool("list", false, "print the server's monitors and exit")
)

func main() {
	flag.Parse()
	log.Init("info")

	if *list {
		if err := listMonitors(context.Background(), *server); err != nil {
			fatal("list monitors", err)
		}
		return
	}

	start, err := parseVec(*from)
	if err != nil {
		fatal("bad -from", err)
	}
	end, err := parseVec(*to)
	if err != nil {
		fatal("bad -to", err)
	}
	point, err := parseVec(*aim)
	if err != nil {
		fatal("bad -aim", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events, err := dial(*server, "/ws/events", url.Values{"monitor": {*monitor}})
	if err != nil {
		fatal("connect events", err)
	}
	defer events.Close()

	connID := uuid.New().String()
	ingest, err := dial(*server, "/ws/ingest/"+connID, nil)
	if err != nil {
		fatal("connect ingest", err)
	}
	defer ingest.Close()

	pawnID := uuid.New().String()
	log.Info("simulating pawn", "pawn", pawnID, "name", *name, "conn", connID, "look_away", *lookAway)

	outcomes := make(chan protocol.OutcomeData, 8)
	go readEvents(events, outcomes)
	go drainReplies(ingest)

	sim := &simulator{conn: ingest, pawnID: pawnID, point: point}
	if err := sim.run(ctx, start, end, outcomes); err != nil {
		log.Error("simulation failed", "error", err)
	}

	if msg, err := protocol.NewLeaveMessage(pawnID); err == nil {
		sim.send(msg)
	}
	time.Sleep(100 * time.Millisecond)
}

type simulator struct {
	conn   *websocket.Conn
	pawnID string
	point  vec.Vec3
}

// run walks in, holds the pose and returns on the first outcome for the pawn
func (s *simulator) run(ctx context.Context, start, end vec.Vec3, outcomes <-chan protocol.OutcomeData) error {
	ticker := time.NewTicker(*rate)
	defer ticker.Stop()

	total := *steps + int(*hold / *rate)
	for i := 0; i <= total; i++ {
		pos := end
		if i < *steps {
			pos = start.Add(end.Sub(start).Scale(float64(i) / float64(*steps)))
		}

		forward := s.point.Sub(pos)
		if *lookAway {
			forward = forward.Scale(-1)
		}
		msg, err := protocol.NewPoseMessage(s.pawnID, *name, pos, forward)
		if err != nil {
			return err
		}
		if err := s.send(msg); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case out := <-outcomes:
			if out.OccupantID != s.pawnID {
				continue
			}
			fmt.Printf("%s: %s (monitor %s)\n", out.Output, s.pawnID, out.Monitor)
			return nil
		case <-ticker.C:
		}
	}

	fmt.Println("no outcome before hold expired")
	return nil
}

func (s *simulator) send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func dial(base, path string, query url.Values) (*websocket.Conn, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	u.Path = path
	if query != nil && query.Get("monitor") != "" {
		u.RawQuery = query.Encode()
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	return conn, err
}

// apiURL maps the WebSocket base URL onto its HTTP counterpart
func apiURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = path
	return u.String(), nil
}

// listMonitors prints one line per monitor on the server
func listMonitors(ctx context.Context, base string) error {
	endpoint, err := apiURL(base, "/api/monitors")
	if err != nil {
		return err
	}

	var resp struct {
		Monitors []protocol.MonitorState `json:"monitors"`
	}
	if err := httpc.GetJSON(ctx, endpoint, &resp); err != nil {
		return err
	}

	for _, m := range resp.Monitors {
		fmt.Printf("%-20s volume=%-12s target=%-12s phase=%-10s enabled=%t\n",
			m.Name, m.Volume, m.Target, m.Phase, m.Enabled)
	}
	if len(resp.Monitors) == 0 {
		fmt.Println("no monitors")
	}
	return nil
}

// readEvents forwards outcomes and logs monitor snapshots
func readEvents(conn *websocket.Conn, outcomes chan<- protocol.OutcomeData) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			continue
		}

		switch msg.Type {
		case protocol.TypeOutcome:
			if out, err := msg.GetOutcomeData(); err == nil {
				outcomes <- *out
			}
		case protocol.TypeMonitors:
			if snap, err := msg.GetMonitorsData(); err == nil {
				for _, m := range snap.Monitors {
					log.Info("monitor", "name", m.Name, "volume", m.Volume, "target", m.Target, "phase", m.Phase)
				}
			}
		}
	}
}

// drainReplies consumes acks and reports rejections
func drainReplies(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil || msg.Type != protocol.TypeError {
			continue
		}
		if e, err := msg.GetErrorData(); err == nil {
			log.Warn("pose rejected", "error", e.Message)
		}
	}
}

func parseVec(s string) (vec.Vec3, error) {
	parts := strings.Split(s, ",")
	values := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return vec.Vec3{}, err
		}
		values = append(values, f)
	}
	return vec.From(values)
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "looksim: %s: %v\n", msg, err)
	os.Exit(1)
}
