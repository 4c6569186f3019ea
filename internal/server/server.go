package server

import (
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dodobot/serial-bridge/internal/bridge"
	"github.com/dodobot/serial-bridge/internal/logger"
	"github.com/dodobot/serial-bridge/internal/protocol"
)

// Server broadcasts decoded robot records to WebSocket clients and feeds
// client commands back into the bridge. It is the process boundary the
// protocol engine publishes through; the engine itself knows nothing
// about transports.
type Server struct {
	cfg   *Config
	br    *bridge.Bridge
	webFS fs.FS
	tlog  *logger.Logger

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure sent to all WebSocket clients. Exactly one
// record field is set per frame.
type Frame struct {
	Drive   *protocol.DriveRecord   `json:"drive,omitempty"`
	Bumper  *protocol.BumperRecord  `json:"bumper,omitempty"`
	FSR     *protocol.FSRRecord     `json:"fsr,omitempty"`
	Gripper *protocol.GripperRecord `json:"gripper,omitempty"`
	Linear  *protocol.LinearRecord  `json:"linear,omitempty"`
	Battery *protocol.BatteryRecord `json:"battery,omitempty"`
	Tilter  *protocol.TilterRecord  `json:"tilter,omitempty"`

	Ready *protocol.ReadyState `json:"ready,omitempty"`
	Robot *protocol.RobotState `json:"robot,omitempty"`

	Stamp int64 `json:"stamp"` // Unix ms
}

// commandMsg is one inbound WebSocket command from a client.
type commandMsg struct {
	Cmd     string  `json:"cmd"`
	Left    float64 `json:"left"`
	Right   float64 `json:"right"`
	Command int32   `json:"command"`
	Value   int32   `json:"value"`
	State   bool    `json:"state"`
}

// New creates a new Server.
func New(cfg *Config, webFS fs.FS) *Server {
	return &Server{
		cfg:   cfg,
		webFS: webFS,
		tlog: logger.New(logger.Config{
			Enabled:    cfg.Logging.Enabled,
			Path:       cfg.Logging.Path,
			IntervalMs: cfg.Logging.Interval,
		}),
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// AttachBridge wires the bridge whose commands this server fronts.
// Must be called before Run.
func (s *Server) AttachBridge(br *bridge.Bridge) { s.br = br }

// Publish hands one decoded record to every connected client and to the
// telemetry log. Satisfies the bridge's publish callback.
func (s *Server) Publish(rec protocol.Record) {
	frame := Frame{Stamp: time.Now().UnixMilli()}
	switch r := rec.(type) {
	case protocol.DriveRecord:
		frame.Drive = &r
	case protocol.BumperRecord:
		frame.Bumper = &r
	case protocol.FSRRecord:
		frame.FSR = &r
	case protocol.GripperRecord:
		frame.Gripper = &r
	case protocol.LinearRecord:
		frame.Linear = &r
	case protocol.BatteryRecord:
		frame.Battery = &r
	case protocol.TilterRecord:
		frame.Tilter = &r
	default:
		return
	}
	s.tlog.Observe(rec)
	s.broadcast(frame)
}

// Run starts the HTTP server until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.Handle("/", http.FileServer(http.FS(s.webFS)))
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/pid", s.handlePID)

	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		s.tlog.Close()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[server] listening on %s", s.cfg.Server.ListenAddr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	total := len(s.clients)
	s.clientsMu.Unlock()

	log.Printf("[ws] client connected (%d total)", total)

	// Send a state snapshot so the client doesn't wait for the next
	// state frame off the wire.
	if s.br != nil {
		ready := s.br.Ready()
		robot := s.br.Robot()
		snap := Frame{Ready: &ready, Robot: &robot, Stamp: time.Now().UnixMilli()}
		if data, err := json.Marshal(snap); err == nil {
			client.send <- data
		}
	}

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine: client commands
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			remaining := len(s.clients)
			s.clientsMu.Unlock()
			close(client.send)
			log.Printf("[ws] client disconnected (%d total)", remaining)
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var cmd commandMsg
			if err := json.Unmarshal(data, &cmd); err != nil {
				log.Printf("[ws] bad command: %v", err)
				continue
			}
			s.dispatchCommand(cmd)
		}
	}()
}

// dispatchCommand forwards one client command to the bridge. Readiness
// and motor gating happen inside the bridge, which logs any refusal.
func (s *Server) dispatchCommand(cmd commandMsg) {
	if s.br == nil {
		return
	}
	switch cmd.Cmd {
	case "drive":
		s.br.Drive(cmd.Left, cmd.Right)
	case "grip":
		s.br.Gripper(cmd.Command, cmd.Value)
	case "tilter":
		s.br.Tilter(cmd.Command, cmd.Value)
	case "linear":
		s.br.Linear(cmd.Command, cmd.Value)
	case "active":
		s.br.SetActive(cmd.State)
	case "reporting":
		s.br.SetReporting(cmd.State)
	case "soft_restart":
		s.br.SoftRestart()
	default:
		log.Printf("[ws] unknown command %q", cmd.Cmd)
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", 400)
			return
		}
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		if err := s.cfg.Save(); err != nil {
			log.Printf("[config] save failed: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))

	default:
		http.Error(w, "method not allowed", 405)
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", 405)
		return
	}
	if s.br == nil {
		http.Error(w, "bridge not attached", 503)
		return
	}
	ready := s.br.Ready()
	robot := s.br.Robot()
	frame := Frame{Ready: &ready, Robot: &robot, Stamp: time.Now().UnixMilli()}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(frame)
}

// handlePID accepts the eight drive controller gains and uploads them to
// the device. Refused with 409 until the readiness handshake completes.
func (s *Server) handlePID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", 405)
		return
	}
	if s.br == nil {
		http.Error(w, "bridge not attached", 503)
		return
	}
	var gains bridge.PIDGains
	if err := json.NewDecoder(r.Body).Decode(&gains); err != nil {
		http.Error(w, "bad request", 400)
		return
	}
	if !s.br.SetPID(gains) {
		http.Error(w, "robot not ready", 409)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}
