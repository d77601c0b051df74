package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"marketing_post_refiner/logging"
	"marketing_post_refiner/trace"
)

// upgrader configures the WebSocket handshake.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	clientBuffer = 64
	writeWait    = 5 * time.Second
)

// Stream event types.
const (
	eventStep     = "step"
	eventFinished = "run_finished"
	eventFailed   = "run_failed"
)

type streamEvent struct {
	Type    string      `json:"type"`
	RunID   string      `json:"run_id"`
	Step    *trace.Step `json:"step,omitempty"`
	Score   float64     `json:"score,omitempty"`
	Verdict string      `json:"verdict,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type streamClient struct {
	conn  *websocket.Conn
	runID string
	send  chan []byte
}

// hub fans trace events out to websocket clients. Publishing never blocks:
// a client whose buffer is full misses events.
type hub struct {
	mu      sync.Mutex
	clients map[*streamClient]bool
	logger  *logging.Logger
}

func newHub(logger *logging.Logger) *hub {
	return &hub{clients: make(map[*streamClient]bool), logger: logger}
}

func (h *hub) publish(ev streamEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warnf("stream marshal: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.runID != "" && c.runID != ev.RunID {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warnf("stream client buffer full, dropping %s event", ev.Type)
		}
	}
}

// stepListener adapts publish to trace.Recorder.Subscribe.
func (h *hub) stepListener(runID string) func(trace.Step) {
	return func(step trace.Step) {
		h.publish(streamEvent{Type: eventStep, RunID: runID, Step: &step})
	}
}

// serve upgrades the request. ?run=<id> limits the stream to one run.
func (h *hub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf("websocket upgrade error: %v", err)
		return
	}
	c := &streamClient{conn: conn, runID: r.URL.Query().Get("run"), send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

func (h *hub) remove(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *hub) writePump(c *streamClient) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debugf("stream write: %v", err)
			h.remove(c)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// readPump only watches for the client going away.
func (h *hub) readPump(c *streamClient) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debugf("stream read: %v", err)
			}
			return
		}
	}
}
