package transport

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mnohosten/reactor/pkg/concurrent"
	"github.com/mnohosten/reactor/pkg/reactive"
	"github.com/mnohosten/reactor/pkg/reactiveauth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wireEvent is the JSON frame shape pushed to a watching client. Lifetime
// tokens never leave this process: each connection maps them to small
// sequential ids, assigned the first time a token is seen and never reused.
type wireEvent struct {
	Op   string `json:"op"`
	ID   uint64 `json:"id"`
	Item any    `json:"item,omitempty"`
}

type wireMessage struct {
	Type    string      `json:"type"`
	Events  []wireEvent `json:"events,omitempty"`
	Message string      `json:"message,omitempty"`
}

// watchConnection owns the single writer goroutine for its underlying
// socket. gorilla's websocket.Conn forbids concurrent writes, and funneling
// every outbound frame through one buffered channel means a slow or stalled
// client backs up only its own outbox, never the upstream collection's
// dispatch mutex held by whatever Set is pushing into send.
type watchConnection struct {
	mu   sync.Mutex
	conn *websocket.Conn
	seq  map[*reactive.Token]uint64
	next concurrent.Counter

	outbox chan wireMessage
	closed chan struct{}
	once   sync.Once
}

func newWatchConnection(conn *websocket.Conn) *watchConnection {
	c := &watchConnection{
		conn:   conn,
		seq:    make(map[*reactive.Token]uint64),
		outbox: make(chan wireMessage, 64),
		closed: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *watchConnection) writeLoop() {
	for {
		select {
		case msg := <-c.outbox:
			if err := c.conn.WriteJSON(msg); err != nil {
				c.close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *watchConnection) close() {
	c.once.Do(func() { close(c.closed) })
}

func (c *watchConnection) idFor(tok *reactive.Token) uint64 {
	if id, ok := c.seq[tok]; ok {
		return id
	}
	id := c.next.Inc()
	c.seq[tok] = id
	return id
}

func (c *watchConnection) forget(tok *reactive.Token) {
	delete(c.seq, tok)
}

// enqueue hands msg to the writer goroutine without blocking on the network:
// a full outbox means the client is behind, not that the caller should wait.
func (c *watchConnection) enqueue(msg wireMessage) {
	select {
	case c.outbox <- msg:
	case <-c.closed:
	default:
		c.close()
	}
}

func (c *watchConnection) send(batch reactive.Batch[any]) {
	c.mu.Lock()
	wire := make([]wireEvent, 0, len(batch))
	for _, ev := range batch {
		id := c.idFor(ev.Token)
		wire = append(wire, wireEvent{Op: ev.Op.String(), ID: id, Item: ev.Item})
		if ev.Op == reactive.OpDelete {
			c.forget(ev.Token)
		}
	}
	c.mu.Unlock()
	c.enqueue(wireMessage{Type: "events", Events: wire})
}

func (c *watchConnection) sendError(message string) {
	c.enqueue(wireMessage{Type: "error", Message: message})
}

func (c *watchConnection) sendHeartbeat() {
	c.enqueue(wireMessage{Type: "heartbeat"})
}

// handleWatch upgrades to a WebSocket and streams a registered collection's
// replay followed by every live batch, until the client disconnects.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if s.auth != nil {
		token := r.URL.Query().Get("token")
		if token == "" {
			if hdr := r.Header.Get("Authorization"); hdr != "" {
				if t, err := reactiveauth.ParseBearer(hdr); err == nil {
					token = t
				}
			}
		}
		if err := s.auth.Check(token); err != nil {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
	}

	set, ok := s.registry.Get(name)
	if !ok {
		WriteError(w, http.StatusNotFound, "not_found", fmt.Sprintf("no such collection %q", name))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	wc := newWatchConnection(conn)

	sub := set.Subscribe(reactive.Func[any]{
		Next: func(b reactive.Batch[any]) { wc.send(b) },
		Error: func(err error) {
			wc.sendError(err.Error())
			wc.close()
		},
	})
	defer sub.Dispose()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wc.close()
				return
			}
		}
	}()

	for {
		select {
		case <-wc.closed:
			return
		case <-heartbeat.C:
			wc.sendHeartbeat()
		}
	}
}
