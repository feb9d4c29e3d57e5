package dashboard

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/logs"
)

// client is one websocket subscriber with a bounded outbound queue.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn, capacity int) *client {
	if capacity <= 0 {
		capacity = 1
	}
	return &client{conn: conn, send: make(chan []byte, capacity), done: make(chan struct{})}
}

// enqueue drops the oldest pending frame when the queue is full, so a slow
// reader always receives the most recent state.
func (c *client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	for {
		select {
		case <-c.done:
			return false
		case c.send <- msg:
			return true
		default:
			select {
			case <-c.send:
			default:
				return false
			}
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// hub fans dashboard frames out to every connected client.
type hub struct {
	mu           sync.Mutex
	clients      map[*client]struct{}
	queueSize    int
	writeTimeout time.Duration
}

func newHub(queueSize int, writeTimeout time.Duration) *hub {
	return &hub{
		clients:      make(map[*client]struct{}),
		queueSize:    queueSize,
		writeTimeout: writeTimeout,
	}
}

// attach registers conn and starts its reader and writer. initial, when
// non-nil, is the first frame the client receives.
func (h *hub) attach(conn *websocket.Conn, initial []byte) *client {
	c := newClient(conn, h.queueSize)
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	if initial != nil {
		c.enqueue(initial)
	}
	go h.writeLoop(c)
	go h.readLoop(c)
	return c
}

func (h *hub) detach(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
	if ok {
		logs.Debugf("dashboard client %s detached", c.conn.RemoteAddr())
	}
}

func (h *hub) writeLoop(c *client) {
	defer h.detach(c)
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logs.Warnf("dashboard websocket write, err: %+v", err)
				return
			}
		}
	}
}

// readLoop only watches for the peer going away.
func (h *hub) readLoop(c *client) {
	defer h.detach(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// broadcast queues msg for every client and returns how many accepted it.
func (h *hub) broadcast(msg []byte) int {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	n := 0
	for _, c := range clients {
		if c.enqueue(msg) {
			n++
		}
	}
	return n
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.close()
	}
}
