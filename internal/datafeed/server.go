package datafeed

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 5 * time.Second
	clientSendSize = 64
)

// Server broadcasts dashboard frames to every connected WebSocket client.
// Clients that fall behind are disconnected rather than slowing the others.
type Server struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// NewServer creates a new WebSocket server that broadcasts frames to every client
func NewServer(logger *zap.Logger) *Server {
	return &Server{
		logger: logger.Named("datafeed"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientSendSize)}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	count := len(s.clients)
	s.mu.Unlock()

	s.logger.Info("Dashboard client connected", zap.String("remote", r.RemoteAddr), zap.Int("clients", count))

	go s.writePump(c)
	s.readPump(c)
}

// readPump discards inbound frames and returns when the client goes away.
func (s *Server) readPump(c *client) {
	defer s.remove(c)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *client) {
	defer c.conn.Close()

	for frame := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			s.remove(c)
			return
		}
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	count := len(s.clients)
	s.mu.Unlock()

	if ok {
		c.close()
		s.logger.Info("Dashboard client disconnected", zap.Int("clients", count))
	}
}

// Broadcast queues frame for every client.
func (s *Server) Broadcast(frame []byte) {
	s.mu.RLock()
	var slow []*client
	for c := range s.clients {
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range slow {
		s.logger.Warn("Dropping slow dashboard client")
		s.remove(c)
	}
}

// Run broadcasts frames until ctx is done, then disconnects every client.
func (s *Server) Run(ctx context.Context, frames <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			s.CloseAll()
			return
		case frame := <-frames:
			s.Broadcast(frame)
		}
	}
}

func (s *Server) CloseAll() {
	s.mu.Lock()
	clients := s.clients
	s.clients = make(map[*client]struct{})
	s.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
