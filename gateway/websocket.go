package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/edgetwin/runtime"
)

const streamInterval = time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// statusStream pushes the runtime snapshot to every connected websocket
// client once per interval. Slow clients are dropped, not waited on.
type statusStream struct {
	rt     *runtime.Runtime
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

func newStatusStream(rt *runtime.Runtime, logger *slog.Logger) *statusStream {
	return &statusStream{
		rt:      rt,
		logger:  logger.With("component", "status-stream"),
		clients: make(map[*websocket.Conn]struct{}),
	}
}

func (s *statusStream) start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.broadcastLoop(ctx)
}

func (s *statusStream) stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		_ = conn.Close()
	}
	s.clients = make(map[*websocket.Conn]struct{})
}

func (s *statusStream) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.Info("websocket client connected", "clients", n)

	// Drain reads so close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.remove(conn)
				return
			}
		}
	}()
}

func (s *statusStream) broadcastLoop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcast()
		}
	}
}

func (s *statusStream) broadcast() {
	snapshot := s.rt.Snapshot()

	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := conn.WriteJSON(snapshot); err != nil {
			s.remove(conn)
		}
	}
}

func (s *statusStream) remove(conn *websocket.Conn) {
	s.mu.Lock()
	if _, ok := s.clients[conn]; ok {
		delete(s.clients, conn)
		_ = conn.Close()
	}
	s.mu.Unlock()
}
