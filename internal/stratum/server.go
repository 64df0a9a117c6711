package stratum

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/starkpool/coordinator/internal/coordinator"
	"github.com/starkpool/coordinator/internal/store"
	"github.com/starkpool/coordinator/internal/util"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server owns the authorized-session registry and fans job notifications
// out to every session. It implements http.Handler so it can be mounted
// directly at GET / by the API server (same port as the HTTP API).
type Server struct {
	coord *coordinator.Coordinator

	mu       sync.RWMutex
	sessions map[string]*Session

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer constructs a Stratum server backed by coord.
func NewServer(coord *coordinator.Coordinator) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		coord:    coord,
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// ServeHTTP upgrades the connection to a WebSocket and runs its session
// loop until the client disconnects or the server shuts down.
func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.Warnf("stratum: websocket upgrade failed: %v", err)
		return
	}

	id := uuid.New().String()
	sess := newSession(id, conn, srv.coord)

	srv.mu.Lock()
	srv.sessions[id] = sess
	srv.mu.Unlock()

	srv.wg.Add(1)
	defer srv.wg.Done()
	defer func() {
		srv.mu.Lock()
		delete(srv.sessions, id)
		srv.mu.Unlock()
		conn.Close()
	}()

	sess.run(srv.ctx)
}

// BroadcastJob sends job as a mining.notify to every authorized session.
// A send failure on one session is logged and does not block the others
// (see design notes: notification delivery does not serialize across
// sessions).
func (srv *Server) BroadcastJob(job *store.JobTemplate) {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	for _, sess := range srv.sessions {
		sess.sendNotify(job)
	}
}

// SessionCount returns the number of currently connected sessions.
func (srv *Server) SessionCount() int {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	return len(srv.sessions)
}

// Stop cancels all in-flight sessions; each finishes its current message
// then receives a close frame.
func (srv *Server) Stop() {
	srv.cancel()
	srv.wg.Wait()
}
