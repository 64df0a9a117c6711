package stratum

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/starkpool/coordinator/internal/coordinator"
	"github.com/starkpool/coordinator/internal/poolerr"
	"github.com/starkpool/coordinator/internal/store"
	"github.com/starkpool/coordinator/internal/util"
)

// State is a Session's position in the Connected → Subscribed → Authorized
// state machine; Active is folded into Authorized (an authorized session
// alternates freely between receiving notifications and submitting shares).
type State int32

const (
	StateConnected State = iota
	StateSubscribed
	StateAuthorized
	StateClosed
)

// outboundQueueCapacity bounds the per-session notification/response queue,
// decoupling inbound parsing from outbound network back-pressure.
const outboundQueueCapacity = 100

// Session is one miner's WebSocket connection and state machine. Only an
// Authorized session may receive job notifications or submit shares.
type Session struct {
	id      string
	conn    *websocket.Conn
	coord   *coordinator.Coordinator
	state   int32
	address string // miner address, set on authorize

	outbound  chan *Message
	closeOnce chan struct{}
}

// newSession constructs a Session wrapping conn.
func newSession(id string, conn *websocket.Conn, coord *coordinator.Coordinator) *Session {
	return &Session{
		id:        id,
		conn:      conn,
		coord:     coord,
		outbound:  make(chan *Message, outboundQueueCapacity),
		closeOnce: make(chan struct{}),
	}
}

func (s *Session) getState() State { return State(atomic.LoadInt32(&s.state)) }
func (s *Session) setState(st State) { atomic.StoreInt32(&s.state, int32(st)) }

// run drives the session's read loop until the connection closes or ctx is
// cancelled. The write loop runs concurrently, draining s.outbound.
func (s *Session) run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop(ctx)
	}()

	s.readLoop(ctx)
	s.setState(StateClosed)
	if s.address != "" {
		if err := s.coord.UnregisterMiner(context.Background(), s.address); err != nil {
			util.Warnf("session %s: failed to mark miner inactive: %v", s.id, err)
		}
	}
	close(s.closeOnce)
	<-done
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Method == "" {
			s.enqueue(newError(msg.ID, ErrInvalidRequest, "invalid request"))
			continue
		}
		s.handle(ctx, &msg)
	}
}

func (s *Session) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-s.closeOnce:
			return
		case msg, ok := <-s.outbound:
			if !ok {
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteJSON(msg); err != nil {
				util.Debugf("session %s write error: %v", s.id, err)
				return
			}
		}
	}
}

// enqueue attempts to deliver msg without blocking the caller; a full
// queue drops the message rather than stalling other sessions' fan-out.
func (s *Session) enqueue(msg *Message) {
	select {
	case s.outbound <- msg:
	default:
		util.Warnf("session %s outbound queue full, dropping message", s.id)
	}
}

func (s *Session) handle(ctx context.Context, msg *Message) {
	switch msg.Method {
	case "mining.subscribe":
		s.handleSubscribe(msg)
	case "mining.authorize":
		s.handleAuthorize(ctx, msg)
	case "mining.submit":
		s.handleSubmit(ctx, msg)
	case "mining.get_status":
		s.handleGetStatus(ctx, msg)
	default:
		s.enqueue(newError(msg.ID, ErrMethodNotFound, "unknown method"))
	}
}

func (s *Session) handleSubscribe(msg *Message) {
	s.setState(StateSubscribed)
	result := []interface{}{
		[][]string{{"mining.notify", s.id}},
		s.id,   // extraNonce1
		4,      // extraNonce2Size
	}
	resp, err := newResult(msg.ID, result)
	if err != nil {
		s.enqueue(newError(msg.ID, ErrInternal, err.Error()))
		return
	}
	s.enqueue(resp)
}

func (s *Session) handleAuthorize(ctx context.Context, msg *Message) {
	worker, err := parseAuthorize(msg.Params)
	if err != nil {
		s.enqueue(newError(msg.ID, ErrInvalidParams, err.Error()))
		return
	}

	if err := s.coord.RegisterMiner(ctx, worker, worker); err != nil {
		s.enqueue(newError(msg.ID, ErrInternal, err.Error()))
		return
	}
	s.address = worker
	s.setState(StateAuthorized)

	resp, _ := newResult(msg.ID, true)
	s.enqueue(resp)

	job, err := s.coord.CurrentJob(ctx)
	if err == nil && job != nil {
		s.sendNotify(job)
	}
}

func (s *Session) handleSubmit(ctx context.Context, msg *Message) {
	if s.getState() != StateAuthorized {
		s.enqueue(newError(msg.ID, ErrInternal, "not authorized"))
		return
	}

	sub, err := parseSubmit(msg.Params)
	if err != nil {
		s.enqueue(newError(msg.ID, ErrInvalidParams, err.Error()))
		return
	}

	_, err = s.coord.SubmitShare(ctx, sub)
	if err != nil {
		s.enqueue(newError(msg.ID, poolerr.JSONRPCCode(poolerr.KindOf(err)), err.Error()))
		return
	}

	resp, _ := newResult(msg.ID, true)
	s.enqueue(resp)
}

func (s *Session) handleGetStatus(ctx context.Context, msg *Message) {
	stats, err := s.coord.GetPoolStats(ctx)
	if err != nil {
		s.enqueue(newError(msg.ID, ErrInternal, err.Error()))
		return
	}
	resp, err := newResult(msg.ID, stats)
	if err != nil {
		s.enqueue(newError(msg.ID, ErrInternal, err.Error()))
		return
	}
	s.enqueue(resp)
}

// sendNotify delivers a mining.notify message for job, if this session is
// authorized. Send failures are logged and never block other sessions.
func (s *Session) sendNotify(job *store.JobTemplate) {
	if s.getState() != StateAuthorized {
		return
	}
	params := notifyParams{
		JobID:           job.ID,
		BlockCommitment: hex.EncodeToString(job.BlockCommitment),
		Target:          hex.EncodeToString(job.Target),
		ShareTarget:     hex.EncodeToString(job.ShareTarget),
		CleanJobs:       true,
	}
	notif, err := newNotification("mining.notify", params)
	if err != nil {
		util.Warnf("session %s: failed to build mining.notify: %v", s.id, err)
		return
	}
	s.enqueue(notif)
}
