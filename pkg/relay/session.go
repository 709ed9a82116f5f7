package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/sharisseji/Waterloop-Host-Application/internal/logger"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
)

// SessionOptions configures a new session
type SessionOptions struct {
	ID        types.ID
	QueueSize int
	Overflow  OverflowPolicy
	// Limiter throttles inbound messages; nil disables limiting
	Limiter *rate.Limiter
	Logger  *logger.Logger
}

// Session is one live endpoint: its transport plus the bounded outbound
// queue the router feeds. Only the session's writer calls Transport.Send.
type Session struct {
	id        types.ID
	role      types.Role
	transport Transport
	queue     *Queue[*types.Message]
	limiter   *rate.Limiter
	createdAt types.Timestamp
	log       *logger.Logger

	mu    sync.RWMutex
	state types.SessionState

	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}
	onClose   func(*Session)

	received  atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
	limited   atomic.Int64
}

// NewSession creates a session in the Connecting state
func NewSession(role types.Role, transport Transport, opts SessionOptions) *Session {
	id := opts.ID
	if id.IsEmpty() {
		id = types.GenerateID()
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	return &Session{
		id:        id,
		role:      role,
		transport: transport,
		queue:     NewQueue[*types.Message](opts.QueueSize, opts.Overflow),
		limiter:   opts.Limiter,
		createdAt: types.NewTimestamp(),
		log:       log.With("session_id", id.String(), "role", role.String()),
		state:     types.SessionStateConnecting,
		done:      make(chan struct{}),
	}
}

// ID returns the session id
func (s *Session) ID() types.ID { return s.id }

// Role returns the session role
func (s *Session) Role() types.Role { return s.role }

// Done is closed when the session starts closing
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current lifecycle state
func (s *Session) State() types.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsLive reports whether the session is Registered or Active
func (s *Session) IsLive() bool {
	return s.State().IsLive()
}

// transition moves the session to next, rejecting illegal edges
func (s *Session) transition(next types.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CanTransition(next) {
		return types.NewError(types.ErrCodeFailedPrecondition,
			fmt.Sprintf("illegal session transition %s -> %s", s.state, next))
	}
	s.state = next
	return nil
}

// Send enqueues msg for delivery. It never blocks on the remote endpoint.
// A full queue drops per the overflow policy and still returns nil.
func (s *Session) Send(msg *types.Message) error {
	dropped, err := s.queue.Push(msg)
	if err != nil {
		return err
	}
	if dropped {
		n := s.dropped.Add(1)
		s.log.Debug("outbound queue full, message dropped", "dropped_total", n)
	}
	return nil
}

// register adds the session to reg and moves it to Registered in one step,
// so it is in the registry exactly while it is live. onClose runs when the
// session leaves the live states.
func (s *Session) register(reg *Registry, onClose func(*Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CanTransition(types.SessionStateRegistered) {
		return types.NewError(types.ErrCodeFailedPrecondition,
			fmt.Sprintf("illegal session transition %s -> %s", s.state, types.SessionStateRegistered))
	}
	if err := reg.Register(s.role, s); err != nil {
		return err
	}
	s.state = types.SessionStateRegistered
	s.onClose = onClose
	return nil
}

// Close unregisters the session as it moves to Closing, then closes its
// queue and its transport. It is idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.mu.Lock()
		if s.onClose != nil {
			s.onClose(s)
		}
		if s.state.CanTransition(types.SessionStateClosing) {
			s.state = types.SessionStateClosing
		}
		s.mu.Unlock()

		s.queue.Close()
		if err := s.transport.Close(); err != nil {
			s.log.Debug("transport close failed", "error", err)
		}
		close(s.done)
	})
	return nil
}

// markClosed records that both obligations have exited
func (s *Session) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.CanTransition(types.SessionStateClosed) {
		s.state = types.SessionStateClosed
	}
}

// readLoop is the reader obligation. It hands each inbound message to
// handle until the transport ends. A clean end or a local close returns nil.
// On a half-closed transport it returns only once the peer is gone.
func (s *Session) readLoop(handle func(*Session, *types.Message)) error {
	for {
		msg, err := s.transport.Recv()
		if err != nil {
			if s.closing() {
				return nil
			}
			if errors.Is(err, io.EOF) {
				s.awaitPeerGone()
				return nil
			}
			return types.WrapError(types.ErrCodeConnectionLost, "receive failed", err)
		}
		if msg == nil {
			continue
		}
		s.received.Add(1)

		if s.limiter != nil && !s.limiter.Allow() {
			n := s.limited.Add(1)
			s.log.Warn("inbound rate limit exceeded, message dropped", "limited_total", n)
			continue
		}

		handle(s, s.stamp(msg))
	}
}

func (s *Session) awaitPeerGone() {
	hc, ok := s.transport.(HalfCloser)
	if !ok {
		return
	}
	s.log.Debug("peer stopped sending, still delivering")
	select {
	case <-hc.Gone():
	case <-s.done:
	}
}

// writeLoop is the writer obligation: the only caller of Transport.Send
func (s *Session) writeLoop(ctx context.Context) error {
	for {
		msg, ok := s.queue.Pop(ctx)
		if !ok {
			return nil
		}
		if err := s.transport.Send(msg); err != nil {
			if s.closing() {
				return nil
			}
			return types.WrapError(types.ErrCodeConnectionLost, "send failed", err)
		}
		s.delivered.Add(1)
	}
}

// setRateLimit retunes the inbound limiter of a running session
func (s *Session) setRateLimit(limit rate.Limit, burst int) {
	if s.limiter == nil {
		return
	}
	s.limiter.SetLimit(limit)
	s.limiter.SetBurst(burst)
}

// stamp fills an empty sender with the session role
func (s *Session) stamp(msg *types.Message) *types.Message {
	if msg.Sender == "" {
		return msg.WithSender(s.role.String())
	}
	return msg
}

func (s *Session) closing() bool {
	return s.closed.Load()
}

// Info returns a point-in-time description of the session
func (s *Session) Info() types.SessionInfo {
	return types.SessionInfo{
		ID:         s.id,
		Role:       s.role,
		State:      s.State(),
		Transport:  s.transport.Kind(),
		RemoteAddr: s.transport.RemoteAddr(),
		CreatedAt:  s.createdAt,
		QueueLen:   s.queue.Len(),
		Received:   s.received.Load(),
		Delivered:  s.delivered.Load(),
		Dropped:    s.dropped.Load(),
		Limited:    s.limited.Load(),
	}
}

// String returns a string representation of the session
func (s *Session) String() string {
	return fmt.Sprintf("Session{ID: %s, Role: %s, State: %s}", s.id, s.role, s.State())
}
