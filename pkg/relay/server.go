package relay

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sharisseji/Waterloop-Host-Application/internal/config"
	"github.com/sharisseji/Waterloop-Host-Application/internal/logger"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
)

// Options configures a relay Server
type Options struct {
	QueueSize int
	Overflow  OverflowPolicy
	// RateLimit is the inbound messages per second allowed per session; 0 disables it
	RateLimit float64
	RateBurst int
	// DrainTimeout bounds how long Accept waits for a closing session's
	// reader and writer to exit
	DrainTimeout time.Duration
	// HandshakeTimeout bounds the wait for the first message when the role
	// is declared in-band; 0 waits forever
	HandshakeTimeout time.Duration
	Logger           *logger.Logger
	Fatal            FatalHandler
}

// OptionsFromConfig converts the relay config section to Options
func OptionsFromConfig(cfg config.RelayConfig, log *logger.Logger) (Options, error) {
	policy, err := ParseOverflowPolicy(cfg.OverflowPolicy)
	if err != nil {
		return Options{}, types.WrapError(types.ErrCodeInvalidArgument, "invalid relay config", err)
	}
	return Options{
		QueueSize:        cfg.QueueSize,
		Overflow:         policy,
		RateLimit:        cfg.RateLimit,
		RateBurst:        cfg.RateBurst,
		DrainTimeout:     cfg.DrainTimeout,
		HandshakeTimeout: cfg.HandshakeTimeout,
		Logger:           log,
	}, nil
}

// Stats is a point-in-time view of the relay
type Stats struct {
	Sessions     int                `json:"sessions"`
	ByRole       map[types.Role]int `json:"by_role"`
	Accepted     int64              `json:"accepted"`
	Rejected     int64              `json:"rejected"`
	Closed       int64              `json:"closed"`
	Router       RouterStats        `json:"router"`
	ShuttingDown bool               `json:"shutting_down"`
}

// Server owns the registry and router and runs every session lifecycle
type Server struct {
	opts     Options
	log      *logger.Logger
	registry *Registry
	router   *Router

	mu         sync.Mutex
	closing    bool
	conns      map[Transport]struct{}
	lifecycles sync.WaitGroup

	rateMu    sync.RWMutex
	rateLimit float64
	rateBurst int

	accepted atomic.Int64
	rejected atomic.Int64
	closed   atomic.Int64
}

// NewServer creates a relay server
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = config.DefaultQueueSize
	}
	if opts.Overflow == "" {
		opts.Overflow = DropOldest
	}
	if opts.RateLimit > 0 && opts.RateBurst <= 0 {
		opts.RateBurst = 1
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 2 * time.Second
	}

	log := opts.Logger.With("component", "relay")
	fatal := opts.Fatal
	if fatal == nil {
		fatal = defaultFatal
	}
	registryFatal := func(err error) {
		log.Error("registry invariant violated", "error", err)
		fatal(err)
	}

	registry := NewRegistry(registryFatal)
	return &Server{
		opts:      opts,
		log:       log,
		registry:  registry,
		router:    NewRouter(registry, opts.Logger),
		conns:     make(map[Transport]struct{}),
		rateLimit: opts.RateLimit,
		rateBurst: opts.RateBurst,
	}
}

// Registry returns the server's role registry
func (s *Server) Registry() *Registry { return s.registry }

// Router returns the server's router
func (s *Server) Router() *Router { return s.router }

// Accept runs one endpoint session over t until it closes. If role is empty
// the first inbound message declares it through its sender field; that
// message is routed only when it names a recipient. Accept always closes t.
func (s *Server) Accept(ctx context.Context, t Transport, role types.Role) error {
	if !s.track(t) {
		s.rejected.Add(1)
		t.Close()
		return ErrShuttingDown
	}
	defer s.untrack(t)

	var first *types.Message
	if role.IsEmpty() {
		msg, declared, err := s.handshake(t)
		if err != nil {
			s.rejected.Add(1)
			t.Close()
			return err
		}
		role, first = declared, msg
	} else {
		parsed, err := types.ParseRole(role.String())
		if err != nil {
			s.rejected.Add(1)
			t.Close()
			return err
		}
		role = parsed
	}

	sess := NewSession(role, t, SessionOptions{
		QueueSize: s.opts.QueueSize,
		Overflow:  s.opts.Overflow,
		Limiter:   s.newLimiter(),
		Logger:    s.opts.Logger,
	})
	err := sess.register(s.registry, func(closed *Session) {
		s.registry.Unregister(closed.ID())
	})
	if err != nil {
		s.rejected.Add(1)
		sess.Close()
		sess.markClosed()
		return err
	}
	if s.isClosing() {
		sess.Close()
		sess.markClosed()
		return ErrShuttingDown
	}

	s.accepted.Add(1)
	sess.log.Info("session registered", "transport", t.Kind(), "remote_addr", t.RemoteAddr())

	return s.run(ctx, sess, first)
}

// run drives the reader and writer obligations of a registered session
func (s *Server) run(ctx context.Context, sess *Session, first *types.Message) error {
	if err := sess.transition(types.SessionStateActive); err != nil {
		sess.Close()
		sess.markClosed()
		return err
	}

	if first != nil {
		sess.received.Add(1)
		if first.Recipient != "" {
			s.handle(sess, first)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer sess.Close()
		return sess.readLoop(s.handle)
	})
	g.Go(func() error {
		defer sess.Close()
		return sess.writeLoop(gctx)
	})

	exited := make(chan error, 1)
	go func() {
		err := g.Wait()
		sess.markClosed()
		s.closed.Add(1)
		exited <- err
	}()

	var err error
	select {
	case err = <-exited:
	case <-ctx.Done():
		sess.Close()
		err = s.drain(sess, exited)
	case <-sess.Done():
		err = s.drain(sess, exited)
	}

	info := sess.Info()
	if err != nil {
		sess.log.Warn("session closed with error", "error", err,
			"received", info.Received, "delivered", info.Delivered, "dropped", info.Dropped)
	} else {
		sess.log.Info("session closed",
			"received", info.Received, "delivered", info.Delivered, "dropped", info.Dropped)
	}
	return err
}

// drain waits up to DrainTimeout for both obligations after close began
func (s *Server) drain(sess *Session, exited <-chan error) error {
	timer := time.NewTimer(s.opts.DrainTimeout)
	defer timer.Stop()

	select {
	case err := <-exited:
		return err
	case <-timer.C:
		sess.log.Warn("session obligations still running after drain timeout",
			"drain_timeout", s.opts.DrainTimeout.String())
		return types.NewError(types.ErrCodeTimeout,
			fmt.Sprintf("session %s did not drain within %s", sess.ID(), s.opts.DrainTimeout))
	}
}

// handle routes one inbound message from sess
func (s *Server) handle(sess *Session, msg *types.Message) {
	n := s.router.Route(sess.ID(), msg)
	sess.log.Debug("message routed", "recipient", msg.Recipient, "deliveries", n)
}

// handshake reads the first message and takes the role from its sender
func (s *Server) handshake(t Transport) (*types.Message, types.Role, error) {
	var timedOut atomic.Bool
	if s.opts.HandshakeTimeout > 0 {
		timer := time.AfterFunc(s.opts.HandshakeTimeout, func() {
			timedOut.Store(true)
			t.Close()
		})
		defer timer.Stop()
	}

	msg, err := t.Recv()
	if err != nil {
		if timedOut.Load() {
			return nil, "", types.WrapError(types.ErrCodeTimeout, "no role declared before handshake timeout", err)
		}
		return nil, "", types.WrapError(types.ErrCodeConnectionLost, "stream ended before role was declared", err)
	}
	if msg == nil {
		return nil, "", types.NewError(types.ErrCodeInvalidArgument, "empty handshake message")
	}

	role, err := types.ParseRole(msg.Sender)
	if err != nil {
		return nil, "", err
	}
	return msg, role, nil
}

func (s *Server) track(t Transport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[t] = struct{}{}
	s.lifecycles.Add(1)
	return true
}

func (s *Server) untrack(t Transport) {
	s.mu.Lock()
	delete(s.conns, t)
	s.mu.Unlock()
	s.lifecycles.Done()
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Shutdown rejects new sessions, closes every live one, and waits for their
// lifecycles until ctx is done. Sessions still running then are reported as
// force-closed with a TIMEOUT error.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	conns := make([]Transport, 0, len(s.conns))
	for t := range s.conns {
		conns = append(conns, t)
	}
	s.mu.Unlock()

	if err := s.registry.Check(); err != nil {
		s.log.Error("registry check failed during shutdown", "error", err)
	}

	sessions := s.registry.All()
	s.log.Info("relay shutting down", "sessions", len(sessions), "connections", len(conns))
	for _, sess := range sessions {
		sess.Close()
	}
	// Connections still in the handshake have no session yet.
	for _, t := range conns {
		t.Close()
	}

	done := make(chan struct{})
	go func() {
		s.lifecycles.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("relay shutdown complete")
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		remaining := len(s.conns)
		s.mu.Unlock()
		s.log.Warn("relay shutdown timed out, force-closing", "remaining", remaining)
		return types.WrapError(types.ErrCodeTimeout,
			fmt.Sprintf("%d sessions force-closed", remaining), ctx.Err())
	}
}

// SetRateLimit changes the inbound rate limit for new and running sessions
func (s *Server) SetRateLimit(limit float64, burst int) {
	s.rateMu.Lock()
	s.rateLimit = limit
	s.rateBurst = burst
	s.rateMu.Unlock()

	l := toLimit(limit)
	for _, sess := range s.registry.All() {
		sess.setRateLimit(l, burst)
	}
	s.log.Info("rate limit updated", "rate_limit", limit, "rate_burst", burst)
}

func (s *Server) newLimiter() *rate.Limiter {
	s.rateMu.RLock()
	defer s.rateMu.RUnlock()
	return rate.NewLimiter(toLimit(s.rateLimit), s.rateBurst)
}

func toLimit(limit float64) rate.Limit {
	if limit <= 0 {
		return rate.Inf
	}
	return rate.Limit(limit)
}

// Sessions describes the live sessions of role, or all of them when role
// is empty, oldest first
func (s *Server) Sessions(role types.Role) []types.SessionInfo {
	var sessions []*Session
	if role.IsEmpty() {
		sessions = s.registry.All()
	} else {
		sessions = s.registry.Snapshot(role)
	}

	out := make([]types.SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt.Time)
	})
	return out
}

// Stats returns relay counters
func (s *Server) Stats() Stats {
	return Stats{
		Sessions:     s.registry.Len(),
		ByRole:       s.registry.Count(),
		Accepted:     s.accepted.Load(),
		Rejected:     s.rejected.Load(),
		Closed:       s.closed.Load(),
		Router:       s.router.Stats(),
		ShuttingDown: s.isClosing(),
	}
}
