package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
)

func commands(s *Session) []string {
	var out []string
	for {
		msg, ok := s.queue.TryPop()
		if !ok {
			return out
		}
		out = append(out, msg.Command)
	}
}

func registered(t *testing.T, r *Registry, role types.Role, queueSize int) *Session {
	t.Helper()
	s := newTestSession(role, queueSize)
	require.NoError(t, r.Register(role, s))
	return s
}

func TestRouterFanOutWithFullQueue(t *testing.T) {
	reg := NewRegistry(nil)
	router := NewRouter(reg, nil)

	a := NewSession(types.RoleMotorControl, nopTransport(), SessionOptions{QueueSize: 1, Overflow: DropNewest})
	require.NoError(t, reg.Register(types.RoleMotorControl, a))
	b := registered(t, reg, types.RoleMotorControl, 8)

	// Fill A so every further message overflows.
	require.NoError(t, a.Send(types.NewMessage("dashboard", "motor_control", "motor:0")))

	for _, cmd := range []string{"motor:1", "motor:2", "motor:3"} {
		n := router.Route("", types.NewMessage("dashboard", "motor_control", cmd))
		assert.Equal(t, 2, n, "full queue still counts as accepted")
	}

	assert.Equal(t, []string{"motor:1", "motor:2", "motor:3"}, commands(b))
	assert.Equal(t, []string{"motor:0"}, commands(a))
	assert.Equal(t, int64(3), a.Info().Dropped)
}

func TestRouterDeadLetter(t *testing.T) {
	reg := NewRegistry(nil)
	router := NewRouter(reg, nil)
	d := registered(t, reg, types.RoleDashboard, 4)

	assert.Equal(t, 0, router.Route("", types.NewMessage("telemetry", "unknown_role", "x")))
	assert.Equal(t, 0, router.Route("", types.NewMessage("telemetry", "", "x")))
	assert.Empty(t, commands(d))

	stats := router.Stats()
	assert.Equal(t, int64(2), stats.DeadLetters)
	assert.Equal(t, int64(2), stats.Routed)
	assert.Equal(t, int64(0), stats.Deliveries)
}

func TestRouterNormalizesRecipient(t *testing.T) {
	reg := NewRegistry(nil)
	router := NewRouter(reg, nil)
	d := registered(t, reg, types.RoleDashboard, 4)

	assert.Equal(t, 1, router.Route("", types.NewMessage("Telemetry", "Dashboard", "telemetry:30:1,2,3")))
	assert.Equal(t, []string{"telemetry:30:1,2,3"}, commands(d))
}

func TestRouterNoEcho(t *testing.T) {
	reg := NewRegistry(nil)
	router := NewRouter(reg, nil)
	self := registered(t, reg, types.RoleDashboard, 4)
	peer := registered(t, reg, types.RoleDashboard, 4)

	assert.Equal(t, 1, router.Route(self.ID(), types.NewMessage("dashboard", "dashboard", "hello")))
	assert.Empty(t, commands(self))
	assert.Equal(t, []string{"hello"}, commands(peer))
}

func TestRouterSkipsClosedTarget(t *testing.T) {
	reg := NewRegistry(nil)
	router := NewRouter(reg, nil)

	// The middle target closes after the snapshot was taken: it stays in the
	// registry (no unregister hook) but rejects sends.
	first := registered(t, reg, types.RoleMotorControl, 4)
	second := registered(t, reg, types.RoleMotorControl, 4)
	third := registered(t, reg, types.RoleMotorControl, 4)
	require.NoError(t, second.Close())

	n := router.Route("", types.NewMessage("dashboard", "motor_control", "motor:stop"))
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"motor:stop"}, commands(first))
	assert.Equal(t, []string{"motor:stop"}, commands(third))
	assert.Equal(t, int64(1), router.Stats().Rejected)
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	reg := NewRegistry(nil)
	s := newTestSession(types.RoleTelemetry, 4)
	hooks := 0
	require.NoError(t, s.register(reg, func(closed *Session) {
		hooks++
		reg.Unregister(closed.ID())
	}))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, hooks)
	assert.Equal(t, types.SessionStateClosing, s.State())

	err := s.Send(types.NewMessage("dashboard", "telemetry", "x"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.True(t, types.IsErrCode(err, types.ErrCodeClosed))

	s.markClosed()
	assert.Equal(t, types.SessionStateClosed, s.State())
	assert.Error(t, s.transition(types.SessionStateActive))
}

func TestSessionTransitions(t *testing.T) {
	s := newTestSession(types.RoleTelemetry, 1)
	assert.Equal(t, types.SessionStateConnecting, s.State())
	assert.False(t, s.IsLive())

	assert.Error(t, s.transition(types.SessionStateActive), "must register first")
	require.NoError(t, s.transition(types.SessionStateRegistered))
	assert.True(t, s.IsLive())
	require.NoError(t, s.transition(types.SessionStateActive))
	assert.Error(t, s.transition(types.SessionStateRegistered))
}

func TestSessionRegisterFailureLeavesConnecting(t *testing.T) {
	reg := NewRegistry(nil)
	first := newTestSession(types.RoleTelemetry, 1)
	require.NoError(t, first.register(reg, nil))

	dup := NewSession(types.RoleTelemetry, first.transport, SessionOptions{ID: first.ID(), QueueSize: 1})
	err := dup.register(reg, nil)
	assert.True(t, types.IsErrCode(err, types.ErrCodeDuplicateSession), "got %v", err)
	assert.Equal(t, types.SessionStateConnecting, dup.State())

	closed := newTestSession(types.RoleTelemetry, 1)
	require.NoError(t, closed.Close())
	assert.Error(t, closed.register(reg, nil))
	_, ok := reg.Get(closed.ID())
	assert.False(t, ok)
}

func TestSessionRegistryMembershipTracksLiveness(t *testing.T) {
	reg := NewRegistry(nil)
	s := newTestSession(types.RoleMotorControl, 1)

	consistent := func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		_, in := reg.Get(s.ID())
		return in == s.state.IsLive()
	}

	stop := make(chan struct{})
	violations := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			if !consistent() {
				select {
				case violations <- struct{}{}:
				default:
				}
			}
		}
	}()

	assert.True(t, consistent())
	require.NoError(t, s.register(reg, func(closed *Session) { reg.Unregister(closed.ID()) }))
	assert.True(t, consistent())
	require.NoError(t, s.transition(types.SessionStateActive))
	require.NoError(t, s.Close())
	assert.True(t, consistent())
	close(stop)

	select {
	case <-violations:
		t.Fatal("registry membership disagreed with session liveness")
	default:
	}
	assert.Equal(t, 0, reg.Len())
}

func TestSessionStampsEmptySender(t *testing.T) {
	s := newTestSession(types.RoleMotorControl, 1)
	in := types.NewMessage("", "dashboard", "motor:ok")
	out := s.stamp(in)
	assert.Equal(t, "motor_control", out.Sender)
	assert.Equal(t, "", in.Sender, "original left untouched")

	kept := types.NewMessage("telemetry", "dashboard", "x")
	assert.Same(t, kept, s.stamp(kept))
}

type discardTransport struct{ done chan struct{} }

func nopTransport() *discardTransport { return &discardTransport{done: make(chan struct{})} }

func (d *discardTransport) Recv() (*types.Message, error) {
	<-d.done
	return nil, ErrClosed
}
func (d *discardTransport) Send(*types.Message) error { return nil }
func (d *discardTransport) Close() error {
	select {
	case <-d.done:
	default:
		close(d.done)
	}
	return nil
}
func (d *discardTransport) Kind() string       { return "discard" }
func (d *discardTransport) RemoteAddr() string { return "" }
