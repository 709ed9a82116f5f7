package relay

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharisseji/Waterloop-Host-Application/internal/config"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
)

type endpoint struct {
	client *PipeTransport
	server *PipeTransport
	errc   chan error
	inbox  chan *types.Message
}

// connect starts a session over a pipe and pumps what the relay delivers
// into ep.inbox, which is closed when the relay side hangs up.
func connect(t *testing.T, srv *Server, role types.Role) *endpoint {
	t.Helper()
	server, client := Pipe(16)
	ep := &endpoint{
		client: client,
		server: server,
		errc:   make(chan error, 1),
		inbox:  make(chan *types.Message, 256),
	}
	go func() {
		ep.errc <- srv.Accept(context.Background(), server, role)
	}()
	go func() {
		defer close(ep.inbox)
		for {
			msg, err := client.Recv()
			if err != nil {
				return
			}
			ep.inbox <- msg
		}
	}()
	return ep
}

func (ep *endpoint) recv(d time.Duration) *types.Message {
	select {
	case msg, ok := <-ep.inbox:
		if !ok {
			return nil
		}
		return msg
	case <-time.After(d):
		return nil
	}
}

func (ep *endpoint) hungUp(d time.Duration) bool {
	deadline := time.After(d)
	for {
		select {
		case _, ok := <-ep.inbox:
			if !ok {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

func waitForSessions(t *testing.T, srv *Server, role types.Role, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(srv.Registry().Snapshot(role)) == n
	}, 2*time.Second, 5*time.Millisecond, "waiting for %d %s sessions", n, role)
}

func acceptResult(t *testing.T, ep *endpoint) error {
	t.Helper()
	select {
	case err := <-ep.errc:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("Accept did not return")
		return nil
	}
}

func newTestServer(opts Options) *Server {
	if opts.DrainTimeout == 0 {
		opts.DrainTimeout = 500 * time.Millisecond
	}
	return NewServer(opts)
}

func TestServerEndToEnd(t *testing.T) {
	srv := newTestServer(Options{QueueSize: 8})

	dash := connect(t, srv, types.RoleDashboard)
	waitForSessions(t, srv, types.RoleDashboard, 1)
	tele := connect(t, srv, types.RoleTelemetry)
	waitForSessions(t, srv, types.RoleTelemetry, 1)

	sent := types.NewMessage("telemetry", "dashboard", "telemetry:30:10,20,30")
	require.NoError(t, tele.client.Send(sent))

	got := dash.recv(2 * time.Second)
	require.NotNil(t, got)
	assert.Equal(t, *sent, *got)

	assert.Nil(t, dash.recv(50 * time.Millisecond), "exactly one copy")

	require.NoError(t, tele.client.Close())
	assert.NoError(t, acceptResult(t, tele))
	waitForSessions(t, srv, types.RoleTelemetry, 0)

	stats := srv.Stats()
	assert.Equal(t, int64(2), stats.Accepted)
	assert.Equal(t, int64(1), stats.Router.Deliveries)

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.NoError(t, acceptResult(t, dash))
}

func TestServerPerSenderOrder(t *testing.T) {
	srv := newTestServer(Options{QueueSize: 128})
	motor := connect(t, srv, types.RoleMotorControl)
	dash := connect(t, srv, types.RoleDashboard)
	waitForSessions(t, srv, types.RoleMotorControl, 1)
	waitForSessions(t, srv, types.RoleDashboard, 1)

	const n = 50
	go func() {
		for i := 0; i < n; i++ {
			_ = dash.client.Send(types.NewMessage("dashboard", "motor_control", string(rune('A'+i%26))))
		}
	}()

	for i := 0; i < n; i++ {
		got := motor.recv(2 * time.Second)
		require.NotNil(t, got, "message %d", i)
		assert.Equal(t, string(rune('A'+i%26)), got.Command)
	}

	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestServerHandshakeDeclaresRole(t *testing.T) {
	srv := newTestServer(Options{QueueSize: 8})
	dash := connect(t, srv, types.RoleDashboard)
	waitForSessions(t, srv, types.RoleDashboard, 1)

	// Handshake without recipient: registers, routes nothing.
	anon := connect(t, srv, "")
	require.NoError(t, anon.client.Send(types.NewMessage("Telemetry", "", "hello")))
	waitForSessions(t, srv, types.RoleTelemetry, 1)
	assert.Nil(t, dash.recv(50 * time.Millisecond))

	// Handshake that names a recipient is routed.
	anon2 := connect(t, srv, "")
	require.NoError(t, anon2.client.Send(types.NewMessage("motor-control", "dashboard", "motor:ready")))
	waitForSessions(t, srv, types.RoleMotorControl, 1)
	got := dash.recv(2 * time.Second)
	require.NotNil(t, got)
	assert.Equal(t, "motor:ready", got.Command)

	info := srv.Sessions(types.RoleTelemetry)
	require.Len(t, info, 1)
	assert.Equal(t, int64(1), info[0].Received)

	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestServerHandshakeRejectsBadRole(t *testing.T) {
	srv := newTestServer(Options{})
	ep := connect(t, srv, "")
	require.NoError(t, ep.client.Send(types.NewMessage("", "dashboard", "x")))

	err := acceptResult(t, ep)
	assert.True(t, types.IsErrCode(err, types.ErrCodeInvalidArgument), "got %v", err)
	assert.Equal(t, 0, srv.Registry().Len())
	assert.Equal(t, int64(1), srv.Stats().Rejected)
}

func TestServerHandshakeTimeout(t *testing.T) {
	srv := newTestServer(Options{HandshakeTimeout: 30 * time.Millisecond})
	ep := connect(t, srv, "")

	err := acceptResult(t, ep)
	assert.True(t, types.IsErrCode(err, types.ErrCodeTimeout), "got %v", err)
}

func TestServerRejectsInvalidRole(t *testing.T) {
	srv := newTestServer(Options{})
	ep := connect(t, srv, "bad/role")
	err := acceptResult(t, ep)
	assert.True(t, types.IsErrCode(err, types.ErrCodeInvalidArgument))
}

func TestServerBroadcastAndNoEcho(t *testing.T) {
	srv := newTestServer(Options{QueueSize: 8})
	a := connect(t, srv, types.RoleDashboard)
	b := connect(t, srv, types.RoleDashboard)
	waitForSessions(t, srv, types.RoleDashboard, 2)

	require.NoError(t, a.client.Send(types.NewMessage("dashboard", "dashboard", "sync")))

	got := b.recv(2 * time.Second)
	require.NotNil(t, got)
	assert.Equal(t, "sync", got.Command)
	assert.Nil(t, a.recv(50 * time.Millisecond), "sender does not get its own message")

	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestServerFillsEmptySender(t *testing.T) {
	srv := newTestServer(Options{QueueSize: 8})
	dash := connect(t, srv, types.RoleDashboard)
	motor := connect(t, srv, types.RoleMotorControl)
	waitForSessions(t, srv, types.RoleDashboard, 1)
	waitForSessions(t, srv, types.RoleMotorControl, 1)

	require.NoError(t, motor.client.Send(types.NewMessage("", "dashboard", "motor:rpm:1200")))
	got := dash.recv(2 * time.Second)
	require.NotNil(t, got)
	assert.Equal(t, "motor_control", got.Sender)

	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestServerRateLimit(t *testing.T) {
	srv := newTestServer(Options{QueueSize: 64, RateLimit: 0.001, RateBurst: 2})
	dash := connect(t, srv, types.RoleDashboard)
	tele := connect(t, srv, types.RoleTelemetry)
	waitForSessions(t, srv, types.RoleDashboard, 1)
	waitForSessions(t, srv, types.RoleTelemetry, 1)

	for i := 0; i < 5; i++ {
		require.NoError(t, tele.client.Send(types.NewMessage("telemetry", "dashboard", "t")))
	}

	require.NotNil(t, dash.recv(time.Second))
	require.NotNil(t, dash.recv(time.Second))
	assert.Nil(t, dash.recv(100 * time.Millisecond))

	require.Eventually(t, func() bool {
		info := srv.Sessions(types.RoleTelemetry)
		return len(info) == 1 && info[0].Limited == 3
	}, time.Second, 5*time.Millisecond)

	// Lifting the limit applies to the running session.
	srv.SetRateLimit(0, 0)
	require.NoError(t, tele.client.Send(types.NewMessage("telemetry", "dashboard", "t")))
	require.NotNil(t, dash.recv(time.Second))

	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestServerDisconnectDuringBroadcast(t *testing.T) {
	srv := newTestServer(Options{QueueSize: 32})
	dash := connect(t, srv, types.RoleDashboard)
	m1 := connect(t, srv, types.RoleMotorControl)
	m2 := connect(t, srv, types.RoleMotorControl)
	m3 := connect(t, srv, types.RoleMotorControl)
	waitForSessions(t, srv, types.RoleMotorControl, 3)
	waitForSessions(t, srv, types.RoleDashboard, 1)

	require.NoError(t, m2.client.Close())
	for i := 0; i < 10; i++ {
		require.NoError(t, dash.client.Send(types.NewMessage("dashboard", "motor_control", "motor:go")))
	}

	for _, ep := range []*endpoint{m1, m3} {
		for i := 0; i < 10; i++ {
			got := ep.recv(2 * time.Second)
			require.NotNil(t, got)
			assert.Equal(t, "motor:go", got.Command)
		}
	}
	if err := acceptResult(t, m2); err != nil {
		// The writer may hit the closed pipe before the reader sees EOF.
		assert.True(t, types.IsErrCode(err, types.ErrCodeConnectionLost), "got %v", err)
	}
	waitForSessions(t, srv, types.RoleMotorControl, 2)

	require.NoError(t, srv.Shutdown(context.Background()))
	for _, ep := range []*endpoint{dash, m1, m3} {
		assert.NoError(t, acceptResult(t, ep))
	}
}

func TestServerWriteFailureClosesSession(t *testing.T) {
	srv := newTestServer(Options{QueueSize: 8})
	dash := connect(t, srv, types.RoleDashboard)
	waitForSessions(t, srv, types.RoleDashboard, 1)

	server, _ := Pipe(4)
	server.SendHook = func(*types.Message) error { return errors.New("broken pipe") }
	motorErr := make(chan error, 1)
	go func() { motorErr <- srv.Accept(context.Background(), server, types.RoleMotorControl) }()
	waitForSessions(t, srv, types.RoleMotorControl, 1)

	require.NoError(t, dash.client.Send(types.NewMessage("dashboard", "motor_control", "motor:1")))

	select {
	case err := <-motorErr:
		assert.True(t, types.IsErrCode(err, types.ErrCodeConnectionLost), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("Accept did not return after write failure")
	}
	waitForSessions(t, srv, types.RoleMotorControl, 0)

	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestServerContextCancelEndsSession(t *testing.T) {
	srv := newTestServer(Options{})
	server, _ := Pipe(1)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.Accept(ctx, server, types.RoleTelemetry) }()
	waitForSessions(t, srv, types.RoleTelemetry, 1)

	cancel()
	select {
	case <-errc:
	case <-time.After(2 * time.Second):
		t.Fatal("Accept ignored context cancellation")
	}
	waitForSessions(t, srv, types.RoleTelemetry, 0)
}

func TestServerDrainTimeoutReturnsTimeout(t *testing.T) {
	srv := newTestServer(Options{QueueSize: 4, DrainTimeout: 50 * time.Millisecond})
	dash := connect(t, srv, types.RoleDashboard)
	waitForSessions(t, srv, types.RoleDashboard, 1)

	release := make(chan struct{})
	defer close(release)
	entered := make(chan struct{}, 1)
	server, _ := Pipe(4)
	server.SendHook = func(*types.Message) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- srv.Accept(ctx, server, types.RoleMotorControl) }()
	waitForSessions(t, srv, types.RoleMotorControl, 1)

	require.NoError(t, dash.client.Send(types.NewMessage("dashboard", "motor_control", "motor:1")))
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("writer never reached the transport")
	}

	cancel()
	select {
	case err := <-errc:
		assert.True(t, types.IsErrCode(err, types.ErrCodeTimeout), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("Accept did not return after the drain timeout")
	}
	waitForSessions(t, srv, types.RoleMotorControl, 0)
}

// listenOnly is a half-closed transport: its peer sends nothing and Recv
// reports io.EOF at once, while Send still reaches the peer until gone.
type listenOnly struct {
	*PipeTransport
	gone chan struct{}
}

func (l *listenOnly) Recv() (*types.Message, error) { return nil, io.EOF }

func (l *listenOnly) Gone() <-chan struct{} { return l.gone }

func TestServerHalfClosedSessionKeepsReceiving(t *testing.T) {
	srv := newTestServer(Options{QueueSize: 8})
	dash := connect(t, srv, types.RoleDashboard)
	waitForSessions(t, srv, types.RoleDashboard, 1)

	server, client := Pipe(4)
	motor := &listenOnly{PipeTransport: server, gone: make(chan struct{})}
	errc := make(chan error, 1)
	go func() { errc <- srv.Accept(context.Background(), motor, types.RoleMotorControl) }()
	waitForSessions(t, srv, types.RoleMotorControl, 1)

	require.NoError(t, dash.client.Send(types.NewMessage("dashboard", "motor_control", "motor:stop")))
	got, err := client.Recv()
	require.NoError(t, err)
	assert.Equal(t, "motor:stop", got.Command)
	assert.Len(t, srv.Registry().Snapshot(types.RoleMotorControl), 1)

	close(motor.gone)
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Accept did not return once the peer was gone")
	}
	waitForSessions(t, srv, types.RoleMotorControl, 0)

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.NoError(t, acceptResult(t, dash))
}

func TestServerShutdown(t *testing.T) {
	srv := newTestServer(Options{})
	var eps []*endpoint
	for i := 0; i < 3; i++ {
		eps = append(eps, connect(t, srv, types.RoleMotorControl))
	}
	waitForSessions(t, srv, types.RoleMotorControl, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	for _, ep := range eps {
		assert.NoError(t, acceptResult(t, ep))
		assert.True(t, ep.hungUp(time.Second), "transport closed")
	}
	assert.Equal(t, 0, srv.Registry().Len())
	assert.True(t, srv.Stats().ShuttingDown)

	late := connect(t, srv, types.RoleDashboard)
	err := acceptResult(t, late)
	assert.ErrorIs(t, err, ErrShuttingDown)
	assert.True(t, types.IsErrCode(err, types.ErrCodeUnavailable))
}

func TestServerShutdownReportsForceClosed(t *testing.T) {
	srv := newTestServer(Options{DrainTimeout: 5 * time.Second})
	dash := connect(t, srv, types.RoleDashboard)
	waitForSessions(t, srv, types.RoleDashboard, 1)

	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	defer unblock()

	server, _ := Pipe(1)
	server.SendHook = func(*types.Message) error {
		<-release
		return nil
	}
	stuck := make(chan error, 1)
	go func() { stuck <- srv.Accept(context.Background(), server, types.RoleMotorControl) }()
	waitForSessions(t, srv, types.RoleMotorControl, 1)

	// The writer blocks inside Send and ignores the transport close.
	require.NoError(t, dash.client.Send(types.NewMessage("dashboard", "motor_control", "motor:1")))
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := srv.Shutdown(ctx)
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeTimeout), "got %v", err)
	assert.Contains(t, err.Error(), "1 sessions force-closed")

	unblock()
	select {
	case <-stuck:
	case <-time.After(2 * time.Second):
		t.Fatal("stuck session never finished")
	}
	assert.NoError(t, acceptResult(t, dash))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultRelayConfig()
	cfg.OverflowPolicy = "block"
	_, err := OptionsFromConfig(cfg, nil)
	assert.True(t, types.IsErrCode(err, types.ErrCodeInvalidArgument))

	cfg.OverflowPolicy = config.OverflowDropNewest
	opts, err := OptionsFromConfig(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, DropNewest, opts.Overflow)
}
