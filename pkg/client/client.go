// Package client is the endpoint side of the relay: it dials the gRPC
// listener, opens the stream for a role and exchanges messages on it. Run
// keeps a stream open across relay restarts.
package client

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sharisseji/Waterloop-Host-Application/internal/logger"
	relaygrpc "github.com/sharisseji/Waterloop-Host-Application/pkg/grpc"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
	"github.com/sharisseji/Waterloop-Host-Application/proto"
)

const (
	DefaultReconnectBaseWait = 500 * time.Millisecond
	DefaultReconnectMaxWait  = 5 * time.Second
)

// Options configures a Client
type Options struct {
	DialTimeout   time.Duration
	KeepaliveTime time.Duration
	// CommandPrefix is prepended to outgoing commands that lack it, e.g.
	// "motor:" for a dashboard driving motor control
	CommandPrefix string
	// ReconnectBaseWait and ReconnectMaxWait bound the backoff used by Run
	ReconnectBaseWait time.Duration
	ReconnectMaxWait  time.Duration
	// MaxReconnects stops Run after that many consecutive failures; 0 retries forever
	MaxReconnects uint64
	Logger        *logger.Logger
	DialOptions   []grpc.DialOption
}

// Client is one endpoint's connection to a relay
type Client struct {
	rpc    *relaygrpc.Client
	opts   Options
	log    *logger.Logger
	closed atomic.Bool
}

// New creates a client for target ("host:port" or "unix:///path"). It does
// not connect.
func New(target string, opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.ReconnectBaseWait <= 0 {
		opts.ReconnectBaseWait = DefaultReconnectBaseWait
	}
	if opts.ReconnectMaxWait <= 0 {
		opts.ReconnectMaxWait = DefaultReconnectMaxWait
	}

	rpc, err := relaygrpc.NewClient(target, relaygrpc.ClientConfig{
		DialTimeout:   opts.DialTimeout,
		KeepaliveTime: opts.KeepaliveTime,
		DialOptions:   opts.DialOptions,
	}, opts.Logger)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpc:  rpc,
		opts: opts,
		log:  opts.Logger.With("component", "relay_client", "target", target),
	}, nil
}

// Dial connects to the relay, waiting up to the dial timeout
func (c *Client) Dial(ctx context.Context) error {
	if c.closed.Load() {
		return types.NewError(types.ErrCodeClosed, "client is closed")
	}
	err := c.rpc.Dial(ctx)
	if types.IsErrCode(err, types.ErrCodeInvalid) {
		return nil // already connected
	}
	return err
}

// Open opens the stream for role. An empty role opens the generic stream
// and the relay takes the role from the first message sent.
func (c *Client) Open(ctx context.Context, role types.Role) (*Stream, error) {
	if c.closed.Load() {
		return nil, types.NewError(types.ErrCodeClosed, "client is closed")
	}
	if !role.IsEmpty() {
		parsed, err := types.ParseRole(role.String())
		if err != nil {
			return nil, err
		}
		role = parsed
	}

	ctx, cancel := context.WithCancel(ctx)
	raw, err := c.rpc.OpenStream(ctx, role)
	if err != nil {
		cancel()
		return nil, err
	}
	return &Stream{role: role, raw: raw, cancel: cancel, prefix: c.opts.CommandPrefix}, nil
}

// Close releases the connection. Streams opened from c fail afterwards.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.rpc.Close()
}

// Handler works one open stream. Returning nil ends Run; returning an error
// makes Run reconnect.
type Handler func(ctx context.Context, s *Stream) error

// Run opens the stream for role and calls handler with it, reconnecting with
// exponential backoff whenever the relay is unreachable or the stream breaks.
// It returns when ctx is done, the handler returns nil, or the relay rejects
// the role.
func (c *Client) Run(ctx context.Context, role types.Role, handler Handler) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.ReconnectBaseWait
	b.MaxInterval = c.opts.ReconnectMaxWait
	b.MaxElapsedTime = 0

	var policy backoff.BackOff = b
	if c.opts.MaxReconnects > 0 {
		policy = backoff.WithMaxRetries(b, c.opts.MaxReconnects)
	}

	attempt := 0
	op := func() error {
		attempt++
		if c.rpc.GetConn() == nil {
			if err := c.Dial(ctx); err != nil {
				return classify(err)
			}
		}

		s, err := c.Open(ctx, role)
		if err != nil {
			return classify(err)
		}
		defer s.Close()

		c.log.Info("stream open", "role", role.String(), "attempt", attempt)
		attempt = 0
		b.Reset()

		if err := handler(ctx, s); err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return classify(err)
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.log.Warn("relay stream lost, reconnecting", "error", err, "retry_in", wait.String())
	}

	err := backoff.RetryNotify(op, backoff.WithContext(policy, ctx), notify)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// classify marks errors that a reconnect cannot fix as permanent
func classify(err error) error {
	if types.IsErrCode(err, types.ErrCodeClosed) || types.IsErrCode(err, types.ErrCodeInvalidArgument) {
		return backoff.Permanent(err)
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.InvalidArgument, codes.AlreadyExists, codes.PermissionDenied, codes.Unimplemented:
			return backoff.Permanent(err)
		}
	}
	return err
}

// Stream is one open relay stream. Send and Recv may run concurrently;
// Send is safe for concurrent callers.
type Stream struct {
	role   types.Role
	raw    proto.HostControl_ConnectClient
	cancel context.CancelFunc
	prefix string

	sendMu sync.Mutex
}

// Role returns the role the stream was opened with, empty for the generic stream
func (s *Stream) Role() types.Role {
	return s.role
}

// Send sends command to recipient with the stream's role as sender. On the
// generic stream a first message with an empty recipient only declares the
// role.
func (s *Stream) Send(recipient, command string) error {
	if s.prefix != "" && !strings.HasPrefix(command, s.prefix) {
		command = s.prefix + command
	}
	return s.SendMessage(types.NewMessage(s.role.String(), recipient, command))
}

// SendMessage sends msg unchanged
func (s *Stream) SendMessage(msg *types.Message) error {
	if msg == nil {
		return types.NewError(types.ErrCodeInvalidArgument, "message cannot be nil")
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.raw.Send(&proto.HostMessage{
		Sender:    msg.Sender,
		Recipient: msg.Recipient,
		Command:   msg.Command,
	})
}

// Recv waits for the next message routed to this endpoint. It returns
// io.EOF when the relay ends the stream cleanly.
func (s *Stream) Recv() (*types.Message, error) {
	m, err := s.raw.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return types.NewMessage(m.GetSender(), m.GetRecipient(), m.GetCommand()), nil
}

// CloseSend half-closes the stream. The endpoint stays registered and Recv
// keeps delivering until the relay ends the stream.
func (s *Stream) CloseSend() error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.raw.CloseSend()
}

// Close abandons the stream
func (s *Stream) Close() {
	s.cancel()
}
