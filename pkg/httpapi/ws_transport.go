package httpapi

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sharisseji/Waterloop-Host-Application/internal/logger"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/relay"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
)

// wsOptions tunes one WebSocket endpoint connection
type wsOptions struct {
	WriteTimeout time.Duration
	PongWait     time.Duration
	ReadLimit    int64
	Logger       *logger.Logger
}

// wsTransport carries relay messages as JSON text frames. Close stops the
// relay side by expiring the read deadline; the handler sends the close
// frame and releases the socket once Accept returns, so the close code can
// reflect how the session ended.
type wsTransport struct {
	conn   *websocket.Conn
	opts   wsOptions
	log    *logger.Logger
	done   chan struct{}
	once   sync.Once
	finish sync.Once

	// deadlineMu orders pong deadline extensions against Close
	deadlineMu sync.Mutex
	closed     bool
}

var _ relay.Transport = (*wsTransport)(nil)

func newWSTransport(conn *websocket.Conn, opts wsOptions) *wsTransport {
	t := &wsTransport{
		conn: conn,
		opts: opts,
		log:  opts.Logger.With("component", "ws_transport", "remote_addr", conn.RemoteAddr().String()),
		done: make(chan struct{}),
	}

	if opts.ReadLimit > 0 {
		conn.SetReadLimit(opts.ReadLimit)
	}
	_ = conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	conn.SetPongHandler(func(string) error { return t.extendReadDeadline() })

	go t.pingLoop()
	return t
}

// extendReadDeadline pushes the read deadline out by PongWait unless the
// transport is closed
func (t *wsTransport) extendReadDeadline() error {
	t.deadlineMu.Lock()
	defer t.deadlineMu.Unlock()
	if t.closed {
		return nil
	}
	return t.conn.SetReadDeadline(time.Now().Add(t.opts.PongWait))
}

func (t *wsTransport) pingLoop() {
	ticker := time.NewTicker(t.opts.PongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(t.opts.WriteTimeout)
			if err := t.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// Recv reads the next message frame. Frames that are not a JSON message
// object are dropped.
func (t *wsTransport) Recv() (*types.Message, error) {
	for {
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		var msg types.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.log.Warn("malformed websocket frame dropped", "error", err, "bytes", len(data))
			continue
		}
		return &msg, nil
	}
}

// Send writes msg as one text frame
func (t *wsTransport) Send(msg *types.Message) error {
	select {
	case <-t.done:
		return relay.ErrClosed
	default:
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout)); err != nil {
		return err
	}
	return t.conn.WriteJSON(msg)
}

// Close unblocks Recv and stops the ping loop
func (t *wsTransport) Close() error {
	t.once.Do(func() {
		t.deadlineMu.Lock()
		t.closed = true
		_ = t.conn.SetReadDeadline(time.Now())
		t.deadlineMu.Unlock()
		close(t.done)
	})
	return nil
}

// shutdown sends a close frame for err and closes the socket
func (t *wsTransport) shutdown(err error) {
	t.Close()
	t.finish.Do(func() {
		code, reason := closeCodeForError(err)
		deadline := time.Now().Add(t.opts.WriteTimeout)
		_ = t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, truncateCloseReason(reason)), deadline)
		_ = t.conn.Close()
	})
}

func (t *wsTransport) Kind() string { return "websocket" }

func (t *wsTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }

// closeCodeForError picks the close frame sent when a session ends
func closeCodeForError(err error) (int, string) {
	if err == nil {
		return websocket.CloseNormalClosure, ""
	}
	switch types.GetErrorCode(err) {
	case types.ErrCodeUnavailable:
		return websocket.CloseTryAgainLater, "relay shutting down"
	case types.ErrCodeInvalidArgument, types.ErrCodeDuplicateSession, types.ErrCodeTimeout:
		return websocket.ClosePolicyViolation, err.Error()
	case types.ErrCodeConnectionLost:
		return websocket.CloseGoingAway, "connection lost"
	default:
		return websocket.CloseInternalServerErr, "internal error"
	}
}

func truncateCloseReason(reason string) string {
	const maxReasonBytes = 123
	if len(reason) <= maxReasonBytes {
		return reason
	}
	return reason[:maxReasonBytes]
}
