package grpc

import (
	"io"
	"sync"

	"github.com/sharisseji/Waterloop-Host-Application/pkg/relay"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
	"github.com/sharisseji/Waterloop-Host-Application/proto"
)

type recvResult struct {
	msg *proto.HostMessage
	err error
}

// streamTransport adapts a HostControl server stream to relay.Transport.
// A gRPC server stream only unblocks Recv when its handler returns, so a
// pump goroutine owns stream.Recv and Close releases the relay side at once.
type streamTransport struct {
	stream proto.HostControl_ConnectServer
	addr   string
	inbox  chan recvResult
	done   chan struct{}
	once   sync.Once
}

var (
	_ relay.Transport  = (*streamTransport)(nil)
	_ relay.HalfCloser = (*streamTransport)(nil)
)

func newStreamTransport(stream proto.HostControl_ConnectServer) *streamTransport {
	t := &streamTransport{
		stream: stream,
		addr:   peerAddr(stream.Context()),
		inbox:  make(chan recvResult, 1),
		done:   make(chan struct{}),
	}
	go t.pump()
	return t
}

func (t *streamTransport) pump() {
	for {
		msg, err := t.stream.Recv()
		select {
		case t.inbox <- recvResult{msg: msg, err: err}:
		case <-t.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// Recv returns the next inbound message, or io.EOF once closed
func (t *streamTransport) Recv() (*types.Message, error) {
	select {
	case r := <-t.inbox:
		if r.err != nil {
			return nil, r.err
		}
		return messageFromProto(r.msg), nil
	case <-t.done:
		return nil, io.EOF
	}
}

// Send writes msg to the stream. Only the session writer calls it.
func (t *streamTransport) Send(msg *types.Message) error {
	select {
	case <-t.done:
		return relay.ErrClosed
	default:
	}
	return t.stream.Send(messageToProto(msg))
}

// Close detaches the relay from the stream. The stream itself ends when the
// handler returns.
func (t *streamTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}

// Gone is closed when the stream's context ends. A client CloseSend alone
// leaves the stream open for delivery.
func (t *streamTransport) Gone() <-chan struct{} { return t.stream.Context().Done() }

func (t *streamTransport) Kind() string { return "grpc" }

func (t *streamTransport) RemoteAddr() string { return t.addr }
