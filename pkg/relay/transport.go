package relay

import (
	"io"
	"sync"

	"github.com/sharisseji/Waterloop-Host-Application/pkg/types"
)

// Transport is one duplex connection to a remote endpoint. Recv and Send
// may be called concurrently with each other but each from a single
// goroutine. Close must unblock a pending Recv, after which Recv returns
// io.EOF or an error.
type Transport interface {
	Recv() (*types.Message, error)
	Send(msg *types.Message) error
	Close() error
	// Kind names the transport for status output, e.g. "grpc" or "websocket"
	Kind() string
	RemoteAddr() string
}

// HalfCloser is implemented by transports whose peer can stop sending and
// still receive. After Recv reports io.EOF the session keeps delivering to
// it until Gone is closed or the relay closes the session.
type HalfCloser interface {
	Gone() <-chan struct{}
}

// Pipe returns two connected in-memory transports. Messages sent on one are
// received on the other. Used by tests and for in-process endpoints.
func Pipe(buffer int) (*PipeTransport, *PipeTransport) {
	ab := make(chan *types.Message, buffer)
	ba := make(chan *types.Message, buffer)
	doneA := make(chan struct{})
	doneB := make(chan struct{})

	a := &PipeTransport{in: ba, out: ab, done: doneA, peerDone: doneB, addr: "pipe:a"}
	b := &PipeTransport{in: ab, out: ba, done: doneB, peerDone: doneA, addr: "pipe:b"}
	return a, b
}

// PipeTransport is one end of an in-memory pipe
type PipeTransport struct {
	in       <-chan *types.Message
	out      chan<- *types.Message
	done     chan struct{}
	peerDone chan struct{}
	once     sync.Once
	addr     string

	// SendHook, if set, runs before every Send and can fail it
	SendHook func(msg *types.Message) error
}

// Recv waits for the next message from the peer
func (p *PipeTransport) Recv() (*types.Message, error) {
	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.done:
		return nil, io.EOF
	case <-p.peerDone:
		// Drain what the peer sent before it hung up.
		select {
		case msg := <-p.in:
			return msg, nil
		default:
			return nil, io.EOF
		}
	}
}

// Send delivers msg to the peer, blocking while the pipe buffer is full
func (p *PipeTransport) Send(msg *types.Message) error {
	if p.SendHook != nil {
		if err := p.SendHook(msg); err != nil {
			return err
		}
	}
	select {
	case <-p.done:
		return io.ErrClosedPipe
	case <-p.peerDone:
		return io.ErrClosedPipe
	default:
	}
	select {
	case p.out <- msg:
		return nil
	case <-p.done:
		return io.ErrClosedPipe
	case <-p.peerDone:
		return io.ErrClosedPipe
	}
}

// Close closes this end. The peer sees io.EOF after draining.
func (p *PipeTransport) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

// Done is closed once this end is closed
func (p *PipeTransport) Done() <-chan struct{} {
	return p.done
}

// Kind returns "pipe"
func (p *PipeTransport) Kind() string { return "pipe" }

// RemoteAddr returns a fixed pseudo-address
func (p *PipeTransport) RemoteAddr() string { return p.addr }
