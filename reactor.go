package amqp091

import (
	"io"
	"sync"
	"time"
)

// Stream is the duplex byte stream produced by a handshake function.
// Plain TCP and TLS connections both satisfy it.
type Stream = io.ReadWriteCloser

// writeDeadliner is implemented by net.Conn and friends; when available
// the source bounds each write so a stalled peer surfaces as a partial
// write instead of a hung loop.
type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Reactor is the I/O readiness capability. Register wraps a stream into
// an IOSource whose inbound side raises Readable edges on the waker.
type Reactor interface {
	Register(stream Stream, waker *Waker) (*IOSource, error)
}

// IOSource is a registered stream. The reactor's reader feeds inbound
// bytes into an internal buffer and signals the waker; the I/O loop is
// the only writer.
type IOSource struct {
	stream Stream
	waker  *Waker

	writeTimeout time.Duration

	mu      sync.Mutex
	inbound []byte
	readErr error

	closeOnce sync.Once
}

// TakeInbound detaches and returns all buffered inbound bytes. When the
// reader has failed and no bytes remain, the read error is returned.
func (s *IOSource) TakeInbound() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.inbound) == 0 {
		return nil, s.readErr
	}
	out := s.inbound
	s.inbound = nil
	return out, nil
}

// Write writes p to the stream, bounded by the write timeout when the
// stream supports deadlines. A short or timed-out write returns the
// count written so the caller can retry the remainder.
func (s *IOSource) Write(p []byte) (int, error) {
	if wd, ok := s.stream.(writeDeadliner); ok && s.writeTimeout > 0 {
		_ = wd.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	return s.stream.Write(p)
}

// Close closes the underlying stream. Safe to call more than once.
func (s *IOSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.stream.Close()
	})
	return err
}

// readLoop runs on its own task and moves bytes from the stream into the
// inbound buffer, raising a Readable edge per chunk. It exits on the
// first read error, which is also surfaced through the waker.
func (s *IOSource) readLoop() {
	chunk := make([]byte, 16384)
	for {
		n, err := s.stream.Read(chunk)
		if n > 0 {
			s.mu.Lock()
			s.inbound = append(s.inbound, chunk[:n]...)
			s.mu.Unlock()
			s.waker.Readable()
		}
		if err != nil {
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			s.waker.Err(err)
			return
		}
	}
}

// goReactor registers streams by spawning one reader goroutine each.
type goReactor struct {
	executor     Executor
	writeTimeout time.Duration
}

func (r goReactor) Register(stream Stream, waker *Waker) (*IOSource, error) {
	src := &IOSource{
		stream:       stream,
		waker:        waker,
		writeTimeout: r.writeTimeout,
	}
	r.executor.Spawn(src.readLoop)
	return src, nil
}

// DefaultReactor returns a reactor that dedicates one reader task per
// registered stream, scheduled on executor.
func DefaultReactor(executor Executor) Reactor {
	return goReactor{executor: executor, writeTimeout: 30 * time.Second}
}
