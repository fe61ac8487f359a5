package amqp091

import "time"

// socketEvent is one readiness edge delivered to the I/O loop.
type socketEvent uint8

const (
	eventWake socketEvent = iota
	eventReadable
	eventWritable
	eventError
	eventTimeout
)

type socketSignal struct {
	event socketEvent
	err   error
}

// socketState is the edge-triggered rendezvous between the I/O loop and
// everything else: frame producers, the reader, the command bus. The
// channel is buffered; producers never block and coalesced edges are
// fine because the loop re-examines all state on every wakeup.
type socketState struct {
	signals chan socketSignal
}

func newSocketState() *socketState {
	return &socketState{signals: make(chan socketSignal, 32)}
}

func (s *socketState) handle() *Waker {
	return &Waker{signals: s.signals}
}

// wait parks until a signal arrives or d elapses. A non-positive d waits
// for a signal only.
func (s *socketState) wait(d time.Duration) socketSignal {
	if d <= 0 {
		return <-s.signals
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case sig := <-s.signals:
		return sig
	case <-timer.C:
		return socketSignal{event: eventTimeout}
	}
}

// drain empties any queued signals, returning the first error seen.
func (s *socketState) drain() error {
	for {
		select {
		case sig := <-s.signals:
			if sig.event == eventError {
				return sig.err
			}
		default:
			return nil
		}
	}
}

// Waker is the producer-side handle to a connection's socket state. It is
// safe for concurrent use; raising an edge on a full buffer is dropped,
// which is harmless because the loop was already due to wake.
type Waker struct {
	signals chan socketSignal
}

func (w *Waker) send(sig socketSignal) {
	select {
	case w.signals <- sig:
	default:
	}
}

// Wake rouses the I/O loop with no specific readiness attached.
func (w *Waker) Wake() { w.send(socketSignal{event: eventWake}) }

// Readable signals that inbound bytes are available.
func (w *Waker) Readable() { w.send(socketSignal{event: eventReadable}) }

// Writable signals that the transport accepts writes again.
func (w *Waker) Writable() { w.send(socketSignal{event: eventWritable}) }

// Err signals a transport failure. Errors are never dropped: the send
// retries on a drained slot so the loop observes at least one.
func (w *Waker) Err(err error) {
	sig := socketSignal{event: eventError, err: err}
	select {
	case w.signals <- sig:
	default:
		// Make room by displacing one coalesced edge.
		select {
		case <-w.signals:
		default:
		}
		select {
		case w.signals <- sig:
		default:
		}
	}
}
