package amqp091

import (
	"io"
	"net"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/leporidae/amqp091/internal/buffer"
	"github.com/leporidae/amqp091/internal/frames"
)

// writeRetryDelay bounds how long the loop parks after an interrupted
// write before retrying the remainder.
const writeRetryDelay = 50 * time.Millisecond

// ioLoop is the single cooperative driver of one connection. It owns the
// socket exclusively; producers reach it through the frame queue, the
// command bus and the waker.
type ioLoop struct {
	status   *ConnectionStatus
	config   *Configuration
	channels *Channels
	rpc      *internalRPC
	frames   *frameQueue
	socket   *socketState
	source   *IOSource
	hb       *heartbeat
	metrics  *Metrics
	logger   logr.Logger

	parseBuf []byte

	// partially written frame bookkeeping: the interrupted frame sits at
	// the front of the retry lane; retrySkip is how many of its
	// serialized bytes already reached the wire.
	retryFrame frames.Frame
	retrySkip  int

	hbStarted bool
	done      chan struct{}
}

func newIOLoop(status *ConnectionStatus, config *Configuration, channels *Channels,
	rpc *internalRPC, fq *frameQueue, socket *socketState, source *IOSource,
	hb *heartbeat, metrics *Metrics, logger logr.Logger) *ioLoop {
	return &ioLoop{
		status:   status,
		config:   config,
		channels: channels,
		rpc:      rpc,
		frames:   fq,
		socket:   socket,
		source:   source,
		hb:       hb,
		metrics:  metrics,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

func (l *ioLoop) terminal() bool {
	return l.status.Closed()
}

// run drives the connection until a terminal state. Each iteration:
// drain the command bus, write what the queue offers, read and dispatch
// what the socket holds, keep the heartbeat honest, then park until a
// readiness edge, a waker edge or a timer.
func (l *ioLoop) run() {
	defer close(l.done)
	for {
		start := time.Now()

		l.rpc.poll(l.channels)
		if l.terminal() {
			break
		}
		l.maybeStartHeartbeat()

		if err := l.writeStep(); err != nil {
			l.critical(err)
			continue
		}
		if err := l.readStep(); err != nil {
			l.critical(err)
			continue
		}

		now := time.Now()
		if l.hb.missed(now) {
			l.critical(errMissedHeartbeat())
			continue
		}
		if l.hb.shouldEmit(now) {
			l.frames.pushPriority(queuedFrame{frame: &frames.HeartbeatFrame{}})
			l.logger.V(2).Info("heartbeat enqueued")
			continue
		}

		l.metrics.observeLoop(time.Since(start))
		if l.terminal() {
			break
		}
		l.park(now)
	}
	l.finish()
}

func (l *ioLoop) maybeStartHeartbeat() {
	if !l.hbStarted && l.status.State() == StateConnected {
		l.hb.start(l.config.Heartbeat())
		l.hbStarted = true
	}
}

// writeStep drains the frame queue into the socket. A full write
// resolves the frame's flush resolver and registers its expected reply;
// an interrupted write pushes the frame onto the retry lane and returns
// so the loop can park.
func (l *ioLoop) writeStep() *Error {
	for {
		q, ok := l.frames.popNext()
		if !ok {
			return nil
		}

		var buf buffer.Buffer
		if err := frames.Serialize(&buf, q.frame); err != nil {
			rejectQueued(q, errParse(err))
			return errParse(err)
		}
		data := buf.Bytes()

		skip := 0
		if q.frame == l.retryFrame {
			skip = l.retrySkip
		}
		l.retryFrame, l.retrySkip = nil, 0

		start := time.Now()
		n, err := l.source.Write(data[skip:])
		l.metrics.observeWrite(time.Since(start), n)
		if n > 0 {
			l.hb.noteWrite()
		}
		if err != nil {
			if isTimeout(err) {
				l.retryFrame = q.frame
				l.retrySkip = skip + n
				l.frames.pushRetry(q)
				return nil
			}
			return errIO(errors.Wrap(err, "write frame"))
		}
		if skip+n < len(data) {
			l.retryFrame = q.frame
			l.retrySkip = skip + n
			l.frames.pushRetry(q)
			return nil
		}

		l.logger.V(2).Info("frame written", "channel", q.frame.Channel())
		if q.flush != nil {
			q.flush.resolve(struct{}{})
		}
		if q.reply != nil {
			l.frames.registerExpectedReply(q.reply)
		}
	}
}

// readStep moves buffered inbound bytes through the parser and feeds
// each complete frame to the receiver state machines.
func (l *ioLoop) readStep() *Error {
	start := time.Now()
	data, readErr := l.source.TakeInbound()
	if len(data) > 0 {
		l.hb.noteRead()
		l.parseBuf = append(l.parseBuf, data...)
		for {
			f, n, err := frames.Parse(l.parseBuf)
			if err == frames.ErrIncomplete {
				break
			}
			if err != nil {
				return errParse(err)
			}
			l.parseBuf = l.parseBuf[n:]
			l.logger.V(2).Info("frame read", "channel", f.Channel())
			if herr := l.channels.HandleFrame(f); herr != nil {
				return asError(herr)
			}
		}
	}
	l.metrics.observeRead(time.Since(start), len(data))
	if readErr != nil {
		if l.status.Closed() || (l.status.Closing() && readErr == io.EOF) {
			return nil
		}
		return errIO(errors.Wrap(readErr, "read socket"))
	}
	return nil
}

// critical applies the fatal-error policy: push a best-effort
// connection.close, transition to Error and fail everything pending.
func (l *ioLoop) critical(e *Error) {
	l.logger.Error(e, "connection failed")
	code, text := e.Code, e.Text
	if code == 0 {
		code = ReplyInternalError
		text = e.Kind.String()
	}
	var buf buffer.Buffer
	closeFrame := &frames.MethodFrame{
		ChannelID: 0,
		Method:    &frames.ConnectionClose{ReplyCode: code, ReplyText: text},
	}
	if err := frames.Serialize(&buf, closeFrame); err == nil {
		_, _ = l.source.Write(buf.Bytes())
	}
	l.channels.setConnectionError(e)
}

// park suspends until the socket signals, the waker is raised, or the
// earliest timer fires.
func (l *ioLoop) park(now time.Time) {
	wait := l.hb.nextDeadline(now) // zero when heartbeats are disabled
	if l.frames.hasWritable() {
		// a partial write left work behind; retry soon
		if wait <= 0 || wait > writeRetryDelay {
			wait = writeRetryDelay
		}
	}
	sig := l.socket.wait(wait)
	if sig.event == eventError {
		if l.status.Closed() || (l.status.Closing() && sig.err == io.EOF) {
			return
		}
		l.critical(errIO(sig.err))
	}
}

// finish flushes any close-ok still queued, then fails whatever remains
// pending with the terminal error and releases the socket.
func (l *ioLoop) finish() {
	terminalErr := &Error{Kind: KindShutdown, Text: "connection terminated"}
	for {
		q, ok := l.frames.popNext()
		if !ok {
			break
		}
		if mf, isMethod := q.frame.(*frames.MethodFrame); isMethod {
			switch mf.Method.(type) {
			case *frames.ConnectionCloseOk, *frames.ChannelCloseOk:
				var buf buffer.Buffer
				if err := frames.Serialize(&buf, q.frame); err == nil {
					_, _ = l.source.Write(buf.Bytes())
				}
				if q.flush != nil {
					q.flush.resolve(struct{}{})
				}
				continue
			}
		}
		rejectQueued(q, terminalErr)
	}
	l.frames.cancelAll(terminalErr)
	_ = l.source.Close()
	_ = l.socket.drain()
	l.logger.V(1).Info("io loop terminated", "state", l.status.State().String())
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
