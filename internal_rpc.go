package amqp091

import (
	"context"
	"sync"
)

// commandKind enumerates the internal command bus vocabulary.
type commandKind uint8

const (
	cmdCancelConsumer commandKind = iota + 1
	cmdCloseChannel
	cmdCloseConnection
	cmdSendConnectionCloseOk
	cmdRemoveChannel
	cmdSetConnectionClosing
	cmdSetConnectionClosed
	cmdSetConnectionError
)

// command is one tagged entry on the bus. Only the fields relevant to
// its kind are set.
type command struct {
	kind      commandKind
	channelID uint16
	code      uint16
	text      string
	classID   uint16
	methodID  uint16
	tag       string
	err       error
}

// internalRPC is the multi-producer single-consumer command queue the
// I/O loop drains at the top of every iteration. Producers are consumer
// cancellation, channel and connection frame handlers, internal round
// trips and any code that needs to influence the connection without
// holding a lock on it. Missed heartbeats do not go through the bus: the
// loop fails the connection directly.
type internalRPC struct {
	mu    sync.Mutex
	queue []command

	handle rpcHandle
}

// rpcHandle is the cloneable producer side of the bus. Every send also
// raises the waker so the loop's next iteration observes the command.
type rpcHandle struct {
	rpc      *internalRPC
	waker    *Waker
	executor Executor
}

func newInternalRPC(waker *Waker, executor Executor) *internalRPC {
	rpc := &internalRPC{}
	rpc.handle = rpcHandle{rpc: rpc, waker: waker, executor: executor}
	return rpc
}

func (r *internalRPC) Handle() rpcHandle { return r.handle }

func (h rpcHandle) send(c command) {
	h.rpc.mu.Lock()
	h.rpc.queue = append(h.rpc.queue, c)
	h.rpc.mu.Unlock()
	h.waker.Wake()
}

func (h rpcHandle) cancelConsumer(channelID uint16, consumerTag string) {
	h.send(command{kind: cmdCancelConsumer, channelID: channelID, tag: consumerTag})
}

func (h rpcHandle) closeChannel(channelID uint16, replyCode uint16, replyText string) {
	h.send(command{kind: cmdCloseChannel, channelID: channelID, code: replyCode, text: replyText})
}

func (h rpcHandle) closeConnection(replyCode uint16, replyText string, classID, methodID uint16) {
	h.send(command{kind: cmdCloseConnection, code: replyCode, text: replyText, classID: classID, methodID: methodID})
}

func (h rpcHandle) sendConnectionCloseOk(err error) {
	h.send(command{kind: cmdSendConnectionCloseOk, err: err})
}

func (h rpcHandle) removeChannel(channelID uint16, err error) {
	h.send(command{kind: cmdRemoveChannel, channelID: channelID, err: err})
}

func (h rpcHandle) setConnectionClosing() {
	h.send(command{kind: cmdSetConnectionClosing})
}

func (h rpcHandle) setConnectionClosed(err error) {
	h.send(command{kind: cmdSetConnectionClosed, err: err})
}

func (h rpcHandle) setConnectionError(err error) {
	h.send(command{kind: cmdSetConnectionError, err: err})
}

// registerInternalFuture runs f on the executor, converting a failure
// into a connection error. Commands needing an AMQP round trip go
// through here so the loop itself never awaits.
func (h rpcHandle) registerInternalFuture(f func() error) {
	h.executor.Spawn(func() {
		if err := f(); err != nil {
			h.setConnectionError(asError(err))
		}
	})
}

// poll drains the bus to empty, applying each command against the
// channel registry.
func (r *internalRPC) poll(channels *Channels) {
	for {
		r.mu.Lock()
		queue := r.queue
		r.queue = nil
		r.mu.Unlock()
		if len(queue) == 0 {
			return
		}
		for _, c := range queue {
			r.run(c, channels)
		}
	}
}

func (r *internalRPC) run(c command, channels *Channels) {
	h := r.handle
	switch c.kind {
	case cmdCancelConsumer:
		if ch := channels.get(c.channelID); ch != nil {
			tag := c.tag
			h.registerInternalFuture(func() error {
				return ch.BasicCancel(context.Background(), tag)
			})
		}
	case cmdCloseChannel:
		if ch := channels.get(c.channelID); ch != nil {
			code, text := c.code, c.text
			h.registerInternalFuture(func() error {
				return ch.Close(context.Background(), code, text)
			})
		}
	case cmdCloseConnection:
		if ch0 := channels.get(0); ch0 != nil {
			code, text, classID, methodID := c.code, c.text, c.classID, c.methodID
			h.registerInternalFuture(func() error {
				return ch0.connectionClose(context.Background(), code, text, classID, methodID)
			})
		}
	case cmdSendConnectionCloseOk:
		if ch0 := channels.get(0); ch0 != nil {
			err := c.err
			h.registerInternalFuture(func() error {
				return ch0.connectionCloseOk(context.Background(), asError(err))
			})
		}
	case cmdRemoveChannel:
		channels.remove(c.channelID, asError(c.err))
	case cmdSetConnectionClosing:
		channels.setConnectionClosing()
	case cmdSetConnectionClosed:
		channels.setConnectionClosed(asError(c.err))
	case cmdSetConnectionError:
		channels.setConnectionError(asError(c.err))
	}
}
