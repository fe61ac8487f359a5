package amqp091

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/leporidae/amqp091/internal/frames"
)

// connHandles is the weak back-reference a channel keeps to its
// connection: the frame queue, the command bus, shared status and
// capabilities. Channels never transitively own the Connection.
type connHandles struct {
	status   *ConnectionStatus
	config   *Configuration
	frames   *frameQueue
	rpc      rpcHandle
	waker    *Waker
	executor Executor
	logger   logr.Logger
	metrics  *Metrics
	recovery RecoveryConfig
}

// Channel is one logical, bidirectional stream multiplexed on a
// connection. Channel 0 carries connection-scoped methods only.
type Channel struct {
	id uint16
	h  connHandles

	status *ChannelStatus

	mu            sync.Mutex
	consumers     map[string]*Consumer
	queues        map[string]QueueInfo
	returnHandler func(ReturnedMessage)
}

func newChannel(id uint16, h connHandles) *Channel {
	return &Channel{
		id:        id,
		h:         h,
		status:    newChannelStatus(),
		consumers: map[string]*Consumer{},
		queues:    map[string]QueueInfo{},
	}
}

// ID returns the channel id.
func (ch *Channel) ID() uint16 { return ch.id }

// Status returns the channel's status holder.
func (ch *Channel) Status() *ChannelStatus { return ch.status }

// OnReturn registers the handler invoked for basic.return deliveries.
// The handler runs on the executor, never on the I/O loop.
func (ch *Channel) OnReturn(handler func(ReturnedMessage)) {
	ch.mu.Lock()
	ch.returnHandler = handler
	ch.mu.Unlock()
}

// registerConsumer adds a consumer to the channel's registry.
func (ch *Channel) registerConsumer(c *Consumer) {
	ch.mu.Lock()
	ch.consumers[c.tag] = c
	ch.mu.Unlock()
}

// registerQueue records a declared queue.
func (ch *Channel) registerQueue(q QueueInfo) {
	ch.mu.Lock()
	ch.queues[q.Name] = q
	ch.mu.Unlock()
}

func (ch *Channel) consumer(tag string) *Consumer {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.consumers[tag]
}

func (ch *Channel) removeConsumer(tag string, err error) {
	ch.mu.Lock()
	c := ch.consumers[tag]
	delete(ch.consumers, tag)
	ch.mu.Unlock()
	if c != nil {
		c.close(err)
	}
}

// outbound plumbing

type frameLane uint8

const (
	laneNormal frameLane = iota
	laneLow
	lanePriority
	laneClose
)

// sendFrame enqueues f and wakes the I/O loop. The flush resolver, when
// supplied, completes once the frame is on the wire; the expected reply
// is registered on the channel's table at that same moment.
func (ch *Channel) sendFrame(f frames.Frame, lane frameLane, flush *promise[struct{}], reply *expectedReply) {
	start := time.Now()
	q := queuedFrame{frame: f, flush: flush, reply: reply}
	switch lane {
	case laneClose:
		ch.h.frames.pushCloseFrame(q)
	case lanePriority:
		ch.h.frames.pushPriority(q)
	case laneLow:
		ch.h.frames.pushLowPriority(q)
	default:
		ch.h.frames.push(q)
	}
	ch.h.metrics.observePush(time.Since(start))
	ch.h.waker.Wake()
}

// sendMethod enqueues a method frame with no reply expected.
func (ch *Channel) sendMethod(m frames.Method, lane frameLane) {
	ch.sendFrame(&frames.MethodFrame{ChannelID: ch.id, Method: m}, lane, nil, nil)
}

// call enqueues a method frame and awaits the reply method named by key.
func (ch *Channel) call(ctx context.Context, m frames.Method, key replyKey, lane frameLane) (frames.Method, error) {
	waiter := replyWaiter{method: newPromise[frames.Method]()}
	reply := &expectedReply{channelID: ch.id, key: key, waiter: waiter}
	ch.sendFrame(&frames.MethodFrame{ChannelID: ch.id, Method: m}, lane, nil, reply)
	return waiter.method.await(ctx)
}

// open performs the channel.open round trip. Used by CreateChannel and
// by automatic channel recovery.
func (ch *Channel) open(ctx context.Context) error {
	_, err := ch.call(ctx, &frames.ChannelOpen{}, replyKey{frames.ClassChannel, 11}, laneNormal)
	if err != nil {
		return err
	}
	ch.status.setState(ChannelConnected)
	return nil
}

// Close performs the channel.close round trip and removes the channel
// from the connection.
func (ch *Channel) Close(ctx context.Context, replyCode uint16, replyText string) error {
	if st := ch.status.State(); st != ChannelConnected && st != ChannelError {
		return errInvalidConnectionState(ch.h.status.State())
	}
	ch.status.setState(ChannelClosing)
	m := &frames.ChannelClose{ReplyCode: replyCode, ReplyText: replyText}
	if _, err := ch.call(ctx, m, replyKey{frames.ClassChannel, 41}, laneNormal); err != nil {
		return err
	}
	ch.status.setState(ChannelClosed)
	ch.h.rpc.removeChannel(ch.id, &Error{Kind: KindShutdown, Text: "channel closed"})
	return nil
}

// BasicConsume starts a consumer on queue. An empty tag asks for a
// generated one.
func (ch *Channel) BasicConsume(ctx context.Context, queue, tag string) (*Consumer, error) {
	if !ch.h.status.Connected() {
		return nil, errInvalidConnectionState(ch.h.status.State())
	}
	if tag == "" {
		tag = "ctag-" + uuid.NewString()
	}
	m := &frames.BasicConsume{Queue: queue, ConsumerTag: tag}
	reply, err := ch.call(ctx, m, replyKey{frames.ClassBasic, 21}, laneNormal)
	if err != nil {
		return nil, err
	}
	ok, isOk := reply.(*frames.BasicConsumeOk)
	if !isOk {
		return nil, errProtocol(ReplyUnexpectedFrame, fmt.Sprintf("unexpected consume reply %T", reply))
	}
	c := newConsumer(ok.ConsumerTag, queue, ch.id, ch.h.rpc)
	ch.registerConsumer(c)
	return c, nil
}

// BasicCancel stops the consumer identified by tag.
func (ch *Channel) BasicCancel(ctx context.Context, tag string) error {
	m := &frames.BasicCancel{ConsumerTag: tag}
	if _, err := ch.call(ctx, m, replyKey{frames.ClassBasic, 31}, laneNormal); err != nil {
		return err
	}
	ch.removeConsumer(tag, &Error{Kind: KindShutdown, Text: "consumer canceled"})
	return nil
}

// BasicPublish sends a message. The method and header frames travel the
// normal lane; body fragments travel the low-priority lane, sized to the
// negotiated frame max, and are deferred while the peer has blocked the
// connection. The call returns once the last fragment is flushed.
func (ch *Channel) BasicPublish(ctx context.Context, exchange, routingKey string, mandatory bool, props BasicProperties, body []byte) error {
	if !ch.h.status.Connected() {
		return errInvalidConnectionState(ch.h.status.State())
	}
	method := &frames.BasicPublish{Exchange: exchange, RoutingKey: routingKey, Mandatory: mandatory}
	ch.sendFrame(&frames.MethodFrame{ChannelID: ch.id, Method: method}, laneNormal, nil, nil)

	header := &frames.HeaderFrame{
		ChannelID:  ch.id,
		ClassID:    frames.ClassBasic,
		BodySize:   uint64(len(body)),
		Properties: props,
	}
	flushed := newPromise[struct{}]()
	if len(body) == 0 {
		ch.sendFrame(header, laneNormal, flushed, nil)
		_, err := flushed.await(ctx)
		return err
	}
	ch.sendFrame(header, laneNormal, nil, nil)

	// frame-max covers the whole frame; leave room for the 7-byte
	// header and the end octet.
	chunk := int(ch.h.config.FrameMax()) - 8
	for start := 0; start < len(body); start += chunk {
		end := start + chunk
		if end > len(body) {
			end = len(body)
		}
		var flush *promise[struct{}]
		if end == len(body) {
			flush = flushed
		}
		ch.sendFrame(&frames.BodyFrame{ChannelID: ch.id, Payload: body[start:end]}, laneLow, flush, nil)
	}
	_, err := flushed.await(ctx)
	return err
}

// BasicGet fetches a single message. A nil result means the queue was
// empty.
func (ch *Channel) BasicGet(ctx context.Context, queue string, noAck bool) (*GetMessage, error) {
	if !ch.h.status.Connected() {
		return nil, errInvalidConnectionState(ch.h.status.State())
	}
	waiter := replyWaiter{get: newPromise[*GetMessage]()}
	// get-ok and get-empty are both legal replies; the waiter registers
	// under the get-ok key and resolution consults both keys.
	reply := &expectedReply{channelID: ch.id, key: replyKey{frames.ClassBasic, 71}, waiter: waiter}
	m := &frames.BasicGet{Queue: queue, NoAck: noAck}
	ch.sendFrame(&frames.MethodFrame{ChannelID: ch.id, Method: m}, laneNormal, nil, reply)
	return waiter.get.await(ctx)
}

// BasicAck acknowledges a delivery. Fire and forget.
func (ch *Channel) BasicAck(deliveryTag uint64, multiple bool) error {
	if !ch.h.status.Connected() {
		return errInvalidConnectionState(ch.h.status.State())
	}
	ch.sendMethod(&frames.BasicAck{DeliveryTag: deliveryTag, Multiple: multiple}, laneNormal)
	return nil
}

// connection-scoped operations, legal on channel 0 only

func (ch *Channel) connectionClose(ctx context.Context, replyCode uint16, replyText string, classID, methodID uint16) error {
	m := &frames.ConnectionClose{ReplyCode: replyCode, ReplyText: replyText, ClassID: classID, MethodID: methodID}
	_, err := ch.call(ctx, m, replyKey{frames.ClassConnection, 51}, laneClose)
	return err
}

func (ch *Channel) connectionCloseOk(ctx context.Context, err *Error) error {
	flushed := newPromise[struct{}]()
	ch.sendFrame(&frames.MethodFrame{ChannelID: 0, Method: &frames.ConnectionCloseOk{}}, laneClose, flushed, nil)
	if _, werr := flushed.await(ctx); werr != nil {
		return werr
	}
	ch.h.rpc.setConnectionClosed(err)
	return nil
}

func (ch *Channel) connectionBlocked(reason string) {
	ch.sendMethod(&frames.ConnectionBlocked{Reason: reason}, lanePriority)
}

func (ch *Channel) connectionUnblocked() {
	ch.sendMethod(&frames.ConnectionUnblocked{}, lanePriority)
}

func (ch *Channel) connectionUpdateSecret(ctx context.Context, newSecret, reason string) error {
	m := &frames.ConnectionUpdateSecret{NewSecret: newSecret, Reason: reason}
	_, err := ch.call(ctx, m, replyKey{frames.ClassConnection, 71}, lanePriority)
	return err
}

// inbound dispatch

// handleFrame applies the receiver state machine's legality table to one
// inbound frame.
func (ch *Channel) handleFrame(f frames.Frame) error {
	switch fr := f.(type) {
	case *frames.MethodFrame:
		if ch.status.Receiver().Phase != ReceiverIdle {
			return ch.protocolViolation(errProtocol(ReplyUnexpectedFrame, "method frame while receiving content"))
		}
		return ch.handleMethod(fr.Method)
	case *frames.HeaderFrame:
		done, err := ch.status.receiveHeader(fr)
		if err != nil {
			return ch.protocolViolation(err)
		}
		if done {
			ch.dispatchAssembly(ch.status.takeAssembly())
		}
		return nil
	case *frames.BodyFrame:
		done, err := ch.status.receiveBody(fr.Payload)
		if err != nil {
			return ch.protocolViolation(err)
		}
		if done {
			ch.dispatchAssembly(ch.status.takeAssembly())
		}
		return nil
	default:
		return ch.protocolViolation(errProtocol(ReplyUnexpectedFrame, fmt.Sprintf("unexpected frame %T", f)))
	}
}

// protocolViolation applies the propagation policy: channel 0 violations
// are fatal to the connection; other channels transition to Error and
// are closed with UNEXPECTED_FRAME while the connection survives.
func (ch *Channel) protocolViolation(err error) error {
	e := asError(err)
	if ch.id == 0 {
		return e
	}
	ch.h.logger.V(1).Info("channel protocol violation", "channel", ch.id, "error", e.Error())
	ch.status.setState(ChannelError)
	ch.status.resetReceiver(e)
	ch.h.rpc.closeChannel(ch.id, e.Code, e.Text)
	return nil
}

func (ch *Channel) handleMethod(m frames.Method) error {
	classID, methodID := m.ID()
	ch.h.logger.V(2).Info("method received", "channel", ch.id, "class", classID, "method", methodID)

	var waiter replyWaiter
	var hasWaiter bool
	switch m.(type) {
	case *frames.BasicGetOk, *frames.BasicGetEmpty:
		// a basic.get registers its waiter under the get-ok key only, but
		// either reply may answer it; consult both keys.
		wOk, okOk := ch.h.frames.takeExpectedReply(ch.id, replyKey{frames.ClassBasic, 71})
		wEmpty, okEmpty := ch.h.frames.takeExpectedReply(ch.id, replyKey{frames.ClassBasic, 72})
		if okOk {
			waiter, hasWaiter = wOk, true
		} else if okEmpty {
			waiter, hasWaiter = wEmpty, true
		}
	default:
		waiter, hasWaiter = ch.h.frames.takeExpectedReply(ch.id, replyKey{classID, methodID})
	}

	switch m := m.(type) {
	case *frames.ConnectionStart:
		return ch.onConnectionStart(m)
	case *frames.ConnectionSecure:
		return ch.onConnectionSecure(m)
	case *frames.ConnectionTune:
		return ch.onConnectionTune(m)
	case *frames.ConnectionOpenOk:
		return ch.onConnectionOpenOk()
	case *frames.ConnectionClose:
		ch.onConnectionClose(m)
	case *frames.ConnectionCloseOk:
		ch.h.rpc.setConnectionClosed(errShutdown())
	case *frames.ConnectionBlocked:
		ch.h.status.setBlocked(true)
		ch.h.frames.setBlocked(true)
		ch.h.logger.Info("connection blocked by peer", "reason", m.Reason)
	case *frames.ConnectionUnblocked:
		ch.h.status.setBlocked(false)
		ch.h.frames.setBlocked(false)
		ch.h.waker.Wake()
	case *frames.ChannelFlow:
		// the peer pausing content delivery gates the low-priority lane
		ch.sendMethod(&frames.ChannelFlowOk{Active: m.Active}, lanePriority)
		ch.h.frames.setBlocked(!m.Active)
		if m.Active {
			ch.h.waker.Wake()
		}
	case *frames.ChannelClose:
		ch.onChannelClose(m)
	case *frames.ChannelCloseOk:
		ch.status.setState(ChannelClosed)
	case *frames.BasicDeliver:
		ch.status.willReceiveContent(frames.ClassBasic, deliveryCause{consumerTag: m.ConsumerTag})
		ch.status.setDeliver(m)
	case *frames.BasicGetOk:
		ch.status.willReceiveContent(frames.ClassBasic, deliveryCause{get: waiter.get})
		ch.status.setGetOk(m)
	case *frames.BasicGetEmpty:
		if waiter.get != nil {
			waiter.get.resolve(nil)
		}
	case *frames.BasicReturn:
		ch.status.willReceiveContent(frames.ClassBasic, deliveryCause{ret: m})
	case *frames.BasicCancel:
		// consumer cancel notification from the server
		ch.removeConsumer(m.ConsumerTag, &Error{Kind: KindShutdown, Text: "consumer canceled by server"})
	}

	// synchronous replies resolve their waiter with the method's
	// arguments; content-carrying replies resolve on assembly instead.
	if hasWaiter && waiter.method != nil {
		waiter.method.resolve(m)
	}
	return nil
}

// dispatchAssembly routes one completed content assembly: to the
// registered consumer, the basic.get resolver, or the return handler.
// Dispatch never blocks the I/O loop.
func (ch *Channel) dispatchAssembly(a contentAssembly) {
	switch {
	case a.cause.get != nil:
		msg := &GetMessage{
			Delivery: Delivery{
				Redelivered: a.getOk.Redelivered,
				DeliveryTag: a.getOk.DeliveryTag,
				Exchange:    a.getOk.Exchange,
				RoutingKey:  a.getOk.RoutingKey,
				Properties:  a.props,
				Body:        a.body,
			},
			MessageCount: a.getOk.MessageCount,
		}
		a.cause.get.resolve(msg)
	case a.cause.ret != nil:
		ch.mu.Lock()
		handler := ch.returnHandler
		ch.mu.Unlock()
		if handler == nil {
			ch.h.logger.V(1).Info("returned message dropped: no handler", "channel", ch.id)
			return
		}
		ret := ReturnedMessage{
			ReplyCode:  a.cause.ret.ReplyCode,
			ReplyText:  a.cause.ret.ReplyText,
			Exchange:   a.cause.ret.Exchange,
			RoutingKey: a.cause.ret.RoutingKey,
			Properties: a.props,
			Body:       a.body,
		}
		ch.h.executor.Spawn(func() { handler(ret) })
	default:
		c := ch.consumer(a.cause.consumerTag)
		if c == nil {
			ch.h.logger.V(1).Info("delivery dropped: unknown consumer", "channel", ch.id, "tag", a.cause.consumerTag)
			return
		}
		c.push(Delivery{
			ConsumerTag: a.deliver.ConsumerTag,
			DeliveryTag: a.deliver.DeliveryTag,
			Redelivered: a.deliver.Redelivered,
			Exchange:    a.deliver.Exchange,
			RoutingKey:  a.deliver.RoutingKey,
			Properties:  a.props,
			Body:        a.body,
		})
	}
}

// handshake steps, driven by the server's frames on channel 0

func (ch *Channel) onConnectionStart(m *frames.ConnectionStart) error {
	step := ch.h.status.connectionStep()
	if step == nil {
		return errProtocol(ReplyUnexpectedFrame, "connection.start outside handshake")
	}
	mechanism, err := pickMechanism(m.Mechanisms, step.mechanism)
	if err != nil {
		ch.failHandshake(asError(err))
		return nil
	}
	step.mechanism = mechanism
	response, err := step.credentials.response(mechanism)
	if err != nil {
		ch.failHandshake(asError(err))
		return nil
	}
	ch.sendMethod(&frames.ConnectionStartOk{
		ClientProperties: step.options.clientProperties(),
		Mechanism:        string(mechanism),
		Response:         response,
		Locale:           step.options.Locale,
	}, lanePriority)
	ch.h.status.setState(StateSentStartOk)
	return nil
}

func (ch *Channel) onConnectionSecure(m *frames.ConnectionSecure) error {
	step := ch.h.status.connectionStep()
	if step == nil {
		return errProtocol(ReplyUnexpectedFrame, "connection.secure outside handshake")
	}
	response, err := step.credentials.challengeResponse(step.mechanism, m.Challenge)
	if err != nil {
		ch.failHandshake(asError(err))
		return nil
	}
	ch.sendMethod(&frames.ConnectionSecureOk{Response: response}, lanePriority)
	return nil
}

func (ch *Channel) onConnectionTune(m *frames.ConnectionTune) error {
	if ch.h.status.connectionStep() == nil {
		return errProtocol(ReplyUnexpectedFrame, "connection.tune outside handshake")
	}
	ch.h.config.negotiate(m)
	ch.sendMethod(&frames.ConnectionTuneOk{
		ChannelMax: ch.h.config.ChannelMax(),
		FrameMax:   ch.h.config.FrameMax(),
		Heartbeat:  uint16(ch.h.config.Heartbeat() / time.Second),
	}, lanePriority)
	ch.h.status.setState(StateSentTuneOk)
	ch.sendMethod(&frames.ConnectionOpen{VirtualHost: ch.h.status.Vhost()}, lanePriority)
	ch.h.status.setState(StateSentOpen)
	return nil
}

func (ch *Channel) onConnectionOpenOk() error {
	step := ch.h.status.connectionStep()
	if step == nil {
		return errProtocol(ReplyUnexpectedFrame, "connection.open-ok outside handshake")
	}
	ch.h.status.setState(StateConnected)
	resolver := ch.h.status.takeConnectionResolver()
	if resolver != nil {
		resolver.resolve(step.conn)
	}
	ch.h.logger.Info("connection established",
		"vhost", ch.h.status.Vhost(),
		"frameMax", ch.h.config.FrameMax(),
		"channelMax", ch.h.config.ChannelMax(),
		"heartbeat", ch.h.config.Heartbeat())
	return nil
}

func (ch *Channel) onConnectionClose(m *frames.ConnectionClose) {
	err := errProtocol(m.ReplyCode, m.ReplyText)
	if m.ReplyCode == ReplySuccess {
		err = &Error{Kind: KindShutdown, Text: m.ReplyText}
	}
	ch.h.rpc.setConnectionClosing()
	ch.h.rpc.sendConnectionCloseOk(err)
}

func (ch *Channel) onChannelClose(m *frames.ChannelClose) {
	ch.sendMethod(&frames.ChannelCloseOk{}, lanePriority)
	err := errProtocol(m.ReplyCode, m.ReplyText)
	ch.h.logger.V(1).Info("channel closed by server", "channel", ch.id, "code", m.ReplyCode, "text", m.ReplyText)

	if ch.h.recovery.AutoRecoverChannels {
		ch.status.setState(ChannelInitial)
		ch.status.resetReceiver(err)
		ch.mu.Lock()
		consumers := ch.consumers
		ch.consumers = map[string]*Consumer{}
		ch.mu.Unlock()
		for _, c := range consumers {
			c.close(err)
		}
		ch.h.frames.cancelChannel(ch.id, err)
		ch.h.rpc.registerInternalFuture(func() error {
			policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
			return backoff.Retry(func() error {
				if !ch.h.status.Connected() {
					return backoff.Permanent(errInvalidConnectionState(ch.h.status.State()))
				}
				return ch.open(context.Background())
			}, policy)
		})
		return
	}

	ch.status.setState(ChannelError)
	ch.h.rpc.removeChannel(ch.id, err)
}

// failHandshake aborts a connect in flight.
func (ch *Channel) failHandshake(err *Error) {
	ch.h.logger.Error(err, "handshake failed")
	ch.h.rpc.setConnectionError(err)
}

// setClosed finalizes the channel: consumers terminate, queued frames
// and pending replies fail, any in-flight content assembly is dropped.
func (ch *Channel) setClosed(err *Error) {
	if state := ch.status.State(); state != ChannelError {
		ch.status.setState(ChannelClosed)
	}
	ch.status.resetReceiver(err)
	ch.mu.Lock()
	consumers := ch.consumers
	ch.consumers = map[string]*Consumer{}
	ch.mu.Unlock()
	for _, c := range consumers {
		c.close(err)
	}
	ch.h.frames.cancelChannel(ch.id, err)
}
