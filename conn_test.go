package amqp091

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leporidae/amqp091/internal/frames"
)

// newTestConnection bootstraps the engine to a connected state without
// any I/O: frames are fed straight into the channel registry.
func newTestConnection(t *testing.T, channelMax uint16) (*Connection, *Channels) {
	t.Helper()
	options := ConnOptions{}.withDefaults()
	socket := newSocketState()
	waker := socket.handle()
	rpc := newInternalRPC(waker, options.Executor)
	fq := newFrameQueue(nil)
	config := newConfiguration()
	status := newConnectionStatus()
	handles := connHandles{
		status:   status,
		config:   config,
		frames:   fq,
		rpc:      rpc.Handle(),
		waker:    waker,
		executor: options.Executor,
		logger:   options.Logger,
	}
	channels := newChannels(handles)
	channels.createZero()
	status.setState(StateConnected)
	config.SetChannelMax(channelMax)
	return &Connection{configuration: config, status: status, channels: channels}, channels
}

// openTestChannel registers a channel as connected without the open
// round trip.
func openTestChannel(t *testing.T, channels *Channels) *Channel {
	t.Helper()
	ch, err := channels.create()
	require.NoError(t, err)
	ch.status.setState(ChannelConnected)
	return ch
}

func deliverOn(channel uint16, consumerTag, routingKey string) frames.Frame {
	return &frames.MethodFrame{
		ChannelID: channel,
		Method: &frames.BasicDeliver{
			ConsumerTag: consumerTag,
			DeliveryTag: 1,
			Exchange:    "",
			RoutingKey:  routingKey,
		},
	}
}

func headerOn(channel uint16, bodySize uint64) frames.Frame {
	return &frames.HeaderFrame{ChannelID: channel, ClassID: frames.ClassBasic, BodySize: bodySize}
}

func TestChannelLimit(t *testing.T) {
	conn, channels := newTestConnection(t, 0xFFFF)

	seen := map[uint16]bool{}
	for i := 0; i < 0xFFFF; i++ {
		ch, err := channels.create()
		require.NoError(t, err)
		require.NotZero(t, ch.id)
		require.False(t, seen[ch.id], "duplicate channel id %d", ch.id)
		seen[ch.id] = true
	}

	_, err := channels.create()
	require.ErrorIs(t, err, &Error{Kind: KindChannelsLimitReached})
	_ = conn
}

func TestChannelIDReuseAfterRemove(t *testing.T) {
	_, channels := newTestConnection(t, 2)
	a, err := channels.create()
	require.NoError(t, err)
	b, err := channels.create()
	require.NoError(t, err)
	_, err = channels.create()
	require.ErrorIs(t, err, &Error{Kind: KindChannelsLimitReached})

	channels.remove(a.id, errShutdown())
	c, err := channels.create()
	require.NoError(t, err)
	require.Equal(t, a.id, c.id)
	require.NotEqual(t, b.id, c.id)
}

func TestCreateChannelBeforeConnected(t *testing.T) {
	conn, _ := newTestConnection(t, 2047)
	conn.status.setState(StateConnecting)

	_, err := conn.CreateChannel(context.Background())
	require.ErrorIs(t, err, &Error{Kind: KindInvalidConnectionState})
	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, StateConnecting, e.State)
}

func TestBasicConsumeSmallPayload(t *testing.T) {
	_, channels := newTestConnection(t, 2047)
	ch := openTestChannel(t, channels)

	consumer := newConsumer("consumer-tag", "consumed", ch.id, ch.h.rpc)
	ch.registerConsumer(consumer)
	ch.registerQueue(QueueInfo{Name: "consumed"})

	require.NoError(t, channels.HandleFrame(deliverOn(ch.id, "consumer-tag", "consumed")))
	require.Equal(t, ReceiverState{
		Phase:   ReceiverWillReceiveContent,
		ClassID: frames.ClassBasic,
	}, ch.status.Receiver())

	require.NoError(t, channels.HandleFrame(headerOn(ch.id, 2)))
	require.Equal(t, ReceiverState{
		Phase:     ReceiverReceivingContent,
		ClassID:   frames.ClassBasic,
		Remaining: 2,
	}, ch.status.Receiver())

	require.NoError(t, channels.HandleFrame(&frames.BodyFrame{ChannelID: ch.id, Payload: []byte("{}")}))
	require.Equal(t, ChannelConnected, ch.status.State())
	require.Equal(t, ReceiverIdle, ch.status.Receiver().Phase)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d, err := consumer.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "consumer-tag", d.ConsumerTag)
	require.Equal(t, "consumed", d.RoutingKey)
	require.Equal(t, []byte("{}"), d.Body)
}

func TestBasicConsumeEmptyPayload(t *testing.T) {
	_, channels := newTestConnection(t, 2047)
	ch := openTestChannel(t, channels)

	consumer := newConsumer("consumer-tag", "consumed", ch.id, ch.h.rpc)
	ch.registerConsumer(consumer)
	ch.registerQueue(QueueInfo{Name: "consumed"})

	require.NoError(t, channels.HandleFrame(deliverOn(ch.id, "consumer-tag", "consumed")))
	require.NoError(t, channels.HandleFrame(headerOn(ch.id, 0)))
	require.Equal(t, ChannelConnected, ch.status.State())
	require.Equal(t, ReceiverIdle, ch.status.Receiver().Phase)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d, err := consumer.Next(ctx)
	require.NoError(t, err)
	require.Empty(t, d.Body)
}

func TestReceiverRejectsHeaderWhileIdle(t *testing.T) {
	_, channels := newTestConnection(t, 2047)
	ch := openTestChannel(t, channels)

	require.NoError(t, channels.HandleFrame(headerOn(ch.id, 2)))
	require.Equal(t, ChannelError, ch.status.State())
}

func TestReceiverRejectsBodyWhileIdle(t *testing.T) {
	_, channels := newTestConnection(t, 2047)
	ch := openTestChannel(t, channels)

	require.NoError(t, channels.HandleFrame(&frames.BodyFrame{ChannelID: ch.id, Payload: []byte("x")}))
	require.Equal(t, ChannelError, ch.status.State())
}

func TestReceiverRejectsMethodWhileReceivingContent(t *testing.T) {
	_, channels := newTestConnection(t, 2047)
	ch := openTestChannel(t, channels)
	consumer := newConsumer("ct", "q", ch.id, ch.h.rpc)
	ch.registerConsumer(consumer)

	require.NoError(t, channels.HandleFrame(deliverOn(ch.id, "ct", "q")))
	require.NoError(t, channels.HandleFrame(headerOn(ch.id, 4)))
	require.NoError(t, channels.HandleFrame(deliverOn(ch.id, "ct", "q")))
	require.Equal(t, ChannelError, ch.status.State())
}

func TestReceiverRejectsHeaderClassMismatch(t *testing.T) {
	_, channels := newTestConnection(t, 2047)
	ch := openTestChannel(t, channels)
	consumer := newConsumer("ct", "q", ch.id, ch.h.rpc)
	ch.registerConsumer(consumer)

	require.NoError(t, channels.HandleFrame(deliverOn(ch.id, "ct", "q")))
	require.NoError(t, channels.HandleFrame(&frames.HeaderFrame{
		ChannelID: ch.id,
		ClassID:   frames.ClassChannel,
		BodySize:  2,
	}))
	require.Equal(t, ChannelError, ch.status.State())
}

func TestReceiverRejectsBodyOverflow(t *testing.T) {
	_, channels := newTestConnection(t, 2047)
	ch := openTestChannel(t, channels)
	consumer := newConsumer("ct", "q", ch.id, ch.h.rpc)
	ch.registerConsumer(consumer)

	require.NoError(t, channels.HandleFrame(deliverOn(ch.id, "ct", "q")))
	require.NoError(t, channels.HandleFrame(headerOn(ch.id, 2)))
	require.NoError(t, channels.HandleFrame(&frames.BodyFrame{ChannelID: ch.id, Payload: []byte("toolarge")}))
	require.Equal(t, ChannelError, ch.status.State())
}

func TestUnknownChannelFrameFails(t *testing.T) {
	_, channels := newTestConnection(t, 2047)
	err := channels.HandleFrame(deliverOn(42, "ct", "q"))
	require.ErrorIs(t, err, &Error{Kind: KindInvalidChannel})
}

func TestUnknownChannelFrameDroppedWhileClosing(t *testing.T) {
	conn, channels := newTestConnection(t, 2047)
	conn.status.setState(StateClosing)
	require.NoError(t, channels.HandleFrame(deliverOn(42, "ct", "q")))
}

func TestTerminalStateFailsAllResolvers(t *testing.T) {
	_, channels := newTestConnection(t, 2047)
	ch := openTestChannel(t, channels)
	fq := ch.h.frames

	flush := newPromise[struct{}]()
	waiter := replyWaiter{method: newPromise[frames.Method]()}
	fq.push(queuedFrame{
		frame: &frames.MethodFrame{ChannelID: ch.id, Method: &frames.ChannelOpen{}},
		flush: flush,
		reply: &expectedReply{channelID: ch.id, key: replyKey{frames.ClassChannel, 11}, waiter: waiter},
	})
	registered := replyWaiter{get: newPromise[*GetMessage]()}
	fq.registerExpectedReply(&expectedReply{
		channelID: ch.id,
		key:       replyKey{frames.ClassBasic, 71},
		waiter:    registered,
	})

	channels.setConnectionError(errMissedHeartbeat())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := flush.await(ctx)
	require.ErrorIs(t, err, &Error{Kind: KindMissedHeartbeat})
	_, err = waiter.method.await(ctx)
	require.ErrorIs(t, err, &Error{Kind: KindMissedHeartbeat})
	_, err = registered.get.await(ctx)
	require.ErrorIs(t, err, &Error{Kind: KindMissedHeartbeat})
	require.Equal(t, StateError, channels.h.status.State())
}

func TestErrorHandlerInvokedOnTerminalError(t *testing.T) {
	_, channels := newTestConnection(t, 2047)
	got := make(chan *Error, 1)
	channels.setErrorHandler(func(err *Error) { got <- err })

	channels.setConnectionError(errMissedHeartbeat())

	select {
	case err := <-got:
		require.Equal(t, KindMissedHeartbeat, err.Kind)
	case <-time.After(time.Second):
		t.Fatal("error handler not invoked")
	}
}
