package amqp091

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leporidae/amqp091/internal/frames"
)

func TestBasicGetEmptyResolvesNil(t *testing.T) {
	_, channels := newTestConnection(t, 2047)
	ch := openTestChannel(t, channels)

	waiter := replyWaiter{get: newPromise[*GetMessage]()}
	ch.h.frames.registerExpectedReply(&expectedReply{
		channelID: ch.id,
		key:       replyKey{frames.ClassBasic, 71},
		waiter:    waiter,
	})

	require.NoError(t, channels.HandleFrame(&frames.MethodFrame{
		ChannelID: ch.id,
		Method:    &frames.BasicGetEmpty{},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := waiter.get.await(ctx)
	require.NoError(t, err)
	require.Nil(t, msg)
}

func TestBasicGetOkDeliversContent(t *testing.T) {
	_, channels := newTestConnection(t, 2047)
	ch := openTestChannel(t, channels)

	waiter := replyWaiter{get: newPromise[*GetMessage]()}
	ch.h.frames.registerExpectedReply(&expectedReply{
		channelID: ch.id,
		key:       replyKey{frames.ClassBasic, 71},
		waiter:    waiter,
	})

	require.NoError(t, channels.HandleFrame(&frames.MethodFrame{
		ChannelID: ch.id,
		Method: &frames.BasicGetOk{
			DeliveryTag:  7,
			Exchange:     "logs",
			RoutingKey:   "info",
			MessageCount: 3,
		},
	}))
	require.NoError(t, channels.HandleFrame(headerOn(ch.id, 5)))
	require.NoError(t, channels.HandleFrame(&frames.BodyFrame{ChannelID: ch.id, Payload: []byte("hello")}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := waiter.get.await(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, uint64(7), msg.DeliveryTag)
	require.Equal(t, uint32(3), msg.MessageCount)
	require.Equal(t, []byte("hello"), msg.Body)
}

func TestReturnHandlerReceivesMessage(t *testing.T) {
	_, channels := newTestConnection(t, 2047)
	ch := openTestChannel(t, channels)

	got := make(chan ReturnedMessage, 1)
	ch.OnReturn(func(m ReturnedMessage) { got <- m })

	require.NoError(t, channels.HandleFrame(&frames.MethodFrame{
		ChannelID: ch.id,
		Method: &frames.BasicReturn{
			ReplyCode:  312,
			ReplyText:  "NO_ROUTE",
			Exchange:   "events",
			RoutingKey: "missing",
		},
	}))
	require.NoError(t, channels.HandleFrame(headerOn(ch.id, 2)))
	require.NoError(t, channels.HandleFrame(&frames.BodyFrame{ChannelID: ch.id, Payload: []byte("{}")}))

	select {
	case m := <-got:
		require.Equal(t, uint16(312), m.ReplyCode)
		require.Equal(t, "missing", m.RoutingKey)
		require.Equal(t, []byte("{}"), m.Body)
	case <-time.After(time.Second):
		t.Fatal("return handler not invoked")
	}
	require.Equal(t, ChannelConnected, ch.status.State())
}

func TestServerChannelCloseRemovesChannel(t *testing.T) {
	_, channels := newTestConnection(t, 2047)
	ch := openTestChannel(t, channels)
	consumer := newConsumer("ct", "q", ch.id, ch.h.rpc)
	ch.registerConsumer(consumer)

	require.NoError(t, channels.HandleFrame(&frames.MethodFrame{
		ChannelID: ch.id,
		Method:    &frames.ChannelClose{ReplyCode: 404, ReplyText: "NOT_FOUND"},
	}))
	require.Equal(t, ChannelError, ch.status.State())

	// the close-ok reply was enqueued for the wire
	f, ok := ch.h.frames.popNext()
	require.True(t, ok)
	mf, isMethod := f.frame.(*frames.MethodFrame)
	require.True(t, isMethod)
	require.IsType(t, &frames.ChannelCloseOk{}, mf.Method)

	// draining the command bus applies the removal
	rpc := newInternalRPCFromHandle(ch.h.rpc)
	rpc.poll(channels)
	require.Nil(t, channels.get(ch.id))

	// the consumer terminated with the server's error
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := consumer.Next(ctx)
	require.ErrorIs(t, err, &Error{Kind: KindProtocol, Code: 404})
}

// newInternalRPCFromHandle recovers the bus behind a handle for tests.
func newInternalRPCFromHandle(h rpcHandle) *internalRPC { return h.rpc }

func TestServerConsumerCancelClosesMailbox(t *testing.T) {
	_, channels := newTestConnection(t, 2047)
	ch := openTestChannel(t, channels)
	consumer := newConsumer("ct", "q", ch.id, ch.h.rpc)
	ch.registerConsumer(consumer)

	require.NoError(t, channels.HandleFrame(&frames.MethodFrame{
		ChannelID: ch.id,
		Method:    &frames.BasicCancel{ConsumerTag: "ct"},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := consumer.Next(ctx)
	require.ErrorIs(t, err, &Error{Kind: KindShutdown})
	require.Nil(t, ch.consumer("ct"))
}

func TestChannelFlowGatesLowPriorityLane(t *testing.T) {
	_, channels := newTestConnection(t, 2047)
	ch := openTestChannel(t, channels)
	fq := ch.h.frames

	require.NoError(t, channels.HandleFrame(&frames.MethodFrame{
		ChannelID: ch.id,
		Method:    &frames.ChannelFlow{Active: false},
	}))

	// flow-ok goes out, low-priority content is held
	f, ok := fq.popNext()
	require.True(t, ok)
	require.IsType(t, &frames.ChannelFlowOk{}, f.frame.(*frames.MethodFrame).Method)
	fq.pushLowPriority(bodyOn(ch.id, "held"))
	_, ok = fq.popNext()
	require.False(t, ok)

	require.NoError(t, channels.HandleFrame(&frames.MethodFrame{
		ChannelID: ch.id,
		Method:    &frames.ChannelFlow{Active: true},
	}))
	f, ok = fq.popNext()
	require.True(t, ok)
	require.IsType(t, &frames.ChannelFlowOk{}, f.frame.(*frames.MethodFrame).Method)
	f, ok = fq.popNext()
	require.True(t, ok)
	require.Equal(t, "held", string(f.frame.(*frames.BodyFrame).Payload))
}
