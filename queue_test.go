package amqp091

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leporidae/amqp091/internal/frames"
)

func methodOn(channel uint16, m frames.Method) queuedFrame {
	return queuedFrame{frame: &frames.MethodFrame{ChannelID: channel, Method: m}}
}

func bodyOn(channel uint16, payload string) queuedFrame {
	return queuedFrame{frame: &frames.BodyFrame{ChannelID: channel, Payload: []byte(payload)}}
}

func popChannel(t *testing.T, fq *frameQueue) uint16 {
	t.Helper()
	f, ok := fq.popNext()
	require.True(t, ok)
	return f.frame.Channel()
}

func TestFrameQueueFIFOPerChannel(t *testing.T) {
	fq := newFrameQueue(nil)

	a := bodyOn(7, "A")
	b := bodyOn(7, "B")
	fq.push(a)
	fq.push(bodyOn(3, "X"))
	fq.push(b)
	fq.push(bodyOn(5, "Y"))

	var got []string
	for {
		f, ok := fq.popNext()
		if !ok {
			break
		}
		if f.frame.Channel() == 7 {
			got = append(got, string(f.frame.(*frames.BodyFrame).Payload))
		}
	}
	require.Equal(t, []string{"A", "B"}, got)
}

func TestFrameQueueRoundRobin(t *testing.T) {
	fq := newFrameQueue(nil)
	for _, ch := range []uint16{1, 1, 2, 2, 3, 3} {
		fq.push(bodyOn(ch, "x"))
	}

	first := []uint16{popChannel(t, fq), popChannel(t, fq), popChannel(t, fq)}
	require.ElementsMatch(t, []uint16{1, 2, 3}, first)
	second := []uint16{popChannel(t, fq), popChannel(t, fq), popChannel(t, fq)}
	require.ElementsMatch(t, []uint16{1, 2, 3}, second)
}

func TestFrameQueueLanePrecedence(t *testing.T) {
	fq := newFrameQueue(nil)
	fq.pushLowPriority(bodyOn(1, "low"))
	fq.push(methodOn(1, &frames.BasicAck{DeliveryTag: 1}))
	fq.pushPriority(queuedFrame{frame: &frames.HeartbeatFrame{}})
	fq.pushRetry(bodyOn(2, "retry"))

	f, _ := fq.popNext()
	require.IsType(t, &frames.BodyFrame{}, f.frame)
	require.Equal(t, uint16(2), f.frame.Channel())
	f, _ = fq.popNext()
	require.IsType(t, &frames.HeartbeatFrame{}, f.frame)
	f, _ = fq.popNext()
	require.IsType(t, &frames.MethodFrame{}, f.frame)
	f, _ = fq.popNext()
	require.Equal(t, "low", string(f.frame.(*frames.BodyFrame).Payload))
}

func TestFrameQueueCloseFrameJumpsQueue(t *testing.T) {
	fq := newFrameQueue(nil)
	fq.pushPriority(queuedFrame{frame: &frames.HeartbeatFrame{}})
	closeFrame := methodOn(0, &frames.ConnectionClose{ReplyCode: 200})
	fq.pushCloseFrame(closeFrame)

	f, ok := fq.popNext()
	require.True(t, ok)
	mf, isMethod := f.frame.(*frames.MethodFrame)
	require.True(t, isMethod)
	require.IsType(t, &frames.ConnectionClose{}, mf.Method)
}

func TestFrameQueueBlockedHoldsLowPriority(t *testing.T) {
	fq := newFrameQueue(nil)
	fq.pushLowPriority(bodyOn(1, "held"))
	fq.setBlocked(true)

	_, ok := fq.popNext()
	require.False(t, ok)
	require.True(t, fq.hasPending())
	require.False(t, fq.hasWritable())

	fq.setBlocked(false)
	f, ok := fq.popNext()
	require.True(t, ok)
	require.Equal(t, "held", string(f.frame.(*frames.BodyFrame).Payload))
}

func TestFrameQueueCancelChannelCompletesResolvers(t *testing.T) {
	fq := newFrameQueue(nil)

	flush := newPromise[struct{}]()
	waiter := replyWaiter{method: newPromise[frames.Method]()}
	fq.push(queuedFrame{
		frame: &frames.MethodFrame{ChannelID: 4, Method: &frames.ChannelOpen{}},
		flush: flush,
		reply: &expectedReply{channelID: 4, key: replyKey{frames.ClassChannel, 11}, waiter: waiter},
	})
	registered := replyWaiter{method: newPromise[frames.Method]()}
	fq.registerExpectedReply(&expectedReply{
		channelID: 4,
		key:       replyKey{frames.ClassBasic, 21},
		waiter:    registered,
	})

	cause := errProtocol(ReplyChannelError, "gone")
	fq.cancelChannel(4, cause)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := flush.await(ctx)
	require.ErrorIs(t, err, &Error{Kind: KindProtocol})
	_, err = waiter.method.await(ctx)
	require.ErrorIs(t, err, &Error{Kind: KindProtocol})
	_, err = registered.method.await(ctx)
	require.ErrorIs(t, err, &Error{Kind: KindProtocol})

	_, ok := fq.popNext()
	require.False(t, ok)
	_, ok = fq.takeExpectedReply(4, replyKey{frames.ClassBasic, 21})
	require.False(t, ok)
}

func TestFrameQueueReplyFIFO(t *testing.T) {
	fq := newFrameQueue(nil)
	first := replyWaiter{method: newPromise[frames.Method]()}
	second := replyWaiter{method: newPromise[frames.Method]()}
	key := replyKey{frames.ClassBasic, 21}
	fq.registerExpectedReply(&expectedReply{channelID: 1, key: key, waiter: first})
	fq.registerExpectedReply(&expectedReply{channelID: 1, key: key, waiter: second})

	w, ok := fq.takeExpectedReply(1, key)
	require.True(t, ok)
	require.Same(t, first.method, w.method)
	w, ok = fq.takeExpectedReply(1, key)
	require.True(t, ok)
	require.Same(t, second.method, w.method)
	_, ok = fq.takeExpectedReply(1, key)
	require.False(t, ok)
}
