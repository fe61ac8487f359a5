package frames

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/leporidae/amqp091/internal/buffer"
	"github.com/leporidae/amqp091/internal/encoding"
)

func roundTrip(t *testing.T, f Frame) Frame {
	t.Helper()
	var buf buffer.Buffer
	require.NoError(t, Serialize(&buf, f))
	out, n, err := Parse(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, buf.Len(), n)
	return out
}

func TestMethodRoundTrip(t *testing.T) {
	in := &MethodFrame{
		ChannelID: 3,
		Method: &BasicDeliver{
			ConsumerTag: "ct",
			DeliveryTag: 1,
			Redelivered: true,
			Exchange:    "logs",
			RoutingKey:  "info",
		},
	}
	out := roundTrip(t, in)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("deliver mismatch (-want +got):\n%s", diff)
	}
}

func TestStartOkRoundTrip(t *testing.T) {
	in := &MethodFrame{
		ChannelID: 0,
		Method: &ConnectionStartOk{
			ClientProperties: encoding.Table{
				"product": "test",
				"capabilities": encoding.Table{
					"connection.blocked": true,
				},
			},
			Mechanism: "PLAIN",
			Response:  "\x00guest\x00guest",
			Locale:    "en_US",
		},
	}
	out := roundTrip(t, in)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("start-ok mismatch (-want +got):\n%s", diff)
	}
}

func TestCloseRoundTrip(t *testing.T) {
	in := &MethodFrame{
		ChannelID: 0,
		Method:    &ConnectionClose{ReplyCode: 320, ReplyText: "shutting down", ClassID: 60, MethodID: 40},
	}
	out := roundTrip(t, in)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("close mismatch (-want +got):\n%s", diff)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	mode := uint8(2)
	in := &HeaderFrame{
		ChannelID: 5,
		ClassID:   ClassBasic,
		BodySize:  1024,
		Properties: BasicProperties{
			ContentType:   "application/json",
			DeliveryMode:  &mode,
			CorrelationID: "abc-123",
			Headers:       encoding.Table{"retries": int32(2)},
		},
	}
	out := roundTrip(t, in)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
}

func TestBodyAndHeartbeat(t *testing.T) {
	body := roundTrip(t, &BodyFrame{ChannelID: 9, Payload: []byte("{}")})
	require.Equal(t, &BodyFrame{ChannelID: 9, Payload: []byte("{}")}, body)

	hb := roundTrip(t, &HeartbeatFrame{})
	require.IsType(t, &HeartbeatFrame{}, hb)
}

func TestParseIncomplete(t *testing.T) {
	var buf buffer.Buffer
	require.NoError(t, Serialize(&buf, &BodyFrame{ChannelID: 1, Payload: []byte("abcdef")}))
	full := buf.Bytes()

	for i := 0; i < len(full); i++ {
		_, _, err := Parse(full[:i])
		require.ErrorIs(t, err, ErrIncomplete, "prefix of %d bytes", i)
	}
	_, n, err := Parse(full)
	require.NoError(t, err)
	require.Equal(t, len(full), n)
}

func TestParseBadEndOctet(t *testing.T) {
	var buf buffer.Buffer
	require.NoError(t, Serialize(&buf, &HeartbeatFrame{}))
	raw := buf.Bytes()
	raw[len(raw)-1] = 0x00
	_, _, err := Parse(raw)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrIncomplete)
}

func TestBitPacking(t *testing.T) {
	in := &MethodFrame{
		ChannelID: 1,
		Method: &BasicConsume{
			Queue:       "q",
			ConsumerTag: "ct",
			NoAck:       true,
			Exclusive:   true,
			Arguments:   encoding.Table{},
		},
	}
	out := roundTrip(t, in)
	got, ok := out.(*MethodFrame).Method.(*BasicConsume)
	require.True(t, ok)
	require.False(t, got.NoLocal)
	require.True(t, got.NoAck)
	require.True(t, got.Exclusive)
	require.False(t, got.NoWait)
}
