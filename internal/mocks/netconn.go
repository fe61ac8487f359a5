// Package mocks provides an in-memory net.Conn that speaks AMQP 0-9-1
// through a responder function, for driving the connection engine in
// tests without a broker.
package mocks

import (
	"bytes"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/leporidae/amqp091/internal/buffer"
	"github.com/leporidae/amqp091/internal/frames"
)

// Responder inspects one frame written by the client and returns the raw
// bytes the server answers with. Returning nil bytes and nil error means
// no response.
type Responder func(frames.Frame) ([]byte, error)

// NetConn is an in-memory server endpoint. Frames written by the client
// are parsed and handed to the responder; its replies become readable.
type NetConn struct {
	responder Responder

	mu       sync.Mutex
	writeBuf []byte
	readBuf  bytes.Buffer
	readSig  chan struct{}
	closed   chan struct{}
	closeErr error
	once     sync.Once
}

// NewNetConn creates a mock connection driven by responder.
func NewNetConn(responder Responder) *NetConn {
	return &NetConn{
		responder: responder,
		readSig:   make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}
}

// SendFrame makes f readable by the client, unprompted.
func (n *NetConn) SendFrame(f frames.Frame) error {
	var buf buffer.Buffer
	if err := frames.Serialize(&buf, f); err != nil {
		return err
	}
	n.feed(buf.Bytes())
	return nil
}

// SendBytes makes raw bytes readable by the client.
func (n *NetConn) SendBytes(b []byte) {
	n.feed(b)
}

func (n *NetConn) feed(b []byte) {
	n.mu.Lock()
	n.readBuf.Write(b)
	n.mu.Unlock()
	select {
	case n.readSig <- struct{}{}:
	default:
	}
}

func (n *NetConn) Read(p []byte) (int, error) {
	for {
		n.mu.Lock()
		if n.readBuf.Len() > 0 {
			read, err := n.readBuf.Read(p)
			n.mu.Unlock()
			return read, err
		}
		n.mu.Unlock()
		select {
		case <-n.readSig:
		case <-n.closed:
			return 0, n.closeError()
		}
	}
}

func (n *NetConn) Write(p []byte) (int, error) {
	select {
	case <-n.closed:
		return 0, n.closeError()
	default:
	}
	n.mu.Lock()
	n.writeBuf = append(n.writeBuf, p...)
	n.mu.Unlock()
	return len(p), n.dispatch()
}

// dispatch parses complete frames out of the write buffer and feeds the
// responder's replies back into the read side.
func (n *NetConn) dispatch() error {
	for {
		n.mu.Lock()
		buf := n.writeBuf
		n.mu.Unlock()

		var (
			f        frames.Frame
			consumed int
			err      error
		)
		if len(buf) >= 8 && bytes.Equal(buf[:4], []byte("AMQP")) {
			f, consumed = &frames.ProtocolHeaderFrame{}, 8
		} else {
			f, consumed, err = frames.Parse(buf)
			if err == frames.ErrIncomplete {
				return nil
			}
			if err != nil {
				return fmt.Errorf("mock server: %w", err)
			}
		}

		n.mu.Lock()
		n.writeBuf = n.writeBuf[consumed:]
		n.mu.Unlock()

		resp, err := n.responder(f)
		if err != nil {
			return err
		}
		if len(resp) > 0 {
			n.feed(resp)
		}
	}
}

func (n *NetConn) closeError() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closeErr != nil {
		return n.closeErr
	}
	return net.ErrClosed
}

// Close terminates both directions.
func (n *NetConn) Close() error {
	n.once.Do(func() { close(n.closed) })
	return nil
}

func (n *NetConn) LocalAddr() net.Addr                { return mockAddr{} }
func (n *NetConn) RemoteAddr() net.Addr               { return mockAddr{} }
func (n *NetConn) SetDeadline(time.Time) error        { return nil }
func (n *NetConn) SetReadDeadline(time.Time) error    { return nil }
func (n *NetConn) SetWriteDeadline(time.Time) error   { return nil }

type mockAddr struct{}

func (mockAddr) Network() string { return "mock" }
func (mockAddr) String() string  { return "mock" }

// Canned responses for the standard handshake.

// Serialize renders f to wire bytes, panicking on failure; test helper.
func Serialize(f frames.Frame) []byte {
	var buf buffer.Buffer
	if err := frames.Serialize(&buf, f); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// ConnectionStart returns a server Start frame offering PLAIN auth.
func ConnectionStart() []byte {
	return ConnectionStartWith("PLAIN AMQPLAIN")
}

// ConnectionStartWith returns a server Start frame offering the given
// mechanism list.
func ConnectionStartWith(mechanisms string) []byte {
	return Serialize(&frames.MethodFrame{
		ChannelID: 0,
		Method: &frames.ConnectionStart{
			VersionMajor: 0,
			VersionMinor: 9,
			Mechanisms:   mechanisms,
			Locales:      "en_US",
		},
	})
}

// ConnectionSecure returns a server Secure challenge.
func ConnectionSecure(challenge string) []byte {
	return Serialize(&frames.MethodFrame{
		ChannelID: 0,
		Method:    &frames.ConnectionSecure{Challenge: challenge},
	})
}

// ConnectionTune returns a server Tune frame with the given limits.
func ConnectionTune(channelMax uint16, frameMax uint32, heartbeat uint16) []byte {
	return Serialize(&frames.MethodFrame{
		ChannelID: 0,
		Method: &frames.ConnectionTune{
			ChannelMax: channelMax,
			FrameMax:   frameMax,
			Heartbeat:  heartbeat,
		},
	})
}

// ConnectionOpenOk returns the final handshake reply.
func ConnectionOpenOk() []byte {
	return Serialize(&frames.MethodFrame{ChannelID: 0, Method: &frames.ConnectionOpenOk{}})
}

// ConnectionCloseOk acknowledges a client connection.close.
func ConnectionCloseOk() []byte {
	return Serialize(&frames.MethodFrame{ChannelID: 0, Method: &frames.ConnectionCloseOk{}})
}

// ChannelOpenOk acknowledges a channel.open on channel.
func ChannelOpenOk(channel uint16) []byte {
	return Serialize(&frames.MethodFrame{ChannelID: channel, Method: &frames.ChannelOpenOk{}})
}

// ChannelCloseOk acknowledges a channel.close on channel.
func ChannelCloseOk(channel uint16) []byte {
	return Serialize(&frames.MethodFrame{ChannelID: channel, Method: &frames.ChannelCloseOk{}})
}

// BasicConsumeOk acknowledges a basic.consume with tag.
func BasicConsumeOk(channel uint16, tag string) []byte {
	return Serialize(&frames.MethodFrame{ChannelID: channel, Method: &frames.BasicConsumeOk{ConsumerTag: tag}})
}
