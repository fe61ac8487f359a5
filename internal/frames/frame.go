// Package frames implements AMQP 0-9-1 framing and the method codec for
// the connection, channel and basic classes.
package frames

import (
	"errors"
	"fmt"

	"github.com/leporidae/amqp091/internal/buffer"
)

// Frame type octets per the AMQP 0-9-1 spec, section 4.2.3.
const (
	TypeMethod    = 1
	TypeHeader    = 2
	TypeBody      = 3
	TypeHeartbeat = 8
)

// FrameEnd terminates every frame on the wire.
const FrameEnd = 0xCE

// MinFrameSize is the smallest negotiable frame-max. The server MUST NOT
// propose less and content bodies are never fragmented below it.
const MinFrameSize = 4096

// ProtocolHeader is the 8-byte greeting sent before any frame.
var ProtocolHeader = []byte{'A', 'M', 'Q', 'P', 0, 0, 9, 1}

// ErrIncomplete reports that the buffer does not yet hold a full frame.
var ErrIncomplete = errors.New("frames: incomplete frame")

// Frame is the decoded representation of one wire frame.
type Frame interface {
	Channel() uint16
	frame()
}

// MethodFrame carries a single class method and its arguments.
type MethodFrame struct {
	ChannelID uint16
	Method    Method
}

func (f *MethodFrame) Channel() uint16 { return f.ChannelID }
func (f *MethodFrame) frame()          {}

func (f *MethodFrame) String() string {
	return fmt.Sprintf("Method{channel: %d, %v}", f.ChannelID, f.Method)
}

// HeaderFrame announces the properties and total body size of a content
// assembly.
type HeaderFrame struct {
	ChannelID  uint16
	ClassID    uint16
	BodySize   uint64
	Properties BasicProperties
}

func (f *HeaderFrame) Channel() uint16 { return f.ChannelID }
func (f *HeaderFrame) frame()          {}

func (f *HeaderFrame) String() string {
	return fmt.Sprintf("Header{channel: %d, class: %d, size: %d}", f.ChannelID, f.ClassID, f.BodySize)
}

// BodyFrame carries one fragment of a content body.
type BodyFrame struct {
	ChannelID uint16
	Payload   []byte
}

func (f *BodyFrame) Channel() uint16 { return f.ChannelID }
func (f *BodyFrame) frame()          {}

func (f *BodyFrame) String() string {
	return fmt.Sprintf("Body{channel: %d, size: %d}", f.ChannelID, len(f.Payload))
}

// HeartbeatFrame is the zero-payload keepalive. Only legal on channel 0.
type HeartbeatFrame struct{}

func (f *HeartbeatFrame) Channel() uint16 { return 0 }
func (f *HeartbeatFrame) frame()          {}

func (f *HeartbeatFrame) String() string { return "Heartbeat{}" }

// ProtocolHeaderFrame is the pseudo frame for the initial greeting. It is
// never parsed off the wire, only serialized.
type ProtocolHeaderFrame struct{}

func (f *ProtocolHeaderFrame) Channel() uint16 { return 0 }
func (f *ProtocolHeaderFrame) frame()          {}

func (f *ProtocolHeaderFrame) String() string { return "ProtocolHeader{0-9-1}" }

// Serialize encodes fr into buf in wire format.
func Serialize(buf *buffer.Buffer, fr Frame) error {
	switch fr := fr.(type) {
	case *ProtocolHeaderFrame:
		buf.Write(ProtocolHeader)
		return nil
	case *MethodFrame:
		var payload buffer.Buffer
		classID, methodID := fr.Method.ID()
		payload.WriteUint16(classID)
		payload.WriteUint16(methodID)
		if err := fr.Method.Marshal(&payload); err != nil {
			return err
		}
		writeRaw(buf, TypeMethod, fr.ChannelID, payload.Bytes())
		return nil
	case *HeaderFrame:
		var payload buffer.Buffer
		payload.WriteUint16(fr.ClassID)
		payload.WriteUint16(0) // weight, always zero
		payload.WriteUint64(fr.BodySize)
		if err := fr.Properties.Marshal(&payload); err != nil {
			return err
		}
		writeRaw(buf, TypeHeader, fr.ChannelID, payload.Bytes())
		return nil
	case *BodyFrame:
		writeRaw(buf, TypeBody, fr.ChannelID, fr.Payload)
		return nil
	case *HeartbeatFrame:
		writeRaw(buf, TypeHeartbeat, 0, nil)
		return nil
	default:
		return fmt.Errorf("frames: cannot serialize %T", fr)
	}
}

func writeRaw(buf *buffer.Buffer, typ uint8, channel uint16, payload []byte) {
	buf.WriteByte(typ)
	buf.WriteUint16(channel)
	buf.WriteUint32(uint32(len(payload)))
	buf.Write(payload)
	buf.WriteByte(FrameEnd)
}

// Parse decodes the first complete frame in b, returning it together with
// the number of bytes consumed. ErrIncomplete means more bytes are needed;
// any other error is a protocol violation.
func Parse(b []byte) (Frame, int, error) {
	const headerLen = 7
	if len(b) < headerLen {
		return nil, 0, ErrIncomplete
	}
	typ := b[0]
	channel := uint16(b[1])<<8 | uint16(b[2])
	size := uint32(b[3])<<24 | uint32(b[4])<<16 | uint32(b[5])<<8 | uint32(b[6])
	total := headerLen + int(size) + 1
	if len(b) < total {
		return nil, 0, ErrIncomplete
	}
	if b[total-1] != FrameEnd {
		return nil, 0, fmt.Errorf("frames: bad frame end octet 0x%02x", b[total-1])
	}
	payload := b[headerLen : headerLen+int(size)]

	switch typ {
	case TypeMethod:
		r := buffer.New(payload)
		classID, err := r.ReadUint16()
		if err != nil {
			return nil, 0, err
		}
		methodID, err := r.ReadUint16()
		if err != nil {
			return nil, 0, err
		}
		method, err := newMethod(classID, methodID)
		if err != nil {
			return nil, 0, err
		}
		if err := method.Unmarshal(r); err != nil {
			return nil, 0, err
		}
		return &MethodFrame{ChannelID: channel, Method: method}, total, nil
	case TypeHeader:
		r := buffer.New(payload)
		classID, err := r.ReadUint16()
		if err != nil {
			return nil, 0, err
		}
		if _, err := r.ReadUint16(); err != nil { // weight
			return nil, 0, err
		}
		bodySize, err := r.ReadUint64()
		if err != nil {
			return nil, 0, err
		}
		var props BasicProperties
		if err := props.Unmarshal(r); err != nil {
			return nil, 0, err
		}
		return &HeaderFrame{ChannelID: channel, ClassID: classID, BodySize: bodySize, Properties: props}, total, nil
	case TypeBody:
		return &BodyFrame{ChannelID: channel, Payload: append([]byte(nil), payload...)}, total, nil
	case TypeHeartbeat:
		if channel != 0 {
			return nil, 0, fmt.Errorf("frames: heartbeat on channel %d", channel)
		}
		return &HeartbeatFrame{}, total, nil
	default:
		return nil, 0, fmt.Errorf("frames: unknown frame type %d", typ)
	}
}
