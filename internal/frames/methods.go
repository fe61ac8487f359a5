package frames

import (
	"fmt"

	"github.com/leporidae/amqp091/internal/buffer"
	"github.com/leporidae/amqp091/internal/encoding"
)

// Class ids for the classes the engine speaks.
const (
	ClassConnection = 10
	ClassChannel    = 20
	ClassBasic      = 60
)

// Method is one AMQP class method with its arguments.
type Method interface {
	// ID returns the wire class and method ids.
	ID() (classID, methodID uint16)
	// HasContent reports whether a content header and body follow this
	// method on the wire.
	HasContent() bool
	Marshal(*buffer.Buffer) error
	Unmarshal(*buffer.Buffer) error
}

// newMethod constructs the zero value for the given class/method pair.
func newMethod(classID, methodID uint16) (Method, error) {
	switch classID {
	case ClassConnection:
		switch methodID {
		case 10:
			return &ConnectionStart{}, nil
		case 11:
			return &ConnectionStartOk{}, nil
		case 20:
			return &ConnectionSecure{}, nil
		case 21:
			return &ConnectionSecureOk{}, nil
		case 30:
			return &ConnectionTune{}, nil
		case 31:
			return &ConnectionTuneOk{}, nil
		case 40:
			return &ConnectionOpen{}, nil
		case 41:
			return &ConnectionOpenOk{}, nil
		case 50:
			return &ConnectionClose{}, nil
		case 51:
			return &ConnectionCloseOk{}, nil
		case 60:
			return &ConnectionBlocked{}, nil
		case 61:
			return &ConnectionUnblocked{}, nil
		case 70:
			return &ConnectionUpdateSecret{}, nil
		case 71:
			return &ConnectionUpdateSecretOk{}, nil
		}
	case ClassChannel:
		switch methodID {
		case 10:
			return &ChannelOpen{}, nil
		case 11:
			return &ChannelOpenOk{}, nil
		case 20:
			return &ChannelFlow{}, nil
		case 21:
			return &ChannelFlowOk{}, nil
		case 40:
			return &ChannelClose{}, nil
		case 41:
			return &ChannelCloseOk{}, nil
		}
	case ClassBasic:
		switch methodID {
		case 20:
			return &BasicConsume{}, nil
		case 21:
			return &BasicConsumeOk{}, nil
		case 30:
			return &BasicCancel{}, nil
		case 31:
			return &BasicCancelOk{}, nil
		case 40:
			return &BasicPublish{}, nil
		case 50:
			return &BasicReturn{}, nil
		case 60:
			return &BasicDeliver{}, nil
		case 70:
			return &BasicGet{}, nil
		case 71:
			return &BasicGetOk{}, nil
		case 72:
			return &BasicGetEmpty{}, nil
		case 80:
			return &BasicAck{}, nil
		}
	}
	return nil, fmt.Errorf("frames: unknown method %d.%d", classID, methodID)
}

// bit-packed flags share octets on the wire; readBits/writeBits keep the
// packing in one place.

func writeBits(wr *buffer.Buffer, bits ...bool) {
	var octet byte
	for i, b := range bits {
		if b {
			octet |= 1 << uint(i)
		}
	}
	wr.WriteByte(octet)
}

func readBits(r *buffer.Buffer, bits ...*bool) error {
	octet, err := r.ReadByte()
	if err != nil {
		return err
	}
	for i, b := range bits {
		*b = octet&(1<<uint(i)) != 0
	}
	return nil
}

/*
connection.start

	Server greeting: protocol version, server properties, the space
	separated list of SASL mechanisms and locales.
*/
type ConnectionStart struct {
	VersionMajor     uint8
	VersionMinor     uint8
	ServerProperties encoding.Table
	Mechanisms       string
	Locales          string
}

func (m *ConnectionStart) ID() (uint16, uint16) { return ClassConnection, 10 }
func (m *ConnectionStart) HasContent() bool     { return false }

func (m *ConnectionStart) Marshal(wr *buffer.Buffer) error {
	wr.WriteByte(m.VersionMajor)
	wr.WriteByte(m.VersionMinor)
	if err := encoding.WriteTable(wr, m.ServerProperties); err != nil {
		return err
	}
	if err := encoding.WriteLongString(wr, []byte(m.Mechanisms)); err != nil {
		return err
	}
	return encoding.WriteLongString(wr, []byte(m.Locales))
}

func (m *ConnectionStart) Unmarshal(r *buffer.Buffer) error {
	var err error
	if m.VersionMajor, err = r.ReadByte(); err != nil {
		return err
	}
	if m.VersionMinor, err = r.ReadByte(); err != nil {
		return err
	}
	if m.ServerProperties, err = encoding.ReadTable(r); err != nil {
		return err
	}
	mechanisms, err := encoding.ReadLongString(r)
	if err != nil {
		return err
	}
	m.Mechanisms = string(mechanisms)
	locales, err := encoding.ReadLongString(r)
	if err != nil {
		return err
	}
	m.Locales = string(locales)
	return nil
}

// connection.start-ok
type ConnectionStartOk struct {
	ClientProperties encoding.Table
	Mechanism        string
	Response         string
	Locale           string
}

func (m *ConnectionStartOk) ID() (uint16, uint16) { return ClassConnection, 11 }
func (m *ConnectionStartOk) HasContent() bool     { return false }

func (m *ConnectionStartOk) Marshal(wr *buffer.Buffer) error {
	if err := encoding.WriteTable(wr, m.ClientProperties); err != nil {
		return err
	}
	if err := encoding.WriteShortString(wr, m.Mechanism); err != nil {
		return err
	}
	if err := encoding.WriteLongString(wr, []byte(m.Response)); err != nil {
		return err
	}
	return encoding.WriteShortString(wr, m.Locale)
}

func (m *ConnectionStartOk) Unmarshal(r *buffer.Buffer) error {
	var err error
	if m.ClientProperties, err = encoding.ReadTable(r); err != nil {
		return err
	}
	if m.Mechanism, err = encoding.ReadShortString(r); err != nil {
		return err
	}
	response, err := encoding.ReadLongString(r)
	if err != nil {
		return err
	}
	m.Response = string(response)
	m.Locale, err = encoding.ReadShortString(r)
	return err
}

// connection.secure
type ConnectionSecure struct {
	Challenge string
}

func (m *ConnectionSecure) ID() (uint16, uint16) { return ClassConnection, 20 }
func (m *ConnectionSecure) HasContent() bool     { return false }

func (m *ConnectionSecure) Marshal(wr *buffer.Buffer) error {
	return encoding.WriteLongString(wr, []byte(m.Challenge))
}

func (m *ConnectionSecure) Unmarshal(r *buffer.Buffer) error {
	challenge, err := encoding.ReadLongString(r)
	m.Challenge = string(challenge)
	return err
}

// connection.secure-ok
type ConnectionSecureOk struct {
	Response string
}

func (m *ConnectionSecureOk) ID() (uint16, uint16) { return ClassConnection, 21 }
func (m *ConnectionSecureOk) HasContent() bool     { return false }

func (m *ConnectionSecureOk) Marshal(wr *buffer.Buffer) error {
	return encoding.WriteLongString(wr, []byte(m.Response))
}

func (m *ConnectionSecureOk) Unmarshal(r *buffer.Buffer) error {
	response, err := encoding.ReadLongString(r)
	m.Response = string(response)
	return err
}

/*
connection.tune

	Server's proposed limits. Zero means "no limit, pick yours".
*/
type ConnectionTune struct {
	ChannelMax uint16
	FrameMax   uint32
	Heartbeat  uint16
}

func (m *ConnectionTune) ID() (uint16, uint16) { return ClassConnection, 30 }
func (m *ConnectionTune) HasContent() bool     { return false }

func (m *ConnectionTune) Marshal(wr *buffer.Buffer) error {
	wr.WriteUint16(m.ChannelMax)
	wr.WriteUint32(m.FrameMax)
	wr.WriteUint16(m.Heartbeat)
	return nil
}

func (m *ConnectionTune) Unmarshal(r *buffer.Buffer) error {
	var err error
	if m.ChannelMax, err = r.ReadUint16(); err != nil {
		return err
	}
	if m.FrameMax, err = r.ReadUint32(); err != nil {
		return err
	}
	m.Heartbeat, err = r.ReadUint16()
	return err
}

// connection.tune-ok
type ConnectionTuneOk struct {
	ChannelMax uint16
	FrameMax   uint32
	Heartbeat  uint16
}

func (m *ConnectionTuneOk) ID() (uint16, uint16) { return ClassConnection, 31 }
func (m *ConnectionTuneOk) HasContent() bool     { return false }

func (m *ConnectionTuneOk) Marshal(wr *buffer.Buffer) error {
	wr.WriteUint16(m.ChannelMax)
	wr.WriteUint32(m.FrameMax)
	wr.WriteUint16(m.Heartbeat)
	return nil
}

func (m *ConnectionTuneOk) Unmarshal(r *buffer.Buffer) error {
	var err error
	if m.ChannelMax, err = r.ReadUint16(); err != nil {
		return err
	}
	if m.FrameMax, err = r.ReadUint32(); err != nil {
		return err
	}
	m.Heartbeat, err = r.ReadUint16()
	return err
}

// connection.open
type ConnectionOpen struct {
	VirtualHost string
	reserved1   string
	reserved2   bool
}

func (m *ConnectionOpen) ID() (uint16, uint16) { return ClassConnection, 40 }
func (m *ConnectionOpen) HasContent() bool     { return false }

func (m *ConnectionOpen) Marshal(wr *buffer.Buffer) error {
	if err := encoding.WriteShortString(wr, m.VirtualHost); err != nil {
		return err
	}
	if err := encoding.WriteShortString(wr, m.reserved1); err != nil {
		return err
	}
	writeBits(wr, m.reserved2)
	return nil
}

func (m *ConnectionOpen) Unmarshal(r *buffer.Buffer) error {
	var err error
	if m.VirtualHost, err = encoding.ReadShortString(r); err != nil {
		return err
	}
	if m.reserved1, err = encoding.ReadShortString(r); err != nil {
		return err
	}
	return readBits(r, &m.reserved2)
}

// connection.open-ok
type ConnectionOpenOk struct {
	reserved1 string
}

func (m *ConnectionOpenOk) ID() (uint16, uint16) { return ClassConnection, 41 }
func (m *ConnectionOpenOk) HasContent() bool     { return false }

func (m *ConnectionOpenOk) Marshal(wr *buffer.Buffer) error {
	return encoding.WriteShortString(wr, m.reserved1)
}

func (m *ConnectionOpenOk) Unmarshal(r *buffer.Buffer) error {
	var err error
	m.reserved1, err = encoding.ReadShortString(r)
	return err
}

// connection.close
type ConnectionClose struct {
	ReplyCode uint16
	ReplyText string
	ClassID   uint16
	MethodID  uint16
}

func (m *ConnectionClose) ID() (uint16, uint16) { return ClassConnection, 50 }
func (m *ConnectionClose) HasContent() bool     { return false }

func (m *ConnectionClose) Marshal(wr *buffer.Buffer) error {
	wr.WriteUint16(m.ReplyCode)
	if err := encoding.WriteShortString(wr, m.ReplyText); err != nil {
		return err
	}
	wr.WriteUint16(m.ClassID)
	wr.WriteUint16(m.MethodID)
	return nil
}

func (m *ConnectionClose) Unmarshal(r *buffer.Buffer) error {
	var err error
	if m.ReplyCode, err = r.ReadUint16(); err != nil {
		return err
	}
	if m.ReplyText, err = encoding.ReadShortString(r); err != nil {
		return err
	}
	if m.ClassID, err = r.ReadUint16(); err != nil {
		return err
	}
	m.MethodID, err = r.ReadUint16()
	return err
}

// connection.close-ok
type ConnectionCloseOk struct{}

func (m *ConnectionCloseOk) ID() (uint16, uint16)          { return ClassConnection, 51 }
func (m *ConnectionCloseOk) HasContent() bool              { return false }
func (m *ConnectionCloseOk) Marshal(*buffer.Buffer) error  { return nil }
func (m *ConnectionCloseOk) Unmarshal(*buffer.Buffer) error { return nil }

// connection.blocked (RabbitMQ extension)
type ConnectionBlocked struct {
	Reason string
}

func (m *ConnectionBlocked) ID() (uint16, uint16) { return ClassConnection, 60 }
func (m *ConnectionBlocked) HasContent() bool     { return false }

func (m *ConnectionBlocked) Marshal(wr *buffer.Buffer) error {
	return encoding.WriteShortString(wr, m.Reason)
}

func (m *ConnectionBlocked) Unmarshal(r *buffer.Buffer) error {
	var err error
	m.Reason, err = encoding.ReadShortString(r)
	return err
}

// connection.unblocked (RabbitMQ extension)
type ConnectionUnblocked struct{}

func (m *ConnectionUnblocked) ID() (uint16, uint16)          { return ClassConnection, 61 }
func (m *ConnectionUnblocked) HasContent() bool              { return false }
func (m *ConnectionUnblocked) Marshal(*buffer.Buffer) error  { return nil }
func (m *ConnectionUnblocked) Unmarshal(*buffer.Buffer) error { return nil }

// connection.update-secret (RabbitMQ extension)
type ConnectionUpdateSecret struct {
	NewSecret string
	Reason    string
}

func (m *ConnectionUpdateSecret) ID() (uint16, uint16) { return ClassConnection, 70 }
func (m *ConnectionUpdateSecret) HasContent() bool     { return false }

func (m *ConnectionUpdateSecret) Marshal(wr *buffer.Buffer) error {
	if err := encoding.WriteLongString(wr, []byte(m.NewSecret)); err != nil {
		return err
	}
	return encoding.WriteShortString(wr, m.Reason)
}

func (m *ConnectionUpdateSecret) Unmarshal(r *buffer.Buffer) error {
	secret, err := encoding.ReadLongString(r)
	if err != nil {
		return err
	}
	m.NewSecret = string(secret)
	m.Reason, err = encoding.ReadShortString(r)
	return err
}

// connection.update-secret-ok
type ConnectionUpdateSecretOk struct{}

func (m *ConnectionUpdateSecretOk) ID() (uint16, uint16)          { return ClassConnection, 71 }
func (m *ConnectionUpdateSecretOk) HasContent() bool              { return false }
func (m *ConnectionUpdateSecretOk) Marshal(*buffer.Buffer) error  { return nil }
func (m *ConnectionUpdateSecretOk) Unmarshal(*buffer.Buffer) error { return nil }

// channel.open
type ChannelOpen struct {
	reserved1 string
}

func (m *ChannelOpen) ID() (uint16, uint16) { return ClassChannel, 10 }
func (m *ChannelOpen) HasContent() bool     { return false }

func (m *ChannelOpen) Marshal(wr *buffer.Buffer) error {
	return encoding.WriteShortString(wr, m.reserved1)
}

func (m *ChannelOpen) Unmarshal(r *buffer.Buffer) error {
	var err error
	m.reserved1, err = encoding.ReadShortString(r)
	return err
}

// channel.open-ok
type ChannelOpenOk struct {
	reserved1 string
}

func (m *ChannelOpenOk) ID() (uint16, uint16) { return ClassChannel, 11 }
func (m *ChannelOpenOk) HasContent() bool     { return false }

func (m *ChannelOpenOk) Marshal(wr *buffer.Buffer) error {
	return encoding.WriteLongString(wr, []byte(m.reserved1))
}

func (m *ChannelOpenOk) Unmarshal(r *buffer.Buffer) error {
	reserved, err := encoding.ReadLongString(r)
	m.reserved1 = string(reserved)
	return err
}

// channel.flow
type ChannelFlow struct {
	Active bool
}

func (m *ChannelFlow) ID() (uint16, uint16) { return ClassChannel, 20 }
func (m *ChannelFlow) HasContent() bool     { return false }

func (m *ChannelFlow) Marshal(wr *buffer.Buffer) error {
	writeBits(wr, m.Active)
	return nil
}

func (m *ChannelFlow) Unmarshal(r *buffer.Buffer) error {
	return readBits(r, &m.Active)
}

// channel.flow-ok
type ChannelFlowOk struct {
	Active bool
}

func (m *ChannelFlowOk) ID() (uint16, uint16) { return ClassChannel, 21 }
func (m *ChannelFlowOk) HasContent() bool     { return false }

func (m *ChannelFlowOk) Marshal(wr *buffer.Buffer) error {
	writeBits(wr, m.Active)
	return nil
}

func (m *ChannelFlowOk) Unmarshal(r *buffer.Buffer) error {
	return readBits(r, &m.Active)
}

// channel.close
type ChannelClose struct {
	ReplyCode uint16
	ReplyText string
	ClassID   uint16
	MethodID  uint16
}

func (m *ChannelClose) ID() (uint16, uint16) { return ClassChannel, 40 }
func (m *ChannelClose) HasContent() bool     { return false }

func (m *ChannelClose) Marshal(wr *buffer.Buffer) error {
	wr.WriteUint16(m.ReplyCode)
	if err := encoding.WriteShortString(wr, m.ReplyText); err != nil {
		return err
	}
	wr.WriteUint16(m.ClassID)
	wr.WriteUint16(m.MethodID)
	return nil
}

func (m *ChannelClose) Unmarshal(r *buffer.Buffer) error {
	var err error
	if m.ReplyCode, err = r.ReadUint16(); err != nil {
		return err
	}
	if m.ReplyText, err = encoding.ReadShortString(r); err != nil {
		return err
	}
	if m.ClassID, err = r.ReadUint16(); err != nil {
		return err
	}
	m.MethodID, err = r.ReadUint16()
	return err
}

// channel.close-ok
type ChannelCloseOk struct{}

func (m *ChannelCloseOk) ID() (uint16, uint16)          { return ClassChannel, 41 }
func (m *ChannelCloseOk) HasContent() bool              { return false }
func (m *ChannelCloseOk) Marshal(*buffer.Buffer) error  { return nil }
func (m *ChannelCloseOk) Unmarshal(*buffer.Buffer) error { return nil }

// basic.consume
type BasicConsume struct {
	reserved1   uint16
	Queue       string
	ConsumerTag string
	NoLocal     bool
	NoAck       bool
	Exclusive   bool
	NoWait      bool
	Arguments   encoding.Table
}

func (m *BasicConsume) ID() (uint16, uint16) { return ClassBasic, 20 }
func (m *BasicConsume) HasContent() bool     { return false }

func (m *BasicConsume) Marshal(wr *buffer.Buffer) error {
	wr.WriteUint16(m.reserved1)
	if err := encoding.WriteShortString(wr, m.Queue); err != nil {
		return err
	}
	if err := encoding.WriteShortString(wr, m.ConsumerTag); err != nil {
		return err
	}
	writeBits(wr, m.NoLocal, m.NoAck, m.Exclusive, m.NoWait)
	return encoding.WriteTable(wr, m.Arguments)
}

func (m *BasicConsume) Unmarshal(r *buffer.Buffer) error {
	var err error
	if m.reserved1, err = r.ReadUint16(); err != nil {
		return err
	}
	if m.Queue, err = encoding.ReadShortString(r); err != nil {
		return err
	}
	if m.ConsumerTag, err = encoding.ReadShortString(r); err != nil {
		return err
	}
	if err = readBits(r, &m.NoLocal, &m.NoAck, &m.Exclusive, &m.NoWait); err != nil {
		return err
	}
	m.Arguments, err = encoding.ReadTable(r)
	return err
}

// basic.consume-ok
type BasicConsumeOk struct {
	ConsumerTag string
}

func (m *BasicConsumeOk) ID() (uint16, uint16) { return ClassBasic, 21 }
func (m *BasicConsumeOk) HasContent() bool     { return false }

func (m *BasicConsumeOk) Marshal(wr *buffer.Buffer) error {
	return encoding.WriteShortString(wr, m.ConsumerTag)
}

func (m *BasicConsumeOk) Unmarshal(r *buffer.Buffer) error {
	var err error
	m.ConsumerTag, err = encoding.ReadShortString(r)
	return err
}

// basic.cancel
type BasicCancel struct {
	ConsumerTag string
	NoWait      bool
}

func (m *BasicCancel) ID() (uint16, uint16) { return ClassBasic, 30 }
func (m *BasicCancel) HasContent() bool     { return false }

func (m *BasicCancel) Marshal(wr *buffer.Buffer) error {
	if err := encoding.WriteShortString(wr, m.ConsumerTag); err != nil {
		return err
	}
	writeBits(wr, m.NoWait)
	return nil
}

func (m *BasicCancel) Unmarshal(r *buffer.Buffer) error {
	var err error
	if m.ConsumerTag, err = encoding.ReadShortString(r); err != nil {
		return err
	}
	return readBits(r, &m.NoWait)
}

// basic.cancel-ok
type BasicCancelOk struct {
	ConsumerTag string
}

func (m *BasicCancelOk) ID() (uint16, uint16) { return ClassBasic, 31 }
func (m *BasicCancelOk) HasContent() bool     { return false }

func (m *BasicCancelOk) Marshal(wr *buffer.Buffer) error {
	return encoding.WriteShortString(wr, m.ConsumerTag)
}

func (m *BasicCancelOk) Unmarshal(r *buffer.Buffer) error {
	var err error
	m.ConsumerTag, err = encoding.ReadShortString(r)
	return err
}

// basic.publish
type BasicPublish struct {
	reserved1  uint16
	Exchange   string
	RoutingKey string
	Mandatory  bool
	Immediate  bool
}

func (m *BasicPublish) ID() (uint16, uint16) { return ClassBasic, 40 }
func (m *BasicPublish) HasContent() bool     { return true }

func (m *BasicPublish) Marshal(wr *buffer.Buffer) error {
	wr.WriteUint16(m.reserved1)
	if err := encoding.WriteShortString(wr, m.Exchange); err != nil {
		return err
	}
	if err := encoding.WriteShortString(wr, m.RoutingKey); err != nil {
		return err
	}
	writeBits(wr, m.Mandatory, m.Immediate)
	return nil
}

func (m *BasicPublish) Unmarshal(r *buffer.Buffer) error {
	var err error
	if m.reserved1, err = r.ReadUint16(); err != nil {
		return err
	}
	if m.Exchange, err = encoding.ReadShortString(r); err != nil {
		return err
	}
	if m.RoutingKey, err = encoding.ReadShortString(r); err != nil {
		return err
	}
	return readBits(r, &m.Mandatory, &m.Immediate)
}

// basic.return
type BasicReturn struct {
	ReplyCode  uint16
	ReplyText  string
	Exchange   string
	RoutingKey string
}

func (m *BasicReturn) ID() (uint16, uint16) { return ClassBasic, 50 }
func (m *BasicReturn) HasContent() bool     { return true }

func (m *BasicReturn) Marshal(wr *buffer.Buffer) error {
	wr.WriteUint16(m.ReplyCode)
	if err := encoding.WriteShortString(wr, m.ReplyText); err != nil {
		return err
	}
	if err := encoding.WriteShortString(wr, m.Exchange); err != nil {
		return err
	}
	return encoding.WriteShortString(wr, m.RoutingKey)
}

func (m *BasicReturn) Unmarshal(r *buffer.Buffer) error {
	var err error
	if m.ReplyCode, err = r.ReadUint16(); err != nil {
		return err
	}
	if m.ReplyText, err = encoding.ReadShortString(r); err != nil {
		return err
	}
	if m.Exchange, err = encoding.ReadShortString(r); err != nil {
		return err
	}
	m.RoutingKey, err = encoding.ReadShortString(r)
	return err
}

// basic.deliver
type BasicDeliver struct {
	ConsumerTag string
	DeliveryTag uint64
	Redelivered bool
	Exchange    string
	RoutingKey  string
}

func (m *BasicDeliver) ID() (uint16, uint16) { return ClassBasic, 60 }
func (m *BasicDeliver) HasContent() bool     { return true }

func (m *BasicDeliver) Marshal(wr *buffer.Buffer) error {
	if err := encoding.WriteShortString(wr, m.ConsumerTag); err != nil {
		return err
	}
	wr.WriteUint64(m.DeliveryTag)
	writeBits(wr, m.Redelivered)
	if err := encoding.WriteShortString(wr, m.Exchange); err != nil {
		return err
	}
	return encoding.WriteShortString(wr, m.RoutingKey)
}

func (m *BasicDeliver) Unmarshal(r *buffer.Buffer) error {
	var err error
	if m.ConsumerTag, err = encoding.ReadShortString(r); err != nil {
		return err
	}
	if m.DeliveryTag, err = r.ReadUint64(); err != nil {
		return err
	}
	if err = readBits(r, &m.Redelivered); err != nil {
		return err
	}
	if m.Exchange, err = encoding.ReadShortString(r); err != nil {
		return err
	}
	m.RoutingKey, err = encoding.ReadShortString(r)
	return err
}

// basic.get
type BasicGet struct {
	reserved1 uint16
	Queue     string
	NoAck     bool
}

func (m *BasicGet) ID() (uint16, uint16) { return ClassBasic, 70 }
func (m *BasicGet) HasContent() bool     { return false }

func (m *BasicGet) Marshal(wr *buffer.Buffer) error {
	wr.WriteUint16(m.reserved1)
	if err := encoding.WriteShortString(wr, m.Queue); err != nil {
		return err
	}
	writeBits(wr, m.NoAck)
	return nil
}

func (m *BasicGet) Unmarshal(r *buffer.Buffer) error {
	var err error
	if m.reserved1, err = r.ReadUint16(); err != nil {
		return err
	}
	if m.Queue, err = encoding.ReadShortString(r); err != nil {
		return err
	}
	return readBits(r, &m.NoAck)
}

// basic.get-ok
type BasicGetOk struct {
	DeliveryTag  uint64
	Redelivered  bool
	Exchange     string
	RoutingKey   string
	MessageCount uint32
}

func (m *BasicGetOk) ID() (uint16, uint16) { return ClassBasic, 71 }
func (m *BasicGetOk) HasContent() bool     { return true }

func (m *BasicGetOk) Marshal(wr *buffer.Buffer) error {
	wr.WriteUint64(m.DeliveryTag)
	writeBits(wr, m.Redelivered)
	if err := encoding.WriteShortString(wr, m.Exchange); err != nil {
		return err
	}
	if err := encoding.WriteShortString(wr, m.RoutingKey); err != nil {
		return err
	}
	wr.WriteUint32(m.MessageCount)
	return nil
}

func (m *BasicGetOk) Unmarshal(r *buffer.Buffer) error {
	var err error
	if m.DeliveryTag, err = r.ReadUint64(); err != nil {
		return err
	}
	if err = readBits(r, &m.Redelivered); err != nil {
		return err
	}
	if m.Exchange, err = encoding.ReadShortString(r); err != nil {
		return err
	}
	if m.RoutingKey, err = encoding.ReadShortString(r); err != nil {
		return err
	}
	m.MessageCount, err = r.ReadUint32()
	return err
}

// basic.get-empty
type BasicGetEmpty struct {
	reserved1 string
}

func (m *BasicGetEmpty) ID() (uint16, uint16) { return ClassBasic, 72 }
func (m *BasicGetEmpty) HasContent() bool     { return false }

func (m *BasicGetEmpty) Marshal(wr *buffer.Buffer) error {
	return encoding.WriteShortString(wr, m.reserved1)
}

func (m *BasicGetEmpty) Unmarshal(r *buffer.Buffer) error {
	var err error
	m.reserved1, err = encoding.ReadShortString(r)
	return err
}

// basic.ack
type BasicAck struct {
	DeliveryTag uint64
	Multiple    bool
}

func (m *BasicAck) ID() (uint16, uint16) { return ClassBasic, 80 }
func (m *BasicAck) HasContent() bool     { return false }

func (m *BasicAck) Marshal(wr *buffer.Buffer) error {
	wr.WriteUint64(m.DeliveryTag)
	writeBits(wr, m.Multiple)
	return nil
}

func (m *BasicAck) Unmarshal(r *buffer.Buffer) error {
	var err error
	if m.DeliveryTag, err = r.ReadUint64(); err != nil {
		return err
	}
	return readBits(r, &m.Multiple)
}
