package frames

import (
	"time"

	"github.com/leporidae/amqp091/internal/buffer"
	"github.com/leporidae/amqp091/internal/encoding"
)

// Property flag bits for the basic class content header, highest bit
// first per the grammar in section 4.2.6.1.
const (
	flagContentType     = 0x8000
	flagContentEncoding = 0x4000
	flagHeaders         = 0x2000
	flagDeliveryMode    = 0x1000
	flagPriority        = 0x0800
	flagCorrelationID   = 0x0400
	flagReplyTo         = 0x0200
	flagExpiration      = 0x0100
	flagMessageID       = 0x0080
	flagTimestamp       = 0x0040
	flagType            = 0x0020
	flagUserID          = 0x0010
	flagAppID           = 0x0008
	flagClusterID       = 0x0004
)

// BasicProperties is the property list of a basic class content header.
// Nil pointer and empty values are omitted from the wire encoding.
type BasicProperties struct {
	ContentType     string
	ContentEncoding string
	Headers         encoding.Table
	DeliveryMode    *uint8 // 1 transient, 2 persistent
	Priority        *uint8
	CorrelationID   string
	ReplyTo         string
	Expiration      string
	MessageID       string
	Timestamp       *time.Time
	Type            string
	UserID          string
	AppID           string
	ClusterID       string
}

func (p *BasicProperties) flags() uint16 {
	var f uint16
	if p.ContentType != "" {
		f |= flagContentType
	}
	if p.ContentEncoding != "" {
		f |= flagContentEncoding
	}
	if len(p.Headers) > 0 {
		f |= flagHeaders
	}
	if p.DeliveryMode != nil {
		f |= flagDeliveryMode
	}
	if p.Priority != nil {
		f |= flagPriority
	}
	if p.CorrelationID != "" {
		f |= flagCorrelationID
	}
	if p.ReplyTo != "" {
		f |= flagReplyTo
	}
	if p.Expiration != "" {
		f |= flagExpiration
	}
	if p.MessageID != "" {
		f |= flagMessageID
	}
	if p.Timestamp != nil {
		f |= flagTimestamp
	}
	if p.Type != "" {
		f |= flagType
	}
	if p.UserID != "" {
		f |= flagUserID
	}
	if p.AppID != "" {
		f |= flagAppID
	}
	if p.ClusterID != "" {
		f |= flagClusterID
	}
	return f
}

// Marshal writes the property flags followed by the present properties.
func (p *BasicProperties) Marshal(wr *buffer.Buffer) error {
	flags := p.flags()
	wr.WriteUint16(flags)

	if flags&flagContentType != 0 {
		if err := encoding.WriteShortString(wr, p.ContentType); err != nil {
			return err
		}
	}
	if flags&flagContentEncoding != 0 {
		if err := encoding.WriteShortString(wr, p.ContentEncoding); err != nil {
			return err
		}
	}
	if flags&flagHeaders != 0 {
		if err := encoding.WriteTable(wr, p.Headers); err != nil {
			return err
		}
	}
	if flags&flagDeliveryMode != 0 {
		wr.WriteByte(*p.DeliveryMode)
	}
	if flags&flagPriority != 0 {
		wr.WriteByte(*p.Priority)
	}
	if flags&flagCorrelationID != 0 {
		if err := encoding.WriteShortString(wr, p.CorrelationID); err != nil {
			return err
		}
	}
	if flags&flagReplyTo != 0 {
		if err := encoding.WriteShortString(wr, p.ReplyTo); err != nil {
			return err
		}
	}
	if flags&flagExpiration != 0 {
		if err := encoding.WriteShortString(wr, p.Expiration); err != nil {
			return err
		}
	}
	if flags&flagMessageID != 0 {
		if err := encoding.WriteShortString(wr, p.MessageID); err != nil {
			return err
		}
	}
	if flags&flagTimestamp != 0 {
		wr.WriteUint64(uint64(p.Timestamp.Unix()))
	}
	if flags&flagType != 0 {
		if err := encoding.WriteShortString(wr, p.Type); err != nil {
			return err
		}
	}
	if flags&flagUserID != 0 {
		if err := encoding.WriteShortString(wr, p.UserID); err != nil {
			return err
		}
	}
	if flags&flagAppID != 0 {
		if err := encoding.WriteShortString(wr, p.AppID); err != nil {
			return err
		}
	}
	if flags&flagClusterID != 0 {
		if err := encoding.WriteShortString(wr, p.ClusterID); err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal reads the property flags and the properties they announce.
func (p *BasicProperties) Unmarshal(r *buffer.Buffer) error {
	flags, err := r.ReadUint16()
	if err != nil {
		return err
	}

	if flags&flagContentType != 0 {
		if p.ContentType, err = encoding.ReadShortString(r); err != nil {
			return err
		}
	}
	if flags&flagContentEncoding != 0 {
		if p.ContentEncoding, err = encoding.ReadShortString(r); err != nil {
			return err
		}
	}
	if flags&flagHeaders != 0 {
		if p.Headers, err = encoding.ReadTable(r); err != nil {
			return err
		}
	}
	if flags&flagDeliveryMode != 0 {
		mode, err := r.ReadByte()
		if err != nil {
			return err
		}
		p.DeliveryMode = &mode
	}
	if flags&flagPriority != 0 {
		prio, err := r.ReadByte()
		if err != nil {
			return err
		}
		p.Priority = &prio
	}
	if flags&flagCorrelationID != 0 {
		if p.CorrelationID, err = encoding.ReadShortString(r); err != nil {
			return err
		}
	}
	if flags&flagReplyTo != 0 {
		if p.ReplyTo, err = encoding.ReadShortString(r); err != nil {
			return err
		}
	}
	if flags&flagExpiration != 0 {
		if p.Expiration, err = encoding.ReadShortString(r); err != nil {
			return err
		}
	}
	if flags&flagMessageID != 0 {
		if p.MessageID, err = encoding.ReadShortString(r); err != nil {
			return err
		}
	}
	if flags&flagTimestamp != 0 {
		secs, err := r.ReadUint64()
		if err != nil {
			return err
		}
		ts := time.Unix(int64(secs), 0)
		p.Timestamp = &ts
	}
	if flags&flagType != 0 {
		if p.Type, err = encoding.ReadShortString(r); err != nil {
			return err
		}
	}
	if flags&flagUserID != 0 {
		if p.UserID, err = encoding.ReadShortString(r); err != nil {
			return err
		}
	}
	if flags&flagAppID != 0 {
		if p.AppID, err = encoding.ReadShortString(r); err != nil {
			return err
		}
	}
	if flags&flagClusterID != 0 {
		if p.ClusterID, err = encoding.ReadShortString(r); err != nil {
			return err
		}
	}
	return nil
}
