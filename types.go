package amqp091

import (
	"github.com/leporidae/amqp091/internal/encoding"
	"github.com/leporidae/amqp091/internal/frames"
)

// Table is an AMQP field table, used for client properties and method
// arguments.
type Table = encoding.Table

// Decimal is the AMQP decimal field value.
type Decimal = encoding.Decimal

// BasicProperties is the property list carried by a content header.
type BasicProperties = frames.BasicProperties

// Delivery is one completed content assembly routed to a consumer.
type Delivery struct {
	ConsumerTag string
	DeliveryTag uint64
	Redelivered bool
	Exchange    string
	RoutingKey  string
	Properties  BasicProperties
	Body        []byte
}

// GetMessage is the result of a basic.get round trip. A nil *GetMessage
// means the queue was empty.
type GetMessage struct {
	Delivery
	MessageCount uint32
}

// ReturnedMessage is an undeliverable publish handed back by the broker.
type ReturnedMessage struct {
	ReplyCode  uint16
	ReplyText  string
	Exchange   string
	RoutingKey string
	Properties BasicProperties
	Body       []byte
}

// QueueInfo records a queue declared on a channel.
type QueueInfo struct {
	Name          string
	MessageCount  uint32
	ConsumerCount uint32
}
