package amqp091

import (
	"fmt"
)

// AMQP reply codes used by the engine.
const (
	ReplySuccess        = 200
	ReplyConnectionForced = 320
	ReplyFrameError     = 501
	ReplyChannelError   = 504
	ReplyUnexpectedFrame = 505
	ReplyInternalError  = 541
)

// ErrorKind classifies every error the engine produces.
type ErrorKind uint8

const (
	// KindInvalidConnectionState reports an operation attempted while the
	// connection is in the wrong phase.
	KindInvalidConnectionState ErrorKind = iota + 1
	// KindInvalidChannel reports a frame referencing an unknown channel or
	// a channel id above the negotiated maximum.
	KindInvalidChannel
	// KindChannelsLimitReached reports that every id in
	// [1, channel_max] is occupied.
	KindChannelsLimitReached
	// KindProtocol reports an AMQP level violation detected locally or by
	// the peer.
	KindProtocol
	// KindIO reports a transport failure.
	KindIO
	// KindMissedHeartbeat reports read silence beyond twice the heartbeat
	// interval.
	KindMissedHeartbeat
	// KindParse reports a frame that could not be decoded.
	KindParse
	// KindShutdown reports a clean loop termination.
	KindShutdown
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidConnectionState:
		return "invalid connection state"
	case KindInvalidChannel:
		return "invalid channel"
	case KindChannelsLimitReached:
		return "channels limit reached"
	case KindProtocol:
		return "protocol error"
	case KindIO:
		return "io error"
	case KindMissedHeartbeat:
		return "missed heartbeat"
	case KindParse:
		return "parse error"
	case KindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every operation in this package.
type Error struct {
	Kind ErrorKind

	// State is set for KindInvalidConnectionState.
	State ConnectionState
	// ChannelID is set for KindInvalidChannel.
	ChannelID uint16
	// Code and Text carry the AMQP reply for KindProtocol.
	Code uint16
	Text string

	cause error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindInvalidConnectionState:
		return fmt.Sprintf("amqp091: invalid connection state: %s", e.State)
	case KindInvalidChannel:
		return fmt.Sprintf("amqp091: invalid channel: %d", e.ChannelID)
	case KindProtocol:
		return fmt.Sprintf("amqp091: protocol error %d: %s", e.Code, e.Text)
	default:
		if e.cause != nil {
			return fmt.Sprintf("amqp091: %s: %s", e.Kind, e.cause)
		}
		if e.Text != "" {
			return fmt.Sprintf("amqp091: %s: %s", e.Kind, e.Text)
		}
		return "amqp091: " + e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error with the same Kind, letting callers write
// errors.Is(err, &Error{Kind: KindProtocol}). A target with a non-zero
// Code additionally requires the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == 0 || t.Code == e.Code)
}

func errInvalidConnectionState(state ConnectionState) *Error {
	return &Error{Kind: KindInvalidConnectionState, State: state}
}

func errInvalidChannel(id uint16) *Error {
	return &Error{Kind: KindInvalidChannel, ChannelID: id}
}

func errChannelsLimitReached() *Error {
	return &Error{Kind: KindChannelsLimitReached}
}

func errProtocol(code uint16, text string) *Error {
	return &Error{Kind: KindProtocol, Code: code, Text: text}
}

func errIO(cause error) *Error {
	return &Error{Kind: KindIO, cause: cause}
}

func errMissedHeartbeat() *Error {
	return &Error{Kind: KindMissedHeartbeat}
}

func errParse(cause error) *Error {
	return &Error{Kind: KindParse, cause: cause}
}

func errShutdown() *Error {
	return &Error{Kind: KindShutdown}
}

// asError normalizes any error into this package's Error type.
func asError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return errIO(err)
}
