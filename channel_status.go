package amqp091

import (
	"sync"

	"github.com/leporidae/amqp091/internal/frames"
)

// ChannelState is the sender-side lifecycle of a channel.
type ChannelState uint8

const (
	ChannelInitial ChannelState = iota
	ChannelConnected
	ChannelClosing
	ChannelClosed
	ChannelError
)

func (s ChannelState) String() string {
	switch s {
	case ChannelInitial:
		return "initial"
	case ChannelConnected:
		return "connected"
	case ChannelClosing:
		return "closing"
	case ChannelClosed:
		return "closed"
	case ChannelError:
		return "error"
	default:
		return "unknown"
	}
}

// ReceiverPhase is the content-reassembly phase of a channel.
type ReceiverPhase uint8

const (
	// ReceiverIdle means the channel is not mid-delivery; only method
	// frames are legal.
	ReceiverIdle ReceiverPhase = iota
	// ReceiverWillReceiveContent means a content-announcing method was
	// parsed; the matching header frame must come next.
	ReceiverWillReceiveContent
	// ReceiverReceivingContent means the header arrived; body frames
	// accumulate until the announced size is reached.
	ReceiverReceivingContent
)

// ReceiverState is a comparable snapshot of the receiver state machine.
type ReceiverState struct {
	Phase     ReceiverPhase
	ClassID   uint16
	Remaining uint64
}

// deliveryCause identifies where a completed content assembly is routed.
// Exactly one field is set.
type deliveryCause struct {
	consumerTag string                // basic.deliver
	get         *promise[*GetMessage] // basic.get-ok
	ret         *frames.BasicReturn   // basic.return
}

// contentAssembly accumulates one method + header + body sequence.
type contentAssembly struct {
	classID  uint16
	cause    deliveryCause
	deliver  *frames.BasicDeliver
	getOk    *frames.BasicGetOk
	props    frames.BasicProperties
	body     []byte
	bodySize uint64
}

// ChannelStatus holds the sender state and the receiver state machine of
// one channel.
type ChannelStatus struct {
	mu sync.Mutex

	state    ChannelState
	phase    ReceiverPhase
	assembly contentAssembly
}

func newChannelStatus() *ChannelStatus {
	return &ChannelStatus{state: ChannelInitial}
}

// State returns the sender-side channel state.
func (s *ChannelStatus) State() ChannelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *ChannelStatus) setState(state ChannelState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Receiver returns a snapshot of the receiver state machine.
func (s *ChannelStatus) Receiver() ReceiverState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := ReceiverState{Phase: s.phase}
	if s.phase != ReceiverIdle {
		out.ClassID = s.assembly.classID
	}
	if s.phase == ReceiverReceivingContent {
		out.Remaining = s.assembly.bodySize - uint64(len(s.assembly.body))
	}
	return out
}

// willReceiveContent arms the receiver for a header frame of classID.
func (s *ChannelStatus) willReceiveContent(classID uint16, cause deliveryCause) {
	s.mu.Lock()
	s.phase = ReceiverWillReceiveContent
	s.assembly = contentAssembly{classID: classID, cause: cause}
	s.mu.Unlock()
}

// setDeliver and setGetOk attach the announcing method's arguments to the
// in-flight assembly so dispatch can build the delivery.
func (s *ChannelStatus) setDeliver(m *frames.BasicDeliver) {
	s.mu.Lock()
	s.assembly.deliver = m
	s.mu.Unlock()
}

func (s *ChannelStatus) setGetOk(m *frames.BasicGetOk) {
	s.mu.Lock()
	s.assembly.getOk = m
	s.mu.Unlock()
}

// receiveHeader transitions WillReceiveContent → ReceivingContent. It
// returns (done, err): done means bodySize was zero and the assembly is
// already complete.
func (s *ChannelStatus) receiveHeader(f *frames.HeaderFrame) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != ReceiverWillReceiveContent {
		return false, errProtocol(ReplyUnexpectedFrame, "unexpected content header")
	}
	if f.ClassID != s.assembly.classID {
		return false, errProtocol(ReplyUnexpectedFrame, "content header class mismatch")
	}
	s.assembly.props = f.Properties
	s.assembly.bodySize = f.BodySize
	if f.BodySize == 0 {
		s.phase = ReceiverIdle
		return true, nil
	}
	s.phase = ReceiverReceivingContent
	return false, nil
}

// receiveBody appends one body fragment. It returns (done, err): done
// means the announced size is now fully received.
func (s *ChannelStatus) receiveBody(payload []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != ReceiverReceivingContent {
		return false, errProtocol(ReplyUnexpectedFrame, "unexpected content body")
	}
	if uint64(len(s.assembly.body))+uint64(len(payload)) > s.assembly.bodySize {
		return false, errProtocol(ReplyUnexpectedFrame, "content body exceeds announced size")
	}
	s.assembly.body = append(s.assembly.body, payload...)
	if uint64(len(s.assembly.body)) == s.assembly.bodySize {
		s.phase = ReceiverIdle
		return true, nil
	}
	return false, nil
}

// takeAssembly returns the completed assembly and resets the receiver.
func (s *ChannelStatus) takeAssembly() contentAssembly {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.assembly
	s.assembly = contentAssembly{}
	s.phase = ReceiverIdle
	return out
}

// resetReceiver drops any in-flight assembly, failing a pending get
// resolver with err.
func (s *ChannelStatus) resetReceiver(err error) {
	s.mu.Lock()
	get := s.assembly.cause.get
	s.assembly = contentAssembly{}
	s.phase = ReceiverIdle
	s.mu.Unlock()
	if get != nil {
		get.reject(err)
	}
}
