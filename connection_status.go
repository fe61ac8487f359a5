package amqp091

import "sync"

// ConnectionState is the lifecycle phase of a Connection. A connection
// moves forward through the handshake states and never reopens.
type ConnectionState uint8

const (
	StateInitial ConnectionState = iota
	StateConnecting
	StateSentProtocolHeader
	StateSentStartOk
	StateSentTuneOk
	StateSentOpen
	StateConnected
	StateClosing
	StateClosed
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateConnecting:
		return "connecting"
	case StateSentProtocolHeader:
		return "sent protocol header"
	case StateSentStartOk:
		return "sent start-ok"
	case StateSentTuneOk:
		return "sent tune-ok"
	case StateSentOpen:
		return "sent open"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// connectionStep tracks the handshake sub-phase together with the
// resolver completing the caller's connect, and the credentials to apply
// once the server's Start arrives.
type connectionStep struct {
	resolver    *promise[*Connection]
	conn        *Connection
	credentials Credentials
	mechanism   SASLMechanism
	options     ConnOptions
}

// ConnectionStatus holds the connection lifecycle state shared between
// the I/O loop and external callers.
type ConnectionStatus struct {
	mu sync.Mutex

	state    ConnectionState
	vhost    string
	username string
	blocked  bool
	step     *connectionStep
}

func newConnectionStatus() *ConnectionStatus {
	return &ConnectionStatus{state: StateInitial}
}

// State returns the current lifecycle phase.
func (s *ConnectionStatus) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether user operations are currently legal.
func (s *ConnectionStatus) Connected() bool {
	return s.State() == StateConnected
}

// Closing reports whether a close handshake is underway.
func (s *ConnectionStatus) Closing() bool {
	return s.State() == StateClosing
}

// Closed reports whether the connection reached a terminal state.
func (s *ConnectionStatus) Closed() bool {
	st := s.State()
	return st == StateClosed || st == StateError
}

func (s *ConnectionStatus) setState(state ConnectionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *ConnectionStatus) setBlocked(blocked bool) {
	s.mu.Lock()
	s.blocked = blocked
	s.mu.Unlock()
}

// Blocked reports whether the peer has flow-blocked the connection.
func (s *ConnectionStatus) Blocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked
}

// Vhost returns the virtual host requested at connect time.
func (s *ConnectionStatus) Vhost() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vhost
}

func (s *ConnectionStatus) setVhost(vhost string) {
	s.mu.Lock()
	s.vhost = vhost
	s.mu.Unlock()
}

// Username returns the username the connection authenticated with.
func (s *ConnectionStatus) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

func (s *ConnectionStatus) setUsername(username string) {
	s.mu.Lock()
	s.username = username
	s.mu.Unlock()
}

func (s *ConnectionStatus) setConnectionStep(step *connectionStep) {
	s.mu.Lock()
	s.step = step
	s.mu.Unlock()
}

// connectionStep returns the current handshake step without consuming it.
func (s *ConnectionStatus) connectionStep() *connectionStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// takeConnectionResolver removes and returns the handshake resolver, if
// any. The terminal transitions use it to fail the pending connect.
func (s *ConnectionStatus) takeConnectionResolver() *promise[*Connection] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step == nil {
		return nil
	}
	resolver := s.step.resolver
	s.step = nil
	return resolver
}
