package amqp091

import (
	"sync"

	"github.com/leporidae/amqp091/internal/frames"
)

// Channels is the channel registry of one connection. It owns every
// Channel and routes inbound frames to them.
type Channels struct {
	h connHandles

	mu       sync.Mutex
	channels map[uint16]*Channel
	cursor   uint16

	errorHandler func(*Error)
}

func newChannels(h connHandles) *Channels {
	return &Channels{
		h:        h,
		channels: map[uint16]*Channel{},
	}
}

// createZero installs the connection-scoped channel 0.
func (cs *Channels) createZero() *Channel {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	ch := newChannel(0, cs.h)
	ch.status.setState(ChannelConnected)
	cs.channels[0] = ch
	return ch
}

// create allocates the next free channel id in [1, channel_max]. Ids are
// unique among live channels and reusable after removal.
func (cs *Channels) create() (*Channel, error) {
	max := cs.h.config.ChannelMax()
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if max == 0 {
		return nil, errChannelsLimitReached()
	}
	id := cs.cursor
	for i := uint32(0); i < uint32(max); i++ {
		id++
		if id > max || id == 0 {
			id = 1
		}
		if _, taken := cs.channels[id]; !taken {
			cs.cursor = id
			ch := newChannel(id, cs.h)
			cs.channels[id] = ch
			return ch, nil
		}
	}
	return nil, errChannelsLimitReached()
}

// get returns the channel with the given id, or nil.
func (cs *Channels) get(id uint16) *Channel {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.channels[id]
}

// remove deletes the channel and fails its pending work with err.
func (cs *Channels) remove(id uint16, err *Error) {
	cs.mu.Lock()
	ch := cs.channels[id]
	delete(cs.channels, id)
	cs.mu.Unlock()
	if ch != nil {
		ch.setClosed(err)
	}
}

func (cs *Channels) snapshot() []*Channel {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]*Channel, 0, len(cs.channels))
	for _, ch := range cs.channels {
		out = append(out, ch)
	}
	return out
}

// setErrorHandler registers the single handler invoked for every
// terminal error.
func (cs *Channels) setErrorHandler(handler func(*Error)) {
	cs.mu.Lock()
	cs.errorHandler = handler
	cs.mu.Unlock()
}

// HandleFrame routes one inbound frame to its channel's receiver state
// machine. Frames for unknown channels are dropped while the connection
// is shutting down and rejected otherwise.
func (cs *Channels) HandleFrame(f frames.Frame) error {
	if _, ok := f.(*frames.HeartbeatFrame); ok {
		// the read itself refreshed the heartbeat tracker
		return nil
	}
	ch := cs.get(f.Channel())
	if ch == nil {
		if f.Channel() == 0 || cs.h.status.Closing() || cs.h.status.Closed() {
			return nil
		}
		return errInvalidChannel(f.Channel())
	}
	return ch.handleFrame(f)
}

// setConnectionClosing marks the close handshake as started.
func (cs *Channels) setConnectionClosing() {
	cs.h.status.setState(StateClosing)
	for _, ch := range cs.snapshot() {
		if ch.id != 0 {
			ch.status.setState(ChannelClosing)
		}
	}
}

// setConnectionClosed finalizes a clean shutdown.
func (cs *Channels) setConnectionClosed(err *Error) {
	cs.h.status.setState(StateClosed)
	cs.finalize(err)
}

// setConnectionError finalizes an errored shutdown, unless the
// connection already reached Closed.
func (cs *Channels) setConnectionError(err *Error) {
	if cs.h.status.State() == StateClosed {
		return
	}
	cs.h.status.setState(StateError)
	cs.finalize(err)
}

// finalize fails everything still pending anywhere: channel work,
// queued frames, expected replies and the connect resolver. Safe to run
// more than once; resolvers complete at most once.
func (cs *Channels) finalize(err *Error) {
	for _, ch := range cs.snapshot() {
		ch.setClosed(err)
	}
	cs.h.frames.cancelAll(err)
	if resolver := cs.h.status.takeConnectionResolver(); resolver != nil {
		resolver.reject(err)
	}
	cs.mu.Lock()
	handler := cs.errorHandler
	cs.mu.Unlock()
	if handler != nil && err != nil && err.Kind != KindShutdown {
		cs.h.executor.Spawn(func() { handler(err) })
	}
	cs.h.waker.Wake()
}
