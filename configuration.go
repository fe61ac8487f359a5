package amqp091

import (
	"sync"
	"time"

	"github.com/leporidae/amqp091/internal/frames"
)

// Defaults applied when neither the URI nor the server constrains a
// parameter.
const (
	defaultFrameMax   = 131072
	defaultChannelMax = 2047
	defaultHeartbeat  = 60 * time.Second
)

// Configuration holds the tuning parameters negotiated during the
// Tune/TuneOk exchange. Values set before the handshake act as client
// proposals; after OpenOk they are the negotiated result.
type Configuration struct {
	mu sync.Mutex

	frameMax   uint32
	channelMax uint16
	heartbeat  time.Duration
}

func newConfiguration() *Configuration {
	return &Configuration{
		frameMax:   defaultFrameMax,
		channelMax: defaultChannelMax,
		heartbeat:  defaultHeartbeat,
	}
}

// FrameMax returns the maximum frame size in bytes. Content bodies are
// fragmented to fit it.
func (c *Configuration) FrameMax() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameMax
}

// SetFrameMax sets the client's frame-max proposal.
func (c *Configuration) SetFrameMax(frameMax uint32) {
	c.mu.Lock()
	if frameMax >= frames.MinFrameSize {
		c.frameMax = frameMax
	}
	c.mu.Unlock()
}

// ChannelMax returns the highest usable channel id.
func (c *Configuration) ChannelMax() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelMax
}

// SetChannelMax sets the client's channel-max proposal.
func (c *Configuration) SetChannelMax(channelMax uint16) {
	c.mu.Lock()
	c.channelMax = channelMax
	c.mu.Unlock()
}

// Heartbeat returns the negotiated heartbeat interval. Zero disables
// heartbeats.
func (c *Configuration) Heartbeat() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heartbeat
}

// SetHeartbeat sets the client's heartbeat proposal.
func (c *Configuration) SetHeartbeat(heartbeat time.Duration) {
	c.mu.Lock()
	c.heartbeat = heartbeat
	c.mu.Unlock()
}

// negotiate merges the server's Tune proposal with the client's,
// following the rule that zero means unlimited and the smaller non-zero
// value wins.
func (c *Configuration) negotiate(tune *frames.ConnectionTune) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channelMax = uint16(pick(int(c.channelMax), int(tune.ChannelMax)))
	c.frameMax = uint32(pick(int(c.frameMax), int(tune.FrameMax)))
	c.heartbeat = time.Duration(pick(
		int(c.heartbeat/time.Second),
		int(tune.Heartbeat))) * time.Second
}

func pick(client, server int) int {
	if client == 0 || server == 0 {
		if client > server {
			return client
		}
		return server
	}
	if client > server {
		return server
	}
	return client
}
