package amqp091

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/leporidae/amqp091/internal/frames"
)

// HandshakeFunc establishes the transport: TCP, and optionally TLS, or
// anything else producing a duplex byte stream. It is injected at
// connect time and invoked exactly once, off the caller's goroutine.
type HandshakeFunc func(uri *URI) (Stream, error)

// Connection is a long-lived connection to an AMQP 0-9-1 broker,
// multiplexing channels over a single byte stream. A connection never
// reopens; create a new one after a terminal state.
type Connection struct {
	configuration *Configuration
	status        *ConnectionStatus
	channels      *Channels
	loop          *ioLoop
}

// Connect dials uri with the default TCP/TLS handshake and runs the AMQP
// handshake to completion.
func Connect(ctx context.Context, uri string, options ConnOptions) (*Connection, error) {
	parsed, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	return Connector(ctx, parsed, defaultHandshake, options)
}

// defaultHandshake dials TCP and layers TLS for amqps endpoints.
func defaultHandshake(uri *URI) (Stream, error) {
	conn, err := net.DialTimeout("tcp", uri.Addr(), 30*time.Second)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}
	if uri.Scheme != "amqps" {
		return conn, nil
	}
	client := tls.Client(conn, &tls.Config{ServerName: uri.Host})
	if err := client.Handshake(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "tls handshake")
	}
	return client, nil
}

// Connector assembles a connection around the injected handshake
// function and drives it to Connected. The returned connection owns one
// I/O loop task scheduled on the executor.
func Connector(ctx context.Context, uri URI, handshake HandshakeFunc, options ConnOptions) (*Connection, error) {
	options = options.withDefaults()

	socket := newSocketState()
	waker := socket.handle()
	rpc := newInternalRPC(waker, options.Executor)
	fq := newFrameQueue(options.Metrics)

	config := newConfiguration()
	status := newConnectionStatus()
	handles := connHandles{
		status:   status,
		config:   config,
		frames:   fq,
		rpc:      rpc.Handle(),
		waker:    waker,
		executor: options.Executor,
		logger:   options.Logger,
		metrics:  options.Metrics,
		recovery: options.Recovery,
	}
	channels := newChannels(handles)
	channel0 := channels.createZero()

	uri.apply(config, status)

	conn := &Connection{
		configuration: config,
		status:        status,
		channels:      channels,
	}

	// transport handshake off this goroutine; the loop starts only once
	// a stream exists.
	streamReady := newPromise[Stream]()
	options.Executor.SpawnBlocking(func() {
		stream, err := handshake(&uri)
		streamReady.complete(stream, err)
	})

	// the protocol header goes out first; the server answers with Start.
	headerFlushed := newPromise[struct{}]()
	channel0.sendFrame(&frames.ProtocolHeaderFrame{}, lanePriority, headerFlushed, nil)

	connected := newPromise[*Connection]()
	status.setState(StateConnecting)
	status.setConnectionStep(&connectionStep{
		resolver:    connected,
		conn:        conn,
		credentials: Credentials{Username: uri.Username, Password: uri.Password},
		mechanism:   uri.AuthMechanism,
		options:     options,
	})
	status.setState(StateSentProtocolHeader)

	stream, err := streamReady.await(ctx)
	if err != nil {
		status.takeConnectionResolver()
		return nil, asError(err)
	}
	source, err := options.Reactor.Register(stream, waker)
	if err != nil {
		status.takeConnectionResolver()
		stream.Close()
		return nil, asError(err)
	}

	conn.loop = newIOLoop(status, config, channels, rpc, fq, socket, source,
		newHeartbeat(), options.Metrics, options.Logger)
	options.Executor.Spawn(conn.loop.run)

	if _, err := headerFlushed.await(ctx); err != nil {
		return nil, asError(err)
	}
	return connected.await(ctx)
}

// CreateChannel opens a new channel. Only legal while Connected.
func (c *Connection) CreateChannel(ctx context.Context) (*Channel, error) {
	if !c.status.Connected() {
		return nil, errInvalidConnectionState(c.status.State())
	}
	ch, err := c.channels.create()
	if err != nil {
		return nil, err
	}
	if err := ch.open(ctx); err != nil {
		c.channels.remove(ch.id, asError(err))
		return nil, err
	}
	return ch, nil
}

// Close performs the connection.close round trip and terminates the
// loop.
func (c *Connection) Close(ctx context.Context, replyCode uint16, replyText string) error {
	if !c.status.Connected() {
		return errInvalidConnectionState(c.status.State())
	}
	c.channels.setConnectionClosing()
	ch0 := c.channels.get(0)
	if ch0 == nil {
		return nil
	}
	if err := ch0.connectionClose(ctx, replyCode, replyText, 0, 0); err != nil {
		return err
	}
	c.channels.setConnectionClosed(errShutdown())
	return nil
}

// Block asks the peer to pause deliveries to this connection.
func (c *Connection) Block(reason string) error {
	ch0 := c.channels.get(0)
	if ch0 == nil {
		return errInvalidConnectionState(c.status.State())
	}
	ch0.connectionBlocked(reason)
	return nil
}

// Unblock reverses Block.
func (c *Connection) Unblock() error {
	ch0 := c.channels.get(0)
	if ch0 == nil {
		return errInvalidConnectionState(c.status.State())
	}
	ch0.connectionUnblocked()
	return nil
}

// UpdateSecret rotates the authentication secret, e.g. an OAuth2 token.
// The round trip is serialized through channel 0's request queue.
func (c *Connection) UpdateSecret(ctx context.Context, newSecret, reason string) error {
	ch0 := c.channels.get(0)
	if ch0 == nil {
		return errInvalidConnectionState(c.status.State())
	}
	return ch0.connectionUpdateSecret(ctx, newSecret, reason)
}

// OnError registers the single handler invoked for every terminal error.
func (c *Connection) OnError(handler func(*Error)) {
	c.channels.setErrorHandler(handler)
}

// Status returns the connection's status holder.
func (c *Connection) Status() *ConnectionStatus { return c.status }

// Configuration returns the negotiated tuning parameters.
func (c *Connection) Configuration() *Configuration { return c.configuration }

// Run blocks the calling goroutine until the I/O loop terminates. Useful
// when consumers are all that keeps the application alive.
func (c *Connection) Run() {
	if c.loop == nil {
		return
	}
	<-c.loop.done
}
