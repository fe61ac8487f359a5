package amqp091

import (
	"github.com/go-logr/logr"
)

// RecoveryConfig controls what the engine restores automatically after a
// disruption.
type RecoveryConfig struct {
	// AutoRecoverChannels reissues channel.open for a channel the server
	// closed with a soft error instead of surfacing it as closed.
	AutoRecoverChannels bool
}

// ConnOptions configures a connection. The zero value is usable: locale
// defaults to en_US, executor and reactor to the goroutine-backed
// defaults, logging to a discard logger and metrics to none.
type ConnOptions struct {
	// Locale is sent in start-ok. Defaults to "en_US".
	Locale string

	// ClientProperties is merged into the product defaults sent in
	// start-ok.
	ClientProperties Table

	// Executor schedules the I/O loop and internal tasks.
	Executor Executor

	// Reactor provides I/O readiness for registered streams.
	Reactor Reactor

	// Metrics receives the engine's measurements. Nil disables them.
	Metrics *Metrics

	// Logger receives structured logs. Frame-level tracing is emitted at
	// V(2).
	Logger logr.Logger

	// Recovery selects automatic recovery behavior.
	Recovery RecoveryConfig
}

// withDefaults fills the zero-value fields.
func (o ConnOptions) withDefaults() ConnOptions {
	if o.Locale == "" {
		o.Locale = "en_US"
	}
	if o.Executor == nil {
		o.Executor = DefaultExecutor()
	}
	if o.Reactor == nil {
		o.Reactor = DefaultReactor(o.Executor)
	}
	if o.Logger.GetSink() == nil {
		o.Logger = logr.Discard()
	}
	return o
}

// clientProperties builds the start-ok property table.
func (o ConnOptions) clientProperties() Table {
	props := Table{
		"product":  "leporidae-amqp091",
		"platform": "golang",
		"capabilities": Table{
			"connection.blocked":     true,
			"consumer_cancel_notify": true,
		},
	}
	for k, v := range o.ClientProperties {
		props[k] = v
	}
	return props
}
