package amqp091

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// URI is a parsed amqp:// or amqps:// endpoint with its tuning query
// parameters.
type URI struct {
	Scheme   string
	Host     string
	Port     int
	Username string
	Password string
	Vhost    string

	FrameMax      uint32
	ChannelMax    uint16
	Heartbeat     time.Duration
	haveHeartbeat bool

	AuthMechanism SASLMechanism
}

// DefaultURI is the conventional local broker endpoint.
func DefaultURI() URI {
	return URI{
		Scheme:   "amqp",
		Host:     "localhost",
		Port:     5672,
		Username: "guest",
		Password: "guest",
		Vhost:    "/",
	}
}

// ParseURI parses an AMQP URI. The vhost is the percent-decoded path;
// an absent path means the default vhost "/" while an empty path after
// the slash means the vhost "" (empty string).
func ParseURI(raw string) (URI, error) {
	out := DefaultURI()

	u, err := url.Parse(raw)
	if err != nil {
		return out, errParse(err)
	}
	switch u.Scheme {
	case "amqp":
		out.Port = 5672
	case "amqps":
		out.Port = 5671
	default:
		return out, errParse(fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
	out.Scheme = u.Scheme

	if h := u.Hostname(); h != "" {
		out.Host = h
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return out, errParse(err)
		}
		out.Port = port
	}
	if u.User != nil {
		out.Username = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			out.Password = pw
		}
	}
	if u.Path != "" {
		out.Vhost = u.Path[1:] // strip leading slash; already decoded
	}

	q := u.Query()
	if v := q.Get("frame_max"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return out, errParse(err)
		}
		out.FrameMax = uint32(n)
	}
	if v := q.Get("channel_max"); v != "" {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return out, errParse(err)
		}
		out.ChannelMax = uint16(n)
	}
	if v := q.Get("heartbeat"); v != "" {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return out, errParse(err)
		}
		out.Heartbeat = time.Duration(n) * time.Second
		out.haveHeartbeat = true
	}
	if v := q.Get("auth_mechanism"); v != "" {
		switch m := SASLMechanism(strings.ToUpper(v)); m {
		case SASLPlain, SASLExternal, SASLRabbitCRDemo:
			out.AuthMechanism = m
		default:
			return out, errParse(fmt.Errorf("unsupported auth_mechanism %q", v))
		}
	}
	return out, nil
}

// Addr returns the host:port dial target.
func (u URI) Addr() string {
	return fmt.Sprintf("%s:%d", u.Host, u.Port)
}

// apply copies the URI's tuning parameters onto the configuration and
// status before the handshake.
func (u URI) apply(config *Configuration, status *ConnectionStatus) {
	status.setVhost(u.Vhost)
	status.setUsername(u.Username)
	if u.FrameMax != 0 {
		config.SetFrameMax(u.FrameMax)
	}
	if u.ChannelMax != 0 {
		config.SetChannelMax(u.ChannelMax)
	}
	if u.haveHeartbeat {
		config.SetHeartbeat(u.Heartbeat)
	}
}
