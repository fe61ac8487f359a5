package amqp091

import (
	"fmt"
	"strings"
)

// SASLMechanism names an authentication mechanism offered in the
// server's Start frame.
type SASLMechanism string

const (
	// SASLPlain sends username and password in the start-ok response.
	SASLPlain SASLMechanism = "PLAIN"
	// SASLExternal defers authentication to the transport, e.g. TLS
	// client certificates.
	SASLExternal SASLMechanism = "EXTERNAL"
	// SASLRabbitCRDemo is RabbitMQ's demo challenge-response mechanism:
	// the start-ok response carries the username and the password is
	// sent in secure-ok, prefixed per the server's convention.
	SASLRabbitCRDemo SASLMechanism = "RABBIT-CR-DEMO"
)

// crDemoPrefix is the response framing the RABBIT-CR-DEMO server side
// expects around the password.
const crDemoPrefix = "My password is "

// Credentials carries the identity applied when the server's Start frame
// is parsed.
type Credentials struct {
	Username string
	Password string
}

// response builds the initial SASL response sent in start-ok.
func (c Credentials) response(mechanism SASLMechanism) (string, error) {
	switch mechanism {
	case SASLPlain:
		return "\x00" + c.Username + "\x00" + c.Password, nil
	case SASLExternal:
		return "", nil
	case SASLRabbitCRDemo:
		// the password only goes out once the server challenges
		return c.Username, nil
	default:
		return "", errProtocol(ReplyInternalError, fmt.Sprintf("unsupported auth mechanism %q", mechanism))
	}
}

// challengeResponse builds the secure-ok answer to a server challenge.
// Only RABBIT-CR-DEMO challenges carry the password at this stage; for
// the single-round mechanisms the initial response is repeated.
func (c Credentials) challengeResponse(mechanism SASLMechanism, challenge string) (string, error) {
	switch mechanism {
	case SASLRabbitCRDemo:
		// the server ignores the challenge nonce in the answer
		return crDemoPrefix + c.Password, nil
	default:
		return c.response(mechanism)
	}
}

// pickMechanism selects preferred from the server's space separated
// mechanism list, or errors when the server does not offer it.
func pickMechanism(offered string, preferred SASLMechanism) (SASLMechanism, error) {
	if preferred == "" {
		preferred = SASLPlain
	}
	for _, m := range strings.Fields(offered) {
		if SASLMechanism(m) == preferred {
			return preferred, nil
		}
	}
	return "", errProtocol(ReplyInternalError, fmt.Sprintf("server offers no %q mechanism (offered: %s)", preferred, offered))
}
