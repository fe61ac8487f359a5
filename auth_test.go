package amqp091

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPickMechanism(t *testing.T) {
	m, err := pickMechanism("PLAIN AMQPLAIN RABBIT-CR-DEMO", "")
	require.NoError(t, err)
	require.Equal(t, SASLPlain, m)

	m, err = pickMechanism("PLAIN RABBIT-CR-DEMO", SASLRabbitCRDemo)
	require.NoError(t, err)
	require.Equal(t, SASLRabbitCRDemo, m)

	_, err = pickMechanism("PLAIN", SASLExternal)
	require.ErrorIs(t, err, &Error{Kind: KindProtocol})
}

func TestSASLPlainResponse(t *testing.T) {
	creds := Credentials{Username: "guest", Password: "secret"}
	resp, err := creds.response(SASLPlain)
	require.NoError(t, err)
	require.Equal(t, "\x00guest\x00secret", resp)
}

func TestSASLExternalResponse(t *testing.T) {
	resp, err := Credentials{}.response(SASLExternal)
	require.NoError(t, err)
	require.Empty(t, resp)
}

func TestSASLRabbitCRDemo(t *testing.T) {
	creds := Credentials{Username: "guest", Password: "secret"}

	// start-ok carries only the username; the password waits for the
	// server's challenge
	resp, err := creds.response(SASLRabbitCRDemo)
	require.NoError(t, err)
	require.Equal(t, "guest", resp)

	answer, err := creds.challengeResponse(SASLRabbitCRDemo, "nonce-1234")
	require.NoError(t, err)
	require.Equal(t, "My password is secret", answer)
}

func TestUnsupportedMechanismResponse(t *testing.T) {
	_, err := Credentials{}.response(SASLMechanism("GSSAPI"))
	require.ErrorIs(t, err, &Error{Kind: KindProtocol})
}
