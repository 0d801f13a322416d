package chat

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ledzpl/tchat/pkg/protocol"
)

// ErrDisconnected reports a peer that sent the disconnect sentinel.
var ErrDisconnected = errors.New("chat: peer disconnected")

// NegotiationError reports a transport failure during the username exchange.
// The connection was never registered.
type NegotiationError struct {
	Err error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("chat: negotiate username: %v", e.Err)
}

func (e *NegotiationError) Unwrap() error {
	return e.Err
}

var errUsernameTaken = errors.New("username taken")

// Negotiator assigns a unique username to a newly accepted connection.
type Negotiator struct {
	registry  *Registry
	sentinels protocol.Sentinels
	logger    *slog.Logger
}

// NewNegotiator returns a Negotiator that admits names into registry.
func NewNegotiator(registry *Registry, sentinels protocol.Sentinels, logger *slog.Logger) *Negotiator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Negotiator{registry: registry, sentinels: sentinels, logger: logger}
}

// NameCheck normalizes a candidate name before it is claimed. A verdict
// other than protocol.None rejects the name; its sentinel is sent back and
// the peer may retry.
type NameCheck func(name string) (string, protocol.Control)

// Negotiate receives candidate names until one is admitted and returns it.
// Each candidate passes through check, when non-nil, and taken names get the
// username-exists sentinel. The accepted name is echoed back and registered
// while sends to the connection are held, so the echo is always the first
// frame the peer sees after admission.
//
// It returns ErrDisconnected when the peer sends the disconnect sentinel and
// a *NegotiationError on transport failure. In both cases the registry is
// left untouched.
func (n *Negotiator) Negotiate(conn Conn, check NameCheck) (string, error) {
	for {
		name, err := conn.Receive()
		if err != nil {
			return "", &NegotiationError{Err: err}
		}

		if n.sentinels.Classify(name) == protocol.Disconnect {
			return "", ErrDisconnected
		}

		if check != nil {
			var verdict protocol.Control
			if name, verdict = check(name); verdict != protocol.None {
				if err := conn.Send(n.sentinels.Text(verdict)); err != nil {
					return "", &NegotiationError{Err: err}
				}
				continue
			}
		}

		err = conn.Exclusive(func(send func(string) error) error {
			if !n.registry.Add(conn, name) {
				return errUsernameTaken
			}
			if err := send(name); err != nil {
				n.registry.Remove(conn)
				return err
			}
			return nil
		})

		switch {
		case err == nil:
			return name, nil
		case errors.Is(err, errUsernameTaken):
			n.logger.Info("username rejected", "remote", conn.RemoteAddr(), "username", name)
			if err := conn.Send(n.sentinels.Text(protocol.UsernameExists)); err != nil {
				return "", &NegotiationError{Err: err}
			}
		default:
			return "", &NegotiationError{Err: err}
		}
	}
}
