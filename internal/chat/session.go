package chat

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/ledzpl/tchat/pkg/protocol"
)

// State is a session lifecycle stage.
type State int

const (
	StateConnected State = iota
	StateNegotiating
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type session struct {
	id   string
	conn Conn

	registry   *Registry
	negotiator *Negotiator
	dispatcher *Dispatcher
	sentinels  protocol.Sentinels
	logger     *slog.Logger

	mu       sync.Mutex
	state    State
	username string

	cleanup sync.Once
}

func (s *session) run() {
	defer s.cleanupSession()

	if err := s.setup(); err != nil {
		s.handleNegotiationError(err)
		return
	}

	if err := s.readLoop(); err != nil {
		s.handleReadError(err)
	}
}

// setup negotiates the username and announces the join.
func (s *session) setup() error {
	s.setState(StateNegotiating)

	username, err := s.negotiator.Negotiate(s.conn, checkName)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.username = username
	s.mu.Unlock()
	s.setState(StateActive)

	s.logger.Info("user connected", "username", username)
	s.dispatcher.Broadcast(JoinAnnouncement(username, s.registry.Count()))
	return nil
}

// checkName trims surrounding whitespace and rejects blank names.
func checkName(name string) (string, protocol.Control) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", protocol.Empty
	}
	return name, protocol.None
}

// readLoop broadcasts every received message until the peer disconnects.
// A nil return means the disconnect sentinel was received.
func (s *session) readLoop() error {
	for {
		text, err := s.conn.Receive()
		if err != nil {
			return err
		}

		if s.sentinels.Classify(text) == protocol.Disconnect {
			return nil
		}

		s.logger.Info("message", "username", s.username, "text", text)
		s.dispatcher.Broadcast(ChatLine(s.username, text))
	}
}

func (s *session) handleNegotiationError(err error) {
	switch {
	case errors.Is(err, ErrDisconnected):
		s.logger.Info("disconnected during negotiation")
	case errors.Is(err, io.EOF):
		s.logger.Info("connection closed during negotiation")
	default:
		s.logger.Warn("negotiation failed", "error", err)
	}
}

// handleReadError treats any receive failure as an implicit disconnect.
func (s *session) handleReadError(err error) {
	if errors.Is(err, io.EOF) {
		s.logger.Info("connection closed by peer", "username", s.username)
		return
	}
	s.logger.Warn("receive failed, disconnecting", "username", s.username, "error", err)
}

// cleanupSession unregisters the connection, announces the departure to the
// remaining users, and closes the connection. Only a registered session
// produces an announcement.
func (s *session) cleanupSession() {
	s.cleanup.Do(func() {
		if s.State() == StateActive {
			s.setState(StateClosing)
		}

		if entry, ok := s.registry.Remove(s.conn); ok {
			s.logger.Info("user disconnected", "username", entry.Username)
			if online := s.registry.Count(); online > 0 {
				s.dispatcher.Broadcast(LeaveAnnouncement(entry.Username, online))
			}
		}

		if err := s.conn.Close(); err != nil && !errors.Is(err, io.EOF) {
			s.logger.Debug("close connection", "error", err)
		}
		s.setState(StateClosed)
	})
}

func (s *session) setState(state State) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()

	s.logger.Debug("session state", "from", prev.String(), "to", state.String())
}

// State returns the current lifecycle stage.
func (s *session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
