// Package chat implements the server side of the chat: the registry of
// admitted connections, username negotiation, per-connection sessions, and
// broadcast fan-out.
package chat

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/ledzpl/tchat/pkg/frame"
	"github.com/ledzpl/tchat/pkg/protocol"
)

// DefaultWriteTimeout bounds a single frame write to one recipient.
const DefaultWriteTimeout = 5 * time.Second

// Option customizes a Hub.
type Option func(*Hub)

// WithWriteTimeout overrides DefaultWriteTimeout. Zero disables the deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d >= 0 {
			h.writeTimeout = d
		}
	}
}

// WithCodec overrides the default frame codec.
func WithCodec(codec *frame.Codec) Option {
	return func(h *Hub) {
		if codec != nil {
			h.codec = codec
		}
	}
}

// WithSentinels overrides the default protocol sentinels.
func WithSentinels(sentinels protocol.Sentinels) Option {
	return func(h *Hub) {
		h.sentinels = sentinels
	}
}

// Hub owns the shared registry and runs a session for every connection
// handed to HandleConn.
type Hub struct {
	registry   *Registry
	negotiator *Negotiator
	dispatcher *Dispatcher

	codec        *frame.Codec
	sentinels    protocol.Sentinels
	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewHub constructs a Hub with an empty registry.
func NewHub(logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Hub{
		registry:     NewRegistry(),
		codec:        frame.Default(),
		sentinels:    protocol.DefaultSentinels(),
		writeTimeout: DefaultWriteTimeout,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(h)
	}

	h.negotiator = NewNegotiator(h.registry, h.sentinels, logger)
	h.dispatcher = NewDispatcher(h.registry, logger)
	return h
}

// Registry exposes the hub's registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Broadcast sends text to every registered connection.
func (h *Hub) Broadcast(text string) Delivery {
	return h.dispatcher.Broadcast(text)
}

// HandleConn runs a session on conn until the peer leaves. When ctx is
// cancelled the connection is closed and the session runs its normal
// teardown. It matches tcpserver.ConnHandler.
func (h *Hub) HandleConn(ctx context.Context, conn net.Conn) {
	peer := newConnPeer(conn, h.codec, h.writeTimeout)
	stop := context.AfterFunc(ctx, func() {
		_ = peer.Close()
	})
	defer stop()

	h.newSession(peer).run()
}

func (h *Hub) newSession(conn Conn) *session {
	id := uuid.NewString()
	return &session{
		id:         id,
		conn:       conn,
		registry:   h.registry,
		negotiator: h.negotiator,
		dispatcher: h.dispatcher,
		sentinels:  h.sentinels,
		logger:     h.logger.With("session", id, "remote", conn.RemoteAddr()),
		state:      StateConnected,
	}
}
