// Package client is the client side of the chat protocol: username
// negotiation, an outbound send path driven by the caller, and an inbound
// listener that hands every received message to a callback. The two paths
// run independently; no ordering between them is implied.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/ledzpl/tchat/pkg/frame"
	"github.com/ledzpl/tchat/pkg/protocol"
)

// ErrClosed is returned by operations on a closed client.
var ErrClosed = errors.New("client: connection closed")

// Option customizes a Client.
type Option func(*Client)

// WithCodec overrides the default frame codec.
func WithCodec(codec *frame.Codec) Option {
	return func(c *Client) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// WithSentinels overrides the default protocol sentinels.
func WithSentinels(sentinels protocol.Sentinels) Option {
	return func(c *Client) {
		c.sentinels = sentinels
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client is a connection to a chat server.
type Client struct {
	conn      net.Conn
	codec     *frame.Codec
	sentinels protocol.Sentinels
	logger    *slog.Logger

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}

	listenOnce sync.Once
	done       chan struct{}
	listenErr  error
}

// Dial connects to the chat server at addr.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %q: %w", addr, err)
	}
	return New(conn, opts...), nil
}

// New wraps an established connection.
func New(conn net.Conn, opts ...Option) *Client {
	c := &Client{
		conn:      conn,
		codec:     frame.Default(),
		sentinels: protocol.DefaultSentinels(),
		logger:    slog.Default(),
		closed:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sentinels returns the protocol sentinels the client uses.
func (c *Client) Sentinels() protocol.Sentinels {
	return c.sentinels
}

// SendUsername proposes name to the server and classifies the reply.
// Proceed means the server echoed the name back and the client is admitted.
// Blank names are answered locally with Empty without contacting the server.
// A transport failure yields Error together with the cause.
func (c *Client) SendUsername(name string) (protocol.Control, error) {
	if strings.TrimSpace(name) == "" {
		return protocol.Empty, nil
	}

	if err := c.write(name); err != nil {
		return protocol.Error, err
	}
	reply, err := c.codec.ReadMessage(c.conn)
	if err != nil {
		return protocol.Error, fmt.Errorf("client: read username reply: %w", err)
	}

	switch {
	case reply == name:
		return protocol.Proceed, nil
	case c.sentinels.Classify(reply) != protocol.None:
		return c.sentinels.Classify(reply), nil
	default:
		return protocol.Error, fmt.Errorf("client: unexpected username reply %q", reply)
	}
}

// Send writes text to the server and returns it as the acknowledgement.
// Sending the disconnect sentinel closes the connection afterwards. When the
// write fails the connection is closed and the disconnect sentinel is
// returned with the error.
func (c *Client) Send(text string) (string, error) {
	if err := c.write(text); err != nil {
		_ = c.Close()
		return c.sentinels.Disconnect, err
	}

	if text == c.sentinels.Disconnect {
		_ = c.Close()
	}
	return text, nil
}

// Disconnect tells the server the client is leaving and closes the connection.
func (c *Client) Disconnect() error {
	_, err := c.Send(c.sentinels.Disconnect)
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// Listen starts the inbound path: a goroutine that receives messages and
// passes each to onMessage until the connection fails or closes. A received
// disconnect sentinel closes the connection and is still delivered. Listen
// starts at most one listener; later calls are ignored.
func (c *Client) Listen(onMessage func(text string)) {
	c.listenOnce.Do(func() {
		go c.listen(onMessage)
	})
}

func (c *Client) listen(onMessage func(string)) {
	defer close(c.done)

	for {
		text, err := c.codec.ReadMessage(c.conn)
		if err != nil {
			select {
			case <-c.closed:
			default:
				c.listenErr = err
				c.logger.Debug("listener stopped", "error", err)
			}
			return
		}

		if c.sentinels.Classify(text) == protocol.Disconnect {
			_ = c.Close()
		}
		onMessage(text)
	}
}

// Done is closed once the listener started by Listen has returned.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the receive error that stopped the listener, or nil when it
// stopped because the client was closed. Only valid after Done is closed.
func (c *Client) Err() error {
	return c.listenErr
}

// Close closes the connection. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) write(text string) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.codec.WriteMessage(c.conn, text); err != nil {
		return fmt.Errorf("client: send: %w", err)
	}
	return nil
}
