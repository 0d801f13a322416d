//go:generate go run go.uber.org/mock/mockgen -source=peer.go -destination=mocks/mock_peer.go -package=mocks

package chat

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/ledzpl/tchat/pkg/frame"
)

// Peer is the send side of a registered connection.
type Peer interface {
	Send(text string) error
	Close() error
	RemoteAddr() string
}

// Conn is a connection owned by a session: a Peer that can also receive.
type Conn interface {
	Peer
	Receive() (string, error)
	// Exclusive runs fn while no other goroutine can send to the connection.
	Exclusive(fn func(send func(string) error) error) error
}

// connPeer frames messages over a net.Conn. Sends are serialized so frames
// from concurrent broadcasts never interleave.
type connPeer struct {
	conn         net.Conn
	codec        *frame.Codec
	writeTimeout time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newConnPeer(conn net.Conn, codec *frame.Codec, writeTimeout time.Duration) *connPeer {
	return &connPeer{
		conn:         conn,
		codec:        codec,
		writeTimeout: writeTimeout,
	}
}

func (p *connPeer) Send(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.send(text)
}

func (p *connPeer) Exclusive(fn func(send func(string) error) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn(p.send)
}

// send writes one frame; p.mu must be held. A failed write may leave a
// partial frame on the stream, so the connection is closed and the owning
// session observes the failure on its next receive.
func (p *connPeer) send(text string) error {
	if p.writeTimeout > 0 {
		_ = p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	}
	err := p.codec.WriteMessage(p.conn, text)
	var terr *frame.TransportError
	if err != nil && errors.As(err, &terr) && terr.Op == "write" {
		_ = p.Close()
	}
	return err
}

func (p *connPeer) Receive() (string, error) {
	return p.codec.ReadMessage(p.conn)
}

func (p *connPeer) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.conn.Close()
	})
	return p.closeErr
}

func (p *connPeer) RemoteAddr() string {
	return p.conn.RemoteAddr().String()
}
