package chat

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"github.com/ledzpl/tchat/pkg/frame"
)

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

// fakePeer records what it is sent.
type fakePeer struct {
	addr string

	mu     sync.Mutex
	sent   []string
	closed bool
}

func newFakePeer(i int) *fakePeer {
	return &fakePeer{addr: fmt.Sprintf("10.0.0.%d:4000", i)}
}

func (p *fakePeer) Send(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, text)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) RemoteAddr() string {
	return p.addr
}

func (p *fakePeer) Sent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sent...)
}

// wireClient is the far end of a framed connection under test.
type wireClient struct {
	conn  net.Conn
	codec *frame.Codec
}

func (c *wireClient) send(t *testing.T, text string) {
	t.Helper()
	require.NoError(t, c.codec.WriteMessage(c.conn, text))
}

func (c *wireClient) recv(t *testing.T) string {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	text, err := c.codec.ReadMessage(c.conn)
	require.NoError(t, err)
	return text
}

// newPipePeer returns a server-side connPeer and the client end of an
// in-memory connection.
func newPipePeer(t *testing.T) (*connPeer, *wireClient) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return newConnPeer(server, frame.Default(), time.Second), &wireClient{conn: client, codec: frame.Default()}
}
