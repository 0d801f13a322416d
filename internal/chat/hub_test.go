package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/ledzpl/tchat/pkg/frame"
	"github.com/ledzpl/tchat/pkg/protocol"
	"github.com/ledzpl/tchat/pkg/tcpserver"
)

// HubSuite drives a hub behind a real TCP acceptor on loopback.
type HubSuite struct {
	suite.Suite

	hub       *Hub
	sentinels protocol.Sentinels
	addr      string
	cancel    context.CancelFunc
	done      chan error
}

func TestHubSuite(t *testing.T) {
	suite.Run(t, new(HubSuite))
}

func (s *HubSuite) SetupTest() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.sentinels = protocol.DefaultSentinels()
	s.hub = NewHub(testLogger(), WithWriteTimeout(time.Second), WithSentinels(s.sentinels))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	s.addr = ln.Addr().String()

	server := tcpserver.New(s.addr, testLogger(), tcpserver.WithAcceptTimeout(20*time.Millisecond))
	s.done = make(chan error, 1)
	go func() {
		s.done <- server.Serve(ctx, ln, s.hub.HandleConn)
	}()
}

func (s *HubSuite) TearDownTest() {
	s.cancel()
	select {
	case err := <-s.done:
		s.ErrorIs(err, context.Canceled)
	case <-time.After(3 * time.Second):
		s.Fail("server did not stop")
	}
}

func (s *HubSuite) dial() *wireClient {
	conn, err := net.Dial("tcp", s.addr)
	s.Require().NoError(err)
	s.T().Cleanup(func() {
		_ = conn.Close()
	})
	return &wireClient{conn: conn, codec: frame.Default()}
}

// join admits a client under name and consumes its own join announcement.
func (s *HubSuite) join(name string, online int) *wireClient {
	c := s.dial()
	c.send(s.T(), name)
	s.Require().Equal(name, c.recv(s.T()))
	s.Require().Equal(JoinAnnouncement(name, online), c.recv(s.T()))
	return c
}

func (s *HubSuite) expectSilence(c *wireClient) {
	s.Require().NoError(c.conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond)))
	text, err := c.codec.ReadMessage(c.conn)

	var netErr net.Error
	s.Require().True(errors.As(err, &netErr) && netErr.Timeout(), "unexpected frame %q (err %v)", text, err)
}

// expectClosed reads until the server closes the connection and returns the
// frames received before that.
func (s *HubSuite) expectClosed(c *wireClient) []string {
	s.Require().NoError(c.conn.SetReadDeadline(time.Now().Add(2 * time.Second)))

	var frames []string
	for {
		text, err := c.codec.ReadMessage(c.conn)
		if err != nil {
			var netErr net.Error
			s.Require().False(errors.As(err, &netErr) && netErr.Timeout(), "connection was not closed")
			return frames
		}
		frames = append(frames, text)
	}
}

func (s *HubSuite) requireOnline(n int) {
	s.Require().Eventually(func() bool {
		return s.hub.Registry().Count() == n
	}, 2*time.Second, 5*time.Millisecond)
}

func (s *HubSuite) TestJoinIsEchoedAndAnnounced() {
	alice := s.dial()
	alice.send(s.T(), "alice")

	s.Equal("alice", alice.recv(s.T()))
	s.Equal("<Server>: alice connected - 1 users online", alice.recv(s.T()))
	s.Equal(1, s.hub.Registry().Count())

	bob := s.join("bob", 2)
	s.Equal("<Server>: bob connected - 2 users online", alice.recv(s.T()))
	s.Equal([]string{"alice", "bob"}, s.hub.Registry().Usernames())
	s.expectSilence(bob)
}

func (s *HubSuite) TestConcurrentClaimsAdmitOne() {
	const contenders = 8

	clients := make([]*wireClient, contenders)
	for i := range clients {
		clients[i] = s.dial()
	}

	replies := make([]string, contenders)
	errs := make([]error, contenders)
	var wg sync.WaitGroup
	for i, c := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if errs[i] = c.codec.WriteMessage(c.conn, "bob"); errs[i] != nil {
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			replies[i], errs[i] = c.codec.ReadMessage(c.conn)
		}()
	}
	wg.Wait()

	admitted := 0
	for i, reply := range replies {
		s.Require().NoError(errs[i])
		switch reply {
		case "bob":
			admitted++
		case s.sentinels.UsernameExists:
			// Losers pick another name and are admitted.
			name := fmt.Sprintf("bob%d", i+2)
			clients[i].send(s.T(), name)
			s.Equal(name, clients[i].recv(s.T()))
		default:
			s.Failf("unexpected reply", "%q", reply)
		}
	}

	s.Equal(1, admitted)
	s.requireOnline(contenders)
}

func (s *HubSuite) TestEmptyNameGetsEmptySentinel() {
	c := s.dial()
	c.send(s.T(), "")
	s.Equal(s.sentinels.Empty, c.recv(s.T()))
	s.Zero(s.hub.Registry().Count())

	c.send(s.T(), "alice")
	s.Equal("alice", c.recv(s.T()))
}

func (s *HubSuite) TestMessageIsBroadcastToEveryone() {
	alice := s.join("alice", 1)
	bob := s.join("bob", 2)
	s.Equal(JoinAnnouncement("bob", 2), alice.recv(s.T()))

	alice.send(s.T(), "hello")

	s.Equal("<alice>: hello", bob.recv(s.T()))
	s.Equal("<alice>: hello", alice.recv(s.T()))
}

func (s *HubSuite) TestMessagesFromOneSenderKeepOrder() {
	alice := s.join("alice", 1)
	bob := s.join("bob", 2)
	s.Equal(JoinAnnouncement("bob", 2), alice.recv(s.T()))

	for i := range 20 {
		alice.send(s.T(), fmt.Sprintf("message %d", i))
	}
	for i := range 20 {
		s.Equal(fmt.Sprintf("<alice>: message %d", i), bob.recv(s.T()))
	}
}

func (s *HubSuite) TestDisconnectIsAnnounced() {
	alice := s.join("alice", 1)
	bob := s.join("bob", 2)
	s.Equal(JoinAnnouncement("bob", 2), alice.recv(s.T()))

	alice.send(s.T(), s.sentinels.Disconnect)

	s.Equal("<Server>: alice disconnected from the server - 1 users online", bob.recv(s.T()))
	s.Empty(s.expectClosed(alice))
	s.requireOnline(1)
	s.False(s.hub.Registry().Contains("alice"))
}

func (s *HubSuite) TestLastDisconnectIsNotAnnounced() {
	alice := s.join("alice", 1)
	alice.send(s.T(), s.sentinels.Disconnect)

	s.Empty(s.expectClosed(alice))
	s.requireOnline(0)
}

func (s *HubSuite) TestRepeatedDisconnectIsHarmless() {
	alice := s.join("alice", 1)
	bob := s.join("bob", 2)
	s.Equal(JoinAnnouncement("bob", 2), alice.recv(s.T()))

	alice.send(s.T(), s.sentinels.Disconnect)
	_ = alice.codec.WriteMessage(alice.conn, s.sentinels.Disconnect)

	s.Equal(LeaveAnnouncement("alice", 1), bob.recv(s.T()))
	s.expectSilence(bob)
	s.requireOnline(1)
}

func (s *HubSuite) TestDisconnectDuringNegotiation() {
	alice := s.join("alice", 1)

	guest := s.dial()
	guest.send(s.T(), s.sentinels.Disconnect)

	s.Empty(s.expectClosed(guest))
	s.expectSilence(alice)
	s.Equal(1, s.hub.Registry().Count())
}

func (s *HubSuite) TestAbruptCloseIsTreatedAsDisconnect() {
	alice := s.join("alice", 1)
	bob := s.join("bob", 2)
	s.Equal(JoinAnnouncement("bob", 2), alice.recv(s.T()))

	s.Require().NoError(bob.conn.Close())

	s.Equal(LeaveAnnouncement("bob", 1), alice.recv(s.T()))
	s.requireOnline(1)
}

func (s *HubSuite) TestTruncatedFrameIsTreatedAsDisconnect() {
	alice := s.join("alice", 1)
	bob := s.join("bob", 2)
	s.Equal(JoinAnnouncement("bob", 2), alice.recv(s.T()))

	header := "500" + strings.Repeat(" ", frame.DefaultWidth-3)
	_, err := bob.conn.Write([]byte(header + strings.Repeat("a", 300)))
	s.Require().NoError(err)
	s.Require().NoError(bob.conn.Close())

	s.Equal(LeaveAnnouncement("bob", 1), alice.recv(s.T()))
	s.requireOnline(1)
}

func (s *HubSuite) TestMalformedHeaderIsTreatedAsDisconnect() {
	alice := s.join("alice", 1)
	bob := s.join("bob", 2)
	s.Equal(JoinAnnouncement("bob", 2), alice.recv(s.T()))

	_, err := bob.conn.Write([]byte(strings.Repeat("x", frame.DefaultWidth)))
	s.Require().NoError(err)

	s.Equal(LeaveAnnouncement("bob", 1), alice.recv(s.T()))
	s.expectClosed(bob)
	s.requireOnline(1)
}

func (s *HubSuite) TestShutdownClosesEveryConnection() {
	alice := s.join("alice", 1)
	bob := s.join("bob", 2)
	s.Equal(JoinAnnouncement("bob", 2), alice.recv(s.T()))
	guest := s.dial()

	s.cancel()

	s.expectClosed(alice)
	s.expectClosed(bob)
	s.Empty(s.expectClosed(guest))
	s.requireOnline(0)
}
