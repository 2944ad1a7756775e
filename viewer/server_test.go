package viewer

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestServerTCPDeliversHelloAckAndBroadcast(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	hub := NewHub(nil)
	server := NewServer(hub, nil, "test-world", 3)
	go server.ListenTCP(listener)

	conn, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	hello, err := ReadFrame(conn)
	require.NoError(t, err)
	require.Equal(t, FrameHelloAck, hello.Type)

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	f, err := newFrame(FrameEvent, EventMessage{Tick: 7})
	require.NoError(t, err)
	server.Publish(f)

	got, err := ReadFrame(conn)
	require.NoError(t, err)
	require.Equal(t, FrameEvent, got.Type)
}

func TestServerTCPForwardsControlFrames(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	hub := NewHub(nil)
	server := NewServer(hub, nil, "test-world", 1)
	received := make(chan ControlMessage, 1)
	server.OnControl = func(msg ControlMessage) { received <- msg }
	go server.ListenTCP(listener)

	conn, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = ReadFrame(conn) // HelloAck
	require.NoError(t, err)

	f, err := newFrame(FrameControl, ControlMessage{Kind: ControlPlay})
	require.NoError(t, err)
	require.NoError(t, WriteFrame(conn, f))

	select {
	case msg := <-received:
		require.Equal(t, ControlPlay, msg.Kind)
	case <-time.After(time.Second):
		t.Fatal("control message not delivered")
	}
}
