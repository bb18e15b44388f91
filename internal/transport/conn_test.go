package transport

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeConn(t *testing.T) (*Conn, net.Conn, chan Event) {
	t.Helper()
	local, remote := net.Pipe()
	events := make(chan Event, 16)
	conn := NewConn(local, events, 16, 512)
	conn.Start()
	return conn, remote, events
}

func waitEvent(t *testing.T, events chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no connection event")
		return Event{}
	}
}

func TestConnReadEvents(t *testing.T) {
	conn, remote, events := pipeConn(t)
	defer conn.Abort()

	go remote.Write([]byte("hello"))

	ev := waitEvent(t, events)
	require.NoError(t, ev.Err)
	assert.Equal(t, conn, ev.Conn)
	assert.Equal(t, []byte("hello"), ev.Data)
}

func TestConnPeerCloseDeliversEOF(t *testing.T) {
	conn, remote, events := pipeConn(t)
	defer conn.Abort()

	remote.Close()

	ev := waitEvent(t, events)
	assert.ErrorIs(t, ev.Err, io.EOF)
}

func TestConnWriteAndGracefulClose(t *testing.T) {
	conn, remote, _ := pipeConn(t)

	received := make(chan []byte, 1)
	go func() {
		data, _ := io.ReadAll(remote)
		received <- data
	}()

	conn.Enqueue([]byte("one "))
	conn.Enqueue([]byte("two"))
	conn.CloseGraceful()

	// 优雅关闭先送完排队数据再关 socket
	select {
	case data := <-received:
		assert.Equal(t, []byte("one two"), data)
	case <-time.After(5 * time.Second):
		t.Fatal("remote did not observe close")
	}

	select {
	case <-conn.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("writer did not finish")
	}
}

func TestConnAbortUnblocksReader(t *testing.T) {
	conn, _, events := pipeConn(t)

	conn.Abort()

	ev := waitEvent(t, events)
	assert.Error(t, ev.Err)

	select {
	case <-conn.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("connection did not shut down")
	}
}
