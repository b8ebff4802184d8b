package bridge

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer accepts TCP connections and echoes whatever it reads.
func echoServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				io.Copy(conn, conn)
			}()
		}
	}()
	return ln.Addr().String()
}

func dialProxy(t *testing.T, p *Proxy) (*websocket.Conn, error) {
	t.Helper()
	d := websocket.Dialer{Subprotocols: []string{"binary"}, HandshakeTimeout: 2 * time.Second}
	conn, _, err := d.Dial("ws://"+p.Addr()+"/", nil)
	return conn, err
}

func TestProxyForwardsBinaryFrames(t *testing.T) {
	target := echoServer(t)
	p := NewProxy("127.0.0.1:0")
	ctx := context.Background()
	require.NoError(t, p.Open(ctx, target))
	t.Cleanup(func() { p.Close(context.Background()) })

	conn, err := dialProxy(t, p)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "binary", conn.Subprotocol())

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("RFB 003.008\n")))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, typ)
	assert.Equal(t, "RFB 003.008\n", string(data))
}

func TestProxyRetargetDropsClients(t *testing.T) {
	p := NewProxy("127.0.0.1:0")
	ctx := context.Background()
	require.NoError(t, p.Open(ctx, echoServer(t)))
	t.Cleanup(func() { p.Close(context.Background()) })
	addr := p.Addr()

	conn, err := dialProxy(t, p)
	require.NoError(t, err)
	defer conn.Close()

	second := echoServer(t)
	require.NoError(t, p.Open(ctx, second))
	assert.Equal(t, addr, p.Addr(), "retarget keeps the listener")
	assert.Equal(t, second, p.Target())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestProxyClose(t *testing.T) {
	p := NewProxy("127.0.0.1:0")
	ctx := context.Background()
	require.NoError(t, p.Close(ctx))

	require.NoError(t, p.Open(ctx, echoServer(t)))
	require.NoError(t, p.Close(ctx))
	assert.Empty(t, p.Addr())
	assert.Empty(t, p.Target())
}

func TestProxyUnreachableTarget(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := ln.Addr().String()
	ln.Close()

	p := NewProxy("127.0.0.1:0")
	require.NoError(t, p.Open(context.Background(), dead))
	t.Cleanup(func() { p.Close(context.Background()) })

	_, err = dialProxy(t, p)
	assert.Error(t, err)
}
