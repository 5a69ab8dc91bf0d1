package signal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handshake struct {
	SID  string
	Auth string
}

// echoServer accepts sockets, records their handshake and echoes text
// frames. Sockets are handed out on conns for the test to drive.
func echoServer(t *testing.T) (string, chan handshake, chan *websocket.Conn) {
	t.Helper()
	seen := make(chan handshake, 8)
	conns := make(chan *websocket.Conn, 8)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		seen <- handshake{SID: r.URL.Query().Get("sid"), Auth: r.Header.Get("Authorization")}
		conns <- ws
		for {
			kind, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(kind, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", seen, conns
}

type frames struct {
	mu  sync.Mutex
	got []string
}

func (f *frames) add(fr core.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, string(fr))
}

func (f *frames) list() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.got...)
}

func TestSendBeforeConnect(t *testing.T) {
	c := NewClient(Options{URL: "ws://127.0.0.1:1/ws"})
	assert.ErrorIs(t, c.TrySend(core.Frame(`{}`)), ErrNotConnected)
	assert.NotEmpty(t, c.LocalAddress())
}

func TestConnectSendsIdentityAndRelaysFrames(t *testing.T) {
	url, seen, _ := echoServer(t)
	c := NewClient(Options{URL: url, Token: "tok"})
	got := &frames{}
	c.OnFrame(got.add)

	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Close)

	hs := <-seen
	assert.Equal(t, c.LocalAddress(), hs.SID)
	assert.Equal(t, "Bearer tok", hs.Auth)

	require.NoError(t, c.TrySend(core.Frame(`{"event":"join-call"}`)))
	require.Eventually(t, func() bool { return len(got.list()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, `{"event":"join-call"}`, got.list()[0])
}

func TestReconnectKeepsSID(t *testing.T) {
	url, seen, conns := echoServer(t)
	c := NewClient(Options{URL: url, ReconnectDelay: 20 * time.Millisecond})
	got := &frames{}
	c.OnFrame(got.add)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Close)

	first := <-seen
	(<-conns).Close()

	select {
	case second := <-seen:
		assert.Equal(t, first.SID, second.SID)
	case <-time.After(5 * time.Second):
		t.Fatal("client did not reconnect")
	}

	require.Eventually(t, func() bool {
		return c.TrySend(core.Frame(`{"event":"ping"}`)) == nil
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(got.list()) > 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestConnectFailure(t *testing.T) {
	c := NewClient(Options{URL: "ws://127.0.0.1:1/ws"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, c.Connect(ctx))
}

func TestCloseStopsSending(t *testing.T) {
	url, _, _ := echoServer(t)
	c := NewClient(Options{URL: url})
	require.NoError(t, c.Connect(context.Background()))
	c.Close()
	assert.ErrorIs(t, c.TrySend(core.Frame(`{}`)), ErrNotConnected)
}
