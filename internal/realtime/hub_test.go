package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bulkmail/bulkmail/internal/logger"
	"github.com/bulkmail/bulkmail/internal/model"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := NewHub(logger.Nop())
	go hub.Run(ctx)
	return hub
}

func TestHub_Broadcast(t *testing.T) {
	hub := startHub(t)

	first := &Client{hub: hub, send: make(chan []byte, 4)}
	second := &Client{hub: hub, send: make(chan []byte, 4)}
	hub.register <- first
	hub.register <- second

	hub.Broadcast(map[string]string{"type": "state"})

	for i, c := range []*Client{first, second} {
		select {
		case msg := <-c.send:
			assert.JSONEq(t, `{"type":"state"}`, string(msg))
		case <-time.After(time.Second):
			t.Fatalf("client %d did not receive broadcast", i+1)
		}
	}

	hub.unregister <- first
	hub.Broadcast("again")

	select {
	case msg, ok := <-first.send:
		assert.False(t, ok, "unregistered client received %s", msg)
	case <-time.After(50 * time.Millisecond):
	}

	select {
	case msg := <-second.send:
		assert.Equal(t, `"again"`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("second client did not receive broadcast")
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	hub := startHub(t)

	slow := &Client{hub: hub, send: make(chan []byte)}
	hub.register <- slow
	hub.Broadcast("x")

	select {
	case _, ok := <-slow.send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("slow client was not closed")
	}
}

func TestHandler_DeliversProgressEnvelope(t *testing.T) {
	hub := startHub(t)

	srv := httptest.NewServer(Handler(hub, nil))
	defer srv.Close()

	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer conn.Close()

	// registration happens on the hub goroutine
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, hub.PublishProgress(context.Background(), model.Progress{
		RunID: "r1", Phase: model.PhaseAttempt, Index: 1, Total: 2, Recipient: "a@x.com",
	}))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var env struct {
		Type string         `json:"type"`
		Data model.Progress `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, EventProgress, env.Type)
	assert.Equal(t, "a@x.com", env.Data.Recipient)
	assert.Equal(t, 1, env.Data.Index)
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	hub := startHub(t)

	srv := httptest.NewServer(Handler(hub, []string{"http://allowed.example"}))
	defer srv.Close()

	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := map[string][]string{"Origin": {"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(u, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 403, resp.StatusCode)
}
