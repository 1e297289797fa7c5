package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlibekovAA/safecheck/internal/client/api"
	"github.com/AlibekovAA/safecheck/internal/common/dto"
	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
)

// streamServer upgrades /ws/status/elderly1, runs script against the
// connection and then drains it until the client goes away.
func streamServer(t *testing.T, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/status/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/status/elderly1" {
			writeEnvelope(w, http.StatusNotFound, "USER_NOT_FOUND", "user not found", nil)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func waitDone(t *testing.T, sub *api.StatusSubscription) {
	t.Helper()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not end")
	}
}

func TestSubscribe_DeliversStatusMessagesOnly(t *testing.T) {
	srv := streamServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{not json`))
		_ = conn.WriteJSON(map[string]string{"type": "hello"})
		_ = conn.WriteJSON(dto.StatusMessage{Type: dto.StatusMessageType, Payload: dto.PublicStatus{Username: "elderly1", Version: 4}})
	})
	c := newClient(t, srv, newMemSessions())

	got := make(chan dto.PublicStatus, 4)
	sub, err := c.SubscribeToChanges(context.Background(), "elderly1", func(st dto.PublicStatus) { got <- st })
	require.NoError(t, err)
	defer sub.Close()

	select {
	case st := <-got:
		assert.Equal(t, int64(4), st.Version)
	case <-time.After(2 * time.Second):
		t.Fatal("no status delivered")
	}
	assert.Empty(t, got)
}

func TestSubscribe_UnknownUserFailsHandshake(t *testing.T) {
	srv := streamServer(t, func(*websocket.Conn) {})
	c := newClient(t, srv, newMemSessions())

	_, err := c.SubscribeToChanges(context.Background(), "nobody", func(dto.PublicStatus) {})
	require.ErrorIs(t, err, commonerrors.ErrUserNotFound)

	_, err = c.SubscribeToChanges(context.Background(), "  ", func(dto.PublicStatus) {})
	require.ErrorIs(t, err, commonerrors.ErrUserNotFound)
}

func TestSubscribe_ServerCloseEndsStream(t *testing.T) {
	srv := streamServer(t, func(conn *websocket.Conn) {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server_shutdown")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	})
	c := newClient(t, srv, newMemSessions())

	sub, err := c.SubscribeToChanges(context.Background(), "elderly1", nil)
	require.NoError(t, err)

	waitDone(t, sub)
	assert.ErrorIs(t, sub.Err(), api.ErrStreamClosed)
	require.NoError(t, sub.Close())
}

func TestSubscribe_LocalCloseIsClean(t *testing.T) {
	srv := streamServer(t, func(*websocket.Conn) {})
	c := newClient(t, srv, newMemSessions())

	sub, err := c.SubscribeToChanges(context.Background(), "elderly1", nil)
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	waitDone(t, sub)
	assert.NoError(t, sub.Err())
	require.NoError(t, sub.Close(), "close is idempotent")
}

func TestSubscribe_UnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := newClient(t, srv, newMemSessions())
	srv.Close()

	_, err := c.SubscribeToChanges(context.Background(), "elderly1", nil)
	require.ErrorIs(t, err, commonerrors.ErrServiceUnavailable)
}
