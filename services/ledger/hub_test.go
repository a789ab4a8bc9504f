package ledger

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsc-eco/vsc-farm/contracts/farm"
)

func dialEvents(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_BroadcastsCommittedEvents(t *testing.T) {
	svc, _, h := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dialEvents(t, srv)
	require.Eventually(t, func() bool { return svc.Hub().Len() == 1 }, time.Second, 10*time.Millisecond)

	setupFarm(t, h)

	want := []string{
		farm.EventStorageDeposited,
		farm.EventStorageDeposited,
		farm.EventFarmCreated,
		farm.EventRewardAdded,
		farm.EventStaked,
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for _, method := range want {
		var ev farm.Event
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, method, ev.Method)
	}
}

func TestHub_FailedCallsAreNotBroadcast(t *testing.T) {
	svc, _, h := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dialEvents(t, srv)
	require.Eventually(t, func() bool { return svc.Hub().Len() == 1 }, time.Second, 10*time.Millisecond)

	// rejected for lack of storage, then a successful deposit
	w := doJSON(t, h, "POST", "/api/v1/farms", map[string]interface{}{"caller": "creator", "farm": testFarmInput})
	require.Equal(t, http.StatusPaymentRequired, w.Code)
	w = doJSON(t, h, "POST", "/api/v1/accounts/creator/storage", map[string]string{"amount": "5"})
	require.Equal(t, http.StatusOK, w.Code)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev farm.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, farm.EventStorageDeposited, ev.Method)
	assert.Equal(t, "creator", ev.Account)
	assert.Equal(t, "5", ev.Amount.String())
}

func TestHub_DisconnectAndClose(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	first, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	second, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer second.Close()

	require.Eventually(t, func() bool { return hub.Len() == 2 }, time.Second, 10*time.Millisecond)

	first.Close()
	assert.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Equal(t, 0, hub.Len())

	second.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = second.ReadMessage()
	assert.Error(t, err)
}

func TestHub_BroadcastWithoutSubscribers(t *testing.T) {
	hub := NewHub()
	hub.Broadcast([]farm.Event{{Method: farm.EventFarmCreated}})
	hub.Broadcast(nil)
	assert.Equal(t, 0, hub.Len())
}
