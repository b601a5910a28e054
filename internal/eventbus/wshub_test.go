package eventbus

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, bus *Bus) (*httptest.Server, *WSHub, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewWSHub(bus)
	stop := make(chan struct{})
	go hub.Run(stop)

	r := gin.New()
	r.GET("/ws", hub.HandleWS)
	srv := httptest.NewServer(r)

	return srv, hub, func() {
		close(stop)
		srv.Close()
	}
}

func dialWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestWSHubBroadcastsPublishedEvents(t *testing.T) {
	bus := NewBus(4)
	srv, _, cleanup := newTestServer(t, bus)
	defer cleanup()

	conn := dialWS(t, srv, "")
	defer conn.Close()

	time.Sleep(50 * time.Millisecond) // allow registration to land
	bus.Publish(ProfileCreated(mustUUID()))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt DomainEvent
	require.NoError(t, json.Unmarshal(data, &evt))
	require.Equal(t, TypeProfileCreated, evt.Type)
}

func TestWSHubCameraFilterDropsOtherCameras(t *testing.T) {
	bus := NewBus(4)
	srv, _, cleanup := newTestServer(t, bus)
	defer cleanup()

	wantCamera := mustUUID()
	conn := dialWS(t, srv, "?camera_id="+wantCamera.String())
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	otherCamera := mustUUID()
	bus.Publish(CameraStatusChanged(otherCamera, "error"))
	bus.Publish(CameraStatusChanged(wantCamera, "online"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt DomainEvent
	require.NoError(t, json.Unmarshal(data, &evt))
	require.Equal(t, wantCamera, *evt.CameraID)
}
