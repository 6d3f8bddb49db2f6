package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dkeye/rendezvous/internal/app"
	"github.com/dkeye/rendezvous/internal/app/orch"
	"github.com/dkeye/rendezvous/internal/config"
	"github.com/dkeye/rendezvous/internal/core"
	"github.com/dkeye/rendezvous/internal/domain"
	"github.com/dkeye/rendezvous/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopSignal struct{}

func (nopSignal) TrySend(core.Frame) error { return nil }
func (nopSignal) Close()                   {}

func testConfig() *config.Config {
	return &config.Config{
		Mode:             "test",
		Port:             8080,
		Secret:           "test-secret",
		MaxRoomMembers:   2,
		ReadLimit:        4096,
		PingPeriod:       time.Second,
		PongWait:         2 * time.Second,
		WriteWait:        time.Second,
		SendBuffer:       8,
		JoinRateLimit:    10,
		JoinRateInterval: time.Minute,
	}
}

func setup(t *testing.T) (*gin.Engine, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m := metrics.New()
	o := orch.New(app.NewRegistry(), core.NewDirectory(), m)
	m.TrackRooms(o.Rooms.Len)
	m.TrackConnections(o.Registry.Len)
	return SetupRouter(context.Background(), testConfig(), o), o
}

func do(r http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRouter_Rooms(t *testing.T) {
	r, o := setup(t)
	a := o.Connect(nopSignal{}, nil)
	b := o.Connect(nopSignal{}, nil)
	o.Create(a, "room-1")
	o.Join(b, "room-1")

	rec := do(r, http.MethodGet, "/api/rooms")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rooms":[{"id":"room-1","memberCount":2}]}`, rec.Body.String())

	rec = do(r, http.MethodGet, "/api/rooms/room-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"room-1","memberCount":2}`, rec.Body.String())

	rec = do(r, http.MethodGet, "/api/rooms/room-1/members")
	require.Equal(t, http.StatusOK, rec.Code)
	var members struct {
		RoomID domain.RoomID   `json:"roomId"`
		Peers  []domain.PeerID `json:"peers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &members))
	assert.Equal(t, []domain.PeerID{a.ID(), b.ID()}, members.Peers)

	rec = do(r, http.MethodGet, "/api/rooms/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"RoomNotFound"`)

	rec = do(r, http.MethodGet, "/api/stats")
	assert.JSONEq(t, `{"rooms":1,"connections":2}`, rec.Body.String())
}

func TestRouter_KickPeer(t *testing.T) {
	r, o := setup(t)
	canceled := false
	c := o.Connect(nopSignal{}, func() { canceled = true })

	rec := do(r, http.MethodDelete, "/api/peers/"+string(c.ID()))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, canceled)

	rec = do(r, http.MethodDelete, "/api/peers/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	r, _ := setup(t)

	rec := do(r, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(r, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(r, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rendezvous_rooms 0")
}

func TestClientTokenMiddleware_SetsSessionCookie(t *testing.T) {
	r, _ := setup(t)

	rec := do(r, http.MethodGet, "/healthz")
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "RendezvousSession", cookies[0].Name)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.AddCookie(cookies[0])
	again := httptest.NewRecorder()
	r.ServeHTTP(again, req)
	assert.Empty(t, again.Result().Cookies(), "known session keeps its token")
}

func TestRouter_WebSocketRejectsPlainRequest(t *testing.T) {
	r, o := setup(t)
	rec := do(r, http.MethodGet, "/ws")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, o.Registry.Len())
}
