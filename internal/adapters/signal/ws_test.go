package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Consult/internal/auth"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
)

type wsServer struct {
	srv    *httptest.Server
	ctl    *SignalWSController
	issuer *auth.Issuer
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())

	iss := auth.NewIssuer("ws-secret", "consult-test")
	ctl := newController()

	r := gin.New()
	r.Use(sessions.Sessions("test", cookie.NewStore([]byte("k"))))
	r.GET("/ws", auth.Middleware(iss), func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &wsServer{srv: srv, ctl: ctl, issuer: iss}
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
}

func (s *wsServer) dial(t *testing.T, id domain.Identity) *websocket.Conn {
	t.Helper()
	tok, err := s.issuer.Sign(id, time.Minute)
	require.NoError(t, err)
	ws, resp, err := websocket.DefaultDialer.Dial(s.url()+"?access_token="+tok, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(v))
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestHandshakeRequiresAuthentication(t *testing.T) {
	s := newWSServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(s.url(), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	_, resp, err = websocket.DefaultDialer.Dial(s.url()+"?access_token=garbage", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestSignalingOverWebsocket(t *testing.T) {
	s := newWSServer(t)
	reg := s.ctl.Orch.Registry

	pat := s.dial(t, patient)
	send(t, pat, map[string]any{"type": "join", "room": "ABC123", "displayName": "Pat"})
	send(t, pat, map[string]any{"type": "whoami"})
	who := readFrame(t, pat)
	require.Equal(t, "whoami", who["type"])
	require.Equal(t, "ABC123", who["room"])
	assert.Equal(t, "patient", who["role"])

	doc := s.dial(t, doctor)
	send(t, doc, map[string]any{"type": "join", "room": "ABC123", "displayName": "Dr. Who"})

	present := readFrame(t, doc)
	assert.Equal(t, core.EventPeerPresent, present["type"])
	assert.Equal(t, "Pat", present["name"])

	joined := readFrame(t, pat)
	assert.Equal(t, core.EventPeerJoined, joined["type"])
	assert.Equal(t, "Dr. Who", joined["name"])
	assert.Equal(t, 2, reg.ConnectionCount())

	send(t, doc, map[string]any{"type": "signal", "room": "ABC123", "payload": map[string]any{"sdp": "v=0"}})
	sig := readFrame(t, pat)
	assert.Equal(t, core.EventSignal, sig["type"])
	assert.Equal(t, "Dr. Who", sig["from"])
	assert.Equal(t, map[string]any{"sdp": "v=0"}, sig["payload"])

	send(t, doc, map[string]any{"type": "startConsultation", "room": "ABC123"})
	started := readFrame(t, doc)
	assert.Equal(t, core.EventConsultationRegistered, started["type"])
	assert.Equal(t, true, started["created"])

	// Dropping the socket without a leave message still releases presence.
	require.NoError(t, doc.Close())
	left := readFrame(t, pat)
	assert.Equal(t, core.EventPeerLeft, left["type"])
	assert.Equal(t, "Dr. Who", left["name"])
	assert.Eventually(t, func() bool { return reg.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, pat.Close())
	assert.Eventually(t, func() bool { return reg.ConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, reg.Snapshot())
}
