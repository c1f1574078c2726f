package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/quizhall/go/internal/events"
	"github.com/mcdev12/quizhall/go/internal/game"
	"github.com/mcdev12/quizhall/go/internal/game/router"
	"github.com/mcdev12/quizhall/go/internal/models"
	"github.com/mcdev12/quizhall/go/internal/session"
)

// fakeSessions records calls. Methods a test does not override panic
// through the nil embedded interface.
type fakeSessions struct {
	Sessions

	mu    sync.Mutex
	calls []string
	err   error

	stake    router.StakeAction
	amount   int
	sessions map[string]*models.GameSession
	deleted  []string
	deleteBy string
}

func (f *fakeSessions) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeSessions) BuzzIn(_ context.Context, sessionID, by string) error {
	return f.record("buzz:" + sessionID + ":" + by)
}

func (f *fakeSessions) Kick(_ context.Context, sessionID, by, target string) error {
	return f.record("kick:" + by + ":" + target)
}

func (f *fakeSessions) StakeBid(_ context.Context, _, _ string, action router.StakeAction, amount int) error {
	f.stake, f.amount = action, amount
	return f.record("stake")
}

func (f *fakeSessions) Join(_ context.Context, sessionID string, req game.JoinRequest) (*models.GameSession, error) {
	if err := f.record("join:" + req.ParticipantID); err != nil {
		return nil, err
	}
	return &models.GameSession{ID: sessionID}, nil
}

func (f *fakeSessions) Disconnect(_ context.Context, sessionID, participantID string) error {
	return f.record("disconnect:" + participantID)
}

func (f *fakeSessions) GetSession(_ context.Context, id string) (*models.GameSession, error) {
	if s, ok := f.sessions[id]; ok {
		return s, nil
	}
	return nil, session.ErrNotFound
}

func (f *fakeSessions) CreateSession(_ context.Context, req game.CreateRequest) (*models.GameSession, error) {
	if req.PackageID == "" {
		return nil, &game.ValidationError{Code: game.CodeInvalid, Message: "package_id is required"}
	}
	return &models.GameSession{ID: "new", PackageID: req.PackageID, Phase: models.PhaseLobby}, nil
}

func (f *fakeSessions) DeleteSession(_ context.Context, id, by string) error {
	if _, ok := f.sessions[id]; !ok {
		return session.ErrNotFound
	}
	f.deleted = append(f.deleted, id)
	f.deleteBy = by
	return nil
}

func (f *fakeSessions) ListSessions(_ context.Context, filter session.ListFilter) ([]session.Summary, error) {
	var out []session.Summary
	for _, s := range f.sessions {
		if s.Private && !filter.IncludePrivate {
			continue
		}
		if !strings.HasPrefix(s.Title, filter.TitlePrefix) {
			continue
		}
		out = append(out, session.Summary{ID: s.ID, Title: s.Title})
	}
	return out, nil
}

func fakeConnection(sessionID, participantID string) *Connection {
	return &Connection{
		ID:            sessionID + "/" + participantID,
		SessionID:     sessionID,
		ParticipantID: participantID,
		Send:          make(chan []byte, 8),
	}
}

func nextFrame(t *testing.T, c *Connection) Frame {
	t.Helper()
	select {
	case raw, ok := <-c.Send:
		require.True(t, ok, "connection closed")
		var f Frame
		require.NoError(t, json.Unmarshal(raw, &f))
		return f
	default:
		t.Fatal("no frame queued")
		return Frame{}
	}
}

func errorFrame(t *testing.T, c *Connection) ErrorData {
	t.Helper()
	f := nextFrame(t, c)
	require.Equal(t, events.KindError, f.Type)
	var data ErrorData
	require.NoError(t, json.Unmarshal(f.Data, &data))
	return data
}

func TestDispatcherRoutesCommands(t *testing.T) {
	fake := &fakeSessions{}
	d := NewDispatcher(fake)
	c := fakeConnection("s1", "alice")

	d.Handle(context.Background(), c, []byte(`{"type":"BUZZ"}`))
	d.Handle(context.Background(), c, []byte(`{"type":"KICK","payload":{"participant_id":"bob"}}`))
	d.Handle(context.Background(), c, []byte(`{"type":"STAKE_BID","payload":{"action":"BID","amount":400}}`))

	assert.Equal(t, []string{"buzz:s1:alice", "kick:alice:bob", "stake"}, fake.calls)
	assert.Equal(t, router.StakeBid, fake.stake)
	assert.Equal(t, 400, fake.amount)
	assert.Empty(t, c.Send, "successful commands get no direct reply")
}

func TestDispatcherRepliesWithErrorsToSenderOnly(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		frame    string
		wantCode string
	}{
		{
			name:     "validation",
			err:      &game.ValidationError{Code: game.CodeNotYourTurn, Message: "not your turn"},
			frame:    `{"type":"BUZZ","request_id":"r1"}`,
			wantCode: game.CodeNotYourTurn,
		},
		{
			name:     "missing session",
			err:      session.ErrNotFound,
			frame:    `{"type":"BUZZ","request_id":"r1"}`,
			wantCode: codeNotFound,
		},
		{
			name:     "internal",
			err:      errors.New("kv unavailable"),
			frame:    `{"type":"BUZZ","request_id":"r1"}`,
			wantCode: codeInternal,
		},
		{
			name:     "unknown command",
			frame:    `{"type":"DANCE","request_id":"r1"}`,
			wantCode: game.CodeInvalid,
		},
		{
			name:     "bad payload",
			frame:    `{"type":"KICK","request_id":"r1","payload":{"participant_id":7}}`,
			wantCode: game.CodeInvalid,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(&fakeSessions{err: tt.err})
			c := fakeConnection("s1", "alice")

			d.Handle(context.Background(), c, []byte(tt.frame))

			data := errorFrame(t, c)
			assert.Equal(t, tt.wantCode, data.Code)
			assert.Equal(t, "r1", data.RequestID)
		})
	}
}

func TestDispatcherRejectsMalformedFrame(t *testing.T) {
	d := NewDispatcher(&fakeSessions{})
	c := fakeConnection("s1", "alice")

	d.Handle(context.Background(), c, []byte(`not json`))

	assert.Equal(t, game.CodeInvalid, errorFrame(t, c).Code)
}

func TestVerifier(t *testing.T) {
	assert.Nil(t, NewVerifier(""), "empty secret disables tokens")

	v := NewVerifier("secret")
	token, err := v.Sign(Claims{
		Name: "Alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "Alice", claims.Name)

	_, err = NewVerifier("other").Verify(token)
	assert.Error(t, err, "wrong secret")

	_, err = v.Verify("")
	assert.ErrorIs(t, err, errMissingToken)

	expired, err := v.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	anonymous, err := v.Sign(Claims{Name: "nobody"})
	require.NoError(t, err)
	_, err = v.Verify(anonymous)
	assert.Error(t, err, "token without subject")
}

func TestDeliveryTargetsSessionAndRecipient(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	alice := fakeConnection("s1", "alice")
	bob := fakeConnection("s1", "bob")
	other := fakeConnection("s2", "carol")
	for _, c := range []*Connection{alice, bob, other} {
		cm.registerConnection(c)
	}

	cm.handleDelivery(delivery{sessionID: "s1", data: []byte(`all`)})
	cm.handleDelivery(delivery{sessionID: "s1", recipientID: "bob", data: []byte(`bob`)})

	assert.Equal(t, []byte(`all`), <-alice.Send)
	assert.Equal(t, []byte(`all`), <-bob.Send)
	assert.Equal(t, []byte(`bob`), <-bob.Send)
	assert.Empty(t, alice.Send)
	assert.Empty(t, other.Send)
	assert.Equal(t, map[string]int{"total_connections": 3, "active_sessions": 2}, cm.Stats())
}

func TestCloseHookRunsForLastConnectionOfParticipant(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	var closed []string
	cm.OnClose(func(sessionID, participantID string) {
		closed = append(closed, sessionID+"/"+participantID)
	})

	tab1 := fakeConnection("s1", "alice")
	tab2 := fakeConnection("s1", "alice")
	cm.registerConnection(tab1)
	cm.registerConnection(tab2)

	cm.unregisterConnection(tab1)
	assert.Empty(t, closed, "alice still has a tab open")

	cm.unregisterConnection(tab2)
	assert.Equal(t, []string{"s1/alice"}, closed)

	cm.unregisterConnection(tab2)
	assert.Len(t, closed, 1, "unregistering twice is a no-op")
	assert.True(t, tab2.trySend([]byte(`late`)), "sending to a closed connection is dropped silently")
}

func TestRouteClosesSocketsOfRemovedParticipant(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	alice := fakeConnection("s1", "alice")
	bob := fakeConnection("s1", "bob")
	cm.registerConnection(alice)
	cm.registerConnection(bob)

	w, err := newWireEvent(events.ToAll("s1", events.KindParticipantLeft, events.ParticipantLeftPayload{ParticipantID: "bob"}), time.Now())
	require.NoError(t, err)
	require.NoError(t, route(cm, w))

	// frame first, then the drop marker
	cm.handleDelivery(<-cm.deliverCh)
	cm.handleDelivery(<-cm.deliverCh)

	f := nextFrame(t, bob)
	assert.Equal(t, events.KindParticipantLeft, f.Type)
	_, open := <-bob.Send
	assert.False(t, open, "bob's socket is closed after the frame")

	assert.Equal(t, events.KindParticipantLeft, nextFrame(t, alice).Type)
	assert.Equal(t, 1, cm.Stats()["total_connections"])
}

func TestLocalEmitterTargetsOneParticipant(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	alice := fakeConnection("s1", "alice")
	bob := fakeConnection("s1", "bob")
	cm.registerConnection(alice)
	cm.registerConnection(bob)

	require.NoError(t, NewLocal(cm).Emit(context.Background(), events.ToOne("s1", "alice", events.KindStateSync, map[string]string{"id": "s1"})))
	cm.handleDelivery(<-cm.deliverCh)

	f := nextFrame(t, alice)
	assert.Equal(t, events.KindStateSync, f.Type)
	assert.Equal(t, "s1", f.SessionID)
	assert.JSONEq(t, `{"id":"s1"}`, string(f.Data))
	assert.Empty(t, bob.Send)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "quizhall.sessions.abc.events", Subject("abc"))
}

func newStateServer(t *testing.T, fake *fakeSessions, verifier *Verifier, clock clockwork.Clock) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	NewStateHandler(fake, verifier, clock).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStateHandler(t *testing.T) {
	fake := &fakeSessions{sessions: map[string]*models.GameSession{
		"open":   {ID: "open", Title: "Friday quiz", Phase: models.PhaseLobby},
		"hidden": {ID: "hidden", Title: "Friday secret", Private: true, Phase: models.PhaseLobby},
	}}
	srv := newStateServer(t, fake, nil, nil)

	t.Run("list hides private sessions", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/sessions?title_prefix=Friday")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out []session.Summary
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		require.Len(t, out, 1)
		assert.Equal(t, "open", out[0].ID)
	})

	t.Run("state of missing session", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/sessions/nope/state")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("state", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/sessions/open/state")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out SessionStateResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Equal(t, "open", out.Session.ID)
		assert.Nil(t, out.TimeRemaining)
	})

	t.Run("create validates", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/api/sessions", "application/json", strings.NewReader(`{"title":"x"}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var data ErrorData
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&data))
		assert.Equal(t, game.CodeInvalid, data.Code)
	})

	t.Run("create", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/api/sessions", "application/json", strings.NewReader(`{"package_id":"pkg-1"}`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})

	t.Run("delete", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/open", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, []string{"open"}, fake.deleted)
		assert.Empty(t, fake.deleteBy)
	})
}

func TestDeleteRequiresTokenWhenEnabled(t *testing.T) {
	fake := &fakeSessions{sessions: map[string]*models.GameSession{"s1": {ID: "s1"}}}
	v := NewVerifier("secret")
	srv := newStateServer(t, fake, v, nil)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/s1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := v.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "host"}})
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "host", fake.deleteBy)
}

func startGateway(t *testing.T, fake *fakeSessions) (*Service, string) {
	t.Helper()
	svc := NewService(DefaultConfig(), nil)
	svc.Attach(fake, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return svc, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketJoinFailureSendsErrorAndCloses(t *testing.T) {
	fake := &fakeSessions{err: &game.ValidationError{Code: game.CodeBanned, Message: "banned"}}
	_, url := startGateway(t, fake)

	conn, _, err := websocket.DefaultDialer.Dial(url+"/ws/session?session_id=s1&participant_id=mallory", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, events.KindError, f.Type)
	var data ErrorData
	require.NoError(t, json.Unmarshal(f.Data, &data))
	assert.Equal(t, game.CodeBanned, data.Code)

	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "socket is closed after the error")
}

func TestWebSocketCommandsReachSessions(t *testing.T) {
	fake := &fakeSessions{}
	_, url := startGateway(t, fake)

	conn, _, err := websocket.DefaultDialer.Dial(url+"/ws/session?session_id=s1&participant_id=alice", nil)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(Command{Type: "BUZZ"}))
	require.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return len(fake.calls) >= 2
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return len(fake.calls) == 3
	}, 5*time.Second, 10*time.Millisecond)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	// the read pump runs before Join returns, so the first two may swap
	assert.ElementsMatch(t, []string{"join:alice", "buzz:s1:alice"}, fake.calls[:2])
	assert.Equal(t, "disconnect:alice", fake.calls[2])
}

func TestWebSocketRequiresParticipant(t *testing.T) {
	_, url := startGateway(t, &fakeSessions{})

	_, resp, err := websocket.DefaultDialer.Dial(url+"/ws/session?session_id=s1", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func finalSession(id string, private bool, now time.Time) *models.GameSession {
	return &models.GameSession{
		ID:      id,
		Private: private,
		Phase:   models.PhaseFinalAnswering,
		Participants: []models.Participant{
			{ID: "host", Role: models.RoleHost},
			{ID: "p1", Role: models.RolePlayer},
			{ID: "p2", Role: models.RolePlayer},
		},
		Timer: models.NewTimer("t1", models.PhaseFinalAnswering, now, time.Minute),
		State: models.PhaseState{Final: &models.FinalRound{
			Bids:    map[string]int{"p1": 50, "p2": 40},
			Answers: map[string]string{"p1": "Oslo"},
		}},
	}
}

func getState(t *testing.T, url string, token string) (*http.Response, SessionStateResponse) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out SessionStateResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestSessionStateIsProjectedForViewer(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC))
	fake := &fakeSessions{sessions: map[string]*models.GameSession{
		"open":   finalSession("open", false, clock.Now()),
		"hidden": finalSession("hidden", true, clock.Now()),
	}}
	srv := newStateServer(t, fake, nil, clock)
	clock.Advance(15 * time.Second)

	t.Run("anonymous", func(t *testing.T) {
		resp, out := getState(t, srv.URL+"/api/sessions/open/state", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, out.Session.State.Final.Bids)
		assert.Empty(t, out.Session.State.Final.Answers)
		require.NotNil(t, out.TimeRemaining)
		assert.Equal(t, int64(45000), *out.TimeRemaining)
	})

	t.Run("player", func(t *testing.T) {
		resp, out := getState(t, srv.URL+"/api/sessions/open/state?participant_id=p2", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, map[string]int{"p2": 40}, out.Session.State.Final.Bids)
		assert.Empty(t, out.Session.State.Final.Answers)
	})

	t.Run("host", func(t *testing.T) {
		resp, out := getState(t, srv.URL+"/api/sessions/open/state?participant_id=host", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Oslo", out.Session.State.Final.Answers["p1"])
	})

	t.Run("private needs a participant", func(t *testing.T) {
		resp, _ := getState(t, srv.URL+"/api/sessions/hidden/state", "")
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp, _ = getState(t, srv.URL+"/api/sessions/hidden/state?participant_id=p1", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestSessionStateViewerFromToken(t *testing.T) {
	fake := &fakeSessions{sessions: map[string]*models.GameSession{
		"hidden": finalSession("hidden", true, time.Now()),
	}}
	v := NewVerifier("secret")
	srv := newStateServer(t, fake, v, nil)

	resp, _ := getState(t, srv.URL+"/api/sessions/hidden/state?participant_id=host", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "query identity is ignored with tokens enabled")

	token, err := v.Sign(Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "p1"}})
	require.NoError(t, err)
	resp, out := getState(t, srv.URL+"/api/sessions/hidden/state", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]int{"p1": 50}, out.Session.State.Final.Bids)
	assert.Equal(t, map[string]string{"p1": "Oslo"}, out.Session.State.Final.Answers)

	resp, _ = getState(t, srv.URL+"/api/sessions/hidden/state", "garbage")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSyncCommandSendsViewerProjection(t *testing.T) {
	fake := &fakeSessions{sessions: map[string]*models.GameSession{
		"s1": finalSession("s1", false, time.Now()),
	}}
	d := NewDispatcher(fake)
	c := fakeConnection("s1", "p2")

	d.Handle(context.Background(), c, []byte(`{"type":"SYNC"}`))

	f := nextFrame(t, c)
	require.Equal(t, events.KindStateSync, f.Type)
	var got models.GameSession
	require.NoError(t, json.Unmarshal(f.Data, &got))
	assert.Equal(t, map[string]int{"p2": 40}, got.State.Final.Bids)
	assert.Empty(t, got.State.Final.Answers)
	assert.Len(t, fake.sessions["s1"].State.Final.Answers, 1, "stored session is untouched")
}
