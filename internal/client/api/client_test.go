package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlibekovAA/safecheck/internal/client/api"
	"github.com/AlibekovAA/safecheck/internal/client/store"
	"github.com/AlibekovAA/safecheck/internal/common/dto"
	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
	commonhttp "github.com/AlibekovAA/safecheck/internal/common/http"
)

type memSessions struct {
	mu sync.Mutex
	m  map[string]store.Session
}

func newMemSessions() *memSessions {
	return &memSessions{m: map[string]store.Session{}}
}

func (s *memSessions) Get(_ context.Context, name string) (store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[name]
	if !ok {
		return store.Session{}, store.ErrSessionNotFound
	}
	return sess, nil
}

func (s *memSessions) Save(_ context.Context, sess store.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[sess.Name] = sess
	return nil
}

func (s *memSessions) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, name)
	return nil
}

func writeEnvelope(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	commonhttp.WriteErrorEnvelope(w, status, code, message, details, "trace-1")
}

func newClient(t *testing.T, srv *httptest.Server, sessions *memSessions) *api.Client {
	t.Helper()
	c, err := api.New(api.Config{BaseURL: srv.URL}, sessions)
	require.NoError(t, err)
	return c
}

func signedIn(sessions *memSessions) {
	_ = sessions.Save(context.Background(), store.Session{
		Name:         "default",
		Username:     "elderly1",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	})
}

func TestGetRecordByUsername_DecodesPublicStatus(t *testing.T) {
	last := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status/elderly1", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		commonhttp.WriteJSON(w, http.StatusOK, dto.PublicStatus{
			Username:         "elderly1",
			DisplayName:      "Grandma Lin",
			LastCheckInAt:    &last,
			IsSafe:           true,
			State:            "safe",
			TimeoutThreshold: 86400,
			Version:          3,
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	st, err := newClient(t, srv, newMemSessions()).GetRecordByUsername(context.Background(), "elderly1")
	require.NoError(t, err)
	assert.Equal(t, "Grandma Lin", st.DisplayName)
	assert.Equal(t, int64(3), st.Version)
	require.NotNil(t, st.LastCheckInAt)
	assert.True(t, st.LastCheckInAt.Equal(last))
}

func TestGetRecordByUsername_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, "USER_NOT_FOUND", "user not found", nil)
	}))
	defer srv.Close()

	_, err := newClient(t, srv, newMemSessions()).GetRecordByUsername(context.Background(), "nobody")
	require.ErrorIs(t, err, commonerrors.ErrUserNotFound)
}

func TestGetRecordByUsername_PlainErrorPagesMapByStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newClient(t, srv, newMemSessions()).GetRecordByUsername(context.Background(), "elderly1")
	require.ErrorIs(t, err, commonerrors.ErrServiceUnavailable)
}

func TestUnreachableServerIsServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := newClient(t, srv, newMemSessions())
	srv.Close()

	_, err := c.GetRecordByUsername(context.Background(), "elderly1")
	require.ErrorIs(t, err, commonerrors.ErrServiceUnavailable)
}

func TestErrors_ValidationDetailsSurvive(t *testing.T) {
	sessions := newMemSessions()
	signedIn(sessions)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusBadRequest, "INVALID_THRESHOLD", "bad threshold", map[string]any{"max": 2592000})
	}))
	defer srv.Close()

	_, err := newClient(t, srv, sessions).UpdateThreshold(context.Background(), "default", 99999999)
	require.ErrorIs(t, err, commonerrors.ErrInvalidThreshold)
	de, ok := commonerrors.AsDomainError(err)
	require.True(t, ok)
	assert.EqualValues(t, 2592000, de.Details()["max"])
}

func TestErrors_UnknownCodesKeepTheirStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusConflict, "USERNAME_TAKEN", "username already exists", nil)
	}))
	defer srv.Close()

	_, err := newClient(t, srv, newMemSessions()).Register(context.Background(), "default", dto.RegisterRequest{Username: "elderly1"})
	de, ok := commonerrors.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, "USERNAME_TAKEN", de.Code())
	assert.Equal(t, http.StatusConflict, de.HTTPStatus())
	assert.Equal(t, commonerrors.CategoryConflict, de.Category())
}

func TestOwnerCalls_WithoutSessionFailClosed(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()
	c := newClient(t, srv, newMemSessions())

	_, err := c.CheckIn(context.Background(), "default")
	require.ErrorIs(t, err, commonerrors.ErrUnauthenticated)
	_, err = c.GetRecordByIdentity(context.Background(), "")
	require.ErrorIs(t, err, commonerrors.ErrUnauthenticated)
	assert.Zero(t, hits.Load())
}

type authServer struct {
	mu        sync.Mutex
	access    string
	refreshes int
	refreshOK bool
}

func (a *authServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/check-in", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		a.mu.Lock()
		ok := r.Header.Get("Authorization") == "Bearer "+a.access
		a.mu.Unlock()
		if !ok {
			writeEnvelope(w, http.StatusUnauthorized, "INVALID_TOKEN", "token is not valid", nil)
			return
		}
		commonhttp.WriteJSON(w, http.StatusOK, dto.CheckInResponse{Success: true, Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), Version: 7})
	})
	mux.HandleFunc("/api/refresh", func(w http.ResponseWriter, r *http.Request) {
		var req dto.RefreshRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		a.mu.Lock()
		defer a.mu.Unlock()
		a.refreshes++
		if !a.refreshOK || req.RefreshToken != "refresh-1" {
			writeEnvelope(w, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "invalid refresh token", nil)
			return
		}
		a.access = "access-2"
		commonhttp.WriteJSON(w, http.StatusOK, dto.AuthResponse{
			Token:        "access-2",
			RefreshToken: "refresh-2",
			ExpiresAt:    time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
			User:         dto.OwnerRecord{Username: "elderly1"},
		})
	})
	return mux
}

func TestOwnerCalls_RefreshOnceOnExpiredToken(t *testing.T) {
	a := &authServer{access: "access-2", refreshOK: true}
	srv := httptest.NewServer(a.handler(t))
	defer srv.Close()
	sessions := newMemSessions()
	signedIn(sessions)

	res, err := newClient(t, srv, sessions).CheckIn(context.Background(), "default")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(7), res.Version)
	assert.Equal(t, 1, a.refreshes)

	sess, err := sessions.Get(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, "access-2", sess.AccessToken)
	assert.Equal(t, "refresh-2", sess.RefreshToken)
}

func TestOwnerCalls_RejectedRefreshIsUnauthenticated(t *testing.T) {
	a := &authServer{access: "never-matches", refreshOK: false}
	srv := httptest.NewServer(a.handler(t))
	defer srv.Close()
	sessions := newMemSessions()
	signedIn(sessions)

	_, err := newClient(t, srv, sessions).CheckIn(context.Background(), "default")
	require.ErrorIs(t, err, commonerrors.ErrUnauthenticated)
	assert.Equal(t, 1, a.refreshes, "check-in is not retried beyond the single refresh")
}

func TestLoginAndLogout(t *testing.T) {
	var revoked string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		var req dto.LoginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "correct horse" {
			writeEnvelope(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password", nil)
			return
		}
		commonhttp.WriteJSON(w, http.StatusOK, dto.AuthResponse{
			Token:        "access-1",
			RefreshToken: "refresh-1",
			User:         dto.OwnerRecord{Username: req.Username, DisplayName: "Grandma Lin"},
		})
	})
	mux.HandleFunc("/api/logout", func(w http.ResponseWriter, r *http.Request) {
		var req dto.RefreshRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		revoked = req.RefreshToken
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sessions := newMemSessions()
	c := newClient(t, srv, sessions)
	ctx := context.Background()

	_, err := c.Login(ctx, "default", "elderly1", "wrong")
	de, ok := commonerrors.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, "INVALID_CREDENTIALS", de.Code())
	_, err = sessions.Get(ctx, "default")
	require.ErrorIs(t, err, store.ErrSessionNotFound)

	res, err := c.Login(ctx, "default", "elderly1", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "Grandma Lin", res.User.DisplayName)

	who, err := c.Username(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "elderly1", who)

	require.NoError(t, c.Logout(ctx, "default"))
	assert.Equal(t, "refresh-1", revoked)
	_, err = sessions.Get(ctx, "default")
	require.ErrorIs(t, err, store.ErrSessionNotFound)

	require.NoError(t, c.Logout(ctx, "default"), "logging out twice is a no-op")
}

func TestLogout_ForgetsSessionWhenServerIsDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	sessions := newMemSessions()
	signedIn(sessions)
	c := newClient(t, srv, sessions)
	srv.Close()

	require.NoError(t, c.Logout(context.Background(), "default"))
	_, err := sessions.Get(context.Background(), "default")
	require.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestNew_ValidatesServerURL(t *testing.T) {
	_, err := api.New(api.Config{BaseURL: "ftp://safe.example.com"}, newMemSessions())
	require.Error(t, err)
	_, err = api.New(api.Config{BaseURL: "http://"}, newMemSessions())
	require.Error(t, err)

	c, err := api.New(api.Config{BaseURL: ""}, newMemSessions())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.BaseURL())
}

func TestShareURL_KeepsBasePathAndEscapes(t *testing.T) {
	c, err := api.New(api.Config{BaseURL: "https://safe.example.com/app/"}, newMemSessions())
	require.NoError(t, err)
	assert.Equal(t, "https://safe.example.com/app/status/elderly1", c.ShareURL("elderly1"))
	assert.Equal(t, "https://safe.example.com/app/status/a%20b", c.ShareURL("a b"))
}
