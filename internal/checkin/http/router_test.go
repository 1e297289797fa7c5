package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlibekovAA/safecheck/internal/changefeed"
	checkinhttp "github.com/AlibekovAA/safecheck/internal/checkin/http"
	"github.com/AlibekovAA/safecheck/internal/checkin/service"
	"github.com/AlibekovAA/safecheck/internal/common/clock"
	"github.com/AlibekovAA/safecheck/internal/common/config"
	"github.com/AlibekovAA/safecheck/internal/common/dto"
	"github.com/AlibekovAA/safecheck/internal/common/logger"
	"github.com/AlibekovAA/safecheck/internal/common/mocks"
	userdomain "github.com/AlibekovAA/safecheck/internal/user/domain"
	userrepo "github.com/AlibekovAA/safecheck/internal/user/repository"
)

const testSecret = "test-secret-key-must-be-at-least-32-bytes-long"

type errorEnvelope struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

type harness struct {
	handler http.Handler
	repo    *mocks.UserRepo
	broker  *changefeed.Broker
	clock   *clock.MockClock
	user    userdomain.User
}

func newHarness(t *testing.T, mutate ...func(*config.ServerConfig)) *harness {
	t.Helper()

	h := &harness{
		repo:   &mocks.UserRepo{},
		broker: changefeed.NewBroker(),
		clock:  clock.NewMockClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
	}
	h.user = userdomain.User{
		ID:               "user-1",
		Username:         "elderly1",
		DisplayName:      "Grandma Lin",
		Contacts:         userdomain.Contacts{Contact1Name: "Amy", Contact1Phone: "+1 555 0100"},
		TimeoutThreshold: 86400,
		Version:          1,
		CreatedAt:        h.clock.Now().Add(-time.Hour),
	}
	h.repo.FindByIDFunc = func(_ context.Context, id userdomain.ID) (userdomain.User, error) {
		if id != h.user.ID {
			return userdomain.User{}, userrepo.ErrUserNotFound
		}
		return h.user, nil
	}
	h.repo.FindByUsernameFunc = func(_ context.Context, username string) (userdomain.User, error) {
		if username != h.user.Username {
			return userdomain.User{}, userrepo.ErrUserNotFound
		}
		return h.user, nil
	}

	log := logger.NewWriter(io.Discard, "test", "error")
	svc := service.NewCheckInService(
		service.CheckInServiceDeps{
			Repo:      h.repo,
			Publisher: h.broker,
			Clock:     h.clock,
			Log:       log,
		},
		service.CheckInServiceConfig{
			MaxTimeoutThreshold:     30 * 86400,
			CircuitBreakerThreshold: 100,
			CircuitBreakerTimeout:   5 * time.Second,
			CircuitBreakerReset:     10 * time.Second,
		},
	)

	cfg := config.ServerConfig{
		JWTSecret:           testSecret,
		RequestTimeout:      5 * time.Second,
		WebSocketWriteWait:  time.Second,
		WebSocketPongWait:   time.Minute,
		WebSocketPingPeriod: 50 * time.Second,
		WebSocketMaxSubs:    100,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	h.handler = checkinhttp.NewHandler(svc, h.broker, cfg, log)
	return h
}

func bearer(t *testing.T, userID, username string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"usr": username,
		"jti": "jti-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func (h *harness) do(t *testing.T, method, path string, body any, auth string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestOwnerRoutes_RequireToken(t *testing.T) {
	h := newHarness(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/user"},
		{http.MethodPut, "/api/user/profile"},
		{http.MethodPut, "/api/user/threshold"},
		{http.MethodPost, "/api/check-in"},
	} {
		rec := h.do(t, tc.method, tc.path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
	}

	rec := h.do(t, http.MethodGet, "/api/user", nil, "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetUser_ReturnsOwnerRecordWithNeverState(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/user", nil, bearer(t, "user-1", "elderly1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var got dto.OwnerRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "elderly1", got.Username)
	assert.Equal(t, "Amy", got.Contact1Name)
	assert.Equal(t, "never", got.State)
	assert.False(t, got.IsSafe)
	assert.Nil(t, got.LastCheckInAt)
	assert.Nil(t, got.SecondsElapsed)
	assert.True(t, got.ServerTime.Equal(h.clock.Now()))
}

func TestGetUser_UnknownIdentity(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/user", nil, bearer(t, "ghost", "ghost"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckIn_ReturnsTimestampAndPublishes(t *testing.T) {
	h := newHarness(t)

	stamp := h.clock.Now()
	h.repo.CheckInFunc = func(_ context.Context, id userdomain.ID) (userdomain.CheckInResult, error) {
		updated := h.user
		updated.LastCheckInAt = &stamp
		updated.Version = 2
		return userdomain.CheckInResult{User: updated, Timestamp: stamp}, nil
	}

	var delivered []userdomain.User
	unsubscribe := h.broker.Subscribe("user-1", func(u userdomain.User) { delivered = append(delivered, u) })
	defer unsubscribe()

	rec := h.do(t, http.MethodPost, "/api/check-in", nil, bearer(t, "user-1", "elderly1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var got dto.CheckInResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Success)
	assert.Equal(t, int64(2), got.Version)
	assert.True(t, got.Timestamp.Equal(stamp))

	require.Len(t, delivered, 1)
	assert.Equal(t, int64(2), delivered[0].Version)
}

func TestCheckIn_WrongMethod(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/check-in", nil, bearer(t, "user-1", "elderly1"))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestUpdateThreshold(t *testing.T) {
	h := newHarness(t)
	h.repo.UpdateThresholdFunc = func(_ context.Context, _ userdomain.ID, seconds int) (userdomain.User, error) {
		updated := h.user
		updated.TimeoutThreshold = seconds
		updated.Version = 3
		return updated, nil
	}

	t.Run("accepts positive seconds", func(t *testing.T) {
		rec := h.do(t, http.MethodPut, "/api/user/threshold", map[string]int{"timeoutThreshold": 30}, bearer(t, "user-1", "elderly1"))
		require.Equal(t, http.StatusOK, rec.Code)

		var got dto.ThresholdResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, 30, got.TimeoutThreshold)
		assert.Equal(t, int64(3), got.Version)
	})

	t.Run("rejects zero", func(t *testing.T) {
		rec := h.do(t, http.MethodPut, "/api/user/threshold", map[string]int{"timeoutThreshold": 0}, bearer(t, "user-1", "elderly1"))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		env := decodeError(t, rec)
		assert.Equal(t, "INVALID_THRESHOLD", env.Code)
		assert.Contains(t, env.Details, "timeoutThreshold")
	})
}

func TestUpdateProfile_InvalidPhone(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPut, "/api/user/profile", map[string]string{"contact1Phone": "call me"}, bearer(t, "user-1", "elderly1"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_FAILED", env.Code)
	assert.Contains(t, env.Details, "contact1Phone")
}

func TestUpdateProfile_ClearsContact(t *testing.T) {
	h := newHarness(t)
	h.repo.UpdateProfileFunc = func(_ context.Context, _ userdomain.ID, update userdomain.ProfileUpdate) (userdomain.User, error) {
		require.NotNil(t, update.Contact1Name)
		assert.Equal(t, "", *update.Contact1Name)
		assert.Nil(t, update.DisplayName)
		updated := h.user
		updated.Contacts.Contact1Name = ""
		updated.Version = 2
		return updated, nil
	}

	rec := h.do(t, http.MethodPut, "/api/user/profile", map[string]string{"contact1Name": ""}, bearer(t, "user-1", "elderly1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var got dto.OwnerRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "", got.Contact1Name)
	assert.Equal(t, int64(2), got.Version)
}

func TestThresholds_ListsPresets(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/thresholds", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []dto.ThresholdPreset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 3)
	assert.Equal(t, 30, got[0].Seconds)
}

func TestPublicStatus(t *testing.T) {
	h := newHarness(t)

	t.Run("found", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/api/status/elderly1", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
		assert.NotContains(t, rec.Body.String(), "contact1")
		assert.NotContains(t, rec.Body.String(), "user-1")

		var got dto.PublicStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "Grandma Lin", got.DisplayName)
		assert.Equal(t, "never", got.State)
	})

	t.Run("unknown user", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/api/status/nobody", nil, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing username", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/api/status/", nil, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func wsURL(server *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + path
}

func readStatus(t *testing.T, conn *gorillaWS.Conn) dto.StatusMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg dto.StatusMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestStatusStream_SendsSnapshotThenUpdates(t *testing.T) {
	h := newHarness(t)
	server := httptest.NewServer(h.handler)
	defer server.Close()

	conn, _, err := gorillaWS.DefaultDialer.Dial(wsURL(server, "/ws/status/elderly1"), nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readStatus(t, conn)
	assert.Equal(t, dto.StatusMessageType, first.Type)
	assert.Equal(t, int64(1), first.Payload.Version)
	assert.Equal(t, "never", first.Payload.State)

	require.Eventually(t, func() bool { return h.broker.HasSubscribers("user-1") }, time.Second, 10*time.Millisecond)

	stamp := h.clock.Now()
	updated := h.user
	updated.LastCheckInAt = &stamp
	updated.Version = 2
	require.True(t, h.broker.Publish(updated, changefeed.SourceLocal))

	second := readStatus(t, conn)
	assert.Equal(t, int64(2), second.Payload.Version)
	assert.Equal(t, "safe", second.Payload.State)
	assert.True(t, second.Payload.IsSafe)
}

func TestStatusStream_UnsubscribesOnClose(t *testing.T) {
	h := newHarness(t)
	server := httptest.NewServer(h.handler)
	defer server.Close()

	conn, _, err := gorillaWS.DefaultDialer.Dial(wsURL(server, "/ws/status/elderly1"), nil)
	require.NoError(t, err)
	readStatus(t, conn)
	require.Eventually(t, func() bool { return h.broker.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(gorillaWS.CloseMessage, gorillaWS.FormatCloseMessage(gorillaWS.CloseNormalClosure, "")))
	conn.Close()

	assert.Eventually(t, func() bool { return h.broker.SubscriberCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStatusStream_UnknownUserIsRejectedBeforeUpgrade(t *testing.T) {
	h := newHarness(t)
	server := httptest.NewServer(h.handler)
	defer server.Close()

	_, resp, err := gorillaWS.DefaultDialer.Dial(wsURL(server, "/ws/status/nobody"), nil)
	require.ErrorIs(t, err, gorillaWS.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 0, h.broker.SubscriberCount())
}

func TestStatusStream_SubscriptionLimit(t *testing.T) {
	h := newHarness(t, func(cfg *config.ServerConfig) { cfg.WebSocketMaxSubs = 1 })
	server := httptest.NewServer(h.handler)
	defer server.Close()

	first, _, err := gorillaWS.DefaultDialer.Dial(wsURL(server, "/ws/status/elderly1"), nil)
	require.NoError(t, err)
	defer first.Close()
	readStatus(t, first)

	_, resp, err := gorillaWS.DefaultDialer.Dial(wsURL(server, "/ws/status/elderly1"), nil)
	require.ErrorIs(t, err, gorillaWS.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStatusStream_RejectsForeignOrigin(t *testing.T) {
	h := newHarness(t, func(cfg *config.ServerConfig) { cfg.AllowedOrigins = []string{"https://safecheck.example"} })
	server := httptest.NewServer(h.handler)
	defer server.Close()

	header := http.Header{}
	header.Set("Origin", "https://evil.example")
	_, resp, err := gorillaWS.DefaultDialer.Dial(wsURL(server, "/ws/status/elderly1"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://safecheck.example")
	conn, _, err := gorillaWS.DefaultDialer.Dial(wsURL(server, "/ws/status/elderly1"), header)
	require.NoError(t, err)
	conn.Close()
}
