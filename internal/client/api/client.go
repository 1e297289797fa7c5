// Package api is the client for the safecheck HTTP API and status stream.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/AlibekovAA/safecheck/internal/client/store"
	"github.com/AlibekovAA/safecheck/internal/common/clock"
	"github.com/AlibekovAA/safecheck/internal/common/constants"
	"github.com/AlibekovAA/safecheck/internal/common/dto"
	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
)

// SessionStore persists signed-in sessions under a local name. The name is the
// identity handle the owner operations take.
type SessionStore interface {
	Get(ctx context.Context, name string) (store.Session, error)
	Save(ctx context.Context, s store.Session) error
	Delete(ctx context.Context, name string) error
}

type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Clock      clock.Clock
	Logger     *zap.Logger
}

type Client struct {
	base     *url.URL
	http     *http.Client
	dialer   *websocket.Dialer
	sessions SessionStore
	clock    clock.Clock
	log      *zap.Logger

	refreshMu sync.Mutex
}

func New(cfg Config, sessions SessionStore) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		raw = constants.ClientDefaultServer
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https, got %q", cfg.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("server url %q has no host", cfg.BaseURL)
	}

	c := &Client{
		base:     base,
		http:     cfg.HTTPClient,
		dialer:   cfg.Dialer,
		sessions: sessions,
		clock:    cfg.Clock,
		log:      cfg.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: constants.ClientHTTPTimeout}
	}
	if c.dialer == nil {
		c.dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: constants.ClientHTTPTimeout,
			ReadBufferSize:   constants.WebSocketReadBufferSize,
			WriteBufferSize:  constants.WebSocketWriteBufferSize,
		}
	}
	if c.clock == nil {
		c.clock = clock.NewRealClock()
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c, nil
}

func (c *Client) BaseURL() string {
	return c.base.String()
}

// ShareURL is the public page family members open for username.
func (c *Client) ShareURL(username string) string {
	return c.endpoint("/status/" + url.PathEscape(username))
}

func (c *Client) Register(ctx context.Context, session string, req dto.RegisterRequest) (dto.AuthResponse, error) {
	var res dto.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/register", req, "", &res); err != nil {
		return dto.AuthResponse{}, err
	}
	return res, c.saveSession(ctx, session, res)
}

func (c *Client) Login(ctx context.Context, session, username, password string) (dto.AuthResponse, error) {
	var res dto.AuthResponse
	err := c.do(ctx, http.MethodPost, "/api/login", dto.LoginRequest{Username: username, Password: password}, "", &res)
	if err != nil {
		return dto.AuthResponse{}, err
	}
	return res, c.saveSession(ctx, session, res)
}

// Logout revokes the session's refresh token and forgets the session locally.
// The local copy is removed even when the server cannot be reached.
func (c *Client) Logout(ctx context.Context, session string) error {
	sess, err := c.sessions.Get(ctx, session)
	if errors.Is(err, store.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := c.do(ctx, http.MethodPost, "/api/logout", dto.RefreshRequest{RefreshToken: sess.RefreshToken}, "", nil); err != nil {
		c.log.Warn("server logout failed", zap.String("session", session), zap.Error(err))
	}
	return c.sessions.Delete(ctx, session)
}

// Username reports who the stored session belongs to.
func (c *Client) Username(ctx context.Context, identity string) (string, error) {
	sess, err := c.session(ctx, identity)
	if err != nil {
		return "", err
	}
	return sess.Username, nil
}

func (c *Client) GetRecordByIdentity(ctx context.Context, identity string) (dto.OwnerRecord, error) {
	var rec dto.OwnerRecord
	err := c.authed(ctx, identity, http.MethodGet, "/api/user", nil, &rec)
	return rec, err
}

func (c *Client) CheckIn(ctx context.Context, identity string) (dto.CheckInResponse, error) {
	var res dto.CheckInResponse
	err := c.authed(ctx, identity, http.MethodPost, "/api/check-in", nil, &res)
	return res, err
}

func (c *Client) UpdateThreshold(ctx context.Context, identity string, seconds int) (dto.ThresholdResponse, error) {
	var res dto.ThresholdResponse
	err := c.authed(ctx, identity, http.MethodPut, "/api/user/threshold", dto.ThresholdRequest{TimeoutThreshold: seconds}, &res)
	return res, err
}

func (c *Client) UpdateProfile(ctx context.Context, identity string, req dto.ProfileRequest) (dto.OwnerRecord, error) {
	var rec dto.OwnerRecord
	err := c.authed(ctx, identity, http.MethodPut, "/api/user/profile", req, &rec)
	return rec, err
}

func (c *Client) GetRecordByUsername(ctx context.Context, username string) (dto.PublicStatus, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return dto.PublicStatus{}, commonerrors.ErrUserNotFound
	}
	var st dto.PublicStatus
	err := c.do(ctx, http.MethodGet, "/api/status/"+url.PathEscape(username), nil, "", &st)
	return st, err
}

func (c *Client) Thresholds(ctx context.Context) ([]dto.ThresholdPreset, error) {
	var presets []dto.ThresholdPreset
	err := c.do(ctx, http.MethodGet, "/api/thresholds", nil, "", &presets)
	return presets, err
}

func (c *Client) session(ctx context.Context, identity string) (store.Session, error) {
	if identity == "" {
		return store.Session{}, commonerrors.ErrUnauthenticated
	}
	sess, err := c.sessions.Get(ctx, identity)
	if errors.Is(err, store.ErrSessionNotFound) {
		return store.Session{}, commonerrors.ErrUnauthenticated.WithCause(err)
	}
	return sess, err
}

// authed sends an owner request. A 401 triggers one refresh-token rotation
// and a single retry; a second 401 fails closed as unauthenticated.
func (c *Client) authed(ctx context.Context, identity, method, path string, body, out any) error {
	sess, err := c.session(ctx, identity)
	if err != nil {
		return err
	}

	err = c.do(ctx, method, path, body, sess.AccessToken, out)
	if !isUnauthorized(err) {
		return err
	}

	sess, err = c.refresh(ctx, identity, sess.AccessToken)
	if err != nil {
		return commonerrors.ErrUnauthenticated.WithCause(err)
	}

	err = c.do(ctx, method, path, body, sess.AccessToken, out)
	if isUnauthorized(err) {
		return commonerrors.ErrUnauthenticated.WithCause(err)
	}
	return err
}

func (c *Client) refresh(ctx context.Context, identity, staleAccess string) (store.Session, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	sess, err := c.session(ctx, identity)
	if err != nil {
		return store.Session{}, err
	}
	if sess.AccessToken != staleAccess {
		return sess, nil
	}

	var res dto.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/refresh", dto.RefreshRequest{RefreshToken: sess.RefreshToken}, "", &res); err != nil {
		return store.Session{}, err
	}
	c.log.Debug("access token refreshed", zap.String("session", identity))

	if err := c.saveSession(ctx, identity, res); err != nil {
		return store.Session{}, err
	}
	return c.sessions.Get(ctx, identity)
}

func (c *Client) saveSession(ctx context.Context, name string, res dto.AuthResponse) error {
	return c.sessions.Save(ctx, store.Session{
		Name:             name,
		Username:         res.User.Username,
		AccessToken:      res.Token,
		RefreshToken:     res.RefreshToken,
		RefreshExpiresAt: res.ExpiresAt,
		UpdatedAt:        c.clock.Now(),
	})
}

func (c *Client) endpoint(escapedPath string) string {
	return c.resolve(c.base.Scheme, escapedPath)
}

func (c *Client) resolve(scheme, escapedPath string) string {
	u := *c.base
	u.Scheme = scheme
	u.RawPath = strings.TrimRight(c.base.EscapedPath(), "/") + escapedPath
	u.Path, _ = url.PathUnescape(u.RawPath)
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	var req *http.Request
	var err error
	if reader != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.endpoint(path), nil)
	}
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return commonerrors.ErrServiceUnavailable.WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func isUnauthorized(err error) bool {
	de, ok := commonerrors.AsDomainError(err)
	return ok && de.HTTPStatus() == http.StatusUnauthorized
}
