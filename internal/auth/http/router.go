package http

import (
	"net/http"
	"time"

	"github.com/AlibekovAA/safecheck/internal/auth/service"
	"github.com/AlibekovAA/safecheck/internal/common/clock"
	"github.com/AlibekovAA/safecheck/internal/common/config"
	"github.com/AlibekovAA/safecheck/internal/common/dto"
	commonhttp "github.com/AlibekovAA/safecheck/internal/common/http"
	"github.com/AlibekovAA/safecheck/internal/common/logger"
	"github.com/AlibekovAA/safecheck/internal/common/mapper"
	userdomain "github.com/AlibekovAA/safecheck/internal/user/domain"
)

const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/api"
)

type Handler struct {
	auth   *service.AuthService
	errors *commonhttp.ErrorHandler
	clock  clock.Clock
	log    *logger.Logger
}

func NewHandler(auth *service.AuthService, cfg config.ServerConfig, log *logger.Logger) http.Handler {
	h := &Handler{
		auth:   auth,
		errors: commonhttp.NewErrorHandler(log),
		clock:  clock.NewRealClock(),
		log:    log,
	}

	post := commonhttp.RequireMethod(http.MethodPost)
	timeout := commonhttp.WithTimeout(requestTimeout(cfg))

	mux := http.NewServeMux()
	mux.HandleFunc("/api/register", post(timeout(h.register)))
	mux.HandleFunc("/api/login", post(timeout(h.login)))
	mux.HandleFunc("/api/refresh", post(timeout(h.refresh)))
	mux.HandleFunc("/api/logout", post(timeout(h.logout)))
	return mux
}

func requestTimeout(cfg config.ServerConfig) time.Duration {
	if cfg.RequestTimeout > 0 {
		return cfg.RequestTimeout
	}
	return 5 * time.Second
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := commonhttp.DecodeAndValidate(r, &req); err != nil {
		h.log.WithFields(r.Context(), logger.Fields{
			"action": "register_bad_request",
		}).Warnf("register failed: %v", err)
		h.errors.HandleError(w, r, err)
		return
	}

	result, err := h.auth.Register(r.Context(), service.RegisterInput{
		Username:    req.Username,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Contacts: userdomain.Contacts{
			Contact1Name:  req.Contact1Name,
			Contact1Phone: req.Contact1Phone,
			Contact2Name:  req.Contact2Name,
			Contact2Phone: req.Contact2Phone,
		},
	})
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	h.writeAuthResult(w, r, http.StatusCreated, result)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := commonhttp.DecodeAndValidate(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	result, err := h.auth.Login(r.Context(), service.LoginInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	h.writeAuthResult(w, r, http.StatusOK, result)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	token := refreshTokenFromRequest(r)
	if token == "" {
		commonhttp.WriteErrorEnvelope(w, http.StatusUnauthorized, commonhttp.CodeMissingRefreshToken, "missing refresh token", nil, logger.TraceID(r.Context()))
		return
	}

	result, err := h.auth.RefreshAccessToken(r.Context(), token, commonhttp.GetClientIP(r))
	if err != nil {
		clearRefreshCookie(w, r)
		h.errors.HandleError(w, r, err)
		return
	}

	h.writeAuthResult(w, r, http.StatusOK, result)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if token := refreshTokenFromRequest(r); token != "" {
		if err := h.auth.RevokeRefreshToken(r.Context(), token); err != nil {
			h.log.WithFields(r.Context(), logger.Fields{
				"action": "logout_revoke_failed",
			}).Errorf("logout revoke failed: %v", err)
		}
	}

	clearRefreshCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeAuthResult(w http.ResponseWriter, r *http.Request, status int, result service.AuthResult) {
	setRefreshCookie(w, r, result.RefreshToken, result.RefreshExpiresAt)
	commonhttp.WriteJSON(w, status, dto.AuthResponse{
		Token:        result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    result.RefreshExpiresAt.UTC(),
		User:         mapper.OwnerRecordToDTO(result.User, h.clock.Now()),
	})
}

// refreshTokenFromRequest prefers the cookie and falls back to a JSON body.
func refreshTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(refreshCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if r.Body == nil || r.ContentLength == 0 {
		return ""
	}
	var req dto.RefreshRequest
	if err := commonhttp.DecodeJSON(r, &req); err != nil {
		return ""
	}
	return req.RefreshToken
}

func setRefreshCookie(w http.ResponseWriter, r *http.Request, token string, expiresAt time.Time) {
	if token == "" {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   r.TLS != nil,
	})
}

func clearRefreshCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   r.TLS != nil,
	})
}
