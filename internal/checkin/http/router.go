package http

import (
	"net/http"
	"time"

	gorillaWS "github.com/gorilla/websocket"

	"github.com/AlibekovAA/safecheck/internal/changefeed"
	"github.com/AlibekovAA/safecheck/internal/checkin/service"
	"github.com/AlibekovAA/safecheck/internal/common/config"
	"github.com/AlibekovAA/safecheck/internal/common/constants"
	"github.com/AlibekovAA/safecheck/internal/common/dto"
	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
	commonhttp "github.com/AlibekovAA/safecheck/internal/common/http"
	"github.com/AlibekovAA/safecheck/internal/common/jwtverify"
	"github.com/AlibekovAA/safecheck/internal/common/logger"
	"github.com/AlibekovAA/safecheck/internal/common/mapper"
	"github.com/AlibekovAA/safecheck/internal/status"
	userdomain "github.com/AlibekovAA/safecheck/internal/user/domain"
)

const (
	statusPathPrefix   = "/api/status/"
	wsStatusPathPrefix = "/ws/status/"
)

// Feed is the part of the change broker the status stream needs.
type Feed interface {
	Subscribe(recordID string, onChange changefeed.ChangeFunc) (unsubscribe func())
	SubscriberCount() int
}

type Handler struct {
	svc      *service.CheckInService
	feed     Feed
	errors   *commonhttp.ErrorHandler
	upgrader gorillaWS.Upgrader
	stream   streamSettings
	timeout  time.Duration
	log      *logger.Logger
}

func NewHandler(svc *service.CheckInService, feed Feed, cfg config.ServerConfig, log *logger.Logger) http.Handler {
	h := &Handler{
		svc:    svc,
		feed:   feed,
		errors: commonhttp.NewErrorHandler(log),
		upgrader: gorillaWS.Upgrader{
			ReadBufferSize:  constants.WebSocketReadBufferSize,
			WriteBufferSize: constants.WebSocketWriteBufferSize,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		stream:  newStreamSettings(cfg),
		timeout: requestTimeout(cfg),
		log:     log,
	}

	auth := jwtverify.Middleware(cfg.JWTSecret, log)
	get := commonhttp.RequireMethod(http.MethodGet)
	put := commonhttp.RequireMethod(http.MethodPut)
	post := commonhttp.RequireMethod(http.MethodPost)
	timeout := commonhttp.WithTimeout(h.timeout)

	mux := http.NewServeMux()
	mux.Handle("/api/user", auth(get(timeout(h.getUser))))
	mux.Handle("/api/user/profile", auth(put(timeout(h.updateProfile))))
	mux.Handle("/api/user/threshold", auth(put(timeout(h.updateThreshold))))
	mux.Handle("/api/check-in", auth(post(timeout(h.checkIn))))
	mux.HandleFunc("/api/thresholds", get(h.thresholds))
	mux.HandleFunc(statusPathPrefix, get(timeout(h.publicStatus)))
	mux.HandleFunc(wsStatusPathPrefix, get(h.statusStream))
	return mux
}

func requestTimeout(cfg config.ServerConfig) time.Duration {
	if cfg.RequestTimeout > 0 {
		return cfg.RequestTimeout
	}
	return constants.DefaultRequestTimeout
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := jwtverify.FromContext(r.Context())
	if !ok {
		h.errors.HandleError(w, r, commonerrors.ErrUnauthenticated)
		return
	}

	user, err := h.svc.GetRecordByIdentity(r.Context(), claims.UserID)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	commonhttp.WriteJSON(w, http.StatusOK, mapper.OwnerRecordToDTO(user, h.svc.Now()))
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := jwtverify.FromContext(r.Context())
	if !ok {
		h.errors.HandleError(w, r, commonerrors.ErrUnauthenticated)
		return
	}

	var req dto.ProfileRequest
	if err := commonhttp.DecodeAndValidate(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	user, err := h.svc.UpdateProfile(r.Context(), claims.UserID, userdomain.ProfileUpdate{
		DisplayName:   req.DisplayName,
		Contact1Name:  req.Contact1Name,
		Contact1Phone: req.Contact1Phone,
		Contact2Name:  req.Contact2Name,
		Contact2Phone: req.Contact2Phone,
	})
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	commonhttp.WriteJSON(w, http.StatusOK, mapper.OwnerRecordToDTO(user, h.svc.Now()))
}

func (h *Handler) updateThreshold(w http.ResponseWriter, r *http.Request) {
	claims, ok := jwtverify.FromContext(r.Context())
	if !ok {
		h.errors.HandleError(w, r, commonerrors.ErrUnauthenticated)
		return
	}

	var req dto.ThresholdRequest
	if err := commonhttp.DecodeJSON(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	user, err := h.svc.UpdateThreshold(r.Context(), claims.UserID, req.TimeoutThreshold)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	commonhttp.WriteJSON(w, http.StatusOK, dto.ThresholdResponse{
		TimeoutThreshold: user.TimeoutThreshold,
		Version:          user.Version,
	})
}

func (h *Handler) checkIn(w http.ResponseWriter, r *http.Request) {
	claims, ok := jwtverify.FromContext(r.Context())
	if !ok {
		h.errors.HandleError(w, r, commonerrors.ErrUnauthenticated)
		return
	}

	result, err := h.svc.CheckIn(r.Context(), claims.UserID)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	commonhttp.WriteJSON(w, http.StatusOK, dto.CheckInResponse{
		Success:   true,
		Timestamp: result.Timestamp.UTC(),
		Version:   result.User.Version,
	})
}

func (h *Handler) thresholds(w http.ResponseWriter, r *http.Request) {
	commonhttp.WriteJSON(w, http.StatusOK, mapper.PresetsToDTO(status.Presets()))
}

func (h *Handler) publicStatus(w http.ResponseWriter, r *http.Request) {
	username, ok := commonhttp.PathParam(r.URL.Path, statusPathPrefix)
	if !ok {
		commonhttp.WriteErrorEnvelope(w, http.StatusBadRequest, commonhttp.CodeInvalidPath, "username is required", nil, logger.TraceID(r.Context()))
		return
	}

	user, err := h.svc.GetPublicStatus(r.Context(), username)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	commonhttp.WriteJSON(w, http.StatusOK, mapper.PublicStatusToDTO(user, h.svc.Now()))
}
