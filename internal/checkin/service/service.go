package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/AlibekovAA/safecheck/internal/changefeed"
	"github.com/AlibekovAA/safecheck/internal/common/clock"
	commonerrors "github.com/AlibekovAA/safecheck/internal/common/errors"
	"github.com/AlibekovAA/safecheck/internal/common/logger"
	"github.com/AlibekovAA/safecheck/internal/common/resilience"
	"github.com/AlibekovAA/safecheck/internal/observability/metrics"
	userdomain "github.com/AlibekovAA/safecheck/internal/user/domain"
	userrepo "github.com/AlibekovAA/safecheck/internal/user/repository"
)

// Publisher receives every record written through the service.
type Publisher interface {
	Publish(user userdomain.User, source string) bool
}

type CheckInService struct {
	repo             userrepo.Repository
	publisher        Publisher
	dbCircuitBreaker resilience.Breaker
	clock            clock.Clock
	maxThreshold     int
	log              *logger.Logger
}

type CheckInServiceDeps struct {
	Repo      userrepo.Repository
	Publisher Publisher
	Clock     clock.Clock
	Log       *logger.Logger
}

type CheckInServiceConfig struct {
	MaxTimeoutThreshold     int
	CircuitBreakerThreshold int32
	CircuitBreakerTimeout   time.Duration
	CircuitBreakerReset     time.Duration
}

func NewCheckInService(deps CheckInServiceDeps, cfg CheckInServiceConfig) *CheckInService {
	clk := deps.Clock
	if clk == nil {
		clk = clock.NewRealClock()
	}

	return &CheckInService{
		repo:      deps.Repo,
		publisher: deps.Publisher,
		dbCircuitBreaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Threshold:  cfg.CircuitBreakerThreshold,
			Timeout:    cfg.CircuitBreakerTimeout,
			ResetAfter: cfg.CircuitBreakerReset,
			Name:       "checkin_db",
			Logger:     deps.Log,
		}),
		clock:        clk,
		maxThreshold: cfg.MaxTimeoutThreshold,
		log:          deps.Log,
	}
}

// Now is the server time that derived statuses are evaluated against.
func (s *CheckInService) Now() time.Time {
	return s.clock.Now().UTC()
}

func (s *CheckInService) GetRecordByIdentity(ctx context.Context, userID string) (userdomain.User, error) {
	if userID == "" {
		return userdomain.User{}, commonerrors.ErrUnauthenticated
	}

	var user userdomain.User
	err := s.dbCircuitBreaker.Call(ctx, func(ctx context.Context) error {
		var findErr error
		user, findErr = s.repo.FindByID(ctx, userdomain.ID(userID))
		return findErr
	})
	if err != nil {
		if !errors.Is(err, userrepo.ErrUserNotFound) {
			s.log.WithFields(ctx, logger.Fields{
				"user_id": userID,
				"action":  "get_record_failed",
			}).Errorf("get record failed: %v", err)
		}
		return userdomain.User{}, handleCircuitBreakerError(err)
	}
	return user, nil
}

// GetPublicStatus looks a record up by its public handle.
func (s *CheckInService) GetPublicStatus(ctx context.Context, username string) (userdomain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		metrics.StatusLookupsTotal.WithLabelValues("not_found").Inc()
		return userdomain.User{}, commonerrors.ErrUserNotFound
	}

	var user userdomain.User
	err := s.dbCircuitBreaker.Call(ctx, func(ctx context.Context) error {
		var findErr error
		user, findErr = s.repo.FindByUsername(ctx, username)
		return findErr
	})
	if err != nil {
		if errors.Is(err, userrepo.ErrUserNotFound) {
			metrics.StatusLookupsTotal.WithLabelValues("not_found").Inc()
			return userdomain.User{}, commonerrors.ErrUserNotFound
		}
		metrics.StatusLookupsTotal.WithLabelValues("error").Inc()
		s.log.WithFields(ctx, logger.Fields{
			"username": username,
			"action":   "status_lookup_failed",
		}).Errorf("status lookup failed: %v", err)
		return userdomain.User{}, handleCircuitBreakerError(err)
	}

	metrics.StatusLookupsTotal.WithLabelValues("found").Inc()
	return user, nil
}

// CheckIn records a check-in at the database clock. It is never retried
// here; a failed check-in is reported to the caller as is.
func (s *CheckInService) CheckIn(ctx context.Context, userID string) (userdomain.CheckInResult, error) {
	if userID == "" {
		metrics.CheckInsTotal.WithLabelValues("unauthenticated").Inc()
		return userdomain.CheckInResult{}, commonerrors.ErrUnauthenticated
	}

	var result userdomain.CheckInResult
	err := s.dbCircuitBreaker.Call(ctx, func(ctx context.Context) error {
		var checkInErr error
		result, checkInErr = s.repo.CheckIn(ctx, userdomain.ID(userID))
		return checkInErr
	})
	if err != nil {
		if errors.Is(err, userrepo.ErrUserNotFound) {
			metrics.CheckInsTotal.WithLabelValues("not_found").Inc()
			return userdomain.CheckInResult{}, err
		}
		metrics.CheckInsTotal.WithLabelValues("error").Inc()
		s.log.WithFields(ctx, logger.Fields{
			"user_id": userID,
			"action":  "check_in_failed",
		}).Errorf("check-in failed: %v", err)
		return userdomain.CheckInResult{}, handleCircuitBreakerError(err)
	}

	metrics.CheckInsTotal.WithLabelValues("success").Inc()
	s.log.WithFields(ctx, logger.Fields{
		"user_id": userID,
		"version": result.User.Version,
		"action":  "check_in_success",
	}).Info("check-in recorded")

	s.publish(result.User)
	return result, nil
}

func (s *CheckInService) UpdateThreshold(ctx context.Context, userID string, seconds int) (userdomain.User, error) {
	if userID == "" {
		return userdomain.User{}, commonerrors.ErrUnauthenticated
	}
	if err := s.validateThreshold(seconds); err != nil {
		metrics.ThresholdUpdatesTotal.WithLabelValues("invalid").Inc()
		return userdomain.User{}, err
	}

	var user userdomain.User
	err := s.dbCircuitBreaker.Call(ctx, func(ctx context.Context) error {
		var updateErr error
		user, updateErr = s.repo.UpdateThreshold(ctx, userdomain.ID(userID), seconds)
		return updateErr
	})
	if err != nil {
		metrics.ThresholdUpdatesTotal.WithLabelValues("error").Inc()
		if !errors.Is(err, userrepo.ErrUserNotFound) {
			s.log.WithFields(ctx, logger.Fields{
				"user_id": userID,
				"action":  "threshold_update_failed",
			}).Errorf("threshold update failed: %v", err)
		}
		return userdomain.User{}, handleCircuitBreakerError(err)
	}

	metrics.ThresholdUpdatesTotal.WithLabelValues("success").Inc()
	s.log.WithFields(ctx, logger.Fields{
		"user_id":   userID,
		"threshold": seconds,
		"action":    "threshold_updated",
	}).Info("threshold updated")

	s.publish(user)
	return user, nil
}

func (s *CheckInService) UpdateProfile(ctx context.Context, userID string, update userdomain.ProfileUpdate) (userdomain.User, error) {
	if userID == "" {
		return userdomain.User{}, commonerrors.ErrUnauthenticated
	}

	update = update.Normalized()
	if err := update.Validate(); err != nil {
		metrics.ProfileUpdatesTotal.WithLabelValues("invalid").Inc()
		return userdomain.User{}, err
	}
	if update.Empty() {
		return s.GetRecordByIdentity(ctx, userID)
	}

	var user userdomain.User
	err := s.dbCircuitBreaker.Call(ctx, func(ctx context.Context) error {
		var updateErr error
		user, updateErr = s.repo.UpdateProfile(ctx, userdomain.ID(userID), update)
		return updateErr
	})
	if err != nil {
		metrics.ProfileUpdatesTotal.WithLabelValues("error").Inc()
		if !errors.Is(err, userrepo.ErrUserNotFound) {
			s.log.WithFields(ctx, logger.Fields{
				"user_id": userID,
				"action":  "profile_update_failed",
			}).Errorf("profile update failed: %v", err)
		}
		return userdomain.User{}, handleCircuitBreakerError(err)
	}

	metrics.ProfileUpdatesTotal.WithLabelValues("success").Inc()
	s.publish(user)
	return user, nil
}

func (s *CheckInService) validateThreshold(seconds int) error {
	if seconds > 0 && (s.maxThreshold <= 0 || seconds <= s.maxThreshold) {
		return nil
	}
	message := "must be a positive number of seconds"
	if s.maxThreshold > 0 {
		message = "must be between 1 and " + strconv.Itoa(s.maxThreshold) + " seconds"
	}
	return commonerrors.ErrInvalidThreshold.WithDetails(map[string]any{"timeoutThreshold": message})
}

func (s *CheckInService) publish(user userdomain.User) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(user, changefeed.SourceLocal)
}

func handleCircuitBreakerError(err error) error {
	if errors.Is(err, commonerrors.ErrCircuitOpen) {
		return commonerrors.ErrServiceUnavailable.WithCause(err)
	}
	return err
}
