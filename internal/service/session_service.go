package service

import (
	"context"
	"errors"
	"time"

	"github.com/CzarSimon/httputil/id"
	"github.com/CzarSimon/httputil/logger"
	"github.com/opentracing/opentracing-go"
	tracelog "github.com/opentracing/opentracing-go/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rtcheap/session-broker/internal/models"
	"github.com/rtcheap/session-broker/internal/repository"
	"go.uber.org/zap"
)

var log = logger.GetDefaultLogger("session-broker/service")

// Prometheus metrics.
var (
	sessionsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_created_total",
			Help: "The total number of created sessions",
		},
	)
)

// SessionService service to manage sessions.
type SessionService struct {
	BaseURL     string
	SessionRepo repository.SessionRepository
}

// Create creates a session with a fresh unique id which also names its realtime channel.
func (s *SessionService) Create(ctx context.Context) (models.Session, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "service.SessionService.Create")
	defer span.Finish()

	uniqueID := id.New()
	now := time.Now().UTC().Truncate(models.TimePrecision)
	session := models.Session{
		ID:               id.New(),
		Type:             models.TypeAdmin,
		UniqueID:         uniqueID,
		ShareURL:         ShareURL(s.BaseURL, uniqueID),
		AgoraChannelName: uniqueID,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err := s.SessionRepo.Save(ctx, session)
	if err != nil {
		span.LogFields(tracelog.Bool("success", false), tracelog.Error(err))
		log.Error("failed to store session", zap.String("uniqueId", uniqueID), zap.Error(err))
		return models.Session{}, models.StorageError(err)
	}

	sessionsCreatedTotal.Inc()
	span.LogFields(tracelog.Bool("success", true))
	return session, nil
}

// GetByUniqueID finds a session by its unique id.
func (s *SessionService) GetByUniqueID(ctx context.Context, uniqueID string) (models.Session, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "service.SessionService.GetByUniqueID")
	defer span.Finish()

	session, err := s.SessionRepo.FindByUniqueID(ctx, uniqueID)
	if errors.Is(err, repository.ErrNotFound) {
		span.LogFields(tracelog.Bool("success", false), tracelog.Error(err))
		return models.Session{}, models.NotFoundError("Session not found", err)
	}
	if err != nil {
		span.LogFields(tracelog.Bool("success", false), tracelog.Error(err))
		return models.Session{}, models.StorageError(err)
	}

	span.LogFields(tracelog.Bool("success", true))
	return session, nil
}

// ListAll lists all sessions, newest first.
func (s *SessionService) ListAll(ctx context.Context) ([]models.Session, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "service.SessionService.ListAll")
	defer span.Finish()

	sessions, err := s.SessionRepo.FindAll(ctx)
	if err != nil {
		span.LogFields(tracelog.Bool("success", false), tracelog.Error(err))
		return nil, models.StorageError(err)
	}

	span.LogFields(tracelog.Bool("success", true), tracelog.Int("count", len(sessions)))
	return sessions, nil
}

// ShareURL builds the url a host hands out to viewers of a session.
func ShareURL(baseURL, uniqueID string) string {
	return baseURL + "/session/" + uniqueID
}
