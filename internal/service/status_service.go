package service

import (
	"context"
	"net/http"

	"github.com/opentracing/opentracing-go"
	tracelog "github.com/opentracing/opentracing-go/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rtcheap/session-broker/internal/models"
)

var messagesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "status_messages_sent_total",
		Help: "The total number of status messages relayed to session listeners",
	},
	[]string{"type"},
)

// StatusService relays host capture state to the viewers following a session.
type StatusService struct {
	Socket         *WebsocketHandler
	SessionService *SessionService
}

// Subscribe connects a viewer socket to the status feed of an existing session.
func (s *StatusService) Subscribe(ctx context.Context, uniqueID string, r *http.Request, w http.ResponseWriter) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "service_status_service_subscribe")
	defer span.Finish()

	session, err := s.SessionService.GetByUniqueID(ctx, uniqueID)
	if err != nil {
		span.LogFields(tracelog.Error(err))
		return err
	}

	err = s.Socket.Connect(ctx, session.UniqueID, r, w)
	if err != nil {
		span.LogFields(tracelog.Error(err))
		return err
	}

	return nil
}

// Report validates a capture status of a session and sends it to all listeners.
func (s *StatusService) Report(ctx context.Context, uniqueID string, status models.CaptureStatus) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "service_status_service_report")
	defer span.Finish()

	if !status.Valid() {
		err := models.ValidationError("Valid source (screen or camera) and state (idle, acquiring, published or error) are required")
		span.LogFields(tracelog.Error(err))
		return 0, err
	}

	session, err := s.SessionService.GetByUniqueID(ctx, uniqueID)
	if err != nil {
		span.LogFields(tracelog.Error(err))
		return 0, err
	}

	message := models.Message{
		Type:      models.TypeStatus,
		SessionID: session.UniqueID,
		Body:      status,
	}

	sent, err := s.Socket.Send(ctx, message)
	if err != nil {
		span.LogFields(tracelog.Error(err))
		return 0, err
	}

	messagesTotal.WithLabelValues(message.Type).Inc()
	span.LogFields(tracelog.Int("listeners", sent))
	return sent, nil
}
