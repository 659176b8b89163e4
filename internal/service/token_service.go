package service

import (
	"context"
	"time"

	"github.com/AgoraIO-Community/go-tokenbuilder/rtctokenbuilder"
	"github.com/opentracing/opentracing-go"
	tracelog "github.com/opentracing/opentracing-go/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rtcheap/session-broker/internal/models"
	"go.uber.org/zap"
)

// DefaultTokenTTL validity window of issued credentials.
const DefaultTokenTTL = time.Hour

// wildcardUID lets any participant identity use a credential.
const wildcardUID uint32 = 0

var tokensIssuedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tokens_issued_total",
		Help: "The total number of issued realtime credentials",
	},
	[]string{"role"},
)

// TokenService issues realtime channel credentials.
// Credentials are stateless and cannot be revoked before they expire.
type TokenService struct {
	AppID          string
	AppCertificate string
	TTL            time.Duration
	Now            func() time.Time
}

// Issue issues a credential for a channel with a privilege level derived from the role.
func (s *TokenService) Issue(ctx context.Context, channelName, role string) (models.Token, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "service.TokenService.Issue")
	defer span.Finish()

	if channelName == "" {
		err := models.ValidationError("Channel name is required")
		span.LogFields(tracelog.Bool("success", false), tracelog.Error(err))
		return models.Token{}, err
	}

	if !models.ValidRole(role) {
		err := models.ValidationError("Valid role (host or viewer) is required")
		span.LogFields(tracelog.Bool("success", false), tracelog.Error(err))
		return models.Token{}, err
	}

	if s.AppID == "" || s.AppCertificate == "" {
		err := models.ConfigurationError("Server configuration error: Missing Agora credentials")
		log.Error("missing realtime credentials in configuration")
		span.LogFields(tracelog.Bool("success", false), tracelog.Error(err))
		return models.Token{}, err
	}

	expiresAt := s.now().Add(s.ttl()).Unix()
	token, err := rtctokenbuilder.BuildTokenWithUID(s.AppID, s.AppCertificate, channelName, wildcardUID, privilegeFor(role), uint32(expiresAt))
	if err != nil {
		span.LogFields(tracelog.Bool("success", false), tracelog.Error(err))
		log.Error("failed to build realtime credential", zap.String("role", role), zap.Error(err))
		return models.Token{}, err
	}

	tokensIssuedTotal.WithLabelValues(role).Inc()
	span.LogFields(tracelog.Bool("success", true), tracelog.String("role", role))
	log.Debug("issued realtime credential", zap.String("role", role), zap.Int("length", len(token)))

	return models.Token{
		Token:     token,
		AppID:     s.AppID,
		UID:       wildcardUID,
		ExpiresAt: expiresAt,
	}, nil
}

func privilegeFor(role string) rtctokenbuilder.Role {
	if role == models.RoleHost {
		return rtctokenbuilder.RolePublisher
	}

	return rtctokenbuilder.RoleSubscriber
}

func (s *TokenService) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultTokenTTL
	}

	return s.TTL
}

func (s *TokenService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}

	return s.Now()
}
