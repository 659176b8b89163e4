package broadcast

import (
	"context"

	"github.com/rtcheap/session-broker/internal/models"
	"github.com/rtcheap/session-broker/internal/rtc"
	"github.com/rtcheap/session-broker/internal/topology"
	"go.uber.org/zap"
)

// API calls a host makes against the session broker.
type API interface {
	JoinAsHost(ctx context.Context) (models.SessionView, models.Token, error)
	ReportStatus(ctx context.Context, uniqueID string, status models.CaptureStatus) error
}

// Host a created session together with the host's broadcaster.
type Host struct {
	*Broadcaster
	Session models.SessionView
}

// OpenHost creates a session, obtains a host credential for its channel and joins every
// planned connection. Capture status changes are reported back to the broker.
func OpenHost(ctx context.Context, api API, engine rtc.Engine, variant topology.Variant) (*Host, error) {
	session, token, err := api.JoinAsHost(ctx)
	if err != nil {
		return nil, err
	}

	report := func(status models.CaptureStatus) {
		err := api.ReportStatus(context.Background(), session.UniqueID, status)
		if err != nil {
			log.Warn("failed to report capture status",
				zap.String("uniqueId", session.UniqueID),
				zap.String("source", status.Source),
				zap.String("state", status.State),
				zap.Error(err),
			)
		}
	}

	b, err := NewBroadcaster(engine, variant, report)
	if err != nil {
		return nil, err
	}

	creds := rtc.Credentials{
		AppID:   token.AppID,
		Channel: session.ChannelName(),
		Token:   token.Token,
	}
	err = b.Join(ctx, creds)
	if err != nil {
		return nil, err
	}

	log.Info("host joined session", zap.String("uniqueId", session.UniqueID), zap.String("topology", variant.String()))
	return &Host{
		Broadcaster: b,
		Session:     session,
	}, nil
}
