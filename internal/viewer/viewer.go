package viewer

import (
	"context"

	"github.com/rtcheap/session-broker/internal/models"
	"github.com/rtcheap/session-broker/internal/rtc"
	"go.uber.org/zap"
)

// API calls a viewer makes against the session broker.
type API interface {
	JoinAsViewer(ctx context.Context, uniqueID string) (models.SessionView, models.Token, error)
}

// Viewer a looked up session together with the viewer's connection.
type Viewer struct {
	*Session
	Info models.SessionView
}

// Open looks up the session, obtains a viewer credential for its channel and joins it.
func Open(ctx context.Context, api API, engine rtc.Engine, display Display, uniqueID string) (*Viewer, error) {
	info, token, err := api.JoinAsViewer(ctx, uniqueID)
	if err != nil {
		return nil, err
	}

	s := NewSession(engine, display)
	creds := rtc.Credentials{
		AppID:   token.AppID,
		Channel: info.ChannelName(),
		Token:   token.Token,
	}
	err = s.Join(ctx, creds)
	if err != nil {
		s.Close(ctx)
		return nil, err
	}

	log.Info("viewer joined session", zap.String("uniqueId", info.UniqueID))
	return &Viewer{
		Session: s,
		Info:    info,
	}, nil
}
