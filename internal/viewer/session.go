// Package viewer joins a session's channel as a subscriber and routes incoming remote
// tracks to the screen and webcam display slots.
package viewer

import (
	"context"
	"errors"
	"sync"

	"github.com/CzarSimon/httputil/logger"
	"github.com/rtcheap/session-broker/internal/models"
	"github.com/rtcheap/session-broker/internal/rtc"
	"github.com/rtcheap/session-broker/internal/topology"
	"go.uber.org/zap"
)

var log = logger.GetDefaultLogger("session-broker/viewer")

// ErrClosed returned when joining a closed session.
var ErrClosed = errors.New("viewer session is closed")

// Display shows and hides the regions backing the slots.
type Display interface {
	Show(slot Slot)
	Hide(slot Slot)
}

// Session one viewer connection and the slot bindings of its remote tracks.
// Slot state belongs to the session, so viewers in the same process never share it.
type Session struct {
	client  rtc.Client
	display Display

	mu      sync.Mutex
	slots   Assigner
	videos  map[Slot]rtc.RemoteTrack
	audios  map[rtc.UID]rtc.RemoteTrack
	joined  bool
	closed  bool
	lastErr error
}

// NewSession creates a viewer session with its own client.
func NewSession(engine rtc.Engine, display Display) *Session {
	s := &Session{
		client:  engine.CreateClient(),
		display: display,
		videos:  make(map[Slot]rtc.RemoteTrack),
		audios:  make(map[rtc.UID]rtc.RemoteTrack),
	}

	s.client.OnUserPublished(s.handlePublished)
	s.client.OnUserUnpublished(s.handleUnpublished)
	return s
}

// Join joins the channel with a generated identity.
func (s *Session) Join(ctx context.Context, creds rtc.Credentials) error {
	plan, err := topology.Plan(models.RoleViewer, topology.Dual)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	uid, err := s.client.Join(ctx, creds, plan[0].Identity)
	if err != nil {
		err = rtc.Wrap("join", err)
		s.setError(err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.client.Leave(ctx)
		return ErrClosed
	}

	s.joined = true
	log.Debug("viewer joined channel", zap.String("channel", creds.Channel), zap.String("uid", string(uid)))
	return nil
}

func (s *Session) handlePublished(user rtc.RemoteUser, kind rtc.MediaKind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	uid := user.UID()
	track, err := s.client.Subscribe(context.Background(), user, kind)
	if err != nil {
		s.lastErr = rtc.Wrap("subscribe", err)
		log.Warn("failed to subscribe", zap.String("uid", string(uid)), zap.String("kind", kind.String()), zap.Error(err))
		return
	}

	if kind == rtc.Audio {
		if prev, ok := s.audios[uid]; ok {
			prev.Stop()
		}
		s.audios[uid] = track
		s.play(track, rtc.PlayOptions{})
		return
	}

	slot, displaced := s.slots.Assign(uid)
	if slot == SlotNone {
		track.Stop()
		log.Info("no free slot for remote video", zap.String("uid", string(uid)))
		return
	}
	if displaced != "" {
		log.Info("remote video displaced", zap.String("uid", string(displaced)), zap.String("slot", slot.String()))
	}

	if prev, ok := s.videos[slot]; ok {
		prev.Stop()
	}
	s.videos[slot] = track
	s.play(track, rtc.PlayOptions{Region: slot.Region(), Fit: slot.Fit()})
	s.display.Show(slot)
}

func (s *Session) handleUnpublished(user rtc.RemoteUser, kind rtc.MediaKind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uid := user.UID()
	if kind == rtc.Audio {
		if track, ok := s.audios[uid]; ok {
			track.Stop()
			delete(s.audios, uid)
		}
		return
	}

	slot := s.slots.Release(uid)
	if slot == SlotNone {
		return
	}

	if track, ok := s.videos[slot]; ok {
		track.Stop()
		delete(s.videos, slot)
	}
	s.display.Hide(slot)
}

func (s *Session) play(track rtc.RemoteTrack, opts rtc.PlayOptions) {
	err := track.Play(opts)
	if err != nil {
		s.lastErr = rtc.Wrap("play", err)
		log.Warn("failed to play remote track", zap.String("region", opts.Region), zap.Error(err))
	}
}

// Owner returns the remote publisher bound to slot.
func (s *Session) Owner(slot Slot) (rtc.UID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots.Owner(slot)
}

// HasRemoteVideo reports whether any slot shows a remote video.
func (s *Session) HasRemoteVideo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.videos) > 0
}

// LastError last SDK failure of the session.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
}

// Close stops every remote track, hides the slots and leaves the channel. Only the first call has effect.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	for slot, track := range s.videos {
		track.Stop()
		s.display.Hide(slot)
	}
	for _, track := range s.audios {
		track.Stop()
	}
	s.videos = make(map[Slot]rtc.RemoteTrack)
	s.audios = make(map[rtc.UID]rtc.RemoteTrack)
	s.slots = Assigner{}
	joined := s.joined
	s.joined = false
	s.mu.Unlock()

	if !joined {
		return nil
	}

	return rtc.Wrap("leave", s.client.Leave(ctx))
}
