package viewer_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rtcheap/session-broker/internal/models"
	"github.com/rtcheap/session-broker/internal/rtc"
	"github.com/rtcheap/session-broker/internal/rtc/rtctest"
	"github.com/rtcheap/session-broker/internal/topology"
	"github.com/rtcheap/session-broker/internal/viewer"
	"github.com/stretchr/testify/assert"
)

var testCreds = rtc.Credentials{
	AppID:   "970ca35de60c44645bbae8a215061b33",
	Channel: "abc-123",
	Token:   "token",
}

func TestRoutesHostIdentities(t *testing.T) {
	orders := [][]rtc.UID{
		{topology.ScreenIdentity, topology.CameraIdentity},
		{topology.CameraIdentity, topology.ScreenIdentity},
	}

	for _, order := range orders {
		assert := assert.New(t)
		ctx := context.Background()
		engine := rtctest.NewEngine()
		display := newDisplay()

		s := viewer.NewSession(engine, display)
		assert.NoError(s.Join(ctx, testCreds))

		for _, uid := range order {
			_, err := engine.PublishAs(ctx, testCreds, uid, rtc.Video)
			assert.NoError(err)
		}

		owner, ok := s.Owner(viewer.SlotScreen)
		assert.True(ok)
		assert.Equal(topology.ScreenIdentity, owner)
		owner, ok = s.Owner(viewer.SlotWebcam)
		assert.True(ok)
		assert.Equal(topology.CameraIdentity, owner)
		assert.True(display.visible(viewer.SlotScreen))
		assert.True(display.visible(viewer.SlotWebcam))

		screen := subscribedTrack(engine, topology.ScreenIdentity, rtc.Video)
		playing, opts := screen.Playing()
		assert.True(playing)
		assert.Equal("remote-screen", opts.Region)
		assert.Equal(rtc.FitContain, opts.Fit)

		camera := subscribedTrack(engine, topology.CameraIdentity, rtc.Video)
		playing, opts = camera.Playing()
		assert.True(playing)
		assert.Equal("remote-webcam", opts.Region)
		assert.Equal(rtc.FitCover, opts.Fit)
	}
}

func TestJoinAfterHostPublished(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	engine := rtctest.NewEngine()

	_, err := engine.PublishAs(ctx, testCreds, topology.CameraIdentity, rtc.Video)
	assert.NoError(err)
	_, err = engine.PublishAs(ctx, testCreds, topology.ScreenIdentity, rtc.Video, rtc.Audio)
	assert.NoError(err)

	s := viewer.NewSession(engine, newDisplay())
	assert.NoError(s.Join(ctx, testCreds))

	owner, _ := s.Owner(viewer.SlotScreen)
	assert.Equal(topology.ScreenIdentity, owner)
	owner, _ = s.Owner(viewer.SlotWebcam)
	assert.Equal(topology.CameraIdentity, owner)

	audio := subscribedTrack(engine, topology.ScreenIdentity, rtc.Audio)
	playing, _ := audio.Playing()
	assert.True(playing)
}

func TestAnonymousPublishers(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	engine := rtctest.NewEngine()
	display := newDisplay()

	s := viewer.NewSession(engine, display)
	assert.NoError(s.Join(ctx, testCreds))

	a, err := engine.PublishAs(ctx, testCreds, "anon-a", rtc.Video)
	assert.NoError(err)
	_, err = engine.PublishAs(ctx, testCreds, "anon-b", rtc.Video)
	assert.NoError(err)
	_, err = engine.PublishAs(ctx, testCreds, "anon-c", rtc.Video)
	assert.NoError(err)

	owner, _ := s.Owner(viewer.SlotScreen)
	assert.Equal(rtc.UID("anon-a"), owner)
	owner, _ = s.Owner(viewer.SlotWebcam)
	assert.Equal(rtc.UID("anon-b"), owner)

	overflow := subscribedTrack(engine, "anon-c", rtc.Video)
	playing, _ := overflow.Playing()
	assert.False(playing)

	assert.NoError(a.Leave(ctx))
	_, ok := s.Owner(viewer.SlotScreen)
	assert.False(ok)
	assert.False(display.visible(viewer.SlotScreen))
	assert.True(display.visible(viewer.SlotWebcam))

	_, err = engine.PublishAs(ctx, testCreds, "anon-d", rtc.Video)
	assert.NoError(err)
	owner, _ = s.Owner(viewer.SlotScreen)
	assert.Equal(rtc.UID("anon-d"), owner)
	assert.True(display.visible(viewer.SlotScreen))
}

func TestHostIdentityDisplacesAnonymous(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	engine := rtctest.NewEngine()

	s := viewer.NewSession(engine, newDisplay())
	assert.NoError(s.Join(ctx, testCreds))

	_, err := engine.PublishAs(ctx, testCreds, "anon-a", rtc.Video)
	assert.NoError(err)
	_, err = engine.PublishAs(ctx, testCreds, topology.ScreenIdentity, rtc.Video)
	assert.NoError(err)

	owner, _ := s.Owner(viewer.SlotScreen)
	assert.Equal(topology.ScreenIdentity, owner)

	anon := subscribedTrack(engine, "anon-a", rtc.Video)
	playing, _ := anon.Playing()
	assert.False(playing)
}

func TestAudioOnlyPublisher(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	engine := rtctest.NewEngine()
	display := newDisplay()

	s := viewer.NewSession(engine, display)
	assert.NoError(s.Join(ctx, testCreds))

	_, err := engine.PublishAs(ctx, testCreds, "anon-a", rtc.Audio)
	assert.NoError(err)

	assert.False(s.HasRemoteVideo())
	assert.False(display.visible(viewer.SlotScreen))
	audio := subscribedTrack(engine, "anon-a", rtc.Audio)
	playing, opts := audio.Playing()
	assert.True(playing)
	assert.Empty(opts.Region)
}

func TestClose(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	engine := rtctest.NewEngine()
	display := newDisplay()

	s := viewer.NewSession(engine, display)
	assert.NoError(s.Join(ctx, testCreds))
	_, err := engine.PublishAs(ctx, testCreds, topology.ScreenIdentity, rtc.Video, rtc.Audio)
	assert.NoError(err)
	assert.True(s.HasRemoteVideo())

	assert.NoError(s.Close(ctx))
	assert.NoError(s.Close(ctx))

	assert.False(s.HasRemoteVideo())
	assert.False(display.visible(viewer.SlotScreen))
	for _, track := range engine.Clients()[0].Subscribed() {
		playing, _ := track.Playing()
		assert.False(playing)
	}
	assert.Equal(1, engine.Clients()[0].Leaves())

	err = s.Join(ctx, testCreds)
	assert.True(errors.Is(err, viewer.ErrClosed))
}

func TestSessionsDoNotShareSlots(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	engine := rtctest.NewEngine()
	other := testCreds
	other.Channel = "def-456"

	first := viewer.NewSession(engine, newDisplay())
	second := viewer.NewSession(engine, newDisplay())
	assert.NoError(first.Join(ctx, testCreds))
	assert.NoError(second.Join(ctx, other))

	_, err := engine.PublishAs(ctx, testCreds, "anon-a", rtc.Video)
	assert.NoError(err)
	_, err = engine.PublishAs(ctx, other, "anon-b", rtc.Video)
	assert.NoError(err)

	owner, _ := first.Owner(viewer.SlotScreen)
	assert.Equal(rtc.UID("anon-a"), owner)
	owner, _ = second.Owner(viewer.SlotScreen)
	assert.Equal(rtc.UID("anon-b"), owner)

	assert.NoError(first.Close(ctx))
	owner, _ = second.Owner(viewer.SlotScreen)
	assert.Equal(rtc.UID("anon-b"), owner)
}

func TestJoinFailure(t *testing.T) {
	assert := assert.New(t)
	engine := rtctest.NewEngine()
	engine.JoinErr = errors.New("CAN_NOT_GET_GATEWAY_SERVER")

	s := viewer.NewSession(engine, newDisplay())
	err := s.Join(context.Background(), testCreds)
	assert.Error(err)
	assert.True(errors.Is(err, engine.JoinErr))
	assert.Error(s.LastError())
	assert.NoError(s.Close(context.Background()))
	assert.Equal(0, engine.Clients()[0].Leaves())
}

func TestOpen(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	engine := rtctest.NewEngine()
	api := &fakeAPI{session: models.SessionView{UniqueID: "abc-123"}}

	v, err := viewer.Open(ctx, api, engine, newDisplay(), "abc-123")
	assert.NoError(err)
	assert.Equal("abc-123", v.Info.UniqueID)
	assert.Len(engine.JoinedClients(), 1)
	assert.NoError(v.Close(ctx))

	api.err = errors.New("Session not found")
	_, err = viewer.Open(ctx, api, engine, newDisplay(), "does-not-exist")
	assert.Error(err)
	assert.Len(engine.JoinedClients(), 0)
}

type fakeAPI struct {
	session models.SessionView
	err     error
}

func (a *fakeAPI) JoinAsViewer(ctx context.Context, uniqueID string) (models.SessionView, models.Token, error) {
	if a.err != nil {
		return models.SessionView{}, models.Token{}, a.err
	}

	return a.session, models.Token{Token: "token", AppID: testCreds.AppID}, nil
}

type display struct {
	mu    sync.Mutex
	shown map[viewer.Slot]bool
}

func newDisplay() *display {
	return &display{shown: make(map[viewer.Slot]bool)}
}

func (d *display) Show(slot viewer.Slot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shown[slot] = true
}

func (d *display) Hide(slot viewer.Slot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shown[slot] = false
}

func (d *display) visible(slot viewer.Slot) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shown[slot]
}

func subscribedTrack(engine *rtctest.Engine, owner rtc.UID, kind rtc.MediaKind) *rtctest.RemoteTrack {
	for _, c := range engine.Clients() {
		for _, track := range c.Subscribed() {
			if track.Owner == owner && track.Kind() == kind {
				return track
			}
		}
	}

	return nil
}
