// Package rtctest provides an in-memory realtime SDK for tests. Clients joined to the same
// channel name see each other's publications, and credentials are enforced when the
// engine knows the app certificate.
package rtctest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rtcheap/session-broker/internal/rtc"
	"github.com/rtcheap/session-broker/internal/rtctoken"
)

// Errors returned by the fake SDK.
var (
	ErrNotJoined      = errors.New("client has not joined a channel")
	ErrCannotPublish  = errors.New("credential does not allow publishing")
	ErrAlreadyJoined  = errors.New("client has already joined a channel")
	ErrNotPublished   = errors.New("user has not published requested media")
	ErrOperationAbort = errors.New("OPERATION_ABORTED")
	ErrNotVideoCodec  = errors.New("screen capture requires a video codec")
)

// Engine fake rtc.Engine.
type Engine struct {
	// AppCertificate enables credential checks on join when set.
	AppCertificate string

	ScreenErr error
	CameraErr error
	MicErr    error
	JoinErr   error

	mu       sync.Mutex
	clients  []*Client
	tracks   []*LocalTrack
	channels map[string]map[*Client]bool
	nextUID  int
}

// NewEngine creates an empty fake engine.
func NewEngine() *Engine {
	return &Engine{
		channels: make(map[string]map[*Client]bool),
	}
}

// CreateClient creates a client that is not yet joined.
func (e *Engine) CreateClient() rtc.Client {
	e.mu.Lock()
	defer e.mu.Unlock()

	c := &Client{engine: e}
	e.clients = append(e.clients, c)
	return c
}

// CreateScreenVideoTrack captures the screen unless ScreenErr is set.
func (e *Engine) CreateScreenVideoTrack(ctx context.Context, opts rtc.ScreenOptions) (rtc.LocalTrack, error) {
	if opts.Codec.MimeType != "" && rtc.CodecKind(opts.Codec) != rtc.Video {
		return nil, fmt.Errorf("%w: %s", ErrNotVideoCodec, opts.Codec.MimeType)
	}

	t, err := e.createTrack(ctx, "screen", rtc.Video, e.ScreenErr)
	if err != nil {
		return nil, err
	}

	t.(*LocalTrack).Screen = opts
	return t, nil
}

// CreateCameraVideoTrack captures the camera unless CameraErr is set.
func (e *Engine) CreateCameraVideoTrack(ctx context.Context) (rtc.LocalTrack, error) {
	return e.createTrack(ctx, "camera", rtc.Video, e.CameraErr)
}

// CreateMicrophoneAudioTrack captures the microphone unless MicErr is set.
func (e *Engine) CreateMicrophoneAudioTrack(ctx context.Context) (rtc.LocalTrack, error) {
	return e.createTrack(ctx, "microphone", rtc.Audio, e.MicErr)
}

func (e *Engine) createTrack(ctx context.Context, source string, kind rtc.MediaKind, err error) (rtc.LocalTrack, error) {
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t := &LocalTrack{Source: source, kind: kind}
	e.tracks = append(e.tracks, t)
	return t, nil
}

// Clients returns every client created so far.
func (e *Engine) Clients() []*Client {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]*Client(nil), e.clients...)
}

// Tracks returns every local track created so far.
func (e *Engine) Tracks() []*LocalTrack {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]*LocalTrack(nil), e.tracks...)
}

// OpenTracks returns local tracks that have not been closed.
func (e *Engine) OpenTracks() []*LocalTrack {
	open := make([]*LocalTrack, 0)
	for _, t := range e.Tracks() {
		if !t.Closed() {
			open = append(open, t)
		}
	}

	return open
}

// JoinedClients returns clients currently in a channel.
func (e *Engine) JoinedClients() []*Client {
	e.mu.Lock()
	defer e.mu.Unlock()

	joined := make([]*Client, 0)
	for _, c := range e.clients {
		if c.channel != "" {
			joined = append(joined, c)
		}
	}

	return joined
}

type delivery struct {
	fn   func(rtc.RemoteUser, rtc.MediaKind)
	user rtc.RemoteUser
	kind rtc.MediaKind
}

func deliver(ds []delivery) {
	for _, d := range ds {
		d.fn(d.user, d.kind)
	}
}

// Client fake rtc.Client.
type Client struct {
	engine *Engine

	uid        rtc.UID
	channel    string
	canPublish bool
	published  []*LocalTrack
	onPub      func(rtc.RemoteUser, rtc.MediaKind)
	onUnpub    func(rtc.RemoteUser, rtc.MediaKind)
	leaves     int
	subscribed []*RemoteTrack
}

// Join joins the channel. An empty uid is replaced by a generated one.
func (c *Client) Join(ctx context.Context, creds rtc.Credentials, uid rtc.UID) (rtc.UID, error) {
	e := c.engine
	if e.JoinErr != nil {
		return "", e.JoinErr
	}

	canPublish := true
	if e.AppCertificate != "" {
		claims, err := rtctoken.Parse(creds.Token, e.AppCertificate, creds.Channel, 0)
		if err != nil {
			return "", err
		}
		if claims.AppID != creds.AppID {
			return "", fmt.Errorf("credential issued for app %s", claims.AppID)
		}
		canPublish = claims.CanPublish()
	}

	e.mu.Lock()
	if c.channel != "" {
		e.mu.Unlock()
		return "", ErrAlreadyJoined
	}

	if uid == "" {
		e.nextUID++
		uid = rtc.UID(fmt.Sprintf("user-%d", e.nextUID))
	}
	c.uid = uid
	c.channel = creds.Channel
	c.canPublish = canPublish

	members, ok := e.channels[creds.Channel]
	if !ok {
		members = make(map[*Client]bool)
		e.channels[creds.Channel] = members
	}

	ds := make([]delivery, 0)
	for other := range members {
		if c.onPub == nil {
			break
		}
		for _, t := range other.published {
			ds = append(ds, delivery{fn: c.onPub, user: remoteUser(other.uid), kind: t.kind})
		}
	}
	members[c] = true
	e.mu.Unlock()

	deliver(ds)
	return uid, nil
}

// Publish publishes local tracks to the other members of the channel.
func (c *Client) Publish(ctx context.Context, tracks ...rtc.LocalTrack) error {
	e := c.engine
	e.mu.Lock()
	if c.channel == "" {
		e.mu.Unlock()
		return ErrNotJoined
	}
	if !c.canPublish {
		e.mu.Unlock()
		return ErrCannotPublish
	}

	ds := make([]delivery, 0)
	for _, t := range tracks {
		lt := t.(*LocalTrack)
		c.published = append(c.published, lt)
		ds = append(ds, c.fanOut(true, lt.kind)...)
	}
	e.mu.Unlock()

	deliver(ds)
	return nil
}

// Unpublish stops publishing the tracks.
func (c *Client) Unpublish(ctx context.Context, tracks ...rtc.LocalTrack) error {
	e := c.engine
	e.mu.Lock()
	if c.channel == "" {
		e.mu.Unlock()
		return ErrNotJoined
	}

	ds := make([]delivery, 0)
	for _, t := range tracks {
		lt := t.(*LocalTrack)
		if c.removePublished(lt) {
			ds = append(ds, c.fanOut(false, lt.kind)...)
		}
	}
	e.mu.Unlock()

	deliver(ds)
	return nil
}

// Subscribe subscribes to media of a remote user.
func (c *Client) Subscribe(ctx context.Context, user rtc.RemoteUser, kind rtc.MediaKind) (rtc.RemoteTrack, error) {
	e := c.engine
	e.mu.Lock()
	defer e.mu.Unlock()

	if c.channel == "" {
		return nil, ErrNotJoined
	}

	for other := range e.channels[c.channel] {
		if other.uid != user.UID() {
			continue
		}
		for _, t := range other.published {
			if t.kind == kind {
				rt := &RemoteTrack{Owner: user.UID(), kind: kind}
				c.subscribed = append(c.subscribed, rt)
				return rt, nil
			}
		}
	}

	return nil, ErrNotPublished
}

// OnUserPublished registers the publish handler.
func (c *Client) OnUserPublished(fn func(user rtc.RemoteUser, kind rtc.MediaKind)) {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	c.onPub = fn
}

// OnUserUnpublished registers the unpublish handler.
func (c *Client) OnUserUnpublished(fn func(user rtc.RemoteUser, kind rtc.MediaKind)) {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	c.onUnpub = fn
}

// Leave unpublishes everything and leaves the channel.
func (c *Client) Leave(ctx context.Context) error {
	e := c.engine
	e.mu.Lock()
	c.leaves++
	if c.channel == "" {
		e.mu.Unlock()
		return nil
	}

	ds := make([]delivery, 0)
	for _, t := range c.published {
		ds = append(ds, c.fanOut(false, t.kind)...)
	}
	c.published = nil
	delete(e.channels[c.channel], c)
	c.channel = ""
	e.mu.Unlock()

	deliver(ds)
	return nil
}

// UID identity the client joined with.
func (c *Client) UID() rtc.UID {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	return c.uid
}

// Leaves number of Leave calls.
func (c *Client) Leaves() int {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	return c.leaves
}

// Published tracks currently published by the client.
func (c *Client) Published() []*LocalTrack {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	return append([]*LocalTrack(nil), c.published...)
}

// Subscribed remote tracks the client subscribed to.
func (c *Client) Subscribed() []*RemoteTrack {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	return append([]*RemoteTrack(nil), c.subscribed...)
}

// fanOut must be called with the engine lock held.
func (c *Client) fanOut(published bool, kind rtc.MediaKind) []delivery {
	ds := make([]delivery, 0)
	for other := range c.engine.channels[c.channel] {
		if other == c {
			continue
		}
		fn := other.onUnpub
		if published {
			fn = other.onPub
		}
		if fn != nil {
			ds = append(ds, delivery{fn: fn, user: remoteUser(c.uid), kind: kind})
		}
	}

	return ds
}

func (c *Client) removePublished(t *LocalTrack) bool {
	for i, p := range c.published {
		if p == t {
			c.published = append(c.published[:i], c.published[i+1:]...)
			return true
		}
	}

	return false
}

// PublishAs joins a standalone publisher with a fixed uid and publishes fresh tracks of the given kinds.
func (e *Engine) PublishAs(ctx context.Context, creds rtc.Credentials, uid rtc.UID, kinds ...rtc.MediaKind) (*Client, error) {
	c := e.CreateClient().(*Client)
	_, err := c.Join(ctx, creds, uid)
	if err != nil {
		return nil, err
	}

	tracks := make([]rtc.LocalTrack, 0, len(kinds))
	for _, k := range kinds {
		t, err := e.createTrack(ctx, "test", k, nil)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}

	return c, c.Publish(ctx, tracks...)
}

type remoteUser rtc.UID

func (u remoteUser) UID() rtc.UID {
	return rtc.UID(u)
}
