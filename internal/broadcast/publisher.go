package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/CzarSimon/httputil/logger"
	"github.com/rtcheap/session-broker/internal/models"
	"github.com/rtcheap/session-broker/internal/rtc"
	"github.com/rtcheap/session-broker/internal/topology"
	"go.uber.org/zap"
)

var log = logger.GetDefaultLogger("session-broker/broadcast")

// Publisher errors.
var (
	ErrClosed            = errors.New("publisher is closed")
	ErrNotJoined         = errors.New("publisher has not joined the channel")
	ErrAcquiring         = errors.New("capture is already being acquired")
	ErrUnsupportedSource = errors.New("source is not published by this connection")
)

// StatusFunc receives every capture state transition.
type StatusFunc func(status models.CaptureStatus)

// Publisher a connection into a channel that publishes one local capture at a time.
//
// State machine per capture: idle -> acquiring -> published -> idle on stop, and
// idle -> acquiring -> error -> idle when acquisition fails.
type Publisher struct {
	engine   rtc.Engine
	client   rtc.Client
	conn     topology.Connection
	onStatus StatusFunc

	mu      sync.Mutex
	joined  bool
	closed  bool
	state   string
	source  string
	video   rtc.LocalTrack
	audio   rtc.LocalTrack
	lastErr error
	gen     int
	pending []models.CaptureStatus
}

// NewPublisher creates a publisher for a planned connection.
func NewPublisher(engine rtc.Engine, conn topology.Connection, onStatus StatusFunc) *Publisher {
	return &Publisher{
		engine:   engine,
		client:   engine.CreateClient(),
		conn:     conn,
		onStatus: onStatus,
		state:    models.StateIdle,
	}
}

// Join joins the channel with the connection's identity.
func (p *Publisher) Join(ctx context.Context, creds rtc.Credentials) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	uid, err := p.client.Join(ctx, creds, p.conn.Identity)
	if err != nil {
		p.lastErr = rtc.Wrap("join", err)
		return p.lastErr
	}

	p.joined = true
	log.Debug("publisher joined channel", zap.String("channel", creds.Channel), zap.String("uid", string(uid)))
	return nil
}

// Start acquires the capture for source and publishes it. A published capture of another
// source is stopped first. withAudio adds the microphone when one is available.
func (p *Publisher) Start(ctx context.Context, source string, withAudio bool) error {
	p.mu.Lock()
	if err := p.checkStartLocked(source); err != nil {
		p.mu.Unlock()
		return err
	}
	if p.state == models.StatePublished && p.source == source {
		p.mu.Unlock()
		return nil
	}
	if p.state == models.StatePublished {
		p.stopLocked(ctx)
	}

	p.source = source
	p.lastErr = nil
	p.transition(models.StateAcquiring)
	p.unlockAndNotify()

	video, audio, err := p.acquire(ctx, source, withAudio)

	p.mu.Lock()
	defer p.unlockAndNotify()

	if err == nil && (p.closed || ctx.Err() != nil) {
		release(video, audio)
		p.transition(models.StateIdle)
		if p.closed {
			return ErrClosed
		}
		return ctx.Err()
	}
	if err != nil {
		return p.failLocked(err)
	}

	tracks := []rtc.LocalTrack{video}
	if audio != nil {
		tracks = append(tracks, audio)
	}

	err = p.client.Publish(ctx, tracks...)
	if err != nil {
		release(video, audio)
		return p.failLocked(rtc.Wrap("publish", err))
	}

	p.video = video
	p.audio = audio
	p.gen++
	gen := p.gen
	video.OnEnded(func() {
		p.handleEnded(gen)
	})

	p.transition(models.StatePublished)
	return nil
}

func (p *Publisher) checkStartLocked(source string) error {
	if p.closed {
		return ErrClosed
	}
	if !p.joined {
		return ErrNotJoined
	}
	if !p.conn.Publishes(source) {
		return fmt.Errorf("%w: %s", ErrUnsupportedSource, source)
	}
	if p.state == models.StateAcquiring {
		return ErrAcquiring
	}

	return nil
}

func (p *Publisher) acquire(ctx context.Context, source string, withAudio bool) (rtc.LocalTrack, rtc.LocalTrack, error) {
	var video rtc.LocalTrack
	var err error
	switch source {
	case models.SourceScreen:
		video, err = p.engine.CreateScreenVideoTrack(ctx, rtc.DefaultScreenOptions)
	case models.SourceCamera:
		video, err = p.engine.CreateCameraVideoTrack(ctx)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedSource, source)
	}
	if err != nil {
		return nil, nil, rtc.Wrap("acquire "+source, err)
	}

	if !withAudio {
		return video, nil, nil
	}

	audio, err := p.engine.CreateMicrophoneAudioTrack(ctx)
	if err != nil {
		log.Warn("no microphone available, publishing video only", zap.String("source", source), zap.Error(err))
		return video, nil, nil
	}

	return video, audio, nil
}

func (p *Publisher) failLocked(err error) error {
	p.lastErr = err
	p.transition(models.StateError)
	p.transition(models.StateIdle)
	return err
}

// AttachAudio publishes the microphone next to the active capture. Does nothing unless
// a capture is published without audio.
func (p *Publisher) AttachAudio(ctx context.Context) error {
	p.mu.Lock()
	if p.closed || p.state != models.StatePublished || p.audio != nil {
		p.mu.Unlock()
		return nil
	}
	gen := p.gen
	p.mu.Unlock()

	audio, err := p.engine.CreateMicrophoneAudioTrack(ctx)
	if err != nil {
		return rtc.Wrap("acquire microphone", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.gen != gen || p.audio != nil {
		release(audio)
		return nil
	}

	err = p.client.Publish(ctx, audio)
	if err != nil {
		release(audio)
		return rtc.Wrap("publish", err)
	}

	p.audio = audio
	log.Debug("microphone attached", zap.String("source", p.source))
	return nil
}

// Stop unpublishes and releases the active capture.
func (p *Publisher) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.unlockAndNotify()

	return p.stopLocked(ctx)
}

func (p *Publisher) stopLocked(ctx context.Context) error {
	if p.state != models.StatePublished {
		return nil
	}

	tracks := []rtc.LocalTrack{p.video}
	if p.audio != nil {
		tracks = append(tracks, p.audio)
	}

	err := p.client.Unpublish(ctx, tracks...)
	if err != nil {
		err = rtc.Wrap("unpublish", err)
		p.lastErr = err
		log.Warn("failed to unpublish capture", zap.String("source", p.source), zap.Error(err))
	}

	release(p.video, p.audio)
	p.video = nil
	p.audio = nil
	p.gen++
	p.transition(models.StateIdle)
	return err
}

func (p *Publisher) handleEnded(gen int) {
	p.mu.Lock()
	defer p.unlockAndNotify()

	if gen != p.gen {
		return
	}

	log.Info("capture ended outside of the application", zap.String("source", p.source))
	p.stopLocked(context.Background())
}

// Close stops any capture and leaves the channel. Safe to call in any state, only the first call has effect.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.unlockAndNotify()

	if p.closed {
		return nil
	}
	p.closed = true

	stopErr := p.stopLocked(ctx)
	if !p.joined {
		return stopErr
	}

	p.joined = false
	err := p.client.Leave(ctx)
	if err != nil {
		return rtc.Wrap("leave", err)
	}

	return stopErr
}

// State current capture state.
func (p *Publisher) State() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Source the capture source last started.
func (p *Publisher) Source() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source
}

// HasAudio reports whether a microphone track is published.
func (p *Publisher) HasAudio() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.audio != nil
}

// LastError error of the last failed operation, cleared by Start.
func (p *Publisher) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Connection the planned connection the publisher serves.
func (p *Publisher) Connection() topology.Connection {
	return p.conn
}

func (p *Publisher) transition(state string) {
	p.state = state
	p.pending = append(p.pending, models.CaptureStatus{Source: p.source, State: state})
}

func (p *Publisher) unlockAndNotify() {
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	if p.onStatus == nil {
		return
	}
	for _, status := range pending {
		p.onStatus(status)
	}
}

func release(tracks ...rtc.LocalTrack) {
	for _, t := range tracks {
		if t != nil {
			t.Close()
		}
	}
}
