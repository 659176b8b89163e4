package rtctest

import (
	"sync"

	"github.com/rtcheap/session-broker/internal/rtc"
)

// LocalTrack fake captured track.
type LocalTrack struct {
	Source string
	// Screen options the track was captured with, screen tracks only.
	Screen rtc.ScreenOptions

	kind    rtc.MediaKind
	mu      sync.Mutex
	onEnded func()
	closes  int
}

// Kind media kind of the track.
func (t *LocalTrack) Kind() rtc.MediaKind {
	return t.kind
}

// OnEnded registers the end of capture handler.
func (t *LocalTrack) OnEnded(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEnded = fn
}

// End simulates the capture being stopped outside of the application.
func (t *LocalTrack) End() {
	t.mu.Lock()
	fn := t.onEnded
	t.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Close releases the capture device.
func (t *LocalTrack) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
}

// Closed reports whether Close has been called.
func (t *LocalTrack) Closed() bool {
	return t.Closes() > 0
}

// Closes number of Close calls.
func (t *LocalTrack) Closes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

// RemoteTrack fake subscribed track.
type RemoteTrack struct {
	Owner rtc.UID

	kind    rtc.MediaKind
	mu      sync.Mutex
	playing bool
	opts    rtc.PlayOptions
	stops   int
}

// Kind media kind of the track.
func (t *RemoteTrack) Kind() rtc.MediaKind {
	return t.kind
}

// Play records the playback options.
func (t *RemoteTrack) Play(opts rtc.PlayOptions) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playing = true
	t.opts = opts
	return nil
}

// Stop stops playback.
func (t *RemoteTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playing = false
	t.stops++
}

// Playing reports whether the track is playing and with which options.
func (t *RemoteTrack) Playing() (bool, rtc.PlayOptions) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing, t.opts
}
