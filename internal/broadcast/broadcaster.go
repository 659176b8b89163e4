// Package broadcast implements the host side of a session: one or two publishable
// connections into the session's channel, each owning the capture it publishes.
package broadcast

import (
	"context"
	"fmt"
	"sync"

	"github.com/rtcheap/session-broker/internal/models"
	"github.com/rtcheap/session-broker/internal/rtc"
	"github.com/rtcheap/session-broker/internal/topology"
	"go.uber.org/zap"
)

// Broadcaster publishes a host's screen and webcam according to a topology variant.
type Broadcaster struct {
	variant    topology.Variant
	publishers []*Publisher

	mu      sync.Mutex
	closing bool
}

// NewBroadcaster creates the publishers planned for a host.
func NewBroadcaster(engine rtc.Engine, variant topology.Variant, onStatus StatusFunc) (*Broadcaster, error) {
	plan, err := topology.Plan(models.RoleHost, variant)
	if err != nil {
		return nil, err
	}

	b := &Broadcaster{
		variant:    variant,
		publishers: make([]*Publisher, 0, len(plan)),
	}
	for _, conn := range plan {
		b.publishers = append(b.publishers, NewPublisher(engine, conn, b.statusHandler(onStatus)))
	}

	return b, nil
}

// Join joins every publisher to the channel. Nothing stays joined when one of them fails.
func (b *Broadcaster) Join(ctx context.Context, creds rtc.Credentials) error {
	for _, p := range b.publishers {
		err := p.Join(ctx, creds)
		if err != nil {
			b.Close(ctx)
			return err
		}
	}

	return nil
}

// Start starts publishing a capture source. The microphone goes with the first
// published source so the host is heard once. When that source goes idle the
// microphone moves to a source that is still published.
func (b *Broadcaster) Start(ctx context.Context, source string) error {
	p, err := b.publisherFor(source)
	if err != nil {
		return err
	}

	return p.Start(ctx, source, !b.audioPublishedBesides(p))
}

// Stop stops publishing a capture source.
func (b *Broadcaster) Stop(ctx context.Context, source string) error {
	p, err := b.publisherFor(source)
	if err != nil {
		return err
	}

	if p.Source() != source {
		return nil
	}

	return p.Stop(ctx)
}

// Toggle starts an idle source or stops a published one.
func (b *Broadcaster) Toggle(ctx context.Context, source string) error {
	if b.State(source) == models.StatePublished {
		return b.Stop(ctx, source)
	}

	return b.Start(ctx, source)
}

// State current capture state of a source.
func (b *Broadcaster) State(source string) string {
	p, err := b.publisherFor(source)
	if err != nil || p.Source() != source {
		return models.StateIdle
	}

	return p.State()
}

// LastError last failure of the connection publishing source.
func (b *Broadcaster) LastError(source string) error {
	p, err := b.publisherFor(source)
	if err != nil {
		return err
	}

	return p.LastError()
}

// Publishers the publishable connections of the broadcaster.
func (b *Broadcaster) Publishers() []*Publisher {
	return b.publishers
}

// Variant topology variant the broadcaster was built with.
func (b *Broadcaster) Variant() topology.Variant {
	return b.variant
}

// Close releases every capture and connection, returns the first error.
func (b *Broadcaster) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closing = true
	b.mu.Unlock()

	var first error
	for _, p := range b.publishers {
		err := p.Close(ctx)
		if err != nil {
			log.Warn("failed to close publisher", zap.String("identity", string(p.Connection().Identity)), zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}

	return first
}

func (b *Broadcaster) publisherFor(source string) (*Publisher, error) {
	for _, p := range b.publishers {
		if p.Connection().Publishes(source) {
			return p, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, source)
}

func (b *Broadcaster) audioPublishedBesides(target *Publisher) bool {
	for _, p := range b.publishers {
		if p != target && p.HasAudio() {
			return true
		}
	}

	return false
}

func (b *Broadcaster) statusHandler(onStatus StatusFunc) StatusFunc {
	return func(status models.CaptureStatus) {
		if onStatus != nil {
			onStatus(status)
		}
		if status.State == models.StateIdle {
			b.moveAudio()
		}
	}
}

// moveAudio attaches the microphone to a published capture when no connection carries it.
func (b *Broadcaster) moveAudio() {
	b.mu.Lock()
	closing := b.closing
	b.mu.Unlock()
	if closing {
		return
	}

	var target *Publisher
	for _, p := range b.publishers {
		if p.HasAudio() {
			return
		}
		if target == nil && p.State() == models.StatePublished {
			target = p
		}
	}
	if target == nil {
		return
	}

	err := target.AttachAudio(context.Background())
	if err != nil {
		log.Warn("failed to move microphone", zap.String("identity", string(target.Connection().Identity)), zap.Error(err))
	}
}
