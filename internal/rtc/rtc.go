// Package rtc describes the boundary to the realtime audio/video SDK. Capture, encoding and
// transport all happen behind these interfaces.
package rtc

import (
	"context"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v3"
)

// UID identity of a participant in a channel. An empty UID asks the SDK to generate one.
type UID string

// MediaKind kind of media carried by a track.
type MediaKind = webrtc.RTPCodecType

// Media kinds.
const (
	Audio = webrtc.RTPCodecTypeAudio
	Video = webrtc.RTPCodecTypeVideo
)

// Fit scaling applied when a video track is rendered into a region.
type Fit string

// Fits.
const (
	// FitContain preserves the aspect ratio within bounds, may letterbox.
	FitContain Fit = "contain"
	// FitCover fills the bounds, may crop.
	FitCover Fit = "cover"
)

// PlayOptions where and how a remote track is rendered. Audio tracks ignore both fields.
type PlayOptions struct {
	Region string
	Fit    Fit
}

// ScreenOptions encoder settings of a screen capture.
type ScreenOptions struct {
	EncoderConfig string
	// Codec video codec the capture is encoded with.
	Codec webrtc.RTPCodecCapability
	// Audio captures system audio with the screen.
	Audio bool
}

// DefaultScreenOptions screen captures are encoded as VP8 at 1080p without system audio,
// the host's voice travels on the microphone track.
var DefaultScreenOptions = ScreenOptions{
	EncoderConfig: "1080p_1",
	Codec: webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeVP8,
		ClockRate: 90000,
		RTCPFeedback: []webrtc.RTCPFeedback{
			{Type: webrtc.TypeRTCPFBNACK},
			{Type: webrtc.TypeRTCPFBNACK, Parameter: "pli"},
		},
	},
}

// CodecKind media kind carried by a codec, read from the type part of its mime type.
// Unknown mime types give the zero MediaKind.
func CodecKind(codec webrtc.RTPCodecCapability) MediaKind {
	kind := codec.MimeType
	if i := strings.IndexByte(kind, '/'); i >= 0 {
		kind = kind[:i]
	}

	return webrtc.NewRTPCodecType(kind)
}

// Credentials everything needed to join a channel.
type Credentials struct {
	AppID   string
	Channel string
	Token   string
}

// Engine entry point of the SDK.
type Engine interface {
	CreateClient() Client
	CreateScreenVideoTrack(ctx context.Context, opts ScreenOptions) (LocalTrack, error)
	CreateCameraVideoTrack(ctx context.Context) (LocalTrack, error)
	CreateMicrophoneAudioTrack(ctx context.Context) (LocalTrack, error)
}

// Client one connection into a channel.
type Client interface {
	Join(ctx context.Context, creds Credentials, uid UID) (UID, error)
	Publish(ctx context.Context, tracks ...LocalTrack) error
	Unpublish(ctx context.Context, tracks ...LocalTrack) error
	Subscribe(ctx context.Context, user RemoteUser, kind MediaKind) (RemoteTrack, error)
	OnUserPublished(fn func(user RemoteUser, kind MediaKind))
	OnUserUnpublished(fn func(user RemoteUser, kind MediaKind))
	Leave(ctx context.Context) error
}

// LocalTrack captured local media.
type LocalTrack interface {
	Kind() MediaKind
	// OnEnded is called when capture stops outside of the application, e.g. from an OS control.
	OnEnded(fn func())
	Close()
}

// RemoteTrack subscribed media of a remote participant.
type RemoteTrack interface {
	Kind() MediaKind
	Play(opts PlayOptions) error
	Stop()
}

// RemoteUser a remote participant of a channel.
type RemoteUser interface {
	UID() UID
}

// SdkError failure reported by the SDK or by acquiring media.
type SdkError struct {
	Op  string
	Err error
}

func (e *SdkError) Error() string {
	return fmt.Sprintf("rtc: %s failed: %v", e.Op, e.Err)
}

func (e *SdkError) Unwrap() error {
	return e.Err
}

// Wrap wraps err in an SdkError for the operation, nil stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	return &SdkError{Op: op, Err: err}
}
