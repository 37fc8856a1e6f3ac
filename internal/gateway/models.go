package gateway

import (
	"context"
	"errors"
)

// ErrVideoNotFound is returned by a Resolver when no streams exist for an ID.
var ErrVideoNotFound = errors.New("video not found")

// RangeSpec is an inclusive byte span inside a media file, as reported by the
// resolver for indexed formats.
type RangeSpec struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// StreamFormat is one encoded variant of a video, owned by the external
// resolver and read-only to this gateway. The URL is already
// signature-resolved; validity until expiry is the resolver's concern.
type StreamFormat struct {
	Itag       int        `json:"itag"`
	URL        string     `json:"url"`
	MimeType   string     `json:"mimeType"`
	Codecs     string     `json:"codecs"`
	Bitrate    int        `json:"bitrate"`
	Width      int        `json:"width,omitempty"`
	Height     int        `json:"height,omitempty"`
	FPS        int        `json:"fps,omitempty"`
	IndexRange *RangeSpec `json:"indexRange,omitempty"`
	InitRange  *RangeSpec `json:"initRange,omitempty"`
}

// Video is the resolver's answer for one video ID: the immutable format list
// plus optional origin manifest URLs for live or post-live content.
type Video struct {
	ID              string         `json:"videoId"`
	LengthSeconds   int            `json:"lengthSeconds"`
	Formats         []StreamFormat `json:"formats"`
	DashManifestURL string         `json:"dashManifestUrl,omitempty"`
	HLSManifestURL  string         `json:"hlsManifestUrl,omitempty"`
}

// Resolver turns a video ID into its stream descriptors. Implementations are
// external to this core; the gateway treats them as opaque.
type Resolver interface {
	Resolve(ctx context.Context, videoID string) (*Video, error)
}

// Features are the administrative toggles gating playback endpoints.
// A disabled toggle yields 403 with a fixed message.
type Features struct {
	Downloads   bool
	DASH        bool
	Livestreams bool
}
