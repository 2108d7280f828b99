package audio

import "time"

// RequestKind tells which producer created a request.
type RequestKind int

const (
	// KindQueued is an explicit play command.
	KindQueued RequestKind = iota
	// KindClip is a short clip fired by a regex trigger or a schedule.
	KindClip
)

func (k RequestKind) String() string {
	switch k {
	case KindQueued:
		return "queued"
	case KindClip:
		return "clip"
	default:
		return "unknown"
	}
}

// Request is one unit of playback. It is immutable once accepted by the
// Manager and is always passed by value.
type Request struct {
	ID                string
	GuildID           string
	SourcePath        string
	ChannelID         string
	TranscoderCommand string
	Kind              RequestKind

	// ClipID is set for KindClip requests.
	ClipID string
	// NotifyChannelID is the text channel that should hear about failures.
	NotifyChannelID string

	RequestedAt time.Time
}

// RequestOptions is the result of applying RequestOption values.
type RequestOptions struct {
	ChannelID       string
	NotifyChannelID string
}

// RequestOption adjusts a request before it is validated.
type RequestOption func(*RequestOptions)

// ApplyRequestOptions folds opts in order.
func ApplyRequestOptions(opts ...RequestOption) RequestOptions {
	var o RequestOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithChannel overrides the destination voice channel. It matters for
// PlayClipNow; Enqueue takes its channel as an argument and only falls back
// to this option when that argument is empty.
func WithChannel(channelID string) RequestOption {
	return func(o *RequestOptions) {
		o.ChannelID = channelID
	}
}

// WithNotifyChannel records where failures of this request should be
// announced.
func WithNotifyChannel(channelID string) RequestOption {
	return func(o *RequestOptions) {
		o.NotifyChannelID = channelID
	}
}
