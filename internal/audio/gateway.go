package audio

import "context"

// Gateway is the part of the chat gateway the engine needs. One Gateway is
// bound per guild through Manager.BindClient; the engine never closes it.
type Gateway interface {
	// ValidateChannel returns nil when channelID is a voice channel that
	// belongs to guildID.
	ValidateChannel(ctx context.Context, guildID, channelID string) error

	// Connect joins channelID and returns a live connection. It must give up
	// when ctx is done.
	Connect(ctx context.Context, guildID, channelID string) (Conn, error)
}

// ChannelPicker is implemented by gateways that can choose a voice channel
// when no default is configured.
type ChannelPicker interface {
	PickChannel(ctx context.Context, guildID string) (string, error)
}

// Conn is a connected voice sink.
type Conn interface {
	ChannelID() string
	WriteFrame(ctx context.Context, frame []byte) error
	// Close must be safe to call more than once.
	Close() error
}

// FrameSource yields encoded audio frames one at a time. ReadFrame returns
// io.EOF after the last frame.
type FrameSource interface {
	ReadFrame() ([]byte, error)
	Close() error
}

// Transcoder starts an external process for sourcePath and exposes its
// output as frames. Cancelling ctx must terminate the process.
type Transcoder interface {
	Run(ctx context.Context, sourcePath, commandTemplate string) (FrameSource, error)
}

// ClipResolver maps a clip identifier to a playable local file.
type ClipResolver interface {
	ResolveClip(ctx context.Context, clipID string) (string, error)
}
