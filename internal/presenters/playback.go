package presenters

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/glizzus/terminus/internal/audio"
)

const (
	StoppedMessage = "Stopped playback and cleared the queue."
	UnknownCommand = "Unknown command."
	FileNotFound   = "File does not exist."
)

// FailureMessage turns a playback error into something a user can act on.
func FailureMessage(err error) string {
	if errors.Is(err, audio.ErrClosed) {
		return "The player is shutting down."
	}

	switch kind := audio.KindOf(err); kind {
	case audio.ErrInvalidChannel:
		return "Invalid channel ID, try letting it use the default."
	case audio.ErrSourceNotFound:
		return FileNotFound
	case audio.ErrClipNotFound:
		return "That clip is not in the catalog."
	case audio.ErrNoClientBound:
		return "I am not set up for this server yet."
	case audio.ErrConnectionFailed:
		return "I could not join the voice channel."
	case audio.ErrTranscoderSpawnFailed:
		return "I could not start the audio transcoder."
	case audio.ErrTranscoderExitedNonZero:
		return "That file could not be decoded."
	case audio.ErrTranscoderTimeout:
		return "The audio stopped coming through, so I skipped it."
	case audio.ErrWriteFailed:
		return "I lost the voice connection while playing."
	default:
		return "Something went wrong playing that."
	}
}

func QueuedMessage(song string) string {
	return fmt.Sprintf("Queued **%s**.", song)
}

// Describe names a request the way the queue lists it.
func Describe(req audio.Request) string {
	if req.Kind == audio.KindClip {
		return fmt.Sprintf("clip `%s`", req.ClipID)
	}
	return filepath.Base(req.SourcePath)
}
