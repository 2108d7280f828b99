package audio

import (
	"errors"
	"strings"
)

// Validation errors. These are returned synchronously by Enqueue and
// PlayClipNow; the request never enters the queue.
var (
	ErrSourceNotFound = errors.New("source file not found")
	ErrClipNotFound   = errors.New("clip not found")
	ErrInvalidChannel = errors.New("invalid voice channel")
	ErrNoClientBound  = errors.New("no client bound to guild")
)

// Runtime errors. These are discovered after a request was accepted and are
// reported once through an EventFailed.
var (
	ErrConnectionFailed        = errors.New("voice connection failed")
	ErrTranscoderSpawnFailed   = errors.New("transcoder failed to start")
	ErrTranscoderExitedNonZero = errors.New("transcoder exited with failure")
	ErrTranscoderTimeout       = errors.New("transcoder stalled")
	ErrWriteFailed             = errors.New("voice frame write failed")
)

var kinds = []error{
	ErrSourceNotFound,
	ErrClipNotFound,
	ErrInvalidChannel,
	ErrNoClientBound,
	ErrConnectionFailed,
	ErrTranscoderSpawnFailed,
	ErrTranscoderExitedNonZero,
	ErrTranscoderTimeout,
	ErrWriteFailed,
}

// Error is returned by every failing engine operation. Kind is one of the
// package sentinels; Err is the underlying cause, if any.
type Error struct {
	Op      string
	GuildID string
	Kind    error
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.GuildID != "" {
		b.WriteString("guild ")
		b.WriteString(e.GuildID)
		b.WriteString(": ")
	}
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("audio error")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

var _ error = (*Error)(nil)

// KindOf returns the sentinel describing err, or nil if err did not come
// from this package.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != nil {
		return ae.Kind
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

func newError(op, guildID string, kind, cause error) *Error {
	return &Error{Op: op, GuildID: guildID, Kind: kind, Err: cause}
}

// asRuntimeError keeps an error that already carries a kind and otherwise
// files it under fallback.
func asRuntimeError(op, guildID string, fallback, err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		out := *ae
		if out.GuildID == "" {
			out.GuildID = guildID
		}
		if out.Kind == nil {
			out.Kind = fallback
		}
		return &out
	}
	return newError(op, guildID, fallback, err)
}
