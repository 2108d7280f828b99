package opus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/glizzus/terminus/internal/audio"
)

// Format is the output format of the transcoder process.
type Format int

const (
	// FormatOgg is an Ogg/Opus stream.
	FormatOgg Format = iota
	// FormatPCM is signed 16-bit little-endian stereo PCM at 48 kHz.
	FormatPCM
	// FormatFrames is the length-prefixed frame format.
	FormatFrames
)

func (f Format) String() string {
	switch f {
	case FormatOgg:
		return "ogg"
	case FormatPCM:
		return "pcm"
	case FormatFrames:
		return "frames"
	default:
		return "unknown"
	}
}

// ParseFormat parses "ogg", "pcm" or "frames". The empty string is ogg.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ogg":
		return FormatOgg, nil
	case "pcm":
		return FormatPCM, nil
	case "frames":
		return FormatFrames, nil
	default:
		return FormatOgg, fmt.Errorf("unknown audio format %q", s)
	}
}

// SourcePlaceholder is replaced with the source path in command templates.
const SourcePlaceholder = "{source}"

const (
	defaultCommand      = "ffmpeg"
	defaultStallTimeout = 15 * time.Second
	defaultWaitDelay    = 2 * time.Second
)

// Transcoder starts one process per Run. It is safe for concurrent use.
type Transcoder struct {
	format       Format
	stallTimeout time.Duration
	waitDelay    time.Duration
}

type TranscoderOption func(*Transcoder)

// WithFormat sets the format the process writes to stdout.
func WithFormat(f Format) TranscoderOption {
	return func(t *Transcoder) {
		t.format = f
	}
}

// WithStallTimeout sets how long ReadFrame waits for a frame. Zero disables
// the check.
func WithStallTimeout(d time.Duration) TranscoderOption {
	return func(t *Transcoder) {
		t.stallTimeout = d
	}
}

// WithWaitDelay bounds how long a killed process may hold its pipes open.
func WithWaitDelay(d time.Duration) TranscoderOption {
	return func(t *Transcoder) {
		t.waitDelay = d
	}
}

func NewTranscoder(opts ...TranscoderOption) *Transcoder {
	t := &Transcoder{
		format:       FormatOgg,
		stallTimeout: defaultStallTimeout,
		waitDelay:    defaultWaitDelay,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Command expands a template into a program and its arguments.
//
// The template is split on whitespace and every {source} token is replaced
// with sourcePath. A template without the placeholder names only the
// executable, and the standard FFmpeg arguments for format are appended.
func Command(template, sourcePath string, format Format) (string, []string, error) {
	fields := strings.Fields(template)
	if len(fields) == 0 {
		fields = []string{defaultCommand}
	}

	hasSource := false
	for i, f := range fields {
		if strings.Contains(f, SourcePlaceholder) {
			fields[i] = strings.ReplaceAll(f, SourcePlaceholder, sourcePath)
			hasSource = true
		}
	}
	if hasSource {
		return fields[0], fields[1:], nil
	}

	if len(fields) > 1 {
		return "", nil, fmt.Errorf("command template %q has arguments but no %s placeholder", template, SourcePlaceholder)
	}
	args, err := ffmpegArgs(sourcePath, format)
	if err != nil {
		return "", nil, err
	}
	return fields[0], args, nil
}

func ffmpegArgs(sourcePath string, format Format) ([]string, error) {
	input := []string{"-hide_banner", "-loglevel", "error", "-i", sourcePath, "-vn", "-map", "0:a"}

	switch format {
	case FormatOgg:
		return append(input,
			"-acodec", "libopus",
			"-f", "ogg",
			"-vbr", "on",
			"-compression_level", "10",
			"-ar", "48000",
			"-ac", "2",
			"-b:a", "64000",
			"-application", "audio",
			"-frame_duration", "20",
			"-packet_loss", "1",
			"-threads", "0",
			"pipe:1",
		), nil
	case FormatPCM:
		return append(input,
			"-f", "s16le",
			"-ar", "48000",
			"-ac", "2",
			"pipe:1",
		), nil
	default:
		return nil, fmt.Errorf("no default ffmpeg arguments for format %s", format)
	}
}

// Run starts the transcoder for sourcePath. Cancelling ctx or closing the
// returned stream kills the process.
func (t *Transcoder) Run(ctx context.Context, sourcePath, commandTemplate string) (audio.FrameSource, error) {
	name, args, err := Command(commandTemplate, sourcePath, t.format)
	if err != nil {
		return nil, &audio.Error{Op: "transcode", Kind: audio.ErrTranscoderSpawnFailed, Err: err}
	}

	decode, err := t.decoder()
	if err != nil {
		return nil, &audio.Error{Op: "transcode", Kind: audio.ErrTranscoderSpawnFailed, Err: err}
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = t.waitDelay
	stderr := newTailBuffer(stderrTailSize)
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, &audio.Error{Op: "transcode", Kind: audio.ErrTranscoderSpawnFailed, Err: err}
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &audio.Error{
			Op:   "transcode",
			Kind: audio.ErrTranscoderSpawnFailed,
			Err:  fmt.Errorf("failed to start %s: %w", name, err),
		}
	}

	slog.Debug("started transcoder", "command", name, "source", sourcePath, "pid", cmd.Process.Pid)

	s := &Stream{
		name:         name,
		cmd:          cmd,
		stdout:       stdout,
		stderr:       stderr,
		ctx:          ctx,
		cancel:       cancel,
		stallTimeout: t.stallTimeout,
		frames:       make(chan []byte),
		done:         make(chan struct{}),
	}
	go s.pump(decode)
	return s, nil
}

// decodeFunc reads frames from r and hands each one to emit until r is
// exhausted. It returns nil on a clean end of stream.
type decodeFunc func(r io.Reader, emit func([]byte) error) error

func (t *Transcoder) decoder() (decodeFunc, error) {
	switch t.format {
	case FormatOgg:
		return demuxOgg, nil
	case FormatPCM:
		return encodePCM, nil
	case FormatFrames:
		return readFrames, nil
	default:
		return nil, errors.New("unsupported audio format")
	}
}
