package opus_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glizzus/terminus/internal/audio"
	"github.com/glizzus/terminus/internal/opus"
	"github.com/google/go-cmp/cmp"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transcode.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func writeFrames(t *testing.T, frames ...[]byte) string {
	t.Helper()
	var buf bytes.Buffer
	w := opus.NewFrameWriter(&buf)
	for _, f := range frames {
		if err := w.WriteFrame(f); err != nil {
			t.Fatalf("failed to write frame: %v", err)
		}
	}
	path := filepath.Join(t.TempDir(), "source.frames")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write frames: %v", err)
	}
	return path
}

func readAll(t *testing.T, src audio.FrameSource) ([][]byte, error) {
	t.Helper()
	var frames [][]byte
	for {
		frame, err := src.ReadFrame()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
	}
}

func TestCommand(t *testing.T) {
	tc := []struct {
		name     string
		template string
		format   opus.Format
		wantName string
		wantArgs []string
		err      bool
	}{
		{
			name:     "placeholder is substituted",
			template: "sox {source} -t raw -",
			format:   opus.FormatPCM,
			wantName: "sox",
			wantArgs: []string{"/music/a b.mp3", "-t", "raw", "-"},
		},
		{
			name:     "placeholder inside a token",
			template: "player --file={source}",
			format:   opus.FormatFrames,
			wantName: "player",
			wantArgs: []string{"--file=/music/a b.mp3"},
		},
		{
			name:     "bare executable gets pcm arguments",
			template: "ffmpeg.exe",
			format:   opus.FormatPCM,
			wantName: "ffmpeg.exe",
			wantArgs: []string{
				"-hide_banner", "-loglevel", "error", "-i", "/music/a b.mp3", "-vn", "-map", "0:a",
				"-f", "s16le", "-ar", "48000", "-ac", "2", "pipe:1",
			},
		},
		{
			name:     "empty template falls back to ffmpeg",
			template: "  ",
			format:   opus.FormatOgg,
			wantName: "ffmpeg",
		},
		{
			name:     "arguments without placeholder",
			template: "ffmpeg -y",
			format:   opus.FormatOgg,
			err:      true,
		},
		{
			name:     "no default arguments for frames",
			template: "ffmpeg",
			format:   opus.FormatFrames,
			err:      true,
		},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			name, args, err := opus.Command(test.template, "/music/a b.mp3", test.format)
			if test.err {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if name != test.wantName {
				t.Errorf("expected program %q, got %q", test.wantName, name)
			}
			if test.wantArgs != nil {
				if diff := cmp.Diff(test.wantArgs, args); diff != "" {
					t.Errorf("args mismatch (-want +got):\n%s", diff)
				}
			}
			if test.format == opus.FormatOgg && !strings.Contains(strings.Join(args, " "), "-f ogg") {
				t.Errorf("expected ogg output arguments, got %v", args)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	for input, want := range map[string]opus.Format{"": opus.FormatOgg, "PCM": opus.FormatPCM, "frames": opus.FormatFrames} {
		got, err := opus.ParseFormat(input)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", input, err)
		}
		if got != want {
			t.Errorf("%q: expected %v, got %v", input, want, got)
		}
	}
	if _, err := opus.ParseFormat("mp3"); err == nil {
		t.Errorf("expected error for mp3")
	}
}

func TestRunStreamsFrames(t *testing.T) {
	want := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	source := writeFrames(t, want...)

	tr := opus.NewTranscoder(opus.WithFormat(opus.FormatFrames))
	src, err := tr.Run(context.Background(), source, "cat {source}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer src.Close()

	got, err := readAll(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestRunFailures(t *testing.T) {
	truncated := filepath.Join(t.TempDir(), "truncated.frames")
	// Claims 10 bytes, carries 3.
	if err := os.WriteFile(truncated, []byte{10, 0, 'a', 'b', 'c'}, 0o644); err != nil {
		t.Fatalf("failed to write source: %v", err)
	}
	good := writeFrames(t, []byte("frame"))

	tc := []struct {
		name     string
		template string
		source   string
		want     error
		contains string
	}{
		{
			name:     "missing executable",
			template: "/nonexistent/transcoder {source}",
			source:   good,
			want:     audio.ErrTranscoderSpawnFailed,
		},
		{
			name:     "non-zero exit",
			template: "sh " + writeScript(t, `cat "$1"; echo "codec not found" >&2; exit 3`) + " {source}",
			source:   good,
			want:     audio.ErrTranscoderExitedNonZero,
			contains: "codec not found",
		},
		{
			name:     "malformed output",
			template: "cat {source}",
			source:   truncated,
			want:     audio.ErrTranscoderExitedNonZero,
			contains: "malformed",
		},
		{
			name:     "stalled",
			template: "sh " + writeScript(t, `exec sleep 5`) + " {source}",
			source:   good,
			want:     audio.ErrTranscoderTimeout,
		},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			tr := opus.NewTranscoder(
				opus.WithFormat(opus.FormatFrames),
				opus.WithStallTimeout(200*time.Millisecond),
				opus.WithWaitDelay(100*time.Millisecond),
			)

			src, err := tr.Run(context.Background(), test.source, test.template)
			if err == nil {
				defer src.Close()
				_, err = readAll(t, src)
			}

			if !errors.Is(err, test.want) {
				t.Fatalf("expected %v, got %v", test.want, err)
			}
			if test.contains != "" && !strings.Contains(err.Error(), test.contains) {
				t.Errorf("expected %q in %q", test.contains, err.Error())
			}
		})
	}
}

func TestCloseStopsEndlessProcess(t *testing.T) {
	source := writeFrames(t, []byte("loop"))
	script := writeScript(t, `while :; do cat "$1"; done`)

	tr := opus.NewTranscoder(opus.WithFormat(opus.FormatFrames), opus.WithWaitDelay(100*time.Millisecond))
	src, err := tr.Run(context.Background(), source, "sh "+script+" {source}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := src.ReadFrame(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	closed := make(chan error, 1)
	go func() { closed <- src.Close() }()
	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("unexpected close error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("close did not stop the process")
	}

	if err := src.Close(); err != nil {
		t.Errorf("second close: unexpected error: %v", err)
	}
}

func TestCancelStopsProcess(t *testing.T) {
	source := writeFrames(t, []byte("loop"))
	script := writeScript(t, `while :; do cat "$1"; done`)

	ctx, cancel := context.WithCancel(context.Background())
	tr := opus.NewTranscoder(opus.WithFormat(opus.FormatFrames), opus.WithWaitDelay(100*time.Millisecond))
	src, err := tr.Run(ctx, source, "sh "+script+" {source}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer src.Close()

	cancel()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("stream kept producing frames after cancel")
		default:
		}
		if _, err := src.ReadFrame(); err != nil {
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
			return
		}
	}
}

func TestRunEncodesPCM(t *testing.T) {
	// 7000 bytes of silence is one full 20 ms frame and one padded frame.
	script := writeScript(t, `head -c 7000 /dev/zero`)

	tr := opus.NewTranscoder(opus.WithFormat(opus.FormatPCM))
	src, err := tr.Run(context.Background(), "ignored", "sh "+script+" {source}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer src.Close()

	frames, err := readAll(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	for i, f := range frames {
		if len(f) == 0 {
			t.Errorf("frame %d is empty", i)
		}
	}
}

func TestRunDemuxesOggFromFFmpeg(t *testing.T) {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}

	source := filepath.Join(t.TempDir(), "tone.wav")
	gen := exec.Command(ffmpeg, "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=1", source)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Fatalf("failed to generate tone: %v: %s", err, out)
	}

	src, err := opus.NewTranscoder().Run(context.Background(), source, ffmpeg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer src.Close()

	frames, err := readAll(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// One second at 20 ms per frame, give or take encoder padding.
	if len(frames) < 45 || len(frames) > 55 {
		t.Errorf("expected about 50 frames, got %d", len(frames))
	}
}

func TestFrameReaderTruncated(t *testing.T) {
	r := opus.NewFrameReader(bytes.NewReader([]byte{4, 0, 'a', 'b', 'c', 'd', 4, 0, 'e'}))

	frame, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(frame) != "abcd" {
		t.Errorf("expected abcd, got %q", frame)
	}
	if _, err := r.ReadFrame(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}
