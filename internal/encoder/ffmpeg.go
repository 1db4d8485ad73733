package encoder

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"trackmix/internal/audio"

	"github.com/sirupsen/logrus"
)

const (
	DefaultCodec       = "libmp3lame"
	DefaultBitrateKbps = 128
)

// FFmpegEncoder pipes raw PCM through ffmpeg and collects MP3 from stdout.
type FFmpegEncoder struct {
	binary   string
	defaults Options
	logger   *logrus.Logger
}

// NewFFmpegEncoder creates an MP3 encoder. Empty options fall back to
// libmp3lame at 128 kbit/s.
func NewFFmpegEncoder(binary string, defaults Options, logger *logrus.Logger) *FFmpegEncoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	if defaults.Codec == "" {
		defaults.Codec = DefaultCodec
	}
	if defaults.BitrateKbps <= 0 {
		defaults.BitrateKbps = DefaultBitrateKbps
	}
	return &FFmpegEncoder{binary: binary, defaults: defaults, logger: logger}
}

func (e *FFmpegEncoder) ContentType() string     { return "audio/mpeg" }
func (e *FFmpegEncoder) Extension() string       { return ".mp3" }
func (e *FFmpegEncoder) DefaultOptions() Options { return e.defaults }

// Available reports whether the ffmpeg binary can be found.
func (e *FFmpegEncoder) Available() error {
	if _, err := exec.LookPath(e.binary); err != nil {
		return fmt.Errorf("binary %q not found", e.binary)
	}
	return nil
}

// Encode runs ffmpeg once per call. A buffer without frames encodes to
// whatever ffmpeg emits for empty input, which may be nothing.
func (e *FFmpegEncoder) Encode(ctx context.Context, buf *audio.Buffer, opts Options) ([]byte, error) {
	if opts.Codec == "" {
		opts.Codec = e.defaults.Codec
	}
	if opts.BitrateKbps <= 0 {
		opts.BitrateKbps = e.defaults.BitrateKbps
	}
	if err := buf.Format.Validate(); err != nil {
		return nil, fail(e.logger, opts.Codec, err)
	}
	if err := e.Available(); err != nil {
		return nil, fail(e.logger, opts.Codec, err)
	}

	started := time.Now()
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(buf.SampleRate),
		"-ac", strconv.Itoa(buf.Channels),
		"-i", "pipe:0",
		"-vn",
		"-acodec", opts.Codec,
		"-b:a", fmt.Sprintf("%dk", opts.BitrateKbps),
		"-f", "mp3",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, e.binary, args...) //nolint:gosec
	cmd.Stdin = bytes.NewReader(pcmBytes(buf))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fail(e.logger, opts.Codec, fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String())))
	}
	if stdout.Len() == 0 && buf.Frames() > 0 {
		return nil, fail(e.logger, opts.Codec, fmt.Errorf("ffmpeg produced no output for %d frames", buf.Frames()))
	}

	e.logger.WithFields(logrus.Fields{
		"codec":          opts.Codec,
		"bitrate_kbps":   opts.BitrateKbps,
		"frames":         buf.Frames(),
		"bytes":          stdout.Len(),
		"processingTime": time.Since(started),
	}).Debug("Encoded mixdown")
	return stdout.Bytes(), nil
}

func pcmBytes(buf *audio.Buffer) []byte {
	pcm := buf.PCM16()
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
