package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpegDecoder decodes anything ffmpeg understands into signed 16-bit PCM
// at a fixed output format.
type FFmpegDecoder struct {
	Binary string
	Format Format
}

// NewFFmpegDecoder returns a decoder that runs binary (default "ffmpeg").
func NewFFmpegDecoder(binary string, format Format) *FFmpegDecoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegDecoder{Binary: binary, Format: format}
}

// Decode runs ffmpeg and reads raw little-endian samples from its stdout.
func (d *FFmpegDecoder) Decode(ctx context.Context, path string) (*Buffer, error) {
	if err := d.Format.Validate(); err != nil {
		return nil, fmt.Errorf("ffmpeg decode: %w", err)
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", path,
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(d.Format.SampleRate),
		"-ac", strconv.Itoa(d.Format.Channels),
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, d.Binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}

	// Drop any trailing partial frame
	frameBytes := 2 * d.Format.Channels
	out = out[:len(out)-len(out)%frameBytes]

	pcm := make([]int16, len(out)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(out[i*2 : i*2+2]))
	}
	return FromPCM16(d.Format, pcm), nil
}
