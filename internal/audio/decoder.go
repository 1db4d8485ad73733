package audio

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned when no decoder is registered for a file.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Decoder turns a local audio file into PCM.
type Decoder interface {
	Decode(ctx context.Context, path string) (*Buffer, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(ctx context.Context, path string) (*Buffer, error)

// Decode calls f(ctx, path).
func (f DecoderFunc) Decode(ctx context.Context, path string) (*Buffer, error) {
	return f(ctx, path)
}

// Registry dispatches decoding on the file extension. Extensions without a
// registered decoder go to the fallback, when one is set.
type Registry struct {
	decoders map[string]Decoder
	fallback Decoder
}

// NewRegistry returns a registry with the native WAV and FLAC decoders
// registered. When ffmpeg is non-nil it also handles MP3 (after a frame
// probe) and every other extension.
func NewRegistry(ffmpeg *FFmpegDecoder) *Registry {
	r := &Registry{decoders: make(map[string]Decoder)}
	r.Register(".wav", DecoderFunc(DecodeWAV))
	r.Register(".flac", DecoderFunc(DecodeFLAC))
	if ffmpeg != nil {
		r.Register(".mp3", &MP3Decoder{PCM: ffmpeg})
		r.fallback = ffmpeg
	}
	return r
}

// Register installs a decoder for an extension such as ".wav".
func (r *Registry) Register(ext string, d Decoder) {
	r.decoders[strings.ToLower(ext)] = d
}

// Supports reports whether a path can be decoded.
func (r *Registry) Supports(path string) bool {
	if r.fallback != nil {
		return true
	}
	_, ok := r.decoders[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Decode picks a decoder for path and runs it.
func (r *Registry) Decode(ctx context.Context, path string) (*Buffer, error) {
	ext := strings.ToLower(filepath.Ext(path))
	d, ok := r.decoders[ext]
	if !ok {
		if r.fallback == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
		}
		d = r.fallback
	}

	buf, err := d.Decode(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := buf.Format.Validate(); err != nil {
		return nil, fmt.Errorf("decoded %s: %w", filepath.Base(path), err)
	}
	return buf, nil
}
