// Package encoder turns a mixed buffer into a compressed audio file.
//
// The mixdown engine only sees the Encoder interface. FFmpegEncoder produces
// MP3 through an external ffmpeg binary with libmp3lame; WAVEncoder writes
// uncompressed PCM in process.
package encoder

import (
	"context"
	"errors"
	"fmt"

	"trackmix/internal/audio"

	"github.com/sirupsen/logrus"
)

// ErrEncode is matched by every encoding failure.
var ErrEncode = errors.New("encoding failed")

// EncodeError reports a failed encode without exposing codec internals to
// callers that only check errors.Is(err, ErrEncode).
type EncodeError struct {
	Codec string
	Err   error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encoding failed (%s): %v", e.Codec, e.Err)
}

// Is makes EncodeError match ErrEncode.
func (e *EncodeError) Is(target error) bool {
	return target == ErrEncode
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// Options selects codec parameters.
type Options struct {
	Codec       string
	BitrateKbps int
}

// Encoder encodes PCM into a container format.
type Encoder interface {
	Encode(ctx context.Context, buf *audio.Buffer, opts Options) ([]byte, error)
	ContentType() string
	Extension() string
	DefaultOptions() Options
}

// Config selects and parameterizes an encoder.
type Config struct {
	Format      string
	FFmpegPath  string
	Codec       string
	BitrateKbps int
}

// New returns the encoder for cfg.Format ("mp3" or "wav").
func New(cfg Config, logger *logrus.Logger) (Encoder, error) {
	switch cfg.Format {
	case "", "mp3":
		return NewFFmpegEncoder(cfg.FFmpegPath, Options{Codec: cfg.Codec, BitrateKbps: cfg.BitrateKbps}, logger), nil
	case "wav":
		return NewWAVEncoder(logger), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", cfg.Format)
	}
}

func fail(logger *logrus.Logger, codec string, err error) error {
	logger.WithError(err).WithField("codec", codec).Error("Encoding failed")
	return &EncodeError{Codec: codec, Err: err}
}
