package encoder

import (
	"context"
	"fmt"
	"os"

	"trackmix/internal/audio"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"
)

const wavBitDepth = 16

// WAVEncoder writes 16-bit PCM WAV.
type WAVEncoder struct {
	logger *logrus.Logger
}

// NewWAVEncoder creates a WAV encoder.
func NewWAVEncoder(logger *logrus.Logger) *WAVEncoder {
	return &WAVEncoder{logger: logger}
}

func (e *WAVEncoder) ContentType() string     { return "audio/wav" }
func (e *WAVEncoder) Extension() string       { return ".wav" }
func (e *WAVEncoder) DefaultOptions() Options { return Options{Codec: "pcm_s16le"} }

// Encode ignores bitrate. The WAV writer needs to seek back to patch the
// header, so the file is staged in a temporary file.
func (e *WAVEncoder) Encode(_ context.Context, buf *audio.Buffer, _ Options) ([]byte, error) {
	const codec = "pcm_s16le"
	if err := buf.Format.Validate(); err != nil {
		return nil, fail(e.logger, codec, err)
	}

	data, err := writeWAV(buf)
	if err != nil {
		return nil, fail(e.logger, codec, err)
	}
	return data, nil
}

func writeWAV(buf *audio.Buffer) ([]byte, error) {
	tmp, err := os.CreateTemp("", "trackmix-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	pcm := buf.PCM16()
	ints := make([]int, len(pcm))
	for i, s := range pcm {
		ints[i] = int(s)
	}

	enc := wav.NewEncoder(tmp, buf.SampleRate, wavBitDepth, buf.Channels, 1)
	if err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: buf.Channels, SampleRate: buf.SampleRate},
		Data:           ints,
		SourceBitDepth: wavBitDepth,
	}); err != nil {
		return nil, fmt.Errorf("failed to write wav samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize wav: %w", err)
	}

	data, err := os.ReadFile(tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to read encoded wav: %w", err)
	}
	return data, nil
}
