package audio

import (
	"context"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// DecodeWAV reads an entire integer PCM WAV file.
func DecodeWAV(_ context.Context, path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wav file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid wav file")
	}
	if dec.WavAudioFormat != wavFormatPCM && dec.WavAudioFormat != wavFormatExtensible {
		return nil, fmt.Errorf("unsupported wav encoding: %d", dec.WavAudioFormat)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read wav samples: %w", err)
	}
	if pcm.Format == nil {
		return nil, fmt.Errorf("invalid wav header")
	}

	format := Format{SampleRate: pcm.Format.SampleRate, Channels: pcm.Format.NumChannels}
	bitDepth := pcm.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(dec.BitDepth)
	}

	data := pcm.Data
	if bitDepth == 8 {
		// 8-bit WAV is unsigned
		data = make([]int, len(pcm.Data))
		for i, s := range pcm.Data {
			data[i] = s - 128
		}
	}
	return FromInts(format, bitDepth, data), nil
}
