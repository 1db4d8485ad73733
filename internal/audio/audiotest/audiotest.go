// Package audiotest writes small audio fixtures for tests.
package audiotest

import (
	"os"
	"path/filepath"
	"testing"

	"trackmix/internal/audio"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

const flacBlockSize = 4096

// Constant returns frames*channels samples of a single 16-bit value.
func Constant(format audio.Format, frames int, value int) []int {
	data := make([]int, frames*format.Channels)
	for i := range data {
		data[i] = value
	}
	return data
}

// WriteWAV writes 16-bit PCM samples to path, creating parent directories.
func WriteWAV(t testing.TB, path string, format audio.Format, samples []int) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create fixture dir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create fixture: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, format.SampleRate, 16, format.Channels, 1)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: format.Channels,
			SampleRate:  format.SampleRate,
		},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("Failed to write fixture samples: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Failed to finalize fixture: %v", err)
	}
	return path
}

// WriteConstantWAV writes durationMs of a constant 16-bit value.
func WriteConstantWAV(t testing.TB, path string, format audio.Format, durationMs int64, value int) string {
	t.Helper()
	frames := audio.MsToFrames(durationMs, format.SampleRate)
	return WriteWAV(t, path, format, Constant(format, frames, value))
}

// WriteFLAC writes interleaved samples of the given bit depth as a FLAC
// stream with verbatim subframes. Only mono and stereo are supported.
func WriteFLAC(t testing.TB, path string, format audio.Format, bitsPerSample int, samples []int) string {
	t.Helper()

	channels := frame.ChannelsMono
	if format.Channels == 2 {
		channels = frame.ChannelsLR
	} else if format.Channels != 1 {
		t.Fatalf("WriteFLAC: unsupported channel count %d", format.Channels)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create fixture dir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create fixture: %v", err)
	}

	frames := len(samples) / format.Channels
	info := &meta.StreamInfo{
		BlockSizeMin:  flacBlockSize,
		BlockSizeMax:  flacBlockSize,
		SampleRate:    uint32(format.SampleRate),
		NChannels:     uint8(format.Channels),
		BitsPerSample: uint8(bitsPerSample),
		NSamples:      uint64(frames),
	}
	enc, err := flac.NewEncoder(f, info)
	if err != nil {
		f.Close()
		t.Fatalf("Failed to create flac encoder: %v", err)
	}

	for offset := 0; offset < frames; offset += flacBlockSize {
		n := min(flacBlockSize, frames-offset)
		fr := &frame.Frame{
			Header: frame.Header{
				HasFixedBlockSize: true,
				BlockSize:         uint16(n),
				SampleRate:        uint32(format.SampleRate),
				Channels:          channels,
				BitsPerSample:     uint8(bitsPerSample),
			},
			Subframes: make([]*frame.Subframe, format.Channels),
		}
		for ch := range fr.Subframes {
			block := make([]int32, n)
			for i := range block {
				block[i] = int32(samples[(offset+i)*format.Channels+ch])
			}
			fr.Subframes[ch] = &frame.Subframe{
				SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
				Samples:   block,
				NSamples:  n,
			}
		}
		if err := enc.WriteFrame(fr); err != nil {
			f.Close()
			t.Fatalf("Failed to write flac frame: %v", err)
		}
	}

	// Close rewrites STREAMINFO and closes f.
	if err := enc.Close(); err != nil {
		t.Fatalf("Failed to finalize flac fixture: %v", err)
	}
	return path
}

// FakeFFmpeg writes a shell script standing in for ffmpeg and returns its
// path. The script runs body with the original arguments available as "$@".
func FakeFFmpeg(t testing.TB, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("Failed to write fake ffmpeg: %v", err)
	}
	return path
}
