package audio

import (
	"fmt"
	"math"
)

// Format describes the layout of PCM samples in a Buffer.
type Format struct {
	SampleRate int `json:"sampleRate"`
	Channels   int `json:"channels"`
}

// Validate reports whether the format can hold audio.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count: %d", f.Channels)
	}
	return nil
}

// Buffer holds interleaved floating point PCM in the nominal range [-1, 1].
// Values outside that range are kept until the buffer is quantized.
type Buffer struct {
	Format
	Samples []float64
}

// NewSilent allocates a silent buffer holding the given number of frames.
func NewSilent(format Format, frames int) *Buffer {
	if frames < 0 {
		frames = 0
	}
	return &Buffer{
		Format:  format,
		Samples: make([]float64, frames*format.Channels),
	}
}

// MsToFrames converts milliseconds to a frame count, rounding down.
func MsToFrames(ms int64, sampleRate int) int {
	if ms <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(ms * int64(sampleRate) / 1000)
}

// FramesToMs converts a frame count to milliseconds, rounding down.
func FramesToMs(frames int, sampleRate int) int64 {
	if frames <= 0 || sampleRate <= 0 {
		return 0
	}
	return int64(frames) * 1000 / int64(sampleRate)
}

// Frames returns the number of sample frames in the buffer.
func (b *Buffer) Frames() int {
	if b == nil || b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// DurationMs returns the buffer length in milliseconds.
func (b *Buffer) DurationMs() int64 {
	if b == nil {
		return 0
	}
	return FramesToMs(b.Frames(), b.SampleRate)
}

// Clone returns a deep copy of the buffer.
func (b *Buffer) Clone() *Buffer {
	samples := make([]float64, len(b.Samples))
	copy(samples, b.Samples)
	return &Buffer{Format: b.Format, Samples: samples}
}

// Slice returns a copy of the [startMs, endMs) window. Bounds are clamped to
// the buffer, so an out of range window yields an empty buffer.
func (b *Buffer) Slice(startMs, endMs int64) *Buffer {
	frames := b.Frames()
	start := MsToFrames(startMs, b.SampleRate)
	end := MsToFrames(endMs, b.SampleRate)
	if end > frames {
		end = frames
	}
	if start > end {
		start = end
	}

	out := NewSilent(b.Format, end-start)
	copy(out.Samples, b.Samples[start*b.Channels:end*b.Channels])
	return out
}

// DBToLinear converts a decibel adjustment to a linear amplitude factor.
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// ApplyGain scales every sample by a decibel adjustment in place.
func (b *Buffer) ApplyGain(db float64) {
	if db == 0 {
		return
	}
	factor := DBToLinear(db)
	for i := range b.Samples {
		b.Samples[i] *= factor
	}
}

// Overlay adds src into b starting at frame offset at. Samples that would land
// past the end of b are dropped. Both buffers must share a format.
func (b *Buffer) Overlay(src *Buffer, at int) error {
	if src.Format != b.Format {
		return fmt.Errorf("overlay format mismatch: %dHz/%dch into %dHz/%dch",
			src.SampleRate, src.Channels, b.SampleRate, b.Channels)
	}
	if at < 0 {
		return fmt.Errorf("overlay offset must not be negative: %d", at)
	}

	start := at * b.Channels
	if start >= len(b.Samples) {
		return nil
	}
	n := len(src.Samples)
	if start+n > len(b.Samples) {
		n = len(b.Samples) - start
	}
	dst := b.Samples[start : start+n]
	for i, s := range src.Samples[:n] {
		dst[i] += s
	}
	return nil
}

// Peak returns the largest absolute sample value.
func (b *Buffer) Peak() float64 {
	var peak float64
	for _, s := range b.Samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return peak
}

// PCM16 quantizes the buffer to signed 16-bit samples, clipping anything
// outside the representable range.
func (b *Buffer) PCM16() []int16 {
	out := make([]int16, len(b.Samples))
	for i, s := range b.Samples {
		v := math.Round(s * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}

// FromPCM16 builds a buffer from interleaved signed 16-bit samples.
func FromPCM16(format Format, pcm []int16) *Buffer {
	samples := make([]float64, len(pcm))
	for i, s := range pcm {
		samples[i] = float64(s) / 32767
	}
	return &Buffer{Format: format, Samples: samples}
}

// FromInts builds a buffer from interleaved integer samples of the given bit
// depth, as produced by the WAV and FLAC decoders.
func FromInts(format Format, bitDepth int, data []int) *Buffer {
	scale := fullScale(bitDepth)
	samples := make([]float64, len(data))
	for i, s := range data {
		samples[i] = float64(s) / scale
	}
	return &Buffer{Format: format, Samples: samples}
}

// fullScale returns the largest positive sample value for a bit depth. 8-bit
// WAV data is unsigned and is expected to be recentred by the caller.
func fullScale(bitDepth int) float64 {
	if bitDepth <= 1 {
		return 1
	}
	return float64(int64(1)<<(bitDepth-1)) - 1
}
