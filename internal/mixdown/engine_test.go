package mixdown

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"testing"

	"trackmix/internal/audio"
	"trackmix/internal/timeline"

	"github.com/sirupsen/logrus"
)

var monoK = audio.Format{SampleRate: 1000, Channels: 1}

// fakeDecoder serves prepared buffers by path.
type fakeDecoder struct {
	buffers map[string]*audio.Buffer
	calls   int
}

func (d *fakeDecoder) Decode(_ context.Context, path string) (*audio.Buffer, error) {
	d.calls++
	buf, ok := d.buffers[path]
	if !ok {
		return nil, fmt.Errorf("cannot decode %s", path)
	}
	return buf.Clone(), nil
}

func constant(format audio.Format, ms int64, v float64) *audio.Buffer {
	buf := audio.NewSilent(format, audio.MsToFrames(ms, format.SampleRate))
	for i := range buf.Samples {
		buf.Samples[i] = v
	}
	return buf
}

func ramp(format audio.Format, ms int64) *audio.Buffer {
	buf := audio.NewSilent(format, audio.MsToFrames(ms, format.SampleRate))
	for i := range buf.Samples {
		buf.Samples[i] = float64(i / format.Channels)
	}
	return buf
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func clip(idx int, path string, startMs int64) timeline.ResolvedClip {
	return timeline.ResolvedClip{
		Clip: timeline.Clip{
			Index:    idx,
			Filename: path,
			StartMs:  startMs,
			Volume:   timeline.DefaultVolume,
		},
		Path:     path,
		Resolved: path != "",
	}
}

func track(idx int, clips ...timeline.ResolvedClip) timeline.ResolvedTrack {
	return timeline.ResolvedTrack{Index: idx, Volume: timeline.DefaultVolume, Clips: clips}
}

func mix(t *testing.T, dec audio.Decoder, opts Options, tracks ...timeline.ResolvedTrack) *Result {
	t.Helper()
	result, err := NewEngine(dec, opts, quietLogger()).Mix(context.Background(), &timeline.Resolved{Tracks: tracks})
	if err != nil {
		t.Fatalf("Mix() error = %v", err)
	}
	return result
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestMixEmptyProject(t *testing.T) {
	result := mix(t, &fakeDecoder{}, Options{})

	if result.DurationMs != 0 {
		t.Errorf("DurationMs = %d, want 0", result.DurationMs)
	}
	if result.Buffer.Frames() != 0 {
		t.Errorf("Frames() = %d, want 0", result.Buffer.Frames())
	}
	if result.Buffer.Format != DefaultFormat {
		t.Errorf("Format = %+v, want %+v", result.Buffer.Format, DefaultFormat)
	}
	if len(result.Report.Outcomes) != 0 {
		t.Errorf("Outcomes = %v, want none", result.Report.Outcomes)
	}
}

func TestMixSingleClipAtUnity(t *testing.T) {
	dec := &fakeDecoder{buffers: map[string]*audio.Buffer{"a": constant(monoK, 2000, 0.5)}}
	result := mix(t, dec, Options{}, track(0, clip(0, "a", 0)))

	if result.DurationMs != 2000 {
		t.Fatalf("DurationMs = %d, want 2000", result.DurationMs)
	}
	if result.Buffer.Frames() != 2000 {
		t.Fatalf("Frames() = %d, want 2000", result.Buffer.Frames())
	}
	for i, s := range result.Buffer.Samples {
		if !near(s, 0.5) {
			t.Fatalf("sample %d = %v, want 0.5", i, s)
		}
	}
	if len(result.Report.Mixed()) != 1 {
		t.Errorf("Mixed() = %v", result.Report.Mixed())
	}
}

func TestMixOverlapIsAdditive(t *testing.T) {
	dec := &fakeDecoder{buffers: map[string]*audio.Buffer{
		"a": constant(monoK, 1000, 0.25),
		"b": constant(monoK, 1000, 0.25),
	}}
	result := mix(t, dec, Options{},
		track(0, clip(0, "a", 0)),
		track(1, clip(0, "b", 500)),
	)

	if result.DurationMs != 1500 {
		t.Fatalf("DurationMs = %d, want 1500", result.DurationMs)
	}
	s := result.Buffer.Samples
	if !near(s[100], 0.25) || !near(s[700], 0.5) || !near(s[1200], 0.25) {
		t.Errorf("samples at 100/700/1200 ms = %v/%v/%v, want 0.25/0.5/0.25", s[100], s[700], s[1200])
	}
}

func TestMixDurationIgnoresSkippedClips(t *testing.T) {
	dec := &fakeDecoder{buffers: map[string]*audio.Buffer{"a": constant(monoK, 1000, 0.1)}}
	result := mix(t, dec, Options{},
		track(0, clip(0, "a", 0), clip(1, "", 10000), clip(2, "broken", 20000)),
	)

	if result.DurationMs != 1000 {
		t.Errorf("DurationMs = %d, want 1000", result.DurationMs)
	}

	skipped := result.Report.Skipped()
	if len(skipped) != 2 {
		t.Fatalf("Skipped() = %v, want 2", skipped)
	}
	if skipped[0].Reason != ReasonUnresolved {
		t.Errorf("clip 1 reason = %s, want %s", skipped[0].Reason, ReasonUnresolved)
	}
	if skipped[1].Reason != ReasonDecodeFailed || skipped[1].Detail == "" {
		t.Errorf("clip 2 outcome = %+v, want decode_failed with detail", skipped[1])
	}
	if dec.calls != 2 {
		t.Errorf("decoder called %d times, want 2 (unresolved clips are not decoded)", dec.calls)
	}
}

func TestMixTrimWindow(t *testing.T) {
	dec := &fakeDecoder{buffers: map[string]*audio.Buffer{"a": ramp(monoK, 3000)}}
	c := clip(0, "a", 1000)
	start, end := int64(500), int64(1500)
	c.StartTrimMs = start
	c.EndTrimMs = &end

	result := mix(t, dec, Options{}, track(0, c))

	if result.DurationMs != 2000 {
		t.Fatalf("DurationMs = %d, want 2000", result.DurationMs)
	}
	s := result.Buffer.Samples
	if s[999] != 0 {
		t.Errorf("sample before clip start = %v, want 0", s[999])
	}
	if s[1000] != 500 || s[1999] != 1499 {
		t.Errorf("trimmed region = %v..%v, want 500..1499", s[1000], s[1999])
	}

	o := result.Report.Outcomes[0]
	if o.TrimStartMs != 500 || o.TrimEndMs != 1500 || o.DurationMs != 1000 {
		t.Errorf("outcome = %+v", o)
	}
}

func TestMixEndTrimPastSourceIsClamped(t *testing.T) {
	dec := &fakeDecoder{buffers: map[string]*audio.Buffer{"a": constant(monoK, 1000, 0.1)}}
	c := clip(0, "a", 0)
	end := int64(5000)
	c.EndTrimMs = &end

	result := mix(t, dec, Options{}, track(0, c))
	if result.DurationMs != 1000 {
		t.Errorf("DurationMs = %d, want 1000", result.DurationMs)
	}
}

func TestMixEmptyTrimIsSkipped(t *testing.T) {
	dec := &fakeDecoder{buffers: map[string]*audio.Buffer{"a": constant(monoK, 1000, 0.1)}}

	past := clip(0, "a", 0)
	past.StartTrimMs = 4000

	inverted := clip(1, "a", 0)
	end := int64(100)
	inverted.StartTrimMs = 200
	inverted.EndTrimMs = &end

	result := mix(t, dec, Options{}, track(0, past, inverted))

	if result.DurationMs != 0 {
		t.Errorf("DurationMs = %d, want 0", result.DurationMs)
	}
	for _, o := range result.Report.Outcomes {
		if o.Status != StatusSkipped || o.Reason != ReasonEmptyTrim {
			t.Errorf("outcome = %+v, want empty_trim skip", o)
		}
	}
}

func TestMixAppliesTrackThenClipGain(t *testing.T) {
	dec := &fakeDecoder{buffers: map[string]*audio.Buffer{"a": constant(monoK, 100, 1)}}
	c := clip(0, "a", 0)
	c.Volume = 50
	tr := track(0, c)
	tr.Volume = 50

	result := mix(t, dec, Options{}, tr)

	// -10 dB twice is a factor of 0.1
	if got := result.Buffer.Samples[0]; !near(got, 0.1) {
		t.Errorf("sample = %v, want 0.1", got)
	}
	o := result.Report.Outcomes[0]
	if !near(o.TrackGainDB, -10) || !near(o.ClipGainDB, -10) {
		t.Errorf("gains = %v/%v dB, want -10/-10", o.TrackGainDB, o.ClipGainDB)
	}
}

func TestMixSilentAtZeroVolumeIsMinus20(t *testing.T) {
	dec := &fakeDecoder{buffers: map[string]*audio.Buffer{"a": constant(monoK, 100, 1)}}
	c := clip(0, "a", 0)
	c.Volume = 0

	result := mix(t, dec, Options{}, track(0, c))
	if got := result.Buffer.Samples[0]; !near(got, 0.1) {
		t.Errorf("sample = %v, want 0.1 (-20 dB)", got)
	}
}

func TestMixTrackPositionOffsetsClips(t *testing.T) {
	dec := &fakeDecoder{buffers: map[string]*audio.Buffer{"a": constant(monoK, 500, 0.3)}}
	tr := track(0, clip(0, "a", 250))
	tr.PositionMs = 1000

	result := mix(t, dec, Options{}, tr)
	if result.DurationMs != 1750 {
		t.Fatalf("DurationMs = %d, want 1750", result.DurationMs)
	}
	if result.Buffer.Samples[1249] != 0 || !near(result.Buffer.Samples[1250], 0.3) {
		t.Errorf("clip does not start at 1250ms")
	}
}

func TestMixOrderIndependent(t *testing.T) {
	dec := &fakeDecoder{buffers: map[string]*audio.Buffer{
		"a": constant(monoK, 800, 0.2),
		"b": ramp(monoK, 600),
		"c": constant(monoK, 300, -0.4),
	}}
	t1 := track(0, clip(0, "a", 0), clip(1, "c", 900))
	t2 := track(1, clip(0, "b", 300))

	forward := mix(t, dec, Options{}, t1, t2)
	backward := mix(t, dec, Options{}, t2, t1)

	if forward.DurationMs != backward.DurationMs {
		t.Fatalf("durations differ: %d vs %d", forward.DurationMs, backward.DurationMs)
	}
	for i := range forward.Buffer.Samples {
		if !near(forward.Buffer.Samples[i], backward.Buffer.Samples[i]) {
			t.Fatalf("sample %d differs: %v vs %v", i, forward.Buffer.Samples[i], backward.Buffer.Samples[i])
		}
	}
}

func TestMixOutputFormat(t *testing.T) {
	mono22 := audio.Format{SampleRate: 22050, Channels: 1}
	stereo44 := audio.Format{SampleRate: 44100, Channels: 2}
	dec := &fakeDecoder{buffers: map[string]*audio.Buffer{
		"mono":   constant(mono22, 1000, 0.2),
		"stereo": constant(stereo44, 500, 0.1),
	}}
	tr := track(0, clip(0, "mono", 0), clip(1, "stereo", 0))

	t.Run("derived from clips", func(t *testing.T) {
		result := mix(t, dec, Options{}, tr)
		if result.Buffer.Format != stereo44 {
			t.Fatalf("Format = %+v, want %+v", result.Buffer.Format, stereo44)
		}
		if result.Buffer.Frames() != 44100 {
			t.Errorf("Frames() = %d, want 44100", result.Buffer.Frames())
		}
		// mono is duplicated to both channels and both clips overlap at the start
		if !near(result.Buffer.Samples[0], 0.3) || !near(result.Buffer.Samples[1], 0.3) {
			t.Errorf("first frame = %v, want [0.3 0.3]", result.Buffer.Samples[:2])
		}
	})

	t.Run("configured override", func(t *testing.T) {
		result := mix(t, dec, Options{SampleRate: 8000, Channels: 1}, tr)
		want := audio.Format{SampleRate: 8000, Channels: 1}
		if result.Buffer.Format != want {
			t.Fatalf("Format = %+v, want %+v", result.Buffer.Format, want)
		}
		if result.DurationMs != 1000 || result.Buffer.Frames() != 8000 {
			t.Errorf("duration/frames = %d/%d, want 1000/8000", result.DurationMs, result.Buffer.Frames())
		}
	})
}

func TestMixPartialFailure(t *testing.T) {
	dec := &fakeDecoder{buffers: map[string]*audio.Buffer{
		"good": constant(monoK, 1000, 0.4),
	}}
	result := mix(t, dec, Options{},
		track(0, clip(0, "good", 0)),
		track(1, clip(0, "corrupt", 0)),
	)

	if len(result.Report.Mixed()) != 1 || len(result.Report.Skipped()) != 1 {
		t.Fatalf("report = %+v", result.Report)
	}
	if !near(result.Buffer.Samples[10], 0.4) {
		t.Errorf("sample = %v, want 0.4 from the good clip only", result.Buffer.Samples[10])
	}
}

func TestMixCancelled(t *testing.T) {
	dec := &fakeDecoder{buffers: map[string]*audio.Buffer{"a": constant(monoK, 1000, 0.1)}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(dec, Options{}, quietLogger()).Mix(ctx, &timeline.Resolved{
		Tracks: []timeline.ResolvedTrack{track(0, clip(0, "a", 0))},
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Mix() error = %v, want context.Canceled", err)
	}
	if dec.calls != 0 {
		t.Errorf("decoder called %d times after cancellation", dec.calls)
	}
}

func TestMixReleasesDecodedBuffers(t *testing.T) {
	dec := &fakeDecoder{buffers: map[string]*audio.Buffer{"a": constant(monoK, 100, 0.1)}}
	result := mix(t, dec, Options{}, track(0, clip(0, "a", 0)))

	for _, o := range result.Report.Outcomes {
		if o.decoded != nil {
			t.Error("decoded buffer retained after render")
		}
	}
}
