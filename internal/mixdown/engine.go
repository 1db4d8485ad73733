// Package mixdown renders a resolved multi-track timeline into a single
// audio buffer.
//
// Mixing happens in two passes. The first decodes every resolvable clip,
// settles its trim window and records where it ends on the master timeline;
// the furthest end becomes the output length. The second allocates a silent
// master buffer of exactly that length and overlays each clip with its track
// and clip gain applied. Clips that cannot be resolved or decoded are skipped
// and reported, never fatal.
package mixdown

import (
	"context"
	"time"

	"trackmix/internal/audio"
	"trackmix/internal/timeline"

	"github.com/sirupsen/logrus"
)

// DefaultFormat is used for the master buffer when nothing was decoded and
// no format is configured.
var DefaultFormat = audio.Format{SampleRate: 44100, Channels: 2}

// Options overrides the output format. Zero fields are derived from the
// decoded clips: the highest sample rate and channel count wins.
type Options struct {
	SampleRate int
	Channels   int
}

// Result is a rendered mix.
type Result struct {
	Buffer     *audio.Buffer
	DurationMs int64
	Report     Report
}

// Engine mixes timelines. It holds no per-call state and may be shared by
// concurrent callers as long as its decoder is safe for concurrent use.
type Engine struct {
	decoder audio.Decoder
	opts    Options
	logger  *logrus.Logger
}

// NewEngine creates a mixdown engine.
func NewEngine(decoder audio.Decoder, opts Options, logger *logrus.Logger) *Engine {
	return &Engine{
		decoder: decoder,
		opts:    opts,
		logger:  logger,
	}
}

// Mix renders resolved into a single buffer. The only error is cancellation
// of ctx, which is checked between clips.
func (e *Engine) Mix(ctx context.Context, resolved *timeline.Resolved) (*Result, error) {
	started := time.Now()

	outcomes, durationMs, err := e.discover(ctx, resolved)
	if err != nil {
		return nil, err
	}

	format := e.outputFormat(outcomes)
	master := audio.NewSilent(format, audio.MsToFrames(durationMs, format.SampleRate))

	if err := e.render(ctx, master, outcomes); err != nil {
		return nil, err
	}

	report := Report{Outcomes: outcomes}
	e.logger.WithFields(logrus.Fields{
		"duration_ms":    durationMs,
		"sample_rate":    format.SampleRate,
		"channels":       format.Channels,
		"clips_mixed":    len(report.Mixed()),
		"clips_skipped":  len(report.Skipped()),
		"processingTime": time.Since(started),
	}).Info("Mixdown complete")

	return &Result{
		Buffer:     master,
		DurationMs: durationMs,
		Report:     report,
	}, nil
}

// discover is the first pass: decode, trim and measure every clip.
func (e *Engine) discover(ctx context.Context, resolved *timeline.Resolved) ([]ClipOutcome, int64, error) {
	var outcomes []ClipOutcome
	var durationMs int64

	for _, track := range resolved.Tracks {
		for _, clip := range track.Clips {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}

			outcome := e.measure(ctx, track, clip)
			if outcome.Status == StatusMixed && outcome.EndMs() > durationMs {
				durationMs = outcome.EndMs()
			}
			outcomes = append(outcomes, outcome)
		}
	}
	return outcomes, durationMs, nil
}

func (e *Engine) measure(ctx context.Context, track timeline.ResolvedTrack, clip timeline.ResolvedClip) ClipOutcome {
	outcome := ClipOutcome{
		Track:       track.Index,
		Clip:        clip.Index,
		Filename:    clip.Label(),
		Path:        clip.Path,
		StartMs:     track.AbsoluteStartMs(clip),
		TrackGainDB: timeline.GainDB(track.Volume),
		ClipGainDB:  timeline.GainDB(clip.Volume),
	}
	fields := logrus.Fields{
		"track":    track.Index,
		"clip":     clip.Index,
		"filename": outcome.Filename,
	}

	if !clip.Resolved {
		e.logger.WithFields(fields).Warn("Skipping clip: no valid local path resolved")
		return skip(outcome, ReasonUnresolved, "")
	}

	decoded, err := e.decoder.Decode(ctx, clip.Path)
	if err != nil {
		e.logger.WithFields(fields).WithField("path", clip.Path).WithError(err).Warn("Skipping clip: decode failed")
		return skip(outcome, ReasonDecodeFailed, err.Error())
	}

	length := decoded.DurationMs()
	trimStart := clip.StartTrimMs
	trimEnd := length
	if clip.EndTrimMs != nil && *clip.EndTrimMs < length {
		trimEnd = *clip.EndTrimMs
	}
	outcome.TrimStartMs = trimStart
	outcome.TrimEndMs = trimEnd

	if trimStart >= trimEnd {
		e.logger.WithFields(fields).WithFields(logrus.Fields{
			"start_trim": trimStart,
			"end_trim":   trimEnd,
			"length_ms":  length,
		}).Warn("Skipping clip: empty trim window")
		return skip(outcome, ReasonEmptyTrim, "")
	}

	outcome.Status = StatusMixed
	outcome.DurationMs = trimEnd - trimStart
	outcome.decoded = decoded

	e.logger.WithFields(fields).WithFields(logrus.Fields{
		"start_ms":    outcome.StartMs,
		"duration_ms": outcome.DurationMs,
		"length_ms":   length,
	}).Debug("Clip decoded")
	return outcome
}

func skip(o ClipOutcome, reason SkipReason, detail string) ClipOutcome {
	o.Status = StatusSkipped
	o.Reason = reason
	o.Detail = detail
	return o
}

func (e *Engine) outputFormat(outcomes []ClipOutcome) audio.Format {
	var format audio.Format
	for _, o := range outcomes {
		if o.decoded == nil {
			continue
		}
		if o.decoded.SampleRate > format.SampleRate {
			format.SampleRate = o.decoded.SampleRate
		}
		if o.decoded.Channels > format.Channels {
			format.Channels = o.decoded.Channels
		}
	}

	if e.opts.SampleRate > 0 {
		format.SampleRate = e.opts.SampleRate
	}
	if e.opts.Channels > 0 {
		format.Channels = e.opts.Channels
	}
	if format.SampleRate == 0 {
		format.SampleRate = DefaultFormat.SampleRate
	}
	if format.Channels == 0 {
		format.Channels = DefaultFormat.Channels
	}
	return format
}

// render is the second pass: overlay every measured clip onto master.
func (e *Engine) render(ctx context.Context, master *audio.Buffer, outcomes []ClipOutcome) error {
	for i := range outcomes {
		o := &outcomes[i]
		if o.Status != StatusMixed {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		segment := o.decoded.Convert(master.Format).Slice(o.TrimStartMs, o.TrimEndMs)
		segment.ApplyGain(o.TrackGainDB)
		segment.ApplyGain(o.ClipGainDB)

		at := audio.MsToFrames(o.StartMs, master.SampleRate)
		if err := master.Overlay(segment, at); err != nil {
			// Formats match after Convert and offsets are never negative.
			e.logger.WithError(err).WithField("filename", o.Filename).Error("Overlay failed")
		}
		o.decoded = nil
	}
	return nil
}
