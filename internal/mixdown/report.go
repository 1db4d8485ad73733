package mixdown

import (
	"fmt"

	"trackmix/internal/audio"
)

// Status is the outcome of a single clip in a mixdown.
type Status string

const (
	StatusMixed   Status = "mixed"
	StatusSkipped Status = "skipped"
)

// SkipReason classifies why a clip did not contribute to the mix.
type SkipReason string

const (
	ReasonUnresolved   SkipReason = "unresolved"
	ReasonDecodeFailed SkipReason = "decode_failed"
	ReasonEmptyTrim    SkipReason = "empty_trim"
)

// ClipOutcome is the per-clip result of duration discovery.
type ClipOutcome struct {
	Track    int        `json:"track"`
	Clip     int        `json:"clip"`
	Filename string     `json:"filename"`
	Path     string     `json:"path,omitempty"`
	Status   Status     `json:"status"`
	Reason   SkipReason `json:"reason,omitempty"`
	Detail   string     `json:"detail,omitempty"`

	StartMs     int64   `json:"startMs"`
	TrimStartMs int64   `json:"trimStartMs"`
	TrimEndMs   int64   `json:"trimEndMs"`
	DurationMs  int64   `json:"durationMs"`
	TrackGainDB float64 `json:"trackGainDb"`
	ClipGainDB  float64 `json:"clipGainDb"`

	decoded *audio.Buffer
}

// EndMs is where the clip stops on the master timeline.
func (o ClipOutcome) EndMs() int64 {
	return o.StartMs + o.DurationMs
}

func (o ClipOutcome) String() string {
	if o.Status == StatusSkipped {
		if o.Detail != "" {
			return fmt.Sprintf("track %d clip %d (%s): skipped, %s: %s", o.Track, o.Clip, o.Filename, o.Reason, o.Detail)
		}
		return fmt.Sprintf("track %d clip %d (%s): skipped, %s", o.Track, o.Clip, o.Filename, o.Reason)
	}
	return fmt.Sprintf("track %d clip %d (%s): %dms at %dms", o.Track, o.Clip, o.Filename, o.DurationMs, o.StartMs)
}

// Report lists clip outcomes in timeline order.
type Report struct {
	Outcomes []ClipOutcome `json:"outcomes"`
}

// Mixed returns the clips that contributed to the mix.
func (r Report) Mixed() []ClipOutcome {
	return r.filter(StatusMixed)
}

// Skipped returns the clips left out of the mix.
func (r Report) Skipped() []ClipOutcome {
	return r.filter(StatusSkipped)
}

func (r Report) filter(status Status) []ClipOutcome {
	var out []ClipOutcome
	for _, o := range r.Outcomes {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}
