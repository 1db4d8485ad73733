// Package timeline holds the canonical multi-track project representation and
// the normalization of stored project JSON into it.
//
// All times are integer milliseconds. Stored projects carry clip start times
// under two historical names and in an ambiguous unit; Parse maps both names
// onto Clip.StartMs using the configured Unit.
package timeline

import "fmt"

const (
	// DefaultVolume is unity gain on the 0-100 volume scale.
	DefaultVolume = 100
	MinVolume     = 0
	MaxVolume     = 100
)

// Project is a parsed, normalized timeline.
type Project struct {
	Tracks []Track `json:"tracks"`
}

// Track is one lane of clips sharing a position offset and a gain.
type Track struct {
	Index      int    `json:"index"`
	Name       string `json:"name,omitempty"`
	PositionMs int64  `json:"position"`
	Volume     int    `json:"volume"`
	Clips      []Clip `json:"clips"`
}

// Clip is a trimmed region of an audio file placed on a track.
type Clip struct {
	Index       int    `json:"index"`
	File        string `json:"file,omitempty"`
	LocalPath   string `json:"local_path,omitempty"`
	Filename    string `json:"filename,omitempty"`
	StartMs     int64  `json:"startTime"`
	StartTrimMs int64  `json:"startTrim"`
	// EndTrimMs is nil when the clip plays to the end of its source.
	EndTrimMs *int64 `json:"endTrim,omitempty"`
	Volume    int    `json:"volume"`
}

// Label names the clip in diagnostics.
func (c Clip) Label() string {
	switch {
	case c.Filename != "":
		return c.Filename
	case c.File != "":
		return c.File
	case c.LocalPath != "":
		return c.LocalPath
	default:
		return fmt.Sprintf("clip #%d", c.Index)
	}
}

// ClipCount returns the number of clips across all tracks.
func (p *Project) ClipCount() int {
	n := 0
	for _, t := range p.Tracks {
		n += len(t.Clips)
	}
	return n
}

// GainDB maps a 0-100 volume onto a decibel adjustment: 100 is unity (0 dB)
// and 0 is -20 dB, linear in between.
func GainDB(volume int) float64 {
	return 20*(float64(volume)/100.0) - 20
}
