package timeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Unit is the unit stored clip start times are interpreted in.
type Unit string

const (
	Seconds      Unit = "seconds"
	Milliseconds Unit = "milliseconds"
)

// ParseUnit accepts the unit names used in configuration.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "seconds", "s", "sec":
		return Seconds, nil
	case "milliseconds", "ms":
		return Milliseconds, nil
	default:
		return "", fmt.Errorf("invalid start time unit: %q (must be seconds or milliseconds)", s)
	}
}

// ParseOptions controls normalization of stored project JSON.
type ParseOptions struct {
	StartTimeUnit Unit
}

// Warning records a field that was defaulted or clamped during Parse.
// Clip is -1 for track level fields.
type Warning struct {
	Track   int    `json:"track"`
	Clip    int    `json:"clip"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	if w.Clip < 0 {
		return fmt.Sprintf("track %d: %s: %s", w.Track, w.Field, w.Message)
	}
	return fmt.Sprintf("track %d clip %d: %s: %s", w.Track, w.Clip, w.Field, w.Message)
}

// Accepted field names, in order of preference.
var (
	startTimeFields = []string{"startTime", "start_time"}
	fileFields      = []string{"file", "url", "file_url"}
)

type parser struct {
	opts     ParseOptions
	warnings []Warning
}

// Parse normalizes a stored project document. Missing or malformed fields
// fall back to their defaults and are reported as warnings. Only a document
// that is not an object, or whose tracks are not an array, is an error.
func Parse(data []byte, opts ParseOptions) (*Project, []Warning, error) {
	if opts.StartTimeUnit == "" {
		opts.StartTimeUnit = Seconds
	}
	if opts.StartTimeUnit != Seconds && opts.StartTimeUnit != Milliseconds {
		return nil, nil, fmt.Errorf("invalid start time unit: %q", opts.StartTimeUnit)
	}

	project := &Project{Tracks: []Track{}}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return project, nil, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, nil, fmt.Errorf("project must be a JSON object: %w", err)
	}

	rawTracks, err := rawArray(doc["tracks"])
	if err != nil {
		return nil, nil, fmt.Errorf("tracks: %w", err)
	}

	p := &parser{opts: opts}
	for i, raw := range rawTracks {
		track, ok := p.track(i, raw)
		if ok {
			project.Tracks = append(project.Tracks, track)
		}
	}
	return project, p.warnings, nil
}

func (p *parser) warn(track, clip int, field, format string, args ...any) {
	p.warnings = append(p.warnings, Warning{
		Track:   track,
		Clip:    clip,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}

func (p *parser) track(idx int, raw json.RawMessage) (Track, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		p.warn(idx, -1, "track", "not an object, skipped")
		return Track{}, false
	}

	track := Track{
		Index:      idx,
		Name:       p.str(idx, -1, fields, "name"),
		PositionMs: p.millis(idx, -1, fields, "position", Milliseconds),
		Volume:     p.volume(idx, -1, fields),
		Clips:      []Clip{},
	}

	rawClips, err := rawArray(fields["clips"])
	if err != nil {
		p.warn(idx, -1, "clips", "%v, track has no clips", err)
		return track, true
	}
	for ci, rc := range rawClips {
		clip, ok := p.clip(idx, ci, rc)
		if ok {
			track.Clips = append(track.Clips, clip)
		}
	}
	return track, true
}

func (p *parser) clip(track, idx int, raw json.RawMessage) (Clip, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		p.warn(track, idx, "clip", "not an object, skipped")
		return Clip{}, false
	}

	clip := Clip{
		Index:       idx,
		LocalPath:   p.str(track, idx, fields, "local_path"),
		Filename:    p.str(track, idx, fields, "filename"),
		StartTrimMs: p.millis(track, idx, fields, "startTrim", Milliseconds),
		Volume:      p.volume(track, idx, fields),
	}
	for _, name := range fileFields {
		if v := p.str(track, idx, fields, name); v != "" {
			clip.File = v
			break
		}
	}

	clip.StartMs = p.startTime(track, idx, fields)

	if _, ok := present(fields, "endTrim"); ok {
		end := p.millis(track, idx, fields, "endTrim", Milliseconds)
		if end < clip.StartTrimMs {
			p.warn(track, idx, "endTrim", "%d is before startTrim %d", end, clip.StartTrimMs)
		}
		clip.EndTrimMs = &end
	}
	return clip, true
}

func (p *parser) startTime(track, clip int, fields map[string]json.RawMessage) int64 {
	var chosen string
	for _, name := range startTimeFields {
		if _, ok := present(fields, name); !ok {
			continue
		}
		if chosen == "" {
			chosen = name
			continue
		}
		p.warn(track, clip, name, "ignored, %s takes precedence", chosen)
	}
	if chosen == "" {
		return 0
	}
	return p.millis(track, clip, fields, chosen, p.opts.StartTimeUnit)
}

// millis reads a non-negative time field and converts it to milliseconds.
func (p *parser) millis(track, clip int, fields map[string]json.RawMessage, name string, unit Unit) int64 {
	raw, ok := present(fields, name)
	if !ok {
		return 0
	}
	v, err := number(raw)
	if err != nil {
		p.warn(track, clip, name, "%v, using 0", err)
		return 0
	}
	if unit == Seconds {
		v *= 1000
	}
	ms := int64(math.Round(v))
	if ms < 0 {
		p.warn(track, clip, name, "negative value %d clamped to 0", ms)
		return 0
	}
	return ms
}

func (p *parser) volume(track, clip int, fields map[string]json.RawMessage) int {
	raw, ok := present(fields, "volume")
	if !ok {
		return DefaultVolume
	}
	v, err := number(raw)
	if err != nil {
		p.warn(track, clip, "volume", "%v, using %d", err, DefaultVolume)
		return DefaultVolume
	}
	vol := int(math.Round(v))
	switch {
	case vol < MinVolume:
		p.warn(track, clip, "volume", "%d clamped to %d", vol, MinVolume)
		return MinVolume
	case vol > MaxVolume:
		p.warn(track, clip, "volume", "%d clamped to %d", vol, MaxVolume)
		return MaxVolume
	}
	return vol
}

func (p *parser) str(track, clip int, fields map[string]json.RawMessage, name string) string {
	raw, ok := present(fields, name)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		p.warn(track, clip, name, "not a string, ignored")
		return ""
	}
	return strings.TrimSpace(s)
}

// present returns the raw field value unless it is absent or null.
func present(fields map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	raw, ok := fields[name]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

// number accepts JSON numbers and numeric strings.
func number(raw json.RawMessage) (float64, error) {
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, fmt.Errorf("not a number")
		}
		v, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", s)
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number")
	}
	return v, nil
}

func rawArray(raw json.RawMessage) ([]json.RawMessage, error) {
	if raw == nil || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("not an array")
	}
	return items, nil
}
