package timeline

import (
	"io"
	"math"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestGainDB(t *testing.T) {
	tests := []struct {
		volume int
		want   float64
	}{
		{0, -20},
		{50, -10},
		{100, 0},
		{75, -5},
	}
	for _, tt := range tests {
		if got := GainDB(tt.volume); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("GainDB(%d) = %v, want %v", tt.volume, got, tt.want)
		}
	}

	for v := MinVolume; v < MaxVolume; v++ {
		if GainDB(v) >= GainDB(v+1) {
			t.Fatalf("GainDB not increasing between %d and %d", v, v+1)
		}
	}
}

func TestParseEmptyDocuments(t *testing.T) {
	for _, doc := range []string{"", "  ", "null", "{}", `{"tracks": null}`, `{"tracks": []}`} {
		project, _, err := Parse([]byte(doc), ParseOptions{})
		if err != nil {
			t.Errorf("Parse(%q) error = %v", doc, err)
			continue
		}
		if len(project.Tracks) != 0 {
			t.Errorf("Parse(%q) gave %d tracks, want 0", doc, len(project.Tracks))
		}
	}
}

func TestParseRejectsMalformedDocuments(t *testing.T) {
	for _, doc := range []string{`[]`, `"tracks"`, `{"tracks": {}}`, `{"tracks": 3}`, `{`} {
		if _, _, err := Parse([]byte(doc), ParseOptions{}); err == nil {
			t.Errorf("Parse(%q) expected error", doc)
		}
	}
}

func TestParseFullProject(t *testing.T) {
	doc := `{
		"tracks": [
			{
				"name": "Drums",
				"position": 250,
				"volume": 80,
				"clips": [
					{
						"file": "/media/user_ann/beat.mp3",
						"filename": "beat.mp3",
						"startTime": 1.5,
						"startTrim": 500,
						"endTrim": 1500,
						"volume": 50
					}
				]
			},
			{
				"clips": [
					{"url": "/media/effects/clap.wav", "start_time": 2}
				]
			}
		]
	}`

	project, warnings, err := Parse([]byte(doc), ParseOptions{StartTimeUnit: Seconds})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if len(project.Tracks) != 2 {
		t.Fatalf("got %d tracks, want 2", len(project.Tracks))
	}

	drums := project.Tracks[0]
	if drums.Name != "Drums" || drums.PositionMs != 250 || drums.Volume != 80 {
		t.Errorf("track 0 = %+v", drums)
	}
	clip := drums.Clips[0]
	if clip.File != "/media/user_ann/beat.mp3" || clip.Filename != "beat.mp3" {
		t.Errorf("clip file fields = %q, %q", clip.File, clip.Filename)
	}
	if clip.StartMs != 1500 {
		t.Errorf("StartMs = %d, want 1500", clip.StartMs)
	}
	if clip.StartTrimMs != 500 {
		t.Errorf("StartTrimMs = %d, want 500", clip.StartTrimMs)
	}
	if clip.EndTrimMs == nil || *clip.EndTrimMs != 1500 {
		t.Errorf("EndTrimMs = %v, want 1500", clip.EndTrimMs)
	}
	if clip.Volume != 50 {
		t.Errorf("Volume = %d, want 50", clip.Volume)
	}

	second := project.Tracks[1]
	if second.Volume != DefaultVolume || second.PositionMs != 0 {
		t.Errorf("track 1 defaults = %+v", second)
	}
	if c := second.Clips[0]; c.File != "/media/effects/clap.wav" || c.StartMs != 2000 || c.EndTrimMs != nil || c.Volume != DefaultVolume {
		t.Errorf("track 1 clip = %+v", c)
	}
}

func TestParseStartTimeUnits(t *testing.T) {
	doc := []byte(`{"tracks":[{"clips":[{"startTime": 2}]}]}`)

	seconds, _, err := Parse(doc, ParseOptions{StartTimeUnit: Seconds})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := seconds.Tracks[0].Clips[0].StartMs; got != 2000 {
		t.Errorf("seconds: StartMs = %d, want 2000", got)
	}

	millis, _, err := Parse(doc, ParseOptions{StartTimeUnit: Milliseconds})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := millis.Tracks[0].Clips[0].StartMs; got != 2 {
		t.Errorf("milliseconds: StartMs = %d, want 2", got)
	}

	if _, _, err := Parse(doc, ParseOptions{StartTimeUnit: "minutes"}); err == nil {
		t.Error("Parse() with unknown unit expected error")
	}
}

func TestParseStartTimePrecedence(t *testing.T) {
	doc := []byte(`{"tracks":[{"clips":[{"startTime": 1, "start_time": 9}]}]}`)
	project, warnings, err := Parse(doc, ParseOptions{StartTimeUnit: Seconds})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := project.Tracks[0].Clips[0].StartMs; got != 1000 {
		t.Errorf("StartMs = %d, want 1000", got)
	}
	if len(warnings) != 1 || warnings[0].Field != "start_time" {
		t.Errorf("warnings = %v, want one about start_time", warnings)
	}
}

func TestParseNormalizesBadFields(t *testing.T) {
	doc := []byte(`{"tracks":[
		{"volume": 250, "position": -40, "clips": [
			{"volume": -5, "startTrim": "300", "startTime": "abc"},
			{"volume": "70", "endTrim": 100, "startTrim": 200},
			"not a clip"
		]},
		7,
		{"clips": "nope"}
	]}`)

	project, warnings, err := Parse(doc, ParseOptions{StartTimeUnit: Milliseconds})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(project.Tracks) != 2 {
		t.Fatalf("got %d tracks, want 2", len(project.Tracks))
	}

	tr := project.Tracks[0]
	if tr.Volume != MaxVolume {
		t.Errorf("track volume = %d, want %d", tr.Volume, MaxVolume)
	}
	if tr.PositionMs != 0 {
		t.Errorf("PositionMs = %d, want 0", tr.PositionMs)
	}
	if len(tr.Clips) != 2 {
		t.Fatalf("got %d clips, want 2", len(tr.Clips))
	}
	if c := tr.Clips[0]; c.Volume != MinVolume || c.StartTrimMs != 300 || c.StartMs != 0 {
		t.Errorf("clip 0 = %+v", c)
	}
	if c := tr.Clips[1]; c.Volume != 70 || *c.EndTrimMs != 100 || c.StartTrimMs != 200 {
		t.Errorf("clip 1 = %+v", c)
	}
	if len(project.Tracks[1].Clips) != 0 {
		t.Errorf("track with non-array clips has %d clips", len(project.Tracks[1].Clips))
	}

	fields := map[string]bool{}
	for _, w := range warnings {
		fields[w.Field] = true
	}
	for _, f := range []string{"volume", "position", "startTime", "endTrim", "clip", "track", "clips"} {
		if !fields[f] {
			t.Errorf("missing warning for %s in %v", f, warnings)
		}
	}
}

func TestParseUnit(t *testing.T) {
	for in, want := range map[string]Unit{"seconds": Seconds, "S": Seconds, " ms ": Milliseconds, "milliseconds": Milliseconds} {
		got, err := ParseUnit(in)
		if err != nil || got != want {
			t.Errorf("ParseUnit(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseUnit("frames"); err == nil {
		t.Error("ParseUnit(frames) expected error")
	}
}

func TestResolveKeepsInputIntact(t *testing.T) {
	end := int64(900)
	project := &Project{Tracks: []Track{{
		Index:      0,
		PositionMs: 100,
		Volume:     60,
		Clips: []Clip{
			{Index: 0, File: "/media/a.wav", StartMs: 50, EndTrimMs: &end, Volume: 100},
			{Index: 1, File: "/media/missing.wav", Volume: 100},
		},
	}}}

	resolver := ResolverFunc(func(c Clip) (string, bool) {
		if c.File == "/media/a.wav" {
			return "/srv/media/a.wav", true
		}
		return "", false
	})

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	resolved := Resolve(project, resolver, logger)

	if len(resolved.Tracks) != 1 || len(resolved.Tracks[0].Clips) != 2 {
		t.Fatalf("resolved shape = %+v", resolved)
	}
	rt := resolved.Tracks[0]
	if c := rt.Clips[0]; !c.Resolved || c.Path != "/srv/media/a.wav" {
		t.Errorf("clip 0 = %+v", c)
	}
	if c := rt.Clips[1]; c.Resolved || c.Path != "" {
		t.Errorf("clip 1 = %+v", c)
	}
	if resolved.Unresolved() != 1 {
		t.Errorf("Unresolved() = %d, want 1", resolved.Unresolved())
	}
	if got := rt.AbsoluteStartMs(rt.Clips[0]); got != 150 {
		t.Errorf("AbsoluteStartMs = %d, want 150", got)
	}

	*rt.Clips[0].EndTrimMs = 1
	if end != 900 {
		t.Error("Resolve shares EndTrimMs with the input project")
	}
	if project.Tracks[0].Clips[0].LocalPath != "" {
		t.Error("Resolve modified the input project")
	}
}
