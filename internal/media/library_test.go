package media

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trackmix/internal/audio"
	"trackmix/internal/audio/audiotest"
	"trackmix/internal/timeline"

	"github.com/sirupsen/logrus"
)

var fixtureFormat = audio.Format{SampleRate: 8000, Channels: 1}

func newTestLibrary(t *testing.T) *Library {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	lib, err := NewLibrary(Options{
		Root:             filepath.Join(t.TempDir(), "media"),
		URLPrefix:        "/media",
		SupportedFormats: []string{".mp3", ".wav", ".flac"},
	}, logger)
	if err != nil {
		t.Fatalf("Failed to create library: %v", err)
	}
	return lib
}

func TestNewLibraryDefaults(t *testing.T) {
	lib := newTestLibrary(t)

	if lib.URLPrefix() != "/media/" {
		t.Errorf("Expected prefix with trailing slash, got %s", lib.URLPrefix())
	}
	if lib.EffectsDir() != filepath.Join(lib.Root(), "effects") {
		t.Errorf("Expected effects dir under root, got %s", lib.EffectsDir())
	}
	if info, err := os.Stat(lib.Root()); err != nil || !info.IsDir() {
		t.Errorf("Media root was not created: %v", err)
	}
}

func TestPathForURL(t *testing.T) {
	lib := newTestLibrary(t)

	tests := []struct {
		ref     string
		want    string
		wantErr bool
	}{
		{ref: "/media/user_bob/kick.wav", want: filepath.Join(lib.Root(), "user_bob", "kick.wav")},
		{ref: "http://localhost:3000/media/user_bob/kick.wav", want: filepath.Join(lib.Root(), "user_bob", "kick.wav")},
		{ref: "/media/effects/clap.wav", want: filepath.Join(lib.EffectsDir(), "clap.wav")},
		{ref: "/media/user%20x/a.wav", want: filepath.Join(lib.Root(), "user x", "a.wav")},
		{ref: "/media/../etc/passwd", wantErr: true},
		{ref: "/static/kick.wav", wantErr: true},
		{ref: "/media/", wantErr: true},
		{ref: "/mediaextra/kick.wav", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got, err := lib.PathForURL(tt.ref)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("PathForURL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("PathForURL() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestURLFor(t *testing.T) {
	lib := newTestLibrary(t)

	got, err := lib.URLFor(filepath.Join(lib.Root(), "user_bob", "kick.wav"))
	if err != nil || got != "/media/user_bob/kick.wav" {
		t.Errorf("URLFor(upload) = %s, %v", got, err)
	}

	got, err = lib.URLFor(filepath.Join(lib.EffectsDir(), "clap.wav"))
	if err != nil || got != "/media/effects/clap.wav" {
		t.Errorf("URLFor(effect) = %s, %v", got, err)
	}

	if _, err := lib.URLFor("/somewhere/else.wav"); err == nil {
		t.Error("Expected error for a path outside the media root")
	}
}

func TestResolveClipPath(t *testing.T) {
	lib := newTestLibrary(t)
	upload := audiotest.WriteConstantWAV(t, filepath.Join(lib.Root(), "user_bob", "kick.wav"), fixtureFormat, 100, 0)
	effect := audiotest.WriteConstantWAV(t, filepath.Join(lib.EffectsDir(), "clap.wav"), fixtureFormat, 100, 0)
	outside := audiotest.WriteConstantWAV(t, filepath.Join(t.TempDir(), "outside.wav"), fixtureFormat, 100, 0)
	if err := os.WriteFile(filepath.Join(lib.Root(), "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(lib.Root(), "folder.wav"), 0755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		clip timeline.Clip
		want string
	}{
		{"relative url", timeline.Clip{File: "/media/user_bob/kick.wav"}, upload},
		{"absolute url", timeline.Clip{File: "https://daw.example.com/media/effects/clap.wav"}, effect},
		{"local path inside root", timeline.Clip{LocalPath: upload}, upload},
		{"local path preferred", timeline.Clip{LocalPath: effect, File: "/media/user_bob/kick.wav"}, effect},
		{"local path outside root falls back to url", timeline.Clip{LocalPath: outside, File: "/media/user_bob/kick.wav"}, upload},
		{"local path outside root", timeline.Clip{LocalPath: outside}, ""},
		{"traversal", timeline.Clip{File: "/media/../../outside.wav"}, ""},
		{"missing file", timeline.Clip{File: "/media/user_bob/missing.wav"}, ""},
		{"unsupported extension", timeline.Clip{File: "/media/notes.txt"}, ""},
		{"directory", timeline.Clip{File: "/media/folder.wav"}, ""},
		{"no reference", timeline.Clip{Filename: "kick.wav"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := lib.ResolveClipPath(tt.clip)
			if ok != (tt.want != "") {
				t.Fatalf("ResolveClipPath() ok = %v, path %q", ok, got)
			}
			if got != tt.want {
				t.Errorf("ResolveClipPath() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSaveUpload(t *testing.T) {
	lib := newTestLibrary(t)

	first, err := lib.SaveUpload("bob smith", "../Take 1.wav", strings.NewReader("RIFF"))
	if err != nil {
		t.Fatalf("SaveUpload() error = %v", err)
	}
	if first.RelPath != "user_bob_smith/Take 1.wav" {
		t.Errorf("Expected sanitized relative path, got %s", first.RelPath)
	}
	if first.URL != "/media/user_bob_smith/Take 1.wav" {
		t.Errorf("Unexpected URL %s", first.URL)
	}

	second, err := lib.SaveUpload("bob smith", "Take 1.wav", strings.NewReader("RIFF"))
	if err != nil {
		t.Fatalf("SaveUpload() error = %v", err)
	}
	if second.RelPath != "user_bob_smith/Take 1_1.wav" {
		t.Errorf("Expected unique name for second upload, got %s", second.RelPath)
	}

	if _, err := lib.SaveUpload("bob", "malware.exe", strings.NewReader("MZ")); err == nil {
		t.Error("Expected unsupported file type error")
	}

	anon, err := lib.SaveUpload("", ".wav", strings.NewReader("RIFF"))
	if err != nil {
		t.Fatalf("SaveUpload() error = %v", err)
	}
	if anon.RelPath != "user_anonymous/uploaded_file.wav" {
		t.Errorf("Expected fallback name, got %s", anon.RelPath)
	}

	if err := lib.RemoveFile(first.RelPath); err != nil {
		t.Fatalf("RemoveFile() error = %v", err)
	}
	if _, err := os.Stat(first.AbsPath); !os.IsNotExist(err) {
		t.Errorf("Expected file to be removed, stat err = %v", err)
	}
	if err := lib.RemoveFile(first.RelPath); err != nil {
		t.Errorf("Removing a missing file should succeed, got %v", err)
	}
	if err := lib.RemoveFile("../../etc/passwd"); err == nil {
		t.Error("Expected error removing outside the media root")
	}
}

func TestCatalog(t *testing.T) {
	lib := newTestLibrary(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	catalog := NewCatalog(lib, logger)

	t.Run("MissingDirectory", func(t *testing.T) {
		if err := catalog.Scan(); err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		if n := len(catalog.List()); n != 0 {
			t.Errorf("Expected empty catalog, got %d", n)
		}
	})

	audiotest.WriteConstantWAV(t, filepath.Join(lib.EffectsDir(), "whoosh.wav"), fixtureFormat, 750, 0)
	audiotest.WriteConstantWAV(t, filepath.Join(lib.EffectsDir(), "airhorn.wav"), fixtureFormat, 250, 0)
	audiotest.WriteConstantWAV(t, filepath.Join(lib.EffectsDir(), ".hidden.wav"), fixtureFormat, 250, 0)
	if err := os.WriteFile(filepath.Join(lib.EffectsDir(), "readme.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Run("Scan", func(t *testing.T) {
		if err := catalog.Scan(); err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		effects := catalog.List()
		if len(effects) != 2 {
			t.Fatalf("Expected 2 effects, got %+v", effects)
		}
		if effects[0].Name != "airhorn" || effects[1].Name != "whoosh" {
			t.Errorf("Expected effects sorted by name, got %+v", effects)
		}
		if effects[1].File != "/media/effects/whoosh.wav" {
			t.Errorf("Unexpected effect URL %s", effects[1].File)
		}
		if effects[1].DurationMs < 749 || effects[1].DurationMs > 750 {
			t.Errorf("Expected 750ms, got %d", effects[1].DurationMs)
		}
	})

	t.Run("Watch", func(t *testing.T) {
		if err := catalog.Watch(); err != nil {
			t.Fatalf("Watch() error = %v", err)
		}
		defer catalog.Stop()

		audiotest.WriteConstantWAV(t, filepath.Join(lib.EffectsDir(), "snare.wav"), fixtureFormat, 100, 0)
		waitFor(t, func() bool { return hasEffect(catalog, "snare") })

		if err := os.Remove(filepath.Join(lib.EffectsDir(), "whoosh.wav")); err != nil {
			t.Fatal(err)
		}
		waitFor(t, func() bool { return !hasEffect(catalog, "whoosh") })
	})
}

func hasEffect(c *Catalog, name string) bool {
	for _, e := range c.List() {
		if e.Name == name {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("Condition not met before timeout")
}

// id3Title returns an ID3v2.3 tag holding only a TIT2 frame.
func id3Title(title string) []byte {
	body := append([]byte{0}, title...) // ISO-8859-1
	frame := append([]byte("TIT2"), byte(len(body)>>24), byte(len(body)>>16), byte(len(body)>>8), byte(len(body)), 0, 0)
	frame = append(frame, body...)

	size := len(frame)
	tag := []byte{'I', 'D', '3', 3, 0, 0,
		byte(size >> 21 & 0x7f), byte(size >> 14 & 0x7f), byte(size >> 7 & 0x7f), byte(size & 0x7f)}
	return append(tag, frame...)
}

func TestCatalogUsesTagTitle(t *testing.T) {
	lib := newTestLibrary(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	if err := os.MkdirAll(lib.EffectsDir(), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(lib.EffectsDir(), "horn_01.mp3"), id3Title("Air Horn"), 0644); err != nil {
		t.Fatal(err)
	}
	audiotest.WriteConstantWAV(t, filepath.Join(lib.EffectsDir(), "clap.wav"), fixtureFormat, 100, 0)

	catalog := NewCatalog(lib, logger)
	if err := catalog.Scan(); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	effects := catalog.List()
	if len(effects) != 2 {
		t.Fatalf("Expected 2 effects, got %+v", effects)
	}
	if effects[0].Name != "Air Horn" || effects[0].File != "/media/effects/horn_01.mp3" {
		t.Errorf("Expected tag title for horn_01.mp3, got %+v", effects[0])
	}
	if effects[1].Name != "clap" {
		t.Errorf("Expected file stem for untagged clap.wav, got %+v", effects[1])
	}
}
