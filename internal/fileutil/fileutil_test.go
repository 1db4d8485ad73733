package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"My Song", 0, "My Song"},
		{"a/b\\c", 0, "a_b_c"},
		{"tab\there", 0, "tabhere"},
		{"  padded  ", 0, "padded"},
		{"Beat (v2), final.mp3", 0, "Beat (v2), final.mp3"},
		{"héllo wörld", 0, "héllo wörld"},
		{"abcdef", 3, "abc"},
		{"ab   cd", 3, "ab"},
		{"", 10, ""},
	}

	for _, tt := range tests {
		if got := SanitizeName(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("SanitizeName(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}

func TestWithin(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		rel     string
		want    string
		wantErr bool
	}{
		{rel: "a/b.wav", want: filepath.Join(root, "a", "b.wav")},
		{rel: "./c.wav", want: filepath.Join(root, "c.wav")},
		{rel: "x/../y.wav", want: filepath.Join(root, "y.wav")},
		{rel: "../escape.wav", wantErr: true},
		{rel: "a/../../escape.wav", wantErr: true},
		{rel: "..", wantErr: true},
	}

	for _, tt := range tests {
		got, err := Within(root, tt.rel)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Within(%q) = %s, expected error", tt.rel, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Within(%q) error = %v", tt.rel, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Within(%q) = %s, want %s", tt.rel, got, tt.want)
		}
	}
}

func TestIsRegularFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.wav")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if !IsRegularFile(file) {
		t.Error("Expected regular file")
	}
	if IsRegularFile(dir) {
		t.Error("Directory should not count as a regular file")
	}
	if IsRegularFile(filepath.Join(dir, "missing.wav")) {
		t.Error("Missing file should not count as a regular file")
	}
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "take.wav")

	if got := UniquePath(path); got != path {
		t.Errorf("UniquePath() = %s, want %s for a free name", got, path)
	}

	for _, name := range []string{"take.wav", "take_1.wav"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	if got, want := UniquePath(path), filepath.Join(dir, "take_2.wav"); got != want {
		t.Errorf("UniquePath() = %s, want %s", got, want)
	}
}
