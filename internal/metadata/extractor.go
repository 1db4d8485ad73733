package metadata

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"trackmix/internal/audio"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
)

// Info is what the media library knows about an audio file without decoding it
type Info struct {
	Title      string
	Artist     string
	DurationMs int64
	FileSize   int64
	Format     string
}

// Extractor handles metadata extraction from audio files
type Extractor struct {
	supportedFormats []string
	logger           *logrus.Logger
}

// NewExtractor creates a new metadata extractor
func NewExtractor(supportedFormats []string, logger *logrus.Logger) *Extractor {
	normalized := make([]string, 0, len(supportedFormats))
	for _, f := range supportedFormats {
		normalized = append(normalized, strings.ToLower(f))
	}
	return &Extractor{
		supportedFormats: normalized,
		logger:           logger,
	}
}

// ExtractFromFile reads tags and duration of an audio file. Missing tags and
// unreadable durations are not errors; only an unreadable file is.
func (e *Extractor) ExtractFromFile(filePath string) (Info, error) {
	startTime := time.Now()

	file, err := os.Open(filePath)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"filePath": filePath,
			"error":    err.Error(),
		}).Error("Failed to open audio file")
		return Info{}, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return Info{}, fmt.Errorf("failed to get file stats: %w", err)
	}

	info := Info{
		Title:    strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath)),
		FileSize: stat.Size(),
		Format:   strings.ToLower(filepath.Ext(filePath)),
	}

	duration, err := e.calculateDuration(filePath)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"filePath": filePath,
			"error":    err.Error(),
		}).Warn("Failed to calculate duration, setting to 0")
		duration = 0
	}
	info.DurationMs = duration

	metadata, err := tag.ReadFrom(file)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"filePath": filePath,
			"error":    err.Error(),
		}).Debug("No tags found, using filename")
		return info, nil
	}
	if title := strings.TrimSpace(metadata.Title()); title != "" {
		info.Title = title
	}
	info.Artist = strings.TrimSpace(metadata.Artist())

	e.logger.WithFields(logrus.Fields{
		"filePath":       filePath,
		"title":          info.Title,
		"duration_ms":    info.DurationMs,
		"processingTime": time.Since(startTime),
	}).Debug("Successfully extracted metadata")

	return info, nil
}

// calculateDuration calculates the duration of an audio file in milliseconds
func (e *Extractor) calculateDuration(filePath string) (int64, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".mp3":
		return e.durationMP3(filePath)
	case ".flac":
		return e.durationFLAC(filePath)
	case ".wav":
		return e.durationWAV(filePath)
	case ".m4a":
		return e.durationM4A(filePath)
	default:
		return 0, fmt.Errorf("unsupported format: %s", ext)
	}
}

// MP3 duration by summing frame durations
func (e *Extractor) durationMP3(path string) (int64, error) {
	probe, err := audio.ProbeMP3(path)
	if err != nil {
		return 0, err
	}
	return probe.Duration.Milliseconds(), nil
}

// FLAC duration via STREAMINFO metadata block
func (e *Extractor) durationFLAC(path string) (int64, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return 0, err
	}
	defer stream.Close()
	si := stream.Info
	if si.NSamples > 0 && si.SampleRate > 0 {
		return int64(si.NSamples) * 1000 / int64(si.SampleRate), nil
	}
	return 0, fmt.Errorf("flac stream missing sample info")
}

// WAV duration from the PCM chunk size
func (e *Extractor) durationWAV(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("invalid wav file")
	}
	if dec.SampleRate == 0 || dec.BitDepth == 0 || dec.NumChans == 0 {
		return 0, fmt.Errorf("invalid wav header")
	}
	d, err := dec.Duration()
	if err != nil {
		return 0, err
	}
	return d.Milliseconds(), nil
}

// M4A duration from the movie header (moov/mvhd).
func (e *Extractor) durationM4A(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return 0, err
	}
	moov, err := findAtom(f, stat.Size(), "moov")
	if err != nil {
		return 0, err
	}
	if _, err := findAtom(f, moov, "mvhd"); err != nil {
		return 0, err
	}
	return readMVHD(f)
}

// findAtom advances r to the body of the first atom named name within the
// next limit bytes and returns the body size.
func findAtom(r io.ReadSeeker, limit int64, name string) (int64, error) {
	var hdr [8]byte
	for limit >= 8 {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return 0, err
		}
		size := int64(binary.BigEndian.Uint32(hdr[:4]))
		if size < 8 || size > limit {
			return 0, fmt.Errorf("bad %q atom size %d", hdr[4:], size)
		}
		if string(hdr[4:]) == name {
			return size - 8, nil
		}
		if _, err := r.Seek(size-8, io.SeekCurrent); err != nil {
			return 0, err
		}
		limit -= size
	}
	return 0, fmt.Errorf("%s atom not found", name)
}

func readMVHD(r io.Reader) (int64, error) {
	var version [4]byte // version + flags
	if _, err := io.ReadFull(r, version[:]); err != nil {
		return 0, err
	}

	var timescale uint32
	var duration uint64
	if version[0] == 1 {
		var body [28]byte // created(8) modified(8) timescale(4) duration(8)
		if _, err := io.ReadFull(r, body[:]); err != nil {
			return 0, err
		}
		timescale = binary.BigEndian.Uint32(body[16:20])
		duration = binary.BigEndian.Uint64(body[20:28])
	} else {
		var body [16]byte
		if _, err := io.ReadFull(r, body[:]); err != nil {
			return 0, err
		}
		timescale = binary.BigEndian.Uint32(body[8:12])
		duration = uint64(binary.BigEndian.Uint32(body[12:16]))
	}
	if timescale == 0 {
		return 0, fmt.Errorf("mvhd has zero timescale")
	}
	return int64(duration * 1000 / uint64(timescale)), nil
}

// IsAudioFile checks if a file is a supported audio format
func (e *Extractor) IsAudioFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	for _, format := range e.supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}

// GetContentType returns the MIME type for an audio file
func (e *Extractor) GetContentType(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	case ".webm":
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}
