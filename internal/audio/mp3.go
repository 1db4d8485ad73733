package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tcolgate/mp3"
)

// MP3Probe summarizes the frames of an MP3 stream.
type MP3Probe struct {
	Frames   int
	Duration time.Duration
}

// ProbeMP3 walks the MPEG audio frames of a file. A stream in which no frame
// can be parsed is an error; a stream that breaks part way is reported up to
// the last good frame.
func ProbeMP3(path string) (MP3Probe, error) {
	f, err := os.Open(path)
	if err != nil {
		return MP3Probe{}, err
	}
	defer f.Close()

	var probe MP3Probe
	dec := mp3.NewDecoder(f)
	var skipped int
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			if errors.Is(err, io.EOF) || probe.Frames > 0 {
				break
			}
			return MP3Probe{}, fmt.Errorf("no mp3 frames found: %w", err)
		}
		probe.Duration += fr.Duration()
		probe.Frames++
	}
	if probe.Frames == 0 {
		return MP3Probe{}, fmt.Errorf("no mp3 frames found")
	}
	return probe, nil
}

// MP3Decoder validates the frame structure before handing the file to a PCM
// decoder, so garbage uploads fail fast with a clear reason.
type MP3Decoder struct {
	PCM Decoder
}

// Decode probes path and then decodes it.
func (d *MP3Decoder) Decode(ctx context.Context, path string) (*Buffer, error) {
	if _, err := ProbeMP3(path); err != nil {
		return nil, fmt.Errorf("invalid mp3 file: %w", err)
	}
	return d.PCM.Decode(ctx, path)
}
