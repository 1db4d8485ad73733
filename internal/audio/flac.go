package audio

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
)

// DecodeFLAC reads every frame of a FLAC stream and interleaves the
// subframe samples.
func DecodeFLAC(ctx context.Context, path string) (*Buffer, error) {
	stream, err := flac.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open flac stream: %w", err)
	}
	defer stream.Close()

	info := stream.Info
	if info == nil || info.SampleRate == 0 || info.NChannels == 0 {
		return nil, fmt.Errorf("flac stream missing sample info")
	}
	channels := int(info.NChannels)
	format := Format{SampleRate: int(info.SampleRate), Channels: channels}

	var data []int
	if info.NSamples > 0 {
		data = make([]int, 0, int(info.NSamples)*channels)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frame, err := stream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to parse flac frame: %w", err)
		}
		if len(frame.Subframes) != channels {
			return nil, fmt.Errorf("flac frame has %d subframes, expected %d", len(frame.Subframes), channels)
		}
		n := frame.Subframes[0].NSamples
		for i := 0; i < n; i++ {
			for _, sub := range frame.Subframes {
				data = append(data, int(sub.Samples[i]))
			}
		}
	}

	return FromInts(format, int(info.BitsPerSample), data), nil
}
