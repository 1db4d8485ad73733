package audio

// Convert returns a copy of b in the target format. Channels are remapped
// first (mono is duplicated, downmixing to mono averages), then the sample
// rate is changed with linear interpolation.
func (b *Buffer) Convert(target Format) *Buffer {
	out := b
	if b.Channels != target.Channels {
		out = remapChannels(out, target.Channels)
	}
	if out.SampleRate != target.SampleRate {
		out = resample(out, target.SampleRate)
	}
	if out == b {
		out = b.Clone()
	}
	return out
}

func remapChannels(b *Buffer, channels int) *Buffer {
	frames := b.Frames()
	out := NewSilent(Format{SampleRate: b.SampleRate, Channels: channels}, frames)

	for f := 0; f < frames; f++ {
		in := b.Samples[f*b.Channels : (f+1)*b.Channels]
		dst := out.Samples[f*channels : (f+1)*channels]

		if channels == 1 {
			var sum float64
			for _, s := range in {
				sum += s
			}
			dst[0] = sum / float64(len(in))
			continue
		}
		for c := range dst {
			dst[c] = in[c%len(in)]
		}
	}
	return out
}

func resample(b *Buffer, rate int) *Buffer {
	srcFrames := b.Frames()
	if srcFrames == 0 {
		return NewSilent(Format{SampleRate: rate, Channels: b.Channels}, 0)
	}

	dstFrames := int(int64(srcFrames) * int64(rate) / int64(b.SampleRate))
	out := NewSilent(Format{SampleRate: rate, Channels: b.Channels}, dstFrames)
	step := float64(b.SampleRate) / float64(rate)
	ch := b.Channels

	for f := 0; f < dstFrames; f++ {
		pos := float64(f) * step
		i := int(pos)
		frac := pos - float64(i)
		next := i + 1
		if next >= srcFrames {
			next = srcFrames - 1
		}
		for c := 0; c < ch; c++ {
			a := b.Samples[i*ch+c]
			z := b.Samples[next*ch+c]
			out.Samples[f*ch+c] = a + (z-a)*frac
		}
	}
	return out
}
