package export

import (
	"fmt"
	"time"

	"trackmix/internal/audio"
	"trackmix/internal/config"
	"trackmix/internal/encoder"
	"trackmix/internal/mixdown"
	"trackmix/internal/timeline"

	"github.com/sirupsen/logrus"
)

// NewFromConfig builds the decoder registry, mixdown engine and encoder
// described by cfg and returns a Service using them.
func NewFromConfig(cfg *config.Config, store ProjectStore, resolver timeline.PathResolver, logger *logrus.Logger) (*Service, encoder.Encoder, error) {
	ffmpeg := audio.NewFFmpegDecoder(cfg.Encoder.FFmpegPath, audio.Format{
		SampleRate: cfg.Mixdown.DecodeSampleRate,
		Channels:   cfg.Mixdown.DecodeChannels,
	})
	registry := audio.NewRegistry(ffmpeg)

	engine := mixdown.NewEngine(registry, mixdown.Options{
		SampleRate: cfg.Mixdown.SampleRate,
		Channels:   cfg.Mixdown.Channels,
	}, logger)

	enc, err := encoder.New(cfg.EncoderSettings(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	svc := NewService(store, resolver, engine, enc, Options{
		StartTimeUnit: cfg.StartTimeUnit(),
		CacheTTL:      time.Duration(cfg.Export.CacheTTLSeconds) * time.Second,
		CacheMaxBytes: cfg.Export.CacheMaxMB * 1024 * 1024,
	}, logger)
	return svc, enc, nil
}
