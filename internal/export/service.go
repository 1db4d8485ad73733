// Package export turns stored projects into downloadable audio files by
// running parse, resolve, mixdown and encode in sequence.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"trackmix/internal/cache"
	"trackmix/internal/database"
	"trackmix/internal/encoder"
	"trackmix/internal/fileutil"
	"trackmix/internal/mixdown"
	"trackmix/internal/timeline"
	"trackmix/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

var (
	// ErrProjectNotFound is returned when the project id does not exist.
	ErrProjectNotFound = errors.New("project not found")
	// ErrInvalidProject wraps documents the timeline parser rejects.
	ErrInvalidProject = errors.New("invalid project")
)

// DefaultFilename is used when a project title sanitizes to nothing.
const DefaultFilename = "mixdown"

const maxFilenameLen = 100

// ProjectStore loads stored projects.
type ProjectStore interface {
	GetProject(id int) (*models.Project, error)
}

// Export is a rendered, encoded project.
type Export struct {
	Filename    string
	ContentType string
	Data        []byte
	ETag        string
	DurationMs  int64
	Report      mixdown.Report
	Warnings    []timeline.Warning
}

// Options configures a Service.
type Options struct {
	StartTimeUnit timeline.Unit
	CacheTTL      time.Duration
	CacheMaxBytes int64
}

// Service exports projects. It is safe for concurrent use.
type Service struct {
	store    ProjectStore
	resolver timeline.PathResolver
	engine   *mixdown.Engine
	encoder  encoder.Encoder
	opts     Options
	cache    *cache.MemoryCache[*Export]
	logger   *logrus.Logger
}

// NewService wires the export pipeline. A positive CacheTTL keeps encoded
// exports in memory keyed by project id and last update time.
func NewService(store ProjectStore, resolver timeline.PathResolver, engine *mixdown.Engine, enc encoder.Encoder, opts Options, logger *logrus.Logger) *Service {
	s := &Service{
		store:    store,
		resolver: resolver,
		engine:   engine,
		encoder:  enc,
		opts:     opts,
		logger:   logger,
	}
	if opts.CacheTTL > 0 {
		s.cache = cache.NewMemoryCache[*Export](opts.CacheTTL, opts.CacheMaxBytes)
	}
	return s
}

// Close releases the export cache.
func (s *Service) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
}

// ExportProject renders the stored project with the given id.
func (s *Service) ExportProject(ctx context.Context, id int) (*Export, error) {
	stored, err := s.store.GetProject(id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrProjectNotFound, id)
		}
		return nil, fmt.Errorf("failed to load project %d: %w", id, err)
	}

	log := s.logger.WithField("project_id", id).WithField("request_id", uuid.NewString())
	j, err := s.prepare(stored.Title, stored.Timeline, log)
	if err != nil {
		return nil, err
	}

	if s.cache == nil {
		return s.render(ctx, j)
	}

	key := cacheKey(stored, j.resolved)
	if cached, ok := s.cache.Get(key); ok {
		log.Debug("Serving cached export")
		return cached, nil
	}
	out, err := s.render(ctx, j)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, out, int64(len(out.Data)))
	return out, nil
}

// RenderTimeline renders a project document that is not stored.
func (s *Service) RenderTimeline(ctx context.Context, title string, data []byte) (*Export, error) {
	j, err := s.prepare(title, data, s.logger.WithField("request_id", uuid.NewString()))
	if err != nil {
		return nil, err
	}
	return s.render(ctx, j)
}

// Invalidate drops cached exports of a project.
func (s *Service) Invalidate(id int) {
	if s.cache == nil {
		return
	}
	prefix := "project:" + strconv.Itoa(id) + ":"
	s.cache.DeleteFunc(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

// job is a parsed and resolved project ready to be mixed.
type job struct {
	title    string
	project  *timeline.Project
	resolved *timeline.Resolved
	warnings []timeline.Warning
	log      *logrus.Entry
}

func (s *Service) prepare(title string, data []byte, log *logrus.Entry) (*job, error) {
	project, warnings, err := timeline.Parse(data, timeline.ParseOptions{StartTimeUnit: s.opts.StartTimeUnit})
	if err != nil {
		log.WithError(err).Warn("Rejecting project document")
		return nil, fmt.Errorf("%w: %v", ErrInvalidProject, err)
	}
	for _, w := range warnings {
		log.WithField("warning", w.String()).Debug("Project field normalized")
	}

	return &job{
		title:    title,
		project:  project,
		resolved: timeline.Resolve(project, s.resolver, s.logger),
		warnings: warnings,
		log:      log,
	}, nil
}

func (s *Service) render(ctx context.Context, j *job) (*Export, error) {
	started := time.Now()

	result, err := s.engine.Mix(ctx, j.resolved)
	if err != nil {
		return nil, fmt.Errorf("mixdown: %w", err)
	}

	data, err := s.encoder.Encode(ctx, result.Buffer, s.encoder.DefaultOptions())
	if err != nil {
		return nil, err
	}

	out := &Export{
		Filename:    Filename(j.title, s.encoder.Extension()),
		ContentType: s.encoder.ContentType(),
		Data:        data,
		ETag:        contentTag(data),
		DurationMs:  result.DurationMs,
		Report:      result.Report,
		Warnings:    j.warnings,
	}

	j.log.WithFields(logrus.Fields{
		"filename":       out.Filename,
		"duration_ms":    out.DurationMs,
		"bytes":          len(out.Data),
		"clips":          j.project.ClipCount(),
		"clips_skipped":  len(out.Report.Skipped()),
		"warnings":       len(j.warnings),
		"processingTime": time.Since(started),
	}).Info("Project exported")
	return out, nil
}

// Filename builds the download name for a project title.
func Filename(title, ext string) string {
	name := strings.TrimSpace(fileutil.SanitizeName(title, maxFilenameLen))
	if name == "" || strings.Trim(name, ".") == "" {
		name = DefaultFilename
	}
	return name + ext
}

// contentTag is a strong HTTP entity tag for encoded audio.
func contentTag(data []byte) string {
	sum := blake2b.Sum256(data)
	return fmt.Sprintf("%q", fmt.Sprintf("%x", sum[:16]))
}

// cacheKey identifies an export by project revision and by the state of
// every source file it would read, so replacing or removing media changes
// the key.
func cacheKey(p *models.Project, resolved *timeline.Resolved) string {
	h, _ := blake2b.New256(nil)
	for _, t := range resolved.Tracks {
		for _, c := range t.Clips {
			fmt.Fprintf(h, "%d/%d:", t.Index, c.Index)
			if !c.Resolved {
				io.WriteString(h, "unresolved\n")
				continue
			}
			info, err := os.Stat(c.Path)
			if err != nil {
				fmt.Fprintf(h, "%s missing\n", c.Path)
				continue
			}
			fmt.Fprintf(h, "%s %d %d\n", c.Path, info.Size(), info.ModTime().UnixNano())
		}
	}
	return fmt.Sprintf("project:%d:%d:%x", p.ID, p.UpdatedAt.UnixNano(), h.Sum(nil)[:16])
}
