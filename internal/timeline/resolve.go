package timeline

import (
	"github.com/sirupsen/logrus"
)

// PathResolver maps a clip's stored file reference to a readable local
// audio file. ok is false when the reference cannot be resolved.
type PathResolver interface {
	ResolveClipPath(clip Clip) (path string, ok bool)
}

// ResolverFunc adapts a function to the PathResolver interface.
type ResolverFunc func(clip Clip) (string, bool)

// ResolveClipPath calls f(clip).
func (f ResolverFunc) ResolveClipPath(clip Clip) (string, bool) {
	return f(clip)
}

// Resolved is a timeline whose clips carry the outcome of path resolution.
type Resolved struct {
	Tracks []ResolvedTrack
}

// ResolvedTrack carries the track settings and its resolved clips.
type ResolvedTrack struct {
	Index      int
	Name       string
	PositionMs int64
	Volume     int
	Clips      []ResolvedClip
}

// ResolvedClip is a clip plus the local path it resolved to, if any.
type ResolvedClip struct {
	Clip
	Path     string
	Resolved bool
}

// AbsoluteStartMs is the clip's start on the master timeline.
func (t ResolvedTrack) AbsoluteStartMs(c ResolvedClip) int64 {
	return t.PositionMs + c.StartMs
}

// Unresolved counts clips without a local path.
func (r *Resolved) Unresolved() int {
	n := 0
	for _, t := range r.Tracks {
		for _, c := range t.Clips {
			if !c.Resolved {
				n++
			}
		}
	}
	return n
}

// Resolve asks resolver for every clip's local path and returns a new
// timeline. The input project is not modified and unresolved clips are kept,
// marked with Resolved=false.
func Resolve(project *Project, resolver PathResolver, logger *logrus.Logger) *Resolved {
	out := &Resolved{Tracks: make([]ResolvedTrack, 0, len(project.Tracks))}

	for _, t := range project.Tracks {
		rt := ResolvedTrack{
			Index:      t.Index,
			Name:       t.Name,
			PositionMs: t.PositionMs,
			Volume:     t.Volume,
			Clips:      make([]ResolvedClip, 0, len(t.Clips)),
		}
		for _, c := range t.Clips {
			rc := ResolvedClip{Clip: c}
			if c.EndTrimMs != nil {
				end := *c.EndTrimMs
				rc.EndTrimMs = &end
			}

			path, ok := resolver.ResolveClipPath(c)
			if ok && path != "" {
				rc.Path = path
				rc.Resolved = true
			} else {
				logger.WithFields(logrus.Fields{
					"track":    t.Index,
					"clip":     c.Index,
					"filename": c.Label(),
					"file":     c.File,
				}).Debug("No local path resolved for clip")
			}
			rt.Clips = append(rt.Clips, rc)
		}
		out.Tracks = append(out.Tracks, rt)
	}
	return out
}
