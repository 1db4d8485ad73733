// Package media maps the public URLs stored in project timelines onto files
// under the media root, stores uploads, and keeps the catalog of built-in
// effect clips.
package media

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"trackmix/internal/fileutil"
	"trackmix/internal/metadata"
	"trackmix/internal/timeline"

	"github.com/sirupsen/logrus"
)

const effectsSubdir = "effects"

// Library resolves clip references and stores uploaded media.
type Library struct {
	root       string
	urlPrefix  string
	effectsDir string
	extractor  *metadata.Extractor
	logger     *logrus.Logger
}

// Options configures a Library.
type Options struct {
	Root             string
	URLPrefix        string
	EffectsDir       string
	SupportedFormats []string
}

// NewLibrary creates a library rooted at opts.Root. The root is created if
// it does not exist.
func NewLibrary(opts Options, logger *logrus.Logger) (*Library, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media root: %w", err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media root: %w", err)
	}

	effects := opts.EffectsDir
	if effects == "" {
		effects = filepath.Join(root, effectsSubdir)
	}
	effects, err = filepath.Abs(effects)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve effects dir: %w", err)
	}

	prefix := opts.URLPrefix
	if prefix == "" {
		prefix = "/media/"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &Library{
		root:       root,
		urlPrefix:  prefix,
		effectsDir: effects,
		extractor:  metadata.NewExtractor(opts.SupportedFormats, logger),
		logger:     logger,
	}, nil
}

// Root returns the absolute media root.
func (l *Library) Root() string { return l.root }

// EffectsDir returns the absolute effects directory.
func (l *Library) EffectsDir() string { return l.effectsDir }

// URLPrefix returns the public URL prefix of the media root.
func (l *Library) URLPrefix() string { return l.urlPrefix }

// Extractor returns the metadata extractor used for uploads and effects.
func (l *Library) Extractor() *metadata.Extractor { return l.extractor }

// ResolveClipPath maps a clip to a readable local audio file. A local_path
// is honoured only when it points inside the media root or effects
// directory; otherwise the public file URL is translated. Anything that is
// not an existing file with a supported extension is unresolvable.
func (l *Library) ResolveClipPath(clip timeline.Clip) (string, bool) {
	if clip.LocalPath != "" {
		if p, ok := l.checkLocal(clip.LocalPath); ok {
			return p, true
		}
	}
	if clip.File == "" {
		return "", false
	}

	p, err := l.PathForURL(clip.File)
	if err != nil {
		l.logger.WithFields(logrus.Fields{
			"file":  clip.File,
			"error": err.Error(),
		}).Debug("Clip reference not resolvable")
		return "", false
	}
	return l.checkFile(p)
}

// PathForURL translates a public media URL (absolute or path only) into a
// path under the media root. It does not check that the file exists.
func (l *Library) PathForURL(ref string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("invalid file reference: %w", err)
	}
	p := path.Clean("/" + u.Path)
	if !strings.HasPrefix(p+"/", l.urlPrefix) || p+"/" == l.urlPrefix {
		return "", fmt.Errorf("reference %q is outside %s", ref, l.urlPrefix)
	}
	rel := strings.TrimPrefix(p, l.urlPrefix)

	if name, ok := strings.CutPrefix(rel, effectsSubdir+"/"); ok {
		return fileutil.Within(l.effectsDir, name)
	}
	return fileutil.Within(l.root, rel)
}

// URLFor builds the public URL of a file under the media root.
func (l *Library) URLFor(absPath string) (string, error) {
	base := l.root
	prefix := l.urlPrefix
	if rel, err := filepath.Rel(l.effectsDir, absPath); err == nil && !strings.HasPrefix(rel, "..") {
		base = l.effectsDir
		prefix += effectsSubdir + "/"
	}
	rel, err := filepath.Rel(base, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside the media root", absPath)
	}
	return prefix + filepath.ToSlash(rel), nil
}

func (l *Library) checkLocal(p string) (string, bool) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", false
	}
	for _, base := range []string{l.root, l.effectsDir} {
		if rel, err := filepath.Rel(base, abs); err == nil && !strings.HasPrefix(rel, "..") {
			return l.checkFile(abs)
		}
	}
	return "", false
}

func (l *Library) checkFile(p string) (string, bool) {
	if !l.extractor.IsAudioFile(p) || !fileutil.IsRegularFile(p) {
		return "", false
	}
	return p, true
}

// Upload is a stored upload before it is recorded in the database.
type Upload struct {
	AbsPath  string
	RelPath  string
	URL      string
	Metadata metadata.Info
}

// SaveUpload writes r to the owner's folder under the media root, picking a
// unique name when the file already exists.
func (l *Library) SaveUpload(owner, filename string, r io.Reader) (*Upload, error) {
	if !l.extractor.IsAudioFile(filename) {
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Ext(filename))
	}

	safeName := fileutil.SanitizeName(filepath.Base(filename), 200)
	if safeName == "" || safeName == "." || strings.HasPrefix(safeName, ".") {
		safeName = "uploaded_file" + strings.ToLower(filepath.Ext(filename))
	}

	dir := filepath.Join(l.root, ownerFolder(owner))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload folder: %w", err)
	}
	dest := fileutil.UniquePath(filepath.Join(dir, safeName))

	out, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to create destination file: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(dest)
		return nil, fmt.Errorf("failed to save file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	rel, err := filepath.Rel(l.root, dest)
	if err != nil {
		return nil, err
	}
	publicURL, err := l.URLFor(dest)
	if err != nil {
		return nil, err
	}

	info, err := l.extractor.ExtractFromFile(dest)
	if err != nil {
		l.logger.WithError(err).WithField("file_path", dest).Warn("Failed to extract metadata from uploaded file")
	}

	return &Upload{
		AbsPath:  dest,
		RelPath:  filepath.ToSlash(rel),
		URL:      publicURL,
		Metadata: info,
	}, nil
}

// RemoveFile deletes a stored upload by its path relative to the media root.
func (l *Library) RemoveFile(relPath string) error {
	p, err := fileutil.Within(l.root, relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

func ownerFolder(owner string) string {
	name := fileutil.SanitizeName(owner, 64)
	name = strings.ReplaceAll(name, " ", "_")
	if name == "" || strings.Trim(name, ".") == "" {
		name = "anonymous"
	}
	return "user_" + name
}
