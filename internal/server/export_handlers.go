package server

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"time"

	"trackmix/internal/encoder"
	"trackmix/internal/export"
	"trackmix/internal/mixdown"
	"trackmix/internal/timeline"

	"github.com/sirupsen/logrus"
)

const (
	skippedHeader  = "X-Mixdown-Skipped"
	durationHeader = "X-Mixdown-Duration-Ms"
)

// handleExportProject mixes a project and sends it as a download.
func (ms *MixServer) handleExportProject(w http.ResponseWriter, r *http.Request) {
	out, ok := ms.runExport(w, r)
	if !ok {
		return
	}

	w.Header().Set("ETag", out.ETag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == out.ETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": out.Filename})
	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	w.Header().Set(skippedHeader, strconv.Itoa(len(out.Report.Skipped())))
	w.Header().Set(durationHeader, strconv.FormatInt(out.DurationMs, 10))
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(out.Data); err != nil {
		ms.logger.WithError(err).WithField("filename", out.Filename).Warn("Client went away during export download")
	}
}

type exportReport struct {
	Filename   string                `json:"filename"`
	DurationMs int64                 `json:"durationMs"`
	Bytes      int                   `json:"bytes"`
	Mixed      int                   `json:"mixed"`
	Skipped    int                   `json:"skipped"`
	Clips      []mixdown.ClipOutcome `json:"clips"`
	Warnings   []timeline.Warning    `json:"warnings"`
}

// handleExportReport mixes a project and returns what happened to each clip
// instead of the audio.
func (ms *MixServer) handleExportReport(w http.ResponseWriter, r *http.Request) {
	out, ok := ms.runExport(w, r)
	if !ok {
		return
	}

	clips := out.Report.Outcomes
	if clips == nil {
		clips = []mixdown.ClipOutcome{}
	}
	warnings := out.Warnings
	if warnings == nil {
		warnings = []timeline.Warning{}
	}

	ms.respondJSON(w, http.StatusOK, exportReport{
		Filename:   out.Filename,
		DurationMs: out.DurationMs,
		Bytes:      len(out.Data),
		Mixed:      len(out.Report.Mixed()),
		Skipped:    len(out.Report.Skipped()),
		Clips:      clips,
		Warnings:   warnings,
	})
}

func (ms *MixServer) runExport(w http.ResponseWriter, r *http.Request) (*export.Export, bool) {
	project, ok := ms.loadProject(w, r)
	if !ok {
		return nil, false
	}

	ctx := r.Context()
	if ms.config.Server.ExportTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(ms.config.Server.ExportTimeout)*time.Second)
		defer cancel()
	}

	out, err := ms.exporter.ExportProject(ctx, project.ID)
	if err != nil {
		ms.respondExportError(w, r, project.ID, err)
		return nil, false
	}
	return out, true
}

func (ms *MixServer) respondExportError(w http.ResponseWriter, r *http.Request, id int, err error) {
	switch {
	case errors.Is(err, export.ErrProjectNotFound):
		ms.respondWithError(w, r, http.StatusNotFound, "Project not found", err)
	case errors.Is(err, export.ErrInvalidProject):
		ms.respondWithError(w, r, http.StatusUnprocessableEntity, "Project data is not a valid timeline", err)
	case errors.Is(err, encoder.ErrEncode):
		ms.respondWithError(w, r, http.StatusInternalServerError, "Failed to encode mixdown", err)
	case errors.Is(err, context.DeadlineExceeded):
		ms.respondWithError(w, r, http.StatusGatewayTimeout, "Export timed out", err)
	case errors.Is(err, context.Canceled):
		ms.logger.WithFields(logrus.Fields{
			"project_id": id,
			"path":       r.URL.Path,
		}).Info("Export cancelled by client")
	default:
		ms.respondWithError(w, r, http.StatusInternalServerError, "Export failed", err)
	}
}
