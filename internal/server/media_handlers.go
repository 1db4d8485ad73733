package server

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"trackmix/internal/database"
	"trackmix/internal/fileutil"
	"trackmix/pkg/models"

	"github.com/sirupsen/logrus"
)

// handleListEffects returns the built-in effect clips.
func (ms *MixServer) handleListEffects(w http.ResponseWriter, r *http.Request) {
	effects := []models.Effect{}
	if ms.catalog != nil {
		effects = ms.catalog.List()
	}
	ms.respondJSON(w, http.StatusOK, effects)
}

// handleUploadMedia stores a multipart upload in the owner's folder and
// records it.
func (ms *MixServer) handleUploadMedia(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	if owner == "" {
		ms.respondWithError(w, r, http.StatusUnauthorized, "Authentication required", nil)
		return
	}

	if limit := ms.config.Media.MaxUploadsPerOwner; limit > 0 {
		count, err := ms.db.CountMediaFiles(owner)
		if err != nil {
			ms.respondWithError(w, r, http.StatusInternalServerError, "Error checking upload limit", err)
			return
		}
		if count >= limit {
			ms.respondWithError(w, r, http.StatusBadRequest, "Upload limit reached. Delete an existing file first.", nil)
			return
		}
	}

	maxSize := ms.config.Media.MaxUploadSizeMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+1024*1024)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		ms.respondWithError(w, r, http.StatusBadRequest, "Failed to parse upload form", err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		ms.respondWithError(w, r, http.StatusBadRequest, "No file uploaded", err)
		return
	}
	defer file.Close()

	if header.Size > maxSize {
		ms.respondWithError(w, r, http.StatusRequestEntityTooLarge, "File too large", nil)
		return
	}
	if !ms.library.Extractor().IsAudioFile(header.Filename) {
		ms.respondWithError(w, r, http.StatusBadRequest,
			"Invalid file type. Supported formats: "+strings.Join(ms.config.Media.SupportedFormats, ", "), nil)
		return
	}

	upload, err := ms.library.SaveUpload(owner, header.Filename, file)
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Failed to save file", err)
		return
	}

	display := sanitizeInput(r.FormValue("filename"))
	if display == "" {
		display = filepath.Base(upload.AbsPath)
	}
	record := &models.MediaFile{
		Owner:      owner,
		Filename:   fileutil.SanitizeName(display, 255),
		Title:      upload.Metadata.Title,
		FilePath:   upload.RelPath,
		URL:        upload.URL,
		DurationMs: upload.Metadata.DurationMs,
		FileSize:   upload.Metadata.FileSize,
	}
	if err := ms.db.InsertMediaFile(record); err != nil {
		if rmErr := ms.library.RemoveFile(upload.RelPath); rmErr != nil {
			ms.logger.WithError(rmErr).WithField("file_path", upload.RelPath).Warn("Failed to clean up upload")
		}
		ms.respondWithError(w, r, http.StatusInternalServerError, "Failed to record upload", err)
		return
	}

	ms.logger.WithFields(logrus.Fields{
		"owner":       owner,
		"media_id":    record.ID,
		"filename":    record.Filename,
		"file_url":    record.URL,
		"duration_ms": record.DurationMs,
	}).Info("File uploaded and added to library")

	ms.respondJSON(w, http.StatusCreated, record)
}

// handleListMedia returns the requester's uploads.
func (ms *MixServer) handleListMedia(w http.ResponseWriter, r *http.Request) {
	files, err := ms.db.ListMediaFiles(ownerFrom(r))
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving uploads", err)
		return
	}
	ms.respondJSON(w, http.StatusOK, files)
}

// handleDeleteMedia deletes an upload record and its file. Only the owner
// may delete.
func (ms *MixServer) handleDeleteMedia(w http.ResponseWriter, r *http.Request) {
	id, verr := validateID(r.PathValue("id"), "media_id")
	if verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return
	}

	file, err := ms.db.GetMediaFile(id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			ms.respondWithError(w, r, http.StatusNotFound, "File not found", nil)
			return
		}
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving file", err)
		return
	}

	owner := ownerFrom(r)
	if owner == "" || file.Owner != owner {
		ms.respondWithError(w, r, http.StatusForbidden, "Only the owner can delete this file", nil)
		return
	}

	if err := ms.library.RemoveFile(file.FilePath); err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Failed to delete file", err)
		return
	}
	if err := ms.db.DeleteMediaFile(id); err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Failed to delete file record", err)
		return
	}

	ms.logger.WithFields(logrus.Fields{
		"owner":    owner,
		"media_id": id,
	}).Info("Upload deleted")
	ms.respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "File deleted successfully",
	})
}

// handleServeMedia serves files below the media root, with Range support.
func (ms *MixServer) handleServeMedia(w http.ResponseWriter, r *http.Request) {
	p, err := ms.library.PathForURL(r.URL.Path)
	if err != nil || !fileutil.IsRegularFile(p) {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", ms.library.Extractor().GetContentType(p))
	w.Header().Set("Accept-Ranges", "bytes")
	http.ServeFile(w, r, p)
}
