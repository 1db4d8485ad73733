package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"trackmix/internal/database"
	"trackmix/pkg/models"

	"github.com/sirupsen/logrus"
)

type projectRequest struct {
	Title    *string         `json:"title"`
	Timeline json.RawMessage `json:"project_json"`
}

// handleListProjects returns the requesting owner's projects.
func (ms *MixServer) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := ms.db.ListProjects(ownerFrom(r))
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving projects", err)
		return
	}
	ms.respondJSON(w, http.StatusOK, projects)
}

// handleCreateProject creates a project (POST json title/project_json).
func (ms *MixServer) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	req, ok := ms.decodeProjectRequest(w, r)
	if !ok {
		return
	}

	var title string
	if req.Title != nil {
		title = sanitizeInput(*req.Title)
	}
	var problems []ValidationError
	if verr := validateTitle(title); verr != nil {
		problems = append(problems, *verr)
	}
	if verr := validateProjectJSON(req.Timeline); verr != nil {
		problems = append(problems, *verr)
	}
	if len(problems) > 0 {
		ms.respondWithValidationError(w, r, problems)
		return
	}

	project, err := ms.db.CreateProject(title, ownerFrom(r), normalizeTimeline(req.Timeline))
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error creating project", err)
		return
	}

	ms.logger.WithFields(logrus.Fields{
		"project_id": project.ID,
		"title":      project.Title,
		"owner":      project.Owner,
	}).Info("Project created")
	ms.respondJSON(w, http.StatusCreated, project)
}

// handleGetProject returns one project including its timeline.
func (ms *MixServer) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, ok := ms.loadProject(w, r)
	if !ok {
		return
	}
	ms.respondJSON(w, http.StatusOK, project)
}

// handleUpdateProject replaces the title and/or timeline of a project.
func (ms *MixServer) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	project, ok := ms.loadProject(w, r)
	if !ok {
		return
	}
	req, ok := ms.decodeProjectRequest(w, r)
	if !ok {
		return
	}

	var problems []ValidationError
	var title *string
	if req.Title != nil {
		t := sanitizeInput(*req.Title)
		if verr := validateTitle(t); verr != nil {
			problems = append(problems, *verr)
		}
		title = &t
	}
	if verr := validateProjectJSON(req.Timeline); verr != nil {
		problems = append(problems, *verr)
	}
	if len(problems) > 0 {
		ms.respondWithValidationError(w, r, problems)
		return
	}

	var timeline json.RawMessage
	if req.Timeline != nil {
		timeline = normalizeTimeline(req.Timeline)
	}

	updated, err := ms.db.UpdateProject(project.ID, title, timeline)
	if err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error updating project", err)
		return
	}
	ms.exporter.Invalidate(project.ID)
	ms.respondJSON(w, http.StatusOK, updated)
}

// handleDeleteProject removes a project.
func (ms *MixServer) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	project, ok := ms.loadProject(w, r)
	if !ok {
		return
	}

	if err := ms.db.DeleteProject(project.ID); err != nil {
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error deleting project", err)
		return
	}
	ms.exporter.Invalidate(project.ID)

	ms.logger.WithField("project_id", project.ID).Info("Project deleted")
	ms.respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Project deleted successfully",
	})
}

// loadProject resolves the {id} path value to a project the requester may
// see. It writes the error response itself.
func (ms *MixServer) loadProject(w http.ResponseWriter, r *http.Request) (*models.Project, bool) {
	id, verr := validateID(r.PathValue("id"), "project_id")
	if verr != nil {
		ms.respondWithValidationError(w, r, []ValidationError{*verr})
		return nil, false
	}

	project, err := ms.db.GetProject(id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			ms.respondWithError(w, r, http.StatusNotFound, "Project not found", nil)
			return nil, false
		}
		ms.respondWithError(w, r, http.StatusInternalServerError, "Error retrieving project", err)
		return nil, false
	}

	if !canAccess(project.Owner, ownerFrom(r)) {
		ms.respondWithError(w, r, http.StatusNotFound, "Project not found", nil)
		return nil, false
	}
	return project, true
}

func (ms *MixServer) decodeProjectRequest(w http.ResponseWriter, r *http.Request) (*projectRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxProjectJSONLen+64*1024)
	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ms.respondWithError(w, r, http.StatusBadRequest, "Invalid JSON", err)
		return nil, false
	}
	return &req, true
}

// canAccess lets anonymous requests and unowned resources through;
// otherwise the requester must be the owner.
func canAccess(resourceOwner, requester string) bool {
	return requester == "" || resourceOwner == "" || resourceOwner == requester
}

func normalizeTimeline(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(trimmed)
}
