package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	maxTitleLen       = 255
	maxProjectJSONLen = 8 << 20
)

// ValidationError represents a validation error with details
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationResult contains validation results
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// respondJSON writes v as JSON with the given status.
func (ms *MixServer) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		ms.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// respondWithValidationError sends a structured validation error response
func (ms *MixServer) respondWithValidationError(w http.ResponseWriter, r *http.Request, errors []ValidationError) {
	ms.logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"errors": errors,
	}).Warn("Validation failed")

	ms.respondJSON(w, http.StatusBadRequest, ValidationResult{
		Valid:  false,
		Errors: errors,
	})
}

// respondWithError sends a structured error response
func (ms *MixServer) respondWithError(w http.ResponseWriter, r *http.Request, statusCode int, message string, err error) {
	logEntry := ms.logger.WithFields(logrus.Fields{
		"method":      r.Method,
		"path":        r.URL.Path,
		"status_code": statusCode,
		"message":     message,
	})

	if err != nil {
		logEntry = logEntry.WithError(err)
	}

	if statusCode >= 500 {
		logEntry.Error("Server error")
	} else {
		logEntry.Warn("Client error")
	}

	ms.respondJSON(w, statusCode, map[string]any{
		"error":   message,
		"code":    statusCode,
		"success": false,
	})
}

// validateID parses a positive integer path value.
func validateID(raw, field string) (int, *ValidationError) {
	if raw == "" {
		return 0, &ValidationError{
			Field:   field,
			Message: "ID cannot be empty",
			Code:    "EMPTY_ID",
		}
	}

	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ValidationError{
			Field:   field,
			Message: "ID must be a valid integer",
			Code:    "INVALID_ID_FORMAT",
		}
	}

	if id <= 0 {
		return 0, &ValidationError{
			Field:   field,
			Message: "ID must be positive",
			Code:    "INVALID_ID_VALUE",
		}
	}

	return id, nil
}

// validateTitle validates a project title
func validateTitle(title string) *ValidationError {
	if title == "" {
		return &ValidationError{
			Field:   "title",
			Message: "Title is required",
			Code:    "MISSING_TITLE",
		}
	}

	if len(title) > maxTitleLen {
		return &ValidationError{
			Field:   "title",
			Message: "Title too long (max 255 characters)",
			Code:    "TITLE_TOO_LONG",
		}
	}

	if strings.ContainsAny(title, "\x00\n\r") {
		return &ValidationError{
			Field:   "title",
			Message: "Title contains invalid characters",
			Code:    "INVALID_TITLE_CHARACTERS",
		}
	}

	return nil
}

// validateProjectJSON accepts a JSON object (or nothing) as project data.
func validateProjectJSON(raw json.RawMessage) *ValidationError {
	if len(raw) > maxProjectJSONLen {
		return &ValidationError{
			Field:   "project_json",
			Message: "Project data too large",
			Code:    "PROJECT_TOO_LARGE",
		}
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return &ValidationError{
			Field:   "project_json",
			Message: "Project data must be a JSON object",
			Code:    "INVALID_PROJECT_JSON",
		}
	}

	return nil
}

// sanitizeInput sanitizes user input to prevent injection attacks
func sanitizeInput(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}
