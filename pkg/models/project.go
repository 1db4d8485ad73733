package models

import (
	"encoding/json"
	"time"
)

// Project is a saved multi-track editor project. Timeline holds the raw
// project JSON exactly as the editor stored it.
type Project struct {
	ID        int             `json:"id"`
	UUID      string          `json:"uuid"`
	Title     string          `json:"title"`
	Owner     string          `json:"owner"`
	Timeline  json.RawMessage `json:"project_json"`
	CreatedAt time.Time       `json:"created"`
	UpdatedAt time.Time       `json:"updated"`
}

// MediaFile is an uploaded audio file
type MediaFile struct {
	ID         int       `json:"id"`
	Owner      string    `json:"owner"`
	Filename   string    `json:"filename"`
	Title      string    `json:"title,omitempty"`
	FilePath   string    `json:"-"` // relative to the media root, never exposed
	URL        string    `json:"file_url"`
	DurationMs int64     `json:"durationMs"`
	FileSize   int64     `json:"fileSize"`
	UploadedAt time.Time `json:"uploaded"`
}

// Effect is a built-in sound clip shipped in the effects directory
type Effect struct {
	Name       string `json:"name"`
	File       string `json:"file"`
	DurationMs int64  `json:"durationMs"`
}
