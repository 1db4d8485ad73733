package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trackmix/pkg/models"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Database wraps a *sql.DB providing higher-level helper methods for
// projects and uploaded media. It is safe for concurrent use because the
// underlying *sql.DB is concurrency-safe.
type Database struct {
	conn   *sql.DB
	logger *logrus.Logger

	getProjectStmt   *sql.Stmt
	getMediaFileStmt *sql.Stmt
}

// NewDatabase opens (or creates) a SQLite database at the provided path and
// ensures all required tables and indices exist. Caller should Close() it
// when finished.
func NewDatabase(dbPath string, maxConns int, logger *logrus.Logger) (*Database, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?cache=shared&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if maxConns < 1 {
		maxConns = 1
	}
	conn.SetMaxOpenConns(maxConns)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=memory;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	db := &Database{
		conn:   conn,
		logger: logger,
	}

	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := db.prepareStatements(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("Database initialized successfully")
	return db, nil
}

// createTables is idempotent and safe to call multiple times.
func (db *Database) createTables() error {
	projectsTable := `
	CREATE TABLE IF NOT EXISTS projects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		owner TEXT NOT NULL DEFAULT '',
		project_json TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`

	mediaFilesTable := `
	CREATE TABLE IF NOT EXISTS media_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner TEXT NOT NULL DEFAULT '',
		filename TEXT NOT NULL,
		title TEXT,
		file_path TEXT NOT NULL UNIQUE,
		url TEXT NOT NULL,
		duration_ms INTEGER DEFAULT 0,
		file_size INTEGER DEFAULT 0,
		uploaded_at DATETIME NOT NULL
	);`

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner);",
		"CREATE INDEX IF NOT EXISTS idx_media_files_owner ON media_files(owner);",
		"CREATE INDEX IF NOT EXISTS idx_media_files_url ON media_files(url);",
	}

	for _, table := range []string{projectsTable, mediaFilesTable} {
		if _, err := db.conn.Exec(table); err != nil {
			return err
		}
	}
	for _, index := range indices {
		if _, err := db.conn.Exec(index); err != nil {
			return err
		}
	}
	return nil
}

func (db *Database) prepareStatements() error {
	var err error

	db.getProjectStmt, err = db.conn.Prepare(`
		SELECT id, uuid, title, owner, project_json, created_at, updated_at
		FROM projects WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get project statement: %w", err)
	}

	db.getMediaFileStmt, err = db.conn.Prepare(`
		SELECT id, owner, filename, COALESCE(title, ''), file_path, url, duration_ms, file_size, uploaded_at
		FROM media_files WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get media file statement: %w", err)
	}

	return nil
}

// Close closes the prepared statements and the database connection.
func (db *Database) Close() error {
	for _, stmt := range []*sql.Stmt{db.getProjectStmt, db.getMediaFileStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return db.conn.Close()
}

// Ping verifies the database is reachable.
func (db *Database) Ping() error {
	return db.conn.Ping()
}

// CreateProject stores a new project and returns it with its ID and UUID set.
// An empty timeline is stored as an empty object.
func (db *Database) CreateProject(title, owner string, timeline json.RawMessage) (*models.Project, error) {
	if len(timeline) == 0 {
		timeline = json.RawMessage(`{}`)
	}
	now := time.Now().UTC()
	project := &models.Project{
		UUID:      uuid.New().String(),
		Title:     title,
		Owner:     owner,
		Timeline:  timeline,
		CreatedAt: now,
		UpdatedAt: now,
	}

	result, err := db.conn.Exec(`
		INSERT INTO projects (uuid, title, owner, project_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		project.UUID, project.Title, project.Owner, string(project.Timeline), project.CreatedAt, project.UpdatedAt)
	if err != nil {
		db.logger.WithError(err).WithField("title", title).Error("Failed to insert project")
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	project.ID = int(id)
	return project, nil
}

// GetProject returns a project by ID or ErrNotFound.
func (db *Database) GetProject(id int) (*models.Project, error) {
	project, err := scanProject(db.getProjectStmt.QueryRow(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %d: %w", id, ErrNotFound)
	}
	return project, err
}

// ListProjects returns projects ordered by most recently updated. An empty
// owner lists every project.
func (db *Database) ListProjects(owner string) ([]models.Project, error) {
	query := `
		SELECT id, uuid, title, owner, project_json, created_at, updated_at
		FROM projects`
	var args []any
	if owner != "" {
		query += " WHERE owner = ?"
		args = append(args, owner)
	}
	query += " ORDER BY updated_at DESC, id DESC"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *project)
	}
	return projects, rows.Err()
}

// UpdateProject replaces the title and/or timeline of a project. Nil
// arguments leave the stored value untouched.
func (db *Database) UpdateProject(id int, title *string, timeline json.RawMessage) (*models.Project, error) {
	project, err := db.GetProject(id)
	if err != nil {
		return nil, err
	}
	if title != nil {
		project.Title = *title
	}
	if timeline != nil {
		project.Timeline = timeline
	}
	project.UpdatedAt = time.Now().UTC()

	_, err = db.conn.Exec(`
		UPDATE projects SET title = ?, project_json = ?, updated_at = ?
		WHERE id = ?`,
		project.Title, string(project.Timeline), project.UpdatedAt, id)
	if err != nil {
		db.logger.WithError(err).WithField("project_id", id).Error("Failed to update project")
		return nil, err
	}
	return project, nil
}

// DeleteProject removes a project.
func (db *Database) DeleteProject(id int) error {
	result, err := db.conn.Exec("DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("project %d: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*models.Project, error) {
	var p models.Project
	var timeline string
	if err := row.Scan(&p.ID, &p.UUID, &p.Title, &p.Owner, &timeline, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Timeline = json.RawMessage(timeline)
	return &p, nil
}

// InsertMediaFile stores an uploaded file record and sets its ID.
func (db *Database) InsertMediaFile(file *models.MediaFile) error {
	if file.UploadedAt.IsZero() {
		file.UploadedAt = time.Now().UTC()
	}
	result, err := db.conn.Exec(`
		INSERT INTO media_files (owner, filename, title, file_path, url, duration_ms, file_size, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		file.Owner, file.Filename, file.Title, file.FilePath, file.URL, file.DurationMs, file.FileSize, file.UploadedAt)
	if err != nil {
		db.logger.WithError(err).WithField("file_path", file.FilePath).Error("Failed to insert media file")
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	file.ID = int(id)
	return nil
}

// GetMediaFile returns an uploaded file record by ID or ErrNotFound.
func (db *Database) GetMediaFile(id int) (*models.MediaFile, error) {
	file, err := scanMediaFile(db.getMediaFileStmt.QueryRow(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("media file %d: %w", id, ErrNotFound)
	}
	return file, err
}

// ListMediaFiles returns uploads, newest first. An empty owner lists all.
func (db *Database) ListMediaFiles(owner string) ([]models.MediaFile, error) {
	query := `
		SELECT id, owner, filename, COALESCE(title, ''), file_path, url, duration_ms, file_size, uploaded_at
		FROM media_files`
	var args []any
	if owner != "" {
		query += " WHERE owner = ?"
		args = append(args, owner)
	}
	query += " ORDER BY uploaded_at DESC, id DESC"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := []models.MediaFile{}
	for rows.Next() {
		file, err := scanMediaFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *file)
	}
	return files, rows.Err()
}

// CountMediaFiles returns how many uploads an owner has.
func (db *Database) CountMediaFiles(owner string) (int, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM media_files WHERE owner = ?", owner).Scan(&n)
	return n, err
}

// DeleteMediaFile removes an upload record.
func (db *Database) DeleteMediaFile(id int) error {
	result, err := db.conn.Exec("DELETE FROM media_files WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("media file %d: %w", id, ErrNotFound)
	}
	return nil
}

func scanMediaFile(row rowScanner) (*models.MediaFile, error) {
	var f models.MediaFile
	if err := row.Scan(&f.ID, &f.Owner, &f.Filename, &f.Title, &f.FilePath, &f.URL, &f.DurationMs, &f.FileSize, &f.UploadedAt); err != nil {
		return nil, err
	}
	return &f, nil
}
