package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	aerrors "github.com/ella-systems/ella-agent/internal/errors"
)

// Project is the durable record of a project being assessed.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Stage       string    `json:"stage"`
	Confidence  int       `json:"confidence"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateProject inserts a new project. ID is generated if empty.
func (s *Store) CreateProject(ctx context.Context, p *Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Stage == "" {
		p.Stage = "planning"
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, description, stage, confidence, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.Stage, p.Confidence, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	s.logger.Info().Str("project", p.ID).Str("name", p.Name).Msg("project created")
	return nil
}

// GetProject returns a project by ID.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, stage, confidence, created_at, updated_at
		 FROM projects WHERE id = ?`, id)

	var p Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Stage, &p.Confidence, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %s: %w", id, aerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

// ListProjects returns all projects, newest first.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, stage, confidence, created_at, updated_at
		 FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Stage, &p.Confidence, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// UpdateProjectStage records a stage change.
func (s *Store) UpdateProjectStage(ctx context.Context, id, stage string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET stage = ?, updated_at = ? WHERE id = ?`,
		stage, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update stage: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %s: %w", id, aerrors.ErrNotFound)
	}
	return nil
}

// UpdateProjectConfidence records the latest readiness confidence.
func (s *Store) UpdateProjectConfidence(ctx context.Context, id string, confidence int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE projects SET confidence = ?, updated_at = ? WHERE id = ?`,
		confidence, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update confidence: %w", err)
	}
	return nil
}

// Artifact is a stage output attached to a project (a plan, a review
// summary, a test report).
type Artifact struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveArtifact appends an artifact to a project.
func (s *Store) SaveArtifact(ctx context.Context, a *Artifact) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, project_id, kind, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.ProjectID, a.Kind, a.Content, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	return nil
}

// ListArtifacts returns a project's artifacts in creation order.
func (s *Store) ListArtifacts(ctx context.Context, projectID string) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, kind, content, created_at
		 FROM artifacts WHERE project_id = ? ORDER BY created_at ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []Artifact
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Kind, &a.Content, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}
