package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/persistence"
)

const applicationColumns = `
	id
  , user_id
  , job_id
  , stage
  , resume_id
  , cover_letter_id
  , applied_at
  , created_at
  , updated_at`

type applicationRepository struct {
	q querier
}

func (r *applicationRepository) Create(ctx context.Context, app *models.Application) error {
	query := `
		INSERT INTO applications (` + applicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.q.ExecContext(ctx, query,
		app.ID, app.UserID, app.JobID, app.Stage, app.ResumeID, app.CoverLetterID, app.AppliedAt, app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewEntityError("Create", "application", app.JobID, persistence.ErrApplicationAlreadyExists)
		}

		return fmt.Errorf("failed to insert application: %w", err)
	}

	return nil
}

func (r *applicationRepository) ByID(ctx context.Context, id string) (*models.Application, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)

	return oneApplication(row, "ByID", id)
}

func (r *applicationRepository) ByUserAndJob(ctx context.Context, userID, jobID string) (*models.Application, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE user_id = $1 AND job_id = $2`, userID, jobID)

	return oneApplication(row, "ByUserAndJob", jobID)
}

func (r *applicationRepository) Update(ctx context.Context, app *models.Application) error {
	app.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE applications
		SET stage = $2
		  , resume_id = $3
		  , cover_letter_id = $4
		  , applied_at = $5
		  , updated_at = $6
		WHERE id = $1
	`

	result, err := r.q.ExecContext(ctx, query, app.ID, app.Stage, app.ResumeID, app.CoverLetterID, app.AppliedAt, app.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update application: %w", err)
	}

	return requireAffected(result, "Update", "application", app.ID, persistence.ErrApplicationNotFound)
}

func (r *applicationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM applications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}

	return requireAffected(result, "Delete", "application", id, persistence.ErrApplicationNotFound)
}

func (r *applicationRepository) CountReferencingDocument(ctx context.Context, documentID string) (int, error) {
	var count int

	query := `SELECT COUNT(*) FROM applications WHERE resume_id = $1 OR cover_letter_id = $1`

	err := r.q.QueryRowContext(ctx, query, documentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count document references: %w", err)
	}

	return count, nil
}

func oneApplication(row scanner, op, id string) (*models.Application, error) {
	var (
		app                   models.Application
		resumeID, coverLetter sql.NullString
		appliedAt             sql.NullTime
	)

	err := row.Scan(&app.ID, &app.UserID, &app.JobID, &app.Stage, &resumeID, &coverLetter, &appliedAt, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError(op, "application", id, persistence.ErrApplicationNotFound)
		}

		return nil, fmt.Errorf("failed to scan application: %w", err)
	}

	app.ResumeID = nullString(resumeID)
	app.CoverLetterID = nullString(coverLetter)
	app.AppliedAt = nullTime(appliedAt)

	return &app, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}

	v := s.String

	return &v
}

type jobRepository struct {
	q querier
}

func (r *jobRepository) ByID(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job

	query := `SELECT id, title, company, apply_method, apply_target FROM jobs WHERE id = $1`

	err := r.q.QueryRowContext(ctx, query, id).Scan(&job.ID, &job.Title, &job.Company, &job.ApplyMethod, &job.ApplyTarget)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("ByID", "job", id, persistence.ErrJobNotFound)
		}

		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	return &job, nil
}

func (r *jobRepository) UserStatus(ctx context.Context, userID, jobID string) (models.UserJobStatus, error) {
	var status models.UserJobStatus

	query := `SELECT status FROM user_job_statuses WHERE user_id = $1 AND job_id = $2`

	err := r.q.QueryRowContext(ctx, query, userID, jobID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.UserJobStatusPending, nil
		}

		return "", fmt.Errorf("failed to read user job status: %w", err)
	}

	return status, nil
}

func (r *jobRepository) SetUserStatus(ctx context.Context, userID, jobID string, status models.UserJobStatus) error {
	query := `
		INSERT INTO user_job_statuses (user_id, job_id, status, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, job_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.q.ExecContext(ctx, query, userID, jobID, status)
	if err != nil {
		return fmt.Errorf("failed to save user job status: %w", err)
	}

	return nil
}

type documentRepository struct {
	q querier
}

func (r *documentRepository) Create(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (id, user_id, kind, storage_key, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.q.ExecContext(ctx, query, doc.ID, doc.UserID, doc.Kind, doc.StorageKey, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	return nil
}

func (r *documentRepository) ByID(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document

	query := `SELECT id, user_id, kind, storage_key, created_at FROM documents WHERE id = $1`

	err := r.q.QueryRowContext(ctx, query, id).Scan(&doc.ID, &doc.UserID, &doc.Kind, &doc.StorageKey, &doc.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("ByID", "document", id, persistence.ErrDocumentNotFound)
		}

		return nil, fmt.Errorf("failed to scan document: %w", err)
	}

	return &doc, nil
}

func (r *documentRepository) Delete(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	return nil
}
