// Package persistence provides the storage abstraction for workflow runs, timers and the
// entities the workflow reads and mutates.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/applyflow/pkg/models"
)

// WorkflowRunRepository stores WorkflowRun records. Runs are never deleted.
type WorkflowRunRepository interface {
	// Create inserts a run. It returns ErrWorkflowRunAlreadyExists when the idempotency key is taken.
	Create(ctx context.Context, run *models.WorkflowRun) error
	ByID(ctx context.Context, id string) (*models.WorkflowRun, error)
	ByIdempotencyKey(ctx context.Context, key string) (*models.WorkflowRun, error)
	// LatestByApplication returns the most recently created run of an application.
	LatestByApplication(ctx context.Context, applicationID string) (*models.WorkflowRun, error)
	Update(ctx context.Context, run *models.WorkflowRun) error
	// Transition moves a run from one status to another only if it is still in from.
	// It reports whether the transition happened.
	Transition(ctx context.Context, id string, from, to models.WorkflowStatus, step string) (bool, error)
}

// TimerRepository stores ScheduledTimer records.
type TimerRepository interface {
	Create(ctx context.Context, timer *models.ScheduledTimer) error
	ByID(ctx context.Context, id string) (*models.ScheduledTimer, error)
	// Delete removes a timer; deleting a missing timer is not an error.
	Delete(ctx context.Context, id string) error
	// DeletePendingByTarget removes the non-executed timers of a target, optionally
	// restricted to some types, and returns how many were removed.
	DeletePendingByTarget(ctx context.Context, targetID string, types ...models.TimerType) (int64, error)
	PendingByTarget(ctx context.Context, targetID string) ([]*models.ScheduledTimer, error)
	// Due returns every dispatchable timer with ExecuteAt <= now, oldest first.
	Due(ctx context.Context, now time.Time) ([]*models.ScheduledTimer, error)
	// Claim leases up to limit due timers until now+lease and returns them.
	Claim(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*models.ScheduledTimer, error)
	MarkExecuted(ctx context.Context, id string, at time.Time) error
	// RecordFailure releases the lease, counts the attempt and quarantines the timer once
	// maxAttempts is reached (zero never quarantines). It returns the updated timer.
	RecordFailure(ctx context.Context, id, cause string, maxAttempts int, now time.Time) (*models.ScheduledTimer, error)
}

// ApplicationRepository stores applications.
type ApplicationRepository interface {
	Create(ctx context.Context, app *models.Application) error
	ByID(ctx context.Context, id string) (*models.Application, error)
	ByUserAndJob(ctx context.Context, userID, jobID string) (*models.Application, error)
	Update(ctx context.Context, app *models.Application) error
	Delete(ctx context.Context, id string) error
	// CountReferencingDocument counts applications whose resume or cover letter is documentID.
	CountReferencingDocument(ctx context.Context, documentID string) (int, error)
}

// JobRepository reads job listings and the per-user job status.
type JobRepository interface {
	ByID(ctx context.Context, id string) (*models.Job, error)
	// UserStatus returns UserJobStatusPending when the user never acted on the job.
	UserStatus(ctx context.Context, userID, jobID string) (models.UserJobStatus, error)
	SetUserStatus(ctx context.Context, userID, jobID string, status models.UserJobStatus) error
}

// DocumentRepository stores generated document rows.
type DocumentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	ByID(ctx context.Context, id string) (*models.Document, error)
	Delete(ctx context.Context, id string) error
}

// SettingsRepository stores automation settings and user profiles.
type SettingsRepository interface {
	ByUser(ctx context.Context, userID string) (*models.AutomationSettings, error)
	Save(ctx context.Context, settings *models.AutomationSettings) error
	Profile(ctx context.Context, userID string) (*models.UserProfile, error)
	SaveProfile(ctx context.Context, profile *models.UserProfile) error
}

// FollowUpRepository stores follow-up tracking rows.
type FollowUpRepository interface {
	ByApplication(ctx context.Context, applicationID string) (*models.FollowUpTracking, error)
	Save(ctx context.Context, tracking *models.FollowUpTracking) error
}

// Repositories bundles the repositories of one unit of work.
type Repositories struct {
	Runs         WorkflowRunRepository
	Timers       TimerRepository
	Applications ApplicationRepository
	Jobs         JobRepository
	Documents    DocumentRepository
	Settings     SettingsRepository
	FollowUps    FollowUpRepository
}

// Persistence is a storage backend.
type Persistence interface {
	// Repositories returns repositories that run each call in its own implicit transaction.
	Repositories() *Repositories
	// Transact runs fn inside one transaction. The repositories handed to fn are only valid
	// during the call; fn's error rolls everything back.
	Transact(ctx context.Context, fn func(ctx context.Context, repos *Repositories) error) error
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// Transact is Persistence.Transact for functions that produce a value.
func Transact[T any](ctx context.Context, p Persistence, fn func(ctx context.Context, repos *Repositories) (T, error)) (T, error) {
	var result T

	err := p.Transact(ctx, func(ctx context.Context, repos *Repositories) error {
		var err error

		result, err = fn(ctx, repos)

		return err
	})
	if err != nil {
		var zero T

		return zero, err
	}

	return result, nil
}
