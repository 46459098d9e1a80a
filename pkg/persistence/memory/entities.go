package memory

import (
	"context"
	"time"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/persistence"
)

type applicationRepository struct {
	access access
}

func (r *applicationRepository) Create(_ context.Context, app *models.Application) error {
	return r.access(func(st *state) error {
		for _, existing := range st.apps {
			if existing.UserID == app.UserID && existing.JobID == app.JobID {
				return persistence.NewEntityError("Create", "application", app.JobID, persistence.ErrApplicationAlreadyExists)
			}
		}

		st.apps[app.ID] = *app
		st.touch()

		return nil
	})
}

func (r *applicationRepository) ByID(_ context.Context, id string) (*models.Application, error) {
	var found *models.Application

	err := r.access(func(st *state) error {
		app, ok := st.apps[id]
		if !ok {
			return persistence.NewEntityError("ByID", "application", id, persistence.ErrApplicationNotFound)
		}

		found = &app

		return nil
	})

	return found, err
}

func (r *applicationRepository) ByUserAndJob(_ context.Context, userID, jobID string) (*models.Application, error) {
	var found *models.Application

	err := r.access(func(st *state) error {
		for _, app := range st.apps {
			if app.UserID == userID && app.JobID == jobID {
				found = &app

				return nil
			}
		}

		return persistence.NewEntityError("ByUserAndJob", "application", jobID, persistence.ErrApplicationNotFound)
	})

	return found, err
}

func (r *applicationRepository) Update(_ context.Context, app *models.Application) error {
	return r.access(func(st *state) error {
		if _, ok := st.apps[app.ID]; !ok {
			return persistence.NewEntityError("Update", "application", app.ID, persistence.ErrApplicationNotFound)
		}

		app.UpdatedAt = time.Now().UTC()
		st.apps[app.ID] = *app
		st.touch()

		return nil
	})
}

func (r *applicationRepository) Delete(_ context.Context, id string) error {
	return r.access(func(st *state) error {
		if _, ok := st.apps[id]; !ok {
			return persistence.NewEntityError("Delete", "application", id, persistence.ErrApplicationNotFound)
		}

		delete(st.apps, id)
		delete(st.followUps, id)
		st.touch()

		return nil
	})
}

func (r *applicationRepository) CountReferencingDocument(_ context.Context, documentID string) (int, error) {
	count := 0

	err := r.access(func(st *state) error {
		for _, app := range st.apps {
			if refersTo(app.ResumeID, documentID) || refersTo(app.CoverLetterID, documentID) {
				count++
			}
		}

		return nil
	})

	return count, err
}

func refersTo(ref *string, id string) bool {
	return ref != nil && *ref == id
}

type jobRepository struct {
	access access
}

func jobStatusKey(userID, jobID string) string {
	return userID + "/" + jobID
}

func (r *jobRepository) ByID(_ context.Context, id string) (*models.Job, error) {
	var found *models.Job

	err := r.access(func(st *state) error {
		job, ok := st.jobs[id]
		if !ok {
			return persistence.NewEntityError("ByID", "job", id, persistence.ErrJobNotFound)
		}

		found = &job

		return nil
	})

	return found, err
}

func (r *jobRepository) UserStatus(_ context.Context, userID, jobID string) (models.UserJobStatus, error) {
	status := models.UserJobStatusPending

	err := r.access(func(st *state) error {
		if s, ok := st.jobStatus[jobStatusKey(userID, jobID)]; ok {
			status = s
		}

		return nil
	})

	return status, err
}

func (r *jobRepository) SetUserStatus(_ context.Context, userID, jobID string, status models.UserJobStatus) error {
	return r.access(func(st *state) error {
		st.jobStatus[jobStatusKey(userID, jobID)] = status
		st.touch()

		return nil
	})
}

type documentRepository struct {
	access access
}

func (r *documentRepository) Create(_ context.Context, doc *models.Document) error {
	return r.access(func(st *state) error {
		st.docs[doc.ID] = *doc
		st.touch()

		return nil
	})
}

func (r *documentRepository) ByID(_ context.Context, id string) (*models.Document, error) {
	var found *models.Document

	err := r.access(func(st *state) error {
		doc, ok := st.docs[id]
		if !ok {
			return persistence.NewEntityError("ByID", "document", id, persistence.ErrDocumentNotFound)
		}

		found = &doc

		return nil
	})

	return found, err
}

func (r *documentRepository) Delete(_ context.Context, id string) error {
	return r.access(func(st *state) error {
		delete(st.docs, id)
		st.touch()

		return nil
	})
}

type settingsRepository struct {
	access access
}

func (r *settingsRepository) ByUser(_ context.Context, userID string) (*models.AutomationSettings, error) {
	var found *models.AutomationSettings

	err := r.access(func(st *state) error {
		settings, ok := st.settings[userID]
		if !ok {
			return persistence.NewEntityError("ByUser", "automation_settings", userID, persistence.ErrSettingsNotFound)
		}

		found = &settings

		return nil
	})

	return found, err
}

func (r *settingsRepository) Save(_ context.Context, settings *models.AutomationSettings) error {
	return r.access(func(st *state) error {
		st.settings[settings.UserID] = *settings
		st.touch()

		return nil
	})
}

func (r *settingsRepository) Profile(_ context.Context, userID string) (*models.UserProfile, error) {
	var found *models.UserProfile

	err := r.access(func(st *state) error {
		profile, ok := st.profiles[userID]
		if !ok {
			return persistence.NewEntityError("Profile", "user_profile", userID, persistence.ErrProfileNotFound)
		}

		found = &profile

		return nil
	})

	return found, err
}

func (r *settingsRepository) SaveProfile(_ context.Context, profile *models.UserProfile) error {
	return r.access(func(st *state) error {
		st.profiles[profile.UserID] = *profile
		st.touch()

		return nil
	})
}

type followUpRepository struct {
	access access
}

func (r *followUpRepository) ByApplication(_ context.Context, applicationID string) (*models.FollowUpTracking, error) {
	var found *models.FollowUpTracking

	err := r.access(func(st *state) error {
		tracking, ok := st.followUps[applicationID]
		if !ok {
			return persistence.NewEntityError("ByApplication", "follow_up_tracking", applicationID, persistence.ErrFollowUpNotFound)
		}

		found = &tracking

		return nil
	})

	return found, err
}

func (r *followUpRepository) Save(_ context.Context, tracking *models.FollowUpTracking) error {
	return r.access(func(st *state) error {
		st.followUps[tracking.ApplicationID] = *tracking
		st.touch()

		return nil
	})
}
