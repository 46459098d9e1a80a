package memory

import (
	"context"
	"time"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/persistence"
)

type runRepository struct {
	access access
}

func (r *runRepository) Create(_ context.Context, run *models.WorkflowRun) error {
	return r.access(func(st *state) error {
		for _, existing := range st.runs {
			if existing.IdempotencyKey == run.IdempotencyKey {
				return persistence.NewEntityError("Create", "workflow_run", run.IdempotencyKey, persistence.ErrWorkflowRunAlreadyExists)
			}
		}

		st.seq++
		st.runs[run.ID] = *run
		st.runSeq[run.ID] = st.seq
		st.touch()

		return nil
	})
}

func (r *runRepository) ByID(_ context.Context, id string) (*models.WorkflowRun, error) {
	var found *models.WorkflowRun

	err := r.access(func(st *state) error {
		run, ok := st.runs[id]
		if !ok {
			return persistence.NewEntityError("ByID", "workflow_run", id, persistence.ErrWorkflowRunNotFound)
		}

		found = &run

		return nil
	})

	return found, err
}

func (r *runRepository) ByIdempotencyKey(_ context.Context, key string) (*models.WorkflowRun, error) {
	var found *models.WorkflowRun

	err := r.access(func(st *state) error {
		for _, run := range st.runs {
			if run.IdempotencyKey == key {
				found = &run

				return nil
			}
		}

		return persistence.NewEntityError("ByIdempotencyKey", "workflow_run", key, persistence.ErrWorkflowRunNotFound)
	})

	return found, err
}

func (r *runRepository) LatestByApplication(_ context.Context, applicationID string) (*models.WorkflowRun, error) {
	var found *models.WorkflowRun

	err := r.access(func(st *state) error {
		var latest int64

		for id, run := range st.runs {
			if run.ApplicationID != applicationID {
				continue
			}

			if seq := st.runSeq[id]; seq > latest {
				latest = seq
				found = &run
			}
		}

		if found == nil {
			return persistence.NewEntityError("LatestByApplication", "workflow_run", applicationID, persistence.ErrWorkflowRunNotFound)
		}

		return nil
	})

	return found, err
}

func (r *runRepository) Update(_ context.Context, run *models.WorkflowRun) error {
	return r.access(func(st *state) error {
		if _, ok := st.runs[run.ID]; !ok {
			return persistence.NewEntityError("Update", "workflow_run", run.ID, persistence.ErrWorkflowRunNotFound)
		}

		run.UpdatedAt = time.Now().UTC()
		st.runs[run.ID] = *run
		st.touch()

		return nil
	})
}

func (r *runRepository) Transition(_ context.Context, id string, from, to models.WorkflowStatus, step string) (bool, error) {
	moved := false

	err := r.access(func(st *state) error {
		run, ok := st.runs[id]
		if !ok {
			return persistence.NewEntityError("Transition", "workflow_run", id, persistence.ErrWorkflowRunNotFound)
		}

		if run.Status != from {
			return nil
		}

		now := time.Now().UTC()
		run.Status = to
		run.CurrentStep = step
		run.UpdatedAt = now

		if to.IsTerminal() {
			run.CompletedAt = &now
		}

		st.runs[id] = run
		moved = true
		st.touch()

		return nil
	})

	return moved, err
}
