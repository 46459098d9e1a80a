// Package memory provides a transactional in-memory persistence backend.
// It is safe for concurrent use and intended for tests and local development.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/dukex/applyflow/pkg/models"
	"github.com/dukex/applyflow/pkg/persistence"
)

var _ persistence.Persistence = (*Persistence)(nil)

type state struct {
	runs      map[string]models.WorkflowRun
	runSeq    map[string]int64
	timers    map[string]*models.ScheduledTimer
	apps      map[string]models.Application
	jobs      map[string]models.Job
	jobStatus map[string]models.UserJobStatus
	docs      map[string]models.Document
	settings  map[string]models.AutomationSettings
	profiles  map[string]models.UserProfile
	followUps map[string]models.FollowUpTracking
	seq       int64

	// dirty is set by writes so committed changes can be handed to the commit hook.
	dirty bool
}

func (s *state) touch() {
	s.dirty = true
}

func newState() *state {
	return &state{
		runs:      make(map[string]models.WorkflowRun),
		runSeq:    make(map[string]int64),
		timers:    make(map[string]*models.ScheduledTimer),
		apps:      make(map[string]models.Application),
		jobs:      make(map[string]models.Job),
		jobStatus: make(map[string]models.UserJobStatus),
		docs:      make(map[string]models.Document),
		settings:  make(map[string]models.AutomationSettings),
		profiles:  make(map[string]models.UserProfile),
		followUps: make(map[string]models.FollowUpTracking),
	}
}

func (s *state) clone() *state {
	timers := make(map[string]*models.ScheduledTimer, len(s.timers))
	for id, timer := range s.timers {
		timers[id] = timer.Clone()
	}

	return &state{
		runs:      maps.Clone(s.runs),
		runSeq:    maps.Clone(s.runSeq),
		timers:    timers,
		apps:      maps.Clone(s.apps),
		jobs:      maps.Clone(s.jobs),
		jobStatus: maps.Clone(s.jobStatus),
		docs:      maps.Clone(s.docs),
		settings:  maps.Clone(s.settings),
		profiles:  maps.Clone(s.profiles),
		followUps: maps.Clone(s.followUps),
		seq:       s.seq,
	}
}

// access runs fn against a state. Outside a transaction it takes the store lock;
// inside one the lock is already held by Transact.
type access func(fn func(st *state) error) error

// CommitFunc receives the store content after every committed write. Its error is returned
// to the writer; inside a transaction it also discards the transaction.
type CommitFunc func(snapshot *Snapshot) error

// Persistence implements persistence.Persistence in memory.
type Persistence struct {
	mu     sync.Mutex
	st     *state
	commit CommitFunc
}

// NewPersistence returns an empty in-memory store.
func NewPersistence() *Persistence {
	return &Persistence{st: newState()}
}

// Restore returns a store holding snapshot. commit may be nil.
func Restore(snapshot *Snapshot, commit CommitFunc) *Persistence {
	st := newState()
	if snapshot != nil {
		st = snapshot.state()
	}

	return &Persistence{st: st, commit: commit}
}

func (p *Persistence) locked(fn func(st *state) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := fn(p.st)
	if err != nil || !p.st.dirty {
		p.st.dirty = false

		return err
	}

	p.st.dirty = false

	return p.publish(p.st)
}

func (p *Persistence) publish(st *state) error {
	if p.commit == nil {
		return nil
	}

	return p.commit(st.snapshot())
}

// Snapshot copies the current content of the store.
func (p *Persistence) Snapshot() *Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.st.snapshot()
}

// Repositories returns repositories that lock the store per call.
func (p *Persistence) Repositories() *persistence.Repositories {
	return newRepositories(p.locked)
}

// Transact runs fn against a copy of the store and publishes the copy only when fn succeeds.
// Transactions are serialized. fn must not use the non-transactional repositories.
func (p *Persistence) Transact(ctx context.Context, fn func(ctx context.Context, repos *persistence.Repositories) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx := p.st.clone()

	err := fn(ctx, newRepositories(func(fn func(st *state) error) error { return fn(tx) }))
	if err != nil {
		return err
	}

	if tx.dirty {
		tx.dirty = false

		err = p.publish(tx)
		if err != nil {
			return err
		}
	}

	p.st = tx

	return nil
}

// HealthCheck always succeeds.
func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// AddJob stores a job listing. Job listings are owned by the CRUD layer; this exists for
// seeding development and test stores.
func (p *Persistence) AddJob(job models.Job) {
	_ = p.locked(func(st *state) error {
		st.jobs[job.ID] = job

		return nil
	})
}

func newRepositories(a access) *persistence.Repositories {
	return &persistence.Repositories{
		Runs:         &runRepository{access: a},
		Timers:       &timerRepository{access: a},
		Applications: &applicationRepository{access: a},
		Jobs:         &jobRepository{access: a},
		Documents:    &documentRepository{access: a},
		Settings:     &settingsRepository{access: a},
		FollowUps:    &followUpRepository{access: a},
	}
}
