package memory

import (
	"maps"

	"github.com/dukex/applyflow/pkg/models"
)

// Snapshot is the serializable content of a store.
type Snapshot struct {
	Runs      map[string]models.WorkflowRun        `json:"runs"`
	RunSeq    map[string]int64                     `json:"run_seq"`
	Timers    map[string]*models.ScheduledTimer    `json:"timers"`
	Apps      map[string]models.Application        `json:"applications"`
	Jobs      map[string]models.Job                `json:"jobs"`
	JobStatus map[string]models.UserJobStatus      `json:"job_status"`
	Docs      map[string]models.Document           `json:"documents"`
	Settings  map[string]models.AutomationSettings `json:"settings"`
	Profiles  map[string]models.UserProfile        `json:"profiles"`
	FollowUps map[string]models.FollowUpTracking   `json:"follow_ups"`
	Seq       int64                                `json:"seq"`
}

func (s *state) snapshot() *Snapshot {
	c := s.clone()

	return &Snapshot{
		Runs:      c.runs,
		RunSeq:    c.runSeq,
		Timers:    c.timers,
		Apps:      c.apps,
		Jobs:      c.jobs,
		JobStatus: c.jobStatus,
		Docs:      c.docs,
		Settings:  c.settings,
		Profiles:  c.profiles,
		FollowUps: c.followUps,
		Seq:       c.seq,
	}
}

func (s *Snapshot) state() *state {
	st := newState()

	maps.Copy(st.runs, s.Runs)
	maps.Copy(st.runSeq, s.RunSeq)
	maps.Copy(st.apps, s.Apps)
	maps.Copy(st.jobs, s.Jobs)
	maps.Copy(st.jobStatus, s.JobStatus)
	maps.Copy(st.docs, s.Docs)
	maps.Copy(st.settings, s.Settings)
	maps.Copy(st.profiles, s.Profiles)
	maps.Copy(st.followUps, s.FollowUps)

	for id, timer := range s.Timers {
		st.timers[id] = timer.Clone()
	}

	st.seq = s.Seq

	return st
}
