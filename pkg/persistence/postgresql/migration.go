package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE jobs (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				company TEXT NOT NULL DEFAULT '',
				apply_method VARCHAR(50) NOT NULL DEFAULT '',
				apply_target TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE user_job_statuses (
				user_id TEXT NOT NULL,
				job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
				status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'accepted', 'rejected')),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (user_id, job_id)
			);

			CREATE TABLE documents (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				kind VARCHAR(20) NOT NULL CHECK (kind IN ('resume', 'cover_letter')),
				storage_key TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE applications (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				job_id TEXT NOT NULL REFERENCES jobs(id),
				stage VARCHAR(50) NOT NULL,
				resume_id TEXT REFERENCES documents(id) ON DELETE SET NULL,
				cover_letter_id TEXT REFERENCES documents(id) ON DELETE SET NULL,
				applied_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (user_id, job_id)
			);

			CREATE INDEX idx_applications_resume_id ON applications(resume_id);
			CREATE INDEX idx_applications_cover_letter_id ON applications(cover_letter_id);

			-- Runs outlive their application so rollbacks keep an audit trail.
			CREATE TABLE workflow_runs (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				application_id TEXT NOT NULL,
				idempotency_key TEXT NOT NULL UNIQUE,
				status VARCHAR(50) NOT NULL,
				current_step VARCHAR(50) NOT NULL,
				metadata JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_runs_application ON workflow_runs(application_id, created_at DESC);

			CREATE TABLE scheduled_timers (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				type VARCHAR(50) NOT NULL CHECK (type IN ('auto_apply_delay', 'cv_verification', 'message_verification', 'doc_deletion', 'follow_up_reminder')),
				target_id TEXT NOT NULL,
				execute_at TIMESTAMP WITH TIME ZONE NOT NULL,
				executed BOOLEAN NOT NULL DEFAULT false,
				executed_at TIMESTAMP WITH TIME ZONE,
				metadata JSONB NOT NULL DEFAULT '{}',
				attempts INT NOT NULL DEFAULT 0,
				last_error TEXT NOT NULL DEFAULT '',
				locked_until TIMESTAMP WITH TIME ZONE,
				quarantined_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_scheduled_timers_due ON scheduled_timers(execute_at)
				WHERE executed = false AND quarantined_at IS NULL;
			CREATE INDEX idx_scheduled_timers_target ON scheduled_timers(target_id)
				WHERE executed = false;

			CREATE TABLE automation_settings (
				user_id TEXT PRIMARY KEY,
				generate_resume BOOLEAN NOT NULL,
				verify_resume BOOLEAN NOT NULL,
				generate_cover_letter BOOLEAN NOT NULL,
				verify_cover_letter BOOLEAN NOT NULL,
				auto_apply BOOLEAN NOT NULL,
				auto_apply_delay_ms BIGINT NOT NULL,
				verification_window_ms BIGINT NOT NULL,
				follow_up_enabled BOOLEAN NOT NULL,
				auto_follow_up_email BOOLEAN NOT NULL,
				follow_up_interval_ms BIGINT NOT NULL,
				base_resume_ref TEXT NOT NULL DEFAULT ''
			);

			CREATE TABLE user_profiles (
				user_id TEXT PRIMARY KEY,
				full_name TEXT NOT NULL,
				email TEXT NOT NULL,
				phone TEXT NOT NULL DEFAULT '',
				location TEXT NOT NULL DEFAULT '',
				linkedin_url TEXT NOT NULL DEFAULT ''
			);

			CREATE TABLE follow_up_tracking (
				application_id TEXT PRIMARY KEY REFERENCES applications(id) ON DELETE CASCADE,
				user_id TEXT NOT NULL,
				follow_up_count INT NOT NULL DEFAULT 0,
				last_follow_up_at TIMESTAMP WITH TIME ZONE
			);
		`,
		2: `
			CREATE TABLE idempotency_keys (
				user_id TEXT NOT NULL,
				key TEXT NOT NULL,
				request_hash TEXT NOT NULL,
				status_code INT NOT NULL DEFAULT 0,
				content_type TEXT NOT NULL DEFAULT '',
				response BYTEA,
				expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (user_id, key)
			);

			CREATE INDEX idx_idempotency_keys_expires_at ON idempotency_keys(expires_at);
		`,
	}
}
