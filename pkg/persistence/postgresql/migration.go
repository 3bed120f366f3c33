package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE journeys (
				id VARCHAR(255) PRIMARY KEY,
				organization_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'active', 'paused', 'archived')),
				created_by VARCHAR(255),
				published_version_id VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_journeys_organization_status ON journeys(organization_id, status);

			CREATE TABLE journey_versions (
				id VARCHAR(255) PRIMARY KEY,
				journey_id VARCHAR(255) NOT NULL REFERENCES journeys(id) ON DELETE CASCADE,
				organization_id VARCHAR(255) NOT NULL,
				number INT NOT NULL DEFAULT 0,
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'published', 'superseded')),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				published_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_journey_versions_journey_id ON journey_versions(journey_id);

			CREATE TABLE journey_steps (
				id VARCHAR(255) PRIMARY KEY,
				version_id VARCHAR(255) NOT NULL REFERENCES journey_versions(id) ON DELETE CASCADE,
				organization_id VARCHAR(255) NOT NULL,
				step_type VARCHAR(50) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				config JSONB DEFAULT '{}',
				position_x INT DEFAULT 0,
				position_y INT DEFAULT 0,
				ordinal INT NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_journey_steps_version_id ON journey_steps(version_id);

			CREATE TABLE step_connections (
				id VARCHAR(255) PRIMARY KEY,
				version_id VARCHAR(255) NOT NULL REFERENCES journey_versions(id) ON DELETE CASCADE,
				from_step_id VARCHAR(255) NOT NULL,
				to_step_id VARCHAR(255) NOT NULL,
				label VARCHAR(255) NOT NULL DEFAULT '',
				position INT NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_step_connections_from ON step_connections(from_step_id);

			CREATE TABLE journey_triggers (
				id VARCHAR(255) PRIMARY KEY,
				journey_id VARCHAR(255) NOT NULL REFERENCES journeys(id) ON DELETE CASCADE,
				organization_id VARCHAR(255) NOT NULL,
				trigger_type VARCHAR(50) NOT NULL CHECK (trigger_type IN ('score_threshold', 'intent_signal', 'segment')),
				config JSONB DEFAULT '{}',
				enabled BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_journey_triggers_org_type ON journey_triggers(organization_id, trigger_type);

			CREATE TABLE journey_executions (
				id VARCHAR(255) PRIMARY KEY,
				journey_id VARCHAR(255) NOT NULL REFERENCES journeys(id),
				version_id VARCHAR(255) NOT NULL REFERENCES journey_versions(id),
				organization_id VARCHAR(255) NOT NULL,
				contact_id VARCHAR(255) NOT NULL,
				trigger_id VARCHAR(255),
				status VARCHAR(50) NOT NULL CHECK (status IN ('active', 'completed', 'canceled')),
				current_step_id VARCHAR(255),
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				canceled_at TIMESTAMP WITH TIME ZONE,
				cancel_reason TEXT
			);

			-- At most one active execution per (journey, contact).
			CREATE UNIQUE INDEX idx_journey_executions_one_active
				ON journey_executions(journey_id, contact_id) WHERE status = 'active';
			CREATE INDEX idx_journey_executions_status_started ON journey_executions(status, started_at);

			CREATE TABLE step_executions (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL REFERENCES journey_executions(id) ON DELETE CASCADE,
				step_id VARCHAR(255) NOT NULL,
				organization_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('running', 'completed', 'failed')),
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				result JSONB,
				error_message TEXT
			);

			CREATE INDEX idx_step_executions_execution_id ON step_executions(execution_id);

			CREATE TABLE execution_logs (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL REFERENCES journey_executions(id) ON DELETE CASCADE,
				organization_id VARCHAR(255) NOT NULL,
				step_id VARCHAR(255),
				level VARCHAR(10) NOT NULL CHECK (level IN ('info', 'warn', 'error')),
				message TEXT NOT NULL,
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_execution_logs_execution_id ON execution_logs(execution_id, created_at);
		`,
		2: `
			-- Read model written by the segmentation service.
			CREATE TABLE IF NOT EXISTS segment_memberships (
				organization_id VARCHAR(255) NOT NULL,
				segment_id VARCHAR(255) NOT NULL,
				contact_id VARCHAR(255) NOT NULL,
				joined_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (organization_id, segment_id, contact_id)
			);
		`,
	}
}
