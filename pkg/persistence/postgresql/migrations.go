package postgresql

// migrations returns the versioned schema DDL applied by sqlbase.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS customers (
				id UUID PRIMARY KEY,
				phone VARCHAR(32) NOT NULL UNIQUE,
				name VARCHAR(200) NOT NULL DEFAULT '',
				email VARCHAR(200) NOT NULL DEFAULT '',
				source VARCHAR(20) NOT NULL DEFAULT 'MANUAL',
				lead_stage VARCHAR(20) NOT NULL DEFAULT 'NEW',
				lead_temperature VARCHAR(10) NOT NULL DEFAULT 'WARM',
				lead_score INTEGER NOT NULL DEFAULT 0,
				ai_summary TEXT NOT NULL DEFAULT '',
				total_messages INTEGER NOT NULL DEFAULT 0,
				total_spent NUMERIC(12,2) NOT NULL DEFAULT 0,
				last_message_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS automations (
				id UUID PRIMARY KEY,
				name VARCHAR(200) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				trigger VARCHAR(30) NOT NULL,
				trigger_config JSONB,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_automations_trigger_active
				ON automations (trigger) WHERE active;

			CREATE TABLE IF NOT EXISTS automation_steps (
				id UUID PRIMARY KEY,
				automation_id UUID NOT NULL REFERENCES automations(id) ON DELETE CASCADE,
				step_type VARCHAR(30) NOT NULL,
				config JSONB,
				step_order INTEGER NOT NULL DEFAULT 0,
				next_step_id UUID,
				condition_true UUID,
				condition_false UUID
			);

			CREATE INDEX IF NOT EXISTS idx_automation_steps_automation
				ON automation_steps (automation_id, step_order);

			CREATE TABLE IF NOT EXISTS workflow_runs (
				id UUID PRIMARY KEY,
				automation_id UUID NOT NULL REFERENCES automations(id),
				customer_id UUID NOT NULL REFERENCES customers(id),
				status VARCHAR(20) NOT NULL DEFAULT 'RUNNING',
				current_step_id UUID,
				context JSONB,
				error TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				completed_at TIMESTAMP WITH TIME ZONE
			);

			-- The duplicate-run guard in the dispatcher is check-then-act;
			-- this index collapses concurrent creations to one active run.
			CREATE UNIQUE INDEX IF NOT EXISTS idx_workflow_runs_one_active
				ON workflow_runs (automation_id, customer_id)
				WHERE status IN ('RUNNING', 'PAUSED', 'WAITING');

			CREATE INDEX IF NOT EXISTS idx_workflow_runs_customer_status
				ON workflow_runs (customer_id, status);

			CREATE TABLE IF NOT EXISTS workflow_run_logs (
				id UUID PRIMARY KEY,
				run_id UUID NOT NULL REFERENCES workflow_runs(id) ON DELETE CASCADE,
				step_id UUID NOT NULL,
				action VARCHAR(30) NOT NULL,
				input JSONB,
				output JSONB,
				success BOOLEAN NOT NULL,
				error TEXT NOT NULL DEFAULT '',
				executed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_workflow_run_logs_run
				ON workflow_run_logs (run_id, executed_at);

			CREATE TABLE IF NOT EXISTS messages (
				id UUID PRIMARY KEY,
				customer_id UUID NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
				direction VARCHAR(10) NOT NULL,
				message_type VARCHAR(20) NOT NULL,
				content TEXT NOT NULL DEFAULT '',
				template_name VARCHAR(100) NOT NULL DEFAULT '',
				whatsapp_msg_id VARCHAR(100) NOT NULL DEFAULT '',
				status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_messages_customer
				ON messages (customer_id, created_at DESC);

			CREATE TABLE IF NOT EXISTS tags (
				id UUID PRIMARY KEY,
				name VARCHAR(50) NOT NULL UNIQUE,
				is_ai_generated BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS customer_tags (
				customer_id UUID NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
				tag_id UUID NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (customer_id, tag_id)
			);

			CREATE TABLE IF NOT EXISTS scheduled_follow_ups (
				id UUID PRIMARY KEY,
				customer_id UUID NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
				follow_up_type VARCHAR(30) NOT NULL,
				content TEXT NOT NULL DEFAULT '',
				scheduled_at TIMESTAMP WITH TIME ZONE NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS activities (
				id UUID PRIMARY KEY,
				customer_id UUID NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
				activity_type VARCHAR(30) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
		`,
	}
}
