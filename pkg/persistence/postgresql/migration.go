package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflow_executions (
				execution_id   TEXT PRIMARY KEY,
				trigger_id     TEXT NOT NULL,
				user_id        TEXT NOT NULL,
				scenario_key   TEXT NOT NULL,
				persona        TEXT NOT NULL DEFAULT '',
				status         TEXT NOT NULL,
				started_at     TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at   TIMESTAMP WITH TIME ZONE,
				step_count     INTEGER NOT NULL,
				result_summary TEXT NOT NULL DEFAULT '',
				error_detail   TEXT NOT NULL DEFAULT ''
			);

			CREATE TABLE IF NOT EXISTS workflow_steps (
				execution_id    TEXT NOT NULL REFERENCES workflow_executions(execution_id),
				step_order      INTEGER NOT NULL,
				step_name       TEXT NOT NULL,
				status          TEXT NOT NULL,
				started_at      TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at    TIMESTAMP WITH TIME ZONE,
				duration_ms     BIGINT NOT NULL DEFAULT 0,
				input_snapshot  JSONB,
				output_snapshot JSONB,
				error_detail    TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (execution_id, step_order)
			);

			CREATE INDEX IF NOT EXISTS idx_workflow_executions_started_at
				ON workflow_executions(started_at);
		`,
	}
}
