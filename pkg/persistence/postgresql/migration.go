package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Flow definitions are stored whole as JSONB: the kernel always
			-- loads a flow in full and never queries inside the graph.
			CREATE TABLE flows (
				id VARCHAR(255) PRIMARY KEY,
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE runs (
				id VARCHAR(255) PRIMARY KEY,
				flow_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				current_node_id VARCHAR(255) NOT NULL DEFAULT '',
				attempt INT NOT NULL DEFAULT 0,
				max_attempts INT NOT NULL DEFAULT 0,
				next_seq BIGINT NOT NULL DEFAULT 1,
				args JSONB,
				pending_control VARCHAR(50) NOT NULL DEFAULT '',
				lease_owner VARCHAR(255) NOT NULL DEFAULT '',
				error_kind VARCHAR(50) NOT NULL DEFAULT '',
				error_detail TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_runs_flow_id ON runs(flow_id);
			CREATE INDEX idx_runs_status ON runs(status);

			-- The primary key doubles as the append-only guarantee: a second
			-- writer reusing a sequence number violates it.
			CREATE TABLE run_events (
				run_id VARCHAR(255) NOT NULL,
				seq BIGINT NOT NULL,
				type VARCHAR(50) NOT NULL,
				timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
				node_id VARCHAR(255) NOT NULL DEFAULT '',
				kind VARCHAR(255) NOT NULL DEFAULT '',
				attempt INT NOT NULL DEFAULT 0,
				output JSONB,
				next VARCHAR(50) NOT NULL DEFAULT '',
				error_kind VARCHAR(50) NOT NULL DEFAULT '',
				error_detail TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (run_id, seq)
			);

			CREATE TABLE queue_items (
				id VARCHAR(255) PRIMARY KEY,
				run_id VARCHAR(255) NOT NULL,
				priority INT NOT NULL DEFAULT 0,
				status VARCHAR(50) NOT NULL,
				enqueued_at TIMESTAMP WITH TIME ZONE NOT NULL,
				lease_owner VARCHAR(255) NOT NULL DEFAULT '',
				lease_expires_at TIMESTAMP WITH TIME ZONE,
				reclaims INT NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_queue_items_claim
				ON queue_items(status, priority DESC, enqueued_at ASC);
			CREATE INDEX idx_queue_items_run_id ON queue_items(run_id);
		`,
	}
}
