package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				business_id VARCHAR(255) NOT NULL,
				agent_id VARCHAR(255),
				trigger_type VARCHAR(50) NOT NULL,
				active BOOLEAN NOT NULL DEFAULT false,
				default_language VARCHAR(16) NOT NULL,
				entry_step_id VARCHAR(255),
				steps JSONB NOT NULL DEFAULT '[]',
				translations JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_business_id ON workflows(business_id);
			CREATE INDEX idx_workflows_agent_id ON workflows(agent_id);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);
		`,
		2: `
			CREATE TABLE channel_connections (
				connection_id VARCHAR(255) PRIMARY KEY,
				kind VARCHAR(50) NOT NULL CHECK (kind IN ('unipile', 'whatsapp_business')),
				business_id VARCHAR(255) NOT NULL,
				agent_id VARCHAR(255),
				status VARCHAR(50) NOT NULL,
				default_flow_id VARCHAR(255),
				record JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_channel_connections_business_id ON channel_connections(business_id);
			CREATE INDEX idx_channel_connections_default_flow_id ON channel_connections(default_flow_id);

			CREATE TABLE business_channels (
				id VARCHAR(255) PRIMARY KEY,
				business_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (business_id, name)
			);
		`,
	}
}
