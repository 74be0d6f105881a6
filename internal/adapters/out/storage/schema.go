package storage

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS shift_slots (
	id TEXT PRIMARY KEY,
	shift_ref TEXT NOT NULL,
	shift_date TEXT NOT NULL,
	client_id TEXT NOT NULL DEFAULT '',
	original_caregiver_id TEXT NOT NULL,
	start_time TIMESTAMP NOT NULL,
	end_time TIMESTAMP NOT NULL,
	required_skills TEXT NOT NULL DEFAULT '[]',
	required_language TEXT NOT NULL DEFAULT '',
	lat REAL NOT NULL DEFAULT 0,
	lon REAL NOT NULL DEFAULT 0,
	reason TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	tier INTEGER NOT NULL DEFAULT 0,
	version INTEGER NOT NULL DEFAULT 1,
	wave_started_at TIMESTAMP,
	wave_expires_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE (shift_ref, shift_date)
);

CREATE TABLE IF NOT EXISTS outreach_attempts (
	id TEXT PRIMARY KEY,
	shift_id TEXT NOT NULL REFERENCES shift_slots(id),
	candidate_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	tier INTEGER NOT NULL,
	recipient TEXT NOT NULL,
	message TEXT NOT NULL,
	idempotency_key TEXT NOT NULL UNIQUE,
	delivery_status TEXT NOT NULL,
	delivery_id TEXT NOT NULL DEFAULT '',
	send_attempts INTEGER NOT NULL DEFAULT 0,
	sent_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS response_records (
	id TEXT PRIMARY KEY,
	attempt_id TEXT NOT NULL REFERENCES outreach_attempts(id),
	provider_message_id TEXT NOT NULL UNIQUE,
	raw_text TEXT NOT NULL DEFAULT '',
	intent TEXT NOT NULL,
	received_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS assignments (
	shift_id TEXT PRIMARY KEY REFERENCES shift_slots(id),
	candidate_id TEXT NOT NULL,
	accepted_attempt_id TEXT,
	source TEXT NOT NULL,
	resolved_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS transitions (
	shift_id TEXT NOT NULL,
	transition_key TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (shift_id, transition_key)
);

CREATE TABLE IF NOT EXISTS outbound_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_key TEXT NOT NULL,
	body TEXT NOT NULL,
	sent_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS send_failures (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	cause TEXT NOT NULL DEFAULT '',
	failed_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS engine_state (
	id INTEGER PRIMARY KEY,
	halted BOOLEAN NOT NULL DEFAULT 0,
	reason TEXT NOT NULL DEFAULT '',
	halted_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_shift_slots_status ON shift_slots(status);
CREATE INDEX IF NOT EXISTS idx_outreach_attempts_shift ON outreach_attempts(shift_id);
CREATE INDEX IF NOT EXISTS idx_response_records_attempt ON response_records(attempt_id);
CREATE INDEX IF NOT EXISTS idx_outbound_messages_conversation ON outbound_messages(conversation_key, sent_at);
CREATE INDEX IF NOT EXISTS idx_send_failures_failed_at ON send_failures(failed_at);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS shift_slots (
	id TEXT PRIMARY KEY,
	shift_ref TEXT NOT NULL,
	shift_date TEXT NOT NULL,
	client_id TEXT NOT NULL DEFAULT '',
	original_caregiver_id TEXT NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ NOT NULL,
	required_skills TEXT[] NOT NULL DEFAULT '{}',
	required_language TEXT NOT NULL DEFAULT '',
	lat DOUBLE PRECISION NOT NULL DEFAULT 0,
	lon DOUBLE PRECISION NOT NULL DEFAULT 0,
	reason TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	tier INTEGER NOT NULL DEFAULT 0,
	version BIGINT NOT NULL DEFAULT 1,
	wave_started_at TIMESTAMPTZ,
	wave_expires_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (shift_ref, shift_date)
);

CREATE TABLE IF NOT EXISTS outreach_attempts (
	id TEXT PRIMARY KEY,
	shift_id TEXT NOT NULL REFERENCES shift_slots(id),
	candidate_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	tier INTEGER NOT NULL,
	recipient TEXT NOT NULL,
	message TEXT NOT NULL,
	idempotency_key TEXT NOT NULL UNIQUE,
	delivery_status TEXT NOT NULL,
	delivery_id TEXT NOT NULL DEFAULT '',
	send_attempts INTEGER NOT NULL DEFAULT 0,
	sent_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS response_records (
	id TEXT PRIMARY KEY,
	attempt_id TEXT NOT NULL REFERENCES outreach_attempts(id),
	provider_message_id TEXT NOT NULL UNIQUE,
	raw_text TEXT NOT NULL DEFAULT '',
	intent TEXT NOT NULL,
	received_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS assignments (
	shift_id TEXT PRIMARY KEY REFERENCES shift_slots(id),
	candidate_id TEXT NOT NULL,
	accepted_attempt_id TEXT,
	source TEXT NOT NULL,
	resolved_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS transitions (
	shift_id TEXT NOT NULL,
	transition_key TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (shift_id, transition_key)
);

CREATE TABLE IF NOT EXISTS outbound_messages (
	id BIGSERIAL PRIMARY KEY,
	conversation_key TEXT NOT NULL,
	body TEXT NOT NULL,
	sent_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS send_failures (
	id BIGSERIAL PRIMARY KEY,
	cause TEXT NOT NULL DEFAULT '',
	failed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS engine_state (
	id INTEGER PRIMARY KEY,
	halted BOOLEAN NOT NULL DEFAULT FALSE,
	reason TEXT NOT NULL DEFAULT '',
	halted_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_shift_slots_status ON shift_slots(status);
CREATE INDEX IF NOT EXISTS idx_outreach_attempts_shift ON outreach_attempts(shift_id);
CREATE INDEX IF NOT EXISTS idx_response_records_attempt ON response_records(attempt_id);
CREATE INDEX IF NOT EXISTS idx_outbound_messages_conversation ON outbound_messages(conversation_key, sent_at);
CREATE INDEX IF NOT EXISTS idx_send_failures_failed_at ON send_failures(failed_at);
`
