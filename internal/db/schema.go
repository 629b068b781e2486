package db

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS scheduled_emails (
	id              UUID PRIMARY KEY,
	conversation_id UUID NOT NULL,
	recipient       TEXT NOT NULL,
	sender_email    TEXT NOT NULL,
	sender_name     TEXT NOT NULL,
	subject         TEXT NOT NULL,
	body            TEXT NOT NULL,
	product         TEXT NOT NULL DEFAULT '',
	lead_name       TEXT NOT NULL DEFAULT '',
	lead_company    TEXT NOT NULL DEFAULT '',
	followup_day    INT NOT NULL,
	scheduled_time  TIMESTAMPTZ NOT NULL,
	status          TEXT NOT NULL,
	responded       BOOLEAN NOT NULL DEFAULT FALSE,
	error_msg       TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS scheduled_emails_conversation_day
	ON scheduled_emails (conversation_id, followup_day);

CREATE INDEX IF NOT EXISTS scheduled_emails_status_time
	ON scheduled_emails (status, scheduled_time);
`

// EnsureSchema creates the scheduled_emails table and its indexes if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, schema)
	return err
}
