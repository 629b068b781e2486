package db

import (
	"context"
	"errors"
	"time"

	"LeadPulse/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateSchedule is returned when a (conversation_id, followup_day) pair
// already exists; the unique index enforces one record per pair.
var ErrDuplicateSchedule = errors.New("scheduled email already exists for conversation and day")

// ErrNotPending is returned by Claim when the record was already claimed or is
// in a terminal state. Callers must treat it as "someone else owns this record".
var ErrNotPending = errors.New("scheduled email is not pending")

const uniqueViolation = "23505"

type Store struct {
	Pool *pgxpool.Pool
}

func New(conn string) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), conn)
	if err != nil {
		return nil, err
	}

	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

const scheduledEmailColumns = `id, conversation_id, recipient, sender_email, sender_name,
subject, body, product, lead_name, lead_company, followup_day, scheduled_time, status,
responded, error_msg, created_at, updated_at`

func (s *Store) Insert(ctx context.Context, e *models.ScheduledEmail) error {

	_, err := s.Pool.Exec(ctx,
		`INSERT INTO scheduled_emails
		 (id, conversation_id, recipient, sender_email, sender_name,
		  subject, body, product, lead_name, lead_company, followup_day,
		  scheduled_time, status, responded, error_msg, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,'',NOW(),NOW())`,
		e.ID,
		e.ConversationID,
		e.Recipient,
		e.SenderEmail,
		e.SenderName,
		e.Subject,
		e.Body,
		e.Product,
		e.LeadName,
		e.LeadCompany,
		e.FollowupDay,
		e.ScheduledTime,
		e.Status,
		e.Responded,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateSchedule
		}
		return err
	}

	return nil
}

// ListPending returns every pending record, oldest schedule first, so the worker
// can group by conversation and decide eligibility in memory.
func (s *Store) ListPending(ctx context.Context) ([]models.ScheduledEmail, error) {

	rows, err := s.Pool.Query(ctx,
		`SELECT `+scheduledEmailColumns+`
		 FROM scheduled_emails
		 WHERE status=$1
		 ORDER BY scheduled_time ASC`,
		models.StatusPending,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanScheduledEmails(rows)
}

// Claim atomically moves a record from pending to sending. Exactly one caller
// can win the claim; everyone else gets ErrNotPending.
func (s *Store) Claim(ctx context.Context, id string) error {

	tag, err := s.Pool.Exec(ctx,
		`UPDATE scheduled_emails
		 SET status=$1,
		     updated_at=NOW()
		 WHERE id=$2 AND status=$3`,
		models.StatusSending,
		id,
		models.StatusPending,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}

	return nil
}

func (s *Store) MarkSent(ctx context.Context, id string) error {

	_, err := s.Pool.Exec(ctx,
		`UPDATE scheduled_emails
		 SET status=$1,
		     updated_at=NOW()
		 WHERE id=$2 AND status=$3`,
		models.StatusSent,
		id,
		models.StatusSending,
	)

	return err
}

func (s *Store) MarkFailed(ctx context.Context, id string, errorMsg string) error {

	_, err := s.Pool.Exec(ctx,
		`UPDATE scheduled_emails
		 SET status=$1,
		     error_msg=$2,
		     updated_at=NOW()
		 WHERE id=$3 AND status=$4`,
		models.StatusFailed,
		errorMsg,
		id,
		models.StatusSending,
	)

	return err
}

// CancelConversation cancels every still-pending record in the conversation and
// marks it responded. Running it twice is a no-op the second time.
func (s *Store) CancelConversation(ctx context.Context, conversationID string) (int64, error) {

	tag, err := s.Pool.Exec(ctx,
		`UPDATE scheduled_emails
		 SET status=$1,
		     responded=TRUE,
		     updated_at=NOW()
		 WHERE conversation_id=$2 AND status=$3`,
		models.StatusCancelled,
		conversationID,
		models.StatusPending,
	)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

// LastSentAt returns the updated_at of the most recent sent record in the
// conversation. ok is false when nothing has been sent yet.
func (s *Store) LastSentAt(ctx context.Context, conversationID string) (time.Time, bool, error) {

	var t time.Time
	err := s.Pool.QueryRow(ctx,
		`SELECT updated_at
		 FROM scheduled_emails
		 WHERE conversation_id=$1 AND status=$2
		 ORDER BY updated_at DESC
		 LIMIT 1`,
		conversationID,
		models.StatusSent,
	).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	return t, true, nil
}

// ReleaseStale rolls records stuck in sending back to pending. A record only
// stays in sending when a worker crashed mid-send, so this runs once per tick
// with a window well above the per-send timeout.
func (s *Store) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {

	tag, err := s.Pool.Exec(ctx,
		`UPDATE scheduled_emails
		 SET status=$1,
		     updated_at=NOW()
		 WHERE status=$2 AND updated_at < NOW() - make_interval(secs => $3)`,
		models.StatusPending,
		models.StatusSending,
		olderThan.Seconds(),
	)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

func scanScheduledEmails(rows pgx.Rows) ([]models.ScheduledEmail, error) {
	var out []models.ScheduledEmail
	for rows.Next() {
		var e models.ScheduledEmail
		if err := rows.Scan(
			&e.ID,
			&e.ConversationID,
			&e.Recipient,
			&e.SenderEmail,
			&e.SenderName,
			&e.Subject,
			&e.Body,
			&e.Product,
			&e.LeadName,
			&e.LeadCompany,
			&e.FollowupDay,
			&e.ScheduledTime,
			&e.Status,
			&e.Responded,
			&e.ErrorMsg,
			&e.CreatedAt,
			&e.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}

	return out, rows.Err()
}
