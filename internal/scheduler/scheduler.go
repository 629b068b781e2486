package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"LeadPulse/internal/compose"
	"LeadPulse/internal/models"
)

var (
	ErrNoRecipient    = errors.New("lead has no email address")
	ErrNoSender       = errors.New("sender identity has no email address")
	ErrNegativeOffset = errors.New("followup offsets must be non-negative")
	ErrNoOffsets      = errors.New("at least one followup offset is required")
)

// Store is the slice of the scheduled-send store the scheduler needs.
type Store interface {
	Insert(ctx context.Context, e *models.ScheduledEmail) error
}

// Request describes one outreach: a lead, the sender identity, the
// pre-composed initial message, and the follow-up day offsets.
type Request struct {
	Lead    models.Lead
	Sender  models.SenderIdentity
	Product compose.Product

	// Subject and Body are the day-0 content composed by the caller.
	Subject string
	Body    string

	InitialTime time.Time
	Offsets     []int
}

// Result reports what was persisted for one outreach.
type Result struct {
	ConversationID string
	IDs            []string
}

type Scheduler struct {
	store  Store
	logger *zap.Logger
}

func New(store Store, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:  store,
		logger: logger,
	}
}

// Schedule creates one pending record per offset, anchored at InitialTime.
// Each record is written independently; a failure mid-way leaves a smaller but
// self-consistent set and returns what was persisted alongside the error.
func (s *Scheduler) Schedule(ctx context.Context, req Request) (Result, error) {
	if req.Lead.Email == "" {
		return Result{}, ErrNoRecipient
	}
	if req.Sender.Email == "" {
		return Result{}, ErrNoSender
	}

	offsets, err := normalizeOffsets(req.Offsets)
	if err != nil {
		return Result{}, err
	}

	initial := req.InitialTime
	if initial.IsZero() {
		initial = time.Now().UTC()
	}

	res := Result{
		ConversationID: uuid.NewString(),
		IDs:            make([]string, 0, len(offsets)),
	}

	for _, day := range offsets {
		rec := &models.ScheduledEmail{
			ID:             uuid.NewString(),
			ConversationID: res.ConversationID,
			Recipient:      req.Lead.Email,
			SenderEmail:    req.Sender.Email,
			SenderName:     req.Sender.Name,
			Product:        string(req.Product),
			LeadName:       req.Lead.Name,
			LeadCompany:    req.Lead.Company,
			FollowupDay:    day,
			ScheduledTime:  initial.AddDate(0, 0, day),
			Status:         models.StatusPending,
		}

		// Day 0 carries the caller's content; later days are composed at
		// send time so the wording reflects how long the lead has been quiet.
		if day == 0 {
			rec.Subject = req.Subject
			rec.Body = compose.CloseWithSignature(req.Body, req.Sender.Name)
		}

		if err := s.store.Insert(ctx, rec); err != nil {
			return res, fmt.Errorf("schedule day %d for %s: %w", day, req.Lead.Email, err)
		}
		res.IDs = append(res.IDs, rec.ID)

		s.logger.Info("scheduled followup",
			zap.String("conversation_id", rec.ConversationID),
			zap.String("recipient", rec.Recipient),
			zap.Int("followup_day", day),
			zap.Time("scheduled_time", rec.ScheduledTime),
		)
	}

	return res, nil
}

func normalizeOffsets(offsets []int) ([]int, error) {
	if len(offsets) == 0 {
		return nil, ErrNoOffsets
	}

	seen := make(map[int]struct{}, len(offsets))
	out := make([]int, 0, len(offsets))
	for _, d := range offsets {
		if d < 0 {
			return nil, fmt.Errorf("%w: got %d", ErrNegativeOffset, d)
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Ints(out)

	return out, nil
}
