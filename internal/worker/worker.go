package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"LeadPulse/internal/compose"
	"LeadPulse/internal/db"
	"LeadPulse/internal/metrics"
	"LeadPulse/internal/models"
	"LeadPulse/internal/provider"
	"LeadPulse/internal/reply"
)

// Store is the slice of the scheduled-send store the delivery worker needs.
// All transitions are conditional so repeated ticks and concurrent workers
// cannot double-send.
type Store interface {
	ListPending(ctx context.Context) ([]models.ScheduledEmail, error)
	Claim(ctx context.Context, id string) error
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errorMsg string) error
	CancelConversation(ctx context.Context, conversationID string) (int64, error)
	LastSentAt(ctx context.Context, conversationID string) (time.Time, bool, error)
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// ProviderSelector picks the transport for a sender address.
type ProviderSelector interface {
	ForSender(senderEmail string) provider.Provider
}

type Config struct {
	Interval        time.Duration
	SendTimeout     time.Duration
	StaleClaimAfter time.Duration
	Workers         int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
	if c.StaleClaimAfter <= 0 {
		c.StaleClaimAfter = 10 * time.Minute
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	return c
}

// Worker is the delivery loop: poll pending records, cancel conversations that
// got a reply, send whatever is due, and record the outcome.
type Worker struct {
	store     Store
	providers ProviderSelector
	checker   reply.Checker
	composer  compose.Composer
	policy    SendPolicy
	limiter   *rate.Limiter
	logger    *zap.Logger
	cfg       Config

	// now is swappable for deterministic tests.
	now func() time.Time
}

func New(
	store Store,
	providers ProviderSelector,
	checker reply.Checker,
	composer compose.Composer,
	policy SendPolicy,
	limiter *rate.Limiter,
	logger *zap.Logger,
	cfg Config,
) *Worker {
	return &Worker{
		store:     store,
		providers: providers,
		checker:   checker,
		composer:  composer,
		policy:    policy,
		limiter:   limiter,
		logger:    logger,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
	}
}

// Run executes ticks at the configured interval until ctx is cancelled. A
// failing tick (store unreachable) backs off instead of crashing the loop.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = w.cfg.Interval
	b.MaxElapsedTime = 0

	w.logger.Info("delivery worker started", zap.Duration("interval", w.cfg.Interval))

	for {
		if err := w.Tick(ctx); err != nil {
			wait := b.NextBackOff()
			w.logger.Error("tick failed, backing off",
				zap.Error(err),
				zap.Duration("backoff", wait),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		b.Reset()

		select {
		case <-ctx.Done():
			w.logger.Info("delivery worker shutting down")
			return
		case <-ticker.C:
		}
	}
}

// Tick is one poll pass. Only store connectivity errors are returned; every
// per-record failure is contained and logged.
func (w *Worker) Tick(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	if released, err := w.store.ReleaseStale(ctx, w.cfg.StaleClaimAfter); err != nil {
		return err
	} else if released > 0 {
		w.logger.Warn("released stale claims", zap.Int64("count", released))
	}

	pending, err := w.store.ListPending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	groups := groupByConversation(pending)
	w.logger.Info("processing pending followups",
		zap.Int("records", len(pending)),
		zap.Int("conversations", len(groups)),
	)

	// Conversations are independent, so they fan out to a bounded pool.
	// Records inside one conversation stay on a single goroutine in day
	// order, so a detected reply always precedes any later send decision.
	jobs := make(chan []models.ScheduledEmail)
	var wg sync.WaitGroup

	workers := w.cfg.Workers
	if len(groups) < workers {
		workers = len(groups)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for group := range jobs {
				w.processGroup(ctx, group)
			}
		}()
	}

	for _, group := range groups {
		jobs <- group
	}
	close(jobs)
	wg.Wait()

	return nil
}

func (w *Worker) processGroup(ctx context.Context, group []models.ScheduledEmail) {
	conversationID := group[0].ConversationID

	for _, rec := range group {
		if rec.Responded {
			w.cancelConversation(ctx, conversationID)
			return
		}
	}

	for _, rec := range group {
		if ctx.Err() != nil {
			return
		}
		if !w.policy.Eligible(rec, w.now()) {
			continue
		}

		// Reply status is read fresh for every send decision, never cached
		// across ticks.
		if w.conversationHasReply(ctx, rec) {
			metrics.RepliesDetected.Inc()
			w.cancelConversation(ctx, conversationID)
			return
		}

		w.deliver(ctx, rec)
	}
}

// conversationHasReply asks the detector, anchored at the most recent prior
// send. Detection errors count as "no reply" so a legitimate follow-up is not
// silently dropped.
func (w *Worker) conversationHasReply(ctx context.Context, rec models.ScheduledEmail) bool {
	since, ok, err := w.store.LastSentAt(ctx, rec.ConversationID)
	if err != nil {
		w.logger.Error("last sent lookup failed",
			zap.String("conversation_id", rec.ConversationID),
			zap.Error(err),
		)
		return false
	}
	if !ok {
		since = rec.CreatedAt
	}

	has, err := w.checker.HasReply(ctx, rec.SenderEmail, rec.Recipient, since)
	if err != nil {
		metrics.DetectionErrors.Inc()
		w.logger.Warn("reply check failed, assuming no reply",
			zap.String("conversation_id", rec.ConversationID),
			zap.String("recipient", rec.Recipient),
			zap.Error(err),
		)
		return false
	}

	return has
}

func (w *Worker) cancelConversation(ctx context.Context, conversationID string) {
	cancelled, err := w.store.CancelConversation(ctx, conversationID)
	if err != nil {
		w.logger.Error("cancel conversation failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return
	}
	if cancelled > 0 {
		metrics.FollowupsCancelled.Add(float64(cancelled))
		w.logger.Info("cancelled pending followups after reply",
			zap.String("conversation_id", conversationID),
			zap.Int64("cancelled", cancelled),
		)
	}
}

func (w *Worker) deliver(ctx context.Context, rec models.ScheduledEmail) {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}
	}

	// Claim first: the record is ours only if the pending→sending CAS wins.
	if err := w.store.Claim(ctx, rec.ID); err != nil {
		if !errors.Is(err, db.ErrNotPending) {
			w.logger.Error("claim failed",
				zap.String("id", rec.ID),
				zap.Error(err),
			)
		}
		return
	}

	subject, body := w.renderContent(ctx, rec)

	p := w.providers.ForSender(rec.SenderEmail)
	sendCtx, cancel := context.WithTimeout(ctx, w.cfg.SendTimeout)
	err := p.Send(sendCtx, provider.Message{
		To:        rec.Recipient,
		FromEmail: rec.SenderEmail,
		FromName:  rec.SenderName,
		Subject:   subject,
		Body:      body,
	})
	cancel()

	if err != nil {
		metrics.EmailFailures.Inc()
		w.logger.Error("send failed",
			zap.String("id", rec.ID),
			zap.String("conversation_id", rec.ConversationID),
			zap.String("recipient", rec.Recipient),
			zap.String("provider", p.Name()),
			zap.Error(err),
		)
		if dbErr := w.store.MarkFailed(ctx, rec.ID, err.Error()); dbErr != nil {
			w.logger.Error("mark failed errored",
				zap.String("id", rec.ID),
				zap.Error(dbErr),
			)
		}
		return
	}

	if err := w.store.MarkSent(ctx, rec.ID); err != nil {
		w.logger.Error("mark sent errored",
			zap.String("id", rec.ID),
			zap.Error(err),
		)
		return
	}

	metrics.EmailsSent.Inc()
	w.logger.Info("followup sent",
		zap.String("id", rec.ID),
		zap.String("conversation_id", rec.ConversationID),
		zap.String("recipient", rec.Recipient),
		zap.Int("followup_day", rec.FollowupDay),
		zap.String("provider", p.Name()),
	)
}

// renderContent returns day-0 content as stored and composes later days on
// demand. Composition failure substitutes the placeholder markers instead of
// dropping the send.
func (w *Worker) renderContent(ctx context.Context, rec models.ScheduledEmail) (string, string) {
	if rec.FollowupDay == 0 {
		return rec.Subject, rec.Body
	}

	lead := models.Lead{
		Email:   rec.Recipient,
		Name:    rec.LeadName,
		Company: rec.LeadCompany,
	}
	subject, body, err := w.composer.Compose(ctx, lead, compose.Product(rec.Product), rec.FollowupDay)
	if err != nil {
		w.logger.Warn("compose failed, using placeholder content",
			zap.String("id", rec.ID),
			zap.Int("followup_day", rec.FollowupDay),
			zap.Error(err),
		)
		return compose.PlaceholderSubject, compose.PlaceholderBody
	}

	return subject, compose.CloseWithSignature(body, rec.SenderName)
}

func groupByConversation(recs []models.ScheduledEmail) [][]models.ScheduledEmail {
	byConv := make(map[string][]models.ScheduledEmail)
	order := make([]string, 0)
	for _, rec := range recs {
		if _, ok := byConv[rec.ConversationID]; !ok {
			order = append(order, rec.ConversationID)
		}
		byConv[rec.ConversationID] = append(byConv[rec.ConversationID], rec)
	}

	groups := make([][]models.ScheduledEmail, 0, len(order))
	for _, id := range order {
		group := byConv[id]
		sort.Slice(group, func(i, j int) bool {
			return group[i].FollowupDay < group[j].FollowupDay
		})
		groups = append(groups, group)
	}

	return groups
}
