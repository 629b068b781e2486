package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"LeadPulse/internal/compose"
	"LeadPulse/internal/db"
	"LeadPulse/internal/models"
	"LeadPulse/internal/provider"
	"LeadPulse/internal/reply"
)

// memStore is an in-memory Store with the same conditional-update semantics as
// the Postgres implementation.
type memStore struct {
	mu   sync.Mutex
	recs map[string]*models.ScheduledEmail

	listErr error
}

func newMemStore(recs ...models.ScheduledEmail) *memStore {
	s := &memStore{recs: make(map[string]*models.ScheduledEmail)}
	for i := range recs {
		rec := recs[i]
		s.recs[rec.ID] = &rec
	}
	return s
}

func (s *memStore) ListPending(context.Context) ([]models.ScheduledEmail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listErr != nil {
		return nil, s.listErr
	}

	var out []models.ScheduledEmail
	for _, rec := range s.recs {
		if rec.Status == models.StatusPending {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *memStore) Claim(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[id]
	if !ok || rec.Status != models.StatusPending {
		return db.ErrNotPending
	}
	rec.Status = models.StatusSending
	return nil
}

func (s *memStore) MarkSent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[id]
	if ok && rec.Status == models.StatusSending {
		rec.Status = models.StatusSent
		rec.UpdatedAt = time.Now()
	}
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, id string, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[id]
	if ok && rec.Status == models.StatusSending {
		rec.Status = models.StatusFailed
		rec.ErrorMsg = errorMsg
	}
	return nil
}

func (s *memStore) CancelConversation(_ context.Context, conversationID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, rec := range s.recs {
		if rec.ConversationID == conversationID && rec.Status == models.StatusPending {
			rec.Status = models.StatusCancelled
			rec.Responded = true
			n++
		}
	}
	return n, nil
}

func (s *memStore) LastSentAt(_ context.Context, conversationID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest time.Time
	found := false
	for _, rec := range s.recs {
		if rec.ConversationID == conversationID && rec.Status == models.StatusSent {
			if rec.UpdatedAt.After(latest) {
				latest = rec.UpdatedAt
				found = true
			}
		}
	}
	return latest, found, nil
}

func (s *memStore) ReleaseStale(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func (s *memStore) get(id string) models.ScheduledEmail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.recs[id]
}

// fakeProvider records every send and can fail selected recipients.
type fakeProvider struct {
	mu      sync.Mutex
	sent    []provider.Message
	failFor map[string]error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Send(_ context.Context, msg provider.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err, ok := p.failFor[msg.To]; ok {
		return err
	}
	p.sent = append(p.sent, msg)
	return nil
}

func (p *fakeProvider) sentTo() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.sent))
	for _, m := range p.sent {
		out = append(out, m.To)
	}
	return out
}

type staticSelector struct{ p provider.Provider }

func (s staticSelector) ForSender(string) provider.Provider { return s.p }

type staticComposer struct {
	subject string
	body    string
	err     error
}

func (c staticComposer) Compose(context.Context, models.Lead, compose.Product, int) (string, string, error) {
	return c.subject, c.body, c.err
}

func newTestWorker(store Store, p provider.Provider, checker reply.Checker, composer compose.Composer, now time.Time) *Worker {
	w := New(
		store,
		staticSelector{p: p},
		checker,
		composer,
		ElapsedOffsetPolicy{},
		nil,
		zap.NewNop(),
		Config{},
	)
	w.now = func() time.Time { return now }
	return w
}

func record(id, conv, to string, day int, at time.Time) models.ScheduledEmail {
	return models.ScheduledEmail{
		ID:             id,
		ConversationID: conv,
		Recipient:      to,
		SenderEmail:    "sales@genericmail.com",
		SenderName:     "Alex Doe",
		Subject:        "Hi",
		Body:           "Hello there\n\nBest Regards,\nAlex\n",
		Product:        string(compose.ProductCopilot),
		FollowupDay:    day,
		ScheduledTime:  at,
		Status:         models.StatusPending,
		CreatedAt:      at,
	}
}

func TestReplySuppressesPendingSiblings(t *testing.T) {
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	store := newMemStore(
		record("r0", "conv-1", "l@example.com", 0, base),
		record("r3", "conv-1", "l@example.com", 3, base.AddDate(0, 0, 3)),
		record("r8", "conv-1", "l@example.com", 8, base.AddDate(0, 0, 8)),
	)
	sender := &fakeProvider{}

	replied := reply.Func(func(context.Context, string, string, time.Time) (bool, error) {
		return true, nil
	})

	// Tick lands after day 3: the reply must cancel day 3 AND day 8 without
	// sending either.
	w := newTestWorker(store, sender, replied, staticComposer{}, base.AddDate(0, 0, 3).Add(time.Second))
	require.NoError(t, w.Tick(context.Background()))

	assert.Empty(t, sender.sentTo())
	for _, id := range []string{"r0", "r3", "r8"} {
		rec := store.get(id)
		assert.Equal(t, models.StatusCancelled, rec.Status, id)
		assert.True(t, rec.Responded, id)
	}

	// Idempotent: a second pass changes nothing further.
	require.NoError(t, w.Tick(context.Background()))
	assert.Empty(t, sender.sentTo())
	assert.Equal(t, models.StatusCancelled, store.get("r8").Status)
}

func TestRespondedFlagCancelsWholeGroup(t *testing.T) {
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	marked := record("r0", "conv-1", "l@example.com", 0, base)
	marked.Responded = true
	store := newMemStore(
		marked,
		record("r3", "conv-1", "l@example.com", 3, base.AddDate(0, 0, 3)),
	)
	sender := &fakeProvider{}

	w := newTestWorker(store, sender, reply.Disabled{}, staticComposer{}, base.AddDate(0, 0, 10))
	require.NoError(t, w.Tick(context.Background()))

	assert.Empty(t, sender.sentTo())
	assert.Equal(t, models.StatusCancelled, store.get("r0").Status)
	assert.Equal(t, models.StatusCancelled, store.get("r3").Status)
}

func TestNoDoubleSendUnderConcurrentDelivery(t *testing.T) {
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	rec := record("r0", "conv-1", "l@example.com", 0, base)
	store := newMemStore(rec)
	sender := &fakeProvider{}

	w := newTestWorker(store, sender, reply.Disabled{}, staticComposer{}, base.Add(time.Second))

	// Two workers race for the same pending record; the claim CAS must let
	// exactly one of them through.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.deliver(context.Background(), rec)
		}()
	}
	wg.Wait()

	assert.Len(t, sender.sentTo(), 1)
	assert.Equal(t, models.StatusSent, store.get("r0").Status)
}

func TestTerminalRecordsNeverReprocessed(t *testing.T) {
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	store := newMemStore(record("r0", "conv-1", "l@example.com", 0, base))
	sender := &fakeProvider{}

	w := newTestWorker(store, sender, reply.Disabled{}, staticComposer{}, base.Add(time.Second))

	for i := 0; i < 3; i++ {
		require.NoError(t, w.Tick(context.Background()))
	}

	assert.Len(t, sender.sentTo(), 1)
	assert.Equal(t, models.StatusSent, store.get("r0").Status)
}

func TestSendFailureIsContainedPerRecord(t *testing.T) {
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	store := newMemStore(
		record("bad", "conv-1", "bounce@example.com", 0, base),
		record("good", "conv-2", "ok@example.com", 0, base),
	)
	sender := &fakeProvider{
		failFor: map[string]error{"bounce@example.com": errors.New("mailbox unavailable")},
	}

	w := newTestWorker(store, sender, reply.Disabled{}, staticComposer{}, base.Add(time.Second))
	require.NoError(t, w.Tick(context.Background()))

	assert.Equal(t, []string{"ok@example.com"}, sender.sentTo())

	failed := store.get("bad")
	assert.Equal(t, models.StatusFailed, failed.Status)
	assert.Equal(t, "mailbox unavailable", failed.ErrorMsg)
	assert.Equal(t, models.StatusSent, store.get("good").Status)

	// Failed is terminal: the next tick does not retry it.
	require.NoError(t, w.Tick(context.Background()))
	assert.Equal(t, models.StatusFailed, store.get("bad").Status)
	assert.Len(t, sender.sentTo(), 1)
}

func TestDetectionErrorTreatedAsNoReply(t *testing.T) {
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	store := newMemStore(record("r0", "conv-1", "l@example.com", 0, base))
	sender := &fakeProvider{}

	flaky := reply.Func(func(context.Context, string, string, time.Time) (bool, error) {
		return false, errors.New("graph api 503")
	})

	w := newTestWorker(store, sender, flaky, staticComposer{}, base.Add(time.Second))
	require.NoError(t, w.Tick(context.Background()))

	assert.Equal(t, []string{"l@example.com"}, sender.sentTo())
	assert.Equal(t, models.StatusSent, store.get("r0").Status)
}

func TestStoreErrorAbortsTick(t *testing.T) {
	store := newMemStore()
	store.listErr = errors.New("connection refused")

	w := newTestWorker(store, &fakeProvider{}, reply.Disabled{}, staticComposer{}, time.Now())
	assert.Error(t, w.Tick(context.Background()))
}

func TestFollowupComposedAtSendTime(t *testing.T) {
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	rec := record("r3", "conv-1", "l@example.com", 3, base.AddDate(0, 0, 3))
	rec.Subject = ""
	rec.Body = ""
	rec.LeadName = "Jordan"
	store := newMemStore(rec)
	sender := &fakeProvider{}

	w := newTestWorker(store, sender, reply.Disabled{},
		staticComposer{subject: "Following up", body: "Hi Jordan\n\nBest Regards,"},
		base.AddDate(0, 0, 3).Add(time.Second))
	require.NoError(t, w.Tick(context.Background()))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Following up", sender.sent[0].Subject)
	// Signature closing appended from the sender's first name.
	assert.Contains(t, sender.sent[0].Body, "Best Regards,\nAlex\n")
}

func TestComposeFailureUsesPlaceholders(t *testing.T) {
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	rec := record("r3", "conv-1", "l@example.com", 3, base.AddDate(0, 0, 3))
	rec.Subject = ""
	rec.Body = ""
	store := newMemStore(rec)
	sender := &fakeProvider{}

	w := newTestWorker(store, sender, reply.Disabled{},
		staticComposer{err: errors.New("model timeout")},
		base.AddDate(0, 0, 3).Add(time.Second))
	require.NoError(t, w.Tick(context.Background()))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, compose.PlaceholderSubject, sender.sent[0].Subject)
	assert.Equal(t, compose.PlaceholderBody, sender.sent[0].Body)
	assert.Equal(t, models.StatusSent, store.get("r3").Status)
}

// End-to-end: day-0 sends on the first tick, then a reply arrives and day 3 is
// cancelled instead of sent.
func TestEndToEndFollowupScenario(t *testing.T) {
	initial := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	store := newMemStore(
		record("d0", "conv-1", "l@example.com", 0, initial),
		record("d3", "conv-1", "l@example.com", 3, initial.AddDate(0, 0, 3)),
	)
	require.Equal(t, time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC), store.get("d3").ScheduledTime)

	sender := &fakeProvider{}
	hasReply := false
	checker := reply.Func(func(context.Context, string, string, time.Time) (bool, error) {
		return hasReply, nil
	})

	w := newTestWorker(store, sender, checker, staticComposer{subject: "s", body: "b"}, initial.Add(time.Second))
	require.NoError(t, w.Tick(context.Background()))

	assert.Equal(t, models.StatusSent, store.get("d0").Status)
	assert.Equal(t, models.StatusPending, store.get("d3").Status)
	assert.Len(t, sender.sentTo(), 1)

	// The lead replies before day 3 comes due.
	hasReply = true
	w.now = func() time.Time { return initial.AddDate(0, 0, 3).Add(time.Second) }
	require.NoError(t, w.Tick(context.Background()))

	d3 := store.get("d3")
	assert.Equal(t, models.StatusCancelled, d3.Status)
	assert.True(t, d3.Responded)
	assert.Len(t, sender.sentTo(), 1)

	// Terminal states stay put on later ticks.
	require.NoError(t, w.Tick(context.Background()))
	assert.Equal(t, models.StatusSent, store.get("d0").Status)
	assert.Equal(t, models.StatusCancelled, store.get("d3").Status)
}
