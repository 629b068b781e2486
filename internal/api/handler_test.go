package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"LeadPulse/internal/db"
	"LeadPulse/internal/models"
	"LeadPulse/internal/scheduler"
)

type stubStore struct {
	inserted []models.ScheduledEmail
	err      error
}

func (s *stubStore) Insert(_ context.Context, e *models.ScheduledEmail) error {
	if s.err != nil {
		return s.err
	}
	s.inserted = append(s.inserted, *e)
	return nil
}

func newHandler(store *stubStore) *Handler {
	return &Handler{
		Scheduler:      scheduler.New(store, zap.NewNop()),
		DefaultOffsets: []int{0, 3, 8},
		Log:            zap.NewNop(),
	}
}

func TestCreateOutreach(t *testing.T) {
	store := &stubStore{}
	h := newHandler(store)

	body := `{
		"lead": {"email": "l@example.com", "name": "Jordan Lee"},
		"sender": {"email": "alex@genericmail.com", "name": "Alex Doe"},
		"product": "copilot",
		"subject": "Hi",
		"body": "Pitch\n\nBest Regards,"
	}`

	req := httptest.NewRequest(http.MethodPost, "/outreach", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateOutreach(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp outreachResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.ConversationID)
	assert.Len(t, resp.IDs, 3) // default offsets applied
	assert.Len(t, store.inserted, 3)
}

func TestCreateOutreachRejectsUnknownProduct(t *testing.T) {
	h := newHandler(&stubStore{})

	body := `{
		"lead": {"email": "l@example.com"},
		"sender": {"email": "alex@genericmail.com"},
		"product": "mystery"
	}`

	req := httptest.NewRequest(http.MethodPost, "/outreach", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateOutreach(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOutreachDuplicateConflict(t *testing.T) {
	h := newHandler(&stubStore{err: db.ErrDuplicateSchedule})

	body := `{
		"lead": {"email": "l@example.com"},
		"sender": {"email": "alex@genericmail.com"}
	}`

	req := httptest.NewRequest(http.MethodPost, "/outreach", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateOutreach(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateOutreachMissingRecipient(t *testing.T) {
	h := newHandler(&stubStore{})

	req := httptest.NewRequest(http.MethodPost, "/outreach",
		strings.NewReader(`{"sender": {"email": "alex@genericmail.com"}}`))
	rec := httptest.NewRecorder()
	h.CreateOutreach(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportOutreach(t *testing.T) {
	store := &stubStore{}
	h := newHandler(store)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("sender_email", "alex@genericmail.com"))
	require.NoError(t, mw.WriteField("sender_name", "Alex Doe"))
	require.NoError(t, mw.WriteField("product", "copilot"))
	require.NoError(t, mw.WriteField("subject", "Hi"))
	require.NoError(t, mw.WriteField("body", "Pitch\n\nBest Regards,"))

	fw, err := mw.CreateFormFile("leads", "leads.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte("Email,Name\nl@example.com,Jordan\nm@example.com,Morgan\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/outreach/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ImportOutreach(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp importResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Scheduled)
	assert.Zero(t, resp.Skipped)
	assert.Len(t, store.inserted, 6) // 3 offsets per lead
}

func TestImportOutreachRequiresFile(t *testing.T) {
	h := newHandler(&stubStore{})

	req := httptest.NewRequest(http.MethodPost, "/outreach/import", nil)
	rec := httptest.NewRecorder()
	h.ImportOutreach(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
