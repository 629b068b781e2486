package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"LeadPulse/internal/compose"
	"LeadPulse/internal/db"
	"LeadPulse/internal/leads"
	"LeadPulse/internal/models"
	"LeadPulse/internal/scheduler"
)

const maxImportRows = 1000

type Handler struct {
	Scheduler      *scheduler.Scheduler
	DefaultOffsets []int
	Log            *zap.Logger
}

type outreachRequest struct {
	Lead        models.Lead           `json:"lead"`
	Sender      models.SenderIdentity `json:"sender"`
	Product     compose.Product       `json:"product"`
	Subject     string                `json:"subject"`
	Body        string                `json:"body"`
	InitialTime time.Time             `json:"initial_time,omitempty"`
	Offsets     []int                 `json:"offsets,omitempty"`
}

type outreachResponse struct {
	ConversationID string   `json:"conversation_id"`
	IDs            []string `json:"ids"`
}

// CreateOutreach schedules the initial send plus follow-ups for one lead.
func (h *Handler) CreateOutreach(w http.ResponseWriter, r *http.Request) {
	var req outreachRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Product != "" && !req.Product.Valid() {
		http.Error(w, "unknown product", http.StatusBadRequest)
		return
	}
	if len(req.Offsets) == 0 {
		req.Offsets = h.DefaultOffsets
	}

	res, err := h.Scheduler.Schedule(r.Context(), scheduler.Request{
		Lead:        req.Lead,
		Sender:      req.Sender,
		Product:     req.Product,
		Subject:     req.Subject,
		Body:        req.Body,
		InitialTime: req.InitialTime,
		Offsets:     req.Offsets,
	})
	if err != nil {
		h.writeScheduleError(w, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(outreachResponse{
		ConversationID: res.ConversationID,
		IDs:            res.IDs,
	})
}

type importResponse struct {
	Scheduled int                `json:"scheduled"`
	Skipped   int                `json:"skipped"`
	Outreach  []outreachResponse `json:"outreach"`
}

// ImportOutreach accepts a multipart form with a "leads" CSV plus sender,
// product and day-0 content fields, and schedules an outreach per row. Rows
// that fail to schedule are skipped, not fatal.
func (h *Handler) ImportOutreach(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("leads")
	if err != nil {
		http.Error(w, "leads file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	parsed, err := leads.ParseLeads(file, maxImportRows)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	product := compose.Product(r.FormValue("product"))
	if product != "" && !product.Valid() {
		http.Error(w, "unknown product", http.StatusBadRequest)
		return
	}
	sender := models.SenderIdentity{
		Email: r.FormValue("sender_email"),
		Name:  r.FormValue("sender_name"),
	}

	resp := importResponse{Outreach: make([]outreachResponse, 0, len(parsed))}
	for _, lead := range parsed {
		res, err := h.Scheduler.Schedule(r.Context(), scheduler.Request{
			Lead:    lead,
			Sender:  sender,
			Product: product,
			Subject: r.FormValue("subject"),
			Body:    r.FormValue("body"),
			Offsets: h.DefaultOffsets,
		})
		if err != nil {
			resp.Skipped++
			h.Log.Warn("import row skipped",
				zap.String("lead", lead.Email),
				zap.Error(err),
			)
			continue
		}
		resp.Scheduled++
		resp.Outreach = append(resp.Outreach, outreachResponse{
			ConversationID: res.ConversationID,
			IDs:            res.IDs,
		})
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) writeScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrDuplicateSchedule):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, scheduler.ErrNoRecipient),
		errors.Is(err, scheduler.ErrNoSender),
		errors.Is(err, scheduler.ErrNoOffsets),
		errors.Is(err, scheduler.ErrNegativeOffset):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.Log.Error("schedule failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
