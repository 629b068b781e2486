package worker

import (
	"time"

	"LeadPulse/internal/models"
)

// SendPolicy decides when a pending record becomes eligible to send. Both
// implementations are monotone in time: once eligible under a fixed clock
// reading, a record stays eligible until it leaves pending.
type SendPolicy interface {
	Eligible(rec models.ScheduledEmail, now time.Time) bool
}

// ElapsedOffsetPolicy sends once the record has been due for Window. With a
// zero window this is plain "scheduled time has passed". Used in development
// so follow-up behavior can be exercised in minutes instead of days.
type ElapsedOffsetPolicy struct {
	Window time.Duration
}

func (p ElapsedOffsetPolicy) Eligible(rec models.ScheduledEmail, now time.Time) bool {
	return now.Sub(rec.ScheduledTime) >= p.Window
}

// DailyWindowPolicy sends only during one wall-clock hour, on or after the
// scheduled calendar date. Production policy: outreach lands at a predictable
// local time.
type DailyWindowPolicy struct {
	Hour     int
	Location *time.Location
}

func (p DailyWindowPolicy) Eligible(rec models.ScheduledEmail, now time.Time) bool {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}

	local := now.In(loc)
	if local.Hour() != p.Hour {
		return false
	}

	ny, nm, nd := local.Date()
	sy, sm, sd := rec.ScheduledTime.In(loc).Date()
	nowDate := time.Date(ny, nm, nd, 0, 0, 0, 0, loc)
	schedDate := time.Date(sy, sm, sd, 0, 0, 0, 0, loc)

	return !nowDate.Before(schedDate)
}
