package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"LeadPulse/internal/models"
)

// Placeholder content used when drafting fails. Scheduling must continue with
// clearly marked content instead of aborting.
const (
	PlaceholderSubject = "[No subject generated]"
	PlaceholderBody    = "[No body generated]"
)

var ErrNoTemplate = errors.New("no template for product and followup day")

// Product identifies the offering an outreach pitches. The set is closed; the
// template table is keyed by (product, followup day).
type Product string

const (
	ProductHealthData       Product = "health-data"
	ProductInvestorResearch Product = "investor-research"
	ProductCopilot          Product = "copilot"
)

func (p Product) Valid() bool {
	switch p {
	case ProductHealthData, ProductInvestorResearch, ProductCopilot:
		return true
	}
	return false
}

// Composer drafts a follow-up for a lead. Implementations may call a generative
// backend; the worker only cares about subject/body or an error.
type Composer interface {
	Compose(ctx context.Context, lead models.Lead, product Product, followupDay int) (subject, body string, err error)
}

type templateKey struct {
	Product Product
	Day     int
}

type emailTemplate struct {
	Subject string
	Body    *template.Template
}

// TemplateComposer renders follow-ups from an indexed template table.
type TemplateComposer struct {
	templates map[templateKey]emailTemplate
}

type templateData struct {
	Lead    models.Lead
	Product string
	Day     int
}

var productPitches = map[Product]string{
	ProductHealthData:       "authentic health data for governance and research",
	ProductInvestorResearch: "deeper, customized investor insights beyond basic data",
	ProductCopilot:          "copilot optimization for your research workflows",
}

var followupBodies = map[int]string{
	3: `Hi {{.Lead.Name}},

I wanted to follow up on my note from a few days ago about {{.Product}}. Happy to share a short overview if useful for {{.Lead.Company}}.

Best Regards,
`,
	8: `Hi {{.Lead.Name}},

Just checking in once more. Teams like {{.Lead.Company}} usually see value quickly from {{.Product}}, and I'd love to show you how.

Best Regards,
`,
	17: `Hi {{.Lead.Name}},

I know inboxes get busy. If {{.Product}} is still relevant for {{.Lead.Company}}, I'm happy to work around your schedule.

Best Regards,
`,
	24: `Hi {{.Lead.Name}},

Circling back one more time on {{.Product}}. If the timing isn't right, a quick note saying so is perfectly fine.

Best Regards,
`,
	30: `Hi {{.Lead.Name}},

This is my last note on {{.Product}}. If things change at {{.Lead.Company}}, my door is always open.

Best Regards,
`,
}

// NewTemplateComposer builds the full (product, day) table from the built-in
// follow-up bodies. Day 0 is intentionally absent: initial outreach is composed
// by the caller, not by the worker.
func NewTemplateComposer() (*TemplateComposer, error) {
	c := &TemplateComposer{templates: make(map[templateKey]emailTemplate)}

	for product := range productPitches {
		for day, body := range followupBodies {
			tmpl, err := template.New(fmt.Sprintf("%s-day%d", product, day)).Parse(body)
			if err != nil {
				return nil, fmt.Errorf("template parse error: %w", err)
			}
			c.templates[templateKey{Product: product, Day: day}] = emailTemplate{
				Subject: fmt.Sprintf("Following up (day %d)", day),
				Body:    tmpl,
			}
		}
	}

	return c, nil
}

func (c *TemplateComposer) Compose(_ context.Context, lead models.Lead, product Product, followupDay int) (string, string, error) {
	entry, ok := c.templates[templateKey{Product: product, Day: followupDay}]
	if !ok {
		return "", "", fmt.Errorf("%w: product=%s day=%d", ErrNoTemplate, product, followupDay)
	}

	var body bytes.Buffer
	data := templateData{
		Lead:    lead,
		Product: productPitches[product],
		Day:     followupDay,
	}
	if err := entry.Body.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("template execution error: %w", err)
	}

	return entry.Subject, body.String(), nil
}

// CloseWithSignature appends the sender's first name when the body ends with
// the drafting convention "Best Regards,". Bodies with any other closing are
// returned untouched.
func CloseWithSignature(body, senderName string) string {
	trimmed := strings.TrimRight(body, " \t\n")
	if !strings.HasSuffix(trimmed, "Best Regards,") {
		return body
	}

	first := senderName
	if i := strings.IndexByte(first, ' '); i > 0 {
		first = first[:i]
	}
	if first == "" {
		return body
	}

	return trimmed + "\n" + first + "\n"
}
