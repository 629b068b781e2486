package provider

import (
	"context"
	"strings"
)

// Message is the payload handed to a provider adapter.
type Message struct {
	To        string
	FromEmail string
	FromName  string
	Subject   string
	Body      string
}

// Provider is a mail transport for one mailbox family (Gmail, Outlook).
type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

type Kind string

const (
	KindGmail   Kind = "gmail"
	KindOutlook Kind = "outlook"
)

// Select routes a sender address to a provider kind. Total function: anything
// not recognizably Outlook falls back to Gmail.
func Select(senderEmail, orgDomain string) Kind {
	addr := strings.ToLower(senderEmail)
	if strings.Contains(addr, "outlook.com") || strings.Contains(addr, "microsoft") {
		return KindOutlook
	}
	if orgDomain != "" && strings.Contains(addr, strings.ToLower(orgDomain)) {
		return KindOutlook
	}

	return KindGmail
}

// Registry holds one adapter per kind and picks by sender address.
type Registry struct {
	gmail     Provider
	outlook   Provider
	orgDomain string
}

func NewRegistry(gmail, outlook Provider, orgDomain string) *Registry {
	return &Registry{
		gmail:     gmail,
		outlook:   outlook,
		orgDomain: orgDomain,
	}
}

func (r *Registry) ForSender(senderEmail string) Provider {
	if Select(senderEmail, r.orgDomain) == KindOutlook {
		return r.outlook
	}

	return r.gmail
}
