package models

// Lead is the enriched prospect an outreach is addressed to.
type Lead struct {
	Email   string            `json:"email"`
	Name    string            `json:"name"`
	Company string            `json:"company"`
	Title   string            `json:"title"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// SenderIdentity selects the provider adapter and signs outgoing mail.
type SenderIdentity struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}
