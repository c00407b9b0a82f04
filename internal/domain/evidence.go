package domain

import "time"

// EvidenceItem is a closeout artifact reference attached to a ticket.
// Items stay mutable until the ticket closes; after that they are
// flagged immutable and further writes are rejected.
type EvidenceItem struct {
	ID          string
	TicketID    string
	Kind        string
	URI         string
	Checksum    *string
	EvidenceKey *string
	Metadata    map[string]any
	Immutable   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Key resolves the requirement key an item satisfies, either directly
// or from its metadata.
func (e EvidenceItem) Key() string {
	if e.EvidenceKey != nil && *e.EvidenceKey != "" {
		return *e.EvidenceKey
	}
	if raw, ok := e.Metadata["evidence_key"]; ok {
		if key, ok := raw.(string); ok {
			return key
		}
	}
	return ""
}

// CloseoutArtifact is the immutable record persisted when a ticket
// reaches CLOSED, snapshotting the evidence set that satisfied the
// closeout gate.
type CloseoutArtifact struct {
	ID              string
	TicketID        string
	TemplateVersion string
	EvidenceKeys    []string
	CreatedAt       time.Time
}
