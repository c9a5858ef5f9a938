package model

import "time"

// FieldSource records where a profile field's current value came from.
// Confidence and Source describe the winning extraction and are omitted for
// bare-value merges and manual edits.
type FieldSource struct {
	DocumentID     string    `json:"documentId"`
	ExtractedAt    time.Time `json:"extractedAt"`
	ManuallyEdited bool      `json:"manuallyEdited"`
	Confidence     *float64  `json:"confidence,omitempty"`
	Source         Source    `json:"source,omitempty"`
}

// ClientProfile is the durable, cross-document record of a client's field
// values. Every key in Data has an entry in FieldSources. Version increases
// by one on every persisted write and guards concurrent updates.
type ClientProfile struct {
	ID           string                 `json:"id"`
	ClientID     string                 `json:"clientId"`
	Data         map[string]any         `json:"data"`
	FieldSources map[string]FieldSource `json:"fieldSources"`
	Version      int64                  `json:"version"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// IsProtected reports whether field carries a manual edit that automated
// merges must not overwrite.
func (p *ClientProfile) IsProtected(field string) bool {
	if p == nil {
		return false
	}
	src, ok := p.FieldSources[field]
	return ok && src.ManuallyEdited
}

// Clone returns a copy whose maps can be mutated without touching p.
func (p *ClientProfile) Clone() *ClientProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.Data = make(map[string]any, len(p.Data))
	for k, v := range p.Data {
		c.Data[k] = v
	}
	c.FieldSources = make(map[string]FieldSource, len(p.FieldSources))
	for k, v := range p.FieldSources {
		c.FieldSources[k] = v
	}
	return &c
}
