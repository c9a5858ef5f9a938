package model

import "time"

// Document is one uploaded source document and its extraction record.
type Document struct {
	ID            string       `json:"id"`
	ClientID      string       `json:"clientId"`
	Filename      string       `json:"filename"`
	ExtractedData DocumentData `json:"extractedData"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}
