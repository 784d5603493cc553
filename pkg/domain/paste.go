package domain

import (
	"time"
)

type Kind string

const (
	KindQuick   Kind = "quick"
	KindSession Kind = "session"
)

type Paste struct {
	Code      string    `json:"code"`
	Text      string    `json:"text,omitempty"`
	Image     []byte    `json:"image,omitempty"`
	ImageMIME string    `json:"image_mime,omitempty"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the paste must be treated as absent. The boundary
// is inclusive: the entry is gone the instant now reaches ExpiresAt.
func (p *Paste) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

type CreateParams struct {
	Text        string
	Image       []byte
	ImageMIME   string
	SessionCode string
}

// PasteInfo is the listing view of a live paste. Content is omitted; the
// list endpoint only reveals what kind of payload exists.
type PasteInfo struct {
	Code      string    `json:"code"`
	Kind      Kind      `json:"kind"`
	HasText   bool      `json:"has_text"`
	HasImage  bool      `json:"has_image"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int       `json:"expires_in"`
}
