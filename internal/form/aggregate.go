// Package form holds the feedback record carried through the kiosk flow and
// the pure validators that gate each screen.
package form

import (
	"strings"
	"unicode/utf8"
)

const (
	// MaxImages caps how many attachments a single record may carry.
	MaxImages = 5
	// MaxDetailsLength bounds the free-text complaint, counted in characters.
	MaxDetailsLength = 1000
)

// Attachment is one decoded piece of photo evidence.
type Attachment struct {
	ID           string `json:"id"`
	EmbeddedData string `json:"embeddedData"`
	DisplayName  string `json:"displayName"`
}

// Aggregate is the single record accumulated across the wizard screens.
// Images keeps insertion order, which is also display order.
type Aggregate struct {
	Language Language
	Name     string
	Address  string
	Phone    string
	Details  string
	Images   []Attachment
}

// Payload is the read-only snapshot handed to the submission transport.
type Payload struct {
	Language string       `json:"language"`
	Name     string       `json:"name"`
	Address  string       `json:"address"`
	Phone    string       `json:"phone"`
	Details  string       `json:"details"`
	Images   []Attachment `json:"images"`
}

// Snapshot copies the aggregate into a Payload that shares no memory with it.
func (a Aggregate) Snapshot() Payload {
	images := make([]Attachment, len(a.Images))
	copy(images, a.Images)
	return Payload{
		Language: string(a.Language),
		Name:     a.Name,
		Address:  a.Address,
		Phone:    a.Phone,
		Details:  a.Details,
		Images:   images,
	}
}

// Clone returns a deep copy so callers can inspect state without holding a
// writable reference to the controller's record.
func (a Aggregate) Clone() Aggregate {
	out := a
	if a.Images != nil {
		out.Images = make([]Attachment, len(a.Images))
		copy(out.Images, a.Images)
	}
	return out
}

// IsEmpty reports whether the aggregate equals its initial value.
func (a Aggregate) IsEmpty() bool {
	return a.Language == LanguageUnset &&
		a.Name == "" &&
		a.Address == "" &&
		a.Phone == "" &&
		a.Details == "" &&
		len(a.Images) == 0
}

// AttachmentIndex returns the position of the attachment with id, or -1.
func (a Aggregate) AttachmentIndex(id string) int {
	for i, img := range a.Images {
		if img.ID == id {
			return i
		}
	}
	return -1
}

// TruncateDetails cuts text to MaxDetailsLength characters. Input beyond the
// bound is discarded at entry time, never validated afterwards.
func TruncateDetails(text string) string {
	if utf8.RuneCountInString(text) <= MaxDetailsLength {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	count := 0
	for _, r := range text {
		if count == MaxDetailsLength {
			break
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}

// DetailsLength counts characters the way the details counter displays them.
func DetailsLength(text string) int {
	return utf8.RuneCountInString(text)
}
