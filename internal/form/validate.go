package form

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Field names used as keys in FieldErrors.
const (
	FieldLanguage = "language"
	FieldName     = "name"
	FieldAddress  = "address"
	FieldPhone    = "phone"
)

const (
	msgLanguageRequired = "Please select a language"
	msgNameRequired     = "Name is required"
	msgAddressRequired  = "Address is required"
	msgPhoneRequired    = "Phone number is required"
	msgPhoneInvalid     = "Please enter a valid phone number"
)

// Optional leading "+", then at least seven digits, spaces, hyphens or parentheses.
var phonePattern = regexp.MustCompile(`^[+]?[\d\s\-()]{7,}$`)

// FieldErrors maps a field name to its user-facing message. A nil or empty
// map means the screen is valid.
type FieldErrors map[string]string

// Valid reports whether no field failed.
func (e FieldErrors) Valid() bool {
	return len(e) == 0
}

// Fields returns the failing field names in a stable order.
func (e FieldErrors) Fields() []string {
	fields := make([]string, 0, len(e))
	for field := range e {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// Clear drops the message for field, if any.
func (e FieldErrors) Clear(field string) {
	delete(e, field)
}

// Err adapts the map to an error value; nil when valid.
func (e FieldErrors) Err() error {
	if e.Valid() {
		return nil
	}
	copied := make(FieldErrors, len(e))
	for k, v := range e {
		copied[k] = v
	}
	return &ValidationError{Fields: copied}
}

// ValidationError reports every failing field of a screen at once.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, field := range e.Fields.Fields() {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e.Fields[field]))
	}
	return "form: invalid " + strings.Join(parts, "; ")
}

// ContactDraft is the uncommitted input of the contact screen.
type ContactDraft struct {
	Name    string
	Address string
	Phone   string
}

// Trimmed returns the draft with surrounding whitespace removed.
func (d ContactDraft) Trimmed() ContactDraft {
	return ContactDraft{
		Name:    strings.TrimSpace(d.Name),
		Address: strings.TrimSpace(d.Address),
		Phone:   strings.TrimSpace(d.Phone),
	}
}

// ValidateLanguage gates the language screen.
func ValidateLanguage(selection Language) FieldErrors {
	if selection.Valid() {
		return nil
	}
	return FieldErrors{FieldLanguage: msgLanguageRequired}
}

// ValidateContact checks every contact field independently so all failures
// surface together.
func ValidateContact(draft ContactDraft) FieldErrors {
	errs := FieldErrors{}
	if strings.TrimSpace(draft.Name) == "" {
		errs[FieldName] = msgNameRequired
	}
	if strings.TrimSpace(draft.Address) == "" {
		errs[FieldAddress] = msgAddressRequired
	}
	phone := strings.TrimSpace(draft.Phone)
	switch {
	case phone == "":
		errs[FieldPhone] = msgPhoneRequired
	case !ValidPhone(phone):
		errs[FieldPhone] = msgPhoneInvalid
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidPhone reports whether value matches the accepted phone shape.
func ValidPhone(value string) bool {
	return phonePattern.MatchString(value)
}
