package form

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Language is the kiosk's fixed set of preferred languages. The zero value
// means no language has been chosen yet.
type Language string

const (
	LanguageUnset   Language = ""
	LanguageEnglish Language = "english"
	LanguageNepali  Language = "nepali"
	LanguageHindi   Language = "hindi"
)

var languageTags = map[Language]language.Tag{
	LanguageEnglish: language.English,
	LanguageNepali:  language.MustParse("ne"),
	LanguageHindi:   language.Hindi,
}

// Languages returns the selectable languages in display order.
func Languages() []Language {
	return []Language{LanguageEnglish, LanguageNepali, LanguageHindi}
}

// ParseLanguage maps user input to a Language. Unknown values yield
// LanguageUnset and false.
func ParseLanguage(value string) (Language, bool) {
	candidate := Language(strings.ToLower(strings.TrimSpace(value)))
	if candidate.Valid() {
		return candidate, true
	}
	return LanguageUnset, false
}

// Valid reports whether l is one of the enumerated languages.
func (l Language) Valid() bool {
	_, ok := languageTags[l]
	return ok
}

// Tag returns the BCP 47 tag for l, or language.Und when unset.
func (l Language) Tag() language.Tag {
	if tag, ok := languageTags[l]; ok {
		return tag
	}
	return language.Und
}

// Label renders the English name followed by the language's own name when
// they differ, e.g. "Nepali (नेपाली)".
func (l Language) Label() string {
	tag, ok := languageTags[l]
	if !ok {
		return ""
	}
	english := display.English.Tags().Name(tag)
	self := display.Self.Name(tag)
	if self == "" || strings.EqualFold(self, english) {
		return english
	}
	return english + " (" + self + ")"
}

func (l Language) String() string {
	return string(l)
}
