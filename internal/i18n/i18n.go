// Package i18n holds the interface languages and the strings the backend
// produces on the user's behalf (prompts, export headings).
package i18n

import (
	"errors"
	"fmt"

	"golang.org/x/text/language"
)

// ErrInvalidLang is returned for languages outside the supported set.
var ErrInvalidLang = errors.New("invalid language")

// Lang is the active interface language.
type Lang string

const (
	EN Lang = "en"
	ZH Lang = "zh"
)

// Default is used when nothing else matches.
const Default = EN

// Langs lists every supported language.
var Langs = []Lang{EN, ZH}

func (l Lang) Valid() bool {
	return l == EN || l == ZH
}

// ParseLang converts s to a Lang.
func ParseLang(s string) (Lang, error) {
	l := Lang(s)
	if !l.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidLang, s)
	}
	return l, nil
}

func (l *Lang) UnmarshalText(text []byte) error {
	parsed, err := ParseLang(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

var matcher = language.NewMatcher([]language.Tag{
	language.English, // first entry is the fallback
	language.Chinese,
})

// Match picks the supported language closest to an Accept-Language header.
func Match(acceptLanguage string) Lang {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return Default
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return Default
	}
	return Langs[idx]
}
