// Package settings keeps the session-local user preferences.
package settings

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/patrickmn/go-cache"
)

const (
	keyLanguage = "language"
	keyDarkMode = "isDarkMode"

	// DefaultLanguage is used until the user picks another one.
	DefaultLanguage = "en"
)

// SupportedLanguages lists the accepted language codes.
var SupportedLanguages = []string{"en", "de"}

// Settings is an in-memory key/value store for the language and theme
// preferences. Values never expire; they live as long as the session.
type Settings struct {
	cache *cache.Cache
}

// New returns settings holding the defaults.
func New() *Settings {
	return &Settings{cache: cache.New(cache.NoExpiration, 0)}
}

// Language returns the current language code.
func (s *Settings) Language() string {
	if x, found := s.cache.Get(keyLanguage); found {
		return x.(string)
	}
	return DefaultLanguage
}

// SetLanguage stores a language code. Codes are case-insensitive.
func (s *Settings) SetLanguage(lang string) error {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if err := validation.Validate(lang,
		validation.Required,
		validation.In(toAny(SupportedLanguages)...),
	); err != nil {
		return fmt.Errorf("invalid language %q: %w", lang, err)
	}
	s.cache.Set(keyLanguage, lang, cache.NoExpiration)
	return nil
}

// IsDarkMode reports whether the dark theme is active.
func (s *Settings) IsDarkMode() bool {
	if x, found := s.cache.Get(keyDarkMode); found {
		return x.(bool)
	}
	return false
}

// ToggleDarkMode sets the theme to *value, or flips it when value is nil. It
// returns the new setting.
func (s *Settings) ToggleDarkMode(value *bool) bool {
	next := !s.IsDarkMode()
	if value != nil {
		next = *value
	}
	s.cache.Set(keyDarkMode, next, cache.NoExpiration)
	return next
}

func toAny(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
