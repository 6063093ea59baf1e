// Package i18n translates the messages shown on the kiosk screen.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// Translator resolves message IDs for one language, falling back to English.
type Translator struct {
	bundle    *i18n.Bundle
	localizer *i18n.Localizer
	lang      string
}

// NewBundle parses the embedded translation files.
func NewBundle() (*i18n.Bundle, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	files, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + f.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name(), err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, f.Name()); err != nil {
			return nil, fmt.Errorf("parse %s: %w", f.Name(), err)
		}
	}
	return bundle, nil
}

// New returns a translator for lang, e.g. "es" or "en-US".
func New(lang string) (*Translator, error) {
	bundle, err := NewBundle()
	if err != nil {
		return nil, err
	}
	return &Translator{bundle: bundle, localizer: i18n.NewLocalizer(bundle, lang, "en"), lang: lang}, nil
}

// For returns a translator preferring langs (language tags or Accept-Language
// values) and falling back to this translator's language. Empty langs return t.
func (t *Translator) For(langs ...string) *Translator {
	var prefs []string
	for _, l := range langs {
		if l != "" {
			prefs = append(prefs, l)
		}
	}
	if len(prefs) == 0 {
		return t
	}
	prefs = append(prefs, t.lang, "en")
	return &Translator{bundle: t.bundle, localizer: i18n.NewLocalizer(t.bundle, prefs...), lang: prefs[0]}
}

// Language returns the requested language.
func (t *Translator) Language() string {
	return t.lang
}

// T translates messageID with optional template data. Unknown IDs are returned as is.
func (t *Translator) T(messageID string, data map[string]any) string {
	msg, err := t.localizer.Localize(&i18n.LocalizeConfig{MessageID: messageID, TemplateData: data})
	if err != nil {
		return messageID
	}
	return msg
}
