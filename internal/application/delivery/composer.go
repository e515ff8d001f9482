package delivery

import (
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/ride-identity/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Message is what a provider sends. SMS-like providers ignore Subject.
type Message struct {
	Subject string
	Body    string
}

// Composer renders code messages per purpose and locale.
type Composer struct {
	bundle   *i18n.Bundle
	fallback string
}

// NewComposer loads the embedded message files. Unknown locales fall back
// to defaultLocale, then English.
func NewComposer(defaultLocale string) (*Composer, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}
	for _, e := range entries {
		if _, err := bundle.LoadMessageFileFS(localeFS, "locales/"+e.Name()); err != nil {
			return nil, fmt.Errorf("load %s: %w", e.Name(), err)
		}
	}
	return &Composer{bundle: bundle, fallback: defaultLocale}, nil
}

// Compose renders the message carrying code, valid for ttl.
func (c *Composer) Compose(locale string, purpose domain.Purpose, code string, ttl time.Duration) Message {
	l := i18n.NewLocalizer(c.bundle, locale, c.fallback)
	data := map[string]any{
		"Code":    code,
		"Minutes": int(ttl.Round(time.Minute) / time.Minute),
	}
	return Message{
		Subject: c.localize(l, "otp_"+string(purpose)+"_subject", data),
		Body:    c.localize(l, "otp_"+string(purpose)+"_body", data),
	}
}

func (c *Composer) localize(l *i18n.Localizer, id string, data map[string]any) string {
	s, err := l.Localize(&i18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("error getting localized message")
		return fmt.Sprintf("%v", data["Code"])
	}
	return s
}
