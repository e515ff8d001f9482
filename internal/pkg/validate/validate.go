package validate

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ride-identity/internal/domain"
)

// v is the package-level singleton validator. It is initialised once at
// package load time. Any custom type registrations must be made during init()
// before the first call to Struct.
var v = validator.New()

func init() {
	v.RegisterValidation("purpose", func(fl validator.FieldLevel) bool {
		return domain.Purpose(fl.Field().String()).Valid()
	})
	v.RegisterValidation("channel", func(fl validator.FieldLevel) bool {
		return domain.Channel(fl.Field().String()).Valid()
	})
}

// Struct validates the given struct using its validate tags.
// Returns a human-readable error string or nil.
func Struct(s interface{}) error {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		var msgs []string
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}

// Destination checks that dest has the format channel expects:
// E.164 for sms, an email address for email.
func Destination(channel domain.Channel, dest string) error {
	var tag string
	switch channel {
	case domain.ChannelSMS:
		tag = "required,e164"
	case domain.ChannelEmail:
		tag = "required,email"
	default:
		return fmt.Errorf("unknown channel %q: %w", channel, domain.ErrBadRequest)
	}
	if err := v.Var(dest, tag); err != nil {
		return fmt.Errorf("%s destination: %w", channel, domain.ErrInvalidDestination)
	}
	return nil
}

// ChannelOf guesses the channel for a destination.
func ChannelOf(dest string) domain.Channel {
	if strings.Contains(dest, "@") {
		return domain.ChannelEmail
	}
	return domain.ChannelSMS
}
