package whatsapp

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// zlog feeds whatsmeow's log calls into zerolog.
type zlog struct {
	l zerolog.Logger
}

// NewLogger returns a whatsmeow logger tagged with module.
func NewLogger(module string) waLog.Logger {
	return zlog{l: log.Logger.With().Str("component", "whatsmeow").Str("module", module).Logger()}
}

func (z zlog) Debugf(msg string, args ...any) { z.l.Debug().Msg(fmt.Sprintf(msg, args...)) }
func (z zlog) Infof(msg string, args ...any)  { z.l.Info().Msg(fmt.Sprintf(msg, args...)) }
func (z zlog) Warnf(msg string, args ...any)  { z.l.Warn().Msg(fmt.Sprintf(msg, args...)) }
func (z zlog) Errorf(msg string, args ...any) { z.l.Error().Msg(fmt.Sprintf(msg, args...)) }

func (z zlog) Sub(module string) waLog.Logger {
	return zlog{l: z.l.With().Str("module", module).Logger()}
}
