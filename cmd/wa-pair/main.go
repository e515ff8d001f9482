// Command wa-pair links the WhatsApp device store used by the whatsapp
// delivery provider. Run it once and scan the QR code with the sending phone.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mdp/qrterminal/v3"
	"github.com/ride-identity/internal/config"
	"github.com/ride-identity/internal/infrastructure/whatsapp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := whatsapp.Open(ctx, cfg.Delivery.WhatsAppStorePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open device store")
	}
	defer client.Close()

	if client.Store.ID != nil {
		log.Info().Str("device", client.Store.ID.String()).Msg("device already paired")
		return
	}

	qr, err := client.GetQRChannel(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get QR channel")
	}
	if err := client.Connect(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect")
	}
	for evt := range qr {
		if evt.Event == "code" {
			log.Info().Msg("scan the QR code in WhatsApp > Linked devices")
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			continue
		}
		log.Info().Str("event", evt.Event).Msg("pairing event")
		if evt.Event == "success" {
			log.Info().Str("store", cfg.Delivery.WhatsAppStorePath).Msg("device paired")
		}
	}
}
