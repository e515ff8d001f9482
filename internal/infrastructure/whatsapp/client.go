// Package whatsapp delivers codes as WhatsApp messages through a paired
// whatsmeow device.
package whatsapp

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waEvents "go.mau.fi/whatsmeow/types/events"
	_ "modernc.org/sqlite" // SQLite driver for the whatsmeow device store
)

// ErrNotPaired means the device store holds no logged-in session.
var ErrNotPaired = errors.New("whatsapp device not paired")

// Session is a client bound to an open device store.
type Session struct {
	*whatsmeow.Client
	container *sqlstore.Container
}

// Close disconnects the client and releases the device store.
func (s *Session) Close() {
	s.Disconnect()
	if err := s.container.Close(); err != nil {
		log.Warn().Err(err).Msg("close whatsapp store")
	}
}

// Open loads (or creates) the device stored at storePath and returns an
// unconnected client for it.
func Open(ctx context.Context, storePath string) (*Session, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout=5000&_pragma=foreign_keys=on", storePath)
	container, err := sqlstore.New(ctx, "sqlite", dsn, NewLogger("sqlstore"))
	if err != nil {
		return nil, fmt.Errorf("open whatsapp store: %w", err)
	}
	device, err := loadDevice(ctx, container)
	if err != nil {
		_ = container.Close()
		return nil, err
	}

	client := whatsmeow.NewClient(device, NewLogger("client"))
	client.AddEventHandler(func(evt any) {
		switch v := evt.(type) {
		case *waEvents.Connected:
			log.Info().Msg("whatsapp connected")
		case *waEvents.Disconnected:
			log.Warn().Msg("whatsapp disconnected")
		case *waEvents.LoggedOut:
			log.Error().Bool("on_connect", v.OnConnect).Msg("whatsapp logged out, re-pair the device")
		}
	})
	return &Session{Client: client, container: container}, nil
}

type deviceStore interface {
	GetFirstDevice(ctx context.Context) (*store.Device, error)
	NewDevice() *store.Device
}

// loadDevice returns the stored device, or a fresh unpaired one when the
// store is empty. A store that cannot be read is an error.
func loadDevice(ctx context.Context, ds deviceStore) (*store.Device, error) {
	device, err := ds.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load whatsapp device: %w", err)
	}
	if device == nil {
		device = ds.NewDevice()
	}
	return device, nil
}
