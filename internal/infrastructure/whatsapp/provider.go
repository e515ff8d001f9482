package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	waTypes "go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

const Name = "whatsapp"

// Messenger is the part of *whatsmeow.Client the provider needs.
type Messenger interface {
	IsConnected() bool
	SendMessage(ctx context.Context, to waTypes.JID, message *waProto.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error)
}

// Provider sends codes to the phone number's WhatsApp account.
type Provider struct {
	client Messenger
	close  func()
}

// NewProvider connects the paired device at storePath. An unpaired store is
// an error; pair it first with cmd/wa-pair.
func NewProvider(ctx context.Context, storePath string) (*Provider, error) {
	sess, err := Open(ctx, storePath)
	if err != nil {
		return nil, err
	}
	if sess.Store.ID == nil {
		sess.Close()
		return nil, ErrNotPaired
	}
	if err := sess.Connect(); err != nil {
		sess.Close()
		return nil, fmt.Errorf("connect whatsapp: %w", err)
	}
	return &Provider{client: sess, close: sess.Close}, nil
}

func NewWithClient(client Messenger) *Provider {
	return &Provider{client: client, close: func() {}}
}

func (p *Provider) Name() string { return Name }

// Send ignores the subject; WhatsApp messages are body-only.
func (p *Provider) Send(ctx context.Context, destination, _, body string) error {
	if !p.client.IsConnected() {
		return errors.New("whatsapp client is not connected")
	}
	to, err := jidFor(destination)
	if err != nil {
		return err
	}
	if _, err := p.client.SendMessage(ctx, to, &waProto.Message{Conversation: proto.String(body)}); err != nil {
		return fmt.Errorf("whatsapp send: %w", err)
	}
	return nil
}

func (p *Provider) Close() { p.close() }

// jidFor converts an E.164 number into a user JID.
func jidFor(phone string) (waTypes.JID, error) {
	user := strings.TrimPrefix(phone, "+")
	if user == "" || strings.IndexFunc(user, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return waTypes.JID{}, fmt.Errorf("not a phone number: %q", phone)
	}
	return waTypes.NewJID(user, waTypes.DefaultUserServer), nil
}
