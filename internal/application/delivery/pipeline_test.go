package delivery

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ride-identity/internal/application/codestore"
	"github.com/ride-identity/internal/domain"
	"github.com/ride-identity/internal/infrastructure/memory"
	"github.com/ride-identity/internal/infrastructure/tenant"
	"github.com/ride-identity/internal/pkg/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name  string
	err   error
	delay time.Duration

	mu     sync.Mutex
	sent   []string
	bodies []string
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Send(ctx context.Context, destination, _, body string) error {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, destination)
	p.bodies = append(p.bodies, body)
	return nil
}

var subject = domain.Subject{Tenant: domain.TenantRider, ID: "u1"}

func newPipeline(t *testing.T, chains map[domain.Channel][]Provider) (*Pipeline, *codestore.Store) {
	t.Helper()
	m := tenant.NewManager(memory.NewConnector(), tenant.Options{Attempts: 1})
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	store := codestore.New(m, codestore.Policy{Length: 6, TTL: 10 * time.Minute, MaxAttempts: 5})
	composer, err := NewComposer("en")
	require.NoError(t, err)
	return NewPipeline(store, composer, chains, 50*time.Millisecond), store
}

func TestDeliver_FirstProviderWins(t *testing.T) {
	primary := &stubProvider{name: "sns"}
	secondary := &stubProvider{name: "whatsapp"}
	p, store := newPipeline(t, map[domain.Channel][]Provider{domain.ChannelSMS: {primary, secondary}})

	res, err := p.Deliver(context.Background(), Request{
		Subject: subject, Purpose: domain.PurposeLogin, Channel: domain.ChannelSMS, Destination: "+15550001234",
	})
	require.NoError(t, err)
	assert.Equal(t, "sns", res.ProviderUsed)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), res.ExpiresAt, 5*time.Second)
	assert.Equal(t, []string{"+15550001234"}, primary.sent)
	assert.Empty(t, secondary.sent)

	c, err := store.Latest(context.Background(), subject, domain.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, "sent:sns", c.DeliveryStatus)
	assert.Equal(t, res.CodeID, c.CodeID)
}

func TestDeliver_FallsBackOnError(t *testing.T) {
	primary := &stubProvider{name: "sns", err: errors.New("sns: throttled")}
	secondary := &stubProvider{name: "whatsapp"}
	p, store := newPipeline(t, map[domain.Channel][]Provider{domain.ChannelSMS: {primary, secondary}})

	res, err := p.Deliver(context.Background(), Request{
		Subject: subject, Purpose: domain.PurposeLogin, Channel: domain.ChannelSMS, Destination: "+15550001234",
	})
	require.NoError(t, err)
	assert.Equal(t, "whatsapp", res.ProviderUsed)

	// The delivered body carries the code that verifies.
	require.Len(t, secondary.bodies, 1)
	c, err := store.Latest(context.Background(), subject, domain.PurposeLogin)
	require.NoError(t, err)
	found := false
	for i := 0; i+6 <= len(secondary.bodies[0]); i++ {
		if token.Hash(secondary.bodies[0][i:i+6]) == c.CodeHash {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDeliver_TimeoutFallsBack(t *testing.T) {
	slow := &stubProvider{name: "smtp", delay: time.Second}
	fast := &stubProvider{name: "smtp_fallback"}
	p, _ := newPipeline(t, map[domain.Channel][]Provider{domain.ChannelEmail: {slow, fast}})

	res, err := p.Deliver(context.Background(), Request{
		Subject: subject, Purpose: domain.PurposeVerification, Channel: domain.ChannelEmail, Destination: "jane@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "smtp_fallback", res.ProviderUsed)
}

func TestDeliver_AllFail(t *testing.T) {
	a := &stubProvider{name: "sns", err: errors.New("down")}
	b := &stubProvider{name: "whatsapp", err: errors.New("not connected")}
	p, store := newPipeline(t, map[domain.Channel][]Provider{domain.ChannelSMS: {a, b}})

	_, err := p.Deliver(context.Background(), Request{
		Subject: subject, Purpose: domain.PurposeLogin, Channel: domain.ChannelSMS, Destination: "+15550001234",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDeliveryFailed)
	var de *domain.DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Len(t, de.Failures, 2)

	c, err := store.Latest(context.Background(), subject, domain.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryFailed, c.DeliveryStatus)
}

func TestPrimaryProvider(t *testing.T) {
	p, _ := newPipeline(t, map[domain.Channel][]Provider{
		domain.ChannelSMS: {&stubProvider{name: "sns"}, &stubProvider{name: "whatsapp"}},
	})
	assert.Equal(t, "sns", p.PrimaryProvider(domain.ChannelSMS))
	assert.Empty(t, p.PrimaryProvider(domain.ChannelEmail))
}

func TestDeliver_EmptyChainFails(t *testing.T) {
	p, _ := newPipeline(t, nil)
	_, err := p.Deliver(context.Background(), Request{
		Subject: subject, Purpose: domain.PurposeLogin, Channel: domain.ChannelEmail, Destination: "jane@example.com",
	})
	assert.ErrorIs(t, err, domain.ErrDeliveryFailed)
}

func TestDeliver_RejectsMismatchedDestination(t *testing.T) {
	prov := &stubProvider{name: "sns"}
	p, store := newPipeline(t, map[domain.Channel][]Provider{domain.ChannelSMS: {prov}})

	_, err := p.Deliver(context.Background(), Request{
		Subject: subject, Purpose: domain.PurposeLogin, Channel: domain.ChannelSMS, Destination: "jane@example.com",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDestination)
	assert.Empty(t, prov.sent)
	_, err = store.Latest(context.Background(), subject, domain.PurposeLogin)
	assert.ErrorIs(t, err, domain.ErrNotFoundOrExpired, "no code issued")
}

func TestDeliver_LogsMaskedDestination(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	a := &stubProvider{name: "sns", err: errors.New("down")}
	b := &stubProvider{name: "whatsapp"}
	p, _ := newPipeline(t, map[domain.Channel][]Provider{domain.ChannelSMS: {a, b}})
	_, err := p.Deliver(context.Background(), Request{
		Subject: subject, Purpose: domain.PurposeLogin, Channel: domain.ChannelSMS, Destination: "+15550001234",
	})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "***1234")
	assert.NotContains(t, buf.String(), "+15550001234")
}

func TestBuildChain_SkipsUnknown(t *testing.T) {
	sns := &stubProvider{name: "sns"}
	chain := BuildChain(domain.ChannelSMS, []string{"twilio", "sns"}, map[string]Provider{"sns": sns})
	require.Len(t, chain, 1)
	assert.Same(t, sns, chain[0])
}

func TestCompose_Locales(t *testing.T) {
	c, err := NewComposer("en")
	require.NoError(t, err)

	en := c.Compose("en", domain.PurposeLogin, "123456", 10*time.Minute)
	assert.Equal(t, "Your sign-in code", en.Subject)
	assert.Contains(t, en.Body, "123456")
	assert.Contains(t, en.Body, "10 minutes")

	es := c.Compose("es-MX", domain.PurposeVerification, "654321", 5*time.Minute)
	assert.Contains(t, es.Body, "654321")
	assert.Contains(t, es.Body, "5 minutos")

	fallback := c.Compose("fr", domain.PurposePasswordReset, "111111", 10*time.Minute)
	assert.Equal(t, "Reset your password", fallback.Subject)
}
