// Package delivery issues a code and pushes it through an ordered chain of
// providers per channel. The first provider that accepts the message wins.
package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/ride-identity/internal/application/codestore"
	"github.com/ride-identity/internal/domain"
	"github.com/ride-identity/internal/pkg/mask"
	"github.com/ride-identity/internal/pkg/validate"
	"github.com/rs/zerolog/log"
)

// Provider sends a message over one channel.
type Provider interface {
	Name() string
	Send(ctx context.Context, destination, subject, body string) error
}

// Result is the delivery receipt.
type Result struct {
	Subject      domain.Subject
	CodeID       string
	ExpiresAt    time.Time
	ProviderUsed string
}

type Pipeline struct {
	store    *codestore.Store
	composer *Composer
	chains   map[domain.Channel][]Provider
	timeout  time.Duration
}

func NewPipeline(store *codestore.Store, composer *Composer, chains map[domain.Channel][]Provider, timeout time.Duration) *Pipeline {
	return &Pipeline{store: store, composer: composer, chains: chains, timeout: timeout}
}

// PrimaryProvider names the first provider of the channel's chain.
func (p *Pipeline) PrimaryProvider(channel domain.Channel) string {
	if chain := p.chains[channel]; len(chain) > 0 {
		return chain[0].Name()
	}
	return ""
}

// Request describes one delivery.
type Request struct {
	Subject     domain.Subject
	Purpose     domain.Purpose
	Channel     domain.Channel
	Destination string
	Locale      string
}

// Deliver issues a fresh code for (subject, purpose) and sends it. It fails
// with a *domain.DeliveryError only when every provider of the channel failed;
// the issued code then stays stored with status failed.
func (p *Pipeline) Deliver(ctx context.Context, req Request) (*Result, error) {
	if err := validate.Destination(req.Channel, req.Destination); err != nil {
		return nil, err
	}
	code, err := p.store.Issue(ctx, req.Subject, req.Purpose, req.Channel, req.Destination)
	if err != nil {
		return nil, err
	}

	msg := p.composer.Compose(req.Locale, req.Purpose, code.Code, code.ExpiresAt.Sub(code.CreatedAt))
	provider, failures := p.send(ctx, req.Channel, req.Destination, msg)
	if provider == "" {
		p.store.SetDeliveryStatus(ctx, req.Subject, code, domain.DeliveryFailed)
		return nil, &domain.DeliveryError{Channel: req.Channel, Failures: failures}
	}

	p.store.SetDeliveryStatus(ctx, req.Subject, code, domain.DeliverySent(provider))
	return &Result{
		Subject:      req.Subject,
		CodeID:       code.CodeID,
		ExpiresAt:    code.ExpiresAt,
		ProviderUsed: provider,
	}, nil
}

func (p *Pipeline) send(ctx context.Context, channel domain.Channel, destination string, msg Message) (string, []domain.ProviderFailure) {
	masked := mask.Destination(destination)
	var failures []domain.ProviderFailure
	for _, prov := range p.chains[channel] {
		start := time.Now()
		err := p.sendOne(ctx, prov, destination, msg)
		if err == nil {
			log.Info().Str("provider", prov.Name()).Str("channel", string(channel)).Str("destination", masked).
				Dur("took", time.Since(start)).Msg("code delivered")
			return prov.Name(), failures
		}
		log.Warn().Err(err).Str("provider", prov.Name()).Str("channel", string(channel)).Str("destination", masked).
			Msg("provider failed, trying next")
		failures = append(failures, domain.ProviderFailure{Provider: prov.Name(), Err: err})
		if ctx.Err() != nil {
			break
		}
	}
	log.Error().Str("channel", string(channel)).Str("destination", masked).Int("providers_tried", len(failures)).
		Msg("all providers failed")
	return "", failures
}

// sendOne bounds a single provider call by the provider timeout. A panic in a
// provider counts as a failure.
func (p *Pipeline) sendOne(ctx context.Context, prov Provider, destination string, msg Message) (err error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()
	return prov.Send(ctx, destination, msg.Subject, msg.Body)
}

// BuildChain orders the available providers by names. Unknown or
// unavailable names are skipped.
func BuildChain(channel domain.Channel, names []string, available map[string]Provider) []Provider {
	var chain []Provider
	for _, n := range names {
		prov, ok := available[n]
		if !ok || prov == nil {
			log.Warn().Str("channel", string(channel)).Str("provider", n).Msg("provider not available, skipping")
			continue
		}
		chain = append(chain, prov)
	}
	if len(chain) == 0 {
		log.Warn().Str("channel", string(channel)).Msg("no delivery providers configured")
	}
	return chain
}
