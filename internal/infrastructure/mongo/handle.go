// Package mongo implements tenant handles over MongoDB, one database per tenant.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/ride-identity/internal/config"
	"github.com/ride-identity/internal/domain"
	"github.com/ride-identity/internal/infrastructure/tenant"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	collectionCodes    = "one_time_codes"
	collectionAccounts = "accounts"
	collectionSessions = "sessions"
)

// Mongo server error codes for rejected credentials.
const (
	codeUnauthorized         = 13
	codeAuthenticationFailed = 18
)

type Handle struct {
	tenant   domain.Tenant
	client   *mongo.Client
	codes    *CodeRepo
	accounts *AccountRepo
	sessions *SessionRepo

	lost     chan struct{}
	lostOnce sync.Once
}

func (h *Handle) Tenant() domain.Tenant              { return h.tenant }
func (h *Handle) Codes() domain.CodeRepository       { return h.codes }
func (h *Handle) Accounts() domain.AccountRepository { return h.accounts }
func (h *Handle) Sessions() domain.SessionRepository { return h.sessions }
func (h *Handle) Disconnected() <-chan struct{}      { return h.lost }

func (h *Handle) Ping(ctx context.Context) error {
	if err := h.client.Ping(ctx, readpref.Primary()); err != nil {
		if isAuthError(err) {
			return tenant.Permanent(err)
		}
		return err
	}
	return nil
}

func (h *Handle) Close(ctx context.Context) error {
	return h.client.Disconnect(ctx)
}

func (h *Handle) markLost() {
	h.lostOnce.Do(func() { close(h.lost) })
}

func (h *Handle) observe(err error) error {
	if err != nil && mongo.IsNetworkError(err) {
		h.markLost()
	}
	return err
}

// Connector opens MongoDB-backed tenant handles.
type Connector struct {
	cfg *config.Config
}

func NewConnector(cfg *config.Config) *Connector {
	return &Connector{cfg: cfg}
}

func (c *Connector) Descriptor(t domain.Tenant) string {
	if t == domain.TenantPassenger {
		return c.cfg.DB.PassengerMongoURI
	}
	return c.cfg.DB.RiderMongoURI
}

// Connect builds a client with separate connect, socket and server-selection
// budgets and watches heartbeats so a lost primary invalidates the handle.
func (c *Connector) Connect(ctx context.Context, t domain.Tenant) (tenant.Handle, error) {
	uri := c.Descriptor(t)
	h := &Handle{tenant: t, lost: make(chan struct{})}

	opts := options.Client().
		ApplyURI(uri).
		SetAppName("ride-identity-" + string(t)).
		SetConnectTimeout(c.cfg.DB.ConnectTimeout).
		SetSocketTimeout(c.cfg.DB.SocketTimeout).
		SetServerSelectionTimeout(c.cfg.DB.ServerSelectionTimeout).
		SetServerMonitor(&event.ServerMonitor{
			ServerHeartbeatFailed: func(e *event.ServerHeartbeatFailedEvent) {
				log.Warn().Err(e.Failure).Str("tenant", string(t)).Str("connection", e.ConnectionID).
					Msg("mongo heartbeat failed")
				h.markLost()
			},
		})
	if err := opts.Validate(); err != nil {
		return nil, tenant.Permanent(fmt.Errorf("mongo options: %w", err))
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, tenant.Permanent(fmt.Errorf("mongo connect: %w", err))
	}
	h.client = client

	db := client.Database(databaseName(uri, t))
	h.codes = &CodeRepo{coll: db.Collection(collectionCodes), observe: h.observe}
	h.accounts = &AccountRepo{coll: db.Collection(collectionAccounts), observe: h.observe}
	h.sessions = &SessionRepo{coll: db.Collection(collectionSessions), observe: h.observe}

	if err := ensureIndexes(ctx, db); err != nil {
		_ = client.Disconnect(context.Background())
		if isAuthError(err) {
			return nil, tenant.Permanent(err)
		}
		return nil, err
	}
	return h, nil
}

// databaseName takes the database from the URI path, defaulting to the tenant name.
func databaseName(uri string, t domain.Tenant) string {
	if u, err := url.Parse(uri); err == nil {
		if name := strings.Trim(u.Path, "/"); name != "" {
			return name
		}
	}
	return string(t)
}

func isAuthError(err error) bool {
	var ce mongo.CommandError
	if errors.As(err, &ce) && (ce.Code == codeAuthenticationFailed || ce.Code == codeUnauthorized) {
		return true
	}
	return strings.Contains(err.Error(), "auth error")
}

var _ tenant.Handle = (*Handle)(nil)
