package dynamo

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/ride-identity/internal/domain"
	"github.com/ride-identity/internal/infrastructure/tenant"
)

// Handle is a tenant handle over DynamoDB. DynamoDB has no persistent
// connection, so a transport-level failure on any call counts as a disconnect.
type Handle struct {
	tenant   domain.Tenant
	client   *dynamodb.Client
	tables   Tables
	codes    *CodeRepo
	accounts *AccountRepo
	sessions *SessionRepo

	lost     chan struct{}
	lostOnce sync.Once
}

func newHandle(t domain.Tenant, client *dynamodb.Client, tables Tables) *Handle {
	h := &Handle{
		tenant:   t,
		client:   client,
		tables:   tables,
		codes:    NewCodeRepo(client, tables.Codes),
		accounts: NewAccountRepo(client, tables.Accounts),
		sessions: NewSessionRepo(client, tables.Sessions),
		lost:     make(chan struct{}),
	}
	h.codes.observe = h.observe
	h.accounts.observe = h.observe
	h.sessions.observe = h.observe
	return h
}

func (h *Handle) Tenant() domain.Tenant              { return h.tenant }
func (h *Handle) Codes() domain.CodeRepository       { return h.codes }
func (h *Handle) Accounts() domain.AccountRepository { return h.accounts }
func (h *Handle) Sessions() domain.SessionRepository { return h.sessions }
func (h *Handle) Disconnected() <-chan struct{}      { return h.lost }
func (h *Handle) Close(context.Context) error        { return nil }

func (h *Handle) Ping(ctx context.Context) error {
	_, err := h.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(h.tables.Codes),
	})
	if err != nil && isAuthError(err) {
		return tenant.Permanent(err)
	}
	return err
}

func (h *Handle) observe(err error) error {
	if err != nil && isNetworkError(err) {
		h.lostOnce.Do(func() { close(h.lost) })
	}
	return err
}

var _ tenant.Handle = (*Handle)(nil)
