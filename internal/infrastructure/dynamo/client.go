package dynamo

import (
	"context"
	"fmt"
	"net"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/ride-identity/internal/config"
	"github.com/ride-identity/internal/domain"
	"github.com/ride-identity/internal/infrastructure/tenant"
)

// NewClient creates a DynamoDB client. When cfg.AWS.EndpointURL is set (LocalStack),
// it overrides the endpoint so all traffic goes to the local instance.
// The dial timeout is the connect budget and the client timeout the socket budget.
func NewClient(ctx context.Context, cfg *config.Config) (*dynamodb.Client, error) {
	httpClient := awshttp.NewBuildableClient().
		WithTimeout(cfg.DB.SocketTimeout).
		WithDialerOptions(func(d *net.Dialer) { d.Timeout = cfg.DB.ConnectTimeout })

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.Region),
		awsconfig.WithHTTPClient(httpClient),
	}

	if cfg.AWS.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWS.AccessKeyID, cfg.AWS.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	clientOpts := []func(*dynamodb.Options){}
	if cfg.AWS.EndpointURL != "" {
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		})
	}

	return dynamodb.NewFromConfig(awsCfg, clientOpts...), nil
}

// Tables names the tables of one tenant.
type Tables struct {
	Codes    string
	Accounts string
	Sessions string
}

// TablesFor applies the tenant's table prefix.
func TablesFor(cfg *config.Config, t domain.Tenant) Tables {
	prefix := cfg.DB.RiderTablePrefix
	if t == domain.TenantPassenger {
		prefix = cfg.DB.PassengerTablePrefix
	}
	return Tables{
		Codes:    prefix + "one_time_codes",
		Accounts: prefix + "accounts",
		Sessions: prefix + "sessions",
	}
}

// Connector opens DynamoDB-backed tenant handles.
type Connector struct {
	cfg *config.Config
}

func NewConnector(cfg *config.Config) *Connector {
	return &Connector{cfg: cfg}
}

func (c *Connector) Connect(ctx context.Context, t domain.Tenant) (tenant.Handle, error) {
	client, err := NewClient(ctx, c.cfg)
	if err != nil {
		return nil, tenant.Permanent(err)
	}
	tables := TablesFor(c.cfg, t)
	if err := Bootstrap(ctx, client, tables); err != nil {
		if isAuthError(err) {
			return nil, tenant.Permanent(err)
		}
		return nil, err
	}
	return newHandle(t, client, tables), nil
}

func (c *Connector) Descriptor(t domain.Tenant) string {
	endpoint := c.cfg.AWS.EndpointURL
	if endpoint == "" {
		endpoint = "https://dynamodb." + c.cfg.AWS.Region + ".amazonaws.com"
	}
	return endpoint + "/" + TablesFor(c.cfg, t).Codes
}
