package domains

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudflare/cloudflare-go"

	"github.com/hugh/funnel-builder/pkg/config"
)

// Hostname is the provider's view of a custom hostname.
type Hostname struct {
	ID                string
	Hostname          string
	Status            string
	SSLStatus         string
	VerificationName  string
	VerificationValue string
	Errors            []string
}

// HostnameProvider manages custom hostnames on the SaaS zone.
type HostnameProvider interface {
	CreateHostname(ctx context.Context, hostname string) (*Hostname, error)
	GetHostname(ctx context.Context, id string) (*Hostname, error)
	DeleteHostname(ctx context.Context, id string) error
}

// ErrHostnameGone is returned by GetHostname when the provider no longer
// knows the id.
var ErrHostnameGone = errors.New("custom hostname no longer exists at the provider")

// CloudflareClient implements HostnameProvider with Cloudflare for SaaS.
type CloudflareClient struct {
	api    *cloudflare.API
	zoneID string
	logger *slog.Logger
}

func NewCloudflareClient(cfg config.CloudflareConfig, logger *slog.Logger) (*CloudflareClient, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("cloudflare is not configured")
	}
	api, err := cloudflare.NewWithAPIToken(cfg.APIToken)
	if err != nil {
		return nil, fmt.Errorf("creating cloudflare client: %w", err)
	}
	return &CloudflareClient{api: api, zoneID: cfg.ZoneID, logger: logger}, nil
}

// VerifyToken checks the API token at startup.
func (c *CloudflareClient) VerifyToken(ctx context.Context) error {
	if _, err := c.api.VerifyAPIToken(ctx); err != nil {
		return fmt.Errorf("invalid cloudflare credentials: %w", err)
	}
	return nil
}

// CreateHostname registers the hostname with a DV certificate validated
// over HTTP, so the customer only needs the CNAME.
func (c *CloudflareClient) CreateHostname(ctx context.Context, hostname string) (*Hostname, error) {
	resp, err := c.api.CreateCustomHostname(ctx, c.zoneID, cloudflare.CustomHostname{
		Hostname: hostname,
		SSL: &cloudflare.CustomHostnameSSL{
			Method: "http",
			Type:   "dv",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating custom hostname: %w", err)
	}

	h := fromCloudflare(resp.Result)
	c.logger.Debug("created custom hostname", "hostname", hostname, "id", h.ID, "status", h.Status)
	return &h, nil
}

func (c *CloudflareClient) GetHostname(ctx context.Context, id string) (*Hostname, error) {
	ch, err := c.api.CustomHostname(ctx, c.zoneID, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrHostnameGone
		}
		return nil, fmt.Errorf("fetching custom hostname: %w", err)
	}
	h := fromCloudflare(ch)
	return &h, nil
}

// DeleteHostname treats an already-deleted hostname as success.
func (c *CloudflareClient) DeleteHostname(ctx context.Context, id string) error {
	if err := c.api.DeleteCustomHostname(ctx, c.zoneID, id); err != nil && !isNotFound(err) {
		return fmt.Errorf("deleting custom hostname: %w", err)
	}
	return nil
}

func fromCloudflare(ch cloudflare.CustomHostname) Hostname {
	h := Hostname{
		ID:                ch.ID,
		Hostname:          ch.Hostname,
		Status:            string(ch.Status),
		VerificationName:  ch.OwnershipVerification.Name,
		VerificationValue: ch.OwnershipVerification.Value,
	}
	h.Errors = append(h.Errors, ch.VerificationErrors...)
	if ch.SSL != nil {
		h.SSLStatus = ch.SSL.Status
		for _, ve := range ch.SSL.ValidationErrors {
			h.Errors = append(h.Errors, ve.Message)
		}
	}
	return h
}

func isNotFound(err error) bool {
	var ptr *cloudflare.NotFoundError
	var val cloudflare.NotFoundError
	return errors.As(err, &ptr) || errors.As(err, &val)
}
