// Package cloudflare validates tenant domain DNS configuration against the
// records stored in a Cloudflare zone.
package cloudflare

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/cloudflare/cloudflare-go/v2"
	"github.com/cloudflare/cloudflare-go/v2/dns"
	"github.com/cloudflare/cloudflare-go/v2/option"
	"github.com/cloudflare/cloudflare-go/v2/zones"

	"gitlab.bluewillows.net/root/domainsync/pkg/dnscheck"
	"gitlab.bluewillows.net/root/domainsync/pkg/domain"
)

const providerName = "cloudflare"

// recordLister is the subset of the Cloudflare API the validator needs.
type recordLister interface {
	// ZoneID returns the zone id for an exact zone name and whether it exists.
	ZoneID(ctx context.Context, name string) (string, bool, error)
	// ListRecords returns all records in a zone.
	ListRecords(ctx context.Context, zoneID string) ([]dnscheck.Record, error)
	// Verify checks that the credentials work.
	Verify(ctx context.Context) error
}

// apiClient implements recordLister on top of cloudflare-go.
type apiClient struct {
	client *cloudflare.Client
	logger *slog.Logger
}

func newAPIClient(token, endpoint string, logger *slog.Logger) *apiClient {
	opts := []option.RequestOption{option.WithAPIToken(token)}
	if endpoint != "" {
		opts = append(opts, option.WithBaseURL(endpoint))
	}
	return &apiClient{
		client: cloudflare.NewClient(opts...),
		logger: logger,
	}
}

func (c *apiClient) ZoneID(ctx context.Context, name string) (string, bool, error) {
	resp, err := c.client.Zones.List(ctx, zones.ZoneListParams{
		Name: cloudflare.F(name),
	})
	if err != nil {
		return "", false, wrapAPIError("list zones", err)
	}
	if len(resp.Result) == 0 {
		return "", false, nil
	}
	return resp.Result[0].ID, true, nil
}

func (c *apiClient) ListRecords(ctx context.Context, zoneID string) ([]dnscheck.Record, error) {
	var records []dnscheck.Record
	pager := c.client.DNS.Records.ListAutoPaging(ctx, dns.RecordListParams{
		ZoneID: cloudflare.F(zoneID),
	})
	for pager.Next() {
		r := pager.Current()
		content := ""
		if s, ok := r.Content.(string); ok {
			content = s
		}
		records = append(records, dnscheck.Record{
			Name:    r.Name,
			Type:    string(r.Type),
			Content: content,
			Proxied: r.Proxied,
		})
	}
	if err := pager.Err(); err != nil {
		return nil, wrapAPIError("list records", err)
	}

	c.logger.Debug("listed zone records",
		slog.String("zone_id", zoneID),
		slog.Int("count", len(records)),
	)
	return records, nil
}

func (c *apiClient) Verify(ctx context.Context) error {
	_, err := c.client.Zones.List(ctx, zones.ZoneListParams{})
	return wrapAPIError("verify token", err)
}

// wrapAPIError converts a cloudflare-go error into *domain.ProviderError,
// keeping the HTTP status when the SDK reports one.
func wrapAPIError(operation string, err error) error {
	if err == nil {
		return nil
	}
	pe := &domain.ProviderError{Provider: providerName, Operation: operation, Err: err}
	var apiErr *cloudflare.Error
	if errors.As(err, &apiErr) {
		pe.StatusCode = apiErr.StatusCode
		pe.Body = strings.TrimSpace(apiErr.Error())
	}
	return pe
}
