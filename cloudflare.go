package noip

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"sort"
	"strings"

	"github.com/cloudflare/cloudflare-go"
	"go.uber.org/zap"
)

func newCloudflareProvider(token string) (cf *cloudflareProvider, err error) {
	if token == "" {
		return nil, errors.New("cloudflare API token cannot be empty")
	}
	cf = new(cloudflareProvider)
	cf.api, err = cloudflare.NewWithAPIToken(token)
	if err != nil {
		return nil, fmt.Errorf("error creating cloudflare api client: %w", err)
	}
	cf.logger = discard
	cf.comment = "managed by noipsensor"
	return cf, nil
}

// cloudflareProvider implements noip.Provider.
//
// Only records of the types present in the new address set are touched,
// so an IPv4 device and an IPv6 device can share a record name.
type cloudflareProvider struct {
	api     *cloudflare.API
	logger  *zap.Logger
	comment string // attached to each new DNS entry
}

func (cf *cloudflareProvider) SetLogger(logger *zap.Logger) { cf.logger = logger }

func (cf *cloudflareProvider) SetHTTPClient(c *http.Client) {
	if err := cloudflare.HTTPClient(c)(cf.api); err != nil {
		cf.logger.Warn("unable to set cloudflare http client", zap.Error(err))
	}
}

func (cf *cloudflareProvider) SetDNSRecords(ctx context.Context, domain string, addrs []netip.Addr) error {
	if len(addrs) == 0 {
		return errors.New("no addresses to set")
	}
	zid, err := cf.getZoneIDFromDomain(ctx, domain)
	if err != nil {
		return fmt.Errorf("unable to get zone ID for %s: %w", domain, err)
	}
	types := recordTypes(addrs)
	cf.logger.Debug("looking up DNS records", zap.String("zone", zid), zap.String("types", types))

	records, _, err := cf.api.ListDNSRecords(ctx, cloudflare.ZoneIdentifier(zid), cloudflare.ListDNSRecordsParams{
		Type: types,
		Name: domain,
	})
	if err != nil {
		return fmt.Errorf("error listing DNS records: %w", err)
	}
	cf.logger.Debug("found existing records", zap.Int("count", len(records)))

	existing := map[netip.Addr]bool{}
	newAddrs := map[netip.Addr]bool{}
	for _, a := range addrs {
		newAddrs[a] = true
	}
	for _, r := range records {
		a, err := netip.ParseAddr(r.Content)
		if err != nil {
			return fmt.Errorf("error parsing IP from content: %w", err)
		}
		existing[a] = true
		if newAddrs[a] {
			continue
		}
		cf.logger.Debug("deleting DNS record", zap.Stringer("ip", a))
		if err := cf.api.DeleteDNSRecord(ctx, cloudflare.ZoneIdentifier(zid), r.ID); err != nil {
			return fmt.Errorf("unable to delete DNS record %s: %w", r.ID, err)
		}
	}

	for _, a := range addrs {
		if existing[a] {
			cf.logger.Debug("record already exists", zap.Stringer("ip", a))
			continue
		}
		_, err := cf.api.CreateDNSRecord(ctx, cloudflare.ZoneIdentifier(zid), cloudflare.CreateDNSRecordParams{
			Type:    recordType(a),
			Name:    domain,
			Content: a.String(),
			ZoneID:  zid,
			TTL:     60,
			Comment: cf.comment,
		})
		if err != nil {
			return fmt.Errorf("error creating DNS record: %w", err)
		}
		cf.logger.Debug("created DNS record", zap.Stringer("ip", a))
	}
	return nil
}

func (cf *cloudflareProvider) getZoneIDFromDomain(ctx context.Context, domain string) (zid string, err error) {
	zones, err := cf.api.ListZones(ctx)
	if err != nil {
		return "", fmt.Errorf("error listing zones: %w", err)
	}

	longest := 0
	for _, z := range zones {
		if (domain == z.Name || strings.HasSuffix(domain, "."+z.Name)) && len(z.Name) > longest {
			longest, zid = len(z.Name), z.ID
		}
	}
	if longest == 0 {
		return "", fmt.Errorf("unable to find a zone matching \"%s\"", domain)
	}
	return zid, nil
}

func recordType(a netip.Addr) string {
	if a.Is4() {
		return "A"
	}
	if a.Is6() {
		return "AAAA"
	}
	panic("unknown ip configuration")
}

// recordTypes returns the comma separated record types needed for addrs, e.g. "A,AAAA".
func recordTypes(addrs []netip.Addr) string {
	seen := map[string]bool{}
	var types []string
	for _, a := range addrs {
		if t := recordType(a); !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}
	sort.Strings(types)
	return strings.Join(types, ",")
}
