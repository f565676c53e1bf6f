package noip

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ProviderName names one of the public IP lookup services.
type ProviderName string

const (
	Ipify   ProviderName = "ipify"
	GetMyIP ProviderName = "getmyip"
	IPAPI   ProviderName = "ipapi"
	MyIP    ProviderName = "myip"
	IPInfo  ProviderName = "ipinfo"
)

// Providers lists every supported lookup service.
var Providers = []ProviderName{Ipify, GetMyIP, IPAPI, MyIP, IPInfo}

type bodyShape int

const (
	jsonBody bodyShape = iota // {"ip": "..."}
	textBody                  // the address on the first line
)

type endpoint struct {
	url   string
	shape bodyShape
}

type lookupKey struct {
	provider ProviderName
	family   Family
}

var endpoints = map[lookupKey]endpoint{
	{Ipify, IPv4}:   {"https://api.ipify.org?format=json", jsonBody},
	{Ipify, IPv6}:   {"https://api64.ipify.org?format=json", jsonBody},
	{GetMyIP, IPv4}: {"https://ipv4.getmyip.dev", jsonBody},
	{GetMyIP, IPv6}: {"https://ipv6.getmyip.dev", jsonBody},
	{IPAPI, IPv4}:   {"https://ipapi.co/json", jsonBody},
	{IPAPI, IPv6}:   {"https://ipv6.ipapi.co/json", jsonBody},
	{MyIP, IPv4}:    {"https://api.myip.com", jsonBody},
	{MyIP, IPv6}:    {"https://api6.my-ip.io/ip", textBody},
	{IPInfo, IPv4}:  {"https://ipinfo.io/json", jsonBody},
	{IPInfo, IPv6}:  {"https://v6.ipinfo.io/json", jsonBody},
}

// KnownProvider reports whether p is one of Providers.
func KnownProvider(p ProviderName) bool {
	_, ok := endpoints[lookupKey{p, IPv4}]
	return ok
}

func lookupEndpoint(p ProviderName, f Family) (ProviderName, endpoint) {
	if !KnownProvider(p) {
		p = IPInfo
	}
	if f != IPv6 {
		f = IPv4
	}
	return p, endpoints[lookupKey{p, f}]
}

// Endpoint returns the lookup URL used for the provider and family.
// Unknown providers fall back to ipinfo.
func Endpoint(p ProviderName, f Family) string {
	_, ep := lookupEndpoint(p, f)
	return ep.url
}

// WebResolver constructs a resolver that asks a public lookup service for our address.
//
// Each call to Resolve makes exactly one request and never retries;
// the refresh interval is the retry policy.
func WebResolver(provider ProviderName, family Family) Resolver {
	p, ep := lookupEndpoint(provider, family)
	if family != IPv6 {
		family = IPv4
	}
	return &webResolver{provider: p, family: family, endpoint: ep}
}

type webResolver struct {
	httpClient *http.Client
	provider   ProviderName
	family     Family
	endpoint   endpoint
}

func (wr *webResolver) SetHTTPClient(c *http.Client) { wr.httpClient = c }

// Resolve implements noip.Resolver.
func (wr *webResolver) Resolve(ctx context.Context) (string, error) {
	ip, err := wr.lookup(ctx)
	if err != nil {
		return "", &ResolveError{Provider: wr.provider, Family: wr.family, Err: err}
	}
	return ip, nil
}

func (wr *webResolver) lookup(ctx context.Context) (string, error) {
	// 15 seconds is an eternity for the size of the request we're making,
	// but this ensures that a lookup always completes even with http.DefaultClient (no timeout).
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wr.endpoint.url, nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	httpclient := wr.httpClient
	if httpclient == nil {
		httpclient = http.DefaultClient
	}

	resp, err := httpclient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("http request returned %s", resp.Status)
	}

	body := io.LimitReader(resp.Body, 64<<10)
	var ip string
	switch wr.endpoint.shape {
	case textBody:
		line, _ := bufio.NewReader(body).ReadString('\n')
		ip = strings.TrimSpace(line)
	default:
		var payload struct {
			IP string `json:"ip"`
		}
		if err := json.NewDecoder(body).Decode(&payload); err != nil {
			return "", fmt.Errorf("error decoding response body: %w", err)
		}
		ip = strings.TrimSpace(payload.IP)
	}
	if ip == "" {
		return "", errors.New("response did not contain an IP address")
	}
	return ip, nil
}
