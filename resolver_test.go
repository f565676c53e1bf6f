package noip_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/Travis-Britz/noip"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

// resolveWith runs a resolver for provider and family against a fake transport,
// returning the address sent to No-IP and the URLs requested.
func resolveWith(t *testing.T, provider noip.ProviderName, family noip.Family, status int, body string) (string, []string, error) {
	t.Helper()
	var mu sync.Mutex
	var urls []string
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		mu.Lock()
		urls = append(urls, r.URL.String())
		mu.Unlock()
		return respond(status, body), nil
	})}
	host := newFakeHost()
	var ip string
	d, err := noip.NewDevice(noip.DeviceConfig{Hostname: "home.ddns.net", IPProvider: provider, AddressFamily: family}, host,
		noip.UsingHTTPClient(client),
		noip.UsingUpdater(noip.UpdaterFunc(func(_ context.Context, u noip.Update) (noip.UpdateResult, error) {
			ip = u.IP
			return noip.UpdateResult{Status: noip.StatusNoChange, IP: u.IP}, nil
		})),
	)
	if err != nil {
		t.Fatalf("NewDevice failed: %s", err)
	}
	err = d.Refresh(context.Background())
	return ip, urls, err
}

func TestEndpointSelection(t *testing.T) {
	want := map[noip.ProviderName][2]string{
		noip.Ipify:   {"https://api.ipify.org?format=json", "https://api64.ipify.org?format=json"},
		noip.GetMyIP: {"https://ipv4.getmyip.dev", "https://ipv6.getmyip.dev"},
		noip.IPAPI:   {"https://ipapi.co/json", "https://ipv6.ipapi.co/json"},
		noip.MyIP:    {"https://api.myip.com", "https://api6.my-ip.io/ip"},
		noip.IPInfo:  {"https://ipinfo.io/json", "https://v6.ipinfo.io/json"},
	}
	for _, p := range noip.Providers {
		for i, f := range []noip.Family{noip.IPv4, noip.IPv6} {
			body := `{"ip": "203.0.113.5"}`
			if p == noip.MyIP && f == noip.IPv6 {
				body = "2001:db8::1\n"
			}
			_, urls, err := resolveWith(t, p, f, http.StatusOK, body)
			if err != nil {
				t.Fatalf("%s/%s: Refresh failed: %s", p, f, err)
			}
			if len(urls) != 1 {
				t.Fatalf("%s/%s: Expected exactly 1 request; got %d", p, f, len(urls))
			}
			if urls[0] != want[p][i] {
				t.Fatalf("%s/%s: Expected %q; got %q", p, f, want[p][i], urls[0])
			}
			if noip.Endpoint(p, f) != want[p][i] {
				t.Fatalf("%s/%s: Expected Endpoint to return %q; got %q", p, f, want[p][i], noip.Endpoint(p, f))
			}
		}
	}
}

func TestUnknownProviderFallsBackToIPInfo(t *testing.T) {
	_, urls, err := resolveWith(t, "whatismyip", noip.IPv4, http.StatusOK, `{"ip": "203.0.113.5"}`)
	if err != nil {
		t.Fatalf("Refresh failed: %s", err)
	}
	if len(urls) != 1 || urls[0] != "https://ipinfo.io/json" {
		t.Fatalf("Expected a single ipinfo request; got %v", urls)
	}
}

func TestLookupParsesBody(t *testing.T) {
	ip, _, err := resolveWith(t, noip.Ipify, noip.IPv4, http.StatusOK, `{"ip":"198.51.100.7","country":"US"}`)
	if err != nil {
		t.Fatalf("Refresh failed: %s", err)
	}
	if expected, got := "198.51.100.7", ip; expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}

	ip, _, err = resolveWith(t, noip.MyIP, noip.IPv6, http.StatusOK, "  2001:db8::7 \nignored")
	if err != nil {
		t.Fatalf("Refresh failed: %s", err)
	}
	if expected, got := "2001:db8::7", ip; expected != got {
		t.Fatalf("Expected %q; got %q", expected, got)
	}
}

func TestLookupFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"ip": "203.0.113.5"}`},
		{"missing field", http.StatusOK, `{"address": "203.0.113.5"}`},
		{"empty field", http.StatusOK, `{"ip": ""}`},
		{"not json", http.StatusOK, `203.0.113.5`},
	}
	for _, tt := range tests {
		ip, urls, err := resolveWith(t, noip.IPInfo, noip.IPv4, tt.status, tt.body)
		var rerr *noip.ResolveError
		if !errors.As(err, &rerr) {
			t.Fatalf("%s: Expected a *ResolveError; got %v", tt.name, err)
		}
		if len(urls) != 1 {
			t.Fatalf("%s: Expected exactly 1 request without retries; got %d", tt.name, len(urls))
		}
		if ip != "" {
			t.Fatalf("%s: Expected no update to be attempted; got update for %q", tt.name, ip)
		}
	}
}

func TestWebResolverTransportError(t *testing.T) {
	r := noip.WebResolver(noip.Ipify, noip.IPv4)
	r.(interface{ SetHTTPClient(*http.Client) }).SetHTTPClient(&http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})})
	_, err := r.Resolve(context.Background())
	var rerr *noip.ResolveError
	if !errors.As(err, &rerr) {
		t.Fatalf("Expected a *ResolveError; got %v", err)
	}
	if rerr.Provider != noip.Ipify || rerr.Family != noip.IPv4 {
		t.Fatalf("Expected the error to name the provider and family; got %+v", rerr)
	}
}
